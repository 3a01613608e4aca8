package application

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidPasswordHash         = errors.New("invalid password hash format")
	ErrIncompatiblePasswordVersion = errors.New("incompatible password hash version")
)

type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// PasswordHasher turns a plaintext password into a storable hash.
type PasswordHasher func(password string) (string, error)

// HashPassword hashes with DefaultArgon2idParams.
func HashPassword(password string) (string, error) {
	return CreatePasswordHash(password, DefaultArgon2idParams)
}

// CreatePasswordHash encodes an argon2id key as
// $argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<key>.
func CreatePasswordHash(password string, params Argon2idParams) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks password against an argon2id hash. Bcrypt hashes
// ($2a$, $2b$, $2y$) carried over from the previous catalog system are also
// accepted.
func VerifyPassword(hashedPassword, password string) error {
	if isBcryptHash(hashedPassword) {
		return verifyBcrypt(hashedPassword, password)
	}

	decoded, err := parseArgon2idHash(hashedPassword)
	if err != nil {
		return err
	}
	p := decoded.params
	candidate := argon2.IDKey([]byte(password), decoded.salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	if subtle.ConstantTimeCompare(decoded.key, candidate) == 1 {
		return nil
	}
	return ErrInvalidCredentials
}

// NeedsRehash reports whether a stored hash should be replaced with one built
// from DefaultArgon2idParams: bcrypt hashes and argon2id hashes weaker than the
// defaults. Unrecognised formats report false.
func NeedsRehash(hashedPassword string) bool {
	if isBcryptHash(hashedPassword) {
		return true
	}
	decoded, err := parseArgon2idHash(hashedPassword)
	if err != nil {
		return false
	}
	p, want := decoded.params, DefaultArgon2idParams
	return p.Memory < want.Memory ||
		p.Iterations < want.Iterations ||
		p.KeyLength < want.KeyLength ||
		p.SaltLength < want.SaltLength
}

type argon2idHash struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func parseArgon2idHash(encoded string) (argon2idHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return argon2idHash{}, ErrInvalidPasswordHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return argon2idHash{}, fmt.Errorf("%w: %v", ErrInvalidPasswordHash, err)
	}
	if version != argon2.Version {
		return argon2idHash{}, ErrIncompatiblePasswordVersion
	}

	var out argon2idHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &out.params.Memory, &out.params.Iterations, &out.params.Parallelism); err != nil {
		return argon2idHash{}, fmt.Errorf("%w: %v", ErrInvalidPasswordHash, err)
	}
	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return argon2idHash{}, fmt.Errorf("%w: salt: %v", ErrInvalidPasswordHash, err)
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return argon2idHash{}, fmt.Errorf("%w: key: %v", ErrInvalidPasswordHash, err)
	}
	out.params.SaltLength = uint32(len(out.salt))
	out.params.KeyLength = uint32(len(out.key))
	return out, nil
}

func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}

func verifyBcrypt(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("%w: %v", ErrInvalidPasswordHash, err)
	}
}
