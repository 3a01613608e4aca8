// Package auth signs and verifies the session tokens handed out at login.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "library-system"

var (
	// ErrInvalidToken is returned for tokens that are malformed, expired or signed with another key.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrMissingSecret is returned when the manager is built without a signing key.
	ErrMissingSecret = errors.New("auth: signing secret is required")
)

// Claims are the session claims carried in a token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues HS256 tokens valid for a fixed lifetime.
type Manager struct {
	secret   []byte
	lifetime time.Duration
}

// NewManager returns a Manager signing with secret. A non-positive lifetime defaults to one hour.
func NewManager(secret string, lifetime time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	return &Manager{secret: []byte(secret), lifetime: lifetime}, nil
}

// Lifetime reports how long issued tokens stay valid.
func (m *Manager) Lifetime() time.Duration {
	return m.lifetime
}

// Issue signs a token for subject with role, valid from issuedAt until issuedAt plus the lifetime.
func (m *Manager) Issue(subject, role string, issuedAt time.Time) (token string, expiresAt time.Time, err error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	expiresAt = issuedAt.Add(m.lifetime)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks the signature and expiry of token as of now and returns its claims.
func (m *Manager) Verify(token string, now time.Time) (Claims, error) {
	claims := Claims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
