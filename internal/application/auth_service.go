package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// UserRepository captures the account persistence needed by the auth and user services.
type UserRepository interface {
	CreateUser(ctx context.Context, user User, passwordHash string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetCredentials(ctx context.Context, username string) (UserCredentials, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateProfile(ctx context.Context, user User, passwordHash string) (User, error)
	SetStatus(ctx context.Context, id string, status UserStatus, at time.Time) (User, error)
}

// TokenIssuer signs and verifies session tokens.
type TokenIssuer interface {
	Issue(principal Principal, issuedAt time.Time) (Session, error)
	Verify(token string, now time.Time) (Principal, error)
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthService coordinates registration, login, and session validation.
type AuthService struct {
	users          UserRepository
	tokens         TokenIssuer
	activity       ActivityLog
	hashPassword   PasswordHasher
	verifyPassword PasswordVerifier
	needsRehash    func(hash string) bool
	idGenerator    func() string
	now            func() time.Time
	logger         *slog.Logger
}

// AuthServiceDeps groups the collaborators of AuthService.
type AuthServiceDeps struct {
	Users          UserRepository
	Tokens         TokenIssuer
	Activity       ActivityLog
	HashPassword   PasswordHasher
	VerifyPassword PasswordVerifier
	NeedsRehash    func(hash string) bool
	IDGenerator    func() string
	Now            func() time.Time
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(deps AuthServiceDeps) *AuthService {
	return NewAuthServiceWithLogger(deps, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(deps AuthServiceDeps, logger *slog.Logger) *AuthService {
	if deps.HashPassword == nil {
		deps.HashPassword = HashPassword
	}
	if deps.VerifyPassword == nil {
		deps.VerifyPassword = VerifyPassword
	}
	if deps.NeedsRehash == nil {
		deps.NeedsRehash = NeedsRehash
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "" }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &AuthService{
		users:          deps.Users,
		tokens:         deps.Tokens,
		activity:       deps.Activity,
		hashPassword:   deps.HashPassword,
		verifyPassword: deps.VerifyPassword,
		needsRehash:    deps.NeedsRehash,
		idGenerator:    deps.IDGenerator,
		now:            deps.Now,
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// Register creates an active student account.
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	input := normalizeAccountInput(accountInput{
		Username: params.Username,
		Email:    params.Email,
		FullName: params.FullName,
		Password: params.Password,
		Role:     string(RoleStudent),
	})

	logger := s.loggerWith(ctx, "Register", "username", input.Username)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "registration failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "user registered")
	}()

	user, err = createAccount(ctx, s.users, s.hashPassword, s.idGenerator, s.now, input)
	if err != nil {
		return
	}

	recordActivity(ctx, s.activity, logger, ActivityEntry{
		ID:         s.idGenerator(),
		UserID:     user.ID,
		Action:     ActionRegister,
		Details:    "registered as " + string(user.Role),
		OccurredAt: currentTime(s.now),
	})
	return
}

// Authenticate validates credentials and issues a signed session token.
func (s *AuthService) Authenticate(ctx context.Context, params AuthenticateParams) (result AuthenticateResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.users == nil || s.tokens == nil {
		err = fmt.Errorf("auth service not configured")
		return
	}

	username := strings.ToLower(strings.TrimSpace(params.Username))
	password := params.Password

	logger := s.loggerWith(ctx, "Authenticate", "username", username)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "authentication failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"user_id", result.User.ID,
			"expires_at", result.Session.ExpiresAt,
		).InfoContext(ctx, "authentication succeeded")
	}()

	if username == "" || password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds UserCredentials
	creds, err = s.users.GetCredentials(ctx, username)
	if err != nil {
		err = mapStoreError(err)
		if errors.Is(err, ErrNotFound) {
			err = ErrInvalidCredentials
		}
		return
	}

	if err = s.verifyPassword(creds.PasswordHash, password); err != nil {
		err = ErrInvalidCredentials
		return
	}
	if creds.User.Status != UserStatusActive {
		err = ErrAccountDisabled
		return
	}
	if s.needsRehash(creds.PasswordHash) {
		s.upgradePassword(ctx, logger, creds.User, password)
	}

	now := currentTime(s.now)
	var session Session
	session, err = s.tokens.Issue(Principal{UserID: creds.User.ID, Role: creds.User.Role}, now)
	if err != nil {
		return
	}

	recordActivity(ctx, s.activity, logger, ActivityEntry{
		ID:         s.idGenerator(),
		UserID:     creds.User.ID,
		Action:     ActionLogin,
		OccurredAt: now,
	})

	result = AuthenticateResult{User: creds.User, Session: session}
	return
}

// upgradePassword replaces a legacy hash once the plaintext is known. A failure
// is logged and does not block the login.
func (s *AuthService) upgradePassword(ctx context.Context, logger *slog.Logger, user User, password string) {
	hash, err := s.hashPassword(password)
	if err == nil {
		_, err = s.users.UpdateProfile(ctx, user, hash)
	}
	if err != nil {
		logger.WarnContext(ctx, "password rehash failed", "error", err, "error_kind", ErrorKind(mapStoreError(err)))
		return
	}
	logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID)
}

// ValidateSession verifies a token and reloads the account so that role and
// status changes take effect before the token expires.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.users == nil || s.tokens == nil {
		err = fmt.Errorf("auth service not configured")
		return
	}

	trimmed := strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "ValidateSession", "token_provided", trimmed != "")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "session validation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("principal_id", principal.UserID).DebugContext(ctx, "session validated")
	}()

	if trimmed == "" {
		err = ErrUnauthorized
		return
	}

	var claimed Principal
	claimed, err = s.tokens.Verify(trimmed, s.now())
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrUnauthorized, err)
		return
	}

	var user User
	user, err = s.users.GetUser(ctx, claimed.UserID)
	if err != nil {
		err = mapStoreError(err)
		if errors.Is(err, ErrNotFound) {
			err = ErrUnauthorized
		}
		return
	}
	if user.Status != UserStatusActive {
		err = ErrAccountDisabled
		return
	}

	principal = Principal{UserID: user.ID, Role: user.Role}
	return
}

type accountInput struct {
	Username string `field:"username" validate:"required,min=3,max=50,username"`
	Email    string `field:"email" validate:"required,email,max=255"`
	FullName string `field:"full_name" validate:"required,max=100"`
	Password string `field:"password" validate:"required,min=6,max=128"`
	Role     string `field:"role" validate:"required,oneof=admin librarian student"`
}

func normalizeAccountInput(input accountInput) accountInput {
	return accountInput{
		Username: strings.ToLower(strings.TrimSpace(input.Username)),
		Email:    strings.ToLower(strings.TrimSpace(input.Email)),
		FullName: strings.TrimSpace(input.FullName),
		Password: input.Password,
		Role:     strings.ToLower(strings.TrimSpace(input.Role)),
	}
}

func createAccount(ctx context.Context, users UserRepository, hash PasswordHasher, idGenerator func() string, now func() time.Time, input accountInput) (User, error) {
	if vErr := validateStruct(input); vErr.HasErrors() {
		return User{}, vErr
	}

	passwordHash, err := hash(input.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	created := currentTime(now)
	user := User{
		ID:        idGenerator(),
		Username:  input.Username,
		Email:     input.Email,
		FullName:  input.FullName,
		Role:      Role(input.Role),
		Status:    UserStatusActive,
		CreatedAt: created,
		UpdatedAt: created,
	}

	persisted, err := users.CreateUser(ctx, user, passwordHash)
	if err != nil {
		return User{}, mapStoreError(err)
	}
	return persisted, nil
}
