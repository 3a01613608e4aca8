package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// UserService orchestrates validation, authorization, and persistence for accounts.
type UserService struct {
	users        UserRepository
	activity     ActivityLog
	hashPassword PasswordHasher
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, activity ActivityLog, hash PasswordHasher, idGenerator func() string, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, activity, hash, idGenerator, now, nil)
}

// NewUserServiceWithLogger wires dependencies for the user service with a specified logger.
func NewUserServiceWithLogger(users UserRepository, activity ActivityLog, hash PasswordHasher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UserService {
	if hash == nil {
		hash = HashPassword
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{
		users:        users,
		activity:     activity,
		hashPassword: hash,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *UserService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UserService", operation, attrs...)
}

// CreateUser lets an administrator open an account with any role.
func (s *UserService) CreateUser(ctx context.Context, params CreateUserParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateUser",
		"principal_id", params.Principal.UserID,
		"role", params.Role,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "user created")
	}()

	if !params.Principal.Can(PermManageUsers) {
		err = ErrUnauthorized
		return
	}

	input := normalizeAccountInput(accountInput{
		Username: params.Username,
		Email:    params.Email,
		FullName: params.FullName,
		Password: params.Password,
		Role:     string(params.Role),
	})
	user, err = createAccount(ctx, s.users, s.hashPassword, s.idGenerator, s.now, input)
	if err != nil {
		return
	}

	recordActivity(ctx, s.activity, logger, ActivityEntry{
		ID:         s.idGenerator(),
		UserID:     params.Principal.UserID,
		Action:     ActionCreateUser,
		Details:    fmt.Sprintf("created %s %s", user.Role, user.Username),
		OccurredAt: currentTime(s.now),
	})
	return
}

// EnsureAdmin creates an administrator account named username unless an account
// with that name already exists. It reports whether an account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) (user User, created bool, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	username = strings.ToLower(strings.TrimSpace(username))
	logger := s.loggerWith(ctx, "EnsureAdmin", "username", username)

	existing, lookupErr := s.users.GetCredentials(ctx, username)
	switch lookupErr = mapStoreError(lookupErr); {
	case lookupErr == nil:
		user = existing.User
		logger.DebugContext(ctx, "bootstrap account already present")
		return
	case !errors.Is(lookupErr, ErrNotFound):
		err = lookupErr
		return
	}

	user, err = createAccount(ctx, s.users, s.hashPassword, s.idGenerator, s.now, accountInput{
		Username: username,
		Email:    username + "@library.local",
		FullName: "Administrator",
		Password: password,
		Role:     string(RoleAdmin),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to bootstrap administrator", "error", err, "error_kind", ErrorKind(err))
		return
	}
	created = true
	logger.With("user_id", user.ID).InfoContext(ctx, "administrator bootstrapped")
	return
}

// GetUser returns an account to its owner or to staff with view access.
func (s *UserService) GetUser(ctx context.Context, principal Principal, userID string) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}
	if userID == "" {
		userID = principal.UserID
	}
	if !principal.canActFor(userID, PermViewOwnProfile, PermViewUsers) {
		return User{}, ErrUnauthorized
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return User{}, mapStoreError(err)
	}
	return user, nil
}

// ListUsers returns all accounts ordered by username.
func (s *UserService) ListUsers(ctx context.Context, principal Principal) ([]User, error) {
	if s == nil {
		return nil, fmt.Errorf("UserService is nil")
	}
	if !principal.Can(PermViewUsers) {
		return nil, ErrUnauthorized
	}
	if s.users == nil {
		return nil, nil
	}

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}

	out := make([]User, len(users))
	copy(out, users)

	sort.Slice(out, func(i, j int) bool {
		if out[i].Username == out[j].Username {
			return out[i].ID < out[j].ID
		}
		return out[i].Username < out[j].Username
	})

	return out, nil
}

type profileInput struct {
	Email    string `field:"email" validate:"required,email,max=255"`
	FullName string `field:"full_name" validate:"required,max=100"`
	Password string `field:"password" validate:"omitempty,min=6,max=128"`
}

// UpdateProfile edits the email, full name, and optionally the password of an account.
func (s *UserService) UpdateProfile(ctx context.Context, params UpdateProfileParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	userID := params.UserID
	if userID == "" {
		userID = params.Principal.UserID
	}

	logger := s.loggerWith(ctx, "UpdateProfile",
		"principal_id", params.Principal.UserID,
		"user_id", userID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update profile", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "profile updated")
	}()

	if !params.Principal.canActFor(userID, PermUpdateOwnProfile, PermManageUsers) {
		err = ErrUnauthorized
		return
	}

	input := profileInput{
		Email:    strings.ToLower(strings.TrimSpace(params.Email)),
		FullName: strings.TrimSpace(params.FullName),
		Password: params.Password,
	}
	if vErr := validateStruct(input); vErr.HasErrors() {
		err = vErr
		return
	}

	var existing User
	existing, err = s.users.GetUser(ctx, userID)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	var passwordHash string
	if input.Password != "" {
		passwordHash, err = s.hashPassword(input.Password)
		if err != nil {
			err = fmt.Errorf("hash password: %w", err)
			return
		}
	}

	updated := existing
	updated.Email = input.Email
	updated.FullName = input.FullName
	updated.UpdatedAt = currentTime(s.now)

	user, err = s.users.UpdateProfile(ctx, updated, passwordHash)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	recordActivity(ctx, s.activity, logger, ActivityEntry{
		ID:         s.idGenerator(),
		UserID:     params.Principal.UserID,
		Action:     ActionUpdateProfile,
		Details:    "updated profile of " + user.Username,
		OccurredAt: updated.UpdatedAt,
	})
	return
}

// SetStatus activates or deactivates an account. Administrators cannot
// deactivate themselves.
func (s *UserService) SetStatus(ctx context.Context, params SetUserStatusParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "SetStatus",
		"principal_id", params.Principal.UserID,
		"user_id", params.UserID,
		"status", params.Status,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change user status", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "user status changed")
	}()

	if !params.Principal.Can(PermManageUsers) {
		err = ErrUnauthorized
		return
	}
	if params.Status != UserStatusActive && params.Status != UserStatusInactive {
		vErr := &ValidationError{}
		vErr.add("status", "status must be one of active inactive")
		err = vErr
		return
	}
	if params.UserID == params.Principal.UserID && params.Status == UserStatusInactive {
		err = fmt.Errorf("%w: cannot deactivate your own account", ErrConflict)
		return
	}

	now := currentTime(s.now)
	user, err = s.users.SetStatus(ctx, params.UserID, params.Status, now)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	recordActivity(ctx, s.activity, logger, ActivityEntry{
		ID:         s.idGenerator(),
		UserID:     params.Principal.UserID,
		Action:     ActionSetUserStatus,
		Details:    fmt.Sprintf("set %s to %s", user.Username, params.Status),
		OccurredAt: now,
	})
	return
}
