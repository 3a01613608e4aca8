package sqldb

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/example/library-system/internal/persistence"
)

var userColumns = []interface{}{
	"id", "username", "email", "full_name", "password_hash", "role", "status", "active_loans", "created_at", "updated_at",
}

// CreateUser inserts a new account.
func (s *Store) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}
	status := user.Status
	if status == "" {
		status = persistence.UserStatusActive
	}
	_, err := s.exec(ctx, s.db, s.insert("users").Rows(goqu.Record{
		"id":            user.ID,
		"username":      user.Username,
		"email":         user.Email,
		"full_name":     user.FullName,
		"password_hash": user.PasswordHash,
		"role":          user.Role,
		"status":        status,
		"active_loans":  0,
		"created_at":    dbTime(user.CreatedAt),
		"updated_at":    dbTime(user.UpdatedAt),
	}))
	return err
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return s.getUser(ctx, s.db, goqu.C("id").Eq(id))
}

// GetUserByUsername retrieves a user by login name.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (persistence.User, error) {
	if username == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return s.getUser(ctx, s.db, goqu.C("username").Eq(username))
}

// ListUsers returns every account ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]persistence.User, error) {
	var users []persistence.User
	if err := s.selectAll(ctx, s.db, &users, s.from("users").
		Select(userColumns...).
		Order(goqu.C("username").Asc(), goqu.C("id").Asc())); err != nil {
		return nil, err
	}
	for i := range users {
		normalizeUser(&users[i])
	}
	return users, nil
}

// UpdateUserProfile rewrites the editable profile columns of a user.
func (s *Store) UpdateUserProfile(ctx context.Context, user persistence.User) error {
	affected, err := s.exec(ctx, s.db, s.update("users").
		Set(goqu.Record{
			"email":         user.Email,
			"full_name":     user.FullName,
			"password_hash": user.PasswordHash,
			"updated_at":    dbTime(user.UpdatedAt),
		}).
		Where(goqu.C("id").Eq(user.ID)))
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// UpdateUserStatus activates or deactivates an account.
func (s *Store) UpdateUserStatus(ctx context.Context, id, status string, at time.Time) error {
	affected, err := s.exec(ctx, s.db, s.update("users").
		Set(goqu.Record{"status": status, "updated_at": dbTime(at)}).
		Where(goqu.C("id").Eq(id)))
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, q queryer, where exp.Expression) (persistence.User, error) {
	var user persistence.User
	if err := s.get(ctx, q, &user, s.from("users").Select(userColumns...).Where(where)); err != nil {
		return persistence.User{}, err
	}
	normalizeUser(&user)
	return user, nil
}

func normalizeUser(user *persistence.User) {
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
}
