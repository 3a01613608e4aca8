package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/example/library-system/internal/persistence"
)

// ErrorMapper translates driver errors into persistence sentinels. The original
// driver error stays in the chain for logging.
type ErrorMapper struct{}

// NewErrorMapper creates a new error mapper.
func NewErrorMapper() *ErrorMapper {
	return &ErrorMapper{}
}

// MapError maps SQLite and PostgreSQL errors to persistence errors.
func (em *ErrorMapper) MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", persistence.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return em.mapPostgres(pgErr, err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %w", persistence.ErrDuplicate, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %w", persistence.ErrForeignKeyViolation, err)
	case strings.Contains(msg, "CHECK constraint failed"), strings.Contains(msg, "NOT NULL constraint failed"):
		return fmt.Errorf("%w: %w", persistence.ErrConstraintViolation, err)
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "SQLITE_BUSY"), strings.Contains(msg, "unable to open database"):
		return fmt.Errorf("%w: %w", persistence.ErrUnavailable, err)
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", persistence.ErrUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", persistence.ErrUnavailable, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", persistence.ErrUnavailable, err)
	}

	return err
}

func (em *ErrorMapper) mapPostgres(pgErr *pgconn.PgError, err error) error {
	switch code := pgErr.Code; {
	case code == pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: %w", persistence.ErrDuplicate, err)
	case code == pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %w", persistence.ErrForeignKeyViolation, err)
	case code == pgerrcode.CheckViolation, code == pgerrcode.NotNullViolation:
		return fmt.Errorf("%w: %w", persistence.ErrConstraintViolation, err)
	case code == pgerrcode.SerializationFailure, code == pgerrcode.DeadlockDetected:
		return fmt.Errorf("%w: %w", persistence.ErrConflict, err)
	case pgerrcode.IsConnectionException(code), pgerrcode.IsOperatorIntervention(code):
		return fmt.Errorf("%w: %w", persistence.ErrUnavailable, err)
	}
	return err
}
