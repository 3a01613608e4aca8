// Package sqldb implements the persistence interfaces on top of database/sql.
//
// Queries are built with goqu in prepared mode so the same code runs against
// SQLite (modernc.org/sqlite) and PostgreSQL (pgx). Rows are scanned with sqlx and
// the schema is managed by goose from the embedded migrations package.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/example/library-system/internal/persistence"
	"github.com/example/library-system/internal/persistence/sqldb/migrations"
)

// Supported driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type dialectInfo struct {
	sqlDriver  string
	goquName   string
	gooseName  goose.Dialect
	migrations fs.FS
	migrateDir string
}

var dialects = map[string]dialectInfo{
	DriverSQLite: {
		sqlDriver:  "sqlite",
		goquName:   "sqlite3",
		gooseName:  goose.DialectSQLite3,
		migrations: migrations.SQLite,
		migrateDir: "sqlite",
	},
	DriverPostgres: {
		sqlDriver:  "pgx",
		goquName:   "postgres",
		gooseName:  goose.DialectPostgres,
		migrations: migrations.Postgres,
		migrateDir: "postgres",
	},
}

// Store owns the connection pool and implements every persistence repository.
type Store struct {
	db      *sqlx.DB
	driver  string
	info    dialectInfo
	dialect goqu.DialectWrapper
	mapper  *ErrorMapper
}

var (
	_ persistence.UserRepository      = (*Store)(nil)
	_ persistence.BookRepository      = (*Store)(nil)
	_ persistence.BorrowingRepository = (*Store)(nil)
	_ persistence.ActivityRepository  = (*Store)(nil)
	_ persistence.Transactor          = (*Store)(nil)
)

// SQLiteDSN builds a modernc.org/sqlite DSN for a database file. Write
// transactions take the reserved lock up front and wait on a busy timeout, so
// concurrent writers queue instead of failing.
func SQLiteDSN(path string) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(10000)",
		"_pragma=journal_mode(WAL)",
		"_txlock=immediate",
		"_time_format=sqlite",
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// Open connects to the database identified by driver and dsn and verifies the
// connection. A SQLite dsn without query parameters is treated as a file path.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = DriverSQLite
	}
	info, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("sqldb: unsupported driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqldb: dsn is required")
	}
	if driver == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn = SQLiteDSN(strings.TrimPrefix(dsn, "file:"))
	}

	db, err := sqlx.Open(info.sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqldb: open %s: %w", driver, err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	mapper := NewErrorMapper()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqldb: ping %s: %w", driver, mapper.MapError(err))
	}

	return &Store{
		db:      db,
		driver:  driver,
		info:    info,
		dialect: goqu.Dialect(info.goquName),
		mapper:  mapper,
	}, nil
}

// Driver reports the configured driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.mapper.MapError(s.db.PingContext(ctx))
}

// Migrate applies all pending goose migrations for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(s.info.migrations, s.info.migrateDir)
	if err != nil {
		return fmt.Errorf("sqldb: locate migrations: %w", err)
	}
	provider, err := goose.NewProvider(s.info.gooseName, s.db.DB, fsys)
	if err != nil {
		return fmt.Errorf("sqldb: init migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("sqldb: apply migrations: %w", err)
	}
	return nil
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

type sqlBuilder interface {
	ToSQL() (string, []interface{}, error)
}

func (s *Store) from(table interface{}) *goqu.SelectDataset {
	return s.dialect.From(table).Prepared(true)
}

func (s *Store) update(table string) *goqu.UpdateDataset {
	return s.dialect.Update(table).Prepared(true)
}

func (s *Store) insert(table string) *goqu.InsertDataset {
	return s.dialect.Insert(table).Prepared(true)
}

func (s *Store) remove(table string) *goqu.DeleteDataset {
	return s.dialect.Delete(table).Prepared(true)
}

func (s *Store) get(ctx context.Context, q queryer, dest interface{}, query sqlBuilder) error {
	stmt, args, err := query.ToSQL()
	if err != nil {
		return fmt.Errorf("sqldb: build query: %w", err)
	}
	if err := sqlx.GetContext(ctx, q, dest, stmt, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrNotFound
		}
		return s.mapper.MapError(err)
	}
	return nil
}

func (s *Store) selectAll(ctx context.Context, q queryer, dest interface{}, query sqlBuilder) error {
	stmt, args, err := query.ToSQL()
	if err != nil {
		return fmt.Errorf("sqldb: build query: %w", err)
	}
	if err := sqlx.SelectContext(ctx, q, dest, stmt, args...); err != nil {
		return s.mapper.MapError(err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, q queryer, query sqlBuilder) (int64, error) {
	stmt, args, err := query.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("sqldb: build query: %w", err)
	}
	result, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, s.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqldb: rows affected: %w", err)
	}
	return affected, nil
}

// dbTime is the canonical stored form of an instant. Whole seconds in UTC keep
// SQLite text comparisons ordered the same way as the instants.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func dbDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
