package persistence

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UserRepository exposes account storage.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUserProfile(ctx context.Context, user User) error
	UpdateUserStatus(ctx context.Context, id, status string, at time.Time) error
}

// BookRepository exposes catalog reads and non-circulation edits.
type BookRepository interface {
	GetBook(ctx context.Context, id string) (Book, error)
	UpdateBook(ctx context.Context, book Book) error
	ArchiveBook(ctx context.Context, id string, at time.Time) error
	SearchBooks(ctx context.Context, filter BookFilter) (BookPage, error)
	ListCategories(ctx context.Context) ([]CategoryCount, error)
}

// BorrowingRepository exposes ledger reads and the overdue sweep.
type BorrowingRepository interface {
	ListBorrowings(ctx context.Context, filter BorrowingFilter) ([]BorrowingDetail, error)
	CountBorrowings(ctx context.Context, userID string) (BorrowingCounts, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

// ActivityRepository stores the audit trail.
type ActivityRepository interface {
	AppendActivity(ctx context.Context, entry ActivityEntry) error
	ListActivity(ctx context.Context, filter ActivityFilter) ([]ActivityEntry, error)
}

// Tx groups the writes that must commit or roll back together.
//
// ReserveLoanSlot, ClaimBook and SettleBorrowing are conditional writes: they
// report false instead of failing when the guarded state no longer holds.
type Tx interface {
	GetUser(ctx context.Context, id string) (User, error)
	GetBook(ctx context.Context, id string) (Book, error)
	GetBorrowing(ctx context.Context, id string) (Borrowing, error)

	ReserveLoanSlot(ctx context.Context, userID string, limit int, at time.Time) (bool, error)
	ReleaseLoanSlot(ctx context.Context, userID string, at time.Time) error
	ClaimBook(ctx context.Context, bookID string, at time.Time) (bool, error)
	ReleaseBook(ctx context.Context, bookID string, at time.Time) error
	InsertBorrowing(ctx context.Context, borrowing Borrowing) error
	SettleBorrowing(ctx context.Context, id string, returnedAt time.Time, fine decimal.Decimal) (bool, error)

	NextBookSequence(ctx context.Context) (int, error)
	InsertBook(ctx context.Context, book Book) error
	CountBookBorrowings(ctx context.Context, bookID string) (int, error)
	DeleteBook(ctx context.Context, id string) error

	AppendActivity(ctx context.Context, entry ActivityEntry) error
}

// Transactor runs fn inside a single store transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
