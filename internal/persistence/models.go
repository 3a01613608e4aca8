package persistence

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stored status values.
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"

	BookStatusAvailable = "available"
	BookStatusBorrowed  = "borrowed"
	BookStatusArchived  = "archived"

	BorrowingStatusBorrowed = "borrowed"
	BorrowingStatusOverdue  = "overdue"
	BorrowingStatusReturned = "returned"
)

// ActiveBorrowingStatuses lists the statuses that hold a loan slot and a book.
var ActiveBorrowingStatuses = []string{BorrowingStatusBorrowed, BorrowingStatusOverdue}

// User represents a library account row.
type User struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	FullName     string    `db:"full_name"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	Status       string    `db:"status"`
	ActiveLoans  int       `db:"active_loans"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Book represents a single circulating copy in the catalog.
type Book struct {
	ID              string    `db:"id"`
	DisplayID       string    `db:"display_id"`
	Title           string    `db:"title"`
	Author          string    `db:"author"`
	ISBN            string    `db:"isbn"`
	Category        string    `db:"category"`
	PublicationDate time.Time `db:"publication_date"`
	Status          string    `db:"status"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// Borrowing represents one loan of a book to a user.
type Borrowing struct {
	ID         string          `db:"id"`
	UserID     string          `db:"user_id"`
	BookID     string          `db:"book_id"`
	BorrowedAt time.Time       `db:"borrow_date"`
	DueAt      time.Time       `db:"due_date"`
	ReturnedAt *time.Time      `db:"return_date"`
	Status     string          `db:"status"`
	FineAmount decimal.Decimal `db:"fine_amount"`
}

// BorrowingDetail joins a borrowing with the display fields of its book and user.
type BorrowingDetail struct {
	Borrowing
	BookTitle     string `db:"book_title"`
	BookDisplayID string `db:"book_display_id"`
	Username      string `db:"username"`
}

// ActivityEntry is one row of the audit trail.
type ActivityEntry struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Action     string    `db:"action"`
	Details    string    `db:"details"`
	OccurredAt time.Time `db:"occurred_at"`
}

// BookFilter narrows catalog searches.
type BookFilter struct {
	Query           string
	Category        string
	Author          string
	Year            int
	AvailableOnly   bool
	IncludeArchived bool
	Limit           int
	Offset          int
}

// BookPage is a window of search results plus the unpaged total.
type BookPage struct {
	Books []Book
	Total int
}

// CategoryCount summarises the catalog per category.
type CategoryCount struct {
	Name      string `db:"category"`
	Books     int    `db:"books"`
	Available int    `db:"available"`
}

// BorrowingFilter narrows borrowing listings.
type BorrowingFilter struct {
	UserID      string
	Statuses    []string
	DueBefore   *time.Time
	NewestFirst bool
	Limit       int
}

// BorrowingCounts tallies a user's borrowings per status.
type BorrowingCounts struct {
	Borrowed int
	Overdue  int
	Returned int
}

// ActivityFilter narrows audit trail listings.
type ActivityFilter struct {
	UserID string
	Limit  int
}
