package application

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role identifies what an account may do. It is fixed when the account is created.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleLibrarian Role = "librarian"
	RoleStudent   Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLibrarian, RoleStudent:
		return true
	}
	return false
}

// UserStatus gates login and borrowing.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// BookStatus tracks circulation of a single copy.
type BookStatus string

const (
	BookStatusAvailable BookStatus = "available"
	BookStatusBorrowed  BookStatus = "borrowed"
	BookStatusArchived  BookStatus = "archived"
)

// BorrowingStatus is the state of a loan: borrowed, then optionally overdue,
// then returned. Returned is terminal.
type BorrowingStatus string

const (
	BorrowingStatusBorrowed BorrowingStatus = "borrowed"
	BorrowingStatusOverdue  BorrowingStatus = "overdue"
	BorrowingStatusReturned BorrowingStatus = "returned"
)

// Active reports whether the loan still holds its book and a slot of the borrower.
func (s BorrowingStatus) Active() bool {
	return s == BorrowingStatusBorrowed || s == BorrowingStatusOverdue
}

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
	Role   Role
}

// IsStaff reports whether the principal may act on behalf of other users.
func (p Principal) IsStaff() bool {
	return p.Role == RoleAdmin || p.Role == RoleLibrarian
}

// User represents a library account exposed by the application services.
type User struct {
	ID          string
	Username    string
	Email       string
	FullName    string
	Role        Role
	Status      UserStatus
	ActiveLoans int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserCredentials pairs a user with the stored password hash.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// RegisterParams captures self-service student registration.
type RegisterParams struct {
	Username string
	Email    string
	FullName string
	Password string
}

// CreateUserParams captures an administrator creating an account of any role.
type CreateUserParams struct {
	Principal Principal
	Username  string
	Email     string
	FullName  string
	Password  string
	Role      Role
}

// UpdateProfileParams captures a profile edit. An empty Password keeps the current one.
type UpdateProfileParams struct {
	Principal Principal
	UserID    string
	Email     string
	FullName  string
	Password  string
}

// SetUserStatusParams captures activation or deactivation of an account.
type SetUserStatusParams struct {
	Principal Principal
	UserID    string
	Status    UserStatus
}

// AuthenticateParams captures the data required to authenticate a user.
type AuthenticateParams struct {
	Username string
	Password string
}

// Session is a signed token issued after a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// AuthenticateResult captures the outcome of a successful authentication attempt.
type AuthenticateResult struct {
	User    User
	Session Session
}

// Book is one circulating copy in the catalog.
type Book struct {
	ID              string
	DisplayID       string
	Title           string
	Author          string
	ISBN            string
	Category        string
	PublicationDate time.Time
	Status          BookStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BookInput captures caller provided book fields.
type BookInput struct {
	Title           string
	Author          string
	ISBN            string
	Category        string
	PublicationDate string
}

// CreateBookParams wraps the data required to add a book.
type CreateBookParams struct {
	Principal Principal
	Input     BookInput
}

// UpdateBookParams wraps the data required to edit a book.
type UpdateBookParams struct {
	Principal Principal
	BookID    string
	Input     BookInput
}

// SearchBooksParams narrows a catalog search.
type SearchBooksParams struct {
	Principal     Principal
	Query         string
	Category      string
	Author        string
	Year          int
	AvailableOnly bool
	Limit         int
	Offset        int
}

// BookPage is one page of search results.
type BookPage struct {
	Books  []Book
	Total  int
	Limit  int
	Offset int
}

// Category summarises the catalog for one category.
type Category struct {
	Name      string
	Books     int
	Available int
}

// Borrowing is one loan. FineAmount is frozen at return; for active loans the
// listing operations fill it with the fine accrued so far.
type Borrowing struct {
	ID            string
	UserID        string
	BookID        string
	BorrowedAt    time.Time
	DueAt         time.Time
	ReturnedAt    *time.Time
	Status        BorrowingStatus
	FineAmount    decimal.Decimal
	BookTitle     string
	BookDisplayID string
	Username      string
}

// BorrowParams identifies who borrows which book. An empty UserID means the principal.
type BorrowParams struct {
	Principal Principal
	UserID    string
	BookID    string
}

// ReturnParams identifies the borrowing being returned.
type ReturnParams struct {
	Principal   Principal
	BorrowingID string
}

// ReturnResult reports a settled borrowing and the fine charged.
type ReturnResult struct {
	Borrowing  Borrowing
	FineAmount decimal.Decimal
}

// HistoryParams narrows a borrowing history listing.
type HistoryParams struct {
	Principal Principal
	UserID    string
	Status    BorrowingStatus
	Limit     int
	// AllUsers lists every user's borrowings and requires staff permissions.
	AllUsers bool
}

// BorrowingFilter is the repository level view of a borrowing listing.
type BorrowingFilter struct {
	UserID      string
	Statuses    []BorrowingStatus
	DueBefore   *time.Time
	NewestFirst bool
	Limit       int
}

// BorrowingCounts tallies borrowings per status.
type BorrowingCounts struct {
	Borrowed int
	Overdue  int
	Returned int
}

// Summary is the borrower dashboard.
type Summary struct {
	UserID         string
	Borrowed       int
	Overdue        int
	Returned       int
	BorrowLimit    int
	AvailableSlots int
	AccruedFines   decimal.Decimal
}

// ActivityEntry is one audit trail record.
type ActivityEntry struct {
	ID         string
	UserID     string
	Action     string
	Details    string
	OccurredAt time.Time
}

// Activity actions recorded by the services.
const (
	ActionRegister      = "register"
	ActionLogin         = "login"
	ActionBorrow        = "borrow"
	ActionReturn        = "return"
	ActionCreateBook    = "create_book"
	ActionUpdateBook    = "update_book"
	ActionArchiveBook   = "archive_book"
	ActionDeleteBook    = "delete_book"
	ActionCreateUser    = "create_user"
	ActionUpdateProfile = "update_profile"
	ActionSetUserStatus = "set_user_status"
)
