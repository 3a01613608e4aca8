package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/library-system/internal/fines"
	"github.com/example/library-system/internal/persistence"
)

const (
	// DefaultBorrowLimit is the number of simultaneous active loans per user.
	DefaultBorrowLimit = 2

	defaultOverdueLimit = 100
	maxOverdueLimit     = 500
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// LedgerTx groups the reads and conditional writes of one borrow or return.
// ReserveLoanSlot, ClaimBook and SettleBorrowing report false when the guarded
// state no longer holds.
type LedgerTx interface {
	GetUser(ctx context.Context, id string) (User, error)
	GetBook(ctx context.Context, id string) (Book, error)
	GetBorrowing(ctx context.Context, id string) (Borrowing, error)
	ReserveLoanSlot(ctx context.Context, userID string, limit int, at time.Time) (bool, error)
	ReleaseLoanSlot(ctx context.Context, userID string, at time.Time) error
	ClaimBook(ctx context.Context, bookID string, at time.Time) (bool, error)
	ReleaseBook(ctx context.Context, bookID string, at time.Time) error
	InsertBorrowing(ctx context.Context, borrowing Borrowing) error
	SettleBorrowing(ctx context.Context, id string, returnedAt time.Time, fine decimal.Decimal) (bool, error)
	AppendActivity(ctx context.Context, entry ActivityEntry) error
}

// LedgerStore is the storage behind the borrowing ledger.
type LedgerStore interface {
	WithinLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error
	ListBorrowings(ctx context.Context, filter BorrowingFilter) ([]Borrowing, error)
	CountBorrowings(ctx context.Context, userID string) (BorrowingCounts, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

// LoanPolicy holds the circulation rules.
type LoanPolicy struct {
	BorrowLimit int
	Fines       fines.Policy
}

// DefaultLoanPolicy returns two loans per user, a seven day period and a fine of 10 per day.
func DefaultLoanPolicy() LoanPolicy {
	return LoanPolicy{BorrowLimit: DefaultBorrowLimit, Fines: fines.DefaultPolicy()}
}

// BorrowingService is the borrowing ledger: it records borrows and returns,
// enforces the per-user limit and per-book exclusivity, and computes fines.
type BorrowingService struct {
	store         LedgerStore
	policy        LoanPolicy
	idGenerator   func() string
	now           func() time.Time
	onCirculation func()
	logger        *slog.Logger
}

// NewBorrowingService constructs a borrowing service with the provided dependencies.
func NewBorrowingService(store LedgerStore, policy LoanPolicy, idGenerator func() string, now func() time.Time) *BorrowingService {
	return NewBorrowingServiceWithLogger(store, policy, idGenerator, now, nil)
}

// NewBorrowingServiceWithLogger constructs a borrowing service with a specified logger.
func NewBorrowingServiceWithLogger(store LedgerStore, policy LoanPolicy, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BorrowingService {
	if policy.BorrowLimit <= 0 {
		policy.BorrowLimit = DefaultBorrowLimit
	}
	if policy.Fines.UnitRate.IsZero() && policy.Fines.LoanPeriod == 0 {
		policy.Fines = fines.DefaultPolicy()
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &BorrowingService{
		store:       store,
		policy:      policy,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// OnCirculationChange registers fn to run after every committed borrow or return.
func (s *BorrowingService) OnCirculationChange(fn func()) {
	if s != nil {
		s.onCirculation = fn
	}
}

func (s *BorrowingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BorrowingService", operation, attrs...)
}

func (s *BorrowingService) circulated() {
	if s.onCirculation != nil {
		s.onCirculation()
	}
}

// Borrow lends a book to a user. Reserving the loan slot, claiming the book and
// inserting the borrowing happen in one transaction through conditional
// writes, so concurrent calls can neither exceed the limit nor share a book.
func (s *BorrowingService) Borrow(ctx context.Context, params BorrowParams) (borrowing Borrowing, err error) {
	if s == nil {
		err = fmt.Errorf("BorrowingService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("ledger store not configured")
		return
	}

	userID := strings.TrimSpace(params.UserID)
	if userID == "" {
		userID = params.Principal.UserID
	}
	bookID := strings.TrimSpace(params.BookID)

	logger := s.loggerWith(ctx, "Borrow",
		"principal_id", params.Principal.UserID,
		"user_id", userID,
		"book_id", bookID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "borrow failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"borrowing_id", borrowing.ID,
			"due_at", borrowing.DueAt,
		).InfoContext(ctx, "book borrowed")
	}()

	if !params.Principal.canActFor(userID, PermBorrowBooks, PermManageBorrowings) {
		err = ErrUnauthorized
		return
	}
	if bookID == "" {
		vErr := &ValidationError{}
		vErr.add("book_id", "book id is required")
		err = vErr
		return
	}

	now := currentTime(s.now)
	err = s.store.WithinLedgerTx(ctx, func(tx LedgerTx) error {
		reserved, err := tx.ReserveLoanSlot(ctx, userID, s.policy.BorrowLimit, now)
		if err != nil {
			return err
		}
		if !reserved {
			user, err := tx.GetUser(ctx, userID)
			if err != nil {
				return err
			}
			if user.Status != UserStatusActive {
				return ErrAccountDisabled
			}
			return ErrLimitExceeded
		}

		claimed, err := tx.ClaimBook(ctx, bookID, now)
		if err != nil {
			return err
		}
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrBookUnavailable
		}

		borrowing = Borrowing{
			ID:            s.idGenerator(),
			UserID:        userID,
			BookID:        bookID,
			BorrowedAt:    now,
			DueAt:         s.policy.Fines.DueDate(now),
			Status:        BorrowingStatusBorrowed,
			FineAmount:    decimal.Zero,
			BookTitle:     book.Title,
			BookDisplayID: book.DisplayID,
		}
		if err := tx.InsertBorrowing(ctx, borrowing); err != nil {
			if errors.Is(err, persistence.ErrDuplicate) {
				return ErrBookUnavailable
			}
			return err
		}

		return tx.AppendActivity(ctx, ActivityEntry{
			ID:         s.idGenerator(),
			UserID:     userID,
			Action:     ActionBorrow,
			Details:    fmt.Sprintf("borrowed %s (%s), due %s", book.Title, book.DisplayID, borrowing.DueAt.Format(time.DateOnly)),
			OccurredAt: now,
		})
	})
	if err != nil {
		err = ledgerError(err)
		borrowing = Borrowing{}
		return
	}

	s.circulated()
	return
}

// ReturnBook settles an active borrowing, freezes its fine and puts the book
// back into circulation. A second return of the same borrowing fails with
// ErrAlreadyReturned.
func (s *BorrowingService) ReturnBook(ctx context.Context, params ReturnParams) (result ReturnResult, err error) {
	if s == nil {
		err = fmt.Errorf("BorrowingService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("ledger store not configured")
		return
	}

	borrowingID := strings.TrimSpace(params.BorrowingID)
	logger := s.loggerWith(ctx, "ReturnBook",
		"principal_id", params.Principal.UserID,
		"borrowing_id", borrowingID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "return failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"book_id", result.Borrowing.BookID,
			"fine_amount", result.FineAmount.String(),
		).InfoContext(ctx, "book returned")
	}()

	if borrowingID == "" {
		err = ErrNotFound
		return
	}

	now := currentTime(s.now)
	var settled Borrowing
	err = s.store.WithinLedgerTx(ctx, func(tx LedgerTx) error {
		borrowing, err := tx.GetBorrowing(ctx, borrowingID)
		if err != nil {
			return err
		}
		if !params.Principal.canActFor(borrowing.UserID, PermReturnBooks, PermManageBorrowings) {
			// Borrowers only see their own ledger, so another user's borrowing
			// reads as missing.
			if params.Principal.Can(PermReturnBooks) {
				return ErrNotFound
			}
			return ErrUnauthorized
		}
		if !borrowing.Status.Active() {
			return ErrAlreadyReturned
		}

		fine := s.policy.Fines.ComputeFine(borrowing.DueAt, now)
		ok, err := tx.SettleBorrowing(ctx, borrowingID, now, fine)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyReturned
		}
		if err := tx.ReleaseLoanSlot(ctx, borrowing.UserID, now); err != nil {
			return err
		}
		if err := tx.ReleaseBook(ctx, borrowing.BookID, now); err != nil {
			return err
		}

		returnedAt := now
		borrowing.ReturnedAt = &returnedAt
		borrowing.Status = BorrowingStatusReturned
		borrowing.FineAmount = fine
		settled = borrowing

		details := "returned book " + borrowing.BookID
		if fine.IsPositive() {
			details += ", fine " + fine.StringFixed(2)
		}
		return tx.AppendActivity(ctx, ActivityEntry{
			ID:         s.idGenerator(),
			UserID:     borrowing.UserID,
			Action:     ActionReturn,
			Details:    details,
			OccurredAt: now,
		})
	})
	if err != nil {
		err = ledgerError(err)
		return
	}

	s.circulated()
	result = ReturnResult{Borrowing: settled, FineAmount: settled.FineAmount}
	return
}

// MarkOverdue moves every borrowed loan whose due date is before now to overdue.
// It is idempotent and runs as a single statement.
func (s *BorrowingService) MarkOverdue(ctx context.Context, now time.Time) (updated int64, err error) {
	if s == nil {
		err = fmt.Errorf("BorrowingService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("ledger store not configured")
		return
	}

	updated, err = s.store.MarkOverdue(ctx, now.UTC().Truncate(time.Second))
	if err != nil {
		err = ledgerError(err)
		s.loggerWith(ctx, "MarkOverdue").ErrorContext(ctx, "overdue sweep failed", "error", err, "error_kind", ErrorKind(err))
		return
	}
	if updated > 0 {
		s.loggerWith(ctx, "MarkOverdue").With("updated", updated).InfoContext(ctx, "borrowings marked overdue")
	}
	return
}

// SweepOverdue runs MarkOverdue at the current time on behalf of staff.
func (s *BorrowingService) SweepOverdue(ctx context.Context, principal Principal) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("BorrowingService is nil")
	}
	if !principal.Can(PermManageBorrowings) {
		return 0, ErrUnauthorized
	}
	return s.MarkOverdue(ctx, s.now())
}

// ListActiveBorrowings returns the borrowed and overdue loans of a user ordered
// by due date, with the fine accrued so far. An empty userID means the principal.
func (s *BorrowingService) ListActiveBorrowings(ctx context.Context, principal Principal, userID string) (borrowings []Borrowing, err error) {
	if s == nil {
		err = fmt.Errorf("BorrowingService is nil")
		return
	}
	if userID == "" {
		userID = principal.UserID
	}
	if !principal.canActFor(userID, PermViewOwnBorrowings, PermViewBorrowings) {
		err = ErrUnauthorized
		return
	}

	return s.list(ctx, "ListActiveBorrowings", BorrowingFilter{
		UserID:   userID,
		Statuses: []BorrowingStatus{BorrowingStatusBorrowed, BorrowingStatusOverdue},
	})
}

// ListOverdue returns active loans past their due date, oldest due first, with
// the fine accrued so far. limit defaults to 100 and is capped at 500.
func (s *BorrowingService) ListOverdue(ctx context.Context, principal Principal, limit int) (borrowings []Borrowing, err error) {
	if s == nil {
		err = fmt.Errorf("BorrowingService is nil")
		return
	}
	if !principal.Can(PermViewBorrowings) {
		err = ErrUnauthorized
		return
	}
	if limit <= 0 {
		limit = defaultOverdueLimit
	}
	if limit > maxOverdueLimit {
		limit = maxOverdueLimit
	}

	now := currentTime(s.now)
	return s.list(ctx, "ListOverdue", BorrowingFilter{
		Statuses:  []BorrowingStatus{BorrowingStatusBorrowed, BorrowingStatusOverdue},
		DueBefore: &now,
		Limit:     limit,
	})
}

// ListHistory returns loans newest first, optionally narrowed to one status.
// Staff may list every user by setting AllUsers.
func (s *BorrowingService) ListHistory(ctx context.Context, params HistoryParams) (borrowings []Borrowing, err error) {
	if s == nil {
		err = fmt.Errorf("BorrowingService is nil")
		return
	}

	filter := BorrowingFilter{NewestFirst: true, Limit: params.Limit}
	switch {
	case params.AllUsers:
		if !params.Principal.Can(PermViewBorrowings) {
			err = ErrUnauthorized
			return
		}
	default:
		filter.UserID = params.UserID
		if filter.UserID == "" {
			filter.UserID = params.Principal.UserID
		}
		if !params.Principal.canActFor(filter.UserID, PermViewOwnBorrowings, PermViewBorrowings) {
			err = ErrUnauthorized
			return
		}
	}

	switch params.Status {
	case "":
	case BorrowingStatusBorrowed, BorrowingStatusOverdue, BorrowingStatusReturned:
		filter.Statuses = []BorrowingStatus{params.Status}
	default:
		vErr := &ValidationError{}
		vErr.add("status", "status must be one of borrowed overdue returned")
		err = vErr
		return
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultHistoryLimit
	}
	if filter.Limit > maxHistoryLimit {
		filter.Limit = maxHistoryLimit
	}

	return s.list(ctx, "ListHistory", filter)
}

// Summary returns the borrower dashboard for a user.
func (s *BorrowingService) Summary(ctx context.Context, principal Principal, userID string) (summary Summary, err error) {
	if s == nil {
		err = fmt.Errorf("BorrowingService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("ledger store not configured")
		return
	}
	if userID == "" {
		userID = principal.UserID
	}
	if !principal.canActFor(userID, PermViewOwnBorrowings, PermViewBorrowings) {
		err = ErrUnauthorized
		return
	}

	active, err := s.list(ctx, "Summary", BorrowingFilter{
		UserID:   userID,
		Statuses: []BorrowingStatus{BorrowingStatusBorrowed, BorrowingStatusOverdue},
	})
	if err != nil {
		return
	}

	var counts BorrowingCounts
	counts, err = s.store.CountBorrowings(ctx, userID)
	if err != nil {
		err = ledgerError(err)
		return
	}

	accrued := decimal.Zero
	for _, b := range active {
		accrued = accrued.Add(b.FineAmount)
	}
	slots := s.policy.BorrowLimit - counts.Borrowed - counts.Overdue
	if slots < 0 {
		slots = 0
	}

	summary = Summary{
		UserID:         userID,
		Borrowed:       counts.Borrowed,
		Overdue:        counts.Overdue,
		Returned:       counts.Returned,
		BorrowLimit:    s.policy.BorrowLimit,
		AvailableSlots: slots,
		AccruedFines:   accrued,
	}
	return
}

// list sweeps overdue loans, runs the query and fills accrued fines for active rows.
func (s *BorrowingService) list(ctx context.Context, operation string, filter BorrowingFilter) (borrowings []Borrowing, err error) {
	if s.store == nil {
		err = fmt.Errorf("ledger store not configured")
		return
	}

	logger := s.loggerWith(ctx, operation, "user_id", filter.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list borrowings", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("count", len(borrowings)).DebugContext(ctx, "borrowings listed")
	}()

	now := currentTime(s.now)
	if _, err = s.MarkOverdue(ctx, now); err != nil {
		return
	}

	borrowings, err = s.store.ListBorrowings(ctx, filter)
	if err != nil {
		err = ledgerError(err)
		return
	}
	for i := range borrowings {
		if borrowings[i].Status.Active() {
			borrowings[i].FineAmount = s.policy.Fines.ComputeFine(borrowings[i].DueAt, now)
		}
	}
	return
}

// ledgerError keeps application errors, maps persistence sentinels, and
// reports any other store failure as ErrStoreUnavailable.
func ledgerError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return err
	}
	for _, known := range []error{
		ErrUnauthorized, ErrNotFound, ErrConflict, ErrAccountDisabled, ErrLimitExceeded,
		ErrBookUnavailable, ErrAlreadyReturned, ErrStoreUnavailable,
	} {
		if errors.Is(err, known) {
			return err
		}
	}

	mapped := mapStoreError(err)
	if mapped != err {
		return mapped
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
