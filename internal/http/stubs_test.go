package http

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/library-system/internal/application"
)

var (
	testNow     = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	studentUser = application.Principal{UserID: "student-1", Role: application.RoleStudent}
	staffUser   = application.Principal{UserID: "librarian-1", Role: application.RoleLibrarian}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSessions struct {
	principals map[string]application.Principal
	err        error
}

func (s stubSessions) ValidateSession(_ context.Context, token string) (application.Principal, error) {
	if s.err != nil {
		return application.Principal{}, s.err
	}
	principal, ok := s.principals[token]
	if !ok {
		return application.Principal{}, application.ErrUnauthorized
	}
	return principal, nil
}

type stubAuth struct {
	registered []application.RegisterParams
	result     application.AuthenticateResult
	err        error
}

func (s *stubAuth) Register(_ context.Context, params application.RegisterParams) (application.User, error) {
	if s.err != nil {
		return application.User{}, s.err
	}
	s.registered = append(s.registered, params)
	return application.User{ID: "user-1", Username: params.Username, Role: application.RoleStudent, Status: application.UserStatusActive, CreatedAt: testNow, UpdatedAt: testNow}, nil
}

func (s *stubAuth) Authenticate(_ context.Context, _ application.AuthenticateParams) (application.AuthenticateResult, error) {
	return s.result, s.err
}

type stubBooks struct {
	search   application.SearchBooksParams
	page     application.BookPage
	getErr   error
	books    map[string]application.Book
	archived []string
}

func (s *stubBooks) CreateBook(_ context.Context, params application.CreateBookParams) (application.Book, error) {
	if !params.Principal.IsStaff() {
		return application.Book{}, application.ErrUnauthorized
	}
	return application.Book{ID: "book-1", DisplayID: "THSEP011937-FIC00001", Title: params.Input.Title, Status: application.BookStatusAvailable}, nil
}

func (s *stubBooks) GetBook(_ context.Context, _ application.Principal, bookID string) (application.Book, error) {
	if s.getErr != nil {
		return application.Book{}, s.getErr
	}
	book, ok := s.books[bookID]
	if !ok {
		return application.Book{}, application.ErrNotFound
	}
	return book, nil
}

func (s *stubBooks) UpdateBook(_ context.Context, params application.UpdateBookParams) (application.Book, error) {
	return application.Book{ID: params.BookID, Title: params.Input.Title}, nil
}

func (s *stubBooks) ArchiveBook(_ context.Context, _ application.Principal, bookID string) (application.Book, error) {
	s.archived = append(s.archived, bookID)
	return application.Book{ID: bookID, Status: application.BookStatusArchived}, nil
}

func (s *stubBooks) DeleteBook(_ context.Context, _ application.Principal, _ string) error {
	return application.ErrConflict
}

func (s *stubBooks) SearchBooks(_ context.Context, params application.SearchBooksParams) (application.BookPage, error) {
	s.search = params
	return s.page, nil
}

func (s *stubBooks) ListCategories(_ context.Context, _ application.Principal) ([]application.Category, error) {
	return []application.Category{{Name: "Fiction", Books: 2, Available: 1}}, nil
}

type stubBorrowings struct {
	borrowParams application.BorrowParams
	history      application.HistoryParams
	activeFor    string
	overdueLimit int
	borrowErr    error
	returnResult application.ReturnResult
	returnErr    error
	swept        int64
}

func (s *stubBorrowings) Borrow(_ context.Context, params application.BorrowParams) (application.Borrowing, error) {
	s.borrowParams = params
	if s.borrowErr != nil {
		return application.Borrowing{}, s.borrowErr
	}
	return application.Borrowing{
		ID:         "borrowing-1",
		UserID:     params.Principal.UserID,
		BookID:     params.BookID,
		BorrowedAt: testNow,
		DueAt:      testNow.AddDate(0, 0, 7),
		Status:     application.BorrowingStatusBorrowed,
		FineAmount: decimal.Zero,
	}, nil
}

func (s *stubBorrowings) ReturnBook(_ context.Context, _ application.ReturnParams) (application.ReturnResult, error) {
	return s.returnResult, s.returnErr
}

func (s *stubBorrowings) ListActiveBorrowings(_ context.Context, _ application.Principal, userID string) ([]application.Borrowing, error) {
	s.activeFor = userID
	return nil, nil
}

func (s *stubBorrowings) ListOverdue(_ context.Context, principal application.Principal, limit int) ([]application.Borrowing, error) {
	if !principal.IsStaff() {
		return nil, application.ErrUnauthorized
	}
	s.overdueLimit = limit
	return nil, nil
}

func (s *stubBorrowings) ListHistory(_ context.Context, params application.HistoryParams) ([]application.Borrowing, error) {
	s.history = params
	return nil, nil
}

func (s *stubBorrowings) Summary(_ context.Context, principal application.Principal, _ string) (application.Summary, error) {
	return application.Summary{
		UserID:         principal.UserID,
		Borrowed:       1,
		Overdue:        1,
		BorrowLimit:    2,
		AvailableSlots: 0,
		AccruedFines:   decimal.NewFromInt(10),
	}, nil
}

func (s *stubBorrowings) SweepOverdue(_ context.Context, principal application.Principal) (int64, error) {
	if !principal.IsStaff() {
		return 0, application.ErrUnauthorized
	}
	return s.swept, nil
}

type stubActivity struct {
	entries []application.ActivityEntry
}

func (s stubActivity) ListActivity(_ context.Context, _ application.Principal, _ string, _ int) ([]application.ActivityEntry, error) {
	return s.entries, nil
}
