package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/library-system/internal/application"
	"github.com/example/library-system/internal/auth"
	"github.com/example/library-system/internal/persistence"
)

// libraryStore is the full persistence surface the adapters translate.
type libraryStore interface {
	persistence.UserRepository
	persistence.BookRepository
	persistence.BorrowingRepository
	persistence.ActivityRepository
	persistence.Transactor
}

type userRepositoryAdapter struct {
	repo persistence.UserRepository
}

func newUserRepositoryAdapter(repo persistence.UserRepository) *userRepositoryAdapter {
	return &userRepositoryAdapter{repo: repo}
}

func (a *userRepositoryAdapter) CreateUser(ctx context.Context, user application.User, passwordHash string) (application.User, error) {
	if err := a.repo.CreateUser(ctx, toPersistenceUser(user, passwordHash)); err != nil {
		return application.User{}, err
	}
	return a.GetUser(ctx, user.ID)
}

func (a *userRepositoryAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) GetCredentials(ctx context.Context, username string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{User: toApplicationUser(stored), PasswordHash: stored.PasswordHash}, nil
}

func (a *userRepositoryAdapter) ListUsers(ctx context.Context) ([]application.User, error) {
	models, err := a.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

// UpdateProfile keeps the stored password hash when passwordHash is empty.
func (a *userRepositoryAdapter) UpdateProfile(ctx context.Context, user application.User, passwordHash string) (application.User, error) {
	if passwordHash == "" {
		current, err := a.repo.GetUser(ctx, user.ID)
		if err != nil {
			return application.User{}, err
		}
		passwordHash = current.PasswordHash
	}
	if err := a.repo.UpdateUserProfile(ctx, toPersistenceUser(user, passwordHash)); err != nil {
		return application.User{}, err
	}
	return a.GetUser(ctx, user.ID)
}

func (a *userRepositoryAdapter) SetStatus(ctx context.Context, id string, status application.UserStatus, at time.Time) (application.User, error) {
	if err := a.repo.UpdateUserStatus(ctx, id, string(status), at); err != nil {
		return application.User{}, err
	}
	return a.GetUser(ctx, id)
}

type bookRepositoryAdapter struct {
	repo persistence.BookRepository
}

func newBookRepositoryAdapter(repo persistence.BookRepository) *bookRepositoryAdapter {
	return &bookRepositoryAdapter{repo: repo}
}

func (a *bookRepositoryAdapter) GetBook(ctx context.Context, id string) (application.Book, error) {
	stored, err := a.repo.GetBook(ctx, id)
	if err != nil {
		return application.Book{}, err
	}
	return toApplicationBook(stored), nil
}

func (a *bookRepositoryAdapter) UpdateBook(ctx context.Context, book application.Book) (application.Book, error) {
	if err := a.repo.UpdateBook(ctx, toPersistenceBook(book)); err != nil {
		return application.Book{}, err
	}
	return a.GetBook(ctx, book.ID)
}

func (a *bookRepositoryAdapter) ArchiveBook(ctx context.Context, id string, at time.Time) (application.Book, error) {
	if err := a.repo.ArchiveBook(ctx, id, at); err != nil {
		return application.Book{}, err
	}
	return a.GetBook(ctx, id)
}

func (a *bookRepositoryAdapter) SearchBooks(ctx context.Context, query application.BookQuery) (application.BookPage, error) {
	page, err := a.repo.SearchBooks(ctx, persistence.BookFilter{
		Query:           query.Query,
		Category:        query.Category,
		Author:          query.Author,
		Year:            query.Year,
		AvailableOnly:   query.AvailableOnly,
		IncludeArchived: query.IncludeArchived,
		Limit:           query.Limit,
		Offset:          query.Offset,
	})
	if err != nil {
		return application.BookPage{}, err
	}
	books := make([]application.Book, 0, len(page.Books))
	for _, model := range page.Books {
		books = append(books, toApplicationBook(model))
	}
	return application.BookPage{Books: books, Total: page.Total}, nil
}

func (a *bookRepositoryAdapter) ListCategories(ctx context.Context) ([]application.Category, error) {
	counts, err := a.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	categories := make([]application.Category, 0, len(counts))
	for _, c := range counts {
		categories = append(categories, application.Category{Name: c.Name, Books: c.Books, Available: c.Available})
	}
	return categories, nil
}

// ledgerAdapter exposes the store as the catalog transactor and the borrowing
// ledger of the application layer.
type ledgerAdapter struct {
	store libraryStore
}

func newLedgerAdapter(store libraryStore) *ledgerAdapter {
	return &ledgerAdapter{store: store}
}

func (a *ledgerAdapter) WithinLedgerTx(ctx context.Context, fn func(tx application.LedgerTx) error) error {
	return a.store.WithinTx(ctx, func(tx persistence.Tx) error {
		return fn(txAdapter{tx: tx})
	})
}

func (a *ledgerAdapter) WithinCatalogTx(ctx context.Context, fn func(tx application.CatalogTx) error) error {
	return a.store.WithinTx(ctx, func(tx persistence.Tx) error {
		return fn(txAdapter{tx: tx})
	})
}

func (a *ledgerAdapter) ListBorrowings(ctx context.Context, filter application.BorrowingFilter) ([]application.Borrowing, error) {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses = append(statuses, string(status))
	}
	details, err := a.store.ListBorrowings(ctx, persistence.BorrowingFilter{
		UserID:      filter.UserID,
		Statuses:    statuses,
		DueBefore:   filter.DueBefore,
		NewestFirst: filter.NewestFirst,
		Limit:       filter.Limit,
	})
	if err != nil {
		return nil, err
	}
	borrowings := make([]application.Borrowing, 0, len(details))
	for _, detail := range details {
		b := toApplicationBorrowing(detail.Borrowing)
		b.BookTitle = detail.BookTitle
		b.BookDisplayID = detail.BookDisplayID
		b.Username = detail.Username
		borrowings = append(borrowings, b)
	}
	return borrowings, nil
}

func (a *ledgerAdapter) CountBorrowings(ctx context.Context, userID string) (application.BorrowingCounts, error) {
	counts, err := a.store.CountBorrowings(ctx, userID)
	if err != nil {
		return application.BorrowingCounts{}, err
	}
	return application.BorrowingCounts{Borrowed: counts.Borrowed, Overdue: counts.Overdue, Returned: counts.Returned}, nil
}

func (a *ledgerAdapter) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	return a.store.MarkOverdue(ctx, now)
}

// txAdapter implements both application.LedgerTx and application.CatalogTx.
type txAdapter struct {
	tx persistence.Tx
}

var (
	_ application.LedgerTx  = txAdapter{}
	_ application.CatalogTx = txAdapter{}
)

func (a txAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.tx.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a txAdapter) GetBook(ctx context.Context, id string) (application.Book, error) {
	stored, err := a.tx.GetBook(ctx, id)
	if err != nil {
		return application.Book{}, err
	}
	return toApplicationBook(stored), nil
}

func (a txAdapter) GetBorrowing(ctx context.Context, id string) (application.Borrowing, error) {
	stored, err := a.tx.GetBorrowing(ctx, id)
	if err != nil {
		return application.Borrowing{}, err
	}
	return toApplicationBorrowing(stored), nil
}

func (a txAdapter) ReserveLoanSlot(ctx context.Context, userID string, limit int, at time.Time) (bool, error) {
	return a.tx.ReserveLoanSlot(ctx, userID, limit, at)
}

func (a txAdapter) ReleaseLoanSlot(ctx context.Context, userID string, at time.Time) error {
	return a.tx.ReleaseLoanSlot(ctx, userID, at)
}

func (a txAdapter) ClaimBook(ctx context.Context, bookID string, at time.Time) (bool, error) {
	return a.tx.ClaimBook(ctx, bookID, at)
}

func (a txAdapter) ReleaseBook(ctx context.Context, bookID string, at time.Time) error {
	return a.tx.ReleaseBook(ctx, bookID, at)
}

func (a txAdapter) InsertBorrowing(ctx context.Context, borrowing application.Borrowing) error {
	return a.tx.InsertBorrowing(ctx, toPersistenceBorrowing(borrowing))
}

func (a txAdapter) SettleBorrowing(ctx context.Context, id string, returnedAt time.Time, fine decimal.Decimal) (bool, error) {
	return a.tx.SettleBorrowing(ctx, id, returnedAt, fine)
}

func (a txAdapter) NextBookSequence(ctx context.Context) (int, error) {
	return a.tx.NextBookSequence(ctx)
}

func (a txAdapter) InsertBook(ctx context.Context, book application.Book) error {
	return a.tx.InsertBook(ctx, toPersistenceBook(book))
}

func (a txAdapter) CountBookBorrowings(ctx context.Context, bookID string) (int, error) {
	return a.tx.CountBookBorrowings(ctx, bookID)
}

func (a txAdapter) DeleteBook(ctx context.Context, id string) error {
	return a.tx.DeleteBook(ctx, id)
}

func (a txAdapter) AppendActivity(ctx context.Context, entry application.ActivityEntry) error {
	return a.tx.AppendActivity(ctx, toPersistenceActivity(entry))
}

type activityLogAdapter struct {
	repo persistence.ActivityRepository
}

func newActivityLogAdapter(repo persistence.ActivityRepository) *activityLogAdapter {
	return &activityLogAdapter{repo: repo}
}

func (a *activityLogAdapter) AppendActivity(ctx context.Context, entry application.ActivityEntry) error {
	return a.repo.AppendActivity(ctx, toPersistenceActivity(entry))
}

func (a *activityLogAdapter) ListActivity(ctx context.Context, userID string, limit int) ([]application.ActivityEntry, error) {
	models, err := a.repo.ListActivity(ctx, persistence.ActivityFilter{UserID: userID, Limit: limit})
	if err != nil {
		return nil, err
	}
	entries := make([]application.ActivityEntry, 0, len(models))
	for _, model := range models {
		entries = append(entries, application.ActivityEntry{
			ID:         model.ID,
			UserID:     model.UserID,
			Action:     model.Action,
			Details:    model.Details,
			OccurredAt: model.OccurredAt,
		})
	}
	return entries, nil
}

// tokenIssuerAdapter signs sessions as JWTs carrying the user id and role.
type tokenIssuerAdapter struct {
	manager *auth.Manager
}

func newTokenIssuerAdapter(manager *auth.Manager) *tokenIssuerAdapter {
	return &tokenIssuerAdapter{manager: manager}
}

func (a *tokenIssuerAdapter) Issue(principal application.Principal, issuedAt time.Time) (application.Session, error) {
	token, expiresAt, err := a.manager.Issue(principal.UserID, string(principal.Role), issuedAt)
	if err != nil {
		return application.Session{}, err
	}
	return application.Session{Token: token, ExpiresAt: expiresAt}, nil
}

func (a *tokenIssuerAdapter) Verify(token string, now time.Time) (application.Principal, error) {
	claims, err := a.manager.Verify(token, now)
	if err != nil {
		return application.Principal{}, err
	}
	return application.Principal{UserID: claims.Subject, Role: application.Role(claims.Role)}, nil
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:          model.ID,
		Username:    model.Username,
		Email:       model.Email,
		FullName:    model.FullName,
		Role:        application.Role(model.Role),
		Status:      application.UserStatus(model.Status),
		ActiveLoans: model.ActiveLoans,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toPersistenceUser(user application.User, passwordHash string) persistence.User {
	return persistence.User{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		FullName:     user.FullName,
		PasswordHash: passwordHash,
		Role:         string(user.Role),
		Status:       string(user.Status),
		ActiveLoans:  user.ActiveLoans,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

func toApplicationBook(model persistence.Book) application.Book {
	return application.Book{
		ID:              model.ID,
		DisplayID:       model.DisplayID,
		Title:           model.Title,
		Author:          model.Author,
		ISBN:            model.ISBN,
		Category:        model.Category,
		PublicationDate: model.PublicationDate,
		Status:          application.BookStatus(model.Status),
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

func toPersistenceBook(book application.Book) persistence.Book {
	return persistence.Book{
		ID:              book.ID,
		DisplayID:       book.DisplayID,
		Title:           book.Title,
		Author:          book.Author,
		ISBN:            book.ISBN,
		Category:        book.Category,
		PublicationDate: book.PublicationDate,
		Status:          string(book.Status),
		CreatedAt:       book.CreatedAt,
		UpdatedAt:       book.UpdatedAt,
	}
}

func toApplicationBorrowing(model persistence.Borrowing) application.Borrowing {
	return application.Borrowing{
		ID:         model.ID,
		UserID:     model.UserID,
		BookID:     model.BookID,
		BorrowedAt: model.BorrowedAt,
		DueAt:      model.DueAt,
		ReturnedAt: cloneTime(model.ReturnedAt),
		Status:     application.BorrowingStatus(model.Status),
		FineAmount: model.FineAmount,
	}
}

func toPersistenceBorrowing(borrowing application.Borrowing) persistence.Borrowing {
	return persistence.Borrowing{
		ID:         borrowing.ID,
		UserID:     borrowing.UserID,
		BookID:     borrowing.BookID,
		BorrowedAt: borrowing.BorrowedAt,
		DueAt:      borrowing.DueAt,
		ReturnedAt: cloneTime(borrowing.ReturnedAt),
		Status:     string(borrowing.Status),
		FineAmount: borrowing.FineAmount,
	}
}

func toPersistenceActivity(entry application.ActivityEntry) persistence.ActivityEntry {
	return persistence.ActivityEntry{
		ID:         entry.ID,
		UserID:     entry.UserID,
		Action:     entry.Action,
		Details:    entry.Details,
		OccurredAt: entry.OccurredAt,
	}
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
