package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/library-system/internal/bookid"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// BookRepository captures the catalog reads and edits that need no transaction.
type BookRepository interface {
	GetBook(ctx context.Context, id string) (Book, error)
	UpdateBook(ctx context.Context, book Book) (Book, error)
	ArchiveBook(ctx context.Context, id string, at time.Time) (Book, error)
	SearchBooks(ctx context.Context, query BookQuery) (BookPage, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

// BookQuery is the repository level view of a catalog search.
type BookQuery struct {
	Query           string
	Category        string
	Author          string
	Year            int
	AvailableOnly   bool
	IncludeArchived bool
	Limit           int
	Offset          int
}

// CatalogTx groups the catalog writes that must commit together.
type CatalogTx interface {
	GetBook(ctx context.Context, id string) (Book, error)
	NextBookSequence(ctx context.Context) (int, error)
	InsertBook(ctx context.Context, book Book) error
	CountBookBorrowings(ctx context.Context, bookID string) (int, error)
	DeleteBook(ctx context.Context, id string) error
	AppendActivity(ctx context.Context, entry ActivityEntry) error
}

// CatalogTransactor runs fn inside one store transaction.
type CatalogTransactor interface {
	WithinCatalogTx(ctx context.Context, fn func(tx CatalogTx) error) error
}

// BookService manages the catalog.
type BookService struct {
	books       BookRepository
	tx          CatalogTransactor
	idGenerator func() string
	now         func() time.Time
	categories  *categoryCache
	logger      *slog.Logger
}

// NewBookService constructs a book service with the provided dependencies.
func NewBookService(books BookRepository, tx CatalogTransactor, idGenerator func() string, now func() time.Time) *BookService {
	return NewBookServiceWithLogger(books, tx, idGenerator, now, nil)
}

// NewBookServiceWithLogger constructs a book service with a specified logger.
func NewBookServiceWithLogger(books BookRepository, tx CatalogTransactor, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BookService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &BookService{
		books:       books,
		tx:          tx,
		idGenerator: idGenerator,
		now:         now,
		categories:  newCategoryCache(30*time.Second, now),
		logger:      defaultLogger(logger),
	}
}

func (s *BookService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookService", operation, attrs...)
}

// CreateBook validates input, allocates the next catalog sequence and stores the
// book with its generated display ID in one transaction.
func (s *BookService) CreateBook(ctx context.Context, params CreateBookParams) (book Book, err error) {
	if s == nil {
		err = fmt.Errorf("BookService is nil")
		return
	}
	if s.tx == nil {
		err = fmt.Errorf("catalog transactor not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateBook", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create book", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("book_id", book.ID, "display_id", book.DisplayID).InfoContext(ctx, "book created")
	}()

	if !params.Principal.Can(PermManageBooks) {
		err = ErrUnauthorized
		return
	}

	now := currentTime(s.now)
	input, published, vErr := s.validateBookInput(params.Input, now)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	book = Book{
		ID:              s.idGenerator(),
		Title:           input.Title,
		Author:          input.Author,
		ISBN:            input.ISBN,
		Category:        input.Category,
		PublicationDate: published,
		Status:          BookStatusAvailable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.tx.WithinCatalogTx(ctx, func(tx CatalogTx) error {
		sequence, err := tx.NextBookSequence(ctx)
		if err != nil {
			return err
		}
		book.DisplayID, err = bookid.Generate(bookid.Params{
			Title:           book.Title,
			Category:        book.Category,
			PublicationDate: book.PublicationDate,
			AddedDate:       now,
			Sequence:        sequence,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertBook(ctx, book); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, ActivityEntry{
			ID:         s.idGenerator(),
			UserID:     params.Principal.UserID,
			Action:     ActionCreateBook,
			Details:    fmt.Sprintf("added %s (%s)", book.Title, book.DisplayID),
			OccurredAt: now,
		})
	})
	if err != nil {
		err = mapStoreError(err)
		if errors.Is(err, ErrAlreadyExists) {
			vErr := &ValidationError{}
			vErr.add("isbn", "isbn is already in the catalog")
			err = vErr
		}
		book = Book{}
		return
	}

	s.categories.Invalidate()
	return
}

// GetBook returns a book. Archived books are visible to staff only.
func (s *BookService) GetBook(ctx context.Context, principal Principal, bookID string) (Book, error) {
	if s == nil {
		return Book{}, fmt.Errorf("BookService is nil")
	}
	if s.books == nil {
		return Book{}, fmt.Errorf("book repository not configured")
	}
	if !principal.Can(PermViewBooks) {
		return Book{}, ErrUnauthorized
	}

	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return Book{}, mapStoreError(err)
	}
	if book.Status == BookStatusArchived && !principal.Can(PermManageBooks) {
		return Book{}, ErrNotFound
	}
	return book, nil
}

// UpdateBook edits the descriptive fields of a book. The display ID and status are kept.
func (s *BookService) UpdateBook(ctx context.Context, params UpdateBookParams) (book Book, err error) {
	if s == nil {
		err = fmt.Errorf("BookService is nil")
		return
	}
	if s.books == nil {
		err = fmt.Errorf("book repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateBook",
		"principal_id", params.Principal.UserID,
		"book_id", params.BookID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update book", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "book updated")
	}()

	if !params.Principal.Can(PermManageBooks) {
		err = ErrUnauthorized
		return
	}

	var existing Book
	existing, err = s.books.GetBook(ctx, params.BookID)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	now := currentTime(s.now)
	input, published, vErr := s.validateBookInput(params.Input, now)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	updated := existing
	updated.Title = input.Title
	updated.Author = input.Author
	updated.ISBN = input.ISBN
	updated.Category = input.Category
	updated.PublicationDate = published
	updated.UpdatedAt = now

	book, err = s.books.UpdateBook(ctx, updated)
	if err != nil {
		err = mapStoreError(err)
		if errors.Is(err, ErrAlreadyExists) {
			vErr := &ValidationError{}
			vErr.add("isbn", "isbn is already in the catalog")
			err = vErr
		}
		return
	}

	s.categories.Invalidate()
	return
}

// ArchiveBook withdraws a book from circulation. Books on loan cannot be archived.
func (s *BookService) ArchiveBook(ctx context.Context, principal Principal, bookID string) (book Book, err error) {
	if s == nil {
		err = fmt.Errorf("BookService is nil")
		return
	}
	if s.books == nil {
		err = fmt.Errorf("book repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "ArchiveBook",
		"principal_id", principal.UserID,
		"book_id", bookID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to archive book", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "book archived")
	}()

	if !principal.Can(PermManageBooks) {
		err = ErrUnauthorized
		return
	}

	now := currentTime(s.now)
	book, err = s.books.ArchiveBook(ctx, bookID, now)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	s.categories.Invalidate()
	return
}

// DeleteBook removes a book that has never been borrowed. Books with loan
// history are kept for the ledger and must be archived instead.
func (s *BookService) DeleteBook(ctx context.Context, principal Principal, bookID string) (err error) {
	if s == nil {
		return fmt.Errorf("BookService is nil")
	}
	if s.tx == nil {
		return fmt.Errorf("catalog transactor not configured")
	}

	logger := s.loggerWith(ctx, "DeleteBook",
		"principal_id", principal.UserID,
		"book_id", bookID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete book", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "book deleted")
	}()

	if !principal.Can(PermManageBooks) {
		return ErrUnauthorized
	}

	now := currentTime(s.now)
	err = s.tx.WithinCatalogTx(ctx, func(tx CatalogTx) error {
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		loans, err := tx.CountBookBorrowings(ctx, bookID)
		if err != nil {
			return err
		}
		if loans > 0 {
			return fmt.Errorf("%w: book has loan history, archive it instead", ErrConflict)
		}
		if err := tx.DeleteBook(ctx, bookID); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, ActivityEntry{
			ID:         s.idGenerator(),
			UserID:     principal.UserID,
			Action:     ActionDeleteBook,
			Details:    fmt.Sprintf("deleted %s (%s)", book.Title, book.DisplayID),
			OccurredAt: now,
		})
	})
	if err != nil {
		return mapStoreError(err)
	}

	s.categories.Invalidate()
	return nil
}

// SearchBooks returns one page of matching books ordered by title.
func (s *BookService) SearchBooks(ctx context.Context, params SearchBooksParams) (page BookPage, err error) {
	if s == nil {
		err = fmt.Errorf("BookService is nil")
		return
	}
	if s.books == nil {
		err = fmt.Errorf("book repository not configured")
		return
	}
	if !params.Principal.Can(PermViewBooks) {
		err = ErrUnauthorized
		return
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	page, err = s.books.SearchBooks(ctx, BookQuery{
		Query:           strings.TrimSpace(params.Query),
		Category:        strings.TrimSpace(params.Category),
		Author:          strings.TrimSpace(params.Author),
		Year:            params.Year,
		AvailableOnly:   params.AvailableOnly,
		IncludeArchived: params.Principal.Can(PermManageBooks),
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		err = mapStoreError(err)
		s.loggerWith(ctx, "SearchBooks").ErrorContext(ctx, "failed to search books", "error", err, "error_kind", ErrorKind(err))
		return
	}
	page.Limit = limit
	page.Offset = offset
	return
}

// ListCategories summarises the catalog per category.
func (s *BookService) ListCategories(ctx context.Context, principal Principal) ([]Category, error) {
	if s == nil {
		return nil, fmt.Errorf("BookService is nil")
	}
	if !principal.Can(PermViewBooks) {
		return nil, ErrUnauthorized
	}
	if s.books == nil {
		return nil, nil
	}
	if cached, ok := s.categories.Get(); ok {
		return cached, nil
	}

	categories, err := s.books.ListCategories(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	s.categories.Store(categories)
	return categories, nil
}

// InvalidateCategories drops the cached category summary. Circulation changes
// availability counts, so the borrowing service calls this after a borrow or return.
func (s *BookService) InvalidateCategories() {
	if s != nil {
		s.categories.Invalidate()
	}
}

type bookInput struct {
	Title           string `field:"title" validate:"required,max=255"`
	Author          string `field:"author" validate:"required,max=255"`
	ISBN            string `field:"isbn" validate:"required,isbn_digits"`
	Category        string `field:"category" validate:"required,max=100"`
	PublicationDate string `field:"publication_date" validate:"required"`
}

func (s *BookService) validateBookInput(raw BookInput, now time.Time) (bookInput, time.Time, *ValidationError) {
	input := bookInput{
		Title:           strings.TrimSpace(raw.Title),
		Author:          strings.TrimSpace(raw.Author),
		ISBN:            normalizeISBN(strings.TrimSpace(raw.ISBN)),
		Category:        strings.TrimSpace(raw.Category),
		PublicationDate: strings.TrimSpace(raw.PublicationDate),
	}
	vErr := validateStruct(input)

	var published time.Time
	if input.PublicationDate != "" {
		parsed, err := bookid.ParseDate(input.PublicationDate)
		switch {
		case err != nil:
			vErr.add("publication_date", "publication date must be formatted as YYYY-MM-DD")
		case parsed.After(now):
			vErr.add("publication_date", "publication date cannot be in the future")
		default:
			published = parsed
		}
	}
	return input, published, vErr
}
