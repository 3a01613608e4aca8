package sqldb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/example/library-system/internal/persistence"
)

const maxSearchLimit = 100

var bookColumns = []interface{}{
	"id", "display_id", "title", "author", "isbn", "category", "publication_date", "status", "created_at", "updated_at",
}

// GetBook retrieves a book by ID.
func (s *Store) GetBook(ctx context.Context, id string) (persistence.Book, error) {
	if id == "" {
		return persistence.Book{}, persistence.ErrNotFound
	}
	return s.getBook(ctx, s.db, id)
}

// UpdateBook rewrites the descriptive columns of a book. Status and display ID
// are owned by circulation and creation respectively.
func (s *Store) UpdateBook(ctx context.Context, book persistence.Book) error {
	affected, err := s.exec(ctx, s.db, s.update("books").
		Set(goqu.Record{
			"title":            book.Title,
			"author":           book.Author,
			"isbn":             book.ISBN,
			"category":         book.Category,
			"publication_date": dbDate(book.PublicationDate),
			"updated_at":       dbTime(book.UpdatedAt),
		}).
		Where(goqu.C("id").Eq(book.ID)))
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ArchiveBook withdraws a book from circulation. A book on loan cannot be archived.
func (s *Store) ArchiveBook(ctx context.Context, id string, at time.Time) error {
	affected, err := s.exec(ctx, s.db, s.update("books").
		Set(goqu.Record{"status": persistence.BookStatusArchived, "updated_at": dbTime(at)}).
		Where(goqu.C("id").Eq(id), goqu.C("status").Neq(persistence.BookStatusBorrowed)))
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	if _, err := s.GetBook(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: book %s is on loan", persistence.ErrConflict, id)
}

// SearchBooks returns one page of catalog entries matching filter, ordered by title.
func (s *Store) SearchBooks(ctx context.Context, filter persistence.BookFilter) (persistence.BookPage, error) {
	conditions := bookConditions(filter)

	var total int
	if err := s.get(ctx, s.db, &total, s.from("books").
		Select(goqu.COUNT("*")).
		Where(conditions...)); err != nil {
		return persistence.BookPage{}, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var books []persistence.Book
	if err := s.selectAll(ctx, s.db, &books, s.from("books").
		Select(bookColumns...).
		Where(conditions...).
		Order(goqu.C("title").Asc(), goqu.C("id").Asc()).
		Limit(uint(limit)).
		Offset(uint(offset))); err != nil {
		return persistence.BookPage{}, err
	}
	for i := range books {
		normalizeBook(&books[i])
	}

	return persistence.BookPage{Books: books, Total: total}, nil
}

// ListCategories summarises non-archived books per category.
func (s *Store) ListCategories(ctx context.Context) ([]persistence.CategoryCount, error) {
	var categories []persistence.CategoryCount
	if err := s.selectAll(ctx, s.db, &categories, s.from("books").
		Select(
			goqu.C("category"),
			goqu.COUNT("*").As("books"),
			goqu.L("SUM(CASE WHEN status = 'available' THEN 1 ELSE 0 END)").As("available"),
		).
		Where(goqu.C("status").Neq(persistence.BookStatusArchived)).
		GroupBy(goqu.C("category")).
		Order(goqu.C("category").Asc())); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) getBook(ctx context.Context, q queryer, id string) (persistence.Book, error) {
	var book persistence.Book
	if err := s.get(ctx, q, &book, s.from("books").Select(bookColumns...).Where(goqu.C("id").Eq(id))); err != nil {
		return persistence.Book{}, err
	}
	normalizeBook(&book)
	return book, nil
}

func bookConditions(filter persistence.BookFilter) []exp.Expression {
	var conditions []exp.Expression

	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := containsPattern(q)
		conditions = append(conditions, goqu.Or(
			containsFold("title", pattern),
			containsFold("author", pattern),
			containsFold("isbn", pattern),
		))
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		conditions = append(conditions, goqu.C("category").Eq(category))
	}
	if author := strings.TrimSpace(filter.Author); author != "" {
		conditions = append(conditions, containsFold("author", containsPattern(author)))
	}
	if filter.Year > 0 {
		from := time.Date(filter.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		conditions = append(conditions,
			goqu.C("publication_date").Gte(from),
			goqu.C("publication_date").Lt(from.AddDate(1, 0, 0)),
		)
	}
	switch {
	case filter.AvailableOnly:
		conditions = append(conditions, goqu.C("status").Eq(persistence.BookStatusAvailable))
	case !filter.IncludeArchived:
		conditions = append(conditions, goqu.C("status").Neq(persistence.BookStatusArchived))
	}

	return conditions
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching value anywhere, with the
// wildcard characters of value taken literally.
func containsPattern(value string) string {
	return "%" + likeEscaper.Replace(value) + "%"
}

// containsFold is a case-insensitive LIKE that reads the same on SQLite and
// PostgreSQL.
func containsFold(column, pattern string) exp.Expression {
	return goqu.L(`LOWER(?) LIKE LOWER(?) ESCAPE '\'`, goqu.C(column), pattern)
}

func normalizeBook(book *persistence.Book) {
	book.PublicationDate = book.PublicationDate.UTC()
	book.CreatedAt = book.CreatedAt.UTC()
	book.UpdatedAt = book.UpdatedAt.UTC()
}
