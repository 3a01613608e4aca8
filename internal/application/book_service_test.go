package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBookFixture(t *testing.T) (*BookService, *memoryLibrary, *fakeClock) {
	t.Helper()
	store := newMemoryLibrary()
	clock := newFakeClock(testEpoch)
	ids := &sequentialIDs{prefix: "book"}
	return NewBookService(store, store, ids.NewID, clock.Now), store, clock
}

func hobbitInput() BookInput {
	return BookInput{
		Title:           "The Hobbit",
		Author:          "J. R. R. Tolkien",
		ISBN:            "978-0-261-10221-7",
		Category:        "Fiction",
		PublicationDate: "1937-09-21",
	}
}

func TestBookService_CreateBook(t *testing.T) {
	t.Parallel()

	service, store, _ := newBookFixture(t)
	ctx := context.Background()

	book, err := service.CreateBook(ctx, CreateBookParams{Principal: librarian, Input: hobbitInput()})
	require.NoError(t, err)
	assert.Equal(t, "THSEP011937-FIC00001", book.DisplayID)
	assert.Equal(t, "9780261102217", book.ISBN)
	assert.Equal(t, BookStatusAvailable, book.Status)
	assert.Equal(t, time.Date(1937, time.September, 21, 0, 0, 0, 0, time.UTC), book.PublicationDate)
	assert.Equal(t, []string{ActionCreateBook}, store.actions())

	second := hobbitInput()
	second.ISBN = "0261102214"
	second.Title = "Hobbit, The"
	book, err = service.CreateBook(ctx, CreateBookParams{Principal: librarian, Input: second})
	require.NoError(t, err)
	assert.Equal(t, "HOSEP011937-FIC00002", book.DisplayID)
}

func TestBookService_CreateBookRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		principal Principal
		mutate    func(in *BookInput)
		wantField string
		wantErr   error
	}{
		{name: "student", principal: alice, wantErr: ErrUnauthorized},
		{name: "missing title", principal: librarian, mutate: func(in *BookInput) { in.Title = " " }, wantField: "title"},
		{name: "bad isbn", principal: librarian, mutate: func(in *BookInput) { in.ISBN = "12345" }, wantField: "isbn"},
		{name: "bad date", principal: librarian, mutate: func(in *BookInput) { in.PublicationDate = "21/09/1937" }, wantField: "publication_date"},
		{name: "future date", principal: librarian, mutate: func(in *BookInput) { in.PublicationDate = "2030-01-01" }, wantField: "publication_date"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			service, store, _ := newBookFixture(t)
			input := hobbitInput()
			if tc.mutate != nil {
				tc.mutate(&input)
			}

			_, err := service.CreateBook(context.Background(), CreateBookParams{Principal: tc.principal, Input: input})
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Contains(t, vErr.FieldErrors, tc.wantField)
			}
			assert.Empty(t, store.books)
			assert.Zero(t, store.sequence)
		})
	}
}

func TestBookService_DuplicateISBN(t *testing.T) {
	t.Parallel()

	service, store, _ := newBookFixture(t)
	ctx := context.Background()

	_, err := service.CreateBook(ctx, CreateBookParams{Principal: librarian, Input: hobbitInput()})
	require.NoError(t, err)

	_, err = service.CreateBook(ctx, CreateBookParams{Principal: librarian, Input: hobbitInput()})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "isbn")
	assert.Len(t, store.books, 1)
	assert.Equal(t, 1, store.sequence, "sequence rolls back with the failed insert")
}

func TestBookService_ArchiveAndDelete(t *testing.T) {
	t.Parallel()

	service, store, _ := newBookFixture(t)
	ctx := context.Background()

	store.addBook(Book{ID: "loaned", Title: "Loaned", Status: BookStatusBorrowed})
	store.addBook(Book{ID: "fresh", Title: "Fresh"})
	store.addBook(Book{ID: "history", Title: "History"})
	store.borrowings["old-loan"] = Borrowing{ID: "old-loan", BookID: "history", Status: BorrowingStatusReturned}

	_, err := service.ArchiveBook(ctx, librarian, "loaned")
	require.ErrorIs(t, err, ErrConflict)

	err = service.DeleteBook(ctx, librarian, "history")
	require.ErrorIs(t, err, ErrConflict)

	archived, err := service.ArchiveBook(ctx, librarian, "history")
	require.NoError(t, err)
	assert.Equal(t, BookStatusArchived, archived.Status)

	_, err = service.GetBook(ctx, alice, "history")
	require.ErrorIs(t, err, ErrNotFound, "archived books are hidden from students")
	_, err = service.GetBook(ctx, librarian, "history")
	require.NoError(t, err)

	require.ErrorIs(t, service.DeleteBook(ctx, alice, "fresh"), ErrUnauthorized)
	require.NoError(t, service.DeleteBook(ctx, librarian, "fresh"))
	require.ErrorIs(t, service.DeleteBook(ctx, librarian, "fresh"), ErrNotFound)
}

func TestBookService_UpdateBookKeepsIdentity(t *testing.T) {
	t.Parallel()

	service, _, clock := newBookFixture(t)
	ctx := context.Background()

	created, err := service.CreateBook(ctx, CreateBookParams{Principal: librarian, Input: hobbitInput()})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	input := hobbitInput()
	input.Title = "The Hobbit, or There and Back Again"
	updated, err := service.UpdateBook(ctx, UpdateBookParams{Principal: librarian, BookID: created.ID, Input: input})
	require.NoError(t, err)
	assert.Equal(t, created.DisplayID, updated.DisplayID)
	assert.Equal(t, input.Title, updated.Title)
	assert.Equal(t, testEpoch.Add(time.Hour), updated.UpdatedAt)

	_, err = service.UpdateBook(ctx, UpdateBookParams{Principal: librarian, BookID: "missing", Input: input})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBookService_SearchAppliesLimitsAndVisibility(t *testing.T) {
	t.Parallel()

	service, store, _ := newBookFixture(t)
	ctx := context.Background()

	store.addBook(Book{ID: "a", Title: "Alpha", Category: "Fiction"})
	store.addBook(Book{ID: "b", Title: "Beta", Category: "Fiction", Status: BookStatusArchived})
	store.addBook(Book{ID: "c", Title: "Gamma", Category: "Science"})

	page, err := service.SearchBooks(ctx, SearchBooksParams{Principal: alice, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, maxSearchLimit, page.Limit)

	page, err = service.SearchBooks(ctx, SearchBooksParams{Principal: librarian, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Books, 1)
	assert.Equal(t, "Beta", page.Books[0].Title)

	_, err = service.SearchBooks(ctx, SearchBooksParams{})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestBookService_ListCategoriesCachesUntilInvalidated(t *testing.T) {
	t.Parallel()

	service, store, clock := newBookFixture(t)
	ctx := context.Background()

	store.addBook(Book{ID: "a", Title: "Alpha", Category: "Fiction"})

	categories, err := service.ListCategories(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []Category{{Name: "Fiction", Books: 1, Available: 1}}, categories)

	store.addBook(Book{ID: "b", Title: "Beta", Category: "Fiction", Status: BookStatusBorrowed})
	categories, err = service.ListCategories(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, categories[0].Books, "served from cache")

	service.InvalidateCategories()
	categories, err = service.ListCategories(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []Category{{Name: "Fiction", Books: 2, Available: 1}}, categories)

	store.addBook(Book{ID: "c", Title: "Gamma", Category: "Science"})
	clock.Advance(time.Minute)
	categories, err = service.ListCategories(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, categories, 2, "cache expires")
}
