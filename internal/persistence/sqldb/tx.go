package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/example/library-system/internal/persistence"
)

// WithinTx executes fn inside a transaction. The transaction commits when fn
// returns nil and rolls back on an error or a panic.
func (s *Store) WithinTx(ctx context.Context, fn func(tx persistence.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqldb: begin transaction: %w", s.mapper.MapError(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
			return
		}
		if cErr := sqlTx.Commit(); cErr != nil {
			err = fmt.Errorf("sqldb: commit transaction: %w", s.mapper.MapError(cErr))
		}
	}()

	err = fn(&Tx{store: s, tx: sqlTx})
	return err
}

// Tx is the transactional view handed to WithinTx callbacks.
type Tx struct {
	store *Store
	tx    *sqlx.Tx
}

var _ persistence.Tx = (*Tx)(nil)

// GetUser reads a user inside the transaction.
func (t *Tx) GetUser(ctx context.Context, id string) (persistence.User, error) {
	return t.store.getUser(ctx, t.tx, goqu.C("id").Eq(id))
}

// GetBook reads a book inside the transaction.
func (t *Tx) GetBook(ctx context.Context, id string) (persistence.Book, error) {
	return t.store.getBook(ctx, t.tx, id)
}

// GetBorrowing reads a borrowing inside the transaction.
func (t *Tx) GetBorrowing(ctx context.Context, id string) (persistence.Borrowing, error) {
	return t.store.getBorrowing(ctx, t.tx, id)
}

// ReserveLoanSlot increments the active loan counter of an active user while it
// stays below limit.
func (t *Tx) ReserveLoanSlot(ctx context.Context, userID string, limit int, at time.Time) (bool, error) {
	affected, err := t.store.exec(ctx, t.tx, t.store.update("users").
		Set(goqu.Record{
			"active_loans": goqu.L("active_loans + 1"),
			"updated_at":   dbTime(at),
		}).
		Where(
			goqu.C("id").Eq(userID),
			goqu.C("status").Eq(persistence.UserStatusActive),
			goqu.C("active_loans").Lt(limit),
		))
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ReleaseLoanSlot decrements the active loan counter of a user.
func (t *Tx) ReleaseLoanSlot(ctx context.Context, userID string, at time.Time) error {
	affected, err := t.store.exec(ctx, t.tx, t.store.update("users").
		Set(goqu.Record{
			"active_loans": goqu.L("active_loans - 1"),
			"updated_at":   dbTime(at),
		}).
		Where(goqu.C("id").Eq(userID), goqu.C("active_loans").Gt(0)))
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %s holds no loan slot", persistence.ErrConflict, userID)
	}
	return nil
}

// ClaimBook flips an available book to borrowed.
func (t *Tx) ClaimBook(ctx context.Context, bookID string, at time.Time) (bool, error) {
	affected, err := t.store.exec(ctx, t.tx, t.store.update("books").
		Set(goqu.Record{"status": persistence.BookStatusBorrowed, "updated_at": dbTime(at)}).
		Where(goqu.C("id").Eq(bookID), goqu.C("status").Eq(persistence.BookStatusAvailable)))
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ReleaseBook flips a borrowed book back to available.
func (t *Tx) ReleaseBook(ctx context.Context, bookID string, at time.Time) error {
	affected, err := t.store.exec(ctx, t.tx, t.store.update("books").
		Set(goqu.Record{"status": persistence.BookStatusAvailable, "updated_at": dbTime(at)}).
		Where(goqu.C("id").Eq(bookID), goqu.C("status").Eq(persistence.BookStatusBorrowed)))
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: book %s is not on loan", persistence.ErrConflict, bookID)
	}
	return nil
}

// InsertBorrowing stores a new borrowing row.
func (t *Tx) InsertBorrowing(ctx context.Context, borrowing persistence.Borrowing) error {
	record := goqu.Record{
		"id":          borrowing.ID,
		"user_id":     borrowing.UserID,
		"book_id":     borrowing.BookID,
		"borrow_date": dbTime(borrowing.BorrowedAt),
		"due_date":    dbTime(borrowing.DueAt),
		"return_date": nil,
		"status":      borrowing.Status,
		"fine_amount": borrowing.FineAmount.String(),
	}
	if borrowing.ReturnedAt != nil {
		record["return_date"] = dbTime(*borrowing.ReturnedAt)
	}
	_, err := t.store.exec(ctx, t.tx, t.store.insert("borrowings").Rows(record))
	return err
}

// SettleBorrowing marks an active borrowing as returned with its final fine.
func (t *Tx) SettleBorrowing(ctx context.Context, id string, returnedAt time.Time, fine decimal.Decimal) (bool, error) {
	affected, err := t.store.exec(ctx, t.tx, t.store.update("borrowings").
		Set(goqu.Record{
			"status":      persistence.BorrowingStatusReturned,
			"return_date": dbTime(returnedAt),
			"fine_amount": fine.String(),
		}).
		Where(goqu.C("id").Eq(id), goqu.C("status").In(persistence.ActiveBorrowingStatuses)))
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// NextBookSequence advances and returns the catalog sequence counter.
func (t *Tx) NextBookSequence(ctx context.Context) (int, error) {
	affected, err := t.store.exec(ctx, t.tx, t.store.update("book_sequences").
		Set(goqu.Record{"value": goqu.L("value + 1")}).
		Where(goqu.C("name").Eq("books")))
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, fmt.Errorf("sqldb: book sequence missing: %w", persistence.ErrNotFound)
	}

	var value int
	if err := t.store.get(ctx, t.tx, &value, t.store.from("book_sequences").
		Select("value").
		Where(goqu.C("name").Eq("books"))); err != nil {
		return 0, err
	}
	return value, nil
}

// InsertBook stores a new catalog entry.
func (t *Tx) InsertBook(ctx context.Context, book persistence.Book) error {
	_, err := t.store.exec(ctx, t.tx, t.store.insert("books").Rows(goqu.Record{
		"id":               book.ID,
		"display_id":       book.DisplayID,
		"title":            book.Title,
		"author":           book.Author,
		"isbn":             book.ISBN,
		"category":         book.Category,
		"publication_date": dbDate(book.PublicationDate),
		"status":           book.Status,
		"created_at":       dbTime(book.CreatedAt),
		"updated_at":       dbTime(book.UpdatedAt),
	}))
	return err
}

// CountBookBorrowings reports how many borrowings ever referenced a book.
func (t *Tx) CountBookBorrowings(ctx context.Context, bookID string) (int, error) {
	var count int
	err := t.store.get(ctx, t.tx, &count, t.store.from("borrowings").
		Select(goqu.COUNT("*")).
		Where(goqu.C("book_id").Eq(bookID)))
	return count, err
}

// DeleteBook removes a catalog entry.
func (t *Tx) DeleteBook(ctx context.Context, id string) error {
	affected, err := t.store.exec(ctx, t.tx, t.store.remove("books").Where(goqu.C("id").Eq(id)))
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// AppendActivity records an audit entry inside the transaction.
func (t *Tx) AppendActivity(ctx context.Context, entry persistence.ActivityEntry) error {
	return t.store.appendActivity(ctx, t.tx, entry)
}
