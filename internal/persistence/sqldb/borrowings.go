package sqldb

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/example/library-system/internal/persistence"
)

var borrowingColumns = []interface{}{
	"id", "user_id", "book_id", "borrow_date", "due_date", "return_date", "status", "fine_amount",
}

// ListBorrowings returns borrowings joined with book and user display fields.
// Rows are ordered by due date unless NewestFirst asks for borrow date descending.
func (s *Store) ListBorrowings(ctx context.Context, filter persistence.BorrowingFilter) ([]persistence.BorrowingDetail, error) {
	var conditions []exp.Expression
	if filter.UserID != "" {
		conditions = append(conditions, goqu.I("br.user_id").Eq(filter.UserID))
	}
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, goqu.I("br.status").In(filter.Statuses))
	}
	if filter.DueBefore != nil {
		conditions = append(conditions, goqu.I("br.due_date").Lt(dbTime(*filter.DueBefore)))
	}

	query := s.from(goqu.T("borrowings").As("br")).
		Join(goqu.T("books").As("bk"), goqu.On(goqu.I("bk.id").Eq(goqu.I("br.book_id")))).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("br.user_id")))).
		Select(
			goqu.I("br.id"),
			goqu.I("br.user_id"),
			goqu.I("br.book_id"),
			goqu.I("br.borrow_date"),
			goqu.I("br.due_date"),
			goqu.I("br.return_date"),
			goqu.I("br.status"),
			goqu.I("br.fine_amount"),
			goqu.I("bk.title").As("book_title"),
			goqu.I("bk.display_id").As("book_display_id"),
			goqu.I("u.username"),
		).
		Where(conditions...)

	if filter.NewestFirst {
		query = query.Order(goqu.I("br.borrow_date").Desc(), goqu.I("br.id").Desc())
	} else {
		query = query.Order(goqu.I("br.due_date").Asc(), goqu.I("br.id").Asc())
	}
	if filter.Limit > 0 {
		query = query.Limit(uint(filter.Limit))
	}

	var rows []persistence.BorrowingDetail
	if err := s.selectAll(ctx, s.db, &rows, query); err != nil {
		return nil, err
	}
	for i := range rows {
		normalizeBorrowing(&rows[i].Borrowing)
	}
	return rows, nil
}

// CountBorrowings tallies a user's borrowings by status.
func (s *Store) CountBorrowings(ctx context.Context, userID string) (persistence.BorrowingCounts, error) {
	var rows []struct {
		Status string `db:"status"`
		Total  int    `db:"total"`
	}
	if err := s.selectAll(ctx, s.db, &rows, s.from("borrowings").
		Select(goqu.C("status"), goqu.COUNT("*").As("total")).
		Where(goqu.C("user_id").Eq(userID)).
		GroupBy(goqu.C("status"))); err != nil {
		return persistence.BorrowingCounts{}, err
	}

	var counts persistence.BorrowingCounts
	for _, row := range rows {
		switch row.Status {
		case persistence.BorrowingStatusBorrowed:
			counts.Borrowed = row.Total
		case persistence.BorrowingStatusOverdue:
			counts.Overdue = row.Total
		case persistence.BorrowingStatusReturned:
			counts.Returned = row.Total
		}
	}
	return counts, nil
}

// MarkOverdue moves every borrowed row whose due date precedes now to overdue
// in a single statement and reports how many rows changed.
func (s *Store) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	return s.exec(ctx, s.db, s.update("borrowings").
		Set(goqu.Record{"status": persistence.BorrowingStatusOverdue}).
		Where(
			goqu.C("status").Eq(persistence.BorrowingStatusBorrowed),
			goqu.C("due_date").Lt(dbTime(now)),
		))
}

func (s *Store) getBorrowing(ctx context.Context, q queryer, id string) (persistence.Borrowing, error) {
	var borrowing persistence.Borrowing
	if err := s.get(ctx, q, &borrowing, s.from("borrowings").Select(borrowingColumns...).Where(goqu.C("id").Eq(id))); err != nil {
		return persistence.Borrowing{}, err
	}
	normalizeBorrowing(&borrowing)
	return borrowing, nil
}

func normalizeBorrowing(b *persistence.Borrowing) {
	b.BorrowedAt = b.BorrowedAt.UTC()
	b.DueAt = b.DueAt.UTC()
	b.ReturnedAt = utcPtr(b.ReturnedAt)
}
