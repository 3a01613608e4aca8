package sqldb

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/example/library-system/internal/persistence"
)

const defaultActivityLimit = 50

// AppendActivity records an audit entry outside any ledger transaction.
func (s *Store) AppendActivity(ctx context.Context, entry persistence.ActivityEntry) error {
	return s.appendActivity(ctx, s.db, entry)
}

// ListActivity returns the newest audit entries first.
func (s *Store) ListActivity(ctx context.Context, filter persistence.ActivityFilter) ([]persistence.ActivityEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultActivityLimit
	}

	query := s.from("activity_log").
		Select("id", "user_id", "action", "details", "occurred_at").
		Order(goqu.C("occurred_at").Desc(), goqu.C("id").Desc()).
		Limit(uint(limit))
	if filter.UserID != "" {
		query = query.Where(goqu.C("user_id").Eq(filter.UserID))
	}

	var entries []persistence.ActivityEntry
	if err := s.selectAll(ctx, s.db, &entries, query); err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].OccurredAt = entries[i].OccurredAt.UTC()
	}
	return entries, nil
}

func (s *Store) appendActivity(ctx context.Context, q queryer, entry persistence.ActivityEntry) error {
	_, err := s.exec(ctx, q, s.insert("activity_log").Rows(goqu.Record{
		"id":          entry.ID,
		"user_id":     entry.UserID,
		"action":      entry.Action,
		"details":     entry.Details,
		"occurred_at": dbTime(entry.OccurredAt),
	}))
	return err
}
