package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// ActivityLog stores and lists audit entries.
type ActivityLog interface {
	AppendActivity(ctx context.Context, entry ActivityEntry) error
	ListActivity(ctx context.Context, userID string, limit int) ([]ActivityEntry, error)
}

// recordActivity appends an audit entry outside any transaction. Failures are
// logged and swallowed so the audit trail never blocks the user facing action.
func recordActivity(ctx context.Context, log ActivityLog, logger *slog.Logger, entry ActivityEntry) {
	if log == nil {
		return
	}
	if err := log.AppendActivity(ctx, entry); err != nil {
		logger.WarnContext(ctx, "failed to record activity",
			"action", entry.Action,
			"error", err,
			"error_kind", ErrorKind(mapStoreError(err)),
		)
	}
}

// currentTime reads now and normalizes it to the stored precision.
func currentTime(now func() time.Time) time.Time {
	return now().UTC().Truncate(time.Second)
}

// ActivityService exposes the audit trail to staff and to users for their own entries.
type ActivityService struct {
	log    ActivityLog
	logger *slog.Logger
}

// NewActivityService constructs an activity service.
func NewActivityService(log ActivityLog) *ActivityService {
	return NewActivityServiceWithLogger(log, nil)
}

// NewActivityServiceWithLogger constructs an activity service with a specified logger.
func NewActivityServiceWithLogger(log ActivityLog, logger *slog.Logger) *ActivityService {
	return &ActivityService{log: log, logger: defaultLogger(logger)}
}

// ListActivity returns the newest entries first. An empty userID lists every
// user for staff and the principal's own entries otherwise.
func (s *ActivityService) ListActivity(ctx context.Context, principal Principal, userID string, limit int) (entries []ActivityEntry, err error) {
	if s == nil {
		err = fmt.Errorf("ActivityService is nil")
		return
	}

	logger := serviceLogger(ctx, s.logger, "ActivityService", "ListActivity",
		"principal_id", principal.UserID,
		"user_id", userID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list activity", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("count", len(entries)).InfoContext(ctx, "activity listed")
	}()

	switch {
	case userID == "" && principal.Can(PermViewReports):
	case userID == "":
		userID = principal.UserID
		fallthrough
	default:
		if !principal.canActFor(userID, PermViewOwnProfile, PermViewReports) {
			err = ErrUnauthorized
			return
		}
	}

	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	if s.log == nil {
		return nil, nil
	}

	entries, err = s.log.ListActivity(ctx, userID, limit)
	err = mapStoreError(err)
	return
}
