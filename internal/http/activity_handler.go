package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/library-system/internal/application"
)

type activityService interface {
	ListActivity(ctx context.Context, principal application.Principal, userID string, limit int) ([]application.ActivityEntry, error)
}

// ActivityHandler serves the audit trail.
type ActivityHandler struct {
	service   activityService
	responder responder
	logger    *slog.Logger
}

func NewActivityHandler(service activityService, logger *slog.Logger) *ActivityHandler {
	base := defaultLogger(logger)
	return &ActivityHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	limit, err := queryInt(query, "limit")
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	entries, err := h.service.ListActivity(r.Context(), principal, strings.TrimSpace(query.Get("user_id")), limit)
	if err != nil {
		handlerLogger(r.Context(), h.logger, "ActivityHandler", "List", "principal_id", principal.UserID).
			ErrorContext(r.Context(), "activity list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]activityDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, activityDTO{
			ID:         e.ID,
			UserID:     e.UserID,
			Action:     e.Action,
			Details:    e.Details,
			OccurredAt: formatTime(e.OccurredAt),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, activityResponse{Entries: out})
}

type activityResponse struct {
	Entries []activityDTO `json:"entries"`
}

type activityDTO struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Action     string `json:"action"`
	Details    string `json:"details,omitempty"`
	OccurredAt string `json:"occurred_at"`
}
