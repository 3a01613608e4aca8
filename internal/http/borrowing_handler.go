package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/library-system/internal/application"
)

type borrowingService interface {
	Borrow(ctx context.Context, params application.BorrowParams) (application.Borrowing, error)
	ReturnBook(ctx context.Context, params application.ReturnParams) (application.ReturnResult, error)
	ListActiveBorrowings(ctx context.Context, principal application.Principal, userID string) ([]application.Borrowing, error)
	ListOverdue(ctx context.Context, principal application.Principal, limit int) ([]application.Borrowing, error)
	ListHistory(ctx context.Context, params application.HistoryParams) ([]application.Borrowing, error)
	Summary(ctx context.Context, principal application.Principal, userID string) (application.Summary, error)
	SweepOverdue(ctx context.Context, principal application.Principal) (int64, error)
}

// BorrowingHandler serves the borrowing ledger.
type BorrowingHandler struct {
	service   borrowingService
	responder responder
	logger    *slog.Logger
}

func NewBorrowingHandler(service borrowingService, logger *slog.Logger) *BorrowingHandler {
	base := defaultLogger(logger)
	return &BorrowingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BorrowingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "BorrowingHandler", operation, attrs...)
}

func (h *BorrowingHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Borrow", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode borrow request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Borrow", "principal_id", principal.UserID, "book_id", req.BookID)
	borrowing, err := h.service.Borrow(r.Context(), application.BorrowParams{
		Principal: principal,
		UserID:    strings.TrimSpace(req.UserID),
		BookID:    strings.TrimSpace(req.BookID),
	})
	if err != nil {
		logger.WarnContext(r.Context(), "borrow rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("borrowing_id", borrowing.ID).InfoContext(r.Context(), "book borrowed")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, borrowingResponse{Borrowing: toBorrowingDTO(borrowing)})
}

func (h *BorrowingHandler) Return(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	borrowingID := r.PathValue("id")
	logger := h.log(r.Context(), "Return", "principal_id", principal.UserID, "borrowing_id", borrowingID)

	result, err := h.service.ReturnBook(r.Context(), application.ReturnParams{Principal: principal, BorrowingID: borrowingID})
	if err != nil {
		logger.WarnContext(r.Context(), "return rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("fine_amount", result.FineAmount.StringFixed(2)).InfoContext(r.Context(), "book returned")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, returnResponse{
		Borrowing:  toBorrowingDTO(result.Borrowing),
		FineAmount: result.FineAmount.StringFixed(2),
	})
}

// List handles GET /borrowings. Without a status the active loans are returned;
// status=all or a specific status returns history newest first.
func (h *BorrowingHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	userID := strings.TrimSpace(query.Get("user_id"))
	status := strings.ToLower(strings.TrimSpace(query.Get("status")))

	var (
		borrowings []application.Borrowing
		err        error
	)
	switch status {
	case "", "active":
		borrowings, err = h.service.ListActiveBorrowings(r.Context(), principal, userID)
	default:
		limit, perr := queryInt(query, "limit")
		if perr != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, perr)
			return
		}
		all, perr := queryBool(query, "all")
		if perr != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, perr)
			return
		}
		params := application.HistoryParams{
			Principal: principal,
			UserID:    userID,
			Limit:     limit,
			AllUsers:  all,
		}
		if status != "all" {
			params.Status = application.BorrowingStatus(status)
		}
		borrowings, err = h.service.ListHistory(r.Context(), params)
	}
	if err != nil {
		h.log(r.Context(), "List", "principal_id", principal.UserID, "user_id", userID).ErrorContext(r.Context(), "borrowing list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, borrowingsResponse{Borrowings: toBorrowingDTOs(borrowings)})
}

func (h *BorrowingHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	limit, err := queryInt(r.URL.Query(), "limit")
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	borrowings, err := h.service.ListOverdue(r.Context(), principal, limit)
	if err != nil {
		h.log(r.Context(), "Overdue", "principal_id", principal.UserID).ErrorContext(r.Context(), "overdue list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, borrowingsResponse{Borrowings: toBorrowingDTOs(borrowings)})
}

func (h *BorrowingHandler) MarkOverdue(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	updated, err := h.service.SweepOverdue(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, markOverdueResponse{Updated: updated})
}

func (h *BorrowingHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	summary, err := h.service.Summary(r.Context(), principal, strings.TrimSpace(r.URL.Query().Get("user_id")))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, summaryDTO{
		UserID:         summary.UserID,
		Borrowed:       summary.Borrowed,
		Overdue:        summary.Overdue,
		Returned:       summary.Returned,
		BorrowLimit:    summary.BorrowLimit,
		AvailableSlots: summary.AvailableSlots,
		AccruedFines:   summary.AccruedFines.StringFixed(2),
	})
}

type borrowRequest struct {
	BookID string `json:"book_id"`
	UserID string `json:"user_id,omitempty"`
}

type borrowingResponse struct {
	Borrowing borrowingDTO `json:"borrowing"`
}

type returnResponse struct {
	Borrowing  borrowingDTO `json:"borrowing"`
	FineAmount string       `json:"fine_amount"`
}

type borrowingsResponse struct {
	Borrowings []borrowingDTO `json:"borrowings"`
}

type markOverdueResponse struct {
	Updated int64 `json:"updated"`
}

type summaryDTO struct {
	UserID         string `json:"user_id"`
	Borrowed       int    `json:"borrowed"`
	Overdue        int    `json:"overdue"`
	Returned       int    `json:"returned"`
	BorrowLimit    int    `json:"borrow_limit"`
	AvailableSlots int    `json:"available_slots"`
	AccruedFines   string `json:"accrued_fines"`
}

type borrowingDTO struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Username      string `json:"username,omitempty"`
	BookID        string `json:"book_id"`
	BookTitle     string `json:"book_title,omitempty"`
	BookDisplayID string `json:"book_display_id,omitempty"`
	BorrowDate    string `json:"borrow_date"`
	DueDate       string `json:"due_date"`
	ReturnDate    string `json:"return_date,omitempty"`
	Status        string `json:"status"`
	FineAmount    string `json:"fine_amount"`
}

func toBorrowingDTO(b application.Borrowing) borrowingDTO {
	dto := borrowingDTO{
		ID:            b.ID,
		UserID:        b.UserID,
		Username:      b.Username,
		BookID:        b.BookID,
		BookTitle:     b.BookTitle,
		BookDisplayID: b.BookDisplayID,
		BorrowDate:    formatTime(b.BorrowedAt),
		DueDate:       formatTime(b.DueAt),
		Status:        string(b.Status),
		FineAmount:    b.FineAmount.StringFixed(2),
	}
	if b.ReturnedAt != nil {
		dto.ReturnDate = formatTime(*b.ReturnedAt)
	}
	return dto
}

func toBorrowingDTOs(borrowings []application.Borrowing) []borrowingDTO {
	out := make([]borrowingDTO, 0, len(borrowings))
	for _, b := range borrowings {
		out = append(out, toBorrowingDTO(b))
	}
	return out
}
