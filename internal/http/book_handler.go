package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/library-system/internal/application"
)

type bookService interface {
	CreateBook(ctx context.Context, params application.CreateBookParams) (application.Book, error)
	GetBook(ctx context.Context, principal application.Principal, bookID string) (application.Book, error)
	UpdateBook(ctx context.Context, params application.UpdateBookParams) (application.Book, error)
	ArchiveBook(ctx context.Context, principal application.Principal, bookID string) (application.Book, error)
	DeleteBook(ctx context.Context, principal application.Principal, bookID string) error
	SearchBooks(ctx context.Context, params application.SearchBooksParams) (application.BookPage, error)
	ListCategories(ctx context.Context, principal application.Principal) ([]application.Category, error)
}

// BookHandler serves the catalog.
type BookHandler struct {
	service   bookService
	responder responder
	logger    *slog.Logger
}

func NewBookHandler(service bookService, logger *slog.Logger) *BookHandler {
	base := defaultLogger(logger)
	return &BookHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BookHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "BookHandler", operation, attrs...)
}

// Search handles GET /books?q=&category=&author=&year=&available=&limit=&offset=.
func (h *BookHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()

	params := application.SearchBooksParams{
		Principal: principal,
		Query:     query.Get("q"),
		Category:  query.Get("category"),
		Author:    query.Get("author"),
	}
	var err error
	if params.Year, err = queryInt(query, "year"); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if params.Limit, err = queryInt(query, "limit"); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if params.Offset, err = queryInt(query, "offset"); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	if params.AvailableOnly, err = queryBool(query, "available"); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	page, err := h.service.SearchBooks(r.Context(), params)
	if err != nil {
		h.log(r.Context(), "Search", "principal_id", principal.UserID).ErrorContext(r.Context(), "book search failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookPageResponse{
		Books:  toBookDTOs(page.Books),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

func (h *BookHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	book, err := h.service.GetBook(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookResponse{Book: toBookDTO(book)})
}

func (h *BookHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode book request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)
	book, err := h.service.CreateBook(r.Context(), application.CreateBookParams{Principal: principal, Input: req.toInput()})
	if err != nil {
		logger.ErrorContext(r.Context(), "book creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("book_id", book.ID, "display_id", book.DisplayID).InfoContext(r.Context(), "book created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, bookResponse{Book: toBookDTO(book)})
}

func (h *BookHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	bookID := r.PathValue("id")

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "book_id", bookID)
	book, err := h.service.UpdateBook(r.Context(), application.UpdateBookParams{Principal: principal, BookID: bookID, Input: req.toInput()})
	if err != nil {
		logger.ErrorContext(r.Context(), "book update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "book updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookResponse{Book: toBookDTO(book)})
}

func (h *BookHandler) Archive(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	bookID := r.PathValue("id")
	book, err := h.service.ArchiveBook(r.Context(), principal, bookID)
	if err != nil {
		h.log(r.Context(), "Archive", "principal_id", principal.UserID, "book_id", bookID).ErrorContext(r.Context(), "book archive failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookResponse{Book: toBookDTO(book)})
}

func (h *BookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	bookID := r.PathValue("id")
	if err := h.service.DeleteBook(r.Context(), principal, bookID); err != nil {
		h.log(r.Context(), "Delete", "principal_id", principal.UserID, "book_id", bookID).ErrorContext(r.Context(), "book delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *BookHandler) Categories(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	categories, err := h.service.ListCategories(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]categoryDTO, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryDTO{Name: c.Name, Books: c.Books, Available: c.Available})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, categoriesResponse{Categories: out})
}

type bookRequest struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn"`
	Category        string `json:"category"`
	PublicationDate string `json:"publication_date"`
}

func (r bookRequest) toInput() application.BookInput {
	return application.BookInput{
		Title:           strings.TrimSpace(r.Title),
		Author:          strings.TrimSpace(r.Author),
		ISBN:            strings.TrimSpace(r.ISBN),
		Category:        strings.TrimSpace(r.Category),
		PublicationDate: strings.TrimSpace(r.PublicationDate),
	}
}

type bookResponse struct {
	Book bookDTO `json:"book"`
}

type bookPageResponse struct {
	Books  []bookDTO `json:"books"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

type categoriesResponse struct {
	Categories []categoryDTO `json:"categories"`
}

type categoryDTO struct {
	Name      string `json:"name"`
	Books     int    `json:"books"`
	Available int    `json:"available"`
}

type bookDTO struct {
	ID              string `json:"id"`
	DisplayID       string `json:"display_id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn"`
	Category        string `json:"category"`
	PublicationDate string `json:"publication_date"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func toBookDTO(book application.Book) bookDTO {
	published := ""
	if !book.PublicationDate.IsZero() {
		published = book.PublicationDate.UTC().Format(time.DateOnly)
	}
	return bookDTO{
		ID:              book.ID,
		DisplayID:       book.DisplayID,
		Title:           book.Title,
		Author:          book.Author,
		ISBN:            book.ISBN,
		Category:        book.Category,
		PublicationDate: published,
		Status:          string(book.Status),
		CreatedAt:       formatTime(book.CreatedAt),
		UpdatedAt:       formatTime(book.UpdatedAt),
	}
}

func toBookDTOs(books []application.Book) []bookDTO {
	out := make([]bookDTO, 0, len(books))
	for _, book := range books {
		out = append(out, toBookDTO(book))
	}
	return out
}
