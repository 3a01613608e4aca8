package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// RouterConfig wires handlers into the API. Session guards every route except
// registration, login and the readiness probe; a nil Session leaves the routes
// unguarded. Ready backs GET /healthz.
type RouterConfig struct {
	Auth       *AuthHandler
	Users      *UserHandler
	Books      *BookHandler
	Borrowings *BorrowingHandler
	Activity   *ActivityHandler
	Ready      func(ctx context.Context) error
	Session    func(http.Handler) http.Handler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	protect := func(h http.HandlerFunc) http.Handler {
		if cfg.Session == nil {
			return h
		}
		return cfg.Session(h)
	}

	if cfg.Ready != nil {
		mux.HandleFunc("GET /healthz", readiness(cfg.Ready))
	}

	if cfg.Auth != nil {
		mux.HandleFunc("POST /register", cfg.Auth.Register)
		mux.HandleFunc("POST /login", cfg.Auth.Login)
		mux.HandleFunc("POST /logout", cfg.Auth.Logout)
	}

	if cfg.Users != nil {
		mux.Handle("GET /me", protect(cfg.Users.Me))
		mux.Handle("PUT /me", protect(cfg.Users.Update))
		mux.Handle("GET /users", protect(cfg.Users.List))
		mux.Handle("POST /users", protect(cfg.Users.Create))
		mux.Handle("GET /users/{id}", protect(cfg.Users.Get))
		mux.Handle("PUT /users/{id}", protect(cfg.Users.Update))
		mux.Handle("PUT /users/{id}/status", protect(cfg.Users.SetStatus))
	}

	if cfg.Books != nil {
		mux.Handle("GET /books", protect(cfg.Books.Search))
		mux.Handle("POST /books", protect(cfg.Books.Create))
		mux.Handle("GET /books/{id}", protect(cfg.Books.Get))
		mux.Handle("PUT /books/{id}", protect(cfg.Books.Update))
		mux.Handle("DELETE /books/{id}", protect(cfg.Books.Delete))
		mux.Handle("POST /books/{id}/archive", protect(cfg.Books.Archive))
		mux.Handle("GET /categories", protect(cfg.Books.Categories))
	}

	if cfg.Borrowings != nil {
		mux.Handle("GET /me/summary", protect(cfg.Borrowings.Summary))
		mux.Handle("GET /borrowings", protect(cfg.Borrowings.List))
		mux.Handle("POST /borrowings", protect(cfg.Borrowings.Borrow))
		mux.Handle("GET /borrowings/overdue", protect(cfg.Borrowings.Overdue))
		mux.Handle("POST /borrowings/mark-overdue", protect(cfg.Borrowings.MarkOverdue))
		mux.Handle("POST /borrowings/{id}/return", protect(cfg.Borrowings.Return))
	}

	if cfg.Activity != nil {
		mux.Handle("GET /activity", protect(cfg.Activity.List))
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func readiness(check func(ctx context.Context) error) http.HandlerFunc {
	respond := newResponder(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			respond.loggerFor(r.Context()).WarnContext(r.Context(), "readiness check failed", "error", err)
			respond.writeJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		respond.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func queryInt(values url.Values, name string) (int, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("query parameter %s must be a non-negative integer", name)
	}
	return n, nil
}

func queryBool(values url.Values, name string) (bool, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("query parameter %s must be true or false", name)
	}
	return b, nil
}
