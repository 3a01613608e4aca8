package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/library-system/internal/config"
	"github.com/example/library-system/internal/testfixtures"
)

type apiClient struct {
	t      *testing.T
	server *httptest.Server
}

func newTestServer(t *testing.T, clock *testfixtures.Clock) *apiClient {
	t.Helper()

	cfg := config.Defaults()
	cfg.DatabaseDSN = filepath.Join(t.TempDir(), "library.db")
	cfg.SessionSecret = "test-secret"
	cfg.SessionTTL = 30 * 24 * time.Hour
	cfg.AdminUsername = "admin"
	cfg.AdminPassword = "admin-pass"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := newApp(context.Background(), cfg, logger, clock.Now)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	server := httptest.NewServer(app.Handler)
	t.Cleanup(server.Close)
	return &apiClient{t: t, server: server}
}

func (c *apiClient) call(method, path, token string, body any) (int, map[string]any) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.server.URL+path, reader)
	require.NoError(c.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.server.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	payload := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&payload))
	}
	return resp.StatusCode, payload
}

func (c *apiClient) login(username, password string) string {
	c.t.Helper()
	status, body := c.call(http.MethodPost, "/login", "", map[string]string{"username": username, "password": password})
	require.Equal(c.t, http.StatusCreated, status, body)
	return body["token"].(string)
}

func (c *apiClient) createBook(token, title, isbn string) map[string]any {
	c.t.Helper()
	status, body := c.call(http.MethodPost, "/books", token, map[string]string{
		"title":            title,
		"author":           "Test Author",
		"isbn":             isbn,
		"category":         "Fiction",
		"publication_date": "1999-05-04",
	})
	require.Equal(c.t, http.StatusCreated, status, body)
	return body["book"].(map[string]any)
}

func TestLibraryEndToEnd(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	api := newTestServer(t, clock)

	status, body := api.call(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status, body)

	adminToken := api.login("admin", "admin-pass")

	status, body = api.call(http.MethodPost, "/users", adminToken, map[string]string{
		"username":  "libby",
		"email":     "libby@example.com",
		"full_name": "Libby Rarian",
		"password":  "shelves",
		"role":      "librarian",
	})
	require.Equal(t, http.StatusCreated, status, body)
	librarianToken := api.login("libby", "shelves")

	status, body = api.call(http.MethodPost, "/register", "", map[string]string{
		"username":  "alice",
		"email":     "alice@example.com",
		"full_name": "Alice Reader",
		"password":  "wonderland",
	})
	require.Equal(t, http.StatusCreated, status, body)
	aliceToken := api.login("alice", "wonderland")

	first := api.createBook(librarianToken, "First", "9780000000001")
	second := api.createBook(librarianToken, "Second", "9780000000002")
	third := api.createBook(librarianToken, "Third", "9780000000003")
	assert.Equal(t, "FIMAY011999-FIC00001", first["display_id"])

	status, _ = api.call(http.MethodPost, "/books", aliceToken, map[string]string{"title": "x"})
	assert.Equal(t, http.StatusForbidden, status)

	// Borrow two books, the third hits the limit.
	status, body = api.call(http.MethodPost, "/borrowings", aliceToken, map[string]string{"book_id": first["id"].(string)})
	require.Equal(t, http.StatusCreated, status, body)
	loan := body["borrowing"].(map[string]any)
	assert.Equal(t, "borrowed", loan["status"])

	status, body = api.call(http.MethodPost, "/borrowings", aliceToken, map[string]string{"book_id": second["id"].(string)})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = api.call(http.MethodPost, "/borrowings", aliceToken, map[string]string{"book_id": third["id"].(string)})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "BORROW_LIMIT_EXCEEDED", body["error_code"])

	status, body = api.call(http.MethodGet, "/books/"+first["id"].(string), aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "borrowed", body["book"].(map[string]any)["status"])

	// Ten days later the first loan is three days overdue.
	clock.AdvanceDays(10)

	status, body = api.call(http.MethodGet, "/borrowings/overdue", librarianToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	require.Len(t, body["borrowings"], 2)

	status, body = api.call(http.MethodGet, "/me/summary", aliceToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 2, body["overdue"])
	assert.EqualValues(t, 0, body["available_slots"])
	assert.Equal(t, "60.00", body["accrued_fines"])

	status, body = api.call(http.MethodPost, "/borrowings/"+loan["id"].(string)+"/return", aliceToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	fine, err := decimal.NewFromString(body["fine_amount"].(string))
	require.NoError(t, err)
	assert.True(t, fine.Equal(decimal.NewFromInt(30)), "fine %s", fine)
	assert.Equal(t, "returned", body["borrowing"].(map[string]any)["status"])

	status, body = api.call(http.MethodPost, "/borrowings/"+loan["id"].(string)+"/return", aliceToken, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_RETURNED", body["error_code"])

	// The freed slot lets the third book through.
	status, body = api.call(http.MethodPost, "/borrowings", aliceToken, map[string]string{"book_id": third["id"].(string)})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = api.call(http.MethodGet, "/borrowings?status=all", aliceToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Len(t, body["borrowings"], 3)

	status, body = api.call(http.MethodDelete, "/books/"+first["id"].(string), librarianToken, nil)
	assert.Equal(t, http.StatusConflict, status, body)

	status, body = api.call(http.MethodGet, "/activity?user_id="+loan["user_id"].(string), adminToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["entries"])

	// Deactivated accounts lose their session.
	status, body = api.call(http.MethodPut, "/users/"+loan["user_id"].(string)+"/status", adminToken, map[string]string{"status": "inactive"})
	require.Equal(t, http.StatusOK, status, body)
	status, body = api.call(http.MethodGet, "/me", aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "AUTH_ACCOUNT_DISABLED", body["error_code"])
}

func TestNewAppRejectsBrokenConfiguration(t *testing.T) {
	cfg := config.Defaults()
	cfg.DatabaseDriver = "oracle"
	cfg.SessionSecret = "secret"

	_, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Now)
	assert.ErrorContains(t, err, "open storage")

	cfg = config.Defaults()
	cfg.DatabaseDSN = filepath.Join(t.TempDir(), "library.db")
	_, err = newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Now)
	assert.ErrorContains(t, err, "session tokens")
}
