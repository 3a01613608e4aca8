// Package http provides the JSON API of the library service.
//
// Public endpoints:
//   - POST /register: creates a student account. Body: {"username","email","full_name","password"}.
//   - POST /login: issues a session token. Body: {"username","password"}. The token is
//     returned in the body, in the X-Session-Token header and in a session_token cookie.
//   - POST /logout: clears the session cookie.
//
// Every other endpoint requires a bearer token or the session cookie:
//   - GET /me, PUT /me, GET /me/summary: the caller's profile and borrowing dashboard.
//   - GET /users, POST /users, GET /users/{id}, PUT /users/{id}, PUT /users/{id}/status:
//     account management.
//   - GET /books, POST /books, GET /books/{id}, PUT /books/{id}, DELETE /books/{id},
//     POST /books/{id}/archive, GET /categories: the catalog. Search accepts
//     q, category, author, year, available, limit and offset.
//   - POST /borrowings {"book_id","user_id"?}, POST /borrowings/{id}/return,
//     GET /borrowings?user_id=&status=&limit=&all=, GET /borrowings/overdue?limit=,
//     POST /borrowings/mark-overdue: the borrowing ledger. Amounts are decimal strings
//     with two fraction digits.
//   - GET /activity?user_id=&limit=: the audit trail.
//
// Service errors map to status codes in responder.go: validation 422, permission 403,
// missing 404, limit or availability conflicts 409, unreachable store 503.
package http
