package application

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/library-system/internal/persistence"
)

var testEpoch = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sequentialIDs struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (g *sequentialIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%03d", g.prefix, g.next)
}

// memoryLibrary is an in-memory store that serialises transactions and rolls
// back every change when the callback fails.
type memoryLibrary struct {
	mu         sync.Mutex
	users      map[string]User
	hashes     map[string]string
	books      map[string]Book
	borrowings map[string]Borrowing
	activity   []ActivityEntry
	sequence   int

	failAppend error
	failList   error
}

func newMemoryLibrary() *memoryLibrary {
	return &memoryLibrary{
		users:      make(map[string]User),
		hashes:     make(map[string]string),
		books:      make(map[string]Book),
		borrowings: make(map[string]Borrowing),
	}
}

func (m *memoryLibrary) addUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	m.users[u.ID] = u
}

func (m *memoryLibrary) addBook(b Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.Status == "" {
		b.Status = BookStatusAvailable
	}
	m.books[b.ID] = b
}

func (m *memoryLibrary) user(id string) User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

func (m *memoryLibrary) book(id string) Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.books[id]
}

func (m *memoryLibrary) borrowing(id string) Borrowing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.borrowings[id]
}

func (m *memoryLibrary) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.activity))
	for _, e := range m.activity {
		out = append(out, e.Action)
	}
	return out
}

type memorySnapshot struct {
	users      map[string]User
	books      map[string]Book
	borrowings map[string]Borrowing
	activity   int
	sequence   int
}

func (m *memoryLibrary) snapshot() memorySnapshot {
	return memorySnapshot{
		users:      maps.Clone(m.users),
		books:      maps.Clone(m.books),
		borrowings: maps.Clone(m.borrowings),
		activity:   len(m.activity),
		sequence:   m.sequence,
	}
}

func (m *memoryLibrary) restore(s memorySnapshot) {
	m.users = s.users
	m.books = s.books
	m.borrowings = s.borrowings
	m.activity = m.activity[:s.activity]
	m.sequence = s.sequence
}

func (m *memoryLibrary) WithinLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(memoryTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memoryLibrary) WithinCatalogTx(ctx context.Context, fn func(tx CatalogTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(memoryTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memoryLibrary) ListBorrowings(ctx context.Context, filter BorrowingFilter) ([]Borrowing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	var out []Borrowing
	for _, b := range m.borrowings {
		if filter.UserID != "" && b.UserID != filter.UserID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, b.Status) {
			continue
		}
		if filter.DueBefore != nil && !b.DueAt.Before(*filter.DueBefore) {
			continue
		}
		b.BookTitle = m.books[b.BookID].Title
		b.BookDisplayID = m.books[b.BookID].DisplayID
		b.Username = m.users[b.UserID].Username
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.NewestFirst {
			return out[i].BorrowedAt.After(out[j].BorrowedAt)
		}
		return out[i].DueAt.Before(out[j].DueAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsStatus(statuses []BorrowingStatus, s BorrowingStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (m *memoryLibrary) CountBorrowings(ctx context.Context, userID string) (BorrowingCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var counts BorrowingCounts
	for _, b := range m.borrowings {
		if b.UserID != userID {
			continue
		}
		switch b.Status {
		case BorrowingStatusBorrowed:
			counts.Borrowed++
		case BorrowingStatusOverdue:
			counts.Overdue++
		case BorrowingStatusReturned:
			counts.Returned++
		}
	}
	return counts, nil
}

func (m *memoryLibrary) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var updated int64
	for id, b := range m.borrowings {
		if b.Status == BorrowingStatusBorrowed && b.DueAt.Before(now) {
			b.Status = BorrowingStatusOverdue
			m.borrowings[id] = b
			updated++
		}
	}
	return updated, nil
}

func (m *memoryLibrary) GetBook(ctx context.Context, id string) (Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryTx{m}.GetBook(ctx, id)
}

func (m *memoryLibrary) UpdateBook(ctx context.Context, book Book) (Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[book.ID]; !ok {
		return Book{}, persistence.ErrNotFound
	}
	for _, other := range m.books {
		if other.ID != book.ID && other.ISBN == book.ISBN {
			return Book{}, persistence.ErrDuplicate
		}
	}
	m.books[book.ID] = book
	return book, nil
}

func (m *memoryLibrary) ArchiveBook(ctx context.Context, id string, at time.Time) (Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[id]
	if !ok {
		return Book{}, persistence.ErrNotFound
	}
	if book.Status == BookStatusBorrowed {
		return Book{}, persistence.ErrConflict
	}
	book.Status = BookStatusArchived
	book.UpdatedAt = at
	m.books[id] = book
	return book, nil
}

func (m *memoryLibrary) SearchBooks(ctx context.Context, query BookQuery) (BookPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []Book
	for _, b := range m.books {
		if !query.IncludeArchived && b.Status == BookStatusArchived {
			continue
		}
		if query.AvailableOnly && b.Status != BookStatusAvailable {
			continue
		}
		if query.Category != "" && b.Category != query.Category {
			continue
		}
		matched = append(matched, b)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Title < matched[j].Title })
	page := BookPage{Total: len(matched)}
	if query.Offset < len(matched) {
		end := min(query.Offset+query.Limit, len(matched))
		page.Books = matched[query.Offset:end]
	}
	return page, nil
}

func (m *memoryLibrary) ListCategories(ctx context.Context) ([]Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]*Category{}
	for _, b := range m.books {
		if b.Status == BookStatusArchived {
			continue
		}
		c, ok := counts[b.Category]
		if !ok {
			c = &Category{Name: b.Category}
			counts[b.Category] = c
		}
		c.Books++
		if b.Status == BookStatusAvailable {
			c.Available++
		}
	}
	out := make([]Category, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryLibrary) CreateUser(ctx context.Context, user User, passwordHash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email {
			return User{}, persistence.ErrDuplicate
		}
	}
	m.users[user.ID] = user
	m.hashes[user.ID] = passwordHash
	return user, nil
}

func (m *memoryLibrary) GetUser(ctx context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryTx{m}.GetUser(ctx, id)
}

func (m *memoryLibrary) GetCredentials(ctx context.Context, username string) (UserCredentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return UserCredentials{User: u, PasswordHash: m.hashes[u.ID]}, nil
		}
	}
	return UserCredentials{}, persistence.ErrNotFound
}

func (m *memoryLibrary) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memoryLibrary) UpdateProfile(ctx context.Context, user User, passwordHash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return User{}, persistence.ErrNotFound
	}
	m.users[user.ID] = user
	if passwordHash != "" {
		m.hashes[user.ID] = passwordHash
	}
	return user, nil
}

func (m *memoryLibrary) SetStatus(ctx context.Context, id string, status UserStatus, at time.Time) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, persistence.ErrNotFound
	}
	u.Status = status
	u.UpdatedAt = at
	m.users[id] = u
	return u, nil
}

func (m *memoryLibrary) AppendActivity(ctx context.Context, entry ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryTx{m}.AppendActivity(ctx, entry)
}

func (m *memoryLibrary) ListActivity(ctx context.Context, userID string, limit int) ([]ActivityEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ActivityEntry
	for i := len(m.activity) - 1; i >= 0 && len(out) < limit; i-- {
		if userID == "" || m.activity[i].UserID == userID {
			out = append(out, m.activity[i])
		}
	}
	return out, nil
}

// memoryTx runs with memoryLibrary.mu held.
type memoryTx struct{ m *memoryLibrary }

func (t memoryTx) GetUser(ctx context.Context, id string) (User, error) {
	u, ok := t.m.users[id]
	if !ok {
		return User{}, persistence.ErrNotFound
	}
	return u, nil
}

func (t memoryTx) GetBook(ctx context.Context, id string) (Book, error) {
	b, ok := t.m.books[id]
	if !ok {
		return Book{}, persistence.ErrNotFound
	}
	return b, nil
}

func (t memoryTx) GetBorrowing(ctx context.Context, id string) (Borrowing, error) {
	b, ok := t.m.borrowings[id]
	if !ok {
		return Borrowing{}, persistence.ErrNotFound
	}
	return b, nil
}

func (t memoryTx) ReserveLoanSlot(ctx context.Context, userID string, limit int, at time.Time) (bool, error) {
	u, ok := t.m.users[userID]
	if !ok || u.Status != UserStatusActive || u.ActiveLoans >= limit {
		return false, nil
	}
	u.ActiveLoans++
	t.m.users[userID] = u
	return true, nil
}

func (t memoryTx) ReleaseLoanSlot(ctx context.Context, userID string, at time.Time) error {
	u, ok := t.m.users[userID]
	if !ok {
		return persistence.ErrNotFound
	}
	if u.ActiveLoans > 0 {
		u.ActiveLoans--
	}
	t.m.users[userID] = u
	return nil
}

func (t memoryTx) ClaimBook(ctx context.Context, bookID string, at time.Time) (bool, error) {
	b, ok := t.m.books[bookID]
	if !ok || b.Status != BookStatusAvailable {
		return false, nil
	}
	b.Status = BookStatusBorrowed
	t.m.books[bookID] = b
	return true, nil
}

func (t memoryTx) ReleaseBook(ctx context.Context, bookID string, at time.Time) error {
	b, ok := t.m.books[bookID]
	if !ok {
		return persistence.ErrNotFound
	}
	b.Status = BookStatusAvailable
	t.m.books[bookID] = b
	return nil
}

func (t memoryTx) InsertBorrowing(ctx context.Context, borrowing Borrowing) error {
	for _, existing := range t.m.borrowings {
		if existing.BookID == borrowing.BookID && existing.Status.Active() {
			return persistence.ErrDuplicate
		}
	}
	t.m.borrowings[borrowing.ID] = borrowing
	return nil
}

func (t memoryTx) SettleBorrowing(ctx context.Context, id string, returnedAt time.Time, fine decimal.Decimal) (bool, error) {
	b, ok := t.m.borrowings[id]
	if !ok || !b.Status.Active() {
		return false, nil
	}
	b.Status = BorrowingStatusReturned
	b.ReturnedAt = &returnedAt
	b.FineAmount = fine
	t.m.borrowings[id] = b
	return true, nil
}

func (t memoryTx) NextBookSequence(ctx context.Context) (int, error) {
	t.m.sequence++
	return t.m.sequence, nil
}

func (t memoryTx) InsertBook(ctx context.Context, book Book) error {
	for _, other := range t.m.books {
		if other.ISBN == book.ISBN {
			return persistence.ErrDuplicate
		}
	}
	t.m.books[book.ID] = book
	return nil
}

func (t memoryTx) CountBookBorrowings(ctx context.Context, bookID string) (int, error) {
	n := 0
	for _, b := range t.m.borrowings {
		if b.BookID == bookID {
			n++
		}
	}
	return n, nil
}

func (t memoryTx) DeleteBook(ctx context.Context, id string) error {
	if _, ok := t.m.books[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(t.m.books, id)
	return nil
}

func (t memoryTx) AppendActivity(ctx context.Context, entry ActivityEntry) error {
	if t.m.failAppend != nil {
		return t.m.failAppend
	}
	t.m.activity = append(t.m.activity, entry)
	return nil
}

type stubTokens struct {
	issued []Principal
	verify func(token string, now time.Time) (Principal, error)
}

func (s *stubTokens) Issue(principal Principal, issuedAt time.Time) (Session, error) {
	s.issued = append(s.issued, principal)
	return Session{Token: "token-" + principal.UserID, ExpiresAt: issuedAt.Add(time.Hour)}, nil
}

func (s *stubTokens) Verify(token string, now time.Time) (Principal, error) {
	if s.verify != nil {
		return s.verify(token, now)
	}
	return Principal{}, errors.New("invalid token")
}

func plainHash(password string) (string, error) { return "hash:" + password, nil }

func plainVerify(hash, password string) error {
	if hash != "hash:"+password {
		return ErrInvalidCredentials
	}
	return nil
}
