package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/library-system/internal/persistence"
)

var (
	userCounter atomic.Uint64
	bookCounter atomic.Uint64
)

// UserOption adjusts a generated user.
type UserOption func(*persistence.User)

// NewUser returns an active student with a unique id and username.
func NewUser(opts ...UserOption) persistence.User {
	n := userCounter.Add(1)
	at := ReferenceTime()
	user := persistence.User{
		ID:           fmt.Sprintf("user-%04d", n),
		Username:     fmt.Sprintf("reader%04d", n),
		Email:        fmt.Sprintf("reader%04d@example.com", n),
		FullName:     fmt.Sprintf("Reader %04d", n),
		PasswordHash: "hash",
		Role:         "student",
		Status:       persistence.UserStatusActive,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	for _, opt := range opts {
		opt(&user)
	}
	return user
}

func WithUserID(id string) UserOption {
	return func(u *persistence.User) { u.ID = id }
}

func WithUsername(username string) UserOption {
	return func(u *persistence.User) { u.Username = username }
}

func WithRole(role string) UserOption {
	return func(u *persistence.User) { u.Role = role }
}

func WithStatus(status string) UserOption {
	return func(u *persistence.User) { u.Status = status }
}

// BookOption adjusts a generated book.
type BookOption func(*persistence.Book)

// NewBook returns an available book with a unique id, display id and ISBN.
func NewBook(opts ...BookOption) persistence.Book {
	n := bookCounter.Add(1)
	at := ReferenceTime()
	book := persistence.Book{
		ID:              fmt.Sprintf("book-%04d", n),
		DisplayID:       fmt.Sprintf("BKJAN012000-FIC%05d", n),
		Title:           fmt.Sprintf("Book %04d", n),
		Author:          "Anonymous",
		ISBN:            fmt.Sprintf("978%010d", n),
		Category:        "Fiction",
		PublicationDate: time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
		Status:          persistence.BookStatusAvailable,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	for _, opt := range opts {
		opt(&book)
	}
	return book
}

func WithBookID(id string) BookOption {
	return func(b *persistence.Book) { b.ID = id }
}

func WithTitle(title, author string) BookOption {
	return func(b *persistence.Book) {
		b.Title = title
		b.Author = author
	}
}

func WithCategory(category string) BookOption {
	return func(b *persistence.Book) { b.Category = category }
}

func WithBookStatus(status string) BookOption {
	return func(b *persistence.Book) { b.Status = status }
}

// SeedUsers stores users and fails the test on the first error.
func SeedUsers(tb testing.TB, repo persistence.UserRepository, users ...persistence.User) {
	tb.Helper()
	for _, user := range users {
		if err := repo.CreateUser(context.Background(), user); err != nil {
			tb.Fatalf("seed user %s: %v", user.ID, err)
		}
	}
}

// SeedBooks stores books in one transaction and fails the test on error.
func SeedBooks(tb testing.TB, tx persistence.Transactor, books ...persistence.Book) {
	tb.Helper()
	err := tx.WithinTx(context.Background(), func(tx persistence.Tx) error {
		for _, book := range books {
			if err := tx.InsertBook(context.Background(), book); err != nil {
				return fmt.Errorf("book %s: %w", book.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		tb.Fatalf("seed books: %v", err)
	}
}
