package sqldb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/library-system/internal/persistence"
	"github.com/example/library-system/internal/testfixtures"
)

func TestStore_Users(t *testing.T) {
	store := testfixtures.NewSQLiteStore(t)
	ctx := context.Background()

	alice := testfixtures.NewUser(testfixtures.WithUsername("alice"))
	bob := testfixtures.NewUser(testfixtures.WithUsername("bob"), testfixtures.WithRole("librarian"))
	testfixtures.SeedUsers(t, store, bob, alice)

	t.Run("get by id and username", func(t *testing.T) {
		got, err := store.GetUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, persistence.UserStatusActive, got.Status)
		assert.Zero(t, got.ActiveLoans)
		assert.True(t, got.CreatedAt.Equal(alice.CreatedAt))

		byName, err := store.GetUserByUsername(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, bob.ID, byName.ID)
		assert.Equal(t, "hash", byName.PasswordHash)

		_, err = store.GetUser(ctx, "missing")
		assert.ErrorIs(t, err, persistence.ErrNotFound)
		_, err = store.GetUserByUsername(ctx, "")
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})

	t.Run("list is ordered by username", func(t *testing.T) {
		users, err := store.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "alice", users[0].Username)
		assert.Equal(t, "bob", users[1].Username)
	})

	t.Run("duplicate username is rejected", func(t *testing.T) {
		dup := testfixtures.NewUser(testfixtures.WithUsername("alice"))
		err := store.CreateUser(ctx, dup)
		assert.ErrorIs(t, err, persistence.ErrDuplicate)
	})

	t.Run("invalid role violates a constraint", func(t *testing.T) {
		err := store.CreateUser(ctx, testfixtures.NewUser(testfixtures.WithRole("janitor")))
		assert.ErrorIs(t, err, persistence.ErrConstraintViolation)
	})

	t.Run("profile and status updates", func(t *testing.T) {
		updated := alice
		updated.Email = "alice@library.test"
		updated.FullName = "Alice Liddell"
		updated.PasswordHash = "new-hash"
		updated.UpdatedAt = alice.UpdatedAt.Add(time.Hour)
		require.NoError(t, store.UpdateUserProfile(ctx, updated))

		require.NoError(t, store.UpdateUserStatus(ctx, alice.ID, persistence.UserStatusInactive, updated.UpdatedAt))

		got, err := store.GetUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice@library.test", got.Email)
		assert.Equal(t, "new-hash", got.PasswordHash)
		assert.Equal(t, persistence.UserStatusInactive, got.Status)

		assert.ErrorIs(t, store.UpdateUserStatus(ctx, "missing", persistence.UserStatusActive, updated.UpdatedAt), persistence.ErrNotFound)
		missing := updated
		missing.ID = "missing"
		assert.ErrorIs(t, store.UpdateUserProfile(ctx, missing), persistence.ErrNotFound)
	})
}
