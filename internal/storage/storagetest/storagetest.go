// Package storagetest opens throwaway migrated databases for tests.
package storagetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/library-reservations/backend/internal/storage"
	"github.com/library-reservations/backend/internal/storage/models"
)

// NewDB opens a migrated database in a temporary directory that is removed with the test.
func NewDB(t testing.TB) *storage.DB {
	t.Helper()

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.RunMigrations(context.Background(), db))
	return db
}

// AddUsers inserts regular users with the given usernames.
func AddUsers(t testing.TB, db *storage.DB, usernames ...string) {
	t.Helper()
	catalog := storage.NewCatalogRepository(db)
	for _, name := range usernames {
		require.NoError(t, catalog.UpsertUser(context.Background(), &models.User{Username: name}))
	}
}

// AddStaff inserts a staff user.
func AddStaff(t testing.TB, db *storage.DB, username string) {
	t.Helper()
	user := &models.User{Username: username, IsStaff: true}
	require.NoError(t, storage.NewCatalogRepository(db).UpsertUser(context.Background(), user))
}

// AddBooks inserts books whose title is their slug.
func AddBooks(t testing.TB, db *storage.DB, slugs ...string) {
	t.Helper()
	catalog := storage.NewCatalogRepository(db)
	for _, slug := range slugs {
		require.NoError(t, catalog.UpsertBook(context.Background(), &models.Book{Slug: slug, Title: slug}))
	}
}
