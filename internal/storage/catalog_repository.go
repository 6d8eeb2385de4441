package storage

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/library-reservations/backend/internal/storage/models"
)

// CatalogRepository provides access to the book and user records reservations refer to.
type CatalogRepository struct {
	BaseRepository
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(db *DB) *CatalogRepository {
	return &CatalogRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// GetBook retrieves a book by slug.
func (r *CatalogRepository) GetBook(ctx context.Context, slug string) (*models.Book, error) {
	book := &models.Book{}
	found, err := r.getOne(ctx, book, dialect.From("books").Where(goqu.C("slug").Eq(slug)))
	if err != nil {
		return nil, fmt.Errorf("querying book: %w", err)
	}
	if !found {
		return nil, nil
	}
	return book, nil
}

// ListBooks retrieves all books ordered by title.
func (r *CatalogRepository) ListBooks(ctx context.Context) ([]models.Book, error) {
	var books []models.Book
	if err := r.selectAll(ctx, &books, dialect.From("books").Order(goqu.C("title").Asc())); err != nil {
		return nil, fmt.Errorf("querying books: %w", err)
	}
	return books, nil
}

// GetUser retrieves a user by username.
func (r *CatalogRepository) GetUser(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	found, err := r.getOne(ctx, user, dialect.From("users").Where(goqu.C("username").Eq(username)))
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	if !found {
		return nil, nil
	}
	return user, nil
}

// UpsertBook creates a book or updates its title.
func (r *CatalogRepository) UpsertBook(ctx context.Context, book *models.Book) error {
	book.CreatedAt = r.Now()

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO books (slug, title, created_at) VALUES (?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET title = excluded.title
	`, book.Slug, book.Title, book.CreatedAt)

	if err != nil {
		return fmt.Errorf("upserting book: %w", err)
	}

	return nil
}

// UpsertUser creates a user or updates its email and staff flag.
func (r *CatalogRepository) UpsertUser(ctx context.Context, user *models.User) error {
	user.CreatedAt = r.Now()

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO users (username, email, is_staff, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET email = excluded.email, is_staff = excluded.is_staff
	`, user.Username, user.Email, user.IsStaff, user.CreatedAt)

	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}

	return nil
}
