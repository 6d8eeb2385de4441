package storage

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/library-reservations/backend/internal/storage/models"
)

// FavoriteRepository provides data access for favorite books.
type FavoriteRepository struct {
	BaseRepository
}

// NewFavoriteRepository creates a new favorite repository.
func NewFavoriteRepository(db *DB) *FavoriteRepository {
	return &FavoriteRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Add marks a book as a favorite of the user.
// It returns ErrDuplicate when the book is already a favorite.
func (r *FavoriteRepository) Add(ctx context.Context, fav *models.Favorite) error {
	fav.CreatedAt = r.Now()

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO favorites (user_ref, book_ref, created_at) VALUES (?, ?, ?)
	`, fav.UserRef, fav.BookRef, fav.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("adding favorite %s: %w", fav.BookRef, ErrDuplicate)
		}
		return fmt.Errorf("adding favorite: %w", err)
	}

	return nil
}

// ListByUser retrieves the user's favorites, newest first.
func (r *FavoriteRepository) ListByUser(ctx context.Context, userRef string) ([]models.Favorite, error) {
	var list []models.Favorite
	ds := dialect.From("favorites").
		Where(goqu.C("user_ref").Eq(userRef)).
		Order(goqu.C("created_at").Desc(), goqu.C("book_ref").Asc())
	if err := r.selectAll(ctx, &list, ds); err != nil {
		return nil, fmt.Errorf("querying favorites: %w", err)
	}
	return list, nil
}

// Remove deletes a favorite. It reports whether a row was removed.
func (r *FavoriteRepository) Remove(ctx context.Context, userRef, bookRef string) (bool, error) {
	result, err := r.Q().ExecContext(ctx, `
		DELETE FROM favorites WHERE user_ref = ? AND book_ref = ?
	`, userRef, bookRef)
	if err != nil {
		return false, fmt.Errorf("removing favorite: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}
