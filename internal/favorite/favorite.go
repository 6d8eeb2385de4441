// Package favorite keeps each user's list of favorite books.
package favorite

import (
	"context"
	"errors"

	"github.com/library-reservations/backend/internal/apperr"
	"github.com/library-reservations/backend/internal/storage"
	"github.com/library-reservations/backend/internal/storage/models"
)

// Service manages favorites.
type Service struct {
	repo    *storage.FavoriteRepository
	catalog *storage.CatalogRepository
}

// NewService creates a favorite service.
func NewService(db *storage.DB) *Service {
	return &Service{
		repo:    storage.NewFavoriteRepository(db),
		catalog: storage.NewCatalogRepository(db),
	}
}

// Add marks bookRef as a favorite of userRef.
func (s *Service) Add(ctx context.Context, userRef, bookRef string) (*models.Favorite, error) {
	if bookRef == "" {
		return nil, apperr.Validation("book", "is required")
	}

	book, err := s.catalog.GetBook(ctx, bookRef)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, apperr.NotFound("book", bookRef)
	}

	fav := &models.Favorite{UserRef: userRef, BookRef: bookRef}
	err = s.repo.Add(ctx, fav)
	if errors.Is(err, storage.ErrDuplicate) {
		return nil, apperr.Conflict("the book is already in your favorites")
	}
	if err != nil {
		return nil, err
	}
	return fav, nil
}

// List returns the user's favorites, newest first.
func (s *Service) List(ctx context.Context, userRef string) ([]models.Favorite, error) {
	list, err := s.repo.ListByUser(ctx, userRef)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Favorite{}
	}
	return list, nil
}

// Remove deletes a favorite.
func (s *Service) Remove(ctx context.Context, userRef, bookRef string) error {
	removed, err := s.repo.Remove(ctx, userRef, bookRef)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.NotFound("favorite", bookRef)
	}
	return nil
}
