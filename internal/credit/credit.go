// Package credit manages users' compensation balances.
package credit

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/library-reservations/backend/internal/apperr"
	"github.com/library-reservations/backend/internal/storage"
	"github.com/library-reservations/backend/internal/storage/models"
)

// Service reads and changes credit balances.
type Service struct {
	repo *storage.CreditRepository
}

// NewService creates a credit service.
func NewService(repo *storage.CreditRepository) *Service {
	return &Service{repo: repo}
}

// WithTx returns a service whose writes join tx.
func (s *Service) WithTx(tx *sqlx.Tx) *Service {
	return &Service{repo: s.repo.WithTx(tx)}
}

// Get returns the user's balance, creating an empty one on first use.
func (s *Service) Get(ctx context.Context, userRef string) (*models.Credit, error) {
	return s.repo.GetOrCreate(ctx, userRef)
}

// GetByID returns a balance by ID.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Credit, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("credit", id)
	}
	return c, nil
}

// Compensate awards the user CompensationCredits.
func (s *Service) Compensate(ctx context.Context, userRef string) (*models.Credit, error) {
	return s.repo.Add(ctx, userRef, models.CompensationCredits)
}

// Subtract removes amount from the user's balance. It never lets the balance go negative.
func (s *Service) Subtract(ctx context.Context, userRef string, amount int) (*models.Credit, error) {
	if amount <= 0 {
		return nil, apperr.Validation("amount", "must be a positive number")
	}

	if _, err := s.repo.GetOrCreate(ctx, userRef); err != nil {
		return nil, err
	}

	c, err := s.repo.Subtract(ctx, userRef, amount)
	if errors.Is(err, storage.ErrInsufficientCredit) {
		return nil, apperr.Validation("amount", "not enough credits")
	}
	return c, err
}
