package storage

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"github.com/library-reservations/backend/internal/storage/models"
)

// CreditRepository provides data access for credit balances.
type CreditRepository struct {
	BaseRepository
}

// NewCreditRepository creates a new credit repository.
func NewCreditRepository(db *DB) *CreditRepository {
	return &CreditRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a repository bound to tx.
func (r *CreditRepository) WithTx(tx *sqlx.Tx) *CreditRepository {
	return &CreditRepository{BaseRepository: r.withTx(tx)}
}

// GetByID retrieves a credit balance by its ID.
func (r *CreditRepository) GetByID(ctx context.Context, id string) (*models.Credit, error) {
	return r.getWhere(ctx, goqu.C("id").Eq(id))
}

// GetByUser retrieves a user's credit balance, or nil if the user never had one.
func (r *CreditRepository) GetByUser(ctx context.Context, userRef string) (*models.Credit, error) {
	return r.getWhere(ctx, goqu.C("user_ref").Eq(userRef))
}

func (r *CreditRepository) getWhere(ctx context.Context, cond exp.Expression) (*models.Credit, error) {
	credit := &models.Credit{}
	found, err := r.getOne(ctx, credit, dialect.From("credits").Where(cond))
	if err != nil {
		return nil, fmt.Errorf("querying credit: %w", err)
	}
	if !found {
		return nil, nil
	}
	return credit, nil
}

// GetOrCreate returns the user's balance, creating an empty one on first use.
func (r *CreditRepository) GetOrCreate(ctx context.Context, userRef string) (*models.Credit, error) {
	if _, err := r.Q().ExecContext(ctx, `
		INSERT INTO credits (id, user_ref, amount, updated_at) VALUES (?, ?, 0, ?)
		ON CONFLICT(user_ref) DO NOTHING
	`, GenerateID(), userRef, r.Now()); err != nil {
		return nil, fmt.Errorf("creating credit: %w", err)
	}

	credit, err := r.GetByUser(ctx, userRef)
	if err != nil {
		return nil, err
	}
	if credit == nil {
		return nil, fmt.Errorf("credit for %s missing after insert", userRef)
	}
	return credit, nil
}

// Add increments the user's balance by amount in a single statement and returns the new balance.
func (r *CreditRepository) Add(ctx context.Context, userRef string, amount int) (*models.Credit, error) {
	if amount < 0 {
		return nil, fmt.Errorf("adding credits: negative amount %d", amount)
	}

	if _, err := r.Q().ExecContext(ctx, `
		INSERT INTO credits (id, user_ref, amount, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_ref) DO UPDATE SET
			amount = credits.amount + excluded.amount,
			updated_at = excluded.updated_at
	`, GenerateID(), userRef, amount, r.Now()); err != nil {
		return nil, fmt.Errorf("adding credits: %w", err)
	}

	return r.GetOrCreate(ctx, userRef)
}

// Subtract decrements the user's balance by amount.
// It returns ErrInsufficientCredit when the balance would go negative.
func (r *CreditRepository) Subtract(ctx context.Context, userRef string, amount int) (*models.Credit, error) {
	if amount < 0 {
		return nil, fmt.Errorf("subtracting credits: negative amount %d", amount)
	}

	result, err := r.Q().ExecContext(ctx, `
		UPDATE credits SET amount = amount - ?, updated_at = ?
		WHERE user_ref = ? AND amount >= ?
	`, amount, r.Now(), userRef, amount)
	if err != nil {
		return nil, fmt.Errorf("subtracting credits: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return nil, fmt.Errorf("subtracting %d credits from %s: %w", amount, userRef, ErrInsufficientCredit)
	}

	return r.GetByUser(ctx, userRef)
}
