package credit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/library-reservations/backend/internal/apperr"
	"github.com/library-reservations/backend/internal/storage"
	"github.com/library-reservations/backend/internal/storage/models"
	"github.com/library-reservations/backend/internal/storage/storagetest"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := storagetest.NewDB(t)
	storagetest.AddUsers(t, db, "alice")
	return NewService(storage.NewCreditRepository(db))
}

func TestGetCreatesEmptyBalance(t *testing.T) {
	svc := newTestService(t)

	c, err := svc.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Amount)

	byID, err := svc.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.UserRef)

	_, err = svc.GetByID(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCompensateAndSubtract(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.Compensate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.CompensationCredits, c.Amount)

	c, err = svc.Subtract(ctx, "alice", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Amount)

	_, err = svc.Subtract(ctx, "alice", 2)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Subtract(ctx, "alice", 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	c, err = svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Amount)
}

func TestSubtractFromNewBalanceFails(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Subtract(context.Background(), "alice", 1)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "amount", appErr.Field)
	assert.Equal(t, "not enough credits", appErr.Message)
}
