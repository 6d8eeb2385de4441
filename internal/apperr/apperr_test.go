package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("creating reservation: %w", Validation("start_date", "must not be in the past"))

	assert.Equal(t, KindValidation, KindOf(err))
	assert.True(t, Is(err, KindValidation))
	assert.False(t, Is(err, KindConflict))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindInternal))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "returned_date: is required", Validation("returned_date", "is required").Error())
	assert.Equal(t, `book "dune" not found`, NotFound("book", "dune").Error())

	cause := errors.New("missing end date")
	err := Computation("penalty_price", cause)
	assert.Equal(t, "penalty_price: could not be computed: missing end date", err.Error())
	assert.ErrorIs(t, err, cause)
}
