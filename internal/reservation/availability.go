package reservation

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/library-reservations/backend/internal/storage"
	"github.com/library-reservations/backend/internal/storage/models"
)

// ExcludedStatuses never block a book: terminal or bookkeeping-only states.
var ExcludedStatuses = []string{
	models.ReservationCanceledUser,
	models.ReservationCanceledSystem,
	models.ReservationCompleted,
	models.ReservationWaitingPayment,
}

// AvailabilityChecker detects reservations competing for the same book and days.
type AvailabilityChecker struct {
	repo *storage.ReservationRepository
}

// NewAvailabilityChecker creates a new availability checker.
func NewAvailabilityChecker(repo *storage.ReservationRepository) *AvailabilityChecker {
	return &AvailabilityChecker{repo: repo}
}

// WithTx returns a checker that reads inside tx.
func (c *AvailabilityChecker) WithTx(tx *sqlx.Tx) *AvailabilityChecker {
	return &AvailabilityChecker{repo: c.repo.WithTx(tx)}
}

// Conflict represents a detected overlap with an existing reservation.
type Conflict struct {
	ReservationID string      `json:"reservation_id"`
	Status        string      `json:"status"`
	OverlapStart  models.Date `json:"overlap_start"`
	OverlapEnd    models.Date `json:"overlap_end"`
}

// FindOverlapping returns the blocking reservations of book that share a day with [start, end].
func (c *AvailabilityChecker) FindOverlapping(ctx context.Context, bookRef string, start, end models.Date) ([]models.Reservation, error) {
	list, err := c.repo.FindOverlapping(ctx, bookRef, start, end, ExcludedStatuses)
	if err != nil {
		return nil, fmt.Errorf("checking availability: %w", err)
	}
	return list, nil
}

// CheckConflicts describes each overlap of [start, end] with the book's blocking reservations.
func (c *AvailabilityChecker) CheckConflicts(ctx context.Context, bookRef string, start, end models.Date) ([]Conflict, error) {
	overlapping, err := c.FindOverlapping(ctx, bookRef, start, end)
	if err != nil {
		return nil, err
	}

	conflicts := make([]Conflict, 0, len(overlapping))
	for _, res := range overlapping {
		overlapStart := start
		if res.StartDate.After(overlapStart) {
			overlapStart = res.StartDate
		}

		overlapEnd := end
		if res.EndDate.Before(overlapEnd) {
			overlapEnd = res.EndDate
		}

		conflicts = append(conflicts, Conflict{
			ReservationID: res.ID,
			Status:        res.Status,
			OverlapStart:  overlapStart,
			OverlapEnd:    overlapEnd,
		})
	}

	return conflicts, nil
}

// IsAvailable reports whether no blocking reservation overlaps [start, end].
func (c *AvailabilityChecker) IsAvailable(ctx context.Context, bookRef string, start, end models.Date) (bool, error) {
	overlapping, err := c.FindOverlapping(ctx, bookRef, start, end)
	if err != nil {
		return false, err
	}
	return len(overlapping) == 0, nil
}

// UnavailablePeriods returns the periods of book held from today on, newest start first.
func (c *AvailabilityChecker) UnavailablePeriods(ctx context.Context, bookRef string, today models.Date) ([]models.Period, error) {
	periods, err := c.repo.ListUnavailablePeriods(ctx, bookRef, today, models.ActiveReservationStatuses)
	if err != nil {
		return nil, err
	}
	if periods == nil {
		periods = []models.Period{}
	}
	return periods, nil
}
