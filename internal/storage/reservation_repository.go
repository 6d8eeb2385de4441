package storage

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"github.com/library-reservations/backend/internal/storage/models"
)

var reservationColumns = []any{
	"id", "user_ref", "book_ref", "start_date", "end_date", "initial_price", "status",
	"returned_date", "penalty_price", "final_price", "notes", "created_at", "updated_at",
}

// ReservationRepository provides data access for reservations.
type ReservationRepository struct {
	BaseRepository
}

// NewReservationRepository creates a new reservation repository.
func NewReservationRepository(db *DB) *ReservationRepository {
	return &ReservationRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// WithTx returns a repository bound to tx.
func (r *ReservationRepository) WithTx(tx *sqlx.Tx) *ReservationRepository {
	return &ReservationRepository{BaseRepository: r.withTx(tx)}
}

func (r *ReservationRepository) from() *goqu.SelectDataset {
	return dialect.From("reservations").Select(reservationColumns...)
}

// Create inserts a new reservation.
// The store rejects it with ErrReservationOverlap when the book is already taken for any day of the period.
func (r *ReservationRepository) Create(ctx context.Context, res *models.Reservation) error {
	res.ID = GenerateID()
	res.CreatedAt = r.Now()
	res.UpdatedAt = res.CreatedAt

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO reservations (
			id, user_ref, book_ref, start_date, end_date, initial_price, status,
			returned_date, penalty_price, final_price, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.ID, res.UserRef, res.BookRef, res.StartDate, res.EndDate, res.InitialPrice, res.Status,
		res.ReturnedDate, res.PenaltyPrice, res.FinalPrice, res.Notes, res.CreatedAt, res.UpdatedAt,
	)

	if err != nil {
		if isTriggerAbort(err) {
			return fmt.Errorf("inserting reservation: %w", ErrReservationOverlap)
		}
		return fmt.Errorf("inserting reservation: %w", err)
	}

	return nil
}

// GetByID retrieves a reservation by its ID.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	res := &models.Reservation{}
	found, err := r.getOne(ctx, res, r.from().Where(goqu.C("id").Eq(id)))
	if err != nil {
		return nil, fmt.Errorf("querying reservation: %w", err)
	}
	if !found {
		return nil, nil
	}
	return res, nil
}

// ListByIDs retrieves reservations keyed by ID.
func (r *ReservationRepository) ListByIDs(ctx context.Context, ids []string) (map[string]*models.Reservation, error) {
	out := make(map[string]*models.Reservation, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var list []models.Reservation
	if err := r.selectAll(ctx, &list, r.from().Where(goqu.C("id").In(ids))); err != nil {
		return nil, fmt.Errorf("querying reservations by id: %w", err)
	}
	for i := range list {
		out[list[i].ID] = &list[i]
	}
	return out, nil
}

// ListByUser retrieves all reservations of a user ordered by start date.
func (r *ReservationRepository) ListByUser(ctx context.Context, userRef string) ([]models.Reservation, error) {
	var list []models.Reservation
	ds := r.from().Where(goqu.C("user_ref").Eq(userRef)).Order(goqu.C("start_date").Asc(), goqu.C("created_at").Asc())
	if err := r.selectAll(ctx, &list, ds); err != nil {
		return nil, fmt.Errorf("querying reservations by user: %w", err)
	}
	return list, nil
}

// FindOverlapping retrieves reservations of a book whose status is not excluded and whose
// period shares at least one day with [start, end].
func (r *ReservationRepository) FindOverlapping(ctx context.Context, bookRef string, start, end models.Date, excludeStatuses []string) ([]models.Reservation, error) {
	conds := []exp.Expression{
		goqu.C("book_ref").Eq(bookRef),
		goqu.C("start_date").Lte(end.String()),
		goqu.C("end_date").Gte(start.String()),
	}
	if len(excludeStatuses) > 0 {
		conds = append(conds, goqu.C("status").NotIn(excludeStatuses))
	}

	var list []models.Reservation
	if err := r.selectAll(ctx, &list, r.from().Where(conds...).Order(goqu.C("start_date").Asc())); err != nil {
		return nil, fmt.Errorf("querying overlapping reservations: %w", err)
	}
	return list, nil
}

// ListUnavailablePeriods retrieves the periods of a book held by reservations in the given
// statuses that end on or after from, newest start first.
func (r *ReservationRepository) ListUnavailablePeriods(ctx context.Context, bookRef string, from models.Date, statuses []string) ([]models.Period, error) {
	ds := dialect.From("reservations").
		Select("start_date", "end_date").
		Where(
			goqu.C("book_ref").Eq(bookRef),
			goqu.C("end_date").Gte(from.String()),
			goqu.C("status").In(statuses),
		).
		Order(goqu.C("start_date").Desc())

	var periods []models.Period
	if err := r.selectAll(ctx, &periods, ds); err != nil {
		return nil, fmt.Errorf("querying unavailable periods: %w", err)
	}
	return periods, nil
}

// ListStartingOnOrBefore retrieves reservations in status whose start date is <= day.
func (r *ReservationRepository) ListStartingOnOrBefore(ctx context.Context, status string, day models.Date) ([]models.Reservation, error) {
	return r.listForSweep(ctx, status, goqu.C("start_date").Lte(day.String()))
}

// ListEndingBefore retrieves reservations in status whose end date is < day.
func (r *ReservationRepository) ListEndingBefore(ctx context.Context, status string, day models.Date) ([]models.Reservation, error) {
	return r.listForSweep(ctx, status, goqu.C("end_date").Lt(day.String()))
}

// ListEndingOnOrBefore retrieves reservations in status whose end date is <= day.
func (r *ReservationRepository) ListEndingOnOrBefore(ctx context.Context, status string, day models.Date) ([]models.Reservation, error) {
	return r.listForSweep(ctx, status, goqu.C("end_date").Lte(day.String()))
}

func (r *ReservationRepository) listForSweep(ctx context.Context, status string, cond exp.Expression) ([]models.Reservation, error) {
	var list []models.Reservation
	ds := r.from().Where(goqu.C("status").Eq(status), cond).Order(goqu.C("start_date").Asc(), goqu.C("id").Asc())
	if err := r.selectAll(ctx, &list, ds); err != nil {
		return nil, fmt.Errorf("querying %s reservations: %w", status, err)
	}
	return list, nil
}

// FindStartingOn retrieves the first reservation of a book in one of statuses that starts on day.
func (r *ReservationRepository) FindStartingOn(ctx context.Context, bookRef string, day models.Date, statuses []string) (*models.Reservation, error) {
	res := &models.Reservation{}
	ds := r.from().
		Where(
			goqu.C("book_ref").Eq(bookRef),
			goqu.C("start_date").Eq(day.String()),
			goqu.C("status").In(statuses),
		).
		Order(goqu.C("created_at").Asc()).
		Limit(1)

	found, err := r.getOne(ctx, res, ds)
	if err != nil {
		return nil, fmt.Errorf("querying reservation starting on %s: %w", day, err)
	}
	if !found {
		return nil, nil
	}
	return res, nil
}

// Update writes the mutable fields of a reservation, provided it is still in expectedStatus.
// It returns ErrStatusChanged when another writer moved the reservation first.
func (r *ReservationRepository) Update(ctx context.Context, res *models.Reservation, expectedStatus string) error {
	res.UpdatedAt = r.Now()

	result, err := r.Q().ExecContext(ctx, `
		UPDATE reservations SET
			status = ?, returned_date = ?, penalty_price = ?, final_price = ?, notes = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`,
		res.Status, res.ReturnedDate, res.PenaltyPrice, res.FinalPrice, res.Notes, res.UpdatedAt,
		res.ID, expectedStatus,
	)

	if err != nil {
		return fmt.Errorf("updating reservation: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("updating reservation %s from %s: %w", res.ID, expectedStatus, ErrStatusChanged)
	}

	return nil
}
