// Package reservation implements the reservation lifecycle: creation, cancellation,
// pickup and return, and the daily sweeps that move reservations along with time.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"

	"github.com/library-reservations/backend/internal/apperr"
	"github.com/library-reservations/backend/internal/clock"
	"github.com/library-reservations/backend/internal/credit"
	"github.com/library-reservations/backend/internal/notification"
	"github.com/library-reservations/backend/internal/penalty"
	"github.com/library-reservations/backend/internal/pricing"
	"github.com/library-reservations/backend/internal/storage"
	"github.com/library-reservations/backend/internal/storage/models"
	"github.com/library-reservations/backend/internal/websocket"
)

// Service owns reservation state transitions.
type Service struct {
	db          *storage.DB
	repo        *storage.ReservationRepository
	catalog     *storage.CatalogRepository
	checker     *AvailabilityChecker
	penalties   *penalty.Service
	escalator   *penalty.Escalator
	credits     *credit.Service
	sink        *notification.Sink
	clock       clock.Clock
	broadcaster *websocket.EventBroadcaster
}

// NewService creates a reservation service.
func NewService(
	db *storage.DB,
	penalties *penalty.Service,
	credits *credit.Service,
	sink *notification.Sink,
	clk clock.Clock,
	broadcaster *websocket.EventBroadcaster,
) *Service {
	repo := storage.NewReservationRepository(db)
	return &Service{
		db:          db,
		repo:        repo,
		catalog:     storage.NewCatalogRepository(db),
		checker:     NewAvailabilityChecker(repo),
		penalties:   penalties,
		escalator:   penalties.Escalator(),
		credits:     credits,
		sink:        sink,
		clock:       clk,
		broadcaster: broadcaster,
	}
}

// Checker returns the service's availability checker.
func (s *Service) Checker() *AvailabilityChecker {
	return s.checker
}

func (s *Service) today() models.Date {
	return models.DateOf(s.clock.Now())
}

// CreateInput holds the fields a user supplies to reserve a book.
type CreateInput struct {
	BookRef   string
	StartDate models.Date
	EndDate   models.Date
	Notes     *string
}

// Create reserves a book for userRef.
// The overlap check and the insert share one write transaction.
func (s *Service) Create(ctx context.Context, userRef string, in CreateInput) (*models.Reservation, error) {
	today := s.today()

	if err := validatePeriod(in.BookRef, in.StartDate, in.EndDate); err != nil {
		return nil, err
	}
	if in.StartDate.Before(today) {
		return nil, apperr.Validation("start_date", "can not be in the past")
	}

	if _, err := s.book(ctx, in.BookRef); err != nil {
		return nil, err
	}

	price, err := pricing.InitialPrice(in.StartDate, in.EndDate)
	if err != nil {
		return nil, apperr.Computation("initial_price", err)
	}

	res := &models.Reservation{
		UserRef:      userRef,
		BookRef:      in.BookRef,
		StartDate:    in.StartDate,
		EndDate:      in.EndDate,
		InitialPrice: price,
		Status:       models.ReservationConfirmed,
		Notes:        in.Notes,
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		active, err := s.penalties.ActivePenalty(ctx, tx, userRef)
		if err != nil {
			return err
		}
		if active != nil {
			return penalizedError(active)
		}

		overlapping, err := s.checker.WithTx(tx).FindOverlapping(ctx, in.BookRef, in.StartDate, in.EndDate)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return apperr.Conflict("the book is not available for the selected dates")
		}

		return s.repo.WithTx(tx).Create(ctx, res)
	})
	if errors.Is(err, storage.ErrReservationOverlap) {
		return nil, apperr.Conflict("the book is not available for the selected dates")
	}
	if err != nil {
		return nil, err
	}

	log.Printf("Created reservation %s: %s reserved %s from %s to %s", res.ID, userRef, res.BookRef, res.StartDate, res.EndDate)
	s.broadcaster.BroadcastReservationCreated(res)
	return res, nil
}

func penalizedError(p *models.Penalty) error {
	if p.IsPermanent() {
		return apperr.Forbidden("You can not reserve books anymore")
	}
	return apperr.Forbidden(fmt.Sprintf("You can not reserve a book until %s", p.EndDate.Display()))
}

func validatePeriod(bookRef string, start, end models.Date) error {
	if bookRef == "" {
		return apperr.Validation("book", "is required")
	}
	if start.IsZero() {
		return apperr.Validation("start_date", "is required")
	}
	if end.IsZero() {
		return apperr.Validation("end_date", "is required")
	}
	if !end.After(start) {
		return apperr.Validation("end_date", "must be after start date")
	}
	return nil
}

// CheckAvailability reports whether the book is free for every day of [start, end].
func (s *Service) CheckAvailability(ctx context.Context, bookRef string, start, end models.Date) (bool, error) {
	if err := validatePeriod(bookRef, start, end); err != nil {
		return false, err
	}
	if _, err := s.book(ctx, bookRef); err != nil {
		return false, err
	}
	return s.checker.IsAvailable(ctx, bookRef, start, end)
}

// UnavailablePeriods lists the current and future periods in which the book is taken.
func (s *Service) UnavailablePeriods(ctx context.Context, bookRef string) ([]models.Period, error) {
	if _, err := s.book(ctx, bookRef); err != nil {
		return nil, err
	}
	return s.checker.UnavailablePeriods(ctx, bookRef, s.today())
}

// List returns the user's reservations ordered by start date.
func (s *Service) List(ctx context.Context, userRef string) ([]models.Reservation, error) {
	list, err := s.repo.ListByUser(ctx, userRef)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Reservation{}
	}
	return list, nil
}

// Get returns one of the user's reservations.
func (s *Service) Get(ctx context.Context, userRef, id string) (*models.Reservation, error) {
	res, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.UserRef != userRef {
		return nil, apperr.NotFound("reservation", id)
	}
	return res, nil
}

// GetByID returns a reservation regardless of owner.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, apperr.NotFound("reservation", id)
	}
	return res, nil
}

// Cancel lets the owner call off a reservation that has not started yet.
func (s *Service) Cancel(ctx context.Context, actor, id string) (*models.Reservation, error) {
	res, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if res.UserRef != actor {
		return nil, apperr.Forbidden("You can only cancel your own reservations")
	}
	if res.Status == models.ReservationCanceledUser || res.Status == models.ReservationCanceledSystem {
		return nil, apperr.Conflict("the reservation is already canceled")
	}
	if res.Status != models.ReservationConfirmed || !res.StartDate.After(s.today()) {
		return nil, apperr.Forbidden("The reservation is already in progress and can not be canceled")
	}

	return s.transition(ctx, res, func(r *models.Reservation) error {
		r.Status = models.ReservationCanceledUser
		return nil
	})
}

// PatchInput carries exactly one of a return date or a pickup flag.
type PatchInput struct {
	ReturnedDate *models.Date
	Retired      *bool
}

// Patch records a pickup or a return.
func (s *Service) Patch(ctx context.Context, id string, in PatchInput) (*models.Reservation, error) {
	switch {
	case in.ReturnedDate != nil && in.Retired != nil:
		return nil, apperr.Validation("returned_date", "provide either returned_date or retired, not both")
	case in.ReturnedDate == nil && in.Retired == nil:
		return nil, apperr.Validation("returned_date", "provide either returned_date or retired")
	case in.Retired != nil:
		if !*in.Retired {
			return nil, apperr.Validation("retired", "must be true")
		}
		return s.MarkRetired(ctx, id)
	default:
		return s.MarkReturned(ctx, id, *in.ReturnedDate)
	}
}

// MarkRetired records that the user picked the book up.
func (s *Service) MarkRetired(ctx context.Context, id string) (*models.Reservation, error) {
	res, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if res.Status != models.ReservationConfirmed && res.Status != models.ReservationAvailable {
		return nil, apperr.Conflict(fmt.Sprintf("a %s reservation can not be retired", res.Status))
	}

	today := s.today()
	if today.Before(res.StartDate) {
		return nil, apperr.Validation("retired", "the reservation has not started yet")
	}
	if !res.EndDate.After(today) {
		return nil, apperr.Validation("retired", "the pickup window has already elapsed")
	}

	return s.transition(ctx, res, func(r *models.Reservation) error {
		r.Status = models.ReservationRetired
		return nil
	})
}

// MarkReturned records the return of the book and settles the final price.
// Nothing is written when the penalty price can not be computed.
func (s *Service) MarkReturned(ctx context.Context, id string, returned models.Date) (*models.Reservation, error) {
	res, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case models.ReservationAvailable, models.ReservationRetired, models.ReservationExpired:
	default:
		return nil, apperr.Conflict(fmt.Sprintf("a %s reservation can not be returned", res.Status))
	}

	if returned.IsZero() {
		return nil, apperr.Validation("returned_date", "is required")
	}
	if returned.Before(res.StartDate) {
		return nil, apperr.Validation("returned_date", "can not be before the start date")
	}

	initial := res.InitialPrice
	penaltyPrice, err := pricing.PenaltyPrice(res.EndDate, &initial, returned)
	if err != nil {
		return nil, apperr.Computation("penalty_price", err)
	}
	finalPrice := pricing.FinalPrice(initial, penaltyPrice)

	return s.transition(ctx, res, func(r *models.Reservation) error {
		r.ReturnedDate = &returned
		r.PenaltyPrice = &penaltyPrice
		r.FinalPrice = &finalPrice
		r.Status = models.ReservationCompleted
		return nil
	})
}

// transition applies change to a copy of res and writes it if res is still in its current status.
func (s *Service) transition(ctx context.Context, res *models.Reservation, change func(*models.Reservation) error) (*models.Reservation, error) {
	previous := res.Status
	updated := *res
	if err := change(&updated); err != nil {
		return nil, err
	}

	err := s.repo.Update(ctx, &updated, previous)
	if errors.Is(err, storage.ErrStatusChanged) {
		return nil, apperr.Conflict("the reservation was changed by someone else, try again")
	}
	if err != nil {
		return nil, err
	}

	log.Printf("Reservation %s: %s -> %s", updated.ID, previous, updated.Status)
	s.broadcaster.BroadcastReservationStatusChanged(&updated, previous)
	return &updated, nil
}

func (s *Service) book(ctx context.Context, slug string) (*models.Book, error) {
	book, err := s.catalog.GetBook(ctx, slug)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, apperr.NotFound("book", slug)
	}
	return book, nil
}

// bookTitle returns the title of slug for messages, or the slug itself if unknown.
func (s *Service) bookTitle(ctx context.Context, slug string) string {
	book, err := s.catalog.GetBook(ctx, slug)
	if err != nil || book == nil {
		return slug
	}
	return book.Title
}
