package penalty

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"

	"github.com/library-reservations/backend/internal/apperr"
	"github.com/library-reservations/backend/internal/clock"
	"github.com/library-reservations/backend/internal/notification"
	"github.com/library-reservations/backend/internal/storage"
	"github.com/library-reservations/backend/internal/storage/models"
	"github.com/library-reservations/backend/internal/websocket"
)

// SweepCompletePenalties is the job name of the penalty completion sweep.
const SweepCompletePenalties = "sweep.complete_penalties"

// Service answers penalty and strike queries and completes served penalties.
type Service struct {
	db           *storage.DB
	repo         *storage.PenaltyRepository
	reservations *storage.ReservationRepository
	sink         *notification.Sink
	clock        clock.Clock
	broadcaster  *websocket.EventBroadcaster
}

// NewService creates a penalty service.
func NewService(
	db *storage.DB,
	sink *notification.Sink,
	clk clock.Clock,
	broadcaster *websocket.EventBroadcaster,
) *Service {
	return &Service{
		db:           db,
		repo:         storage.NewPenaltyRepository(db),
		reservations: storage.NewReservationRepository(db),
		sink:         sink,
		clock:        clk,
		broadcaster:  broadcaster,
	}
}

// Escalator returns an escalator sharing the service's store and sink.
func (s *Service) Escalator() *Escalator {
	return NewEscalator(s.repo, s.sink)
}

// ActivePenalty returns the user's incomplete penalty, if any. tx may be nil.
func (s *Service) ActivePenalty(ctx context.Context, tx *sqlx.Tx, userRef string) (*models.Penalty, error) {
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	return repo.FindActivePenalty(ctx, userRef)
}

// ListPenalties returns all penalties of the user, newest first.
func (s *Service) ListPenalties(ctx context.Context, userRef string) ([]models.Penalty, error) {
	return s.repo.ListPenaltiesByUser(ctx, userRef)
}

// CountPenalties returns how many penalties the user has received.
func (s *Service) CountPenalties(ctx context.Context, userRef string) (int, error) {
	return s.repo.CountPenaltiesByUser(ctx, userRef)
}

// GetPenalty returns one of the user's penalties with the strikes that caused it.
func (s *Service) GetPenalty(ctx context.Context, userRef, id string) (*models.PenaltyWithStrikes, error) {
	p, err := s.repo.GetPenalty(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.UserRef != userRef {
		return nil, apperr.NotFound("penalty", id)
	}

	out := &models.PenaltyWithStrikes{Penalty: p, Strikes: []models.StrikeWithReservation{}}

	group, err := s.repo.GetGroupByPenalty(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return out, nil
	}

	strikes, err := s.repo.ListGroupStrikes(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	out.Strikes, err = s.withReservations(ctx, strikes)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetPenaltyByID returns a penalty regardless of owner.
func (s *Service) GetPenaltyByID(ctx context.Context, id string) (*models.Penalty, error) {
	p, err := s.repo.GetPenalty(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("penalty", id)
	}
	return p, nil
}

// ListStrikes returns the user's strikes with their reservations, newest first.
func (s *Service) ListStrikes(ctx context.Context, userRef string) ([]models.StrikeWithReservation, error) {
	strikes, err := s.repo.ListStrikesByUser(ctx, userRef)
	if err != nil {
		return nil, err
	}
	return s.withReservations(ctx, strikes)
}

// CountStrikes returns how many strikes the user has received.
func (s *Service) CountStrikes(ctx context.Context, userRef string) (int, error) {
	return s.repo.CountStrikesByUser(ctx, userRef)
}

// GetStrike returns a strike with its reservation.
func (s *Service) GetStrike(ctx context.Context, id string) (*models.StrikeWithReservation, error) {
	strike, err := s.repo.GetStrike(ctx, id)
	if err != nil {
		return nil, err
	}
	if strike == nil {
		return nil, apperr.NotFound("strike", id)
	}

	list, err := s.withReservations(ctx, []models.Strike{*strike})
	if err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *Service) withReservations(ctx context.Context, strikes []models.Strike) ([]models.StrikeWithReservation, error) {
	ids := make([]string, len(strikes))
	for i, st := range strikes {
		ids[i] = st.ReservationID
	}

	byID, err := s.reservations.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.StrikeWithReservation, len(strikes))
	for i, st := range strikes {
		out[i] = models.StrikeWithReservation{Strike: st, Reservation: byID[st.ReservationID]}
	}
	return out, nil
}

// CompletePenalties marks every penalty whose end date has passed as complete and notifies its user.
// Each penalty is handled in its own transaction; failures are collected, not returned.
func (s *Service) CompletePenalties(ctx context.Context) *models.SweepResult {
	now := s.clock.Now()
	today := models.DateOf(now)
	result := models.NewSweepResult(SweepCompletePenalties, now.UTC())

	penalties, err := s.repo.ListDuePenalties(ctx, today)
	if err != nil {
		log.Printf("Failed to list due penalties: %v", err)
		result.Fail("", err)
		return result
	}

	for i := range penalties {
		p := &penalties[i]
		if err := s.completePenalty(ctx, p); err != nil {
			log.Printf("Failed to complete penalty %s: %v", p.ID, err)
			result.Fail(p.ID, err)
			continue
		}

		result.Processed++
		log.Printf("Completed penalty %s for %s", p.ID, p.UserRef)
		s.broadcaster.BroadcastPenaltyCompleted(p)
	}

	s.broadcaster.BroadcastSweepCompleted(result)
	return result
}

func (s *Service) completePenalty(ctx context.Context, p *models.Penalty) error {
	return s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.repo.WithTx(tx).MarkComplete(ctx, p.ID); err != nil {
			return err
		}
		p.Complete = true

		message := fmt.Sprintf("Good news %s! The penalization period has ended. "+
			"You are now free from any associated restrictions.", p.UserRef)
		_, err := s.sink.WithTx(tx).Create(ctx, p.UserRef, notification.TitlePenaltyEnded, message, models.PenaltyTarget(p.ID))
		return err
	})
}
