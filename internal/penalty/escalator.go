// Package penalty turns accumulated strikes into penalties and ends penalties once served.
package penalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/library-reservations/backend/internal/notification"
	"github.com/library-reservations/backend/internal/storage"
	"github.com/library-reservations/backend/internal/storage/models"
)

// Penalty lengths by number of prior penalties.
const (
	FirstPenaltyDays  = 30
	SecondPenaltyDays = 60
)

// Duration returns the length in days of a user's next penalty given how many they already have.
// permanent is true from the third penalty on.
func Duration(prior int) (days int, permanent bool) {
	switch {
	case prior <= 0:
		return FirstPenaltyDays, false
	case prior == 1:
		return SecondPenaltyDays, false
	default:
		return 0, true
	}
}

// Escalator records strikes, groups them per user and penalizes every third one.
// Its methods are meant to run inside the caller's transaction.
type Escalator struct {
	repo *storage.PenaltyRepository
	sink *notification.Sink
}

// NewEscalator creates an escalator.
func NewEscalator(repo *storage.PenaltyRepository, sink *notification.Sink) *Escalator {
	return &Escalator{repo: repo, sink: sink}
}

// WithTx returns an escalator whose writes join tx.
func (e *Escalator) WithTx(tx *sqlx.Tx) *Escalator {
	return &Escalator{repo: e.repo.WithTx(tx), sink: e.sink.WithTx(tx)}
}

// IssueStrike records a strike against res and adds it to the owner's open group.
// It returns the penalty created if this strike closed the group.
func (e *Escalator) IssueStrike(ctx context.Context, res *models.Reservation, reason string, today models.Date) (*models.Strike, *models.Penalty, error) {
	strike := &models.Strike{ReservationID: res.ID, Reason: reason}
	if err := e.repo.CreateStrike(ctx, strike); err != nil {
		return nil, nil, err
	}

	penalty, err := e.AddStrikeToGroup(ctx, res.UserRef, strike, today)
	if err != nil {
		return nil, nil, err
	}
	return strike, penalty, nil
}

// AddStrikeToGroup appends strike to the user's open group, opening one if needed.
// When the group reaches MaxStrikesPerGroup it is closed with a new penalty, which is returned.
func (e *Escalator) AddStrikeToGroup(ctx context.Context, userRef string, strike *models.Strike, today models.Date) (*models.Penalty, error) {
	group, err := e.openGroup(ctx, userRef)
	if err != nil {
		return nil, err
	}

	if err := e.repo.AddStrikeToGroup(ctx, group.ID, strike.ID); err != nil {
		return nil, err
	}

	count, err := e.repo.CountGroupStrikes(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	if count < models.MaxStrikesPerGroup {
		return nil, nil
	}

	penalty, err := e.CreatePenalty(ctx, userRef, today)
	if err != nil {
		return nil, err
	}
	if err := e.repo.CloseGroup(ctx, group.ID, penalty.ID); err != nil {
		return nil, err
	}
	return penalty, nil
}

// openGroup finds the user's open group or creates it.
func (e *Escalator) openGroup(ctx context.Context, userRef string) (*models.StrikeGroup, error) {
	group, err := e.repo.FindOpenGroup(ctx, userRef)
	if err != nil || group != nil {
		return group, err
	}

	group = &models.StrikeGroup{UserRef: userRef}
	err = e.repo.CreateGroup(ctx, group)
	if errors.Is(err, storage.ErrOpenGroupExists) {
		return e.repo.FindOpenGroup(ctx, userRef)
	}
	if err != nil {
		return nil, err
	}
	return group, nil
}

// CreatePenalty starts a penalty for the user today, sized by how many they already have.
func (e *Escalator) CreatePenalty(ctx context.Context, userRef string, today models.Date) (*models.Penalty, error) {
	prior, err := e.repo.CountPenaltiesByUser(ctx, userRef)
	if err != nil {
		return nil, err
	}

	penalty := &models.Penalty{UserRef: userRef, StartDate: today}
	if days, permanent := Duration(prior); !permanent {
		end := today.AddDays(days)
		penalty.EndDate = &end
	}

	if err := e.repo.CreatePenalty(ctx, penalty); err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Hi %s, you can not reserve books until %s.", userRef, penaltyEnd(penalty))
	if _, err := e.sink.Create(ctx, userRef, notification.TitlePenalty, message, models.PenaltyTarget(penalty.ID)); err != nil {
		return nil, err
	}

	return penalty, nil
}

func penaltyEnd(p *models.Penalty) string {
	if p.IsPermanent() {
		return "further notice"
	}
	return p.EndDate.Display()
}
