package reservation

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/library-reservations/backend/internal/notification"
	"github.com/library-reservations/backend/internal/storage/models"
)

// Sweep job names
const (
	SweepConfirmedToAvailable      = "sweep.confirmed_to_available"
	SweepRetiredToExpired          = "sweep.retired_to_expired"
	SweepAvailableToWaitingPayment = "sweep.available_to_waiting_payment"
)

// sweepStep processes one reservation inside tx. The returned func runs after commit.
type sweepStep func(ctx context.Context, tx *sqlx.Tx, res *models.Reservation, today models.Date) (func(), error)

// runSweep snapshots candidates once, then handles each in its own transaction.
// A failing reservation is logged and recorded; the rest are still processed.
func (s *Service) runSweep(
	ctx context.Context,
	job string,
	list func(ctx context.Context, today models.Date) ([]models.Reservation, error),
	step sweepStep,
) *models.SweepResult {
	now := s.clock.Now()
	today := models.DateOf(now)
	result := models.NewSweepResult(job, now.UTC())

	candidates, err := list(ctx, today)
	if err != nil {
		log.Printf("Sweep %s: failed to list reservations: %v", job, err)
		result.Fail("", err)
		s.broadcaster.BroadcastSweepCompleted(result)
		return result
	}

	for i := range candidates {
		res := &candidates[i]

		var after func()
		err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
			var err error
			after, err = step(ctx, tx, res, today)
			return err
		})
		if err != nil {
			log.Printf("Sweep %s: failed to process reservation %s: %v", job, res.ID, err)
			result.Fail(res.ID, err)
			continue
		}

		result.Processed++
		if after != nil {
			after()
		}
	}

	log.Printf("Sweep %s: processed %d, failed %d", job, result.Processed, len(result.Errors))
	s.broadcaster.BroadcastSweepCompleted(result)
	return result
}

// SweepConfirmedToAvailable makes every confirmed reservation that has started available for pickup.
func (s *Service) SweepConfirmedToAvailable(ctx context.Context) *models.SweepResult {
	return s.runSweep(ctx, SweepConfirmedToAvailable,
		func(ctx context.Context, today models.Date) ([]models.Reservation, error) {
			return s.repo.ListStartingOnOrBefore(ctx, models.ReservationConfirmed, today)
		},
		s.makeAvailable,
	)
}

func (s *Service) makeAvailable(ctx context.Context, tx *sqlx.Tx, res *models.Reservation, today models.Date) (func(), error) {
	previous := res.Status
	res.Status = models.ReservationAvailable
	if err := s.repo.WithTx(tx).Update(ctx, res, previous); err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Good news! Your reservation for the book %s from %s to %s is now available for pickup.",
		s.bookTitle(ctx, res.BookRef), res.StartDate, res.EndDate)
	if _, err := s.sink.WithTx(tx).Create(ctx, res.UserRef, notification.TitleAvailable, message, models.ReservationTarget(res.ID)); err != nil {
		return nil, err
	}

	return func() { s.broadcaster.BroadcastReservationStatusChanged(res, previous) }, nil
}

// SweepRetiredToExpired expires every picked-up reservation past its end date, strikes its user
// and cancels, with compensation, the reservation of the same book that was due to start today.
func (s *Service) SweepRetiredToExpired(ctx context.Context) *models.SweepResult {
	return s.runSweep(ctx, SweepRetiredToExpired,
		func(ctx context.Context, today models.Date) ([]models.Reservation, error) {
			return s.repo.ListEndingBefore(ctx, models.ReservationRetired, today)
		},
		s.expire,
	)
}

func (s *Service) expire(ctx context.Context, tx *sqlx.Tx, res *models.Reservation, today models.Date) (func(), error) {
	repo := s.repo.WithTx(tx)
	sink := s.sink.WithTx(tx)
	title := s.bookTitle(ctx, res.BookRef)

	previous := res.Status
	res.Status = models.ReservationExpired
	if err := repo.Update(ctx, res, previous); err != nil {
		return nil, err
	}

	reason := fmt.Sprintf("You must return the Book, %s on %s", title, res.EndDate)
	strike, penalty, err := s.escalator.WithTx(tx).IssueStrike(ctx, res, reason, today)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Dear %s, a strike has been issued against your account due to the late return of the book %s. "+
		"Remember that you reserved the book from %s to %s, "+
		"we remind you that for each day past the deadline you will be charged an extra $4.",
		res.UserRef, title, res.StartDate, res.EndDate)
	if _, err := sink.Create(ctx, res.UserRef, notification.TitleStrike, message, models.StrikeTarget(strike.ID)); err != nil {
		return nil, err
	}

	displaced, err := s.cancelDisplaced(ctx, tx, res, title, today)
	if err != nil {
		return nil, err
	}

	return func() {
		s.broadcaster.BroadcastReservationStatusChanged(res, previous)
		if penalty != nil {
			log.Printf("Penalized %s after strike %s", res.UserRef, strike.ID)
			s.broadcaster.BroadcastPenaltyCreated(penalty)
		}
		if displaced != nil {
			s.broadcaster.BroadcastReservationStatusChanged(displaced, models.ReservationConfirmed)
		}
	}, nil
}

// cancelDisplaced cancels the reservation of the same book starting today, if any, and compensates its user.
func (s *Service) cancelDisplaced(ctx context.Context, tx *sqlx.Tx, late *models.Reservation, title string, today models.Date) (*models.Reservation, error) {
	repo := s.repo.WithTx(tx)

	next, err := repo.FindStartingOn(ctx, late.BookRef, today, []string{models.ReservationConfirmed, models.ReservationAvailable})
	if err != nil {
		return nil, err
	}
	if next == nil || next.ID == late.ID {
		return nil, nil
	}

	previous := next.Status
	next.Status = models.ReservationCanceledSystem
	next.AppendNote(fmt.Sprintf("The reservation was canceled by the system because other user"+
		" don't return the book, %s, on time. We are going to compensate to"+
		" %s give credits that can use for future reservation.", title, next.UserRef))
	if err := repo.Update(ctx, next, previous); err != nil {
		return nil, err
	}

	balance, err := s.credits.WithTx(tx).Compensate(ctx, next.UserRef)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Due to another user not returning their reserved book, %s, on time,"+
		" you've been compensated with %d credits. You can use these credits to reserve another book."+
		" Thank you for your understanding!", title, models.CompensationCredits)
	if _, err := s.sink.WithTx(tx).Create(ctx, next.UserRef, notification.TitleCredit, message, models.CreditTarget(balance.ID)); err != nil {
		return nil, err
	}

	log.Printf("Canceled reservation %s of %s: book %s not returned", next.ID, next.UserRef, late.BookRef)
	return next, nil
}

// SweepAvailableToWaitingPayment closes reservations whose pickup window elapsed without a pickup.
// The full price is still owed.
func (s *Service) SweepAvailableToWaitingPayment(ctx context.Context) *models.SweepResult {
	return s.runSweep(ctx, SweepAvailableToWaitingPayment,
		func(ctx context.Context, today models.Date) ([]models.Reservation, error) {
			return s.repo.ListEndingOnOrBefore(ctx, models.ReservationAvailable, today)
		},
		s.awaitPayment,
	)
}

func (s *Service) awaitPayment(ctx context.Context, tx *sqlx.Tx, res *models.Reservation, today models.Date) (func(), error) {
	previous := res.Status
	penaltyPrice := decimal.Zero
	finalPrice := res.InitialPrice

	res.Status = models.ReservationWaitingPayment
	res.PenaltyPrice = &penaltyPrice
	res.FinalPrice = &finalPrice
	res.AppendNote(fmt.Sprintf("The reservation of the book %s made from %s to %s ended. "+
		"Even though you never picked up the book, you must still pay the amount "+
		"since you deprived another user of reserving it for this period of time.",
		s.bookTitle(ctx, res.BookRef), res.StartDate, res.EndDate))

	if err := s.repo.WithTx(tx).Update(ctx, res, previous); err != nil {
		return nil, err
	}

	return func() { s.broadcaster.BroadcastReservationStatusChanged(res, previous) }, nil
}
