// Package app wires the stores, services, job queue and schedulers together.
package app

import (
	"context"
	"time"

	"github.com/library-reservations/backend/internal/clock"
	"github.com/library-reservations/backend/internal/credit"
	"github.com/library-reservations/backend/internal/favorite"
	"github.com/library-reservations/backend/internal/jobs"
	"github.com/library-reservations/backend/internal/notification"
	"github.com/library-reservations/backend/internal/penalty"
	"github.com/library-reservations/backend/internal/reservation"
	"github.com/library-reservations/backend/internal/scheduler"
	"github.com/library-reservations/backend/internal/storage"
	"github.com/library-reservations/backend/internal/storage/models"
	"github.com/library-reservations/backend/internal/websocket"
)

// App holds every long-lived component of the server.
type App struct {
	DB            *storage.DB
	Clock         clock.Clock
	Hub           *websocket.Hub
	Queue         *jobs.Queue
	Catalog       *storage.CatalogRepository
	Notifications *notification.Sink
	Credits       *credit.Service
	Penalties     *penalty.Service
	Reservations  *reservation.Service
	Favorites     *favorite.Service
	Sweeps        *scheduler.Runner
}

// Options tune the job queue.
type Options struct {
	JobWorkers     int
	JobMaxAttempts int
}

// New builds the component graph on db. hub may be nil.
func New(db *storage.DB, clk clock.Clock, hub *websocket.Hub, opts Options) *App {
	queue := jobs.NewQueue(opts.JobWorkers, opts.JobMaxAttempts)
	broadcaster := websocket.NewEventBroadcaster(hub)

	sink := notification.NewSink(storage.NewNotificationRepository(db), queue)
	credits := credit.NewService(storage.NewCreditRepository(db))
	penalties := penalty.NewService(db, sink, clk, broadcaster)
	reservations := reservation.NewService(db, penalties, credits, sink, clk, broadcaster)

	a := &App{
		DB:            db,
		Clock:         clk,
		Hub:           hub,
		Queue:         queue,
		Catalog:       storage.NewCatalogRepository(db),
		Notifications: sink,
		Credits:       credits,
		Penalties:     penalties,
		Reservations:  reservations,
		Favorites:     favorite.NewService(db),
		Sweeps:        scheduler.NewRunner(queue),
	}

	sink.RegisterResolver(models.TargetReservation, func(ctx context.Context, id string) (any, error) {
		return reservations.GetByID(ctx, id)
	})
	sink.RegisterResolver(models.TargetStrike, func(ctx context.Context, id string) (any, error) {
		return penalties.GetStrike(ctx, id)
	})
	sink.RegisterResolver(models.TargetPenalty, func(ctx context.Context, id string) (any, error) {
		return penalties.GetPenaltyByID(ctx, id)
	})
	sink.RegisterResolver(models.TargetCredit, func(ctx context.Context, id string) (any, error) {
		return credits.GetByID(ctx, id)
	})

	queue.Register(notification.MarkReadJob, sink.HandleMarkRead)

	a.Sweeps.Add(reservation.SweepRetiredToExpired, reservations.SweepRetiredToExpired)
	a.Sweeps.Add(reservation.SweepConfirmedToAvailable, reservations.SweepConfirmedToAvailable)
	a.Sweeps.Add(reservation.SweepAvailableToWaitingPayment, reservations.SweepAvailableToWaitingPayment)
	a.Sweeps.Add(penalty.SweepCompletePenalties, penalties.CompletePenalties)

	return a
}

// SweepSchedules maps each sweep to its cron spec.
func SweepSchedules(retiredToExpired, confirmedToAvailable, availableToWaitingPayment, completePenalties string) []scheduler.Schedule {
	return []scheduler.Schedule{
		{Name: reservation.SweepRetiredToExpired, Spec: retiredToExpired},
		{Name: reservation.SweepConfirmedToAvailable, Spec: confirmedToAvailable},
		{Name: reservation.SweepAvailableToWaitingPayment, Spec: availableToWaitingPayment},
		{Name: penalty.SweepCompletePenalties, Spec: completePenalties},
	}
}

// NewScheduler returns a cron scheduler submitting sweeps to the app's queue.
func (a *App) NewScheduler(loc *time.Location, schedules []scheduler.Schedule) *scheduler.SweepScheduler {
	return scheduler.NewSweepScheduler(a.Queue, loc, schedules)
}
