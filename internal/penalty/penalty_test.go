package penalty

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/library-reservations/backend/internal/apperr"
	"github.com/library-reservations/backend/internal/clock"
	"github.com/library-reservations/backend/internal/notification"
	"github.com/library-reservations/backend/internal/storage"
	"github.com/library-reservations/backend/internal/storage/models"
	"github.com/library-reservations/backend/internal/storage/storagetest"
)

type fixture struct {
	db    *storage.DB
	clock *clock.Fixed
	sink  *notification.Sink
	svc   *Service
	res   *storage.ReservationRepository
	next  models.Date
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storagetest.NewDB(t)
	storagetest.AddUsers(t, db, "alice", "bob")
	storagetest.AddBooks(t, db, "dune")

	clk := clock.NewFixed(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	sink := notification.NewSink(storage.NewNotificationRepository(db), nil)
	return &fixture{
		db:    db,
		clock: clk,
		sink:  sink,
		svc:   NewService(db, sink, clk, nil),
		res:   storage.NewReservationRepository(db),
		next:  models.MustParseDate("2024-01-01"),
	}
}

// lateReservation stores an expired reservation of user on a period no other test reservation uses.
func (f *fixture) lateReservation(t *testing.T, user string) *models.Reservation {
	t.Helper()
	res := &models.Reservation{
		UserRef:      user,
		BookRef:      "dune",
		StartDate:    f.next,
		EndDate:      f.next.AddDays(2),
		InitialPrice: decimal.RequireFromString("6.00"),
		Status:       models.ReservationExpired,
	}
	f.next = f.next.AddDays(3)
	require.NoError(t, f.res.Create(context.Background(), res))
	return res
}

// strike issues a strike in its own transaction, the way the expiry sweep does.
func (f *fixture) strike(t *testing.T, user string) *models.Penalty {
	t.Helper()
	res := f.lateReservation(t, user)
	today := models.DateOf(f.clock.Now())

	var penalty *models.Penalty
	err := f.db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		var err error
		_, penalty, err = f.svc.Escalator().WithTx(tx).IssueStrike(context.Background(), res, "late", today)
		return err
	})
	require.NoError(t, err)
	return penalty
}

func TestDuration(t *testing.T) {
	days, permanent := Duration(0)
	assert.Equal(t, 30, days)
	assert.False(t, permanent)

	days, permanent = Duration(1)
	assert.Equal(t, 60, days)
	assert.False(t, permanent)

	_, permanent = Duration(2)
	assert.True(t, permanent)
	_, permanent = Duration(7)
	assert.True(t, permanent)
}

func TestEveryThirdStrikePenalizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Nil(t, f.strike(t, "alice"))
	assert.Nil(t, f.strike(t, "alice"))
	first := f.strike(t, "alice")
	require.NotNil(t, first)
	require.NotNil(t, first.EndDate)
	assert.Equal(t, "2025-01-31", first.EndDate.String())

	f.clock.AdvanceDays(40)
	assert.Nil(t, f.strike(t, "alice"))
	assert.Nil(t, f.strike(t, "alice"))
	second := f.strike(t, "alice")
	require.NotNil(t, second)
	require.NotNil(t, second.EndDate)
	assert.Equal(t, 60, second.EndDate.DaysSince(second.StartDate))

	assert.Nil(t, f.strike(t, "alice"))
	assert.Nil(t, f.strike(t, "alice"))
	third := f.strike(t, "alice")
	require.NotNil(t, third)
	assert.True(t, third.IsPermanent())

	n, err := f.svc.CountStrikes(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	n, err = f.svc.CountPenalties(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Strikes of other users never count towards alice's groups
	assert.Nil(t, f.strike(t, "bob"))
	n, err = f.svc.CountPenalties(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPenaltyNotifiesUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.strike(t, "alice")
	f.strike(t, "alice")
	p := f.strike(t, "alice")
	require.NotNil(t, p)

	list, err := f.sink.List(ctx, "alice", false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, notification.TitlePenalty, list[0].Title)
	assert.Equal(t, models.PenaltyTarget(p.ID), list[0].Target())
	assert.Equal(t, "Hi alice, you can not reserve books until 31-01-2025.", *list[0].Message)
}

func TestGetPenaltyListsItsStrikes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.strike(t, "alice")
	f.strike(t, "alice")
	p := f.strike(t, "alice")
	require.NotNil(t, p)

	got, err := f.svc.GetPenalty(ctx, "alice", p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.Penalty.ID)
	require.Len(t, got.Strikes, 3)
	for _, s := range got.Strikes {
		require.NotNil(t, s.Reservation)
		assert.Equal(t, "alice", s.Reservation.UserRef)
	}

	_, err = f.svc.GetPenalty(ctx, "bob", p.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	strikes, err := f.svc.ListStrikes(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, strikes, 3)

	strike, err := f.svc.GetStrike(ctx, strikes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, strikes[0].ReservationID, strike.Reservation.ID)

	_, err = f.svc.GetStrike(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestActivePenalty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active, err := f.svc.ActivePenalty(ctx, nil, "alice")
	require.NoError(t, err)
	assert.Nil(t, active)

	f.strike(t, "alice")
	f.strike(t, "alice")
	p := f.strike(t, "alice")

	active, err = f.svc.ActivePenalty(ctx, nil, "alice")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, p.ID, active.ID)
}

func TestCompletePenalties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.strike(t, "alice")
	f.strike(t, "alice")
	p := f.strike(t, "alice")
	require.NotNil(t, p)

	// The last penalized day is not yet due
	f.clock.Set(p.EndDate.Time().Add(12 * time.Hour))
	result := f.svc.CompletePenalties(ctx)
	assert.True(t, result.OK)
	assert.Equal(t, 0, result.Processed)

	f.clock.AdvanceDays(1)
	result = f.svc.CompletePenalties(ctx)
	assert.True(t, result.OK)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, SweepCompletePenalties, result.Job)

	got, err := f.svc.GetPenaltyByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Complete)

	active, err := f.svc.ActivePenalty(ctx, nil, "alice")
	require.NoError(t, err)
	assert.Nil(t, active)

	list, err := f.sink.List(ctx, "alice", false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, notification.TitlePenaltyEnded, list[0].Title)

	// Running again finds nothing
	result = f.svc.CompletePenalties(ctx)
	assert.Equal(t, 0, result.Processed)
}

func TestPermanentPenaltyIsNeverCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		f.strike(t, "alice")
		f.clock.AdvanceDays(1)
	}
	f.clock.AdvanceDays(400)
	f.svc.CompletePenalties(ctx)

	active, err := f.svc.ActivePenalty(ctx, nil, "alice")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.True(t, active.IsPermanent())
}
