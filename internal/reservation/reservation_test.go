package reservation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/library-reservations/backend/internal/apperr"
	"github.com/library-reservations/backend/internal/clock"
	"github.com/library-reservations/backend/internal/credit"
	"github.com/library-reservations/backend/internal/notification"
	"github.com/library-reservations/backend/internal/penalty"
	"github.com/library-reservations/backend/internal/storage"
	"github.com/library-reservations/backend/internal/storage/models"
	"github.com/library-reservations/backend/internal/storage/storagetest"
)

type env struct {
	db        *storage.DB
	clock     *clock.Fixed
	svc       *Service
	penalties *penalty.Service
	credits   *credit.Service
	sink      *notification.Sink
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := storagetest.NewDB(t)
	storagetest.AddUsers(t, db, "alice", "bob")
	storagetest.AddBooks(t, db, "dune", "emma")

	clk := clock.NewFixed(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	sink := notification.NewSink(storage.NewNotificationRepository(db), nil)
	credits := credit.NewService(storage.NewCreditRepository(db))
	penalties := penalty.NewService(db, sink, clk, nil)

	return &env{
		db:        db,
		clock:     clk,
		svc:       NewService(db, penalties, credits, sink, clk, nil),
		penalties: penalties,
		credits:   credits,
		sink:      sink,
	}
}

func (e *env) today() models.Date {
	return models.DateOf(e.clock.Now())
}

func (e *env) create(t *testing.T, user, book string, startOffset, endOffset int) *models.Reservation {
	t.Helper()
	res, err := e.svc.Create(context.Background(), user, CreateInput{
		BookRef:   book,
		StartDate: e.today().AddDays(startOffset),
		EndDate:   e.today().AddDays(endOffset),
	})
	require.NoError(t, err)
	return res
}

func (e *env) reload(t *testing.T, id string) *models.Reservation {
	t.Helper()
	res, err := e.svc.GetByID(context.Background(), id)
	require.NoError(t, err)
	return res
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), err.Error())
}

func TestCreateComputesPrice(t *testing.T) {
	e := newEnv(t)

	res := e.create(t, "alice", "dune", 5, 10)
	assert.Equal(t, models.ReservationConfirmed, res.Status)
	assert.Equal(t, "12.00", res.InitialPrice.StringFixed(2))
	assert.NotEmpty(t, res.ID)

	stored := e.reload(t, res.ID)
	assert.True(t, stored.InitialPrice.Equal(decimal.NewFromInt(12)))
}

func TestCreateValidatesInput(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	today := e.today()

	cases := []struct {
		name  string
		in    CreateInput
		kind  apperr.Kind
		field string
	}{
		{"past start", CreateInput{BookRef: "dune", StartDate: today.AddDays(-1), EndDate: today.AddDays(2)}, apperr.KindValidation, "start_date"},
		{"same day", CreateInput{BookRef: "dune", StartDate: today, EndDate: today}, apperr.KindValidation, "end_date"},
		{"end before start", CreateInput{BookRef: "dune", StartDate: today.AddDays(3), EndDate: today.AddDays(1)}, apperr.KindValidation, "end_date"},
		{"missing start", CreateInput{BookRef: "dune", EndDate: today.AddDays(1)}, apperr.KindValidation, "start_date"},
		{"missing book", CreateInput{StartDate: today, EndDate: today.AddDays(1)}, apperr.KindValidation, "book"},
		{"unknown book", CreateInput{BookRef: "ulysses", StartDate: today, EndDate: today.AddDays(1)}, apperr.KindNotFound, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.svc.Create(ctx, "alice", tc.in)
			requireKind(t, err, tc.kind)

			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.field, appErr.Field)
		})
	}
}

func TestCreateRejectsOverlap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.create(t, "alice", "dune", 2, 6)

	_, err := e.svc.Create(ctx, "bob", CreateInput{BookRef: "dune", StartDate: e.today().AddDays(6), EndDate: e.today().AddDays(9)})
	requireKind(t, err, apperr.KindConflict)

	// Adjacent periods and other books are free
	e.create(t, "bob", "dune", 7, 9)
	e.create(t, "bob", "emma", 2, 6)
}

func TestCanceledReservationFreesPeriod(t *testing.T) {
	e := newEnv(t)

	res := e.create(t, "alice", "dune", 2, 6)
	_, err := e.svc.Cancel(context.Background(), "alice", res.ID)
	require.NoError(t, err)

	e.create(t, "bob", "dune", 2, 6)
}

func TestCreateOnlyRejectsOverlappingPairs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	catalog := storage.NewCatalogRepository(e.db)

	for i := 0; i < 40; i++ {
		book := fmt.Sprintf("book-%d", i)
		require.NoError(t, catalog.UpsertBook(ctx, &models.Book{Slug: book, Title: book}))

		s1 := rng.Intn(20)
		e1 := s1 + 1 + rng.Intn(6)
		s2 := rng.Intn(20)
		e2 := s2 + 1 + rng.Intn(6)

		e.create(t, "alice", book, s1, e1)
		_, err := e.svc.Create(ctx, "bob", CreateInput{
			BookRef:   book,
			StartDate: e.today().AddDays(s2),
			EndDate:   e.today().AddDays(e2),
		})

		overlap := s1 <= e2 && e1 >= s2
		if overlap {
			requireKind(t, err, apperr.KindConflict)
		} else {
			assert.NoError(t, err, "[%d,%d] vs [%d,%d]", s1, e1, s2, e2)
		}
	}
}

func TestConcurrentCreatesAdmitOne(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	const n = 8
	users := make([]string, n)
	for i := range users {
		users[i] = fmt.Sprintf("user-%d", i)
	}
	storagetest.AddUsers(t, e.db, users...)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.Create(ctx, users[i], CreateInput{
				BookRef:   "dune",
				StartDate: e.today().AddDays(1 + i%2),
				EndDate:   e.today().AddDays(4),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err), err.Error())
	}
	assert.Equal(t, 1, succeeded)
}

func TestPenalizedUserCanNotReserve(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, err := e.penalties.Escalator().CreatePenalty(ctx, "alice", e.today())
	require.NoError(t, err)

	_, err = e.svc.Create(ctx, "alice", CreateInput{BookRef: "dune", StartDate: e.today().AddDays(1), EndDate: e.today().AddDays(3)})
	requireKind(t, err, apperr.KindForbidden)
	assert.EqualError(t, err, "You can not reserve a book until "+p.EndDate.Display())
}

func TestCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res := e.create(t, "alice", "dune", 1, 3)

	_, err := e.svc.Cancel(ctx, "bob", res.ID)
	requireKind(t, err, apperr.KindForbidden)

	canceled, err := e.svc.Cancel(ctx, "alice", res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCanceledUser, canceled.Status)

	_, err = e.svc.Cancel(ctx, "alice", res.ID)
	requireKind(t, err, apperr.KindConflict)

	_, err = e.svc.Cancel(ctx, "alice", "missing")
	requireKind(t, err, apperr.KindNotFound)
}

func TestCancelOnceStartedIsForbidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res := e.create(t, "alice", "dune", 0, 3)
	_, err := e.svc.Cancel(ctx, "alice", res.ID)
	requireKind(t, err, apperr.KindForbidden)

	later := e.create(t, "alice", "emma", 1, 3)
	e.clock.AdvanceDays(1)
	_, err = e.svc.Cancel(ctx, "alice", later.ID)
	requireKind(t, err, apperr.KindForbidden)
	assert.Equal(t, models.ReservationConfirmed, e.reload(t, later.ID).Status)
}

func TestPatchRequiresExactlyOneField(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t, "alice", "dune", 0, 3)

	yes, no := true, false
	returned := e.today().AddDays(2)

	_, err := e.svc.Patch(ctx, res.ID, PatchInput{ReturnedDate: &returned, Retired: &yes})
	requireKind(t, err, apperr.KindValidation)

	_, err = e.svc.Patch(ctx, res.ID, PatchInput{})
	requireKind(t, err, apperr.KindValidation)

	_, err = e.svc.Patch(ctx, res.ID, PatchInput{Retired: &no})
	requireKind(t, err, apperr.KindValidation)

	assert.Equal(t, models.ReservationConfirmed, e.reload(t, res.ID).Status)
}

func TestMarkRetiredWindow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	future := e.create(t, "alice", "dune", 2, 4)
	_, err := e.svc.MarkRetired(ctx, future.ID)
	requireKind(t, err, apperr.KindValidation)

	current := e.create(t, "alice", "emma", 0, 2)
	retired, err := e.svc.MarkRetired(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationRetired, retired.Status)

	_, err = e.svc.MarkRetired(ctx, current.ID)
	requireKind(t, err, apperr.KindConflict)

	// On the last day the pickup window has elapsed
	e.clock.AdvanceDays(4)
	_, err = e.svc.MarkRetired(ctx, future.ID)
	requireKind(t, err, apperr.KindValidation)
}

func TestMarkReturnedChargesLateDays(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res := e.create(t, "alice", "dune", 0, 4)
	_, err := e.svc.MarkRetired(ctx, res.ID)
	require.NoError(t, err)

	returned := res.EndDate.AddDays(2)
	done, err := e.svc.Patch(ctx, res.ID, PatchInput{ReturnedDate: &returned})
	require.NoError(t, err)

	assert.Equal(t, models.ReservationCompleted, done.Status)
	assert.Equal(t, "8.00", done.PenaltyPrice.StringFixed(2))
	assert.Equal(t, "18.00", done.FinalPrice.StringFixed(2))

	stored := e.reload(t, res.ID)
	require.NotNil(t, stored.ReturnedDate)
	assert.True(t, stored.ReturnedDate.Equal(returned))
	assert.True(t, stored.FinalPrice.Equal(decimal.NewFromInt(18)))
}

func TestMarkReturnedRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	confirmed := e.create(t, "alice", "dune", 1, 4)
	_, err := e.svc.MarkReturned(ctx, confirmed.ID, e.today().AddDays(2))
	requireKind(t, err, apperr.KindConflict)

	res := e.create(t, "alice", "emma", 0, 4)
	_, err = e.svc.MarkRetired(ctx, res.ID)
	require.NoError(t, err)

	_, err = e.svc.MarkReturned(ctx, res.ID, e.today().AddDays(-1))
	requireKind(t, err, apperr.KindValidation)

	_, err = e.svc.MarkReturned(ctx, res.ID, models.Date{})
	requireKind(t, err, apperr.KindValidation)

	assert.Equal(t, models.ReservationRetired, e.reload(t, res.ID).Status)
}

func TestGetIsScopedToOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.create(t, "alice", "dune", 1, 3)

	got, err := e.svc.Get(ctx, "alice", res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, got.ID)

	_, err = e.svc.Get(ctx, "bob", res.ID)
	requireKind(t, err, apperr.KindNotFound)

	list, err := e.svc.List(ctx, "bob")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestAvailabilityQueries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	periods, err := e.svc.UnavailablePeriods(ctx, "dune")
	require.NoError(t, err)
	assert.NotNil(t, periods)
	assert.Empty(t, periods)

	_, err = e.svc.UnavailablePeriods(ctx, "ulysses")
	requireKind(t, err, apperr.KindNotFound)

	first := e.create(t, "alice", "dune", 1, 3)
	e.create(t, "bob", "dune", 10, 12)
	canceled := e.create(t, "bob", "dune", 20, 22)
	_, err = e.svc.Cancel(ctx, "bob", canceled.ID)
	require.NoError(t, err)

	periods, err = e.svc.UnavailablePeriods(ctx, "dune")
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.True(t, periods[0].StartDate.Equal(e.today().AddDays(10)))
	assert.True(t, periods[1].StartDate.Equal(first.StartDate))

	free, err := e.svc.CheckAvailability(ctx, "dune", e.today().AddDays(3), e.today().AddDays(5))
	require.NoError(t, err)
	assert.False(t, free)

	free, err = e.svc.CheckAvailability(ctx, "dune", e.today().AddDays(4), e.today().AddDays(9))
	require.NoError(t, err)
	assert.True(t, free)

	_, err = e.svc.CheckAvailability(ctx, "dune", e.today().AddDays(4), e.today().AddDays(4))
	requireKind(t, err, apperr.KindValidation)

	conflicts, err := e.svc.Checker().CheckConflicts(ctx, "dune", e.today().AddDays(2), e.today().AddDays(11))
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	assert.True(t, conflicts[0].OverlapStart.Equal(e.today().AddDays(2)))
	assert.True(t, conflicts[0].OverlapEnd.Equal(e.today().AddDays(3)))
	assert.True(t, conflicts[1].OverlapEnd.Equal(e.today().AddDays(11)))
}
