package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/library-reservations/backend/internal/app"
	"github.com/library-reservations/backend/internal/clock"
	"github.com/library-reservations/backend/internal/storage/storagetest"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type testServer struct {
	app    *app.App
	router *mux.Router
	clock  *clock.Fixed
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := storagetest.NewDB(t)
	storagetest.AddUsers(t, db, "alice", "bob")
	storagetest.AddStaff(t, db, "librarian")
	storagetest.AddBooks(t, db, "dune", "emma")

	clk := clock.NewFixed(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	a := app.New(db, clk, nil, app.Options{JobWorkers: 1, JobMaxAttempts: 1})
	a.Queue.Start(context.Background())
	t.Cleanup(a.Queue.Stop)

	return &testServer{app: a, router: NewRouter(a, nil), clock: clk}
}

func (s *testServer) do(t *testing.T, user, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("X-User", user)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details struct {
		Field string `json:"field"`
	} `json:"details"`
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "", http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "", http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdentityIsRequired(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "", http.MethodGet, "/api/reservations", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, "mallory", http.MethodGet, "/api/reservations", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReservationEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "alice", http.MethodPost, "/api/reservations", map[string]string{
		"book": "dune", "start_date": "2025-03-01", "end_date": "2025-03-03",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		InitialPrice string `json:"initial_price"`
	}
	decode(t, rec, &created)
	assert.Equal(t, "confirmed", created.Status)
	assert.Equal(t, "6", created.InitialPrice)

	rec = s.do(t, "bob", http.MethodPost, "/api/reservations", map[string]string{
		"book": "dune", "start_date": "2025-03-03", "end_date": "2025-03-05",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, "bob", http.MethodPost, "/api/reservations", map[string]string{
		"book": "dune", "start_date": "2025-02-27", "end_date": "2025-02-28",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errBody errorBody
	decode(t, rec, &errBody)
	assert.Equal(t, "validation_error", errBody.Error)
	assert.Equal(t, "start_date", errBody.Details.Field)

	rec = s.do(t, "bob", http.MethodPost, "/api/reservations", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "bob", http.MethodGet, "/api/reservations/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, "alice", http.MethodGet, "/api/reservations/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "alice", http.MethodGet, "/api/reservations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	decode(t, rec, &list)
	assert.Len(t, list, 1)

	// Pickup is recorded by staff
	rec = s.do(t, "alice", http.MethodPatch, "/api/reservations/"+created.ID, map[string]bool{"retired": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, "librarian", http.MethodPatch, "/api/reservations/"+created.ID, map[string]any{
		"retired": true, "returned_date": "2025-03-02",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "librarian", http.MethodPatch, "/api/reservations/"+created.ID, map[string]bool{"retired": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &created)
	assert.Equal(t, "retired", created.Status)

	rec = s.do(t, "librarian", http.MethodPatch, "/api/reservations/"+created.ID, map[string]string{"returned_date": "2025-03-05"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var returned struct {
		Status       string `json:"status"`
		PenaltyPrice string `json:"penalty_price"`
		FinalPrice   string `json:"final_price"`
	}
	decode(t, rec, &returned)
	assert.Equal(t, "completed", returned.Status)
	assert.Equal(t, "8", returned.PenaltyPrice)
	assert.Equal(t, "14", returned.FinalPrice)
}

func TestCancelEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "alice", http.MethodPost, "/api/reservations", map[string]string{
		"book": "emma", "start_date": "2025-03-04", "end_date": "2025-03-06",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	decode(t, rec, &created)

	rec = s.do(t, "bob", http.MethodDelete, "/api/reservations/"+created.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, "alice", http.MethodDelete, "/api/reservations/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "alice", http.MethodDelete, "/api/reservations/"+created.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAvailabilityEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "alice", http.MethodPost, "/api/reservations", map[string]string{
		"book": "dune", "start_date": "2025-03-02", "end_date": "2025-03-04",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, "bob", http.MethodGet, "/api/books/dune/availability?start_date=2025-03-04&end_date=2025-03-06", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var availability struct {
		Available bool `json:"available"`
	}
	decode(t, rec, &availability)
	assert.False(t, availability.Available)

	rec = s.do(t, "bob", http.MethodGet, "/api/books/dune/availability?start_date=2025-03-04", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "bob", http.MethodGet, "/api/books/dune/unavailable-periods", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var periods []map[string]string
	decode(t, rec, &periods)
	require.Len(t, periods, 1)
	assert.Equal(t, "2025-03-02", periods[0]["start_date"])

	rec = s.do(t, "bob", http.MethodGet, "/api/books/ulysses/unavailable-periods", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreditEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "alice", http.MethodGet, "/api/credits", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance struct {
		Amount int `json:"amount"`
	}
	decode(t, rec, &balance)
	assert.Equal(t, 0, balance.Amount)

	_, err := s.app.Credits.Compensate(context.Background(), "alice")
	require.NoError(t, err)

	rec = s.do(t, "alice", http.MethodPatch, "/api/credits/subtract", map[string]any{"subtract": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, "librarian", http.MethodPatch, "/api/credits/subtract", map[string]any{"subtract": 5, "user": "alice"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errBody errorBody
	decode(t, rec, &errBody)
	assert.Equal(t, "not enough credits", errBody.Message)

	rec = s.do(t, "librarian", http.MethodPatch, "/api/credits/subtract", map[string]any{"subtract": 3, "user": "alice"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = s.do(t, "librarian", http.MethodPatch, "/api/credits/subtract", map[string]any{"subtract": 1, "user": "nobody"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, "alice", http.MethodGet, "/api/credits", nil)
	decode(t, rec, &balance)
	assert.Equal(t, 1, balance.Amount)
}

func TestSweepAndNotificationEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "alice", http.MethodPost, "/api/reservations", map[string]string{
		"book": "dune", "start_date": "2025-03-02", "end_date": "2025-03-04",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, "alice", http.MethodGet, "/api/sweeps", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, "librarian", http.MethodGet, "/api/sweeps", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sweeps []map[string]any
	decode(t, rec, &sweeps)
	assert.Len(t, sweeps, 4)

	rec = s.do(t, "librarian", http.MethodPost, "/api/sweeps/sweep.unknown/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.clock.AdvanceDays(1)
	rec = s.do(t, "librarian", http.MethodPost, "/api/sweeps/sweep.confirmed_to_available/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		OK        bool `json:"ok"`
		Processed int  `json:"processed"`
	}
	decode(t, rec, &result)
	assert.True(t, result.OK)
	assert.Equal(t, 1, result.Processed)

	rec = s.do(t, "alice", http.MethodGet, "/api/notifications/unread-count", nil)
	var count struct {
		Count int `json:"count"`
	}
	decode(t, rec, &count)
	assert.Equal(t, 1, count.Count)

	rec = s.do(t, "alice", http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notifications []struct {
		ID     string         `json:"id"`
		Type   string         `json:"type"`
		Object map[string]any `json:"object"`
	}
	decode(t, rec, &notifications)
	require.Len(t, notifications, 1)
	assert.Equal(t, "reservation", notifications[0].Type)
	assert.Equal(t, "available", notifications[0].Object["status"])

	rec = s.do(t, "bob", http.MethodGet, "/api/notifications/"+notifications[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Listing marks them read shortly after
	assert.Eventually(t, func() bool {
		n, err := s.app.Notifications.CountUnread(context.Background(), "alice")
		return err == nil && n == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestPenaltyAndFavoriteEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "alice", http.MethodGet, "/api/penalties", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "alice", http.MethodGet, "/api/penalties/count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count struct {
		Count int `json:"count"`
	}
	decode(t, rec, &count)
	assert.Equal(t, 0, count.Count)

	rec = s.do(t, "alice", http.MethodGet, "/api/strikes/count", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "alice", http.MethodGet, "/api/penalties/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, "alice", http.MethodPost, "/api/favorites", map[string]string{"book": "dune"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, "alice", http.MethodPost, "/api/favorites", map[string]string{"book": "dune"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, "alice", http.MethodDelete, "/api/favorites/dune", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
