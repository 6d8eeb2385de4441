package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/library-reservations/backend/internal/apperr"
	"github.com/library-reservations/backend/internal/jobs"
	"github.com/library-reservations/backend/internal/storage/models"
)

type recordingSubmitter struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingSubmitter) Submit(ctx context.Context, name string, payload any, delay time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return nil
}

func (r *recordingSubmitter) submitted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func TestSchedulerSubmitsOnSchedule(t *testing.T) {
	sub := &recordingSubmitter{}
	s := NewSweepScheduler(sub, time.UTC, []Schedule{{Name: "sweep.test", Spec: "* * * * * *"}})
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.False(t, s.NextRun("sweep.test").IsZero())
	assert.True(t, s.NextRun("missing").IsZero())

	assert.Eventually(t, func() bool {
		return len(sub.submitted()) > 0
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, "sweep.test", sub.submitted()[0])
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewSweepScheduler(&recordingSubmitter{}, nil, []Schedule{{Name: "sweep.bad", Spec: "every day"}})
	assert.Error(t, s.Start())
}

func TestRunnerRun(t *testing.T) {
	q := jobs.NewQueue(1, 1)
	r := NewRunner(q)
	r.Add("sweep.b", func(ctx context.Context) *models.SweepResult {
		return models.NewSweepResult("sweep.b", time.Now())
	})
	r.Add("sweep.a", func(ctx context.Context) *models.SweepResult {
		res := models.NewSweepResult("sweep.a", time.Now())
		res.Processed = 2
		return res
	})

	assert.Equal(t, []string{"sweep.a", "sweep.b"}, r.Names())

	result, err := r.Run(context.Background(), "sweep.a")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 2, result.Processed)

	_, err = r.Run(context.Background(), "sweep.missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestRunnerJobHandler(t *testing.T) {
	q := jobs.NewQueue(1, 1)
	r := NewRunner(q)

	ran := make(chan struct{}, 1)
	r.Add("sweep.queued", func(ctx context.Context) *models.SweepResult {
		ran <- struct{}{}
		res := models.NewSweepResult("sweep.queued", time.Now())
		res.Fail("r1", assert.AnError)
		return res
	})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Submit(context.Background(), "sweep.queued", nil, 0))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep was not run by the queue")
	}
}
