package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunnerConfig() RunnerConfig {
	cfg := DefaultRunnerConfig()
	cfg.WorkerCount = 1
	cfg.QueueSize = 10
	cfg.RetryDelay = 10 * time.Millisecond
	return cfg
}

func TestRunner_Submit(t *testing.T) {
	t.Parallel()

	t.Run("saves pending record and queues", func(t *testing.T) {
		t.Parallel()
		st := newMemoryStore()
		r := NewRunner(st, testRunnerConfig(), discardLogger())
		j := newTestJob(nil)

		require.NoError(t, r.Submit(context.Background(), j))

		rec := st.get(j.ID())
		assert.Equal(t, StatusPending, rec.Status)
		assert.Equal(t, 0, rec.Attempts)
		assert.Equal(t, 3, rec.MaxAttempts)
		assert.Equal(t, "test", rec.Type)
		assert.Equal(t, 1, r.queue.Len())
	})

	t.Run("queue full keeps record pending", func(t *testing.T) {
		t.Parallel()
		st := newMemoryStore()
		cfg := testRunnerConfig()
		cfg.QueueSize = 1
		r := NewRunner(st, cfg, discardLogger())

		require.NoError(t, r.Submit(context.Background(), newTestJob(nil)))
		second := newTestJob(nil)
		err := r.Submit(context.Background(), second)

		assert.ErrorIs(t, err, ErrQueueFull)
		assert.Contains(t, err.Error(), "queue is full")
		assert.Equal(t, StatusPending, st.get(second.ID()).Status)
	})

	t.Run("store error", func(t *testing.T) {
		t.Parallel()
		st := newMemoryStore()
		st.SaveErr = errors.New("mock store error")
		r := NewRunner(st, testRunnerConfig(), discardLogger())

		err := r.Submit(context.Background(), newTestJob(nil))

		assert.ErrorContains(t, err, "failed to save job")
		assert.Equal(t, 0, r.queue.Len())
	})
}

func TestRunner_Execution(t *testing.T) {
	t.Parallel()

	t.Run("successful job completes", func(t *testing.T) {
		t.Parallel()
		st := newMemoryStore()
		r := NewRunner(st, testRunnerConfig(), discardLogger())
		require.NoError(t, r.Start())
		defer r.Stop()

		j := newTestJob(nil)
		require.NoError(t, r.Submit(context.Background(), j))

		require.Eventually(t, func() bool {
			return st.get(j.ID()).Status == StatusCompleted
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, 1, st.get(j.ID()).Attempts)
	})

	t.Run("failing job is retried exactly max attempts times", func(t *testing.T) {
		t.Parallel()
		st := newMemoryStore()
		r := NewRunner(st, testRunnerConfig(), discardLogger())

		var mu sync.Mutex
		var attemptTimes []time.Time
		var handled error
		r.SetErrorHandler(func(job Job, err error) {
			mu.Lock()
			handled = err
			mu.Unlock()
		})
		require.NoError(t, r.Start())
		defer r.Stop()

		jobErr := errors.New("upstream down")
		j := newTestJob(func(ctx context.Context, attempt int) error {
			mu.Lock()
			attemptTimes = append(attemptTimes, time.Now())
			mu.Unlock()
			return jobErr
		})
		require.NoError(t, r.Submit(context.Background(), j))

		require.Eventually(t, func() bool {
			return st.get(j.ID()).Status == StatusFailed
		}, 2*time.Second, 5*time.Millisecond)

		// No further attempts after exhaustion
		time.Sleep(50 * time.Millisecond)

		rec := st.get(j.ID())
		assert.Equal(t, 3, rec.Attempts)
		assert.Equal(t, "upstream down", rec.LastError)
		assert.Equal(t, int32(3), j.calls.Load())

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, jobErr, handled)
		require.Len(t, attemptTimes, 3)
		for i := 1; i < len(attemptTimes); i++ {
			assert.GreaterOrEqual(t, attemptTimes[i].Sub(attemptTimes[i-1]), 10*time.Millisecond)
		}
	})

	t.Run("job recovers on a later attempt", func(t *testing.T) {
		t.Parallel()
		st := newMemoryStore()
		r := NewRunner(st, testRunnerConfig(), discardLogger())
		require.NoError(t, r.Start())
		defer r.Stop()

		j := newTestJob(func(ctx context.Context, attempt int) error {
			if attempt < 2 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, r.Submit(context.Background(), j))

		require.Eventually(t, func() bool {
			return st.get(j.ID()).Status == StatusCompleted
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, 2, st.get(j.ID()).Attempts)
	})

	t.Run("job timeout cancels the attempt context", func(t *testing.T) {
		t.Parallel()
		st := newMemoryStore()
		cfg := testRunnerConfig()
		cfg.MaxAttempts = 1
		cfg.JobTimeout = 20 * time.Millisecond
		r := NewRunner(st, cfg, discardLogger())
		require.NoError(t, r.Start())
		defer r.Stop()

		j := newTestJob(func(ctx context.Context, attempt int) error {
			<-ctx.Done()
			return ctx.Err()
		})
		require.NoError(t, r.Submit(context.Background(), j))

		require.Eventually(t, func() bool {
			return st.get(j.ID()).Status == StatusFailed
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, context.DeadlineExceeded.Error(), st.get(j.ID()).LastError)
	})
}

func TestRunner_Recover(t *testing.T) {
	t.Parallel()

	st := newMemoryStore()
	now := time.Now().UTC()
	pendingID, processingID, unknownID := uuid.New(), uuid.New(), uuid.New()
	for _, rec := range []*Record{
		{ID: pendingID, Type: "test", Status: StatusPending, MaxAttempts: 3, CreatedAt: now, UpdatedAt: now},
		{ID: processingID, Type: "test", Status: StatusProcessing, Attempts: 1, MaxAttempts: 3, CreatedAt: now, UpdatedAt: now},
		{ID: unknownID, Type: "mystery", Status: StatusPending, MaxAttempts: 3, CreatedAt: now, UpdatedAt: now},
		{ID: uuid.New(), Type: "test", Status: StatusCompleted, MaxAttempts: 3, CreatedAt: now, UpdatedAt: now},
	} {
		require.NoError(t, st.SaveJob(context.Background(), rec))
	}

	r := NewRunner(st, testRunnerConfig(), discardLogger())
	r.RegisterFactory(testFactory{build: func(rec *Record) (Job, error) {
		j := newTestJob(nil)
		j.id = rec.ID
		return j, nil
	}})

	require.NoError(t, r.Start())
	defer r.Stop()

	require.Eventually(t, func() bool {
		return st.get(pendingID).Status == StatusCompleted &&
			st.get(processingID).Status == StatusCompleted
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, st.get(processingID).Attempts)
	unknown := st.get(unknownID)
	assert.Equal(t, StatusFailed, unknown.Status)
	assert.Contains(t, unknown.LastError, "no factory registered")
}

func TestRunner_ResetStuckJobs(t *testing.T) {
	t.Parallel()

	st := newMemoryStore()
	old := time.Now().Add(-time.Hour)
	stuckID := uuid.New()
	require.NoError(t, st.SaveJob(context.Background(), &Record{
		ID: stuckID, Type: "test", Status: StatusProcessing, Attempts: 1, MaxAttempts: 3, CreatedAt: old, UpdatedAt: old,
	}))

	cfg := testRunnerConfig()
	cfg.StuckJobAge = 30 * time.Minute
	r := NewRunner(st, cfg, discardLogger())
	r.RegisterFactory(testFactory{build: func(rec *Record) (Job, error) {
		j := newTestJob(nil)
		j.id = rec.ID
		return j, nil
	}})

	r.resetStuckJobs(context.Background())

	rec := st.get(stuckID)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, 1, r.queue.Len())
}

func TestRunner_StartAttemptSkipsNonPending(t *testing.T) {
	t.Parallel()

	st := newMemoryStore()
	r := NewRunner(st, testRunnerConfig(), discardLogger())
	j := newTestJob(nil)
	require.NoError(t, r.Submit(context.Background(), j))
	require.NoError(t, st.UpdateJobStatus(context.Background(), j.ID(), StatusCompleted, ""))

	r.process(context.Background(), j, 0)

	assert.Equal(t, int32(0), j.calls.Load())
}

func TestRunner_RequeuesJobsDroppedByFullQueue(t *testing.T) {
	t.Parallel()

	st := newMemoryStore()
	cfg := testRunnerConfig()
	cfg.QueueSize = 1
	cfg.StuckJobCheckInterval = 20 * time.Millisecond
	r := NewRunner(st, cfg, discardLogger())

	var mu sync.Mutex
	jobs := make(map[uuid.UUID]*testJob)
	r.RegisterFactory(testFactory{build: func(rec *Record) (Job, error) {
		mu.Lock()
		defer mu.Unlock()
		return jobs[rec.ID], nil
	}})
	track := func(j *testJob) *testJob {
		mu.Lock()
		jobs[j.ID()] = j
		mu.Unlock()
		return j
	}

	require.NoError(t, r.Start())
	defer r.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	blocker := track(newTestJob(func(ctx context.Context, attempt int) error {
		close(started)
		<-release
		return nil
	}))
	require.NoError(t, r.Submit(context.Background(), blocker))
	<-started

	queued := track(newTestJob(nil))
	require.NoError(t, r.Submit(context.Background(), queued))

	dropped := track(newTestJob(nil))
	require.ErrorIs(t, r.Submit(context.Background(), dropped), ErrQueueFull)
	assert.Equal(t, StatusPending, st.get(dropped.ID()).Status)

	close(release)

	require.Eventually(t, func() bool {
		return st.get(dropped.ID()).Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), dropped.calls.Load())
	assert.Equal(t, int32(1), queued.calls.Load())
}

func TestRunner_RequeueOrphanedJobsSkipsTrackedAndFutureJobs(t *testing.T) {
	t.Parallel()

	st := newMemoryStore()
	r := NewRunner(st, testRunnerConfig(), discardLogger())
	r.RegisterFactory(testFactory{build: func(rec *Record) (Job, error) {
		j := newTestJob(nil)
		j.id = rec.ID
		return j, nil
	}})

	inQueue := newTestJob(nil)
	require.NoError(t, r.Submit(context.Background(), inQueue))

	now := time.Now().UTC()
	orphanID, laterID := uuid.New(), uuid.New()
	require.NoError(t, st.SaveJob(context.Background(), &Record{
		ID: orphanID, Type: "test", Status: StatusPending, MaxAttempts: 3, RunAfter: now.Add(-time.Second), CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, st.SaveJob(context.Background(), &Record{
		ID: laterID, Type: "test", Status: StatusPending, MaxAttempts: 3, RunAfter: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
	}))

	r.requeueOrphanedJobs(context.Background())
	assert.Equal(t, 2, r.queue.Len())

	r.requeueOrphanedJobs(context.Background())
	assert.Equal(t, 2, r.queue.Len(), "jobs already queued are not added twice")
}
