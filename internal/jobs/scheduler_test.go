package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hayzedd/internal/jobs"
	"hayzedd/internal/testsupport"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.run(ctx) }

func TestScheduler(t *testing.T) {
	logger := testsupport.GetLogger()

	t.Run("recovers from panics and errors", func(t *testing.T) {
		s := jobs.NewScheduler(logger)
		s.Register(funcJob{name: "panics", run: func(context.Context) error { panic("boom") }}, time.Hour)
		s.Register(funcJob{name: "fails", run: func(context.Context) error { return errors.New("nope") }}, time.Hour)

		assert.NotPanics(t, func() { assert.True(t, s.RunNow("panics")) })
		assert.True(t, s.RunNow("fails"))
		assert.False(t, s.RunNow("missing"))
	})

	t.Run("never overlaps jobs", func(t *testing.T) {
		s := jobs.NewScheduler(logger)
		release := make(chan struct{})
		started := make(chan struct{})
		s.Register(funcJob{name: "slow", run: func(context.Context) error {
			close(started)
			<-release
			return nil
		}}, time.Hour)
		s.Register(funcJob{name: "quick", run: func(context.Context) error { return nil }}, time.Hour)

		done := make(chan bool)
		go func() { done <- s.RunNow("slow") }()
		<-started

		assert.False(t, s.RunNow("quick"))
		close(release)
		assert.True(t, <-done)
		assert.True(t, s.RunNow("quick"))
	})

	t.Run("ticks until stopped", func(t *testing.T) {
		s := jobs.NewScheduler(logger)
		var runs atomic.Int32
		s.Register(funcJob{name: "tick", run: func(context.Context) error {
			runs.Add(1)
			return nil
		}}, 10*time.Millisecond)

		require.NoError(t, s.Start())
		assert.True(t, s.IsRunning())
		assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

		s.Stop()
		assert.False(t, s.IsRunning())
		stoppedAt := runs.Load()
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, stoppedAt, runs.Load())

		assert.Error(t, s.Start())
	})

	t.Run("stop cancels the running job's context", func(t *testing.T) {
		s := jobs.NewScheduler(logger)
		cancelled := make(chan struct{})
		s.Register(funcJob{name: "waits", run: func(ctx context.Context) error {
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		}}, time.Hour)

		require.NoError(t, s.Start())
		time.Sleep(10 * time.Millisecond)
		s.Stop()

		select {
		case <-cancelled:
		case <-time.After(time.Second):
			t.Fatal("job context was not cancelled")
		}
	})
}
