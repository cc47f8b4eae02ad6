package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hayzedd/internal/pkg/async"
)

func TestPoolExecute(t *testing.T) {
	t.Run("collects every result by name", func(t *testing.T) {
		pool := async.NewPool(2)
		boom := errors.New("boom")

		results := pool.Execute(context.Background(), []async.Task{
			{Name: "one", Execute: func(context.Context) (any, error) { return 1, nil }},
			{Name: "two", Execute: func(context.Context) (any, error) { return "two", nil }},
			{Name: "fail", Execute: func(context.Context) (any, error) { return nil, boom }},
		})

		require.Len(t, results, 3)
		assert.Equal(t, 1, results["one"].Data)
		assert.Equal(t, "two", results["two"].Data)
		assert.ErrorIs(t, results["fail"].Err, boom)
	})

	t.Run("never exceeds the worker count", func(t *testing.T) {
		pool := async.NewPool(2)
		var running, peak atomic.Int32

		tasks := make([]async.Task, 6)
		for i := range tasks {
			tasks[i] = async.Task{Name: string(rune('a' + i)), Execute: func(context.Context) (any, error) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil, nil
			}}
		}

		results := pool.Execute(context.Background(), tasks)
		assert.Len(t, results, 6)
		assert.LessOrEqual(t, peak.Load(), int32(2))
	})

	t.Run("panics become errors", func(t *testing.T) {
		results := async.NewPool(1).Execute(context.Background(), []async.Task{
			{Name: "panic", Execute: func(context.Context) (any, error) { panic("bad query") }},
		})
		require.Error(t, results["panic"].Err)
		assert.Contains(t, results["panic"].Err.Error(), "bad query")
	})

	t.Run("cancelled context reports unfinished tasks", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		results := async.NewPool(1).Execute(ctx, []async.Task{
			{Name: "slow", Execute: func(ctx context.Context) (any, error) {
				<-ctx.Done()
				time.Sleep(5 * time.Millisecond)
				return nil, ctx.Err()
			}},
		})
		assert.ErrorIs(t, results["slow"].Err, context.DeadlineExceeded)
	})

	t.Run("empty task list", func(t *testing.T) {
		assert.Empty(t, async.NewPool(3).Execute(context.Background(), nil))
	})
}
