// Package analytics answers the read-side queries over sessions, page views
// and events.
//
// The package is organized into focused files:
//   - stats.go: period overview and top-N breakdowns
//   - visitors.go: paginated visitor list
//   - detail.go: per-visitor detail bundle and its derived stats
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hayzedd/internal/metrics"
	"hayzedd/internal/pkg/async"
)

// ErrVisitorNotFound is returned when a visitor id has no sessions.
var ErrVisitorNotFound = errors.New("visitor not found")

// Breakdown caps.
const (
	TopLimit           = 10
	DefaultPageSize    = 20
	MaxPageSize        = 100
	PageBounceCutoffMs = 30000
)

// MetricCountResult represents a generic key-count pair for query results
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// queryPool runs the independent queries of one request concurrently.
// SQLite readers do not block each other under WAL.
var queryPool = async.NewPool(4)

// timedTask wraps fn so its duration lands in the stats histogram.
func timedTask[T any](name string, fn func(ctx context.Context) (T, error)) async.Task {
	return async.Task{
		Name: name,
		Execute: func(ctx context.Context) (any, error) {
			start := time.Now()
			defer func() {
				metrics.StatsQueryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
			}()
			return fn(ctx)
		},
	}
}

// collect returns the typed result of task name, or its error.
func collect[T any](results map[string]async.Result, name string) (T, error) {
	var zero T
	result, ok := results[name]
	if !ok {
		return zero, fmt.Errorf("query %s did not run", name)
	}
	if result.Err != nil {
		return zero, fmt.Errorf("query %s: %w", name, result.Err)
	}
	value, ok := result.Data.(T)
	if !ok {
		return zero, fmt.Errorf("query %s returned %T", name, result.Data)
	}
	return value, nil
}

// percent returns part/total*100, or 0 when total is 0.
func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
