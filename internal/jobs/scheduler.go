package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hayzedd/internal/metrics"
)

type scheduledJob struct {
	job      Job
	interval time.Duration
}

// Scheduler is responsible for running background jobs
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	jobs      []scheduledJob
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// Jobs share the single SQLite writer, so only one runs at a time.
	processingMutex sync.Mutex
	isProcessing    bool
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds job to run every interval. Jobs registered after Start are
// not picked up.
func (s *Scheduler) Register(job Job, interval time.Duration) {
	if interval <= 0 {
		s.logger.Warn("Ignoring job with non-positive interval", slog.String("job", job.Name()))
		return
	}
	s.jobs = append(s.jobs, scheduledJob{job: job, interval: interval})
}

// executeJobSafely runs a job only if no other job is currently executing.
// It reports whether the job ran.
func (s *Scheduler) executeJobSafely(job Job) (ran bool) {
	name := job.Name()

	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", name))
		s.processingMutex.Unlock()
		metrics.JobRuns.WithLabelValues(name, "skipped").Inc()
		return false
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	status := "success"
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", name),
				slog.Any("panic", r))
			status = "panic"
		}
		metrics.JobRuns.WithLabelValues(name, status).Inc()

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	start := time.Now()
	if err := job.Run(s.ctx); err != nil {
		status = "error"
		s.logger.Error("Error executing job", slog.String("job", name), slog.Any("error", err))
		return true
	}
	s.logger.Debug("Job finished", slog.String("job", name), slog.Duration("took", time.Since(start)))
	return true
}

// Start begins all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("scheduler was stopped and cannot be restarted")
	}

	s.logger.Info("Starting background jobs...", slog.Int("jobs", len(s.jobs)))
	s.isRunning = true
	for _, sj := range s.jobs {
		s.wg.Add(1)
		go s.loop(sj)
	}
	return nil
}

func (s *Scheduler) loop(sj scheduledJob) {
	defer s.wg.Done()

	name := sj.job.Name()
	s.logger.Info("Starting job", slog.String("job", name), slog.Duration("interval", sj.interval))
	ticker := time.NewTicker(sj.interval)
	defer ticker.Stop()

	s.executeJobSafely(sj.job)
	for {
		select {
		case <-ticker.C:
			s.executeJobSafely(sj.job)
		case <-s.ctx.Done():
			s.logger.Info("Job stopped", slog.String("job", name))
			return
		}
	}
}

// Stop halts all background jobs and waits for running ones to return.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// RunNow executes the named job once, outside its schedule. It returns false
// when no job has that name or another job is running.
func (s *Scheduler) RunNow(name string) bool {
	for _, sj := range s.jobs {
		if sj.job.Name() == name {
			return s.executeJobSafely(sj.job)
		}
	}
	return false
}
