package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"prreview/internal/config"
	"prreview/internal/model"
	"prreview/internal/queue"
	"prreview/internal/store"
)

// Executor runs a single review job to a terminal state.
type Executor interface {
	Run(ctx context.Context, job model.Job) error
}

// Runner is responsible for pulling jobs off the queue and dispatching
// them to the executor. It encapsulates concurrency limits, polling
// intervals, and periodic retention cleanup.
type Runner struct {
	cfg    *config.Config
	queue  queue.Queue
	store  store.JobStore
	exec   Executor
	logger *slog.Logger

	wg sync.WaitGroup
}

// NewRunner constructs a Runner with the given configuration, queue, store
// and executor.
func NewRunner(cfg *config.Config, q queue.Queue, st store.JobStore, exec Executor, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		queue:  q,
		store:  st,
		exec:   exec,
		logger: logger,
	}
}

func (r *Runner) logError(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Error(msg, args...)
	}
}

// Start launches the worker loop in the current goroutine. It returns once
// ctx is cancelled and every job it already claimed has finished. Callers
// typically run this in its own goroutine and keep the process alive.
func (r *Runner) Start(ctx context.Context) {
	pollInterval := time.Duration(r.cfg.Worker.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	maxJobs := r.cfg.Worker.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 4
	}

	var lastCleanup time.Time
	cleanupInterval := time.Duration(r.cfg.Retention.CleanupIntervalMinutes) * time.Minute
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}

	sem := make(chan struct{}, maxJobs)
	defer r.wg.Wait()

	for {
		// Periodically run TTL cleanup for stores without native expiry.
		if r.cfg.Retention.Enabled {
			now := time.Now().UTC()
			if lastCleanup.IsZero() || now.Sub(lastCleanup) >= cleanupInterval {
				_ = CleanupExpiredData(ctx, r.cfg, r.store)
				lastCleanup = now
			}
		}

		// Wait for a free slot before taking a job off the queue.
		select {
		case <-ctx.Done():
			return
		case sem <- struct{}{}:
		}

		job, ok, err := r.queue.Dequeue(ctx, pollInterval)
		if err != nil || !ok {
			<-sem
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				r.logError("dequeue_failed", "error", err)
				sleep(ctx, pollInterval)
			}
			continue
		}

		r.wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer r.wg.Done()
			// A claimed job runs to a terminal state even during shutdown.
			if err := r.exec.Run(context.WithoutCancel(ctx), job); err != nil {
				r.logError("review_job_error", "job_id", job.ID, "error", err)
			}
		}()
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
