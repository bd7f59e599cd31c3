package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nukevideo/nukevideo/internal/config"
	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/nukevideo/nukevideo/internal/repository"
)

// errNoJobs signals an empty queue so the worker loop can back off.
var errNoJobs = errors.New("no jobs available")

// staleRecoveryInterval is how often running jobs with expired locks are
// returned to the queue.
const staleRecoveryInterval = 5 * time.Minute

// Runner polls the job queue with a pool of workers and hands acquired
// jobs to the executor.
type Runner struct {
	jobs     repository.JobRepository
	executor *Executor
	logger   *slog.Logger

	workerCount  int
	pollInterval time.Duration
	lockTimeout  time.Duration
	cleanupAge   time.Duration
	workerID     string

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner creates a Runner for the given workflow configuration.
func NewRunner(jobs repository.JobRepository, executor *Executor, cfg config.WorkflowConfig, nodeName string) *Runner {
	return &Runner{
		jobs:         jobs,
		executor:     executor,
		logger:       slog.Default(),
		workerCount:  cfg.WorkerCount,
		pollInterval: cfg.PollInterval,
		lockTimeout:  cfg.LockTimeout,
		cleanupAge:   cfg.CleanupAge,
		workerID:     fmt.Sprintf("%s-%d", nodeName, time.Now().UnixNano()),
	}
}

// WithLogger sets the logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// Start launches the worker pool and the stale lock recovery loop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("runner already started")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.running = true

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.workerLoop(fmt.Sprintf("%s-%d", r.workerID, i))
	}

	r.wg.Add(1)
	go r.recoveryLoop()

	r.logger.Info("workflow runner started",
		slog.Int("workers", r.workerCount),
		slog.Duration("poll_interval", r.pollInterval),
	)
	return nil
}

// Stop cancels all loops and waits for in-flight jobs to settle.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("workflow runner stopped")
}

func (r *Runner) workerLoop(workerID string) {
	defer r.wg.Done()
	log := r.logger.With(slog.String("worker_id", workerID))

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		err := r.processNext(r.ctx, workerID, log)
		if err == nil {
			continue
		}
		if !errors.Is(err, errNoJobs) {
			log.Error("job processing failed", slog.String("error", err.Error()))
		}

		select {
		case <-r.ctx.Done():
			return
		case <-time.After(r.pollInterval):
		}
	}
}

// processNext acquires and runs one job. The job row carries the outcome;
// an executor error only fails the job, not the loop.
func (r *Runner) processNext(ctx context.Context, workerID string, log *slog.Logger) error {
	job, err := r.jobs.AcquireJob(ctx, workerID)
	if err != nil {
		return fmt.Errorf("acquiring job: %w", err)
	}
	if job == nil {
		return errNoJobs
	}

	log.Info("job acquired",
		slog.String("job_id", job.ID.String()),
		slog.String("media_item_id", job.MediaItemID.String()),
	)

	jobCtx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()

	execErr := r.executor.Execute(jobCtx, job)
	if execErr != nil {
		job.MarkFailed(execErr)
	} else {
		job.MarkCompleted()
	}

	// Persist the outcome with a fresh context so shutdown does not lose it.
	updateCtx, updateCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer updateCancel()
	if err := r.jobs.Update(updateCtx, job); err != nil {
		return fmt.Errorf("recording job outcome: %w", err)
	}

	if execErr != nil {
		return fmt.Errorf("executing job %s: %w", job.ID, execErr)
	}
	log.Info("job completed",
		slog.String("job_id", job.ID.String()),
		slog.Int64("duration_ms", job.DurationMs),
	)
	return nil
}

// recoveryLoop periodically returns jobs with expired locks to the queue,
// covering workers that died mid-job.
func (r *Runner) recoveryLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(staleRecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			cutoff := models.Now().Add(-r.lockTimeout)
			recovered, err := r.jobs.RecoverStale(r.ctx, cutoff)
			if err != nil {
				r.logger.Error("stale job recovery failed", slog.String("error", err.Error()))
				continue
			}
			if recovered > 0 {
				r.logger.Warn("recovered stale jobs", slog.Int64("count", recovered))
			}
		}
	}
}

// CleanupFinished prunes finished jobs older than the configured retention
// age. Invoked on the workflow cleanup schedule.
func (r *Runner) CleanupFinished(ctx context.Context) error {
	before := models.Now().Add(-r.cleanupAge)
	deleted, err := r.jobs.DeleteFinished(ctx, before)
	if err != nil {
		return fmt.Errorf("pruning finished jobs: %w", err)
	}
	if deleted > 0 {
		r.logger.Info("pruned finished jobs", slog.Int64("count", deleted))
	}
	return nil
}
