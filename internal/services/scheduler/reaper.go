// -----------------------------------------------------------------------
// Stale Job Reaper - Requeues jobs abandoned by a lost worker
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/respondo/internal/common"
	"github.com/ternarybob/respondo/internal/interfaces"
	"github.com/ternarybob/respondo/internal/models"
)

// Reaper periodically scans for jobs stuck in the active state. A job
// whose worker died mid-run never reaches a terminal status on its own;
// the reaper marks it failed and requeues it so the normal attempt
// accounting applies.
type Reaper struct {
	jobs           interfaces.JobStorage
	queue          interfaces.QueueManager
	logger         arbor.ILogger
	cron           *cron.Cron
	schedule       string
	staleThreshold time.Duration
	retryDelay     time.Duration
	mu             sync.Mutex // prevents overlapping sweeps
	running        bool
}

// NewReaper creates a stale job reaper. schedule is a cron expression
// (descriptors like "@every 2m" are accepted).
func NewReaper(jobs interfaces.JobStorage, queue interfaces.QueueManager, schedule string, staleThreshold, retryDelay time.Duration, logger arbor.ILogger) *Reaper {
	if schedule == "" {
		schedule = "@every 2m"
	}
	if staleThreshold <= 0 {
		staleThreshold = 30 * time.Minute
	}
	return &Reaper{
		jobs:           jobs,
		queue:          queue,
		logger:         logger,
		cron:           cron.New(),
		schedule:       schedule,
		staleThreshold: staleThreshold,
		retryDelay:     retryDelay,
	}
}

// Start registers the sweep with the cron scheduler and begins it.
func (r *Reaper) Start() error {
	if r.running {
		return fmt.Errorf("reaper already running")
	}

	_, err := r.cron.AddFunc(r.schedule, func() {
		common.SafeGo(r.logger, "stale-job-sweep", func() {
			if err := r.Sweep(context.Background()); err != nil {
				r.logger.Error().Err(err).Msg("Stale job sweep failed")
			}
		})
	})
	if err != nil {
		return fmt.Errorf("failed to schedule stale job sweep: %w", err)
	}

	r.cron.Start()
	r.running = true

	r.logger.Info().
		Str("schedule", r.schedule).
		Str("stale_threshold", r.staleThreshold.String()).
		Msg("Stale job reaper started")
	return nil
}

// Stop halts the scheduler. A sweep in flight finishes on its own.
func (r *Reaper) Stop() {
	if !r.running {
		return
	}
	r.cron.Stop()
	r.running = false
	r.logger.Info().Msg("Stale job reaper stopped")
}

// Sweep finds active jobs whose StartedAt predates the stale threshold,
// marks each failed, and requeues it with the retry delay. The requeued
// message goes through the normal guards, so a job that has burned its
// attempt budget gets parked as permanently failed on its next receive.
// Sweeps are serialized: a slow store must not let two ticks fail the
// same job twice.
func (r *Reaper) Sweep(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.staleThreshold)

	stale, err := r.jobs.ListStaleActiveJobs(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stale jobs: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	r.logger.Warn().
		Int("count", len(stale)).
		Msg("Detected stale active jobs")

	for _, job := range stale {
		job.MarkFailed("worker lost: job exceeded stale threshold while active")
		if err := r.jobs.SaveJob(ctx, job); err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to save reaped job")
			continue
		}

		msg := &models.QueueMessage{
			JobID:  job.ID,
			UserID: job.UserID,
			Type:   models.MessageTypeEngagement,
		}
		if err := r.queue.EnqueueWithDelay(ctx, msg, r.retryDelay); err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to requeue reaped job")
			continue
		}

		r.logger.Info().
			Str("job_id", job.ID).
			Int("failed_attempts", job.FailedAttempts).
			Msg("Stale job requeued")
	}

	return nil
}
