// -----------------------------------------------------------------------
// Job Processor - Pulls engagement jobs off the queue and runs the
// scrape -> filter -> comment pipeline with full lifecycle accounting
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/respondo/internal/interfaces"
	"github.com/ternarybob/respondo/internal/models"
	"github.com/ternarybob/respondo/internal/services/rank"
)

// CandidateCollector discovers candidate posts for a job using an
// authenticated scraping session.
type CandidateCollector interface {
	Collect(ctx context.Context, s interfaces.Scraper, job *models.EngagementJob) ([]*models.CandidateItem, error)
}

// ReplyActor posts one drafted reply against one candidate post.
type ReplyActor interface {
	PostReply(ctx context.Context, act interfaces.Actioner, candidate *models.CandidateItem, reply string) error
}

// Config carries the processor's tunables.
type Config struct {
	Concurrency      int
	PollInterval     time.Duration
	JobTimeout       time.Duration
	Cooldown         time.Duration
	AttemptBound     int
	RetryDelayBase   time.Duration
	StopTerms        []string
	MinContentLength int
	FallbackReply    string
}

// Processor owns the worker pool. Each worker polls the queue, applies
// the pre-run guards, and drives accepted jobs through the pipeline.
// Every queue message is consumed exactly once: guard skips delete it,
// failures delete it and enqueue a fresh delayed message.
type Processor struct {
	config     Config
	jobs       interfaces.JobStorage
	candidates interfaces.CandidateStorage
	reports    interfaces.ReportStorage
	queue      interfaces.QueueManager
	sessions   interfaces.SessionValidator
	collector  CandidateCollector
	commenter  interfaces.Commenter
	actor      ReplyActor
	logger     arbor.ILogger

	draining atomic.Bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewProcessor wires the processor from its collaborators.
func NewProcessor(config Config, storage interfaces.StorageManager, queue interfaces.QueueManager, sessions interfaces.SessionValidator, collector CandidateCollector, commenter interfaces.Commenter, actor ReplyActor, logger arbor.ILogger) *Processor {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		config:     config,
		jobs:       storage.Jobs(),
		candidates: storage.Candidates(),
		reports:    storage.Reports(),
		queue:      queue,
		sessions:   sessions,
		collector:  collector,
		commenter:  commenter,
		actor:      actor,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the worker pool.
func (p *Processor) Start() {
	p.logger.Info().
		Int("workers", p.config.Concurrency).
		Msg("Starting job processor")

	for i := 0; i < p.config.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop drains the pool. New queue polls stop immediately; a job already
// in flight keeps its own timeout-bound context, skips the replies it
// has not posted yet, and finalizes before the pool exits.
func (p *Processor) Stop() {
	p.logger.Info().Msg("Stopping job processor...")
	p.draining.Store(true)
	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Job processor stopped")
}

// worker is the poll loop. Idle polls back off from the configured
// interval up to 5s and reset on the next delivery.
func (p *Processor) worker(workerID int) {
	defer p.wg.Done()

	p.logger.Debug().Int("worker_id", workerID).Msg("Worker started")

	idle := p.config.PollInterval
	const maxIdle = 5 * time.Second

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug().Int("worker_id", workerID).Msg("Worker stopping")
			return
		default:
		}

		delivery, deleteFn, err := p.queue.Receive(p.ctx)
		if err != nil {
			if err != models.ErrNoMessage && p.ctx.Err() == nil {
				p.logger.Error().Err(err).Msg("Queue receive failed")
			}
			select {
			case <-p.ctx.Done():
			case <-time.After(idle):
			}
			if idle *= 2; idle > maxIdle {
				idle = maxIdle
			}
			continue
		}
		idle = p.config.PollInterval

		p.handleDelivery(workerID, delivery, deleteFn)
	}
}

// handleDelivery resolves one queue message end to end. Panics inside a
// job never take the worker down.
func (p *Processor) handleDelivery(workerID int, delivery *interfaces.Delivery, deleteFn func() error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Int("worker_id", workerID).
				Str("job_id", delivery.Message.JobID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in job processing")
			p.deleteMessage(delivery, deleteFn)
		}
	}()

	// In-flight work survives Stop's cancel; only the job timeout and
	// the draining flag bound it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), p.config.JobTimeout)
	defer cancel()

	job, err := p.jobs.GetJob(ctx, delivery.Message.JobID)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("job_id", delivery.Message.JobID).
			Msg("Dropping message for unknown job")
		p.deleteMessage(delivery, deleteFn)
		return
	}
	if err := job.Validate(); err != nil {
		p.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Msg("Dropping message for structurally invalid job")
		p.deleteMessage(delivery, deleteFn)
		return
	}

	if reason := p.guard(ctx, job); reason != "" {
		p.logger.Info().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Str("reason", reason).
			Msg("Job skipped")
		p.deleteMessage(delivery, deleteFn)
		return
	}

	p.logger.Info().
		Int("worker_id", workerID).
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Msg("Processing job")

	runErr := p.process(ctx, job, delivery)

	// The claimed message is consumed either way; failures continue as
	// a fresh delayed message so the backlog ordering stays intact.
	p.deleteMessage(delivery, deleteFn)

	if runErr != nil {
		p.scheduleRetry(ctx, job)
	}
}

// guard applies the pre-run admission rules. A non-empty return is the
// skip reason; it may also transition the job (attempt budget
// exhaustion parks it permanently).
func (p *Processor) guard(ctx context.Context, job *models.EngagementJob) string {
	switch job.Status {
	case models.JobStatusActive:
		return "already processing"

	case models.JobStatusPermanentlyFailed:
		return "permanently failed"

	case models.JobStatusCompleted:
		if job.CompletedAt != nil && time.Since(*job.CompletedAt) < p.config.Cooldown {
			return "completed within cooldown"
		}
		// Completed is terminal regardless of age.
		return "already completed"

	case models.JobStatusFailed:
		if job.FailedAttempts >= p.config.AttemptBound {
			job.MarkPermanentlyFailed(fmt.Sprintf("attempt budget exhausted after %d failures: %s", job.FailedAttempts, job.Error))
			if err := p.jobs.SaveJob(ctx, job); err != nil {
				p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to park exhausted job")
			}
			return "attempt budget exhausted"
		}
		return ""

	default:
		return ""
	}
}

// process runs one accepted job through the pipeline. Any returned
// error has already been recorded on the job and its report.
func (p *Processor) process(ctx context.Context, job *models.EngagementJob, delivery *interfaces.Delivery) error {
	job.MarkActive()
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job active: %w", err)
	}

	report := models.NewSessionReport(job.ID, job.UserID)
	report.Keywords = job.Keywords
	started := time.Now()

	finishFatal := func(step string, err error) error {
		p.logger.Error().Err(err).Str("job_id", job.ID).Str("step", step).Msg("Job failed")
		report.AddError(step, err.Error())
		report.Finish()
		job.MarkFailed(err.Error())
		if saveErr := p.jobs.SaveJob(ctx, job); saveErr != nil {
			p.logger.Error().Err(saveErr).Str("job_id", job.ID).Msg("Failed to save failed job")
		}
		if saveErr := p.reports.SaveReport(ctx, report); saveErr != nil {
			p.logger.Error().Err(saveErr).Str("job_id", job.ID).Msg("Failed to save failure report")
		}
		return err
	}

	// Session
	p.setProgress(ctx, job, "validating_session", 10)
	sess, err := p.sessions.Establish(ctx, job.UserID)
	if err != nil {
		return finishFatal("validating_session", err)
	}
	defer sess.Release()

	// Scrape
	p.setProgress(ctx, job, "scraping", 30)
	scrapeStart := time.Now()
	discovered, err := p.collector.Collect(ctx, sess.Driver, job)
	if err != nil {
		return finishFatal("scraping", err)
	}
	report.Timings.ScrapeMs = time.Since(scrapeStart).Milliseconds()
	report.DiscoveredCount = len(discovered)

	p.setProgress(ctx, job, "saving_candidates", 55)
	if _, err := p.candidates.InsertCandidates(ctx, discovered); err != nil {
		return finishFatal("saving_candidates", err)
	}

	// Filter and rank
	p.setProgress(ctx, job, "filtering", 65)
	filterStart := time.Now()
	selected := rank.Select(discovered, job.Options, p.config.StopTerms, p.config.MinContentLength, job.ActionCount)
	report.Timings.FilterMs = time.Since(filterStart).Milliseconds()
	report.FilteredCount = len(selected)

	p.logger.Info().
		Str("job_id", job.ID).
		Int("discovered", len(discovered)).
		Int("selected", len(selected)).
		Msg("Candidates selected for engagement")

	// Act. The reply phase can outlast the queue claim, so the claim is
	// stretched to the full job budget before starting.
	if err := p.queue.Extend(ctx, delivery.ReceiptID, p.config.JobTimeout); err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to extend queue claim")
	}

	actStart := time.Now()
	acted, failed := 0, 0
	for i, candidate := range selected {
		if p.draining.Load() {
			report.AddError("commenting", "shutdown requested before all replies were posted")
			break
		}

		percent := 70
		if len(selected) > 0 {
			percent = 70 + (25*i)/len(selected)
		}
		p.setProgress(ctx, job, "commenting", percent)

		reply, err := p.commenter.Draft(ctx, candidate, job.Options)
		if err != nil {
			p.logger.Warn().
				Err(err).
				Str("job_id", job.ID).
				Str("url", candidate.URL).
				Msg("Draft failed, using fallback reply")
			reply = p.config.FallbackReply
		}
		if reply == "" {
			failed++
			report.AddError("commenting", fmt.Sprintf("no reply text for %s", candidate.URL))
			continue
		}

		if err := p.actor.PostReply(ctx, sess.Driver, candidate, reply); err != nil {
			failed++
			report.AddError("commenting", fmt.Sprintf("%s: %v", candidate.URL, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		acted++
	}
	report.Timings.ActMs = time.Since(actStart).Milliseconds()

	// Finalize. Per-item failures do not fail the job; the report
	// carries the breakdown.
	job.SetProgress("finalizing", 100)
	report.ActedCount = acted
	report.FailedCount = failed
	report.Success = failed == 0 && len(report.Errors) == 0
	report.Finish()

	job.MarkCompleted(&models.JobResult{
		Success:         report.Success,
		ActedCount:      acted,
		DiscoveredCount: len(discovered),
		SessionReportID: report.ID,
	})
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save completed job: %w", err)
	}
	if err := p.reports.SaveReport(ctx, report); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to save session report")
	}

	p.logger.Info().
		Str("job_id", job.ID).
		Int("acted", acted).
		Int("failed", failed).
		Str("duration", time.Since(started).String()).
		Msg("Job completed")
	return nil
}

// setProgress records the step on the job and persists it so callers
// polling the job store can watch the run advance. Persistence is best
// effort; the run never stops over a progress write.
func (p *Processor) setProgress(ctx context.Context, job *models.EngagementJob, step string, percent int) {
	job.SetProgress(step, percent)
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		p.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Str("step", step).
			Msg("Failed to persist job progress")
	}
}

// scheduleRetry enqueues a fresh delayed message for a failed job,
// backing off exponentially on its failure count. A job that has burned
// its attempt budget is parked permanently instead.
func (p *Processor) scheduleRetry(ctx context.Context, job *models.EngagementJob) {
	if job.Status != models.JobStatusFailed {
		return
	}
	if job.FailedAttempts >= p.config.AttemptBound {
		job.MarkPermanentlyFailed(fmt.Sprintf("attempt budget exhausted after %d failures: %s", job.FailedAttempts, job.Error))
		if err := p.jobs.SaveJob(ctx, job); err != nil {
			p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to park exhausted job")
		}
		p.logger.Warn().
			Str("job_id", job.ID).
			Int("failed_attempts", job.FailedAttempts).
			Msg("Job permanently failed")
		return
	}

	delay := p.config.RetryDelayBase
	for i := 1; i < job.FailedAttempts; i++ {
		delay *= 2
	}

	msg := &models.QueueMessage{
		JobID:  job.ID,
		UserID: job.UserID,
		Type:   models.MessageTypeEngagement,
	}
	if err := p.queue.EnqueueWithDelay(ctx, msg, delay); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to schedule retry")
		return
	}

	p.logger.Info().
		Str("job_id", job.ID).
		Int("failed_attempts", job.FailedAttempts).
		Str("delay", delay.String()).
		Msg("Retry scheduled")
}

func (p *Processor) deleteMessage(delivery *interfaces.Delivery, deleteFn func() error) {
	if err := deleteFn(); err != nil {
		p.logger.Warn().
			Err(err).
			Str("job_id", delivery.Message.JobID).
			Msg("Failed to delete queue message")
	}
}
