// -----------------------------------------------------------------------
// Application - Component wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/respondo/internal/common"
	"github.com/ternarybob/respondo/internal/interfaces"
	"github.com/ternarybob/respondo/internal/models"
	"github.com/ternarybob/respondo/internal/queue"
	"github.com/ternarybob/respondo/internal/services/commenter"
	"github.com/ternarybob/respondo/internal/services/executor"
	"github.com/ternarybob/respondo/internal/services/governor"
	"github.com/ternarybob/respondo/internal/services/scheduler"
	"github.com/ternarybob/respondo/internal/services/scraper"
	"github.com/ternarybob/respondo/internal/services/session"
	badgerstore "github.com/ternarybob/respondo/internal/storage/badger"
	"github.com/ternarybob/respondo/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	QueueManager   interfaces.QueueManager
	Governor       *governor.Governor
	BrowserPool    *session.BrowserPool
	Sessions       *session.Validator
	Pipeline       *scraper.Pipeline
	Commenter      *commenter.ClaudeCommenter
	Executor       *executor.Executor
	Processor      *worker.Processor
	Reaper         *scheduler.Reaper

	queueDB *badger.DB
}

// New wires the application from configuration. Components are built
// bottom-up: stores, queue, governor, browser pool, then the services
// and the processor that drives them.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storageManager, err := badgerstore.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// The queue lives in its own Badger instance beside the document
	// store; badgerhold and the raw queue keyspace never mix.
	queuePath := filepath.Join(config.Storage.Badger.Path, "queue")
	if err := os.MkdirAll(queuePath, 0755); err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}
	queueDB, err := badger.Open(badger.DefaultOptions(queuePath).WithLogger(nil))
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	queueManager, err := queue.NewManager(queueDB, logger, config.Queue.QueueName, config.QueueVisibilityTimeout(), config.Queue.MaxReceive)
	if err != nil {
		queueDB.Close()
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	gov := governor.New(logger, governor.Config{
		PerMinute:   config.Governor.PerMinute,
		PerHour:     config.Governor.PerHour,
		BackoffBase: config.GovernorBackoffBase(),
		BackoffCap:  config.GovernorBackoffCap(),
		MaxRetries:  config.Governor.MaxRetries,
	})

	pool := session.NewBrowserPool(logger, session.PoolConfig{
		MaxInstances:    config.Browser.PoolSize,
		Headless:        config.Browser.Headless,
		UserAgent:       config.Browser.UserAgent,
		IdleTTL:         config.BrowserIdleTTL(),
		NavigateTimeout: config.BrowserNavigateTimeout(),
	})

	driverFactory := func(browserCtx context.Context) interfaces.Driver {
		return scraper.NewDriver(browserCtx, config.Browser.BaseURL, config.BrowserNavigateTimeout(), logger)
	}
	sessions := session.NewValidator(storageManager.Auth(), pool, driverFactory, config.Browser.BaseURL, config.BrowserNavigateTimeout(), logger)

	pipeline := scraper.NewPipeline(gov, storageManager.Candidates(), scraper.Config{
		OverscrapeFactor: config.Scrape.OverscrapeFactor,
		StagnationBound:  config.Scrape.StagnationBound,
		MaxLoadMore:      config.Scrape.MaxLoadMore,
		MinContentLength: config.Scrape.MinContentLength,
		StopTerms:        config.Scrape.StopTerms,
	}, logger)

	claudeCommenter, err := commenter.NewClaudeCommenter(&config.Reply, config.ReplyTimeout(), logger)
	if err != nil {
		queueDB.Close()
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize commenter: %w", err)
	}

	exec := executor.New(gov, config.EngageActionDelay(), storageManager.Candidates(), logger)

	processor := worker.NewProcessor(worker.Config{
		Concurrency:      config.Worker.Concurrency,
		PollInterval:     config.QueuePollInterval(),
		JobTimeout:       config.WorkerJobTimeout(),
		Cooldown:         config.WorkerCooldown(),
		AttemptBound:     config.Worker.AttemptBound,
		RetryDelayBase:   config.WorkerRetryDelayBase(),
		StopTerms:        config.Scrape.StopTerms,
		MinContentLength: config.Scrape.MinContentLength,
		FallbackReply:    config.Reply.FallbackText,
	}, storageManager, queueManager, sessions, pipeline, claudeCommenter, exec, logger)

	reaper := scheduler.NewReaper(storageManager.Jobs(), queueManager, config.Scheduler.ReaperSchedule, config.SchedulerStaleThreshold(), config.WorkerRetryDelayBase(), logger)

	return &App{
		Config:         config,
		Logger:         logger,
		StorageManager: storageManager,
		QueueManager:   queueManager,
		Governor:       gov,
		BrowserPool:    pool,
		Sessions:       sessions,
		Pipeline:       pipeline,
		Commenter:      claudeCommenter,
		Executor:       exec,
		Processor:      processor,
		Reaper:         reaper,
		queueDB:        queueDB,
	}, nil
}

// Start launches the worker pool and the stale-job reaper.
func (a *App) Start() error {
	if err := a.Reaper.Start(); err != nil {
		return fmt.Errorf("failed to start reaper: %w", err)
	}
	a.Processor.Start()

	length, err := a.QueueManager.Length(context.Background())
	if err == nil {
		a.Logger.Info().Int("backlog", length).Msg("Application started")
	} else {
		a.Logger.Info().Msg("Application started")
	}
	return nil
}

// Stop drains the processor and halts the reaper. In-flight work
// finishes to its next safe checkpoint before this returns.
func (a *App) Stop() {
	a.Reaper.Stop()
	a.Processor.Stop()
}

// Close releases all held resources. Call after Stop.
func (a *App) Close() {
	a.BrowserPool.Close()

	if err := a.QueueManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Queue close failed")
	}
	if err := a.queueDB.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Queue database close failed")
	}
	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Storage close failed")
	}

	a.Logger.Info().Msg("Application closed")
}

// SubmitJob validates, persists and enqueues a new engagement job in the
// waiting state. Used by the -submit CLI path; the worker picks it up
// through the queue like any other job.
func (a *App) SubmitJob(ctx context.Context, userID string, keywords []string, actionCount int, opts models.ReplyOptions) (*models.EngagementJob, error) {
	job := models.NewEngagementJob(userID, keywords, actionCount, opts)
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job: %w", err)
	}

	if err := a.StorageManager.Jobs().SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	msg := &models.QueueMessage{
		JobID:  job.ID,
		UserID: job.UserID,
		Type:   models.MessageTypeEngagement,
	}
	if err := a.QueueManager.Enqueue(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	a.Logger.Info().
		Str("job_id", job.ID).
		Str("user_id", userID).
		Strs("keywords", keywords).
		Int("action_count", actionCount).
		Msg("Job submitted")
	return job, nil
}

// ImportSession loads captured browser cookies from a JSON file and
// stores them as the user's session credentials. The file is an array
// of cookie objects matching models.SessionCookie.
func (a *App) ImportSession(ctx context.Context, userID, path, userAgent string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read cookie file: %w", err)
	}

	var cookies []models.SessionCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("failed to parse cookie file: %w", err)
	}
	if len(cookies) == 0 {
		return fmt.Errorf("cookie file %s contains no cookies", path)
	}

	// Session validity tracks the earliest cookie expiry, ignoring
	// session cookies with no expiry at all.
	var expiresAt time.Time
	for _, c := range cookies {
		if c.Expires.IsZero() {
			continue
		}
		if expiresAt.IsZero() || c.Expires.Before(expiresAt) {
			expiresAt = c.Expires
		}
	}
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(24 * time.Hour)
	}

	creds := &models.SessionCredentials{
		UserID:     userID,
		Cookies:    cookies,
		CapturedAt: time.Now(),
		ExpiresAt:  expiresAt,
		UserAgent:  userAgent,
	}
	if err := a.StorageManager.Auth().SaveSession(ctx, creds); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	a.Logger.Info().
		Str("user_id", userID).
		Int("cookies", len(cookies)).
		Str("expires_at", expiresAt.Format(time.RFC3339)).
		Msg("Session imported")
	return nil
}
