// -----------------------------------------------------------------------
// Browser Pool - Per-user ChromeDP browser instances
// -----------------------------------------------------------------------

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// PoolConfig holds configuration for the browser pool
type PoolConfig struct {
	MaxInstances    int
	Headless        bool
	UserAgent       string
	IdleTTL         time.Duration
	NavigateTimeout time.Duration
}

// browserEntry is one live browser bound to a user
type browserEntry struct {
	ctx             context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	lastUsed        time.Time
	inUse           bool
}

// BrowserPool manages ChromeDP browser instances keyed by user. Each
// user gets a dedicated browser so cookie jars never mix. Idle browsers
// are evicted after the TTL; the total is bounded by MaxInstances.
type BrowserPool struct {
	mu      sync.Mutex
	entries map[string]*browserEntry
	config  PoolConfig
	logger  arbor.ILogger
	closed  bool
}

// NewBrowserPool creates a browser pool
func NewBrowserPool(logger arbor.ILogger, config PoolConfig) *BrowserPool {
	if config.MaxInstances <= 0 {
		config.MaxInstances = 2
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	if config.NavigateTimeout <= 0 {
		config.NavigateTimeout = 30 * time.Second
	}

	return &BrowserPool{
		entries: make(map[string]*browserEntry),
		config:  config,
		logger:  logger,
	}
}

// Acquire returns a live browser context for the user, creating one if
// needed. The release function must be called when the job is done; the
// browser stays warm for the idle TTL so back-to-back jobs reuse it.
func (p *BrowserPool) Acquire(ctx context.Context, userID string) (context.Context, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, nil, fmt.Errorf("browser pool is closed")
	}

	p.evictIdleLocked()

	if entry, ok := p.entries[userID]; ok {
		if entry.inUse {
			return nil, nil, fmt.Errorf("browser for user %s is already in use", userID)
		}
		// Validate the cached browser still responds before handing it out
		if err := p.ping(entry.ctx); err != nil {
			p.logger.Debug().Str("user_id", userID).Err(err).Msg("Cached browser unresponsive, recreating")
			p.destroyLocked(userID)
		} else {
			entry.inUse = true
			return entry.ctx, p.releaseFunc(userID), nil
		}
	}

	if len(p.entries) >= p.config.MaxInstances {
		if !p.evictOldestIdleLocked() {
			return nil, nil, fmt.Errorf("browser pool at capacity (%d instances, all in use)", p.config.MaxInstances)
		}
	}

	entry, err := p.createLocked(userID)
	if err != nil {
		return nil, nil, err
	}
	entry.inUse = true
	return entry.ctx, p.releaseFunc(userID), nil
}

func (p *BrowserPool) releaseFunc(userID string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if entry, ok := p.entries[userID]; ok {
				entry.inUse = false
				entry.lastUsed = time.Now()
			}
			p.logger.Debug().Str("user_id", userID).Msg("Browser released to pool")
		})
	}
}

func (p *BrowserPool) createLocked(userID string) (*browserEntry, error) {
	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-background-timer-throttling", false),
		chromedp.Flag("disable-backgrounding-occluded-windows", false),
		chromedp.Flag("disable-renderer-backgrounding", false),
		chromedp.UserAgent(p.config.UserAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	// Startup probe so a broken Chrome install fails here, not mid-job
	if err := p.ping(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	entry := &browserEntry{
		ctx:             browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		lastUsed:        time.Now(),
	}
	p.entries[userID] = entry

	p.logger.Debug().
		Str("user_id", userID).
		Dur("startup_time", time.Since(startTime)).
		Int("pool_size", len(p.entries)).
		Msg("Browser instance created")

	return entry, nil
}

func (p *BrowserPool) ping(browserCtx context.Context) error {
	probeCtx, cancel := context.WithTimeout(browserCtx, p.config.NavigateTimeout)
	defer cancel()
	return chromedp.Run(probeCtx, chromedp.Navigate("about:blank"))
}

func (p *BrowserPool) evictIdleLocked() {
	cutoff := time.Now().Add(-p.config.IdleTTL)
	for userID, entry := range p.entries {
		if !entry.inUse && entry.lastUsed.Before(cutoff) {
			p.logger.Debug().Str("user_id", userID).Msg("Evicting idle browser")
			p.destroyLocked(userID)
		}
	}
}

func (p *BrowserPool) evictOldestIdleLocked() bool {
	var oldest string
	var oldestTime time.Time
	for userID, entry := range p.entries {
		if entry.inUse {
			continue
		}
		if oldest == "" || entry.lastUsed.Before(oldestTime) {
			oldest = userID
			oldestTime = entry.lastUsed
		}
	}
	if oldest == "" {
		return false
	}
	p.destroyLocked(oldest)
	return true
}

func (p *BrowserPool) destroyLocked(userID string) {
	if entry, ok := p.entries[userID]; ok {
		entry.browserCancel()
		entry.allocatorCancel()
		delete(p.entries, userID)
	}
}

// Close shuts down every browser in the pool
func (p *BrowserPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for userID := range p.entries {
		p.destroyLocked(userID)
	}
	p.logger.Debug().Msg("Browser pool closed")
}
