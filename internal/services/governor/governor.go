// -----------------------------------------------------------------------
// Rate Governor - Platform action budgets and throttle backoff
// -----------------------------------------------------------------------

package governor

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// ErrRateLimited is returned when the retry budget for a throttled
// operation is exhausted
var ErrRateLimited = errors.New("rate limited by platform")

// Config bounds platform-facing action rates
type Config struct {
	PerMinute   int
	PerHour     int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxRetries  int
}

// window is a fixed counting window that resets when its period elapses
type window struct {
	limit   int
	period  time.Duration
	count   int
	resetAt time.Time
}

func (w *window) reserve(now time.Time) (ok bool, wait time.Duration) {
	if now.After(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(w.period)
	}
	if w.count < w.limit {
		w.count++
		return true, 0
	}
	return false, w.resetAt.Sub(now)
}

// Governor enforces per-minute and per-hour action budgets and owns the
// jittered backoff schedule used when the platform pushes back. One
// instance is shared across all workers so the budgets hold process-wide.
type Governor struct {
	mu     sync.Mutex
	minute window
	hour   window
	config Config
	logger arbor.ILogger
}

// New creates a governor with the given budgets
func New(logger arbor.ILogger, config Config) *Governor {
	if config.PerMinute <= 0 {
		config.PerMinute = 30
	}
	if config.PerHour <= 0 {
		config.PerHour = 300
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = 2 * time.Second
	}
	if config.BackoffCap <= 0 {
		config.BackoffCap = 60 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}

	now := time.Now()
	return &Governor{
		minute: window{limit: config.PerMinute, period: time.Minute, resetAt: now.Add(time.Minute)},
		hour:   window{limit: config.PerHour, period: time.Hour, resetAt: now.Add(time.Hour)},
		config: config,
		logger: logger,
	}
}

// Reserve blocks until both windows have budget for one platform action,
// then consumes it. Returns early with the context error on cancellation.
func (g *Governor) Reserve(ctx context.Context) error {
	for {
		g.mu.Lock()
		now := time.Now()
		okMin, waitMin := g.minute.reserve(now)
		if okMin {
			okHour, waitHour := g.hour.reserve(now)
			if okHour {
				g.mu.Unlock()
				return nil
			}
			// Hour budget gone: give back the minute slot we just took
			g.minute.count--
			waitMin = waitHour
		}
		g.mu.Unlock()

		g.logger.Debug().Dur("wait", waitMin).Msg("Action budget exhausted, waiting for window reset")

		timer := time.NewTimer(waitMin)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ReserveWait reports how long a caller would currently have to wait for
// budget, without consuming any. Zero means Reserve would return at once.
func (g *Governor) ReserveWait() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	wait := time.Duration(0)
	for _, w := range []*window{&g.minute, &g.hour} {
		if now.After(w.resetAt) {
			continue
		}
		if w.count >= w.limit {
			if d := w.resetAt.Sub(now); d > wait {
				wait = d
			}
		}
	}
	return wait
}

// BackoffDuration returns the jittered exponential backoff for the given
// zero-based attempt: base * 2^attempt capped, with ±25% jitter.
func (g *Governor) BackoffDuration(attempt int) time.Duration {
	backoff := float64(g.config.BackoffBase) * math.Pow(2, float64(attempt))
	if backoff > float64(g.config.BackoffCap) {
		backoff = float64(g.config.BackoffCap)
	}

	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	backoff += jitter

	if backoff < 0 {
		backoff = float64(g.config.BackoffBase)
	}
	return time.Duration(backoff)
}

// WithBackoff runs op, retrying on throttle signals with the backoff
// schedule. Before each retry the recovery hook runs (page reload,
// typically); a recovery error aborts immediately. Returns ErrRateLimited
// once the retry budget is spent.
func (g *Governor) WithBackoff(ctx context.Context, op func() error, recover func() error) error {
	var lastErr error

	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.BackoffDuration(attempt - 1)
			g.logger.Debug().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Throttle signal, backing off before retry")

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}

			if recover != nil {
				if err := recover(); err != nil {
					return err
				}
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsThrottleSignal(lastErr) {
			return lastErr
		}
	}

	g.logger.Warn().Err(lastErr).Msg("Retry budget exhausted on throttle signal")
	return ErrRateLimited
}

// throttleMarkers are substrings the platform surfaces when pushing back
var throttleMarkers = []string{
	"429",
	"too many requests",
	"rate limit",
	"temporarily restricted",
	"try again later",
	"slow down",
}

// IsThrottleSignal reports whether an error looks like platform
// throttling rather than a genuine failure
func IsThrottleSignal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range throttleMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
