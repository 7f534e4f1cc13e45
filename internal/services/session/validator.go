// -----------------------------------------------------------------------
// Session Validator - Stored-cookie session establishment
// -----------------------------------------------------------------------

package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/respondo/internal/interfaces"
	"github.com/ternarybob/respondo/internal/models"
)

// DriverFactory builds a platform driver over an acquired browser context
type DriverFactory func(browserCtx context.Context) interfaces.Driver

// Validator implements SessionValidator: it turns stored cookies into a
// verified, authenticated browser session.
type Validator struct {
	auth       interfaces.AuthStorage
	pool       *BrowserPool
	newDriver  DriverFactory
	baseURL    string
	navTimeout time.Duration
	logger     arbor.ILogger
}

// NewValidator creates a session validator
func NewValidator(auth interfaces.AuthStorage, pool *BrowserPool, newDriver DriverFactory, baseURL string, navTimeout time.Duration, logger arbor.ILogger) *Validator {
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	return &Validator{
		auth:       auth,
		pool:       pool,
		newDriver:  newDriver,
		baseURL:    baseURL,
		navTimeout: navTimeout,
		logger:     logger,
	}
}

// Establish loads the user's stored session, injects it into a pooled
// browser, opens the platform and verifies the login actually took.
// Returns models.ErrNoValidSession when the stored state is missing,
// expired or rejected by the platform.
func (v *Validator) Establish(ctx context.Context, userID string) (*interfaces.Session, error) {
	valid, err := v.auth.HasValidSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check session for user %s: %w", userID, err)
	}
	if !valid {
		return nil, models.ErrNoValidSession
	}

	creds, err := v.auth.LoadSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	browserCtx, release, err := v.pool.Acquire(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire browser for user %s: %w", userID, err)
	}

	if err := v.injectCookies(browserCtx, creds); err != nil {
		release()
		return nil, err
	}

	// Open the platform. A timeout here is a platform problem, not a
	// session problem, so it surfaces as a plain error.
	navCtx, cancel := context.WithTimeout(browserCtx, v.navTimeout)
	err = chromedp.Run(navCtx, chromedp.Navigate(v.baseURL), chromedp.WaitReady("body"))
	cancel()
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to open platform for user %s: %w", userID, err)
	}

	driver := v.newDriver(browserCtx)

	if err := driver.VerifyAuthenticated(ctx); err != nil {
		v.logger.Warn().Str("user_id", userID).Err(err).Msg("Stored session rejected by platform")
		release()
		return nil, models.ErrNoValidSession
	}

	v.logger.Info().Str("user_id", userID).Msg("Session established and verified")

	return &interfaces.Session{
		UserID:  userID,
		Driver:  driver,
		Release: release,
	}, nil
}

// injectCookies pushes the stored cookie jar into the browser via CDP
func (v *Validator) injectCookies(browserCtx context.Context, creds *models.SessionCredentials) error {
	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		return fmt.Errorf("failed to enable network domain: %w", err)
	}

	return chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		injected := 0
		for _, c := range creds.Cookies {
			// CDP rejects leading-dot domains
			domain := strings.TrimPrefix(c.Domain, ".")

			param := network.SetCookie(c.Name, c.Value).
				WithDomain(domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)

			if !c.Expires.IsZero() && c.Expires.After(time.Now()) {
				expires := cdp.TimeSinceEpoch(c.Expires)
				param = param.WithExpires(&expires)
			}

			switch strings.ToLower(c.SameSite) {
			case "strict":
				param = param.WithSameSite(network.CookieSameSiteStrict)
			case "lax":
				param = param.WithSameSite(network.CookieSameSiteLax)
			case "none":
				param = param.WithSameSite(network.CookieSameSiteNone)
			}

			if err := param.Do(ctx); err != nil {
				v.logger.Warn().
					Err(err).
					Str("cookie_name", c.Name).
					Str("domain", domain).
					Msg("Failed to inject cookie")
				continue
			}
			injected++
		}

		if injected == 0 {
			return fmt.Errorf("no cookies could be injected for user %s", creds.UserID)
		}

		v.logger.Debug().
			Int("injected", injected).
			Int("total", len(creds.Cookies)).
			Msg("Cookie injection complete")
		return nil
	}))
}
