// -----------------------------------------------------------------------
// Feed Driver - ChromeDP implementation of the platform driver
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/respondo/internal/interfaces"
	"github.com/ternarybob/respondo/internal/models"
)

// Driver drives the feed platform through a pooled ChromeDP browser.
// All control lookups go through role selector chains; a structural
// change on the platform means updating selectors.go, nothing else.
type Driver struct {
	browserCtx context.Context
	baseURL    string
	navTimeout time.Duration
	logger     arbor.ILogger
}

// NewDriver creates a driver over an acquired browser context
func NewDriver(browserCtx context.Context, baseURL string, navTimeout time.Duration, logger arbor.ILogger) *Driver {
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	return &Driver{
		browserCtx: browserCtx,
		baseURL:    strings.TrimRight(baseURL, "/"),
		navTimeout: navTimeout,
		logger:     logger,
	}
}

// run executes chromedp actions against the browser with the navigation
// timeout, honoring the caller's context for cancellation
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(d.browserCtx, d.navTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(runCtx, actions...)
	}()

	select {
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// resolve returns the first selector in the role's fallback chain that
// matches at least one node on the current page
func (d *Driver) resolve(ctx context.Context, role interfaces.ElementRole) (string, error) {
	for _, sel := range selectorsFor(role) {
		var nodes []*cdp.Node
		err := d.run(ctx, chromedp.Nodes(sel, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
		if err != nil {
			return "", err
		}
		if len(nodes) > 0 {
			return sel, nil
		}
	}
	d.logger.Debug().Str("role", string(role)).Msg("No selector shape matched")
	return "", models.ErrControlNotFound
}

// Search opens the keyword search results feed
func (d *Driver) Search(ctx context.Context, keyword string) error {
	searchURL := fmt.Sprintf("%s/search?q=%s", d.baseURL, url.QueryEscape(keyword))
	if err := d.run(ctx, chromedp.Navigate(searchURL), chromedp.WaitReady("body")); err != nil {
		return fmt.Errorf("search navigation failed for %q: %w", keyword, err)
	}

	// The result feed renders asynchronously after the document loads
	if _, err := d.resolve(ctx, interfaces.RoleFeedContainer); err != nil {
		return fmt.Errorf("search results did not render for %q: %w", keyword, err)
	}
	return nil
}

// OpenFeed navigates to the user's home feed
func (d *Driver) OpenFeed(ctx context.Context) error {
	if err := d.run(ctx, chromedp.Navigate(d.baseURL+"/feed"), chromedp.WaitReady("body")); err != nil {
		return fmt.Errorf("feed navigation failed: %w", err)
	}
	if _, err := d.resolve(ctx, interfaces.RoleFeedContainer); err != nil {
		return fmt.Errorf("home feed did not render: %w", err)
	}
	return nil
}

// LoadMore scrolls the feed to trigger the next content batch. Returns
// false once the page height stops growing, which is how the platform
// signals end of content.
func (d *Driver) LoadMore(ctx context.Context) (bool, error) {
	var before, after int64
	if err := d.run(ctx, chromedp.Evaluate(`document.body.scrollHeight`, &before)); err != nil {
		return false, err
	}

	err := d.run(ctx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(1500*time.Millisecond),
		chromedp.Evaluate(`document.body.scrollHeight`, &after),
	)
	if err != nil {
		return false, err
	}

	return after > before, nil
}

// Items extracts the posts currently rendered in the feed
func (d *Driver) Items(ctx context.Context) ([]*models.RawPost, error) {
	sel, err := d.resolve(ctx, interfaces.RoleFeedContainer)
	if err != nil {
		return nil, fmt.Errorf("feed container not found: %w", err)
	}

	var html string
	if err := d.run(ctx, chromedp.OuterHTML(sel, &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("failed to read feed HTML: %w", err)
	}

	return ParseFeed(html)
}

// ResolvePermalink turns a feed item's href hint into a canonical URL
func (d *Driver) ResolvePermalink(ctx context.Context, post *models.RawPost) (string, error) {
	hint := strings.TrimSpace(post.PermalinkHint)
	if hint == "" {
		return "", fmt.Errorf("post has no permalink hint")
	}

	resolved, err := url.Parse(hint)
	if err != nil {
		return "", fmt.Errorf("invalid permalink hint %q: %w", hint, err)
	}
	if resolved.IsAbs() {
		// Strip tracking params; the path identifies the post
		resolved.RawQuery = ""
		return resolved.String(), nil
	}

	base, err := url.Parse(d.baseURL)
	if err != nil {
		return "", err
	}
	abs := base.ResolveReference(resolved)
	abs.RawQuery = ""
	return abs.String(), nil
}

// Navigate opens an arbitrary URL
func (d *Driver) Navigate(ctx context.Context, target string) error {
	if err := d.run(ctx, chromedp.Navigate(target), chromedp.WaitReady("body")); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", target, err)
	}
	return nil
}

// Reload refreshes the current page
func (d *Driver) Reload(ctx context.Context) error {
	return d.run(ctx, chromedp.Reload(), chromedp.WaitReady("body"))
}

// Locate verifies a control with the given role is present
func (d *Driver) Locate(ctx context.Context, role interfaces.ElementRole) error {
	_, err := d.resolve(ctx, role)
	return err
}

// EnterReply opens the reply editor and types the reply text
func (d *Driver) EnterReply(ctx context.Context, text string) error {
	controlSel, err := d.resolve(ctx, interfaces.RoleReplyControl)
	if err != nil {
		return fmt.Errorf("reply control: %w", err)
	}
	if err := d.run(ctx, chromedp.Click(controlSel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to open reply editor: %w", err)
	}

	inputSel, err := d.resolve(ctx, interfaces.RoleReplyInput)
	if err != nil {
		return fmt.Errorf("reply input: %w", err)
	}
	err = d.run(ctx,
		chromedp.Click(inputSel, chromedp.ByQuery),
		chromedp.SendKeys(inputSel, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to enter reply text: %w", err)
	}
	return nil
}

// SubmitReply submits the composed reply
func (d *Driver) SubmitReply(ctx context.Context) error {
	sel, err := d.resolve(ctx, interfaces.RoleSubmitButton)
	if err != nil {
		return fmt.Errorf("submit button: %w", err)
	}
	err = d.run(ctx,
		chromedp.Click(sel, chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("failed to submit reply: %w", err)
	}
	return nil
}

// VerifyAuthenticated probes for an account-scoped control that only
// renders for a logged-in user
func (d *Driver) VerifyAuthenticated(ctx context.Context) error {
	if err := d.Locate(ctx, interfaces.RoleAccountMenu); err != nil {
		if err == models.ErrControlNotFound {
			return fmt.Errorf("account menu not present, session is not logged in")
		}
		return err
	}
	return nil
}

// Close is a no-op: the pool owns the browser lifecycle
func (d *Driver) Close() error {
	return nil
}
