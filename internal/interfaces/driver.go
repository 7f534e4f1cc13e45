package interfaces

import (
	"context"

	"github.com/ternarybob/respondo/internal/models"
)

// ElementRole names a page control by purpose. Drivers map each role to
// whatever concrete selectors the platform currently renders; callers
// never see selectors.
type ElementRole string

const (
	RoleSearchInput   ElementRole = "search_input"
	RoleFeedContainer ElementRole = "feed_container"
	RolePostItem      ElementRole = "post_item"
	RoleReplyControl  ElementRole = "reply_control"
	RoleReplyInput    ElementRole = "reply_input"
	RoleSubmitButton  ElementRole = "submit_button"
	RoleAccountMenu   ElementRole = "account_menu"
)

// Scraper reads the platform feed through an authenticated browser
type Scraper interface {
	// Search submits a keyword query and waits for the result feed
	Search(ctx context.Context, keyword string) error
	// OpenFeed navigates to the user's default home feed
	OpenFeed(ctx context.Context) error
	// LoadMore scrolls or clicks to extend the current feed. Returns
	// false when the feed reports no further content.
	LoadMore(ctx context.Context) (bool, error)
	// Items extracts the posts currently rendered in the feed
	Items(ctx context.Context) ([]*models.RawPost, error)
	// ResolvePermalink turns a feed item's hint into a canonical post URL
	ResolvePermalink(ctx context.Context, post *models.RawPost) (string, error)
}

// Actioner performs write interactions against a post page
type Actioner interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	// Locate checks that a control with the given role is present,
	// trying each of its known shapes. Returns models.ErrControlNotFound
	// when no shape matches.
	Locate(ctx context.Context, role ElementRole) error
	EnterReply(ctx context.Context, text string) error
	SubmitReply(ctx context.Context) error
}

// Driver is a full authenticated browser handle for one user
type Driver interface {
	Scraper
	Actioner
	// VerifyAuthenticated confirms the injected session is actually
	// logged in, by probing for an account-scoped control.
	VerifyAuthenticated(ctx context.Context) error
	Close() error
}
