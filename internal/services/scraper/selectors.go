package scraper

import "github.com/ternarybob/respondo/internal/interfaces"

// roleSelectors maps each control role to its known selector shapes,
// ordered most to least specific. The platform renders different markup
// across rollout cohorts, so every role carries fallbacks; callers only
// ever name the role.
var roleSelectors = map[interfaces.ElementRole][]string{
	interfaces.RoleSearchInput: {
		`input[data-testid="search-input"]`,
		`input[role="searchbox"]`,
		`input[placeholder*="Search"]`,
	},
	interfaces.RoleFeedContainer: {
		`div[data-testid="feed"]`,
		`main [role="feed"]`,
		`div.feed-container`,
	},
	interfaces.RolePostItem: {
		`article[data-testid="post"]`,
		`div[role="article"]`,
		`div.feed-item`,
	},
	interfaces.RoleReplyControl: {
		`button[data-testid="reply-button"]`,
		`button[aria-label*="Reply"]`,
		`button[aria-label*="Comment"]`,
	},
	interfaces.RoleReplyInput: {
		`div[data-testid="reply-editor"] [contenteditable="true"]`,
		`div[role="textbox"][contenteditable="true"]`,
		`textarea[placeholder*="reply"]`,
	},
	interfaces.RoleSubmitButton: {
		`button[data-testid="reply-submit"]`,
		`button[type="submit"][aria-label*="Reply"]`,
		`button[aria-label*="Post"]`,
	},
	interfaces.RoleAccountMenu: {
		`button[data-testid="account-menu"]`,
		`img[alt*="profile" i]`,
		`a[href*="/me"]`,
	},
}

// selectorsFor returns the fallback chain for a role
func selectorsFor(role interfaces.ElementRole) []string {
	return roleSelectors[role]
}
