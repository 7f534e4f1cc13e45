// -----------------------------------------------------------------------
// Candidate - Scraped post records considered for engagement
// -----------------------------------------------------------------------

package models

import "time"

// CandidateKey builds the uniqueness key for a candidate. A post is unique
// per user, not globally - two users may both hold a candidate for the same
// permalink.
func CandidateKey(userID, url string) string {
	return userID + "|" + url
}

// CandidateItem is a scraped post stored for ranking and engagement.
// Key is CandidateKey(UserID, URL).
type CandidateItem struct {
	Key          string    `json:"key" badgerhold:"key"`
	UserID       string    `json:"user_id"`
	JobID        string    `json:"job_id"`
	URL          string    `json:"url"`
	AuthorName   string    `json:"author_name"`
	AuthorRef    string    `json:"author_ref,omitempty"`
	Content      string    `json:"content"`
	Reactions    int       `json:"reactions"`
	Replies      int       `json:"replies"`
	Keyword      string    `json:"keyword"`
	DiscoveredAt time.Time `json:"discovered_at"`
	// Acted is set once a reply has been posted against this candidate,
	// along with when and with what text.
	Acted      bool       `json:"acted"`
	ActedAt    *time.Time `json:"acted_at,omitempty"`
	ActedReply string     `json:"acted_reply,omitempty"`
}

// Score is the ranking weight of a candidate - total visible engagement
func (c *CandidateItem) Score() int {
	return c.Reactions + c.Replies
}

// RawPost is a post as extracted from the feed DOM, before permalink
// resolution and persistence
type RawPost struct {
	AuthorName string
	AuthorRef  string
	Content    string
	Reactions  int
	Replies    int
	// PermalinkHint is whatever href the feed item carried, if any.
	// May be empty; resolution fills in the canonical URL.
	PermalinkHint string
}
