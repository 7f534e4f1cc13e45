package scraper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/respondo/internal/models"
)

// Per-field selector fallbacks within a post item. Same approach as the
// role chains: most specific shape first.
var (
	postItemSelectors = []string{
		`article[data-testid="post"]`,
		`div[role="article"]`,
		`div.feed-item`,
	}
	authorSelectors = []string{
		`[data-testid="post-author"]`,
		`a[href*="/in/"] span`,
		`.author-name`,
	}
	contentSelectors = []string{
		`[data-testid="post-content"]`,
		`div[dir="auto"]`,
		`.post-body`,
	}
	reactionSelectors = []string{
		`[data-testid="reaction-count"]`,
		`span[aria-label*="reaction"]`,
		`.reactions-count`,
	}
	replySelectors = []string{
		`[data-testid="reply-count"]`,
		`span[aria-label*="comment"]`,
		`.comments-count`,
	}
	permalinkSelectors = []string{
		`a[data-testid="post-link"]`,
		`a[href*="/posts/"]`,
		`a[href*="/status/"]`,
	}
)

// ParseFeed extracts posts from a feed container's HTML. Individual
// malformed items are skipped, not fatal.
func ParseFeed(html string) ([]*models.RawPost, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed HTML: %w", err)
	}

	var posts []*models.RawPost
	for _, itemSel := range postItemSelectors {
		items := doc.Find(itemSel)
		if items.Length() == 0 {
			continue
		}

		items.Each(func(_ int, s *goquery.Selection) {
			post := parsePost(s)
			if post != nil {
				posts = append(posts, post)
			}
		})
		break // first matching item shape wins
	}

	return posts, nil
}

func parsePost(s *goquery.Selection) *models.RawPost {
	content := firstText(s, contentSelectors)
	if content == "" {
		return nil
	}

	post := &models.RawPost{
		AuthorName: firstText(s, authorSelectors),
		Content:    content,
		Reactions:  parseCount(firstText(s, reactionSelectors)),
		Replies:    parseCount(firstText(s, replySelectors)),
	}

	for _, sel := range permalinkSelectors {
		if href, ok := s.Find(sel).First().Attr("href"); ok && href != "" {
			post.PermalinkHint = href
			break
		}
	}

	for _, sel := range authorSelectors {
		link := s.Find(sel).First().Closest("a")
		if href, ok := link.Attr("href"); ok {
			post.AuthorRef = href
			break
		}
	}

	return post
}

func firstText(s *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(s.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// parseCount parses engagement figures as the platform renders them:
// "42", "1,234", "1.2K", "3M". Unparseable input counts as zero.
func parseCount(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	// Keep only the leading numeric token ("42 reactions" -> "42")
	if idx := strings.IndexByte(text, ' '); idx > 0 {
		text = text[:idx]
	}
	text = strings.ReplaceAll(text, ",", "")

	multiplier := 1.0
	switch {
	case strings.HasSuffix(text, "K"), strings.HasSuffix(text, "k"):
		multiplier = 1_000
		text = text[:len(text)-1]
	case strings.HasSuffix(text, "M"), strings.HasSuffix(text, "m"):
		multiplier = 1_000_000
		text = text[:len(text)-1]
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}
	return int(value * multiplier)
}
