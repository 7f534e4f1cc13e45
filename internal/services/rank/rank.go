// -----------------------------------------------------------------------
// Rank Engine - Pure candidate filtering and ordering
// -----------------------------------------------------------------------

// Package rank narrows and orders candidate posts. Every function is
// pure: no storage, no clock, no randomness. The same inputs always
// produce the same selection, which keeps re-runs reproducible.
package rank

import (
	"sort"
	"strings"

	"github.com/ternarybob/respondo/internal/models"
)

// DefaultExclusionTerms disqualify a post regardless of job options.
// Lowercase; matching is case-insensitive.
var DefaultExclusionTerms = []string{
	"hiring",
	"job opening",
	"we're recruiting",
	"sponsored",
	"promoted",
	"giveaway",
	"follow for follow",
}

// Narrow returns the candidates that survive the job's filters:
// engagement floor, exclusion terms, content-length floor and the
// already-acted flag. Discovery order is preserved.
func Narrow(items []*models.CandidateItem, opts models.ReplyOptions, extraStopTerms []string, minContentLength int) []*models.CandidateItem {
	var kept []*models.CandidateItem
	for _, item := range items {
		if item.Acted {
			continue
		}
		if item.Score() < opts.MinReactions {
			continue
		}
		if len(strings.TrimSpace(item.Content)) < minContentLength {
			continue
		}
		if opts.ExcludeFlagged && containsAny(item.Content, DefaultExclusionTerms) {
			continue
		}
		if containsAny(item.Content, extraStopTerms) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// Rank orders candidates by engagement score descending. The sort is
// stable, so equal scores keep their discovery order.
func Rank(items []*models.CandidateItem) []*models.CandidateItem {
	ranked := make([]*models.CandidateItem, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score() > ranked[j].Score()
	})
	return ranked
}

// Select narrows, ranks and truncates to at most limit candidates
func Select(items []*models.CandidateItem, opts models.ReplyOptions, extraStopTerms []string, minContentLength, limit int) []*models.CandidateItem {
	ranked := Rank(Narrow(items, opts, extraStopTerms, minContentLength))
	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func containsAny(content string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(content)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
