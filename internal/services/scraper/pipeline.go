// -----------------------------------------------------------------------
// Scrape Pipeline - Keyword-driven candidate collection
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/respondo/internal/interfaces"
	"github.com/ternarybob/respondo/internal/models"
	"github.com/ternarybob/respondo/internal/services/governor"
)

// Config bounds a collection run
type Config struct {
	OverscrapeFactor float64
	StagnationBound  int
	MaxLoadMore      int
	MinContentLength int
	StopTerms        []string
}

// Pipeline collects candidate posts for a job. It overscrapes past the
// job's action count so the downstream filter has room to discard, and
// stops early when the feed stops yielding.
type Pipeline struct {
	governor   *governor.Governor
	candidates interfaces.CandidateStorage
	config     Config
	logger     arbor.ILogger
}

// NewPipeline creates a collection pipeline
func NewPipeline(gov *governor.Governor, candidates interfaces.CandidateStorage, config Config, logger arbor.ILogger) *Pipeline {
	if config.OverscrapeFactor < 1 {
		config.OverscrapeFactor = 1.5
	}
	if config.StagnationBound <= 0 {
		config.StagnationBound = 3
	}
	if config.MaxLoadMore <= 0 {
		config.MaxLoadMore = 20
	}
	return &Pipeline{
		governor:   gov,
		candidates: candidates,
		config:     config,
		logger:     logger,
	}
}

// Collect scrapes each of the job's keywords and returns new candidates,
// deduplicated within the run and against storage. The result may fall
// short of the target; the caller decides whether a shortfall matters.
func (p *Pipeline) Collect(ctx context.Context, s interfaces.Scraper, job *models.EngagementJob) ([]*models.CandidateItem, error) {
	target := int(math.Ceil(float64(job.ActionCount) * p.config.OverscrapeFactor))
	seen := make(map[string]bool)
	var collected []*models.CandidateItem

	for _, keyword := range job.Keywords {
		if len(collected) >= target {
			break
		}
		if err := ctx.Err(); err != nil {
			return collected, err
		}

		if err := p.governor.Reserve(ctx); err != nil {
			return collected, err
		}
		if err := s.Search(ctx, keyword); err != nil {
			// One keyword failing to search is tolerable; the rest may
			// still fill the target.
			p.logger.Warn().Str("keyword", keyword).Err(err).Msg("Keyword search failed, continuing")
			continue
		}

		reopen := func() error { return s.Search(ctx, keyword) }
		added, err := p.harvestFeed(ctx, s, job, keyword, seen, &collected, target, reopen)
		if err != nil {
			if ctx.Err() != nil {
				return collected, ctx.Err()
			}
			// Per-keyword extraction failures are transient; the rest of
			// the keyword list may still fill the target.
			p.logger.Warn().Str("keyword", keyword).Err(err).Msg("Keyword harvest failed, continuing")
			continue
		}

		p.logger.Info().
			Str("keyword", keyword).
			Int("added", added).
			Int("collected", len(collected)).
			Int("target", target).
			Msg("Keyword scrape complete")
	}

	// Fallback pass: when keywords together could not even cover the
	// action count, sweep the home feed once.
	if len(collected) < job.ActionCount {
		p.logger.Info().
			Int("collected", len(collected)).
			Int("action_count", job.ActionCount).
			Msg("Keyword yield short of action count, sweeping home feed")

		if err := p.governor.Reserve(ctx); err != nil {
			return collected, err
		}
		if err := s.OpenFeed(ctx); err != nil {
			p.logger.Warn().Err(err).Msg("Home feed sweep failed")
			return collected, nil
		}
		reopen := func() error { return s.OpenFeed(ctx) }
		if _, err := p.harvestFeed(ctx, s, job, "", seen, &collected, target, reopen); err != nil {
			if ctx.Err() != nil {
				return collected, ctx.Err()
			}
			p.logger.Warn().Err(err).Msg("Home feed harvest failed")
		}
	}

	return collected, nil
}

// harvestFeed drains the currently open feed: extract, filter, resolve,
// then load more until the target is met, the feed ends, or yield
// stagnates. Throttle signals back off and reopen the feed before the
// error escalates to the caller.
func (p *Pipeline) harvestFeed(ctx context.Context, s interfaces.Scraper, job *models.EngagementJob, keyword string, seen map[string]bool, collected *[]*models.CandidateItem, target int, reopen func() error) (int, error) {
	added := 0
	stagnant := 0

	for loads := 0; loads <= p.config.MaxLoadMore; loads++ {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		var items []*models.RawPost
		err := p.governor.WithBackoff(ctx, func() error {
			var extractErr error
			items, extractErr = s.Items(ctx)
			return extractErr
		}, reopen)
		if err != nil {
			return added, err
		}

		yield := 0
		for _, raw := range items {
			if len(*collected) >= target {
				return added, nil
			}

			candidate, ok := p.admit(ctx, s, raw, job, keyword, seen)
			if !ok {
				continue
			}
			*collected = append(*collected, candidate)
			added++
			yield++
		}

		if len(*collected) >= target {
			return added, nil
		}

		if yield == 0 {
			stagnant++
			if stagnant >= p.config.StagnationBound {
				p.logger.Debug().
					Str("keyword", keyword).
					Int("stagnant_loads", stagnant).
					Msg("Feed yield stagnated, stopping")
				return added, nil
			}
		} else {
			stagnant = 0
		}

		// A scroll is a platform action like any other
		if err := p.governor.Reserve(ctx); err != nil {
			return added, err
		}
		var more bool
		err = p.governor.WithBackoff(ctx, func() error {
			var loadErr error
			more, loadErr = s.LoadMore(ctx)
			return loadErr
		}, reopen)
		if err != nil {
			return added, err
		}
		if !more {
			return added, nil
		}
	}

	return added, nil
}

// admit applies the cheap pre-resolution filters, resolves the
// permalink and dedups. A rejected or malformed item is never an error.
func (p *Pipeline) admit(ctx context.Context, s interfaces.Scraper, raw *models.RawPost, job *models.EngagementJob, keyword string, seen map[string]bool) (*models.CandidateItem, bool) {
	content := strings.TrimSpace(raw.Content)
	if len(content) < p.config.MinContentLength {
		return nil, false
	}
	if raw.Reactions+raw.Replies < job.Options.MinReactions {
		return nil, false
	}
	if containsStopTerm(content, p.config.StopTerms) {
		return nil, false
	}

	url, err := s.ResolvePermalink(ctx, raw)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Skipping post with unresolvable permalink")
		return nil, false
	}

	if seen[url] {
		return nil, false
	}
	seen[url] = true

	exists, err := p.candidates.HasCandidate(ctx, job.UserID, url)
	if err != nil {
		p.logger.Warn().Err(err).Str("url", url).Msg("Candidate lookup failed, skipping post")
		return nil, false
	}
	if exists {
		return nil, false
	}

	return &models.CandidateItem{
		Key:          models.CandidateKey(job.UserID, url),
		UserID:       job.UserID,
		JobID:        job.ID,
		URL:          url,
		AuthorName:   raw.AuthorName,
		AuthorRef:    raw.AuthorRef,
		Content:      content,
		Reactions:    raw.Reactions,
		Replies:      raw.Replies,
		Keyword:      keyword,
		DiscoveredAt: time.Now(),
	}, true
}

func containsStopTerm(content string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(content)
	for _, term := range terms {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
