package scraper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/respondo/internal/models"
	"github.com/ternarybob/respondo/internal/services/governor"
)

// mockScraper serves canned feed batches, one per LoadMore round.
// Queued errors are consumed one per call before normal behavior resumes.
type mockScraper struct {
	batches      [][]*models.RawPost
	round        int
	searches     []string
	feedOpens    int
	failSearch   map[string]bool
	endOfFeed    bool
	itemErrs     []error
	loadMoreErrs []error
}

func (m *mockScraper) Search(ctx context.Context, keyword string) error {
	m.searches = append(m.searches, keyword)
	if m.failSearch[keyword] {
		return fmt.Errorf("search render timeout")
	}
	m.round = 0
	return nil
}

func (m *mockScraper) OpenFeed(ctx context.Context) error {
	m.feedOpens++
	m.round = 0
	return nil
}

func (m *mockScraper) LoadMore(ctx context.Context) (bool, error) {
	if len(m.loadMoreErrs) > 0 {
		err := m.loadMoreErrs[0]
		m.loadMoreErrs = m.loadMoreErrs[1:]
		return false, err
	}
	if m.endOfFeed || m.round >= len(m.batches)-1 {
		return false, nil
	}
	m.round++
	return true, nil
}

func (m *mockScraper) Items(ctx context.Context) ([]*models.RawPost, error) {
	if len(m.itemErrs) > 0 {
		err := m.itemErrs[0]
		m.itemErrs = m.itemErrs[1:]
		return nil, err
	}
	if m.round < len(m.batches) {
		return m.batches[m.round], nil
	}
	return nil, nil
}

func (m *mockScraper) ResolvePermalink(ctx context.Context, post *models.RawPost) (string, error) {
	if post.PermalinkHint == "" {
		return "", fmt.Errorf("no permalink")
	}
	return "https://feed.example" + post.PermalinkHint, nil
}

// mockCandidateStore only answers existence checks
type mockCandidateStore struct {
	existing map[string]bool
}

func (m *mockCandidateStore) InsertCandidates(ctx context.Context, c []*models.CandidateItem) (int, error) {
	return len(c), nil
}

func (m *mockCandidateStore) HasCandidate(ctx context.Context, userID, url string) (bool, error) {
	return m.existing[models.CandidateKey(userID, url)], nil
}

func (m *mockCandidateStore) GetCandidate(ctx context.Context, userID, url string) (*models.CandidateItem, error) {
	return nil, fmt.Errorf("not found")
}

func (m *mockCandidateStore) ListCandidatesByJob(ctx context.Context, jobID string) ([]*models.CandidateItem, error) {
	return nil, nil
}

func (m *mockCandidateStore) MarkActed(ctx context.Context, userID, url, replyText string) error {
	return nil
}

func rawPost(id string, reactions int) *models.RawPost {
	return &models.RawPost{
		AuthorName:    "Author",
		Content:       "This is a sufficiently long piece of post content for the filter to accept.",
		Reactions:     reactions,
		PermalinkHint: "/posts/" + id,
	}
}

func testPipeline(store *mockCandidateStore, config Config) *Pipeline {
	gov := governor.New(arbor.NewLogger(), governor.Config{PerMinute: 1000, PerHour: 10000})
	return NewPipeline(gov, store, config, arbor.NewLogger())
}

func testJob(keywords []string, actionCount int) *models.EngagementJob {
	return models.NewEngagementJob("user-1", keywords, actionCount, models.ReplyOptions{})
}

func TestCollectReachesOverscrapeTarget(t *testing.T) {
	// 3 keywords, actionCount 5 -> target ceil(5*1.5) = 8
	sc := &mockScraper{batches: [][]*models.RawPost{
		{rawPost("a1", 5), rawPost("a2", 3), rawPost("a3", 1), rawPost("a4", 2), rawPost("a5", 9), rawPost("a6", 4), rawPost("a7", 7), rawPost("a8", 2), rawPost("a9", 1)},
	}}
	p := testPipeline(&mockCandidateStore{existing: map[string]bool{}}, Config{MinContentLength: 10})

	collected, err := p.Collect(context.Background(), sc, testJob([]string{"go", "rust", "zig"}, 5))
	if err != nil {
		t.Fatal(err)
	}
	if len(collected) != 8 {
		t.Errorf("Expected exactly target 8 candidates, got %d", len(collected))
	}
	// First keyword already fills the target
	if len(sc.searches) != 1 {
		t.Errorf("Expected 1 search, got %v", sc.searches)
	}
}

func TestCollectDedupsAcrossKeywords(t *testing.T) {
	// Both keywords return the same posts; only one copy survives
	sc := &mockScraper{batches: [][]*models.RawPost{
		{rawPost("same1", 5), rawPost("same2", 3)},
	}}
	p := testPipeline(&mockCandidateStore{existing: map[string]bool{}}, Config{MinContentLength: 10})

	collected, err := p.Collect(context.Background(), sc, testJob([]string{"go", "golang"}, 4))
	if err != nil {
		t.Fatal(err)
	}
	if len(collected) != 2 {
		t.Errorf("Expected 2 unique candidates, got %d", len(collected))
	}
}

func TestCollectSkipsStoredCandidates(t *testing.T) {
	sc := &mockScraper{batches: [][]*models.RawPost{
		{rawPost("old", 5), rawPost("new", 3)},
	}}
	store := &mockCandidateStore{existing: map[string]bool{
		models.CandidateKey("user-1", "https://feed.example/posts/old"): true,
	}}
	p := testPipeline(store, Config{MinContentLength: 10})

	collected, err := p.Collect(context.Background(), sc, testJob([]string{"go"}, 2))
	if err != nil {
		t.Fatal(err)
	}
	if len(collected) != 1 {
		t.Fatalf("Expected 1 fresh candidate, got %d", len(collected))
	}
	if collected[0].URL != "https://feed.example/posts/new" {
		t.Errorf("Wrong candidate kept: %s", collected[0].URL)
	}
}

func TestCollectAppliesPreFilters(t *testing.T) {
	short := &models.RawPost{Content: "tiny", PermalinkHint: "/posts/short", Reactions: 50}
	noLink := &models.RawPost{Content: "This post has plenty of content but no permalink to resolve at all."}
	flagged := rawPost("spam", 50)
	flagged.Content = "We are HIRING! Apply now to this great opportunity, don't miss out."
	weak := rawPost("weak", 0)
	good := rawPost("good", 10)

	sc := &mockScraper{batches: [][]*models.RawPost{{short, noLink, flagged, weak, good}}}
	p := testPipeline(&mockCandidateStore{existing: map[string]bool{}}, Config{
		MinContentLength: 10,
		StopTerms:        []string{"hiring"},
	})

	job := testJob([]string{"go"}, 5)
	job.Options.MinReactions = 2

	collected, err := p.Collect(context.Background(), sc, job)
	if err != nil {
		t.Fatal(err)
	}
	if len(collected) != 1 {
		t.Fatalf("Expected only the good post, got %d", len(collected))
	}
	if collected[0].URL != "https://feed.example/posts/good" {
		t.Errorf("Wrong post admitted: %s", collected[0].URL)
	}
}

func TestCollectFallsBackToHomeFeed(t *testing.T) {
	// Keyword search fails entirely; fallback sweep must still run
	sc := &mockScraper{
		batches:    [][]*models.RawPost{{rawPost("home1", 4), rawPost("home2", 2)}},
		failSearch: map[string]bool{"go": true},
	}
	p := testPipeline(&mockCandidateStore{existing: map[string]bool{}}, Config{MinContentLength: 10})

	collected, err := p.Collect(context.Background(), sc, testJob([]string{"go"}, 2))
	if err != nil {
		t.Fatal(err)
	}
	if sc.feedOpens != 1 {
		t.Errorf("Expected home feed fallback, feedOpens=%d", sc.feedOpens)
	}
	if len(collected) != 2 {
		t.Errorf("Expected 2 candidates from fallback, got %d", len(collected))
	}
}

func TestCollectContinuesPastKeywordExtractionFailure(t *testing.T) {
	// Extraction blows up on the first keyword; the second keyword must
	// still run and fill the job on its own.
	sc := &mockScraper{
		batches:  [][]*models.RawPost{{rawPost("b1", 5), rawPost("b2", 3)}},
		itemErrs: []error{models.ErrControlNotFound},
	}
	p := testPipeline(&mockCandidateStore{existing: map[string]bool{}}, Config{MinContentLength: 10})

	collected, err := p.Collect(context.Background(), sc, testJob([]string{"first", "second"}, 2))
	if err != nil {
		t.Fatalf("Per-keyword extraction failure must not be fatal: %v", err)
	}
	if len(sc.searches) != 2 {
		t.Fatalf("Expected both keywords searched, got %v", sc.searches)
	}
	if len(collected) != 2 {
		t.Errorf("Expected 2 candidates from the surviving keyword, got %d", len(collected))
	}
}

func throttlePipeline(sc *mockScraper) *Pipeline {
	gov := governor.New(arbor.NewLogger(), governor.Config{
		PerMinute:   1000,
		PerHour:     10000,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
		MaxRetries:  2,
	})
	return NewPipeline(gov, &mockCandidateStore{existing: map[string]bool{}}, Config{MinContentLength: 10}, arbor.NewLogger())
}

func TestCollectBacksOffThrottledExtraction(t *testing.T) {
	sc := &mockScraper{
		batches:  [][]*models.RawPost{{rawPost("c1", 5), rawPost("c2", 3)}},
		itemErrs: []error{fmt.Errorf("429 too many requests")},
	}
	p := throttlePipeline(sc)

	collected, err := p.Collect(context.Background(), sc, testJob([]string{"go"}, 2))
	if err != nil {
		t.Fatal(err)
	}
	// Recovery re-runs the keyword search before the retry
	if len(sc.searches) != 2 {
		t.Errorf("Expected search + recovery re-search, got %v", sc.searches)
	}
	if len(collected) != 2 {
		t.Errorf("Expected 2 candidates after recovery, got %d", len(collected))
	}
}

func TestCollectBacksOffThrottledLoadMore(t *testing.T) {
	sc := &mockScraper{
		batches:      [][]*models.RawPost{{rawPost("d1", 5)}, {rawPost("d2", 3)}},
		loadMoreErrs: []error{fmt.Errorf("rate limit exceeded")},
	}
	p := throttlePipeline(sc)

	collected, err := p.Collect(context.Background(), sc, testJob([]string{"go"}, 2))
	if err != nil {
		t.Fatal(err)
	}
	if len(sc.searches) != 2 {
		t.Errorf("Expected search + recovery re-search, got %v", sc.searches)
	}
	if len(collected) != 2 {
		t.Errorf("Expected both batches harvested after recovery, got %d", len(collected))
	}
}

func TestCollectStopsOnStagnation(t *testing.T) {
	// Every batch yields nothing new; the loop must stop at the
	// stagnation bound, not run out the load-more cap.
	loadMores := 0
	sc := &countingScraper{
		post:      rawPost("only", 5),
		loadMores: &loadMores,
	}
	p := testPipeline(&mockCandidateStore{existing: map[string]bool{}}, Config{
		MinContentLength: 10,
		StagnationBound:  3,
		MaxLoadMore:      50,
	})

	_, err := p.Collect(context.Background(), sc, testJob([]string{"go"}, 10))
	if err != nil {
		t.Fatal(err)
	}
	if loadMores > 4 {
		t.Errorf("Expected stop at stagnation bound, got %d load-mores", loadMores)
	}
}

// countingScraper always serves the same single post and counts LoadMore
type countingScraper struct {
	post      *models.RawPost
	loadMores *int
}

func (c *countingScraper) Search(ctx context.Context, keyword string) error { return nil }
func (c *countingScraper) OpenFeed(ctx context.Context) error               { return nil }
func (c *countingScraper) LoadMore(ctx context.Context) (bool, error) {
	*c.loadMores++
	return true, nil
}
func (c *countingScraper) Items(ctx context.Context) ([]*models.RawPost, error) {
	return []*models.RawPost{c.post}, nil
}
func (c *countingScraper) ResolvePermalink(ctx context.Context, post *models.RawPost) (string, error) {
	return "https://feed.example" + post.PermalinkHint, nil
}
