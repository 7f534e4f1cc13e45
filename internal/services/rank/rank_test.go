package rank

import (
	"testing"

	"github.com/ternarybob/respondo/internal/models"
)

func candidate(url string, reactions, replies int, content string) *models.CandidateItem {
	return &models.CandidateItem{
		UserID:    "user-1",
		URL:       url,
		Content:   content,
		Reactions: reactions,
		Replies:   replies,
	}
}

func urls(items []*models.CandidateItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.URL
	}
	return out
}

func TestRankOrdersByScoreDescending(t *testing.T) {
	items := []*models.CandidateItem{
		candidate("a", 1, 0, "low"),
		candidate("b", 10, 5, "high"),
		candidate("c", 4, 2, "mid"),
	}

	ranked := Rank(items)
	got := urls(ranked)
	want := []string{"b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Wrong order: got %v, want %v", got, want)
		}
	}
}

func TestRankStableOnTies(t *testing.T) {
	// Equal scores keep discovery order
	items := []*models.CandidateItem{
		candidate("first", 3, 2, "tie"),
		candidate("second", 5, 0, "tie"),
		candidate("third", 0, 5, "tie"),
	}

	ranked := Rank(items)
	got := urls(ranked)
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tie order broken: got %v, want %v", got, want)
		}
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	items := []*models.CandidateItem{
		candidate("a", 1, 0, "low"),
		candidate("b", 10, 0, "high"),
	}

	Rank(items)

	if items[0].URL != "a" || items[1].URL != "b" {
		t.Errorf("Input slice was reordered: %v", urls(items))
	}
}

func TestNarrowAppliesEngagementFloor(t *testing.T) {
	items := []*models.CandidateItem{
		candidate("a", 5, 0, "keeps"),
		candidate("b", 2, 2, "keeps too"), // reactions+replies = 4
		candidate("c", 1, 0, "dropped"),
	}

	kept := Narrow(items, models.ReplyOptions{MinReactions: 3}, nil, 0)
	if len(kept) != 2 {
		t.Fatalf("Expected 2 kept, got %v", urls(kept))
	}
}

func TestNarrowExcludesFlaggedContent(t *testing.T) {
	items := []*models.CandidateItem{
		candidate("a", 10, 0, "We're HIRING a senior engineer"),
		candidate("b", 10, 0, "Sponsored: buy now"),
		candidate("c", 10, 0, "Genuine discussion about Go"),
	}

	kept := Narrow(items, models.ReplyOptions{ExcludeFlagged: true}, nil, 0)
	if len(kept) != 1 || kept[0].URL != "c" {
		t.Fatalf("Expected only c, got %v", urls(kept))
	}

	// Without the flag the same posts survive
	kept = Narrow(items, models.ReplyOptions{}, nil, 0)
	if len(kept) != 3 {
		t.Fatalf("Expected all kept without flag, got %v", urls(kept))
	}
}

func TestNarrowAppliesExtraStopTerms(t *testing.T) {
	items := []*models.CandidateItem{
		candidate("a", 10, 0, "crypto moonshot opportunity"),
		candidate("b", 10, 0, "plain post"),
	}

	kept := Narrow(items, models.ReplyOptions{}, []string{"crypto"}, 0)
	if len(kept) != 1 || kept[0].URL != "b" {
		t.Fatalf("Stop term not applied, got %v", urls(kept))
	}
}

func TestNarrowAppliesContentLengthFloor(t *testing.T) {
	items := []*models.CandidateItem{
		candidate("a", 10, 0, "ok"),
		candidate("b", 10, 0, "   padded   "), // trims to 6 chars
		candidate("c", 10, 0, "long enough to keep"),
	}

	kept := Narrow(items, models.ReplyOptions{}, nil, 10)
	if len(kept) != 1 || kept[0].URL != "c" {
		t.Fatalf("Content length floor not applied, got %v", urls(kept))
	}

	// Zero threshold keeps everything
	kept = Narrow(items, models.ReplyOptions{}, nil, 0)
	if len(kept) != 3 {
		t.Fatalf("Expected all kept at zero threshold, got %v", urls(kept))
	}
}

func TestNarrowSkipsActedCandidates(t *testing.T) {
	acted := candidate("a", 10, 0, "already replied")
	acted.Acted = true
	items := []*models.CandidateItem{acted, candidate("b", 5, 0, "fresh")}

	kept := Narrow(items, models.ReplyOptions{}, nil, 0)
	if len(kept) != 1 || kept[0].URL != "b" {
		t.Fatalf("Acted candidate not skipped, got %v", urls(kept))
	}
}

func TestSelectTruncatesToLimit(t *testing.T) {
	items := []*models.CandidateItem{
		candidate("a", 1, 0, "x"),
		candidate("b", 9, 0, "x"),
		candidate("c", 5, 0, "x"),
		candidate("d", 7, 0, "x"),
	}

	selected := Select(items, models.ReplyOptions{}, nil, 0, 2)
	got := urls(selected)
	want := []string{"b", "d"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Wrong selection: got %v, want %v", got, want)
	}
}

func TestSelectFewerThanLimit(t *testing.T) {
	items := []*models.CandidateItem{candidate("a", 5, 0, "only one")}

	selected := Select(items, models.ReplyOptions{}, nil, 0, 5)
	if len(selected) != 1 {
		t.Fatalf("Expected the single candidate, got %d", len(selected))
	}
}

func TestSelectIsIdempotent(t *testing.T) {
	items := []*models.CandidateItem{
		candidate("a", 3, 1, "x"),
		candidate("b", 3, 1, "x"),
		candidate("c", 8, 0, "x"),
	}

	first := urls(Select(items, models.ReplyOptions{}, nil, 0, 3))
	second := urls(Select(items, models.ReplyOptions{}, nil, 0, 3))

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("Selection not reproducible: %v vs %v", first, second)
		}
	}
}

func TestSelectEmptyInput(t *testing.T) {
	if got := Select(nil, models.ReplyOptions{}, nil, 0, 5); len(got) != 0 {
		t.Errorf("Expected empty selection, got %d", len(got))
	}
}
