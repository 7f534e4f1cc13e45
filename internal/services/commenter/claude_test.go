package commenter

import (
	"strings"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/respondo/internal/common"
	"github.com/ternarybob/respondo/internal/models"
)

func TestNewClaudeCommenterRequiresAPIKey(t *testing.T) {
	_, err := NewClaudeCommenter(&common.ReplyConfig{}, 0, arbor.NewLogger())
	if err == nil {
		t.Fatal("Expected error for missing API key")
	}
}

func TestBuildPromptReflectsOptions(t *testing.T) {
	c := &ClaudeCommenter{}
	candidate := &models.CandidateItem{
		AuthorName: "Alice",
		Content:    "Thoughts on observability-driven development?",
		Reactions:  12,
		Replies:    3,
	}

	prompt := c.buildPrompt(candidate, models.ReplyOptions{
		Tone:         "curious",
		Length:       "short",
		WantEmoji:    true,
		WantHashtags: false,
	})

	for _, want := range []string{
		"Alice",
		"12 reactions, 3 replies",
		"observability-driven development",
		"Tone: curious",
		"one sentence",
		"emoji is welcome",
		"No hashtags",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPromptDefaults(t *testing.T) {
	c := &ClaudeCommenter{}
	prompt := c.buildPrompt(&models.CandidateItem{Content: "plain post"}, models.ReplyOptions{})

	if !strings.Contains(prompt, "an unknown author") {
		t.Error("Expected unknown author placeholder")
	}
	if !strings.Contains(prompt, "No emoji") || !strings.Contains(prompt, "No hashtags") {
		t.Error("Defaults should forbid emoji and hashtags")
	}
}
