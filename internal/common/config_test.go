package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	if config.Worker.Concurrency != 1 {
		t.Errorf("Expected single-concurrency worker default, got %d", config.Worker.Concurrency)
	}
	if config.Worker.AttemptBound != 3 {
		t.Errorf("Expected attempt bound 3, got %d", config.Worker.AttemptBound)
	}
	if got := config.WorkerCooldown(); got != 5*time.Minute {
		t.Errorf("Expected 5m cooldown, got %v", got)
	}
	if config.Governor.PerMinute != 30 || config.Governor.PerHour != 300 {
		t.Errorf("Unexpected governor defaults: %d/min %d/hour",
			config.Governor.PerMinute, config.Governor.PerHour)
	}
	if config.Scrape.OverscrapeFactor != 1.5 {
		t.Errorf("Expected overscrape factor 1.5, got %v", config.Scrape.OverscrapeFactor)
	}
	if got := config.EngageActionDelay(); got != 5*time.Second {
		t.Errorf("Expected 5s action delay, got %v", got)
	}
	if config.Reply.FallbackText == "" {
		t.Error("Fallback reply text must have a default")
	}
}

func TestLoadFromFilesMergesInOrder(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	if err := os.WriteFile(base, []byte(`
environment = "production"

[governor]
per_minute = 10

[browser]
base_url = "https://feed.example.com"
`), 0644); err != nil {
		t.Fatal(err)
	}

	override := filepath.Join(dir, "override.toml")
	if err := os.WriteFile(override, []byte(`
[governor]
per_minute = 20
`), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadFromFiles(base, override)
	if err != nil {
		t.Fatal(err)
	}

	if config.Environment != "production" {
		t.Errorf("Expected environment from base file, got %s", config.Environment)
	}
	if config.Governor.PerMinute != 20 {
		t.Errorf("Later file should win, got per_minute=%d", config.Governor.PerMinute)
	}
	if config.Browser.BaseURL != "https://feed.example.com" {
		t.Errorf("Base file value should survive the merge, got %s", config.Browser.BaseURL)
	}
	if config.Governor.PerHour != 300 {
		t.Errorf("Untouched fields keep defaults, got per_hour=%d", config.Governor.PerHour)
	}
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	if _, err := LoadFromFiles("/nonexistent/respondo.toml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RESPONDO_WORKER_ATTEMPT_BOUND", "5")
	t.Setenv("RESPONDO_GOVERNOR_PER_MINUTE", "12")
	t.Setenv("RESPONDO_BROWSER_BASE_URL", "https://staging.feed.example.com")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-key")

	config, err := LoadFromFiles()
	if err != nil {
		t.Fatal(err)
	}

	if config.Worker.AttemptBound != 5 {
		t.Errorf("Expected attempt bound override, got %d", config.Worker.AttemptBound)
	}
	if config.Governor.PerMinute != 12 {
		t.Errorf("Expected governor override, got %d", config.Governor.PerMinute)
	}
	if config.Browser.BaseURL != "https://staging.feed.example.com" {
		t.Errorf("Expected base URL override, got %s", config.Browser.BaseURL)
	}
	if config.Reply.APIKey != "sk-test-key" {
		t.Errorf("Expected API key from environment, got %q", config.Reply.APIKey)
	}
}

func TestDurationAccessorsFallBack(t *testing.T) {
	config := NewDefaultConfig()
	config.Worker.JobTimeout = "not-a-duration"

	if got := config.WorkerJobTimeout(); got != 25*time.Minute {
		t.Errorf("Invalid duration should fall back to default, got %v", got)
	}
}
