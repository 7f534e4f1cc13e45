package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Logging     LoggingConfig   `toml:"logging"`
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Worker      WorkerConfig    `toml:"worker"`
	Governor    GovernorConfig  `toml:"governor"`
	Browser     BrowserConfig   `toml:"browser"`
	Scrape      ScrapeConfig    `toml:"scrape"`
	Reply       ReplyConfig     `toml:"reply"`
	Engage      EngageConfig    `toml:"engage"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type QueueConfig struct {
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
	PollInterval      string `toml:"poll_interval"`      // How often workers poll for messages
	VisibilityTimeout string `toml:"visibility_timeout"` // Message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive"`        // Max times a message can be received before dead-letter
}

type WorkerConfig struct {
	Concurrency    int    `toml:"concurrency"`     // Number of concurrent job workers
	JobTimeout     string `toml:"job_timeout"`     // Wall-clock limit for a single job run
	Cooldown       string `toml:"cooldown"`        // Re-run suppression window after completion
	AttemptBound   int    `toml:"attempt_bound"`   // Failed attempts before permanent failure
	RetryDelayBase string `toml:"retry_delay_base"` // Base delay for re-enqueue after failure
}

// GovernorConfig bounds platform-facing action rates
type GovernorConfig struct {
	PerMinute   int    `toml:"per_minute"`   // Max platform actions per minute
	PerHour     int    `toml:"per_hour"`     // Max platform actions per hour
	BackoffBase string `toml:"backoff_base"` // Base duration for throttle backoff
	BackoffCap  string `toml:"backoff_cap"`  // Ceiling for throttle backoff
	MaxRetries  int    `toml:"max_retries"`  // Throttle retries before giving up
}

type BrowserConfig struct {
	BaseURL         string `toml:"base_url"`         // Feed platform base URL
	Headless        bool   `toml:"headless"`         // Run browsers headless
	PoolSize        int    `toml:"pool_size"`        // Max concurrent browser instances
	IdleTTL         string `toml:"idle_ttl"`         // Evict idle browsers after this long
	NavigateTimeout string `toml:"navigate_timeout"` // Page navigation timeout
	UserAgent       string `toml:"user_agent"`       // Default user agent string
}

type ScrapeConfig struct {
	OverscrapeFactor float64  `toml:"overscrape_factor"` // Collect factor x action_count candidates
	StagnationBound  int      `toml:"stagnation_bound"`  // Consecutive yield-free loads before stopping
	MaxLoadMore      int      `toml:"max_load_more"`     // Hard cap on load-more iterations per keyword
	MinContentLength int      `toml:"min_content_length"` // Drop posts with less visible text than this
	StopTerms        []string `toml:"stop_terms"`        // Terms that disqualify a post outright
}

// ReplyConfig contains Anthropic Claude API configuration for reply drafting
type ReplyConfig struct {
	APIKey       string  `toml:"api_key"`       // Anthropic API key (ANTHROPIC_API_KEY or config)
	Model        string  `toml:"model"`         // Model for reply drafting
	MaxTokens    int     `toml:"max_tokens"`    // Maximum tokens in response
	Temperature  float64 `toml:"temperature"`   // Completion temperature
	Timeout      string  `toml:"timeout"`       // Per-draft operation timeout
	FallbackText string  `toml:"fallback_text"` // Reply used when drafting fails
}

type EngageConfig struct {
	ActionDelay string `toml:"action_delay"` // Minimum spacing between posted replies
}

type SchedulerConfig struct {
	ReaperSchedule string `toml:"reaper_schedule"` // Cron spec for the stale-job reaper
	StaleThreshold string `toml:"stale_threshold"` // Active jobs older than this are presumed orphaned
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in respondo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Queue: QueueConfig{
			QueueName:         "respondo_jobs",
			PollInterval:      "1s",
			VisibilityTimeout: "30m", // must exceed the longest plausible job run
			MaxReceive:        5,
		},
		Worker: WorkerConfig{
			Concurrency:    1,
			JobTimeout:     "25m",
			Cooldown:       "5m",
			AttemptBound:   3,
			RetryDelayBase: "2s",
		},
		Governor: GovernorConfig{
			PerMinute:   30,
			PerHour:     300,
			BackoffBase: "2s",
			BackoffCap:  "60s",
			MaxRetries:  3,
		},
		Browser: BrowserConfig{
			BaseURL:         "https://www.feedplatform.example",
			Headless:        true,
			PoolSize:        2,
			IdleTTL:         "10m",
			NavigateTimeout: "30s",
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Scrape: ScrapeConfig{
			OverscrapeFactor: 1.5,
			StagnationBound:  3,
			MaxLoadMore:      20,
			MinContentLength: 40,
			StopTerms:        []string{}, // defaults applied by the rank engine
		},
		Reply: ReplyConfig{
			APIKey:       "", // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:        "claude-haiku-3-5-20241022",
			MaxTokens:    1024,
			Temperature:  0.7,
			Timeout:      "2m",
			FallbackText: "Thanks for sharing this - really interesting perspective.",
		},
		Engage: EngageConfig{
			ActionDelay: "5s",
		},
		Scheduler: SchedulerConfig{
			ReaperSchedule: "@every 2m",
			StaleThreshold: "30m",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files.
// Later files override earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RESPONDO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Logging configuration
	if level := os.Getenv("RESPONDO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("RESPONDO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("RESPONDO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Queue configuration
	if queueName := os.Getenv("RESPONDO_QUEUE_NAME"); queueName != "" {
		config.Queue.QueueName = queueName
	}
	if pollInterval := os.Getenv("RESPONDO_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if visibilityTimeout := os.Getenv("RESPONDO_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxReceive := os.Getenv("RESPONDO_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if mr, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = mr
		}
	}

	// Worker configuration
	if concurrency := os.Getenv("RESPONDO_WORKER_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Worker.Concurrency = c
		}
	}
	if jobTimeout := os.Getenv("RESPONDO_WORKER_JOB_TIMEOUT"); jobTimeout != "" {
		config.Worker.JobTimeout = jobTimeout
	}
	if cooldown := os.Getenv("RESPONDO_WORKER_COOLDOWN"); cooldown != "" {
		config.Worker.Cooldown = cooldown
	}
	if attemptBound := os.Getenv("RESPONDO_WORKER_ATTEMPT_BOUND"); attemptBound != "" {
		if ab, err := strconv.Atoi(attemptBound); err == nil {
			config.Worker.AttemptBound = ab
		}
	}

	// Governor configuration
	if perMinute := os.Getenv("RESPONDO_GOVERNOR_PER_MINUTE"); perMinute != "" {
		if pm, err := strconv.Atoi(perMinute); err == nil {
			config.Governor.PerMinute = pm
		}
	}
	if perHour := os.Getenv("RESPONDO_GOVERNOR_PER_HOUR"); perHour != "" {
		if ph, err := strconv.Atoi(perHour); err == nil {
			config.Governor.PerHour = ph
		}
	}
	if backoffBase := os.Getenv("RESPONDO_GOVERNOR_BACKOFF_BASE"); backoffBase != "" {
		config.Governor.BackoffBase = backoffBase
	}
	if backoffCap := os.Getenv("RESPONDO_GOVERNOR_BACKOFF_CAP"); backoffCap != "" {
		config.Governor.BackoffCap = backoffCap
	}
	if maxRetries := os.Getenv("RESPONDO_GOVERNOR_MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil {
			config.Governor.MaxRetries = mr
		}
	}

	// Browser configuration
	if baseURL := os.Getenv("RESPONDO_BROWSER_BASE_URL"); baseURL != "" {
		config.Browser.BaseURL = baseURL
	}
	if headless := os.Getenv("RESPONDO_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if poolSize := os.Getenv("RESPONDO_BROWSER_POOL_SIZE"); poolSize != "" {
		if ps, err := strconv.Atoi(poolSize); err == nil {
			config.Browser.PoolSize = ps
		}
	}
	if userAgent := os.Getenv("RESPONDO_BROWSER_USER_AGENT"); userAgent != "" {
		config.Browser.UserAgent = userAgent
	}

	// Scrape configuration
	if factor := os.Getenv("RESPONDO_SCRAPE_OVERSCRAPE_FACTOR"); factor != "" {
		if f, err := strconv.ParseFloat(factor, 64); err == nil && f >= 1 {
			config.Scrape.OverscrapeFactor = f
		}
	}
	if maxLoadMore := os.Getenv("RESPONDO_SCRAPE_MAX_LOAD_MORE"); maxLoadMore != "" {
		if mlm, err := strconv.Atoi(maxLoadMore); err == nil {
			config.Scrape.MaxLoadMore = mlm
		}
	}

	// Reply configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Reply.APIKey = apiKey
	}
	if apiKey := os.Getenv("RESPONDO_REPLY_API_KEY"); apiKey != "" {
		config.Reply.APIKey = apiKey // RESPONDO_ prefix takes priority
	}
	if model := os.Getenv("RESPONDO_REPLY_MODEL"); model != "" {
		config.Reply.Model = model
	}
	if maxTokens := os.Getenv("RESPONDO_REPLY_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Reply.MaxTokens = mt
		}
	}
	if temperature := os.Getenv("RESPONDO_REPLY_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 64); err == nil {
			config.Reply.Temperature = t
		}
	}

	// Engage configuration
	if actionDelay := os.Getenv("RESPONDO_ENGAGE_ACTION_DELAY"); actionDelay != "" {
		config.Engage.ActionDelay = actionDelay
	}

	// Scheduler configuration
	if staleThreshold := os.Getenv("RESPONDO_SCHEDULER_STALE_THRESHOLD"); staleThreshold != "" {
		config.Scheduler.StaleThreshold = staleThreshold
	}
}

// parseDurationOr parses d, returning fallback on empty or invalid input
func parseDurationOr(d string, fallback time.Duration) time.Duration {
	if d == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(d)
	if err != nil {
		return fallback
	}
	return parsed
}

// Duration accessors. Config files carry durations as strings; these
// resolve them with safe fallbacks so a bad value degrades, not crashes.

func (c *Config) QueuePollInterval() time.Duration {
	return parseDurationOr(c.Queue.PollInterval, time.Second)
}

func (c *Config) QueueVisibilityTimeout() time.Duration {
	return parseDurationOr(c.Queue.VisibilityTimeout, 30*time.Minute)
}

func (c *Config) WorkerJobTimeout() time.Duration {
	return parseDurationOr(c.Worker.JobTimeout, 25*time.Minute)
}

func (c *Config) WorkerCooldown() time.Duration {
	return parseDurationOr(c.Worker.Cooldown, 5*time.Minute)
}

func (c *Config) WorkerRetryDelayBase() time.Duration {
	return parseDurationOr(c.Worker.RetryDelayBase, 2*time.Second)
}

func (c *Config) GovernorBackoffBase() time.Duration {
	return parseDurationOr(c.Governor.BackoffBase, 2*time.Second)
}

func (c *Config) GovernorBackoffCap() time.Duration {
	return parseDurationOr(c.Governor.BackoffCap, 60*time.Second)
}

func (c *Config) BrowserIdleTTL() time.Duration {
	return parseDurationOr(c.Browser.IdleTTL, 10*time.Minute)
}

func (c *Config) BrowserNavigateTimeout() time.Duration {
	return parseDurationOr(c.Browser.NavigateTimeout, 30*time.Second)
}

func (c *Config) ReplyTimeout() time.Duration {
	return parseDurationOr(c.Reply.Timeout, 2*time.Minute)
}

func (c *Config) EngageActionDelay() time.Duration {
	return parseDurationOr(c.Engage.ActionDelay, 5*time.Second)
}

func (c *Config) SchedulerStaleThreshold() time.Duration {
	return parseDurationOr(c.Scheduler.StaleThreshold, 30*time.Minute)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
