// -----------------------------------------------------------------------
// respondo - Engagement worker entry point
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondo/internal/app"
	"github.com/ternarybob/respondo/internal/common"
	"github.com/ternarybob/respondo/internal/models"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	// One-shot commands; when set the process performs the command and
	// exits instead of running the worker loop.
	submitJob      = flag.Bool("submit", false, "Submit a job and exit")
	importCookies  = flag.String("import-cookies", "", "Import a session cookie JSON file for -user and exit")
	userID         = flag.String("user", "", "User ID for -submit / -import-cookies")
	keywordsFlag   = flag.String("keywords", "", "Comma-separated keywords for -submit")
	actionCount    = flag.Int("count", 5, "Number of replies to post for -submit")
	tone           = flag.String("tone", "", "Reply tone for -submit")
	minReactions   = flag.Int("min-reactions", 0, "Engagement floor for -submit")
	excludeFlagged = flag.Bool("exclude-flagged", true, "Skip promotional/flagged posts for -submit")
	userAgent      = flag.String("user-agent", "", "User agent stored with -import-cookies")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Respondo version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup order: config, logger, banner, crash handler, app.
	if len(configFiles) == 0 {
		if _, err := os.Stat("respondo.toml"); err == nil {
			configFiles = append(configFiles, "respondo.toml")
		} else if _, err := os.Stat("deployments/local/respondo.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/respondo.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())
	common.InstallCrashHandler("./logs")
	defer common.RecoverWithCrashFile()

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Str("base_url", config.Browser.BaseURL).
		Msg("Configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	if *importCookies != "" {
		runImport(application)
		return
	}
	if *submitJob {
		runSubmit(application)
		return
	}

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
		os.Exit(1)
	}

	logger.Info().Msg("Worker ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, draining")
	application.Stop()
	logger.Info().Msg("Worker stopped")
}

func runImport(application *app.App) {
	if *userID == "" {
		logger.Fatal().Msg("-import-cookies requires -user")
		os.Exit(1)
	}
	if err := application.ImportSession(context.Background(), *userID, *importCookies, *userAgent); err != nil {
		logger.Fatal().Err(err).Msg("Session import failed")
		os.Exit(1)
	}
}

func runSubmit(application *app.App) {
	if *userID == "" || *keywordsFlag == "" {
		logger.Fatal().Msg("-submit requires -user and -keywords")
		os.Exit(1)
	}

	var keywords []string
	for _, k := range strings.Split(*keywordsFlag, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}

	opts := models.ReplyOptions{
		MinReactions:   *minReactions,
		ExcludeFlagged: *excludeFlagged,
		Tone:           *tone,
	}
	job, err := application.SubmitJob(context.Background(), *userID, keywords, *actionCount, opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("Job submission failed")
		os.Exit(1)
	}

	fmt.Printf("Submitted %s for %s (%d actions)\n", job.ID, job.UserID, job.ActionCount)
}
