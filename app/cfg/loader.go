package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/feedspider.db" description:"Path to the SQLite database file"`

	// Application configuration
	SourcesDir        string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	MaxWorkers        int    `long:"max-workers" env:"MAX_WORKERS" default:"3" description:"Maximum number of concurrent fetch cycles"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"10" description:"Due-source scan interval in seconds"`

	// Fetch policy
	FetchTimeout int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"Per-attempt network timeout in seconds"`
	MaxRetries   int    `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"Maximum retry attempts for transient fetch failures"`
	RetryDelay   int    `long:"retry-delay" env:"RETRY_DELAY" default:"5" description:"Base retry delay in seconds"`
	UserAgent    string `long:"user-agent" env:"USER_AGENT" default:"Feedspider/1.0" description:"User agent string for HTTP requests"`

	// Pipeline policy
	MinIntervalMinutes  int     `long:"min-interval-minutes" env:"MIN_INTERVAL_MINUTES" default:"10" description:"Floor applied to all per-source fetch intervals"`
	DedupStrategy       string  `long:"dedup-strategy" env:"DEDUP_STRATEGY" default:"medium" choice:"strict" choice:"medium" choice:"relaxed" description:"Default deduplication strategy"`
	SimilarityThreshold float64 `long:"similarity-threshold" env:"SIMILARITY_THRESHOLD" default:"0.85" description:"Content similarity threshold for relaxed deduplication"`
	RecentWindowDays    int     `long:"recent-window-days" env:"RECENT_WINDOW_DAYS" default:"30" description:"Retention window in days for recent-only sources"`

	// Application metadata
	Debug bool `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:              raw.DBPath,
		SourcesDir:          raw.SourcesDir,
		Port:                raw.Port,
		APIAccessKey:        raw.APIAccessKey,
		MaxWorkers:          raw.MaxWorkers,
		SchedulerInterval:   raw.SchedulerInterval,
		FetchTimeout:        time.Duration(raw.FetchTimeout) * time.Second,
		MaxRetries:          raw.MaxRetries,
		RetryDelay:          time.Duration(raw.RetryDelay) * time.Second,
		UserAgent:           raw.UserAgent,
		MinIntervalMinutes:  raw.MinIntervalMinutes,
		DedupStrategy:       DedupStrategy(raw.DedupStrategy),
		SimilarityThreshold: raw.SimilarityThreshold,
		RecentWindowDays:    raw.RecentWindowDays,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Set installs a configuration directly, bypassing flag parsing. Intended
// for tests that need cfg.Get to return a known value.
func Set(c *Cfg) {
	globalCfg = c
}

func validate(c *Cfg) error {
	if c.MinIntervalMinutes < 1 {
		return fmt.Errorf("min interval must be at least 1 minute, got %d", c.MinIntervalMinutes)
	}
	if c.MaxWorkers < 1 || c.MaxWorkers > 20 {
		return fmt.Errorf("max workers must be between 1 and 20, got %d", c.MaxWorkers)
	}
	if c.SchedulerInterval < 1 {
		return fmt.Errorf("scheduler interval must be at least 1 second, got %d", c.SchedulerInterval)
	}
	if c.FetchTimeout < time.Second {
		return fmt.Errorf("fetch timeout must be at least 1 second, got %s", c.FetchTimeout)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got %d", c.MaxRetries)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in (0, 1], got %g", c.SimilarityThreshold)
	}
	if c.RecentWindowDays < 1 {
		return fmt.Errorf("recent window must be at least 1 day, got %d", c.RecentWindowDays)
	}
	switch c.DedupStrategy {
	case DedupStrict, DedupMedium, DedupRelaxed:
	default:
		return fmt.Errorf("unknown dedup strategy: %q", c.DedupStrategy)
	}
	return nil
}
