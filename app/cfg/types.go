package cfg

import "time"

// DedupStrategy selects how aggressively candidate entries are matched
// against previously seen signatures.
type DedupStrategy string

const (
	DedupStrict  DedupStrategy = "strict"
	DedupMedium  DedupStrategy = "medium"
	DedupRelaxed DedupStrategy = "relaxed"
)

type Cfg struct {
	// Database configuration
	DBPath string

	// Application configuration
	SourcesDir        string
	Port              string
	APIAccessKey      string
	MaxWorkers        int
	SchedulerInterval int // seconds between due-source scans

	// Fetch policy
	FetchTimeout time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	UserAgent    string

	// Pipeline policy
	MinIntervalMinutes  int
	DedupStrategy       DedupStrategy
	SimilarityThreshold float64
	RecentWindowDays    int

	// Application metadata
	Debug   bool
	Version string
}

// RecentWindow returns the retention window applied to recent-only sources.
func (c *Cfg) RecentWindow() time.Duration {
	return time.Duration(c.RecentWindowDays) * 24 * time.Hour
}
