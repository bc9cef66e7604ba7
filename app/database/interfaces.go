package database

import (
	"time"
)

// SourceRepository is the persistence contract for sources. Validator tokens
// and lastFetched are committed together through UpdateSourceState so a failed
// cycle never desynchronizes them.
type SourceRepository interface {
	ListSources(enabledOnly bool) ([]Source, error)
	GetSource(name string) (*Source, error)
	GetSourceCount(enabledOnly bool) (int, error)

	UpsertSource(name, url string, enabled bool, intervalMinutes, maxEntries int, recentOnly bool, dedupStrategy string) (string, error)
	UpdateSourceState(sourceID string, lastFetched time.Time, etag, lastModified string, errorCount int) error
	IncrementErrorCount(sourceID string) error
	SetSourceEnabled(sourceID string, enabled bool) error
}

// EntryRepository persists surviving entries and the dedup signature index.
type EntryRepository interface {
	AppendEntries(sourceID string, entries []Entry) (int, error)
	GetEntryCount(sourceID string) (int, error)
	GetRecentEntries(sourceID string, limit int) ([]Entry, error)

	KnownSignatures(sourceID string) (*SignatureSet, error)
	AddSignatures(sourceID string, signatures []Signature) error

	GetEntriesForEnrichment(sourceID string, limit int) ([]Entry, error)
	UpdateEnrichment(entryID string, fullText string, keywords []string, generatedSummary string) error
}

// RuleRepository serves filter rules in evaluation order: priority descending,
// then declaration order.
type RuleRepository interface {
	ListRules(sourceID string, enabledOnly bool) ([]FilterRule, error)
	ReplaceRules(sourceID string, rules []FilterRule) error
}
