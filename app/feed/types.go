package feed

import (
	"time"
)

// Feed processing types

type Metadata struct {
	Title       string
	Link        string
	Description string
	Language    string
}

// CandidateEntry is one normalized item produced by the Parser for a single
// fetch cycle. It exists only within that cycle; entries that survive
// deduplication and filtering become database.Entry records.
type CandidateEntry struct {
	GUID        string
	Link        string
	Title       string
	Summary     string
	Content     string
	Tags        []string
	PublishedAt *time.Time // always UTC; nil when the origin gave no usable date
	Language    string     // ISO 639-1 code or "unknown"
}

// BodyText returns the text used for content-based dedup signatures:
// the entry content when present, the summary otherwise.
func (e *CandidateEntry) BodyText() string {
	if e.Content != "" {
		return e.Content
	}
	return e.Summary
}

// EntrySignatures holds the derived dedup signals for one candidate.
type EntrySignatures struct {
	CanonicalLink   string
	NormalizedTitle string
	ContentHash     string
	NormalizedBody  string
}
