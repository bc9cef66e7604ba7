package feed

import (
	"bytes"
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/mmcdole/gofeed"
)

// ErrMalformedPayload reports that a fetched payload could not be interpreted
// as an RSS/Atom feed.
var ErrMalformedPayload = errors.New("malformed feed payload")

// LanguageUnknown marks entries whose language could not be determined.
const LanguageUnknown = "unknown"

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// ParseOptions carries the per-source knobs applied during parsing.
type ParseOptions struct {
	RecentOnly   bool
	RecentWindow time.Duration
	MaxEntries   int // 0 = unlimited
}

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses a raw payload into candidate entries in origin order. Timestamps
// are normalized to UTC; gofeed's date parsing already treats zone-less
// timestamps as UTC, never as local time. Entries older than the retention
// window are dropped here when the source is recent-only; entries with no
// usable date are kept.
func (p *Parser) Run(data []byte, opts ParseOptions) (*Metadata, []CandidateEntry, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	metadata := &Metadata{
		Title:       parsed.Title,
		Link:        parsed.Link,
		Description: parsed.Description,
		Language:    normalizeLanguageCode(parsed.Language),
	}

	cutoff := time.Time{}
	if opts.RecentOnly && opts.RecentWindow > 0 {
		cutoff = time.Now().UTC().Add(-opts.RecentWindow)
	}

	entries := make([]CandidateEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		entry := p.normalizeItem(item, metadata.Language)

		if !cutoff.IsZero() && entry.PublishedAt != nil && entry.PublishedAt.Before(cutoff) {
			continue
		}

		entries = append(entries, entry)

		if opts.MaxEntries > 0 && len(entries) >= opts.MaxEntries {
			break
		}
	}

	return metadata, entries, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item, feedLanguage string) CandidateEntry {
	entry := CandidateEntry{
		Link:    strings.TrimSpace(item.Link),
		Title:   collapseWhitespace(item.Title),
		Summary: StripHTML(item.Description),
		Content: StripHTML(item.Content),
	}

	entry.GUID = cmp.Or(item.GUID, entry.Link, fallbackGUID(entry))

	if item.Categories != nil {
		entry.Tags = item.Categories
	}

	if ts := publishedTime(item); ts != nil {
		utc := ts.UTC()
		entry.PublishedAt = &utc
	}

	entry.Language = p.detectLanguage(entry, feedLanguage)

	return entry
}

func publishedTime(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	return item.UpdatedParsed
}

func fallbackGUID(entry CandidateEntry) string {
	hash := sha256.Sum256([]byte(entry.Title + "|" + entry.Summary))
	return "sha256:" + hex.EncodeToString(hash[:16])
}

// detectLanguage prefers the feed's declared language and falls back to a
// trigram classifier over the entry text. Low-confidence detections come
// back as "unknown" rather than a guess.
func (p *Parser) detectLanguage(entry CandidateEntry, feedLanguage string) string {
	if feedLanguage != "" && feedLanguage != LanguageUnknown {
		return feedLanguage
	}

	text := strings.TrimSpace(entry.Title + " " + entry.BodyText())
	if text == "" {
		return LanguageUnknown
	}

	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return LanguageUnknown
	}

	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	return LanguageUnknown
}

// normalizeLanguageCode reduces region-tagged codes to their base language
// ("en-US" -> "en").
func normalizeLanguageCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	return code
}

// StripHTML removes markup and collapses whitespace, leaving plain text.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return collapseWhitespace(s)
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
