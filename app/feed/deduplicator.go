package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"feedspider/app/cfg"
	"feedspider/app/database"
)

// Duplicate classification reasons, cheapest check first.
const (
	DupReasonLink       = "link"
	DupReasonTitle      = "title"
	DupReasonHash       = "content_hash"
	DupReasonSimilarity = "similarity"
)

// trackingParams are query parameters stripped during link canonicalization.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"mc_cid":  true,
	"mc_eid":  true,
	"ref":     true,
	"source":  true,
	"igshid":  true,
	"yclid":   true,
	"_hsenc":  true,
	"_hsmi":   true,
	"mkt_tok": true,
}

const shingleSize = 3

// Deduplicator decides which candidate entries are genuinely new against a
// source's previously seen signatures.
type Deduplicator struct {
	strategy  cfg.DedupStrategy
	threshold float64
	folder    cases.Caser
}

func NewDeduplicator(strategy cfg.DedupStrategy, threshold float64) *Deduplicator {
	return &Deduplicator{
		strategy:  strategy,
		threshold: threshold,
		folder:    cases.Fold(),
	}
}

// Signatures derives the dedup signals for a candidate. Deterministic:
// identical input always yields identical signatures.
func (d *Deduplicator) Signatures(entry *CandidateEntry) EntrySignatures {
	sigs := EntrySignatures{
		CanonicalLink:   CanonicalLink(entry.Link),
		NormalizedTitle: d.normalizeTitle(entry.Title),
		NormalizedBody:  normalizeText(entry.BodyText()),
	}

	if sigs.NormalizedBody != "" {
		hash := sha256.Sum256([]byte(sigs.NormalizedBody))
		sigs.ContentHash = hex.EncodeToString(hash[:])
	}

	return sigs
}

// IsDuplicate runs the enabled checks cheapest-first and short-circuits on
// the first match. The empty reason means the candidate is new.
func (d *Deduplicator) IsDuplicate(sigs EntrySignatures, known *database.SignatureSet) (bool, string) {
	if known == nil {
		return false, ""
	}

	if sigs.CanonicalLink != "" {
		if _, ok := known.Links[sigs.CanonicalLink]; ok {
			return true, DupReasonLink
		}
	}

	if d.strategy == cfg.DedupStrict {
		return false, ""
	}

	if sigs.NormalizedTitle != "" {
		if _, ok := known.Titles[sigs.NormalizedTitle]; ok {
			return true, DupReasonTitle
		}
	}

	if sigs.ContentHash != "" {
		if _, ok := known.Hashes[sigs.ContentHash]; ok {
			return true, DupReasonHash
		}
	}

	if d.strategy != cfg.DedupRelaxed || sigs.NormalizedBody == "" {
		return false, ""
	}

	candidate := shingles(sigs.NormalizedBody)
	for _, body := range known.Bodies {
		if Similarity(candidate, shingles(body)) >= d.threshold {
			return true, DupReasonSimilarity
		}
	}

	return false, ""
}

// CommitList returns the signatures to add to the known set once an entry
// has been persisted. The body text is only kept when the strategy needs it
// for similarity checks.
func (d *Deduplicator) CommitList(sigs EntrySignatures) []database.Signature {
	out := []database.Signature{
		{Kind: "link", Value: sigs.CanonicalLink},
		{Kind: "title", Value: sigs.NormalizedTitle},
		{Kind: "hash", Value: sigs.ContentHash},
	}
	if d.strategy == cfg.DedupRelaxed {
		out = append(out, database.Signature{Kind: "body", Value: sigs.NormalizedBody})
	}
	return out
}

// CanonicalLink normalizes a URL for exact-match dedup: lower-cased scheme
// and host, trailing slash trimmed, fragment dropped, tracking query
// parameters removed and the rest sorted.
func CanonicalLink(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}

	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	if u.RawQuery != "" {
		values := u.Query()
		kept := url.Values{}
		for key, vals := range values {
			if trackingParams[key] || strings.HasPrefix(strings.ToLower(key), "utm_") {
				continue
			}
			kept[key] = vals
		}
		u.RawQuery = kept.Encode() // Encode sorts keys
	}

	return u.String()
}

func (d *Deduplicator) normalizeTitle(title string) string {
	return collapseWhitespace(d.folder.String(title))
}

// normalizeText lower-cases, strips punctuation and collapses whitespace,
// producing the canonical body used for hashing and similarity.
func normalizeText(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(' ')
		}
	}

	return collapseWhitespace(b.String())
}

// shingles returns the set of word trigrams of a normalized text. Texts
// shorter than one shingle fall back to their token set.
func shingles(text string) map[string]struct{} {
	words := strings.Fields(text)
	set := make(map[string]struct{})

	if len(words) < shingleSize {
		for _, w := range words {
			set[w] = struct{}{}
		}
		return set
	}

	for i := 0; i+shingleSize <= len(words); i++ {
		set[strings.Join(words[i:i+shingleSize], " ")] = struct{}{}
	}
	return set
}

// Similarity is the Jaccard index of two shingle sets. Symmetric and
// deterministic for a fixed pair of texts.
func Similarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	intersection := 0
	for s := range small {
		if _, ok := large[s]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
