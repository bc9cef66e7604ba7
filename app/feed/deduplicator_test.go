package feed

import (
	"testing"

	"feedspider/app/cfg"
	"feedspider/app/database"
)

func knownFor(d *Deduplicator, entries ...*CandidateEntry) *database.SignatureSet {
	set := database.NewSignatureSet()
	for _, entry := range entries {
		sigs := d.Signatures(entry)
		if sigs.CanonicalLink != "" {
			set.Links[sigs.CanonicalLink] = struct{}{}
		}
		if sigs.NormalizedTitle != "" {
			set.Titles[sigs.NormalizedTitle] = struct{}{}
		}
		if sigs.ContentHash != "" {
			set.Hashes[sigs.ContentHash] = struct{}{}
		}
		if sigs.NormalizedBody != "" {
			set.Bodies = append(set.Bodies, sigs.NormalizedBody)
		}
	}
	return set
}

func TestCanonicalLink(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.COM/Path/", "https://example.com/Path"},
		{"https://example.com/a?utm_source=x&utm_medium=y&id=7", "https://example.com/a?id=7"},
		{"https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"https://example.com/a?fbclid=xyz", "https://example.com/a"},
		{"https://example.com/a#section", "https://example.com/a"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CanonicalLink(tt.in); got != tt.want {
			t.Errorf("CanonicalLink(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSignatures_Deterministic(t *testing.T) {
	d := NewDeduplicator(cfg.DedupMedium, 0.85)
	entry := &CandidateEntry{
		Link:    "https://example.com/post?utm_source=rss",
		Title:   "Hello  World",
		Content: "Some body text here.",
	}

	a := d.Signatures(entry)
	b := d.Signatures(entry)
	if a != b {
		t.Errorf("Signatures not deterministic: %+v vs %+v", a, b)
	}
	if a.CanonicalLink != "https://example.com/post" {
		t.Errorf("Unexpected canonical link: %q", a.CanonicalLink)
	}
	if a.NormalizedTitle != "hello world" {
		t.Errorf("Unexpected normalized title: %q", a.NormalizedTitle)
	}
	if a.ContentHash == "" {
		t.Error("Expected content hash for non-empty body")
	}
}

func TestSignatures_EmptyBodyHasNoHash(t *testing.T) {
	d := NewDeduplicator(cfg.DedupMedium, 0.85)
	sigs := d.Signatures(&CandidateEntry{Link: "https://example.com/a", Title: "A"})
	if sigs.ContentHash != "" {
		t.Errorf("Empty body must not produce a hash, got %q", sigs.ContentHash)
	}
}

func TestIsDuplicate_Strict(t *testing.T) {
	d := NewDeduplicator(cfg.DedupStrict, 0.85)

	seen := &CandidateEntry{Link: "https://example.com/a?utm_source=x", Title: "Original", Content: "body"}
	known := knownFor(d, seen)

	// Same canonical link, different title: duplicate
	dup, reason := d.IsDuplicate(d.Signatures(&CandidateEntry{
		Link: "https://example.com/a", Title: "Renamed", Content: "other",
	}), known)
	if !dup || reason != DupReasonLink {
		t.Errorf("Expected link duplicate, got %v (%s)", dup, reason)
	}

	// Same title, different link: strict does not care
	dup, _ = d.IsDuplicate(d.Signatures(&CandidateEntry{
		Link: "https://example.com/b", Title: "Original", Content: "body",
	}), known)
	if dup {
		t.Error("Strict strategy must only match on canonical link")
	}
}

func TestIsDuplicate_Medium(t *testing.T) {
	d := NewDeduplicator(cfg.DedupMedium, 0.85)

	seen := &CandidateEntry{Link: "https://example.com/a", Title: "Breaking  News", Content: "The full body text."}
	known := knownFor(d, seen)

	// Different link, same normalized title
	dup, reason := d.IsDuplicate(d.Signatures(&CandidateEntry{
		Link: "https://example.com/b", Title: "breaking news", Content: "different",
	}), known)
	if !dup || reason != DupReasonTitle {
		t.Errorf("Expected title duplicate, got %v (%s)", dup, reason)
	}

	// Different link and title, same body
	dup, reason = d.IsDuplicate(d.Signatures(&CandidateEntry{
		Link: "https://example.com/c", Title: "Reposted", Content: "The full body text.",
	}), known)
	if !dup || reason != DupReasonHash {
		t.Errorf("Expected content hash duplicate, got %v (%s)", dup, reason)
	}

	// Genuinely new
	dup, _ = d.IsDuplicate(d.Signatures(&CandidateEntry{
		Link: "https://example.com/d", Title: "Novel", Content: "Entirely different words.",
	}), known)
	if dup {
		t.Error("New entry misclassified as duplicate")
	}
}

func TestIsDuplicate_Relaxed(t *testing.T) {
	d := NewDeduplicator(cfg.DedupRelaxed, 0.6)

	body := "The council approved the new transit plan after a long public hearing on Tuesday evening"
	seen := &CandidateEntry{Link: "https://example.com/a", Title: "Transit plan approved", Content: body}
	known := knownFor(d, seen)

	// Near-identical body, different link and title
	nearDup := &CandidateEntry{
		Link:    "https://mirror.example.net/x",
		Title:   "City transit update",
		Content: "The council approved the new transit plan after a long public hearing on Tuesday night",
	}
	dup, reason := d.IsDuplicate(d.Signatures(nearDup), known)
	if !dup || reason != DupReasonSimilarity {
		t.Errorf("Expected similarity duplicate, got %v (%s)", dup, reason)
	}

	// Unrelated body
	fresh := &CandidateEntry{
		Link:    "https://example.com/b",
		Title:   "Sports roundup",
		Content: "The home team won their third straight game behind a strong pitching performance",
	}
	if dup, _ := d.IsDuplicate(d.Signatures(fresh), known); dup {
		t.Error("Unrelated entry misclassified as similar")
	}

	// Medium never applies the similarity check
	m := NewDeduplicator(cfg.DedupMedium, 0.6)
	if dup, _ := m.IsDuplicate(m.Signatures(nearDup), knownFor(m, seen)); dup {
		t.Error("Medium strategy must not use similarity")
	}
}

func TestSimilarity_SymmetricAndBounded(t *testing.T) {
	a := shingles("the quick brown fox jumps over the lazy dog")
	b := shingles("the quick brown fox leaps over the lazy dog")

	ab := Similarity(a, b)
	ba := Similarity(b, a)
	if ab != ba {
		t.Errorf("Similarity not symmetric: %g vs %g", ab, ba)
	}
	if ab <= 0 || ab >= 1 {
		t.Errorf("Expected partial overlap in (0,1), got %g", ab)
	}

	if got := Similarity(a, a); got != 1 {
		t.Errorf("Self-similarity should be 1, got %g", got)
	}
	if got := Similarity(a, map[string]struct{}{}); got != 0 {
		t.Errorf("Similarity with empty set should be 0, got %g", got)
	}
}

func TestShingles_ShortTextFallsBackToTokens(t *testing.T) {
	set := shingles("two words")
	if len(set) != 2 {
		t.Errorf("Expected token fallback for short text, got %v", set)
	}
}

func TestCommitList(t *testing.T) {
	relaxed := NewDeduplicator(cfg.DedupRelaxed, 0.85)
	sigs := relaxed.Signatures(&CandidateEntry{
		Link: "https://example.com/a", Title: "T", Content: "body text",
	})

	list := relaxed.CommitList(sigs)
	if len(list) != 4 {
		t.Errorf("Relaxed commit should include body, got %d signatures", len(list))
	}

	medium := NewDeduplicator(cfg.DedupMedium, 0.85)
	list = medium.CommitList(sigs)
	if len(list) != 3 {
		t.Errorf("Medium commit should omit body, got %d signatures", len(list))
	}
}
