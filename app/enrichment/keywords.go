package enrichment

import (
	"regexp"
	"sort"
	"strings"
)

const (
	minKeywordLength = 3
	minKeywordText   = 50 // texts shorter than this yield no keywords
)

var (
	urlPattern   = regexp.MustCompile(`https?://\S+|www\.\S+`)
	emailPattern = regexp.MustCompile(`\S+@\S+`)
	wordPattern  = regexp.MustCompile(`[a-zA-Z]+`)
)

// stopwords filtered out before frequency ranking.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "his": true, "how": true, "its": true, "may": true,
	"new": true, "now": true, "old": true, "see": true, "two": true,
	"way": true, "who": true, "did": true, "get": true, "him": true,
	"she": true, "too": true, "use": true, "that": true, "with": true,
	"have": true, "this": true, "will": true, "your": true, "from": true,
	"they": true, "been": true, "were": true, "said": true, "each": true,
	"which": true, "their": true, "would": true, "there": true, "what": true,
	"about": true, "when": true, "them": true, "these": true, "some": true,
	"than": true, "then": true, "into": true, "could": true, "other": true,
	"after": true, "first": true, "also": true, "more": true, "over": true,
	"such": true, "only": true, "most": true, "made": true, "because": true,
	"while": true, "where": true, "those": true, "being": true, "before": true,
	"between": true, "during": true, "under": true, "should": true, "does": true,
}

// Keywords ranks the words of a text by frequency, stopwords removed, and
// returns up to max of them. Ties break alphabetically so the output is
// deterministic for a given text.
func Keywords(text string, max int) []string {
	if max <= 0 {
		return nil
	}

	cleaned := emailPattern.ReplaceAllString(urlPattern.ReplaceAllString(text, " "), " ")
	if len(strings.TrimSpace(cleaned)) < minKeywordText {
		return nil
	}

	freq := make(map[string]int)
	for _, word := range wordPattern.FindAllString(strings.ToLower(cleaned), -1) {
		if len(word) < minKeywordLength || stopwords[word] {
			continue
		}
		freq[word]++
	}

	ranked := make([]string, 0, len(freq))
	for word := range freq {
		ranked = append(ranked, word)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if freq[ranked[i]] != freq[ranked[j]] {
			return freq[ranked[i]] > freq[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	if len(ranked) > max {
		ranked = ranked[:max]
	}
	return ranked
}
