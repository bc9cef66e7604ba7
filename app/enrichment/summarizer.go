package enrichment

import (
	"regexp"
	"sort"
	"strings"
)

const (
	minSummaryText    = 100 // texts shorter than this are returned unsummarized
	minSentenceLength = 10
)

var sentenceSplit = regexp.MustCompile(`[.!?]+\s+|\n+`)

// Summarize produces an extractive summary of up to maxSentences sentences.
// Sentences are scored by position (leads and closers rank high) and by
// length, then re-joined in document order.
func Summarize(text string, maxSentences int) string {
	text = strings.TrimSpace(text)
	if text == "" || maxSentences <= 0 {
		return ""
	}
	if len(text) < minSummaryText {
		return text
	}

	sentences := splitSentences(text)
	if len(sentences) <= maxSentences {
		return strings.Join(sentences, " ")
	}

	type scored struct {
		index int
		score float64
	}

	ranked := make([]scored, len(sentences))
	for i, sentence := range sentences {
		ranked[i] = scored{index: i, score: scoreSentence(sentence, i, len(sentences))}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	selected := ranked[:maxSentences]
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].index < selected[j].index
	})

	parts := make([]string, len(selected))
	for i, s := range selected {
		parts[i] = sentences[s.index]
	}
	return strings.Join(parts, " ")
}

func splitSentences(text string) []string {
	var sentences []string
	for _, part := range sentenceSplit.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part != "" {
			sentences = append(sentences, part)
		}
	}
	return sentences
}

func scoreSentence(sentence string, position, total int) float64 {
	if len(sentence) < minSentenceLength {
		return 0
	}

	var score float64

	// Leads and closers carry the most signal in news-style text.
	switch {
	case position == 0 || position == total-1:
		score += 2.0
	case float64(position) < float64(total)*0.2:
		score += 1.5
	case float64(position) > float64(total)*0.8:
		score += 1.0
	}

	words := len(strings.Fields(sentence))
	switch {
	case words >= 10 && words <= 30:
		score += 1.0
	case (words >= 5 && words < 10) || (words > 30 && words <= 50):
		score += 0.5
	}

	if strings.ContainsAny(sentence, "0123456789") {
		score += 0.3
	}
	if strings.ContainsAny(sentence, `"'`) {
		score += 0.2
	}

	return score
}
