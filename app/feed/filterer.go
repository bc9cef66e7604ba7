package feed

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"feedspider/app/database"
)

// Filterer evaluates prioritized rule sets over candidate entries.
type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Evaluation is one cycle's prepared rule set: rules sorted into evaluation
// order with regex patterns compiled once. Rules whose pattern fails to
// compile are disabled for the cycle and recorded in Skipped.
type Evaluation struct {
	rules   []database.FilterRule
	regexps map[string]*regexp.Regexp
	Skipped []string
}

// Prepare sorts rules by priority descending (stable, so declaration order
// breaks ties) and compiles regex patterns.
func (f *Filterer) Prepare(rules []database.FilterRule) *Evaluation {
	sorted := make([]database.FilterRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	ev := &Evaluation{
		rules:   sorted,
		regexps: make(map[string]*regexp.Regexp),
	}

	for _, rule := range sorted {
		if rule.Kind != "regex" || !rule.Enabled {
			continue
		}
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			slog.Warn("Skipping rule with invalid regex for this cycle",
				"rule_id", rule.ID, "pattern", rule.Pattern, "error", err)
			ev.Skipped = append(ev.Skipped, rule.ID)
			continue
		}
		ev.regexps[rule.ID] = re
	}

	return ev
}

// Accepts applies the prepared rules to one entry: the first matching enabled
// rule wins, an exclude match rejects, an include match accepts, and an entry
// matching no rule is accepted by default. The returned reason names the
// deciding rule for visibility.
func (ev *Evaluation) Accepts(entry *CandidateEntry) (bool, string) {
	for _, rule := range ev.rules {
		if !rule.Enabled {
			continue
		}

		if !ev.ruleMatches(rule, entry) {
			continue
		}

		reason := fmt.Sprintf("%s %s rule %q", rule.Mode, rule.Kind, rule.Pattern)
		return rule.Mode == "include", reason
	}

	return true, ""
}

func (ev *Evaluation) ruleMatches(rule database.FilterRule, entry *CandidateEntry) bool {
	switch rule.Kind {
	case "keyword":
		pattern := strings.ToLower(rule.Pattern)
		return strings.Contains(strings.ToLower(entry.Title), pattern) ||
			strings.Contains(strings.ToLower(entry.BodyText()), pattern)

	case "regex":
		re, ok := ev.regexps[rule.ID]
		if !ok {
			// Pattern failed to compile; rule is disabled for this cycle.
			return false
		}
		return re.MatchString(entry.Title) || re.MatchString(entry.BodyText())

	case "tag":
		pattern := strings.ToLower(rule.Pattern)
		for _, tag := range entry.Tags {
			if strings.Contains(strings.ToLower(tag), pattern) {
				return true
			}
		}
		return false

	case "language":
		return entry.Language != "" && strings.EqualFold(rule.Pattern, entry.Language)
	}

	return false
}
