package permit

import (
	"regexp"
	"strings"
)

// Classification annotates a record with a debris-likelihood score derived
// from its permit type label.
type Classification struct {
	Score  int    `json:"score"`
	Tier   string `json:"tier"`
	Reason string `json:"reason"`
}

// rule is one entry in the ordered classification rule set. Rules are
// evaluated top to bottom and the first match wins, so more specific
// patterns must appear before the generic ones they would otherwise be
// shadowed by ("commercial interior upfit" before "addition").
type rule struct {
	match  func(string) bool
	score  int
	reason string
}

func has(sub string) func(string) bool {
	return func(s string) bool { return strings.Contains(s, sub) }
}

func hasAll(subs ...string) func(string) bool {
	return func(s string) bool {
		for _, sub := range subs {
			if !strings.Contains(s, sub) {
				return false
			}
		}
		return true
	}
}

func hasAny(subs ...string) func(string) bool {
	return func(s string) bool {
		for _, sub := range subs {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}
}

var classificationRules = []rule{
	// Strong indicators
	{has("DEMOLITION"), 98, "Demolition = high debris"},
	{has("NEW CONSTRUCTION"), 92, "New construction = high debris"},
	{func(s string) bool {
		return strings.Contains(s, "COMMERCIAL INTERIOR UPFIT") ||
			(strings.Contains(s, "UPFIT") && strings.Contains(s, "COMMERCIAL"))
	}, 86, "Commercial upfit = tear-out debris"},
	{has("ADDITION"), 84, "Addition = construction debris"},
	// The portal data contains the misspelled variant, keep matching it.
	{hasAny("ACCESSORY STRUCTURE", "ACESSORY STRUCTURE"), 76, "Accessory structure = framing/debris"},
	{has("SWIMMING POOL"), 78, "Pool install = excavation/packaging debris"},

	// Medium indicators
	{hasAll("EXTERIOR", "ALTER"), 70, "Exterior alteration often creates debris (varies)"},
	{hasAll("INTERIOR", "ALTER"), 66, "Interior alteration often creates debris (varies)"},
	{hasAny("REROOF", "RE-ROOF"), 60, "Reroof sometimes uses dumpster (contractor-dependent)"},
	{func(s string) bool {
		return strings.Contains(s, "MANUFACTURED HOME") &&
			(strings.Contains(s, "SET UP") || strings.Contains(s, "SETUP"))
	}, 52, "Manufactured setup may create packaging/debris"},

	// Low value
	{has("FEASIBILITY"), 10, "Feasibility = planning, no debris"},
	{hasAny("STANDAL", "STANDALONE"), 25, "Standalone trade permit often no dumpster"},
}

const (
	unclassifiedScore  = 40
	unclassifiedReason = "Unclassified permit type"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// normalizeText trims and collapses internal whitespace runs to one space.
func normalizeText(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// Classify scores a free-text permit category label. It is a pure function
// of its input: the label is whitespace-normalized and upper-cased before
// the ordered rule set is consulted, and unmatched input falls through to a
// fixed default rather than an error.
func Classify(label string) Classification {
	normalized := strings.ToUpper(normalizeText(label))

	for _, r := range classificationRules {
		if r.match(normalized) {
			return Classification{Score: r.score, Tier: tierFor(r.score), Reason: r.reason}
		}
	}
	return Classification{
		Score:  unclassifiedScore,
		Tier:   tierFor(unclassifiedScore),
		Reason: unclassifiedReason,
	}
}

// tierFor maps a score onto the fixed A/B/C/D threshold ladder.
func tierFor(score int) string {
	switch {
	case score >= 85:
		return "A"
	case score >= 70:
		return "B"
	case score >= 55:
		return "C"
	default:
		return "D"
	}
}
