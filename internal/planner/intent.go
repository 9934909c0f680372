package planner

import (
	"regexp"

	"github.com/docuflow/docuflow/internal/models"
)

// intentPattern is one ordered rule in the intent-detection cascade. The
// first pattern to match wins, mirroring the teacher's ClassifyQuery
// ordered-pattern idiom (internal/services/chat/query_classifier.go).
type intentPattern struct {
	re *regexp.Regexp
}

var comparePatterns = []intentPattern{
	{regexp.MustCompile(`(?i)\bcompare\b`)},
	{regexp.MustCompile(`(?i)\bversus\b`)},
	{regexp.MustCompile(`(?i)\bvs\.?\b`)},
	{regexp.MustCompile(`(?i)\bdifference\s+between\b`)},
}

var aggregatePatterns = []intentPattern{
	{regexp.MustCompile(`(?i)\bhow\s+many\b`)},
	{regexp.MustCompile(`(?i)\bhow\s+much\b`)},
	{regexp.MustCompile(`(?i)\bcount\s+of\b`)},
	{regexp.MustCompile(`(?i)\bnumber\s+of\b`)},
	{regexp.MustCompile(`(?i)\btotal\b`)},
	{regexp.MustCompile(`(?i)\baverage\b`)},
	{regexp.MustCompile(`(?i)\bsum\s+of\b`)},
	{regexp.MustCompile(`(?i)\bbreak(down|\s+down)\b`)},
}

var retrievePatterns = []intentPattern{
	{regexp.MustCompile(`(?i)\bwhat\s+is\b`)},
	{regexp.MustCompile(`(?i)\bwhat\s+was\b`)},
	{regexp.MustCompile(`(?i)\bshow\s+me\b`)},
	{regexp.MustCompile(`(?i)\bfind\s+the\b`)},
	{regexp.MustCompile(`(?i)\bwho\s+is\b`)},
}

// filterLanguagePatterns match range/date/entity constraint language in a
// query, used to classify an otherwise-plain query as
// IntentFilter rather than IntentSearch.
var filterLanguagePatterns = []intentPattern{
	{regexp.MustCompile(`(?i)\b(over|above|under|below|at\s+least|at\s+most|more\s+than|less\s+than|greater\s+than|between)\b`)},
	{regexp.MustCompile(`(?i)\b(last|this|next)\s+(week|month|quarter|year|\d+\s+days)\b`)},
	{regexp.MustCompile(`\bQ[1-4]\s*\d{4}\b`)},
	{regexp.MustCompile(`(?i)\bytd\b|\byear\s+to\s+date\b`)},
	{regexp.MustCompile(`"[^"]+"`)},
}

func matchesAny(patterns []intentPattern, query string) bool {
	for _, p := range patterns {
		if p.re.MatchString(query) {
			return true
		}
	}
	return false
}

// detectIntent classifies a normalized query into one of the five Intent
// values (§4.8 step 1). Aggregate and compare language take priority over
// generic filter language, since "how many contracts over $500" is an
// aggregate with a filter clause, not a bare filter query.
func detectIntent(query string) (intent models.Intent, ambiguous bool) {
	switch {
	case matchesAny(comparePatterns, query):
		return models.IntentCompare, false
	case matchesAny(aggregatePatterns, query):
		return models.IntentAggregate, false
	case matchesAny(retrievePatterns, query):
		return models.IntentRetrieve, false
	case matchesAny(filterLanguagePatterns, query):
		return models.IntentFilter, false
	default:
		return models.IntentSearch, true
	}
}
