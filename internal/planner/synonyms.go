package planner

import "strings"

// synonymDictionary maps a free-text term to alternate terms a document
// might use for the same concept (§4.8 step 5). Expansion is one-directional
// per lookup key. Most groups list each key back as a synonym of its
// partners so the OR-broadened query catches a document using any of the
// group's terms; "po" -> "purchase order" and the "amount" entries under
// "cost"/"price" are not listed back.
var synonymDictionary = map[string][]string{
	"invoice":  {"bill", "receipt"},
	"bill":     {"invoice", "receipt"},
	"receipt":  {"invoice", "bill"},
	"vendor":   {"supplier", "seller"},
	"supplier": {"vendor", "seller"},
	"customer": {"client", "buyer"},
	"client":   {"customer", "buyer"},
	"contract": {"agreement"},
	"agreement": {"contract"},
	"po":       {"purchase order"},
	"amount":   {"total", "sum"},
	"total":    {"amount", "sum"},
	"cost":     {"price", "amount"},
	"price":    {"cost", "amount"},
}

// expandQuery appends up to maxPerTerm synonyms for each recognized word in
// text as additional optional search terms. SearchIndex's tokenizer treats
// unprefixed terms as optional and OR-joins them, so appending synonyms
// broadens the match set without requiring any of them.
func expandQuery(text string, maxPerTerm int) string {
	if maxPerTerm <= 0 || text == "" {
		return text
	}

	words := strings.Fields(text)
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[strings.ToLower(w)] = struct{}{}
	}

	var added []string
	for _, w := range words {
		syns, ok := synonymDictionary[strings.ToLower(w)]
		if !ok {
			continue
		}
		count := 0
		for _, syn := range syns {
			if count >= maxPerTerm {
				break
			}
			key := strings.ToLower(syn)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if strings.Contains(syn, " ") {
				added = append(added, `"`+syn+`"`)
			} else {
				added = append(added, syn)
			}
			count++
		}
	}

	if len(added) == 0 {
		return text
	}
	return text + " " + strings.Join(added, " ")
}

// Reformulations suggests alternate phrasings of text_query for the
// zero-result query path (§7 "query-path" error handling): one suggestion
// per recognized word, substituting its first synonym, up to max total
// suggestions. RetrievalEngine surfaces these instead of a bare empty
// result set.
func Reformulations(textQuery string, max int) []string {
	if max <= 0 || textQuery == "" {
		return nil
	}

	words := strings.Fields(textQuery)
	var suggestions []string
	seen := make(map[string]struct{})
	for i, w := range words {
		syns, ok := synonymDictionary[strings.ToLower(w)]
		if !ok || len(syns) == 0 {
			continue
		}
		replaced := make([]string, len(words))
		copy(replaced, words)
		replaced[i] = syns[0]
		suggestion := strings.Join(replaced, " ")
		if _, dup := seen[suggestion]; dup {
			continue
		}
		seen[suggestion] = struct{}{}
		suggestions = append(suggestions, suggestion)
		if len(suggestions) >= max {
			break
		}
	}
	return suggestions
}
