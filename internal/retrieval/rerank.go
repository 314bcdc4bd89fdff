package retrieval

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"are": true, "was": true, "were": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "does": true, "did": true,
	"this": true, "that": true, "these": true, "those": true, "what": true,
	"which": true, "who": true, "whom": true, "when": true, "where": true,
	"why": true, "how": true, "any": true, "all": true, "under": true,
	"shall": true, "may": true, "not": true, "into": true, "upon": true,
}

// tokenize lowercases text and keeps alphanumeric terms longer than two
// characters that are not stopwords.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 2 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

// termOverlap is the fraction of distinct query terms present in the text.
func termOverlap(queryTerms map[string]bool, text string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	found := make(map[string]bool)
	for _, t := range tokenize(text) {
		if queryTerms[t] {
			found[t] = true
		}
	}
	return float64(len(found)) / float64(len(queryTerms))
}

// rerank reorders passages by (1-weight)*score + weight*overlap against the
// union of query terms. Scores are left untouched, so every passage stays
// above the floor it already cleared.
func rerank(queries []string, passages []Passage, weight float64) []Passage {
	if len(passages) < 2 || weight <= 0 {
		return passages
	}

	terms := make(map[string]bool)
	for _, q := range queries {
		for _, t := range tokenize(q) {
			terms[t] = true
		}
	}
	if len(terms) == 0 {
		return passages
	}

	keys := make(map[string]float64, len(passages))
	for _, p := range passages {
		keys[p.ID] = (1-weight)*p.Score + weight*termOverlap(terms, p.Text)
	}

	out := append([]Passage(nil), passages...)
	sort.SliceStable(out, func(i, j int) bool {
		return keys[out[i].ID] > keys[out[j].ID]
	})
	return out
}
