package validation

import (
	"fmt"
	"math"
	"regexp"
)

var (
	wordRe = regexp.MustCompile(`[A-Za-z][A-Za-z'-]+`)

	hedgeRe = regexp.MustCompile(`(?i)\b(?:may|might|possibly|perhaps|unclear|uncertain|likely|arguably|it seems|appears to|not sure|could be)\b`)

	contradictionRe = regexp.MustCompile(`(?i)\b(?:however|but|although|whereas|on the other hand|conversely|contradicts?|inconsistent|nevertheless)\b`)

	problemRe = regexp.MustCompile(`(?i)\b(?:incorrect|inaccurate|wrong|errors?|unsupported|missing|omits?|fails? to)\b`)

	citationRe = regexp.MustCompile(`(?i)\b(?:cap\.?\s*\d+[a-z]?|section\s+\d+[a-z]?|s\.\s*\d+|art(?:icle)?\.?\s*\d+)|\[\d+\]`)

	functionWordRe = regexp.MustCompile(`(?i)\b(?:the|a|an|of|to|in|on|for|by|with|and|or|is|are|was|be|that|this|it|as|at|not|must|shall|under|from)\b`)
)

// minProseRatio is the share of function words below which text is not
// treated as prose.
const minProseRatio = 0.1

// heuristic scores prose directly from hedging, contradiction and problem
// markers and from citation density. Text shorter than minWords words,
// text that does not read as prose and text with no marker at all are not
// scored.
func heuristic(text string, minWords int) (extraction, bool) {
	words := len(wordRe.FindAllString(text, -1))
	if words < minWords {
		return extraction{}, false
	}

	if float64(len(functionWordRe.FindAllString(text, -1))) < minProseRatio*float64(words) {
		return extraction{}, false
	}

	hedges := len(hedgeRe.FindAllString(text, -1))
	contradictions := len(contradictionRe.FindAllString(text, -1))
	problems := len(problemRe.FindAllString(text, -1))
	citations := len(citationRe.FindAllString(text, -1))
	if hedges+contradictions+problems+citations == 0 {
		return extraction{}, false
	}

	accuracy := 75 - math.Min(4*float64(hedges), 30) - math.Min(8*float64(problems), 40)
	if citations > 0 {
		accuracy += 10
	}
	consistency := 80 - math.Min(6*float64(contradictions), 40)
	completeness := 45 + math.Min(10*float64(citations), 35)
	if words >= 80 {
		completeness += 10
	}

	ex := extraction{dims: map[Dimension]float64{
		Accuracy:     clampScore(accuracy),
		Completeness: clampScore(completeness),
		Consistency:  clampScore(consistency),
	}}

	if hedges >= 3 {
		ex.issues = append(ex.issues, fmt.Sprintf("frequent hedging language (%d occurrences)", hedges))
		ex.recs = append(ex.recs, "state conclusions directly and support them with sources")
	}
	if problems > 0 {
		ex.issues = append(ex.issues, fmt.Sprintf("problem markers present (%d occurrences)", problems))
	}
	if contradictions >= 2 {
		ex.issues = append(ex.issues, fmt.Sprintf("contradiction markers present (%d occurrences)", contradictions))
		ex.recs = append(ex.recs, "resolve or explain conflicting statements")
	}
	if citations == 0 {
		ex.issues = append(ex.issues, "no citations to sources")
		ex.recs = append(ex.recs, "cite the specific provisions relied on")
	}
	return ex, true
}
