package validation

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// extraction is what a cascade stage recovered from the text.
type extraction struct {
	dims       map[Dimension]float64
	overall    float64
	hasOverall bool
	issues     []string
	recs       []string
}

func (e extraction) scored() bool { return len(e.dims) > 0 || e.hasOverall }

var (
	fenceRe = regexp.MustCompile("(?s)```[A-Za-z]*\\s*(.*?)```")

	scoreRe = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)(?:\s*/\s*(10|100)\b|\s*%)?`)

	dimFieldRe = regexp.MustCompile(`(?i)\b(accuracy|completeness|consistency)(?:[ _-]?score)?\**\s*[:=]\s*\**\s*(\d{1,3}(?:\.\d+)?)(?:\s*/\s*(10|100)\b|\s*%)?`)

	overallFieldRe = regexp.MustCompile(`(?i)\b(?:overall(?:[ _-]?(?:score|quality|rating))?|quality[ _-]?score|total[ _-]?score|score|rating)\**\s*[:=]\s*\**\s*(\d{1,3}(?:\.\d+)?)(?:\s*/\s*(10|100)\b|\s*%)?`)

	headingRe = regexp.MustCompile(`(?i)^\s*(?:#+\s*)?\**\s*(issues?|problems?|concerns?|errors?|recommendations?|suggestions?|improvements?)(?:\s+(?:found|identified))?\s*\**\s*:?\s*\**\s*$`)

	bulletRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+?)\s*$`)
)

var (
	dimensionPaths = map[Dimension][]string{
		Accuracy:     {"accuracy", "accuracy_score", "dimension_scores.accuracy", "scores.accuracy", "dimensions.accuracy"},
		Completeness: {"completeness", "completeness_score", "dimension_scores.completeness", "scores.completeness", "dimensions.completeness"},
		Consistency:  {"consistency", "consistency_score", "dimension_scores.consistency", "scores.consistency", "dimensions.consistency"},
	}
	overallPaths = []string{"overall_score", "overall", "quality_score", "score"}
	issuePaths   = []string{
		"issues", "unsupported_claims", "factual_errors", "misleading_statements",
		"missing_elements", "unaddressed_requirements",
		"contradictions", "logical_issues", "terminology_issues",
	}
	recommendationPaths = []string{"recommendations", "suggestions"}
)

// structured parses a JSON object: fenced blocks first, then the whole
// text, then balanced objects embedded in prose, largest first.
func structured(text string) (extraction, bool) {
	for _, candidate := range jsonCandidates(text) {
		if !gjson.Valid(candidate) {
			continue
		}
		doc := gjson.Parse(candidate)
		if !doc.IsObject() {
			continue
		}
		if ex := fromJSON(doc); ex.scored() {
			return ex, true
		}
	}
	return extraction{}, false
}

func jsonCandidates(text string) []string {
	var out []string
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	out = append(out, strings.TrimSpace(text))

	objects := balancedObjects(text)
	sort.SliceStable(objects, func(i, j int) bool { return len(objects[i]) > len(objects[j]) })
	return append(out, objects...)
}

// balancedObjects returns every outermost {...} span whose braces balance,
// ignoring braces inside JSON strings.
func balancedObjects(s string) []string {
	var out []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		if end := matchBrace(s, i); end > 0 {
			out = append(out, s[i:end+1])
			i = end
		}
	}
	return out
}

func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for j := start; j < len(s); j++ {
		c := s[j]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func fromJSON(doc gjson.Result) extraction {
	ex := extraction{dims: map[Dimension]float64{}}
	for _, d := range Dimensions() {
		for _, path := range dimensionPaths[d] {
			if v, ok := jsonScore(doc.Get(path)); ok {
				ex.dims[d] = v
				break
			}
		}
	}
	for _, path := range overallPaths {
		if v, ok := jsonScore(doc.Get(path)); ok {
			ex.overall, ex.hasOverall = v, true
			break
		}
	}
	ex.issues = jsonStrings(doc, issuePaths)
	ex.recs = jsonStrings(doc, recommendationPaths)
	return ex
}

func jsonScore(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return clampScore(r.Num), true
	case gjson.String:
		return parseScore(r.Str)
	}
	return 0, false
}

func jsonStrings(doc gjson.Result, paths []string) []string {
	var out []string
	for _, path := range paths {
		r := doc.Get(path)
		switch {
		case r.IsArray():
			for _, item := range r.Array() {
				if s := strings.TrimSpace(itemText(item)); s != "" {
					out = append(out, s)
				}
			}
		case r.Type == gjson.String && strings.TrimSpace(r.Str) != "":
			out = append(out, strings.TrimSpace(r.Str))
		}
	}
	return out
}

// itemText flattens a list item; objects contribute their first text field.
func itemText(item gjson.Result) string {
	if !item.IsObject() {
		return item.String()
	}
	for _, key := range []string{"issue", "description", "text", "conflict", "recommendation"} {
		if v := item.Get(key); v.Exists() {
			return v.String()
		}
	}
	return item.Raw
}

// parseScore reads the first number in s, scaling "n/10" to 0..100.
func parseScore(s string) (float64, bool) {
	m := scoreRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	return scaleScore(m[1], m[2])
}

func scaleScore(value, denominator string) (float64, bool) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	if denominator == "10" {
		v *= 10
	}
	return clampScore(v), true
}

// fields extracts "key: value" scores and bullet lists under issue or
// recommendation headings.
func fields(text string) (extraction, bool) {
	ex := extraction{dims: map[Dimension]float64{}}

	for _, m := range dimFieldRe.FindAllStringSubmatch(text, -1) {
		d := Dimension(strings.ToLower(m[1]))
		if _, seen := ex.dims[d]; seen {
			continue
		}
		if v, ok := scaleScore(m[2], m[3]); ok {
			ex.dims[d] = v
		}
	}

	rest := dimFieldRe.ReplaceAllString(text, " ")
	if m := overallFieldRe.FindStringSubmatch(rest); m != nil {
		ex.overall, ex.hasOverall = scaleScore(m[1], m[2])
	}

	if !ex.scored() {
		return extraction{}, false
	}
	ex.issues, ex.recs = bulletLists(text)
	return ex, true
}

// bulletLists collects bullets following an issues or recommendations
// heading. A non-bullet line ends the list.
func bulletLists(text string) (issues, recs []string) {
	var target *[]string
	for _, line := range strings.Split(text, "\n") {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			switch h := strings.ToLower(m[1]); {
			case strings.HasPrefix(h, "recommend"), strings.HasPrefix(h, "suggest"), strings.HasPrefix(h, "improve"):
				target = &recs
			default:
				target = &issues
			}
			continue
		}
		if target == nil {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := bulletRe.FindStringSubmatch(line)
		if m == nil {
			target = nil
			continue
		}
		if item := strings.Trim(m[1], "*_ "); item != "" {
			*target = append(*target, item)
		}
	}
	return issues, recs
}
