package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Type selects which dimensions the generator is asked to assess.
type Type string

const (
	TypeAccuracy      Type = "accuracy"
	TypeCompleteness  Type = "completeness"
	TypeConsistency   Type = "consistency"
	TypeComprehensive Type = "comprehensive"
)

// Valid reports whether t is a known validation type.
func (t Type) Valid() bool {
	switch t {
	case TypeAccuracy, TypeCompleteness, TypeConsistency, TypeComprehensive:
		return true
	}
	return false
}

const (
	maxPromptContent = 3000
	maxPromptSources = 2000
)

var checks = map[Type]string{
	TypeAccuracy:      `Check whether every claim is supported by the sources, whether there are factual errors or misleading statements, and whether citations are accurate.`,
	TypeCompleteness:  `Check whether the content fully answers the question, addresses every requirement, and has no significant gaps.`,
	TypeConsistency:   `Check for contradictions, logical inconsistencies, and inconsistent terminology.`,
	TypeComprehensive: `Check accuracy against the sources, completeness against the question and requirements, and internal consistency.`,
}

// AssessmentRequest is the material of a generator-backed assessment.
type AssessmentRequest struct {
	Type         Type
	Content      string
	Question     string
	Sources      []string
	Requirements []string
}

// BuildPrompt renders the assessment prompt. The reply is expected to be a
// JSON object the structured stage can read.
func BuildPrompt(req AssessmentRequest) string {
	t := req.Type
	if !t.Valid() {
		t = TypeComprehensive
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Assess the %s of the following content.\n\n", t)
	if req.Question != "" {
		fmt.Fprintf(&b, "Original question: %s\n\n", req.Question)
	}
	if len(req.Requirements) > 0 {
		b.WriteString("Requirements:\n")
		for _, r := range req.Requirements {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Content:\n%s\n\n", clip(req.Content, maxPromptContent))
	if len(req.Sources) > 0 {
		fmt.Fprintf(&b, "Sources:\n%s\n\n", clip(strings.Join(req.Sources, "\n"), maxPromptSources))
	}
	b.WriteString(checks[t])
	b.WriteString("\n\nRespond with JSON only:\n{")
	for _, d := range typeDimensions(t) {
		fmt.Fprintf(&b, "%q: 0-100, ", string(d))
	}
	b.WriteString(`"issues": ["..."], "recommendations": ["..."]}`)
	b.WriteString("\n")
	return b.String()
}

func typeDimensions(t Type) []Dimension {
	switch t {
	case TypeAccuracy:
		return []Dimension{Accuracy}
	case TypeCompleteness:
		return []Dimension{Completeness}
	case TypeConsistency:
		return []Dimension{Consistency}
	default:
		return Dimensions()
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// FormatValue renders an arbitrary task value as prompt text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// FormatSources renders each element of a source list on one line. Objects
// contribute their label and text fields.
func FormatSources(v any) []string {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return []string{fmt.Sprint(v)}
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsArray() {
		if s := sourceLine(doc); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	doc.ForEach(func(_, item gjson.Result) bool {
		if s := sourceLine(item); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}

func sourceLine(item gjson.Result) string {
	if !item.IsObject() {
		return strings.TrimSpace(item.String())
	}
	var parts []string
	for _, key := range []string{"source", "title", "text", "content"} {
		if s := strings.TrimSpace(item.Get(key).String()); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return item.Raw
	}
	return strings.Join(parts, ": ")
}
