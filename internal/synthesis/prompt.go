package synthesis

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/lexflow/internal/corpus"
	"github.com/fyrsmithlabs/lexflow/internal/retrieval"
)

var instructions = map[Mode]string{
	ModeMerge: `Instructions:
1. Combine all relevant information from the sources.
2. Remove redundancy and keep important details from each source.
3. Cite sources by their labels, e.g. "According to Cap. 344, Section 12".
4. Point out conflicts or variations between sources.`,
	ModeReport: `Write a report with these sections:
1. Executive Summary (2-3 sentences)
2. Key Findings (bullet points)
3. Detailed Analysis
4. Conclusions and Recommendations
5. Sources Referenced
Cite sources by their labels.`,
	ModeSummary: `Write a concise executive summary of at most five sentences that answers the question. Cite sources by their labels.`,
	ModeReconcile: `Identify conflicts between the sources and reconcile them. Respond in JSON:
{"reconciled_output": "the reconciled answer with citations", "conflicts_identified": [{"conflict": "...", "resolution": "..."}]}`,
}

// SourceLabel returns the citation label of p.
func SourceLabel(p retrieval.Passage) string {
	if p.Source != "" {
		return p.Source
	}
	chapter, _ := p.Metadata["cap"].(string)
	number, _ := p.Metadata["section"].(string)
	return corpus.Label(chapter, number, p.Title, p.ID)
}

// BuildPrompt renders the prompt for req and returns the passages it
// includes. Passages are added in order until maxChars of passage text is
// reached; the first passage is truncated rather than dropped.
func BuildPrompt(systemPrompt string, req Request, maxChars int) (string, []retrieval.Passage) {
	mode := req.Mode
	if !mode.Valid() {
		mode = ModeMerge
	}

	var b strings.Builder
	if systemPrompt != "" {
		b.WriteString(systemPrompt)
		b.WriteString("\n\n")
	}
	if req.Question != "" {
		fmt.Fprintf(&b, "Question: %s\n", req.Question)
	}
	if req.Focus != "" {
		fmt.Fprintf(&b, "Focus: %s\n", req.Focus)
	}
	b.WriteString("\nSources:\n")

	var used []retrieval.Passage
	remaining := maxChars
	for i, p := range req.Passages {
		block := fmt.Sprintf("[%d] %s\n%s\n\n", i+1, SourceLabel(p), strings.TrimSpace(p.Text))
		if len(block) > remaining {
			if len(used) > 0 {
				break
			}
			block = truncate(block, remaining)
		}
		b.WriteString(block)
		remaining -= len(block)
		used = append(used, p)
	}

	b.WriteString(instructions[mode])
	b.WriteString("\n")
	return b.String(), used
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8Start(s[n]) {
		n--
	}
	return s[:n] + "\n\n"
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
