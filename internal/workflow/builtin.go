package workflow

// Capability names used by the reference workflows.
const (
	CapabilityRetrieval     = "retrieval"
	CapabilityLegalResearch = "legal_research"
	CapabilitySynthesis     = "synthesis"
	CapabilityValidation    = "validation"
)

// ReferenceDefinitions returns the workflows shipped with lexflow.
func ReferenceDefinitions() []Definition {
	return []Definition{
		{
			Name:        "simple_qa",
			Description: "Answer a legal question from the corpus and assess the answer",
			Domain:      "legal",
			Tags:        []string{"qa", "validation"},
			Steps: []Step{
				{
					ID:          "answer",
					Capability:  CapabilityLegalResearch,
					Description: "Retrieve supporting sections and draft a cited answer",
					Input: map[string]any{
						"question": "${input.question}",
					},
				},
				{
					ID:          "validate",
					Capability:  CapabilityValidation,
					Description: "Score the drafted answer",
					BestEffort:  true,
					Input: map[string]any{
						"content":         "${answer.answer}",
						"question":        "${input.question}",
						"sources":         "${answer.citations}",
						"validation_type": "comprehensive",
					},
				},
			},
			OutputStep: "answer",
		},
		{
			Name:        "legal_research_report",
			Description: "Search with several queries, synthesize a report and validate it",
			Domain:      "legal",
			Tags:        []string{"research", "report"},
			Steps: []Step{
				{
					ID:          "search",
					Capability:  CapabilityRetrieval,
					Description: "Multi-query retrieval over the corpus",
					Input: map[string]any{
						"queries": "${input.queries}",
					},
				},
				{
					ID:          "synthesize",
					Capability:  CapabilitySynthesis,
					Description: "Compose a cited report from the retrieved passages",
					Input: map[string]any{
						"passages":       "${search.passages}",
						"question":       "${input.question}",
						"synthesis_type": "report",
					},
				},
				{
					ID:          "validate",
					Capability:  CapabilityValidation,
					Description: "Assess the report against its sources",
					BestEffort:  true,
					Input: map[string]any{
						"content":         "${synthesize.answer}",
						"question":        "${input.question}",
						"sources":         "${synthesize.citations}",
						"validation_type": "comprehensive",
					},
				},
			},
			OutputStep: "synthesize",
		},
		{
			Name:        "multi_query_research",
			Description: "Answer a question by synthesizing passages found by several queries",
			Domain:      "legal",
			Tags:        []string{"research"},
			Steps: []Step{
				{
					ID:          "synthesize",
					Capability:  CapabilitySynthesis,
					Description: "Retrieve for every query and synthesize one answer",
					Input: map[string]any{
						"document_queries": "${input.queries}",
						"question":         "${input.question}",
						"focus":            "Identify the governing provisions and any obligations they impose",
					},
				},
			},
		},
	}
}
