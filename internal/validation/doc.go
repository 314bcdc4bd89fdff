// Package validation turns loosely formatted quality assessments into a
// bounded Report.
//
// Extraction is a cascade tried once per stage: a strict structured parse,
// then key: value field extraction, then lexical heuristics over the text
// itself, and finally a neutral default. Validate never fails and never
// panics.
package validation
