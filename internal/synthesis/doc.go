// Package synthesis turns retrieved passages into a cited answer with one
// generation call.
//
// The prompt lists passages in ranked order under their source labels until
// the context budget is spent, then the mode's instructions. Citations
// mirror the passages that made it into the prompt, never the sources the
// model happens to mention.
package synthesis
