// Package corpus is the relational record store for legal sections.
//
// Sections are keyed by the same ids the vector store uses, so a similarity
// hit can always be joined back to its full record. Every ingest bumps a
// monotonically increasing corpus version that retrieval caches key on.
package corpus
