package vectorstore

// Document represents a document to be stored in the vector store.
type Document struct {
	// ID is the section identifier. Required.
	ID string

	// Content is the text that gets embedded.
	Content string

	// Metadata contains additional key-value pairs for filtering,
	// e.g. chapter and section labels.
	Metadata map[string]any
}

// SearchResult represents a search result from the vector store.
type SearchResult struct {
	// ID is the document identifier.
	ID string

	// Content is the document text content.
	Content string

	// Score is the similarity score (higher = more similar).
	Score float32

	// Metadata contains the document metadata.
	Metadata map[string]any
}
