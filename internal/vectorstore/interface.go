package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrInvalidQuery indicates an empty or oversized query, or a non-positive k.
	ErrInvalidQuery = errors.New("invalid query")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the interface for vector storage operations.
type Store interface {
	// AddDocuments embeds and stores documents, replacing any with the same ID.
	// Returns the stored IDs in input order.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// Search returns at most k documents ordered by descending similarity.
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)

	// SearchWithFilters is Search restricted to documents whose metadata
	// matches every filter value exactly.
	SearchWithFilters(ctx context.Context, query string, k int, filters map[string]any) ([]SearchResult, error)

	// DeleteDocuments removes documents by ID. Unknown IDs are ignored.
	DeleteDocuments(ctx context.Context, ids []string) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}
