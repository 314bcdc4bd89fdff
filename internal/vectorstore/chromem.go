package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("lexflow.vectorstore.chromem")

// collectionNamePattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

const (
	maxK           = 10000
	maxQueryLength = 10000
)

// ValidateCollectionName validates a collection name against ^[a-z0-9_]{1,64}$.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

func validateQuery(query string, k int) error {
	if k <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidQuery, k)
	}
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}
	if len(query) > maxQueryLength {
		return fmt.Errorf("%w: query exceeds %d characters", ErrInvalidQuery, maxQueryLength)
	}
	return nil
}

// ChromemConfig holds configuration for the chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.local/share/lexflow/vectorstore"
	Path string `koanf:"path"`

	// InMemory skips persistence entirely. Path is ignored.
	InMemory bool `koanf:"in_memory"`

	// Compress enables gzip compression for persisted data.
	Compress bool `koanf:"compress"`

	// Collection holds the corpus sections.
	// Default: "lexflow_sections"
	Collection string `koanf:"collection"`

	// VectorSize is the expected embedding dimension.
	// Default: 384
	VectorSize int `koanf:"vector_size"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.local/share/lexflow/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "lexflow_sections"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemStore implements Store using chromem-go.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	config     ChromemConfig
	logger     *zap.Logger
}

// NewChromemStore creates a ChromemStore and opens (or creates) its collection.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var db *chromem.DB
	if config.InMemory {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		config.Path = path
	}

	s := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Collection, err)
	}
	s.collection = collection

	logger.Info("chromem store initialized",
		zap.String("path", config.Path),
		zap.Bool("in_memory", config.InMemory),
		zap.String("collection", config.Collection),
		zap.Int("vector_size", config.VectorSize),
		zap.Int("documents", collection.Count()),
	)

	return s, nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// AddDocuments embeds the documents in one batch and stores them.
func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddDocuments")
	defer span.End()

	span.SetAttributes(
		attribute.Int("document_count", len(docs)),
		attribute.String("collection", s.config.Collection),
	)

	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	ids := make([]string, len(docs))
	texts := make([]string, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return nil, fmt.Errorf("document at index %d has no id", i)
		}
		ids[i] = doc.ID
		texts[i] = doc.Content
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(embeddings) != len(docs) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d documents", ErrEmbeddingFailed, len(embeddings), len(docs))
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  metadataToString(doc.Metadata),
			Embedding: embeddings[i],
		}
	}

	// Embeddings are precomputed, so concurrency 1 is enough.
	if err := s.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("added documents to chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(docs)),
	)
	return ids, nil
}

// Search performs similarity search over the collection.
func (s *ChromemStore) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	return s.SearchWithFilters(ctx, query, k, nil)
}

// SearchWithFilters performs similarity search with exact-match metadata filters.
func (s *ChromemStore) SearchWithFilters(ctx context.Context, query string, k int, filters map[string]any) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
	)

	if err := validateQuery(query, k); err != nil {
		return nil, err
	}

	// chromem requires nResults <= document count.
	count := s.collection.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.Query(ctx, query, k, metadataToString(filters), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: metadataFromString(r.Metadata),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(out)))
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

// DeleteDocuments deletes documents by their IDs.
func (s *ChromemStore) DeleteDocuments(ctx context.Context, ids []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteDocuments")
	defer span.End()

	span.SetAttributes(attribute.Int("id_count", len(ids)))
	if len(ids) == 0 {
		return nil
	}

	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting documents: %w", err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Count returns the number of stored documents.
func (s *ChromemStore) Count(_ context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

func metadataToString(metadata map[string]any) map[string]string {
	if len(metadata) == 0 {
		return nil
	}

	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = strconv.Itoa(val)
		case int64:
			result[k] = strconv.FormatInt(val, 10)
		case float64:
			result[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			result[k] = strconv.FormatBool(val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

func metadataFromString(metadata map[string]string) map[string]any {
	if metadata == nil {
		return nil
	}
	result := make(map[string]any, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}

var _ Store = (*ChromemStore)(nil)
