package vectorstore_test

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/lexflow/internal/vectorstore"
)

// wordEmbedder hashes each word into a bucket so texts sharing words are close.
type wordEmbedder struct {
	dim int
	err error
}

func (e *wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.embed(text), nil
}

func (e *wordEmbedder) embed(text string) []float32 {
	v := make([]float32, e.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(e.dim)]++
	}
	var sum float64
	for _, x := range v {
		sum += float64(x * x)
	}
	if sum == 0 {
		v[0] = 1
		return v
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}

func newMemoryStore(t *testing.T) *vectorstore.ChromemStore {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		InMemory:   true,
		Collection: "test_sections",
		VectorSize: 64,
	}, &wordEmbedder{dim: 64}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

var sections = []vectorstore.Document{
	{ID: "s1", Content: "termination of employment requires written notice", Metadata: map[string]any{"chapter": "5"}},
	{ID: "s2", Content: "annual leave accrues monthly for every employee", Metadata: map[string]any{"chapter": "7"}},
	{ID: "s3", Content: "notice period for termination depends on service length", Metadata: map[string]any{"chapter": "5"}},
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)

	ids, err := store.AddDocuments(ctx, sections)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, ids)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	t.Run("ranks related sections first", func(t *testing.T) {
		hits, err := store.Search(ctx, "termination notice", 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		got := []string{hits[0].ID, hits[1].ID}
		assert.ElementsMatch(t, []string{"s1", "s3"}, got)
		assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
		assert.Equal(t, "5", hits[0].Metadata["chapter"])
	})

	t.Run("k larger than collection is capped", func(t *testing.T) {
		hits, err := store.Search(ctx, "employee", 50)
		require.NoError(t, err)
		assert.Len(t, hits, 3)
	})

	t.Run("filters restrict results", func(t *testing.T) {
		hits, err := store.SearchWithFilters(ctx, "employee leave", 3, map[string]any{"chapter": "7"})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "s2", hits[0].ID)
	})

	t.Run("re-adding an id replaces the document", func(t *testing.T) {
		_, err := store.AddDocuments(ctx, []vectorstore.Document{{ID: "s2", Content: "annual leave is twenty days"}})
		require.NoError(t, err)
		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.DeleteDocuments(ctx, []string{"s2"}))
		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestChromemStore_InvalidInput(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)

	_, err := store.AddDocuments(ctx, nil)
	assert.ErrorIs(t, err, vectorstore.ErrEmptyDocuments)

	_, err = store.AddDocuments(ctx, []vectorstore.Document{{Content: "no id"}})
	assert.Error(t, err)

	_, err = store.Search(ctx, "", 3)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidQuery)

	_, err = store.Search(ctx, "notice", 0)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidQuery)

	hits, err := store.Search(ctx, "notice", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemStore_EmbeddingFailure(t *testing.T) {
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{InMemory: true},
		&wordEmbedder{dim: 8, err: errors.New("model offline")}, nil)
	require.NoError(t, err)

	_, err = store.AddDocuments(context.Background(), sections)
	assert.ErrorIs(t, err, vectorstore.ErrEmbeddingFailed)
}

func TestChromemStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := vectorstore.ChromemConfig{Path: dir, VectorSize: 64}
	embedder := &wordEmbedder{dim: 64}

	store, err := vectorstore.NewChromemStore(cfg, embedder, nil)
	require.NoError(t, err)
	_, err = store.AddDocuments(ctx, sections)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := vectorstore.NewChromemStore(cfg, embedder, nil)
	require.NoError(t, err)
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestNewChromemStore_RequiresEmbedder(t *testing.T) {
	_, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{InMemory: true}, nil, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"lexflow_sections", false},
		{"a", false},
		{"", true},
		{"Upper", true},
		{"../etc", true},
		{strings.Repeat("a", 65), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := vectorstore.ValidateCollectionName(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig(t *testing.T) {
	t.Run("defaults to chromem", func(t *testing.T) {
		var cfg vectorstore.Config
		cfg.ApplyDefaults()
		assert.Equal(t, "chromem", cfg.Provider)
		assert.Equal(t, "lexflow_sections", cfg.Chromem.Collection)
		assert.Equal(t, 6334, cfg.Qdrant.Port)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := vectorstore.Config{Provider: "pinecone"}
		assert.ErrorIs(t, cfg.Validate(), vectorstore.ErrInvalidConfig)
		_, err := vectorstore.NewStore(context.Background(), cfg, &wordEmbedder{dim: 8}, nil)
		assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
	})

	t.Run("factory builds chromem", func(t *testing.T) {
		cfg := vectorstore.Config{Chromem: vectorstore.ChromemConfig{InMemory: true}}
		cfg.ApplyDefaults()
		store, err := vectorstore.NewStore(context.Background(), cfg, &wordEmbedder{dim: 8}, nil)
		require.NoError(t, err)
		assert.IsType(t, &vectorstore.ChromemStore{}, store)
	})
}
