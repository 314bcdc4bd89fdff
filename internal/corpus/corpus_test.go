package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/lexflow/internal/vectorstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Driver: "sqlite", DSN: ":memory:"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var fixture = []Section{
	{ID: "sec-465", Chapter: "486", Number: "465", Title: "Directors' duties", Text: "A director shall act in good faith."},
	{ID: "sec-12", Title: "Interpretation", Text: "In this Act, unless the context otherwise requires..."},
}

func TestStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	v, err = s.Upsert(ctx, fixture)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	sec, err := s.Get(ctx, "sec-465")
	require.NoError(t, err)
	assert.Equal(t, "Directors' duties", sec.Title)
	assert.Equal(t, "Cap. 486, Section 465", sec.Label())

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	t.Run("re-upsert replaces and bumps version", func(t *testing.T) {
		updated := fixture[0]
		updated.Text = "A director shall act honestly and in good faith."
		v, err := s.Upsert(ctx, []Section{updated})
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)

		sec, err := s.Get(ctx, "sec-465")
		require.NoError(t, err)
		assert.Contains(t, sec.Text, "honestly")

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("get many skips missing ids", func(t *testing.T) {
		got, err := s.GetMany(ctx, []string{"sec-12", "nope"})
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Contains(t, got, "sec-12")
	})

	assert.NoError(t, s.Ping(ctx))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Cap. 1, Section 2", Label("1", "2", "T", "id"))
	assert.Equal(t, "T", Label("1", "", "T", "id"))
	assert.Equal(t, "id", Label("", "", "", "id"))
}

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "lexflow.db", cfg.DSN)
	assert.NoError(t, cfg.Validate())

	assert.ErrorIs(t, Config{Driver: "mysql", DSN: "x"}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{Driver: "postgres"}.Validate(), ErrInvalidConfig)
}

func TestParseSections(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		secs, err := ParseSections(".yaml", []byte(`
sections:
  - id: sec-1
    cap: "486"
    section: "1"
    text: Short title.
`))
		require.NoError(t, err)
		require.Len(t, secs, 1)
		assert.Equal(t, "486", secs[0].Chapter)
	})

	t.Run("json", func(t *testing.T) {
		secs, err := ParseSections(".json", []byte(`{"sections":[{"id":"a","text":"x"},{"id":"b","text":"y"}]}`))
		require.NoError(t, err)
		assert.Len(t, secs, 2)
	})

	t.Run("missing text", func(t *testing.T) {
		_, err := ParseSections(".json", []byte(`{"sections":[{"id":"a"}]}`))
		assert.Error(t, err)
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := ParseSections(".json", []byte(`{"sections":[{"id":"a","text":"x"},{"id":"a","text":"y"}]}`))
		assert.ErrorContains(t, err, "duplicate id")
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := ParseSections(".json", []byte(`{"sections":[{"id":"a","text":"x","bogus":1}]}`))
		assert.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := ParseSections(".csv", nil)
		assert.Error(t, err)
	})
}

func TestLoadSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sections":[{"id":"a","text":"x"}]}`), 0o600))
	secs, err := LoadSections(path)
	require.NoError(t, err)
	assert.Len(t, secs, 1)
}

type mockVectors struct {
	mock.Mock
}

func (m *mockVectors) AddDocuments(ctx context.Context, docs []vectorstore.Document) ([]string, error) {
	args := m.Called(ctx, docs)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockVectors) Search(context.Context, string, int) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (m *mockVectors) SearchWithFilters(context.Context, string, int, map[string]any) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (m *mockVectors) DeleteDocuments(context.Context, []string) error { return nil }
func (m *mockVectors) Count(context.Context) (int, error)              { return 0, nil }
func (m *mockVectors) Close() error                                    { return nil }

func TestIngester(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	vectors := &mockVectors{}
	vectors.On("AddDocuments", mock.Anything, mock.MatchedBy(func(docs []vectorstore.Document) bool {
		return len(docs) == 2 && docs[0].ID == "sec-465" && docs[0].Metadata["cap"] == "486"
	})).Return([]string{"sec-465", "sec-12"}, nil).Once()

	v, err := NewIngester(s, vectors, zaptest.NewLogger(t)).Ingest(ctx, fixture)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	vectors.AssertExpectations(t)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestIngester_IndexFailureLeavesVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	vectors := &mockVectors{}
	vectors.On("AddDocuments", mock.Anything, mock.Anything).Return(nil, vectorstore.ErrEmbeddingFailed)

	_, err := NewIngester(s, vectors, nil).Ingest(ctx, fixture)
	assert.ErrorIs(t, err, vectorstore.ErrEmbeddingFailed)

	v, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}
