package main

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/lexflow/internal/config"
	"github.com/fyrsmithlabs/lexflow/internal/corpus"
	"github.com/fyrsmithlabs/lexflow/internal/generation"
	"github.com/fyrsmithlabs/lexflow/internal/workflow"
)

// hashEmbedder buckets words so identical texts have similarity 1.
type hashEmbedder struct{ dim int }

func (e *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *hashEmbedder) Dimension() int { return e.dim }
func (e *hashEmbedder) Close() error   { return nil }

func (e *hashEmbedder) embed(text string) []float32 {
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

const noticeText = "termination of employment requires written notice"

var testSections = []corpus.Section{
	{ID: "s1", Chapter: "226", Number: "35", Title: "Notice", Text: noticeText},
	{ID: "s2", Chapter: "226", Number: "28", Title: "Leave", Text: "annual leave accrues monthly for every employee"},
}

func testConfig(t *testing.T, dsn string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Corpus.DSN = dsn
	cfg.VectorStore.Chromem.InMemory = true
	cfg.VectorStore.Chromem.VectorSize = 64
	cfg.Cache.Backend = "memory"
	require.NoError(t, cfg.Validate())
	return cfg
}

func cannedGenerator() generation.Generator {
	return generation.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.HasPrefix(prompt, "Assess the ") {
			return `{"accuracy": 90, "completeness": 80, "relevance": 90, "clarity": 90, "issues": [], "recommendations": []}`, nil
		}
		return "Termination requires written notice [1].", nil
	})
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t, ":memory:"), zaptest.NewLogger(t),
		withEmbedder(&hashEmbedder{dim: 64}),
		withGenerator(cannedGenerator()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	_, err = corpus.NewIngester(a.records, a.vectors, zaptest.NewLogger(t)).Ingest(ctx, testSections)
	require.NoError(t, err)
	return a
}

func TestNewApp_RegistersReferenceWorkflows(t *testing.T) {
	a := newTestApp(t)

	names := make([]string, 0)
	for _, s := range a.orch.Workflows() {
		names = append(names, s.Name)
	}
	for _, def := range workflow.ReferenceDefinitions() {
		assert.Contains(t, names, def.Name)
	}
	assert.Len(t, a.orch.Capabilities(), 4)
}

func TestNewApp_ExecutesSimpleQA(t *testing.T) {
	a := newTestApp(t)

	res, err := a.orch.Execute(context.Background(), "simple_qa", map[string]any{"question": noticeText})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusCompleted, res.Status, res.Error)
	assert.Equal(t, "Termination requires written notice [1].", res.Output["answer"])
}

func TestNewApp_DisableBuiltinAndFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workflows:
  - name: lookup
    steps:
      - id: search
        capability: retrieval
        input:
          queries: "${input.queries}"
`), 0o600))

	cfg := testConfig(t, ":memory:")
	cfg.Workflows.DisableBuiltin = true
	cfg.Workflows.Files = []string{path}

	a, err := newApp(context.Background(), cfg, zaptest.NewLogger(t),
		withEmbedder(&hashEmbedder{dim: 64}),
		withGenerator(cannedGenerator()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	summaries := a.orch.Workflows()
	require.Len(t, summaries, 1)
	assert.Equal(t, "lookup", summaries[0].Name)
}

func TestNewApp_BadDefinitionFile(t *testing.T) {
	cfg := testConfig(t, ":memory:")
	cfg.Workflows.Files = []string{filepath.Join(t.TempDir(), "missing.yaml")}

	_, err := newApp(context.Background(), cfg, zaptest.NewLogger(t),
		withEmbedder(&hashEmbedder{dim: 64}),
		withGenerator(cannedGenerator()),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading workflow definitions")
}

func TestApp_HTTPServer(t *testing.T) {
	a := newTestApp(t)
	srv, err := a.httpServer()
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	t.Run("health reports corpus", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("retrieve finds the ingested section", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/retrieve", "application/json",
			strings.NewReader(`{"queries":["`+noticeText+`"]}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Passages []struct {
				ID string `json:"id"`
			} `json:"passages"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.NotEmpty(t, body.Passages)
		assert.Equal(t, "s1", body.Passages[0].ID)
	})

	t.Run("prometheus exposes workflow metrics", func(t *testing.T) {
		_, err := a.orch.Execute(context.Background(), "simple_qa", map[string]any{"question": noticeText})
		require.NoError(t, err)

		resp, err := http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestApp_MCPServer(t *testing.T) {
	a := newTestApp(t)
	srv, err := a.mcpServer()
	require.NoError(t, err)
	assert.NotNil(t, srv.MCP())
}

func TestRunIngest(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sections.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
sections:
  - id: s1
    cap: "226"
    section: "35"
    text: termination of employment requires written notice
  - id: s2
    text: annual leave accrues monthly
`), 0o600))

	cfg := testConfig(t, filepath.Join(dir, "corpus.db"))
	logger := zaptest.NewLogger(t)

	version, total, err := runIngest(context.Background(), cfg, logger, []string{file},
		withEmbedder(&hashEmbedder{dim: 64}))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, int64(1), version)

	store, err := corpus.Open(cfg.Corpus, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	t.Run("bad file aborts before opening stores", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("sections:\n  - id: x\n"), 0o600))
		_, _, err := runIngest(context.Background(), cfg, logger, []string{file, bad},
			withEmbedder(&hashEmbedder{dim: 64}))
		require.Error(t, err)

		v, err := store.Version(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)
	})
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t, ":memory:")
	cfg.Server.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, cfg, zaptest.NewLogger(t),
			withEmbedder(&hashEmbedder{dim: 64}),
			withGenerator(cannedGenerator()),
		)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("runServe did not return after cancel")
	}
}
