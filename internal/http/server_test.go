package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/lexflow/internal/capability"
	"github.com/fyrsmithlabs/lexflow/internal/config"
	"github.com/fyrsmithlabs/lexflow/internal/retrieval"
	"github.com/fyrsmithlabs/lexflow/internal/validation"
	"github.com/fyrsmithlabs/lexflow/internal/workflow"
)

type fakeRetriever struct {
	passages []retrieval.Passage
	err      error
	got      retrieval.Request
}

func (f *fakeRetriever) Retrieve(_ context.Context, req retrieval.Request) ([]retrieval.Passage, error) {
	f.got = req
	return f.passages, f.err
}

func echoCapability() capability.Capability {
	return capability.NewFunc("echo", capability.KindGeneration, []string{"answer"},
		func(_ context.Context, task capability.Task) capability.Result {
			if task.String("fail") == "yes" {
				return capability.Failedf("model offline")
			}
			return capability.Completed(map[string]any{"answer": "re: " + task.String("question")})
		})
}

func newTestOrchestrator(t *testing.T) *workflow.Orchestrator {
	t.Helper()
	registry, err := capability.NewRegistry(echoCapability())
	require.NoError(t, err)
	o, err := workflow.New(registry, workflow.Config{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(o.Close)

	require.NoError(t, o.RegisterWorkflow(workflow.Definition{
		Name:   "ask",
		Domain: "legal",
		Steps: []workflow.Step{{
			ID:         "answer",
			Capability: "echo",
			Input:      map[string]any{"question": "${input.question}", "fail": "${input.fail}"},
		}},
	}))
	return o
}

type testServer struct {
	*Server
	retriever *fakeRetriever
	logs      *observer.ObservedLogs
}

func setupTestServer(t *testing.T, cfg config.ServerConfig, opts ...Option) *testServer {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	r := &fakeRetriever{passages: []retrieval.Passage{
		{ID: "sec-465", Text: "Directors owe duties of care.", Score: 0.81, OriginQuery: "director duties"},
	}}
	s, err := NewServer(newTestOrchestrator(t), r, validation.New(validation.Config{}, zap.NewNop()), cfg, zap.New(core), opts...)
	require.NoError(t, err)
	return &testServer{Server: s, retriever: r, logs: logs}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewServer(t *testing.T) {
	t.Run("requires orchestrator", func(t *testing.T) {
		_, err := NewServer(nil, nil, nil, config.ServerConfig{}, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("requires logger", func(t *testing.T) {
		_, err := NewServer(newTestOrchestrator(t), nil, nil, config.ServerConfig{}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		ts := setupTestServer(t, config.ServerConfig{}, WithVersion("1.2.3"))
		rec := ts.do(t, http.MethodGet, "/api/v1/health", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decode[HealthResponse](t, rec)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "1.2.3", resp.Version)
	})

	t.Run("degraded dependency", func(t *testing.T) {
		ts := setupTestServer(t, config.ServerConfig{},
			WithHealthCheck("corpus", func(context.Context) error { return nil }),
			WithHealthCheck("qdrant", func(context.Context) error { return errors.New("connection refused") }),
		)
		rec := ts.do(t, http.MethodGet, "/api/v1/health", nil)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		resp := decode[HealthResponse](t, rec)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "ok", resp.Services["corpus"])
		assert.Contains(t, resp.Services["qdrant"], "connection refused")
	})
}

func TestListing(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	rec := ts.do(t, http.MethodGet, "/api/v1/capabilities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	caps := decode[CapabilitiesResponse](t, rec)
	require.Len(t, caps.Capabilities, 1)
	assert.Equal(t, "echo", caps.Capabilities[0].Name)

	rec = ts.do(t, http.MethodGet, "/api/v1/workflows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	wfs := decode[WorkflowsResponse](t, rec)
	require.Len(t, wfs.Workflows, 1)
	assert.Equal(t, "ask", wfs.Workflows[0].Name)
	assert.Equal(t, 1, wfs.Workflows[0].Steps)

	rec = ts.do(t, http.MethodGet, "/api/v1/workflows/ask", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	def := decode[workflow.Definition](t, rec)
	assert.Equal(t, "legal", def.Domain)

	rec = ts.do(t, http.MethodGet, "/api/v1/workflows/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecute(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	t.Run("completed", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/workflows/ask/execute",
			ExecuteRequest{Input: map[string]any{"question": "what is a quorum?", "fail": "no"}})

		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[map[string]any](t, rec)
		assert.Equal(t, "completed", res["status"])
		assert.Equal(t, "re: what is a quorum?", res["output"].(map[string]any)["answer"])
	})

	t.Run("failed run is still 200", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/workflows/ask/execute",
			ExecuteRequest{Input: map[string]any{"question": "q", "fail": "yes"}})

		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[map[string]any](t, rec)
		assert.Equal(t, "failed", res["status"])
		assert.Contains(t, res["error"], "model offline")
	})

	t.Run("unknown workflow", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/workflows/missing/execute", ExecuteRequest{})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "unknown workflow")
	})

	t.Run("history and stats", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/executions?limit=1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		hist := decode[ExecutionsResponse](t, rec)
		require.Len(t, hist.Executions, 1)
		assert.Equal(t, workflow.StatusFailed, hist.Executions[0].Status)

		rec = ts.do(t, http.MethodGet, "/api/v1/stats", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		stats := decode[workflow.Stats](t, rec)
		assert.Equal(t, 2, stats.TotalExecutions)
		assert.Equal(t, 1, stats.Completed)

		rec = ts.do(t, http.MethodGet, "/api/v1/executions?limit=zero", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestParallel(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	rec := ts.do(t, http.MethodPost, "/api/v1/tasks/parallel", ParallelRequest{Tasks: []workflow.ParallelTask{
		{ID: "a", Capability: "echo", Input: map[string]any{"question": "one"}},
		{ID: "b", Capability: "ghost"},
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ParallelResponse](t, rec)
	assert.Equal(t, capability.StatusCompleted, resp.Results["a"].Status)
	assert.Equal(t, capability.StatusFailed, resp.Results["b"].Status)

	rec = ts.do(t, http.MethodPost, "/api/v1/tasks/parallel", ParallelRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/tasks/parallel", ParallelRequest{Tasks: []workflow.ParallelTask{{Capability: "echo"}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetrieve(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	t.Run("returns passages", func(t *testing.T) {
		min := 0.6
		rec := ts.do(t, http.MethodPost, "/api/v1/retrieve", retrieval.Request{
			Queries: []string{"director duties"}, TopKPerQuery: 3, MinScore: &min,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[RetrieveResponse](t, rec)
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, "sec-465", resp.Passages[0].ID)
		assert.Equal(t, 3, ts.retriever.got.TopKPerQuery)
		require.NotNil(t, ts.retriever.got.MinScore)
		assert.Equal(t, 0.6, *ts.retriever.got.MinScore)
	})

	t.Run("empty queries rejected", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/retrieve", retrieval.Request{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("search failure maps to bad gateway", func(t *testing.T) {
		ts.retriever.err = fmt.Errorf("%w: all 1 queries failed", retrieval.ErrSearchFailed)
		defer func() { ts.retriever.err = nil }()

		rec := ts.do(t, http.MethodPost, "/api/v1/retrieve", retrieval.Request{Queries: []string{"x"}})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		s, err := NewServer(newTestOrchestrator(t), nil, nil, config.ServerConfig{}, zap.NewNop())
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", bytes.NewBufferString(`{"queries":["x"]}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestValidate(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	rec := ts.do(t, http.MethodPost, "/api/v1/validate", ValidateRequest{
		Assessment: `{"accuracy": 90, "completeness": 85, "consistency": 95}`,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "passed", resp["status"])
	assert.Equal(t, 90.0, resp["overall_score"])

	rec = ts.do(t, http.MethodPost, "/api/v1/validate", ValidateRequest{Assessment: "???"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[map[string]any](t, rec)
	assert.Equal(t, "partial", resp["status"])

	rec = ts.do(t, http.MethodPost, "/api/v1/validate", ValidateRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthToken(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{AuthToken: "s3cret"})

	rec := ts.do(t, http.MethodGet, "/api/v1/workflows", nil)
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusUnauthorized}, rec.Code, "missing key")

	rec = ts.do(t, http.MethodGet, "/api/v1/workflows", nil, echo.HeaderAuthorization, "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/workflows", nil, echo.HeaderAuthorization, "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDLogged(t *testing.T) {
	ts := setupTestServer(t, config.ServerConfig{})

	rec := ts.do(t, http.MethodGet, "/api/v1/workflows", nil, echo.HeaderXRequestID, "req-42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(echo.HeaderXRequestID))

	entries := ts.logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-42", entries[0].ContextMap()["request_id"])
	assert.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
}

func TestPrometheusEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "lexflow_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	ts := setupTestServer(t, config.ServerConfig{}, WithGatherer(reg))
	rec := ts.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lexflow_test_total 1")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", workflow.ErrUnknownWorkflow), http.StatusNotFound},
		{fmt.Errorf("x: %w", workflow.ErrUnresolvedVariable), http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", workflow.ErrInvalidDefinition), http.StatusBadRequest},
		{fmt.Errorf("x: %w", retrieval.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("x: %w", capability.ErrInvalidTask), http.StatusBadRequest},
		{fmt.Errorf("x: %w", retrieval.ErrSearchFailed), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}

	he := toHTTPError(errors.New("database password leaked"))
	assert.Equal(t, http.StatusInternalServerError, he.Code)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), he.Message)
}
