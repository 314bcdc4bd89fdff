package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/logging"
	"github.com/fyrsmithlabs/lexflow/internal/retrieval"
	"github.com/fyrsmithlabs/lexflow/internal/validation"
)

const defaultHistoryLimit = 20

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Version: s.version}
	code := http.StatusOK

	if len(s.checks) > 0 {
		resp.Services = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			if err := check(c.Request().Context()); err != nil {
				resp.Services[name] = "unavailable: " + err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Services[name] = "ok"
		}
	}
	return c.JSON(code, resp)
}

func (s *Server) handleCapabilities(c echo.Context) error {
	return c.JSON(http.StatusOK, CapabilitiesResponse{Capabilities: s.orch.Capabilities()})
}

func (s *Server) handleWorkflows(c echo.Context) error {
	return c.JSON(http.StatusOK, WorkflowsResponse{Workflows: s.orch.Workflows()})
}

func (s *Server) handleDefinition(c echo.Context) error {
	def, err := s.orch.Definition(c.Param("name"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, def)
}

// handleExecute answers 200 for failed runs too; the failure is in the body.
func (s *Server) handleExecute(c echo.Context) error {
	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Input == nil {
		req.Input = map[string]any{}
	}

	name := c.Param("name")
	res, err := s.orch.Execute(c.Request().Context(), name, req.Input)
	if err != nil {
		return toHTTPError(err)
	}
	logging.For(c.Request().Context(), s.logger).Debug("workflow executed",
		zap.String("workflow", name),
		zap.String("execution_id", res.ExecutionID),
		zap.String("status", string(res.Status)))
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleParallel(c echo.Context) error {
	var req ParallelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return toHTTPError(err)
	}

	results, err := s.orch.ExecuteParallel(c.Request().Context(), req.Tasks)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, ParallelResponse{Results: results})
}

func (s *Server) handleRetrieve(c echo.Context) error {
	if s.retriever == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "retrieval is not configured")
	}
	var req retrieval.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return toHTTPError(err)
	}

	passages, err := s.retriever.Retrieve(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(err)
	}
	if passages == nil {
		passages = []retrieval.Passage{}
	}
	return c.JSON(http.StatusOK, RetrieveResponse{Passages: passages, Count: len(passages)})
}

func (s *Server) handleValidate(c echo.Context) error {
	if s.validator == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "validation is not configured")
	}
	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return toHTTPError(err)
	}

	rep := s.validator.Validate(c.Request().Context(), req.Assessment)
	return c.JSON(http.StatusOK, validation.Payload(rep))
}

func (s *Server) handleExecutions(c echo.Context) error {
	limit := defaultHistoryLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	return c.JSON(http.StatusOK, ExecutionsResponse{Executions: s.orch.History(limit)})
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.Stats())
}
