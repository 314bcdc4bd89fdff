package http

import (
	"errors"
	"net/http"

	"github.com/fyrsmithlabs/lexflow/internal/capability"
	"github.com/fyrsmithlabs/lexflow/internal/retrieval"
	"github.com/fyrsmithlabs/lexflow/internal/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, workflow.ErrUnknownWorkflow):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrUnresolvedVariable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrInvalidDefinition),
		errors.Is(err, retrieval.ErrInvalidRequest),
		errors.Is(err, capability.ErrInvalidTask),
		errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, retrieval.ErrSearchFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// toHTTPError converts err into an echo error carrying the mapped status.
func toHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = http.StatusText(code)
	}
	return echo.NewHTTPError(code, msg).SetInternal(err)
}

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}
