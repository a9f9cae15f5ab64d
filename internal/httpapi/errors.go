package httpapi

import (
	"context"
	"errors"
	"net/http"

	"cpor-analytics/internal/contracts"
	"cpor-analytics/internal/dashboard"
	"cpor-analytics/internal/dataset"
	"cpor-analytics/internal/export"
	"cpor-analytics/internal/expr"
	"cpor-analytics/internal/loader"
	"cpor-analytics/internal/pivot"
	"cpor-analytics/internal/remote"
)

// ErrForbidden is returned when the refresh token check fails.
var ErrForbidden = errors.New("forbidden")

// errBadRequest marks request decoding and validation failures.
var errBadRequest = errors.New("bad request")

// statusClientClosedRequest is the nginx convention for a client that went
// away before the response was written.
const statusClientClosedRequest = 499

// clientErrors map to 400.
var clientErrors = []error{
	errBadRequest,
	loader.ErrUnsupportedFormat,
	loader.ErrMalformed,
	loader.ErrEmptyInput,
	loader.ErrSchemaConflict,
	contracts.ErrEmptyInput,
	dataset.ErrUnknownColumn,
	pivot.ErrNoMeasure,
	pivot.ErrTooManyMeasures,
	pivot.ErrUnknownAggregator,
	expr.ErrInvalidExpression,
	export.ErrUnsupportedFormat,
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, dataset.ErrNotFound), errors.Is(err, dashboard.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, remote.ErrFetchFailed):
		return http.StatusBadGateway
	}
	for _, sentinel := range clientErrors {
		if errors.Is(err, sentinel) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the error onto the status taxonomy. A request whose own
// context was cancelled reports 499 regardless of the wrapped error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if r.Context().Err() == context.Canceled {
		status = statusClientClosedRequest
	}
	if status >= http.StatusInternalServerError {
		s.log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
