package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/vfirsov/agentflow/contracts"
)

// ErrorCode represents an API error code.
type ErrorCode string

// Error codes for API responses.
const (
	CodeInvalidInput       ErrorCode = "invalid_input"
	CodeDAGCycle           ErrorCode = "dag_cycle"
	CodeDAGInvalid         ErrorCode = "dag_invalid"
	CodeDepNotFound        ErrorCode = "dep_not_found"
	CodeProjectNotFound    ErrorCode = "project_not_found"
	CodeProjectNotReady    ErrorCode = "project_not_ready"
	CodeProjectCompleted   ErrorCode = "project_completed"
	CodeProjectCancelled   ErrorCode = "project_cancelled"
	CodeTaskNotFound       ErrorCode = "task_not_found"
	CodeTaskNotReady       ErrorCode = "task_not_ready"
	CodeBudgetExceeded     ErrorCode = "budget_exceeded"
	CodeBudgetNotSet       ErrorCode = "budget_not_set"
	CodeTaskFailed         ErrorCode = "task_failed"
	CodeCheckpointNotFound ErrorCode = "checkpoint_not_found"
	CodeCheckpointResolved ErrorCode = "checkpoint_resolved"
	CodeCancelled          ErrorCode = "cancelled"
	CodeTimeout            ErrorCode = "timeout"
	CodeInternalError      ErrorCode = "internal_error"
)

// HTTPError represents an error with an associated HTTP status code.
type HTTPError struct {
	StatusCode int
	Code       ErrorCode
	Err        error
}

func (e *HTTPError) Error() string { return e.Err.Error() }
func (e *HTTPError) Unwrap() error { return e.Err }

// MapError maps a domain error to an HTTPError.
func MapError(err error) *HTTPError {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, contracts.ErrInvalidInput):
		return &HTTPError{http.StatusBadRequest, CodeInvalidInput, err}

	case errors.Is(err, contracts.ErrDAGCycle):
		return &HTTPError{http.StatusUnprocessableEntity, CodeDAGCycle, err}

	case errors.Is(err, contracts.ErrDAGInvalid):
		return &HTTPError{http.StatusUnprocessableEntity, CodeDAGInvalid, err}

	case errors.Is(err, contracts.ErrDepNotFound), errors.Is(err, contracts.ErrDepInvalid):
		return &HTTPError{http.StatusUnprocessableEntity, CodeDepNotFound, err}

	case errors.Is(err, contracts.ErrProjectNotFound):
		return &HTTPError{http.StatusNotFound, CodeProjectNotFound, err}

	case errors.Is(err, contracts.ErrProjectNotReady):
		return &HTTPError{http.StatusConflict, CodeProjectNotReady, err}

	case errors.Is(err, contracts.ErrProjectCompleted):
		return &HTTPError{http.StatusConflict, CodeProjectCompleted, err}

	case errors.Is(err, contracts.ErrProjectCancelled):
		return &HTTPError{http.StatusConflict, CodeProjectCancelled, err}

	case errors.Is(err, contracts.ErrTaskNotFound):
		return &HTTPError{http.StatusNotFound, CodeTaskNotFound, err}

	case errors.Is(err, contracts.ErrTaskNotReady):
		return &HTTPError{http.StatusConflict, CodeTaskNotReady, err}

	case errors.Is(err, contracts.ErrBudgetExceeded):
		return &HTTPError{http.StatusUnprocessableEntity, CodeBudgetExceeded, err}

	case errors.Is(err, contracts.ErrBudgetNotSet):
		return &HTTPError{http.StatusUnprocessableEntity, CodeBudgetNotSet, err}

	case errors.Is(err, contracts.ErrTaskFailed):
		return &HTTPError{http.StatusInternalServerError, CodeTaskFailed, err}

	case errors.Is(err, contracts.ErrCheckpointNotFound):
		return &HTTPError{http.StatusNotFound, CodeCheckpointNotFound, err}

	case errors.Is(err, contracts.ErrCheckpointResolved):
		return &HTTPError{http.StatusConflict, CodeCheckpointResolved, err}

	case errors.Is(err, context.Canceled), errors.Is(err, contracts.ErrTaskCancelled):
		// 499: nginx convention for "client closed request"
		return &HTTPError{499, CodeCancelled, err}

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, contracts.ErrTaskTimeout):
		return &HTTPError{http.StatusGatewayTimeout, CodeTimeout, err}

	default:
		return &HTTPError{http.StatusInternalServerError, CodeInternalError, err}
	}
}

// WriteError writes an error response to the HTTP response writer.
func WriteError(w http.ResponseWriter, err error) {
	httpErr := MapError(err)
	if httpErr == nil {
		return
	}

	resp := ErrorDTO{
		Code:    string(httpErr.Code),
		Message: httpErr.Error(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpErr.StatusCode)
	writeJSON(w, resp)
}
