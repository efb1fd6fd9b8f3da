// Package errors maps domain errors onto the HTTP error contract.
//
// Every error path produces the same JSON envelope:
//
//	{"error": {"code", "message", "request_id", "details"}}
//
// with a stable UPPER_SNAKE code and a status derived from the error kind.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/vidgrab/vidgrab/internal/server/middleware"
	"github.com/vidgrab/vidgrab/pkg/fetch"
	"github.com/vidgrab/vidgrab/pkg/jobstore"
	"github.com/vidgrab/vidgrab/pkg/runner"
	"github.com/vidgrab/vidgrab/pkg/uploader"
)

// HTTPErrorResponse is the JSON error envelope. It mirrors
// middleware.ErrorResponse so both packages produce identical bodies.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// HTTPErrorDetail carries the error payload inside the envelope.
type HTTPErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Classify maps a domain error to its HTTP status and stable code.
func Classify(err error) (status int, code string) {
	switch {
	case fetch.IsInvalidURL(err):
		return http.StatusBadRequest, string(jobstore.KindInvalidURL)
	case fetch.IsDurationExceeded(err):
		return http.StatusBadRequest, string(jobstore.KindDurationExceeded)
	case fetch.IsUnsupportedContent(err):
		return http.StatusUnprocessableEntity, string(jobstore.KindUnsupportedContent)
	case jobstore.IsNotFound(err):
		return http.StatusNotFound, "NOT_FOUND"
	case runner.IsOverloaded(err):
		return http.StatusTooManyRequests, "OVERLOADED"
	case fetch.IsUpstreamRejected(err):
		return http.StatusBadGateway, string(jobstore.KindUpstreamRejected)
	case fetch.IsNetworkFailure(err):
		return http.StatusBadGateway, string(jobstore.KindNetworkFailure)
	case uploader.IsUploadFailed(err):
		return http.StatusInternalServerError, string(jobstore.KindStorageUploadFailed)
	case fetch.IsCancelled(err):
		return http.StatusInternalServerError, string(jobstore.KindCancelled)
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// RespondWithError writes err as the standard JSON error envelope, picking
// status and code from the error kind.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := Classify(err)

	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err))
	}

	WriteError(w, r, status, code, err.Error(), nil)
}

// WriteError writes an explicit error envelope. Use RespondWithError when
// the status and code should derive from the error itself.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := HTTPErrorResponse{
		Error: HTTPErrorDetail{
			Code:      code,
			Message:   message,
			RequestID: middleware.GetRequestID(r.Context()),
			Details:   details,
		},
	}
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		zap.L().Error("failed to encode error response", zap.Error(encErr))
	}
}

// Is reports whether err matches target. Re-exported so handler packages
// only import one errors package.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
