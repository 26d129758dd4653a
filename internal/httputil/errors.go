package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lessonforge/scribe/internal/executor"
	"github.com/lessonforge/scribe/internal/provider"
	"github.com/lessonforge/scribe/internal/registry"
)

// APIError is the JSON error envelope for every non-2xx response.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message     string `json:"message"`
	Type        string `json:"type"`
	Code        string `json:"code"`
	ScribeReqID string `json:"scribe_request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message:     message,
			Type:        errType,
			Code:        code,
			ScribeReqID: requestID,
		},
	})
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

func WriteUnknownAliasError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusNotFound, "invalid_request_error", "unknown_alias", message)
}

func WriteRateLimitError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusTooManyRequests, "rate_limit_error", "rate_limit_exceeded", message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", "internal_error", message)
}

func WriteServiceUnavailableError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusServiceUnavailable, "server_error", "service_unavailable", message)
}

func WriteUpstreamAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadGateway, "upstream_error", "provider_auth_error", message)
}

func WriteBudgetExceededError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusPaymentRequired, "budget_error", "budget_exceeded", message)
}

// statusClientClosedRequest is the nginx convention for a caller that went
// away; no standard constant exists.
const statusClientClosedRequest = 499

// WriteFromError maps an orchestration error to the appropriate HTTP error
// response. Unrecognized errors become a 500.
func WriteFromError(w http.ResponseWriter, requestID string, err error) {
	switch {
	case errors.Is(err, registry.ErrUnknownAlias):
		WriteUnknownAliasError(w, requestID, err.Error())
		return
	case errors.Is(err, executor.ErrBudgetExceeded):
		WriteBudgetExceededError(w, requestID, err.Error())
		return
	case errors.Is(err, executor.ErrAllProvidersExhausted):
		WriteServiceUnavailableError(w, requestID, err.Error())
		return
	}

	switch provider.ClassOf(err) {
	case provider.ClassAuth:
		WriteUpstreamAuthError(w, requestID, err.Error())
	case provider.ClassInvalidRequest:
		WriteBadRequestError(w, requestID, err.Error())
	case provider.ClassRateLimited:
		WriteRateLimitError(w, requestID, err.Error())
	case provider.ClassCancelled:
		WriteError(w, requestID, statusClientClosedRequest, "client_error", "request_cancelled", err.Error())
	case provider.ClassUnavailable, provider.ClassTransientNetwork:
		WriteServiceUnavailableError(w, requestID, err.Error())
	default:
		WriteInternalError(w, requestID, err.Error())
	}
}
