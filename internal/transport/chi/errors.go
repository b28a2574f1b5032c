package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/logger"
)

// ErrorCode is the machine-readable error code of an ErrorResponse.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest              ErrorCode = "bad_request"
	CodeValidationFailed        ErrorCode = "validation_failed"
	CodeInvalidCursor           ErrorCode = "invalid_cursor"
	CodeInvalidPipeline         ErrorCode = "invalid_pipeline"
	CodeUnauthorized            ErrorCode = "unauthorized"
	CodeForbidden               ErrorCode = "forbidden"
	CodeNotFound                ErrorCode = "not_found"
	CodeCardNotFound            ErrorCode = "card_not_found"
	CodeCollectionNotFound      ErrorCode = "collection_not_found"
	CodeMethodNotAllowed        ErrorCode = "method_not_allowed"
	CodeIngestRunning           ErrorCode = "ingest_running"
	CodeRateLimited             ErrorCode = "rate_limited"
	CodeQuotaExceeded           ErrorCode = "quota_exceeded"
	CodeIngestFetchFailed       ErrorCode = "ingest_fetch_failed"
	CodeEmbeddingProviderError  ErrorCode = "embedding_provider_error"
	CodeCompletionProviderError ErrorCode = "completion_provider_error"
	CodeRulesNotIndexed         ErrorCode = "rules_not_indexed"
	CodeNotImplemented          ErrorCode = "not_implemented"
	CodeTimeout                 ErrorCode = "timeout"
	CodeInternalError           ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

var errorHandlers = []errorHandler{
	validationHandler,
	sentinelHandler(domain.ErrInvalidCursor, http.StatusBadRequest, CodeInvalidCursor),
	sentinelHandler(domain.ErrInvalidPipeline, http.StatusBadRequest, CodeInvalidPipeline),
	sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrCardNotFound, http.StatusNotFound, CodeCardNotFound),
	sentinelHandler(domain.ErrCollectionNotFound, http.StatusNotFound, CodeCollectionNotFound),
	sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
	sentinelHandler(domain.ErrIngestRunning, http.StatusConflict, CodeIngestRunning),
	sentinelHandler(domain.ErrQuotaExceeded, http.StatusTooManyRequests, CodeQuotaExceeded),
	sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
	sentinelHandler(domain.ErrIngestFetch, http.StatusBadGateway, CodeIngestFetchFailed),
	sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError),
	sentinelHandler(domain.ErrCompletionProviderError, http.StatusBadGateway, CodeCompletionProviderError),
	sentinelHandler(domain.ErrNoRules, http.StatusServiceUnavailable, CodeRulesNotIndexed),
	sentinelHandler(domain.ErrNotImplemented, http.StatusNotImplemented, CodeNotImplemented),
	sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout),
}

// sentinels whose text is safe to show to clients.
var sentinels = []error{
	domain.ErrInvalidCursor,
	domain.ErrInvalidPipeline,
	domain.ErrCardNotFound,
	domain.ErrCollectionNotFound,
	domain.ErrNotFound,
	domain.ErrIngestRunning,
	domain.ErrQuotaExceeded,
	domain.ErrRateLimited,
	domain.ErrIngestFetch,
	domain.ErrEmbeddingProviderError,
	domain.ErrCompletionProviderError,
	domain.ErrNoRules,
	domain.ErrNotImplemented,
	domain.ErrInvalidRequest,
	context.DeadlineExceeded,
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// validationHandler reports the offending field of a ValidationError.
func validationHandler(w http.ResponseWriter, err error, msg string) bool {
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Code:    CodeValidationFailed,
		Message: msg,
		Field:   verr.Field,
	})
	return true
}

func handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logger.From(ctx)
	msg := safeDomainMessage(err)
	for _, h := range errorHandlers {
		if h(w, err, msg) {
			log.Debug("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
