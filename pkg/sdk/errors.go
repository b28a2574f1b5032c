package docdex

import "github.com/kailas-cloud/docdex/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrCardNotFound            = domain.ErrCardNotFound
	ErrCollectionNotFound      = domain.ErrCollectionNotFound
	ErrInvalidRequest          = domain.ErrInvalidRequest
	ErrInvalidCursor           = domain.ErrInvalidCursor
	ErrInvalidPipeline         = domain.ErrInvalidPipeline
	ErrIngestRunning           = domain.ErrIngestRunning
	ErrIngestFetch             = domain.ErrIngestFetch
	ErrQuotaExceeded           = domain.ErrQuotaExceeded
	ErrRateLimited             = domain.ErrRateLimited
	ErrEmbeddingProviderError  = domain.ErrEmbeddingProviderError
	ErrCompletionProviderError = domain.ErrCompletionProviderError
	ErrNoRules                 = domain.ErrNoRules
	// ErrRulesDisabled is returned by the rules methods of a client built
	// without WithRules.
	ErrRulesDisabled = domain.ErrNotImplemented
)
