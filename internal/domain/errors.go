package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrCardNotFound signals that no card matched a lookup.
	ErrCardNotFound = errors.New("card not found")
	// ErrCollectionNotFound signals an unknown collection name.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrInvalidRequest signals a request that failed validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidCursor signals a pagination token that cannot be decoded.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrInvalidPipeline signals an aggregation payload that is not a list of stages.
	ErrInvalidPipeline = errors.New("invalid pipeline")

	// ErrIngestRunning signals that an ingestion run is already in progress.
	ErrIngestRunning = errors.New("ingestion already running")
	// ErrIngestFetch signals a failure downloading or decoding the bulk snapshot.
	ErrIngestFetch = errors.New("ingestion fetch failed")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded signals that the provider token budget is spent.
	ErrQuotaExceeded = errors.New("token quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrCompletionProviderError signals a chat completion provider failure.
	ErrCompletionProviderError = errors.New("completion provider error")
	// ErrNotImplemented signals an unimplemented feature.
	ErrNotImplemented = errors.New("not implemented")
	// ErrNoRules signals that the rules collection has not been indexed.
	ErrNoRules = errors.New("rules not indexed")
	// ErrNoCards reports an empty catalogue.
	ErrNoCards = errors.New("no cards loaded")
)

// ValidationError wraps ErrInvalidRequest with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidRequest.Error(), e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// NewValidationError creates a validation error for a request field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
