package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/docdex/internal/domain"
)

// apiError maps a client error to a domain error: HTTP 429 becomes
// domain.ErrRateLimited, anything else fallback. The provider's message
// is kept in the text.
func (e endpoint) apiError(err error, fallback error) error {
	status, message := 0, ""

	var reqErr *openai.RequestError
	var apiErr *openai.APIError
	switch {
	case errors.As(err, &apiErr):
		status, message = apiErr.HTTPStatusCode, apiErr.Message
	case errors.As(err, &reqErr):
		status, message = reqErr.HTTPStatusCode, bodyMessage(reqErr.Body)
	default:
		return fmt.Errorf("%s request failed: %w: %w", e.kind, err, fallback)
	}

	if status == http.StatusTooManyRequests {
		fallback = domain.ErrRateLimited
	}
	return fmt.Errorf("%s API error %d: %s: %w", e.kind, status, message, fallback)
}

// bodyMessage pulls the message out of a non-OpenAI error body. Some
// compatible providers answer {"detail": "..."}.
func bodyMessage(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Detail != "" {
			return parsed.Detail
		}
		if parsed.Error.Message != "" {
			return parsed.Error.Message
		}
	}
	return string(body)
}
