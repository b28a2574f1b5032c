package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
)

// streamServer answers /chat/completions with server-sent events, one per chunk.
func streamServer(t *testing.T, chunks ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Model         string `json:"model"`
			Stream        bool   `json:"stream"`
			StreamOptions struct {
				IncludeUsage bool `json:"include_usage"`
			} `json:"stream_options"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Stream || !req.StreamOptions.IncludeUsage {
			t.Errorf("stream = %v, include_usage = %v", req.Stream, req.StreamOptions.IncludeUsage)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func deltaChunk(content string) string {
	return fmt.Sprintf(`{"id":"x","object":"chat.completion.chunk","model":"test-chat","choices":[{"index":0,"delta":{"content":%q}}]}`, content)
}

const usageChunk = `{"id":"x","object":"chat.completion.chunk","model":"test-chat","choices":[],` +
	`"usage":{"prompt_tokens":30,"completion_tokens":7,"total_tokens":37}}`

func newTestCompleter(baseURL string) *Completer {
	return NewCompleter(&Config{
		APIKey:   "test-key",
		BaseURL:  baseURL,
		Model:    "test-chat",
		Provider: "test",
		Logger:   zap.NewNop(),
	})
}

var judgeMessages = []domain.Message{
	{Role: domain.RoleSystem, Content: "You are a judge."},
	{Role: domain.RoleUser, Content: "Does deathtouch work with trample?"},
}

func TestCompleter_Streams(t *testing.T) {
	srv := streamServer(t, deltaChunk("Yes, "), deltaChunk(""), deltaChunk("one damage is lethal."), usageChunk)

	var got []string
	usage, err := newTestCompleter(srv.URL).Complete(context.Background(), judgeMessages, func(s string) error {
		got = append(got, s)
		return nil
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if strings.Join(got, "") != "Yes, one damage is lethal." || len(got) != 2 {
		t.Errorf("deltas = %q", got)
	}
	want := domain.CompletionUsage{PromptTokens: 30, CompletionTokens: 7, TotalTokens: 37}
	if usage != want {
		t.Errorf("usage = %+v, want %+v", usage, want)
	}
}

func TestCompleter_NoUsageChunk(t *testing.T) {
	srv := streamServer(t, deltaChunk("ok"))

	text, usage, err := domain.CollectCompletion(context.Background(), newTestCompleter(srv.URL), judgeMessages)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "ok" {
		t.Errorf("text = %q", text)
	}
	if usage != (domain.CompletionUsage{}) {
		t.Errorf("usage = %+v, want zero", usage)
	}
}

func TestCompleter_ConsumerAbort(t *testing.T) {
	srv := streamServer(t, deltaChunk("a"), deltaChunk("b"))
	stop := errors.New("client gone")

	calls := 0
	_, err := newTestCompleter(srv.URL).Complete(context.Background(), judgeMessages, func(string) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v, want consumer error", err)
	}
	if calls != 1 {
		t.Errorf("onDelta called %d times after abort", calls)
	}
}

func TestCompleter_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestCompleter(srv.URL).Complete(context.Background(), judgeMessages, func(string) error { return nil })
	if !errors.Is(err, domain.ErrCompletionProviderError) {
		t.Fatalf("err = %v, want ErrCompletionProviderError", err)
	}
}
