package docdex

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	defaultPageSize int
	maxPageSize     int
	ledgerPath      string

	embedder     Embedder
	completer    Completer
	systemPrompt string
	topK         int

	dailyTokens   int64
	monthlyTokens int64

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithPageSize sets the default and maximum search page sizes.
// Defaults: 10 and 100.
func WithPageSize(defaultSize, maxSize int) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultPageSize = defaultSize
		c.maxPageSize = maxSize
	})
}

// WithLedger stores the snapshot run ledger in a SQLite file.
// Default: an in-memory database that is lost on Close.
func WithLedger(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.ledgerPath = path
	})
}

// WithRules enables rules questions. The embedder vectorizes rule
// paragraphs and questions; the completer writes the answers.
func WithRules(e Embedder, c Completer) Option {
	return optionFunc(func(cfg *clientConfig) {
		cfg.embedder = e
		cfg.completer = c
	})
}

// WithSystemPrompt replaces the system message sent with every ruling.
func WithSystemPrompt(prompt string) Option {
	return optionFunc(func(c *clientConfig) {
		c.systemPrompt = prompt
	})
}

// WithTopK sets how many rule paragraphs back an answer when the caller
// does not say. Default: 20.
func WithTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = k
	})
}

// WithTokenBudget caps provider tokens per UTC day and month.
// Calls beyond the budget fail with ErrQuotaExceeded. Zero means unlimited.
func WithTokenBudget(daily, monthly int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.dailyTokens = daily
		c.monthlyTokens = monthly
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
