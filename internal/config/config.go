package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the docdex configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Cache    CacheConfig    `yaml:"cache"`
	Search   SearchConfig   `yaml:"search"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Rules    RulesConfig    `yaml:"rules"`
	Provider ProviderConfig `yaml:"provider"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. No keys disables auth.
// Admin keys are needed to trigger ingestion; when none are set every
// API key may.
type AuthConfig struct {
	APIKeys   []string `yaml:"api_keys"`
	AdminKeys []string `yaml:"admin_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // covers streamed rules answers
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CacheConfig holds the Redis/Valkey connection backing the embedding
// cache and token budget counters. No addrs runs without them.
type CacheConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	Standalone       bool     `yaml:"standalone"` // skip cluster discovery
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether a cache server is configured.
func (c CacheConfig) Enabled() bool { return len(c.Addrs) > 0 }

// SearchConfig holds card search pagination settings.
type SearchConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

// IngestConfig holds snapshot ingestion settings.
type IngestConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BulkAPIURL  string `yaml:"bulk_api_url"`
	BulkType    string `yaml:"bulk_type"`
	DownloadDir string `yaml:"download_dir"`
	LedgerPath  string `yaml:"ledger_path"` // sqlite file, ":memory:" for tests
	IntervalMin int    `yaml:"interval_min"`
	RunOnStart  bool   `yaml:"run_on_start"`
	TimeoutMin  int    `yaml:"timeout_min"`
}

// Interval returns the scheduling period.
func (c IngestConfig) Interval() time.Duration { return time.Duration(c.IntervalMin) * time.Minute }

// Timeout returns the per-run deadline.
func (c IngestConfig) Timeout() time.Duration { return time.Duration(c.TimeoutMin) * time.Minute }

// RulesConfig holds rules Q&A settings.
type RulesConfig struct {
	Enabled             bool   `yaml:"enabled"`
	Path                string `yaml:"path"` // plain text, paragraphs separated by blank lines
	TopK                int    `yaml:"top_k"`
	SystemPrompt        string `yaml:"system_prompt"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
	DnD                 Corpus `yaml:"dnd"`
}

// Corpus is an extra rules corpus served beside the main one. It shares
// the provider, instructions and top_k of the rules section.
type Corpus struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`
	SystemPrompt string `yaml:"system_prompt"`
}

// AnyRules reports whether any rules corpus needs the AI provider.
func (c RulesConfig) AnyRules() bool { return c.Enabled || c.DnD.Enabled }

// ProviderConfig holds the OpenAI-compatible AI provider settings.
type ProviderConfig struct {
	Name           string       `yaml:"name"`
	APIKey         string       `yaml:"api_key"`
	BaseURL        string       `yaml:"base_url"`
	EmbeddingModel string       `yaml:"embedding_model"`
	ChatModel      string       `yaml:"chat_model"`
	Budget         BudgetConfig `yaml:"budget"`
}

// BudgetConfig holds token budget settings shared by embedding and chat calls.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML after environment expansion, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Search.DefaultPageSize <= 0 {
		c.Search.DefaultPageSize = 10
	}
	if c.Search.MaxPageSize <= 0 {
		c.Search.MaxPageSize = 100
	}
	if c.Ingest.BulkAPIURL == "" {
		c.Ingest.BulkAPIURL = "https://api.scryfall.com/bulk-data"
	}
	if c.Ingest.BulkType == "" {
		c.Ingest.BulkType = "default_cards"
	}
	if c.Ingest.DownloadDir == "" {
		c.Ingest.DownloadDir = os.TempDir()
	}
	if c.Ingest.LedgerPath == "" {
		c.Ingest.LedgerPath = "data/ingest.db"
	}
	if c.Ingest.IntervalMin <= 0 {
		c.Ingest.IntervalMin = 24 * 60
	}
	if c.Ingest.TimeoutMin <= 0 {
		c.Ingest.TimeoutMin = 60
	}
	if c.Rules.TopK <= 0 {
		c.Rules.TopK = 20
	}
	if c.Rules.SystemPrompt == "" {
		c.Rules.SystemPrompt = "You are a Magic: The Gathering judge helping a player with a rules question. " +
			"Keep answers short and clear so the game is not slowed down."
	}
	if c.Provider.Name == "" {
		c.Provider.Name = "openai"
	}
	if c.Provider.EmbeddingModel == "" {
		c.Provider.EmbeddingModel = "text-embedding-3-small"
	}
	if c.Provider.ChatModel == "" {
		c.Provider.ChatModel = "gpt-4o-mini"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Search.DefaultPageSize > c.Search.MaxPageSize {
		return fmt.Errorf("search.default_page_size (%d) exceeds search.max_page_size (%d)",
			c.Search.DefaultPageSize, c.Search.MaxPageSize)
	}
	if c.Rules.Enabled && c.Rules.Path == "" {
		return fmt.Errorf("rules.path is required when rules are enabled")
	}
	if c.Rules.DnD.Enabled && c.Rules.DnD.Path == "" {
		return fmt.Errorf("rules.dnd.path is required when D&D rules are enabled")
	}
	if c.Rules.AnyRules() && c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required when rules are enabled")
	}
	switch c.Provider.Budget.Action {
	case "", "warn", "reject":
	default:
		return fmt.Errorf("provider.budget.action must be \"warn\" or \"reject\", got %q", c.Provider.Budget.Action)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// Relative to this source file, for tests run from package directories.
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// envVarRegex matches ${VAR} and ${VAR:-default}.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
