package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"studyrag/internal/domain"
	"studyrag/internal/resilience"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderLocal  = "local"
)

// ProviderConfig holds connection details for a hosted model API.
type ProviderConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model,omitempty"`
	// QuizModel overrides Model for quiz generation.
	QuizModel string `yaml:"quiz_model,omitempty"`
}

// APIKey reads the key from the configured environment variable.
func (p ProviderConfig) APIKey() string { return os.Getenv(p.APIKeyEnv) }

// LocalEmbedderConfig configures the offline hashing embedder.
type LocalEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Provider    string              `yaml:"provider"`
	BatchSize   int                 `yaml:"batch_size"`
	Workers     int                 `yaml:"workers"`
	TimeoutSecs int                 `yaml:"timeout_secs"`
	OpenAI      ProviderConfig      `yaml:"openai"`
	Gemini      ProviderConfig      `yaml:"gemini"`
	Local       LocalEmbedderConfig `yaml:"local"`
}

// GeneratorConfig selects and configures the generative model.
type GeneratorConfig struct {
	Provider    string         `yaml:"provider"`
	TimeoutSecs int            `yaml:"timeout_secs"`
	OpenAI      ProviderConfig `yaml:"openai"`
	Gemini      ProviderConfig `yaml:"gemini"`
}

// Active returns the settings of the selected provider.
func (g GeneratorConfig) Active() ProviderConfig {
	if g.Provider == ProviderGemini {
		return g.Gemini
	}
	return g.OpenAI
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetryConfig bounds provider retries.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts"`
	InitialDelayMs int     `yaml:"initial_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms"`
	Multiplier     float64 `yaml:"multiplier"`
}

// CacheConfig configures the Redis embedding cache.
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db"`
	TTLSecs   int    `yaml:"ttl_secs"`
	KeyPrefix string `yaml:"key_prefix"`
}

// IndexConfig configures the in-memory vector index.
type IndexConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	// SnapshotPath, when set, is loaded at start and written on shutdown.
	SnapshotPath string `yaml:"snapshot_path,omitempty"`
}

// OrchestratorConfig tunes retrieval per mode.
type OrchestratorConfig struct {
	ChatTopK    int `yaml:"chat_top_k"`
	QuizTopK    int `yaml:"quiz_top_k"`
	QuizRetries int `yaml:"quiz_retries"`
}

// IngestConfig bounds uploads and summaries.
type IngestConfig struct {
	MaxBytes         int64 `yaml:"max_bytes"`
	SummarySentences int   `yaml:"summary_sentences"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr                string `yaml:"addr"`
	RequestTimeoutSecs  int    `yaml:"request_timeout_secs"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
	// Mode is the gin mode: debug, release or test.
	Mode string `yaml:"mode"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Engine      string   `yaml:"engine"`
	Level       string   `yaml:"level"`
	Format      string   `yaml:"format"`
	OutputPaths []string `yaml:"output_paths"`
	Development bool     `yaml:"development"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker      ChunkerConfig      `yaml:"chunker"`
	Embedder     EmbedderConfig     `yaml:"embedder"`
	Generator    GeneratorConfig    `yaml:"generator"`
	Retry        RetryConfig        `yaml:"retry"`
	Cache        CacheConfig        `yaml:"cache"`
	Index        IndexConfig        `yaml:"index"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Ingest       IngestConfig       `yaml:"ingest"`
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/studyrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/studyrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "studyrag", "config.yaml"), nil
}

// Default returns the configuration used when no file exists. It runs fully
// offline with the local embedder; generation defaults to OpenAI.
func Default() *AppConfig {
	cfg := &AppConfig{
		Embedder:  EmbedderConfig{Provider: ProviderLocal},
		Generator: GeneratorConfig{Provider: ProviderOpenAI},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 1000
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = cfg.Chunker.Size / 5
	}

	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = ProviderLocal
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.Embedder.Workers == 0 {
		cfg.Embedder.Workers = 4
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 30
	}
	providerDefaults(&cfg.Embedder.OpenAI, "OPENAI_API_KEY")
	providerDefaults(&cfg.Embedder.Gemini, "GEMINI_API_KEY")
	if cfg.Embedder.Local.Dimension == 0 {
		cfg.Embedder.Local.Dimension = 384
	}

	if cfg.Generator.Provider == "" {
		cfg.Generator.Provider = ProviderOpenAI
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 60
	}
	providerDefaults(&cfg.Generator.OpenAI, "OPENAI_API_KEY")
	providerDefaults(&cfg.Generator.Gemini, "GEMINI_API_KEY")
	if cfg.Generator.Gemini.QuizModel == "" {
		cfg.Generator.Gemini.QuizModel = "gemini-2.5-pro"
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = retry.MaxAttempts
	}
	if cfg.Retry.InitialDelayMs == 0 {
		cfg.Retry.InitialDelayMs = int(retry.InitialDelay.Milliseconds())
	}
	if cfg.Retry.MaxDelayMs == 0 {
		cfg.Retry.MaxDelayMs = int(retry.MaxDelay.Milliseconds())
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = retry.Multiplier
	}

	if cfg.Cache.Addr == "" {
		cfg.Cache.Addr = "localhost:6379"
	}
	if cfg.Cache.TTLSecs == 0 {
		cfg.Cache.TTLSecs = 86400
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "studyrag:emb:"
	}

	if cfg.Index.DefaultTopK == 0 {
		cfg.Index.DefaultTopK = 3
	}
	if cfg.Orchestrator.ChatTopK == 0 {
		cfg.Orchestrator.ChatTopK = 3
	}
	if cfg.Orchestrator.QuizTopK == 0 {
		cfg.Orchestrator.QuizTopK = 5
	}

	if cfg.Ingest.MaxBytes == 0 {
		cfg.Ingest.MaxBytes = 10 << 20
	}
	if cfg.Ingest.SummarySentences == 0 {
		cfg.Ingest.SummarySentences = 3
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 60
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = 10
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}

	if cfg.Log.Engine == "" {
		cfg.Log.Engine = "slog"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if len(cfg.Log.OutputPaths) == 0 {
		cfg.Log.OutputPaths = []string{"stdout"}
	}
}

func providerDefaults(p *ProviderConfig, keyEnv string) {
	if p.APIKeyEnv == "" {
		p.APIKeyEnv = keyEnv
	}
}

// Validate reports settings that cannot produce a working pipeline.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Chunker.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunker.size must be positive, got %d", c.Chunker.Size))
	}
	if c.Chunker.Overlap <= 0 || c.Chunker.Overlap >= c.Chunker.Size {
		errs = append(errs, fmt.Errorf("chunker.overlap must be in (0, %d), got %d", c.Chunker.Size, c.Chunker.Overlap))
	}
	switch c.Embedder.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown embedder.provider %q", c.Embedder.Provider))
	}
	switch c.Generator.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("unknown generator.provider %q", c.Generator.Provider))
	}
	if c.Embedder.TimeoutSecs < 0 || c.Generator.TimeoutSecs < 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.Embedder.Local.Dimension < 0 {
		errs = append(errs, fmt.Errorf("embedder.local.dimension must be positive, got %d", c.Embedder.Local.Dimension))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Orchestrator.QuizRetries < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.quiz_retries must not be negative, got %d", c.Orchestrator.QuizRetries))
	}
	if c.Ingest.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("ingest.max_bytes must be positive, got %d", c.Ingest.MaxBytes))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}
	return nil
}

// Seconds converts a config value in seconds to a duration.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Millis converts a config value in milliseconds to a duration.
func Millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }
