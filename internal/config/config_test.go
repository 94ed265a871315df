package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/domain"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Chunker.Size)
	assert.Equal(t, 200, cfg.Chunker.Overlap)
	assert.Equal(t, ProviderLocal, cfg.Embedder.Provider)
	assert.Equal(t, ProviderOpenAI, cfg.Generator.Provider)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Generator.OpenAI.APIKeyEnv)
	assert.Equal(t, "gemini-2.5-pro", cfg.Generator.Gemini.QuizModel)
	assert.Equal(t, int64(10<<20), cfg.Ingest.MaxBytes)
	assert.Equal(t, 5, cfg.Orchestrator.QuizTopK)
	assert.Zero(t, cfg.Orchestrator.QuizRetries)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, RetryConfig{MaxAttempts: 3, InitialDelayMs: 500, MaxDelayMs: 10000, Multiplier: 2}, cfg.Retry)
	assert.NoError(t, cfg.Validate())
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
chunker:
  size: 500
embedder:
  provider: gemini
  gemini:
    model: text-embedding-004
generator:
  provider: gemini
orchestrator:
  quiz_retries: 2
cache:
  enabled: true
  addr: redis:6379
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Chunker.Size)
	assert.Equal(t, 100, cfg.Chunker.Overlap)
	assert.Equal(t, ProviderGemini, cfg.Embedder.Provider)
	assert.Equal(t, "text-embedding-004", cfg.Embedder.Gemini.Model)
	assert.Equal(t, "GEMINI_API_KEY", cfg.Embedder.Gemini.APIKeyEnv)
	assert.Equal(t, ProviderGemini, cfg.Generator.Provider)
	assert.Equal(t, "gemini-2.5-pro", cfg.Generator.Active().QuizModel)
	assert.Equal(t, 2, cfg.Orchestrator.QuizRetries)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "redis:6379", cfg.Cache.Addr)
	assert.Equal(t, "studyrag:emb:", cfg.Cache.KeyPrefix)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Index.SnapshotPath = "/var/lib/studyrag/index.gob"
	cfg.Server.Addr = ":9090"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*AppConfig){
		"overlap equals size": func(c *AppConfig) { c.Chunker.Overlap = c.Chunker.Size },
		"negative overlap":    func(c *AppConfig) { c.Chunker.Overlap = -1 },
		"zero size":           func(c *AppConfig) { c.Chunker.Size = 0 },
		"unknown embedder":    func(c *AppConfig) { c.Embedder.Provider = "word2vec" },
		"local generator":     func(c *AppConfig) { c.Generator.Provider = ProviderLocal },
		"zero retry attempts": func(c *AppConfig) { c.Retry.MaxAttempts = 0 },
		"negative quiz retry": func(c *AppConfig) { c.Orchestrator.QuizRetries = -1 },
		"negative timeout":    func(c *AppConfig) { c.Generator.TimeoutSecs = -5 },
		"negative max bytes":  func(c *AppConfig) { c.Ingest.MaxBytes = -1 },
		"negative local dims": func(c *AppConfig) { c.Embedder.Local.Dimension = -3 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidConfiguration)
		})
	}
}

func TestAPIKeyReadsEnvironment(t *testing.T) {
	t.Setenv("STUDYRAG_TEST_KEY", "sk-test")
	p := ProviderConfig{APIKeyEnv: "STUDYRAG_TEST_KEY"}
	assert.Equal(t, "sk-test", p.APIKey())
}
