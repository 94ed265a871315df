// Package app wires configuration into a running retrieval pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/option"
	goredis "github.com/redis/go-redis/v9"

	"studyrag/internal/chunker"
	"studyrag/internal/config"
	"studyrag/internal/domain"
	"studyrag/internal/embedding"
	"studyrag/internal/generation"
	"studyrag/internal/provider"
	"studyrag/internal/provider/gemini"
	"studyrag/internal/provider/local"
	"studyrag/internal/provider/openai"
	"studyrag/internal/resilience"
	"studyrag/internal/service"
	"studyrag/internal/summarizer"
	"studyrag/internal/vectorstore/memory"
)

// Name identifies the service in logs.
const Name = "studyrag"

// Version is set at build time.
var Version = "dev"

// InitLogger builds the global structured logger from cfg.
func InitLogger(cfg config.LogConfig) error {
	opt := option.DefaultLogOption()
	if cfg.Engine != "" {
		opt.Engine = cfg.Engine
	}
	if cfg.Level != "" {
		opt.Level = cfg.Level
	}
	if cfg.Format != "" {
		opt.Format = cfg.Format
	}
	if len(cfg.OutputPaths) > 0 {
		opt.OutputPaths = cfg.OutputPaths
	}
	opt.Development = cfg.Development
	opt.WithInitialFields(map[string]interface{}{
		"service.name":    Name,
		"service.version": Version,
	})
	log, err := logger.New(opt)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetGlobal(log)
	return nil
}

// App holds the assembled pipeline.
type App struct {
	Config       *config.AppConfig
	Index        *memory.Storage
	Embedder     *embedding.Client
	Cache        *embedding.RedisCache
	Orchestrator *service.Orchestrator
	Ingestor     *service.Ingestor

	redis *goredis.Client
}

// New assembles the pipeline described by cfg and restores the index
// snapshot when one is configured.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg}

	ch, err := chunker.NewWindowChunker(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		return nil, err
	}

	embProvider, err := newEmbedProvider(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	opts := embedding.Options{
		BatchSize: cfg.Embedder.BatchSize,
		Workers:   cfg.Embedder.Workers,
		Timeout:   config.Seconds(cfg.Embedder.TimeoutSecs),
		Retry:     retryConfig(cfg.Retry),
	}
	if cfg.Cache.Enabled {
		rdb, cache, err := ConnectCache(ctx, cfg.Cache)
		if err != nil {
			// the cache only saves provider calls
			logger.Warnw("embedding cache disabled", "addr", cfg.Cache.Addr, "error", err.Error())
		} else {
			a.redis, a.Cache = rdb, cache
			opts.Cache = cache
		}
	}
	a.Embedder, err = embedding.New(embProvider, opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	genProvider, err := newGenerateProvider(cfg.Generator)
	if err != nil {
		a.Close()
		return nil, err
	}
	gen := generation.New(genProvider, config.Seconds(cfg.Generator.TimeoutSecs), retryConfig(cfg.Retry))

	a.Index = memory.NewStorage(a.Embedder, memory.WithDefaultTopK(cfg.Index.DefaultTopK))
	a.Orchestrator = service.NewOrchestrator(a.Index, gen, service.Settings{
		ChatTopK:    cfg.Orchestrator.ChatTopK,
		QuizTopK:    cfg.Orchestrator.QuizTopK,
		QuizRetries: cfg.Orchestrator.QuizRetries,
		QuizModel:   cfg.Generator.Active().QuizModel,
	})
	a.Ingestor = service.NewIngestor(ch, a.Index, summarizer.NewFrequencySummarizer(), service.IngestSettings{
		MaxBytes:         cfg.Ingest.MaxBytes,
		SummarySentences: cfg.Ingest.SummarySentences,
	})

	if err := a.restoreSnapshot(); err != nil {
		a.Close()
		return nil, err
	}

	logger.Infow("pipeline ready",
		"embedder", a.Embedder.Name(),
		"generator", gen.Name(),
		"chunk_size", ch.Size(),
		"chunk_overlap", ch.Overlap(),
		"cache", a.Cache != nil,
	)
	return a, nil
}

func retryConfig(c config.RetryConfig) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:  c.MaxAttempts,
		InitialDelay: config.Millis(c.InitialDelayMs),
		MaxDelay:     config.Millis(c.MaxDelayMs),
		Multiplier:   c.Multiplier,
	}
}

func newEmbedProvider(cfg config.EmbedderConfig) (provider.Embedder, error) {
	timeout := config.Seconds(cfg.TimeoutSecs)
	switch cfg.Provider {
	case config.ProviderLocal:
		return local.NewHashingEmbedder(cfg.Local.Dimension)
	case config.ProviderOpenAI:
		return openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKey:     cfg.OpenAI.APIKey(),
			EmbedModel: cfg.OpenAI.Model,
			Timeout:    timeout,
		})
	case config.ProviderGemini:
		return gemini.NewClient(gemini.Config{
			BaseURL:    cfg.Gemini.BaseURL,
			APIKey:     cfg.Gemini.APIKey(),
			EmbedModel: cfg.Gemini.Model,
			Timeout:    timeout,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrInvalidConfiguration, cfg.Provider)
	}
}

func newGenerateProvider(cfg config.GeneratorConfig) (provider.Generator, error) {
	timeout := config.Seconds(cfg.TimeoutSecs)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKey:    cfg.OpenAI.APIKey(),
			ChatModel: cfg.OpenAI.Model,
			Timeout:   timeout,
		})
	case config.ProviderGemini:
		return gemini.NewClient(gemini.Config{
			BaseURL:   cfg.Gemini.BaseURL,
			APIKey:    cfg.Gemini.APIKey(),
			ChatModel: cfg.Gemini.Model,
			Timeout:   timeout,
		})
	default:
		return nil, fmt.Errorf("%w: unknown generator %q", domain.ErrInvalidConfiguration, cfg.Provider)
	}
}

// ConnectCache dials Redis and wraps it as an embedding cache. The caller
// closes the returned client.
func ConnectCache(ctx context.Context, cfg config.CacheConfig) (*goredis.Client, *embedding.RedisCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	cache := embedding.NewRedisCache(rdb, embedding.RedisCacheConfig{
		TTL:       config.Seconds(cfg.TTLSecs),
		KeyPrefix: cfg.KeyPrefix,
	})
	return rdb, cache, nil
}

// restoreSnapshot loads the configured snapshot and lists its documents in
// the catalog. Snapshots hold no upload metadata, so names fall back to IDs.
func (a *App) restoreSnapshot() error {
	path := a.Config.Index.SnapshotPath
	if path == "" {
		return nil
	}
	if err := a.Index.LoadFile(path); err != nil {
		return fmt.Errorf("load snapshot %s: %w", path, err)
	}
	ids := a.Index.Documents()
	docs := make([]service.Document, 0, len(ids))
	for _, id := range ids {
		stats, _ := a.Index.Stats(id)
		docs = append(docs, service.Document{ID: id, Name: id, Chunks: stats.Chunks})
	}
	a.Ingestor.Restore(docs)
	if len(docs) > 0 {
		logger.Infow("snapshot restored", "path", path, "documents", len(docs), "dimension", a.Index.Dimension())
	}
	return nil
}

// SaveSnapshot writes the index to the configured snapshot path, if any.
func (a *App) SaveSnapshot() error {
	path := a.Config.Index.SnapshotPath
	if path == "" || a.Index == nil {
		return nil
	}
	if err := a.Index.SaveFile(path); err != nil {
		return fmt.Errorf("save snapshot %s: %w", path, err)
	}
	logger.Infow("snapshot saved", "path", path, "documents", len(a.Index.Documents()))
	return nil
}

// Close releases the worker pool and the Redis connection.
func (a *App) Close() error {
	var errs []error
	if a.Embedder != nil {
		a.Embedder.Close()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
