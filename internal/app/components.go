package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"contextanalyzer/internal/cache"
	"contextanalyzer/internal/classifier"
	"contextanalyzer/internal/config"
	"contextanalyzer/internal/embedding"
	"contextanalyzer/internal/httpx"
	"contextanalyzer/internal/hybrid"
	"contextanalyzer/internal/integrations/llm"
	slacknotify "contextanalyzer/internal/integrations/slack"
	"contextanalyzer/internal/metrics"
	"contextanalyzer/internal/pattern"
	"contextanalyzer/internal/storage/sqlite"
	"contextanalyzer/internal/vectorsearch"
)

const (
	cacheReference      = "reference"
	cacheClassification = "classification"
	cacheEmbeddings     = "embeddings"

	storedCorrectionsLimit = 500
)

// Components is the wired object graph shared by every command.
type Components struct {
	Config     config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	DB         *sql.DB
	Caches     []*cache.Manager
	Pattern    *pattern.Analyzer
	Classifier *classifier.Classifier
	Embeddings *embedding.Service
	Search     *vectorsearch.Service
	Notifier   *slacknotify.Notifier
	Hybrid     *hybrid.Analyzer
}

// Build constructs every component from cfg. Optional parts that cannot be
// built (LLM, embeddings) are logged and left out rather than failing.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	logger.Info("config loaded",
		zap.String("llm_provider", cfg.LLMProvider),
		zap.Bool("ai_enabled", cfg.AIEnabled),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Bool("live_data", cfg.EnableLiveData),
		zap.Duration("external_http_timeout", timeout),
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	logger.Info("database initialized", zap.String("path", cfg.DBPath))

	c := &Components{Config: cfg, Logger: logger, Metrics: metrics.New(), DB: db}
	if err := c.build(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) build(ctx context.Context) error {
	cfg := c.Config

	refCache, err := c.newCache(cacheReference)
	if err != nil {
		return err
	}
	ref, err := pattern.LoadReferenceData(ctx, pattern.ReferenceConfig{
		RetirementsPath: cfg.RetirementsPath,
		CorrectionsPath: cfg.CorrectionsPath,
		EnableLiveData:  cfg.EnableLiveData,
		Live:            pattern.NewAzureCLISource(time.Duration(cfg.LiveDataTimeoutSeconds) * time.Second),
		Cache:           refCache,
		Logger:          c.Logger,
		Metrics:         c.Metrics,
	})
	if err != nil {
		return fmt.Errorf("load reference data: %w", err)
	}
	stored, err := sqlite.GetRecentCorrections(c.DB, time.Time{}, storedCorrectionsLimit)
	if err != nil {
		return fmt.Errorf("load stored corrections: %w", err)
	}
	for i := len(stored) - 1; i >= 0; i-- {
		ref.AddCorrection(stored[i])
	}

	glossary, err := loadGlossary(cfg.GlossaryPath)
	if err != nil {
		return err
	}
	c.Pattern = pattern.NewAnalyzer(pattern.Options{
		Reference:    ref,
		Glossary:     glossary,
		GlossaryPath: cfg.GlossaryPath,
		Logger:       c.Logger,
	})

	embCache, err := c.newCache(cacheEmbeddings)
	if err != nil {
		return err
	}
	var provider embedding.Provider
	if p, err := embedding.NewOpenAIProvider(embedding.ProviderConfigFrom(cfg)); err != nil {
		c.Logger.Warn("embeddings unavailable, search will be lexical", zap.Error(err))
	} else {
		provider = p
	}
	c.Embeddings = embedding.NewService(provider, embedding.Options{
		Model:     cfg.EmbeddingModel,
		Dimension: cfg.EmbeddingDimension,
		Cache:     embCache,
		Logger:    c.Logger,
		Metrics:   c.Metrics,
	})
	c.Search = vectorsearch.New(c.Embeddings, c.Logger)

	if cfg.AIEnabled {
		classCache, err := c.newCache(cacheClassification)
		if err != nil {
			return err
		}
		client, err := llm.NewFromConfig(cfg, c.Logger)
		if err != nil {
			c.Logger.Warn("llm unavailable, running pattern only", zap.Error(err))
		} else {
			c.Classifier = classifier.New(client, classifier.Options{
				Cache:          classCache,
				AgreementBoost: cfg.AgreementBoost,
				Logger:         c.Logger,
				Metrics:        c.Metrics,
			})
		}
	}

	c.Notifier = slacknotify.New(cfg.SlackBotToken, cfg.SlackChannelID, c.Logger)

	opts := hybrid.Options{
		Search:              c.Search,
		SimilarCollection:   cfg.SimilarIssuesCollection,
		SimilarTopK:         cfg.SimilarIssuesTopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
		Recorder:            sqlite.Recorder{DB: c.DB},
		Logger:              c.Logger,
		Metrics:             c.Metrics,
	}
	if c.Classifier != nil {
		opts.Classifier = c.Classifier
	}
	if c.Notifier.Enabled() {
		opts.Notifier = c.Notifier
	}
	c.Hybrid = hybrid.New(c.Pattern, opts)
	return nil
}

func (c *Components) newCache(name string) (*cache.Manager, error) {
	var store cache.Store
	switch c.Config.CacheBackend {
	case "sqlite":
		store = sqlite.NewCacheStore(c.DB, name)
	default:
		store = cache.NewFileStore(cacheFilePath(c.Config.CachePath, name))
	}
	m, err := cache.New(name, c.Config.CacheTTLDays,
		cache.WithStore(store),
		cache.WithLogger(c.Logger),
		cache.WithMetrics(c.Metrics),
	)
	if err != nil {
		return nil, err
	}
	c.Caches = append(c.Caches, m)
	return m, nil
}

// cacheFilePath gives each named cache its own file next to base, so
// cache.json becomes cache_embeddings.json.
func cacheFilePath(base, name string) string {
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".json"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_" + name + ext
}

func loadGlossary(path string) (*pattern.Glossary, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	g, err := pattern.LoadGlossary(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (c *Components) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
