// Package embedding wraps a text-embedding provider with model-scoped
// caching, batch isolation and weighted multi-field combination.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"contextanalyzer/internal/cache"
	"contextanalyzer/internal/metrics"
)

const (
	titleWeight       = 2.0
	descriptionWeight = 1.0
	impactWeight      = 0.5
)

type Options struct {
	Model     string
	Dimension int
	Cache     *cache.Manager
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

type Service struct {
	provider  Provider
	model     string
	dimension int
	cache     *cache.Manager
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewService(provider Provider, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		provider:  provider,
		model:     opts.Model,
		dimension: opts.Dimension,
		cache:     opts.Cache,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

func (s *Service) Model() string  { return s.model }
func (s *Service) Dimension() int { return s.dimension }

// cacheKey scopes keys by model so switching models never mixes dimensions.
func (s *Service) cacheKey(text string) string {
	return "embedding:" + s.model + ":" + text
}

// Embed returns the vector for text and whether it came from the cache.
func (s *Service) Embed(ctx context.Context, text string, useCache bool) ([]float32, bool, error) {
	if strings.TrimSpace(text) == "" {
		return nil, false, ErrEmptyText
	}
	if s.provider == nil {
		return nil, false, fmt.Errorf("%w: no provider configured", ErrEmbeddingFailed)
	}

	compute := func() ([]float32, error) {
		return s.provider.Embed(ctx, text)
	}

	if !useCache || s.cache == nil {
		vec, err := compute()
		s.record(false, err)
		return vec, false, err
	}

	vec, source, err := cache.GetOrComputeWithAPIFirst(s.cache, s.cacheKey(text), compute)
	if err != nil {
		s.record(false, err)
		return nil, false, err
	}
	if source == cache.SourceCacheExpired {
		s.logger.Warn("embedding api failed, serving expired cached vector",
			zap.String("model", s.model),
		)
	}
	fromCache := source == cache.SourceCache || source == cache.SourceCacheExpired
	s.record(fromCache, nil)
	return vec, fromCache, nil
}

func (s *Service) record(fromCache bool, err error) {
	switch {
	case err != nil:
		s.metrics.Embedding("error")
	case fromCache:
		s.metrics.Embedding("cached")
	default:
		s.metrics.Embedding("computed")
	}
}

// EmbedBatch embeds texts one at a time. A failed item becomes a zero vector
// sized like the successful vectors in the batch, or the configured dimension
// when none succeeded, so the result always matches len(texts).
func (s *Service) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	var failed []int
	dim := 0
	for i, text := range texts {
		vec, _, err := s.Embed(ctx, text, true)
		if err != nil {
			s.logger.Warn("batch embedding item failed, substituting zero vector",
				zap.Int("index", i),
				zap.Error(err),
			)
			failed = append(failed, i)
			continue
		}
		if dim == 0 {
			dim = len(vec)
		}
		out[i] = vec
	}
	if dim == 0 {
		dim = s.dimension
	}
	for _, i := range failed {
		out[i] = make([]float32, dim)
	}
	return out
}

// ContextEmbeddings holds per-field vectors and their weighted mean.
type ContextEmbeddings struct {
	Title       []float32 `json:"title"`
	Description []float32 `json:"description"`
	Impact      []float32 `json:"impact,omitempty"`
	Combined    []float32 `json:"combined"`
}

// EmbedContext embeds the issue fields and combines them with title weighted
// 2.0, description 1.0 and impact 0.5. Empty description or impact fields are
// left out of the mean.
func (s *Service) EmbedContext(ctx context.Context, title, description, impact string) (ContextEmbeddings, error) {
	var ce ContextEmbeddings
	var err error

	if ce.Title, _, err = s.Embed(ctx, title, true); err != nil {
		return ContextEmbeddings{}, fmt.Errorf("embed title: %w", err)
	}
	if strings.TrimSpace(description) != "" {
		if ce.Description, _, err = s.Embed(ctx, description, true); err != nil {
			return ContextEmbeddings{}, fmt.Errorf("embed description: %w", err)
		}
	}
	if strings.TrimSpace(impact) != "" {
		if ce.Impact, _, err = s.Embed(ctx, impact, true); err != nil {
			return ContextEmbeddings{}, fmt.Errorf("embed impact: %w", err)
		}
	}

	ce.Combined, err = combine(
		weighted{ce.Title, titleWeight},
		weighted{ce.Description, descriptionWeight},
		weighted{ce.Impact, impactWeight},
	)
	if err != nil {
		return ContextEmbeddings{}, err
	}
	return ce, nil
}

// Similarity embeds both texts and returns their cosine similarity.
func (s *Service) Similarity(ctx context.Context, a, b string) (float64, error) {
	va, _, err := s.Embed(ctx, a, true)
	if err != nil {
		return 0, err
	}
	vb, _, err := s.Embed(ctx, b, true)
	if err != nil {
		return 0, err
	}
	return CosineSimilarity(va, vb)
}
