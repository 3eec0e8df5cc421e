// Package hybrid runs the pattern analyzer on every request and, when an LLM
// classifier is configured, asks it once and merges the two answers.
package hybrid

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contextanalyzer/internal/classifier"
	"contextanalyzer/internal/domain"
	"contextanalyzer/internal/metrics"
	"contextanalyzer/internal/pattern"
)

type State string

const (
	StatePatternOnly State = "pattern_only"
	StateAIEnabled   State = "ai_enabled"
)

// Classifier is the LLM side of the analysis.
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) (domain.ClassificationResult, error)
	Provider() string
	Model() string
}

// Searcher finds previously indexed issues similar to the query.
type Searcher interface {
	Search(ctx context.Context, query, collection string, topK int, threshold float64) ([]domain.SearchResult, error)
}

type Recorder interface {
	RecordAnalysis(ctx context.Context, rec domain.AnalysisRecord) error
}

type Notifier interface {
	NotifyAnalysis(ctx context.Context, title string, result domain.HybridAnalysisResult) error
}

type Options struct {
	// Classifier nil means pattern-only.
	Classifier Classifier

	Search              Searcher
	SimilarCollection   string
	SimilarTopK         int
	SimilarityThreshold float64

	Recorder Recorder
	Notifier Notifier
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

type Request struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact,omitempty"`
	UseCache    bool   `json:"use_cache"`
	// IncludeSimilar asks for a similar-issue search when one is configured.
	IncludeSimilar bool `json:"include_similar"`
}

type Analyzer struct {
	pattern    *pattern.Analyzer
	classifier Classifier
	opts       Options
	logger     *zap.Logger
	newID      func() string
	now        func() time.Time
}

func New(patternAnalyzer *pattern.Analyzer, opts Options) *Analyzer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SimilarTopK <= 0 {
		opts.SimilarTopK = 5
	}
	a := &Analyzer{
		pattern:    patternAnalyzer,
		classifier: opts.Classifier,
		opts:       opts,
		logger:     opts.Logger,
		newID:      uuid.NewString,
		now:        time.Now,
	}
	a.logger.Info("hybrid analyzer ready", zap.String("state", string(a.State())))
	return a
}

func (a *Analyzer) State() State {
	if a.classifier == nil {
		return StatePatternOnly
	}
	return StateAIEnabled
}

func (a *Analyzer) Pattern() *pattern.Analyzer { return a.pattern }

// Analyze always returns a result. The LLM is tried at most once; on any
// failure the pattern analysis is returned with AIError set.
func (a *Analyzer) Analyze(ctx context.Context, req Request) domain.HybridAnalysisResult {
	start := a.now()
	analysis := a.pattern.AnalyzeContext(ctx, req.Title, req.Description, req.Impact)
	corrections := a.pattern.RelevantCorrections(req.Title, req.Description, req.Impact)
	features := pattern.Features(analysis, corrections)

	result := domain.HybridAnalysisResult{
		AnalysisID:        a.newID(),
		PatternCategory:   analysis.Category,
		PatternIntent:     analysis.Intent,
		PatternConfidence: analysis.Confidence,
		PatternFeatures:   features,
		PatternAnalysis:   &analysis,
	}

	classified := false
	if a.classifier != nil {
		llmResult, err := a.classifier.Classify(ctx, classifier.Request{
			Title:           req.Title,
			Description:     req.Description,
			Impact:          req.Impact,
			PatternFeatures: features,
			UseCache:        req.UseCache,
		})
		if err == nil {
			classified = true
			result.Category = llmResult.Category
			result.Intent = llmResult.Intent
			result.BusinessImpact = llmResult.BusinessImpact
			result.Confidence = llmResult.Confidence
			result.Reasoning = llmResult.Reasoning
			result.AIAvailable = true
			result.Agreement = llmResult.Category == analysis.Category && llmResult.Intent == analysis.Intent
			if result.Agreement {
				result.Source = domain.SourceHybrid
			} else {
				result.Source = domain.SourceLLM
			}
		} else {
			result.AIError = err.Error()
			a.logger.Warn("llm classification failed, using pattern result",
				zap.String("analysis_id", result.AnalysisID),
				zap.String("kind", string(classifier.KindOf(err))),
				zap.Error(err),
			)
		}
	}
	if !classified {
		result.Category = analysis.Category
		result.Intent = analysis.Intent
		result.BusinessImpact = analysis.BusinessImpact
		result.Confidence = analysis.Confidence
		result.Reasoning = analysis.ContextSummary
		result.Source = domain.SourcePattern
		result.Agreement = true
		result.AIAvailable = false
	}

	if req.IncludeSimilar {
		result.SimilarIssues = a.similar(ctx, req)
	}

	elapsed := a.now().Sub(start)
	a.opts.Metrics.ObserveAnalysis(result.Source, elapsed)
	a.record(ctx, req, result)
	if a.opts.Notifier != nil {
		if err := a.opts.Notifier.NotifyAnalysis(ctx, req.Title, result); err != nil {
			a.logger.Warn("notify failed", zap.String("analysis_id", result.AnalysisID), zap.Error(err))
		}
	}
	a.logger.Info("analysis complete",
		zap.String("analysis_id", result.AnalysisID),
		zap.String("source", result.Source),
		zap.String("category", string(result.Category)),
		zap.String("intent", string(result.Intent)),
		zap.Float64("confidence", result.Confidence),
		zap.Duration("elapsed", elapsed),
	)
	return result
}

func (a *Analyzer) similar(ctx context.Context, req Request) []domain.SearchResult {
	if a.opts.Search == nil || a.opts.SimilarCollection == "" {
		return nil
	}
	query := strings.TrimSpace(req.Title + " " + req.Description)
	hits, err := a.opts.Search.Search(ctx, query, a.opts.SimilarCollection, a.opts.SimilarTopK, a.opts.SimilarityThreshold)
	if err != nil {
		a.logger.Debug("similar issue search skipped", zap.Error(err))
		return nil
	}
	return hits
}

func (a *Analyzer) record(ctx context.Context, req Request, result domain.HybridAnalysisResult) {
	if a.opts.Recorder == nil {
		return
	}
	rec := domain.AnalysisRecord{
		ID:             result.AnalysisID,
		Title:          req.Title,
		Description:    req.Description,
		Impact:         req.Impact,
		Category:       result.Category,
		Intent:         result.Intent,
		BusinessImpact: result.BusinessImpact,
		Confidence:     result.Confidence,
		Source:         result.Source,
		Agreement:      result.Agreement,
		AIError:        result.AIError,
		AnalyzedAt:     a.now(),
	}
	if a.classifier != nil {
		rec.LLMProvider = a.classifier.Provider()
		rec.LLMModel = a.classifier.Model()
	}
	if err := a.opts.Recorder.RecordAnalysis(ctx, rec); err != nil {
		a.logger.Warn("record analysis failed", zap.String("analysis_id", result.AnalysisID), zap.Error(err))
	}
}
