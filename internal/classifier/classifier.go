// Package classifier asks an LLM for a category, intent and impact, using the
// pattern analyzer's findings as hints. It makes one attempt per call and
// never repairs an invalid answer.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"contextanalyzer/internal/cache"
	"contextanalyzer/internal/domain"
	"contextanalyzer/internal/integrations/llm"
	"contextanalyzer/internal/metrics"
)

const DefaultAgreementBoost = 0.15

var requiredKeys = []string{"category", "intent", "business_impact", "confidence", "reasoning"}

type Request struct {
	Title           string                  `json:"title"`
	Description     string                  `json:"description"`
	Impact          string                  `json:"impact,omitempty"`
	PatternFeatures *domain.PatternFeatures `json:"pattern_features,omitempty"`
	UseCache        bool                    `json:"use_cache"`
}

type Options struct {
	// Cache is optional; without it every call reaches the provider.
	Cache          *cache.Manager
	AgreementBoost float64
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

type Classifier struct {
	client  llm.ChatClient
	cache   *cache.Manager
	boost   float64
	logger  *zap.Logger
	metrics *metrics.Metrics
	system  string
}

func New(client llm.ChatClient, opts Options) *Classifier {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.AgreementBoost < 0 {
		opts.AgreementBoost = 0
	}
	return &Classifier{
		client:  client,
		cache:   opts.Cache,
		boost:   opts.AgreementBoost,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		system:  systemPrompt(),
	}
}

func (c *Classifier) Provider() string { return c.client.Provider() }
func (c *Classifier) Model() string    { return c.client.Model() }

// Classify validates the request, calls the model once and validates its
// answer. When the pattern's top category matches the model's, confidence is
// raised by the agreement boost, capped at 1.
func (c *Classifier) Classify(ctx context.Context, req Request) (domain.ClassificationResult, error) {
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Description) == "" {
		return domain.ClassificationResult{}, newError(KindValidation, "title and description are required")
	}

	compute := func() (domain.ClassificationResult, error) {
		return c.call(ctx, req)
	}

	var (
		result    domain.ClassificationResult
		fromCache bool
		err       error
	)
	if req.UseCache && c.cache != nil {
		result, fromCache, err = cache.GetOrCompute(c.cache, c.cacheKey(req), compute, false)
	} else {
		result, err = compute()
	}
	if err != nil {
		kind := KindOf(err)
		if kind == "" {
			kind = KindUpstream
			err = &Error{Kind: KindUpstream, Err: err}
		}
		c.metrics.LLMFailure(string(kind))
		return domain.ClassificationResult{}, err
	}

	if top := req.PatternFeatures.TopCategory(); top != "" && top == result.Category && c.boost > 0 {
		result.Confidence = math.Min(result.Confidence+c.boost, 1)
	}
	result.PatternFeatures = req.PatternFeatures
	c.logger.Debug("classified",
		zap.String("category", string(result.Category)),
		zap.String("intent", string(result.Intent)),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("cached", fromCache),
	)
	return result, nil
}

// cacheKey scopes entries to the model and every prompt input, hints
// included.
func (c *Classifier) cacheKey(req Request) string {
	hints, _ := json.Marshal(req.PatternFeatures)
	return strings.Join([]string{
		"classification", c.client.Provider(), c.client.Model(),
		strings.TrimSpace(req.Title), strings.TrimSpace(req.Description), strings.TrimSpace(req.Impact),
		string(hints),
	}, "\x00")
}

func (c *Classifier) call(ctx context.Context, req Request) (domain.ClassificationResult, error) {
	text, usage, err := c.client.Complete(ctx, c.system, userPrompt(req))
	if err != nil {
		c.logger.Warn("llm call failed", zap.String("provider", c.client.Provider()), zap.Error(err))
		return domain.ClassificationResult{}, &Error{Kind: KindUpstream, Err: err}
	}
	c.logger.Debug("llm usage",
		zap.Int64("input_tokens", usage.InputTokens),
		zap.Int64("output_tokens", usage.OutputTokens),
	)
	return c.parse(text)
}

// parse enforces the answer contract. Category and intent are structural and
// must be allowed values; an unknown business impact becomes medium.
func (c *Classifier) parse(text string) (domain.ClassificationResult, error) {
	text = llm.StripCodeFence(text)
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return domain.ClassificationResult{}, newError(KindSchema, "response is not a JSON object: %v", err)
	}
	var missing []string
	for _, k := range requiredKeys {
		if _, ok := raw[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return domain.ClassificationResult{}, newError(KindSchema, "missing keys: %s", strings.Join(missing, ", "))
	}

	var categoryText, intentText, impactText, reasoning string
	var confidence float64
	for key, dst := range map[string]any{
		"category":        &categoryText,
		"intent":          &intentText,
		"business_impact": &impactText,
		"reasoning":       &reasoning,
		"confidence":      &confidence,
	} {
		if err := json.Unmarshal(raw[key], dst); err != nil {
			return domain.ClassificationResult{}, newError(KindSchema, "%s has the wrong type: %v", key, err)
		}
	}

	category, ok := domain.ParseCategory(categoryText)
	if !ok {
		return domain.ClassificationResult{}, newError(KindSchema, "category %q is not allowed", categoryText)
	}
	intent, ok := domain.ParseIntent(intentText)
	if !ok {
		return domain.ClassificationResult{}, newError(KindSchema, "intent %q is not allowed", intentText)
	}
	impact, ok := domain.ParseBusinessImpact(impactText)
	if !ok {
		c.logger.Info("coercing unknown business impact", zap.String("business_impact", impactText))
		impact = domain.ImpactMedium
	}
	if math.IsNaN(confidence) {
		confidence = 0
	}

	return domain.ClassificationResult{
		Category:       category,
		Intent:         intent,
		BusinessImpact: impact,
		Confidence:     math.Max(0, math.Min(1, confidence)),
		Reasoning:      strings.TrimSpace(reasoning),
	}, nil
}

// ClassifyBatch classifies sequentially. A failed item gets a
// zero-confidence result built from its pattern hints and its error in the
// matching slot, so both slices match reqs in length.
func (c *Classifier) ClassifyBatch(ctx context.Context, reqs []Request) ([]domain.ClassificationResult, []error) {
	results := make([]domain.ClassificationResult, len(reqs))
	errs := make([]error, len(reqs))
	for i, req := range reqs {
		res, err := c.Classify(ctx, req)
		if err != nil {
			c.logger.Warn("batch item failed", zap.Int("index", i), zap.Error(err))
			results[i] = fallbackResult(req, err)
			errs[i] = err
			continue
		}
		results[i] = res
	}
	return results, errs
}

func fallbackResult(req Request, err error) domain.ClassificationResult {
	res := domain.ClassificationResult{
		Category:        domain.CategoryTechnicalSupport,
		Intent:          domain.IntentSeekingInformation,
		BusinessImpact:  domain.ImpactMedium,
		Reasoning:       fmt.Sprintf("classification failed: %v", err),
		PatternFeatures: req.PatternFeatures,
	}
	if f := req.PatternFeatures; f != nil {
		res.Category, res.Intent = f.Category, f.Intent
		if f.BusinessImpact.Valid() {
			res.BusinessImpact = f.BusinessImpact
		}
	}
	return res
}

// IsValidation reports whether err was caused by the request itself.
func IsValidation(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == KindValidation
}
