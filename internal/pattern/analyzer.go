// Package pattern is the deterministic keyword and regex classifier. Given
// the same reference data it returns the same analysis for the same input.
package pattern

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"

	"contextanalyzer/internal/domain"
	"contextanalyzer/internal/learning"
)

type Options struct {
	Reference    *ReferenceData
	Glossary     *Glossary
	GlossaryPath string
	Logger       *zap.Logger
}

type Analyzer struct {
	ref          *ReferenceData
	glossaryPath string
	logger       *zap.Logger

	mu       sync.RWMutex
	glossary *Glossary
}

func NewAnalyzer(opts Options) *Analyzer {
	if opts.Reference == nil {
		opts.Reference = StaticReferenceData()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Analyzer{
		ref:          opts.Reference,
		glossary:     opts.Glossary,
		glossaryPath: opts.GlossaryPath,
		logger:       opts.Logger,
	}
}

func (a *Analyzer) Reference() *ReferenceData { return a.ref }

// RefreshReferenceData asks the live source for fresh regions and services.
func (a *Analyzer) RefreshReferenceData(ctx context.Context) error {
	return a.ref.Refresh(ctx)
}

// AddGlossaryTerm records phrase → category in memory and, when a glossary
// file is configured, on disk.
func (a *Analyzer) AddGlossaryTerm(phrase string, category domain.Category) error {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" || !category.Valid() {
		return fmt.Errorf("glossary term needs a phrase and a valid category")
	}
	if a.glossaryPath != "" {
		if err := AppendGlossaryTerm(a.glossaryPath, phrase, category); err != nil {
			return err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	next := &Glossary{}
	if a.glossary != nil {
		for _, t := range a.glossary.Terms {
			if normalizeTextToken(t.Phrase) == normalizeTextToken(phrase) {
				return nil
			}
		}
		next.Terms = append(next.Terms, a.glossary.Terms...)
		next.IntentHints = a.glossary.IntentHints
	}
	// readers hold the old pointer, so swap rather than append in place
	next.Terms = append(next.Terms, GlossaryTerm{Phrase: phrase, Category: string(category)})
	a.glossary = next
	return nil
}

func (a *Analyzer) currentGlossary() *Glossary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.glossary
}

// RelevantCorrections returns past corrections overlapping the issue text.
func (a *Analyzer) RelevantCorrections(title, description, impact string) []domain.CorrectionMatch {
	return learning.FindRelevant(normalize(title, description, impact), a.ref.Corrections(),
		learning.DefaultThreshold, learning.DefaultLimit)
}

func normalize(parts ...string) string {
	return strings.ToLower(joinNonEmpty(parts...))
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// AnalyzeContext classifies an issue. Category and intent are always set and
// confidence stays within [0, 1].
func (a *Analyzer) AnalyzeContext(ctx context.Context, title, description, impact string) domain.ContextAnalysis {
	original := joinNonEmpty(title, description, impact)
	text := strings.ToLower(original)

	r := domain.Reasoning{
		CategoryScores:      make(map[domain.Category]float64),
		IntentScores:        make(map[domain.Intent]float64),
		ConfidenceBreakdown: make(map[string]float64),
	}
	r.AddStep("normalize", "lowercased title, description and impact", fmt.Sprintf("%d chars", len(text)))
	r.DataSources = append(r.DataSources, a.ref.Sources()...)

	category, catConf := classifyCategory(text, &r)
	intent, intentConf := classifyIntent(text, &r)
	r.ConfidenceBreakdown["category"] = catConf
	r.ConfidenceBreakdown["intent"] = intentConf

	products := DetectProducts(original)
	r.AddStep("product_detection", "matched product pattern library", strings.Join(products, ", "))

	entities, regionCodes := a.extractEntities(text, products)
	r.AddStep("entity_extraction", "matched reference tables", entitySummary(entities))
	r.DataSources = append(r.DataSources, a.regionalAvailability(ctx, category, regionCodes))

	category, catConf = a.applyCorrections(text, category, catConf, &r)
	category, catConf, intent, intentConf = a.applyGlossary(text, category, catConf, intent, intentConf, &r)

	impactLevel := assessImpact(text, category)
	complexity := assessComplexity(text)
	urgency := assessUrgency(text)
	r.AddStep("impact_assessment", "keyword buckets",
		fmt.Sprintf("impact=%s complexity=%s urgency=%s", impactLevel, complexity, urgency))

	concepts := keyConcepts(text, 10)
	confidence := clamp01(catConf)
	r.ConfidenceBreakdown["final"] = confidence

	analysis := domain.ContextAnalysis{
		Category:            category,
		Intent:              intent,
		Confidence:          confidence,
		DomainEntities:      entities,
		KeyConcepts:         concepts,
		BusinessImpact:      impactLevel,
		TechnicalComplexity: complexity,
		UrgencyLevel:        urgency,
		SemanticKeywords:    semanticKeywords(products, concepts, entities),
		Reasoning:           r,
	}
	analysis.RecommendedSearchStrategy = searchStrategy(analysis)
	analysis.ContextSummary = summarize(analysis)
	return analysis
}

func classifyCategory(text string, r *domain.Reasoning) (domain.Category, float64) {
	capacity := sumWeights(text, capacityRules)
	r.CategoryScores[domain.CategoryCapacity] = capacity

	if capacity >= capacityEarlyExit {
		category := domain.CategoryCapacity
		if aoai := sumWeights(text, aoaiRules); aoai >= aoaiRefinementMin {
			r.CategoryScores[domain.CategoryAOAICapacity] = aoai
			category = domain.CategoryAOAICapacity
		}
		r.AddStep("early_exit", "capacity score reached threshold, other categories not scored",
			fmt.Sprintf("%s %.2f", category, capacity))
		return category, math.Min(capacity, 1)
	}

	for _, rule := range CategoryRules {
		if rule.Pattern.MatchString(text) {
			r.CategoryScores[rule.Category] += rule.Weight
		}
	}

	if sumWeights(text, featureRules) > 0 && r.CategoryScores[domain.CategoryComplianceRegulatory] > 0 {
		before := r.CategoryScores[domain.CategoryComplianceRegulatory]
		r.CategoryScores[domain.CategoryComplianceRegulatory] = before * complianceSuppression
		r.AddStep("suppression", "feature-request language halves the compliance score",
			fmt.Sprintf("%.2f -> %.2f", before, before*complianceSuppression))
	}

	best, bestScore := domain.Category(""), 0.0
	for _, c := range domain.Categories {
		if s := r.CategoryScores[c]; s > bestScore {
			best, bestScore = c, s
		}
	}
	if bestScore < categoryFloor {
		r.AddStep("category_selection", "no category reached the floor", string(domain.CategoryTechnicalSupport))
		return domain.CategoryTechnicalSupport, floorConfidence
	}
	r.AddStep("category_selection", "highest scoring category", fmt.Sprintf("%s %.2f", best, bestScore))
	return best, math.Min(bestScore, 1)
}

var aoaiRules = func() []Rule {
	var out []Rule
	for _, rule := range CategoryRules {
		if rule.Category == domain.CategoryAOAICapacity {
			out = append(out, rule)
		}
	}
	return out
}()

func classifyIntent(text string, r *domain.Reasoning) (domain.Intent, float64) {
	feature := sumWeights(text, featureRules)
	if feature >= strongFeatureThreshold {
		r.IntentScores[domain.IntentRequestingFeature] = feature
		conf := math.Min(feature+shortCircuitBonus, 1)
		r.AddStep("intent_short_circuit", "strong feature-request language", fmt.Sprintf("%s %.2f", domain.IntentRequestingFeature, conf))
		return domain.IntentRequestingFeature, conf
	}
	capacityReq := sumWeights(text, capacityRequestRules)
	if capacityReq >= capacityRequestMin {
		r.IntentScores[domain.IntentCapacityRequest] = capacityReq
		conf := math.Min(capacityReq+shortCircuitBonus, 1)
		r.AddStep("intent_short_circuit", "capacity request language", fmt.Sprintf("%s %.2f", domain.IntentCapacityRequest, conf))
		return domain.IntentCapacityRequest, conf
	}

	for _, rule := range IntentRules {
		if rule.Pattern.MatchString(text) {
			r.IntentScores[rule.Intent] += rule.Weight
		}
	}
	if feature > 0 && r.IntentScores[domain.IntentComplianceSupport] > 0 {
		r.IntentScores[domain.IntentComplianceSupport] *= complianceSuppression
	}

	best, bestScore := domain.Intent(""), 0.0
	for _, i := range domain.Intents {
		if s := r.IntentScores[i]; s > bestScore {
			best, bestScore = i, s
		}
	}
	if bestScore < intentFloor {
		r.AddStep("intent_selection", "no intent reached the floor", string(domain.IntentSeekingInformation))
		return domain.IntentSeekingInformation, floorConfidence
	}
	r.AddStep("intent_selection", "highest scoring intent", fmt.Sprintf("%s %.2f", best, bestScore))
	return best, math.Min(bestScore, 1)
}

func sumWeights(text string, rules []Rule) float64 {
	total := 0.0
	for _, rule := range rules {
		if rule.Pattern.MatchString(text) {
			total += rule.Weight
		}
	}
	return total
}

// applyCorrections lets a near-identical past correction override the
// category.
func (a *Analyzer) applyCorrections(text string, category domain.Category, conf float64, r *domain.Reasoning) (domain.Category, float64) {
	matches := learning.FindRelevant(text, a.ref.Corrections(), learning.DefaultThreshold, learning.DefaultLimit)
	if len(matches) == 0 {
		return category, conf
	}
	top := matches[0]
	r.AddStep("corrective_learning", "matched past corrections",
		fmt.Sprintf("%d matches, best %.2f", len(matches), top.Similarity))
	if top.Similarity < correctionOverrideMin {
		return category, conf
	}
	corrected, ok := domain.ParseCategory(top.Correction.CorrectedCategory)
	if !ok || corrected == category {
		return category, conf
	}
	r.Overrides = append(r.Overrides, fmt.Sprintf("correction: %s -> %s (similarity %.2f)", category, corrected, top.Similarity))
	return corrected, math.Max(conf, top.Similarity)
}

func (a *Analyzer) applyGlossary(text string, category domain.Category, catConf float64, intent domain.Intent, intentConf float64, r *domain.Reasoning) (domain.Category, float64, domain.Intent, float64) {
	g := a.currentGlossary()
	if g == nil {
		return category, catConf, intent, intentConf
	}
	cat, catPhrase, hint, hintPhrase := g.match(text)
	if cat != "" {
		r.Overrides = append(r.Overrides, fmt.Sprintf("glossary %q: %s -> %s", catPhrase, category, cat))
		category, catConf = cat, math.Max(catConf, glossaryConfidence)
	}
	if hint != "" {
		r.Overrides = append(r.Overrides, fmt.Sprintf("glossary %q: %s -> %s", hintPhrase, intent, hint))
		intent, intentConf = hint, math.Max(intentConf, glossaryConfidence)
	}
	r.AddSource(DataGlossary, domain.SourceConsulted, fmt.Sprintf("%d terms, %d intent hints", len(g.Terms), len(g.IntentHints)))
	return category, catConf, intent, intentConf
}

func assessImpact(text string, category domain.Category) domain.BusinessImpact {
	impact := domain.ImpactMedium
	switch {
	case criticalImpact.MatchString(text):
		impact = domain.ImpactCritical
	case highImpact.MatchString(text):
		impact = domain.ImpactHigh
	case lowImpact.MatchString(text):
		impact = domain.ImpactLow
	}
	isCapacity := category == domain.CategoryCapacity || category == domain.CategoryAOAICapacity
	if (isCapacity || capacityMention.MatchString(text)) && impact.Rank() < domain.ImpactHigh.Rank() {
		impact = domain.ImpactHigh
	}
	return impact
}

func assessComplexity(text string) domain.Level {
	switch {
	case highComplexity.MatchString(text):
		return domain.LevelHigh
	case mediumComplexity.MatchString(text):
		return domain.LevelMedium
	default:
		return domain.LevelLow
	}
}

func assessUrgency(text string) domain.Level {
	switch {
	case highUrgency.MatchString(text):
		return domain.LevelHigh
	case mediumUrgency.MatchString(text):
		return domain.LevelMedium
	default:
		return domain.LevelLow
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Features condenses an analysis into the hints handed to the LLM.
func Features(analysis domain.ContextAnalysis, corrections []domain.CorrectionMatch) *domain.PatternFeatures {
	scores := make(map[domain.Category]float64, len(analysis.Reasoning.CategoryScores))
	for c, s := range analysis.Reasoning.CategoryScores {
		if s > 0 {
			scores[c] = s
		}
	}
	return &domain.PatternFeatures{
		Category:            analysis.Category,
		Intent:              analysis.Intent,
		Confidence:          analysis.Confidence,
		DetectedProducts:    analysis.DomainEntities[domain.EntityMicrosoftProducts],
		CategoryScores:      scores,
		BusinessImpact:      analysis.BusinessImpact,
		KeyConcepts:         analysis.KeyConcepts,
		RelevantCorrections: corrections,
	}
}
