package domain

// ContextAnalysis is the deterministic pattern-analyzer result. Category and
// Intent are always set; Confidence is within [0, 1].
type ContextAnalysis struct {
	Category                  Category            `json:"category"`
	Intent                    Intent              `json:"intent"`
	Confidence                float64             `json:"confidence"`
	DomainEntities            map[string][]string `json:"domain_entities"`
	KeyConcepts               []string            `json:"key_concepts"`
	BusinessImpact            BusinessImpact      `json:"business_impact"`
	TechnicalComplexity       Level               `json:"technical_complexity"`
	UrgencyLevel              Level               `json:"urgency_level"`
	RecommendedSearchStrategy map[string]bool     `json:"recommended_search_strategy"`
	SemanticKeywords          []string            `json:"semantic_keywords"`
	ContextSummary            string              `json:"context_summary"`
	Reasoning                 Reasoning           `json:"reasoning"`
}

// Entity keys used in ContextAnalysis.DomainEntities.
const (
	EntityMicrosoftProducts    = "microsoft_products"
	EntityAzureServices        = "azure_services"
	EntityRegions              = "regions"
	EntityComplianceFrameworks = "compliance_frameworks"
	EntityRetirements          = "retirements"
	EntityTechnologies         = "technologies"
)

// Reasoning is the transparency trace of a pattern analysis. Nothing reads
// it for control flow.
type Reasoning struct {
	Steps               []ReasoningStep      `json:"steps"`
	DataSources         []DataSourceUse      `json:"data_sources"`
	CategoryScores      map[Category]float64 `json:"category_scores"`
	IntentScores        map[Intent]float64   `json:"intent_scores"`
	ConfidenceBreakdown map[string]float64   `json:"confidence_breakdown"`
	Overrides           []string             `json:"overrides,omitempty"`
}

type ReasoningStep struct {
	Step        string `json:"step"`
	Description string `json:"description"`
	Result      string `json:"result,omitempty"`
}

// DataSourceStatus values.
const (
	SourceConsulted = "consulted"
	SourceSkipped   = "skipped"
	SourceFallback  = "fallback"
	SourceStale     = "stale"
)

type DataSourceUse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (r *Reasoning) AddStep(step, description, result string) {
	r.Steps = append(r.Steps, ReasoningStep{Step: step, Description: description, Result: result})
}

func (r *Reasoning) AddSource(name, status, detail string) {
	r.DataSources = append(r.DataSources, DataSourceUse{Name: name, Status: status, Detail: detail})
}

// Hybrid result sources.
const (
	SourceLLM     = "llm"
	SourcePattern = "pattern"
	SourceHybrid  = "hybrid"
)

// HybridAnalysisResult combines the LLM decision with the pattern baseline.
// Source is "hybrid" only when the LLM succeeded and agreed with the pattern
// category and intent.
type HybridAnalysisResult struct {
	AnalysisID        string           `json:"analysis_id"`
	Category          Category         `json:"category"`
	Intent            Intent           `json:"intent"`
	BusinessImpact    BusinessImpact   `json:"business_impact"`
	Confidence        float64          `json:"confidence"`
	Reasoning         string           `json:"reasoning"`
	PatternCategory   Category         `json:"pattern_category"`
	PatternIntent     Intent           `json:"pattern_intent"`
	PatternConfidence float64          `json:"pattern_confidence"`
	PatternFeatures   *PatternFeatures `json:"pattern_features"`
	Source            string           `json:"source"`
	Agreement         bool             `json:"agreement"`
	AIAvailable       bool             `json:"ai_available"`
	AIError           string           `json:"ai_error,omitempty"`
	PatternAnalysis   *ContextAnalysis `json:"pattern_analysis,omitempty"`
	SimilarIssues     []SearchResult   `json:"similar_issues,omitempty"`
}

// SearchResult is one vector search hit.
type SearchResult struct {
	ItemID      string         `json:"item_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Similarity  float64        `json:"similarity"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
