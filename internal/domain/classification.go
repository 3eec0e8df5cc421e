package domain

import "time"

// ClassificationResult is produced by the LLM classifier.
type ClassificationResult struct {
	Category        Category         `json:"category"`
	Intent          Intent           `json:"intent"`
	BusinessImpact  BusinessImpact   `json:"business_impact"`
	Confidence      float64          `json:"confidence"`
	Reasoning       string           `json:"reasoning"`
	PatternFeatures *PatternFeatures `json:"pattern_features,omitempty"`
}

// PatternFeatures is what the pattern analyzer hands to the LLM as
// in-context hints.
type PatternFeatures struct {
	Category            Category             `json:"pattern_category"`
	Intent              Intent               `json:"pattern_intent"`
	Confidence          float64              `json:"pattern_confidence"`
	DetectedProducts    []string             `json:"detected_products"`
	CategoryScores      map[Category]float64 `json:"category_scores"`
	BusinessImpact      BusinessImpact       `json:"business_impact"`
	KeyConcepts         []string             `json:"key_concepts"`
	RelevantCorrections []CorrectionMatch    `json:"relevant_corrections"`
}

// TopCategory returns the highest scoring pattern category, falling back to
// the pattern's chosen category when no scores were recorded.
func (f *PatternFeatures) TopCategory() Category {
	if f == nil {
		return ""
	}
	best := f.Category
	bestScore := -1.0
	for _, c := range Categories {
		if s, ok := f.CategoryScores[c]; ok && s > bestScore {
			best, bestScore = c, s
		}
	}
	if bestScore <= 0 {
		return f.Category
	}
	return best
}

// Correction is a past user correction of a category decision.
type Correction struct {
	OriginalText      string    `json:"original_text"`
	OriginalCategory  string    `json:"original_category"`
	CorrectedCategory string    `json:"corrected_category"`
	CorrectionNotes   string    `json:"correction_notes"`
	Timestamp         time.Time `json:"timestamp"`
}

// CorrectionMatch pairs a correction with its word-overlap score against the
// text under analysis.
type CorrectionMatch struct {
	Correction Correction `json:"correction"`
	Similarity float64    `json:"similarity"`
}

// Retirement is one entry of the retirements reference file.
type Retirement struct {
	ServiceName     string    `json:"service_name"`
	RetiringFeature string    `json:"retiring_feature"`
	RetirementDate  time.Time `json:"retirement_date"`
	KeyTerms        []string  `json:"key_terms"`
	Criticality     string    `json:"criticality"`
}

// AnalysisRecord is one persisted hybrid analysis.
type AnalysisRecord struct {
	ID             string
	Title          string
	Description    string
	Impact         string
	Category       Category
	Intent         Intent
	BusinessImpact BusinessImpact
	Confidence     float64
	Source         string
	Agreement      bool
	AIError        string
	LLMProvider    string
	LLMModel       string
	AnalyzedAt     time.Time
}

type AnalysisStats struct {
	TotalAnalyses    int            `json:"total_analyses"`
	TotalCorrections int            `json:"total_corrections"`
	AvgConfidence    float64        `json:"avg_confidence"`
	AgreementRate    float64        `json:"agreement_rate"`
	BySource         map[string]int `json:"by_source"`
	BucketBelow50    int            `json:"confidence_below_50"`
	Bucket50to70     int            `json:"confidence_50_to_70"`
	Bucket70to90     int            `json:"confidence_70_to_90"`
	Bucket90Plus     int            `json:"confidence_90_plus"`
}
