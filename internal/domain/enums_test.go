package domain

import "testing"

func TestEnumCardinality(t *testing.T) {
	if len(Categories) != 20 {
		t.Fatalf("expected 20 categories, got %d", len(Categories))
	}
	if len(Intents) != 15 {
		t.Fatalf("expected 15 intents, got %d", len(Intents))
	}
	for _, c := range Categories {
		if !c.Valid() {
			t.Fatalf("category %q should be valid", c)
		}
		if c.Label() == string(c) {
			t.Fatalf("category %q has no label", c)
		}
	}
}

func TestParseEnums(t *testing.T) {
	tests := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"feature_request", CategoryFeatureRequest, true},
		{" Feature Request ", CategoryFeatureRequest, true},
		{"aoai-capacity", CategoryAOAICapacity, true},
		{"roadmap_inquiry", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseCategory(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Fatalf("ParseCategory(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}

	if i, ok := ParseIntent("Roadmap Inquiry"); !ok || i != IntentRoadmapInquiry {
		t.Fatalf("ParseIntent failed: %q %v", i, ok)
	}
	if _, ok := ParseBusinessImpact("severe"); ok {
		t.Fatal("expected severe to be rejected")
	}
	if ImpactCritical.Rank() <= ImpactHigh.Rank() || ImpactLow.Rank() >= ImpactMedium.Rank() {
		t.Fatal("impact ranks out of order")
	}
}

func TestPatternFeaturesTopCategory(t *testing.T) {
	var nilFeatures *PatternFeatures
	if nilFeatures.TopCategory() != "" {
		t.Fatal("nil features should have no top category")
	}

	f := &PatternFeatures{
		Category: CategoryTechnicalSupport,
		CategoryScores: map[Category]float64{
			CategoryCapacity:       0.4,
			CategoryFeatureRequest: 0.9,
		},
	}
	if got := f.TopCategory(); got != CategoryFeatureRequest {
		t.Fatalf("TopCategory = %q, want feature_request", got)
	}

	f.CategoryScores = nil
	if got := f.TopCategory(); got != CategoryTechnicalSupport {
		t.Fatalf("TopCategory without scores = %q, want technical_support", got)
	}
}
