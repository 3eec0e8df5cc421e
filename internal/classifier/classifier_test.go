package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"contextanalyzer/internal/cache"
	"contextanalyzer/internal/domain"
	"contextanalyzer/internal/integrations/llm"
)

type fakeClient struct {
	responses []string
	err       error
	calls     int
	lastUser  string
}

func (f *fakeClient) Complete(_ context.Context, _, user string) (string, llm.Usage, error) {
	f.calls++
	f.lastUser = user
	if f.err != nil {
		return "", llm.Usage{}, f.err
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, llm.Usage{InputTokens: 10, OutputTokens: 5}, nil
}

func (f *fakeClient) Provider() string { return "fake" }
func (f *fakeClient) Model() string    { return "fake-model" }

const validResponse = "```json\n" + `{"category": "feature_request", "intent": "requesting_feature", "business_impact": "high", "confidence": 0.8, "reasoning": "customer lists a missing connector"}` + "\n```"

func TestClassifyValidation(t *testing.T) {
	c := New(&fakeClient{responses: []string{validResponse}}, Options{})
	_, err := c.Classify(context.Background(), Request{Title: "  ", Description: "x"})
	if KindOf(err) != KindValidation || !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = c.Classify(context.Background(), Request{Title: "x"})
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation error for empty description, got %v", err)
	}
}

func TestClassifyAgreementBoost(t *testing.T) {
	features := &domain.PatternFeatures{
		Category:         domain.CategoryFeatureRequest,
		Intent:           domain.IntentRequestingFeature,
		Confidence:       0.7,
		DetectedProducts: []string{"Microsoft Sentinel"},
		CategoryScores: map[domain.Category]float64{
			domain.CategoryFeatureRequest:       1.3,
			domain.CategoryComplianceRegulatory: 0.3,
		},
		RelevantCorrections: []domain.CorrectionMatch{{
			Correction: domain.Correction{OriginalText: "sentinel connector gcch", OriginalCategory: "compliance_regulatory", CorrectedCategory: "feature_request"},
			Similarity: 0.5,
		}},
	}
	fc := &fakeClient{responses: []string{validResponse}}
	c := New(fc, Options{AgreementBoost: DefaultAgreementBoost})

	got, err := c.Classify(context.Background(), Request{
		Title: "Sentinel connector", Description: "need Sentinel connectors for GCCH", PatternFeatures: features,
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Category != domain.CategoryFeatureRequest || got.BusinessImpact != domain.ImpactHigh {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got.Confidence < 0.949 || got.Confidence > 0.951 {
		t.Fatalf("confidence = %f, want 0.95 after boost", got.Confidence)
	}
	if got.PatternFeatures != features {
		t.Fatal("pattern features should be echoed on the result")
	}
	for _, want := range []string{"Microsoft Sentinel", "feature_request=1.30", "corrected to feature_request"} {
		if !strings.Contains(fc.lastUser, want) {
			t.Fatalf("user prompt missing %q:\n%s", want, fc.lastUser)
		}
	}

	fc.responses = []string{`{"category":"feature_request","intent":"requesting_feature","business_impact":"low","confidence":0.97,"reasoning":"r"}`}
	got, err = c.Classify(context.Background(), Request{Title: "t", Description: "d", PatternFeatures: features})
	if err != nil {
		t.Fatal(err)
	}
	if got.Confidence != 1 {
		t.Fatalf("boosted confidence should cap at 1, got %f", got.Confidence)
	}
}

func TestClassifySchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		resp string
	}{
		{"not json", "I think it is capacity"},
		{"missing keys", `{"category":"capacity","intent":"capacity_request"}`},
		{"bad category", `{"category":"roadmap","intent":"roadmap_inquiry","business_impact":"low","confidence":0.5,"reasoning":"r"}`},
		{"bad intent", `{"category":"capacity","intent":"asking","business_impact":"low","confidence":0.5,"reasoning":"r"}`},
		{"wrong type", `{"category":"capacity","intent":"capacity_request","business_impact":"low","confidence":"high","reasoning":"r"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&fakeClient{responses: []string{tt.resp}}, Options{})
			_, err := c.Classify(context.Background(), Request{Title: "t", Description: "d"})
			if KindOf(err) != KindSchema {
				t.Fatalf("expected schema error, got %v", err)
			}
		})
	}
}

func TestClassifyCoercesImpactAndClampsConfidence(t *testing.T) {
	c := New(&fakeClient{responses: []string{
		`{"category":"Capacity","intent":"capacity_request","business_impact":"severe","confidence":1.7,"reasoning":"quota"}`,
	}}, Options{})
	got, err := c.Classify(context.Background(), Request{Title: "t", Description: "d"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.BusinessImpact != domain.ImpactMedium {
		t.Fatalf("impact = %q, want medium", got.BusinessImpact)
	}
	if got.Confidence != 1 {
		t.Fatalf("confidence = %f, want 1", got.Confidence)
	}
	if got.Category != domain.CategoryCapacity {
		t.Fatalf("category = %q", got.Category)
	}
}

func TestClassifyUpstreamErrorAndCache(t *testing.T) {
	fc := &fakeClient{err: errors.New("connection refused")}
	c := New(fc, Options{})
	_, err := c.Classify(context.Background(), Request{Title: "t", Description: "d"})
	if KindOf(err) != KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}

	m, err := cache.New("classification", 7)
	if err != nil {
		t.Fatal(err)
	}
	fc = &fakeClient{responses: []string{validResponse}}
	c = New(fc, Options{Cache: m})
	req := Request{Title: "t", Description: "d", UseCache: true}
	for i := 0; i < 3; i++ {
		if _, err := c.Classify(context.Background(), req); err != nil {
			t.Fatalf("Classify: %v", err)
		}
	}
	if fc.calls != 1 {
		t.Fatalf("expected one provider call with cache, got %d", fc.calls)
	}

	req.UseCache = false
	if _, err := c.Classify(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if fc.calls != 2 {
		t.Fatalf("use_cache=false should reach the provider, calls=%d", fc.calls)
	}
}

func TestClassifyBatchIsolation(t *testing.T) {
	fc := &fakeClient{responses: []string{validResponse, "garbage", validResponse}}
	c := New(fc, Options{})
	features := &domain.PatternFeatures{Category: domain.CategoryLicensing, Intent: domain.IntentSeekingInformation, BusinessImpact: domain.ImpactLow}
	reqs := []Request{
		{Title: "a", Description: "a"},
		{Title: "b", Description: "b", PatternFeatures: features},
		{Title: "c", Description: "c"},
	}
	results, errs := c.ClassifyBatch(context.Background(), reqs)
	if len(results) != 3 || len(errs) != 3 {
		t.Fatalf("batch length mismatch: %d %d", len(results), len(errs))
	}
	if errs[0] != nil || errs[2] != nil || errs[1] == nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if results[1].Confidence != 0 || results[1].Category != domain.CategoryLicensing || results[1].BusinessImpact != domain.ImpactLow {
		t.Fatalf("unexpected fallback: %+v", results[1])
	}
	if results[2].Category != domain.CategoryFeatureRequest {
		t.Fatalf("item after a failure should still classify, got %+v", results[2])
	}
}

func TestSystemPromptListsVocabulary(t *testing.T) {
	p := systemPrompt()
	for _, c := range domain.Categories {
		if !strings.Contains(p, string(c)) {
			t.Fatalf("system prompt missing category %q", c)
		}
	}
	for _, i := range domain.Intents {
		if !strings.Contains(p, string(i)) {
			t.Fatalf("system prompt missing intent %q", i)
		}
	}
}

func TestUserPromptTruncatesCorrectionOnRuneBoundary(t *testing.T) {
	req := Request{
		Title:       "Résumé export",
		Description: "Exports fail",
		PatternFeatures: &domain.PatternFeatures{
			Category: domain.CategoryTechnicalSupport,
			RelevantCorrections: []domain.CorrectionMatch{{
				Correction: domain.Correction{
					OriginalText:      strings.Repeat("é", 130),
					OriginalCategory:  "feature_request",
					CorrectedCategory: "technical_support",
				},
				Similarity: 0.5,
			}},
		},
	}
	p := userPrompt(req)
	if !utf8.ValidString(p) {
		t.Fatal("prompt contains invalid UTF-8")
	}
	if !strings.Contains(p, strings.Repeat("é", 120)+"...") {
		t.Fatalf("correction text not truncated to 120 characters:\n%s", p)
	}
	if strings.Contains(p, strings.Repeat("é", 121)) {
		t.Fatal("correction text longer than 120 characters")
	}
}
