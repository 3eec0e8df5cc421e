package hybrid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"contextanalyzer/internal/classifier"
	"contextanalyzer/internal/domain"
	"contextanalyzer/internal/integrations/llm"
	"contextanalyzer/internal/pattern"
)

type stubLLM struct {
	reply string
	err   error
	calls int
}

func (s *stubLLM) Complete(_ context.Context, _, _ string) (string, llm.Usage, error) {
	s.calls++
	if s.err != nil {
		return "", llm.Usage{}, s.err
	}
	return s.reply, llm.Usage{}, nil
}

func (s *stubLLM) Provider() string { return "stub" }
func (s *stubLLM) Model() string    { return "stub-model" }

type recorderFunc func(domain.AnalysisRecord) error

func (f recorderFunc) RecordAnalysis(_ context.Context, rec domain.AnalysisRecord) error { return f(rec) }

type notifierFunc func(string, domain.HybridAnalysisResult) error

func (f notifierFunc) NotifyAnalysis(_ context.Context, title string, r domain.HybridAnalysisResult) error {
	return f(title, r)
}

type stubSearch struct {
	collection string
	hits       []domain.SearchResult
	err        error
}

func (s *stubSearch) Search(_ context.Context, _, collection string, _ int, _ float64) ([]domain.SearchResult, error) {
	s.collection = collection
	return s.hits, s.err
}

const (
	capacityTitle = "Need capacity increase for East US"
	capacityDesc  = "capacity needed urgently"
)

func reply(category domain.Category, intent domain.Intent) string {
	return fmt.Sprintf(`{"category":%q,"intent":%q,"business_impact":"high","confidence":0.7,"reasoning":"model says so"}`,
		category, intent)
}

func TestFallbackWhenLLMAlwaysFails(t *testing.T) {
	client := &stubLLM{err: errors.New("connection refused")}
	p := pattern.NewAnalyzer(pattern.Options{})
	a := New(p, Options{Classifier: classifier.New(client, classifier.Options{})})

	if a.State() != StateAIEnabled {
		t.Fatalf("expected ai_enabled state, got %s", a.State())
	}
	got := a.Analyze(context.Background(), Request{Title: capacityTitle, Description: capacityDesc})
	want := pattern.NewAnalyzer(pattern.Options{}).AnalyzeContext(context.Background(), capacityTitle, capacityDesc, "")

	if got.Source != domain.SourcePattern {
		t.Fatalf("expected pattern source, got %q", got.Source)
	}
	if got.AIAvailable {
		t.Fatal("ai_available should be false after a failure")
	}
	if !strings.Contains(got.AIError, "connection refused") {
		t.Fatalf("ai_error should carry the failure, got %q", got.AIError)
	}
	if got.Category != want.Category || got.Intent != want.Intent {
		t.Fatalf("fallback should equal pattern output: got %s/%s want %s/%s",
			got.Category, got.Intent, want.Category, want.Intent)
	}
	if !got.Agreement {
		t.Fatal("pattern results agree with themselves")
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly one LLM attempt, got %d", client.calls)
	}
	if got.AnalysisID == "" {
		t.Fatal("analysis id missing")
	}
}

func TestSchemaErrorFallsBack(t *testing.T) {
	client := &stubLLM{reply: `{"category":"weather","intent":"seeking_information","business_impact":"low","confidence":0.9,"reasoning":"x"}`}
	a := New(pattern.NewAnalyzer(pattern.Options{}), Options{Classifier: classifier.New(client, classifier.Options{})})

	got := a.Analyze(context.Background(), Request{Title: capacityTitle, Description: capacityDesc})
	if got.Source != domain.SourcePattern || got.AIError == "" {
		t.Fatalf("invalid category should fall back, got source=%q err=%q", got.Source, got.AIError)
	}
}

func TestAgreementAndDisagreement(t *testing.T) {
	p := pattern.NewAnalyzer(pattern.Options{})
	base := p.AnalyzeContext(context.Background(), capacityTitle, capacityDesc, "")

	agree := &stubLLM{reply: reply(base.Category, base.Intent)}
	got := New(p, Options{Classifier: classifier.New(agree, classifier.Options{})}).
		Analyze(context.Background(), Request{Title: capacityTitle, Description: capacityDesc})
	if got.Source != domain.SourceHybrid || !got.Agreement || !got.AIAvailable {
		t.Fatalf("expected hybrid agreement, got source=%q agreement=%v", got.Source, got.Agreement)
	}
	if got.Reasoning != "model says so" {
		t.Fatalf("expected LLM reasoning, got %q", got.Reasoning)
	}
	if got.Confidence < 0 || got.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", got.Confidence)
	}

	disagree := &stubLLM{reply: reply(domain.CategoryCostBilling, domain.IntentCostOptimization)}
	got = New(p, Options{Classifier: classifier.New(disagree, classifier.Options{})}).
		Analyze(context.Background(), Request{Title: capacityTitle, Description: capacityDesc})
	if got.Source != domain.SourceLLM || got.Agreement {
		t.Fatalf("expected llm source without agreement, got source=%q agreement=%v", got.Source, got.Agreement)
	}
	if got.Category != domain.CategoryCostBilling || got.PatternCategory != base.Category {
		t.Fatalf("unexpected categories: %s pattern=%s", got.Category, got.PatternCategory)
	}
}

func TestPatternOnlyState(t *testing.T) {
	a := New(pattern.NewAnalyzer(pattern.Options{}), Options{})
	if a.State() != StatePatternOnly {
		t.Fatalf("expected pattern_only, got %s", a.State())
	}
	got := a.Analyze(context.Background(), Request{Title: capacityTitle, Description: capacityDesc})
	if got.Source != domain.SourcePattern || got.AIError != "" || got.AIAvailable {
		t.Fatalf("unexpected pattern-only result: %+v", got)
	}
	if got.PatternFeatures == nil || got.PatternAnalysis == nil {
		t.Fatal("pattern details should be attached")
	}
}

func TestCollaborators(t *testing.T) {
	var recorded []domain.AnalysisRecord
	var notified []string
	search := &stubSearch{hits: []domain.SearchResult{{ItemID: "42", Title: "old capacity issue", Similarity: 0.91}}}
	client := &stubLLM{err: errors.New("down")}

	a := New(pattern.NewAnalyzer(pattern.Options{}), Options{
		Classifier:        classifier.New(client, classifier.Options{}),
		Search:            search,
		SimilarCollection: "issues",
		Recorder: recorderFunc(func(rec domain.AnalysisRecord) error {
			recorded = append(recorded, rec)
			return nil
		}),
		Notifier: notifierFunc(func(title string, _ domain.HybridAnalysisResult) error {
			notified = append(notified, title)
			return errors.New("slack down")
		}),
	})
	a.newID = func() string { return "fixed-id" }

	got := a.Analyze(context.Background(), Request{Title: capacityTitle, Description: capacityDesc, IncludeSimilar: true})
	if len(got.SimilarIssues) != 1 || search.collection != "issues" {
		t.Fatalf("similar issues not attached: %+v", got.SimilarIssues)
	}
	if len(recorded) != 1 || recorded[0].ID != "fixed-id" || recorded[0].LLMProvider != "stub" {
		t.Fatalf("unexpected record: %+v", recorded)
	}
	if recorded[0].AIError == "" || recorded[0].Source != domain.SourcePattern {
		t.Fatalf("record should carry the fallback: %+v", recorded[0])
	}
	if len(notified) != 1 || notified[0] != capacityTitle {
		t.Fatalf("notifier not called: %v", notified)
	}

	search.err = errors.New("collection not found")
	got = a.Analyze(context.Background(), Request{Title: capacityTitle, Description: capacityDesc, IncludeSimilar: true})
	if got.SimilarIssues != nil {
		t.Fatal("search failures should leave similar issues empty")
	}
}
