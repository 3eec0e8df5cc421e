package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"contextanalyzer/internal/cache"
	"contextanalyzer/internal/classifier"
	"contextanalyzer/internal/domain"
	"contextanalyzer/internal/embedding"
	"contextanalyzer/internal/hybrid"
	"contextanalyzer/internal/integrations/llm"
	"contextanalyzer/internal/pattern"
	"contextanalyzer/internal/storage/sqlite"
	"contextanalyzer/internal/vectorsearch"
)

type wordProvider struct{}

func (wordProvider) Embed(_ context.Context, text string) ([]float32, error) {
	t := strings.ToLower(text)
	return []float32{
		float32(strings.Count(t, "capacity")),
		float32(strings.Count(t, "sentinel")),
		float32(strings.Count(t, "billing")),
		0.1,
	}, nil
}

type failingLLM struct{}

func (failingLLM) Complete(context.Context, string, string) (string, llm.Usage, error) {
	return "", llm.Usage{}, errors.New("model unavailable")
}
func (failingLLM) Provider() string { return "stub" }
func (failingLLM) Model() string    { return "stub-model" }

func newTestServer(t *testing.T, withLLM bool) *Server {
	t.Helper()
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "analysis.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	embCache, err := cache.New("embeddings", 1, cache.WithStore(sqlite.NewCacheStore(db, "embeddings")))
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	emb := embedding.NewService(wordProvider{}, embedding.Options{Model: "words", Dimension: 4, Cache: embCache})
	deps := Deps{
		Embeddings: emb,
		Search:     vectorsearch.New(emb, nil),
		DB:         db,
	}
	opts := hybrid.Options{Recorder: sqlite.Recorder{DB: db}}
	if withLLM {
		deps.Classifier = classifier.New(failingLLM{}, classifier.Options{})
		opts.Classifier = deps.Classifier
	}
	deps.Hybrid = hybrid.New(pattern.NewAnalyzer(pattern.Options{}), opts)

	s, err := NewServer(deps, Config{})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestNewServerRequiresAnalyzer(t *testing.T) {
	if _, err := NewServer(Deps{}, Config{}); err == nil {
		t.Fatal("expected error without hybrid analyzer")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)
	rec := do(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[HealthResponse](t, rec)
	if resp.Status != "ok" || resp.State != string(hybrid.StatePatternOnly) || !resp.History {
		t.Fatalf("unexpected health: %+v", resp)
	}
}

func TestAnalyzeAndStats(t *testing.T) {
	s := newTestServer(t, true)

	rec := do(t, s, http.MethodPost, "/analyze", AnalyzeRequest{Title: "only a title"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing description: status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/analyze", AnalyzeRequest{
		Title:       "Need capacity increase for East US",
		Description: "capacity needed urgently",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze: status = %d body=%s", rec.Code, rec.Body.String())
	}
	result := decode[domain.HybridAnalysisResult](t, rec)
	if result.Source != domain.SourcePattern || result.AIAvailable || result.AIError == "" {
		t.Fatalf("expected pattern fallback, got %+v", result)
	}
	if result.Category != domain.CategoryCapacity {
		t.Fatalf("category = %s", result.Category)
	}

	rec = do(t, s, http.MethodGet, "/stats?days=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status = %d", rec.Code)
	}
	stats := decode[domain.AnalysisStats](t, rec)
	if stats.TotalAnalyses != 1 || stats.BySource[domain.SourcePattern] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestClassifyErrorMapping(t *testing.T) {
	rec := do(t, newTestServer(t, false), http.MethodPost, "/classify", ClassifyRequest{Title: "a", Description: "b"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("no classifier: status = %d", rec.Code)
	}

	s := newTestServer(t, true)
	rec = do(t, s, http.MethodPost, "/classify", ClassifyRequest{Title: "a"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("validation: status = %d", rec.Code)
	}
	rec = do(t, s, http.MethodPost, "/classify", ClassifyRequest{Title: "a", Description: "b"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("upstream: status = %d", rec.Code)
	}
}

func TestEmbed(t *testing.T) {
	s := newTestServer(t, false)
	rec := do(t, s, http.MethodPost, "/embed", EmbedRequest{Text: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty text: status = %d", rec.Code)
	}
	rec = do(t, s, http.MethodPost, "/embed", EmbedRequest{Text: "capacity billing"})
	if rec.Code != http.StatusOK {
		t.Fatalf("embed: status = %d", rec.Code)
	}
	resp := decode[EmbedResponse](t, rec)
	if resp.Dimension != 4 || resp.Cached {
		t.Fatalf("unexpected embed response: %+v", resp)
	}
	resp = decode[EmbedResponse](t, do(t, s, http.MethodPost, "/embed", EmbedRequest{Text: "capacity billing"}))
	if !resp.Cached {
		t.Fatal("second embed should come from cache")
	}
}

func TestIndexSearchAndCollections(t *testing.T) {
	s := newTestServer(t, false)
	rec := do(t, s, http.MethodPost, "/search", SearchRequest{Query: "capacity", CollectionName: "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing collection: status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/index", IndexRequest{
		CollectionName: "issues",
		Items: []vectorsearch.Item{
			{ID: "1", Title: "GPU capacity", Description: "capacity in East US"},
			{ID: "2", Title: "Billing question", Description: "billing for Sentinel"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("index: status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode[vectorsearch.IndexResult](t, rec); got.IndexedCount != 2 || !got.Success {
		t.Fatalf("unexpected index result: %+v", got)
	}

	threshold := 0.5
	rec = do(t, s, http.MethodPost, "/search", SearchRequest{
		Query: "capacity", CollectionName: "issues", TopK: 2, SimilarityThreshold: &threshold,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("search: status = %d", rec.Code)
	}
	resp := decode[SearchResponse](t, rec)
	if resp.Count != 1 || resp.Results[0].ItemID != "1" || resp.Collection != "issues" {
		t.Fatalf("unexpected search response: %+v", resp)
	}

	if rec := do(t, s, http.MethodPost, "/search", SearchRequest{CollectionName: "issues"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty query: status = %d", rec.Code)
	}

	infos := decode[[]vectorsearch.CollectionInfo](t, do(t, s, http.MethodGet, "/collections", nil))
	if len(infos) != 1 || infos[0].Name != "issues" {
		t.Fatalf("unexpected collections: %+v", infos)
	}
	if rec := do(t, s, http.MethodDelete, "/collections/issues", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
}

func TestCorrections(t *testing.T) {
	s := newTestServer(t, false)
	rec := do(t, s, http.MethodPost, "/corrections", CorrectionRequest{OriginalText: "x", CorrectedCategory: "weather"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown category: status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/corrections", CorrectionRequest{
		OriginalText:      "Sentinel pricing for sovereign cloud workloads",
		OriginalCategory:  "cost_billing",
		CorrectedCategory: "Data Sovereignty",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("correction: status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode[domain.Correction](t, rec); got.CorrectedCategory != string(domain.CategoryDataSovereignty) {
		t.Fatalf("category not normalised: %+v", got)
	}
	if n := len(s.deps.Hybrid.Pattern().Reference().Corrections()); n != 1 {
		t.Fatalf("correction not visible to analyzer: %d", n)
	}
	stats := decode[domain.AnalysisStats](t, do(t, s, http.MethodGet, "/stats", nil))
	if stats.TotalCorrections != 1 {
		t.Fatalf("total corrections = %d", stats.TotalCorrections)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(t, false), http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d", rec.Code)
	}
}
