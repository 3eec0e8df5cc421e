package vectorsearch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// keywordEmbedder counts a few keywords so similarities are predictable.
// Texts containing FAIL cannot be embedded.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, text string, _ bool) ([]float32, bool, error) {
	lower := strings.ToLower(text)
	if strings.Contains(text, "FAIL") {
		return nil, false, errors.New("embedding provider unavailable")
	}
	return []float32{
		float32(strings.Count(lower, "capacity")),
		float32(strings.Count(lower, "sentinel")),
		float32(strings.Count(lower, "billing")),
		0.1,
	}, false, nil
}

func sampleItems() []Item {
	return []Item{
		{ID: "1", Title: "GPU capacity shortage", Description: "need capacity in East US", Metadata: map[string]any{"state": "open"}},
		{ID: "2", Title: "Sentinel connector", Description: "missing connector in GCC High"},
		{ID: "3", Title: "Billing dispute", Description: "invoice mismatch"},
	}
}

func TestIndexSkipsExistingUnlessForced(t *testing.T) {
	s := New(keywordEmbedder{}, nil)
	ctx := context.Background()

	res, err := s.Index(ctx, "issues", sampleItems(), false)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if res.IndexedCount != 3 || res.SkippedCount != 0 || !res.Success {
		t.Fatalf("unexpected first index result: %+v", res)
	}

	res, err = s.Index(ctx, "issues", sampleItems(), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.IndexedCount != 0 || res.SkippedCount != 3 {
		t.Fatalf("existing IDs should be skipped: %+v", res)
	}

	res, err = s.Index(ctx, "issues", sampleItems()[:2], true)
	if err != nil {
		t.Fatal(err)
	}
	if res.IndexedCount != 2 {
		t.Fatalf("force reindex should rebuild: %+v", res)
	}
	infos := s.Collections()
	if len(infos) != 1 || infos[0].Items != 2 || infos[0].Embedded != 2 {
		t.Fatalf("unexpected collections after reindex: %+v", infos)
	}

	if _, err := s.Index(ctx, " ", sampleItems(), false); !errors.Is(err, ErrEmptyCollection) {
		t.Fatalf("expected ErrEmptyCollection, got %v", err)
	}
}

func TestSearchOrdersAndFilters(t *testing.T) {
	s := New(keywordEmbedder{}, nil)
	ctx := context.Background()
	if _, err := s.Index(ctx, "issues", sampleItems(), false); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, "capacity request", "issues", 3, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results without threshold, got %d", len(results))
	}
	if results[0].ItemID != "1" || results[0].Title != "GPU capacity shortage" {
		t.Fatalf("best match should be the capacity item, got %+v", results[0])
	}
	if results[0].Metadata["state"] != "open" {
		t.Fatalf("metadata not returned: %+v", results[0].Metadata)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Fatal("results not ordered by similarity")
		}
	}

	results, err = s.Search(ctx, "capacity request", "issues", 3, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ItemID != "1" {
		t.Fatalf("threshold should leave only the capacity item, got %+v", results)
	}
	if results[0].Similarity < 0.99 {
		t.Fatalf("similarity = %f, want ~1", results[0].Similarity)
	}
}

func TestSearchErrors(t *testing.T) {
	s := New(keywordEmbedder{}, nil)
	if _, err := s.Search(context.Background(), "  ", "issues", 5, 0); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
	if _, err := s.Search(context.Background(), "capacity", "missing", 5, 0); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestLexicalFallback(t *testing.T) {
	s := New(keywordEmbedder{}, nil)
	ctx := context.Background()
	items := append(sampleItems(), Item{ID: "4", Title: "FAIL quota capacity", Description: "cannot embed this one"})
	res, err := s.Index(ctx, "issues", items, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || len(res.FailedIDs) != 1 || res.FailedIDs[0] != "4" {
		t.Fatalf("expected item 4 to fail embedding: %+v", res)
	}

	results, err := s.Search(ctx, "FAIL invoice mismatch", "issues", 5, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || results[0].ItemID != "3" {
		t.Fatalf("lexical fallback should find the billing item first, got %+v", results)
	}
	if results[0].Metadata["match"] != "lexical" {
		t.Fatalf("lexical results should be marked, got %+v", results[0].Metadata)
	}

	infos := s.Collections()
	if infos[0].Items != 4 || infos[0].Embedded != 3 {
		t.Fatalf("unexpected collection info: %+v", infos[0])
	}
}

func TestDeleteCollection(t *testing.T) {
	s := New(keywordEmbedder{}, nil)
	if _, err := s.Index(context.Background(), "issues", sampleItems(), false); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteCollection("issues"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	if len(s.Collections()) != 0 {
		t.Fatal("collection should be gone")
	}
	if err := s.DeleteCollection("issues"); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestLexicalIndex(t *testing.T) {
	idx := buildLexicalIndex([]string{"azure openai quota", "sentinel connector", "openai pricing"})
	hits := idx.search("openai quota", 2)
	if len(hits) != 2 || hits[0].index != 0 {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if idx.search("unrelated words", 2) != nil {
		t.Fatal("no overlap should yield nil")
	}
}

// gatedEmbedder blocks on the query "capacity slow" until release is closed.
type gatedEmbedder struct {
	entered chan struct{}
	release chan struct{}
}

func (g gatedEmbedder) Embed(ctx context.Context, text string, useCache bool) ([]float32, bool, error) {
	if text == "capacity slow" {
		select {
		case g.entered <- struct{}{}:
		default:
		}
		<-g.release
	}
	return keywordEmbedder{}.Embed(ctx, text, useCache)
}

func TestSearchDoesNotHoldLockWhileEmbedding(t *testing.T) {
	g := gatedEmbedder{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s := New(g, nil)
	ctx := context.Background()
	if _, err := s.Index(ctx, "issues", sampleItems(), false); err != nil {
		t.Fatalf("Index: %v", err)
	}

	type outcome struct {
		n   int
		err error
	}
	searched := make(chan outcome, 1)
	go func() {
		res, err := s.Search(ctx, "capacity slow", "issues", 5, 0.1)
		searched <- outcome{len(res), err}
	}()
	<-g.entered

	listed := make(chan int, 1)
	go func() { listed <- len(s.Collections()) }()
	select {
	case n := <-listed:
		if n != 1 {
			t.Fatalf("collections = %d, want 1", n)
		}
	case <-time.After(2 * time.Second):
		close(g.release)
		t.Fatal("Collections blocked while a search was embedding its query")
	}

	close(g.release)
	got := <-searched
	if got.err != nil || got.n == 0 {
		t.Fatalf("search results=%d err=%v", got.n, got.err)
	}
}
