package learning

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"contextanalyzer/internal/domain"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"need sentinel connectors", "need sentinel connectors", 1},
		{"the a of", "the a of", 0},
		{"sentinel connector request", "sentinel migration plan", 0.2},
		{"", "anything here", 0},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("Similarity(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFindRelevant(t *testing.T) {
	corrections := []domain.Correction{
		{OriginalText: "Sentinel connector for GCCH tenant", CorrectedCategory: "feature_request"},
		{OriginalText: "Quota increase for GPU cores", CorrectedCategory: "capacity"},
		{OriginalText: "Sentinel connector missing data", CorrectedCategory: "technical_support"},
		{OriginalText: "unrelated billing question", CorrectedCategory: "cost_billing"},
	}

	got := FindRelevant("Need Sentinel connector for GCCH", corrections, 0, 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(got), got)
	}
	if got[0].Correction.CorrectedCategory != "feature_request" {
		t.Fatalf("expected best match first, got %+v", got[0])
	}
	if got[0].Similarity < got[1].Similarity {
		t.Fatal("matches must be sorted by similarity")
	}

	if got := FindRelevant("Need Sentinel connector for GCCH", corrections, 0.2, 1); len(got) != 1 {
		t.Fatalf("limit not applied: %d", len(got))
	}
}

func TestLoadCorrections(t *testing.T) {
	dir := t.TempDir()
	if got, err := LoadCorrections(filepath.Join(dir, "missing.json")); err != nil || got != nil {
		t.Fatalf("missing file: got=%v err=%v", got, err)
	}

	path := filepath.Join(dir, "corrections.json")
	body := `{"corrections":[{"original_text":"x","original_category":"technical_support","corrected_category":"capacity","correction_notes":"quota","timestamp":"2025-01-02T03:04:05Z"}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadCorrections(path)
	if err != nil {
		t.Fatalf("LoadCorrections: %v", err)
	}
	if len(got) != 1 || got[0].CorrectedCategory != "capacity" || got[0].Timestamp.Year() != 2025 {
		t.Fatalf("unexpected corrections: %+v", got)
	}

	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCorrections(path); err == nil {
		t.Fatal("expected parse error")
	}
}
