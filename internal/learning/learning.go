// Package learning matches new issues against past user corrections.
package learning

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"contextanalyzer/internal/domain"
)

const (
	DefaultThreshold = 0.2
	DefaultLimit     = 3
	minWordLen       = 4
)

type correctionsFile struct {
	Corrections []domain.Correction `json:"corrections"`
}

// LoadCorrections reads a corrections.json file. A missing file yields no
// corrections.
func LoadCorrections(path string) ([]domain.Correction, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read corrections: %w", err)
	}
	var f correctionsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse corrections %s: %w", path, err)
	}
	return f.Corrections, nil
}

// words returns the set of lowercase words longer than three characters.
func words(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) >= minWordLen {
			out[w] = struct{}{}
		}
	}
	return out
}

// Similarity is |A∩B| / |A∪B| over the significant words of a and b.
func Similarity(a, b string) float64 {
	wa, wb := words(a), words(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

// FindRelevant returns up to limit corrections whose original text overlaps
// text by at least threshold, best first. Non-positive arguments use the
// package defaults.
func FindRelevant(text string, corrections []domain.Correction, threshold float64, limit int) []domain.CorrectionMatch {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	var matches []domain.CorrectionMatch
	for _, c := range corrections {
		score := Similarity(text, c.OriginalText)
		if score >= threshold {
			matches = append(matches, domain.CorrectionMatch{Correction: c, Similarity: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
