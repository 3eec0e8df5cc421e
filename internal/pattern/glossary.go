package pattern

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"contextanalyzer/internal/domain"
)

// Glossary holds operator-curated overrides. A matching term forces its
// category and a matching hint forces its intent.
type Glossary struct {
	Terms       []GlossaryTerm       `yaml:"terms"`
	IntentHints []GlossaryIntentHint `yaml:"intent_hints"`
}

type GlossaryTerm struct {
	Phrase   string `yaml:"phrase"`
	Category string `yaml:"category"`
}

type GlossaryIntentHint struct {
	Phrase string `yaml:"phrase"`
	Intent string `yaml:"intent"`
}

func LoadGlossary(path string) (*Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read glossary: %w", err)
	}
	var g Glossary
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse glossary yaml: %w", err)
	}
	for _, t := range g.Terms {
		if _, ok := domain.ParseCategory(t.Category); !ok {
			return nil, fmt.Errorf("glossary term %q: unknown category %q", t.Phrase, t.Category)
		}
	}
	for _, h := range g.IntentHints {
		if _, ok := domain.ParseIntent(h.Intent); !ok {
			return nil, fmt.Errorf("glossary hint %q: unknown intent %q", h.Phrase, h.Intent)
		}
	}
	return &g, nil
}

func normalizeTextToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// match returns the first term and hint found in the normalized text.
func (g *Glossary) match(text string) (domain.Category, string, domain.Intent, string) {
	if g == nil {
		return "", "", "", ""
	}
	var cat domain.Category
	var intent domain.Intent
	var catPhrase, intentPhrase string
	for _, t := range g.Terms {
		phrase := normalizeTextToken(t.Phrase)
		if phrase != "" && strings.Contains(text, phrase) {
			cat, _ = domain.ParseCategory(t.Category)
			catPhrase = t.Phrase
			break
		}
	}
	for _, h := range g.IntentHints {
		phrase := normalizeTextToken(h.Phrase)
		if phrase != "" && strings.Contains(text, phrase) {
			intent, _ = domain.ParseIntent(h.Intent)
			intentPhrase = h.Phrase
			break
		}
	}
	return cat, catPhrase, intent, intentPhrase
}

// AppendGlossaryTerm adds phrase → category to the YAML file at path unless
// the phrase is already present.
func AppendGlossaryTerm(path, phrase string, category domain.Category) error {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" || !category.Valid() {
		return nil
	}

	var glossary Glossary
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &glossary); err != nil {
			return fmt.Errorf("parse existing glossary: %w", err)
		}
	}

	normalized := normalizeTextToken(phrase)
	for _, t := range glossary.Terms {
		if normalizeTextToken(t.Phrase) == normalized {
			return nil
		}
	}

	glossary.Terms = append(glossary.Terms, GlossaryTerm{Phrase: phrase, Category: string(category)})
	return saveGlossary(path, &glossary)
}

func saveGlossary(path string, glossary *Glossary) error {
	data, err := yaml.Marshal(glossary)
	if err != nil {
		return fmt.Errorf("marshal glossary: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// GlossaryPhrase derives a candidate glossary phrase from an issue title:
// lowercased, ticket prefixes like [12345] stripped, capped at 100 chars.
func GlossaryPhrase(title string) string {
	s := strings.TrimSpace(title)
	for strings.HasPrefix(s, "[") {
		idx := strings.Index(s, "]")
		if idx < 0 {
			break
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	s = strings.ToLower(s)
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
