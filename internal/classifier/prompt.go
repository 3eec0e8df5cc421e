package classifier

import (
	"fmt"
	"sort"
	"strings"

	"contextanalyzer/internal/domain"
)

const maxPromptCorrections = 3

var disambiguationRules = []string{
	"A customer listing capabilities they want is feature_request, not product_roadmap, unless they ask about a timeline or release date.",
	"Requests for more quota, cores, GPUs or regional capacity are capacity. Use aoai_capacity only for Azure OpenAI quota, TPM or PTU.",
	"Government cloud names (GCC, GCC High, IL5) alone do not make an issue compliance_regulatory. Classify on what is being asked.",
	"A missing connector or integration in a sovereign cloud is feature_request with intent requesting_feature.",
	"Where data is stored or processed is data_sovereignty, not security_governance.",
	"Use support_escalation only when the customer explicitly asks to escalate an existing case.",
	"When nothing else fits, use technical_support with intent seeking_information.",
}

func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You classify Microsoft customer issues for an internal triage team.\n\n")
	b.WriteString("Choose exactly one category from:\n")
	for _, c := range domain.Categories {
		fmt.Fprintf(&b, "- %s: %s\n", c, c.Label())
	}
	b.WriteString("\nChoose exactly one intent from:\n")
	for _, i := range domain.Intents {
		fmt.Fprintf(&b, "- %s\n", i)
	}
	b.WriteString("\nChoose business_impact from: ")
	impacts := make([]string, 0, len(domain.BusinessImpacts))
	for _, bi := range domain.BusinessImpacts {
		impacts = append(impacts, string(bi))
	}
	b.WriteString(strings.Join(impacts, ", "))
	b.WriteString("\n\nRules:\n")
	for _, rule := range disambiguationRules {
		fmt.Fprintf(&b, "- %s\n", rule)
	}
	b.WriteString(`
Pattern-matching hints may be provided. Treat them as evidence, not as the answer.
Past corrections show earlier misclassifications. Avoid repeating them.

Respond with JSON only (no markdown):
{"category": "feature_request", "intent": "requesting_feature", "business_impact": "medium", "confidence": 0.85, "reasoning": "one or two sentences"}`)
	return b.String()
}

func userPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", strings.TrimSpace(req.Title))
	fmt.Fprintf(&b, "Description: %s\n", strings.TrimSpace(req.Description))
	if impact := strings.TrimSpace(req.Impact); impact != "" {
		fmt.Fprintf(&b, "Impact: %s\n", impact)
	}

	f := req.PatternFeatures
	if f == nil {
		return b.String()
	}
	b.WriteString("\nPattern-matching hints:\n")
	fmt.Fprintf(&b, "- pattern category: %s (confidence %.2f)\n", f.Category, f.Confidence)
	fmt.Fprintf(&b, "- pattern intent: %s\n", f.Intent)
	if len(f.DetectedProducts) > 0 {
		fmt.Fprintf(&b, "- detected products: %s\n", strings.Join(f.DetectedProducts, ", "))
	}
	if top := topScores(f.CategoryScores, 3); len(top) > 0 {
		fmt.Fprintf(&b, "- top category scores: %s\n", strings.Join(top, ", "))
	}
	if len(f.KeyConcepts) > 0 {
		fmt.Fprintf(&b, "- key concepts: %s\n", strings.Join(f.KeyConcepts, ", "))
	}

	if len(f.RelevantCorrections) > 0 {
		b.WriteString("\nPast corrections for similar issues:\n")
		for i, m := range f.RelevantCorrections {
			if i >= maxPromptCorrections {
				break
			}
			text := strings.TrimSpace(m.Correction.OriginalText)
			if r := []rune(text); len(r) > 120 {
				text = string(r[:120]) + "..."
			}
			fmt.Fprintf(&b, "- %q was classified as %s, corrected to %s", text, m.Correction.OriginalCategory, m.Correction.CorrectedCategory)
			if notes := strings.TrimSpace(m.Correction.CorrectionNotes); notes != "" {
				fmt.Fprintf(&b, " (%s)", notes)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// topScores renders the n highest category scores, ties in category order.
func topScores(scores map[domain.Category]float64, n int) []string {
	var cats []domain.Category
	for _, c := range domain.Categories {
		if scores[c] > 0 {
			cats = append(cats, c)
		}
	}
	sort.SliceStable(cats, func(i, j int) bool { return scores[cats[i]] > scores[cats[j]] })
	if len(cats) > n {
		cats = cats[:n]
	}
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		out = append(out, fmt.Sprintf("%s=%.2f", c, scores[c]))
	}
	return out
}
