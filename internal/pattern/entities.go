package pattern

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"contextanalyzer/internal/domain"
)

var technologyKeywords = []string{
	"kubernetes", "docker", "terraform", "bicep", "arm template", "powershell",
	"python", "java", ".net", "node.js", "sql server", "oracle", "sap", "linux",
	"windows server", "vmware", "spark", "kafka", "graphql", "rest api", "gpu",
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"from": true, "have": true, "has": true, "are": true, "was": true, "were": true,
	"our": true, "your": true, "their": true, "they": true, "them": true, "will": true,
	"would": true, "could": true, "should": true, "need": true, "needs": true,
	"into": true, "about": true, "there": true, "what": true, "when": true,
	"which": true, "while": true, "also": true, "been": true, "being": true,
	"does": true, "not": true, "but": true, "can": true, "all": true, "any": true,
	"more": true, "some": true, "than": true, "then": true, "very": true,
	"just": true, "like": true, "please": true, "customer": true, "customers": true,
}

// padded surrounds text with spaces and turns punctuation into spaces so
// phrase lookups match on word boundaries. Dots and hyphens inside a token
// (".net", "800-53") are kept.
func padded(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.WriteByte(' ')
	for i, r := range runes {
		switch {
		case r == '.' || r == '-':
			if i+1 < len(runes) && isWordRune(runes[i+1]) {
				b.WriteRune(r)
			} else {
				b.WriteByte(' ')
			}
		case isWordRune(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	b.WriteByte(' ')
	return b.String()
}

func isWordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127
}

func containsPhrase(paddedText, phrase string) bool {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return false
	}
	return strings.Contains(paddedText, " "+phrase+" ")
}

// extractEntities fills every entity key, with empty slices when nothing
// matched. It also returns the codes of matched regions.
func (a *Analyzer) extractEntities(text string, products []string) (map[string][]string, []string) {
	p := padded(text)
	entities := map[string][]string{
		domain.EntityMicrosoftProducts:    nonNil(products),
		domain.EntityAzureServices:        {},
		domain.EntityRegions:              {},
		domain.EntityComplianceFrameworks: {},
		domain.EntityRetirements:          {},
		domain.EntityTechnologies:         {},
	}

	for _, svc := range a.ref.Services() {
		name := strings.ToLower(svc)
		if !strings.Contains(name, " ") {
			// single words like "policy" or "monitor" only count with the
			// azure prefix
			name = "azure " + name
		}
		if containsPhrase(p, name) {
			entities[domain.EntityAzureServices] = append(entities[domain.EntityAzureServices], svc)
		}
	}

	regions := append([]Region(nil), a.ref.Regions()...)
	sort.SliceStable(regions, func(i, j int) bool {
		return len(regions[i].DisplayName) > len(regions[j].DisplayName)
	})
	var codes []string
	remaining := p
	for _, r := range regions {
		display := " " + strings.ToLower(r.DisplayName) + " "
		code := " " + strings.ToLower(r.Name) + " "
		switch {
		case strings.Contains(remaining, display):
			remaining = strings.ReplaceAll(remaining, display, " ")
		case strings.Contains(remaining, code):
			remaining = strings.ReplaceAll(remaining, code, " ")
		default:
			continue
		}
		entities[domain.EntityRegions] = append(entities[domain.EntityRegions], r.DisplayName)
		codes = append(codes, r.Name)
	}

	for _, fw := range a.ref.Frameworks() {
		if containsPhrase(p, fw) {
			entities[domain.EntityComplianceFrameworks] = append(entities[domain.EntityComplianceFrameworks], fw)
		}
	}

	for _, ret := range a.ref.Retirements() {
		if retirementMatches(p, ret) {
			label := ret.ServiceName
			if ret.RetiringFeature != "" {
				label += ": " + ret.RetiringFeature
			}
			entities[domain.EntityRetirements] = append(entities[domain.EntityRetirements], label)
		}
	}

	for _, tech := range technologyKeywords {
		if containsPhrase(p, tech) {
			entities[domain.EntityTechnologies] = append(entities[domain.EntityTechnologies], tech)
		}
	}
	return entities, codes
}

func retirementMatches(p string, ret domain.Retirement) bool {
	if containsPhrase(p, ret.ServiceName) {
		return true
	}
	for _, term := range ret.KeyTerms {
		if containsPhrase(p, term) {
			return true
		}
	}
	return false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func entitySummary(entities map[string][]string) string {
	keys := []string{
		domain.EntityMicrosoftProducts, domain.EntityAzureServices, domain.EntityRegions,
		domain.EntityComplianceFrameworks, domain.EntityRetirements, domain.EntityTechnologies,
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, len(entities[k])))
	}
	return strings.Join(parts, " ")
}

// regionalAvailability is only worth a lookup for capacity and availability
// questions that name a region.
func (a *Analyzer) regionalAvailability(ctx context.Context, category domain.Category, regionCodes []string) domain.DataSourceUse {
	if !a.ref.LiveEnabled() {
		return domain.DataSourceUse{Name: DataRegionalAvailability, Status: domain.SourceSkipped, Detail: "live data disabled"}
	}
	switch category {
	case domain.CategoryCapacity, domain.CategoryAOAICapacity, domain.CategoryServiceAvailability:
	default:
		return domain.DataSourceUse{Name: DataRegionalAvailability, Status: domain.SourceSkipped, Detail: "not a capacity or availability question"}
	}
	if len(regionCodes) == 0 {
		return domain.DataSourceUse{Name: DataRegionalAvailability, Status: domain.SourceSkipped, Detail: "no region mentioned"}
	}
	_, use := a.ref.RegionalAvailability(ctx, regionCodes[0])
	return use
}

// keyConcepts returns the n most frequent non-stopword words of at least
// four letters. Ties keep first-occurrence order.
func keyConcepts(text string, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, w := range strings.Fields(padded(text)) {
		w = strings.Trim(w, ".-")
		if len([]rune(w)) < 4 || stopwords[w] {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	return nonNil(order)
}

// semanticKeywords merges products, entity names and concepts, deduplicated
// case-insensitively and capped at 15.
func semanticKeywords(products, concepts []string, entities map[string][]string) []string {
	const limit = 15
	seen := make(map[string]bool)
	out := []string{}
	add := func(items []string) {
		for _, item := range items {
			key := strings.ToLower(item)
			if len(out) >= limit || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, item)
		}
	}
	add(products)
	add(entities[domain.EntityAzureServices])
	add(entities[domain.EntityComplianceFrameworks])
	add(entities[domain.EntityRegions])
	add(concepts)
	return out
}

// searchStrategy says which downstream sources are worth querying.
func searchStrategy(a domain.ContextAnalysis) map[string]bool {
	has := func(key string) bool { return len(a.DomainEntities[key]) > 0 }
	isCapacity := a.Category == domain.CategoryCapacity || a.Category == domain.CategoryAOAICapacity
	return map[string]bool{
		"search_similar_issues":   true,
		"search_retirements":      a.Category == domain.CategoryServiceRetirement || has(domain.EntityRetirements),
		"search_roadmap":          a.Category == domain.CategoryProductRoadmap || a.Category == domain.CategoryFeatureRequest || a.Intent == domain.IntentRoadmapInquiry,
		"search_compliance_docs":  a.Category == domain.CategoryComplianceRegulatory || has(domain.EntityComplianceFrameworks),
		"check_regional_capacity": isCapacity || (a.Category == domain.CategoryServiceAvailability && has(domain.EntityRegions)),
		"search_documentation":    a.Intent == domain.IntentSeekingGuidance || a.Intent == domain.IntentConfigurationHelp || a.Intent == domain.IntentBestPractices,
		"escalate":                a.BusinessImpact == domain.ImpactCritical || a.Intent == domain.IntentEscalationRequest,
	}
}

func intentLabel(i domain.Intent) string {
	return strings.ReplaceAll(string(i), "_", " ")
}

func summarize(a domain.ContextAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s issue (%s) with %s business impact", a.Category.Label(), intentLabel(a.Intent), a.BusinessImpact)
	if products := a.DomainEntities[domain.EntityMicrosoftProducts]; len(products) > 0 {
		fmt.Fprintf(&b, " involving %s", strings.Join(products, ", "))
	}
	if regions := a.DomainEntities[domain.EntityRegions]; len(regions) > 0 {
		fmt.Fprintf(&b, " in %s", strings.Join(regions, ", "))
	}
	fmt.Fprintf(&b, ". Confidence %.0f%%, urgency %s, complexity %s.", a.Confidence*100, a.UrgencyLevel, a.TechnicalComplexity)
	return b.String()
}
