package pattern

import (
	"regexp"
	"strings"
)

// productPatterns capture the whole product phrase, including any
// "for X" suffix, so "Defender for Databases" is kept apart from "Defender".
var productPatterns = []*regexp.Regexp{
	compile(`(?:microsoft\s+)?defender\s+for\s+(?:cloud|endpoint|identity|office\s+365|storage|databases?|servers?|containers?|key\s+vault|app\s+service|dns|resource\s+manager|apis?|iot|sql|devops)`),
	compile(`(?:microsoft\s+)?defender`),
	compile(`(?:microsoft\s+)?sentinel`),
	compile(`azure\s+openai(?:\s+service)?|aoai`),
	compile(`(?:microsoft\s+)?purview`),
	compile(`(?:microsoft\s+)?entra(?:\s+id)?|azure\s+(?:ad|active\s+directory)`),
	compile(`(?:microsoft\s+)?copilot(?:\s+for\s+(?:microsoft\s+365|security|sales|service))?|github\s+copilot`),
	compile(`(?:microsoft\s+)?teams`),
	compile(`sharepoint(?:\s+online)?`),
	compile(`exchange\s+online`),
	compile(`power\s+(?:bi|apps?|automate|platform)`),
	compile(`dynamics\s+365(?:\s+(?:sales|customer\s+service|finance|field\s+service|business\s+central))?`),
	compile(`(?:microsoft\s+)?intune`),
	compile(`microsoft\s+365|office\s+365|m365|o365`),
	compile(`azure\s+(?:virtual\s+machines?|vms?)`),
	compile(`azure\s+kubernetes\s+service|aks`),
	compile(`azure\s+sql(?:\s+(?:database|managed\s+instance))?`),
	compile(`(?:azure\s+)?cosmos\s*db`),
	compile(`azure\s+functions?`),
	compile(`(?:azure\s+)?logic\s+apps?`),
	compile(`azure\s+monitor|log\s+analytics`),
	compile(`(?:microsoft\s+)?fabric`),
	compile(`(?:azure\s+)?synapse(?:\s+analytics)?`),
	compile(`azure\s+devops`),
	compile(`azure\s+arc`),
	compile(`azure\s+firewall`),
	compile(`(?:azure\s+)?key\s+vault`),
	compile(`azure\s+(?:blob\s+)?storage`),
	compile(`(?:azure\s+)?app\s+service`),
	compile(`(?:azure\s+)?api\s+management`),
}

var spaceRun = regexp.MustCompile(`\s+`)

// DetectProducts returns the product phrases found in text, in pattern
// order, de-duplicated by normalizeProduct. When two detections normalize
// alike, or one is contained in another, the longer name survives.
func DetectProducts(text string) []string {
	var found []string
	for _, re := range productPatterns {
		for _, m := range re.FindAllString(text, -1) {
			found = append(found, strings.TrimSpace(spaceRun.ReplaceAllString(m, " ")))
		}
	}
	return dedupeProducts(found)
}

// normalizeProduct lowercases and strips a plural "s" from every word.
func normalizeProduct(name string) string {
	words := strings.Fields(strings.ToLower(name))
	for i, w := range words {
		if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			words[i] = strings.TrimSuffix(w, "s")
		}
	}
	return strings.Join(words, " ")
}

func dedupeProducts(names []string) []string {
	var out []string
	var keys []string
	for _, name := range names {
		key := normalizeProduct(name)
		merged := false
		for i, existing := range keys {
			switch {
			case existing == key:
				if len(name) > len(out[i]) {
					out[i] = name
				}
				merged = true
			case containsWords(existing, key):
				merged = true
			case containsWords(key, existing):
				out[i], keys[i] = name, key
				merged = true
			}
			if merged {
				break
			}
		}
		if !merged {
			out = append(out, name)
			keys = append(keys, key)
		}
	}
	return dropContained(out, keys)
}

// containsWords reports whether needle appears in haystack on word
// boundaries and haystack is longer.
func containsWords(haystack, needle string) bool {
	if len(haystack) <= len(needle) {
		return false
	}
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

// dropContained removes names swallowed by a later replacement.
func dropContained(names, keys []string) []string {
	out := make([]string, 0, len(names))
	for i, name := range names {
		contained := false
		for j := range names {
			if i != j && (containsWords(keys[j], keys[i]) || (j < i && keys[j] == keys[i])) {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, name)
		}
	}
	return out
}
