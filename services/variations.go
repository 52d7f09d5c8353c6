package services

import (
	"regexp"
	"strings"
)

var (
	// sizeTokenRegexp matches capacity / size tokens such as "512GB", "2 TB", `65"`, "27 inch"
	sizeTokenRegexp = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:gb|tb|inch(?:es)?)\b|\b\d+(?:\.\d+)?\s*["']`)
	// parenRegexp matches parenthetical content, which often holds SKUs or variants
	parenRegexp = regexp.MustCompile(`\([^)]*\)`)
	// punctRegexp matches anything that is not a letter, digit, underscore or space
	punctRegexp = regexp.MustCompile(`[^\w\s]`)
)

// SearchVariations returns search terms ordered from most specific to
// broadest. The first variation is always the original term; duplicates
// and empty strings are dropped.
func SearchVariations(searchTerm string) []string {
	original := collapseSpaces(searchTerm)
	if original == "" {
		return nil
	}

	var variations []string
	seen := make(map[string]struct{})
	add := func(v string) {
		v = collapseSpaces(v)
		if v == "" {
			return
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		variations = append(variations, v)
	}

	add(original)
	add(sizeTokenRegexp.ReplaceAllString(original, " "))

	words := strings.Fields(original)
	if len(words) >= 3 {
		add(strings.Join(words[:2], " "))
		add(strings.Join(words[:3], " "))
	}

	add(parenRegexp.ReplaceAllString(original, " "))
	add(punctRegexp.ReplaceAllString(original, " "))

	return variations
}

// BroadTerm is the forced two-word fallback used after every variation has
// failed. It is empty when the term already has two words or fewer.
func BroadTerm(searchTerm string) string {
	words := strings.Fields(searchTerm)
	if len(words) <= 2 {
		return ""
	}
	return strings.Join(words[:2], " ")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
