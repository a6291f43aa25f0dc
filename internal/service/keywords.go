package service

import (
	"strings"
)

var keywordStopwords = map[string]struct{}{
	"and":  {},
	"vs":   {},
	"the":  {},
	"of":   {},
	"from": {},
	"a":    {},
	"in":   {},
	"is":   {},
}

const minKeywordLength = 3

// ExtractKeywords splits search phrases into individual keywords, dropping
// stopwords and words shorter than three characters. Duplicates are removed
// case-insensitively; the first spelling seen wins.
func ExtractKeywords(phrases []string) []string {
	seen := make(map[string]struct{})
	keywords := make([]string, 0)

	for _, phrase := range phrases {
		for _, word := range strings.Fields(phrase) {
			if len([]rune(word)) < minKeywordLength {
				continue
			}
			lower := strings.ToLower(word)
			if _, stop := keywordStopwords[lower]; stop {
				continue
			}
			if _, dup := seen[lower]; dup {
				continue
			}
			seen[lower] = struct{}{}
			keywords = append(keywords, word)
		}
	}
	return keywords
}
