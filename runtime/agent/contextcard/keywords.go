package contextcard

import (
	"regexp"
	"strings"
)

// keywordPattern matches 4+ char alphanumeric tokens (§4.11).
var keywordPattern = regexp.MustCompile(`\b[a-zA-Z0-9]{4,}\b`)

// maxKeywords caps the number of keywords kept per card.
const maxKeywords = 20

var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"will": true, "would": true, "could": true, "should": true, "there": true,
	"their": true, "about": true, "which": true, "when": true, "where": true,
	"been": true, "were": true, "what": true, "into": true, "your": true,
	"these": true, "those": true, "then": true, "than": true, "them": true,
	"also": true, "just": true, "only": true, "some": true, "such": true,
}

// ExtractKeywords pulls 4+ char alphanumeric tokens out of text, lowercases
// them, drops stopwords, dedups, and caps the result at 20 (§4.11).
func ExtractKeywords(text string) []string {
	if text == "" {
		return nil
	}
	seen := make(map[string]bool)
	keywords := make([]string, 0, maxKeywords)
	for _, m := range keywordPattern.FindAllString(text, -1) {
		word := strings.ToLower(m)
		if stopwords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) >= maxKeywords {
			break
		}
	}
	return keywords
}
