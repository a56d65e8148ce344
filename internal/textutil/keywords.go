// Package textutil holds small text heuristics used when presenting
// conversations: language detection and keyword extraction.
package textutil

import (
	"regexp"
	"sort"
	"strings"
)

var (
	tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)
	// Slack markup: <@U123>, <#C123|name>, <https://...|label>
	markupPattern = regexp.MustCompile(`<[^>]*>`)
	stopwords     = map[string]struct{}{
		"a": {}, "about": {}, "all": {}, "also": {}, "am": {}, "an": {}, "and": {}, "any": {}, "are": {},
		"as": {}, "at": {}, "be": {}, "been": {}, "but": {}, "by": {}, "can": {}, "could": {}, "did": {},
		"do": {}, "does": {}, "for": {}, "from": {}, "get": {}, "got": {}, "has": {}, "have": {}, "he": {},
		"her": {}, "here": {}, "hi": {}, "his": {}, "how": {}, "if": {}, "im": {}, "in": {}, "is": {},
		"it": {}, "its": {}, "just": {}, "let": {}, "like": {}, "lol": {}, "me": {}, "my": {}, "no": {},
		"not": {}, "now": {}, "of": {}, "ok": {}, "okay": {}, "on": {}, "one": {}, "or": {}, "our": {},
		"please": {}, "she": {}, "should": {}, "so": {}, "some": {}, "thanks": {}, "that": {}, "the": {},
		"their": {}, "them": {}, "then": {}, "there": {}, "these": {}, "they": {}, "this": {}, "those": {},
		"thx": {}, "to": {}, "up": {}, "was": {}, "we": {}, "were": {}, "what": {}, "when": {}, "where": {},
		"which": {}, "who": {}, "will": {}, "with": {}, "would": {}, "yeah": {}, "yes": {}, "you": {},
		"your": {},
	}
)

// MeaningfulTokens tokenizes text, removes stopwords and chat markup, and
// deduplicates tokens while preserving order.
func MeaningfulTokens(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return dedupeTokens(filterTokens(tokenize(text)))
}

// Keywords returns up to n tokens that occur most often across texts. Each
// text counts a token once; ties are broken alphabetically.
func Keywords(texts []string, n int) []string {
	if n <= 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, text := range texts {
		for _, token := range MeaningfulTokens(text) {
			if TokenHasDigit(token) {
				continue
			}
			counts[token]++
		}
	}

	keywords := make([]string, 0, len(counts))
	for token := range counts {
		keywords = append(keywords, token)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})

	if len(keywords) > n {
		keywords = keywords[:n]
	}
	return keywords
}

// TokenHasDigit reports whether the token contains at least one numeric digit.
func TokenHasDigit(token string) bool {
	for _, r := range token {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	text = markupPattern.ReplaceAllString(text, " ")
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func filterTokens(tokens []string) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len([]rune(token)) == 1 && !TokenHasDigit(token) {
			continue
		}
		if _, isStopword := stopwords[token]; isStopword {
			continue
		}
		result = append(result, token)
	}
	return result
}

func dedupeTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, exists := seen[token]; exists {
			continue
		}
		seen[token] = struct{}{}
		result = append(result, token)
	}
	return result
}
