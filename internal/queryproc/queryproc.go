// Package queryproc implements the single-pass query normalization
// pipeline: sanitize, phrase extraction, typed tokenization, stop-word
// removal, rule-based suffix normalization, and reconstruction (spec §4.3).
package queryproc

import (
	"regexp"
	"strings"
)

// TokenType classifies one whitespace-delimited residue token.
type TokenType int

const (
	// TokenOperator is a token prefixed with +, -, or !.
	TokenOperator TokenType = iota
	// TokenModifier is a field-scoped token containing ':'.
	TokenModifier
	// TokenTerm is any other token; the only kind subject to stop-word
	// removal and suffix normalization.
	TokenTerm
)

// Token is one classified, whitespace-delimited piece of the query.
type Token struct {
	Type TokenType
	Text string
}

// exceptions are never removed as stop words nor suffix-normalized: many
// of them would otherwise be mangled by the rule-based stemmer (e.g. "is"
// ending in "s", "series"/"species" ending in "ies").
var exceptions = map[string]bool{
	"this": true, "his": true, "is": true, "was": true, "has": true,
	"does": true, "series": true, "species": true, "test": true, "tests": true,
}

// stopWords is a conventional closed-class word list. Entries also present
// in exceptions are never dropped.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "if": true, "in": true,
	"into": true, "is": true, "it": true, "no": true, "not": true, "of": true,
	"on": true, "or": true, "such": true, "that": true, "the": true,
	"their": true, "then": true, "there": true, "these": true, "they": true,
	"this": true, "to": true, "was": true, "will": true, "with": true,
	"he": true, "she": true, "his": true, "her": true, "has": true,
	"have": true, "had": true, "do": true, "does": true, "did": true,
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Process runs the full pipeline and returns the normalized, reconstructed
// query string. Downstream matchers tokenize the result again on
// whitespace.
func Process(query string) string {
	sanitized := Sanitize(query)
	phrases, residue := ExtractPhrases(sanitized)
	tokens := Tokenize(residue)
	tokens = RemoveStopWords(tokens)
	tokens = NormalizeTerms(tokens)
	return Reconstruct(tokens, phrases)
}

// Sanitize trims the query and collapses internal whitespace runs to a
// single space. It does not touch quoting; ExtractPhrases handles that.
func Sanitize(query string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(query), " ")
}

// ExtractPhrases removes double-quoted segments from s, returning them
// verbatim (quotes included) for later reconstruction, and the residue
// with each removed phrase replaced by a single space so token boundaries
// are preserved. A quoted segment may itself contain a balanced pair of
// inner quotes (the nested-quote case "…"…"…"): the segment is considered
// closed at a quote that brings the running count of quote characters
// since the opening quote to an even number and is followed by whitespace
// or the end of s.
func ExtractPhrases(s string) ([]string, string) {
	var phrases []string
	var residue strings.Builder

	i, n := 0, len(s)
	for i < n {
		if s[i] != '"' {
			residue.WriteByte(s[i])
			i++
			continue
		}

		start := i
		count := 0
		for i < n {
			if s[i] == '"' {
				count++
			}
			i++
			if count > 0 && count%2 == 0 && (i == n || s[i] == ' ' || s[i] == '\t' || s[i] == '\n') {
				break
			}
		}
		phrases = append(phrases, s[start:i])
		residue.WriteByte(' ')
	}

	return phrases, residue.String()
}

// Tokenize splits residue on whitespace into typed tokens.
func Tokenize(residue string) []Token {
	fields := strings.Fields(residue)
	tokens := make([]Token, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, Token{Type: classify(f), Text: f})
	}
	return tokens
}

func classify(text string) TokenType {
	if len(text) > 0 && (text[0] == '+' || text[0] == '-' || text[0] == '!') {
		return TokenOperator
	}
	if strings.Contains(text, ":") {
		return TokenModifier
	}
	return TokenTerm
}

// RemoveStopWords drops term tokens whose lowercased text is a stop word,
// unless it is in the exception set.
func RemoveStopWords(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Type == TokenTerm {
			lower := strings.ToLower(tok.Text)
			if stopWords[lower] && !exceptions[lower] {
				continue
			}
		}
		out = append(out, tok)
	}
	return out
}

// NormalizeTerms applies the rule-based suffix normalizer to term tokens
// longer than 3 characters that are not in the exception set.
func NormalizeTerms(tokens []Token) []Token {
	out := make([]Token, len(tokens))
	for i, tok := range tokens {
		if tok.Type == TokenTerm {
			tok.Text = NormalizeWord(tok.Text)
		}
		out[i] = tok
	}
	return out
}

// Reconstruct concatenates original-case operator/modifier tokens,
// normalized term tokens, and preserved phrases with single-space
// separators.
func Reconstruct(tokens []Token, phrases []string) string {
	parts := make([]string, 0, len(tokens)+len(phrases))
	for _, tok := range tokens {
		parts = append(parts, tok.Text)
	}
	parts = append(parts, phrases...)
	return strings.Join(parts, " ")
}

var doubleConsonantSibilantEsSuffixes = []string{"ses", "xes", "zes", "ches", "shes"}

// NormalizeWord applies the §4.3.5 suffix-stripping rules to a single term,
// preferring the longest matching suffix. Words of length <= 3 or present
// in the exception set are returned unchanged.
func NormalizeWord(word string) string {
	lower := strings.ToLower(word)
	n := len(lower)
	if n <= 3 || exceptions[lower] {
		return word
	}

	switch {
	case strings.HasSuffix(lower, "est"):
		return word[:n-3]

	case strings.HasSuffix(lower, "ying"):
		return word[:n-4] + "y"

	case strings.HasSuffix(lower, "ing"):
		stem := word[:n-3]
		if endsInDoubledConsonant(stem) {
			return stem[:len(stem)-1]
		}
		return stem

	case strings.HasSuffix(lower, "ied"):
		return word[:n-3] + "y"

	case strings.HasSuffix(lower, "ed"):
		stem := word[:n-2]
		if endsInDoubledConsonant(stem) {
			return stem[:len(stem)-1]
		}
		return stem

	case strings.HasSuffix(lower, "er"):
		return word[:n-2]

	case strings.HasSuffix(lower, "ies"):
		return word[:n-3] + "y"

	case hasSuffixAny(lower, doubleConsonantSibilantEsSuffixes):
		return word[:n-2]

	case strings.HasSuffix(lower, "es"):
		return word[:n-2]

	case strings.HasSuffix(lower, "d"):
		return word[:n-1]

	case strings.HasSuffix(lower, "s"):
		return word[:n-1]
	}

	return word
}

func hasSuffixAny(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func endsInDoubledConsonant(stem string) bool {
	n := len(stem)
	if n < 2 {
		return false
	}
	last := stem[n-1] | 0x20 // lowercase
	prev := stem[n-2] | 0x20
	return last == prev && !isVowel(last)
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
