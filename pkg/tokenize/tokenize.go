// Package tokenize implements the deterministic, language-neutral
// tokenizer shared by the BM25 index, the TF-IDF vector index and the
// graph engine's entity extractor. Positions survive stop-word removal
// so phrase queries can still anchor on adjacency.
package tokenize

import "strings"

const (
	minTokenLen = 2
	maxTokenLen = 49
)

// StopWords is the fixed stop-word list consulted during tokenization.
var StopWords = buildStopWords()

func buildStopWords() map[string]bool {
	words := []string{
		"a", "an", "the", "and", "or", "but", "in", "on", "at", "to", "for",
		"of", "with", "by", "is", "are", "was", "were", "be", "been", "being",
		"this", "that", "these", "those", "it", "its", "as", "from", "into",
		"about", "than", "then", "so", "if", "not", "no", "do", "does", "did",
		"has", "have", "had", "can", "will", "would", "should", "could",
		"i", "you", "he", "she", "we", "they", "them", "his", "her", "our",
		"your", "their", "there", "here", "what", "which", "who", "whom",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Token is a single emitted term with its position in the unigram stream
// (positions are preserved across stop-word removal so phrase queries can
// still anchor on adjacency of surviving terms).
type Token struct {
	Text     string
	Position int
}

func isPunct(r rune) bool {
	return !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9')
}

// Unigrams lowercases, strips punctuation to spaces, collapses whitespace,
// splits on whitespace, drops tokens shorter than 2 or at least 50
// characters, and removes stop words.
func Unigrams(text string) []Token {
	lower := strings.ToLower(text)
	cleaned := strings.Map(func(r rune) rune {
		if isPunct(r) {
			return ' '
		}
		return r
	}, lower)
	fields := strings.Fields(cleaned)

	out := make([]Token, 0, len(fields))
	pos := 0
	for _, w := range fields {
		if len(w) < minTokenLen || len(w) > maxTokenLen {
			continue
		}
		if StopWords[w] {
			continue
		}
		out = append(out, Token{Text: w, Position: pos})
		pos++
	}
	return out
}

// Bigrams joins adjacent surviving unigrams (by position, not by original
// adjacency across removed stop words) with a single space.
func Bigrams(unigrams []Token) []Token {
	if len(unigrams) < 2 {
		return nil
	}
	out := make([]Token, 0, len(unigrams)-1)
	for i := 0; i < len(unigrams)-1; i++ {
		if unigrams[i+1].Position != unigrams[i].Position+1 {
			continue
		}
		out = append(out, Token{
			Text:     unigrams[i].Text + " " + unigrams[i+1].Text,
			Position: unigrams[i].Position,
		})
	}
	return out
}

// Tokenize returns unigrams and, when withBigrams is true, bigrams
// appended after them.
func Tokenize(text string, withBigrams bool) []Token {
	uni := Unigrams(text)
	if !withBigrams {
		return uni
	}
	return append(uni, Bigrams(uni)...)
}

// Words extracts just the token text, the shape BM25/TF-IDF consume.
func Words(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}
