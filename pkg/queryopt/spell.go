package queryopt

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// maxSpellDistance is the Damerau-Levenshtein cutoff for spell-correction
// candidates.
const maxSpellDistance = 2

// isTechnicalToken identifies tokens spell correction must never touch:
// all-caps technical acronyms of 5 characters or fewer, e.g. API, JWT, SQL.
func isTechnicalToken(tok string) bool {
	if len(tok) == 0 || len(tok) > 5 {
		return false
	}
	for _, r := range tok {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Vocabulary is the indexed-term source spell correction draws candidates
// from (typically the BM25 index's term set).
type Vocabulary interface {
	Contains(term string) bool
	Terms() []string
}

// Correct replaces each out-of-vocabulary token in tokens with its closest
// in-vocabulary candidate within Damerau-Levenshtein distance 2, using
// antzucaro/matchr. Technical tokens and in-vocabulary tokens
// pass through unchanged. Ties are broken by shortest distance, then
// lexicographically, for determinism.
func Correct(tokens []string, vocab Vocabulary) []string {
	if vocab == nil {
		return tokens
	}
	terms := vocab.Terms()
	out := make([]string, len(tokens))

	for i, tok := range tokens {
		lower := strings.ToLower(tok)
		if isTechnicalToken(tok) || vocab.Contains(lower) {
			out[i] = tok
			continue
		}

		bestDist := maxSpellDistance + 1
		best := tok
		for _, candidate := range terms {
			d := matchr.DamerauLevenshtein(lower, candidate)
			if d > maxSpellDistance {
				continue
			}
			if d < bestDist || (d == bestDist && candidate < best) {
				bestDist = d
				best = candidate
			}
		}
		out[i] = best
	}
	return out
}

// CoOccurrence is a symmetric term co-occurrence matrix built at index
// time, swapped atomically by the caller on rebuild.
type CoOccurrence struct {
	counts map[string]map[string]int
	totals map[string]int
}

// BuildCoOccurrence scans tokenized documents and counts, for every pair of
// terms appearing in the same document, how often they co-occur.
func BuildCoOccurrence(docs [][]string) *CoOccurrence {
	co := &CoOccurrence{counts: make(map[string]map[string]int), totals: make(map[string]int)}
	for _, tokens := range docs {
		unique := dedupe(tokens)
		for _, a := range unique {
			co.totals[a]++
			if co.counts[a] == nil {
				co.counts[a] = make(map[string]int)
			}
			for _, b := range unique {
				if a == b {
					continue
				}
				co.counts[a][b]++
			}
		}
	}
	return co
}

func dedupe(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// mutualInformation approximates pointwise mutual information for a and b
// given their joint co-occurrence count and corpus-wide totals.
func (co *CoOccurrence) mutualInformation(a, b string, totalDocs int) float64 {
	if totalDocs == 0 {
		return 0
	}
	joint := float64(co.counts[a][b])
	if joint == 0 {
		return 0
	}
	pa := float64(co.totals[a]) / float64(totalDocs)
	pb := float64(co.totals[b]) / float64(totalDocs)
	pab := joint / float64(totalDocs)
	if pa == 0 || pb == 0 {
		return 0
	}
	return pab / (pa * pb)
}

// ExpandTerm returns the top-N terms most co-occurring with term whose
// mutual information exceeds threshold, sorted descending by score.
func (co *CoOccurrence) ExpandTerm(term string, totalDocs, topN int, threshold float64) []string {
	type scored struct {
		term  string
		score float64
	}
	var candidates []scored
	for other := range co.counts[term] {
		mi := co.mutualInformation(term, other, totalDocs)
		if mi > threshold {
			candidates = append(candidates, scored{term: other, score: mi})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].term < candidates[j].term
	})
	if topN > 0 && len(candidates) > topN {
		candidates = candidates[:topN]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.term
	}
	return out
}
