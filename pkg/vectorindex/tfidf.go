package vectorindex

import (
	"math"
	"sort"
	"sync"

	"github.com/liliang-cn/memex/pkg/tokenize"
)

// staleDriftFraction triggers a lazy rebuild once the live document count
// drifts by more than this fraction from the vectorizer's fit-time count.
const staleDriftFraction = 0.05

// TFIDF is the always-available sparse back-end: a unigram+bigram
// vectorizer with cosine similarity as normalized dot product.
type TFIDF struct {
	mu sync.RWMutex

	docs     map[int64]string
	fitCount int
	idf      map[string]float64
	vectors  map[int64]map[string]float64
}

// NewTFIDF creates an empty TF-IDF backend.
func NewTFIDF() *TFIDF {
	return &TFIDF{
		docs:    make(map[int64]string),
		idf:     make(map[string]float64),
		vectors: make(map[int64]map[string]float64),
	}
}

func (t *TFIDF) Available() bool { return true }

// Index stores text under id. Vectors are refit on the next
// Search/RebuildIfStale call only once the document count has drifted by
// more than 5% from the last fit; until then a newly indexed or re-indexed
// text is not reflected in search results.
func (t *TFIDF) Index(id int64, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs[id] = text
	return nil
}

func (t *TFIDF) Delete(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.docs, id)
	delete(t.vectors, id)
	return nil
}

// Clear drops every indexed document, e.g. when the active profile
// switches and the index must be warmed from a different corpus.
func (t *TFIDF) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs = make(map[int64]string)
	t.idf = make(map[string]float64)
	t.vectors = make(map[int64]map[string]float64)
	t.fitCount = 0
}

// RebuildIfStale refits the vectorizer when the live document count has
// drifted by more than 5% since the last fit.
func (t *TFIDF) RebuildIfStale() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rebuildIfStaleLocked()
}

func (t *TFIDF) rebuildIfStaleLocked() error {
	n := len(t.docs)
	if t.fitCount > 0 {
		drift := math.Abs(float64(n-t.fitCount)) / float64(t.fitCount)
		if drift <= staleDriftFraction {
			return nil
		}
	}
	t.fitLocked()
	return nil
}

func (t *TFIDF) fitLocked() {
	n := float64(len(t.docs))
	docFreq := make(map[string]int)
	tokensByDoc := make(map[int64][]string, len(t.docs))

	for id, text := range t.docs {
		toks := tokenize.Words(tokenize.Tokenize(text, true))
		tokensByDoc[id] = toks
		seen := make(map[string]bool)
		for _, tok := range toks {
			if !seen[tok] {
				seen[tok] = true
				docFreq[tok]++
			}
		}
	}

	idf := make(map[string]float64, len(docFreq))
	for term, df := range docFreq {
		idf[term] = math.Log(n / (1 + float64(df)))
	}

	vectors := make(map[int64]map[string]float64, len(tokensByDoc))
	for id, toks := range tokensByDoc {
		tf := make(map[string]float64)
		for _, tok := range toks {
			tf[tok]++
		}
		vec := make(map[string]float64, len(tf))
		for term, freq := range tf {
			vec[term] = (freq / float64(len(toks))) * idf[term]
		}
		vectors[id] = vec
	}

	t.idf = idf
	t.vectors = vectors
	t.fitCount = len(t.docs)
}

func cosine(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for term, wa := range a {
		dot += wa * b[term]
		normA += wa * wa
	}
	for _, wb := range b {
		normB += wb * wb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Search vectorizes text the same way as Index and returns the k nearest
// documents by cosine similarity, normalized into [0,1].
func (t *TFIDF) Search(text string, k int) ([]Scored, error) {
	t.mu.Lock()
	if err := t.rebuildIfStaleLocked(); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	idf := t.idf
	vectors := t.vectors
	t.mu.Unlock()

	toks := tokenize.Words(tokenize.Tokenize(text, true))
	tf := make(map[string]float64)
	for _, tok := range toks {
		tf[tok]++
	}
	query := make(map[string]float64, len(tf))
	for term, freq := range tf {
		query[term] = (freq / float64(len(toks))) * idf[term]
	}

	out := make([]Scored, 0, len(vectors))
	for id, vec := range vectors {
		sim := cosine(query, vec)
		// cosine is in [-1,1]; normalize into [0,1].
		out = append(out, Scored{ID: id, Score: (sim + 1) / 2})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}
