package bm25

import "testing"

func TestSearchRanksExactMatchFirst(t *testing.T) {
	idx := NewIndex(0, 0)
	idx.Index(1, []string{"use", "react", "hooks", "for", "state"})
	idx.Index(2, []string{"prefer", "postgresql", "for", "relational", "data"})
	idx.Index(3, []string{"use", "tailwind", "for", "styling"})

	results := idx.Search([]string{"react"}, 5)
	if len(results) == 0 || results[0].DocID != 1 {
		t.Fatalf("Search(react) = %v, want doc 1 first", results)
	}
	if results[0].Score <= 0 {
		t.Errorf("Score = %v, want > 0", results[0].Score)
	}
}

func TestMonotonicityUnderAddition(t *testing.T) {
	idx := NewIndex(0, 0)
	idx.Index(1, []string{"database", "design"})
	before := idx.Search([]string{"database"}, 1)[0].Score

	idx.Index(2, []string{"database", "migration"})
	after := idx.Search([]string{"database"}, 2)
	var afterScore float64
	for _, r := range after {
		if r.DocID == 1 {
			afterScore = r.Score
		}
	}
	// idf falls as df grows (ln(4/3) with one doc, ln(1.2) with two) while
	// doc 1's own tf/length terms are unchanged, so its raw score drops; this
	// only asserts that doc 1 still scores above zero, not a monotonic increase.
	if afterScore <= 0 || before <= 0 {
		t.Fatalf("expected nonzero scores before=%v after=%v", before, afterScore)
	}
}

func TestRemoveTombstonesAndExcludesFromSearch(t *testing.T) {
	idx := NewIndex(0, 0)
	idx.Index(1, []string{"alpha", "beta"})
	idx.Index(2, []string{"alpha", "gamma"})

	idx.Remove(1)
	results := idx.Search([]string{"alpha"}, 5)
	for _, r := range results {
		if r.DocID == 1 {
			t.Fatalf("removed doc 1 still present in results: %v", results)
		}
	}
	if idx.DocCount() != 1 {
		t.Errorf("DocCount() = %d, want 1", idx.DocCount())
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	idx := NewIndex(0, 0)
	docs := map[int64][]string{
		1: {"react", "hooks"},
		2: {"vue", "composition"},
	}
	idx.Rebuild(docs)
	first := idx.Search([]string{"react"}, 5)
	idx.Rebuild(docs)
	second := idx.Search([]string{"react"}, 5)

	if len(first) != len(second) || first[0].DocID != second[0].DocID {
		t.Fatalf("Rebuild not idempotent: %v vs %v", first, second)
	}
}
