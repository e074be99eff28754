package vectorindex

import "testing"

func TestTFIDFSearchRanksSimilarDocFirst(t *testing.T) {
	idx := NewTFIDF()
	idx.Index(1, "Use React hooks for state management")
	idx.Index(2, "Prefer PostgreSQL for relational data storage")
	idx.Index(3, "React components and hooks patterns")

	results, err := idx.Search("React hooks", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	for _, r := range results {
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("score %v not normalized to [0,1]", r.Score)
		}
	}
	if results[0].ID != 1 && results[0].ID != 3 {
		t.Errorf("top result = %d, want 1 or 3 (the React docs)", results[0].ID)
	}
}

func TestANNUnavailableDegradesGracefully(t *testing.T) {
	ann := NewANN(nil, DefaultHNSWConfig())
	if ann.Available() {
		t.Fatal("expected unavailable with nil embed func")
	}
	if err := ann.Index(1, "text"); err != nil {
		t.Errorf("Index on unavailable backend should be a no-op, got %v", err)
	}
	results, err := ann.Search("text", 5)
	if err != nil || results != nil {
		t.Errorf("Search on unavailable backend = (%v, %v), want (nil, nil)", results, err)
	}
}

func TestEngineFallsBackToTFIDF(t *testing.T) {
	eng := NewEngine(NewANN(nil, DefaultHNSWConfig()), NewTFIDF())
	if !eng.Degraded() {
		t.Error("expected Degraded() true when ANN has no embed function")
	}
	if err := eng.Index(1, "Use React hooks"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	results, err := eng.Search("React", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result via TF-IDF fallback, got %d", len(results))
	}
}
