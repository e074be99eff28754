package fusion

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/liliang-cn/memex/pkg/cache"
	"github.com/liliang-cn/memex/pkg/graph"
	"github.com/liliang-cn/memex/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "memory.db")
	s, err := store.New(context.Background(), store.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestSearchBM25StrategyRanksExactMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, "default", store.AddInput{Content: "react hooks for state management"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err = s.Add(ctx, "default", store.AddInput{Content: "postgres database migration tooling"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	e := New(s, nil, nil, nil, nil)
	results, err := e.Search(ctx, "default", "react hooks", Options{Method: StrategyBM25, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].MatchOrigin != OriginBM25 {
		t.Errorf("MatchOrigin = %q, want bm25", results[0].MatchOrigin)
	}
}

func TestSearchWeightedCombinesChannels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, "default", store.AddInput{Content: "react hooks for state management in components"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	g := graph.New(s.DB())
	if err := g.Build(ctx, "default", 0.1); err != nil {
		t.Fatalf("graph Build: %v", err)
	}

	e := New(s, nil, nil, g, nil)
	results, err := e.Search(ctx, "default", "react hooks", Options{Method: StrategyWeighted, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	found := false
	for _, r := range results {
		if r.ID == id {
			found = true
			if r.MatchOrigin != OriginHybrid {
				t.Errorf("MatchOrigin = %q, want hybrid", r.MatchOrigin)
			}
		}
	}
	if !found {
		t.Errorf("expected memory %d in weighted results", id)
	}
}

func TestContentPreviewTruncatesLongContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	long := make([]byte, 6000)
	for i := range long {
		long[i] = 'a'
	}
	_, err := s.Add(ctx, "default", store.AddInput{Content: string(long) + " react hooks"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	e := New(s, nil, nil, nil, nil)
	results, err := e.Search(ctx, "default", "react hooks", Options{Method: StrategyBM25, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected a result")
	}
	if len(results[0].ContentPreview) != previewLen {
		t.Errorf("ContentPreview len = %d, want %d", len(results[0].ContentPreview), previewLen)
	}
}

func TestSearchCachesResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Add(ctx, "default", store.AddInput{Content: "react hooks for state"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	c := cache.New(10, time.Minute)
	e := New(s, nil, nil, nil, c)

	r1, err := e.Search(ctx, "default", "react hooks", Options{Method: StrategyBM25, Limit: 10})
	if err != nil {
		t.Fatalf("Search 1: %v", err)
	}
	r2, err := e.Search(ctx, "default", "react hooks", Options{Method: StrategyBM25, Limit: 10})
	if err != nil {
		t.Fatalf("Search 2: %v", err)
	}
	if len(r1) != len(r2) {
		t.Errorf("cached result length mismatch: %d vs %d", len(r1), len(r2))
	}
}
