package memex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/liliang-cn/memex/pkg/fusion"
	"github.com/liliang-cn/memex/pkg/pattern"
	"github.com/liliang-cn/memex/pkg/store"
)

func openTest(t *testing.T, cfg *Config) *Memex {
	t.Helper()
	m, err := Open(context.Background(), Options{RootDir: t.TempDir(), Config: cfg})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestInsertAndRecall(t *testing.T) {
	ctx := context.Background()
	m := openTest(t, nil)

	id1, err := m.Add(ctx, store.AddInput{Content: "Use React hooks for state"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	id2, err := m.Add(ctx, store.AddInput{Content: "Prefer PostgreSQL for relational data"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := m.Add(ctx, store.AddInput{Content: "Use Tailwind for styling"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := m.Search(ctx, "React", SearchOptions{Limit: 5, Method: fusion.StrategyBM25})
	if err != nil {
		t.Fatalf("Search bm25: %v", err)
	}
	if len(results) == 0 || results[0].ID != id1 {
		t.Fatalf("bm25 search: want memory %d at rank 1, got %+v", id1, results)
	}
	if results[0].Score <= 0 {
		t.Errorf("bm25 rank-1 score = %f, want > 0", results[0].Score)
	}

	results, err = m.Search(ctx, "relational data", SearchOptions{Limit: 5, Method: fusion.StrategyWeighted})
	if err != nil {
		t.Fatalf("Search hybrid: %v", err)
	}
	if len(results) == 0 || results[0].ID != id2 {
		t.Fatalf("hybrid search: want memory %d at rank 1, got %+v", id2, results)
	}
	if results[0].MatchOrigin != fusion.OriginHybrid {
		t.Errorf("match origin = %s, want hybrid", results[0].MatchOrigin)
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := openTest(t, nil)

	var original string
	for i := 0; i < 130; i++ {
		original += fmt.Sprintf("Observation %d: the migration scripts must run before the deploy. ", i)
	}
	id, err := m.Add(ctx, store.AddInput{Content: original, Importance: 5})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := m.Store().DB().Exec(
		`UPDATE memories SET created_at = datetime('now', '-100 days'), last_accessed = datetime('now', '-100 days') WHERE id = ?`, id); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	res, err := m.Compress(ctx)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if res.ToTier2 != 1 {
		t.Fatalf("ToTier2 = %d, want 1", res.ToTier2)
	}

	tier := store.TierSummary
	ms, err := m.List(ctx, store.ListFilters{Tier: &tier})
	if err != nil || len(ms) != 1 {
		t.Fatalf("List tier2: err=%v rows=%d", err, len(ms))
	}
	if len(ms[0].Summary) == 0 || len(ms[0].Summary) > 1000 {
		t.Errorf("summary length = %d, want in (0, 1000]", len(ms[0].Summary))
	}

	rec, err := m.Store().GetArchive(ctx, id)
	if err != nil {
		t.Fatalf("GetArchive: %v", err)
	}
	if rec.FullContent != original {
		t.Error("archive does not hold the original content byte-for-byte")
	}

	if err := m.Restore(ctx, id); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	restored, err := m.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after restore: %v", err)
	}
	if restored.Tier != store.TierFull {
		t.Errorf("tier after restore = %d, want 1", restored.Tier)
	}
	if restored.Content != original {
		t.Error("restored content differs from the original")
	}
}

// clusterShape captures cluster membership independent of auto-assigned
// cluster ids, which change across rebuilds.
func clusterShape(t *testing.T, m *Memex) map[string][]int64 {
	t.Helper()
	rows, err := m.Store().DB().Query(`
		SELECT c.name, cm.memory_id
		FROM graph_clusters c
		JOIN cluster_members cm ON cm.cluster_id = c.id
		WHERE c.profile = ? AND c.depth = 0
		ORDER BY c.name, cm.memory_id
	`, m.ActiveProfile())
	if err != nil {
		t.Fatalf("cluster query: %v", err)
	}
	defer rows.Close()

	shape := make(map[string][]int64)
	for rows.Next() {
		var name string
		var id int64
		if err := rows.Scan(&name, &id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		shape[name] = append(shape[name], id)
	}
	return shape
}

func TestGraphBuildDeterminism(t *testing.T) {
	ctx := context.Background()
	m := openTest(t, nil)

	groups := map[string][]string{
		"auth": {
			"oauth token validates login session quickly",
			"oauth token validates login session safely",
			"oauth token validates login session nightly",
			"oauth token validates login session locally",
		},
		"frontend": {
			"react component renders props state cleanly",
			"react component renders props state lazily",
			"react component renders props state eagerly",
			"react component renders props state rarely",
		},
		"database": {
			"postgres index speeds query transactions remarkably",
			"postgres index speeds query transactions consistently",
			"postgres index speeds query transactions steadily",
			"postgres index speeds query transactions greatly",
		},
	}
	for _, contents := range groups {
		for _, c := range contents {
			if _, err := m.Add(ctx, store.AddInput{Content: c}); err != nil {
				t.Fatalf("Add: %v", err)
			}
		}
	}

	if err := m.GraphBuild(ctx, 0); err != nil {
		t.Fatalf("GraphBuild: %v", err)
	}
	first := clusterShape(t, m)
	stats, err := m.GraphStats(ctx)
	if err != nil {
		t.Fatalf("GraphStats: %v", err)
	}
	if stats.TopLevelDepth0 != 3 {
		t.Errorf("top-level clusters = %d, want 3 (%v)", stats.TopLevelDepth0, first)
	}
	if stats.EdgeCount == 0 {
		t.Error("expected intra-group edges")
	}

	if err := m.GraphBuild(ctx, 0); err != nil {
		t.Fatalf("second GraphBuild: %v", err)
	}
	second := clusterShape(t, m)

	if len(first) != len(second) {
		t.Fatalf("cluster count changed across rebuilds: %d vs %d", len(first), len(second))
	}
	for name, members := range first {
		got, ok := second[name]
		if !ok {
			t.Errorf("cluster %q missing after rebuild", name)
			continue
		}
		if len(got) != len(members) {
			t.Errorf("cluster %q members changed: %v vs %v", name, members, got)
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
		for i := range members {
			if members[i] != got[i] {
				t.Errorf("cluster %q members changed: %v vs %v", name, members, got)
				break
			}
		}
	}
}

func TestProfileIsolation(t *testing.T) {
	ctx := context.Background()
	m := openTest(t, nil)

	for _, name := range []string{"work", "personal"} {
		if _, err := m.ProfileCreate(ctx, name, ""); err != nil {
			t.Fatalf("ProfileCreate(%s): %v", name, err)
		}
	}

	if err := m.ProfileSwitch(ctx, "work"); err != nil {
		t.Fatalf("switch work: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := m.Add(ctx, store.AddInput{Content: fmt.Sprintf("work meeting notes sprint %d", i)}); err != nil {
			t.Fatalf("Add work: %v", err)
		}
	}
	if err := m.ProfileSwitch(ctx, "personal"); err != nil {
		t.Fatalf("switch personal: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := m.Add(ctx, store.AddInput{Content: fmt.Sprintf("personal recipe collection dish %d", i)}); err != nil {
			t.Fatalf("Add personal: %v", err)
		}
	}

	if err := m.ProfileSwitch(ctx, "work"); err != nil {
		t.Fatalf("switch back: %v", err)
	}
	ms, err := m.List(ctx, store.ListFilters{Limit: 100})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ms) != 5 {
		t.Fatalf("work list = %d memories, want 5", len(ms))
	}
	for _, mem := range ms {
		if mem.Profile != "work" {
			t.Errorf("memory %d has profile %q", mem.ID, mem.Profile)
		}
	}

	results, err := m.Search(ctx, "recipe", SearchOptions{Limit: 10, Method: fusion.StrategyBM25})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("work search leaked %d personal memories", len(results))
	}

	if err := m.ProfileSwitch(ctx, "personal"); err != nil {
		t.Fatalf("switch personal again: %v", err)
	}
	results, err = m.Search(ctx, "recipe", SearchOptions{Limit: 10, Method: fusion.StrategyBM25})
	if err != nil {
		t.Fatalf("Search personal: %v", err)
	}
	if len(results) == 0 {
		t.Error("personal search found nothing in its own corpus")
	}
}

func TestTrustAndRateGates(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.WritesPerMin = 2
	m := openTest(t, &cfg)

	untrusted := WithCaller(ctx, Caller{AgentID: "crawler", Trust: 0.1})
	if _, err := m.Add(untrusted, store.AddInput{Content: "should be denied"}); !errors.Is(err, ErrUntrusted) {
		t.Errorf("untrusted add: err = %v, want ErrUntrusted", err)
	}
	if err := m.Delete(untrusted, 1); !errors.Is(err, ErrUntrusted) {
		t.Errorf("untrusted delete: err = %v, want ErrUntrusted", err)
	}

	trusted := WithCaller(ctx, Caller{AgentID: "assistant", Trust: 0.9})
	for i := 0; i < 2; i++ {
		if _, err := m.Add(trusted, store.AddInput{Content: fmt.Sprintf("note %d", i)}); err != nil {
			t.Fatalf("trusted add %d: %v", i, err)
		}
	}
	_, err := m.Add(trusted, store.AddInput{Content: "over the limit"})
	if KindOf(err) != KindBusy {
		t.Errorf("rate-limited add: kind = %v, want KindBusy", KindOf(err))
	}

	// Local calls carry no caller and are never metered.
	if _, err := m.Add(ctx, store.AddInput{Content: "local add"}); err != nil {
		t.Errorf("local add: %v", err)
	}
}

func TestPatternConfidence(t *testing.T) {
	ctx := context.Background()
	m := openTest(t, nil)

	for i := 0; i < 7; i++ {
		if _, err := m.Add(ctx, store.AddInput{Content: fmt.Sprintf("Built the settings panel with react hooks, iteration %d", i)}); err != nil {
			t.Fatalf("Add react: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := m.Add(ctx, store.AddInput{Content: fmt.Sprintf("Tried the vue composition api on a side page %d", i)}); err != nil {
			t.Fatalf("Add vue: %v", err)
		}
	}

	if _, err := m.PatternsUpdate(ctx); err != nil {
		t.Fatalf("PatternsUpdate: %v", err)
	}
	patterns, err := m.Patterns(ctx, 0)
	if err != nil {
		t.Fatalf("Patterns: %v", err)
	}

	var found *pattern.Pattern
	for i := range patterns {
		p := &patterns[i]
		if p.Type == pattern.TypePreference && p.Category == "frontend_framework" {
			found = p
			break
		}
	}
	if found == nil {
		t.Fatalf("no frontend_framework preference pattern in %+v", patterns)
	}
	if found.Value != "React over Vue" {
		t.Errorf("Value = %q, want React over Vue", found.Value)
	}
	if found.EvidenceCount != 7 {
		t.Errorf("EvidenceCount = %d, want 7", found.EvidenceCount)
	}
	if found.Confidence < 0.6 || found.Confidence > 0.81 {
		t.Errorf("Confidence = %f, want in [0.6, 0.8]", found.Confidence)
	}

	text, err := m.IdentityContext(ctx, 0.5)
	if err != nil {
		t.Fatalf("IdentityContext: %v", err)
	}
	if text == "" {
		t.Error("identity context is empty")
	}
}

func TestEventsAreEmitted(t *testing.T) {
	ctx := context.Background()
	m := openTest(t, nil)

	events, cancel := m.Subscribe()
	defer cancel()

	id, err := m.Add(ctx, store.AddInput{Content: "event emission check"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != EventMemoryCreated {
			t.Errorf("event type = %s, want memory_created", ev.Type)
		}
		if ev.Payload["id"] != id {
			t.Errorf("event payload id = %v, want %d", ev.Payload["id"], id)
		}
		if ev.Profile != m.ActiveProfile() {
			t.Errorf("event profile = %q", ev.Profile)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestResetHardWipesAndSnapshots(t *testing.T) {
	ctx := context.Background()
	m := openTest(t, nil)

	if _, err := m.Add(ctx, store.AddInput{Content: "doomed memory"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.ResetHard(ctx); err != nil {
		t.Fatalf("ResetHard: %v", err)
	}

	status, err := m.ResetStatus(ctx)
	if err != nil {
		t.Fatalf("ResetStatus: %v", err)
	}
	if status.MemoryCount != 0 {
		t.Errorf("memory count after hard reset = %d, want 0", status.MemoryCount)
	}

	results, err := m.Search(ctx, "doomed", SearchOptions{Method: fusion.StrategyBM25})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Error("index still returns wiped memories")
	}
}

func TestErrorKindsAtBoundary(t *testing.T) {
	ctx := context.Background()
	m := openTest(t, nil)

	_, err := m.Get(ctx, 9999)
	if KindOf(err) != KindNotFound {
		t.Errorf("missing id: kind = %v, want KindNotFound", KindOf(err))
	}

	_, err = m.Add(ctx, store.AddInput{Content: "x", Importance: 42})
	if KindOf(err) != KindInvalidInput {
		t.Errorf("bad importance: kind = %v, want KindInvalidInput", KindOf(err))
	}

	_, err = m.ProfileCreate(ctx, "default", "")
	if KindOf(err) != KindConflict {
		t.Errorf("duplicate profile: kind = %v, want KindConflict", KindOf(err))
	}

	err = m.ProfileSwitch(ctx, "ghost")
	if KindOf(err) != KindNotFound {
		t.Errorf("missing profile: kind = %v, want KindNotFound", KindOf(err))
	}
}
