package graph

import (
	"context"
	"path/filepath"
	"testing"

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

var topics = map[string][]string{
	"auth": {
		"implement oauth login flow with jwt refresh tokens",
		"password reset requires email verification token",
		"session cookie needs secure flag and httponly",
		"oauth jwt tokens expire after one hour",
		"jwt refresh token rotation depends on oauth provider",
		"login failures should lock account after five attempts",
		"oauth scopes determine which jwt claims are issued",
		"password hashing uses bcrypt with a per-user salt",
		"jwt middleware validates signature on every request",
		"oauth login redirect needs a state parameter for csrf",
	},
	"frontend": {
		"react hooks replace class component lifecycle methods",
		"use memo to avoid expensive recompute in react render",
		"react state management with hooks and context api",
		"css grid layout for the react dashboard component",
		"react router handles client side navigation",
		"react hooks need a stable dependency array",
		"component re-render depends on react state changes",
		"react context api avoids prop drilling",
		"use effect hooks need cleanup functions",
		"react suspense needs a fallback component",
	},
	"database": {
		"postgres index on foreign key speeds up joins",
		"database migration needs a rollback script",
		"connection pool size depends on database load",
		"postgres vacuum reclaims dead tuple space",
		"database backup requires point in time recovery",
		"index scan versus sequential scan in postgres",
		"database schema migration needs a version table",
		"postgres replication depends on wal shipping",
		"database query plan shows index usage",
		"postgres connection pool needs a timeout setting",
	},
}

func seedTopics(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	for _, contents := range topics {
		for _, c := range contents {
			if _, err := s.Add(ctx, "default", store.AddInput{Content: c}); err != nil {
				t.Fatalf("Add: %v", err)
			}
		}
	}
}

func TestBuildProducesTopLevelClustersPerTopic(t *testing.T) {
	s := newTestStore(t)
	seedTopics(t, s)

	g := New(s.DB())
	ctx := context.Background()
	if err := g.Build(ctx, "default", 0); err != nil {
		t.Fatalf("Build: %v", err)
	}

	stats, err := g.Stats(ctx, "default")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.NodeCount != 30 {
		t.Errorf("NodeCount = %d, want 30", stats.NodeCount)
	}
	if stats.TopLevelDepth0 == 0 {
		t.Errorf("expected at least one top-level cluster")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	s := newTestStore(t)
	seedTopics(t, s)

	g := New(s.DB())
	ctx := context.Background()

	if err := g.Build(ctx, "default", 0); err != nil {
		t.Fatalf("Build 1: %v", err)
	}
	stats1, err := g.Stats(ctx, "default")
	if err != nil {
		t.Fatalf("Stats 1: %v", err)
	}

	if err := g.Build(ctx, "default", 0); err != nil {
		t.Fatalf("Build 2: %v", err)
	}
	stats2, err := g.Stats(ctx, "default")
	if err != nil {
		t.Fatalf("Stats 2: %v", err)
	}

	if stats1.ClusterCount != stats2.ClusterCount || stats1.EdgeCount != stats2.EdgeCount {
		t.Errorf("rebuild not deterministic: %+v vs %+v", stats1, stats2)
	}
}

func TestRelatedExpandsOneHop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, _ := s.Add(ctx, "default", store.AddInput{Content: "oauth jwt login token refresh"})
	b, _ := s.Add(ctx, "default", store.AddInput{Content: "oauth jwt login token expiry"})
	_, _ = s.Add(ctx, "default", store.AddInput{Content: "react hooks state management component"})

	g := New(s.DB())
	if err := g.Build(ctx, "default", 0.2); err != nil {
		t.Fatalf("Build: %v", err)
	}

	related, err := g.Related(ctx, "default", a, 1)
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	found := false
	for _, id := range related {
		if id == b {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %d to be related to %d, got %v", b, a, related)
	}
}

func TestClusterSummaryReportsTopEntities(t *testing.T) {
	s := newTestStore(t)
	seedTopics(t, s)

	g := New(s.DB())
	ctx := context.Background()
	if err := g.Build(ctx, "default", 0); err != nil {
		t.Fatalf("Build: %v", err)
	}

	stats, err := g.Stats(ctx, "default")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ClusterCount == 0 {
		t.Fatal("expected at least one cluster")
	}

	rows, err := s.DB().QueryContext(ctx, `SELECT id FROM graph_clusters WHERE profile = ? LIMIT 1`, "default")
	if err != nil {
		t.Fatalf("query cluster id: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatal("no cluster rows")
	}
	var clusterID int64
	if err := rows.Scan(&clusterID); err != nil {
		t.Fatalf("scan: %v", err)
	}

	summary, err := g.ClusterSummary(ctx, clusterID)
	if err != nil {
		t.Fatalf("ClusterSummary: %v", err)
	}
	if len(summary.TopEntities) == 0 {
		t.Error("expected non-empty TopEntities")
	}
}
