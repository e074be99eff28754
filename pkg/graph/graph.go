// Package graph builds the knowledge graph: TF-IDF entity extraction,
// cosine-threshold edge construction, and deterministic, depth-bounded
// hierarchical community detection over the shared database handle.
package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/liliang-cn/memex/pkg/tokenize"
)

const (
	defaultEdgeThreshold  = 0.3
	similarThreshold      = 0.7
	maxEntitiesPerNode    = 20
	minEntityWeight       = 0.05
	maxSharedEntities     = 10
	subdivideMemberCount  = 30
	maxClusterDepth       = 3
	sampleCap             = 10000
)

var dependencyLexemes = []string{"requires", "depends on", "needs"}

// Entity is a weighted keyword extracted from a memory's content.
type Entity struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// Edge is a weighted relationship between two memories.
type Edge struct {
	SourceID       int64
	TargetID       int64
	Weight         float64
	Kind           string
	SharedEntities []string
}

// Stats summarizes the current graph for a profile.
type Stats struct {
	NodeCount      int
	EdgeCount      int
	ClusterCount   int
	AvgEdgeWeight  float64
	TopLevelDepth0 int
}

// ClusterSummary is the structured description returned by cluster_summary.
type ClusterSummary struct {
	ID             int64
	Name           string
	TopEntities    []string
	TopTags        []string
	TimeSpanStart  time.Time
	TimeSpanEnd    time.Time
	Excerpt        string
	MemberCount    int
	AvgImportance  float64
}

// Engine owns the graph tables for all profiles; it talks directly to the
// shared *sql.DB rather than through the store's write queue, since full
// rebuilds are bulk operations with their own transactional rhythm.
type Engine struct {
	db *sql.DB

	mu           sync.Mutex
	pendingEdges int
}

// New wraps an existing database handle (typically store.Store.DB()).
func New(db *sql.DB) *Engine {
	return &Engine{db: db}
}

type memoryRow struct {
	id         int64
	content    string
	tags       []string
	importance int
	createdAt  time.Time
}

func (g *Engine) loadMemories(ctx context.Context, profile string) ([]memoryRow, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT id, content, tags_json, importance, created_at FROM memories WHERE profile = ? ORDER BY id`,
		profile)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memoryRow
	for rows.Next() {
		var m memoryRow
		var tagsJSON string
		var createdAt string
		if err := rows.Scan(&m.id, &m.content, &tagsJSON, &m.importance, &createdAt); err != nil {
			return nil, err
		}
		if tagsJSON != "" {
			_ = json.Unmarshal([]byte(tagsJSON), &m.tags)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			m.createdAt = t
		} else if t, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			m.createdAt = t
		}
		out = append(out, m)
	}
	if len(out) > sampleCap {
		out = out[:sampleCap]
	}
	return out, rows.Err()
}

func containsDependencyLexeme(content string) bool {
	lower := strings.ToLower(content)
	for _, lex := range dependencyLexemes {
		if strings.Contains(lower, lex) {
			return true
		}
	}
	return false
}

func classifyKind(sim float64, aContent, bContent string) string {
	if sim > similarThreshold {
		return "similar"
	}
	if containsDependencyLexeme(aContent) || containsDependencyLexeme(bContent) {
		return "depends-on"
	}
	return "related-to"
}

func tokensOf(content string) []string {
	return tokenize.Words(tokenize.Tokenize(content, true))
}
