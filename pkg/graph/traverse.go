package graph

import (
	"context"
	"database/sql"
)

// Related performs a breadth-first expansion from memoryID up to maxHops
// over the undirected edge set, returning neighbor IDs in BFS order. Used
// by Memex.GraphRelated.
func (g *Engine) Related(ctx context.Context, profile string, memoryID int64, maxHops int) ([]int64, error) {
	if maxHops <= 0 {
		maxHops = 1
	}
	edges, err := g.loadEdgesForProfile(ctx, profile)
	if err != nil {
		return nil, err
	}

	adj := make(map[int64][]Edge, len(edges))
	for _, e := range edges {
		adj[e.SourceID] = append(adj[e.SourceID], e)
		adj[e.TargetID] = append(adj[e.TargetID], Edge{SourceID: e.TargetID, TargetID: e.SourceID, Weight: e.Weight, Kind: e.Kind})
	}

	visited := map[int64]bool{memoryID: true}
	frontier := []int64{memoryID}
	var result []int64

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []int64
		for _, node := range frontier {
			for _, e := range adj[node] {
				if !visited[e.TargetID] {
					visited[e.TargetID] = true
					next = append(next, e.TargetID)
					result = append(result, e.TargetID)
				}
			}
		}
		frontier = next
	}
	return result, nil
}

// RelatedWeighted returns the 1-hop neighbors of memoryID along with the
// edge weight connecting them, used directly by the graph-expansion
// fusion strategy to rank expansion candidates by neighbor-count x
// avg-edge-weight.
func (g *Engine) RelatedWeighted(ctx context.Context, profile string, memoryID int64) (map[int64]float64, error) {
	edges, err := g.loadEdgesForProfile(ctx, profile)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]float64)
	for _, e := range edges {
		if e.SourceID == memoryID {
			out[e.TargetID] = e.Weight
		} else if e.TargetID == memoryID {
			out[e.SourceID] = e.Weight
		}
	}
	return out, nil
}

// ClusterOf returns the (leaf, i.e. deepest-assigned) cluster ID a memory
// belongs to, or nil if it isn't a member of any cluster. Used by Hybrid
// Fusion to annotate result items with cluster-id.
func (g *Engine) ClusterOf(ctx context.Context, memoryID int64) (*int64, error) {
	row := g.db.QueryRowContext(ctx,
		`SELECT cluster_id FROM cluster_members WHERE memory_id = ? ORDER BY cluster_id DESC LIMIT 1`,
		memoryID)
	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}
