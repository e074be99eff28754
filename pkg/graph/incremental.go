package graph

import (
	"context"
	"sort"
)

// rebuildEdgeThreshold is how many incrementally created edges accumulate
// before a full re-clustering pass is due.
const rebuildEdgeThreshold = 5

// UpdateIncremental indexes one newly added memory without a full rebuild:
// it recomputes the memory's entity set against the current corpus, writes
// edges above the threshold to existing nodes, and attaches the memory to
// whichever existing cluster its new neighbors connect it to most
// strongly. Returns the number of edges created; callers consult
// NeedsRebuild afterwards to decide whether to run a full Build.
func (g *Engine) UpdateIncremental(ctx context.Context, profile string, memoryID int64) (int, error) {
	memories, err := g.loadMemories(ctx, profile)
	if err != nil {
		return 0, err
	}

	docs := make(map[int64][]string, len(memories))
	contents := make(map[int64]string, len(memories))
	found := false
	for _, m := range memories {
		docs[m.id] = tokensOf(m.content)
		contents[m.id] = m.content
		if m.id == memoryID {
			found = true
		}
	}
	if !found {
		return 0, nil
	}

	entities := extractEntities(docs)
	if err := g.writeNode(ctx, profile, memoryID, entities[memoryID]); err != nil {
		return 0, err
	}

	newVec := entityVector(entities[memoryID])
	neighborWeight := make(map[int64]float64)
	created := 0
	for _, m := range memories {
		if m.id == memoryID {
			continue
		}
		sim := cosine(newVec, entityVector(entities[m.id]))
		if sim < defaultEdgeThreshold {
			continue
		}
		src, dst := m.id, memoryID
		if src > dst {
			src, dst = dst, src
		}
		e := Edge{
			SourceID:       src,
			TargetID:       dst,
			Weight:         sim,
			Kind:           classifyKind(sim, contents[m.id], contents[memoryID]),
			SharedEntities: sharedEntities(entities[m.id], entities[memoryID]),
		}
		if err := g.writeEdge(ctx, profile, e); err != nil {
			return created, err
		}
		neighborWeight[m.id] = sim
		created++
	}

	if created > 0 {
		if err := g.attachToCluster(ctx, memoryID, neighborWeight); err != nil {
			return created, err
		}
	}

	g.mu.Lock()
	g.pendingEdges += created
	g.mu.Unlock()
	return created, nil
}

// attachToCluster joins memoryID to the existing cluster carrying the
// largest total edge weight from its new neighbors. Ties break toward the
// lower cluster id so repeated runs stay deterministic.
func (g *Engine) attachToCluster(ctx context.Context, memoryID int64, neighbors map[int64]float64) error {
	weightByCluster := make(map[int64]float64)
	for nid, w := range neighbors {
		cid, err := g.ClusterOf(ctx, nid)
		if err != nil {
			return err
		}
		if cid != nil {
			weightByCluster[*cid] += w
		}
	}
	if len(weightByCluster) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(weightByCluster))
	for id := range weightByCluster {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	best := ids[0]
	for _, id := range ids[1:] {
		if weightByCluster[id] > weightByCluster[best] {
			best = id
		}
	}

	if _, err := g.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO cluster_members (cluster_id, memory_id) VALUES (?, ?)`,
		best, memoryID); err != nil {
		return err
	}
	_, err := g.db.ExecContext(ctx, `
		UPDATE graph_clusters
		SET member_count = (SELECT COUNT(*) FROM cluster_members WHERE cluster_id = ?)
		WHERE id = ?
	`, best, best)
	return err
}

// NeedsRebuild reports whether enough edges accumulated incrementally to
// warrant a full re-clustering pass.
func (g *Engine) NeedsRebuild() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pendingEdges >= rebuildEdgeThreshold
}
