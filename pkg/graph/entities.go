package graph

import (
	"context"
	"encoding/json"
	"math"
	"sort"
)

// extractEntities computes TF-IDF weighted entity lists across the given
// corpus, keeping the top maxEntitiesPerNode terms with weight above
// minEntityWeight per document.
func extractEntities(docs map[int64][]string) map[int64][]Entity {
	df := make(map[string]int)
	for _, tokens := range docs {
		seen := make(map[string]bool, len(tokens))
		for _, t := range tokens {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}
	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = math.Log(n / (1 + float64(count)))
	}

	out := make(map[int64][]Entity, len(docs))
	for id, tokens := range docs {
		tf := make(map[string]int)
		for _, t := range tokens {
			tf[t]++
		}
		total := float64(len(tokens))
		if total == 0 {
			out[id] = nil
			continue
		}
		var entities []Entity
		for term, count := range tf {
			w := (float64(count) / total) * idf[term]
			if w > minEntityWeight {
				entities = append(entities, Entity{Term: term, Weight: w})
			}
		}
		sort.Slice(entities, func(i, j int) bool {
			if entities[i].Weight != entities[j].Weight {
				return entities[i].Weight > entities[j].Weight
			}
			return entities[i].Term < entities[j].Term
		})
		if len(entities) > maxEntitiesPerNode {
			entities = entities[:maxEntitiesPerNode]
		}
		out[id] = entities
	}
	return out
}

func entityVector(entities []Entity) map[string]float64 {
	v := make(map[string]float64, len(entities))
	for _, e := range entities {
		v[e.Term] = e.Weight
	}
	return v
}

func cosine(a, b map[string]float64) float64 {
	var dot, na, nb float64
	for term, wa := range a {
		na += wa * wa
		if wb, ok := b[term]; ok {
			dot += wa * wb
		}
	}
	for _, wb := range b {
		nb += wb * wb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sharedEntities(a, b []Entity) []string {
	bSet := make(map[string]bool, len(b))
	for _, e := range b {
		bSet[e.Term] = true
	}
	var shared []string
	for _, e := range a {
		if bSet[e.Term] {
			shared = append(shared, e.Term)
		}
	}
	sort.Strings(shared)
	if len(shared) > maxSharedEntities {
		shared = shared[:maxSharedEntities]
	}
	return shared
}

// buildEdges computes all pairwise cosine similarities above threshold.
// O(n^2) over the profile's memory count; the sampleCap in loadMemories
// bounds this for very large profiles.
func buildEdges(ids []int64, contents map[int64]string, entities map[int64][]Entity, threshold float64) []Edge {
	vectors := make(map[int64]map[string]float64, len(entities))
	for id, ents := range entities {
		vectors[id] = entityVector(ents)
	}

	var edges []Edge
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := ids[i], ids[j]
			sim := cosine(vectors[a], vectors[b])
			if sim < threshold {
				continue
			}
			edges = append(edges, Edge{
				SourceID:       a,
				TargetID:       b,
				Weight:         sim,
				Kind:           classifyKind(sim, contents[a], contents[b]),
				SharedEntities: sharedEntities(entities[a], entities[b]),
			})
		}
	}
	return edges
}

func (g *Engine) writeNode(ctx context.Context, profile string, id int64, entities []Entity) error {
	if entities == nil {
		entities = []Entity{}
	}
	entitiesJSON, err := json.Marshal(entities)
	if err != nil {
		return err
	}
	_, err = g.db.ExecContext(ctx, `
		INSERT INTO graph_nodes (memory_id, profile, entities_json)
		VALUES (?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET
			entities_json = excluded.entities_json
	`, id, profile, string(entitiesJSON))
	return err
}

func (g *Engine) writeEdge(ctx context.Context, profile string, e Edge) error {
	sharedJSON, err := json.Marshal(e.SharedEntities)
	if err != nil {
		return err
	}
	_, err = g.db.ExecContext(ctx, `
		INSERT INTO graph_edges (source_id, target_id, profile, weight, kind, shared_entities_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id) DO UPDATE SET
			weight = excluded.weight,
			kind = excluded.kind,
			shared_entities_json = excluded.shared_entities_json
	`, e.SourceID, e.TargetID, profile, e.Weight, e.Kind, string(sharedJSON))
	return err
}

func (g *Engine) clearProfile(ctx context.Context, profile string) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM graph_edges WHERE profile = ?`, profile); err != nil {
		return err
	}
	if _, err := g.db.ExecContext(ctx, `DELETE FROM graph_nodes WHERE profile = ?`, profile); err != nil {
		return err
	}
	if _, err := g.db.ExecContext(ctx, `DELETE FROM graph_clusters WHERE profile = ?`, profile); err != nil {
		return err
	}
	return nil
}

// Build performs a full rebuild of the graph for profile: entity
// extraction, edge construction above minSim (0 uses the default
// threshold), and clustering.
func (g *Engine) Build(ctx context.Context, profile string, minSim float64) error {
	if minSim <= 0 {
		minSim = defaultEdgeThreshold
	}

	memories, err := g.loadMemories(ctx, profile)
	if err != nil {
		return err
	}

	docs := make(map[int64][]string, len(memories))
	contents := make(map[int64]string, len(memories))
	ids := make([]int64, 0, len(memories))
	for _, m := range memories {
		docs[m.id] = tokensOf(m.content)
		contents[m.id] = m.content
		ids = append(ids, m.id)
	}

	entities := extractEntities(docs)
	edges := buildEdges(ids, contents, entities, minSim)

	if err := g.clearProfile(ctx, profile); err != nil {
		return err
	}
	for _, id := range ids {
		if err := g.writeNode(ctx, profile, id, entities[id]); err != nil {
			return err
		}
	}
	for _, e := range edges {
		if err := g.writeEdge(ctx, profile, e); err != nil {
			return err
		}
	}

	if err := g.rebuildClusters(ctx, profile, ids, edges, memories); err != nil {
		return err
	}

	g.mu.Lock()
	g.pendingEdges = 0
	g.mu.Unlock()
	return nil
}

// Stats returns current graph size and density for a profile.
func (g *Engine) Stats(ctx context.Context, profile string) (*Stats, error) {
	s := &Stats{}
	row := g.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM graph_nodes WHERE profile = ?`, profile)
	if err := row.Scan(&s.NodeCount); err != nil {
		return nil, err
	}
	row = g.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(AVG(weight), 0) FROM graph_edges WHERE profile = ?`, profile)
	if err := row.Scan(&s.EdgeCount, &s.AvgEdgeWeight); err != nil {
		return nil, err
	}
	row = g.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM graph_clusters WHERE profile = ?`, profile)
	if err := row.Scan(&s.ClusterCount); err != nil {
		return nil, err
	}
	row = g.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM graph_clusters WHERE profile = ? AND depth = 0`, profile)
	if err := row.Scan(&s.TopLevelDepth0); err != nil {
		return nil, err
	}
	return s, nil
}

// loadEdgesForProfile fetches the full edge set, used by both clustering
// and related().
func (g *Engine) loadEdgesForProfile(ctx context.Context, profile string) ([]Edge, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT source_id, target_id, weight, kind FROM graph_edges WHERE profile = ?`, profile)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Weight, &e.Kind); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
