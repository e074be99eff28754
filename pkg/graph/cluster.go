package graph

import (
	"context"
	"database/sql"
	"sort"
	"strings"
)

// localMove runs a single greedy Louvain-style pass: each node, visited
// in a fixed ascending-ID order so results are reproducible without any
// randomness to seed, moves into whichever neighboring community
// maximizes its connection weight. It is the building block the
// hierarchical subdivision recurses on.
func localMove(ids []int64, adj map[int64]map[int64]float64) map[int64]int64 {
	community := make(map[int64]int64, len(ids))
	for _, id := range ids {
		community[id] = id
	}

	changed := true
	for pass := 0; changed && pass < 100; pass++ {
		changed = false
		for _, id := range ids {
			current := community[id]
			commWeight := make(map[int64]float64)
			for neighbor, weight := range adj[id] {
				commWeight[community[neighbor]] += weight
			}
			// Move only when strictly better than staying; equal-weight
			// ties break toward the lower community id so passes are
			// reproducible regardless of map iteration order.
			best := current
			bestWeight := commWeight[current]
			for comm, weight := range commWeight {
				if weight > bestWeight || (weight == bestWeight && comm < best) {
					bestWeight = weight
					best = comm
				}
			}
			if best != current {
				community[id] = best
				changed = true
			}
		}
	}
	return community
}

func buildAdjacency(ids []int64, edges []Edge) map[int64]map[int64]float64 {
	adj := make(map[int64]map[int64]float64, len(ids))
	for _, id := range ids {
		adj[id] = make(map[int64]float64)
	}
	for _, e := range edges {
		if adj[e.SourceID] == nil || adj[e.TargetID] == nil {
			continue
		}
		adj[e.SourceID][e.TargetID] += e.Weight
		adj[e.TargetID][e.SourceID] += e.Weight
	}
	return adj
}

// groupByCommunity converts a node->community assignment into ordered
// member groups, isolated nodes becoming singleton clusters.
func groupByCommunity(ids []int64, community map[int64]int64) [][]int64 {
	groups := make(map[int64][]int64)
	for _, id := range ids {
		c := community[id]
		groups[c] = append(groups[c], id)
	}
	var keys []int64
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([][]int64, 0, len(keys))
	for _, k := range keys {
		members := groups[k]
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		out = append(out, members)
	}
	return out
}

type clusterInput struct {
	ids      []int64
	edges    []Edge
	memories map[int64]*memoryRow
	entities map[int64][]Entity
}

// rebuildClusters runs community detection over the full profile graph
// and recursively subdivides any cluster with at least
// subdivideMemberCount members while depth < maxClusterDepth.
func (g *Engine) rebuildClusters(ctx context.Context, profile string, ids []int64, edges []Edge, memories []memoryRow) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM graph_clusters WHERE profile = ?`, profile); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	byID := make(map[int64]*memoryRow, len(memories))
	for i := range memories {
		byID[memories[i].id] = &memories[i]
	}

	entities, err := g.loadEntitiesForIDs(ctx, ids)
	if err != nil {
		return err
	}

	in := clusterInput{ids: ids, edges: edges, memories: byID, entities: entities}
	return g.subdivide(ctx, profile, in, nil, 0)
}

func filterEdges(ids map[int64]bool, edges []Edge) []Edge {
	var out []Edge
	for _, e := range edges {
		if ids[e.SourceID] && ids[e.TargetID] {
			out = append(out, e)
		}
	}
	return out
}

func (g *Engine) subdivide(ctx context.Context, profile string, in clusterInput, parentID *int64, depth int) error {
	adj := buildAdjacency(in.ids, in.edges)
	community := localMove(in.ids, adj)
	groups := groupByCommunity(in.ids, community)

	for _, members := range groups {
		name, topEntities := clusterName(members, in.entities)
		avgImportance := avgImportanceOf(members, in.memories)

		clusterID, err := g.insertCluster(ctx, profile, name, members, avgImportance, parentID, depth)
		if err != nil {
			return err
		}
		if err := g.insertMembers(ctx, clusterID, members); err != nil {
			return err
		}

		if len(members) >= subdivideMemberCount && depth < maxClusterDepth {
			memberSet := make(map[int64]bool, len(members))
			for _, id := range members {
				memberSet[id] = true
			}
			sub := clusterInput{
				ids:      members,
				edges:    filterEdges(memberSet, in.edges),
				memories: in.memories,
				entities: in.entities,
			}
			pid := clusterID
			if err := g.subdivide(ctx, profile, sub, &pid, depth+1); err != nil {
				return err
			}
		}
		_ = topEntities
	}
	return nil
}

// clusterName aggregates entity frequency across members and joins the
// top 2-3 shared entities with " & ".
func clusterName(members []int64, entities map[int64][]Entity) (string, []string) {
	freq := make(map[string]float64)
	for _, id := range members {
		for _, e := range entities[id] {
			freq[e.Term] += e.Weight
		}
	}
	type scored struct {
		term  string
		score float64
	}
	var top []scored
	for term, score := range freq {
		top = append(top, scored{term, score})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].score != top[j].score {
			return top[i].score > top[j].score
		}
		return top[i].term < top[j].term
	})
	n := 3
	if len(top) < n {
		n = len(top)
	}
	var names []string
	for i := 0; i < n; i++ {
		names = append(names, top[i].term)
	}
	if len(names) == 0 {
		return "unnamed cluster", nil
	}
	return strings.Join(names, " & "), names
}

func avgImportanceOf(members []int64, memories map[int64]*memoryRow) float64 {
	if len(members) == 0 {
		return 0
	}
	var sum float64
	for _, id := range members {
		if m, ok := memories[id]; ok {
			sum += float64(m.importance)
		}
	}
	return sum / float64(len(members))
}

func (g *Engine) insertCluster(ctx context.Context, profile, name string, members []int64, avgImportance float64, parentID *int64, depth int) (int64, error) {
	res, err := g.db.ExecContext(ctx, `
		INSERT INTO graph_clusters (profile, name, description, member_count, avg_importance, parent_cluster_id, depth)
		VALUES (?, ?, '', ?, ?, ?, ?)
	`, profile, name, len(members), avgImportance, nullableID(parentID), depth)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func (g *Engine) insertMembers(ctx context.Context, clusterID int64, members []int64) error {
	for _, memberID := range members {
		if _, err := g.db.ExecContext(ctx,
			`INSERT INTO cluster_members (cluster_id, memory_id) VALUES (?, ?)`,
			clusterID, memberID); err != nil {
			return err
		}
	}
	return nil
}

func (g *Engine) loadEntitiesForIDs(ctx context.Context, ids []int64) (map[int64][]Entity, error) {
	out := make(map[int64][]Entity, len(ids))
	rows, err := g.db.QueryContext(ctx, `SELECT memory_id, entities_json FROM graph_nodes WHERE memory_id IN (`+placeholders(len(ids))+`)`, toArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var entitiesJSON string
		if err := rows.Scan(&id, &entitiesJSON); err != nil {
			return nil, err
		}
		var entities []Entity
		_ = jsonUnmarshal(entitiesJSON, &entities)
		out[id] = entities
	}
	return out, rows.Err()
}

// ClusterMembers returns the memory IDs belonging to a cluster.
func (g *Engine) ClusterMembers(ctx context.Context, clusterID int64) ([]int64, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT memory_id FROM cluster_members WHERE cluster_id = ? ORDER BY memory_id`, clusterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClusterSummary builds the structured description for a cluster: top
// entities, top tags, time span, and a representative excerpt.
func (g *Engine) ClusterSummary(ctx context.Context, clusterID int64) (*ClusterSummary, error) {
	var name string
	var memberCount int
	var avgImportance float64
	row := g.db.QueryRowContext(ctx,
		`SELECT name, member_count, avg_importance FROM graph_clusters WHERE id = ?`, clusterID)
	if err := row.Scan(&name, &memberCount, &avgImportance); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrClusterNotFound
		}
		return nil, err
	}

	members, err := g.ClusterMembers(ctx, clusterID)
	if err != nil || len(members) == 0 {
		return &ClusterSummary{ID: clusterID, Name: name, MemberCount: memberCount, AvgImportance: avgImportance}, err
	}

	entities, err := g.loadEntitiesForIDs(ctx, members)
	if err != nil {
		return nil, err
	}
	_, topEntities := clusterName(members, entities)

	rows, err := g.db.QueryContext(ctx,
		`SELECT tags_json, content, created_at, importance FROM memories WHERE id IN (`+placeholders(len(members))+`)`,
		toArgs(members)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tagFreq := make(map[string]int)
	var bestExcerpt string
	var bestImportance = -1
	var minTime, maxTime string
	for rows.Next() {
		var tagsJSON, content, createdAt string
		var importance int
		if err := rows.Scan(&tagsJSON, &content, &createdAt, &importance); err != nil {
			return nil, err
		}
		var tags []string
		_ = jsonUnmarshal(tagsJSON, &tags)
		for _, t := range tags {
			tagFreq[t]++
		}
		if importance > bestImportance {
			bestImportance = importance
			bestExcerpt = excerptOf(content)
		}
		if minTime == "" || createdAt < minTime {
			minTime = createdAt
		}
		if maxTime == "" || createdAt > maxTime {
			maxTime = createdAt
		}
	}

	var topTags []string
	type tagScored struct {
		tag   string
		count int
	}
	var scoredTags []tagScored
	for t, c := range tagFreq {
		scoredTags = append(scoredTags, tagScored{t, c})
	}
	sort.Slice(scoredTags, func(i, j int) bool {
		if scoredTags[i].count != scoredTags[j].count {
			return scoredTags[i].count > scoredTags[j].count
		}
		return scoredTags[i].tag < scoredTags[j].tag
	})
	for i := 0; i < len(scoredTags) && i < 5; i++ {
		topTags = append(topTags, scoredTags[i].tag)
	}

	start, _ := parseAnyTime(minTime)
	end, _ := parseAnyTime(maxTime)

	return &ClusterSummary{
		ID:            clusterID,
		Name:          name,
		TopEntities:   topEntities,
		TopTags:       topTags,
		TimeSpanStart: start,
		TimeSpanEnd:   end,
		Excerpt:       bestExcerpt,
		MemberCount:   memberCount,
		AvgImportance: avgImportance,
	}, nil
}

func excerptOf(content string) string {
	const maxLen = 240
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "..."
}
