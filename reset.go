package memex

import (
	"context"
	"errors"
)

// Status is the snapshot returned by ResetStatus: table sizes, cache
// health and capability degradations for the active profile.
type Status struct {
	ActiveProfile  string `json:"active_profile"`
	MemoryCount    int    `json:"memory_count"`
	GraphNodes     int    `json:"graph_nodes"`
	GraphEdges     int    `json:"graph_edges"`
	Clusters       int    `json:"clusters"`
	Patterns       int    `json:"patterns"`
	CacheEntries   int    `json:"cache_entries"`
	CacheEvictions int64  `json:"cache_evictions"`
	VectorDegraded bool   `json:"vector_degraded"`
	GraphStale     bool   `json:"graph_stale"`
}

// ResetStatus reports current state without changing anything.
func (m *Memex) ResetStatus(ctx context.Context) (*Status, error) {
	if err := m.gateRead(ctx, "reset_status"); err != nil {
		return nil, err
	}
	prof := m.profiles.Active()

	count, err := m.store.CountMemories(ctx, prof)
	if err != nil {
		return nil, m.fail("reset_status", err)
	}
	gs, err := m.graph.Stats(ctx, prof)
	if err != nil {
		return nil, m.fail("reset_status", err)
	}
	patterns, err := m.patterns.Patterns(ctx, prof, 0)
	if err != nil {
		return nil, m.fail("reset_status", err)
	}
	if err := m.store.IntegrityCheck(ctx); err != nil {
		return nil, m.fail("reset_status", err)
	}

	return &Status{
		ActiveProfile:  prof,
		MemoryCount:    count,
		GraphNodes:     gs.NodeCount,
		GraphEdges:     gs.EdgeCount,
		Clusters:       gs.ClusterCount,
		Patterns:       len(patterns),
		CacheEntries:   m.cache.Len(),
		CacheEvictions: m.cache.Evictions(),
		VectorDegraded: m.vector.Degraded(),
		GraphStale:     m.graph.NeedsRebuild(),
	}, nil
}

// ResetSoft rebuilds every derived in-memory structure (BM25, vector,
// co-occurrence, cache) from the database. Stored data is untouched.
func (m *Memex) ResetSoft(ctx context.Context) error {
	if err := m.gateWrite(ctx, "reset_soft"); err != nil {
		return err
	}
	if err := m.reindex(ctx); err != nil {
		return m.fail("reset_soft", err)
	}
	return m.fail("reset_soft", m.vector.RebuildIfStale())
}

// ResetHard snapshots the database, wipes every row owned by the active
// profile, and rewarms the (now empty) indexes. The snapshot is the
// recovery path.
func (m *Memex) ResetHard(ctx context.Context) error {
	if err := m.gateWrite(ctx, "reset_hard"); err != nil {
		return err
	}
	if _, err := m.comp.Snapshot(ctx, "reset-hard"); err != nil {
		return m.fail("reset_hard", err)
	}
	if err := m.store.WipeProfile(ctx, m.profiles.Active()); err != nil {
		return m.fail("reset_hard", err)
	}
	return m.fail("reset_hard", m.reindex(ctx))
}

// ResetLayer rebuilds one derived layer: "graph", "index" (BM25 + vector
// + co-occurrence), or "patterns".
func (m *Memex) ResetLayer(ctx context.Context, layer string) error {
	if err := m.gateWrite(ctx, "reset_layer"); err != nil {
		return err
	}
	switch layer {
	case "graph":
		return m.GraphBuild(ctx, 0)
	case "index", "bm25", "vector":
		return m.fail("reset_layer", m.reindex(ctx))
	case "patterns":
		if err := m.patterns.Clear(ctx, m.profiles.Active()); err != nil {
			return m.fail("reset_layer", err)
		}
		_, err := m.PatternsUpdate(ctx)
		return err
	default:
		return Wrap(KindInvalidInput, "reset_layer", errors.New("unknown layer"))
	}
}
