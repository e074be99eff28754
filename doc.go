// Package memex is an embedded personal memory engine: it stores short
// text memories in a single SQLite database, indexes them for hybrid
// BM25/vector/graph retrieval, discovers latent structure (entity graph,
// clusters, learned preferences), compresses aging memories through
// progressive tiers, and partitions everything by switchable profiles.
//
// The root package is the orchestrating façade; open an engine rooted at
// a directory and every component is wired behind it:
//
//	m, err := memex.Open(ctx, memex.Options{RootDir: dir})
//	if err != nil { ... }
//	defer m.Close()
//
//	id, _ := m.Add(ctx, store.AddInput{Content: "Prefer table-driven tests"})
//	results, _ := m.Search(ctx, "tests", memex.SearchOptions{Limit: 5})
//
// Front-ends (MCP servers, dashboards, chat adapters) consume this API
// and the event channel returned by Subscribe; the engine itself performs
// no network I/O.
package memex
