// Package fusion implements hybrid search: weighted and reciprocal-rank
// fusion of BM25, semantic, and graph-expansion result sets, with
// cache-first lookup and concurrent strategy fan-out.
package fusion

import (
	"context"
	"sort"

	"github.com/liliang-cn/memex/pkg/bm25"
	"github.com/liliang-cn/memex/pkg/cache"
	"github.com/liliang-cn/memex/pkg/store"
	"github.com/liliang-cn/memex/pkg/tokenize"
	"github.com/liliang-cn/memex/pkg/vectorindex"
	"golang.org/x/sync/errgroup"
)

// Strategy names the retrieval method requested by a caller.
type Strategy string

const (
	StrategyBM25     Strategy = "bm25"
	StrategySemantic Strategy = "semantic"
	StrategyGraph    Strategy = "graph"
	StrategyWeighted Strategy = "weighted"
	StrategyRRF      Strategy = "rrf"
)

// MatchOrigin is the provenance tag carried on each returned item.
type MatchOrigin string

const (
	OriginBM25     MatchOrigin = "bm25"
	OriginSemantic MatchOrigin = "semantic"
	OriginGraph    MatchOrigin = "graph"
	OriginHybrid   MatchOrigin = "hybrid"
)

// rrfK is the standard RRF constant (Cormack et al., 2009).
const rrfK = 60

// previewThreshold/previewLen control result previews:
// truncate content preview at previewLen when the full content is at
// least previewThreshold bytes.
const (
	previewThreshold = 5000
	previewLen       = 2000
)

// Weights controls weighted-fusion strategy contributions.
type Weights struct {
	BM25     float64
	Semantic float64
	Graph    float64
}

// DefaultWeights returns the documented default blend.
func DefaultWeights() Weights {
	return Weights{BM25: 0.4, Semantic: 0.3, Graph: 0.3}
}

// ScoredMemory is a single fused result.
type ScoredMemory struct {
	ID             int64
	ContentPreview string
	Tags           []string
	Score          float64
	MatchOrigin    MatchOrigin
	ClusterID      *int64
}

// GraphExpander is the subset of pkg/graph.Engine fusion depends on.
type GraphExpander interface {
	RelatedWeighted(ctx context.Context, profile string, memoryID int64) (map[int64]float64, error)
	ClusterOf(ctx context.Context, memoryID int64) (*int64, error)
}

// Options controls a single Search call.
type Options struct {
	Limit   int
	Method  Strategy
	Weights Weights // used only by StrategyWeighted
	Full    bool    // disables preview truncation
}

// Engine wires the BM25 index, vector index, graph engine, and store
// together behind the public search contract, consulting the cache
// before running any strategy.
type Engine struct {
	store  *store.Store
	bm25   *bm25.Index
	vector *vectorindex.Engine
	graph  GraphExpander
	cache  *cache.Cache
}

// New wires a fusion engine. cache may be nil to disable caching.
func New(s *store.Store, b *bm25.Index, v *vectorindex.Engine, g GraphExpander, c *cache.Cache) *Engine {
	return &Engine{store: s, bm25: b, vector: v, graph: g, cache: c}
}

func cacheParams(profile string, opts Options) map[string]any {
	return map[string]any{
		"profile":  profile,
		"limit":    opts.Limit,
		"method":   string(opts.Method),
		"bm25_w":   opts.Weights.BM25,
		"sem_w":    opts.Weights.Semantic,
		"graph_w":  opts.Weights.Graph,
		"full":     opts.Full,
	}
}

// Search runs one query through the requested strategy:
// search(query, limit, method, weights?) -> [ScoredMemory].
func (e *Engine) Search(ctx context.Context, profile, query string, opts Options) ([]ScoredMemory, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Method == "" {
		opts.Method = StrategyWeighted
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}

	key := cache.Key(query, cacheParams(profile, opts))
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			if results, ok := v.([]ScoredMemory); ok {
				return results, nil
			}
		}
	}

	results, err := e.run(ctx, profile, query, opts)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.Put(key, results)
	}
	return results, nil
}

func (e *Engine) run(ctx context.Context, profile, query string, opts Options) ([]ScoredMemory, error) {
	switch opts.Method {
	case StrategyBM25:
		ranked, err := e.runBM25(ctx, profile, query, opts.Limit)
		if err != nil {
			return nil, err
		}
		return e.materialize(ctx, profile, normalize(ranked), OriginBM25, opts)
	case StrategySemantic:
		ranked, err := e.runSemantic(query, opts.Limit)
		if err != nil {
			return nil, err
		}
		return e.materialize(ctx, profile, normalize(ranked), OriginSemantic, opts)
	case StrategyGraph:
		ranked, err := e.runGraph(ctx, profile, query, opts.Limit)
		if err != nil {
			return nil, err
		}
		return e.materialize(ctx, profile, normalize(ranked), OriginGraph, opts)
	case StrategyRRF:
		channels, err := e.runAll(ctx, profile, query, opts.Limit)
		if err != nil {
			return nil, err
		}
		return e.materialize(ctx, profile, rrfFuse(channels), OriginHybrid, opts)
	default: // StrategyWeighted
		channels, err := e.runAll(ctx, profile, query, opts.Limit)
		if err != nil {
			return nil, err
		}
		return e.materialize(ctx, profile, weightedFuse(channels, opts.Weights), OriginHybrid, opts)
	}
}

type channel struct {
	ids    []int64
	scores map[int64]float64 // raw, pre-normalization
}

// runAll executes the three base strategies concurrently, propagating
// the first error.
func (e *Engine) runAll(ctx context.Context, profile, query string, limit int) ([3]channel, error) {
	var channels [3]channel
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ids, err := e.runBM25(gctx, profile, query, limit)
		if err != nil {
			return err
		}
		channels[0] = toChannel(ids)
		return nil
	})
	g.Go(func() error {
		ids, err := e.runSemantic(query, limit)
		if err != nil {
			return err
		}
		channels[1] = toChannel(ids)
		return nil
	})
	g.Go(func() error {
		ids, err := e.runGraph(gctx, profile, query, limit)
		if err != nil {
			return err
		}
		channels[2] = toChannel(ids)
		return nil
	})

	if err := g.Wait(); err != nil {
		return channels, err
	}
	return channels, nil
}

type idScore struct {
	id    int64
	score float64
}

func toChannel(ranked []idScore) channel {
	ids := make([]int64, len(ranked))
	scores := make(map[int64]float64, len(ranked))
	for i, r := range ranked {
		ids[i] = r.id
		scores[r.id] = r.score
	}
	return channel{ids: ids, scores: scores}
}

// runBM25 searches the in-memory BM25 index when present, falling back
// to the store's native FTS5 bm25() ranking (already populated via
// triggers) when no standalone index was wired in.
func (e *Engine) runBM25(ctx context.Context, profile, query string, limit int) ([]idScore, error) {
	tokens := tokenize.Words(tokenize.Tokenize(query, true))
	if e.bm25 != nil {
		scored := e.bm25.Search(tokens, limit)
		out := make([]idScore, len(scored))
		for i, s := range scored {
			out[i] = idScore{id: s.DocID, score: s.Score}
		}
		return out, nil
	}
	ids, err := e.store.SearchFTS(ctx, profile, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]idScore, len(ids))
	for i, id := range ids {
		out[i] = idScore{id: id, score: float64(len(ids) - i)}
	}
	return out, nil
}

func (e *Engine) runSemantic(query string, limit int) ([]idScore, error) {
	if e.vector == nil {
		return nil, nil
	}
	scored, err := e.vector.Search(query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]idScore, len(scored))
	for i, s := range scored {
		out[i] = idScore{id: s.ID, score: s.Score}
	}
	return out, nil
}

// runGraph seeds from the store's FTS top-N, expands to 1-hop neighbors,
// and ranks by neighbor-count x average-edge-weight.
func (e *Engine) runGraph(ctx context.Context, profile, query string, limit int) ([]idScore, error) {
	if e.graph == nil {
		return nil, nil
	}
	seeds, err := e.store.SearchFTS(ctx, profile, query, limit)
	if err != nil {
		return nil, err
	}

	counts := make(map[int64]int)
	weightSum := make(map[int64]float64)
	for _, seed := range seeds {
		neighbors, err := e.graph.RelatedWeighted(ctx, profile, seed)
		if err != nil {
			return nil, err
		}
		for id, w := range neighbors {
			counts[id]++
			weightSum[id] += w
		}
	}

	out := make([]idScore, 0, len(counts))
	for id, n := range counts {
		avg := weightSum[id] / float64(n)
		out = append(out, idScore{id: id, score: float64(n) * avg})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].id < out[j].id
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// normalize min-max scales a single channel's raw scores into [0,1].
func normalize(ranked []idScore) map[int64]float64 {
	out := make(map[int64]float64, len(ranked))
	if len(ranked) == 0 {
		return out
	}
	min, max := ranked[0].score, ranked[0].score
	for _, r := range ranked {
		if r.score < min {
			min = r.score
		}
		if r.score > max {
			max = r.score
		}
	}
	spread := max - min
	for _, r := range ranked {
		if spread == 0 {
			out[r.id] = 1
			continue
		}
		out[r.id] = (r.score - min) / spread
	}
	return out
}

func rankOf(ch channel) map[int64]int {
	out := make(map[int64]int, len(ch.ids))
	for i, id := range ch.ids {
		out[id] = i
	}
	return out
}

// weightedFuse computes combined = Σ w_s * normalized_score_s(doc);
// strategies that missed a doc contribute 0.
func weightedFuse(channels [3]channel, w Weights) map[int64]float64 {
	weights := [3]float64{w.BM25, w.Semantic, w.Graph}
	combined := make(map[int64]float64)
	for i, ch := range channels {
		normScores := normalizeChannel(ch)
		for id, score := range normScores {
			combined[id] += weights[i] * score
		}
	}
	return combined
}

func normalizeChannel(ch channel) map[int64]float64 {
	ranked := make([]idScore, len(ch.ids))
	for i, id := range ch.ids {
		ranked[i] = idScore{id: id, score: ch.scores[id]}
	}
	return normalize(ranked)
}

// rrfFuse computes reciprocal rank fusion: combined =
// Σ 1/(k+rank_s(doc)), k=60, over the three channels.
func rrfFuse(channels [3]channel) map[int64]float64 {
	combined := make(map[int64]float64)
	for _, ch := range channels {
		ranks := rankOf(ch)
		for id, rank := range ranks {
			combined[id] += 1.0 / float64(rrfK+rank+1)
		}
	}
	return combined
}

// materialize fetches full memory rows, builds previews, annotates
// cluster-id, sorts descending by score, and truncates to the limit.
func (e *Engine) materialize(ctx context.Context, profile string, scores map[int64]float64, origin MatchOrigin, opts Options) ([]ScoredMemory, error) {
	if len(scores) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	memories, err := e.store.GetMany(ctx, profile, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ScoredMemory, 0, len(memories))
	for _, m := range memories {
		var clusterID *int64
		if e.graph != nil {
			clusterID, _ = e.graph.ClusterOf(ctx, m.ID)
		}
		out = append(out, ScoredMemory{
			ID:             m.ID,
			ContentPreview: preview(m.Content, opts.Full),
			Tags:           m.Tags,
			Score:          scores[m.ID],
			MatchOrigin:    origin,
			ClusterID:      clusterID,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func preview(content string, full bool) string {
	if full || len(content) < previewThreshold {
		return content
	}
	return content[:previewLen]
}
