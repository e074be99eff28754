package memex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/liliang-cn/memex/pkg/bm25"
	"github.com/liliang-cn/memex/pkg/cache"
	"github.com/liliang-cn/memex/pkg/compress"
	"github.com/liliang-cn/memex/pkg/fusion"
	"github.com/liliang-cn/memex/pkg/graph"
	"github.com/liliang-cn/memex/pkg/pattern"
	"github.com/liliang-cn/memex/pkg/profile"
	"github.com/liliang-cn/memex/pkg/queryopt"
	"github.com/liliang-cn/memex/pkg/store"
	"github.com/liliang-cn/memex/pkg/tokenize"
	"github.com/liliang-cn/memex/pkg/vectorindex"
)

// DefaultRootName is the directory under the user's home that holds the
// database, backups, cold storage and sidecar files.
const DefaultRootName = ".memex"

// ErrUntrusted is returned when an agent below the trust threshold
// attempts a write or delete.
var ErrUntrusted = errors.New("agent trust below threshold")

// Options configures Open.
type Options struct {
	// RootDir holds memory.db, profiles.json, config.json, backups/ and
	// cold-storage/. Empty means ~/.memex.
	RootDir string
	// Config overrides config.json; nil loads (or creates) the file.
	Config *Config
	Logger store.Logger
	// Embed, when non-nil, enables the dense vector backend; nil degrades
	// to TF-IDF.
	Embed func(text string) ([]float32, error)
}

// Memex wires every component behind the public façade: the sole
// profile-scoping choke point, trust/rate policy boundary, and event
// emitter.
type Memex struct {
	root   string
	cfg    Config
	logger store.Logger

	store    *store.Store
	profiles *profile.Manager
	bm25     *bm25.Index
	ann      *vectorindex.ANN
	vector   *vectorindex.Engine
	graph    *graph.Engine
	patterns *pattern.Manager
	comp     *compress.Compressor
	cache    *cache.Cache
	search   *fusion.Engine
	bus      *eventBus

	writeLimit *rateLimiter
	readLimit  *rateLimiter

	// cooc is rebuilt offline by reindex and swapped atomically.
	cooc     atomic.Pointer[queryopt.CoOccurrence]
	docCount atomic.Int64

	reindexMu sync.Mutex
}

// Open initializes the engine rooted at opts.RootDir, creating the
// directory layout, loading config.json and profiles.json, opening the
// database, and warming the in-memory indexes for the active profile.
func Open(ctx context.Context, opts Options) (*Memex, error) {
	root := opts.RootDir
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, Wrap(KindInternal, "open", errors.New("cannot resolve home directory"))
		}
		root = filepath.Join(home, DefaultRootName)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, Wrap(KindInternal, "open", errors.New("cannot create root directory"))
	}

	var cfg Config
	if opts.Config != nil {
		cfg = opts.Config.withDefaults()
	} else {
		loaded, err := LoadConfig(filepath.Join(root, "config.json"))
		if err != nil {
			return nil, Wrap(KindInvalidInput, "open", errors.New("config.json is malformed"))
		}
		cfg = loaded
		if _, statErr := os.Stat(filepath.Join(root, "config.json")); errors.Is(statErr, os.ErrNotExist) {
			if err := cfg.Save(filepath.Join(root, "config.json")); err != nil {
				return nil, Wrap(KindInternal, "open", errors.New("cannot write config.json"))
			}
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = store.NopLogger()
	}

	profiles, err := profile.Open(filepath.Join(root, "profiles.json"))
	if err != nil {
		return nil, Wrap(KindInternal, "open", errors.New("cannot open profiles.json"))
	}

	s, err := store.New(ctx, store.Config{
		Path:               filepath.Join(root, "memory.db"),
		MaxOpenConns:       cfg.MaxOpenConns,
		WriteQueueCapacity: cfg.WriteQueueCapacity,
		Logger:             logger,
	})
	if err != nil {
		if errors.Is(err, store.ErrSchemaDowngrade) {
			return nil, Wrap(KindCorrupt, "open", store.ErrSchemaDowngrade)
		}
		logger.Error("store open failed", "err", err)
		return nil, Wrap(KindInternal, "open", errors.New("cannot open database"))
	}

	var ann *vectorindex.ANN
	if opts.Embed != nil {
		ann = vectorindex.NewANN(opts.Embed, vectorindex.DefaultHNSWConfig())
		if err := ann.Load(filepath.Join(root, "vectors.bin")); err != nil {
			logger.Warn("persisted vectors unreadable, re-embedding", "err", err)
		}
	}
	vector := vectorindex.NewEngine(ann, vectorindex.NewTFIDF())

	idx := bm25.NewIndex(cfg.BM25K1, cfg.BM25B)
	g := graph.New(s.DB())
	c := cache.New(cfg.CacheCapacity, time.Duration(cfg.CacheTTLSeconds)*time.Second)

	m := &Memex{
		root:       root,
		cfg:        cfg,
		logger:     logger,
		store:      s,
		profiles:   profiles,
		bm25:       idx,
		ann:        ann,
		vector:     vector,
		graph:      g,
		patterns:   pattern.New(s.DB()),
		cache:      c,
		search:     fusion.New(s, idx, vector, g, c),
		bus:        newEventBus(),
		writeLimit: newRateLimiter(cfg.WritesPerMin),
		readLimit:  newRateLimiter(cfg.ReadsPerMin),
	}
	m.comp = compress.New(s, compress.Config{
		Tier2Days:        cfg.Tier2Days,
		Tier3Days:        cfg.Tier3Days,
		ColdDays:         cfg.ColdDays,
		RecentAccessDays: cfg.RecentAccessDays,
		SummaryBudget:    cfg.SummaryBudget,
		BackupDir:        filepath.Join(root, "backups"),
		ColdDir:          filepath.Join(root, "cold-storage"),
		Logger:           logger,
	})

	if err := m.reindex(ctx); err != nil {
		s.Close()
		logger.Error("index warm-up failed", "err", err)
		return nil, Wrap(KindInternal, "open", errors.New("cannot build indexes"))
	}

	logger.Info("memex opened", "root", root, "profile", profiles.Active())
	return m, nil
}

// Close persists the dense vectors when present, shuts the event bus and
// closes the store. Safe to call once.
func (m *Memex) Close() error {
	if m.ann != nil && m.ann.Available() {
		if err := m.ann.Persist(filepath.Join(m.root, "vectors.bin")); err != nil {
			m.logger.Warn("vector persistence failed", "err", err)
		}
	}
	m.bus.close()
	return m.store.Close()
}

// Store exposes the storage substrate for advanced callers (integrity
// checks, raw scans). Most callers should stay on the façade methods.
func (m *Memex) Store() *store.Store { return m.store }

// Config returns the effective configuration.
func (m *Memex) Config() Config { return m.cfg }

// Subscribe registers an event listener; cancel releases it. Delivery is
// best-effort per subscriber.
func (m *Memex) Subscribe() (<-chan Event, func()) {
	return m.bus.subscribe()
}

// ActiveProfile returns the profile every call is currently scoped to.
func (m *Memex) ActiveProfile() string { return m.profiles.Active() }

func (m *Memex) emit(ctx context.Context, t EventType, payload map[string]any) {
	agentID := ""
	if c, ok := CallerFrom(ctx); ok {
		agentID = c.AgentID
	}
	m.bus.publish(Event{
		Type:      t,
		Timestamp: time.Now(),
		Profile:   m.profiles.Active(),
		AgentID:   agentID,
		Payload:   payload,
	})
}

// gateWrite enforces the trust threshold and write rate limit for calls
// carrying an agent identity; local calls pass through.
func (m *Memex) gateWrite(ctx context.Context, op string) error {
	c, ok := CallerFrom(ctx)
	if !ok {
		return nil
	}
	if c.Trust < m.cfg.TrustThreshold {
		return Wrap(KindInvalidInput, op, ErrUntrusted)
	}
	if !m.writeLimit.allow(c.AgentID) {
		return Wrap(KindBusy, op, ErrBusy)
	}
	return nil
}

func (m *Memex) gateRead(ctx context.Context, op string) error {
	c, ok := CallerFrom(ctx)
	if !ok {
		return nil
	}
	if !m.readLimit.allow(c.AgentID) {
		return Wrap(KindBusy, op, ErrBusy)
	}
	return nil
}

// fail classifies raw component errors into the public error kinds,
// sanitizing anything unexpected.
func (m *Memex) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var me *MemexError
	if errors.As(err, &me) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, profile.ErrNotFound),
		errors.Is(err, pattern.ErrNotFound):
		return Wrap(KindNotFound, op, ErrNotFound)
	case errors.Is(err, store.ErrQueueFull):
		return Wrap(KindBusy, op, ErrBusy)
	case errors.Is(err, store.ErrInvalidContent),
		errors.Is(err, store.ErrInvalidSummary),
		errors.Is(err, store.ErrInvalidTag),
		errors.Is(err, store.ErrInvalidImportance),
		errors.Is(err, store.ErrEmptyProfile),
		errors.Is(err, profile.ErrInvalidName):
		return Wrap(KindInvalidInput, op, err)
	case errors.Is(err, profile.ErrAlreadyExists):
		return Wrap(KindConflict, op, ErrConflict)
	case errors.Is(err, store.ErrCorrupt):
		return Wrap(KindCorrupt, op, ErrCorrupt)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		m.logger.Error("internal error", "op", op, "err", err)
		return Wrap(KindInternal, op, errors.New("internal error"))
	}
}

// reindex rebuilds the BM25 index, vector index and co-occurrence matrix
// from the active profile's corpus, then drops the result cache. Called
// on open, profile switch, and soft reset.
func (m *Memex) reindex(ctx context.Context) error {
	m.reindexMu.Lock()
	defer m.reindexMu.Unlock()

	prof := m.profiles.Active()
	bmDocs := make(map[int64][]string)
	var coocDocs [][]string

	m.vector.Clear()
	for _, tier := range []store.Tier{store.TierFull, store.TierSummary, store.TierBullets} {
		ms, err := m.store.ListTierCandidates(ctx, prof, tier)
		if err != nil {
			return err
		}
		for _, mem := range ms {
			toks := tokenize.Words(tokenize.Tokenize(mem.Content, true))
			bmDocs[mem.ID] = toks
			coocDocs = append(coocDocs, toks)
			if err := m.vector.Index(mem.ID, mem.Content); err != nil {
				m.logger.Warn("vector index degraded", "id", mem.ID, "err", err)
			}
		}
	}
	m.bm25.Rebuild(bmDocs)
	m.cooc.Store(queryopt.BuildCoOccurrence(coocDocs))
	m.docCount.Store(int64(len(coocDocs)))
	m.cache.Clear()
	return nil
}

// indexOne keeps the derived indexes in step with a single memory write.
func (m *Memex) indexOne(id int64, content string) {
	m.bm25.Index(id, tokenize.Words(tokenize.Tokenize(content, true)))
	if err := m.vector.Index(id, content); err != nil {
		m.logger.Warn("vector index degraded", "id", id, "err", err)
	}
	m.cache.Clear()
}

// Add stores a new memory, updates every derived index, incrementally
// extends the knowledge graph, and emits memory_created.
func (m *Memex) Add(ctx context.Context, in store.AddInput) (int64, error) {
	if err := m.gateWrite(ctx, "add"); err != nil {
		return 0, err
	}
	prof := m.profiles.Active()
	id, err := m.store.Add(ctx, prof, in)
	if err != nil {
		return 0, m.fail("add", err)
	}
	m.indexOne(id, in.Content)

	// Graph maintenance is recoverable: log and continue on failure
	// rather than unwinding a committed write.
	if _, err := m.graph.UpdateIncremental(ctx, prof, id); err != nil {
		m.logger.Warn("incremental graph update failed", "id", id, "err", err)
	} else if m.graph.NeedsRebuild() {
		if err := m.graph.Build(ctx, prof, m.cfg.EdgeThreshold); err != nil {
			m.logger.Warn("deferred graph rebuild failed", "err", err)
		}
	}

	m.emit(ctx, EventMemoryCreated, map[string]any{"id": id})
	return id, nil
}

// Get fetches one memory, bumping its access statistics.
func (m *Memex) Get(ctx context.Context, id int64) (*store.Memory, error) {
	if err := m.gateRead(ctx, "get"); err != nil {
		return nil, err
	}
	mem, err := m.store.Get(ctx, m.profiles.Active(), id)
	if err != nil {
		return nil, m.fail("get", err)
	}
	m.emit(ctx, EventMemoryAccessed, map[string]any{"id": id})
	return mem, nil
}

// Update applies a partial update and refreshes the derived indexes.
func (m *Memex) Update(ctx context.Context, id int64, in store.UpdateInput) error {
	if err := m.gateWrite(ctx, "update"); err != nil {
		return err
	}
	prof := m.profiles.Active()
	if err := m.store.Update(ctx, prof, id, in); err != nil {
		return m.fail("update", err)
	}
	if in.Content != nil {
		m.indexOne(id, *in.Content)
	} else {
		m.cache.Clear()
	}
	m.emit(ctx, EventMemoryUpdated, map[string]any{"id": id})
	return nil
}

// Delete removes a memory along with its FTS row, graph node/edges,
// cluster membership and archive row, then clears the derived indexes.
func (m *Memex) Delete(ctx context.Context, id int64) error {
	if err := m.gateWrite(ctx, "delete"); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, m.profiles.Active(), id); err != nil {
		return m.fail("delete", err)
	}
	m.bm25.Remove(id)
	if err := m.vector.Delete(id); err != nil {
		m.logger.Warn("vector delete degraded", "id", id, "err", err)
	}
	m.cache.Clear()
	m.emit(ctx, EventMemoryDeleted, map[string]any{"id": id})
	return nil
}

// List filters and pages memories within the active profile.
func (m *Memex) List(ctx context.Context, f store.ListFilters) ([]*store.Memory, error) {
	if err := m.gateRead(ctx, "list"); err != nil {
		return nil, err
	}
	out, err := m.store.List(ctx, m.profiles.Active(), f)
	return out, m.fail("list", err)
}

// SearchOptions controls one Search call; zero values use the documented
// defaults (weighted fusion, limit 20, expansion off).
type SearchOptions struct {
	Limit   int
	Method  fusion.Strategy
	Weights fusion.Weights
	Full    bool
	// Expand opts into co-occurrence query expansion.
	Expand bool
}

// Search runs the read path: optimizer normalization, cache-consulting
// hybrid fusion over BM25/vector/graph, scoped to the active profile.
func (m *Memex) Search(ctx context.Context, query string, opts SearchOptions) ([]fusion.ScoredMemory, error) {
	if err := m.gateRead(ctx, "search"); err != nil {
		return nil, err
	}

	norm := queryopt.Normalize(query, queryopt.Options{
		Vocabulary:   m.bm25,
		CoOccurrence: m.cooc.Load(),
		Expand:       opts.Expand,
		TotalDocs:    int(m.docCount.Load()),
	})
	terms := append([]string{}, norm.Terms...)
	terms = append(terms, norm.Expanded...)
	normalized := strings.Join(terms, " ")
	if normalized == "" {
		normalized = query
	}

	weights := opts.Weights
	if weights == (fusion.Weights{}) {
		weights = fusion.Weights{BM25: m.cfg.WeightBM25, Semantic: m.cfg.WeightSemantic, Graph: m.cfg.WeightGraph}
	}
	results, err := m.search.Search(ctx, m.profiles.Active(), normalized, fusion.Options{
		Limit:   opts.Limit,
		Method:  opts.Method,
		Weights: weights,
		Full:    opts.Full,
	})
	return results, m.fail("search", err)
}

// GraphBuild runs a full knowledge-graph rebuild for the active profile.
func (m *Memex) GraphBuild(ctx context.Context, minSim float64) error {
	if err := m.gateWrite(ctx, "graph_build"); err != nil {
		return err
	}
	if minSim <= 0 {
		minSim = m.cfg.EdgeThreshold
	}
	if err := m.graph.Build(ctx, m.profiles.Active(), minSim); err != nil {
		return m.fail("graph_build", err)
	}
	m.cache.Clear()
	m.emit(ctx, EventGraphBuilt, nil)
	return nil
}

// GraphStats reports the current graph size for the active profile.
func (m *Memex) GraphStats(ctx context.Context) (*graph.Stats, error) {
	if err := m.gateRead(ctx, "graph_stats"); err != nil {
		return nil, err
	}
	s, err := m.graph.Stats(ctx, m.profiles.Active())
	return s, m.fail("graph_stats", err)
}

// GraphRelated expands from a memory over the edge set.
func (m *Memex) GraphRelated(ctx context.Context, id int64, maxHops int) ([]int64, error) {
	if err := m.gateRead(ctx, "graph_related"); err != nil {
		return nil, err
	}
	ids, err := m.graph.Related(ctx, m.profiles.Active(), id, maxHops)
	return ids, m.fail("graph_related", err)
}

// ClusterMembers lists the memories in a cluster.
func (m *Memex) ClusterMembers(ctx context.Context, clusterID int64) ([]int64, error) {
	if err := m.gateRead(ctx, "cluster_members"); err != nil {
		return nil, err
	}
	ids, err := m.graph.ClusterMembers(ctx, clusterID)
	return ids, m.fail("cluster_members", err)
}

// ClusterSummary returns the structured description of a cluster.
func (m *Memex) ClusterSummary(ctx context.Context, clusterID int64) (*graph.ClusterSummary, error) {
	if err := m.gateRead(ctx, "cluster_summary"); err != nil {
		return nil, err
	}
	s, err := m.graph.ClusterSummary(ctx, clusterID)
	return s, m.fail("cluster_summary", err)
}

// PatternsUpdate reruns the analyzers over the active profile's corpus.
func (m *Memex) PatternsUpdate(ctx context.Context) (int, error) {
	if err := m.gateWrite(ctx, "patterns_update"); err != nil {
		return 0, err
	}
	n, err := m.patterns.Update(ctx, m.profiles.Active())
	if err != nil {
		return 0, m.fail("patterns_update", err)
	}
	m.emit(ctx, EventPatternsUpdated, map[string]any{"candidates": n})
	return n, nil
}

// Patterns lists learned patterns at or above minConfidence.
func (m *Memex) Patterns(ctx context.Context, minConfidence float64) ([]pattern.Pattern, error) {
	if err := m.gateRead(ctx, "patterns"); err != nil {
		return nil, err
	}
	out, err := m.patterns.Patterns(ctx, m.profiles.Active(), minConfidence)
	return out, m.fail("patterns", err)
}

// IdentityContext formats the learned patterns into a prompt-injectable
// text block.
func (m *Memex) IdentityContext(ctx context.Context, minConfidence float64) (string, error) {
	if err := m.gateRead(ctx, "identity_context"); err != nil {
		return "", err
	}
	out, err := m.patterns.IdentityContext(ctx, m.profiles.Active(), minConfidence)
	return out, m.fail("identity_context", err)
}

// CorrectPattern overrides a learned pattern's value, or deletes it when
// newValue is nil.
func (m *Memex) CorrectPattern(ctx context.Context, patternID int64, newValue *string) error {
	if err := m.gateWrite(ctx, "correct_pattern"); err != nil {
		return err
	}
	return m.fail("correct_pattern", m.patterns.Correct(ctx, patternID, newValue))
}

// Compress runs one tiering pass over the active profile (snapshot first).
func (m *Memex) Compress(ctx context.Context) (*compress.Result, error) {
	if err := m.gateWrite(ctx, "compress"); err != nil {
		return nil, err
	}
	res, err := m.comp.Run(ctx, m.profiles.Active())
	if err != nil {
		return nil, m.fail("compress", err)
	}
	if err := m.reindex(ctx); err != nil {
		return nil, m.fail("compress", err)
	}
	m.emit(ctx, EventCompressionRan, map[string]any{
		"tier2": res.ToTier2, "tier3": res.ToTier3, "cold": res.ToCold,
	})
	return res, nil
}

// Restore brings a compressed or cold-archived memory back to Tier-1.
func (m *Memex) Restore(ctx context.Context, id int64) error {
	if err := m.gateWrite(ctx, "restore"); err != nil {
		return err
	}
	if err := m.comp.Restore(ctx, m.profiles.Active(), id); err != nil {
		return m.fail("restore", err)
	}
	if mem, err := m.store.Get(ctx, m.profiles.Active(), id); err == nil {
		m.indexOne(id, mem.Content)
	}
	m.emit(ctx, EventMemoryRestored, map[string]any{"id": id})
	return nil
}

// Profiles lists every known profile.
func (m *Memex) Profiles() []profile.Profile { return m.profiles.List() }

// ProfileCreate registers a new, empty profile.
func (m *Memex) ProfileCreate(ctx context.Context, name, description string) (profile.Profile, error) {
	if err := m.gateWrite(ctx, "profile_create"); err != nil {
		return profile.Profile{}, err
	}
	p, err := m.profiles.Create(name, description)
	return p, m.fail("profile_create", err)
}

// ProfileSwitch changes the active profile and rewarms the in-memory
// indexes from the new corpus; stored rows never move.
func (m *Memex) ProfileSwitch(ctx context.Context, name string) error {
	if err := m.gateWrite(ctx, "profile_switch"); err != nil {
		return err
	}
	if err := m.profiles.Switch(name); err != nil {
		return m.fail("profile_switch", err)
	}
	if err := m.reindex(ctx); err != nil {
		return m.fail("profile_switch", err)
	}
	m.emit(ctx, EventProfileSwitched, map[string]any{"profile": name})
	return nil
}

// ProfileDelete snapshots the database, wipes every row owned by the
// profile, then removes its metadata entry. The active profile cannot be
// deleted.
func (m *Memex) ProfileDelete(ctx context.Context, name string) error {
	if err := m.gateWrite(ctx, "profile_delete"); err != nil {
		return err
	}
	if name == m.profiles.Active() {
		return Wrap(KindInvalidInput, "profile_delete", errors.New("cannot delete the active profile"))
	}
	if _, err := m.comp.Snapshot(ctx, "profile-delete"); err != nil {
		return m.fail("profile_delete", err)
	}
	if err := m.store.WipeProfile(ctx, name); err != nil {
		return m.fail("profile_delete", err)
	}
	return m.fail("profile_delete", m.profiles.Delete(name))
}

// ProfileRename renames a profile's metadata entry and rewrites its rows.
func (m *Memex) ProfileRename(ctx context.Context, oldName, newName string) error {
	if err := m.gateWrite(ctx, "profile_rename"); err != nil {
		return err
	}
	if err := m.profiles.Rename(oldName, newName); err != nil {
		return m.fail("profile_rename", err)
	}
	if err := m.store.RenameProfileRows(ctx, oldName, newName); err != nil {
		return m.fail("profile_rename", err)
	}
	m.cache.Clear()
	return nil
}
