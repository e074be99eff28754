// Package compress implements the tiered progressive-compression engine:
// age/importance/access-recency tier classification, extractive Tier-2 and
// Tier-3 transformations, monthly gzipped cold-storage archives, and
// snapshot backups taken before every run.
package compress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/memex/pkg/store"
	"golang.org/x/sync/errgroup"
)

// Config carries the tier boundaries and on-disk locations. Zero-value
// fields fall back to DefaultConfig's values.
type Config struct {
	// Tier2Days is the age at which an untouched Tier-1 memory becomes
	// Tier-2 (default 30).
	Tier2Days int
	// Tier3Days is the Tier-3 boundary (default 90).
	Tier3Days int
	// ColdDays is the cold-storage boundary (default 365).
	ColdDays int
	// RecentAccessDays keeps any memory accessed this recently at Tier-1
	// regardless of age (default 7). Access recency dominates: even a
	// cold-storage candidate accessed within this window is downgraded
	// back to Tier-1 and re-evaluated next cycle.
	RecentAccessDays int
	// KeepImportance keeps memories at or above this importance at Tier-1
	// (default 8).
	KeepImportance int
	// SummaryBudget bounds the Tier-2 summary length in characters
	// (default 1000).
	SummaryBudget int

	// BackupDir receives pre-run snapshots (last 7 retained).
	BackupDir string
	// ColdDir receives the monthly archive-YYYY-MM.json.gz files.
	ColdDir string

	Logger store.Logger
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the standard tier boundaries.
func DefaultConfig() Config {
	return Config{
		Tier2Days:        30,
		Tier3Days:        90,
		ColdDays:         365,
		RecentAccessDays: 7,
		KeepImportance:   8,
		SummaryBudget:    1000,
		BackupDir:        "backups",
		ColdDir:          "cold-storage",
		Logger:           store.NopLogger(),
		Now:              time.Now,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Tier2Days == 0 {
		c.Tier2Days = d.Tier2Days
	}
	if c.Tier3Days == 0 {
		c.Tier3Days = d.Tier3Days
	}
	if c.ColdDays == 0 {
		c.ColdDays = d.ColdDays
	}
	if c.RecentAccessDays == 0 {
		c.RecentAccessDays = d.RecentAccessDays
	}
	if c.KeepImportance == 0 {
		c.KeepImportance = d.KeepImportance
	}
	if c.SummaryBudget == 0 {
		c.SummaryBudget = d.SummaryBudget
	}
	if c.BackupDir == "" {
		c.BackupDir = d.BackupDir
	}
	if c.ColdDir == "" {
		c.ColdDir = d.ColdDir
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	return c
}

// Compressor runs the daily tiering job and on-demand restores against a
// single Store.
type Compressor struct {
	store  *store.Store
	cfg    Config
	logger store.Logger
	now    func() time.Time
}

// New wires a Compressor against s.
func New(s *store.Store, cfg Config) *Compressor {
	cfg = cfg.withDefaults()
	return &Compressor{store: s, cfg: cfg, logger: cfg.Logger, now: cfg.Now}
}

// Result summarizes one compression run.
type Result struct {
	Snapshot string `json:"snapshot"`
	ToTier2  int    `json:"to_tier2"`
	ToTier3  int    `json:"to_tier3"`
	ToCold   int    `json:"to_cold"`
	Restored int    `json:"restored"`
	Kept     int    `json:"kept"`
}

// target is a classification outcome; targetCold sits past Tier-3.
type target int

const (
	targetTier1 target = iota + 1
	targetTier2
	targetTier3
	targetCold
)

// classify assigns a target tier. Importance and access recency
// dominate age: a memory important enough or touched recently stays (or
// returns to) Tier-1 no matter how old it is.
func (c *Compressor) classify(m *store.Memory, now time.Time) target {
	day := 24 * time.Hour
	if m.Importance >= c.cfg.KeepImportance {
		return targetTier1
	}
	if now.Sub(m.LastAccessed) < time.Duration(c.cfg.RecentAccessDays)*day {
		return targetTier1
	}
	age := now.Sub(m.CreatedAt)
	switch {
	case age < time.Duration(c.cfg.Tier2Days)*day:
		return targetTier1
	case age < time.Duration(c.cfg.Tier3Days)*day:
		return targetTier2
	case age < time.Duration(c.cfg.ColdDays)*day:
		return targetTier3
	default:
		return targetCold
	}
}

// tier2Plan is a precomputed Tier-2 transformation for one memory; the
// CPU-bound summarization runs fanned out, the writes stay serial.
type tier2Plan struct {
	memory  *store.Memory
	summary string
	content string
}

// Run executes one compression pass over profile: snapshot first, then
// classify every memory and apply the tier transitions.
func (c *Compressor) Run(ctx context.Context, profile string) (*Result, error) {
	snapshot, err := c.Snapshot(ctx, "compress")
	if err != nil {
		return nil, err
	}

	now := c.now()
	res := &Result{Snapshot: snapshot}

	var all []*store.Memory
	for _, tier := range []store.Tier{store.TierFull, store.TierSummary, store.TierBullets} {
		ms, err := c.store.ListTierCandidates(ctx, profile, tier)
		if err != nil {
			return nil, err
		}
		all = append(all, ms...)
	}

	// Tiering is progressive: one step per run, so even a memory whose age
	// already qualifies it for Tier-3 or cold storage passes through each
	// intermediate tier on successive runs.
	var toTier2 []*store.Memory
	var cold []*store.Memory
	for _, m := range all {
		t := c.classify(m, now)
		switch {
		case t == targetTier1 && m.Tier > store.TierFull:
			if err := c.Restore(ctx, profile, m.ID); err != nil {
				return nil, err
			}
			res.Restored++
		case t >= targetTier2 && m.Tier == store.TierFull:
			toTier2 = append(toTier2, m)
		case t >= targetTier3 && m.Tier == store.TierSummary:
			if err := c.toTier3(ctx, profile, m); err != nil {
				return nil, err
			}
			res.ToTier3++
		case t == targetCold && m.Tier == store.TierBullets:
			cold = append(cold, m)
		default:
			res.Kept++
		}
	}

	plans, err := c.planTier2(ctx, toTier2)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if err := c.applyTier2(ctx, profile, p); err != nil {
			return nil, err
		}
		res.ToTier2++
	}

	if len(cold) > 0 {
		n, err := c.moveToCold(ctx, profile, cold, now)
		if err != nil {
			return nil, err
		}
		res.ToCold = n
	}

	c.logger.Info("compression run complete", "profile", profile,
		"tier2", res.ToTier2, "tier3", res.ToTier3, "cold", res.ToCold, "restored", res.Restored)
	return res, nil
}

// planTier2 computes summaries and excerpts concurrently; writes happen
// afterwards in input order so runs stay deterministic.
func (c *Compressor) planTier2(ctx context.Context, memories []*store.Memory) ([]tier2Plan, error) {
	plans := make([]tier2Plan, len(memories))
	var mu sync.Mutex

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, m := range memories {
		i, m := i, m
		g.Go(func() error {
			summary := Summarize(m.Content, c.cfg.SummaryBudget)
			content := compressedContent(summary, ExtractExcerpts(m.Content))
			mu.Lock()
			plans[i] = tier2Plan{memory: m, summary: summary, content: content}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

// applyTier2 archives the original content, then overwrites the row with
// the summary and compressed content at Tier-2.
func (c *Compressor) applyTier2(ctx context.Context, profile string, p tier2Plan) error {
	if err := c.store.PutArchive(ctx, p.memory.ID, p.memory.Content); err != nil {
		return err
	}
	tier := store.TierSummary
	return c.store.Update(ctx, profile, p.memory.ID, store.UpdateInput{
		Content: &p.content,
		Summary: &p.summary,
		Tier:    &tier,
	})
}

// toTier3 reduces an existing summary to bullets. The archive record from
// the Tier-2 transition is retained.
func (c *Compressor) toTier3(ctx context.Context, profile string, m *store.Memory) error {
	source := m.Summary
	if source == "" {
		source = m.Content
	}
	bullets := Bullets(source, maxBullets, maxBulletLen)
	tier := store.TierBullets
	return c.store.Update(ctx, profile, m.ID, store.UpdateInput{
		Content: &bullets,
		Summary: &bullets,
		Tier:    &tier,
	})
}

// moveToCold appends the originals to the current month's archive file,
// then removes the memory rows (the archive rows cascade with them).
func (c *Compressor) moveToCold(ctx context.Context, profile string, memories []*store.Memory, now time.Time) (int, error) {
	batch := uuid.NewString()
	records := make([]ColdRecord, 0, len(memories))
	for _, m := range memories {
		content := m.Content
		if rec, err := c.store.GetArchive(ctx, m.ID); err == nil {
			content = rec.FullContent
		} else if !errors.Is(err, store.ErrNotFound) {
			return 0, err
		}
		records = append(records, ColdRecord{
			ID:         m.ID,
			Content:    content,
			Tags:       m.Tags,
			CreatedAt:  m.CreatedAt,
			ArchivedAt: now,
			Batch:      batch,
		})
	}

	path, err := appendCold(c.cfg.ColdDir, now, records)
	if err != nil {
		return 0, err
	}
	c.logger.Info("cold storage appended", "file", path, "records", len(records), "batch", batch)

	for _, m := range memories {
		if err := c.store.Delete(ctx, profile, m.ID); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

// Restore brings a compressed memory back to Tier-1, recovering the
// original content from the archive table or, failing that, the
// cold-storage files.
func (c *Compressor) Restore(ctx context.Context, profile string, id int64) error {
	rec, err := c.store.GetArchive(ctx, id)
	if err == nil {
		empty := ""
		tier := store.TierFull
		return c.store.Update(ctx, profile, id, store.UpdateInput{
			Content: &rec.FullContent,
			Summary: &empty,
			Tier:    &tier,
		})
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	cold, err := readCold(c.cfg.ColdDir, id)
	if err != nil {
		return err
	}
	if cold == nil {
		return store.ErrNotFound
	}
	return c.store.Reinsert(ctx, profile, id, cold.Content, cold.Tags, cold.CreatedAt)
}
