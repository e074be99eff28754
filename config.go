package memex

import (
	"encoding/json"
	"errors"
	"os"
)

// Config aggregates every tunable knob the engine exposes, persisted to
// config.json under the root directory. Zero values fall back to
// DefaultConfig's numbers when loaded.
type Config struct {
	// BM25 parameters.
	BM25K1 float64 `json:"bm25_k1"`
	BM25B  float64 `json:"bm25_b"`

	// Weighted-fusion strategy weights.
	WeightBM25     float64 `json:"weight_bm25"`
	WeightSemantic float64 `json:"weight_semantic"`
	WeightGraph    float64 `json:"weight_graph"`

	// Result cache.
	CacheCapacity   int `json:"cache_capacity"`
	CacheTTLSeconds int `json:"cache_ttl_seconds"`

	// Graph thresholds.
	EdgeThreshold float64 `json:"edge_threshold"`

	// Tier boundaries in days.
	Tier2Days        int `json:"tier2_days"`
	Tier3Days        int `json:"tier3_days"`
	ColdDays         int `json:"cold_days"`
	RecentAccessDays int `json:"recent_access_days"`
	SummaryBudget    int `json:"summary_budget"`

	// Orchestrator-boundary policies.
	TrustThreshold float64 `json:"trust_threshold"`
	WritesPerMin   int     `json:"writes_per_min"`
	ReadsPerMin    int     `json:"reads_per_min"`

	// Store sizing.
	WriteQueueCapacity int `json:"write_queue_capacity"`
	MaxOpenConns       int `json:"max_open_conns"`
}

// DefaultConfig returns every knob at its documented default.
func DefaultConfig() Config {
	return Config{
		BM25K1:             1.5,
		BM25B:              0.75,
		WeightBM25:         0.4,
		WeightSemantic:     0.3,
		WeightGraph:        0.3,
		CacheCapacity:      100,
		CacheTTLSeconds:    300,
		EdgeThreshold:      0.3,
		Tier2Days:          30,
		Tier3Days:          90,
		ColdDays:           365,
		RecentAccessDays:   7,
		SummaryBudget:      1000,
		TrustThreshold:     0.5,
		WritesPerMin:       120,
		ReadsPerMin:        600,
		WriteQueueCapacity: 1000,
		MaxOpenConns:       50,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BM25K1 == 0 {
		c.BM25K1 = d.BM25K1
	}
	if c.BM25B == 0 {
		c.BM25B = d.BM25B
	}
	if c.WeightBM25 == 0 && c.WeightSemantic == 0 && c.WeightGraph == 0 {
		c.WeightBM25, c.WeightSemantic, c.WeightGraph = d.WeightBM25, d.WeightSemantic, d.WeightGraph
	}
	if c.CacheCapacity == 0 {
		c.CacheCapacity = d.CacheCapacity
	}
	if c.CacheTTLSeconds == 0 {
		c.CacheTTLSeconds = d.CacheTTLSeconds
	}
	if c.EdgeThreshold == 0 {
		c.EdgeThreshold = d.EdgeThreshold
	}
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
	if c.SummaryBudget == 0 {
		c.SummaryBudget = d.SummaryBudget
	}
	if c.TrustThreshold == 0 {
		c.TrustThreshold = d.TrustThreshold
	}
	if c.WritesPerMin == 0 {
		c.WritesPerMin = d.WritesPerMin
	}
	if c.ReadsPerMin == 0 {
		c.ReadsPerMin = d.ReadsPerMin
	}
	if c.WriteQueueCapacity == 0 {
		c.WriteQueueCapacity = d.WriteQueueCapacity
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = d.MaxOpenConns
	}
	return c
}

// LoadConfig reads config.json at path, returning defaults when the file
// doesn't exist yet.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return Config{}, err
	}
	return c.withDefaults(), nil
}

// Save writes the config to path atomically.
func (c Config) Save(path string) error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
