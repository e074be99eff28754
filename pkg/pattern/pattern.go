// Package pattern derives preference/style/terminology patterns from the
// memory corpus, scoring each candidate with a Beta-Binomial Bayesian
// confidence posterior adjusted for recency and evidence spread.
package pattern

import "time"

// Type classifies a learned pattern.
type Type string

const (
	TypePreference  Type = "preference"
	TypeStyle       Type = "style"
	TypeTerminology Type = "terminology"
)

// Pattern is a single learned, evidence-backed fact about the profile's
// corpus.
type Pattern struct {
	ID            int64
	Type          Type
	Category      string
	Value         string
	EvidenceCount int
	Confidence    float64
	FirstSeen     time.Time
	LastUpdated   time.Time
	Examples      []Example
}

// Example is a representative excerpt backing a pattern.
type Example struct {
	MemoryID  int64
	Excerpt   string
	Relevance float64
}

// CategoryRule maps a category to its candidate values, each with a
// keyword set counted across the corpus.
type CategoryRule struct {
	Category string
	Values   map[string][]string
	MinCount int
	MinShare float64
}

// TerminologyRule maps a polysemous term to the meanings it may resolve
// to, each backed by co-occurring disambiguation keywords.
type TerminologyRule struct {
	Term     string
	Meanings map[string][]string
}

// DefaultCategoryRules returns the built-in frequency/context rules.
func DefaultCategoryRules() []CategoryRule {
	return []CategoryRule{
		{
			Category: "frontend_framework",
			Values: map[string][]string{
				"react":   {"react", "jsx", "react hooks"},
				"vue":     {"vue", "vuex", "composition api"},
				"angular": {"angular", "ngmodule", "rxjs"},
				"svelte":  {"svelte", "sveltekit"},
				"nextjs":  {"next.js", "nextjs"},
			},
			MinCount: 3,
			MinShare: 0.6,
		},
		{
			Category: "optimization_priority",
			Values: map[string][]string{
				"performance": {"performance", "speed", "latency", "throughput", "fast"},
				"readability": {"readability", "readable", "clarity", "maintainability", "clean code"},
			},
			MinCount: 1,
			MinShare: 0.65,
		},
	}
}

// DefaultTerminologyRules returns the built-in polysemous-term rule set.
func DefaultTerminologyRules() []TerminologyRule {
	return []TerminologyRule{
		{
			Term: "optimize",
			Meanings: map[string][]string{
				"performance": {"speed", "performance", "latency", "fast", "throughput"},
				"readability": {"readable", "clarity", "simplify", "clean"},
			},
		},
	}
}
