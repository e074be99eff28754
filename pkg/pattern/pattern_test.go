package pattern

import (
	"testing"
	"time"
)

func docsAt(content string, days ...int) []Doc {
	var out []Doc
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, d := range days {
		out = append(out, Doc{MemoryID: int64(i + 1), Content: content, CreatedAt: base.AddDate(0, 0, d)})
	}
	return out
}

func TestAnalyzeFrequencyEmitsDominantValue(t *testing.T) {
	rule := CategoryRule{
		Category: "frontend_framework",
		Values: map[string][]string{
			"react": {"react", "jsx"},
			"vue":   {"vue"},
		},
		MinCount: 3,
		MinShare: 0.6,
	}
	docs := []Doc{
		{MemoryID: 1, Content: "use react hooks for state"},
		{MemoryID: 2, Content: "react jsx component tree"},
		{MemoryID: 3, Content: "react context api"},
		{MemoryID: 4, Content: "vue composition api"},
	}
	c := AnalyzeFrequency(rule, docs)
	if c == nil {
		t.Fatal("expected a candidate")
	}
	if c.Value != "React over Vue" {
		t.Errorf("Value = %q, want React over Vue", c.Value)
	}
}

func TestAnalyzeFrequencyRejectsBelowThreshold(t *testing.T) {
	rule := CategoryRule{
		Category: "frontend_framework",
		Values:   map[string][]string{"react": {"react"}, "vue": {"vue"}},
		MinCount: 3,
		MinShare: 0.6,
	}
	docs := []Doc{
		{MemoryID: 1, Content: "react hooks"},
		{MemoryID: 2, Content: "vue composition"},
	}
	if c := AnalyzeFrequency(rule, docs); c != nil {
		t.Errorf("expected no candidate, got %+v", c)
	}
}

func TestAnalyzeTerminologyPicksDominantMeaning(t *testing.T) {
	rule := TerminologyRule{
		Term: "optimize",
		Meanings: map[string][]string{
			"performance": {"speed", "latency"},
			"readability": {"clarity"},
		},
	}
	docs := []Doc{
		{MemoryID: 1, Content: "we need to optimize for speed and low latency"},
		{MemoryID: 2, Content: "let's optimize this function for speed"},
		{MemoryID: 3, Content: "optimize the hot path for latency"},
	}
	c := AnalyzeTerminology(rule, docs)
	if c == nil {
		t.Fatal("expected a candidate")
	}
	if c.Value != "performance" {
		t.Errorf("Value = %q, want performance", c.Value)
	}
}

func TestConfidenceClampsAtOne(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	evidence := docsAt("x", 0, 1, 2, 3, 9)
	conf := Confidence(evidence, 5, now)
	if conf > 1 {
		t.Errorf("Confidence = %f, want <= 1", conf)
	}
}

func TestConfidencePenalizesSparseEvidence(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	sparse := docsAt("x", 0)
	plenty := docsAt("x", 0, 1, 2, 3, 9, 15)
	if Confidence(sparse, 1, now) >= Confidence(plenty, 6, now) {
		t.Error("sparse evidence should score no higher than ample evidence")
	}
}
