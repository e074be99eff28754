package pattern

import (
	"sort"
	"strings"
	"time"
)

// Doc is the minimal corpus input the analyzers need.
type Doc struct {
	MemoryID  int64
	Content   string
	CreatedAt time.Time
}

// Candidate is an emitted pattern before confidence scoring and
// persistence.
type Candidate struct {
	Type          Type
	Category      string
	Value         string
	EvidenceDocs  []Doc
	TotalDocs     int
}

func containsKeyword(content, keyword string) bool {
	return strings.Contains(strings.ToLower(content), strings.ToLower(keyword))
}

func docMatchesAny(content string, keywords []string) bool {
	for _, kw := range keywords {
		if containsKeyword(content, kw) {
			return true
		}
	}
	return false
}

// AnalyzeFrequency is the frequency analyzer: it counts
// keyword occurrences per category value across the corpus, emitting a
// candidate for the top value when its count and share clear the rule's
// thresholds.
func AnalyzeFrequency(rule CategoryRule, docs []Doc) *Candidate {
	counts := make(map[string][]Doc)
	total := 0
	for _, d := range docs {
		matchedAny := false
		for value, keywords := range rule.Values {
			if docMatchesAny(d.Content, keywords) {
				counts[value] = append(counts[value], d)
				matchedAny = true
			}
		}
		if matchedAny {
			total++
		}
	}
	if total == 0 {
		return nil
	}

	var values []string
	for v := range counts {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if len(counts[values[i]]) != len(counts[values[j]]) {
			return len(counts[values[i]]) > len(counts[values[j]])
		}
		return values[i] < values[j]
	})

	top := values[0]
	evidence := counts[top]
	share := float64(len(evidence)) / float64(total)
	if len(evidence) < rule.MinCount || share < rule.MinShare {
		return nil
	}

	// "React over Vue" when a runner-up exists, plain "React" otherwise.
	value := capitalize(top)
	if len(values) > 1 && len(counts[values[1]]) > 0 {
		value += " over " + capitalize(values[1])
	}

	return &Candidate{
		Type:         TypePreference,
		Category:     rule.Category,
		Value:        value,
		EvidenceDocs: evidence,
		TotalDocs:    total,
	}
}

// AnalyzeContext is the context analyzer: the same
// keyword-share mechanism as AnalyzeFrequency but tagged as a style
// pattern for binary style axes.
func AnalyzeContext(rule CategoryRule, docs []Doc) *Candidate {
	c := AnalyzeFrequency(rule, docs)
	if c == nil {
		return nil
	}
	c.Type = TypeStyle
	return c
}

const terminologyWindow = 50

// AnalyzeTerminology is the terminology analyzer: for
// each mention of rule.Term, extracts the +/-50-char window and tallies
// which meaning's disambiguation keywords appear there, emitting a
// candidate if the dominant meaning has >= 3 supporting examples.
func AnalyzeTerminology(rule TerminologyRule, docs []Doc) *Candidate {
	meaningDocs := make(map[string][]Doc)
	total := 0
	for _, d := range docs {
		lower := strings.ToLower(d.Content)
		term := strings.ToLower(rule.Term)
		idx := 0
		matched := false
		for {
			pos := strings.Index(lower[idx:], term)
			if pos < 0 {
				break
			}
			pos += idx
			start := pos - terminologyWindow
			if start < 0 {
				start = 0
			}
			end := pos + len(term) + terminologyWindow
			if end > len(lower) {
				end = len(lower)
			}
			window := lower[start:end]

			for meaning, keywords := range rule.Meanings {
				if docMatchesAny(window, keywords) {
					meaningDocs[meaning] = append(meaningDocs[meaning], d)
				}
			}
			matched = true
			idx = pos + len(term)
		}
		if matched {
			total++
		}
	}
	if total == 0 {
		return nil
	}

	var meanings []string
	for m := range meaningDocs {
		meanings = append(meanings, m)
	}
	sort.Slice(meanings, func(i, j int) bool {
		if len(meaningDocs[meanings[i]]) != len(meaningDocs[meanings[j]]) {
			return len(meaningDocs[meanings[i]]) > len(meaningDocs[meanings[j]])
		}
		return meanings[i] < meanings[j]
	})
	if len(meanings) == 0 {
		return nil
	}
	top := meanings[0]
	evidence := meaningDocs[top]
	if len(evidence) < 3 {
		return nil
	}

	return &Candidate{
		Type:         TypeTerminology,
		Category:     rule.Term,
		Value:        top,
		EvidenceDocs: evidence,
		TotalDocs:    total,
	}
}
