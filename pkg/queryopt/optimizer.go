package queryopt

import "strings"

// Result is what Normalize hands back to the Hybrid Fusion component.
type Result struct {
	Expr     *Expr
	Terms    []string // flattened, spell-corrected terms
	Expanded []string // additional terms from co-occurrence, empty unless requested
}

// Options controls Normalize's optional passes.
type Options struct {
	Vocabulary   Vocabulary    // nil disables spell correction
	CoOccurrence *CoOccurrence // nil disables expansion even if Expand is true
	Expand       bool          // off by default; callers opt in
	ExpandTopN   int           // default 2
	ExpandMinMI  float64
	TotalDocs    int
}

// Normalize parses query into a boolean tree, spell-corrects its terms
// against vocab, and optionally expands via co-occurrence. Any internal
// failure degrades to the raw query split on whitespace rather than
// propagating.
func Normalize(query string, opts Options) (result Result) {
	defer func() {
		if recover() != nil {
			result = Result{Terms: strings.Fields(query)}
		}
	}()

	expr := Parse(query)
	terms := expr.Terms()
	corrected := Correct(terms, opts.Vocabulary)

	result = Result{Expr: expr, Terms: corrected}

	if opts.Expand && opts.CoOccurrence != nil {
		topN := opts.ExpandTopN
		if topN == 0 {
			topN = 2
		}
		seen := make(map[string]bool, len(corrected))
		for _, t := range corrected {
			seen[t] = true
		}
		var expanded []string
		for _, t := range corrected {
			for _, e := range opts.CoOccurrence.ExpandTerm(t, opts.TotalDocs, topN, opts.ExpandMinMI) {
				if !seen[e] {
					seen[e] = true
					expanded = append(expanded, e)
				}
			}
		}
		result.Expanded = expanded
	}

	return result
}
