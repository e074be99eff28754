package bm25

import "sort"

// Contains reports whether term has at least one live (non-tombstoned)
// posting. Implements the query optimizer's Vocabulary interface so spell
// correction runs against the indexed vocabulary.
func (idx *Index) Contains(term string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, p := range idx.postings[term] {
		if !idx.tombstone[p.docID] {
			return true
		}
	}
	return false
}

// Terms returns the live indexed vocabulary in sorted order.
func (idx *Index) Terms() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]string, 0, len(idx.postings))
	for term, plist := range idx.postings {
		for _, p := range plist {
			if !idx.tombstone[p.docID] {
				out = append(out, term)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
