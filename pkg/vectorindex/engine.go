package vectorindex

// Engine prefers a dense ANN backend when available and falls back to the
// always-available TF-IDF backend otherwise; a missing capability selects
// the fallback instead of failing construction.
type Engine struct {
	ann   *ANN
	tfidf *TFIDF
}

// NewEngine wires both backends; ann may be nil to skip dense search
// entirely (no embed function configured).
func NewEngine(ann *ANN, tfidf *TFIDF) *Engine {
	if tfidf == nil {
		tfidf = NewTFIDF()
	}
	return &Engine{ann: ann, tfidf: tfidf}
}

func (e *Engine) active() Backend {
	if e.ann != nil && e.ann.Available() {
		return e.ann
	}
	return e.tfidf
}

func (e *Engine) Index(id int64, text string) error {
	if e.ann != nil {
		if err := e.ann.Index(id, text); err != nil {
			return err
		}
	}
	return e.tfidf.Index(id, text)
}

func (e *Engine) Delete(id int64) error {
	if e.ann != nil {
		_ = e.ann.Delete(id)
	}
	return e.tfidf.Delete(id)
}

// Clear empties both backends.
func (e *Engine) Clear() {
	if e.ann != nil {
		e.ann.Clear()
	}
	e.tfidf.Clear()
}

func (e *Engine) Search(text string, k int) ([]Scored, error) {
	return e.active().Search(text, k)
}

func (e *Engine) RebuildIfStale() error {
	return e.active().RebuildIfStale()
}

// Degraded reports true when the dense backend was requested but is
// unavailable, so callers can surface a degraded-but-valid warning.
func (e *Engine) Degraded() bool {
	return e.ann != nil && !e.ann.Available()
}
