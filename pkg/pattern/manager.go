package pattern

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrNotFound = errors.New("pattern: not found")

const maxExamplesPerPattern = 5

// Manager owns the identity_patterns/pattern_examples tables for all
// profiles, running the three analyzers and Beta-Binomial scoring on
// demand.
type Manager struct {
	db               *sql.DB
	categoryRules    []CategoryRule
	terminologyRules []TerminologyRule
	now              func() time.Time
}

// New wires a Manager against the shared database handle, using the
// built-in category/terminology rules unless overridden.
func New(db *sql.DB) *Manager {
	return &Manager{
		db:               db,
		categoryRules:    DefaultCategoryRules(),
		terminologyRules: DefaultTerminologyRules(),
		now:              time.Now,
	}
}

func (m *Manager) loadDocs(ctx context.Context, profile string) ([]Doc, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, content, created_at FROM memories WHERE profile = ?`, profile)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Doc
	for rows.Next() {
		var d Doc
		var createdAt string
		if err := rows.Scan(&d.MemoryID, &d.Content, &createdAt); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			d.CreatedAt = t
		} else if t, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			d.CreatedAt = t
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Update runs every analyzer over the profile's corpus, scores each
// candidate, and upserts it into identity_patterns keyed by
// (profile, type, category, value).
func (m *Manager) Update(ctx context.Context, profile string) (int, error) {
	docs, err := m.loadDocs(ctx, profile)
	if err != nil {
		return 0, err
	}

	var candidates []*Candidate
	for _, rule := range m.categoryRules {
		if c := AnalyzeFrequency(rule, docs); c != nil {
			candidates = append(candidates, c)
		}
	}
	for _, rule := range m.categoryRules {
		if c := AnalyzeContext(rule, docs); c != nil {
			candidates = append(candidates, c)
		}
	}
	for _, rule := range m.terminologyRules {
		if c := AnalyzeTerminology(rule, docs); c != nil {
			candidates = append(candidates, c)
		}
	}

	now := m.now()
	for _, c := range candidates {
		confidence := Confidence(c.EvidenceDocs, c.TotalDocs, now)
		id, err := m.upsert(ctx, profile, c, confidence, now)
		if err != nil {
			return 0, err
		}
		if err := m.writeExamples(ctx, id, c.EvidenceDocs); err != nil {
			return 0, err
		}
	}
	return len(candidates), nil
}

// upsert writes the pattern row and then looks its ID up by natural key
// rather than trusting LastInsertId, since SQLite only updates
// last_insert_rowid() on the INSERT path of an upsert, not the
// ON CONFLICT DO UPDATE path.
func (m *Manager) upsert(ctx context.Context, profile string, c *Candidate, confidence float64, now time.Time) (int64, error) {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO identity_patterns (profile, type, category, value, confidence, evidence_count, first_seen, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile, type, category, value) DO UPDATE SET
			confidence = excluded.confidence,
			evidence_count = excluded.evidence_count,
			last_updated = excluded.last_updated
	`, profile, string(c.Type), c.Category, c.Value, confidence, len(c.EvidenceDocs), now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return 0, err
	}

	var id int64
	row := m.db.QueryRowContext(ctx,
		`SELECT id FROM identity_patterns WHERE profile = ? AND type = ? AND category = ? AND value = ?`,
		profile, string(c.Type), c.Category, c.Value)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (m *Manager) writeExamples(ctx context.Context, patternID int64, docs []Doc) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM pattern_examples WHERE pattern_id = ?`, patternID); err != nil {
		return err
	}
	n := len(docs)
	if n > maxExamplesPerPattern {
		n = maxExamplesPerPattern
	}
	for i := 0; i < n; i++ {
		d := docs[i]
		if _, err := m.db.ExecContext(ctx, `
			INSERT INTO pattern_examples (pattern_id, memory_id, excerpt, relevance)
			VALUES (?, ?, ?, ?)
		`, patternID, d.MemoryID, excerptOf(d.Content), 1.0); err != nil {
			return err
		}
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func excerptOf(content string) string {
	const maxLen = 160
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "..."
}

// Clear removes every learned pattern for profile; example rows cascade.
func (m *Manager) Clear(ctx context.Context, profile string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM identity_patterns WHERE profile = ?`, profile)
	return err
}

// Patterns returns every pattern at or above minConfidence for profile,
// ordered by descending confidence.
func (m *Manager) Patterns(ctx context.Context, profile string, minConfidence float64) ([]Pattern, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, type, category, value, confidence, evidence_count, first_seen, last_updated
		FROM identity_patterns
		WHERE profile = ? AND confidence >= ?
		ORDER BY confidence DESC, id ASC
	`, profile, minConfidence)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		var p Pattern
		var typ, firstSeen, lastUpdated string
		if err := rows.Scan(&p.ID, &typ, &p.Category, &p.Value, &p.Confidence, &p.EvidenceCount, &firstSeen, &lastUpdated); err != nil {
			return nil, err
		}
		p.Type = Type(typ)
		p.FirstSeen, _ = parseTime(firstSeen)
		p.LastUpdated, _ = parseTime(lastUpdated)
		out = append(out, p)
	}
	return out, rows.Err()
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}

// IdentityContext formats every pattern at or above minConfidence into a
// text block suitable for injection into an AI tool's prompt.
func (m *Manager) IdentityContext(ctx context.Context, profile string, minConfidence float64) (string, error) {
	patterns, err := m.Patterns(ctx, profile, minConfidence)
	if err != nil {
		return "", err
	}
	if len(patterns) == 0 {
		return "", nil
	}

	byType := make(map[Type][]Pattern)
	for _, p := range patterns {
		byType[p.Type] = append(byType[p.Type], p)
	}

	var sb strings.Builder
	sb.WriteString("Learned context for this profile:\n")
	for _, t := range []Type{TypePreference, TypeStyle, TypeTerminology} {
		group := byType[t]
		if len(group) == 0 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Confidence > group[j].Confidence })
		fmt.Fprintf(&sb, "\n%s:\n", capitalize(string(t)))
		for _, p := range group {
			fmt.Fprintf(&sb, "- %s: %s (confidence %.2f, %d evidence)\n", p.Category, p.Value, p.Confidence, p.EvidenceCount)
		}
	}
	return sb.String(), nil
}

// Correct applies a user override to a pattern: either replaces its
// value or deletes it outright.
func (m *Manager) Correct(ctx context.Context, patternID int64, newValue *string) error {
	if newValue == nil {
		res, err := m.db.ExecContext(ctx, `DELETE FROM identity_patterns WHERE id = ?`, patternID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	}

	res, err := m.db.ExecContext(ctx,
		`UPDATE identity_patterns SET value = ?, last_updated = ? WHERE id = ?`,
		*newValue, m.now().Format(time.RFC3339), patternID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
