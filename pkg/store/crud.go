package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/liliang-cn/memex/internal/encoding"
)

func validateAdd(in AddInput) error {
	if len(in.Content) > MaxContentBytes {
		return ErrInvalidContent
	}
	if len(in.Tags) > MaxTagsPerMemory {
		return ErrInvalidTag
	}
	for _, t := range in.Tags {
		if len(t) > MaxTagLen {
			return ErrInvalidTag
		}
	}
	if in.Importance != 0 && (in.Importance < 1 || in.Importance > 10) {
		return ErrInvalidImportance
	}
	return nil
}

// Add writes a new memory at Tier-1, returning its dense per-profile id.
func (s *Store) Add(ctx context.Context, profile string, in AddInput) (int64, error) {
	if profile == "" {
		return 0, ErrEmptyProfile
	}
	if err := validateAdd(in); err != nil {
		return 0, err
	}

	importance := in.Importance
	if importance == 0 {
		importance = DefaultImportance
	}
	tagsJSON, err := encoding.EncodeJSON(in.Tags)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.submitWrite(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO memories (profile, content, summary, tags_json, metadata_json, project, importance, tier, parent_id, created_at, last_accessed, access_count)
			VALUES (?, ?, '', ?, '{}', ?, ?, 1, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, 0)
		`, profile, in.Content, tagsJSON, in.Project, importance, in.ParentID)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func scanMemory(row interface {
	Scan(dest ...any) error
}) (*Memory, error) {
	var m Memory
	var tagsJSON, metaJSON string
	var parentID sql.NullInt64
	var createdAt, lastAccessed string

	err := row.Scan(&m.ID, &m.Profile, &m.Content, &m.Summary, &tagsJSON, &metaJSON,
		&m.Project, &m.Importance, &m.Tier, &parentID, &createdAt, &lastAccessed, &m.AccessCount)
	if err != nil {
		return nil, err
	}

	m.Tags, err = encoding.DecodeTags(tagsJSON)
	if err != nil {
		return nil, err
	}
	m.Metadata, err = encoding.DecodeMetadata(metaJSON)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		m.ParentID = &parentID.Int64
	}
	m.CreatedAt, _ = parseTimestamp(createdAt)
	m.LastAccessed, _ = parseTimestamp(lastAccessed)
	return &m, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02 15:04:05.999999999-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

const memoryColumns = `id, profile, content, summary, tags_json, metadata_json, project, importance, tier, parent_id, created_at, last_accessed, access_count`

// Get fetches a memory by id within profile, bumping last_accessed and
// access_count atomically, and returns ErrNotFound if absent or owned by a
// different profile.
func (s *Store) Get(ctx context.Context, profile string, id int64) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ? AND profile = ?`, id, profile)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	err = s.submitWrite(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE memories SET last_accessed = CURRENT_TIMESTAMP, access_count = access_count + 1 WHERE id = ? AND profile = ?`, id, profile)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.AccessCount++
	return m, nil
}

// GetMany fetches multiple memories by id, skipping ids not in profile. It
// does not bump access statistics (bulk reads, e.g. for index rebuilds).
func (s *Store) GetMany(ctx context.Context, profile string, ids []int64) ([]*Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]any, 0, len(ids)+1)
	placeholders = append(placeholders, profile)
	q := `SELECT ` + memoryColumns + ` FROM memories WHERE profile = ? AND id IN (`
	for i, id := range ids {
		if i > 0 {
			q += ","
		}
		q += "?"
		placeholders = append(placeholders, id)
	}
	q += ")"

	rows, err := s.db.QueryContext(ctx, q, placeholders...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Update applies a partial field update to a single memory.
func (s *Store) Update(ctx context.Context, profile string, id int64, in UpdateInput) error {
	sets := []string{}
	args := []any{}

	if in.Content != nil {
		if len(*in.Content) > MaxContentBytes {
			return ErrInvalidContent
		}
		sets = append(sets, "content = ?")
		args = append(args, *in.Content)
	}
	if in.Summary != nil {
		if len(*in.Summary) > MaxSummaryBytes {
			return ErrInvalidSummary
		}
		sets = append(sets, "summary = ?")
		args = append(args, *in.Summary)
	}
	if in.Tags != nil {
		if len(*in.Tags) > MaxTagsPerMemory {
			return ErrInvalidTag
		}
		tagsJSON, err := encoding.EncodeJSON(*in.Tags)
		if err != nil {
			return err
		}
		sets = append(sets, "tags_json = ?")
		args = append(args, tagsJSON)
	}
	if in.Metadata != nil {
		metaJSON, err := encoding.EncodeJSON(*in.Metadata)
		if err != nil {
			return err
		}
		sets = append(sets, "metadata_json = ?")
		args = append(args, metaJSON)
	}
	if in.Project != nil {
		sets = append(sets, "project = ?")
		args = append(args, *in.Project)
	}
	if in.Importance != nil {
		if *in.Importance < 1 || *in.Importance > 10 {
			return ErrInvalidImportance
		}
		sets = append(sets, "importance = ?")
		args = append(args, *in.Importance)
	}
	if in.Tier != nil {
		sets = append(sets, "tier = ?")
		args = append(args, *in.Tier)
	}
	if len(sets) == 0 {
		return nil
	}

	q := "UPDATE memories SET "
	for i, set := range sets {
		if i > 0 {
			q += ", "
		}
		q += set
	}
	q += " WHERE id = ? AND profile = ?"
	args = append(args, id, profile)

	return s.submitWrite(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, args...)
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
	})
}

// Delete removes a memory and every row that references it: the FTS
// mirror row is removed by trigger, graph node/edges/cluster membership
// and the archive row cascade via foreign keys declared ON DELETE CASCADE.
func (s *Store) Delete(ctx context.Context, profile string, id int64) error {
	return s.submitWrite(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ? AND profile = ?`, id, profile)
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
	})
}

// SearchFTS runs a lexical pre-filter over the FTS virtual table, returning
// ids ordered by SQLite's native bm25() rank (most relevant first).
func (s *Store) SearchFTS(ctx context.Context, profile, query string, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id
		FROM memories_fts f
		JOIN memories m ON m.id = f.rowid
		WHERE memories_fts MATCH ? AND m.profile = ?
		ORDER BY bm25(memories_fts)
		LIMIT ?
	`, query, profile, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List supports tag/project/importance/tier filters and time/importance
// sort.
func (s *Store) List(ctx context.Context, profile string, f ListFilters) ([]*Memory, error) {
	q := `SELECT ` + memoryColumns + ` FROM memories WHERE profile = ?`
	args := []any{profile}

	if f.Project != "" {
		q += " AND project = ?"
		args = append(args, f.Project)
	}
	if f.Importance != nil {
		q += " AND importance = ?"
		args = append(args, *f.Importance)
	}
	if f.Tier != nil {
		q += " AND tier = ?"
		args = append(args, *f.Tier)
	}
	for _, tag := range f.Tags {
		q += " AND tags_json LIKE ?"
		args = append(args, "%\""+tag+"\"%")
	}

	switch f.Sort {
	case SortByImportance:
		q += " ORDER BY importance"
	case SortByLastAccessed:
		q += " ORDER BY last_accessed"
	default:
		q += " ORDER BY created_at"
	}
	if f.Descending {
		q += " DESC"
	} else {
		q += " ASC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
