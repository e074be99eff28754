package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/liliang-cn/memex/internal/encoding"
)

// PutArchive stores the full original content before a memory is
// compressed past Tier-1.
func (s *Store) PutArchive(ctx context.Context, memoryID int64, fullContent string) error {
	return s.submitWrite(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memory_archive (memory_id, full_content, archived_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(memory_id) DO UPDATE SET full_content = excluded.full_content
		`, memoryID, fullContent)
		return err
	})
}

// GetArchive returns the archived full content for a memory, or
// ErrNotFound if none exists.
func (s *Store) GetArchive(ctx context.Context, memoryID int64) (*ArchiveRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT memory_id, full_content, archived_at FROM memory_archive WHERE memory_id = ?`, memoryID)
	var rec ArchiveRecord
	var archivedAt string
	if err := row.Scan(&rec.MemoryID, &rec.FullContent, &archivedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.ArchivedAt, _ = parseTimestamp(archivedAt)
	return &rec, nil
}

// DeleteArchive removes the archive row, e.g. once its content has been
// appended to a cold-storage file.
func (s *Store) DeleteArchive(ctx context.Context, memoryID int64) error {
	return s.submitWrite(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM memory_archive WHERE memory_id = ?`, memoryID)
		return err
	})
}

// Reinsert restores a memory that was moved to cold storage, recreating
// its row under the original id at Tier-1 with the original creation time.
func (s *Store) Reinsert(ctx context.Context, profile string, id int64, content string, tags []string, createdAt time.Time) error {
	if len(content) > MaxContentBytes {
		return ErrInvalidContent
	}
	tagsJSON, err := encoding.EncodeJSON(tags)
	if err != nil {
		return err
	}
	return s.submitWrite(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memories (id, profile, content, summary, tags_json, metadata_json, project, importance, tier, created_at, last_accessed, access_count)
			VALUES (?, ?, ?, '', ?, '{}', '', ?, 1, ?, CURRENT_TIMESTAMP, 0)
		`, id, profile, content, tagsJSON, DefaultImportance, createdAt.UTC().Format("2006-01-02 15:04:05"))
		return err
	})
}

// ListTierCandidates returns the memories at the given tier, scoped to
// profile; the compressor's classification pass and index warm-up call it
// once per tier.
func (s *Store) ListTierCandidates(ctx context.Context, profile string, tier Tier) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE profile = ? AND tier = ?`, profile, tier)
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
