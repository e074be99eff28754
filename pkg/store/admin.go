package store

import (
	"context"
	"database/sql"
)

// WipeProfile deletes every row owned by profile in one transaction:
// memories (FTS rows follow via trigger; archive, graph nodes/edges and
// cluster membership cascade) plus the profile-scoped cluster and pattern
// tables.
func (s *Store) WipeProfile(ctx context.Context, profile string) error {
	if profile == "" {
		return ErrEmptyProfile
	}
	return s.submitWrite(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM memories WHERE profile = ?`,
			`DELETE FROM graph_edges WHERE profile = ?`,
			`DELETE FROM graph_nodes WHERE profile = ?`,
			`DELETE FROM graph_clusters WHERE profile = ?`,
			`DELETE FROM identity_patterns WHERE profile = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, profile); err != nil {
				return err
			}
		}
		return nil
	})
}

// RenameProfileRows rewrites the profile key on every owned row when a
// profile is renamed; ids and data stay put.
func (s *Store) RenameProfileRows(ctx context.Context, oldName, newName string) error {
	if oldName == "" || newName == "" {
		return ErrEmptyProfile
	}
	return s.submitWrite(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, q := range []string{
			`UPDATE memories SET profile = ? WHERE profile = ?`,
			`UPDATE graph_nodes SET profile = ? WHERE profile = ?`,
			`UPDATE graph_edges SET profile = ? WHERE profile = ?`,
			`UPDATE graph_clusters SET profile = ? WHERE profile = ?`,
			`UPDATE identity_patterns SET profile = ? WHERE profile = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, newName, oldName); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountMemories returns the number of memories owned by profile.
func (s *Store) CountMemories(ctx context.Context, profile string) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE profile = ?`, profile)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// IntegrityCheck runs SQLite's integrity check, returning ErrCorrupt-style
// failure text when the database is damaged.
func (s *Store) IntegrityCheck(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`)
	var result string
	if err := row.Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return ErrCorrupt
	}
	return nil
}
