package compress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const snapshotsRetained = 7

// Snapshot writes a consistent copy of the database into the backup
// directory as pre-<op>-YYYYMMDD-HHMMSS.db (with a -N suffix when a
// snapshot for the same op already exists for that second), pruning to the
// most recent seven. Uses SQLite's VACUUM INTO so WAL contents are captured too.
func (c *Compressor) Snapshot(ctx context.Context, op string) (string, error) {
	if err := os.MkdirAll(c.cfg.BackupDir, 0o755); err != nil {
		return "", err
	}
	stamp := c.now().Format("20060102-150405")
	path := filepath.Join(c.cfg.BackupDir, fmt.Sprintf("pre-%s-%s.db", op, stamp))
	// VACUUM INTO refuses to overwrite an existing file.
	for n := 1; ; n++ {
		if _, err := os.Stat(path); err != nil {
			break
		}
		path = filepath.Join(c.cfg.BackupDir, fmt.Sprintf("pre-%s-%s-%d.db", op, stamp, n))
	}

	if _, err := c.store.DB().ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(path, "'", "''"))); err != nil {
		return "", err
	}
	if err := pruneSnapshots(c.cfg.BackupDir, snapshotsRetained); err != nil {
		return "", err
	}
	c.logger.Info("snapshot written", "op", op)
	return path, nil
}

// pruneSnapshots keeps the keep most recently written snapshot files,
// ordered by modification time since names from different ops don't sort
// chronologically.
func pruneSnapshots(dir string, keep int) error {
	matches, err := filepath.Glob(filepath.Join(dir, "pre-*.db"))
	if err != nil {
		return err
	}
	if len(matches) <= keep {
		return nil
	}
	type stamped struct {
		path string
		mod  int64
	}
	files := make([]stamped, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		files = append(files, stamped{path: path, mod: info.ModTime().UnixNano()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod < files[j].mod })
	for _, f := range files[:len(files)-keep] {
		if err := os.Remove(f.path); err != nil {
			return err
		}
	}
	return nil
}
