package compress

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ColdRecord is one archived memory inside a monthly cold-storage file.
type ColdRecord struct {
	ID         int64     `json:"id"`
	Content    string    `json:"content"`
	Tags       []string  `json:"tags,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ArchivedAt time.Time `json:"archived_at"`
	Batch      string    `json:"batch,omitempty"`
}

func coldFileName(t time.Time) string {
	return fmt.Sprintf("archive-%s.json.gz", t.Format("2006-01"))
}

// appendCold atomically appends records to the current month's archive:
// the existing bytes are copied to a temp file, the new records are added
// as a fresh gzip member (gzip readers consume concatenated members
// transparently), and the temp file is renamed into place.
func appendCold(dir string, now time.Time, records []ColdRecord) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, coldFileName(now))

	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, "cold-*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(existing); err != nil {
		tmp.Close()
		return "", err
	}

	zw := gzip.NewWriter(tmp)
	enc := json.NewEncoder(zw)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			tmp.Close()
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return "", err
	}
	return path, nil
}

// readCold scans every monthly archive for the record with the given id,
// newest file first. Returns nil without error when the id is absent.
func readCold(dir string, id int64) (*ColdRecord, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "archive-*.json.gz"))
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))

	for _, path := range matches {
		rec, err := scanColdFile(path, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}
	return nil, nil
}

func scanColdFile(path string, id int64) (*ColdRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	dec := json.NewDecoder(zr)
	var found *ColdRecord
	for {
		var rec ColdRecord
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		if rec.ID == id {
			// Keep scanning: a later record for the same id supersedes.
			r := rec
			found = &r
		}
	}
	return found, nil
}
