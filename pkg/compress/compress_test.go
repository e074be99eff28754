package compress

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/liliang-cn/memex/pkg/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(context.Background(), store.Config{Path: filepath.Join(dir, "memory.db")})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestClassifyAccessRecencyDominates(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	c := New(nil, Config{Now: func() time.Time { return now }})

	old := &store.Memory{
		Importance:   5,
		CreatedAt:    now.AddDate(0, 0, -400),
		LastAccessed: now.AddDate(0, 0, -2),
	}
	if got := c.classify(old, now); got != targetTier1 {
		t.Errorf("recently accessed 400-day-old memory: classify = %d, want tier 1", got)
	}

	old.LastAccessed = now.AddDate(0, 0, -200)
	if got := c.classify(old, now); got != targetCold {
		t.Errorf("untouched 400-day-old memory: classify = %d, want cold", got)
	}

	old.Importance = 9
	if got := c.classify(old, now); got != targetTier1 {
		t.Errorf("high-importance memory: classify = %d, want tier 1", got)
	}
}

func TestClassifyAgeBoundaries(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	c := New(nil, Config{Now: func() time.Time { return now }})

	cases := []struct {
		days int
		want target
	}{
		{10, targetTier1},
		{45, targetTier2},
		{120, targetTier3},
		{400, targetCold},
	}
	for _, tc := range cases {
		m := &store.Memory{
			Importance:   5,
			CreatedAt:    now.AddDate(0, 0, -tc.days),
			LastAccessed: now.AddDate(0, 0, -tc.days),
		}
		if got := c.classify(m, now); got != tc.want {
			t.Errorf("age %d days: classify = %d, want %d", tc.days, got, tc.want)
		}
	}
}

func TestSummarizeRespectsBudget(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("The indexing service retries failed batches with exponential backoff. ")
	}
	sum := Summarize(sb.String(), 1000)
	if len(sum) > 1000 {
		t.Errorf("summary length = %d, want <= 1000", len(sum))
	}
	if sum == "" {
		t.Error("summary is empty")
	}
}

func TestSummarizePrefersKeywordSentences(t *testing.T) {
	content := "The weather was mild. A critical error in the auth flow must be fixed. Lunch was fine."
	sum := Summarize(content, 60)
	if !strings.Contains(sum, "critical error") {
		t.Errorf("summary %q should contain the keyword sentence", sum)
	}
}

func TestExtractExcerptsKeepsCodeAndLists(t *testing.T) {
	content := "Intro paragraph.\n\n```go\nfunc main() {}\n```\n\n- first point\n- second point\n\nAn important warning about the rollout."
	excerpts := ExtractExcerpts(content)

	var code, list, para bool
	for _, e := range excerpts {
		switch {
		case strings.HasPrefix(e, "```"):
			code = true
		case strings.HasPrefix(e, "- "):
			list = true
		case strings.Contains(e, "warning"):
			para = true
		}
	}
	if !code || !list || !para {
		t.Errorf("excerpts missing sections: code=%v list=%v para=%v (%q)", code, list, para, excerpts)
	}
}

func TestBulletsLimits(t *testing.T) {
	summary := "First fact here. Second fact here. Third fact here. Fourth fact here. Fifth fact here. Sixth fact here."
	out := Bullets(summary, maxBullets, maxBulletLen)
	lines := strings.Split(out, "\n")
	if len(lines) > maxBullets {
		t.Errorf("bullet count = %d, want <= %d", len(lines), maxBullets)
	}
	for _, l := range lines {
		if len(l) > maxBulletLen {
			t.Errorf("bullet %q exceeds %d chars", l, maxBulletLen)
		}
		if !strings.HasPrefix(l, "- ") {
			t.Errorf("bullet %q missing prefix", l)
		}
	}
}

func TestColdStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	first := []ColdRecord{{ID: 1, Content: "alpha", ArchivedAt: now, CreatedAt: now.AddDate(-1, 0, 0)}}
	if _, err := appendCold(dir, now, first); err != nil {
		t.Fatalf("appendCold: %v", err)
	}
	second := []ColdRecord{{ID: 2, Content: "beta", Tags: []string{"db"}, ArchivedAt: now, CreatedAt: now.AddDate(-1, 0, 0)}}
	path, err := appendCold(dir, now, second)
	if err != nil {
		t.Fatalf("appendCold second member: %v", err)
	}
	if filepath.Base(path) != "archive-2026-03.json.gz" {
		t.Errorf("cold file name = %s", filepath.Base(path))
	}

	rec, err := readCold(dir, 2)
	if err != nil {
		t.Fatalf("readCold: %v", err)
	}
	if rec == nil || rec.Content != "beta" || len(rec.Tags) != 1 {
		t.Errorf("readCold(2) = %+v", rec)
	}
	rec, err = readCold(dir, 1)
	if err != nil || rec == nil || rec.Content != "alpha" {
		t.Errorf("readCold(1) = %+v, err %v", rec, err)
	}
	rec, err = readCold(dir, 99)
	if err != nil || rec != nil {
		t.Errorf("readCold(99) = %+v, err %v, want nil", rec, err)
	}
}

func TestRunCompressionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	dir := t.TempDir()

	original := strings.Repeat("The deployment pipeline must validate schema migrations before rollout. ", 140)
	id, err := s.Add(ctx, "default", store.AddInput{Content: original, Importance: 5})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.DB().Exec(
		`UPDATE memories SET created_at = datetime('now', '-100 days'), last_accessed = datetime('now', '-100 days') WHERE id = ?`, id); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	c := New(s, Config{
		BackupDir: filepath.Join(dir, "backups"),
		ColdDir:   filepath.Join(dir, "cold-storage"),
	})
	res, err := c.Run(ctx, "default")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ToTier2 != 1 {
		t.Errorf("ToTier2 = %d, want 1", res.ToTier2)
	}
	if res.Snapshot == "" {
		t.Error("expected a snapshot path")
	}

	tier := store.TierSummary
	ms, err := s.List(ctx, "default", store.ListFilters{Tier: &tier})
	if err != nil || len(ms) != 1 {
		t.Fatalf("List tier2: %v (%d rows)", err, len(ms))
	}
	if len(ms[0].Summary) > 1000 {
		t.Errorf("summary length = %d, want <= 1000", len(ms[0].Summary))
	}

	rec, err := s.GetArchive(ctx, id)
	if err != nil {
		t.Fatalf("GetArchive: %v", err)
	}
	if rec.FullContent != original {
		t.Error("archive does not hold the original content byte-for-byte")
	}

	if err := c.Restore(ctx, "default", id); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	tier = store.TierFull
	ms, err = s.List(ctx, "default", store.ListFilters{Tier: &tier})
	if err != nil || len(ms) != 1 {
		t.Fatalf("List tier1 after restore: %v (%d rows)", err, len(ms))
	}
	if ms[0].Content != original {
		t.Error("restored content differs from the original")
	}
}

func TestRunProgressesOneTierPerPass(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	dir := t.TempDir()

	original := strings.Repeat("The legacy importer breaks on malformed csv rows. ", 40)
	id, err := s.Add(ctx, "default", store.AddInput{Content: original, Tags: []string{"legacy"}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.DB().Exec(
		`UPDATE memories SET created_at = datetime('now', '-400 days'), last_accessed = datetime('now', '-400 days') WHERE id = ?`, id); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	c := New(s, Config{
		BackupDir: filepath.Join(dir, "backups"),
		ColdDir:   filepath.Join(dir, "cold-storage"),
	})

	res, err := c.Run(ctx, "default")
	if err != nil {
		t.Fatalf("Run 1: %v", err)
	}
	if res.ToTier2 != 1 || res.ToCold != 0 {
		t.Fatalf("first pass: %+v, want one tier-2 move only", res)
	}

	res, err = c.Run(ctx, "default")
	if err != nil {
		t.Fatalf("Run 2: %v", err)
	}
	if res.ToTier3 != 1 {
		t.Fatalf("second pass: %+v, want one tier-3 move", res)
	}

	res, err = c.Run(ctx, "default")
	if err != nil {
		t.Fatalf("Run 3: %v", err)
	}
	if res.ToCold != 1 {
		t.Fatalf("third pass: %+v, want one cold move", res)
	}
	if n, err := s.CountMemories(ctx, "default"); err != nil || n != 0 {
		t.Fatalf("memories after cold move = %d (err %v), want 0", n, err)
	}

	// Restore pulls the original back out of the monthly archive file
	// under its old id.
	if err := c.Restore(ctx, "default", id); err != nil {
		t.Fatalf("Restore from cold: %v", err)
	}
	tier := store.TierFull
	ms, err := s.List(ctx, "default", store.ListFilters{Tier: &tier})
	if err != nil || len(ms) != 1 {
		t.Fatalf("List after cold restore: err=%v rows=%d", err, len(ms))
	}
	if ms[0].ID != id || ms[0].Content != original {
		t.Error("cold restore did not recover the original content under the original id")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	dir := t.TempDir()

	id, err := s.Add(ctx, "default", store.AddInput{Content: strings.Repeat("Cache invalidation notes. ", 50)})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.DB().Exec(
		`UPDATE memories SET created_at = datetime('now', '-45 days'), last_accessed = datetime('now', '-45 days') WHERE id = ?`, id); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	c := New(s, Config{
		BackupDir: filepath.Join(dir, "backups"),
		ColdDir:   filepath.Join(dir, "cold-storage"),
	})
	if _, err := c.Run(ctx, "default"); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	res, err := c.Run(ctx, "default")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.ToTier2 != 0 || res.ToTier3 != 0 || res.ToCold != 0 {
		t.Errorf("second run changed tiers: %+v", res)
	}
}
