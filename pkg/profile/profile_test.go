package profile

import (
	"path/filepath"
	"testing"
)

func TestOpenCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	m, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m.Active() != "default" {
		t.Errorf("Active() = %q, want default", m.Active())
	}
}

func TestCreateSwitchRename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	m, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := m.Create("work", "work context"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create("work", ""); err != ErrAlreadyExists {
		t.Fatalf("Create duplicate = %v, want ErrAlreadyExists", err)
	}
	if err := m.Switch("work"); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if m.Active() != "work" {
		t.Errorf("Active() = %q, want work", m.Active())
	}
	if err := m.Rename("work", "job"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if m.Active() != "job" {
		t.Errorf("Active() after rename = %q, want job", m.Active())
	}

	m2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if m2.Active() != "job" {
		t.Errorf("reopened Active() = %q, want job", m2.Active())
	}
}

func TestDeleteActiveRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	m, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Delete("default"); err == nil {
		t.Fatal("Delete(active) should fail")
	}
}
