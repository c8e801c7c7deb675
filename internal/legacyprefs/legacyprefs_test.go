package legacyprefs

import (
	"os"
	"path/filepath"
	"testing"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "prefs.json"))
}

func TestSetGetDelete(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	if err := s.Set("theme", "dark"); err != nil {
		t.Fatalf("set: %v", err)
	}

	v, ok, err := s.Get("theme")
	if err != nil || !ok || v != "dark" {
		t.Fatalf("get = %q %v %v", v, ok, err)
	}

	if err := s.Delete("theme"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, ok, err = s.Get("theme")
	if err != nil || ok {
		t.Fatalf("deleted key still present: %v %v", ok, err)
	}
}

func TestGet_AbsentKeyIsNotError(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	_, ok, err := s.Get("never-set")
	if err != nil {
		t.Fatalf("absent key must not error: %v", err)
	}
	if ok {
		t.Fatal("absent key reported present")
	}
}

func TestKeys_Sorted(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	for _, k := range []string{"zeta", "alpha", "mid"} {
		if err := s.Set(k, "v"); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := s.Keys()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "prefs.json")
	s := NewFileStore(path)
	if err := s.Set("userToken", "abc123"); err != nil {
		t.Fatal(err)
	}

	reopened := NewFileStore(path)
	v, ok, err := reopened.Get("userToken")
	if err != nil || !ok || v != "abc123" {
		t.Fatalf("reopened get = %q %v %v", v, ok, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("prefs file mode = %v", info.Mode().Perm())
	}
}
