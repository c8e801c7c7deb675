package keystore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/omniai-app/securekit/internal/errs"
)

func newStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.sealed")
	s, err := OpenFileStore(path, []byte("device-secret"))
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	return s, path
}

func TestFileStore_PutGetDelete(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)

	if err := s.Put("ns.key", []byte("value"), DefaultAttributes); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get("ns.key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("value")) {
		t.Fatalf("got %q, want %q", got, "value")
	}
	if err := s.Delete("ns.key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("ns.key"); !errors.Is(err, errs.ErrAbsent) {
		t.Fatalf("want ErrAbsent after delete, got %v", err)
	}
}

func TestFileStore_AbsentIsNotAnError(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)
	if _, err := s.Get("never-set"); !errors.Is(err, errs.ErrAbsent) {
		t.Fatalf("want ErrAbsent for never-set key, got %v", err)
	}
	// deleting a never-set key is a no-op, not a failure
	if err := s.Delete("never-set"); err != nil {
		t.Fatalf("Delete never-set: %v", err)
	}
}

func TestFileStore_PutReplacesFully(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)
	if err := s.Put("k", []byte("first"), DefaultAttributes); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put("k", []byte("second"), DefaultAttributes); err != nil {
		t.Fatalf("Put replace: %v", err)
	}
	got, err := s.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("got %q, want second", got)
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	t.Parallel()
	s, path := newStore(t)
	if err := s.Put("sym", []byte("key-material"), DefaultAttributes); err != nil {
		t.Fatalf("Put: %v", err)
	}

	again, err := OpenFileStore(path, []byte("device-secret"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := again.Get("sym")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "key-material" {
		t.Fatalf("got %q after reopen", got)
	}
}

func TestFileStore_WrongSecretDeniesAccess(t *testing.T) {
	t.Parallel()
	s, path := newStore(t)
	if err := s.Put("k", []byte("v"), DefaultAttributes); err != nil {
		t.Fatalf("Put: %v", err)
	}
	other, err := OpenFileStore(path, []byte("wrong-secret"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := other.Get("k"); !errors.Is(err, errs.ErrAccessDenied) {
		t.Fatalf("want ErrAccessDenied with wrong secret, got %v", err)
	}
}

func TestFileStore_FilePermissions(t *testing.T) {
	t.Parallel()
	s, path := newStore(t)
	if err := s.Put("k", []byte("v"), DefaultAttributes); err != nil {
		t.Fatalf("Put: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm=%o, want 600", perm)
	}
}
