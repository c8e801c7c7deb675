package keystore

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/omniai-app/securekit/internal/errs"
)

// Argon2id parameters for deriving the sealing key from the device secret.
const (
	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	rootKeyLen          = 32
	saltLen             = 16
)

// fileItem is one sealed entry on disk. Blob is nonce||ct under a per-item key.
type fileItem struct {
	Blob  []byte     `json:"blob"`
	Attrs Attributes `json:"attrs"`
}

type fileFormat struct {
	Salt  []byte              `json:"salt"`
	Items map[string]fileItem `json:"items"`
}

// FileStore is a Store backed by a single sealed file. Each item is
// individually encrypted with XChaCha20-Poly1305 under a key derived from the
// device secret via Argon2id and per-item HKDF. Writes go through a temp file
// and rename so a put is never partially observable.
type FileStore struct {
	mu      sync.Mutex
	path    string
	rootKey []byte
	data    fileFormat
}

// OpenFileStore opens or creates the sealed store at path, deriving the root
// key from deviceSecret. The file is created with 0600 permissions.
func OpenFileStore(path string, deviceSecret []byte) (*FileStore, error) {
	if len(deviceSecret) == 0 {
		return nil, errors.New("keystore: empty device secret")
	}
	s := &FileStore{path: path}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("keystore: parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		salt := make([]byte, saltLen)
		if err := randRead(salt); err != nil {
			return nil, err
		}
		s.data = fileFormat{Salt: salt, Items: make(map[string]fileItem)}
	default:
		return nil, fmt.Errorf("keystore: read %s: %w", path, err)
	}
	if s.data.Items == nil {
		s.data.Items = make(map[string]fileItem)
	}
	s.rootKey = argon2.IDKey(deviceSecret, s.data.Salt, argonTime, argonMemory, argonThreads, rootKeyLen)
	return s, nil
}

// itemKey derives a per-item key via HKDF-SHA256 using the item name as info.
func (s *FileStore) itemKey(name string) ([]byte, error) {
	r := hkdf.New(sha256.New, s.rootKey, nil, []byte(name))
	key := make([]byte, rootKeyLen)
	if _, err := r.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *FileStore) seal(name string, value []byte) ([]byte, error) {
	key, err := s.itemKey(name)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if err := randRead(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(value)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, value, []byte(name))...)
	return out, nil
}

func (s *FileStore) open(name string, blob []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, errs.ErrAccessDenied
	}
	key, err := s.itemKey(name)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:], []byte(name))
	if err != nil {
		return nil, errs.ErrAccessDenied
	}
	return pt, nil
}

// Put seals value under key and persists atomically. On persist failure the
// in-memory state is rolled back so the prior value stays readable.
func (s *FileStore) Put(key string, value []byte, attrs Attributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := s.seal(key, value)
	if err != nil {
		return fmt.Errorf("keystore: seal %s: %w", key, err)
	}
	prev, had := s.data.Items[key]
	s.data.Items[key] = fileItem{Blob: blob, Attrs: attrs}
	if err := s.persist(); err != nil {
		if had {
			s.data.Items[key] = prev
		} else {
			delete(s.data.Items, key)
		}
		return fmt.Errorf("keystore: persist: %w", err)
	}
	return nil
}

func (s *FileStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.data.Items[key]
	if !ok {
		return nil, errs.ErrAbsent
	}
	return s.open(key, item.Blob)
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Items[key]; !ok {
		return nil
	}
	prev := s.data.Items[key]
	delete(s.data.Items, key)
	if err := s.persist(); err != nil {
		s.data.Items[key] = prev
		return fmt.Errorf("keystore: persist: %w", err)
	}
	return nil
}

// persist writes the whole store to a temp file and renames it into place.
func (s *FileStore) persist() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".keystore-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}
