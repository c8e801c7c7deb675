package msgcrypto

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/omniai-app/securekit/internal/errs"
	"github.com/omniai-app/securekit/internal/keystore"
)

func newService(t *testing.T) *Service {
	t.Helper()
	s := NewService(keystore.NewMemStore(), nil, nil, zap.NewNop(), "device-a")
	if err := s.EnsureKeys(); err != nil {
		t.Fatalf("EnsureKeys: %v", err)
	}
	return s
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newService(t)
	cases := []string{
		"hello",
		"ünïcodé ✓ 感情日記 🙂",
		strings.Repeat("long message ", 4096),
		" ",
	}
	for _, pt := range cases {
		msg, err := s.Encrypt(pt, nil)
		if err != nil {
			t.Fatalf("Encrypt(%q...): %v", pt[:min(8, len(pt))], err)
		}
		got, err := s.Decrypt(context.Background(), msg)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != pt {
			t.Fatalf("round trip mismatch")
		}
	}
}

func TestEncrypt_EmptyPlaintextIsInvalidInput(t *testing.T) {
	t.Parallel()
	s := newService(t)
	if _, err := s.Encrypt("", nil); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	t.Parallel()
	s := newService(t)
	a, err := s.Encrypt("same plaintext", nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := s.Encrypt("same plaintext", nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Fatalf("identical ciphertext blobs: nonce reuse")
	}
}

func TestEncrypt_MissingKeyIsKeyNotFound(t *testing.T) {
	t.Parallel()
	// No EnsureKeys: the symmetric key must never be silently generated here.
	s := NewService(keystore.NewMemStore(), nil, nil, zap.NewNop(), "device-a")
	if _, err := s.Encrypt("text", nil); !errors.Is(err, errs.ErrKeyNotFound) {
		t.Fatalf("want ErrKeyNotFound, got %v", err)
	}
}

func TestDecrypt_TamperedByteFailsClosed(t *testing.T) {
	t.Parallel()
	s := newService(t)
	msg, err := s.Encrypt("tamper me", nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	for i := range msg.Ciphertext {
		corrupted := *msg
		corrupted.Ciphertext = append([]byte(nil), msg.Ciphertext...)
		corrupted.Ciphertext[i] ^= 0x01
		if _, err := s.Decrypt(context.Background(), &corrupted); !errors.Is(err, errs.ErrDecryptionFailed) {
			t.Fatalf("byte %d flipped: want ErrDecryptionFailed, got %v", i, err)
		}
	}
}

func TestDecrypt_WrongKeyIsDecryptionFailedNotKeyNotFound(t *testing.T) {
	t.Parallel()
	a := newService(t)
	b := newService(t) // different symmetric key
	msg, err := a.Encrypt("secret", nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := b.Decrypt(context.Background(), msg); !errors.Is(err, errs.ErrDecryptionFailed) {
		t.Fatalf("want ErrDecryptionFailed, got %v", err)
	}
}

func TestKeyContinuity_AcrossStoreReopen(t *testing.T) {
	t.Parallel()
	path := t.TempDir() + "/store.sealed"
	store, err := keystore.OpenFileStore(path, []byte("secret"))
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	s := NewService(store, nil, nil, zap.NewNop(), "device-a")
	if err := s.EnsureKeys(); err != nil {
		t.Fatalf("EnsureKeys: %v", err)
	}
	msg, err := s.Encrypt("before restart", nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// Simulated restart: a fresh store over the same file.
	reopened, err := keystore.OpenFileStore(path, []byte("secret"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s2 := NewService(reopened, nil, nil, zap.NewNop(), "device-a")
	got, err := s2.Decrypt(context.Background(), msg)
	if err != nil {
		t.Fatalf("Decrypt after restart: %v", err)
	}
	if got != "before restart" {
		t.Fatalf("got %q", got)
	}
}

type fakeDirectory struct {
	keys map[string][]byte
	err  error
}

func (d *fakeDirectory) PublicKey(_ context.Context, deviceID string) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	pub, ok := d.keys[deviceID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return pub, nil
}

func TestWrappedMessage_RecipientDecryptsViaDirectory(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{keys: map[string][]byte{}}

	sender := NewService(keystore.NewMemStore(), dir, nil, zap.NewNop(), "sender")
	if err := sender.EnsureKeys(); err != nil {
		t.Fatal(err)
	}
	senderPub, err := sender.PublicKey()
	if err != nil {
		t.Fatal(err)
	}
	dir.keys["sender"] = senderPub

	recipient := NewService(keystore.NewMemStore(), dir, nil, zap.NewNop(), "recipient")
	if err := recipient.EnsureKeys(); err != nil {
		t.Fatal(err)
	}
	recipientPub, err := recipient.PublicKey()
	if err != nil {
		t.Fatal(err)
	}

	msg, err := sender.Encrypt("for your eyes only", recipientPub)
	if err != nil {
		t.Fatalf("Encrypt wrapped: %v", err)
	}
	if !msg.Recipient() {
		t.Fatalf("wrapped-key blob missing")
	}

	got, err := recipient.Decrypt(context.Background(), msg)
	if err != nil {
		t.Fatalf("recipient Decrypt: %v", err)
	}
	if got != "for your eyes only" {
		t.Fatalf("got %q", got)
	}

	// A third party holding neither the private key nor the symmetric key
	// cannot open the wrapped message.
	outsider := NewService(keystore.NewMemStore(), dir, nil, zap.NewNop(), "outsider")
	if err := outsider.EnsureKeys(); err != nil {
		t.Fatal(err)
	}
	if _, err := outsider.Decrypt(context.Background(), msg); err == nil {
		t.Fatalf("outsider decrypted a wrapped message")
	}
}

func TestWrappedMessage_EmbeddedKeyFallback(t *testing.T) {
	t.Parallel()
	failing := &fakeDirectory{err: errors.New("directory down")}

	sender := NewService(keystore.NewMemStore(), nil, nil, zap.NewNop(), "sender")
	if err := sender.EnsureKeys(); err != nil {
		t.Fatal(err)
	}
	recipient := NewService(keystore.NewMemStore(), failing, nil, zap.NewNop(), "recipient")
	if err := recipient.EnsureKeys(); err != nil {
		t.Fatal(err)
	}
	recipientPub, err := recipient.PublicKey()
	if err != nil {
		t.Fatal(err)
	}

	msg, err := sender.Encrypt("fallback path", recipientPub)
	if err != nil {
		t.Fatal(err)
	}
	got, err := recipient.Decrypt(context.Background(), msg)
	if err != nil {
		t.Fatalf("Decrypt with embedded sender key: %v", err)
	}
	if got != "fallback path" {
		t.Fatalf("got %q", got)
	}

	// Without directory and without the embedded key there is nothing to
	// agree with.
	msg.SenderPublicKey = nil
	if _, err := recipient.Decrypt(context.Background(), msg); !errors.Is(err, errs.ErrSenderKeyUnavailable) {
		t.Fatalf("want ErrSenderKeyUnavailable, got %v", err)
	}
}

func TestIntegrityTag(t *testing.T) {
	t.Parallel()
	s := newService(t)
	tag, err := s.GenerateIntegrityTag("the decrypted content")
	if err != nil {
		t.Fatalf("GenerateIntegrityTag: %v", err)
	}
	ok, err := s.VerifyIntegrityTag(tag, "the decrypted content")
	if err != nil || !ok {
		t.Fatalf("tag must verify for same text: ok=%v err=%v", ok, err)
	}
	ok, err = s.VerifyIntegrityTag(tag, "the decrypted content.")
	if err != nil {
		t.Fatalf("VerifyIntegrityTag: %v", err)
	}
	if ok {
		t.Fatalf("tag verified for different text")
	}
}

func TestDeleteKeys_CryptoShred(t *testing.T) {
	t.Parallel()
	s := newService(t)
	msg, err := s.Encrypt("soon unrecoverable", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteKeys(); err != nil {
		t.Fatalf("DeleteKeys: %v", err)
	}
	if _, err := s.Decrypt(context.Background(), msg); !errors.Is(err, errs.ErrKeyNotFound) {
		t.Fatalf("want ErrKeyNotFound after shred, got %v", err)
	}
	if _, err := s.Encrypt("new", nil); !errors.Is(err, errs.ErrKeyNotFound) {
		t.Fatalf("Encrypt after shred must not regenerate keys, got %v", err)
	}
}

func TestWire_RoundTripIncludingWrappedKey(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{keys: map[string][]byte{}}
	sender := NewService(keystore.NewMemStore(), dir, nil, zap.NewNop(), "sender")
	if err := sender.EnsureKeys(); err != nil {
		t.Fatal(err)
	}
	recipient := NewService(keystore.NewMemStore(), dir, nil, zap.NewNop(), "recipient")
	if err := recipient.EnsureKeys(); err != nil {
		t.Fatal(err)
	}
	recipientPub, _ := recipient.PublicKey()
	senderPub, _ := sender.PublicKey()
	dir.keys["sender"] = senderPub

	msg, err := sender.Encrypt("over the wire", recipientPub)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, err := recipient.Decrypt(context.Background(), decoded)
	if err != nil {
		t.Fatalf("Decrypt decoded: %v", err)
	}
	if got != "over the wire" {
		t.Fatalf("got %q", got)
	}
}

func TestWire_FutureVersionRejected(t *testing.T) {
	t.Parallel()
	s := newService(t)
	msg, err := s.Encrypt("x", nil)
	if err != nil {
		t.Fatal(err)
	}
	msg.Version = 99
	raw, err := Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(raw); err == nil {
		t.Fatalf("future format version must be rejected")
	}
}
