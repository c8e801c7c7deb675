// Package msgcrypto provides authenticated encryption and keyed integrity over
// message payloads. Key material lives in the secure store and is never cached
// in memory beyond the duration of one call.
package msgcrypto

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/omniai-app/securekit/internal/audit"
	"github.com/omniai-app/securekit/internal/errs"
	"github.com/omniai-app/securekit/internal/keydir"
	"github.com/omniai-app/securekit/internal/keystore"
	"github.com/omniai-app/securekit/internal/model"
)

// Fixed secure-store names for the local key material.
const (
	NameSymmetricKey = "securekit.message.symmetric"
	NamePrivateKey   = "securekit.message.x25519.private"
	NamePublicKey    = "securekit.message.x25519.public"
)

const (
	symKeyLen   = chacha20poly1305.KeySize
	wrapKeyInfo = "securekit message key wrap v1"
)

// Service owns the local symmetric key and X25519 key pair.
type Service struct {
	store    keystore.Store
	dir      keydir.Directory // may be nil: wrapped decrypts then rely on the embedded sender key
	auditor  *audit.Logger
	log      *zap.Logger
	deviceID string
}

// NewService builds the crypto service. auditor may be nil in tests.
func NewService(store keystore.Store, dir keydir.Directory, auditor *audit.Logger, log *zap.Logger, deviceID string) *Service {
	return &Service{store: store, dir: dir, auditor: auditor, log: log, deviceID: deviceID}
}

// EnsureKeys generates and persists the symmetric key and X25519 key pair if
// absent. Existing keys are never replaced. Each generation is audited.
func (s *Service) EnsureKeys() error {
	if _, err := s.store.Get(NameSymmetricKey); errors.Is(err, errs.ErrAbsent) {
		key := make([]byte, symKeyLen)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("msgcrypto: generate symmetric key: %w", err)
		}
		if err := s.store.Put(NameSymmetricKey, key, keystore.DefaultAttributes); err != nil {
			return fmt.Errorf("msgcrypto: persist symmetric key: %w", err)
		}
		s.auditKeyGeneration("xchacha20poly1305", symKeyLen)
	} else if err != nil {
		return err
	}

	if _, err := s.store.Get(NamePrivateKey); errors.Is(err, errs.ErrAbsent) {
		priv := make([]byte, curve25519.ScalarSize)
		if _, err := rand.Read(priv); err != nil {
			return fmt.Errorf("msgcrypto: generate key pair: %w", err)
		}
		pub, err := curve25519.X25519(priv, curve25519.Basepoint)
		if err != nil {
			return fmt.Errorf("msgcrypto: derive public key: %w", err)
		}
		if err := s.store.Put(NamePrivateKey, priv, keystore.DefaultAttributes); err != nil {
			return fmt.Errorf("msgcrypto: persist private key: %w", err)
		}
		if err := s.store.Put(NamePublicKey, pub, keystore.DefaultAttributes); err != nil {
			return fmt.Errorf("msgcrypto: persist public key: %w", err)
		}
		s.auditKeyGeneration("x25519", curve25519.ScalarSize)
	} else if err != nil {
		return err
	}
	return nil
}

// PublicKey returns the local X25519 public key for registration with the
// key directory.
func (s *Service) PublicKey() ([]byte, error) {
	pub, err := s.store.Get(NamePublicKey)
	if errors.Is(err, errs.ErrAbsent) {
		return nil, errs.ErrKeyNotFound
	}
	return pub, err
}

// Encrypt seals plaintext under the local symmetric key with a fresh random
// nonce. When recipientPublicKey is supplied, a copy of the symmetric key is
// additionally wrapped for that recipient via X25519 key agreement. Encrypt
// never generates a replacement key: a missing symmetric key fails with
// KeyNotFound so prior conversation history stays decryptable under one key.
func (s *Service) Encrypt(plaintext string, recipientPublicKey []byte) (*model.EncryptedMessage, error) {
	if plaintext == "" {
		return nil, errs.ErrInvalidInput
	}
	symKey, err := s.store.Get(NameSymmetricKey)
	if errors.Is(err, errs.ErrAbsent) {
		return nil, errs.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}

	blob, err := seal(symKey, []byte(plaintext))
	if err != nil {
		s.auditCryptoFailure("encrypt", len(plaintext), err)
		return nil, errs.ErrEncryptionFailed
	}

	msg := &model.EncryptedMessage{
		Version:        model.MessageFormatVersion,
		Ciphertext:     blob,
		SenderDeviceID: s.deviceID,
		CreatedAt:      time.Now().UTC(),
	}

	if recipientPublicKey != nil {
		priv, err := s.store.Get(NamePrivateKey)
		if errors.Is(err, errs.ErrAbsent) {
			return nil, errs.ErrKeyNotFound
		}
		if err != nil {
			return nil, err
		}
		wrapKey, err := agreeWrapKey(priv, recipientPublicKey)
		if err != nil {
			s.auditCryptoFailure("key_agreement", 0, err)
			return nil, errs.ErrEncryptionFailed
		}
		wrapped, err := seal(wrapKey, symKey)
		if err != nil {
			s.auditCryptoFailure("wrap_key", 0, err)
			return nil, errs.ErrEncryptionFailed
		}
		msg.WrappedKey = wrapped
		pub, err := s.store.Get(NamePublicKey)
		if err == nil {
			msg.SenderPublicKey = pub
		}
	}
	return msg, nil
}

// Decrypt opens msg. A wrapped message first recovers the symmetric key via
// key agreement with the sender's public key, resolved through the directory
// (or, failing that, the key embedded in the message, with a warning audit
// event). Tag mismatch reports DecryptionFailed, distinct from KeyNotFound.
func (s *Service) Decrypt(ctx context.Context, msg *model.EncryptedMessage) (string, error) {
	if msg == nil || len(msg.Ciphertext) == 0 {
		return "", errs.ErrInvalidInput
	}

	var symKey []byte
	if msg.Recipient() {
		senderPub, err := s.resolveSenderKey(ctx, msg)
		if err != nil {
			return "", err
		}
		priv, err := s.store.Get(NamePrivateKey)
		if errors.Is(err, errs.ErrAbsent) {
			return "", errs.ErrKeyNotFound
		}
		if err != nil {
			return "", err
		}
		wrapKey, err := agreeWrapKey(priv, senderPub)
		if err != nil {
			return "", errs.ErrDecryptionFailed
		}
		symKey, err = open(wrapKey, msg.WrappedKey)
		if err != nil {
			s.auditCryptoFailure("unwrap_key", 0, err)
			return "", errs.ErrDecryptionFailed
		}
	} else {
		var err error
		symKey, err = s.store.Get(NameSymmetricKey)
		if errors.Is(err, errs.ErrAbsent) {
			return "", errs.ErrKeyNotFound
		}
		if err != nil {
			return "", err
		}
	}

	pt, err := open(symKey, msg.Ciphertext)
	if err != nil {
		s.auditCryptoFailure("decrypt", len(msg.Ciphertext), err)
		return "", errs.ErrDecryptionFailed
	}
	return string(pt), nil
}

// resolveSenderKey prefers the directory lookup; the key embedded in the
// message is a degraded fallback that gets audited.
func (s *Service) resolveSenderKey(ctx context.Context, msg *model.EncryptedMessage) ([]byte, error) {
	if s.dir != nil && msg.SenderDeviceID != "" {
		pub, err := s.dir.PublicKey(ctx, msg.SenderDeviceID)
		if err == nil {
			return pub, nil
		}
		s.log.Warn("msgcrypto: directory lookup failed",
			zap.String("sender", msg.SenderDeviceID), zap.Error(err))
	}
	if len(msg.SenderPublicKey) > 0 {
		if s.auditor != nil {
			s.auditor.LogSecurityIncident("sender_key_from_message", model.SeverityWarning,
				map[string]string{"sender": msg.SenderDeviceID})
		}
		return msg.SenderPublicKey, nil
	}
	return nil, errs.ErrSenderKeyUnavailable
}

// GenerateIntegrityTag computes a keyed MAC over text under the local
// symmetric key, for integrity-only checking of content that travels
// alongside its ciphertext.
func (s *Service) GenerateIntegrityTag(text string) ([]byte, error) {
	if text == "" {
		return nil, errs.ErrInvalidInput
	}
	key, err := s.store.Get(NameSymmetricKey)
	if errors.Is(err, errs.ErrAbsent) {
		return nil, errs.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(text))
	return mac.Sum(nil), nil
}

// VerifyIntegrityTag recomputes the MAC and compares in constant time.
func (s *Service) VerifyIntegrityTag(tag []byte, text string) (bool, error) {
	want, err := s.GenerateIntegrityTag(text)
	if err != nil {
		return false, err
	}
	return hmac.Equal(tag, want), nil
}

// DeleteKeys irreversibly removes all key material. Messages encrypted solely
// under the deleted symmetric key become permanently undecryptable; this is
// the intended crypto-shred for account deletion, destructive and
// non-recoverable.
func (s *Service) DeleteKeys() error {
	var firstErr error
	for _, name := range []string{NameSymmetricKey, NamePrivateKey, NamePublicKey} {
		if err := s.store.Delete(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.auditor != nil {
		s.auditor.LogSecurityIncident("crypto_shred", model.SeverityCritical, nil)
	}
	return firstErr
}

func (s *Service) auditKeyGeneration(algorithm string, size int) {
	s.log.Info("msgcrypto: key generated", zap.String("algorithm", algorithm))
	if s.auditor == nil {
		return
	}
	s.auditor.Log(model.AuditEvent{
		Type:     model.EventSecurityIncident,
		Severity: model.SeverityInfo,
		Action:   "key_generated",
		Detail:   map[string]string{"algorithm": algorithm, "size": strconv.Itoa(size)},
	})
}

// auditCryptoFailure records the outcome with sizes and algorithm names only,
// never plaintext.
func (s *Service) auditCryptoFailure(op string, size int, err error) {
	s.log.Warn("msgcrypto: operation failed", zap.String("op", op), zap.Error(err))
	if s.auditor == nil {
		return
	}
	s.auditor.Log(model.AuditEvent{
		Type:     model.EventError,
		Severity: model.SeverityError,
		Action:   "crypto_" + op + "_failed",
		Detail:   map[string]string{"algorithm": "xchacha20poly1305", "size": strconv.Itoa(size)},
	})
}

// seal encrypts value as nonce||ct with a fresh random nonce.
func seal(key, value []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(value)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, value, nil)...)
	return out, nil
}

// open decrypts a nonce||ct blob.
func open(key, blob []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("blob too short")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:], nil)
}

// agreeWrapKey derives the wrapping key from an X25519 shared secret via
// HKDF-SHA256. Both sides compute the same secret from their own private key
// and the peer's public key.
func agreeWrapKey(privateKey, peerPublicKey []byte) ([]byte, error) {
	shared, err := curve25519.X25519(privateKey, peerPublicKey)
	if err != nil {
		return nil, err
	}
	r := hkdf.New(sha256.New, shared, nil, []byte(wrapKeyInfo))
	key := make([]byte, symKeyLen)
	if _, err := r.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
