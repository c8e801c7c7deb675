// Package securemigrate relocates sensitive values from the legacy unencrypted
// preference store into the secure key-value store, then scrubs the legacy
// store. The sweep runs once per install and is safe to retry in full after a
// crash.
package securemigrate

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omniai-app/securekit/internal/audit"
	"github.com/omniai-app/securekit/internal/keystore"
	"github.com/omniai-app/securekit/internal/legacyprefs"
	"github.com/omniai-app/securekit/internal/model"
)

// Migration bookkeeping lives in the ordinary preference store: the flag and
// timestamp are not themselves sensitive.
const (
	flagKey      = "securemigrate.complete"
	timestampKey = "securemigrate.completed_at"

	// migrated values land in the secure store under this namespace
	secureNamespace = "legacy."
)

// KnownSensitiveKeys is the fixed list of legacy keys that must move.
var KnownSensitiveKeys = []string{
	"userToken",
	"refreshToken",
	"sessionToken",
	"apiKey",
	"encryptionKey",
	"userCredentials",
	"devicePrivateKey",
}

// suspiciousFragments flag any legacy key whose name suggests secret
// material, beyond the fixed list (defense-in-depth sweep).
var suspiciousFragments = []string{
	"token", "key", "secret", "password", "credential", "auth", "api", "private", "session",
}

// Migrator performs the one-time sweep.
type Migrator struct {
	legacy  legacyprefs.Store
	secure  keystore.Store
	auditor *audit.Logger
	log     *zap.Logger
}

// NewMigrator builds a Migrator. auditor may be nil in tests.
func NewMigrator(legacy legacyprefs.Store, secure keystore.Store, auditor *audit.Logger, log *zap.Logger) *Migrator {
	return &Migrator{legacy: legacy, secure: secure, auditor: auditor, log: log}
}

// SecureKeyName returns the namespaced secure-store key for a legacy key.
func SecureKeyName(legacyKey string) string { return secureNamespace + legacyKey }

// Completed reports whether the sweep already ran on this install.
func (m *Migrator) Completed() (bool, error) {
	v, ok, err := m.legacy.Get(flagKey)
	if err != nil {
		return false, err
	}
	return ok && v == "true", nil
}

// Run executes the full sweep: the known-key list, the suspicious-name scan,
// the fail-safe deletion pass, then the completion flag. A failure on one key
// is logged and does not abort the rest; the flag is set only after the full
// sweep, so a crash mid-migration retries everything on next launch.
// Re-migrating an already-migrated key is a no-op (it is absent from the
// legacy store).
func (m *Migrator) Run() error {
	done, err := m.Completed()
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	moved, failed := 0, 0

	for _, key := range KnownSensitiveKeys {
		switch ok, err := m.moveKey(key); {
		case err != nil:
			failed++
		case ok:
			moved++
		}
	}

	keys, err := m.legacy.Keys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if !SuspiciousKeyName(key) {
			continue
		}
		switch ok, err := m.moveKey(key); {
		case err != nil:
			failed++
		case ok:
			moved++
		}
	}

	// Fail-safe deletion: anything suspicious still present gets removed even
	// if its migration failed. Better a lost stray value than plaintext.
	remaining, err := m.legacy.Keys()
	if err == nil {
		for _, key := range remaining {
			if SuspiciousKeyName(key) {
				if err := m.legacy.Delete(key); err != nil {
					m.log.Warn("securemigrate: fail-safe delete failed", zap.String("key", key), zap.Error(err))
				}
			}
		}
	}

	if err := m.legacy.Set(flagKey, "true"); err != nil {
		// Next launch retries the full sweep; already-moved keys are no-ops.
		return err
	}
	if err := m.legacy.Set(timestampKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		m.log.Warn("securemigrate: timestamp write failed", zap.Error(err))
	}

	m.log.Info("securemigrate: sweep complete", zap.Int("moved", moved), zap.Int("failed", failed))
	if m.auditor != nil {
		m.auditor.Log(model.AuditEvent{
			Type:     model.EventSecurityIncident,
			Severity: model.SeverityInfo,
			Action:   "secure_storage_migration",
			Detail:   map[string]string{"moved": strconv.Itoa(moved), "failed": strconv.Itoa(failed)},
		})
	}
	return nil
}

// moveKey relocates one legacy entry: secure copy created, then legacy entry
// deleted. Returns (false, nil) when the key is absent.
func (m *Migrator) moveKey(key string) (bool, error) {
	value, ok, err := m.legacy.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := m.secure.Put(SecureKeyName(key), []byte(value), keystore.DefaultAttributes); err != nil {
		m.log.Warn("securemigrate: secure write failed", zap.String("key", key), zap.Error(err))
		if m.auditor != nil {
			m.auditor.LogFailure("migrate_key", err)
		}
		return false, err
	}
	if err := m.legacy.Delete(key); err != nil {
		m.log.Warn("securemigrate: legacy delete failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return true, nil
}

// SuspiciousKeyName reports whether a key name suggests secret material.
// The migration's own bookkeeping keys are exempt.
func SuspiciousKeyName(key string) bool {
	if key == flagKey || key == timestampKey {
		return false
	}
	lower := strings.ToLower(key)
	for _, frag := range suspiciousFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
