// Package model defines domain entities shared by the security subsystem.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// EventType classifies an audit event. The set is closed; unknown values are
// rejected at the store boundary.
type EventType string

const (
	EventAuthentication   EventType = "authentication"
	EventDataAccess       EventType = "data_access"
	EventSecurityIncident EventType = "security_incident"
	EventPayment          EventType = "payment"
	EventError            EventType = "error"
	EventUserAction       EventType = "user_action"
)

// Valid reports whether t is a member of the closed EventType set.
func (t EventType) Valid() bool {
	switch t {
	case EventAuthentication, EventDataAccess, EventSecurityIncident,
		EventPayment, EventError, EventUserAction:
		return true
	}
	return false
}

// Severity grades an audit event independently of its type.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a member of the closed Severity set.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// DeviceInfo is the device-fingerprint snapshot embedded in every audit event.
type DeviceInfo struct {
	Model      string `json:"model"`
	OSName     string `json:"os_name"`
	OSVersion  string `json:"os_version"`
	AppVersion string `json:"app_version"`
	AppBuild   string `json:"app_build"`
	InstallID  string `json:"install_id"` // stable per-device install id
}

// AuditEvent is an immutable record of one security-relevant occurrence.
// It is write-once: no field changes after construction, and IntegrityHash is
// computed exactly once.
type AuditEvent struct {
	ID            uuid.UUID         `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Type          EventType         `json:"type"`
	Severity      Severity          `json:"severity"`
	UserID        string            `json:"user_id,omitempty"`    // absent for anonymous/guest events
	SessionID     string            `json:"session_id,omitempty"`
	Action        string            `json:"action"`
	Detail        map[string]string `json:"detail,omitempty"`
	Device        DeviceInfo        `json:"device"`
	IPAddress     string            `json:"ip_address,omitempty"` // not always obtainable client-side
	Location      string            `json:"location,omitempty"`
	IntegrityHash string            `json:"integrity_hash"`
}

// ComputeIntegrityHash returns the tamper-evidence hash over the event's fixed
// fields. Verifying integrity means recomputing this and comparing; the stored
// hash is never recomputed in place.
func (e *AuditEvent) ComputeIntegrityHash() string {
	var b strings.Builder
	b.WriteString(e.ID.String())
	b.WriteByte('|')
	b.WriteString(e.Timestamp.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(string(e.Type))
	b.WriteByte('|')
	b.WriteString(string(e.Severity))
	b.WriteByte('|')
	b.WriteString(e.UserID)
	b.WriteByte('|')
	b.WriteString(e.Action)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity recomputes the hash and compares it to the stored one.
func (e *AuditEvent) VerifyIntegrity() bool {
	return e.IntegrityHash != "" && e.IntegrityHash == e.ComputeIntegrityHash()
}

// MessageFormatVersion is the current EncryptedMessage wire format version.
const MessageFormatVersion = 1

// EncryptedMessage is the wire/storage representation of one encrypted payload.
// Ciphertext is nonce||ct||tag concatenated per the underlying AEAD.
type EncryptedMessage struct {
	Version         int       `cbor:"1,keyasint" json:"version"`
	Ciphertext      []byte    `cbor:"2,keyasint" json:"ciphertext"`
	WrappedKey      []byte    `cbor:"3,keyasint,omitempty" json:"wrapped_key,omitempty"`
	SenderDeviceID  string    `cbor:"4,keyasint" json:"sender_device_id"`
	SenderPublicKey []byte    `cbor:"5,keyasint,omitempty" json:"sender_public_key,omitempty"`
	CreatedAt       time.Time `cbor:"6,keyasint" json:"created_at"`
}

// Recipient reports whether the message was wrapped for a specific recipient's
// public key. A wrapped message cannot be decrypted without the matching
// private key; an unwrapped one only by a holder of the same symmetric key.
func (m *EncryptedMessage) Recipient() bool { return len(m.WrappedKey) > 0 }
