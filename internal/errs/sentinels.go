// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across the security subsystem.
var (
	// ErrAbsent indicates a key was never set in the secure store.
	// Callers must distinguish it from an access failure.
	ErrAbsent = errors.New("absent")

	// ErrAccessDenied indicates the underlying store refused the operation.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidInput indicates empty or unencodable input to a crypto operation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrKeyNotFound indicates required key material is missing from the secure store.
	ErrKeyNotFound = errors.New("key not found")

	// ErrEncryptionFailed indicates the underlying AEAD rejected the encryption.
	ErrEncryptionFailed = errors.New("encryption failed")

	// ErrDecryptionFailed indicates ciphertext authentication failed (tampered or wrong key).
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrSenderKeyUnavailable indicates the sender's public key could not be
	// resolved for a recipient-wrapped message.
	ErrSenderKeyUnavailable = errors.New("sender key unavailable")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the caller is temporarily throttled.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
)
