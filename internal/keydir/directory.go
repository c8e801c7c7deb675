// Package keydir resolves peer public keys for the message crypto key-exchange
// path. The directory is a first-class collaborator: recipient-wrapped
// messages need the sender's public key, which travels out-of-band through a
// registration/lookup service rather than being guessed.
package keydir

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/omniai-app/securekit/internal/securenet"
)

// Directory looks up the X25519 public key registered for a device.
type Directory interface {
	PublicKey(ctx context.Context, deviceID string) ([]byte, error)
}

// Publisher registers the local public key so peers can complete the
// key agreement.
type Publisher interface {
	Publish(ctx context.Context, deviceID string, publicKey []byte) error
}

// TokenSource supplies the caller's bearer credential.
type TokenSource func() string

// HTTPDirectory talks to the first-party key directory over the pinned client.
type HTTPDirectory struct {
	client  *securenet.Client
	baseURL string
	token   TokenSource
}

// NewHTTPDirectory builds a directory client for baseURL (no trailing slash).
func NewHTTPDirectory(client *securenet.Client, baseURL string, token TokenSource) *HTTPDirectory {
	return &HTTPDirectory{client: client, baseURL: baseURL, token: token}
}

type keyDocument struct {
	DeviceID  string `json:"device_id"`
	PublicKey string `json:"public_key"` // base64
}

// PublicKey fetches the registered key for deviceID.
func (d *HTTPDirectory) PublicKey(ctx context.Context, deviceID string) ([]byte, error) {
	var doc keyDocument
	url := d.baseURL + "/v1/devices/" + deviceID + "/public-key"
	if err := d.client.GetJSON(ctx, url, &doc, securenet.WithBearer(d.token())); err != nil {
		return nil, fmt.Errorf("keydir: lookup %s: %w", deviceID, err)
	}
	raw, err := base64.StdEncoding.DecodeString(doc.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("keydir: malformed key for %s: %w", deviceID, err)
	}
	return raw, nil
}

// Publish registers publicKey under deviceID.
func (d *HTTPDirectory) Publish(ctx context.Context, deviceID string, publicKey []byte) error {
	doc := keyDocument{DeviceID: deviceID, PublicKey: base64.StdEncoding.EncodeToString(publicKey)}
	url := d.baseURL + "/v1/devices/" + deviceID + "/public-key"
	if err := d.client.PostJSON(ctx, url, doc, nil, securenet.WithBearer(d.token())); err != nil {
		return fmt.Errorf("keydir: publish %s: %w", deviceID, err)
	}
	return nil
}
