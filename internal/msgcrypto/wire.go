package msgcrypto

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/omniai-app/securekit/internal/errs"
	"github.com/omniai-app/securekit/internal/model"
)

// Encode serializes a message to its compact CBOR wire form.
func Encode(msg *model.EncryptedMessage) ([]byte, error) {
	if msg == nil {
		return nil, errs.ErrInvalidInput
	}
	raw, err := cbor.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("msgcrypto: encode: %w", err)
	}
	return raw, nil
}

// Decode parses the CBOR wire form. Unknown future format versions are
// rejected here rather than failing deeper inside decryption.
func Decode(raw []byte) (*model.EncryptedMessage, error) {
	if len(raw) == 0 {
		return nil, errs.ErrInvalidInput
	}
	var msg model.EncryptedMessage
	if err := cbor.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("msgcrypto: decode: %w", err)
	}
	if msg.Version > model.MessageFormatVersion {
		return nil, fmt.Errorf("msgcrypto: unsupported format version %d", msg.Version)
	}
	return &msg, nil
}
