// Package keystore provides the secure key-value store for all key material
// and migrated secrets. Values are opaque byte blobs; the store never
// interprets contents.
package keystore

// Attributes are the protection properties a caller requests for an item.
// They must be requested explicitly per put, not assumed as defaults.
type Attributes struct {
	// RequireUnlock makes the item readable only while the device is unlocked.
	RequireUnlock bool
	// ThisDeviceOnly prevents migration of the item to another device.
	ThisDeviceOnly bool
	// ExcludeFromBackup keeps the item out of unencrypted backups.
	ExcludeFromBackup bool
}

// DefaultAttributes is the policy used for key material: unlock-required,
// device-bound, never backed up.
var DefaultAttributes = Attributes{
	RequireUnlock:     true,
	ThisDeviceOnly:    true,
	ExcludeFromBackup: true,
}

// Store is the secure key-value contract. Put either fully replaces the prior
// value or fails leaving it intact; Get on a never-set key returns
// errs.ErrAbsent, never an access error.
type Store interface {
	Put(key string, value []byte, attrs Attributes) error
	Get(key string) ([]byte, error)
	Delete(key string) error
}
