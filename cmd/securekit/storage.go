package main

import (
	"errors"

	"github.com/omniai-app/securekit/internal/config"
	"github.com/omniai-app/securekit/internal/keystore"
	"github.com/omniai-app/securekit/internal/legacyprefs"
)

// openStores opens the sealed keystore and the legacy preference file from
// the loaded configuration.
func openStores(cfg config.Config) (*keystore.FileStore, *legacyprefs.FileStore, error) {
	if cfg.DeviceSecret == "" {
		return nil, nil, errors.New("SECUREKIT_DEVICE_SECRET is not set")
	}
	if cfg.KeystorePath == "" {
		return nil, nil, errors.New("keystore_path is not configured")
	}
	if cfg.LegacyPrefsPath == "" {
		return nil, nil, errors.New("legacy_prefs_path is not configured")
	}

	ks, err := keystore.OpenFileStore(cfg.KeystorePath, []byte(cfg.DeviceSecret))
	if err != nil {
		return nil, nil, err
	}
	return ks, legacyprefs.NewFileStore(cfg.LegacyPrefsPath), nil
}
