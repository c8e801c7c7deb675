// Package config loads the client security configuration from a YAML file
// with environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/omniai-app/securekit/internal/certpin"
	"github.com/omniai-app/securekit/internal/errs"
	"github.com/omniai-app/securekit/internal/model"
)

// Audit tunes the tamper-evident logger.
type Audit struct {
	FlushInterval  time.Duration `yaml:"flush_interval"`
	FlushThreshold int           `yaml:"flush_threshold"`
	QueuePath      string        `yaml:"queue_path"`
	StoreURL       string        `yaml:"store_url"`
}

// Network tunes the pinned HTTP client.
type Network struct {
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	TransferTimeout time.Duration `yaml:"transfer_timeout"`
}

// Config is the full client security configuration.
type Config struct {
	TrustMode model.TrustMode `yaml:"trust_mode"`
	Pins      certpin.PinSet  `yaml:"pins"`
	Network   Network         `yaml:"network"`
	Audit     Audit           `yaml:"audit"`

	KeystorePath    string `yaml:"keystore_path"`
	LegacyPrefsPath string `yaml:"legacy_prefs_path"`
	KeyDirectoryURL string `yaml:"key_directory_url"`

	// DeviceSecret unlocks the keystore. Never stored in the file; taken
	// from SECUREKIT_DEVICE_SECRET.
	DeviceSecret string `yaml:"-"`
	// StoreToken authenticates against the audit store. Taken from
	// SECUREKIT_STORE_TOKEN, with the file value as fallback for dev setups.
	StoreToken string `yaml:"store_token"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		TrustMode: model.TrustStrict,
		Network: Network{
			RequestTimeout:  30 * time.Second,
			TransferTimeout: 2 * time.Minute,
		},
		Audit: Audit{
			FlushInterval:  time.Minute,
			FlushThreshold: 50,
		},
	}
}

// Load reads path, applies defaults for absent fields and environment
// overrides for secrets. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if v := os.Getenv("SECUREKIT_DEVICE_SECRET"); v != "" {
		cfg.DeviceSecret = v
	}
	if v := os.Getenv("SECUREKIT_STORE_TOKEN"); v != "" {
		cfg.StoreToken = v
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.TrustMode.Valid() {
		return fmt.Errorf("%w: trust_mode %q", errs.ErrInvalidInput, c.TrustMode)
	}
	if c.Network.RequestTimeout <= 0 || c.Network.TransferTimeout <= 0 {
		return fmt.Errorf("%w: network timeouts must be positive", errs.ErrInvalidInput)
	}
	if c.Audit.FlushInterval <= 0 || c.Audit.FlushThreshold <= 0 {
		return fmt.Errorf("%w: audit flush settings must be positive", errs.ErrInvalidInput)
	}
	return nil
}
