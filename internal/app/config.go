package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"go.etcd.io/bbolt"

	"github.com/florianilch/craftauth/internal/storage"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// StorageType represents the storage backends selectable through configuration.
// The callback-based custom backend is wired programmatically, not via config.
type StorageType string

const (
	StorageTypeFile    StorageType = "file"
	StorageTypeMemory  StorageType = "memory"
	StorageTypeBolt    StorageType = "bolt"
	StorageTypeKeyring StorageType = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat    = LogFormatText
	DefaultConfigStorageType  = StorageTypeFile
	DefaultConfigRedirectPort = 8735

	keyringService = "craftauth"
)

// AuthConfig holds identity provider configuration.
type AuthConfig struct {
	// ClientID is the OAuth client identifier required for federated login.
	// Its absence fails federated operations before any network call.
	ClientID string `json:"client_id,omitempty"`

	// RedirectPort is the localhost port used to capture the authorization
	// code redirect during federated login.
	RedirectPort uint16 `json:"redirect_port"`
}

// StorageConfig describes where the vault's key and account blob live.
type StorageConfig struct {
	Type StorageType `json:"type" validate:"required,oneof=file memory bolt keyring"`

	// Type-specific settings (mutually exclusive based on Type)
	Dir         string `json:"dir,omitempty"`          // For file storage: vault directory
	BoltPath    string `json:"bolt_path,omitempty"`    // For bolt storage: database file path
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewBackend creates a storage backend from the configuration. The returned
// close function releases backend resources (the bolt handle); it is a no-op
// for the other types.
func (s *StorageConfig) NewBackend() (storage.Backend, func() error, error) {
	noop := func() error { return nil }

	switch s.Type {
	case StorageTypeFile:
		backend, err := storage.NewFileBackend(s.Dir)
		return backend, noop, err
	case StorageTypeMemory:
		return storage.NewMemoryBackend(), noop, nil
	case StorageTypeBolt:
		db, err := bbolt.Open(s.BoltPath, 0600, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("opening bolt database: %w", err)
		}
		backend, err := storage.NewBoltBackend(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return backend, db.Close, nil
	case StorageTypeKeyring:
		backend, err := storage.NewKeyringBackend(keyringService, s.KeyringUser)
		return backend, noop, err
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", s.Type)
	}
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level    `json:"log_level"`
	LogFormat LogFormat     `json:"log_format" validate:"oneof=text json"`
	Auth      AuthConfig    `json:"auth"`
	Storage   StorageConfig `json:"storage"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Auth.RedirectPort == 0 {
		c.Auth.RedirectPort = DefaultConfigRedirectPort
	}
	if c.Storage.Type == "" {
		c.Storage.Type = DefaultConfigStorageType
	}

	// Dynamic defaults based on storage type
	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.Dir == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.dir required (auto-detect failed: %w)", err)
			}
			c.Storage.Dir = filepath.Join(configDir, "craftauth")
		}
	case StorageTypeBolt:
		if c.Storage.BoltPath == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.bolt_path required (auto-detect failed: %w)", err)
			}
			c.Storage.BoltPath = filepath.Join(configDir, "craftauth", "settings.db")
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("storage.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Storage.KeyringUser = currentUser.Username
		}
	case StorageTypeMemory:
		// nothing to default
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.Dir == "" {
			return errors.New("dir required for file storage")
		}
	case StorageTypeBolt:
		if c.Storage.BoltPath == "" {
			return errors.New("bolt_path required for bolt storage")
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	case StorageTypeMemory:
		// nothing to validate
	}

	return nil
}
