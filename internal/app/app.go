// Package app wires configuration into the vault, the auth manager and the
// metadata client.
package app

import (
	"fmt"

	"github.com/florianilch/craftauth/internal/auth"
	"github.com/florianilch/craftauth/internal/mcmeta"
	"github.com/florianilch/craftauth/internal/microsoft"
	"github.com/florianilch/craftauth/internal/mojang"
	"github.com/florianilch/craftauth/internal/storage"
	"github.com/florianilch/craftauth/internal/vault"
)

// App bundles the configured components. Vault state is loaded lazily on
// first use.
type App struct {
	Config  *Config
	Vault   *vault.Vault
	Manager *auth.Manager
	Meta    *mcmeta.Client

	closeBackend func() error
}

// New creates an App from validated configuration. No vault I/O is performed
// until the first operation.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	backend, closeBackend, err := cfg.Storage.NewBackend()
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}

	v := vault.New(backend)
	manager := auth.NewManager(v, mojang.NewClient(), microsoft.NewClient(cfg.Auth.ClientID))

	return &App{
		Config:       cfg,
		Vault:        v,
		Manager:      manager,
		Meta:         mcmeta.NewClient(),
		closeBackend: closeBackend,
	}, nil
}

// Reconfigure swaps the vault's storage backend per the given storage
// configuration, discarding loaded state. No data is migrated.
func (a *App) Reconfigure(cfg StorageConfig) error {
	backend, closeBackend, err := cfg.NewBackend()
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}

	a.Vault.Reconfigure(backend)
	if err := a.closeBackend(); err != nil {
		return fmt.Errorf("closing previous backend: %w", err)
	}
	a.closeBackend = closeBackend
	a.Config.Storage = cfg
	return nil
}

// ReconfigureCustom swaps the vault onto a caller-supplied backend, typically
// a storage.CustomBackend with partial callbacks.
func (a *App) ReconfigureCustom(backend storage.Backend) error {
	a.Vault.Reconfigure(backend)
	if err := a.closeBackend(); err != nil {
		return fmt.Errorf("closing previous backend: %w", err)
	}
	a.closeBackend = func() error { return nil }
	return nil
}

// Close releases storage backend resources.
func (a *App) Close() error {
	return a.closeBackend()
}
