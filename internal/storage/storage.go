// Package storage provides persistence backends for the account vault's two
// at-rest resources: the encryption key and the encrypted account blob.
//
// Supports five backends with different durability and deployment tradeoffs:
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Memory: Process-local storage that does not survive restart
//   - Bolt: Two entries in a host-supplied bbolt key-value handle
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Custom: Caller-supplied callbacks, each independently optional
//
// Backends treat both resources as opaque bytes; encoding of the encrypted
// envelope is the vault's concern.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by reads against a location that has never been
// written. Callers use it to distinguish "fresh storage" from I/O failure.
var ErrNotFound = errors.New("storage: not found")

// Backend reads and writes the vault's two persistent resources.
//
// Writes are whole-resource overwrites; no backend appends.
type Backend interface {
	// ReadKey returns the stored encryption key, or ErrNotFound if no key
	// has been persisted at this location.
	ReadKey(ctx context.Context) ([]byte, error)

	// WriteKey persists the encryption key, replacing any existing one.
	WriteKey(ctx context.Context, key []byte) error

	// ReadBlob returns the stored encrypted account blob, or ErrNotFound.
	ReadBlob(ctx context.Context) ([]byte, error)

	// WriteBlob persists the encrypted account blob, replacing any existing one.
	WriteBlob(ctx context.Context, blob []byte) error
}
