package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringBackend stores both resources in the OS-native credential store
// (macOS Keychain, Windows Credential Manager, Linux Secret Service). The key
// and blob live under two derived user identifiers within one service name.
// Both are hex-encoded since keyring secrets are strings.
type KeyringBackend struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringBackend implements Backend
var _ Backend = (*KeyringBackend)(nil)

// NewKeyringBackend creates a KeyringBackend for the given service and user
// identifiers.
func NewKeyringBackend(service, user string) (*KeyringBackend, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringBackend{service: service, user: user}, nil
}

// ReadKey returns the key secret, or ErrNotFound if absent.
func (k *KeyringBackend) ReadKey(ctx context.Context) ([]byte, error) {
	return k.get(ctx, k.user+"/key")
}

// WriteKey stores the key secret.
func (k *KeyringBackend) WriteKey(ctx context.Context, key []byte) error {
	return k.set(ctx, k.user+"/key", key)
}

// ReadBlob returns the blob secret, or ErrNotFound if absent.
func (k *KeyringBackend) ReadBlob(ctx context.Context) ([]byte, error) {
	return k.get(ctx, k.user+"/accounts")
}

// WriteBlob stores the blob secret.
func (k *KeyringBackend) WriteBlob(ctx context.Context, blob []byte) error {
	return k.set(ctx, k.user+"/accounts", blob)
}

func (k *KeyringBackend) get(ctx context.Context, user string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	secret, err := keyring.Get(k.service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	data, err := hex.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("decoding keyring secret: %w", err)
	}
	return data, nil
}

func (k *KeyringBackend) set(ctx context.Context, user string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return keyring.Set(k.service, user, hex.EncodeToString(data))
}
