// Package vault owns the encrypted account list and the single-active-account
// invariant. All reads and writes go through the secretbox envelope and a
// pluggable storage backend; the whole list is re-encrypted and overwritten on
// every mutation.
package vault

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/florianilch/craftauth/internal/secretbox"
	"github.com/florianilch/craftauth/internal/storage"
)

var (
	// ErrNotFound is returned when no account matches the given uuid, or no
	// account is active.
	ErrNotFound = errors.New("vault: account not found")

	// ErrValidation is returned when a record is missing required fields.
	ErrValidation = errors.New("vault: invalid account record")
)

// blobEnvelope is the at-rest JSON shape of one encrypted write.
type blobEnvelope struct {
	IV        string `json:"iv"`
	Encrypted string `json:"encrypted"`
	AuthTag   string `json:"authTag"`
}

// Vault mediates all account access through encryption and a storage backend.
// State is loaded lazily on first use; Reconfigure tears it down so the next
// access re-initializes against the new backend.
type Vault struct {
	mu       sync.Mutex
	backend  storage.Backend
	key      []byte
	accounts []Account
	loaded   bool
}

// New creates a Vault over the given backend. No I/O is performed until the
// first operation.
func New(backend storage.Backend) *Vault {
	return &Vault{backend: backend}
}

// Initialize eagerly loads the vault: ensures a key exists (load or
// generate+persist) and decrypts the account blob if present. Idempotent.
func (v *Vault) Initialize(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ensureLoaded(ctx)
}

// Reconfigure swaps the storage backend, discarding the loaded key and account
// list. No data is migrated; the next access initializes from the new backend.
func (v *Vault) Reconfigure(backend storage.Backend) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.backend = backend
	v.key = nil
	v.accounts = nil
	v.loaded = false
}

// AddAccount stores a new account or replaces an existing one with the same
// uuid in place, preserving list position. The added record becomes the sole
// active account and its LastUsed stamp is refreshed.
func (v *Vault) AddAccount(ctx context.Context, account Account) error {
	if account.UUID == "" {
		return fmt.Errorf("%w: missing uuid", ErrValidation)
	}
	if account.AccessToken == "" {
		return fmt.Errorf("%w: missing access token", ErrValidation)
	}
	if account.ClientToken == "" {
		return fmt.Errorf("%w: missing client token", ErrValidation)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return err
	}

	account.Active = true
	account.LastUsed = time.Now().UTC()

	replaced := false
	for i := range v.accounts {
		if v.accounts[i].UUID == account.UUID {
			v.accounts[i] = account
			replaced = true
		} else {
			v.accounts[i].Active = false
		}
	}
	if !replaced {
		v.accounts = append(v.accounts, account)
	}

	return v.persist(ctx)
}

// RemoveAccount deletes the account with the given uuid. The boolean reports
// whether the uuid existed; removing the active account promotes the first
// remaining account in list order.
func (v *Vault) RemoveAccount(ctx context.Context, uuid string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return false, err
	}

	idx := v.index(uuid)
	if idx < 0 {
		return false, nil
	}

	wasActive := v.accounts[idx].Active
	v.accounts = append(v.accounts[:idx], v.accounts[idx+1:]...)
	if wasActive && len(v.accounts) > 0 {
		v.accounts[0].Active = true
	}

	if err := v.persist(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Accounts returns the secret-free projection of every stored account in
// store order.
func (v *Vault) Accounts(ctx context.Context) ([]Summary, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(v.accounts))
	for i := range v.accounts {
		summaries = append(summaries, v.accounts[i].summary())
	}
	return summaries, nil
}

// ActiveAccount returns the secret-free projection of the active account, or
// nil if no account is active.
func (v *Vault) ActiveAccount(ctx context.Context) (*Summary, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	for i := range v.accounts {
		if v.accounts[i].Active {
			s := v.accounts[i].summary()
			return &s, nil
		}
	}
	return nil, nil
}

// SetActiveAccount flips exactly the given account to active and all others to
// inactive. Returns ErrNotFound for an unknown uuid.
func (v *Vault) SetActiveAccount(ctx context.Context, uuid string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return err
	}

	if v.index(uuid) < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, uuid)
	}

	for i := range v.accounts {
		v.accounts[i].Active = v.accounts[i].UUID == uuid
	}
	return v.persist(ctx)
}

// AuthData returns the full secret-bearing record for the given uuid.
func (v *Vault) AuthData(ctx context.Context, uuid string) (*Account, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	idx := v.index(uuid)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uuid)
	}

	account := v.accounts[idx]
	return &account, nil
}

// ActiveAuthData returns the full secret-bearing record for the active
// account, or ErrNotFound if none is active.
func (v *Vault) ActiveAuthData(ctx context.Context) (*Account, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	for i := range v.accounts {
		if v.accounts[i].Active {
			account := v.accounts[i]
			return &account, nil
		}
	}
	return nil, fmt.Errorf("%w: no active account", ErrNotFound)
}

// UpdateAuthData applies the non-nil fields of update to the matching record,
// stamps LastUsed and persists. Returns ErrNotFound for an unknown uuid.
func (v *Vault) UpdateAuthData(ctx context.Context, uuid string, update AuthUpdate) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return err
	}

	idx := v.index(uuid)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, uuid)
	}

	account := &v.accounts[idx]
	if update.AccessToken != nil {
		account.AccessToken = *update.AccessToken
	}
	if update.RefreshToken != nil {
		account.RefreshToken = *update.RefreshToken
	}
	if update.ExpiresAt != nil {
		expiry := *update.ExpiresAt
		account.ExpiresAt = &expiry
	}
	if update.Profile != nil {
		account.Profile = update.Profile
	}
	account.LastUsed = time.Now().UTC()

	return v.persist(ctx)
}

// index returns the position of uuid in the account list, or -1.
func (v *Vault) index(uuid string) int {
	for i := range v.accounts {
		if v.accounts[i].UUID == uuid {
			return i
		}
	}
	return -1
}

// ensureLoaded initializes key and account list from the backend. Must be
// called with the mutex held.
func (v *Vault) ensureLoaded(ctx context.Context) error {
	if v.loaded {
		return nil
	}

	if err := v.ensureKey(ctx); err != nil {
		return err
	}

	blob, err := v.backend.ReadBlob(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		v.accounts = nil
		v.loaded = true
		return v.persist(ctx)
	case err != nil:
		return fmt.Errorf("reading account blob: %w", err)
	}

	accounts, err := v.decode(blob)
	if err != nil {
		// Corruption or key mismatch: lossy-but-available. Callers seeing an
		// unexpectedly empty list after restart should check storage integrity.
		slog.WarnContext(ctx, "account blob could not be decrypted, resetting to empty list", "error", err)
		v.accounts = nil
		v.loaded = true
		return v.persist(ctx)
	}

	v.accounts = accounts
	v.loaded = true
	return nil
}

// ensureKey loads the encryption key or generates and persists a new one.
func (v *Vault) ensureKey(ctx context.Context) error {
	key, err := v.backend.ReadKey(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		key, err = secretbox.GenerateKey()
		if err != nil {
			return err
		}
		if err := v.backend.WriteKey(ctx, key); err != nil {
			return fmt.Errorf("persisting new key: %w", err)
		}
	case err != nil:
		return fmt.Errorf("reading key: %w", err)
	case len(key) != secretbox.KeySize:
		return fmt.Errorf("stored key has invalid length %d", len(key))
	}

	v.key = key
	return nil
}

// persist re-encrypts the whole account list and overwrites the stored blob.
// Must be called with the mutex held.
func (v *Vault) persist(ctx context.Context) error {
	plaintext, err := json.Marshal(v.accounts)
	if err != nil {
		return fmt.Errorf("marshaling account list: %w", err)
	}

	env, err := secretbox.Encrypt(plaintext, v.key)
	if err != nil {
		return fmt.Errorf("encrypting account list: %w", err)
	}

	blob, err := json.Marshal(blobEnvelope{
		IV:        hex.EncodeToString(env.IV),
		Encrypted: hex.EncodeToString(env.Ciphertext),
		AuthTag:   hex.EncodeToString(env.AuthTag),
	})
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	if err := v.backend.WriteBlob(ctx, blob); err != nil {
		return fmt.Errorf("writing account blob: %w", err)
	}
	return nil
}

// decode parses the at-rest envelope JSON and decrypts the account list.
func (v *Vault) decode(blob []byte) ([]Account, error) {
	var env blobEnvelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("unmarshaling envelope: %w", err)
	}

	iv, err := hex.DecodeString(env.IV)
	if err != nil {
		return nil, fmt.Errorf("decoding iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(env.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}
	authTag, err := hex.DecodeString(env.AuthTag)
	if err != nil {
		return nil, fmt.Errorf("decoding auth tag: %w", err)
	}

	plaintext, err := secretbox.Decrypt(secretbox.Envelope{
		IV:         iv,
		Ciphertext: ciphertext,
		AuthTag:    authTag,
	}, v.key)
	if err != nil {
		return nil, err
	}

	var accounts []Account
	if err := json.Unmarshal(plaintext, &accounts); err != nil {
		return nil, fmt.Errorf("unmarshaling account list: %w", err)
	}
	return accounts, nil
}
