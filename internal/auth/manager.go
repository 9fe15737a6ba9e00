// Package auth ties the identity providers to the account vault: it drives
// logins, transparent validation/refresh and logout, and normalizes provider
// results into vault records.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/florianilch/craftauth/internal/microsoft"
	"github.com/florianilch/craftauth/internal/mojang"
	"github.com/florianilch/craftauth/internal/vault"
)

// ErrNoRefreshToken is returned when a refresh is requested for an account
// that has no stored refresh token; the user must log in again.
var ErrNoRefreshToken = errors.New("auth: account has no refresh token")

// Manager performs provider protocols and persists their results. One Manager
// serves any number of login attempts; no state is shared across attempts.
type Manager struct {
	vault     *vault.Vault
	mojang    *mojang.Client
	microsoft *microsoft.Client
}

// NewManager creates a Manager over the given vault and provider clients.
func NewManager(v *vault.Vault, mojangClient *mojang.Client, microsoftClient *microsoft.Client) *Manager {
	return &Manager{
		vault:     v,
		mojang:    mojangClient,
		microsoft: microsoftClient,
	}
}

// LoginMojang performs the legacy direct-credential login with a freshly
// generated client token and stores the resulting account as active.
func (m *Manager) LoginMojang(ctx context.Context, username, password string) (*vault.Summary, error) {
	clientToken := uuid.NewString()

	result, err := m.mojang.Authenticate(ctx, username, password, clientToken)
	if err != nil {
		return nil, err
	}

	// The provider echoes the client token; fall back to ours if it doesn't.
	if result.ClientToken == "" {
		result.ClientToken = clientToken
	}

	account := vault.Account{
		UUID:        result.UUID,
		Username:    result.Username,
		Provider:    vault.ProviderMojang,
		AccessToken: result.AccessToken,
		ClientToken: result.ClientToken,
	}
	if err := m.vault.AddAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("storing account: %w", err)
	}

	return m.vault.ActiveAccount(ctx)
}

// MicrosoftAuthURL builds the authorization redirect URL with a fresh
// anti-forgery state token and returns both.
func (m *Manager) MicrosoftAuthURL(redirectURI string) (authURL, state string, err error) {
	state = uuid.NewString()
	authURL, err = m.microsoft.AuthCodeURL(state, redirectURI)
	if err != nil {
		return "", "", err
	}
	return authURL, state, nil
}

// LoginMicrosoft exchanges the captured authorization code through the full
// federated chain and stores the resulting account as active.
func (m *Manager) LoginMicrosoft(ctx context.Context, code, redirectURI string) (*vault.Summary, error) {
	result, err := m.microsoft.Login(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}

	expiresAt := result.ExpiresAt
	account := vault.Account{
		UUID:         result.UUID,
		Username:     result.Username,
		Provider:     vault.ProviderMicrosoft,
		AccessToken:  result.AccessToken,
		ClientToken:  uuid.NewString(),
		RefreshToken: result.RefreshToken,
		ExpiresAt:    &expiresAt,
		Profile:      result.Profile,
	}
	if err := m.vault.AddAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("storing account: %w", err)
	}

	return m.vault.ActiveAccount(ctx)
}

// RefreshMicrosoft re-runs the federated chain with the stored refresh token
// and rotates only the access/refresh/expiry triple in place; profile and
// username are left untouched.
func (m *Manager) RefreshMicrosoft(ctx context.Context, accountUUID string) error {
	account, err := m.vault.AuthData(ctx, accountUUID)
	if err != nil {
		return err
	}
	if account.RefreshToken == "" {
		return fmt.Errorf("%w: %s", ErrNoRefreshToken, accountUUID)
	}

	result, err := m.microsoft.Refresh(ctx, account.RefreshToken)
	if err != nil {
		return err
	}

	return m.vault.UpdateAuthData(ctx, accountUUID, vault.AuthUpdate{
		AccessToken:  &result.AccessToken,
		RefreshToken: &result.RefreshToken,
		ExpiresAt:    &result.ExpiresAt,
	})
}

// ValidateToken reports whether the account's credentials are usable,
// refreshing federated tokens when expired. An empty uuid targets the active
// account. Federated accounts with an unexpired token validate without any
// network call.
func (m *Manager) ValidateToken(ctx context.Context, accountUUID string) (bool, error) {
	account, err := m.resolve(ctx, accountUUID)
	if err != nil {
		return false, err
	}

	switch account.Provider {
	case vault.ProviderMicrosoft:
		if account.ExpiresAt != nil && time.Now().Before(*account.ExpiresAt) {
			return true, nil
		}
		if err := m.RefreshMicrosoft(ctx, account.UUID); err != nil {
			return false, err
		}
		return true, nil
	case vault.ProviderMojang:
		return m.mojang.Validate(ctx, account.AccessToken, account.ClientToken)
	default:
		return false, fmt.Errorf("unknown provider %q", account.Provider)
	}
}

// Logout removes the account from the vault, attempting best-effort remote
// invalidation first for legacy accounts. Remote failure never blocks removal.
// An empty uuid targets the active account.
func (m *Manager) Logout(ctx context.Context, accountUUID string) (bool, error) {
	account, err := m.resolve(ctx, accountUUID)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if account.Provider == vault.ProviderMojang {
		if err := m.mojang.Invalidate(ctx, account.AccessToken, account.ClientToken); err != nil {
			slog.WarnContext(ctx, "remote token invalidation failed", "uuid", account.UUID, "error", err)
		}
	}

	return m.vault.RemoveAccount(ctx, account.UUID)
}

// resolve returns the full record for uuid, or the active record when uuid is
// empty.
func (m *Manager) resolve(ctx context.Context, accountUUID string) (*vault.Account, error) {
	if accountUUID == "" {
		return m.vault.ActiveAuthData(ctx)
	}
	return m.vault.AuthData(ctx, accountUUID)
}
