package vault

import (
	"encoding/json"
	"time"
)

// Provider identifies which identity provider issued an account's credentials.
type Provider string

const (
	// ProviderMojang is the legacy direct-credential provider (Yggdrasil).
	ProviderMojang Provider = "mojang"
	// ProviderMicrosoft is the federated OAuth provider chain.
	ProviderMicrosoft Provider = "microsoft"
)

// Account is one linked identity's credentials and metadata. AccessToken,
// ClientToken and RefreshToken are secrets and only leave the vault through
// AuthData; listing operations return Summary instead.
type Account struct {
	UUID         string          `json:"uuid"`
	Username     string          `json:"username"`
	Provider     Provider        `json:"provider"`
	AccessToken  string          `json:"accessToken"`
	ClientToken  string          `json:"clientToken"`
	RefreshToken string          `json:"refreshToken,omitempty"`
	ExpiresAt    *time.Time      `json:"expiresAt,omitempty"`
	Profile      json.RawMessage `json:"profile,omitempty"`
	Active       bool            `json:"active"`
	LastUsed     time.Time       `json:"lastUsed"`
}

// Summary is the secret-free projection of an Account.
type Summary struct {
	UUID      string     `json:"uuid"`
	Username  string     `json:"username"`
	Provider  Provider   `json:"provider"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Active    bool       `json:"active"`
	LastUsed  time.Time  `json:"lastUsed"`
}

// summary projects the account without its secret fields.
func (a *Account) summary() Summary {
	return Summary{
		UUID:      a.UUID,
		Username:  a.Username,
		Provider:  a.Provider,
		ExpiresAt: a.ExpiresAt,
		Active:    a.Active,
		LastUsed:  a.LastUsed,
	}
}

// AuthUpdate is a partial credential update. Nil fields are left untouched on
// the stored record.
type AuthUpdate struct {
	AccessToken  *string
	RefreshToken *string
	ExpiresAt    *time.Time
	Profile      json.RawMessage
}
