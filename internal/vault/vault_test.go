package vault

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/craftauth/internal/storage"
)

func testAccount(uuid, username string) Account {
	return Account{
		UUID:        uuid,
		Username:    username,
		Provider:    ProviderMojang,
		AccessToken: "access-" + uuid,
		ClientToken: "client-" + uuid,
	}
}

// activeCount returns how many stored accounts are marked active.
func activeCount(t *testing.T, v *Vault) int {
	t.Helper()
	summaries, err := v.Accounts(context.Background())
	require.NoError(t, err)
	n := 0
	for _, s := range summaries {
		if s.Active {
			n++
		}
	}
	return n
}

func TestAddAccountValidation(t *testing.T) {
	v := New(storage.NewMemoryBackend())
	ctx := context.Background()

	tests := []struct {
		name    string
		account Account
	}{
		{name: "missing uuid", account: Account{AccessToken: "a", ClientToken: "c"}},
		{name: "missing access token", account: Account{UUID: "u", ClientToken: "c"}},
		{name: "missing client token", account: Account{UUID: "u", AccessToken: "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.AddAccount(ctx, tt.account)
			require.ErrorIs(t, err, ErrValidation)
		})
	}

	summaries, err := v.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestAddAccountActivation(t *testing.T) {
	v := New(storage.NewMemoryBackend())
	ctx := context.Background()

	require.NoError(t, v.AddAccount(ctx, testAccount("a", "alice")))
	require.NoError(t, v.AddAccount(ctx, testAccount("b", "bob")))

	active, err := v.ActiveAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "b", active.UUID)
	assert.Equal(t, 1, activeCount(t, v))
	assert.False(t, active.LastUsed.IsZero())
}

func TestAddAccountReplacesInPlace(t *testing.T) {
	v := New(storage.NewMemoryBackend())
	ctx := context.Background()

	require.NoError(t, v.AddAccount(ctx, testAccount("a", "alice")))
	require.NoError(t, v.AddAccount(ctx, testAccount("b", "bob")))

	replacement := testAccount("a", "alice-renamed")
	replacement.AccessToken = "rotated"
	require.NoError(t, v.AddAccount(ctx, replacement))

	summaries, err := v.Accounts(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Position preserved, fields replaced, replacement is sole active.
	assert.Equal(t, "a", summaries[0].UUID)
	assert.Equal(t, "alice-renamed", summaries[0].Username)
	assert.True(t, summaries[0].Active)
	assert.Equal(t, "b", summaries[1].UUID)
	assert.False(t, summaries[1].Active)

	auth, err := v.AuthData(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "rotated", auth.AccessToken)
}

func TestRemoveAccount(t *testing.T) {
	v := New(storage.NewMemoryBackend())
	ctx := context.Background()

	removed, err := v.RemoveAccount(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, v.AddAccount(ctx, testAccount("a", "alice")))
	require.NoError(t, v.AddAccount(ctx, testAccount("b", "bob")))
	require.NoError(t, v.AddAccount(ctx, testAccount("c", "carol")))
	require.NoError(t, v.SetActiveAccount(ctx, "a"))

	// Removing the active account promotes the first remaining in list order.
	removed, err = v.RemoveAccount(ctx, "a")
	require.NoError(t, err)
	assert.True(t, removed)

	active, err := v.ActiveAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "b", active.UUID)
	assert.Equal(t, 1, activeCount(t, v))

	// Removing an inactive account leaves the active pointer alone.
	removed, err = v.RemoveAccount(ctx, "c")
	require.NoError(t, err)
	assert.True(t, removed)

	active, err = v.ActiveAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "b", active.UUID)

	// Emptying the store leaves no active account.
	removed, err = v.RemoveAccount(ctx, "b")
	require.NoError(t, err)
	assert.True(t, removed)

	active, err = v.ActiveAccount(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestSetActiveAccount(t *testing.T) {
	v := New(storage.NewMemoryBackend())
	ctx := context.Background()

	require.NoError(t, v.AddAccount(ctx, testAccount("a", "alice")))
	require.NoError(t, v.AddAccount(ctx, testAccount("b", "bob")))

	require.NoError(t, v.SetActiveAccount(ctx, "a"))
	active, err := v.ActiveAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", active.UUID)
	assert.Equal(t, 1, activeCount(t, v))

	err = v.SetActiveAccount(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)

	// Unknown uuid leaves the active pointer untouched.
	active, err = v.ActiveAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", active.UUID)
}

func TestActiveUniquenessUnderOpSequences(t *testing.T) {
	v := New(storage.NewMemoryBackend())
	ctx := context.Background()

	ops := []func() error{
		func() error { return v.AddAccount(ctx, testAccount("a", "alice")) },
		func() error { return v.AddAccount(ctx, testAccount("b", "bob")) },
		func() error { return v.SetActiveAccount(ctx, "a") },
		func() error { return v.AddAccount(ctx, testAccount("c", "carol")) },
		func() error { _, err := v.RemoveAccount(ctx, "c"); return err },
		func() error { return v.AddAccount(ctx, testAccount("a", "alice2")) },
		func() error { _, err := v.RemoveAccount(ctx, "a"); return err },
	}

	for i, op := range ops {
		require.NoError(t, op(), "op %d", i)

		summaries, err := v.Accounts(ctx)
		require.NoError(t, err)
		if len(summaries) == 0 {
			continue
		}
		assert.Equal(t, 1, activeCount(t, v), "after op %d", i)
	}
}

func TestUpdateAuthDataPartial(t *testing.T) {
	v := New(storage.NewMemoryBackend())
	ctx := context.Background()

	account := testAccount("a", "alice")
	account.Provider = ProviderMicrosoft
	account.RefreshToken = "refresh-old"
	account.Profile = json.RawMessage(`{"skin":"steve"}`)
	require.NoError(t, v.AddAccount(ctx, account))

	before, err := v.AuthData(ctx, "a")
	require.NoError(t, err)

	newAccess := "access-new"
	newRefresh := "refresh-new"
	expiry := time.Now().Add(time.Hour).UTC()
	err = v.UpdateAuthData(ctx, "a", AuthUpdate{
		AccessToken:  &newAccess,
		RefreshToken: &newRefresh,
		ExpiresAt:    &expiry,
	})
	require.NoError(t, err)

	after, err := v.AuthData(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "access-new", after.AccessToken)
	assert.Equal(t, "refresh-new", after.RefreshToken)
	require.NotNil(t, after.ExpiresAt)
	assert.WithinDuration(t, expiry, *after.ExpiresAt, time.Second)

	// Untouched fields survive the partial update.
	assert.Equal(t, before.Username, after.Username)
	assert.Equal(t, before.ClientToken, after.ClientToken)
	assert.JSONEq(t, `{"skin":"steve"}`, string(after.Profile))

	err = v.UpdateAuthData(ctx, "ghost", AuthUpdate{AccessToken: &newAccess})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAuthData(t *testing.T) {
	v := New(storage.NewMemoryBackend())
	ctx := context.Background()

	_, err := v.AuthData(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = v.ActiveAuthData(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, v.AddAccount(ctx, testAccount("a", "alice")))

	auth, err := v.ActiveAuthData(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-a", auth.AccessToken)
	assert.Equal(t, "client-a", auth.ClientToken)
}

func TestPersistenceRoundTrip(t *testing.T) {
	backend := storage.NewMemoryBackend()
	ctx := context.Background()

	v := New(backend)
	require.NoError(t, v.AddAccount(ctx, testAccount("a", "alice")))
	require.NoError(t, v.AddAccount(ctx, testAccount("b", "bob")))
	require.NoError(t, v.SetActiveAccount(ctx, "a"))

	// A second vault over the same backend sees the persisted state.
	reopened := New(backend)
	summaries, err := reopened.Accounts(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	active, err := reopened.ActiveAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", active.UUID)

	auth, err := reopened.AuthData(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "access-b", auth.AccessToken)
}

func TestBlobIsEncryptedAtRest(t *testing.T) {
	backend := storage.NewMemoryBackend()
	ctx := context.Background()

	v := New(backend)
	require.NoError(t, v.AddAccount(ctx, testAccount("a", "alice")))

	blob, err := backend.ReadBlob(ctx)
	require.NoError(t, err)

	var env struct {
		IV        string `json:"iv"`
		Encrypted string `json:"encrypted"`
		AuthTag   string `json:"authTag"`
	}
	require.NoError(t, json.Unmarshal(blob, &env))
	assert.NotEmpty(t, env.IV)
	assert.NotEmpty(t, env.Encrypted)
	assert.NotEmpty(t, env.AuthTag)

	// Secrets never appear in the at-rest representation.
	assert.NotContains(t, string(blob), "access-a")
	assert.NotContains(t, string(blob), "client-a")
}

func TestCorruptBlobResetsToEmpty(t *testing.T) {
	backend := storage.NewMemoryBackend()
	ctx := context.Background()

	v := New(backend)
	require.NoError(t, v.AddAccount(ctx, testAccount("a", "alice")))

	// Corrupt the stored blob out from under a fresh vault.
	require.NoError(t, backend.WriteBlob(ctx, []byte(`{"iv":"00","encrypted":"bad","authTag":"00"}`)))

	reopened := New(backend)
	summaries, err := reopened.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)

	// The reset state is persisted, so subsequent loads stay consistent.
	again := New(backend)
	summaries, err = again.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestReconfigureDropsState(t *testing.T) {
	ctx := context.Background()
	first := storage.NewMemoryBackend()
	second := storage.NewMemoryBackend()

	v := New(first)
	require.NoError(t, v.AddAccount(ctx, testAccount("a", "alice")))

	v.Reconfigure(second)

	// No migration: the new backend starts empty.
	summaries, err := v.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)

	// The old backend still holds the previous data.
	old := New(first)
	summaries, err = old.Accounts(ctx)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestInitializeIdempotent(t *testing.T) {
	backend := storage.NewMemoryBackend()
	ctx := context.Background()

	v := New(backend)
	require.NoError(t, v.Initialize(ctx))
	require.NoError(t, v.Initialize(ctx))

	key, err := backend.ReadKey(ctx)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	// Initialization of an empty store writes an empty encrypted list.
	_, err = backend.ReadBlob(ctx)
	require.NoError(t, err)
}
