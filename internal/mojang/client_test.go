package mojang

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/craftauth/internal/httpapi"
)

func TestAuthenticateSuccess(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/authenticate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken": "access-token",
			"clientToken": "client-token",
			"selectedProfile": map[string]string{
				"id":   "11111111222233334444555555555555",
				"name": "Notch",
			},
		})
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	result, err := client.Authenticate(context.Background(), "user@example.com", "hunter2", "client-token")
	require.NoError(t, err)

	assert.Equal(t, "access-token", result.AccessToken)
	assert.Equal(t, "client-token", result.ClientToken)
	assert.Equal(t, "11111111222233334444555555555555", result.UUID)
	assert.Equal(t, "Notch", result.Username)

	// The wire request carries the agent and the caller's client token.
	agent, ok := captured["agent"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Minecraft", agent["name"])
	assert.Equal(t, "client-token", captured["clientToken"])
	assert.Equal(t, true, captured["requestUser"])
}

func TestAuthenticateProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":        "ForbiddenOperationException",
			"errorMessage": "Invalid credentials. Invalid username or password.",
		})
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	_, err := client.Authenticate(context.Background(), "user", "wrong", "ct")
	require.Error(t, err)

	var httpErr *httpapi.Error
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
	assert.Contains(t, httpErr.Message, "Invalid username or password")
}

func TestAuthenticateStatusTextFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	_, err := client.Authenticate(context.Background(), "user", "pass", "ct")

	var httpErr *httpapi.Error
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Contains(t, httpErr.Error(), http.StatusText(http.StatusServiceUnavailable))
}

func TestAuthenticateMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{
			name: "missing access token",
			body: map[string]any{
				"selectedProfile": map[string]string{"id": "abc", "name": "Notch"},
			},
		},
		{
			name: "missing selected profile",
			body: map[string]any{"accessToken": "token"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.body)
			}))
			defer server.Close()

			client := NewClient(WithBaseURL(server.URL))
			_, err := client.Authenticate(context.Background(), "user", "pass", "ct")
			require.ErrorIs(t, err, httpapi.ErrProtocol)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantValid bool
		wantErr   bool
	}{
		{name: "valid no content", status: http.StatusNoContent, wantValid: true},
		{name: "invalid token", status: http.StatusForbidden, wantValid: false},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/validate", r.URL.Path)

				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "access", body["accessToken"])
				assert.Equal(t, "client", body["clientToken"])

				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(WithBaseURL(server.URL))
			valid, err := client.Validate(context.Background(), "access", "client")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, valid)
		})
	}
}

func TestInvalidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/invalidate", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	require.NoError(t, client.Invalidate(context.Background(), "access", "client"))
}

func TestTimeoutClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(
		WithBaseURL(server.URL),
		WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}),
	)
	_, err := client.Authenticate(context.Background(), "user", "pass", "ct")
	require.ErrorIs(t, err, httpapi.ErrTimeout)
}
