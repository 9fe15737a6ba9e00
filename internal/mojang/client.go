// Package mojang implements the legacy direct-credential login protocol
// (Yggdrasil): authenticate with username/password, validate and invalidate
// access tokens. Every call is a single request; the session-binding client
// token accompanies validate and invalidate.
package mojang

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/florianilch/craftauth/internal/httpapi"
)

const defaultBaseURL = "https://authserver.mojang.com"

// Client talks to the Yggdrasil auth server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the auth server base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client used for all requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client with the per-hop default timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: httpapi.NewClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthResult is a successful authenticate response, normalized.
type AuthResult struct {
	AccessToken string
	ClientToken string
	UUID        string
	Username    string
}

type authenticateRequest struct {
	Agent       agent  `json:"agent"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	ClientToken string `json:"clientToken"`
	RequestUser bool   `json:"requestUser"`
}

type agent struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

type authenticateResponse struct {
	AccessToken     string `json:"accessToken"`
	ClientToken     string `json:"clientToken"`
	SelectedProfile *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"selectedProfile"`
}

type errorResponse struct {
	Error        string `json:"error"`
	ErrorMessage string `json:"errorMessage"`
}

// Authenticate performs the direct-credential login with the supplied
// session-binding client token. Provider failures surface the provider's
// structured error message when present.
func (c *Client) Authenticate(ctx context.Context, username, password, clientToken string) (*AuthResult, error) {
	req := authenticateRequest{
		Agent:       agent{Name: "Minecraft", Version: 1},
		Username:    username,
		Password:    password,
		ClientToken: clientToken,
		RequestUser: true,
	}

	var resp authenticateResponse
	status, raw, err := httpapi.PostJSON(ctx, c.httpClient, c.baseURL+"/authenticate", nil, req, &resp)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, providerError(status, raw)
	}

	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: authenticate response missing access token", httpapi.ErrProtocol)
	}
	if resp.SelectedProfile == nil || resp.SelectedProfile.ID == "" {
		return nil, fmt.Errorf("%w: authenticate response missing selected profile", httpapi.ErrProtocol)
	}

	return &AuthResult{
		AccessToken: resp.AccessToken,
		ClientToken: resp.ClientToken,
		UUID:        resp.SelectedProfile.ID,
		Username:    resp.SelectedProfile.Name,
	}, nil
}

type tokenPair struct {
	AccessToken string `json:"accessToken"`
	ClientToken string `json:"clientToken"`
}

// Validate reports whether the provider still considers the token valid. The
// provider answers with 204 for a valid token and 403 for an invalid one; the
// exact status is an opaque provider contract.
func (c *Client) Validate(ctx context.Context, accessToken, clientToken string) (bool, error) {
	status, raw, err := httpapi.PostJSON(ctx, c.httpClient, c.baseURL+"/validate", nil, tokenPair{
		AccessToken: accessToken,
		ClientToken: clientToken,
	}, nil)
	if err != nil {
		return false, err
	}

	switch {
	case status >= 200 && status <= 299:
		return true, nil
	case status == http.StatusForbidden:
		return false, nil
	default:
		return false, providerError(status, raw)
	}
}

// Invalidate revokes the access token server-side.
func (c *Client) Invalidate(ctx context.Context, accessToken, clientToken string) error {
	status, raw, err := httpapi.PostJSON(ctx, c.httpClient, c.baseURL+"/invalidate", nil, tokenPair{
		AccessToken: accessToken,
		ClientToken: clientToken,
	}, nil)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return providerError(status, raw)
	}
	return nil
}

// providerError maps a non-success response to an httpapi.Error, preferring
// the provider's errorMessage over the bare status text.
func providerError(status int, raw []byte) error {
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.ErrorMessage != "" {
		return &httpapi.Error{StatusCode: status, Message: body.ErrorMessage}
	}
	return &httpapi.Error{StatusCode: status}
}
