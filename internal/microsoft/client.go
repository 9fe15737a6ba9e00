// Package microsoft implements the federated OAuth login chain for Minecraft:
// a Microsoft authorization code or refresh token is exchanged hop by hop
// through Xbox Live (XBL), the Xbox secure token service (XSTS) and the
// Minecraft services API into a game access token.
//
// Each hop is its own method with a typed result so its failure mapping is
// independently testable; Login and Refresh compose them.
package microsoft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/florianilch/craftauth/internal/httpapi"
)

const (
	defaultXBLURL          = "https://user.auth.xboxlive.com/user/authenticate"
	defaultXSTSURL         = "https://xsts.auth.xboxlive.com/xsts/authorize"
	defaultServicesBaseURL = "https://api.minecraftservices.com"

	xblRelyingParty  = "http://auth.xboxlive.com"
	xstsRelyingParty = "rp://api.minecraftservices.com/"

	// xerrNoXboxAccount is XSTS's "account not linked to Xbox" code.
	xerrNoXboxAccount = 2148916233
)

// scopes required for the chain: Xbox sign-in plus a refresh token.
var scopes = []string{"XboxLive.signin", "offline_access"}

var (
	// ErrNoClientID is returned when no OAuth client identifier was
	// configured; federated operations fail before any network call.
	ErrNoClientID = errors.New("microsoft: oauth client id not configured")

	// ErrNoLinkedAccount is returned when the Microsoft account has no Xbox
	// profile linked; later hops are never attempted.
	ErrNoLinkedAccount = errors.New("microsoft: account not linked to xbox")

	// ErrNoEntitlement is returned when the account does not own the game.
	ErrNoEntitlement = errors.New("microsoft: account has no game entitlement")
)

// Client drives the federated login chain.
type Client struct {
	clientID        string
	oauthEndpoint   oauth2.Endpoint
	xblURL          string
	xstsURL         string
	servicesBaseURL string
	httpClient      *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithOAuthEndpoint overrides the Microsoft OAuth endpoint (hop 1).
func WithOAuthEndpoint(endpoint oauth2.Endpoint) Option {
	return func(c *Client) {
		c.oauthEndpoint = endpoint
	}
}

// WithXboxURLs overrides the XBL and XSTS endpoints (hops 2 and 3).
func WithXboxURLs(xblURL, xstsURL string) Option {
	return func(c *Client) {
		c.xblURL = xblURL
		c.xstsURL = xstsURL
	}
}

// WithServicesBaseURL overrides the Minecraft services base URL (hop 4).
func WithServicesBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.servicesBaseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client used for hops 2-4 and OAuth calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for the given OAuth client identifier. An empty
// identifier is tolerated here; operations fail with ErrNoClientID.
func NewClient(clientID string, opts ...Option) *Client {
	c := &Client{
		clientID:        clientID,
		oauthEndpoint:   microsoft.LiveConnectEndpoint,
		xblURL:          defaultXBLURL,
		xstsURL:         defaultXSTSURL,
		servicesBaseURL: defaultServicesBaseURL,
		httpClient:      httpapi.NewClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// oauthConfig builds the hop-1 oauth2 configuration. Public client, no secret.
func (c *Client) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.clientID,
		Endpoint:    c.oauthEndpoint,
		RedirectURL: redirectURI,
		Scopes:      scopes,
	}
}

// AuthCodeURL builds the authorization redirect URL carrying the caller's
// anti-forgery state token. The caller opens it and captures the redirected
// authorization code.
func (c *Client) AuthCodeURL(state, redirectURI string) (string, error) {
	if c.clientID == "" {
		return "", ErrNoClientID
	}
	return c.oauthConfig(redirectURI).AuthCodeURL(state), nil
}

// LoginResult is the normalized outcome of a completed login chain.
type LoginResult struct {
	UUID         string
	Username     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Profile      json.RawMessage
}

// RefreshResult is the rotated token triple from a refresh chain.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Login exchanges an authorization code through all four hops and fetches the
// service profile.
func (c *Client) Login(ctx context.Context, code, redirectURI string) (*LoginResult, error) {
	if c.clientID == "" {
		return nil, ErrNoClientID
	}

	token, err := c.exchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("oauth code exchange: %w", err)
	}

	refresh, err := c.completeChain(ctx, token)
	if err != nil {
		return nil, err
	}

	profile, raw, err := c.fetchProfile(ctx, refresh.AccessToken)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		UUID:         profile.ID,
		Username:     profile.Name,
		AccessToken:  refresh.AccessToken,
		RefreshToken: refresh.RefreshToken,
		ExpiresAt:    refresh.ExpiresAt,
		Profile:      raw,
	}, nil
}

// Refresh repeats the chain with a refresh-token grant. The profile is not
// re-fetched; only the token triple rotates.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if c.clientID == "" {
		return nil, ErrNoClientID
	}

	token, err := c.refreshGrant(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("oauth refresh: %w", err)
	}

	return c.completeChain(ctx, token)
}

// completeChain runs hops 2-4 on top of an obtained Microsoft token.
func (c *Client) completeChain(ctx context.Context, token *oauthToken) (*RefreshResult, error) {
	xbl, err := c.authenticateXBL(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("xbl authentication: %w", err)
	}

	xsts, err := c.authenticateXSTS(ctx, xbl.Token)
	if err != nil {
		return nil, fmt.Errorf("xsts authorization: %w", err)
	}

	service, err := c.loginWithXbox(ctx, xbl.UserHash, xsts.Token)
	if err != nil {
		return nil, fmt.Errorf("service login: %w", err)
	}

	return &RefreshResult{
		AccessToken:  service.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(service.ExpiresIn) * time.Second).UTC(),
	}, nil
}

// oauthToken is hop 1's result.
type oauthToken struct {
	AccessToken  string
	RefreshToken string
}

// exchangeCode performs hop 1 with the authorization-code grant.
func (c *Client) exchangeCode(ctx context.Context, code, redirectURI string) (*oauthToken, error) {
	token, err := c.oauthConfig(redirectURI).Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, mapOAuthError(err)
	}
	return &oauthToken{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}, nil
}

// refreshGrant performs hop 1 with the refresh-token grant.
func (c *Client) refreshGrant(ctx context.Context, refreshToken string) (*oauthToken, error) {
	source := c.oauthConfig("").TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, mapOAuthError(err)
	}

	rotated := token.RefreshToken
	if rotated == "" {
		rotated = refreshToken
	}
	return &oauthToken{AccessToken: token.AccessToken, RefreshToken: rotated}, nil
}

// oauthContext injects the per-hop HTTP client into the oauth2 machinery.
func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// mapOAuthError converts oauth2 retrieval failures into the provider error
// taxonomy.
func mapOAuthError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		msg := retrieveErr.ErrorDescription
		if msg == "" {
			msg = retrieveErr.ErrorCode
		}
		return &httpapi.Error{StatusCode: retrieveErr.Response.StatusCode, Message: msg}
	}
	return httpapi.ClassifyTimeout(err)
}

// xblResult is hop 2's result: the user token plus the user-hash claim that
// hop 4 combines with the XSTS token.
type xblResult struct {
	Token    string
	UserHash string
}

type xboxTokenResponse struct {
	Token         string `json:"Token"`
	DisplayClaims struct {
		XUI []struct {
			UHS string `json:"uhs"`
		} `json:"xui"`
	} `json:"DisplayClaims"`
}

// authenticateXBL performs hop 2: Microsoft access token to Xbox Live user token.
func (c *Client) authenticateXBL(ctx context.Context, accessToken string) (*xblResult, error) {
	req := map[string]any{
		"Properties": map[string]any{
			"AuthMethod": "RPS",
			"SiteName":   "user.auth.xboxlive.com",
			"RpsTicket":  "d=" + accessToken,
		},
		"RelyingParty": xblRelyingParty,
		"TokenType":    "JWT",
	}

	var resp xboxTokenResponse
	status, raw, err := httpapi.PostJSON(ctx, c.httpClient, c.xblURL, nil, req, &resp)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, xboxError(status, raw)
	}

	if resp.Token == "" || len(resp.DisplayClaims.XUI) == 0 || resp.DisplayClaims.XUI[0].UHS == "" {
		return nil, fmt.Errorf("%w: xbl response missing token or user hash", httpapi.ErrProtocol)
	}

	return &xblResult{Token: resp.Token, UserHash: resp.DisplayClaims.XUI[0].UHS}, nil
}

// xstsResult is hop 3's result.
type xstsResult struct {
	Token string
}

// authenticateXSTS performs hop 3: Xbox Live user token to a security token
// scoped to the Minecraft services relying party. An account without a linked
// Xbox profile short-circuits the chain with ErrNoLinkedAccount.
func (c *Client) authenticateXSTS(ctx context.Context, xblToken string) (*xstsResult, error) {
	req := map[string]any{
		"Properties": map[string]any{
			"SandboxId":  "RETAIL",
			"UserTokens": []string{xblToken},
		},
		"RelyingParty": xstsRelyingParty,
		"TokenType":    "JWT",
	}

	var resp xboxTokenResponse
	status, raw, err := httpapi.PostJSON(ctx, c.httpClient, c.xstsURL, nil, req, &resp)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		var body struct {
			XErr    uint64 `json:"XErr"`
			Message string `json:"Message"`
		}
		if unmarshalErr := json.Unmarshal(raw, &body); unmarshalErr == nil && body.XErr == xerrNoXboxAccount {
			return nil, ErrNoLinkedAccount
		}
		return nil, xboxError(status, raw)
	}

	if resp.Token == "" {
		return nil, fmt.Errorf("%w: xsts response missing token", httpapi.ErrProtocol)
	}
	return &xstsResult{Token: resp.Token}, nil
}

// serviceToken is hop 4's token-exchange result.
type serviceToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// loginWithXbox performs hop 4's token exchange: the XSTS token combined with
// hop 2's user-hash claim becomes a Minecraft services access token.
func (c *Client) loginWithXbox(ctx context.Context, userHash, xstsToken string) (*serviceToken, error) {
	req := map[string]string{
		"identityToken": fmt.Sprintf("XBL3.0 x=%s;%s", userHash, xstsToken),
	}

	var resp serviceToken
	status, raw, err := httpapi.PostJSON(ctx, c.httpClient, c.servicesBaseURL+"/authentication/login_with_xbox", nil, req, &resp)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, xboxError(status, raw)
	}

	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: service login response missing access token", httpapi.ErrProtocol)
	}
	return &resp, nil
}

// Profile is the service profile's interpreted part; the raw payload is kept
// opaque for the vault.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// fetchProfile retrieves the user's service profile. A not-found response
// means the account lacks the game entitlement.
func (c *Client) fetchProfile(ctx context.Context, accessToken string) (*Profile, json.RawMessage, error) {
	headers := map[string]string{"Authorization": "Bearer " + accessToken}

	var profile Profile
	status, raw, err := httpapi.GetJSON(ctx, c.httpClient, c.servicesBaseURL+"/minecraft/profile", headers, &profile)
	if err != nil {
		return nil, nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil, ErrNoEntitlement
	}
	if status < 200 || status > 299 {
		return nil, nil, xboxError(status, raw)
	}

	if profile.ID == "" || profile.Name == "" {
		return nil, nil, fmt.Errorf("%w: profile response missing id or name", httpapi.ErrProtocol)
	}
	return &profile, json.RawMessage(raw), nil
}

// xboxError maps a non-success Xbox/service response, preferring the body's
// Message field over the bare status text.
func xboxError(status int, raw []byte) error {
	var body struct {
		Message      string `json:"Message"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return &httpapi.Error{StatusCode: status, Message: body.Message}
		}
		if body.ErrorMessage != "" {
			return &httpapi.Error{StatusCode: status, Message: body.ErrorMessage}
		}
	}
	return &httpapi.Error{StatusCode: status}
}
