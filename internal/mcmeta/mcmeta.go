// Package mcmeta fetches public player and version metadata with a timed TTL
// cache in front of each endpoint. It is a read-only collaborator of the
// account vault: it needs nothing beyond an account uuid.
package mcmeta

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/florianilch/craftauth/internal/httpapi"
)

const (
	defaultSessionBaseURL = "https://sessionserver.mojang.com"
	defaultMetaBaseURL    = "https://launchermeta.mojang.com"
	defaultTTL            = 5 * time.Minute
)

// Client wraps the public metadata endpoints.
type Client struct {
	sessionBaseURL string
	metaBaseURL    string
	httpClient     *http.Client
	cache          *cache.Cache
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLs overrides the session server and launcher meta base URLs.
func WithBaseURLs(sessionBaseURL, metaBaseURL string) Option {
	return func(c *Client) {
		c.sessionBaseURL = sessionBaseURL
		c.metaBaseURL = metaBaseURL
	}
}

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache.New(ttl, 2*ttl)
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client with a 5 minute cache.
func NewClient(opts ...Option) *Client {
	c := &Client{
		sessionBaseURL: defaultSessionBaseURL,
		metaBaseURL:    defaultMetaBaseURL,
		httpClient:     httpapi.NewClient(),
		cache:          cache.New(defaultTTL, 2*defaultTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VersionManifest is the launcher version index.
type VersionManifest struct {
	Latest struct {
		Release  string `json:"release"`
		Snapshot string `json:"snapshot"`
	} `json:"latest"`
	Versions []Version `json:"versions"`
}

// Version is one manifest entry.
type Version struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	ReleaseTime string `json:"releaseTime"`
}

// Versions fetches the version manifest, serving from cache within the TTL.
func (c *Client) Versions(ctx context.Context) (*VersionManifest, error) {
	const key = "version_manifest"
	if cached, ok := c.cache.Get(key); ok {
		return cached.(*VersionManifest), nil
	}

	var manifest VersionManifest
	status, _, err := httpapi.GetJSON(ctx, c.httpClient, c.metaBaseURL+"/mc/game/version_manifest.json", nil, &manifest)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &httpapi.Error{StatusCode: status}
	}

	c.cache.SetDefault(key, &manifest)
	return &manifest, nil
}

// Textures are a player's skin and cape URLs; either may be empty.
type Textures struct {
	SkinURL string
	CapeURL string
}

type profileResponse struct {
	Properties []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"properties"`
}

// texturesPayload is the base64-encoded "textures" property value.
type texturesPayload struct {
	Textures struct {
		Skin struct {
			URL string `json:"url"`
		} `json:"SKIN"`
		Cape struct {
			URL string `json:"url"`
		} `json:"CAPE"`
	} `json:"textures"`
}

// Textures fetches a player's skin and cape URLs from the session server,
// serving from cache within the TTL.
func (c *Client) Textures(ctx context.Context, accountUUID string) (*Textures, error) {
	key := "textures/" + accountUUID
	if cached, ok := c.cache.Get(key); ok {
		return cached.(*Textures), nil
	}

	var profile profileResponse
	status, _, err := httpapi.GetJSON(ctx, c.httpClient, c.sessionBaseURL+"/session/minecraft/profile/"+accountUUID, nil, &profile)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &httpapi.Error{StatusCode: status}
	}

	textures := &Textures{}
	for _, prop := range profile.Properties {
		if prop.Name != "textures" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(prop.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding textures property: %w", httpapi.ErrProtocol, err)
		}
		var payload texturesPayload
		if err := json.Unmarshal(decoded, &payload); err != nil {
			return nil, fmt.Errorf("%w: parsing textures property: %w", httpapi.ErrProtocol, err)
		}
		textures.SkinURL = payload.Textures.Skin.URL
		textures.CapeURL = payload.Textures.Cape.URL
	}

	c.cache.SetDefault(key, textures)
	return textures, nil
}
