// Package identity supplies short-lived bearer credentials for
// outbound calls to the image-generation and blob-storage services.
package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// TokenSource yields a bearer credential for the next outbound request.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// Static wraps a fixed token, for local runs and tests.
type Static string

// GetToken implements TokenSource.
func (s Static) GetToken(ctx context.Context) (string, error) {
	if s == "" {
		return "", errors.New("identity: empty static token")
	}
	return string(s), nil
}

const defaultMetadataURL = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/token"

// Metadata fetches access tokens from the GCE metadata server, caching
// each one until shortly before it expires.
type Metadata struct {
	BaseURL    string // defaults to the metadata server token endpoint
	HTTPClient *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

type metadataToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// GetToken implements TokenSource.
func (m *Metadata) GetToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && time.Now().Before(m.expiry) {
		return m.token, nil
	}

	url := m.BaseURL
	if url == "" {
		url = defaultMetadataURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "identity: build token request")
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := m.httpClient().Do(req)
	if err != nil {
		return "", errors.Wrap(err, "identity: fetch token")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("identity: metadata server returned %d", resp.StatusCode)
	}

	var tok metadataToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", errors.Wrap(err, "identity: decode token")
	}
	if tok.AccessToken == "" {
		return "", errors.New("identity: metadata server returned no token")
	}

	m.token = tok.AccessToken
	// Refresh half a minute early to avoid handing out a token that
	// expires mid-request.
	m.expiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - 30*time.Second)
	return m.token, nil
}

func (m *Metadata) httpClient() *http.Client {
	if m.HTTPClient != nil {
		return m.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}
