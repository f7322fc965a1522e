package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/promptdeck/promptdeck/internal/identity"
)

const (
	defaultUploadBase = "https://storage.googleapis.com"
	publicURLBase     = "https://storage.googleapis.com"
)

// GCS uploads objects through the Cloud Storage JSON API with a
// public-read ACL, so the returned URL is immediately servable.
type GCS struct {
	Bucket     string
	Tokens     identity.TokenSource
	HTTPClient *http.Client
	BaseURL    string // override in tests
}

// Put implements Store.
func (g *GCS) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if g.Bucket == "" {
		return "", errors.New("blob: bucket required")
	}

	token, err := g.Tokens.GetToken(ctx)
	if err != nil {
		return "", errors.Wrap(err, "blob: acquire token")
	}

	base := g.BaseURL
	if base == "" {
		base = defaultUploadBase
	}
	uploadURL := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?uploadType=media&name=%s&predefinedAcl=publicRead",
		base, url.PathEscape(g.Bucket), url.QueryEscape(path))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "blob: build upload request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)

	resp, err := g.httpClient().Do(req)
	if err != nil {
		return "", errors.Wrap(err, "blob: upload")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.Newf("blob: upload returned %d: %s", resp.StatusCode, body)
	}

	return fmt.Sprintf("%s/%s/%s", publicURLBase, g.Bucket, path), nil
}

func (g *GCS) httpClient() *http.Client {
	if g.HTTPClient != nil {
		return g.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}
