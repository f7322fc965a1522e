// Package imagegen generates thumbnail images for bulk-created records
// through an external prediction endpoint and stores them as publicly
// readable blobs.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/promptdeck/promptdeck/internal/blob"
	"github.com/promptdeck/promptdeck/internal/identity"
)

const (
	// DefaultBaseDelay is the backoff unit for rate-limited calls.
	DefaultBaseDelay = 3 * time.Second
	// DefaultMaxRetries bounds rate-limit retries; the call makes at
	// most DefaultMaxRetries+1 attempts.
	DefaultMaxRetries = 3
)

// errRateLimited marks the one failure class worth retrying: HTTP 429
// or a quota-exhaustion error status from the provider.
var errRateLimited = errors.New("imagegen: rate limited")

// Client calls an image-generation predict endpoint and stores the
// result under a batch/record key.
type Client struct {
	Endpoint string
	Tokens   identity.TokenSource
	Blobs    blob.Store
	Logger   *zap.SugaredLogger // nil means no logging

	BaseDelay       time.Duration // 0 selects DefaultBaseDelay
	MaxRetries      int           // <=0 selects DefaultMaxRetries
	PromptPrefixLen int           // <=0 selects DefaultPromptPrefixLen

	HTTPClient *http.Client

	// sleep is the backoff suspension; tests replace it to observe
	// the delay sequence without waiting.
	sleep func(context.Context, time.Duration) error
}

type predictRequest struct {
	Prompt      string `json:"prompt"`
	SampleCount int    `json:"sampleCount"`
}

type prediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type predictResponse struct {
	Predictions []prediction `json:"predictions"`
	Error       *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// Enrich generates one square image for the record's content, uploads
// it at bulk-prompts/{batchID}/{recordID}/thumbnail.{ext}, and returns
// the public URL. Rate-limited calls are retried with exponential
// backoff from BaseDelay; every other failure is terminal. The caller
// decides whether a returned error fails the owning row.
func (c *Client) Enrich(ctx context.Context, text, recordID, batchID string) (string, error) {
	if c.Endpoint == "" {
		return "", errors.New("imagegen: endpoint required")
	}

	token, err := c.Tokens.GetToken(ctx)
	if err != nil {
		return "", errors.Wrap(err, "imagegen: acquire token")
	}

	prompt := buildPrompt(text, c.PromptPrefixLen)

	var pred *prediction
	attempts := c.maxRetries() + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay() << (attempt - 1)
			c.log().Infow("image generation rate limited, backing off",
				"record", recordID, "batch", batchID, "attempt", attempt, "delay", delay)
			if err := c.sleepFn()(ctx, delay); err != nil {
				return "", err
			}
		}

		pred, err = c.predict(ctx, token, prompt)
		if err == nil {
			break
		}
		if !errors.Is(err, errRateLimited) {
			return "", err
		}
	}
	if err != nil {
		return "", errors.Wrapf(err, "imagegen: gave up after %d attempts", attempts)
	}

	data, err := base64.StdEncoding.DecodeString(pred.BytesBase64Encoded)
	if err != nil {
		return "", errors.Wrap(err, "imagegen: decode image payload")
	}

	contentType := pred.MimeType
	if contentType == "" {
		contentType = "image/png"
	}
	path := fmt.Sprintf("bulk-prompts/%s/%s/thumbnail.%s", batchID, recordID, extensionFor(contentType))

	url, err := c.Blobs.Put(ctx, path, data, contentType)
	if err != nil {
		return "", errors.Wrap(err, "imagegen: store thumbnail")
	}
	return url, nil
}

// predict makes one call to the prediction endpoint, requesting exactly
// one sample.
func (c *Client) predict(ctx context.Context, token, prompt string) (*prediction, error) {
	reqBody, err := json.Marshal(predictRequest{Prompt: prompt, SampleCount: 1})
	if err != nil {
		return nil, errors.Wrap(err, "imagegen: encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "imagegen: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "imagegen: predict call")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.Wrap(errRateLimited, "http 429")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Newf("imagegen: predict returned %d: %s", resp.StatusCode, body)
	}

	var payload predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "imagegen: decode response")
	}
	if payload.Error != nil {
		if payload.Error.Status == "RESOURCE_EXHAUSTED" {
			return nil, errors.Wrap(errRateLimited, payload.Error.Message)
		}
		return nil, errors.Newf("imagegen: provider error %s: %s", payload.Error.Status, payload.Error.Message)
	}
	if len(payload.Predictions) == 0 || payload.Predictions[0].BytesBase64Encoded == "" {
		return nil, errors.New("imagegen: response carried no image data")
	}
	return &payload.Predictions[0], nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

func (c *Client) baseDelay() time.Duration {
	if c.BaseDelay > 0 {
		return c.BaseDelay
	}
	return DefaultBaseDelay
}

func (c *Client) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return DefaultMaxRetries
}

func (c *Client) sleepFn() func(context.Context, time.Duration) error {
	if c.sleep != nil {
		return c.sleep
	}
	return sleepCtx
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 120 * time.Second}
}

func (c *Client) log() *zap.SugaredLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop().Sugar()
}
