package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	errors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-federation/pkg/types"
)

const (
	contentTypeActivity = `application/activity+json`
	acceptActivity      = `application/activity+json, application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

	// Remote servers can return arbitrarily large documents; cap what we
	// keep of both successful fetches and error bodies.
	maxFetchBody = 5 << 20
	maxErrorBody = 16 << 10
)

// Config wires the federation HTTP client.
type Config struct {
	HTTPClient *http.Client
	UserAgent  string
	Logger     types.Logger
}

// Client delivers signed activities and dereferences remote objects.
type Client struct {
	http      *http.Client
	userAgent string
	logger    types.Logger
}

// New constructs a client. A nil HTTPClient gets a conservative default
// timeout; federation peers are slow and numerous.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Client{
		http:      httpClient,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

var _ types.Fetcher = (*Client)(nil)

// Deliver signs and POSTs an activity document to a remote inbox. Non-2xx
// responses become delivery errors carrying the status and (truncated)
// response body so operators can see what the peer objected to.
func (c *Client) Deliver(ctx context.Context, signer *Signer, inboxURL string, body []byte) error {
	if signer == nil {
		return fmt.Errorf("client: signer required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inboxURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client: build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeActivity)
	req.Header.Set("Accept", acceptActivity)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if err := signer.Sign(req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "client: delivery request failed").
			WithTextCode(types.TextCodeDeliveryFailed).
			WithMetadata(map[string]any{"inbox": inboxURL})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.New(
			fmt.Sprintf("client: inbox %s rejected delivery with status %d", inboxURL, resp.StatusCode),
			errors.CategoryInternal,
		).
			WithCode(errors.CodeInternal).
			WithTextCode(types.TextCodeDeliveryFailed).
			WithMetadata(map[string]any{
				"inbox":  inboxURL,
				"status": resp.StatusCode,
				"body":   string(snippet),
			})
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	c.logger.Debug("delivered activity", "inbox", inboxURL, "status", resp.StatusCode)
	return nil
}

// Fetch dereferences a remote URI and returns the raw document.
func (c *Client) Fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("client: build fetch request: %w", err)
	}
	req.Header.Set("Accept", acceptActivity)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errors.New(
			fmt.Sprintf("client: fetch %s returned status %d", uri, resp.StatusCode),
			errors.CategoryInternal,
		).
			WithCode(errors.CodeInternal).
			WithMetadata(map[string]any{
				"uri":    uri,
				"status": resp.StatusCode,
				"body":   string(snippet),
			})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("client: read response from %s: %w", uri, err)
	}
	return body, nil
}
