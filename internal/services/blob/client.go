package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rematrix/internal/config"
	"rematrix/internal/services"
)

// Client uploads binary artifacts to a Bunny-style storage zone: a PUT per
// object with an access key header, served back from a public CDN base URL.
type Client struct {
	cfg        config.Blob
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a blob client, or nil when uploads are disabled.
func NewClient(cfg config.Blob, opts ...Option) *Client {
	if !cfg.Enabled {
		return nil
	}
	timeout := 30 * time.Second
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Upload stores the payload under objectPath and returns its public URL.
func (c *Client) Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	objectPath = strings.TrimLeft(strings.TrimSpace(objectPath), "/")
	if objectPath == "" {
		return "", services.Wrap(services.ErrValidation, "", "blob upload", "object path required", nil)
	}
	endpoint := strings.TrimRight(c.cfg.StorageURL, "/") + "/" + objectPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "", "blob upload", "new request", err)
	}
	req.Header.Set("AccessKey", c.cfg.AccessKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "", "blob upload", "http error", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", services.Wrap(services.ErrTransient, "", "blob upload",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	base := strings.TrimRight(c.cfg.PublicBaseURL, "/")
	if base == "" {
		base = strings.TrimRight(c.cfg.StorageURL, "/")
	}
	return base + "/" + objectPath, nil
}
