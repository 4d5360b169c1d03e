// Package endpoint posts cross-posts to a JSON HTTP endpoint that accepts
// {content, image} with Basic authentication and answers with {url}.
package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blacktop/crosspost/internal/crosspost"
	"github.com/blacktop/crosspost/internal/logutil"
)

const (
	providerName = "bluesky"

	// DefaultURL is the endpoint used when none is configured.
	DefaultURL = "https://api.bsky.app/v1/createPost"

	defaultTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20
)

// Config allows the caller to override the endpoint and timeout.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client implements crosspost.Poster against a single JSON endpoint.
type Client struct {
	url        string
	httpClient *http.Client
}

var _ crosspost.Poster = (*Client)(nil)

type payload struct {
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
}

type response struct {
	URL   any    `json:"url"`
	Error string `json:"error"`
}

// New constructs an endpoint poster.
func New(cfg Config) *Client {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = DefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{url: url, httpClient: &http.Client{Timeout: timeout}}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post sends one authenticated request and extracts the url field.
func (c *Client) Post(ctx context.Context, req crosspost.Request) (crosspost.Result, error) {
	body, err := json.Marshal(payload{Content: req.Content, Image: req.ImageURL})
	if err != nil {
		return crosspost.Result{}, fmt.Errorf("encode payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return crosspost.Result{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(req.Credentials.ProfileID, req.Credentials.AppPassword)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return crosspost.Result{}, &crosspost.RemoteError{Provider: providerName, Op: "post", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return crosspost.Result{}, &crosspost.RemoteError{Provider: providerName, Op: "read response", Err: err}
	}
	logutil.Debugf("endpoint responded: status=%d bytes=%d", resp.StatusCode, len(raw))

	var decoded response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return crosspost.Result{}, &crosspost.ProtocolError{Provider: providerName, StatusCode: resp.StatusCode, Reason: "response is not JSON"}
	}

	url, ok := decoded.URL.(string)
	if !ok || strings.TrimSpace(url) == "" {
		reason := "response missing url"
		if decoded.Error != "" {
			reason = fmt.Sprintf("%s: %s", reason, decoded.Error)
		}
		return crosspost.Result{}, &crosspost.ProtocolError{Provider: providerName, StatusCode: resp.StatusCode, Reason: reason}
	}

	return crosspost.Result{URL: strings.TrimSpace(url)}, nil
}
