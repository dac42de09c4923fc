// Package gemini talks to the upstream generative-text API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultAPIVersion = "v1beta"
	DefaultModel      = "gemini-2.0-flash"
)

// ErrNoBody is returned when a successful response carries no body.
var ErrNoBody = errors.New("upstream response has no body")

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error returns the upstream's error text, or the HTTP status when the body
// is empty.
func (e *StatusError) Error() string {
	if body := strings.TrimSpace(e.Body); body != "" {
		return body
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIVersion string
	Model      string
	APIKey     string
	// ProxyURL may be empty to use the environment proxy.
	ProxyURL string
}

// Client sends generation requests to the upstream.
type Client struct {
	baseURL    string
	apiVersion string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a Client. Streaming calls carry no client-side
// timeout; the request context bounds them.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	transport := &http.Transport{}
	if cfg.ProxyURL != "" {
		parsed, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion: cfg.APIVersion,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Transport: transport},
	}
}

// Configured reports whether a credential is available.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Model returns the upstream model identifier.
func (c *Client) Model() string {
	return c.model
}

// queryKey reports whether the credential travels in the URL. The v1beta
// surface takes it as ?key=, later versions in the x-goog-api-key header.
func (c *Client) queryKey() bool {
	return c.apiVersion == "v1beta"
}

func (c *Client) streamURL() string {
	q := url.Values{}
	q.Set("alt", "sse")
	if c.queryKey() {
		q.Set("key", c.apiKey)
	}
	return fmt.Sprintf("%s/%s/models/%s:streamGenerateContent?%s",
		c.baseURL, c.apiVersion, url.PathEscape(c.model), q.Encode())
}

// Stream posts req and returns the response once headers arrive. The caller
// owns the body. Non-2xx responses are drained and returned as *StatusError.
func (c *Client) Stream(ctx context.Context, req *GenerateContentRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.streamURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if !c.queryKey() {
		httpReq.Header.Set("x-goog-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrNoBody
	}
	return resp, nil
}
