// Package retrieval calls data source endpoints with resolved parameters.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexwday/report-designer/internal/schema"
	"github.com/alexwday/report-designer/internal/types"
)

// DefaultTimeout is the default per-call timeout
const DefaultTimeout = 60 * time.Second

// maxBody bounds the size of a retrieved payload
const maxBody = 16 << 20

// Error represents a failed retrieval call
type Error struct {
	SourceID   string
	MethodID   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	prefix := fmt.Sprintf("retrieval error for %s/%s", e.SourceID, e.MethodID)
	if e.StatusCode != 0 {
		prefix += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the client
type Options struct {
	Timeout time.Duration
	Headers map[string]string
}

// Client invokes retrieval methods over HTTP: POST {endpoint}/{method_id} with
// the resolved parameters as the JSON body. The response body is the payload.
type Client struct {
	registry schema.Registry
	http     *http.Client
	headers  map[string]string
}

// NewClient creates a client that looks up endpoints in registry
func NewClient(registry schema.Registry, opts *Options) *Client {
	timeout := DefaultTimeout
	var headers map[string]string
	if opts != nil {
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		headers = opts.Headers
	}
	return &Client{
		registry: registry,
		http:     &http.Client{Timeout: timeout},
		headers:  headers,
	}
}

// Invoke calls one retrieval method
func (c *Client) Invoke(ctx context.Context, sourceID, methodID string, params map[string]any) (*types.Payload, error) {
	fail := func(status int, msg string, cause error) error {
		return &Error{SourceID: sourceID, MethodID: methodID, StatusCode: status, Message: msg, Cause: cause}
	}

	cat, err := schema.Snapshot(ctx, c.registry)
	if err != nil {
		return nil, fail(0, "failed to read registry", err)
	}
	src, _, ok := cat.Method(sourceID, methodID)
	if !ok {
		return nil, fail(0, "unknown retrieval method", nil)
	}
	endpoint, err := methodURL(src.Endpoint, methodID)
	if err != nil {
		return nil, fail(0, "invalid endpoint", err)
	}

	body, err := json.Marshal(map[string]any{"parameters": params})
	if err != nil {
		return nil, fail(0, "failed to encode parameters", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fail(0, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fail(0, "HTTP request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fail(resp.StatusCode, "failed to read response body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fail(resp.StatusCode, summarize(data), nil)
	}
	if !json.Valid(data) {
		return nil, fail(resp.StatusCode, "response is not valid JSON", nil)
	}

	return &types.Payload{
		SourceID:   sourceID,
		MethodID:   methodID,
		Parameters: params,
		Data:       json.RawMessage(data),
	}, nil
}

func methodURL(endpoint, methodID string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("data source has no endpoint")
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("endpoint %q is not an absolute URL", endpoint)
	}
	return base.JoinPath(methodID).String(), nil
}

// summarize extracts an error message from a failed response
func summarize(body []byte) string {
	var doc struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &doc) == nil {
		if doc.Message != "" {
			return doc.Message
		}
		if doc.Error != "" {
			return doc.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		msg = "empty response"
	}
	return msg
}
