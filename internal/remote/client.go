// Package remote is the HTTP client for the posts CRUD API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/d60-Lab/postsync/internal/store"
	"github.com/d60-Lab/postsync/pkg/logger"
)

const (
	postsPath = "/api/posts"

	// DefaultBaseURL is where the reference backend listens by default.
	DefaultBaseURL = "http://localhost:8080"

	// RequestIDHeader carries a per-request correlation id.
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 4 << 10
)

// Client talks to a posts API rooted at a base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a Client. An empty baseURL means DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

type createRequest struct {
	Content string `json:"content"`
}

type updateRequest struct {
	ID      store.ID `json:"id"`
	Content string   `json:"content"`
}

type deleteRequest struct {
	ID store.ID `json:"id"`
}

// List fetches the whole collection in server order.
func (c *Client) List(ctx context.Context) ([]store.Post, error) {
	var posts []store.Post
	if err := c.do(ctx, OpList, http.MethodGet, nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Create submits new content and returns the server's post.
func (c *Client) Create(ctx context.Context, content string) (store.Post, error) {
	var p store.Post
	if err := c.do(ctx, OpCreate, http.MethodPost, createRequest{Content: content}, &p); err != nil {
		return store.Post{}, err
	}
	return p, nil
}

// Update replaces the content of post id and returns the server's post.
func (c *Client) Update(ctx context.Context, id store.ID, content string) (store.Post, error) {
	var p store.Post
	if err := c.do(ctx, OpUpdate, http.MethodPut, updateRequest{ID: id, Content: content}, &p); err != nil {
		return store.Post{}, err
	}
	return p, nil
}

// Delete removes post id. The response body is never inspected.
func (c *Client) Delete(ctx context.Context, id store.ID) error {
	return c.do(ctx, OpDelete, http.MethodDelete, deleteRequest{ID: id}, nil)
}

func (c *Client) do(ctx context.Context, op Op, method string, body, result any) error {
	url := c.baseURL + postsPath

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("posts request failed",
			zap.String("op", string(op)), zap.String("request_id", requestID), zap.Error(err))
		return &TransportError{Op: op, URL: url, Err: err}
	}
	defer resp.Body.Close()

	logger.Debug("posts request",
		zap.String("op", string(op)),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ServerError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, URL: url, Err: fmt.Errorf("read response: %w", err)}
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return &MalformedResponseError{Op: op, Body: truncate(string(raw), 256), Err: err}
	}
	return nil
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// errorMessage extracts the server's error message from a response body.
func errorMessage(raw []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return strings.TrimSpace(truncate(string(raw), 256))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
