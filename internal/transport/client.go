package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vpsmonitor/vps-agent/internal/errors"
)

const (
	// DefaultTimeout bounds every request to the collector.
	DefaultTimeout = 30 * time.Second

	userAgentName = "vps-agent"
	maxBodyBytes  = 512
)

// Client posts JSON documents to the collector API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

type Option func(*Client)

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// NewClient returns a Client for the collector at baseURL. version is
// reported in the User-Agent header.
func NewClient(baseURL, version string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		userAgent:  UserAgent(version),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// UserAgent returns the User-Agent value sent with every request.
func UserAgent(version string) string {
	return userAgentName + "/" + version
}

// Response is the status and a bounded prefix of the body of a collector
// reply.
type Response struct {
	StatusCode int
	Body       string
}

// PostJSON sends body to baseURL+path. A non-nil error means no response was
// received; a failed request construction carries ErrInvalidArgument.
func (c *Client) PostJSON(ctx context.Context, path string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrInvalidArgument, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	prefix, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	_, _ = io.Copy(io.Discard, resp.Body)

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       string(bytes.TrimSpace(prefix)),
	}, nil
}

func requestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
