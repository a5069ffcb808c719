package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// ClientOption configures a platform client.
type ClientOption func(*clientBase)

// WithHTTPClient sets the HTTP client used for API and upload requests.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *clientBase) { c.httpClient = client }
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(uri string) ClientOption {
	return func(c *clientBase) { c.baseURL = strings.TrimRight(uri, "/") }
}

func WithLogger(l *log.Logger) ClientOption {
	return func(c *clientBase) { c.logger = l }
}

// clientBase holds the transport shared by every platform client.
//
// Access tokens are fetched through a singleflight group so concurrent requests
// for the same account trigger at most one refresh.
type clientBase struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *log.Logger
	group      *singleflight.Group
}

func newClientBase(baseURL string, tokens TokenSource, opts ...ClientOption) clientBase {
	c := clientBase{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		tokens:     tokens,
		logger:     log.Default(),
		group:      &singleflight.Group{},
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// accessToken returns a valid access token, sharing one in-flight lookup between concurrent callers.
func (c *clientBase) accessToken(ctx context.Context) (string, error) {
	v, err, _ := c.group.Do("token", func() (any, error) {
		return c.tokens.AccessToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// newRequest builds an authenticated request. Relative endpoints are resolved against baseURL.
func (c *clientBase) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(endpoint, "/") {
		endpoint = c.baseURL + endpoint
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// newJSONRequest builds an authenticated request with payload encoded as JSON.
func (c *clientBase) newJSONRequest(ctx context.Context, method, endpoint string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}
	return req, nil
}

// do sends req and returns the response with its body fully read.
func (c *clientBase) do(req *http.Request) (*http.Response, []byte, error) {
	c.logger.Debug("api request", "method", req.Method, "url", req.URL.Redacted())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, body, nil
}
