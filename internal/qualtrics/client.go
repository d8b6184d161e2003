// Package qualtrics is a typed client for the Qualtrics v3 REST API: envelope
// decoding, error classification, page following and the per-resource
// managers used by the distribution pipelines.
package qualtrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MaxPageSize is the largest page size accepted by list endpoints.
const MaxPageSize = 100

// Config describes how to reach and authenticate against Qualtrics.
type Config struct {
	// Domain is a datacenter id ("fra1") or a full host name.
	Domain string
	// BaseURL overrides the URL derived from Domain.
	BaseURL string
	APIKey  string
	OAuth   *OAuthConfig

	// DirectoryID and LibraryID scope the managers that need them.
	DirectoryID string
	LibraryID   string

	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
	// Now is used for default send dates; defaults to time.Now.
	Now func() time.Time
}

// Client performs authenticated requests and unwraps response envelopes.
// A Client is safe for concurrent use.
type Client struct {
	baseURL     string
	directoryID string
	libraryID   string
	http        *http.Client
	logger      *slog.Logger
	now         func() time.Time
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: timeout}
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	host := ""
	if baseURL == "" {
		var err error
		host, err = normalizeHost(cfg.Domain)
		if err != nil {
			return nil, err
		}
		baseURL = "https://" + host + "/API/v3/"
	} else {
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse qualtrics base url: %w", err)
		}
		host = parsed.Host
	}

	hc, err := authenticatedClient(base, host, cfg)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:     baseURL,
		directoryID: cfg.DirectoryID,
		libraryID:   cfg.LibraryID,
		http:        hc,
		logger:      logger.With("component", "qualtrics"),
		now:         now,
	}, nil
}

// BaseURL returns the API root every path is joined onto.
func (c *Client) BaseURL() string { return c.baseURL }

// DirectoryID returns the default directory scope.
func (c *Client) DirectoryID() string { return c.directoryID }

// LibraryID returns the default message library scope.
func (c *Client) LibraryID() string { return c.libraryID }

// Do sends one request and returns the decoded envelope. Non-2xx responses
// become *ClientError or *ServerError; transport failures become *ServerError.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (*Envelope, error) {
	target, err := c.resolve(path, query)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		encoded, encErr := json.Marshal(body)
		if encErr != nil {
			return nil, fmt.Errorf("encode qualtrics request body: %w", encErr)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create qualtrics request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ServerError{APIError: APIError{Reason: "transport failure"}, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServerError{
			APIError: APIError{StatusCode: resp.StatusCode, Reason: "read body"},
			Cause:    err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		meta, requestID := decodeErrorMeta(payload)
		statusErr := newStatusError(resp.StatusCode, reasonPhrase(resp), meta, requestID)
		c.logger.WarnContext(ctx, "qualtrics request failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"error", statusErr,
		)
		return nil, statusErr
	}

	return decodeEnvelope(path, payload)
}

// Get returns the result object of a single-entity request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	env, err := c.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	return decodeResultObject(path, env)
}

// GetInto decodes the result object into dst.
func (c *Client) GetInto(ctx context.Context, path string, query url.Values, dst any) error {
	raw, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &DecodeError{Path: path, Detail: "unexpected result shape", Cause: err}
	}
	return nil
}

// Post creates a resource and returns its id, or "" when the response carries none.
func (c *Client) Post(ctx context.Context, path string, body any) (string, error) {
	env, err := c.Do(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return "", err
	}
	return decodeCreatedID(path, env)
}

// Put updates a resource.
func (c *Client) Put(ctx context.Context, path string, body any) error {
	_, err := c.Do(ctx, http.MethodPut, path, nil, body)
	return err
}

// Delete removes a resource.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.Do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	joined := URLJoin(c.baseURL, path)
	if len(query) == 0 {
		return joined, nil
	}
	u, err := url.Parse(joined)
	if err != nil {
		return "", fmt.Errorf("parse qualtrics url %q: %w", joined, err)
	}
	merged := u.Query()
	for key, values := range query {
		for _, v := range values {
			merged.Add(key, v)
		}
	}
	u.RawQuery = merged.Encode()
	return u.String(), nil
}

func reasonPhrase(resp *http.Response) string {
	status := resp.Status
	if idx := strings.IndexByte(status, ' '); idx >= 0 {
		return strings.TrimSpace(status[idx+1:])
	}
	return http.StatusText(resp.StatusCode)
}
