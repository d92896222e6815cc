package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medpass/medpass/internal/config"
	"github.com/medpass/medpass/internal/logging"
	"github.com/medpass/medpass/internal/session"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://api.mediimpact.in/index.php"
	// DefaultVersion is sent in the version header on authenticated calls.
	DefaultVersion = "10007"

	headerToken          = "token"
	headerUserID         = "User-ID"
	headerVersion        = "version"
	headerIdempotencyKey = "Idempotency-Key"

	maxResponseBytes = 4 << 20
	statusOK         = 200
)

// Client is the single typed entry point to the backend. It owns the base
// URL, TLS policy, timeout and header conventions; every call is a single
// attempt.
type Client struct {
	baseURL string
	version string
	http    *http.Client
	logger  *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, e.g. for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithVersion overrides the version header value.
func WithVersion(v string) Option {
	return func(c *Client) { c.version = v }
}

// WithLogger attaches a logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a client for baseURL. Plain http is refused unless the host is loopback.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if err := config.CheckBaseURL(baseURL); err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: baseURL,
		version: DefaultVersion,
		http:    &http.Client{Timeout: 20 * time.Second},
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FromConfig builds a client from runtime configuration.
func FromConfig(cfg config.Config, logger *slog.Logger) (*Client, error) {
	return New(cfg.APIBaseURL, WithTimeout(cfg.HTTPTimeout), WithVersion(cfg.APIVersion), WithLogger(logger))
}

// Ack is the minimal envelope every endpoint returns.
type Ack struct {
	Status  session.Scalar `json:"status"`
	Message session.Scalar `json:"message"`
}

// File is one multipart file part.
type File struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

type request struct {
	method    string
	path      string
	query     url.Values
	form      url.Values
	multipart url.Values
	files     []File
	creds     *session.Credentials
	versioned bool
	headers   map[string]string
	// lenient accepts a response without a status field as long as HTTP succeeded.
	lenient bool
}

func authed(creds session.Credentials) (*session.Credentials, error) {
	if !creds.Valid() {
		return nil, ErrMissingCredentials
	}
	return &creds, nil
}

// do performs one round trip and decodes the JSON body into out when the
// call succeeds.
func (c *Client) do(ctx context.Context, r request, out any) error {
	body, contentType, err := encodeBody(r)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if r.creds != nil {
		req.Header.Set(headerToken, r.creds.Token)
		req.Header.Set(headerUserID, r.creds.UserID)
	}
	if r.versioned && c.version != "" {
		req.Header.Set(headerVersion, c.version)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("api request failed", "method", r.method, "path", r.path, "error", err)
		return fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("api request completed",
		slog.String("method", r.method),
		slog.String("path", r.path),
		slog.Int("http_status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	var env Ack
	// A body that is not an envelope is an exception whatever the HTTP status.
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}

	if !succeeded(resp.StatusCode, env.Status, r.lenient) {
		se := &StatusError{HTTPStatus: resp.StatusCode, Status: env.Status.String(), Message: env.Message.String()}
		_ = json.Unmarshal(raw, &se.Payload)
		return se
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func succeeded(httpStatus int, status session.Scalar, lenient bool) bool {
	if httpStatus < 200 || httpStatus > 299 {
		return false
	}
	if status == "" {
		return lenient
	}
	n, ok := status.Int()
	return ok && n == statusOK
}

func encodeBody(r request) (io.Reader, string, error) {
	switch {
	case r.multipart != nil || len(r.files) > 0:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for key, vals := range r.multipart {
			for _, v := range vals {
				if err := w.WriteField(key, v); err != nil {
					return nil, "", err
				}
			}
		}
		for _, f := range r.files {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Name))
			ct := f.ContentType
			if ct == "" {
				ct = "application/octet-stream"
			}
			h.Set("Content-Type", ct)
			part, err := w.CreatePart(h)
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(f.Data); err != nil {
				return nil, "", err
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	case r.form != nil:
		return strings.NewReader(r.form.Encode()), "application/x-www-form-urlencoded", nil
	default:
		return nil, "", nil
	}
}

// NewIdempotencyKey returns a fresh key for unsafe calls.
func NewIdempotencyKey() string {
	return uuid.NewString()
}
