// Package securenet wraps the HTTP client so every outbound request carries
// the standard security headers and every TLS handshake is decided by the
// certificate pinning validator.
package securenet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/omniai-app/securekit/internal/certpin"
	"github.com/omniai-app/securekit/internal/model"
)

// Config bounds the two timeouts. Both must be finite; zero values fall back
// to the defaults below.
type Config struct {
	RequestTimeout  time.Duration // per-request bound
	TransferTimeout time.Duration // end-to-end transfer bound
}

const (
	defaultRequestTimeout  = 30 * time.Second
	defaultTransferTimeout = 2 * time.Minute
)

// Client is the uniform outbound HTTP surface. Responses are either
// success-with-body, *HTTPError (reached server, non-2xx) or *TransportError
// (unreachable, handshake rejected, timed out).
type Client struct {
	http   *http.Client
	device model.DeviceInfo
	cfg    Config
	log    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTransport overrides the underlying round tripper (tests).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.Transport = rt }
}

// NewClient builds a Client whose handshake authority is validator. A
// connection the validator rejects is aborted before any request body is sent.
func NewClient(validator *certpin.Validator, device model.DeviceInfo, cfg Config, log *zap.Logger, opts ...Option) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.TransferTimeout <= 0 {
		cfg.TransferTimeout = defaultTransferTimeout
	}
	transport := &http.Transport{
		TLSClientConfig:       validator.TLSConfig(),
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	c := &Client{
		http:   &http.Client{Transport: transport, Timeout: cfg.TransferTimeout},
		device: device,
		cfg:    cfg,
		log:    log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Response is a successful (2xx) outcome.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string
}

// RequestOption mutates one outgoing request.
type RequestOption func(*http.Request)

// WithBearer attaches a caller-supplied bearer token. The client transports
// credentials; it never originates them.
func WithBearer(token string) RequestOption {
	return func(r *http.Request) {
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithHeader sets an extra header on the request.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// Do performs one request. Every request carries a fresh correlation id, a
// timestamp header, the device identity headers, and disables response
// caching.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, opts ...RequestOption) (*Response, error) {
	reqID := uuid.Must(uuid.NewV4()).String()

	rctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(rctx, method, url, rd)
	if err != nil {
		return nil, &TransportError{Op: "build", RequestID: reqID, Err: err}
	}

	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("X-Request-Timestamp", time.Now().UTC().Format(time.RFC3339))
	req.Header.Set("X-Device-ID", c.device.InstallID)
	req.Header.Set("X-App-Version", c.device.AppVersion)
	req.Header.Set("X-Platform", runtime.GOOS)
	req.Header.Set("Cache-Control", "no-store")
	for _, o := range opts {
		o(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("securenet: transport failure",
			zap.String("request_id", reqID), zap.String("url", url), zap.Error(err))
		return nil, &TransportError{Op: method + " " + url, RequestID: reqID, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read body", RequestID: reqID, Err: err}
	}

	c.log.Debug("securenet: request",
		zap.String("request_id", reqID),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Status: resp.StatusCode, RequestID: reqID, Body: raw}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: raw, RequestID: reqID}, nil
}

// PostJSON marshals in, posts it, and decodes the response into out when out
// is non-nil. A malformed response body surfaces as *DecodeError.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any, opts ...RequestOption) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("securenet: marshal request: %w", err)
	}
	opts = append(opts, WithHeader("Content-Type", "application/json"))
	resp, err := c.Do(ctx, http.MethodPost, url, payload, opts...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &DecodeError{RequestID: resp.RequestID, Err: err}
	}
	return nil
}

// GetJSON fetches url and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any, opts ...RequestOption) error {
	resp, err := c.Do(ctx, http.MethodGet, url, nil, opts...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &DecodeError{RequestID: resp.RequestID, Err: err}
	}
	return nil
}
