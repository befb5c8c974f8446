package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"fwvoice/config"
	"fwvoice/models"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	VoicePath    = "/api/voice"
	RulesPath    = "/api/rules"
	APIKeyHeader = "x-api-key"

	// FallbackText is shown when a response has no result, status or error.
	FallbackText = "Unknown error"

	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes = 1 << 20
)

// Client sends commands to the firewall controller. It keeps no per-call
// state, so one Client can serve any number of concurrent sessions.
type Client struct {
	client *http.Client
	log    *zap.Logger
}

type options struct {
	timeouts  Timeouts
	log       *zap.Logger
	transport http.RoundTripper
}

// Option configures a Client.
type Option func(*options)

// WithTimeouts sets the connect, read, write and whole-call timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(o *options) { o.timeouts = t }
}

// WithLogger sets the logger used for request tracing. nil is ignored.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithTransport replaces the pooled transport, e.g. with a stub in tests.
// Connect, read and write timeouts are then up to the given RoundTripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// NewClient creates a client with DefaultTimeouts unless overridden.
func NewClient(opts ...Option) *Client {
	o := options{
		timeouts: DefaultTimeouts(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	rt := o.transport
	if rt == nil {
		rt = newTransport(o.timeouts)
	}

	return &Client{
		client: &http.Client{
			Transport: rt,
			Timeout:   o.timeouts.Call,
		},
		log: o.log,
	}
}

// Send issues one command and returns the text to display for it.
func (c *Client) Send(ctx context.Context, cfg config.TransportConfig, text string) (string, error) {
	resp, err := c.Do(ctx, cfg, text)
	if err != nil {
		return "", err
	}
	return Normalize(resp), nil
}

// Do issues one command and returns the decoded response.
func (c *Client) Do(ctx context.Context, cfg config.TransportConfig, text string) (*models.VoiceResponse, error) {
	body, err := json.Marshal(models.VoiceRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encode voice request: %w", err)
	}
	return c.call(ctx, cfg, http.MethodPost, VoicePath, body)
}

// ListRules fetches the controller's current rule listing.
func (c *Client) ListRules(ctx context.Context, cfg config.TransportConfig) (*models.VoiceResponse, error) {
	return c.call(ctx, cfg, http.MethodGet, RulesPath, nil)
}

// CloseIdleConnections drops pooled connections, e.g. on logout.
func (c *Client) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

// Normalize picks the display text: result, then status, then error.
func Normalize(r *models.VoiceResponse) string {
	if r == nil {
		return FallbackText
	}
	if text, ok := lo.Coalesce(r.Result, r.Status, r.Error); ok {
		return *text
	}
	return FallbackText
}

func (c *Client) call(ctx context.Context, cfg config.TransportConfig, method, path string, body []byte) (*models.VoiceResponse, error) {
	endpoint, err := resolve(cfg.BaseURL(), path)
	if err != nil {
		return nil, &TransportError{Message: err.Error(), Err: err}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &TransportError{Message: err.Error(), Err: err}
	}
	req.Header.Set(APIKeyHeader, cfg.APIKey())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		err = classify(ctx, err)
		c.log.Debug("voice request failed", zap.String("method", method), zap.String("url", endpoint), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		err = classify(ctx, err)
		c.log.Debug("reading voice response failed", zap.String("url", endpoint), zap.Error(err))
		return nil, err
	}

	c.log.Debug("voice response",
		zap.String("method", method),
		zap.String("url", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("took", time.Since(start)),
	)

	if len(raw) > MaxResponseBytes {
		return nil, newServerError(resp.StatusCode, raw[:MaxResponseBytes],
			fmt.Errorf("response body exceeds %d bytes", MaxResponseBytes))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newServerError(resp.StatusCode, raw, nil)
	}

	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, newServerError(resp.StatusCode, raw, errors.New("response is not a JSON object"))
	}

	var decoded models.VoiceResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, newServerError(resp.StatusCode, raw, fmt.Errorf("decode response: %w", err))
	}
	return &decoded, nil
}

// resolve treats path as host-rooted, so any path on the base URL is replaced.
func resolve(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}
	return u.ResolveReference(&url.URL{Path: path}).String(), nil
}
