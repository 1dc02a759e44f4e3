// Package captcha verifies CAPTCHA tokens against a siteverify-compatible
// endpoint (reCAPTCHA, hCaptcha, Turnstile) and gates routes on the result.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bastion/pkg/platform/circuit"
	"bastion/pkg/platform/tracer"
)

const (
	defaultTimeout = 5 * time.Second
	// maxResponseBytes bounds what we read from the provider.
	maxResponseBytes = 64 << 10
)

// HTTPDoer is the subset of *http.Client the client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the siteverify endpoint. Every failure mode is reported as
// "not verified": the gate fails closed.
type Client struct {
	verifyURL string
	secret    string
	timeout   time.Duration
	http      HTTPDoer
	breaker   *circuit.Breaker
	tracer    tracer.Tracer
	metrics   *Metrics
	logger    *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a siteverify client.
func NewClient(verifyURL, secret string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(verifyURL); err != nil {
		return nil, fmt.Errorf("invalid captcha verify url: %w", err)
	}
	if secret == "" {
		return nil, fmt.Errorf("captcha secret is required")
	}
	c := &Client{
		verifyURL: verifyURL,
		secret:    secret,
		timeout:   defaultTimeout,
		breaker:   circuit.New("captcha"),
		tracer:    tracer.NewNoop(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify reports whether the provider accepted token. A false result with a
// nil error means the provider rejected the token; a non-nil error means the
// provider could not be consulted. Both must be treated as not verified.
func (c *Client) Verify(ctx context.Context, token, remoteIP string) (verified bool, err error) {
	ctx, span := c.tracer.Start(ctx, "captcha.Verify")
	defer func() {
		span.SetAttributes(tracer.Bool("captcha.verified", verified))
		span.End(err)
	}()

	if strings.TrimSpace(token) == "" {
		c.observe(resultMissing)
		return false, nil
	}
	if !c.breaker.Allow() {
		c.observe(resultCircuitOpen)
		return false, ErrCircuitOpen
	}

	start := time.Now()
	resp, err := c.call(ctx, token, remoteIP)
	c.observeLatency(start)
	if err != nil {
		if change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "captcha circuit opened", "breaker", c.breaker.Name())
		}
		c.observe(resultError)
		return false, err
	}
	if change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "captcha circuit closed", "breaker", c.breaker.Name())
	}

	if !resp.Success {
		c.logger.InfoContext(ctx, "captcha rejected", "error_codes", resp.ErrorCodes)
		c.observe(resultRejected)
		return false, nil
	}
	c.observe(resultVerified)
	return true, nil
}

func (c *Client) call(ctx context.Context, token, remoteIP string) (*siteverifyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("siteverify request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("siteverify returned status %d", res.StatusCode)
	}

	var body siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode siteverify response: %w", err)
	}
	return &body, nil
}

func (c *Client) observe(result string) {
	if c.metrics != nil {
		c.metrics.Verifications.WithLabelValues(result).Inc()
	}
}

func (c *Client) observeLatency(start time.Time) {
	if c.metrics != nil {
		c.metrics.VerifyDuration.Observe(time.Since(start).Seconds())
	}
}
