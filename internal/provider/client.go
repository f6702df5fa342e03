package provider

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
	"time"

	"golang.org/x/time/rate"

	"socialpub/pkg/backoff"
	"socialpub/pkg/circuitbreaker"
)

// apiError is a non-2xx response from a provider API.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("provider API returned %d: %s", e.StatusCode, truncate(e.Body, 400))
}

// retryable reports whether an error is worth one retry (5xx or transport).
func retryable(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return true // transport/network error
}

// client is the HTTP plumbing shared by all adapters: a per-provider rate
// limiter, one retry on transient failure, and a per-host circuit breaker.
type client struct {
	http     *http.Client
	limiter  *rate.Limiter
	breakers *circuitbreaker.Registry
	retries  int
}

// clientConfig tunes a provider client. Zero values use defaults.
type clientConfig struct {
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

func newClient(cfg clientConfig) *client {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breakers: circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()),
		retries:  1,
	}
}

// postJSON sends a JSON body and decodes a JSON response into out (if non-nil).
func (c *client) postJSON(ctx context.Context, rawURL string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, rawURL, "application/json", "", payload, out)
}

// postJSONAuth is postJSON with a Bearer token.
func (c *client) postJSONAuth(ctx context.Context, rawURL, bearer string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, rawURL, "application/json", bearer, payload, out)
}

// postForm sends form-encoded values and decodes a JSON response into out.
func (c *client) postForm(ctx context.Context, rawURL string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, rawURL, "application/x-www-form-urlencoded", "", []byte(form.Encode()), out)
}

// getJSON fetches a URL and decodes a JSON response into out.
func (c *client) getJSON(ctx context.Context, rawURL string, out any) error {
	return c.do(ctx, http.MethodGet, rawURL, "", "", nil, out)
}

func (c *client) do(ctx context.Context, method, rawURL, contentType, bearer string, body []byte, out any) error {
	host := extractHost(rawURL)
	breaker := c.breakers.Get(host)
	if !breaker.Allow() {
		return fmt.Errorf("circuit open for %s", host)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff.Exponential(attempt, nil)):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		lastErr = c.once(ctx, method, rawURL, contentType, bearer, body, out)
		if lastErr == nil {
			breaker.RecordSuccess()
			return nil
		}
		if !retryable(lastErr) {
			break
		}
	}
	breaker.RecordFailure()
	return lastErr
}

func (c *client) once(ctx context.Context, method, rawURL, contentType, bearer string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// extractHost extracts the host from a URL for circuit breaker keying.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func isVideo(contentType, rawURL string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if semi := strings.Index(ct, ";"); semi >= 0 {
		ct = strings.TrimSpace(ct[:semi])
	}
	if strings.HasPrefix(ct, "video/") {
		return true
	}
	u := strings.ToLower(rawURL)
	for _, ext := range []string{".mp4", ".mov", ".webm", ".m4v", ".avi", ".mkv"} {
		if strings.HasSuffix(u, ext) {
			return true
		}
	}
	return false
}

func isImage(contentType, rawURL string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if strings.HasPrefix(ct, "image/") {
		return true
	}
	u := strings.ToLower(rawURL)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp", ".gif"} {
		if strings.HasSuffix(u, ext) {
			return true
		}
	}
	return false
}
