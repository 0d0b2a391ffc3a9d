// Package github fetches pull request snapshots from the GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codeGROOVE-dev/merge-ready/pkg/cache"
)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

const tracerName = "github.com/codeGROOVE-dev/merge-ready/pkg/github"

// Retry constants.
const (
	defaultRetryAttempts = 5
	initialRetryDelay    = time.Second
	maxRetryDelay        = 30 * time.Second
)

var (
	errRetryable = errors.New("retryable")
	errNotFound  = errors.New("not found")
)

// Client handles all GitHub API interactions.
type Client struct {
	tokenExpiry        time.Time
	httpClient         HTTPDoer
	cache              cache.Store
	tracer             trace.Tracer
	now                func() time.Time
	installationTokens map[string]installationToken
	baseURL            string
	appID              string
	token              string
	privateKeyPath     string
	privateKeyContent  []byte
	retryDelay         time.Duration
	filesTTL           time.Duration
	retryAttempts      uint
	tokenMutex         sync.RWMutex
	isAppAuth          bool
}

// Config holds configuration for creating a new GitHub client.
type Config struct {
	HTTPClient    HTTPDoer    // nil = http.Client with HTTPTimeout
	Cache         cache.Store // nil disables the file cache
	BaseURL       string      // empty = DefaultBaseURL
	AppID         string
	AppKeyPath    string
	AppKey        []byte // PEM content, takes precedence over AppKeyPath
	Token         string // personal access token; empty = `gh auth token`
	HTTPTimeout   time.Duration
	FilesTTL      time.Duration // zero = cache.TTLFiles
	RetryAttempts uint
	UseAppAuth    bool
}

// New creates a new GitHub API client using a personal token or GitHub App authentication.
func New(ctx context.Context, cfg Config) (*Client, error) {
	c := newClient(cfg)
	if cfg.UseAppAuth {
		if err := c.configureAppAuth(cfg); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err := c.configureTokenAuth(ctx, cfg.Token); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = defaultRetryAttempts
	}
	filesTTL := cfg.FilesTTL
	if filesTTL <= 0 {
		filesTTL = cache.TTLFiles
	}
	return &Client{
		httpClient:         httpClient,
		cache:              cfg.Cache,
		tracer:             otel.Tracer(tracerName),
		now:                time.Now,
		baseURL:            baseURL,
		retryAttempts:      attempts,
		retryDelay:         initialRetryDelay,
		filesTTL:           filesTTL,
		installationTokens: make(map[string]installationToken),
	}
}

// drainAndCloseBody drains and closes an HTTP response body to prevent resource leaks.
func drainAndCloseBody(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		slog.Warn("Failed to drain response body", "component", "http", "error", err)
	}
	if err := body.Close(); err != nil {
		slog.Warn("Failed to close response body", "component", "http", "error", err)
	}
}

// repoURL builds an API URL below /repos/{owner}/{repo}.
func (c *Client) repoURL(owner, repo, format string, args ...any) string {
	return fmt.Sprintf("%s/repos/%s/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(repo)) +
		fmt.Sprintf(format, args...)
}

// doRequest performs a GET with retry on rate limits, server errors and transport errors.
// The caller owns the body of the returned response.
func (c *Client) doRequest(ctx context.Context, owner, apiURL string) (*http.Response, error) {
	ctx, span := c.tracer.Start(ctx, "github.request", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", apiURL), attribute.String("github.owner", owner)))
	defer span.End()

	authHeader, err := c.authorization(ctx, owner)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "auth")
		return nil, err
	}

	slog.Debug("HTTP request", "component", "http", "method", http.MethodGet, "url", apiURL)

	var resp *http.Response
	err = c.retryWithBackoff(ctx, "GET "+apiURL, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", authHeader)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

		r, err := c.httpClient.Do(req) //nolint:bodyclose // closed below or by the caller
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return fmt.Errorf("%w: request failed: %w", errRetryable, err)
		}

		switch {
		case r.StatusCode == http.StatusTooManyRequests,
			r.StatusCode == http.StatusForbidden && r.Header.Get("X-RateLimit-Remaining") == "0":
			drainAndCloseBody(r.Body)
			slog.Warn("Rate limited - will retry with backoff", "component", "http", "url", apiURL, "status", r.StatusCode)
			return fmt.Errorf("%w: http %d: rate limited", errRetryable, r.StatusCode)
		case r.StatusCode >= http.StatusInternalServerError:
			drainAndCloseBody(r.Body)
			slog.Warn("Server error - will retry with backoff", "component", "http", "url", apiURL, "status", r.StatusCode)
			return fmt.Errorf("%w: http %d: server error", errRetryable, r.StatusCode)
		}
		resp = r
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	slog.Debug("HTTP response", "component", "http", "url", apiURL, "status", resp.StatusCode)
	return resp, nil
}

// getJSON fetches apiURL and decodes a 200 response into v. A 404 wraps errNotFound.
func (c *Client) getJSON(ctx context.Context, owner, apiURL string, v any) error {
	resp, err := c.doRequest(ctx, owner, apiURL)
	if err != nil {
		return err
	}
	defer drainAndCloseBody(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return fmt.Errorf("GET %s: %w", apiURL, errNotFound)
	default:
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if err != nil {
			return fmt.Errorf("GET %s: status %d (could not read body: %w)", apiURL, resp.StatusCode, err)
		}
		return fmt.Errorf("GET %s: status %d: %s", apiURL, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", apiURL, err)
	}
	return nil
}

// retryWithBackoff executes fn with exponential backoff and jitter.
func (c *Client) retryWithBackoff(ctx context.Context, operation string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(c.retryDelay/4+time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("Retry attempt", "component", "retry", "operation", operation,
				"attempt", n+1, "max_attempts", c.retryAttempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errRetryable)
		}),
	)
}
