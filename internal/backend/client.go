package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultUserAgent     = "genrescope/0.1"
	defaultProbeTimeout  = 10 * time.Second
	defaultUploadTimeout = 5 * time.Minute
	defaultPredictPath   = "/predict"

	// maxResponseBody caps how much of any response body is read.
	maxResponseBody int64 = 4 << 20
)

type settings struct {
	timeout    time.Duration
	logger     *slog.Logger
	userAgent  string
	path       string
	httpClient *http.Client
}

// Option customises a Prober or an upload transport.
type Option func(*settings)

// WithTimeout bounds each request. Expiry is reported as a network failure.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger routes request diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *settings) {
		if strings.TrimSpace(ua) != "" {
			s.userAgent = ua
		}
	}
}

// WithPath overrides the endpoint path an upload transport posts to.
func WithPath(path string) Option {
	return func(s *settings) {
		if p := strings.TrimSpace(path); p != "" {
			if !strings.HasPrefix(p, "/") {
				p = "/" + p
			}
			s.path = p
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client. The client's own
// Timeout then applies instead of WithTimeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.httpClient = c }
}

func newSettings(defaultTimeout time.Duration, opts []Option) settings {
	s := settings{
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
		path:      defaultPredictPath,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// newRequestClient builds the retryablehttp client used by the probe and
// both upload transports. Retrying is disabled: a failed attempt is reported
// to the caller, which decides what happens next.
func newRequestClient(s settings) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		return false, nil
	}
	client.Logger = s.logger
	if s.httpClient != nil {
		client.HTTPClient = s.httpClient
	} else {
		client.HTTPClient.Timeout = s.timeout
	}
	return client
}

// ParseBaseURL normalises a backend base URL, defaulting to http when no
// scheme is given.
func ParseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("backend url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse backend url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse backend url %q: missing host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func endpoint(base *url.URL, path string) string {
	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + path
	return u.String()
}

func readBody(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxResponseBody))
}
