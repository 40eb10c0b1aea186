package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Prober checks that the backend answers on its root path before a large
// upload is committed.
type Prober struct {
	baseURL   *url.URL
	client    *retryablehttp.Client
	userAgent string
	logger    *slog.Logger
}

// NewProber builds a Prober for the backend at baseURL.
func NewProber(baseURL string, opts ...Option) (*Prober, error) {
	base, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	s := newSettings(defaultProbeTimeout, opts)
	return &Prober{
		baseURL:   base,
		client:    newRequestClient(s),
		userAgent: s.userAgent,
		logger:    s.logger,
	}, nil
}

// Probe reports whether GET / answered with a 2xx status.
func (p *Prober) Probe(ctx context.Context) bool {
	_, err := p.Check(ctx)
	return err == nil
}

// Check performs the health request and returns the decoded info body. A
// 2xx response whose body is not JSON still counts as reachable.
func (p *Prober) Check(ctx context.Context) (Health, error) {
	if p == nil {
		return Health{}, fmt.Errorf("prober is nil")
	}
	target := endpoint(p.baseURL, "/")
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Health{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", p.userAgent)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.WarnContext(ctx, "connectivity probe failed", "url", target, "err", err)
		return Health{}, fmt.Errorf("probe %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	health := Health{Status: resp.StatusCode, Latency: time.Since(start)}
	body, _ := readBody(resp.Body)
	if !isSuccess(resp.StatusCode) {
		p.logger.WarnContext(ctx, "connectivity probe rejected", "url", target, "status", resp.StatusCode)
		return health, fmt.Errorf("probe %s returned status %d", target, resp.StatusCode)
	}
	if err := json.Unmarshal(body, &health); err != nil {
		p.logger.DebugContext(ctx, "health body is not json", "err", err)
	}
	p.logger.DebugContext(ctx, "connectivity probe ok", "status", resp.StatusCode, "latency", health.Latency)
	return health, nil
}
