package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/tunelab/genrescope/internal/media"
)

// Fallback is the progress-reporting transport used after the primary
// transport fails to obtain a response. It runs on its own connection pool
// with keep-alives off, so a wedged pooled connection or a failed HTTP/2
// negotiation on the primary path cannot poison this attempt.
type Fallback struct {
	baseURL   *url.URL
	path      string
	client    *retryablehttp.Client
	userAgent string
	logger    *slog.Logger
}

// NewFallback builds the fallback transport for the backend at baseURL.
func NewFallback(baseURL string, opts ...Option) (*Fallback, error) {
	base, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	s := newSettings(defaultUploadTimeout, opts)
	client := newRequestClient(s)
	if s.httpClient == nil {
		client.HTTPClient = &http.Client{
			Timeout: s.timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: s.timeout,
				DisableKeepAlives:     true,
				ForceAttemptHTTP2:     false,
			},
		}
	}
	return &Fallback{
		baseURL:   base,
		path:      s.path,
		client:    client,
		userAgent: s.userAgent,
		logger:    s.logger,
	}, nil
}

// Upload posts file as multipart field "file", calling onProgress as the
// request body is consumed. This is the last attempt for a submission.
func (f *Fallback) Upload(ctx context.Context, file *media.File, onProgress ProgressFunc) (*Prediction, error) {
	if f == nil {
		return nil, networkError(fmt.Errorf("fallback transport is nil"))
	}
	body, err := newMultipartBody(file)
	if err != nil {
		return nil, networkError(err)
	}
	target := endpoint(f.baseURL, f.path)
	// A ReaderFunc body is streamed as-is; any other body type would be
	// buffered by retryablehttp before the first byte is sent.
	open := retryablehttp.ReaderFunc(func() (io.Reader, error) {
		r, err := body.Open()
		if err != nil {
			return nil, err
		}
		return newProgressReader(r, body.Len(), onProgress), nil
	})
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, target, open)
	if err != nil {
		return nil, networkError(fmt.Errorf("create request: %w", err))
	}
	req.ContentLength = body.Len()
	req.Header.Set("Content-Type", body.contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent)

	f.logger.DebugContext(ctx, "fallback upload", "url", target, "file", file.Name, "bytes", body.Len())
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.WarnContext(ctx, "fallback upload failed", "url", target, "err", err)
		return nil, networkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := readBody(resp.Body)
	if err != nil {
		return nil, networkError(fmt.Errorf("read response: %w", err))
	}
	return decodePredictionLenient(resp.StatusCode, data)
}
