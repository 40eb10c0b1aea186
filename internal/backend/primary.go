package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/tunelab/genrescope/internal/media"
)

// Uploader submits a file for classification. A nil error always comes with
// a non-nil Prediction; a non-nil error is an *Error.
type Uploader interface {
	Upload(ctx context.Context, file *media.File, onProgress ProgressFunc) (*Prediction, error)
}

var (
	_ Uploader = (*Primary)(nil)
	_ Uploader = (*Fallback)(nil)
)

// Primary is the plain request/response transport. It cannot observe
// intermediate progress, so onProgress is never called.
type Primary struct {
	baseURL   *url.URL
	path      string
	client    *retryablehttp.Client
	userAgent string
	logger    *slog.Logger
}

// NewPrimary builds the primary transport for the backend at baseURL.
func NewPrimary(baseURL string, opts ...Option) (*Primary, error) {
	base, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	s := newSettings(defaultUploadTimeout, opts)
	return &Primary{
		baseURL:   base,
		path:      s.path,
		client:    newRequestClient(s),
		userAgent: s.userAgent,
		logger:    s.logger,
	}, nil
}

// Upload posts file as multipart field "file". Any body that is not JSON is
// reported as KindParse, whatever the status, since the server was reached.
func (p *Primary) Upload(ctx context.Context, file *media.File, _ ProgressFunc) (*Prediction, error) {
	if p == nil {
		return nil, networkError(fmt.Errorf("primary transport is nil"))
	}
	body, err := newMultipartBody(file)
	if err != nil {
		return nil, networkError(err)
	}
	target := endpoint(p.baseURL, p.path)
	open := retryablehttp.ReaderFunc(func() (io.Reader, error) { return body.Open() })
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, target, open)
	if err != nil {
		return nil, networkError(fmt.Errorf("create request: %w", err))
	}
	// retryablehttp cannot size a ReaderFunc body, so set it explicitly.
	req.ContentLength = body.Len()
	req.Header.Set("Content-Type", body.contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.userAgent)

	p.logger.DebugContext(ctx, "primary upload", "url", target, "file", file.Name, "bytes", body.Len())
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := readBody(resp.Body)
	if err != nil {
		return nil, networkError(fmt.Errorf("read response: %w", err))
	}
	return decodePrediction(resp.StatusCode, data)
}
