// Package stubserver is a stand-in for the genre classification backend. It
// speaks the same HTTP API (an info document on GET /, multipart uploads on
// POST /predict and /predict_stream) but derives the genre from a hash of the
// payload instead of running a model.
package stubserver

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tunelab/genrescope/internal/media"
)

const (
	defaultBodyLimit = "300M"
	featureCount     = 55
)

// Genres are the labels the stub answers with.
var Genres = []string{"blues", "classical", "country", "disco", "hiphop", "jazz", "metal", "pop", "reggae", "rock"}

// Options configure a Server.
type Options struct {
	Logger *slog.Logger
	// Delay is added before every prediction is answered.
	Delay time.Duration
	// BodyLimit uses echo's size syntax, e.g. "300M".
	BodyLimit string
}

// Server is the stub backend.
type Server struct {
	echo   *echo.Echo
	logger *slog.Logger
	delay  time.Duration
}

type infoResponse struct {
	Message          string `json:"message"`
	ExpectedFeatures int    `json:"expected_features"`
	Use              string `json:"use"`
}

// Score is one ranked genre in a prediction.
type Score struct {
	Genre string  `json:"genre"`
	Prob  float64 `json:"prob"`
}

type predictResponse struct {
	Genre        string  `json:"genre"`
	Top3         []Score `json:"top3"`
	Source       string  `json:"source"`
	FeaturesUsed int     `json:"features_used"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds a Server with its routes registered.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	limit := opts.BodyLimit
	if strings.TrimSpace(limit) == "" {
		limit = defaultBodyLimit
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, logger: logger, delay: opts.Delay}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				logger.LogAttrs(context.Background(), slog.LevelWarn, "request failed", slog.Group("http", attrs...), slog.String("err", v.Error.Error()))
				return nil
			}
			logger.LogAttrs(context.Background(), slog.LevelDebug, "request", slog.Group("http", attrs...))
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit(limit))

	e.GET("/", s.handleInfo)
	e.POST("/predict", s.handlePredict)
	// Alias used by clients that upload with progress reporting.
	e.POST("/predict_stream", s.handlePredict)

	return s
}

// Handler exposes the server for httptest or a custom http.Server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("stub backend listening", "addr", addr)
		errc <- s.echo.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown stub backend: %w", err)
		}
		return nil
	}
}

func (s *Server) handleInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, infoResponse{
		Message:          "Music Genre Classification API running",
		ExpectedFeatures: featureCount,
		Use:              "POST /predict with form-data key 'file' (audio or video)",
	})
}

func (s *Server) handlePredict(c echo.Context) error {
	header, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "No file uploaded"})
	}

	name := strings.ToLower(filepath.Base(header.Filename))
	kind := media.KindOf(name)
	if kind == media.KindUnknown {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Unsupported file type: " + media.Ext(name)})
	}

	src, err := header.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	defer func() { _ = src.Close() }()

	hash := sha256.New()
	if _, err := io.Copy(hash, src); err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}

	top3 := Classify(hash.Sum(nil))
	s.logger.Debug("stub prediction", "file", name, "bytes", header.Size, "genre", top3[0].Genre)
	return c.JSON(http.StatusOK, predictResponse{
		Genre:        top3[0].Genre,
		Top3:         top3,
		Source:       string(kind),
		FeaturesUsed: featureCount,
	})
}

// Classify maps a payload digest onto three distinct genres ranked by a
// descending probability.
func Classify(digest []byte) []Score {
	if len(digest) < 8 {
		padded := make([]byte, 8)
		copy(padded, digest)
		digest = padded
	}
	seed := binary.BigEndian.Uint64(digest[:8])
	n := uint64(len(Genres))

	first := seed % n
	second := (first + 1 + (seed>>8)%(n-1)) % n
	third := second
	for step := uint64(1); third == first || third == second; step++ {
		third = (second + step + (seed>>16)%(n-2)) % n
	}

	p1 := 0.5 + float64(digest[3]%40)/100 // 0.50 to 0.89
	rest := 1 - p1
	p2 := rest * (0.5 + float64(digest[4]%40)/100)
	p3 := (rest - p2) * (0.5 + float64(digest[5]%40)/100)

	return []Score{
		{Genre: Genres[first], Prob: round3(p1)},
		{Genre: Genres[second], Prob: round3(p2)},
		{Genre: Genres[third], Prob: round3(p3)},
	}
}

func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}
