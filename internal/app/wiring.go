package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tunelab/genrescope/internal/backend"
	"github.com/tunelab/genrescope/internal/config"
	"github.com/tunelab/genrescope/internal/submit"
)

// newController builds the transports for one profile and the controller
// that drives them. Each controller owns a fresh state store.
func newController(cfg config.Config, p config.Profile, logger *slog.Logger) (*submit.Controller, error) {
	logger = logger.With("profile", p.Name)

	prober, err := backend.NewProber(p.BaseURL,
		backend.WithTimeout(cfg.ProbeTimeout),
		backend.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("init prober: %w", err)
	}

	primary, err := backend.NewPrimary(p.BaseURL,
		backend.WithTimeout(cfg.UploadTimeout),
		backend.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("init primary transport: %w", err)
	}

	deps := submit.Deps{
		Prober:  prober,
		Primary: primary,
		Logger:  logger,
	}
	if p.Fallback {
		fallback, err := backend.NewFallback(p.BaseURL,
			backend.WithTimeout(cfg.UploadTimeout),
			backend.WithPath(p.FallbackPath),
			backend.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("init fallback transport: %w", err)
		}
		deps.Fallback = fallback
	}

	return submit.New(deps, submit.Options{Fallback: p.Fallback}), nil
}

// newFileLogger opens the log file the TUI writes to. The terminal belongs to
// the UI while it runs.
func newFileLogger(cfg config.Config) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	return logger, func() { _ = f.Close() }, nil
}

func newStreamLogger(cfg config.Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}
