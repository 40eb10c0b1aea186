package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/tunelab/genrescope/internal/backend"
	"github.com/tunelab/genrescope/internal/config"
	"github.com/tunelab/genrescope/internal/media"
	"github.com/tunelab/genrescope/internal/prefs"
	"github.com/tunelab/genrescope/internal/state"
	"github.com/tunelab/genrescope/internal/stubserver"
	"github.com/tunelab/genrescope/internal/submit"
	"github.com/tunelab/genrescope/internal/ui"
)

// Options configure the genrescope application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/genrescope/prefs.toml
	Profile    string
	BaseURL    string

	// JSON makes Predict print the raw backend response.
	JSON bool
	// Stderr receives headless logs. Nil uses os.Stderr.
	Stderr io.Writer
}

// Run boots the TUI until the context is cancelled or the user quits.
func Run(ctx context.Context, opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	userPrefs, _ := prefs.Load(opts.PrefsPath)
	if opts.Profile == "" && os.Getenv(config.EnvProfile) == "" {
		if _, ok := cfg.Profiles[userPrefs.Profile]; ok {
			cfg.ProfileName = userPrefs.Profile
		}
	}

	logger, closeLog, err := newFileLogger(cfg)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closeLog()

	logger.Info("genrescope starting", "profile", cfg.ProfileName, "log_file", cfg.LogFile)

	uiOpts := ui.Options{
		Context: ctx,
		Connect: func(name string) (*submit.Controller, error) {
			p, ok := cfg.Lookup(name)
			if !ok {
				return nil, fmt.Errorf("unknown profile %q", name)
			}
			return newController(cfg, p, logger)
		},
		Profiles:  cfg.ProfileNames(),
		Profile:   cfg.ProfileName,
		LogPath:   cfg.LogFile,
		PrefsPath: opts.PrefsPath,
		ThemeName: userPrefs.Theme,
		LastDir:   userPrefs.LastDir,
		Logger:    logger,
	}
	return ui.Run(uiOpts)
}

// Predict classifies the file at path without the TUI and writes the result
// to out.
func Predict(ctx context.Context, opts Options, path string, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := newStreamLogger(cfg, opts.Stderr)

	file, err := media.Open(path)
	if err != nil {
		var unsupported *media.UnsupportedError
		if errors.As(err, &unsupported) {
			return errors.New(unsupported.Message())
		}
		return fmt.Errorf("open media: %w", err)
	}

	ctrl, err := newController(cfg, cfg.Profile(), logger)
	if err != nil {
		return err
	}

	if err := ctrl.Submit(ctx, file); err != nil {
		return err
	}
	st := ctrl.Snapshot()
	if st.Phase != state.PhaseSucceeded {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.New(st.ErrorMessage)
	}
	if opts.JSON {
		return writeJSON(out, st.Result)
	}
	return writePrediction(out, file, st.Result)
}

// Ping runs the connectivity test against the selected profile.
func Ping(ctx context.Context, opts Options, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := newStreamLogger(cfg, opts.Stderr)
	profile := cfg.Profile()

	ctrl, err := newController(cfg, profile, logger)
	if err != nil {
		return err
	}

	diag := ctrl.TestConnection(ctx)
	if !diag.OK {
		return errors.New(diag.Message)
	}

	_, _ = fmt.Fprintf(out, "%s\n", diag.Message)
	_, _ = fmt.Fprintf(out, "profile:  %s\n", profile.Name)
	_, _ = fmt.Fprintf(out, "backend:  %s\n", profile.BaseURL)
	_, _ = fmt.Fprintf(out, "status:   %d\n", diag.Health.Status)
	_, _ = fmt.Fprintf(out, "latency:  %s\n", diag.Health.Latency.Round(time.Millisecond))
	if diag.Health.Message != "" {
		_, _ = fmt.Fprintf(out, "message:  %s\n", diag.Health.Message)
	}
	if diag.Health.ExpectedFeatures > 0 {
		_, _ = fmt.Fprintf(out, "features: %d\n", diag.Health.ExpectedFeatures)
	}
	return nil
}

// Stub serves the stand-in backend on addr (config stub_addr when empty)
// until ctx is cancelled.
func Stub(ctx context.Context, opts Options, addr string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := newStreamLogger(cfg, opts.Stderr)
	if strings.TrimSpace(addr) == "" {
		addr = cfg.StubAddr
	}
	return stubserver.New(stubserver.Options{Logger: logger}).ListenAndServe(ctx, addr)
}

func writePrediction(out io.Writer, file *media.File, pred *backend.Prediction) error {
	if _, err := fmt.Fprintf(out, "genre:    %s\n", pred.DisplayGenre()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "file:     %s (%s, %s)\n", file.Name, file.Kind(), file.HumanSize())
	if pred.Source != "" {
		_, _ = fmt.Fprintf(out, "source:   %s\n", pred.Source)
	}
	if pred.FeaturesUsed != "" {
		_, _ = fmt.Fprintf(out, "features: %s\n", pred.FeaturesUsed)
	}
	for i, score := range pred.Top3 {
		_, _ = fmt.Fprintf(out, "  %d. %-10s %5.1f%%\n", i+1, strings.ToLower(score.Genre), score.Prob*100)
	}
	return nil
}

func writeJSON(out io.Writer, pred *backend.Prediction) error {
	if len(pred.Raw) > 0 {
		_, err := fmt.Fprintf(out, "%s\n", pred.Raw)
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(pred)
}

func loadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath, config.Overrides{Profile: opts.Profile, BaseURL: opts.BaseURL})
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
