package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Profile is one enumerated backend target.
type Profile struct {
	Name         string
	BaseURL      string
	Fallback     bool
	FallbackPath string
}

// Config is the resolved client configuration.
type Config struct {
	ProfileName   string
	Profiles      map[string]Profile
	BaseURL       string // overrides the selected profile's URL when set
	ProbeTimeout  time.Duration
	UploadTimeout time.Duration
	LogLevel      string
	LogFile       string
	StubAddr      string
}

// Overrides carry command-line values, which win over the environment and
// the config file.
type Overrides struct {
	Profile string
	BaseURL string
}

const (
	defaultConfigPath    = "~/.config/genrescope/config.toml"
	defaultLogFile       = "~/.local/state/genrescope/genrescope.log"
	defaultProfile       = "hosted"
	defaultFallbackPath  = "/predict"
	defaultProbeTimeout  = 10 * time.Second
	defaultUploadTimeout = 5 * time.Minute
	defaultLogLevel      = "info"
	defaultStubAddr      = "127.0.0.1:5000"

	EnvBackendURL = "GENRESCOPE_BACKEND_URL"
	EnvProfile    = "GENRESCOPE_PROFILE"
	EnvLogLevel   = "GENRESCOPE_LOG_LEVEL"
)

func builtinProfiles() map[string]Profile {
	return map[string]Profile{
		"hosted": {
			Name:         "hosted",
			BaseURL:      "https://music-genre-classification-yiwe.onrender.com",
			Fallback:     true,
			FallbackPath: defaultFallbackPath,
		},
		"local": {
			Name:         "local",
			BaseURL:      "http://127.0.0.1:5000",
			Fallback:     true,
			FallbackPath: defaultFallbackPath,
		},
	}
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		ProfileName:   defaultProfile,
		Profiles:      builtinProfiles(),
		ProbeTimeout:  defaultProbeTimeout,
		UploadTimeout: defaultUploadTimeout,
		LogLevel:      defaultLogLevel,
		LogFile:       mustExpand(defaultLogFile),
		StubAddr:      defaultStubAddr,
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return defaultConfigPath
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is fine.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

type rawProfile struct {
	BaseURL      string `toml:"base_url"`
	Fallback     *bool  `toml:"fallback"`
	FallbackPath string `toml:"fallback_path"`
}

type rawConfig struct {
	Profile       string                `toml:"profile"`
	BaseURL       string                `toml:"base_url"`
	ProbeTimeout  string                `toml:"probe_timeout"`
	UploadTimeout string                `toml:"upload_timeout"`
	LogLevel      string                `toml:"log_level"`
	LogFile       string                `toml:"log_file"`
	StubAddr      string                `toml:"stub_addr"`
	Profiles      map[string]rawProfile `toml:"profiles"`
}

// Load reads the config file at path (the default location when empty), then
// applies the environment and finally o. A missing file yields defaults.
func Load(path string, o Overrides) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	raw, err := readRaw(resolved)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.merge(raw); err != nil {
		return Config{}, err
	}

	if v := strings.TrimSpace(os.Getenv(EnvProfile)); v != "" {
		cfg.ProfileName = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(o.Profile); v != "" {
		cfg.ProfileName = v
	}
	if v := strings.TrimSpace(o.BaseURL); v != "" {
		cfg.BaseURL = v
	}

	cfg.ProfileName = strings.ToLower(cfg.ProfileName)
	if _, ok := cfg.Profiles[cfg.ProfileName]; !ok {
		return Config{}, fmt.Errorf("unknown profile %q (available: %s)", cfg.ProfileName, strings.Join(cfg.ProfileNames(), ", "))
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readRaw(path string) (rawConfig, error) {
	var raw rawConfig
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return raw, nil
		}
		return raw, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return raw, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return raw, fmt.Errorf("parse config: %w", err)
	}
	return raw, nil
}

func (c *Config) merge(raw rawConfig) error {
	if v := strings.TrimSpace(raw.Profile); v != "" {
		c.ProfileName = v
	}
	c.BaseURL = strings.TrimSpace(raw.BaseURL)
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(raw.LogFile); v != "" {
		c.LogFile = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.StubAddr); v != "" {
		c.StubAddr = v
	}

	var err error
	if c.ProbeTimeout, err = parseDuration("probe_timeout", raw.ProbeTimeout, c.ProbeTimeout); err != nil {
		return err
	}
	if c.UploadTimeout, err = parseDuration("upload_timeout", raw.UploadTimeout, c.UploadTimeout); err != nil {
		return err
	}

	for name, rp := range raw.Profiles {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		p, ok := c.Profiles[key]
		if !ok {
			p = Profile{Name: key, Fallback: true, FallbackPath: defaultFallbackPath}
		}
		if v := strings.TrimSpace(rp.BaseURL); v != "" {
			p.BaseURL = v
		}
		if rp.Fallback != nil {
			p.Fallback = *rp.Fallback
		}
		if v := strings.TrimSpace(rp.FallbackPath); v != "" {
			p.FallbackPath = v
		}
		if p.BaseURL == "" {
			return fmt.Errorf("profile %q: base_url is required", key)
		}
		c.Profiles[key] = p
	}
	return nil
}

// Profile returns the selected profile with the base URL override applied.
func (c Config) Profile() Profile {
	p, ok := c.Lookup(c.ProfileName)
	if !ok {
		p = builtinProfiles()[defaultProfile]
		if c.BaseURL != "" {
			p.BaseURL = c.BaseURL
		}
	}
	return p
}

// Lookup returns the named profile. The base URL override only applies to
// the selected profile.
func (c Config) Lookup(name string) (Profile, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	p, ok := c.Profiles[key]
	if !ok {
		return Profile{}, false
	}
	if key == c.ProfileName && c.BaseURL != "" {
		p.BaseURL = c.BaseURL
	}
	if p.FallbackPath == "" {
		p.FallbackPath = defaultFallbackPath
	}
	return p, true
}

// ProfileNames lists the known profiles in alphabetical order.
func (c Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SlogLevel returns the configured log level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLevel maps debug, info, warn and error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q: %w", s, err)
	}
	return lvl, nil
}

func parseDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("parse %s: must be positive", field)
	}
	return d, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
