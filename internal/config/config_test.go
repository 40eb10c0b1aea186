package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvProfile, "")
	t.Setenv(EnvBackendURL, "")
	t.Setenv(EnvLogLevel, "")
}

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearEnv(t)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"), Overrides{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ProfileName != defaultProfile {
		t.Fatalf("ProfileName = %q, want %q", cfg.ProfileName, defaultProfile)
	}
	p := cfg.Profile()
	if p.BaseURL != "https://music-genre-classification-yiwe.onrender.com" || !p.Fallback {
		t.Fatalf("Profile() = %#v, want hosted with fallback", p)
	}
	if p.FallbackPath != "/predict" {
		t.Fatalf("FallbackPath = %q, want /predict", p.FallbackPath)
	}
	if cfg.ProbeTimeout != 10*time.Second || cfg.UploadTimeout != 5*time.Minute {
		t.Fatalf("timeouts = %v/%v, want 10s/5m", cfg.ProbeTimeout, cfg.UploadTimeout)
	}
	if !strings.HasPrefix(cfg.LogFile, home) {
		t.Fatalf("LogFile = %q, want it under HOME %q", cfg.LogFile, home)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Fatalf("SlogLevel = %v, want info", cfg.SlogLevel())
	}
}

func TestLoad_ParsesProfilesAndTimeouts(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	path := writeConfig(t, `
profile = "Staging"
probe_timeout = "3s"
upload_timeout = "90s"
log_level = "debug"

[profiles.staging]
base_url = "https://genres.staging.example.com"
fallback = false
fallback_path = "/predict_stream"

[profiles.local]
base_url = "http://127.0.0.1:8080"
`)
	cfg, err := Load(path, Overrides{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	p := cfg.Profile()
	if p.Name != "staging" || p.BaseURL != "https://genres.staging.example.com" || p.Fallback {
		t.Fatalf("Profile() = %#v", p)
	}
	if p.FallbackPath != "/predict_stream" {
		t.Fatalf("FallbackPath = %q", p.FallbackPath)
	}
	if local := cfg.Profiles["local"]; local.BaseURL != "http://127.0.0.1:8080" || !local.Fallback {
		t.Fatalf("local profile = %#v, want overridden URL and fallback kept", local)
	}
	if cfg.ProbeTimeout != 3*time.Second || cfg.UploadTimeout != 90*time.Second {
		t.Fatalf("timeouts = %v/%v", cfg.ProbeTimeout, cfg.UploadTimeout)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("SlogLevel = %v, want debug", cfg.SlogLevel())
	}
	if got := strings.Join(cfg.ProfileNames(), ","); got != "hosted,local,staging" {
		t.Fatalf("ProfileNames = %q", got)
	}
}

func TestLoad_EnvAndOverridesWin(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)
	path := writeConfig(t, `profile = "hosted"`)

	t.Setenv(EnvProfile, "local")
	cfg, err := Load(path, Overrides{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Profile().Name != "local" {
		t.Fatalf("env profile not applied: %#v", cfg.Profile())
	}

	t.Setenv(EnvBackendURL, "http://10.0.0.5:5000")
	cfg, err = Load(path, Overrides{Profile: "hosted"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	p := cfg.Profile()
	if p.Name != "hosted" || p.BaseURL != "http://10.0.0.5:5000" {
		t.Fatalf("Profile() = %#v, want hosted at env URL", p)
	}

	cfg, err = Load(path, Overrides{BaseURL: "http://flag.example:1"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Profile().BaseURL != "http://flag.example:1" {
		t.Fatalf("flag URL not applied: %#v", cfg.Profile())
	}
}

func TestLookup_OverrideOnlyAppliesToSelectedProfile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	cfg, err := Load(writeConfig(t, `profile = "local"`), Overrides{BaseURL: "http://10.1.1.1:9000"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	local, ok := cfg.Lookup("LOCAL")
	if !ok || local.BaseURL != "http://10.1.1.1:9000" {
		t.Fatalf("Lookup(local) = %#v, %v", local, ok)
	}
	hosted, ok := cfg.Lookup("hosted")
	if !ok || hosted.BaseURL != "https://music-genre-classification-yiwe.onrender.com" {
		t.Fatalf("Lookup(hosted) = %#v, %v", hosted, ok)
	}
	if _, ok := cfg.Lookup("missing"); ok {
		t.Fatalf("Lookup(missing) succeeded")
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	cases := map[string]string{
		"unknown profile":  `profile = "nope"`,
		"bad duration":     `probe_timeout = "soon"`,
		"negative timeout": `upload_timeout = "-1s"`,
		"new profile no url": `
[profiles.empty]
fallback = false
`,
		"bad level": `log_level = "loud"`,
		"bad toml":  `profile = `,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body), Overrides{}); err == nil {
				t.Fatalf("Load succeeded, want error")
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing .env returned error: %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("GENRESCOPE_LOG_LEVEL=warn\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// godotenv does not override variables that are already set, even empty.
	if err := os.Unsetenv(EnvLogLevel); err != nil {
		t.Fatalf("Unsetenv: %v", err)
	}
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv(EnvLogLevel); got != "warn" {
		t.Fatalf("%s = %q, want warn", EnvLogLevel, got)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
