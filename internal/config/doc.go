// Package config loads genrescope's client configuration.
//
// # Resolution Order
//
// Values are layered, later sources winning:
//
//  1. Built-in defaults, including the "hosted" and "local" profiles
//  2. The TOML file (~/.config/genrescope/config.toml unless a path is given)
//  3. GENRESCOPE_PROFILE, GENRESCOPE_BACKEND_URL and GENRESCOPE_LOG_LEVEL,
//     which may themselves come from a .env file via LoadDotEnv
//  4. Overrides from command-line flags
//
// A missing config file is not an error.
//
// # TOML Format
//
//	profile = "local"
//	base_url = ""            # overrides the selected profile's URL
//	probe_timeout = "10s"
//	upload_timeout = "5m"
//	log_level = "info"
//	log_file = "~/.local/state/genrescope/genrescope.log"
//	stub_addr = "127.0.0.1:5000"
//
//	[profiles.staging]
//	base_url = "https://genres.staging.example.com"
//	fallback = false
//	fallback_path = "/predict_stream"
//
// Profile names are case-insensitive. A table named after a built-in profile
// adjusts that profile; any other name defines a new one and must set
// base_url.
package config
