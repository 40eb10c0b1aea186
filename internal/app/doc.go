// Package app is the composition root for genrescope.
//
// It loads configuration, builds the logger and the per-profile transports,
// and hands a submit.Controller to whichever front end was asked for:
//
//	Run()      TUI; logs go to the configured log file
//	Predict()  one headless submission; logs go to stderr
//	Ping()     connectivity test against the selected profile
//	Stub()     serves the stand-in backend from internal/stubserver
//
// # Wiring
//
//	config.Load() ──> Profile ──> backend.NewProber()   probe_timeout
//	                          ├─> backend.NewPrimary()  upload_timeout
//	                          └─> backend.NewFallback() upload_timeout, fallback_path
//	                                    │
//	                                    v
//	                             submit.New() ──> state.Store ──> ui / stdout
//
// The TUI switches profiles at runtime through Options.Connect, which builds
// a fresh controller (and store) for the chosen profile. The last profile used
// in the TUI is remembered in prefs unless --profile or GENRESCOPE_PROFILE
// picks one explicitly. Headless commands ignore the remembered profile.
package app
