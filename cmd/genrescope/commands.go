package main

import (
	"github.com/spf13/cobra"

	"github.com/tunelab/genrescope/internal/app"
	"github.com/tunelab/genrescope/internal/config"
)

type rootFlags struct {
	configPath string
	prefsPath  string
	profile    string
	backendURL string
	envFile    string
}

func (f *rootFlags) options() app.Options {
	return app.Options{
		ConfigPath: f.configPath,
		PrefsPath:  f.prefsPath,
		Profile:    f.profile,
		BaseURL:    f.backendURL,
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "genrescope",
		Short: "Classify the music genre of an audio or video file",
		Long: `genrescope uploads a media file to a genre classification backend and
shows the predicted genre.

Run without a subcommand to open the terminal UI. Use "predict" for one-off
classification from scripts.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(flags.envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd.Context(), flags.options())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.config/genrescope/config.toml)")
	pf.StringVar(&flags.prefsPath, "prefs", "", "preferences file (default ~/.config/genrescope/prefs.toml)")
	pf.StringVarP(&flags.profile, "profile", "p", "", "backend profile (hosted, local, or one from the config file)")
	pf.StringVar(&flags.backendURL, "backend", "", "backend base URL, overrides the profile's")
	pf.StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(
		newPredictCmd(flags),
		newPingCmd(flags),
		newStubCmd(flags),
	)
	return cmd
}

func newPredictCmd(flags *rootFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "predict FILE",
		Short: "Classify one file and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.options()
			opts.JSON = asJSON
			opts.Stderr = cmd.ErrOrStderr()
			return app.Predict(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the backend's JSON response")
	return cmd
}

func newPingCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test the connection to the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.options()
			opts.Stderr = cmd.ErrOrStderr()
			return app.Ping(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

func newStubCmd(flags *rootFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Serve a stand-in classification backend for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.options()
			opts.Stderr = cmd.ErrOrStderr()
			return app.Stub(cmd.Context(), opts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config stub_addr, 127.0.0.1:5000)")
	return cmd
}
