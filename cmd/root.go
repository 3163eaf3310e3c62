package cmd

import (
	"github.com/spf13/cobra"

	"github.com/audiosvc/audiod/cmd/inspect"
	"github.com/audiosvc/audiod/cmd/serve"
	"github.com/audiosvc/audiod/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "audiod",
		Short:   "Audio service control and data plane",
		Version: conf.Version,
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		serve.Command(settings),
		inspect.Command(settings),
	)

	return rootCmd
}

// setupFlags wires the persistent flags over the loaded settings so that
// command-line arguments take precedence.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&settings.Main.Log.Level, "log-level",
		settings.Main.Log.Level, "Log level (trace, debug, info, warn, error)")
	flags.StringVar(&settings.Main.Log.Path, "log-file",
		settings.Main.Log.Path, "Log file path; empty logs to stdout")
	flags.StringVar(&settings.Main.APIListen, "api-listen",
		settings.Main.APIListen, "Control API listen address")
	flags.StringVar(&settings.Main.MetricsListen, "metrics-listen",
		settings.Main.MetricsListen, "Metrics listen address; empty disables")
	flags.BoolVar(&settings.Debug.SimulateDeviceConnections, "simulate-devices",
		settings.Debug.SimulateDeviceConnections,
		"Accept external device connections without hardware")
}
