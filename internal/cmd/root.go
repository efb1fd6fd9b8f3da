// Package cmd implements the vidgrab command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vidgrab/vidgrab/internal/observability"
	"github.com/vidgrab/vidgrab/internal/server/handlers"
)

// versionInfo holds build metadata injected at link time through
// SetVersionInfo.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command and the
// /version endpoint. Called from main before Execute.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(version, commit, buildDate)
}

var (
	rootLogLevel   string
	rootStructured bool
)

var rootCmd = &cobra.Command{
	Use:   "vidgrab",
	Short: "Video download and transcript service",
	Long: `vidgrab downloads videos through yt-dlp with rotating proxy support,
optionally uploads artifacts to S3 and extracts plain-text transcripts.

Run it as an HTTP service with 'vidgrab serve' or perform one-shot
downloads with 'vidgrab fetch'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		observability.InitCLILogger(rootLogLevel, rootStructured)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&rootStructured, "log-json", false, "Emit logs as JSON")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitCodeFor(err)
	}
	return 0
}

// setDefaults seeds the global viper instance used by flag binding.
// Nested configuration lives in internal/config; these cover the flat
// keys commands read directly.
func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("workers", 4)
}
