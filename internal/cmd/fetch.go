package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vidgrab/vidgrab/internal/config"
	"github.com/vidgrab/vidgrab/internal/observability"
	"github.com/vidgrab/vidgrab/pkg/fetch"
	"github.com/vidgrab/vidgrab/pkg/fetch/ytdlp"
	"github.com/vidgrab/vidgrab/pkg/proxy"
	"github.com/vidgrab/vidgrab/pkg/urlcheck"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download a single video to a local directory",
	Long: `Download one video without running the HTTP service.

Example:
  vidgrab fetch https://youtu.be/abc123
  vidgrab fetch https://youtu.be/abc123 --quality 720p --output ./videos
  vidgrab fetch https://youtu.be/abc123 --audio`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

var (
	fetchQuality string
	fetchFormat  string
	fetchAudio   bool
	fetchOutput  string
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchQuality, "quality", "best", "Quality selector (best|worst|<N>p)")
	fetchCmd.Flags().StringVar(&fetchFormat, "format", "", "Container format (e.g. mp4)")
	fetchCmd.Flags().BoolVar(&fetchAudio, "audio", false, "Extract audio only")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", ".", "Output directory")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	url := args[0]

	cfg, err := config.Load(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	checker, err := urlcheck.New(nil)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URL allow-list", err)
	}
	if err := checker.Validate(url); err != nil {
		observability.CLILogger.Error("Invalid URL", zap.String("url", url), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid URL", err)
	}

	if err := os.MkdirAll(fetchOutput, 0o755); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create output directory", err)
	}

	pool := proxy.New(proxy.Config{
		Endpoint:  cfg.Proxy.Endpoint,
		Password:  cfg.Proxy.Password,
		Usernames: proxy.Rotations(cfg.Proxy.Username, cfg.Proxy.Count),
	}, time.Now().UnixNano())

	fetcher := ytdlp.New(ytdlp.Config{
		Binary:  cfg.Fetch.Binary,
		Retries: cfg.Fetch.Retries,
		Timeout: cfg.Fetch.Timeout,
	}, pool)

	observability.CLILogger.Info("Starting download",
		zap.String("url", url),
		zap.String("quality", fetchQuality),
		zap.Bool("audio_only", fetchAudio))

	result, err := fetcher.Fetch(ctx, fetch.Request{
		URL:        url,
		Quality:    fetchQuality,
		Format:     fetchFormat,
		AudioOnly:  fetchAudio,
		OutputDir:  fetchOutput,
		DownloadID: uuid.New().String(),
	})
	if err != nil {
		observability.CLILogger.Error("Download failed", zap.String("url", url), zap.Error(err))
		switch {
		case fetch.IsInvalidURL(err), fetch.IsUnsupportedContent(err):
			return exitError(foundry.ExitInvalidArgument, "Download failed", err)
		case fetch.IsCancelled(err):
			return exitError(foundry.ExitSignalInt, "Download cancelled", err)
		default:
			return exitError(foundry.ExitExternalServiceUnavailable, "Download failed", err)
		}
	}

	observability.CLILogger.Info("Download complete",
		zap.String("title", result.Info.Title),
		zap.String("path", result.Path))
	fmt.Fprintln(cmd.OutOrStdout(), result.Path)
	return nil
}
