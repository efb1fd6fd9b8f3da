package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vidgrab/vidgrab/internal/config"
	"github.com/vidgrab/vidgrab/internal/observability"
	"github.com/vidgrab/vidgrab/internal/server"
	"github.com/vidgrab/vidgrab/internal/server/handlers"
	"github.com/vidgrab/vidgrab/pkg/eventlog"
	"github.com/vidgrab/vidgrab/pkg/fetch/ytdlp"
	"github.com/vidgrab/vidgrab/pkg/jobstore"
	"github.com/vidgrab/vidgrab/pkg/proxy"
	"github.com/vidgrab/vidgrab/pkg/runner"
	"github.com/vidgrab/vidgrab/pkg/transcript"
	"github.com/vidgrab/vidgrab/pkg/uploader"
	"github.com/vidgrab/vidgrab/pkg/uploader/s3"
	"github.com/vidgrab/vidgrab/pkg/urlcheck"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP download service",
	Long: `Start the HTTP API: synchronous and asynchronous downloads, job
status polling, cancellation, transcript extraction and health probes.

Example:
  vidgrab serve
  vidgrab serve --port 9000
  VIDGRAB_WORKERS=8 vidgrab serve`,
	RunE: runServe,
}

var (
	serveHost    string
	servePort    int
	serveWorkers int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "Download worker count (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	overrides := serveOverrides(cmd)
	cfg, err := config.Load(ctx, overrides)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	logger, err := observability.NewServerLogger(cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to build logger", err)
	}
	defer func() { _ = logger.Sync() }()

	// Proxy pool for the fetch tool. Disabled when no credentials are set.
	pool := proxy.New(proxy.Config{
		Endpoint:  cfg.Proxy.Endpoint,
		Password:  cfg.Proxy.Password,
		Usernames: proxy.Rotations(cfg.Proxy.Username, cfg.Proxy.Count),
	}, time.Now().UnixNano())
	if pool.Enabled() {
		logger.Info("proxy pool enabled", zap.Int("identities", pool.Size()))
	} else {
		logger.Warn("proxy pool disabled, downloads go out directly")
	}

	fetcher := ytdlp.New(ytdlp.Config{
		Binary:  cfg.Fetch.Binary,
		Retries: cfg.Fetch.Retries,
		Timeout: cfg.Fetch.Timeout,
	}, pool)

	store := jobstore.NewStore(cfg.Store.MaxJobs)
	janitor := jobstore.NewJanitor(store, cfg.Store.Retention, cfg.Store.SweepInterval, logger)
	go janitor.Run(ctx)

	events, closeEvents, err := openEventLog(cfg.EventLog.Path)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open event log", err)
	}
	defer closeEvents()

	checker, err := urlcheck.New(nil)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URL allow-list", err)
	}

	run := runner.New(store, fetcher, runner.Config{
		Workers:     cfg.Runner.Workers,
		QueueDepth:  cfg.Runner.QueueDepth,
		RateLimit:   cfg.Runner.RateLimit,
		MaxDuration: cfg.Runner.MaxDuration,
		WorkDir:     cfg.Runner.WorkDir,
	}).
		WithEventLog(events).
		WithChecker(checker).
		WithLogger(logger)

	var up uploader.Uploader
	if cfg.Storage.Enabled {
		region := cfg.Storage.Region
		if region == "" {
			region = detectRegion(ctx, logger)
		}
		s3up, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.Storage.Bucket,
			Region:          region,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			ForcePathStyle:  cfg.Storage.ForcePathStyle,
		})
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to initialize S3 uploader", err)
		}
		up = s3up
		run = run.WithUploader(up)
		logger.Info("s3 upload enabled", zap.String("bucket", cfg.Storage.Bucket), zap.String("region", region))
	}

	run.Start(ctx)
	defer run.Stop()

	transcripts := transcript.New(fetcher, transcript.Config{
		MaxDuration: cfg.Transcript.MaxDuration,
		RateLimit:   cfg.Runner.RateLimit,
	}).WithChecker(checker).WithLogger(logger)

	registerHealthCheckers(store, cfg.Fetch.Binary, pool, up)

	api := handlers.NewAPI(store, run, transcripts, logger)
	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithAPI(api),
		server.WithLogger(logger),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "HTTP server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitError(foundry.ExitSignalInt, "Graceful shutdown incomplete", err)
	}
	return nil
}

// serveOverrides translates explicitly-set flags into runtime config
// overrides, which outrank environment and file values.
func serveOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	serverOverrides := map[string]any{}
	if cmd.Flags().Changed("host") {
		serverOverrides["host"] = serveHost
	}
	if cmd.Flags().Changed("port") {
		serverOverrides["port"] = servePort
	}
	if len(serverOverrides) > 0 {
		overrides["server"] = serverOverrides
	}
	if cmd.Flags().Changed("workers") {
		overrides["runner"] = map[string]any{"workers": serveWorkers}
	}
	return overrides
}

// detectRegion asks the EC2 instance metadata service for the local
// region. Best effort with a short timeout; off-cloud deployments fall
// through to the configured default.
func detectRegion(ctx context.Context, logger *zap.Logger) string {
	imdsCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out, err := imds.New(imds.Options{}).GetRegion(imdsCtx, &imds.GetRegionInput{})
	if err != nil {
		logger.Debug("instance metadata region lookup failed", zap.Error(err))
		return "us-east-1"
	}
	logger.Info("region detected from instance metadata", zap.String("region", out.Region))
	return out.Region
}

func openEventLog(path string) (eventlog.Writer, func(), error) {
	if path == "" {
		return eventlog.NopWriter{}, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	w := eventlog.NewJSONLWriter(f)
	return w, func() {
		_ = w.Close()
		_ = f.Close()
	}, nil
}

func registerHealthCheckers(store *jobstore.Store, binary string, pool *proxy.Pool, up uploader.Uploader) {
	handlers.InitHealthManager(versionInfo.Version)
	m := handlers.GetHealthManager()
	m.RegisterChecker("store", storeHealthChecker{store: store})
	m.RegisterChecker("ytdlp", binaryHealthChecker{binary: binary})
	m.RegisterChecker("proxy", proxyHealthChecker{pool: pool})
	m.RegisterChecker("storage", uploaderHealthChecker{uploader: up})
}

// storeHealthChecker verifies the job store responds.
type storeHealthChecker struct {
	store *jobstore.Store
}

func (c storeHealthChecker) CheckHealth(ctx context.Context) error {
	if c.store == nil {
		return errors.New("job store not initialized")
	}
	_ = c.store.Len()
	return nil
}

// binaryHealthChecker verifies the fetch tool is resolvable on PATH.
type binaryHealthChecker struct {
	binary string
}

func (c binaryHealthChecker) CheckHealth(ctx context.Context) error {
	name := c.binary
	if name == "" {
		name = "yt-dlp"
	}
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("fetch tool %s not found: %w", name, err)
	}
	return nil
}

// proxyHealthChecker reports whether the rotating proxy pool is active.
// Running without one is degraded, not broken; downloads go out directly.
type proxyHealthChecker struct {
	pool *proxy.Pool
}

func (c proxyHealthChecker) CheckHealth(ctx context.Context) error {
	if c.pool == nil || !c.pool.Enabled() {
		return fmt.Errorf("proxy pool not configured: %w", handlers.ErrDegraded)
	}
	return nil
}

// uploaderHealthChecker reports whether object storage is configured.
// Without it artifacts stay on local disk.
type uploaderHealthChecker struct {
	uploader uploader.Uploader
}

func (c uploaderHealthChecker) CheckHealth(ctx context.Context) error {
	if c.uploader == nil {
		return fmt.Errorf("object storage not configured: %w", handlers.ErrDegraded)
	}
	return nil
}
