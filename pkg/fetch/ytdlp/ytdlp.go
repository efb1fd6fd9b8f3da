// Package ytdlp implements the fetch.Fetcher interface on top of the yt-dlp
// binary.
//
// Each operation spawns a short-lived process with a proxy credential drawn
// from the rotating pool. The adapter never interprets media; it only builds
// arguments, captures output, and classifies failures.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/vidgrab/vidgrab/pkg/fetch"
	"github.com/vidgrab/vidgrab/pkg/proxy"
)

// Config configures the yt-dlp adapter.
type Config struct {
	// Binary is the yt-dlp executable path. Empty assumes it is on PATH.
	Binary string

	// Retries is the per-call retry count passed to the tool. Default: 3.
	Retries int

	// Timeout bounds a single tool invocation. Default: 10m.
	Timeout time.Duration
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Binary:  "yt-dlp",
		Retries: 3,
		Timeout: 10 * time.Minute,
	}
}

// Downloader runs the yt-dlp binary. Safe for concurrent use: every call
// spawns its own process.
type Downloader struct {
	cfg  Config
	pool *proxy.Pool
}

// Compile-time check that Downloader implements fetch.Fetcher.
var _ fetch.Fetcher = (*Downloader)(nil)

// New creates a yt-dlp adapter. pool may be nil or disabled, in which case
// calls go out without a proxy.
func New(cfg Config, pool *proxy.Pool) *Downloader {
	if cfg.Binary == "" {
		cfg.Binary = DefaultConfig().Binary
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultConfig().Retries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Downloader{cfg: cfg, pool: pool}
}

// metadata is the subset of yt-dlp --dump-json output we keep.
type metadata struct {
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Uploader  string  `json:"uploader"`
	ViewCount int64   `json:"view_count"`
}

// Probe returns metadata for a video without downloading it.
func (d *Downloader) Probe(ctx context.Context, url string) (*fetch.VideoInfo, error) {
	args := d.baseArgs()
	args = append(args, "--dump-json", "--no-download", url)

	out, err := d.run(ctx, args)
	if err != nil {
		return nil, &fetch.FetchError{Op: "Probe", URL: url, Err: err}
	}

	var meta metadata
	if err := json.Unmarshal(firstLine(out), &meta); err != nil {
		return nil, &fetch.FetchError{Op: "Probe", URL: url, Err: fmt.Errorf("parse metadata: %w", err)}
	}

	return infoFromMetadata(meta, url), nil
}

// Fetch downloads the video described by req and returns the artifact path.
func (d *Downloader) Fetch(ctx context.Context, req fetch.Request) (*fetch.Result, error) {
	if req.OutputDir == "" || req.DownloadID == "" {
		return nil, &fetch.FetchError{Op: "Fetch", URL: req.URL, Err: errors.New("output dir and download id are required")}
	}

	info, err := d.Probe(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	template := filepath.Join(req.OutputDir, req.DownloadID+".%(ext)s")
	args := d.baseArgs()
	args = append(args, "-o", template)
	args = append(args, formatArgs(req.Quality, req.AudioOnly)...)
	if req.Format != "" && !req.AudioOnly {
		args = append(args, "--merge-output-format", req.Format)
	}
	args = append(args, req.URL)

	if _, err := d.run(ctx, args); err != nil {
		return nil, &fetch.FetchError{Op: "Fetch", URL: req.URL, Err: err}
	}

	matches, err := filepath.Glob(filepath.Join(req.OutputDir, req.DownloadID+".*"))
	if err != nil || len(matches) == 0 {
		return nil, &fetch.FetchError{Op: "Fetch", URL: req.URL, Err: errors.New("no file was downloaded")}
	}

	return &fetch.Result{Info: *info, Path: matches[0]}, nil
}

// Subtitles fetches the auto or manual subtitle track as WebVTT text.
func (d *Downloader) Subtitles(ctx context.Context, url, language string) (string, error) {
	if language == "" {
		language = "en"
	}

	dir, err := os.MkdirTemp("", "vidgrab-subs-*")
	if err != nil {
		return "", &fetch.FetchError{Op: "Subtitles", URL: url, Err: err}
	}
	defer func() { _ = os.RemoveAll(dir) }()

	args := d.baseArgs()
	args = append(args,
		"--skip-download",
		"--write-subs", "--write-auto-subs",
		"--sub-langs", language,
		"--sub-format", "vtt",
		"-o", filepath.Join(dir, "subs"),
		url,
	)

	if _, err := d.run(ctx, args); err != nil {
		return "", &fetch.FetchError{Op: "Subtitles", URL: url, Err: err}
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*.vtt"))
	if len(matches) == 0 {
		return "", &fetch.FetchError{Op: "Subtitles", URL: url, Err: fmt.Errorf("no %s subtitles available: %w", language, fetch.ErrUnsupportedContent)}
	}

	b, err := os.ReadFile(matches[0])
	if err != nil {
		return "", &fetch.FetchError{Op: "Subtitles", URL: url, Err: err}
	}
	return string(b), nil
}

// baseArgs are shared by every invocation: quiet output, bounded retries,
// polite sleep between retries, and the rotating proxy when enabled.
func (d *Downloader) baseArgs() []string {
	args := []string{
		"--no-warnings",
		"--retries", fmt.Sprintf("%d", d.cfg.Retries),
		"--sleep-interval", "1",
		"--max-sleep-interval", "5",
	}
	if d.pool.Enabled() {
		args = append(args, "--proxy", d.pool.URL())
	}
	return args
}

// run executes the binary and returns stdout. Failures are classified into
// the fetch sentinel errors using stderr content.
func (d *Downloader) run(ctx context.Context, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.cfg.Binary, args...)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("yt-dlp: %v: %w", ctx.Err(), fetch.ErrCancelled)
		}
		return nil, classify(stderr.String())
	}
	return out.Bytes(), nil
}

// classify maps yt-dlp stderr output to a stable sentinel error.
//
// The tool has no machine-readable error channel, so this relies on the
// stable message fragments it has emitted for years.
func classify(stderr string) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "is not a valid url"),
		strings.Contains(lower, "unsupported url"):
		return fmt.Errorf("yt-dlp: %s: %w", lastLine(msg), fetch.ErrInvalidURL)
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "this live event"),
		strings.Contains(lower, "members-only"),
		strings.Contains(lower, "age-restricted"):
		return fmt.Errorf("yt-dlp: %s: %w", lastLine(msg), fetch.ErrUnsupportedContent)
	case strings.Contains(lower, "http error 403"),
		strings.Contains(lower, "http error 429"),
		strings.Contains(lower, "sign in to confirm"),
		strings.Contains(lower, "too many requests"):
		return fmt.Errorf("yt-dlp: %s: %w", lastLine(msg), fetch.ErrUpstreamRejected)
	case strings.Contains(lower, "unable to download"),
		strings.Contains(lower, "timed out"),
		strings.Contains(lower, "connection re"),
		strings.Contains(lower, "network"),
		strings.Contains(lower, "proxy"):
		return fmt.Errorf("yt-dlp: %s: %w", lastLine(msg), fetch.ErrNetworkFailure)
	default:
		if msg == "" {
			msg = "yt-dlp exited with an error"
		}
		return fmt.Errorf("yt-dlp: %s: %w", lastLine(msg), fetch.ErrUpstreamRejected)
	}
}

// formatArgs builds the format selection flags.
//
// Quality mapping matches the site defaults users expect: "best" caps at
// 1080p, "worst" picks the smallest stream, and "<N>p" caps height at N.
func formatArgs(quality string, audioOnly bool) []string {
	if audioOnly {
		return []string{
			"-f", "bestaudio/best",
			"--extract-audio",
			"--audio-format", "mp3",
			"--audio-quality", "192K",
		}
	}

	switch {
	case quality == "" || quality == "best":
		return []string{"-f", "best[height<=1080]"}
	case quality == "worst":
		return []string{"-f", "worst"}
	case strings.HasSuffix(quality, "p"):
		return []string{"-f", fmt.Sprintf("best[height<=%s]", strings.TrimSuffix(quality, "p"))}
	default:
		return []string{"-f", "best[height<=1080]"}
	}
}

func infoFromMetadata(meta metadata, url string) *fetch.VideoInfo {
	seconds := int64(meta.Duration)
	return &fetch.VideoInfo{
		Title:           meta.Title,
		Duration:        time.Duration(seconds) * time.Second,
		DurationSeconds: seconds,
		Uploader:        meta.Uploader,
		ViewCount:       meta.ViewCount,
		OriginalURL:     url,
	}
}

func firstLine(b []byte) []byte {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i]
	}
	return b
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
