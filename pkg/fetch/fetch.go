// Package fetch defines abstractions for retrieving video content from
// external hosting sites.
//
// Fetchers implement a minimal surface area focused on metadata probing and
// artifact materialization. The actual retrieval protocol is delegated to an
// external tool - fetchers should not implement download logic themselves.
package fetch

import (
	"context"
	"time"
)

// Fetcher abstracts video retrieval operations.
//
// Implementations should:
//   - Run the underlying tool with a caller-supplied context (deadline/cancel)
//   - Classify failures into the package sentinel errors
//   - Be safe for concurrent use
type Fetcher interface {
	// Probe returns metadata for a video without downloading it.
	// Returns ErrInvalidURL if the URL is not recognized by the tool.
	Probe(ctx context.Context, url string) (*VideoInfo, error)

	// Fetch downloads the video described by req into req.OutputDir and
	// returns the materialized artifact path together with its metadata.
	Fetch(ctx context.Context, req Request) (*Result, error)

	// Subtitles returns the subtitle payload (WebVTT) for a video in the
	// given language without downloading the media itself.
	Subtitles(ctx context.Context, url, language string) (string, error)
}

// Request describes a single fetch operation.
//
// A Request is immutable once handed to a Fetcher.
type Request struct {
	// URL is the video page URL (required).
	URL string `json:"url"`

	// Quality selects the target quality: "best", "worst", or a height
	// suffix form such as "720p". Empty means "best".
	Quality string `json:"quality,omitempty"`

	// Format is the desired container format hint (e.g. "mp4").
	// Empty lets the tool decide.
	Format string `json:"format,omitempty"`

	// AudioOnly extracts audio only (mp3, 192K).
	AudioOnly bool `json:"audio_only,omitempty"`

	// OutputDir is the directory the artifact is written to.
	// The fetcher derives the file name; callers own cleanup of the dir.
	OutputDir string `json:"-"`

	// DownloadID keys the output file name so concurrent fetches into a
	// shared directory never collide.
	DownloadID string `json:"-"`
}

// VideoInfo contains the metadata extracted for a video.
type VideoInfo struct {
	// Title is the video title as reported by the hosting site.
	Title string `json:"title"`

	// Duration is the total playing time.
	Duration time.Duration `json:"-"`

	// DurationSeconds mirrors Duration for wire encoding.
	DurationSeconds int64 `json:"duration"`

	// Uploader is the channel or account that published the video.
	Uploader string `json:"uploader"`

	// ViewCount is the reported view count at probe time.
	ViewCount int64 `json:"view_count"`

	// OriginalURL is the URL the metadata was probed from.
	OriginalURL string `json:"original_url"`
}

// Result is the outcome of a successful Fetch.
type Result struct {
	// Info is the metadata probed for the video.
	Info VideoInfo

	// Path is the local path of the materialized artifact.
	Path string
}
