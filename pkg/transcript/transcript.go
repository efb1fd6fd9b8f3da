// Package transcript extracts plain-text transcripts from video subtitle
// tracks.
//
// Extraction runs synchronously on the request path: the source is probed
// first so duration cap violations fail fast, then the subtitle track is
// fetched and reduced from WebVTT to plain text with cue timing, styling
// and consecutive duplicates stripped.
package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vidgrab/vidgrab/pkg/fetch"
	"github.com/vidgrab/vidgrab/pkg/urlcheck"
)

// DefaultLanguage is used when the caller does not name a subtitle track.
const DefaultLanguage = "en"

// Config configures the transcript service.
type Config struct {
	// MaxDuration caps the source video length. Zero disables the cap.
	MaxDuration time.Duration

	// RateLimit is the maximum upstream operations per second. Zero means
	// unlimited.
	RateLimit float64
}

// Service extracts transcripts through a Fetcher.
type Service struct {
	fetcher fetch.Fetcher
	checker *urlcheck.Checker
	logger  *zap.Logger
	limiter *rate.Limiter
	cfg     Config
}

// Transcript is the result of a successful extraction.
type Transcript struct {
	// Info is the metadata probed for the source video.
	Info fetch.VideoInfo `json:"video_info"`

	// Language is the subtitle track language that was extracted.
	Language string `json:"language"`

	// Text is the plain-text transcript.
	Text string `json:"transcript"`
}

// New creates a transcript service over fetcher.
func New(fetcher fetch.Fetcher, cfg Config) *Service {
	s := &Service{
		fetcher: fetcher,
		logger:  zap.NewNop(),
		cfg:     cfg,
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return s
}

// WithChecker attaches a URL allow-list checker.
func (s *Service) WithChecker(c *urlcheck.Checker) *Service {
	s.checker = c
	return s
}

// WithLogger attaches a structured logger.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// Extract probes the video, enforces the duration cap and returns the
// plain-text transcript for the requested language.
//
// An empty language selects DefaultLanguage. Videos with no subtitle track
// in the requested language fail with ErrUnsupportedContent.
func (s *Service) Extract(ctx context.Context, url, language string) (*Transcript, error) {
	if language == "" {
		language = DefaultLanguage
	}
	if s.checker != nil {
		if err := s.checker.Validate(url); err != nil {
			return nil, err
		}
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %v: %w", err, fetch.ErrCancelled)
		}
	}

	info, err := s.fetcher.Probe(ctx, url)
	if err != nil {
		return nil, err
	}
	if s.cfg.MaxDuration > 0 && info.Duration > s.cfg.MaxDuration {
		return nil, fmt.Errorf("video runs %s, transcript cap is %s: %w",
			info.Duration, s.cfg.MaxDuration, fetch.ErrDurationExceeded)
	}

	raw, err := s.fetcher.Subtitles(ctx, url, language)
	if err != nil {
		return nil, err
	}

	text := ReduceVTT(raw)
	if text == "" {
		return nil, fmt.Errorf("subtitle track %q is empty: %w", language, fetch.ErrUnsupportedContent)
	}

	s.logger.Info("transcript extracted",
		zap.String("url", url),
		zap.String("language", language),
		zap.Int("chars", len(text)))

	return &Transcript{Info: *info, Language: language, Text: text}, nil
}

// ReduceVTT strips a WebVTT document down to its spoken text.
//
// Cue timings, positioning attributes, inline tags and the header block are
// removed. Consecutive duplicate lines, common in auto-generated rolling
// captions, collapse to one.
func ReduceVTT(vtt string) string {
	var out []string
	var last string

	for _, line := range strings.Split(vtt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isVTTMetadata(line) {
			continue
		}
		line = stripCueTags(line)
		if line == "" || line == last {
			continue
		}
		out = append(out, line)
		last = line
	}
	return strings.Join(out, "\n")
}

// isVTTMetadata reports whether a line is structural rather than spoken
// text: the WEBVTT header, NOTE/STYLE blocks, cue identifiers and timing
// lines.
func isVTTMetadata(line string) bool {
	if strings.HasPrefix(line, "WEBVTT") ||
		strings.HasPrefix(line, "NOTE") ||
		strings.HasPrefix(line, "STYLE") ||
		strings.HasPrefix(line, "REGION") ||
		strings.HasPrefix(line, "Kind:") ||
		strings.HasPrefix(line, "Language:") {
		return true
	}
	return strings.Contains(line, "-->")
}

// stripCueTags removes inline WebVTT tags such as <c>, </c> and
// per-word timestamps like <00:00:01.500>.
func stripCueTags(line string) string {
	if !strings.Contains(line, "<") {
		return line
	}
	var b strings.Builder
	depth := 0
	for _, r := range line {
		switch {
		case r == '<':
			depth++
		case r == '>':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
