// Package urlcheck validates submitted video URLs against an allow-list of
// host patterns.
//
// Validation runs synchronously before a job is created, so malformed or
// disallowed URLs never consume a worker slot.
package urlcheck

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/vidgrab/vidgrab/pkg/fetch"
)

// DefaultAllowedHosts are the host patterns accepted out of the box.
// Patterns use glob syntax; "*.youtube.com" matches direct subdomains.
var DefaultAllowedHosts = []string{
	"youtube.com",
	"*.youtube.com",
	"youtu.be",
	"m.youtube.com",
}

// Checker validates URLs against compiled host patterns.
type Checker struct {
	patterns []string
}

// New creates a checker from host patterns. Invalid glob patterns are
// rejected up front so misconfiguration fails at startup, not per request.
func New(patterns []string) (*Checker, error) {
	if len(patterns) == 0 {
		patterns = DefaultAllowedHosts
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid host pattern %q", p)
		}
	}
	return &Checker{patterns: patterns}, nil
}

// Validate checks that raw is a well-formed http(s) URL whose host matches
// the allow-list. Violations wrap fetch.ErrInvalidURL.
func (c *Checker) Validate(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("url is empty: %w", fetch.ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %q: %w", raw, fetch.ErrInvalidURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q: %w", u.Scheme, fetch.ErrInvalidURL)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("url %q has no host: %w", raw, fetch.ErrInvalidURL)
	}

	for _, p := range c.patterns {
		if ok, matchErr := doublestar.Match(p, host); matchErr == nil && ok {
			return nil
		}
	}
	return fmt.Errorf("host %q is not in the allow-list: %w", host, fetch.ErrInvalidURL)
}

// VideoID extracts the video id from a YouTube URL, or "" if none is found.
// Used only for logging and artifact naming hints, never for dedup.
func VideoID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if strings.EqualFold(u.Hostname(), "youtu.be") {
		return strings.TrimPrefix(u.Path, "/")
	}
	return u.Query().Get("v")
}

// IsInvalid reports whether err is a validation failure from this package.
func IsInvalid(err error) bool {
	return errors.Is(err, fetch.ErrInvalidURL)
}
