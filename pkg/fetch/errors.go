package fetch

import (
	"errors"
	"fmt"
)

// Sentinel errors for fetch operations.
var (
	// ErrInvalidURL indicates the URL is malformed or not recognized.
	ErrInvalidURL = errors.New("invalid url")

	// ErrUnsupportedContent indicates the URL points at content the tool
	// cannot retrieve (live stream, private video, deleted video).
	ErrUnsupportedContent = errors.New("unsupported content")

	// ErrDurationExceeded indicates the video is longer than the allowed cap.
	ErrDurationExceeded = errors.New("duration exceeded")

	// ErrUpstreamRejected indicates the hosting site refused the request.
	ErrUpstreamRejected = errors.New("upstream rejected")

	// ErrNetworkFailure indicates a transport failure reaching the site.
	ErrNetworkFailure = errors.New("network failure")

	// ErrCancelled indicates the operation was cancelled by the caller.
	ErrCancelled = errors.New("cancelled")
)

// FetchError wraps fetch failures with context.
type FetchError struct {
	// Op is the operation that failed (e.g., "Probe", "Fetch").
	Op string

	// URL is the video URL the operation targeted.
	URL string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("fetch %s: %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsInvalidURL returns true if the error indicates a malformed or unknown URL.
func IsInvalidURL(err error) bool {
	return errors.Is(err, ErrInvalidURL)
}

// IsUnsupportedContent returns true if the error indicates unretrievable content.
func IsUnsupportedContent(err error) bool {
	return errors.Is(err, ErrUnsupportedContent)
}

// IsDurationExceeded returns true if the error indicates the duration cap was hit.
func IsDurationExceeded(err error) bool {
	return errors.Is(err, ErrDurationExceeded)
}

// IsUpstreamRejected returns true if the error indicates the site refused us.
func IsUpstreamRejected(err error) bool {
	return errors.Is(err, ErrUpstreamRejected)
}

// IsNetworkFailure returns true if the error indicates a transport failure.
func IsNetworkFailure(err error) bool {
	return errors.Is(err, ErrNetworkFailure)
}

// IsCancelled returns true if the error indicates caller cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
