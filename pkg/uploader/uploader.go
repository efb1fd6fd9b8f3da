// Package uploader defines the object storage upload capability for fetched
// artifacts.
//
// Implementations move a local file to durable storage and return a public
// URL. They are called, never reimplemented - transcoding and retrieval stay
// with the fetch layer.
package uploader

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for upload operations.
var (
	// ErrUploadFailed indicates the artifact could not be stored.
	ErrUploadFailed = errors.New("upload failed")

	// ErrNotConfigured indicates no storage backend is configured.
	// Callers treat this as "skip upload", not as a job failure.
	ErrNotConfigured = errors.New("uploader not configured")
)

// IsUploadFailed returns true if the error indicates a storage failure.
func IsUploadFailed(err error) bool {
	return errors.Is(err, ErrUploadFailed)
}

// IsNotConfigured returns true if the error indicates no backend is set up.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// UploadError wraps upload failures with context.
type UploadError struct {
	// Op is the operation that failed (e.g., "Upload").
	Op string

	// Key is the destination object key.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *UploadError) Error() string {
	return fmt.Sprintf("uploader %s: %s: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *UploadError) Unwrap() error {
	return e.Err
}

// Uploader stores a local artifact and returns its public URL.
//
// Implementations must be safe for concurrent use.
type Uploader interface {
	// Upload stores the file at localPath under key and returns the
	// public URL of the stored object.
	Upload(ctx context.Context, localPath, key string) (string, error)
}
