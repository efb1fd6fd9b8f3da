package jobstore

import (
	"time"

	"github.com/vidgrab/vidgrab/pkg/fetch"
)

// Status is the lifecycle state of a tracked job.
//
// NOTE: These values appear in status responses and are part of the stable
// wire contract.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions are permitted from s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// ErrorKind is a stable machine-readable classification for job failures.
//
// These codes follow the pattern used in error envelopes: UPPER_SNAKE, never
// renamed once shipped.
type ErrorKind string

const (
	KindInvalidURL          ErrorKind = "INVALID_URL"
	KindUnsupportedContent  ErrorKind = "UNSUPPORTED_CONTENT"
	KindDurationExceeded    ErrorKind = "DURATION_EXCEEDED"
	KindUpstreamRejected    ErrorKind = "UPSTREAM_REJECTED"
	KindNetworkFailure      ErrorKind = "NETWORK_FAILURE"
	KindStorageUploadFailed ErrorKind = "STORAGE_UPLOAD_FAILED"
	KindCancelled           ErrorKind = "CANCELLED"
	KindInternal            ErrorKind = "INTERNAL"
)

// Result is the payload attached to a job that reached StatusDone.
type Result struct {
	// Info is the video metadata extracted during the fetch.
	Info fetch.VideoInfo `json:"video_info"`

	// ArtifactURL references the produced artifact: a remote storage URL
	// when upload is configured, otherwise a local path.
	ArtifactURL string `json:"download_url"`
}

// Failure is the payload attached to a job that reached StatusError.
type Failure struct {
	// Kind is the stable error classification.
	Kind ErrorKind `json:"kind"`

	// Message is a human-readable description safe to show to callers.
	Message string `json:"message"`
}

// Job is the record tracked for one asynchronous download request.
//
// The schema is designed for backward-compatible extension (additive fields).
type Job struct {
	ID      string        `json:"job_id"`
	Status  Status        `json:"status"`
	Request fetch.Request `json:"request"`

	// Result is set exactly when Status == StatusDone.
	Result *Result `json:"result,omitempty"`

	// Failure is set exactly when Status == StatusError.
	Failure *Failure `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// cancelRequested is the cooperative cancellation flag. Workers poll it
	// at checkpoints; it never aborts an in-flight tool invocation.
	cancelRequested bool
}

// CancelRequested reports the cooperative cancellation flag on a snapshot.
func (j *Job) CancelRequested() bool {
	return j.cancelRequested
}
