// Package eventlog provides JSONL lifecycle records for download jobs.
//
// Records are typed envelopes; each line is a self-contained JSON object
// that can be parsed independently, so the log doubles as a poor man's audit
// trail without a metrics stack.
package eventlog

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: vidgrab.<type>.v<version>
const (
	// TypeSubmitted identifies job submission records.
	TypeSubmitted = "vidgrab.submitted.v1"

	// TypePhase identifies phase change records.
	TypePhase = "vidgrab.phase.v1"

	// TypeError identifies error records.
	TypeError = "vidgrab.error.v1"

	// TypeSummary identifies job completion summary records.
	TypeSummary = "vidgrab.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "vidgrab.summary.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for the job.
	JobID string `json:"job_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// SubmittedRecord is the data payload for job submissions.
type SubmittedRecord struct {
	// URL is the submitted video URL.
	URL string `json:"url"`

	// Quality is the requested quality.
	Quality string `json:"quality,omitempty"`

	// AudioOnly indicates an audio-only request.
	AudioOnly bool `json:"audio_only,omitempty"`
}

// PhaseRecord is the data payload for phase changes.
type PhaseRecord struct {
	// Phase is the phase the job entered.
	Phase string `json:"phase"`
}

// Job phases, in order.
const (
	// PhaseClaimed indicates a worker picked up the job.
	PhaseClaimed = "claimed"

	// PhaseDownloading indicates the fetch is in progress.
	PhaseDownloading = "downloading"

	// PhaseUploading indicates the artifact is being stored.
	PhaseUploading = "uploading"

	// PhaseComplete indicates the job reached a terminal state.
	PhaseComplete = "complete"
)

// ErrorRecord is the data payload for failures.
type ErrorRecord struct {
	// Kind is the stable machine-readable error kind.
	Kind string `json:"kind"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// SummaryRecord is the data payload emitted once per job at completion.
type SummaryRecord struct {
	// Status is the terminal status ("done" or "error").
	Status string `json:"status"`

	// Title is the video title, when known.
	Title string `json:"title,omitempty"`

	// ArtifactURL references the produced artifact, when the job succeeded.
	ArtifactURL string `json:"artifact_url,omitempty"`

	// Duration is the wall-clock time the job spent from claim to terminal.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "eventlog: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
