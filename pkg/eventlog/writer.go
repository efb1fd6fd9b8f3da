package eventlog

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer emits JSONL lifecycle records.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// Each Write* method emits a complete record as a single line of JSON
// followed by a newline.
type Writer interface {
	// WriteSubmitted emits a submission record.
	WriteSubmitted(jobID string, sub *SubmittedRecord) error

	// WritePhase emits a phase change record.
	WritePhase(jobID string, phase string) error

	// WriteError emits an error record.
	WriteError(jobID string, rec *ErrorRecord) error

	// WriteSummary emits a completion summary record.
	WriteSummary(jobID string, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// JSONLWriter is safe for concurrent use. Writes are serialized using a
// mutex to ensure atomic line writes (no interleaved output).
type JSONLWriter struct {
	w  io.Writer
	mu sync.Mutex

	closed bool
}

// NewJSONLWriter creates a new JSONL writer over w. The caller owns closing
// the underlying writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{w: w}
}

// WriteSubmitted emits a submission record.
func (jw *JSONLWriter) WriteSubmitted(jobID string, sub *SubmittedRecord) error {
	return jw.writeRecord(TypeSubmitted, jobID, sub)
}

// WritePhase emits a phase change record.
func (jw *JSONLWriter) WritePhase(jobID string, phase string) error {
	return jw.writeRecord(TypePhase, jobID, &PhaseRecord{Phase: phase})
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(jobID string, rec *ErrorRecord) error {
	return jw.writeRecord(TypeError, jobID, rec)
}

// WriteSummary emits a completion summary record.
func (jw *JSONLWriter) WriteSummary(jobID string, sum *SummaryRecord) error {
	return jw.writeRecord(TypeSummary, jobID, sum)
}

// Close marks the writer as closed. The underlying writer is not closed.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

func (jw *JSONLWriter) writeRecord(recordType, jobID string, data any) error {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	record := Record{
		Type:  recordType,
		TS:    time.Now().UTC(),
		JobID: jobID,
		Data:  dataBytes,
	}
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}
	recordBytes = append(recordBytes, '\n')

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}

	// io.Writer.Write may return n < len(p) with a nil error (short write);
	// loop until the full line is out so JSONL output never truncates.
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// NopWriter discards all records. Used when no event log is configured.
type NopWriter struct{}

// WriteSubmitted implements Writer.
func (NopWriter) WriteSubmitted(string, *SubmittedRecord) error { return nil }

// WritePhase implements Writer.
func (NopWriter) WritePhase(string, string) error { return nil }

// WriteError implements Writer.
func (NopWriter) WriteError(string, *ErrorRecord) error { return nil }

// WriteSummary implements Writer.
func (NopWriter) WriteSummary(string, *SummaryRecord) error { return nil }

// Close implements Writer.
func (NopWriter) Close() error { return nil }

// Compile-time checks that both writers implement Writer.
var (
	_ Writer = (*JSONLWriter)(nil)
	_ Writer = NopWriter{}
)
