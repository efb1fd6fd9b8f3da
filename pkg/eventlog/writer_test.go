package eventlog

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLWriter_EmitsOneLinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf)

	require.NoError(t, w.WriteSubmitted("job-1", &SubmittedRecord{URL: "https://youtu.be/abc123", Quality: "720p"}))
	require.NoError(t, w.WritePhase("job-1", PhaseClaimed))
	require.NoError(t, w.WriteSummary("job-1", &SummaryRecord{
		Status:        "done",
		Title:         "demo",
		Duration:      3 * time.Second,
		DurationHuman: "3s",
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var first Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, TypeSubmitted, first.Type)
	assert.Equal(t, "job-1", first.JobID)

	var sub SubmittedRecord
	require.NoError(t, json.Unmarshal(first.Data, &sub))
	assert.Equal(t, "https://youtu.be/abc123", sub.URL)

	var last Record
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Equal(t, TypeSummary, last.Type)
}

func TestJSONLWriter_ClosedWriterRejectsWrites(t *testing.T) {
	w := NewJSONLWriter(&bytes.Buffer{})
	require.NoError(t, w.Close())

	err := w.WritePhase("job-1", PhaseComplete)
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestJSONLWriter_ConcurrentWritesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.WriteError("job-x", &ErrorRecord{Kind: "NETWORK_FAILURE", Message: "tunnel reset"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 20)
	for _, line := range lines {
		var rec Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "each line must be valid JSON")
	}
}
