package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJanitor_SweepOnce(t *testing.T) {
	s := NewStore(0)

	id := s.Create(testRequest())
	require.NoError(t, s.Transition(id, StatusPending, StatusProcessing, nil, nil))
	require.NoError(t, s.Transition(id, StatusProcessing, StatusDone, doneResult(), nil))

	s.mu.Lock()
	past := time.Now().UTC().Add(-time.Hour)
	s.jobs[id].CompletedAt = &past
	s.mu.Unlock()

	j := NewJanitor(s, 30*time.Minute, time.Minute, zap.NewNop())
	assert.Equal(t, 1, j.SweepOnce(time.Now().UTC()))
	assert.Zero(t, s.Len())
}

func TestJanitor_SingleActiveSweep(t *testing.T) {
	s := NewStore(0)
	j := NewJanitor(s, time.Minute, time.Minute, zap.NewNop())

	// Hold the guard and verify a concurrent sweep is skipped.
	require.True(t, j.sweeping.CompareAndSwap(false, true))
	assert.Equal(t, -1, j.SweepOnce(time.Now().UTC()))
	j.sweeping.Store(false)

	assert.Equal(t, 0, j.SweepOnce(time.Now().UTC()))
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	s := NewStore(0)
	j := NewJanitor(s, time.Minute, time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after context cancellation")
	}
}
