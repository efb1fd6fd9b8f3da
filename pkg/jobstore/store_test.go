package jobstore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidgrab/vidgrab/pkg/fetch"
)

func testRequest() fetch.Request {
	return fetch.Request{URL: "https://youtu.be/abc123", Quality: "720p"}
}

func doneResult() *Result {
	return &Result{
		Info:        fetch.VideoInfo{Title: "demo", Uploader: "channel"},
		ArtifactURL: "https://bucket.s3.us-east-1.amazonaws.com/youtube_videos/demo.mp4",
	}
}

func TestStore_CreateThenGetIsPending(t *testing.T) {
	s := NewStore(0)

	id := s.Create(testRequest())
	if id == "" {
		t.Fatal("expected non-empty job id")
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != StatusPending {
		t.Fatalf("status mismatch: got=%q want=%q", got.Status, StatusPending)
	}
	if got.Result != nil || got.Failure != nil {
		t.Fatal("pending job must carry neither result nor failure")
	}
	if got.Request.URL != "https://youtu.be/abc123" {
		t.Fatalf("request not preserved: %q", got.Request.URL)
	}
}

func TestStore_GetUnknownID(t *testing.T) {
	s := NewStore(0)

	_, err := s.Get("no-such-job")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestStore_GetReturnsSnapshot(t *testing.T) {
	s := NewStore(0)
	id := s.Create(testRequest())

	snap, err := s.Get(id)
	require.NoError(t, err)

	// Mutating the snapshot must not leak into the store.
	snap.Status = StatusDone

	again, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)
}

func TestStore_TransitionLifecycle(t *testing.T) {
	s := NewStore(0)
	id := s.Create(testRequest())

	require.NoError(t, s.Transition(id, StatusPending, StatusProcessing, nil, nil))

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, s.Transition(id, StatusProcessing, StatusDone, doneResult(), nil))

	got, err = s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
	require.NotNil(t, got.Result)
	assert.Nil(t, got.Failure)
	require.NotNil(t, got.CompletedAt)
}

func TestStore_TransitionOutOfTerminalFails(t *testing.T) {
	s := NewStore(0)
	id := s.Create(testRequest())

	require.NoError(t, s.Transition(id, StatusPending, StatusProcessing, nil, nil))
	require.NoError(t, s.Transition(id, StatusProcessing, StatusDone, doneResult(), nil))

	// Second completion with the same target must fail, not be absorbed.
	err := s.Transition(id, StatusProcessing, StatusDone, doneResult(), nil)
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))

	// Even a "transition" that matches the current state is rejected once terminal.
	err = s.Transition(id, StatusDone, StatusError, nil, &Failure{Kind: KindInternal, Message: "x"})
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))
}

func TestStore_TransitionPayloadDiscipline(t *testing.T) {
	s := NewStore(0)

	t.Run("terminal without payload", func(t *testing.T) {
		id := s.Create(testRequest())
		require.NoError(t, s.Transition(id, StatusPending, StatusProcessing, nil, nil))
		err := s.Transition(id, StatusProcessing, StatusDone, nil, nil)
		assert.True(t, IsInvalidTransition(err))
	})

	t.Run("non-terminal with payload", func(t *testing.T) {
		id := s.Create(testRequest())
		err := s.Transition(id, StatusPending, StatusProcessing, doneResult(), nil)
		assert.True(t, IsInvalidTransition(err))
	})

	t.Run("both result and failure", func(t *testing.T) {
		id := s.Create(testRequest())
		require.NoError(t, s.Transition(id, StatusPending, StatusProcessing, nil, nil))
		err := s.Transition(id, StatusProcessing, StatusDone, doneResult(), &Failure{Kind: KindInternal, Message: "x"})
		assert.True(t, IsInvalidTransition(err))
	})

	t.Run("wrong prior state", func(t *testing.T) {
		id := s.Create(testRequest())
		err := s.Transition(id, StatusProcessing, StatusDone, doneResult(), nil)
		require.Error(t, err)
		assert.True(t, IsInvalidTransition(err))

		var terr *TransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, StatusPending, terr.Have)
	})
}

func TestStore_ConcurrentCompletionExactlyOneWins(t *testing.T) {
	s := NewStore(0)
	id := s.Create(testRequest())
	require.NoError(t, s.Transition(id, StatusPending, StatusProcessing, nil, nil))

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = s.Transition(id, StatusProcessing, StatusDone, doneResult(), nil)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !IsInvalidTransition(err) {
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning transition, got %d", wins)
	}

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.NotNil(t, got.Result)
	assert.Nil(t, got.Failure)
}

func TestStore_CancelFlag(t *testing.T) {
	s := NewStore(0)
	id := s.Create(testRequest())

	assert.False(t, s.CancelRequested(id))
	require.NoError(t, s.RequestCancel(id))
	assert.True(t, s.CancelRequested(id))

	assert.True(t, IsNotFound(s.RequestCancel("no-such-job")))
	assert.False(t, s.CancelRequested("no-such-job"))
}

func TestStore_SweepRemovesOnlyExpiredTerminal(t *testing.T) {
	s := NewStore(0)

	oldDone := s.Create(testRequest())
	require.NoError(t, s.Transition(oldDone, StatusPending, StatusProcessing, nil, nil))
	require.NoError(t, s.Transition(oldDone, StatusProcessing, StatusDone, doneResult(), nil))

	freshErr := s.Create(testRequest())
	require.NoError(t, s.Transition(freshErr, StatusPending, StatusProcessing, nil, nil))
	require.NoError(t, s.Transition(freshErr, StatusProcessing, StatusError, nil, &Failure{Kind: KindNetworkFailure, Message: "tunnel reset"}))

	inflight := s.Create(testRequest())

	// Backdate the first job's completion beyond the retention window.
	s.mu.Lock()
	past := time.Now().UTC().Add(-time.Hour)
	s.jobs[oldDone].CompletedAt = &past
	s.mu.Unlock()

	removed := s.Sweep(time.Now().UTC(), 30*time.Minute)
	assert.Equal(t, 1, removed)

	_, err := s.Get(oldDone)
	assert.True(t, IsNotFound(err))

	if _, err := s.Get(freshErr); err != nil {
		t.Fatalf("fresh terminal job swept early: %v", err)
	}
	if _, err := s.Get(inflight); err != nil {
		t.Fatalf("non-terminal job must never be swept: %v", err)
	}
}

func TestStore_SweepBoundaryIsInclusive(t *testing.T) {
	s := NewStore(0)
	id := s.Create(testRequest())
	require.NoError(t, s.Transition(id, StatusPending, StatusProcessing, nil, nil))
	require.NoError(t, s.Transition(id, StatusProcessing, StatusDone, doneResult(), nil))

	now := time.Now().UTC()
	retention := 10 * time.Minute

	s.mu.Lock()
	exact := now.Add(-retention)
	s.jobs[id].CompletedAt = &exact
	s.mu.Unlock()

	// now - completed_at == retention removes the job (>= semantics).
	assert.Equal(t, 1, s.Sweep(now, retention))
}

func TestStore_SweepEnforcesCapOldestTerminalFirst(t *testing.T) {
	s := NewStore(2)

	mkTerminal := func(completedAgo time.Duration) string {
		id := s.Create(testRequest())
		require.NoError(t, s.Transition(id, StatusPending, StatusProcessing, nil, nil))
		require.NoError(t, s.Transition(id, StatusProcessing, StatusDone, doneResult(), nil))
		s.mu.Lock()
		at := time.Now().UTC().Add(-completedAgo)
		s.jobs[id].CompletedAt = &at
		s.mu.Unlock()
		return id
	}

	oldest := mkTerminal(3 * time.Minute)
	middle := mkTerminal(2 * time.Minute)
	newest := mkTerminal(1 * time.Minute)

	// Retention long enough that only the cap triggers eviction.
	removed := s.Sweep(time.Now().UTC(), time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, s.Len())

	_, err := s.Get(oldest)
	assert.True(t, IsNotFound(err), "oldest terminal job should be evicted first")
	if _, err := s.Get(middle); err != nil {
		t.Fatalf("middle job evicted: %v", err)
	}
	if _, err := s.Get(newest); err != nil {
		t.Fatalf("newest job evicted: %v", err)
	}
}

func TestStore_CapNeverEvictsNonTerminal(t *testing.T) {
	s := NewStore(1)

	for i := 0; i < 5; i++ {
		s.Create(testRequest())
	}

	removed := s.Sweep(time.Now().UTC(), time.Minute)
	assert.Zero(t, removed)
	assert.Equal(t, 5, s.Len())
}
