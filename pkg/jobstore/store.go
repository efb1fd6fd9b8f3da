// Package jobstore implements the concurrent registry of asynchronous
// download jobs.
//
// The store is the only shared mutable structure in the system. All mutation
// goes through Create/Transition/RequestCancel/Sweep, each internally atomic,
// so callers never take locks of their own and no lock is ever held across an
// I/O-bound fetch call.
package jobstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidgrab/vidgrab/pkg/fetch"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the job id is unknown or has been evicted.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition indicates a state change was attempted from a
	// state other than the expected one. This guards against double
	// completion from retried or duplicated workers.
	ErrInvalidTransition = errors.New("invalid transition")
)

// IsNotFound returns true if the error indicates an unknown job id.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidTransition returns true if the error indicates a CAS failure.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// TransitionError wraps a failed transition with the states involved.
type TransitionError struct {
	JobID string
	From  Status // expected prior state
	Have  Status // actual state at CAS time
	To    Status
	Err   error
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: transition %s->%s: have %s: %v", e.JobID, e.From, e.To, e.Have, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *TransitionError) Unwrap() error {
	return e.Err
}

// Store is a concurrency-safe keyed registry of Job records.
//
// All operations are safe to call from multiple goroutines without external
// locking. Transition provides the compare-and-swap semantics needed to
// prevent two racing workers from both completing the same job.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	// maxJobs is the hard cap on stored jobs. Zero means unbounded.
	// When exceeded during Sweep, oldest terminal jobs are evicted first.
	maxJobs int
}

// NewStore creates an empty store.
//
// maxJobs bounds total stored jobs; the bound is enforced by Sweep, evicting
// oldest-terminal-first. Pass 0 to disable the cap.
func NewStore(maxJobs int) *Store {
	return &Store{
		jobs:    make(map[string]*Job),
		maxJobs: maxJobs,
	}
}

// Create allocates a fresh unique id, inserts a pending record for req, and
// returns the id. It never fails except on resource exhaustion.
func (s *Store) Create(req fetch.Request) string {
	id := uuid.New().String()
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	// uuid collisions are not a practical concern, but the invariant is
	// cheap to hold exactly: regenerate until the id is unused.
	for {
		if _, exists := s.jobs[id]; !exists {
			break
		}
		id = uuid.New().String()
	}

	s.jobs[id] = &Job{
		ID:        id,
		Status:    StatusPending,
		Request:   req,
		CreatedAt: now,
	}
	return id
}

// Get returns a snapshot (copy) of the current record.
// Returns ErrNotFound if the id is unknown or has been evicted.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return *j, nil
}

// Transition atomically moves a job from the expected prior state to a new
// state and attaches the terminal payload.
//
// Exactly one of result/failure must be non-nil when to is terminal; both
// must be nil otherwise. Returns a TransitionError wrapping
// ErrInvalidTransition if the job is not currently in from, and ErrNotFound
// if the id is unknown.
func (s *Store) Transition(id string, from, to Status, result *Result, failure *Failure) error {
	if to.Terminal() == (result == nil && failure == nil) {
		return fmt.Errorf("job %s: transition to %s: payload mismatch: %w", id, to, ErrInvalidTransition)
	}
	if result != nil && failure != nil {
		return fmt.Errorf("job %s: both result and failure set: %w", id, ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if j.Status != from || j.Status.Terminal() {
		return &TransitionError{JobID: id, From: from, Have: j.Status, To: to, Err: ErrInvalidTransition}
	}

	j.Status = to
	if to.Terminal() {
		now := time.Now().UTC()
		j.CompletedAt = &now
		j.Result = result
		j.Failure = failure
	}
	return nil
}

// RequestCancel sets the cooperative cancellation flag on a live job.
// Cancelling a terminal or unknown job is not an error; the flag simply has
// no observer left.
func (s *Store) RequestCancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	j.cancelRequested = true
	return nil
}

// CancelRequested reports whether cancellation has been requested for id.
// Unknown ids report false.
func (s *Store) CancelRequested(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	return ok && j.cancelRequested
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Sweep removes all terminal jobs whose CompletedAt is older than retention,
// then enforces the maxJobs cap by evicting oldest terminal jobs first.
// Non-terminal jobs are never removed. Returns the number of jobs evicted.
//
// Sweep is called periodically by the janitor, never on the request path.
func (s *Store) Sweep(now time.Time, retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, j := range s.jobs {
		if !j.Status.Terminal() || j.CompletedAt == nil {
			continue
		}
		if now.Sub(*j.CompletedAt) >= retention {
			delete(s.jobs, id)
			removed++
		}
	}

	if s.maxJobs > 0 && len(s.jobs) > s.maxJobs {
		removed += s.evictOldestTerminalLocked(len(s.jobs) - s.maxJobs)
	}
	return removed
}

// evictOldestTerminalLocked removes up to n terminal jobs, oldest completion
// first. Caller must hold mu.
func (s *Store) evictOldestTerminalLocked(n int) int {
	type candidate struct {
		id          string
		completedAt time.Time
	}
	terminal := make([]candidate, 0, n)
	for id, j := range s.jobs {
		if j.Status.Terminal() && j.CompletedAt != nil {
			terminal = append(terminal, candidate{id: id, completedAt: *j.CompletedAt})
		}
	}
	sort.Slice(terminal, func(i, k int) bool {
		return terminal[i].completedAt.Before(terminal[k].completedAt)
	})

	if n > len(terminal) {
		n = len(terminal)
	}
	for _, c := range terminal[:n] {
		delete(s.jobs, c.id)
	}
	return n
}
