// Package runner schedules fetch work off the request path.
//
// The runner coordinates a bounded worker pool in front of the Fetcher
// Adapter:
//   - Submit: validates the request, inserts a pending job, enqueues it
//   - Workers: claim jobs via compare-and-swap, run the fetch, optionally
//     upload, and write the terminal state back into the Job Store
//
// Admission is bounded: requests beyond the worker pool queue up to a fixed
// depth, and anything beyond that fails with ErrOverloaded instead of
// accepting unbounded backlog.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vidgrab/vidgrab/pkg/eventlog"
	"github.com/vidgrab/vidgrab/pkg/fetch"
	"github.com/vidgrab/vidgrab/pkg/jobstore"
	"github.com/vidgrab/vidgrab/pkg/uploader"
	"github.com/vidgrab/vidgrab/pkg/urlcheck"
)

// ErrOverloaded indicates the admission limit was hit; the request was
// rejected before a job was created.
var ErrOverloaded = errors.New("overloaded")

// IsOverloaded returns true if the error indicates admission rejection.
func IsOverloaded(err error) bool {
	return errors.Is(err, ErrOverloaded)
}

// Config configures runner behavior.
type Config struct {
	// Workers is the number of concurrent fetch workers.
	// Default: 4
	Workers int

	// QueueDepth is how many submitted jobs may wait for a worker before
	// submissions fail with ErrOverloaded.
	// Default: 16
	QueueDepth int

	// RateLimit is the maximum fetch operations per second against the
	// upstream site, shared across all workers. Zero means unlimited.
	// Default: 0
	RateLimit float64

	// MaxDuration caps the source video length for downloads. Zero
	// disables the cap. Violations surface as DURATION_EXCEEDED, checked
	// before the download starts.
	MaxDuration time.Duration

	// WorkDir is the root for per-job temporary artifact directories.
	// Empty uses the OS temp dir.
	WorkDir string
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		Workers:    4,
		QueueDepth: 16,
	}
}

// Runner executes download jobs against a Fetcher through a bounded pool.
//
// Create once, Start once, then Submit from any number of goroutines.
type Runner struct {
	store    *jobstore.Store
	fetcher  fetch.Fetcher
	uploader uploader.Uploader // nil disables upload; artifacts stay local
	events   eventlog.Writer
	checker  *urlcheck.Checker
	logger   *zap.Logger
	cfg      Config

	// Rate limiter (nil if unlimited)
	limiter *rate.Limiter

	// queue carries claimed job ids; slots bounds total queued work.
	// Each queued id holds exactly one slot, so sends on queue never
	// block once a slot is held.
	queue chan string
	slots chan struct{}

	wg      sync.WaitGroup
	started atomic.Bool

	// intakeMu serializes Submit's enqueue against Stop's channel close.
	// Without it a Submit that passes the closed check could send on a
	// queue Stop just closed and panic the process.
	intakeMu sync.RWMutex
	closed   bool // guarded by intakeMu

	// Atomic counters for stats
	submitted atomic.Int64
	rejected  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a runner over store and fetcher.
//
// Use the With* methods to attach the optional uploader, event log, URL
// checker and logger before calling Start.
func New(store *jobstore.Store, fetcher fetch.Fetcher, cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultConfig().QueueDepth
	}

	r := &Runner{
		store:   store,
		fetcher: fetcher,
		events:  eventlog.NopWriter{},
		logger:  zap.NewNop(),
		cfg:     cfg,
		queue:   make(chan string, cfg.QueueDepth),
		slots:   make(chan struct{}, cfg.QueueDepth),
	}
	if cfg.RateLimit > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return r
}

// WithUploader attaches an object storage uploader.
// Returns the runner for method chaining.
func (r *Runner) WithUploader(u uploader.Uploader) *Runner {
	r.uploader = u
	return r
}

// WithEventLog attaches a lifecycle event writer.
func (r *Runner) WithEventLog(w eventlog.Writer) *Runner {
	r.events = w
	return r
}

// WithChecker attaches a URL allow-list checker applied during Submit.
func (r *Runner) WithChecker(c *urlcheck.Checker) *Runner {
	r.checker = c
	return r
}

// WithLogger attaches a structured logger.
func (r *Runner) WithLogger(l *zap.Logger) *Runner {
	if l != nil {
		r.logger = l
	}
	return r
}

// Start launches the worker pool. Workers exit when ctx is cancelled or
// when Stop closes the queue. Start is idempotent.
func (r *Runner) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
}

// Stop closes intake, waits for in-flight work to finish, and fails any
// jobs still queued with a Cancelled failure so every admitted job reaches
// a terminal state. Submissions after Stop fail with ErrOverloaded.
func (r *Runner) Stop() {
	r.intakeMu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.intakeMu.Unlock()

	r.wg.Wait()
	r.drainQueue()
}

// drainQueue fails whatever the workers left behind. Workers bail out on
// context cancellation without emptying the queue, so admitted jobs would
// otherwise sit pending forever, invisible to the janitor sweep.
func (r *Runner) drainQueue() {
	for id := range r.queue {
		r.finish(id, jobstore.StatusPending, nil, &jobstore.Failure{
			Kind:    jobstore.KindCancelled,
			Message: "shut down before start",
		})
		select {
		case <-r.slots:
		default:
		}
	}
}

// Submit validates req, creates a pending job and enqueues it.
//
// Validation failures surface synchronously and no job is created. When the
// queue is full the submission fails with ErrOverloaded; the job never
// enters the Job Store. Duplicate submissions for the same URL are
// independent jobs - callers own dedup.
func (r *Runner) Submit(ctx context.Context, req fetch.Request) (string, error) {
	if err := r.validate(req); err != nil {
		return "", err
	}

	// Hold the read side across the enqueue so Stop cannot close the
	// queue between the closed check and the send below.
	r.intakeMu.RLock()
	defer r.intakeMu.RUnlock()
	if r.closed {
		r.rejected.Add(1)
		return "", fmt.Errorf("runner is stopped: %w", ErrOverloaded)
	}

	// Reserve a queue slot before creating the job so rejected
	// submissions never enter the store.
	select {
	case r.slots <- struct{}{}:
	default:
		r.rejected.Add(1)
		return "", fmt.Errorf("queue depth %d exceeded: %w", r.cfg.QueueDepth, ErrOverloaded)
	}

	id := r.store.Create(req)
	r.submitted.Add(1)

	_ = r.events.WriteSubmitted(id, &eventlog.SubmittedRecord{
		URL:       req.URL,
		Quality:   req.Quality,
		AudioOnly: req.AudioOnly,
	})
	r.logger.Info("job submitted",
		zap.String("job_id", id),
		zap.String("url", req.URL),
		zap.String("quality", req.Quality),
		zap.Bool("audio_only", req.AudioOnly))

	// Guaranteed room: the held slot maps 1:1 to queue capacity.
	r.queue <- id
	return id, nil
}

// RunSync executes a request inline, bypassing the Job Store. Used by the
// synchronous download endpoint. The admission slot is still consumed so
// sync traffic cannot starve async capacity accounting.
func (r *Runner) RunSync(ctx context.Context, req fetch.Request) (*jobstore.Result, error) {
	if err := r.validate(req); err != nil {
		return nil, err
	}

	select {
	case r.slots <- struct{}{}:
	default:
		r.rejected.Add(1)
		return nil, fmt.Errorf("queue depth %d exceeded: %w", r.cfg.QueueDepth, ErrOverloaded)
	}
	defer func() { <-r.slots }()

	return r.execute(ctx, "", req)
}

// Cancel requests cooperative cancellation of a job. The worker observes the
// flag at its checkpoints; an in-flight tool invocation is not aborted.
func (r *Runner) Cancel(id string) error {
	return r.store.RequestCancel(id)
}

// Stats is a snapshot of runner counters.
type Stats struct {
	Submitted int64
	Rejected  int64
	Completed int64
	Failed    int64
}

// Stats returns current counter values.
func (r *Runner) Stats() Stats {
	return Stats{
		Submitted: r.submitted.Load(),
		Rejected:  r.rejected.Load(),
		Completed: r.completed.Load(),
		Failed:    r.failed.Load(),
	}
}

func (r *Runner) validate(req fetch.Request) error {
	if r.checker == nil {
		return nil
	}
	return r.checker.Validate(req.URL)
}

// worker claims jobs from the queue until the queue closes or ctx cancels.
func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-r.queue:
			if !ok {
				return
			}
			r.runJob(ctx, id)
			<-r.slots
		}
	}
}

// runJob drives one job through its state machine.
func (r *Runner) runJob(ctx context.Context, id string) {
	job, err := r.store.Get(id)
	if err != nil {
		// Swept or evicted between submit and claim; nothing to do.
		r.logger.Warn("queued job vanished before claim", zap.String("job_id", id))
		return
	}

	// Checkpoint: cancellation before any work starts.
	if r.store.CancelRequested(id) {
		r.finish(id, jobstore.StatusPending, nil, &jobstore.Failure{
			Kind:    jobstore.KindCancelled,
			Message: "cancelled before start",
		})
		return
	}

	if err := r.store.Transition(id, jobstore.StatusPending, jobstore.StatusProcessing, nil, nil); err != nil {
		// A job we pulled off the queue should always be claimable; this
		// is a concurrency bug, not a user error.
		r.logger.Error("failed to claim job",
			zap.String("job_id", id),
			zap.Error(err))
		return
	}
	_ = r.events.WritePhase(id, eventlog.PhaseClaimed)
	start := time.Now()

	result, err := r.execute(ctx, id, job.Request)
	if err != nil {
		kind, msg := classify(err)
		r.finish(id, jobstore.StatusProcessing, nil, &jobstore.Failure{Kind: kind, Message: msg})
	} else {
		r.finish(id, jobstore.StatusProcessing, result, nil)
	}

	job, gerr := r.store.Get(id)
	summary := &eventlog.SummaryRecord{
		Duration:      time.Since(start),
		DurationHuman: time.Since(start).Round(time.Millisecond).String(),
	}
	if gerr == nil {
		summary.Status = string(job.Status)
		if job.Result != nil {
			summary.Title = job.Result.Info.Title
			summary.ArtifactURL = job.Result.ArtifactURL
		}
	}
	_ = r.events.WriteSummary(id, summary)
}

// execute runs the fetch and optional upload phases. id is empty for
// synchronous (storeless) execution, which skips cancellation checkpoints.
func (r *Runner) execute(ctx context.Context, id string, req fetch.Request) (*jobstore.Result, error) {
	if err := r.waitForRateLimit(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %v: %w", err, fetch.ErrCancelled)
	}

	// Duration cap is enforced here, before the download, so violations
	// surface as a distinct user-facing kind rather than a tool failure.
	if r.cfg.MaxDuration > 0 {
		info, err := r.fetcher.Probe(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		if info.Duration > r.cfg.MaxDuration {
			return nil, fmt.Errorf("video runs %s, cap is %s: %w",
				info.Duration, r.cfg.MaxDuration, fetch.ErrDurationExceeded)
		}
	}

	dir, err := os.MkdirTemp(r.cfg.WorkDir, "vidgrab-job-*")
	if err != nil {
		return nil, err
	}

	req.OutputDir = dir
	if req.DownloadID == "" {
		if id != "" {
			req.DownloadID = id
		} else {
			req.DownloadID = fmt.Sprintf("sync-%d", time.Now().UnixNano())
		}
	}

	if id != "" {
		_ = r.events.WritePhase(id, eventlog.PhaseDownloading)
	}
	fetched, err := r.fetcher.Fetch(ctx, req)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	// Checkpoint: cancellation between download and upload.
	if id != "" && r.store.CancelRequested(id) {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("cancelled after download: %w", fetch.ErrCancelled)
	}

	result := &jobstore.Result{Info: fetched.Info}

	if r.uploader != nil {
		if id != "" {
			_ = r.events.WritePhase(id, eventlog.PhaseUploading)
		}
		key := uploader.BuildKey(fetched.Info.Title, req.DownloadID, fetched.Path, time.Now().UTC())
		url, err := r.uploader.Upload(ctx, fetched.Path, key)
		if err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
		result.ArtifactURL = url
		// Artifact is durable now; the local copy is scratch.
		_ = os.RemoveAll(dir)
	} else {
		result.ArtifactURL = fetched.Path
	}

	return result, nil
}

// finish writes the terminal state. A failed CAS here means another path
// already completed the job - an invariant violation that is logged loudly
// and converted to a no-op rather than crashing the process.
func (r *Runner) finish(id string, from jobstore.Status, result *jobstore.Result, failure *jobstore.Failure) {
	if err := r.store.Transition(id, from, terminalFor(result), result, failure); err != nil {
		r.logger.Error("invalid job transition suppressed",
			zap.String("job_id", id),
			zap.String("from", string(from)),
			zap.Error(err))
		return
	}

	if failure != nil {
		r.failed.Add(1)
		_ = r.events.WriteError(id, &eventlog.ErrorRecord{Kind: string(failure.Kind), Message: failure.Message})
		r.logger.Warn("job failed",
			zap.String("job_id", id),
			zap.String("kind", string(failure.Kind)),
			zap.String("message", failure.Message))
	} else {
		r.completed.Add(1)
		r.logger.Info("job completed",
			zap.String("job_id", id),
			zap.String("title", result.Info.Title),
			zap.String("artifact", result.ArtifactURL))
	}
	_ = r.events.WritePhase(id, eventlog.PhaseComplete)
}

func terminalFor(result *jobstore.Result) jobstore.Status {
	if result != nil {
		return jobstore.StatusDone
	}
	return jobstore.StatusError
}

// waitForRateLimit blocks until the shared limiter allows an upstream call.
// Returns immediately if rate limiting is disabled.
func (r *Runner) waitForRateLimit(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// classify maps an execution error to a stable kind and user-safe message.
func classify(err error) (jobstore.ErrorKind, string) {
	switch {
	case fetch.IsInvalidURL(err):
		return jobstore.KindInvalidURL, err.Error()
	case fetch.IsUnsupportedContent(err):
		return jobstore.KindUnsupportedContent, err.Error()
	case fetch.IsDurationExceeded(err):
		return jobstore.KindDurationExceeded, err.Error()
	case fetch.IsUpstreamRejected(err):
		return jobstore.KindUpstreamRejected, err.Error()
	case fetch.IsNetworkFailure(err):
		return jobstore.KindNetworkFailure, err.Error()
	case fetch.IsCancelled(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return jobstore.KindCancelled, err.Error()
	case uploader.IsUploadFailed(err):
		return jobstore.KindStorageUploadFailed, err.Error()
	default:
		return jobstore.KindInternal, err.Error()
	}
}
