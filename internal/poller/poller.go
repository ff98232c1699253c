// Package poller drives the periodic progress poll of one analysis job.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/competeiq/api/internal/apiclient"
	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/progress"
)

const (
	// DefaultInterval is the delay between two polls.
	DefaultInterval = 2 * time.Second

	// DefaultMaxInvalid is how many consecutive snapshots may break the step
	// invariants before the task gives up.
	DefaultMaxInvalid = 5
)

// ErrInvalidSnapshots ends a task whose job keeps reporting snapshots that
// break the step invariants.
var ErrInvalidSnapshots = errors.New("progress snapshots keep failing validation")

// PollFunc fetches one snapshot of a job, typically apiclient.Client.Poll.
type PollFunc func(ctx context.Context, jobID string) (*model.ProgressResponse, error)

// Update is one accepted snapshot. Seq increases by one per accepted
// snapshot of the task.
type Update struct {
	JobID    string
	Seq      uint64
	Snapshot *model.ProgressResponse
	View     progress.View
}

// Options configures a polling task. Callbacks run on the task's goroutine,
// one at a time, in the order snapshots were received.
type Options struct {
	Interval time.Duration

	// Catalog is the expected step list. The task replaces it with the step
	// names of the first valid snapshot that carries steps.
	Catalog progress.Catalog

	MaxInvalid int

	OnUpdate   func(Update)
	OnTerminal func(Update)
	OnError    func(error)

	// Fatal decides whether a poll error ends the task. By default only
	// NotFoundError is fatal; transient failures keep polling.
	Fatal func(error) bool

	Logger *slog.Logger
}

// Task is a running poll loop. It is cancelled exactly once: by Cancel, by
// the parent context or by observing a terminal status.
type Task struct {
	jobID string
	poll  PollFunc
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// owned by the loop goroutine
	adopted bool
	invalid int

	mu        sync.Mutex
	cancelled bool
	reason    string
	seq       uint64
	lastRank  int
	lastDone  int
}

// StartPolling starts polling jobID immediately and then every interval.
func StartPolling(parent context.Context, jobID string, poll PollFunc, opts Options) *Task {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if len(opts.Catalog) == 0 {
		opts.Catalog = progress.DefaultCatalog
	}
	if opts.MaxInvalid <= 0 {
		opts.MaxInvalid = DefaultMaxInvalid
	}
	if opts.Fatal == nil {
		opts.Fatal = apiclient.IsNotFound
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		jobID:    jobID,
		poll:     poll,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		lastRank: -1,
		lastDone: -1,
	}
	go t.run()
	return t
}

// JobID returns the polled job.
func (t *Task) JobID() string { return t.jobID }

// Cancel stops the loop. It never blocks and is safe to call more than once
// or from a callback. No new poll starts after Cancel returns and a poll in
// flight is aborted. A callback that was already running when Cancel was
// called may still finish; no further callback starts.
func (t *Task) Cancel() {
	t.stop("cancelled")
}

// Done is closed once the loop has exited.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancelled reports whether the loop has been stopped, and why.
func (t *Task) Cancelled() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled, t.reason
}

func (t *Task) stop(reason string) bool {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return false
	}
	t.cancelled = true
	t.reason = reason
	t.mu.Unlock()

	t.cancel()
	t.opts.Logger.Debug("polling stopped", "job_id", t.jobID, "reason", reason)
	return true
}

func (t *Task) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *Task) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()

	for {
		if !t.tick() {
			return
		}
		select {
		case <-t.ctx.Done():
			t.stop("context done")
			return
		case <-ticker.C:
		}
	}
}

// tick performs one poll and reports whether the loop should continue.
func (t *Task) tick() bool {
	if t.isCancelled() {
		return false
	}

	snap, err := t.poll(t.ctx, t.jobID)
	if t.isCancelled() {
		return false
	}
	if err != nil {
		t.opts.Logger.Warn("poll failed", "job_id", t.jobID, "error", err)
		t.report(err)
		if t.opts.Fatal(err) {
			t.stop("fatal error")
			return false
		}
		return true
	}

	if !t.adopted && snap != nil && len(snap.Steps) > 0 {
		if c := progress.Adopt(t.opts.Catalog, snap); progress.ValidateSnapshot(c, snap) == nil {
			t.adopted = true
			t.opts.Catalog = c
		}
	}

	if err := progress.ValidateSnapshot(t.opts.Catalog, snap); err != nil {
		t.invalid++
		t.opts.Logger.Warn("invalid snapshot", "job_id", t.jobID, "count", t.invalid, "error", err)
		// A terminal status is still honoured; only its step detail is suspect.
		if snap == nil || !snap.Status.IsTerminal() {
			if t.invalid >= t.opts.MaxInvalid {
				t.report(&apiclient.ValidationError{Op: "poll", Err: fmt.Errorf("%w: %v", ErrInvalidSnapshots, err)})
				t.stop("invalid snapshots")
				return false
			}
			t.report(&apiclient.ValidationError{Op: "poll", Err: err})
			return true
		}
		t.report(&apiclient.ValidationError{Op: "poll", Err: err})
	} else {
		t.invalid = 0
	}

	view := progress.Ingest(t.opts.Catalog, snap)
	u, ok := t.accept(snap, view)
	if !ok {
		t.opts.Logger.Debug("stale snapshot dropped", "job_id", t.jobID, "status", snap.Status)
		return true
	}

	if view.IsTerminal {
		if !t.stop(fmt.Sprintf("terminal status %s", snap.Status)) {
			return false
		}
		if t.opts.OnUpdate != nil {
			t.opts.OnUpdate(u)
		}
		if t.opts.OnTerminal != nil {
			t.opts.OnTerminal(u)
		}
		return false
	}
	if t.opts.OnUpdate != nil && !t.isCancelled() {
		t.opts.OnUpdate(u)
	}
	return true
}

// report hands err to OnError unless the task was cancelled meanwhile.
func (t *Task) report(err error) {
	if t.opts.OnError != nil && !t.isCancelled() {
		t.opts.OnError(err)
	}
}

// accept applies the monotonicity rule: a snapshot whose status or completed
// step count is behind the last accepted one is stale. A terminal status is
// never stale.
func (t *Task) accept(snap *model.ProgressResponse, view progress.View) (Update, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rank := snap.Status.Rank()
	if rank < t.lastRank || (!view.IsTerminal && view.CompletedSteps < t.lastDone) {
		return Update{}, false
	}
	t.lastRank = rank
	t.lastDone = view.CompletedSteps
	t.seq++
	return Update{JobID: t.jobID, Seq: t.seq, Snapshot: snap, View: view}, true
}
