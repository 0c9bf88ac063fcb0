package jobs

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/filehound/filehound/fhound/search"

	"github.com/google/uuid"
)

// Kind identifies what a job is searching.
type Kind string

const (
	KindFilename Kind = "filename"
	KindContent  Kind = "content"
)

// Status is the lifecycle state of a job. Transitions are monotonic:
// Running moves to exactly one of the terminal states and never back.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Job is an asynchronous, pollable unit of search work. Progress counters
// are atomic so pollers read them without taking the job lock; the remaining
// mutable fields follow single-writer discipline (the executing worker writes
// status/results, the cancelling caller writes only the cancellation flag).
type Job struct {
	id        string
	kind      Kind
	startedAt time.Time

	dirsScanned    atomic.Int64
	filesMatched   atomic.Int64
	filesProcessed atomic.Int64
	filesTotal     atomic.Int64
	cancelled      atomic.Bool

	mu         sync.RWMutex
	status     Status
	records    []search.FileRecord
	matches    []search.ContentMatch
	issues     []search.Issue
	errMsg     string
	finishedAt time.Time
}

// Snapshot is an immutable copy of a job's state at one point in its
// progression. Pollers only ever see snapshots, never the live job fields.
type Snapshot struct {
	ID             string                `json:"id"`
	Kind           Kind                  `json:"kind"`
	Status         Status                `json:"status"`
	DirsScanned    int64                 `json:"dirs_scanned"`
	FilesMatched   int64                 `json:"files_matched"`
	FilesProcessed int64                 `json:"files_processed"`
	FilesTotal     int64                 `json:"files_total,omitempty"`
	Records        []search.FileRecord   `json:"records,omitempty"`
	Matches        []search.ContentMatch `json:"matches,omitempty"`
	Issues         []search.Issue        `json:"issues,omitempty"`
	Error          string                `json:"error,omitempty"`
	StartedAt      time.Time             `json:"started_at"`
	FinishedAt     time.Time             `json:"finished_at,omitzero"`
}

// Terminal reports whether the snapshot is in a final state.
func (s Snapshot) Terminal() bool {
	return s.Status != StatusRunning
}

// New creates a Running job with a fresh opaque id.
func New(kind Kind) *Job {
	return &Job{
		id:        uuid.New().String(),
		kind:      kind,
		status:    StatusRunning,
		startedAt: time.Now(),
	}
}

// ID returns the opaque job token handed back to the caller at submission.
func (j *Job) ID() string { return j.id }

// DirScanned implements search.ProgressSink.
func (j *Job) DirScanned() { j.dirsScanned.Add(1) }

// FilesMatched implements search.ProgressSink.
func (j *Job) FilesMatched(n int) { j.filesMatched.Add(int64(n)) }

// FileProcessed implements content.ProgressSink.
func (j *Job) FileProcessed() { j.filesProcessed.Add(1) }

// SetTotal records the size of a content-search work list, for progress
// percentage rendering by callers.
func (j *Job) SetTotal(n int) { j.filesTotal.Store(int64(n)) }

// Cancel requests cooperative cancellation. It is advisory: the worker
// observes the flag at its next check point and then marks the job
// Cancelled.
func (j *Job) Cancel() { j.cancelled.Store(true) }

// Cancelled implements the cancellation side of the progress sinks.
func (j *Job) Cancelled() bool { return j.cancelled.Load() }

// finish moves the job into a terminal state exactly once, applying the
// result mutation under the same lock so a poller can never observe a
// terminal status without its results (or vice versa). A second transition
// attempt is ignored, preserving monotonicity.
func (j *Job) finish(status Status, apply func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRunning {
		return
	}
	if apply != nil {
		apply()
	}
	j.status = status
	j.finishedAt = time.Now()
}

// CompleteFiles finishes a filename job with its result set and any
// recoverable issues collected along the way.
func (j *Job) CompleteFiles(records []search.FileRecord, issues []search.Issue) {
	j.finish(StatusCompleted, func() {
		j.records = records
		j.issues = issues
	})
}

// CompleteContent finishes a content job with its matches and per-file
// issues.
func (j *Job) CompleteContent(matches []search.ContentMatch, issues []search.Issue) {
	j.finish(StatusCompleted, func() {
		j.matches = matches
		j.issues = issues
	})
}

// MarkCancelled finishes the job as Cancelled, retaining whatever partial
// results the worker gathered before it observed the flag.
func (j *Job) MarkCancelled(records []search.FileRecord, matches []search.ContentMatch, issues []search.Issue) {
	j.finish(StatusCancelled, func() {
		j.records = records
		j.matches = matches
		j.issues = issues
	})
}

// Fail finishes the job as Failed with a human-readable error.
func (j *Job) Fail(msg string) {
	j.finish(StatusFailed, func() {
		j.errMsg = msg
	})
}

// Snapshot copies the current job state. The slices are copied so a poller
// can never mutate (or observe mutation of) in-progress state.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	snap := Snapshot{
		ID:             j.id,
		Kind:           j.kind,
		Status:         j.status,
		DirsScanned:    j.dirsScanned.Load(),
		FilesMatched:   j.filesMatched.Load(),
		FilesProcessed: j.filesProcessed.Load(),
		FilesTotal:     j.filesTotal.Load(),
		Error:          j.errMsg,
		StartedAt:      j.startedAt,
		FinishedAt:     j.finishedAt,
	}
	if len(j.records) > 0 {
		snap.Records = append([]search.FileRecord(nil), j.records...)
	}
	if len(j.matches) > 0 {
		snap.Matches = append([]search.ContentMatch(nil), j.matches...)
	}
	if len(j.issues) > 0 {
		snap.Issues = append([]search.Issue(nil), j.issues...)
	}
	return snap
}
