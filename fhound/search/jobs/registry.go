package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/assert-lib"
)

// ErrJobNotFound is returned when a job id is unknown or already evicted.
// It is deliberately distinct from a Running snapshot so callers can tell
// "gone" apart from "still working".
var ErrJobNotFound = errors.New("job not found")

// Registry is the in-memory index of in-flight and recently finished search
// jobs. Jobs are ephemeral: nothing survives a process restart, and terminal
// jobs are evicted after a retention window to bound memory.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	retention time.Duration

	AssertHandler *assert.AssertHandler
}

// NewRegistry creates a registry that retains terminal jobs for the given
// window before the janitor evicts them.
func NewRegistry(retention time.Duration, assertHandler *assert.AssertHandler) *Registry {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	return &Registry{
		jobs:          make(map[string]*Job),
		retention:     retention,
		AssertHandler: assertHandler,
	}
}

// Register stores the job and returns its opaque id.
func (r *Registry) Register(j *Job) string {
	r.mu.Lock()
	r.jobs[j.ID()] = j
	r.mu.Unlock()
	return j.ID()
}

// Status returns an immutable snapshot of the job, or ErrJobNotFound.
func (r *Registry) Status(id string) (Snapshot, error) {
	r.mu.RLock()
	j, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrJobNotFound
	}
	return j.Snapshot(), nil
}

// Cancel sets the job's cancellation flag. The request is advisory; the
// caller polls Status to observe the eventual Cancelled state.
func (r *Registry) Cancel(id string) error {
	r.mu.RLock()
	j, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return ErrJobNotFound
	}
	j.Cancel()
	return nil
}

// Evict removes a job immediately, regardless of state. Used when a caller
// acknowledges it has consumed the results.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// Sweep evicts terminal jobs whose retention window has elapsed and returns
// how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, j := range r.jobs {
		snap := j.Snapshot()
		if snap.Terminal() && now.Sub(snap.FinishedAt) > r.retention {
			delete(r.jobs, id)
			evicted++
		}
	}
	return evicted
}

// Len reports how many jobs the registry currently holds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// StartJanitor launches the background sweep loop. It stops when ctx is
// cancelled.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := r.Sweep(now); n > 0 {
					slog.Debug("Evicted finished search jobs", "count", n)
				}
			}
		}
	}()
}
