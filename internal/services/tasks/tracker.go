package tasks

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"hydrocalc/internal/models"
)

// Run is a tracked poller. It is busy until its poller returns.
type Run struct {
	Handle   Handle
	Variant  Variant
	Progress *ProgressLog

	mu         sync.RWMutex
	outcome    Outcome
	err        error
	finishedAt time.Time
	finished   bool
	consumed   bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// RunSnapshot is a point-in-time copy of a Run for API responses
type RunSnapshot struct {
	TaskID     string          `json:"task_id"`
	Variant    string          `json:"variant"`
	Busy       bool            `json:"busy"`
	Status     Status          `json:"status"`
	Progress   []ProgressEntry `json:"progress"`
	Lines      []string        `json:"lines"`
	Outcome    *Outcome        `json:"outcome,omitempty"`
	Error      string          `json:"error,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Done is closed when the poller has returned
func (r *Run) Done() <-chan struct{} { return r.done }

func (r *Run) Busy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.finished
}

// Result returns the outcome once the run has finished
func (r *Run) Result() (Outcome, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.outcome, r.finished, r.err
}

func (r *Run) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := RunSnapshot{
		TaskID:   r.Handle.ID,
		Variant:  r.Variant.String(),
		Busy:     !r.finished,
		Status:   StatusPending,
		Progress: r.Progress.Entries(),
		Lines:    r.Progress.Lines(),
	}
	if r.finished {
		outcome := r.outcome
		snap.Outcome = &outcome
		if outcome.Status != "" {
			snap.Status = outcome.Status
		}
		if r.err != nil {
			snap.Error = r.err.Error()
		}
		finishedAt := r.finishedAt
		snap.FinishedAt = &finishedAt
	}
	return snap
}

func (r *Run) finish(outcome Outcome, err error) {
	r.mu.Lock()
	r.outcome = outcome
	r.err = err
	r.finished = true
	r.finishedAt = time.Now()
	r.Handle.Status = outcome.Status
	r.mu.Unlock()
	close(r.done)
}

// Tracker owns every in-flight poller of the process, keyed by task id.
// Concurrent tasks are not limited.
type Tracker struct {
	mu   sync.RWMutex
	runs map[string]*Run
	wg   sync.WaitGroup
}

func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string]*Run)}
}

// Track starts p for h in its own goroutine. The run is detached from the
// caller's request; stop it with Cancel or Shutdown.
func Track[T any](t *Tracker, p *Poller[T], h Handle) (*Run, error) {
	ctx, cancel := context.WithCancel(context.Background())
	run := &Run{
		Handle:   h,
		Variant:  p.Variant(),
		Progress: p.Progress(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	t.mu.Lock()
	if existing, ok := t.runs[h.ID]; ok && existing.Busy() {
		t.mu.Unlock()
		cancel()
		return nil, models.NewValidationError("task_id", "task %s is already being polled", h.ID)
	}
	t.runs[h.ID] = run
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer cancel()
		outcome, err := p.Run(ctx, h)
		run.finish(outcome, err)
		log.Printf("[%s] %s poller finished: status=%s polls=%d", h.ID, run.Variant, outcome.Status, outcome.Polls)
	}()

	return run, nil
}

// Get returns the run for taskID
func (t *Tracker) Get(taskID string) (*Run, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[taskID]
	return run, ok
}

// Cancel stops the poller of taskID at its next iteration
func (t *Tracker) Cancel(taskID string) error {
	run, ok := t.Get(taskID)
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	run.cancel()
	return nil
}

// Consume marks a finished run as delivered to its caller so the next Sweep
// can drop it. It reports whether the run had finished.
func (t *Tracker) Consume(taskID string) bool {
	run, ok := t.Get(taskID)
	if !ok {
		return false
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	if !run.finished {
		return false
	}
	run.consumed = true
	return true
}

// Sweep removes finished runs that were consumed, and finished runs nobody
// collected within retention. It returns the number of removed runs.
func (t *Tracker) Sweep(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, run := range t.runs {
		run.mu.RLock()
		drop := run.finished && (run.consumed || run.finishedAt.Before(cutoff))
		run.mu.RUnlock()
		if drop {
			delete(t.runs, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked runs
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.runs)
}

// Shutdown cancels every poller and waits for them to return or ctx to end
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.RLock()
	for _, run := range t.runs {
		run.cancel()
	}
	t.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
