// Package lifecycle implements the session and task lifecycle tracker
// (component C9): registers spawned workers for an analysis_id, exposes
// liveness queries, and provides pause/resume/cancel semantics via a
// cooperative cancellation token.
package lifecycle

import (
	"context"
	"sync"
)

// RunToken is the cooperative cancellation handle for one analysis run.
// Pause is checked once: orchestrator.runAnalysis calls WaitIfPaused
// before the collaboration starts. manager and collab do not consult the
// token, so a pause issued later does not hold the run between fallback
// attempts, stages or rounds. Pause never aborts an in-flight adapter
// call; Cancel cancels the run's context.
type RunToken struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
}

func newRunToken(parent context.Context) *RunToken {
	ctx, cancel := context.WithCancel(parent)
	return &RunToken{ctx: ctx, cancel: cancel, resumeCh: make(chan struct{})}
}

// Context returns the run's cancellation context; adapters and the
// manager's fallback loop should select on Done() wherever they block.
func (rt *RunToken) Context() context.Context { return rt.ctx }

// Cancel aborts the run. Idempotent.
func (rt *RunToken) Cancel() { rt.cancel() }

// Cancelled reports whether the run has been cancelled.
func (rt *RunToken) Cancelled() bool {
	select {
	case <-rt.ctx.Done():
		return true
	default:
		return false
	}
}

// Pause marks the run paused. Does not abort any in-flight call; callers
// must check IsPaused at their own gate points (between stages/rounds).
func (rt *RunToken) Pause() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.paused = true
}

// Resume clears the paused flag and wakes any caller blocked in
// WaitIfPaused.
func (rt *RunToken) Resume() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.paused {
		rt.paused = false
		close(rt.resumeCh)
		rt.resumeCh = make(chan struct{})
	}
}

// IsPaused reports the current paused flag.
func (rt *RunToken) IsPaused() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.paused
}

// WaitIfPaused blocks at a gate point until the run is resumed or
// cancelled. Returns ctx.Err() if the run was cancelled while waiting.
func (rt *RunToken) WaitIfPaused() error {
	for {
		rt.mu.Lock()
		if !rt.paused {
			rt.mu.Unlock()
			return nil
		}
		waitCh := rt.resumeCh
		rt.mu.Unlock()

		select {
		case <-rt.ctx.Done():
			return rt.ctx.Err()
		case <-waitCh:
		}
	}
}
