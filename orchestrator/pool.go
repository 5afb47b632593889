package orchestrator

import (
	"context"
	"sync/atomic"

	"github.com/stockmind/orchestrator/core"
)

// workerPool is the bounded pool that admits analysis runs (§5):
// StartAnalysis acquires a slot and the run releases it when it ends. It
// does not bound manager's adapter calls or collab's parallel fan-out. It
// is a buffered-channel semaphore with a backpressure queue: once the
// queue itself is full, acquire fails fast with core.ErrKindSystemOverload
// rather than blocking indefinitely, grounded on the teacher's
// TaskWorkerPool active-count bookkeeping (orchestration/task_worker.go).
type workerPool struct {
	slots       chan struct{}
	queued      atomic.Int32
	maxQueueLen int32
}

func newWorkerPool(maxConcurrentTasks, maxQueueLen int) *workerPool {
	if maxConcurrentTasks < 1 {
		maxConcurrentTasks = 5
	}
	if maxQueueLen < 1 {
		maxQueueLen = maxConcurrentTasks * 4
	}
	return &workerPool{
		slots:       make(chan struct{}, maxConcurrentTasks),
		maxQueueLen: int32(maxQueueLen),
	}
}

// acquire blocks until a worker slot is free or ctx is cancelled. It
// fails immediately with a KindError of kind ErrKindSystemOverload if the
// backpressure queue is already at capacity.
func (p *workerPool) acquire(ctx context.Context) error {
	if p.queued.Load() >= p.maxQueueLen {
		return core.NewKindError(core.ErrKindSystemOverload, "worker pool queue is full", nil)
	}
	p.queued.Add(1)
	defer p.queued.Add(-1)

	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *workerPool) release() {
	select {
	case <-p.slots:
	default:
	}
}
