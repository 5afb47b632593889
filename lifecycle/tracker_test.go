package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockmind/orchestrator/progress"
	"github.com/stockmind/orchestrator/store"
)

type fakeHandle struct{ alive bool }

func (f *fakeHandle) Alive() bool { return f.alive }

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	return fs
}

func TestIsAliveAutoUnregistersDeadHandle(t *testing.T) {
	tr := New(newTestStore(t))
	handle := &fakeHandle{alive: true}
	tr.Register(context.Background(), "run1", handle)

	assert.True(t, tr.IsAlive("run1"))
	handle.alive = false
	assert.False(t, tr.IsAlive("run1"))
	assert.False(t, tr.IsAlive("run1")) // already unregistered, still false
}

func TestStatusRunningWhileAlive(t *testing.T) {
	tr := New(newTestStore(t))
	tr.Register(context.Background(), "run2", &fakeHandle{alive: true})
	assert.Equal(t, StatusRunning, tr.Status(context.Background(), "run2"))
}

func TestStatusConsultsProgressWhenHandleGone(t *testing.T) {
	st := newTestStore(t)
	tr := New(st)
	tr.Register(context.Background(), "run3", &fakeHandle{alive: false})

	reg := progress.NewRegistry()
	p := progress.New(st, reg, "run3", []string{"fundamental_expert"}, 1, 1.0, 1.0)
	p.MarkCompleted(context.Background(), "done", nil)

	assert.Equal(t, StatusCompleted, tr.Status(context.Background(), "run3"))
}

func TestStatusNotFoundWhenNeverRegistered(t *testing.T) {
	tr := New(newTestStore(t))
	assert.Equal(t, StatusNotFound, tr.Status(context.Background(), "ghost"))
}

func TestCancelMarksStatusCancelled(t *testing.T) {
	tr := New(newTestStore(t))
	token := tr.Register(context.Background(), "run4", &fakeHandle{alive: true})
	tr.Cancel("run4")

	assert.Equal(t, StatusCancelled, tr.Status(context.Background(), "run4"))
	assert.True(t, token.Cancelled())
}

func TestPauseGatesWithoutAbortingInFlight(t *testing.T) {
	tr := New(newTestStore(t))
	token := tr.Register(context.Background(), "run5", &fakeHandle{alive: true})

	tr.Pause("run5")
	assert.True(t, token.IsPaused())
	assert.False(t, token.Cancelled())

	done := make(chan error, 1)
	go func() { done <- token.WaitIfPaused() }()

	tr.Resume("run5")
	err := <-done
	assert.NoError(t, err)
	assert.False(t, token.IsPaused())
}

func TestLatestAnalysisIDReturnsMostRecentlyUpdated(t *testing.T) {
	st := newTestStore(t)
	tr := New(st)
	reg := progress.NewRegistry()

	p1 := progress.New(st, reg, "older", []string{"fundamental_expert"}, 1, 1.0, 1.0)
	p1.MarkCompleted(context.Background(), "done", nil)

	p2 := progress.New(st, reg, "newer", []string{"fundamental_expert"}, 1, 1.0, 1.0)
	p2.MarkCompleted(context.Background(), "done", nil)

	latest := tr.LatestAnalysisID(context.Background())
	assert.Equal(t, "newer", latest)
}
