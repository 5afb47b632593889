package progress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockmind/orchestrator/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	return fs
}

func TestUpdateNeverRegressesCurrentStep(t *testing.T) {
	reg := NewRegistry()
	tr := New(newTestStore(t), reg, "a1", []string{"fundamental_expert", "technical_analyst"}, 2, 1.0, 1.0)

	tr.Update(context.Background(), "synthesis underway", nil)
	afterForward := tr.Snapshot().CurrentStep

	tr.Update(context.Background(), "validate", nil)
	afterBackward := tr.Snapshot().CurrentStep

	assert.Equal(t, afterForward, afterBackward)
}

func TestMarkCompletedSetsFullProgressAndDeregisters(t *testing.T) {
	reg := NewRegistry()
	tr := New(newTestStore(t), reg, "a2", []string{"fundamental_expert"}, 1, 1.0, 1.0)

	tr.MarkCompleted(context.Background(), "done", map[string]string{"summary": "buy"})
	snap := tr.Snapshot()

	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100.0, snap.ProgressPercent)
	assert.Equal(t, 0.0, snap.RemainingSec)
	assert.NotEmpty(t, snap.RawResults)

	_, ok := reg.Get("a2")
	assert.False(t, ok)
}

func TestPostTerminalStreamingUpdatesAreIgnored(t *testing.T) {
	reg := NewRegistry()
	tr := New(newTestStore(t), reg, "a3", []string{"fundamental_expert"}, 1, 1.0, 1.0)

	tr.MarkFailed(context.Background(), assert.AnError)
	before := tr.Snapshot()

	tr.Update(context.Background(), "[stream] still working", nil)
	after := tr.Snapshot()

	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.CurrentStep, after.CurrentStep)
}

func TestStreamingMessagesAreThrottled(t *testing.T) {
	reg := NewRegistry()
	tr := New(newTestStore(t), reg, "a4", []string{"fundamental_expert"}, 1, 1.0, 1.0)

	tr.Update(context.Background(), "[stream] token one", nil)
	first := tr.lastStreamAt

	tr.Update(context.Background(), "[stream] token two", nil)
	second := tr.lastStreamAt

	assert.Equal(t, first, second, "second rapid streaming update should be coalesced")
}
