package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockmind/orchestrator/store"
)

func newTestTracker(t *testing.T) *Tracker {
	fs, err := store.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	return NewTracker(fs)
}

func TestRecordAccumulatesSessionCost(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	tr.Record(ctx, UsageRecord{SessionID: "s1", EstimatedCost: 0.5, Timestamp: time.Now()})
	tr.Record(ctx, UsageRecord{SessionID: "s1", EstimatedCost: 0.25, Timestamp: time.Now()})
	tr.Record(ctx, UsageRecord{SessionID: "s2", EstimatedCost: 100, Timestamp: time.Now()})

	assert.InDelta(t, 0.75, tr.SessionCost("s1"), 1e-9)
	assert.InDelta(t, 100, tr.SessionCost("s2"), 1e-9)
}

func TestCheckBudgetExceeded(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	tr.Record(ctx, UsageRecord{SessionID: "s1", EstimatedCost: 5})

	assert.Equal(t, BudgetOK, tr.CheckBudget("s1", 10))
	assert.Equal(t, BudgetExceeded, tr.CheckBudget("s1", 4))
}

func TestCheckBudgetNoCapMeansUnlimited(t *testing.T) {
	tr := newTestTracker(t)
	assert.Equal(t, BudgetOK, tr.CheckBudget("any", 0))
}

func TestResetSessionClearsAccumulator(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	tr.Record(ctx, UsageRecord{SessionID: "s1", EstimatedCost: 5})
	tr.ResetSession("s1")
	assert.Equal(t, 0.0, tr.SessionCost("s1"))
}
