package collab

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockmind/orchestrator/budget"
	"github.com/stockmind/orchestrator/catalog"
	"github.com/stockmind/orchestrator/manager"
	"github.com/stockmind/orchestrator/providers/mock"
	"github.com/stockmind/orchestrator/routing"
	"github.com/stockmind/orchestrator/store"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	registry := catalog.NewRegistry()
	router := routing.NewEngine(nil)
	fs, err := store.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	mgr := manager.New(registry, router, budget.NewTracker(fs))
	mgr.RegisterAdapter(mock.New())
	return New(mgr, 4)
}

func TestExecuteSequentialSynthesizesAcrossStages(t *testing.T) {
	c := newTestCoordinator(t)
	result := c.Execute(context.Background(), Request{
		Description:  "Evaluate ACME Corp",
		Participants: []string{"fundamental_expert", "technical_analyst"},
		Mode:         ModeSequential,
		SessionID:    "collab-1",
	})
	require.True(t, result.Success)
	assert.Len(t, result.IndividualResults, 2)
	assert.NotEmpty(t, result.FinalText)
	assert.NotEmpty(t, result.ParticipatingModels)
}

func TestExecuteParallelReturnsEveryParticipantResult(t *testing.T) {
	c := newTestCoordinator(t)
	result := c.Execute(context.Background(), Request{
		Description:  "Evaluate ACME Corp",
		Participants: []string{"fundamental_expert", "technical_analyst", "risk_manager"},
		Mode:         ModeParallel,
		SessionID:    "collab-2",
	})
	require.True(t, result.Success)
	assert.Len(t, result.IndividualResults, 3)
}

func TestExecuteDebateRecordsFullHistory(t *testing.T) {
	c := newTestCoordinator(t)
	result := c.Execute(context.Background(), Request{
		Description:  "Should we add to our position?",
		Participants: []string{"fundamental_expert", "risk_manager"},
		Mode:         ModeDebate,
		SessionID:    "collab-3",
		MaxRounds:    2,
	})
	require.True(t, result.Success)
	history, ok := result.Metadata["debate_history"].([]DebateEntry)
	require.True(t, ok)
	assert.Len(t, history, 2*2) // rounds * participants
}

func TestExecuteDebateRequiresTwoParticipantsOrFallsBack(t *testing.T) {
	c := newTestCoordinator(t)
	result := c.Execute(context.Background(), Request{
		Description:  "Should we add to our position?",
		Participants: []string{"fundamental_expert"},
		Mode:         ModeDebate,
		SessionID:    "collab-4",
	})
	// debate precondition fails internally; coordinator falls back to the
	// simplified sequential path rather than surfacing the raw error.
	assert.True(t, result.Success)
	assert.Equal(t, true, result.Metadata["simplified"])
}

func TestCoreTeamOrdersByPriorityAndExcludesChief(t *testing.T) {
	team := CoreTeam(3)
	require.Len(t, team, 3)
	for _, r := range team {
		assert.NotEqual(t, "chief_decision_officer", r.Key)
	}
	assert.True(t, team[0].Priority <= team[1].Priority)
}
