package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildStagesWeightsSumToOne(t *testing.T) {
	for depth := 1; depth <= 3; depth++ {
		stages := BuildStages([]string{"fundamental_expert", "technical_analyst", "risk_manager"}, depth)
		var total float64
		for _, s := range stages {
			total += s.Weight
		}
		assert.InDelta(t, 1.0, total, 0.0001, "depth=%d", depth)
	}
}

func TestBuildStagesDepthVariesStageCount(t *testing.T) {
	shallow := BuildStages([]string{"fundamental_expert"}, 1)
	deep := BuildStages([]string{"fundamental_expert"}, 3)
	assert.Less(t, len(shallow), len(deep))
}

// TestBuildStagesDepth1SingleAgentStageCount pins the stage count the
// weight table produces at depth 1: 5 prep + 1 analyst +
// 1 investment_advice + 1 risk_notice + 1 report_assembly = 9. This
// includes risk_notice, which the weight table requires below depth 3.
func TestBuildStagesDepth1SingleAgentStageCount(t *testing.T) {
	stages := BuildStages([]string{"technical_analyst"}, 1)
	assert.Len(t, stages, 9)
}

func TestDetectStepMapsBullKeywordToBullView(t *testing.T) {
	stages := BuildStages([]string{"fundamental_expert", "technical_analyst"}, 2)
	step, ok := detectStep(stages, "bull view in progress")
	assert.True(t, ok)
	assert.Equal(t, indexOf(stages, "bull_view"), step)
}

func TestDetectStepUnknownMessageReturnsFalse(t *testing.T) {
	stages := BuildStages([]string{"fundamental_expert"}, 1)
	_, ok := detectStep(stages, "completely unrelated text")
	assert.False(t, ok)
}
