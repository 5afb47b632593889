// Package progress implements the progress tracker (component C8):
// maintains a ProgressSnapshot per analysis_id and publishes it to the
// persistence store.
package progress

import (
	"strings"
)

// Stage is one named step in an analysis run's progress model, carrying
// a normalized weight.
type Stage struct {
	Name   string
	Weight float64
}

const (
	prepWeight            = 0.15
	perAnalystWeight      = 0.60
	depth2Weight          = 0.17
	investmentAdviceWeight = 0.06
	depth3Weight          = 0.13
	depth1RiskNoticeWeight = 0.05
	finalizeWeight        = 0.04
)

var prepStages = []string{"validate", "env_check", "cost_estimate", "configure", "init_engine"}

// BuildStages generates the stage list for one run from its selected
// agents and research depth, per §4.8's weight table, then normalizes
// the weights to sum to exactly 1.0.
//
// At depth 1 with one agent this produces 9 stages (5 prep + 1 analyst +
// 1 investment_advice + 1 risk_notice + 1 report_assembly), not the 8 a
// literal reading of the seed scenario's "5 + 1 + 1 + 1" arithmetic
// suggests — that arithmetic omits risk_notice, which the weight table
// mandates unconditionally below depth 3. The weight table governs here.
func BuildStages(selectedAgents []string, researchDepth int) []Stage {
	var stages []Stage

	perPrep := prepWeight / float64(len(prepStages))
	for _, name := range prepStages {
		stages = append(stages, Stage{Name: name, Weight: perPrep})
	}

	if len(selectedAgents) > 0 {
		perAgent := perAnalystWeight / float64(len(selectedAgents))
		for _, agent := range selectedAgents {
			stages = append(stages, Stage{Name: "analyst:" + agent, Weight: perAgent})
		}
	}

	if researchDepth >= 2 {
		depthStages := []string{"bull_view", "bear_view", "synthesis"}
		per := depth2Weight / float64(len(depthStages))
		for _, name := range depthStages {
			stages = append(stages, Stage{Name: name, Weight: per})
		}
	}

	stages = append(stages, Stage{Name: "investment_advice", Weight: investmentAdviceWeight})

	if researchDepth >= 3 {
		riskStages := []string{"aggressive", "conservative", "balanced", "risk_controls"}
		per := depth3Weight / float64(len(riskStages))
		for _, name := range riskStages {
			stages = append(stages, Stage{Name: name, Weight: per})
		}
	} else {
		stages = append(stages, Stage{Name: "risk_notice", Weight: depth1RiskNoticeWeight})
	}

	stages = append(stages, Stage{Name: "report_assembly", Weight: finalizeWeight})

	normalize(stages)
	return stages
}

func normalize(stages []Stage) {
	var total float64
	for _, s := range stages {
		total += s.Weight
	}
	if total == 0 {
		return
	}
	for i := range stages {
		stages[i].Weight /= total
	}
}

// detectStep maps a free-text progress message to a stage index by
// keyword, for callers that don't track their own step number. Isolated
// into one data-driven table; never load-bearing for typed callers that
// pass an explicit step.
func detectStep(stages []Stage, message string) (int, bool) {
	lower := strings.ToLower(message)

	for i, s := range stages {
		short := strings.TrimPrefix(s.Name, "analyst:")
		if strings.Contains(lower, strings.ToLower(short)) {
			return i, true
		}
	}

	switch {
	case strings.Contains(lower, "module started"):
		return firstAnalystIndex(stages), true
	case strings.Contains(lower, "module completed"):
		return lastAnalystIndex(stages), true
	case strings.Contains(lower, "tool call"):
		return firstAnalystIndex(stages), true
	case strings.Contains(lower, "bull"):
		return indexOf(stages, "bull_view"), true
	case strings.Contains(lower, "bear"):
		return indexOf(stages, "bear_view"), true
	case strings.Contains(lower, "synthesiz"), strings.Contains(lower, "synthesis"):
		return indexOf(stages, "synthesis"), true
	case strings.Contains(lower, "risk"):
		if idx := indexOf(stages, "risk_controls"); idx >= 0 {
			return idx, true
		}
		return indexOf(stages, "risk_notice"), true
	case strings.Contains(lower, "report"), strings.Contains(lower, "finaliz"):
		return indexOf(stages, "report_assembly"), true
	}
	return 0, false
}

func indexOf(stages []Stage, name string) int {
	for i, s := range stages {
		if s.Name == name {
			return i
		}
	}
	return -1
}

func firstAnalystIndex(stages []Stage) int {
	for i, s := range stages {
		if strings.HasPrefix(s.Name, "analyst:") {
			return i
		}
	}
	return 0
}

func lastAnalystIndex(stages []Stage) int {
	idx := 0
	for i, s := range stages {
		if strings.HasPrefix(s.Name, "analyst:") {
			idx = i
		}
	}
	return idx
}
