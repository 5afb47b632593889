package collab

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stockmind/orchestrator/core"
	"github.com/stockmind/orchestrator/manager"
	"github.com/stockmind/orchestrator/providers"
	"github.com/stockmind/orchestrator/telemetry"
)

const (
	defaultMaxRounds           = 3
	simplifiedCoreTeamSize     = 3
	simplifiedTaskCeiling      = 30 * time.Second
)

// Coordinator runs a team of agents under sequential, parallel or debate
// protocols and synthesizes a final answer via the chief_decision_officer
// role.
type Coordinator struct {
	manager            *manager.Manager
	maxConcurrentTasks int
	logger             core.Logger
	telemetry          core.Telemetry
}

// New wires a Coordinator to the multi-model manager it delegates
// individual agent tasks to. maxConcurrentTasks bounds parallel-mode
// fan-out, mirroring §5's shared worker pool.
func New(mgr *manager.Manager, maxConcurrentTasks int) *Coordinator {
	if maxConcurrentTasks < 1 {
		maxConcurrentTasks = 10
	}
	return &Coordinator{manager: mgr, maxConcurrentTasks: maxConcurrentTasks, logger: &core.NoOpLogger{}, telemetry: &core.NoOpTelemetry{}}
}

// SetLogger configures the coordinator's logger, tagged "orchestrator/collab".
func (c *Coordinator) SetLogger(logger core.Logger) {
	if logger == nil {
		c.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		c.logger = cal.WithComponent("orchestrator/collab")
	} else {
		c.logger = logger
	}
}

// SetTelemetry configures the coordinator's span/metric emitter for
// round execution (sequential stages, parallel fan-out, debate rounds).
func (c *Coordinator) SetTelemetry(t core.Telemetry) {
	if t == nil {
		t = &core.NoOpTelemetry{}
	}
	c.telemetry = t
}

// Execute runs req's configured mode and falls back to a simplified
// collaboration on internal failure, per §4.7's error-handling clause.
func (c *Coordinator) Execute(ctx context.Context, req Request) CollaborationResult {
	if req.MaxRounds <= 0 {
		req.MaxRounds = defaultMaxRounds
	}

	startTime := time.Now()
	ctx, span := c.telemetry.StartSpan(ctx, "collab.execute")
	span.SetAttribute("collab.mode", string(req.Mode))
	span.SetAttribute("collab.participants", len(req.Participants))
	defer span.End()

	result, err := c.execute(ctx, req)
	if err == nil {
		telemetry.Histogram("collab.execute.duration_ms", float64(time.Since(startTime).Milliseconds()), "mode", string(req.Mode), "outcome", "direct")
		telemetry.Counter("collab.execute.total", "mode", string(req.Mode), "outcome", "direct")
		span.SetAttribute("collab.outcome", "direct")
		return result
	}

	span.RecordError(err)
	c.logger.Warn("collaboration failed, attempting simplified fallback", map[string]interface{}{"error": err.Error()})
	telemetry.Counter("collab.execute.total", "mode", string(req.Mode), "outcome", "simplified_fallback")
	simplified, simplifiedErr := c.simplifiedFallback(ctx, req)
	if simplifiedErr == nil {
		telemetry.Histogram("collab.execute.duration_ms", float64(time.Since(startTime).Milliseconds()), "mode", string(req.Mode), "outcome", "simplified_fallback")
		span.SetAttribute("collab.outcome", "simplified_fallback")
		return simplified
	}

	telemetry.Counter("collab.execute.total", "mode", string(req.Mode), "outcome", "failed")
	span.SetAttribute("collab.outcome", "failed")
	span.RecordError(simplifiedErr)
	return CollaborationResult{
		Success:      false,
		Mode:         req.Mode,
		ErrorMessage: "collaborative analysis could not be completed: " + simplifiedErr.Error(),
	}
}

func (c *Coordinator) execute(ctx context.Context, req Request) (CollaborationResult, error) {
	switch req.Mode {
	case ModeSequential:
		return c.runSequential(ctx, req)
	case ModeParallel:
		return c.runParallel(ctx, req)
	case ModeDebate:
		return c.runDebate(ctx, req)
	default:
		return c.runSequential(ctx, req)
	}
}

// runSequential implements §4.7's sequential mode: stage 1 uses the raw
// description, stage i>0 concatenates the previous stage's result with
// the original description and the role's framing.
func (c *Coordinator) runSequential(ctx context.Context, req Request) (CollaborationResult, error) {
	var individual []IndividualResult
	var totalCost float64
	var totalTime int64
	allSucceeded := true
	previous := ""

	for i, key := range req.Participants {
		role := GetRole(key)
		prompt := req.Description
		if i > 0 {
			prompt = fmt.Sprintf("%s\n\nOriginal question: %s\n\n%s this: %s", previous, req.Description, role.PromptFraming, req.Description)
		}

		ir := c.runOne(ctx, role, prompt, req.SessionID, req.BudgetCap)
		individual = append(individual, ir)
		totalCost += ir.Cost
		totalTime += ir.ExecutionTimeMs
		if !ir.Success {
			allSucceeded = false
		}
		previous = ir.Text
	}

	return c.synthesize(ctx, req, individual, totalCost, totalTime, allSucceeded, nil)
}

// runParallel dispatches every participant concurrently, bounded by
// maxConcurrentTasks, with total time taken as the max over individual
// times per §4.7.
func (c *Coordinator) runParallel(ctx context.Context, req Request) (CollaborationResult, error) {
	n := len(req.Participants)
	individual := make([]IndividualResult, n)
	sem := make(chan struct{}, c.maxConcurrentTasks)
	var wg sync.WaitGroup

	for i, key := range req.Participants {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			role := GetRole(key)
			prompt := fmt.Sprintf("%s this: %s", role.PromptFraming, req.Description)
			individual[i] = c.runOne(ctx, role, prompt, req.SessionID, req.BudgetCap)
		}(i, key)
	}
	wg.Wait()

	var totalCost float64
	var maxTime int64
	allSucceeded := true
	for _, ir := range individual {
		totalCost += ir.Cost
		if ir.ExecutionTimeMs > maxTime {
			maxTime = ir.ExecutionTimeMs
		}
		if !ir.Success {
			allSucceeded = false
		}
	}

	return c.synthesize(ctx, req, individual, totalCost, maxTime, allSucceeded, nil)
}

// runDebate implements §4.7's debate mode: round 1 is initial positions,
// rounds 2..max_rounds are rebuttals seeing the other participants'
// latest positions. Each round is a barrier: round k+1 only starts once
// every participant's round-k utterance is recorded.
func (c *Coordinator) runDebate(ctx context.Context, req Request) (CollaborationResult, error) {
	if len(req.Participants) < 2 {
		return CollaborationResult{}, fmt.Errorf("validation_error: debate requires >= 2 participants")
	}

	// debateNeutralPosition stands in for a participant whose turn failed,
	// both in the round's history entry and in the next round's prompts.
	const debateNeutralPosition = "(no position this round: participant unavailable)"

	latest := make(map[string]string, len(req.Participants))
	var history []DebateEntry
	var individual []IndividualResult
	var totalCost float64
	var totalTime int64
	allSucceeded := true

	for round := 1; round <= req.MaxRounds; round++ {
		roundStart := time.Now()
		_, roundSpan := c.telemetry.StartSpan(ctx, "collab.debate_round")
		roundSpan.SetAttribute("collab.round", round)

		roundPositions := make(map[string]string, len(req.Participants))
		roundSucceeded := true
		for _, key := range req.Participants {
			role := GetRole(key)
			prompt := debatePrompt(round, role, req.Description, key, latest)

			ir := c.runOne(ctx, role, prompt, req.SessionID, req.BudgetCap)
			individual = append(individual, ir)
			totalCost += ir.Cost
			totalTime += ir.ExecutionTimeMs
			position := ir.Text
			if !ir.Success {
				allSucceeded = false
				roundSucceeded = false
				position = debateNeutralPosition
			}

			roundPositions[key] = position
			history = append(history, DebateEntry{Round: round, Agent: key, Position: position})
		}
		for k, v := range roundPositions {
			latest[k] = v
		}

		roundSpan.SetAttribute("collab.round_succeeded", roundSucceeded)
		roundSpan.End()
		telemetry.Histogram("collab.debate_round.duration_ms", float64(time.Since(roundStart).Milliseconds()), "round", fmt.Sprintf("%d", round))
		telemetry.Counter("collab.debate_round.total", "round", fmt.Sprintf("%d", round), "succeeded", fmt.Sprintf("%t", roundSucceeded))
	}

	metadata := map[string]interface{}{
		"debate_history": history,
		"rounds":         req.MaxRounds,
		"agents":         req.Participants,
	}
	return c.synthesize(ctx, req, individual, totalCost, totalTime, allSucceeded, metadata)
}

func debatePrompt(round int, role AgentRole, description, selfKey string, latest map[string]string) string {
	if round == 1 {
		return fmt.Sprintf("%s this: %s. State your initial position.", role.PromptFraming, description)
	}
	var others strings.Builder
	for key, position := range latest {
		if key == selfKey {
			continue
		}
		fmt.Fprintf(&others, "- %s: %s\n", GetRole(key).DisplayName, position)
	}
	return fmt.Sprintf("Original question: %s\n\nOther participants' positions:\n%s\nAs %s, respond with a rebuttal or refinement of your position.", description, others.String(), role.DisplayName)
}

// synthesize calls the chief_decision_officer role over the accumulated
// work product, per §4.7's "synthesis" step common to all three modes.
func (c *Coordinator) synthesize(ctx context.Context, req Request, individual []IndividualResult, totalCost float64, totalTime int64, allSucceeded bool, metadata map[string]interface{}) (CollaborationResult, error) {
	chief := GetRole("chief_decision_officer")

	var combined strings.Builder
	combined.WriteString("Original question: ")
	combined.WriteString(req.Description)
	combined.WriteString("\n\n")
	for _, ir := range individual {
		if !ir.Success {
			continue
		}
		fmt.Fprintf(&combined, "[%s]\n%s\n\n", ir.AgentRole, ir.Text)
	}

	synthesisResult := c.manager.ExecuteTask(ctx, chief.Key, combined.String(), chief.TaskType, providers.ComplexityHigh, manager.RequestContext{
		SessionID: req.SessionID,
		BudgetCap: req.BudgetCap,
	})

	models := make([]string, 0, len(individual)+1)
	seen := make(map[string]bool)
	for _, ir := range individual {
		if ir.ModelUsed != "" && !seen[ir.ModelUsed] {
			seen[ir.ModelUsed] = true
			models = append(models, ir.ModelUsed)
		}
	}
	if synthesisResult.ModelUsed != nil {
		models = append(models, synthesisResult.ModelUsed.Name)
	}

	totalCost += synthesisResult.ActualCost
	totalTime += synthesisResult.ExecutionTimeMs

	if !allSucceeded || !synthesisResult.Success {
		return CollaborationResult{
			Success:             false,
			Mode:                req.Mode,
			ParticipatingModels: models,
			IndividualResults:   individual,
			TotalCost:           totalCost,
			TotalTimeMs:         totalTime,
			ErrorMessage:        synthesisResult.ErrorMessage,
			Metadata:            metadata,
		}, nil
	}

	return CollaborationResult{
		FinalText:           synthesisResult.Text,
		ParticipatingModels: models,
		IndividualResults:   individual,
		Mode:                req.Mode,
		TotalCost:           totalCost,
		TotalTimeMs:         totalTime,
		Success:             true,
		Metadata:            metadata,
	}, nil
}

func (c *Coordinator) runOne(ctx context.Context, role AgentRole, prompt, sessionID string, budgetCap float64) IndividualResult {
	return c.runOneWithOptions(ctx, role, prompt, sessionID, budgetCap, false)
}

// runOneWithOptions is runOne plus control over the manager's own
// intra-task fallback chain. noFallback forces a single attempt against
// the router's chosen model, used by the simplified-collaboration path.
func (c *Coordinator) runOneWithOptions(ctx context.Context, role AgentRole, prompt, sessionID string, budgetCap float64, noFallback bool) IndividualResult {
	result := c.manager.ExecuteTask(ctx, role.Key, prompt, role.TaskType, role.Complexity, manager.RequestContext{
		SessionID:  sessionID,
		BudgetCap:  budgetCap,
		NoFallback: noFallback,
	})

	ir := IndividualResult{
		AgentRole:       role.Key,
		Text:            result.Text,
		Success:         result.Success,
		ErrorMessage:    result.ErrorMessage,
		Cost:            result.ActualCost,
		ExecutionTimeMs: result.ExecutionTimeMs,
	}
	if result.ModelUsed != nil {
		ir.ModelUsed = result.ModelUsed.Name
	}
	return ir
}

// simplifiedFallback implements §4.7's last resort: up to 3 core agents
// by priority, forced sequential, 30s per-task ceiling, single attempt
// with no intra-task fallback (RequestContext.NoFallback, which makes
// buildAttemptChain stop after the router's primary model instead of
// trying the manager's usual 3-model chain).
func (c *Coordinator) simplifiedFallback(ctx context.Context, req Request) (CollaborationResult, error) {
	coreTeam := CoreTeam(simplifiedCoreTeamSize)
	if len(coreTeam) == 0 {
		return CollaborationResult{}, fmt.Errorf("no core agents available for simplified collaboration")
	}

	var individual []IndividualResult
	var totalCost float64
	var totalTime int64
	allSucceeded := true
	previous := ""

	for i, role := range coreTeam {
		prompt := fmt.Sprintf("%s this: %s", role.PromptFraming, req.Description)
		if i > 0 {
			prompt = fmt.Sprintf("%s\n\n%s", previous, prompt)
		}

		taskCtx, cancel := context.WithTimeout(ctx, simplifiedTaskCeiling)
		ir := c.runOneWithOptions(taskCtx, role, prompt, req.SessionID, req.BudgetCap, true)
		cancel()

		individual = append(individual, ir)
		totalCost += ir.Cost
		totalTime += ir.ExecutionTimeMs
		if !ir.Success {
			allSucceeded = false
		}
		previous = ir.Text
	}

	fallbackReq := req
	fallbackReq.Mode = ModeSequential
	return c.synthesize(ctx, fallbackReq, individual, totalCost, totalTime, allSucceeded, map[string]interface{}{"simplified": true})
}
