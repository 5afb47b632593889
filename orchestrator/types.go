// Package orchestrator wires the nine components into the public
// analysis API (§6.1): StartAnalysis, GetProgress, GetResult,
// Cancel/Pause/Resume and ListLatest.
package orchestrator

import (
	"time"

	"github.com/stockmind/orchestrator/collab"
	"github.com/stockmind/orchestrator/lifecycle"
	"github.com/stockmind/orchestrator/progress"
	"github.com/stockmind/orchestrator/routing"
)

// AnalysisConfig is the caller-supplied input to StartAnalysis.
type AnalysisConfig struct {
	StockSymbol       string
	Market            string
	AnalysisDate      string
	SelectedAgents    []string
	CollaborationMode collab.Mode
	ResearchDepth     int // 1..5
	ProviderPref      string
	BudgetCap         float64
	MaxDebateRounds   int
	RuntimeOverrides  *routing.RuntimeOverrides
}

// RunStatus mirrors CollaborationSession's status vocabulary (§3),
// applied at the AnalysisRun level.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// AnalysisRun is the top-level user-visible artifact for one analysis,
// per spec.md §3.
type AnalysisRun struct {
	AnalysisID      string         `json:"analysis_id"`
	StockSymbol     string         `json:"stock_symbol"`
	Market          string         `json:"market"`
	AnalysisDate    string         `json:"analysis_date"`
	SelectedAgents  []string       `json:"selected_agents"`
	Collaboration   collab.Mode    `json:"collaboration_mode"`
	ResearchDepth   int            `json:"research_depth"`
	ProviderPref    string         `json:"provider_pref"`
	Status          RunStatus      `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Config          AnalysisConfig `json:"config"`
	ResultsSummary  *collab.CollaborationResult `json:"results_summary,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
}

// RunSummary is the lightweight projection ListLatest returns.
type RunSummary struct {
	AnalysisID  string    `json:"analysis_id"`
	StockSymbol string    `json:"stock_symbol"`
	Status      RunStatus `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProgressSnapshot re-exports progress.Snapshot so callers of
// orchestrator don't need to import progress directly.
type ProgressSnapshot = progress.Snapshot

// RunToken re-exports lifecycle.RunToken for the same reason.
type RunToken = lifecycle.RunToken
