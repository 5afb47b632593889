package collab

// Mode selects the collaboration protocol for one run.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
	ModeDebate     Mode = "debate"
)

// DebateEntry is one utterance recorded during debate mode.
type DebateEntry struct {
	Round    int    `json:"round"`
	Agent    string `json:"agent"`
	Position string `json:"position"`
}

// IndividualResult captures one participant's contribution, independent
// of the mode that produced it.
type IndividualResult struct {
	AgentRole       string  `json:"agent_role"`
	Text            string  `json:"text"`
	ModelUsed       string  `json:"model_used"`
	Success         bool    `json:"success"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	Cost            float64 `json:"cost"`
	ExecutionTimeMs int64   `json:"execution_time_ms"`
}

// CollaborationResult is the outcome of one execute_collaborative_analysis
// call, per spec.md §4.7.
type CollaborationResult struct {
	FinalText           string                 `json:"final_text"`
	ParticipatingModels []string               `json:"participating_models"`
	IndividualResults   []IndividualResult     `json:"individual_results"`
	Mode                Mode                   `json:"mode"`
	TotalCost           float64                `json:"total_cost"`
	TotalTimeMs         int64                  `json:"total_time_ms"`
	Success             bool                   `json:"success"`
	ErrorMessage        string                 `json:"error_message,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
}

// Request is the input to Coordinator.Execute.
type Request struct {
	Description string
	Participants []string // AgentRole keys, ordered
	Mode         Mode
	SessionID    string
	BudgetCap    float64
	MaxRounds    int // debate only, default 3
}
