// Package collab implements the collaboration coordinator (component C7):
// runs a team of agents under sequential, parallel or debate protocols and
// synthesizes a final answer.
package collab

import (
	"sort"
	"sync"

	"github.com/stockmind/orchestrator/providers"
)

// AgentRole is the declarative description of a participating agent,
// per spec.md's AgentRole: a key, a default task type and a priority
// used to pick the core team for the simplified collaboration fallback.
type AgentRole struct {
	Key          string
	DisplayName  string
	TaskType     string
	Complexity   providers.Complexity
	Priority     int // lower is higher priority
	PromptFraming string
}

var (
	roleMu    sync.RWMutex
	roleTable = map[string]AgentRole{}
)

func init() {
	for _, r := range defaultRoles {
		roleTable[r.Key] = r
	}
}

// defaultRoles is the fixed taxonomy named in SPEC_FULL.md §3.8. The
// "core three" financial-analysis roles come first and support roles
// after. chief_decision_officer is listed last with Priority 0; CoreTeam
// excludes it by key, since it is always the synthesis call, not a
// participant.
var defaultRoles = []AgentRole{
	{Key: "fundamental_expert", DisplayName: "Fundamental Analyst", TaskType: "fundamental_analysis", Complexity: providers.ComplexityHigh, Priority: 1, PromptFraming: "Assess the fundamentals (earnings, balance sheet, valuation) of"},
	{Key: "technical_analyst", DisplayName: "Technical Analyst", TaskType: "technical_analysis", Complexity: providers.ComplexityMedium, Priority: 2, PromptFraming: "Assess the technical price action and momentum of"},
	{Key: "risk_manager", DisplayName: "Risk Manager", TaskType: "risk_assessment", Complexity: providers.ComplexityHigh, Priority: 3, PromptFraming: "Assess downside risk and position sizing for"},
	{Key: "news_hunter", DisplayName: "News Analyst", TaskType: "news_analysis", Complexity: providers.ComplexityMedium, Priority: 4, PromptFraming: "Summarize the market-moving news relevant to"},
	{Key: "sentiment_analyst", DisplayName: "Sentiment Analyst", TaskType: "sentiment_analysis", Complexity: providers.ComplexityLow, Priority: 5, PromptFraming: "Assess market and social sentiment around"},
	{Key: "policy_researcher", DisplayName: "Policy Researcher", TaskType: "policy_analysis", Complexity: providers.ComplexityHigh, Priority: 6, PromptFraming: "Assess regulatory and macro policy exposure for"},
	{Key: "compliance_officer", DisplayName: "Compliance Officer", TaskType: "compliance_review", Complexity: providers.ComplexityMedium, Priority: 7, PromptFraming: "Review compliance and disclosure considerations for"},
	{Key: "tool_engineer", DisplayName: "Tool Engineer", TaskType: "data_engineering", Complexity: providers.ComplexityLow, Priority: 8, PromptFraming: "Assemble supporting data and computed metrics for"},
	{Key: "chief_decision_officer", DisplayName: "Chief Decision Officer", TaskType: "decision_making", Complexity: providers.ComplexityHigh, Priority: 0, PromptFraming: "Synthesize a final investment decision for"},
}

// RegisterRole adds or replaces a role in the shared registry. Mirrors
// the teacher's dynamic agent-catalog registration, generalized to a
// statically declared analyst taxonomy.
func RegisterRole(role AgentRole) {
	roleMu.Lock()
	defer roleMu.Unlock()
	roleTable[role.Key] = role
}

// GetRole looks up a role by key, falling back to a generic analyst role
// so an unrecognized participant key degrades gracefully instead of
// panicking mid-collaboration.
func GetRole(key string) AgentRole {
	roleMu.RLock()
	defer roleMu.RUnlock()
	if r, ok := roleTable[key]; ok {
		return r
	}
	return AgentRole{Key: key, DisplayName: key, TaskType: "general_analysis", Complexity: providers.ComplexityMedium, Priority: 99, PromptFraming: "Provide analysis for"}
}

// CoreTeam returns up to n roles ordered by ascending priority, excluding
// chief_decision_officer which is never a collaboration participant.
func CoreTeam(n int) []AgentRole {
	roleMu.RLock()
	all := make([]AgentRole, 0, len(roleTable))
	for _, r := range roleTable {
		if r.Key == "chief_decision_officer" {
			continue
		}
		all = append(all, r)
	}
	roleMu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Priority < all[j].Priority })
	if len(all) > n {
		all = all[:n]
	}
	return all
}
