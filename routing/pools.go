package routing

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Pool is a named group of models sharing a flagship and a target
// audience of roles/task-types, per §4.5.2. The pool map is carried as
// data (this YAML document) rather than as Go conditionals, the same way
// catalog carries its model list as data, so adding a third pool never
// touches engine code.
type Pool struct {
	Name      string   `yaml:"name"`
	Flagship  string   `yaml:"flagship"`
	Roles     []string `yaml:"roles"`
	TaskTypes []string `yaml:"task_types"`
}

type poolDocument struct {
	Pools []Pool `yaml:"pools"`
	// Affinity is a task_type -> pool_name -> weight table; weights in a
	// row sum to 1.
	Affinity map[string]map[string]float64 `yaml:"affinity"`
}

const defaultPoolYAML = `
pools:
  - name: deep_reasoning
    flagship: claude-opus-4
    roles: [fundamental_expert, chief_decision_officer, risk_manager, policy_researcher, compliance_officer]
    task_types: [financial_report, risk_assessment, decision_making, policy_analysis, compliance_check, fundamental_analysis]
  - name: technical_longseq
    flagship: qwen-max
    roles: [technical_analyst, news_hunter, sentiment_analyst, tool_engineer]
    task_types: [technical_analysis, news_analysis, sentiment_analysis, tool_development, code_generation, backtesting]

affinity:
  financial_report:      {deep_reasoning: 1.0, technical_longseq: 0.0}
  risk_assessment:        {deep_reasoning: 0.9, technical_longseq: 0.1}
  decision_making:        {deep_reasoning: 1.0, technical_longseq: 0.0}
  policy_analysis:        {deep_reasoning: 1.0, technical_longseq: 0.0}
  compliance_check:       {deep_reasoning: 1.0, technical_longseq: 0.0}
  fundamental_analysis:   {deep_reasoning: 0.85, technical_longseq: 0.15}
  technical_analysis:     {deep_reasoning: 0.1, technical_longseq: 0.9}
  news_analysis:          {deep_reasoning: 0.1, technical_longseq: 0.9}
  sentiment_analysis:     {deep_reasoning: 0.15, technical_longseq: 0.85}
  tool_development:       {deep_reasoning: 0.0, technical_longseq: 1.0}
  code_generation:        {deep_reasoning: 0.0, technical_longseq: 1.0}
  backtesting:            {deep_reasoning: 0.2, technical_longseq: 0.8}
`

// PoolTable resolves (role, task_type, signals) to a Pool.
type PoolTable struct {
	pools    map[string]Pool
	order    []string // registration order, for deterministic iteration
	affinity map[string]map[string]float64
}

// LoadPoolTableFromYAML parses a pool document in the shape of
// defaultPoolYAML.
func LoadPoolTableFromYAML(data []byte) (*PoolTable, error) {
	var doc poolDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing pool table YAML: %w", err)
	}
	pt := &PoolTable{
		pools:    make(map[string]Pool, len(doc.Pools)),
		affinity: doc.Affinity,
	}
	for _, p := range doc.Pools {
		pt.pools[p.Name] = p
		pt.order = append(pt.order, p.Name)
	}
	return pt, nil
}

// DefaultPoolTable returns the bundled two-pool table from §4.5.2.
func DefaultPoolTable() *PoolTable {
	pt, err := LoadPoolTableFromYAML([]byte(defaultPoolYAML))
	if err != nil {
		panic(fmt.Sprintf("routing: built-in pool table failed to parse: %v", err))
	}
	return pt
}

// Affinity returns the task_type's affinity weight for poolName, or 0 if
// unknown.
func (pt *PoolTable) Affinity(taskType, poolName string) float64 {
	row, ok := pt.affinity[taskType]
	if !ok {
		return 0
	}
	return row[poolName]
}

// MatchByRole returns the first pool (in registration order) whose role
// list contains role.
func (pt *PoolTable) MatchByRole(role string) (Pool, bool) {
	for _, name := range pt.order {
		pool := pt.pools[name]
		for _, r := range pool.Roles {
			if r == role {
				return pool, true
			}
		}
	}
	return Pool{}, false
}

// MatchByTaskType returns the pool with the highest affinity weight for
// taskType, breaking ties by registration order.
func (pt *PoolTable) MatchByTaskType(taskType string) (Pool, bool) {
	row, ok := pt.affinity[taskType]
	if !ok {
		return Pool{}, false
	}
	bestName := ""
	bestWeight := -1.0
	for _, name := range pt.order {
		w := row[name]
		if w > bestWeight {
			bestWeight = w
			bestName = name
		}
	}
	if bestName == "" || bestWeight <= 0 {
		return Pool{}, false
	}
	return pt.pools[bestName], true
}

// Get returns a pool by name.
func (pt *PoolTable) Get(name string) (Pool, bool) {
	p, ok := pt.pools[name]
	return p, ok
}
