package routing

import "sync"

// perfStat is a simple moving average over response time and success
// rate for one (model, task_type) pair, per §4.5.3.
type perfStat struct {
	AvgResponseTimeMs float64
	SuccessRate       float64
	samples           int
}

// perfTracker maintains perfStat keyed by "model|task_type".
type perfTracker struct {
	mu    sync.Mutex
	stats map[string]*perfStat
}

func newPerfTracker() *perfTracker {
	return &perfTracker{stats: make(map[string]*perfStat)}
}

func perfKey(model, taskType string) string { return model + "|" + taskType }

// update folds one execution's outcome into the moving average.
func (p *perfTracker) update(model, taskType string, success bool, elapsedMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := perfKey(model, taskType)
	stat, ok := p.stats[key]
	if !ok {
		stat = &perfStat{}
		p.stats[key] = stat
	}
	successVal := 0.0
	if success {
		successVal = 1.0
	}
	stat.samples++
	n := float64(stat.samples)
	stat.AvgResponseTimeMs = stat.AvgResponseTimeMs + (float64(elapsedMs)-stat.AvgResponseTimeMs)/n
	stat.SuccessRate = stat.SuccessRate + (successVal-stat.SuccessRate)/n
}

// get returns the current stat for (model, task_type), or (zero, false)
// if nothing has been recorded yet.
func (p *perfTracker) get(model, taskType string) (perfStat, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stat, ok := p.stats[perfKey(model, taskType)]
	if !ok {
		return perfStat{}, false
	}
	return *stat, true
}

// historicalFactor implements §4.5.3's blend: success_rate*0.6 +
// min(avg_time/10s, 1.0)*0.4, used as the performance term (weight 0.3)
// in traditional scoring. Models with no history get a neutral 0.5.
func (p *perfTracker) historicalFactor(model, taskType string) float64 {
	stat, ok := p.get(model, taskType)
	if !ok {
		return 0.5
	}
	timeFactor := stat.AvgResponseTimeMs / 10000.0
	if timeFactor > 1.0 {
		timeFactor = 1.0
	}
	return stat.SuccessRate*0.6 + timeFactor*0.4
}
