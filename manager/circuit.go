package manager

import (
	"sync"
	"time"
)

// circuitWindowSeconds and circuitFailureThreshold implement §4.6's
// "sliding window of N=5 failures in 60s" default.
const (
	circuitWindowSeconds     = 60
	circuitFailureThreshold  = 5
)

// sessionCircuits tracks, per session, which models have tripped their
// circuit breaker for the remainder of that session. Scoped per session
// rather than globally: a model failing hard for one analysis run must
// not silently blacklist it for every other concurrent run.
type sessionCircuits struct {
	mu    sync.Mutex
	state map[string]map[string]*modelCircuit // session_id -> model_name -> circuit
}

type modelCircuit struct {
	failureTimestamps []time.Time
	tripped           bool
}

func newSessionCircuits() *sessionCircuits {
	return &sessionCircuits{state: make(map[string]map[string]*modelCircuit)}
}

// recordFailure registers a failed call against (sessionID, model) and
// trips the circuit once circuitFailureThreshold failures land inside
// the window.
func (s *sessionCircuits) recordFailure(sessionID, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	models, ok := s.state[sessionID]
	if !ok {
		models = make(map[string]*modelCircuit)
		s.state[sessionID] = models
	}
	c, ok := models[model]
	if !ok {
		c = &modelCircuit{}
		models[model] = c
	}

	now := time.Now()
	cutoff := now.Add(-circuitWindowSeconds * time.Second)
	kept := c.failureTimestamps[:0]
	for _, ts := range c.failureTimestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	c.failureTimestamps = kept

	if len(c.failureTimestamps) >= circuitFailureThreshold {
		c.tripped = true
	}
}

// recordSuccess clears a model's failure history for the session: a
// success means the backend recovered, so the breaker should re-arm
// rather than stay permanently primed from old failures.
func (s *sessionCircuits) recordSuccess(sessionID, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if models, ok := s.state[sessionID]; ok {
		delete(models, model)
	}
}

// isTripped reports whether model is currently excluded from the
// candidate set for sessionID.
func (s *sessionCircuits) isTripped(sessionID, model string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	models, ok := s.state[sessionID]
	if !ok {
		return false
	}
	c, ok := models[model]
	return ok && c.tripped
}

// statuses returns a CircuitStatus for every model with recorded history
// in sessionID.
func (s *sessionCircuits) statuses(sessionID string) []CircuitStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	models, ok := s.state[sessionID]
	if !ok {
		return nil
	}
	out := make([]CircuitStatus, 0, len(models))
	for name, c := range models {
		var windowStart int64
		if len(c.failureTimestamps) > 0 {
			windowStart = c.failureTimestamps[0].Unix()
		}
		out = append(out, CircuitStatus{
			SessionID:    sessionID,
			ModelName:    name,
			FailureCount: len(c.failureTimestamps),
			Tripped:      c.tripped,
			WindowStart:  windowStart,
		})
	}
	return out
}

// endSession discards all circuit state for a completed session.
func (s *sessionCircuits) endSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, sessionID)
}
