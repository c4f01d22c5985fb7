// Package health implements C5, the Health Monitor: a per-source
// {Up, Degraded, Down} state machine driven by EWMA latency, a cumulative
// error rate (failures over every message recorded since the source was
// created; it is not windowed), and a heartbeat timeout (spec.md §4.5).
//
// The state machine shape (State/Transition/StateMachine,
// transition-handler callbacks) is grounded on
// pkg/interfaces/state_machine.go, generalized from circuit-breaker states
// to source health states. Calls that would hit a Down source are gated
// through github.com/sony/gobreaker instead of the teacher's hand-rolled
// internal/architecture/circuit_breaker.go (dropped, see DESIGN.md).
package health

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/abdoElHodaky/arb-pipeline/pkg/interfaces"
)

// State is one of the three source health states.
type State int

const (
	Up State = iota
	Degraded
	Down
)

func (s State) Name() string { return s.String() }

func (s State) String() string {
	switch s {
	case Up:
		return "up"
	case Degraded:
		return "degraded"
	case Down:
		return "down"
	default:
		return "unknown"
	}
}

// Thresholds configures the state transition boundaries (spec.md §4.5).
type Thresholds struct {
	DegradedErrorRate  float64 // error rate at or above which Up -> Degraded
	DownErrorRate      float64 // error rate at or above which Degraded -> Down
	HeartbeatTimeout   time.Duration
	LatencyEWMAAlpha   float64 // smoothing factor, default 0.2
}

// DefaultThresholds matches spec.md §4.5's documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DegradedErrorRate: 0.05,
		DownErrorRate:     0.25,
		HeartbeatTimeout:  30 * time.Second,
		LatencyEWMAAlpha:  0.2,
	}
}

// Source tracks the health of one ingress source (an exchange adapter feed).
type Source struct {
	name       string
	thresholds Thresholds

	mu            sync.Mutex
	state         State
	latencyEWMAns float64
	successes     int64
	failures      int64
	lastHeartbeat time.Time

	breaker *gobreaker.CircuitBreaker

	handlers []interfaces.StateTransitionHandler
}

// NewSource constructs a Source, starting in the Up state.
func NewSource(name string, thresholds Thresholds) *Source {
	s := &Source{
		name:          name,
		thresholds:    thresholds,
		state:         Up,
		lastHeartbeat: time.Now(),
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     thresholds.HeartbeatTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return s
}

// GetCurrentState implements interfaces.StateMachine.
func (s *Source) GetCurrentState() interfaces.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CanTransition implements interfaces.StateMachine. All three states are
// mutually reachable — health degrades and recovers continuously.
func (s *Source) CanTransition(to interfaces.State) bool {
	_, ok := to.(State)
	return ok
}

// Transition implements interfaces.StateMachine, invoking any registered
// handlers after the state change commits.
func (s *Source) Transition(to interfaces.State, event string, ctx context.Context) error {
	target, ok := to.(State)
	if !ok {
		return nil
	}
	s.mu.Lock()
	from := s.state
	s.state = target
	handlers := append([]interfaces.StateTransitionHandler(nil), s.handlers...)
	s.mu.Unlock()

	if from == target {
		return nil
	}
	t := interfaces.Transition{From: from, To: target, Event: event, Context: ctx}
	for _, h := range handlers {
		if err := h(t); err != nil {
			return err
		}
	}
	return nil
}

// GetValidTransitions implements interfaces.StateMachine.
func (s *Source) GetValidTransitions() []interfaces.State {
	return []interfaces.State{Up, Degraded, Down}
}

// AddTransitionHandler implements interfaces.StateMachine.
func (s *Source) AddTransitionHandler(h interfaces.StateTransitionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// RemoveTransitionHandler implements interfaces.StateMachine as a no-op:
// registered handlers are never removed.
func (s *Source) RemoveTransitionHandler(h interfaces.StateTransitionHandler) {
	// function values are not comparable in Go; callers that need removal
	// should track their own handler lifetime instead. No-op here, matching
	// the narrow usage this repo actually needs.
}

// RecordLatency updates the EWMA latency estimate and refreshes the
// heartbeat. Call this on every successful message from the source.
func (s *Source) RecordLatency(ctx context.Context, latencyNs float64) {
	s.mu.Lock()
	if s.latencyEWMAns == 0 {
		s.latencyEWMAns = latencyNs
	} else {
		a := s.thresholds.LatencyEWMAAlpha
		s.latencyEWMAns = a*latencyNs + (1-a)*s.latencyEWMAns
	}
	s.successes++
	s.lastHeartbeat = time.Now()
	s.mu.Unlock()

	s.reevaluate(ctx)
}

// RecordError records a failed message and re-evaluates health state.
func (s *Source) RecordError(ctx context.Context) {
	s.mu.Lock()
	s.failures++
	s.mu.Unlock()
	s.reevaluate(ctx)
}

func (s *Source) errorRate() float64 {
	total := s.successes + s.failures
	if total == 0 {
		return 0
	}
	return float64(s.failures) / float64(total)
}

func (s *Source) reevaluate(ctx context.Context) {
	s.mu.Lock()
	rate := s.errorRate()
	heartbeatStale := time.Since(s.lastHeartbeat) > s.thresholds.HeartbeatTimeout
	s.mu.Unlock()

	var target State
	switch {
	case heartbeatStale || rate >= s.thresholds.DownErrorRate:
		target = Down
	case rate >= s.thresholds.DegradedErrorRate:
		target = Degraded
	default:
		target = Up
	}
	_ = s.Transition(target, "reevaluate", ctx)
}

// LatencyEWMANs returns the current smoothed latency estimate.
func (s *Source) LatencyEWMANs() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latencyEWMAns
}

// ErrorRate exposes the cumulative error rate used internally by reevaluate,
// for callers (the orchestrator's market-state inputs) that need a raw
// read rather than a state transition.
func (s *Source) ErrorRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorRate()
}

// Gate wraps fn so it only executes when the breaker is closed, i.e. the
// source has not tripped on consecutive recent failures.
func (s *Source) Gate(fn func() (interface{}, error)) (interface{}, error) {
	return s.breaker.Execute(fn)
}

// Monitor owns a registry of per-source Source trackers.
type Monitor struct {
	mu      sync.RWMutex
	sources map[string]*Source
	thresholds Thresholds
}

// NewMonitor constructs an empty Monitor using the given thresholds for any
// source it creates on first use.
func NewMonitor(thresholds Thresholds) *Monitor {
	return &Monitor{sources: make(map[string]*Source), thresholds: thresholds}
}

// Source returns the tracker for name, creating one in the Up state on
// first access.
func (m *Monitor) Source(name string) *Source {
	m.mu.RLock()
	s, ok := m.sources[name]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sources[name]; ok {
		return s
	}
	s = NewSource(name, m.thresholds)
	m.sources[name] = s
	return s
}

// Snapshot reports the current state of every known source.
func (m *Monitor) Snapshot() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.sources))
	for name, s := range m.sources {
		out[name] = s.GetCurrentState().(State)
	}
	return out
}

// AggregateLatencyMs averages the EWMA latency across every known source,
// in milliseconds. Used as the api_latency_ms market-state input (spec.md
// §4.10) when no single source is the obvious proxy for "the API".
func (m *Monitor) AggregateLatencyMs() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.sources) == 0 {
		return 0
	}
	var sum float64
	for _, s := range m.sources {
		sum += s.LatencyEWMANs() / 1e6
	}
	return sum / float64(len(m.sources))
}

// AggregateErrorRate averages the cumulative error rate across every known
// source. The orchestrator passes it as marketstate.Inputs.APIErrorRate;
// Judge.Score does not use that field.
func (m *Monitor) AggregateErrorRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.sources) == 0 {
		return 0
	}
	var sum float64
	for _, s := range m.sources {
		sum += s.ErrorRate()
	}
	return sum / float64(len(m.sources))
}
