package health

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/pkg/logger"
)

// Default breaker tuning. A plane is declared down after three
// consecutive failures and re-tested after the open timeout.
const (
	breakerFailureThreshold = 3
	breakerOpenTimeout      = 30 * time.Second
	defaultProbeTimeout     = 10 * time.Second
)

// ProbeFunc checks one plane's availability. A nil error means the
// plane is reachable.
type ProbeFunc func(ctx context.Context) error

// Monitor tracks plane availability. Each plane gets a circuit
// breaker: calls routed through Do trip the breaker on repeated
// failures, and a periodic probe loop re-tests planes so a tripped
// breaker can recover without waiting for live traffic.
type Monitor struct {
	interval time.Duration

	mu       sync.RWMutex
	probes   map[Plane]ProbeFunc
	breakers map[Plane]*gobreaker.CircuitBreaker
	up       map[Plane]bool
	since    map[Plane]time.Time
	lastErr  map[Plane]string
}

// NewMonitor creates a monitor probing at the given interval.
// All planes start healthy; the first probe pass corrects that
// within one interval if a dependency is actually down.
func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 60 * time.Second
	}

	m := &Monitor{
		interval: interval,
		probes:   make(map[Plane]ProbeFunc),
		breakers: make(map[Plane]*gobreaker.CircuitBreaker),
		up:       make(map[Plane]bool),
		since:    make(map[Plane]time.Time),
		lastErr:  make(map[Plane]string),
	}

	now := time.Now()
	for _, plane := range Planes {
		m.up[plane] = true
		m.since[plane] = now
		m.breakers[plane] = m.newBreaker(plane)
	}
	return m
}

func (m *Monitor) newBreaker(plane Plane) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(plane),
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			switch to {
			case gobreaker.StateOpen:
				m.MarkDown(plane, "circuit breaker open")
			case gobreaker.StateClosed:
				m.MarkUp(plane)
			}
			logger.Info("Circuit breaker state changed",
				zap.String("plane", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// RegisterProbe sets the probe used by the periodic loop for a plane.
// Planes without a probe keep whatever status Do and MarkUp/MarkDown
// report.
func (m *Monitor) RegisterProbe(plane Plane, probe ProbeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[plane] = probe
}

// Do routes a call through the plane's circuit breaker. When the
// breaker is open the call is rejected immediately and the plane's
// fallback applies: the caller should substitute its zero result
// (empty context, no suppressions) rather than fail the task.
func (m *Monitor) Do(plane Plane, fn func() error) error {
	m.mu.RLock()
	cb := m.breakers[plane]
	m.mu.RUnlock()
	if cb == nil {
		return fn()
	}

	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err == nil {
		m.MarkUp(plane)
	}
	return err
}

// Run probes every plane at the configured interval until the context
// is cancelled. An immediate pass runs first so startup state reflects
// reality instead of the optimistic default.
func (m *Monitor) Run(ctx context.Context) {
	m.ProbeAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProbeAll(ctx)
		}
	}
}

// ProbeAll runs every registered probe once and updates plane status.
func (m *Monitor) ProbeAll(ctx context.Context) {
	m.mu.RLock()
	probes := make(map[Plane]ProbeFunc, len(m.probes))
	for plane, probe := range m.probes {
		probes[plane] = probe
	}
	m.mu.RUnlock()

	before := m.Level()

	for plane, probe := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
		err := probe(probeCtx)
		cancel()

		if err != nil {
			m.MarkDown(plane, err.Error())
			continue
		}
		m.MarkUp(plane)
	}

	if after := m.Level(); after != before {
		logger.Warn("Fallback level changed",
			zap.String("from", string(before)),
			zap.String("to", string(after)),
		)
	}
}

// MarkUp records a plane as reachable.
func (m *Monitor) MarkUp(plane Plane) {
	m.setStatus(plane, true, "")
}

// MarkDown records a plane as unreachable with the failure reason.
func (m *Monitor) MarkDown(plane Plane, reason string) {
	m.setStatus(plane, false, reason)
}

func (m *Monitor) setStatus(plane Plane, healthy bool, reason string) {
	m.mu.Lock()
	changed := m.up[plane] != healthy
	if changed {
		m.up[plane] = healthy
		m.since[plane] = time.Now()
	}
	m.lastErr[plane] = reason
	m.mu.Unlock()

	if changed {
		if healthy {
			logger.Info("Plane recovered", zap.String("plane", string(plane)))
		} else {
			logger.Warn("Plane unavailable",
				zap.String("plane", string(plane)),
				zap.String("reason", reason),
			)
		}
	}
}

// Up reports whether a plane is currently reachable.
func (m *Monitor) Up(plane Plane) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.up[plane]
}

// Level returns the current fallback level.
func (m *Monitor) Level() FallbackLevel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return LevelFor(m.up[PlaneLLM], m.up[PlaneQueue], m.up[PlaneStore])
}

// PlaneStatus is the externally visible state of one plane.
type PlaneStatus struct {
	Up    bool      `json:"up"`
	Since time.Time `json:"since"`
	Error string    `json:"error,omitempty"`
}

// Snapshot is a point-in-time view of all planes and the level they
// map to, served by the health endpoint.
type Snapshot struct {
	Level  FallbackLevel         `json:"level"`
	Planes map[Plane]PlaneStatus `json:"planes"`
}

// Snapshot returns the current status of every plane.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Level:  LevelFor(m.up[PlaneLLM], m.up[PlaneQueue], m.up[PlaneStore]),
		Planes: make(map[Plane]PlaneStatus, len(Planes)),
	}
	for _, plane := range Planes {
		snap.Planes[plane] = PlaneStatus{
			Up:    m.up[plane],
			Since: m.since[plane],
			Error: m.lastErr[plane],
		}
	}
	return snap
}
