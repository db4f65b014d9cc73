package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		name  string
		llm   bool
		queue bool
		store bool
		want  FallbackLevel
	}{
		{"all up", true, true, true, LevelFull},
		{"queue down", true, false, true, LevelDegradedRAG},
		{"store down", true, true, false, LevelDegradedBoth},
		{"queue and store down", true, false, false, LevelMinimal},
		{"llm down", false, true, true, LevelEmergency},
		{"llm and queue down", false, false, true, LevelEmergency},
		{"everything down", false, false, false, LevelEmergency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LevelFor(tt.llm, tt.queue, tt.store); got != tt.want {
				t.Errorf("LevelFor(%v, %v, %v) = %v, want %v", tt.llm, tt.queue, tt.store, got, tt.want)
			}
		})
	}
}

func TestLevelCapabilities(t *testing.T) {
	tests := []struct {
		level        FallbackLevel
		reviews      bool
		rag          bool
		suppressions bool
		async        bool
	}{
		{LevelFull, true, true, true, true},
		{LevelDegradedRAG, true, true, true, false},
		{LevelDegradedBoth, true, false, false, true},
		{LevelMinimal, true, false, false, false},
		{LevelEmergency, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			if got := tt.level.ReviewsPossible(); got != tt.reviews {
				t.Errorf("ReviewsPossible() = %v, want %v", got, tt.reviews)
			}
			if got := tt.level.RAGAvailable(); got != tt.rag {
				t.Errorf("RAGAvailable() = %v, want %v", got, tt.rag)
			}
			if got := tt.level.SuppressionsAvailable(); got != tt.suppressions {
				t.Errorf("SuppressionsAvailable() = %v, want %v", got, tt.suppressions)
			}
			if got := tt.level.AsyncAvailable(); got != tt.async {
				t.Errorf("AsyncAvailable() = %v, want %v", got, tt.async)
			}
		})
	}
}

func TestMonitorStartsHealthy(t *testing.T) {
	m := NewMonitor(time.Minute)

	if got := m.Level(); got != LevelFull {
		t.Errorf("Level() = %v, want %v", got, LevelFull)
	}
	for _, plane := range Planes {
		if !m.Up(plane) {
			t.Errorf("Up(%v) = false, want true", plane)
		}
	}
}

func TestMonitorMarkDownAndRecover(t *testing.T) {
	m := NewMonitor(time.Minute)

	m.MarkDown(PlaneStore, "connection refused")
	if m.Up(PlaneStore) {
		t.Fatal("store should be down after MarkDown")
	}
	if got := m.Level(); got != LevelDegradedBoth {
		t.Errorf("Level() = %v, want %v", got, LevelDegradedBoth)
	}

	snap := m.Snapshot()
	if snap.Level != LevelDegradedBoth {
		t.Errorf("Snapshot().Level = %v, want %v", snap.Level, LevelDegradedBoth)
	}
	if snap.Planes[PlaneStore].Up {
		t.Error("snapshot should show store down")
	}
	if snap.Planes[PlaneStore].Error != "connection refused" {
		t.Errorf("snapshot error = %q, want %q", snap.Planes[PlaneStore].Error, "connection refused")
	}

	m.MarkUp(PlaneStore)
	if got := m.Level(); got != LevelFull {
		t.Errorf("Level() after recovery = %v, want %v", got, LevelFull)
	}
}

func TestMonitorProbeAll(t *testing.T) {
	m := NewMonitor(time.Minute)

	llmErr := errors.New("llm unreachable")
	m.RegisterProbe(PlaneLLM, func(ctx context.Context) error { return llmErr })
	m.RegisterProbe(PlaneQueue, func(ctx context.Context) error { return nil })
	m.RegisterProbe(PlaneStore, func(ctx context.Context) error { return nil })

	m.ProbeAll(context.Background())

	if m.Up(PlaneLLM) {
		t.Error("LLM plane should be down after failing probe")
	}
	if got := m.Level(); got != LevelEmergency {
		t.Errorf("Level() = %v, want %v", got, LevelEmergency)
	}

	// Probe recovery flips the plane back.
	m.RegisterProbe(PlaneLLM, func(ctx context.Context) error { return nil })
	m.ProbeAll(context.Background())

	if got := m.Level(); got != LevelFull {
		t.Errorf("Level() after recovery = %v, want %v", got, LevelFull)
	}
}

func TestMonitorBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	m := NewMonitor(time.Minute)

	failing := errors.New("timeout")
	for i := 0; i < breakerFailureThreshold; i++ {
		if err := m.Do(PlaneStore, func() error { return failing }); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	// Breaker is now open: the plane is flagged down and further calls
	// are rejected without invoking the function.
	if m.Up(PlaneStore) {
		t.Error("store should be down after breaker tripped")
	}

	called := false
	err := m.Do(PlaneStore, func() error {
		called = true
		return nil
	})
	if err == nil {
		t.Error("open breaker should reject calls")
	}
	if called {
		t.Error("open breaker should not invoke the wrapped call")
	}
}

func TestMonitorDoSuccessKeepsPlaneUp(t *testing.T) {
	m := NewMonitor(time.Minute)

	// A failure followed by a success must not trip the breaker.
	_ = m.Do(PlaneQueue, func() error { return errors.New("blip") })
	if err := m.Do(PlaneQueue, func() error { return nil }); err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if !m.Up(PlaneQueue) {
		t.Error("queue should stay up after recovered call")
	}
}
