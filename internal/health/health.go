// Package health tracks the availability of the three service planes
// the review pipeline depends on and maps them to a fallback level.
// This file defines the planes, the levels, and the pure mapping
// between them; the monitor lives in monitor.go.
package health

// Plane identifies one of the service planes whose availability
// determines how much of the pipeline can run.
type Plane string

const (
	// PlaneLLM covers the chat and embedding providers
	PlaneLLM Plane = "llm"

	// PlaneQueue covers the task broker
	PlaneQueue Plane = "queue"

	// PlaneStore covers the database, including the knowledge and
	// constraint tables
	PlaneStore Plane = "store"
)

// Planes lists all tracked planes in display order
var Planes = []Plane{PlaneLLM, PlaneQueue, PlaneStore}

// FallbackLevel is the operating mode selected from plane health
type FallbackLevel string

const (
	// LevelEmergency means the LLM plane is down and no reviews can run
	LevelEmergency FallbackLevel = "EMERGENCY"

	// LevelMinimal means only the LLM is reachable; reviews run inline
	// and synchronously with no context and no suppressions
	LevelMinimal FallbackLevel = "MINIMAL"

	// LevelDegradedBoth means the store is down: no retrieval context
	// and no learned suppressions, but async execution still works
	LevelDegradedBoth FallbackLevel = "DEGRADED_BOTH"

	// LevelDegradedRAG means the queue is down: async execution is
	// affected but retrieval and suppressions still work in-process
	LevelDegradedRAG FallbackLevel = "DEGRADED_RAG"

	// LevelFull means every plane is up
	LevelFull FallbackLevel = "FULL"
)

// LevelFor maps plane health to an operating level. The cases are
// ordered: without the LLM nothing can run at all, and a dead store
// outranks a dead queue because both the knowledge base and the
// constraint memory live in it.
func LevelFor(llmUp, queueUp, storeUp bool) FallbackLevel {
	switch {
	case !llmUp:
		return LevelEmergency
	case !queueUp && !storeUp:
		return LevelMinimal
	case !storeUp:
		return LevelDegradedBoth
	case !queueUp:
		return LevelDegradedRAG
	default:
		return LevelFull
	}
}

// ReviewsPossible reports whether reviews can run at all
func (l FallbackLevel) ReviewsPossible() bool {
	return l != LevelEmergency
}

// RAGAvailable reports whether reviews may query the knowledge base
// for retrieval context
func (l FallbackLevel) RAGAvailable() bool {
	return l == LevelFull || l == LevelDegradedRAG
}

// SuppressionsAvailable reports whether reviews may apply learned
// constraints
func (l FallbackLevel) SuppressionsAvailable() bool {
	return l == LevelFull || l == LevelDegradedRAG
}

// AsyncAvailable reports whether work can be queued for background
// execution
func (l FallbackLevel) AsyncAvailable() bool {
	return l == LevelFull || l == LevelDegradedBoth
}
