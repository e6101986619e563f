// Package controller implements the Controller of spec.md §4.4: the
// single-writer owner of ControllerState, scheduling six cooperative
// periodic tasks that snapshot the Registry and Runtime Adapters, hand
// the result to the Scaling Policy, and execute its decision.
package controller

import "time"

// WorkerRecord is the controller's own index of a worker it has launched
// or adopted (spec.md §3's ControllerState.workers).
type WorkerRecord struct {
	CreatedAt     time.Time
	LastSeenState string // "runtime_only" when launched here, "adopted" when found already running
}

// Metrics are the counters spec.md §3 requires ControllerState to expose.
type Metrics struct {
	TotalCreated         int
	TotalDestroyed       int
	CurrentQueueLength   int
	LastScaleAction      string
	LastPollAt           time.Time
	FailedScaleAttempts  int
	CircuitBreakerActive bool
	IgnoredExisting      int
}

// breakerThreshold is the number of consecutive capacity-denied creation
// attempts that opens the circuit breaker (spec.md §4.3). Transient
// failures (registry/runtime errors) still count toward
// failed_scale_attempts but never trip the breaker themselves — spec.md
// §7 keeps "Transient external" and "Capacity" as separate error classes.
const breakerThreshold = 5

// state is ControllerState: every field here is mutated only while the
// owning Controller holds its single mutex across a tick's
// snapshot → decide → execute → update sequence (spec.md §4.4/§5). It
// carries no lock of its own — that would defeat the point of a single
// mutex spanning the whole tick, including the adapter calls in between.
type state struct {
	workers       map[string]WorkerRecord
	metrics       Metrics
	lastScaleUpAt time.Time

	// degradedSince mirrors spec.md §7's degraded flag: subsystem name to
	// the time it last failed. Cleared on the subsystem's next success.
	degradedSince map[string]time.Time

	// queueSignalAvailable is false once the registry adapter reports a
	// nil queued count (organization scope, spec.md §9 open question 2).
	queueSignalAvailable bool

	// consecutiveCapacityDenials is the breaker's own streak counter —
	// separate from the visible FailedScaleAttempts metric, so a
	// transient registry/runtime failure can add to the latter without
	// moving the former (spec.md §7).
	consecutiveCapacityDenials int
}

func newState() *state {
	return &state{
		workers:              make(map[string]WorkerRecord),
		degradedSince:        make(map[string]time.Time),
		queueSignalAvailable: true,
	}
}

// Snapshot is a point-in-time copy of state for read-only consumers (the
// HTTP status surface).
type Snapshot struct {
	Workers             map[string]WorkerRecord
	Metrics             Metrics
	LastScaleUpAt       time.Time
	DegradedQueueSignal bool
	Degraded            map[string]time.Time
}

func (s *state) snapshot(degradedQueueSignal bool) Snapshot {
	workers := make(map[string]WorkerRecord, len(s.workers))
	for k, v := range s.workers {
		workers[k] = v
	}
	degraded := make(map[string]time.Time, len(s.degradedSince))
	for k, v := range s.degradedSince {
		degraded[k] = v
	}

	return Snapshot{
		Workers:             workers,
		Metrics:             s.metrics,
		LastScaleUpAt:       s.lastScaleUpAt,
		DegradedQueueSignal: degradedQueueSignal,
		Degraded:            degraded,
	}
}

func (s *state) markDegraded(subsystem string) {
	s.degradedSince[subsystem] = time.Now()
}

func (s *state) clearDegraded(subsystem string) {
	delete(s.degradedSince, subsystem)
}

// recordCapacityDenial increments failed_scale_attempts and opens the
// circuit breaker once breakerThreshold consecutive capacity denials
// accumulate (spec.md §4.3). Capacity denials are the only failure class
// that can trip the breaker (spec.md §7).
func (s *state) recordCapacityDenial() {
	s.metrics.FailedScaleAttempts++
	s.consecutiveCapacityDenials++
	if s.consecutiveCapacityDenials >= breakerThreshold {
		s.metrics.CircuitBreakerActive = true
	}
}

// recordTransientScaleFailure increments failed_scale_attempts for a
// transient external error — a token fetch or container create that
// failed for reasons unrelated to MAX_RUNNERS — without touching the
// breaker's capacity-denial streak (spec.md §7).
func (s *state) recordTransientScaleFailure() {
	s.metrics.FailedScaleAttempts++
}

// resetFailedScaleAttempts clears the failure streak after a successful
// scaling action, and closes the breaker.
func (s *state) resetFailedScaleAttempts() {
	s.metrics.FailedScaleAttempts = 0
	s.consecutiveCapacityDenials = 0
	s.metrics.CircuitBreakerActive = false
}

// closeBreakerIfBelowCeiling clears the circuit breaker once runtime
// count has room again, per the GLOSSARY's Circuit breaker entry.
func (s *state) closeBreakerIfBelowCeiling(runtimeCount, maxRunners int) {
	if s.metrics.CircuitBreakerActive && runtimeCount < maxRunners {
		s.metrics.CircuitBreakerActive = false
		s.metrics.FailedScaleAttempts = 0
		s.consecutiveCapacityDenials = 0
	}
}
