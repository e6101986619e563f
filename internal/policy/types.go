// Package policy implements the scaling decisions of spec.md §4.3 as pure,
// stateless functions over a snapshot of registry/runtime state. No
// adapter calls, no locks — every function here is a plain calculation
// that a table-driven test can exercise directly.
package policy

import "time"

// Priority names a scaling decision source, used to order decide_min,
// decide_queue, and decide_util against each other (spec.md §9).
type Priority string

const (
	PriorityMin   Priority = "min"
	PriorityQueue Priority = "queue"
	PriorityUtil  Priority = "util"
)

// DefaultPriority is spec.md §9's default resolution order: min wins any
// disagreement, since keeping the floor met is the controller's strongest
// guarantee.
var DefaultPriority = []Priority{PriorityMin, PriorityQueue, PriorityUtil}

// Snapshot is everything a decision function needs: the joined view of
// registry and runtime state plus the bits of ControllerState that gate
// cooldown and the circuit breaker (spec.md §3/§4.3).
type Snapshot struct {
	// QueuedJobs and InProgressJobs come from the Registry Adapter's
	// list_pending_work. QueueSignalAvailable is false when the
	// adapter can't cheaply report queued jobs at org scope (spec.md §9).
	QueuedJobs           int
	InProgressJobs       int
	QueueSignalAvailable bool

	OnlineCount  int // registry workers with status == online
	BusyCount    int // registry workers with busy == true
	Available    int // online AND NOT busy
	RuntimeCount int // runtime containers managed by this controller

	MinRunners int
	MaxRunners int

	ScaleUpThreshold   int
	ScaleDownThreshold int
	ScaleUpBatch       int

	ScaleUpCooldown time.Duration
	LastScaleUpAt   time.Time
	Now             time.Time

	FailedScaleAttempts  int
	CircuitBreakerActive bool
}

// ActionKind names the shape of a Decision.
type ActionKind string

const (
	ActionNoOp      ActionKind = "noop"
	ActionScaleUp   ActionKind = "scale_up"
	ActionScaleDown ActionKind = "scale_down"
	ActionProvision ActionKind = "provision"
)

// Decision is the result of a policy function: what to do, and how many
// workers it applies to. Count is 0 for NoOp.
//
// CapacityDenied and BreakerDenied distinguish a NoOp produced by a
// ceiling or breaker check (in a decide function's own ceiling branch, or
// in Gate) from a NoOp that simply had nothing to do — the controller
// reads CapacityDenied to know when to increment failed_scale_attempts
// (spec.md §4.3's circuit-breaker gate).
type Decision struct {
	Action         ActionKind
	Count          int
	Reason         string
	CapacityDenied bool
	BreakerDenied  bool
}

func noop(reason string) Decision {
	return Decision{Action: ActionNoOp, Reason: reason}
}

// queuePressure computes E = queue - available, the effective pressure
// decide_queue reads from (spec.md §4.3).
func (s Snapshot) queuePressure() int {
	return s.QueuedJobs + s.InProgressJobs - s.Available
}

// Utilization computes U = busy / max(online, 1).
func (s Snapshot) Utilization() float64 {
	online := s.OnlineCount
	if online < 1 {
		online = 1
	}
	return float64(s.BusyCount) / float64(online)
}
