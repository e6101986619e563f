package policy

import (
	"testing"
	"time"
)

func baseSnapshot() Snapshot {
	return Snapshot{
		QueueSignalAvailable: true,
		MinRunners:           2,
		MaxRunners:           10,
		ScaleUpThreshold:     3,
		ScaleDownThreshold:   1,
		ScaleUpBatch:         2,
		ScaleUpCooldown:      60 * time.Second,
		Now:                  time.Unix(1000, 0),
		LastScaleUpAt:        time.Unix(0, 0),
	}
}

func TestDecideQueue_ScalesUpWhenPressureHigh(t *testing.T) {
	s := baseSnapshot()
	s.QueuedJobs, s.InProgressJobs, s.Available = 4, 1, 0 // E=5
	s.RuntimeCount = 2

	d := DecideQueue(s)
	if d.Action != ActionScaleUp {
		t.Fatalf("Action = %v, want ScaleUp", d.Action)
	}
	if d.Count != 2 { // min(E=5, batch=2, headroom=8) = 2
		t.Errorf("Count = %d, want 2", d.Count)
	}
}

func TestDecideQueue_RespectsCooldown(t *testing.T) {
	s := baseSnapshot()
	s.QueuedJobs, s.Available = 5, 0
	s.LastScaleUpAt = s.Now.Add(-10 * time.Second) // within 60s cooldown

	d := DecideQueue(s)
	if d.Action != ActionNoOp {
		t.Fatalf("Action = %v, want NoOp (cooldown)", d.Action)
	}
}

func TestDecideQueue_RespectsCeiling(t *testing.T) {
	s := baseSnapshot()
	s.QueuedJobs, s.Available = 5, 0
	s.RuntimeCount = 10 // at MAX

	d := DecideQueue(s)
	if d.Action != ActionNoOp {
		t.Fatalf("Action = %v, want NoOp (at ceiling)", d.Action)
	}
	if !d.CapacityDenied {
		t.Errorf("CapacityDenied = false, want true")
	}
}

func TestDecideQueue_BatchCappedByHeadroom(t *testing.T) {
	s := baseSnapshot()
	s.QueuedJobs, s.Available = 10, 0 // E=10
	s.RuntimeCount = 9                // headroom=1

	d := DecideQueue(s)
	if d.Action != ActionScaleUp || d.Count != 1 {
		t.Fatalf("got %+v, want ScaleUp(1)", d)
	}
}

func TestDecideQueue_ScalesDownWhenPressureLow(t *testing.T) {
	s := baseSnapshot()
	s.QueuedJobs, s.Available = 0, 1 // E=-1
	s.RuntimeCount = 3

	d := DecideQueue(s)
	if d.Action != ActionScaleDown || d.Count != 1 {
		t.Fatalf("got %+v, want ScaleDown(1)", d)
	}
}

func TestDecideQueue_NoScaleDownAtFloor(t *testing.T) {
	s := baseSnapshot()
	s.QueuedJobs, s.Available = 0, 1
	s.RuntimeCount = 2 // at MIN

	d := DecideQueue(s)
	if d.Action != ActionNoOp {
		t.Fatalf("Action = %v, want NoOp at floor", d.Action)
	}
}

func TestDecideQueue_FallsBackWhenSignalUnavailable(t *testing.T) {
	s := baseSnapshot()
	s.QueueSignalAvailable = false

	d := DecideQueue(s)
	if d.Action != ActionNoOp {
		t.Fatalf("Action = %v, want NoOp when queue signal unavailable", d.Action)
	}
}

func TestDecideUtil_ScalesUpAboveThreshold(t *testing.T) {
	s := baseSnapshot()
	s.OnlineCount, s.BusyCount = 4, 4 // U=1.0
	s.QueuedJobs = 1
	s.RuntimeCount = 4

	d := DecideUtil(s)
	if d.Action != ActionScaleUp || d.Count != 1 {
		t.Fatalf("got %+v, want ScaleUp(1)", d)
	}
}

func TestDecideUtil_NoScaleUpWithoutQueue(t *testing.T) {
	s := baseSnapshot()
	s.OnlineCount, s.BusyCount = 4, 4
	s.QueuedJobs, s.InProgressJobs = 0, 0

	d := DecideUtil(s)
	if d.Action != ActionNoOp {
		t.Fatalf("Action = %v, want NoOp (fully utilized but no queued work)", d.Action)
	}
}

func TestDecideUtil_ScalesDownBelowThreshold(t *testing.T) {
	s := baseSnapshot()
	s.OnlineCount, s.BusyCount = 5, 0 // U=0

	d := DecideUtil(s)
	if d.Action != ActionScaleDown || d.Count != 1 {
		t.Fatalf("got %+v, want ScaleDown(1)", d)
	}
}

func TestDecideUtil_NoScaleDownAtFloor(t *testing.T) {
	s := baseSnapshot()
	s.OnlineCount, s.BusyCount = 2, 0 // at MIN

	d := DecideUtil(s)
	if d.Action != ActionNoOp {
		t.Fatalf("Action = %v, want NoOp at floor", d.Action)
	}
}

func TestDecideUtil_FlagsCapacityDeniedAtCeiling(t *testing.T) {
	s := baseSnapshot()
	s.OnlineCount, s.BusyCount = 4, 4 // U=1.0
	s.QueuedJobs = 1
	s.RuntimeCount = 10 // at MAX

	d := DecideUtil(s)
	if d.Action != ActionNoOp {
		t.Fatalf("Action = %v, want NoOp (at ceiling)", d.Action)
	}
	if !d.CapacityDenied {
		t.Errorf("CapacityDenied = false, want true")
	}
}

func TestDecideMin_ProvisionsToFloor(t *testing.T) {
	s := baseSnapshot()
	s.OnlineCount = 0
	s.RuntimeCount = 0

	d := DecideMin(s)
	if d.Action != ActionProvision || d.Count != 2 {
		t.Fatalf("got %+v, want Provision(2)", d)
	}
}

func TestDecideMin_NoOpWhenAtFloor(t *testing.T) {
	s := baseSnapshot()
	s.OnlineCount = 2

	d := DecideMin(s)
	if d.Action != ActionNoOp {
		t.Fatalf("Action = %v, want NoOp", d.Action)
	}
}

func TestDecideMin_CapsAtCeiling(t *testing.T) {
	s := baseSnapshot()
	s.OnlineCount = 0
	s.RuntimeCount = 9 // MAX=10, headroom=1, need=2

	d := DecideMin(s)
	if d.Action != ActionProvision || d.Count != 1 {
		t.Fatalf("got %+v, want Provision(1) capped by ceiling", d)
	}
}

func TestDecideMin_NoOpWhenAlreadyAtCeiling(t *testing.T) {
	s := baseSnapshot()
	s.OnlineCount = 0
	s.RuntimeCount = 10

	d := DecideMin(s)
	if d.Action != ActionNoOp {
		t.Fatalf("Action = %v, want NoOp at ceiling", d.Action)
	}
	if !d.CapacityDenied {
		t.Errorf("CapacityDenied = false, want true")
	}
}

func TestGate_CoercesOverCeilingToNoOp(t *testing.T) {
	s := baseSnapshot()
	s.RuntimeCount = 9
	d := Decision{Action: ActionScaleUp, Count: 3}

	got := Gate(s, d)
	if got.Action != ActionNoOp {
		t.Fatalf("Gate() = %+v, want NoOp", got)
	}
	if !got.CapacityDenied {
		t.Errorf("CapacityDenied = false, want true")
	}
}

func TestGate_CoercesWhenCircuitBreakerActive(t *testing.T) {
	s := baseSnapshot()
	s.CircuitBreakerActive = true
	d := Decision{Action: ActionProvision, Count: 1}

	got := Gate(s, d)
	if got.Action != ActionNoOp {
		t.Fatalf("Gate() = %+v, want NoOp under open breaker", got)
	}
	if !got.BreakerDenied {
		t.Errorf("BreakerDenied = false, want true")
	}
}

func TestGate_PassesThroughScaleDown(t *testing.T) {
	s := baseSnapshot()
	s.CircuitBreakerActive = true
	d := Decision{Action: ActionScaleDown, Count: 1}

	got := Gate(s, d)
	if got.Action != ActionScaleDown {
		t.Fatalf("Gate() = %+v, want ScaleDown to pass through", got)
	}
}

func TestResolve_MinWinsOnDisagreement(t *testing.T) {
	s := baseSnapshot()
	// decide_min wants to provision (online below floor)...
	s.OnlineCount = 0
	s.RuntimeCount = 3 // above MinRunners, so decide_queue is free to scale down
	// ...while decide_queue would want to scale down (pressure low).
	s.QueuedJobs, s.Available = 0, 5

	d := Resolve(s, DefaultPriority)
	if d.Action != ActionProvision {
		t.Fatalf("got %+v, want min's Provision to win on disagreement", d)
	}
}

func TestResolve_LargestBatchWinsOnAgreement(t *testing.T) {
	s := baseSnapshot()
	s.OnlineCount, s.BusyCount = 5, 5 // util wants ScaleUp(1)
	s.QueuedJobs, s.InProgressJobs, s.Available = 6, 0, 0 // queue wants ScaleUp(2)
	s.RuntimeCount = 5

	d := Resolve(s, DefaultPriority)
	if d.Action != ActionScaleUp || d.Count != 2 {
		t.Fatalf("got %+v, want ScaleUp(2) (largest of queue=2, util=1)", d)
	}
}

func TestResolve_NoOpWhenNothingFires(t *testing.T) {
	s := baseSnapshot()
	s.OnlineCount, s.BusyCount = 3, 1 // U=0.33, within band
	s.QueuedJobs, s.InProgressJobs, s.Available = 2, 0, 0 // E=2, strictly between thresholds 1 and 3
	s.RuntimeCount = 3

	d := Resolve(s, DefaultPriority)
	if d.Action != ActionNoOp {
		t.Fatalf("got %+v, want NoOp", d)
	}
}

func TestResolve_RespectsCustomPriorityOrder(t *testing.T) {
	s := baseSnapshot()
	// queue wants ScaleDown, min wants Provision: with queue first, queue wins.
	s.OnlineCount = 0
	s.RuntimeCount = 3 // above MinRunners, so decide_queue is free to scale down
	s.QueuedJobs, s.Available = 0, 5

	d := Resolve(s, []Priority{PriorityQueue, PriorityMin, PriorityUtil})
	if d.Action != ActionScaleDown {
		t.Fatalf("got %+v, want ScaleDown (queue wins with custom priority)", d)
	}
}

func TestResolve_SurfacesBreakerDeniedWhenOpen(t *testing.T) {
	s := baseSnapshot()
	s.OnlineCount = 0 // decide_min wants to provision...
	s.CircuitBreakerActive = true // ...but the breaker blocks every source

	d := Resolve(s, DefaultPriority)
	if d.Action != ActionNoOp {
		t.Fatalf("got %+v, want NoOp", d)
	}
	if !d.BreakerDenied {
		t.Errorf("BreakerDenied = false, want true")
	}
}

// TestResolve_SurfacesCapacityDeniedAtCeiling drives scenario S2: runtime
// already at MAX_RUNNERS with effective queue pressure E >= 3 resolves to
// a single CapacityDenied NoOp, the decision the controller counts toward
// failed_scale_attempts (spec.md §7, property P7).
func TestResolve_SurfacesCapacityDeniedAtCeiling(t *testing.T) {
	s := baseSnapshot()
	s.OnlineCount = 2 // at MinRunners, so decide_min has nothing to do
	s.RuntimeCount = 10 // at MAX
	s.QueuedJobs, s.Available = 8, 2 // E=6, above ScaleUpThreshold

	d := Resolve(s, DefaultPriority)
	if d.Action != ActionNoOp {
		t.Fatalf("got %+v, want NoOp", d)
	}
	if !d.CapacityDenied {
		t.Errorf("CapacityDenied = false, want true")
	}
}

func TestUtilization_ZeroOnlineAvoidsDivideByZero(t *testing.T) {
	s := Snapshot{OnlineCount: 0, BusyCount: 0}
	if u := s.Utilization(); u != 0 {
		t.Errorf("Utilization() = %v, want 0", u)
	}
}
