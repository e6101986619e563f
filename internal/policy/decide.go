package policy

// DecideQueue implements decide_queue (spec.md §4.3): given effective
// pressure E = queue - available, scale up when pressure is high and
// cooldown/ceiling allow it, scale down when pressure is low and the
// floor allows it.
func DecideQueue(s Snapshot) Decision {
	if !s.QueueSignalAvailable {
		return noop("queue signal unavailable at this scope")
	}

	e := s.queuePressure()

	if e >= s.ScaleUpThreshold {
		if s.Now.Sub(s.LastScaleUpAt) < s.ScaleUpCooldown {
			return noop("scale-up cooldown active")
		}
		if s.RuntimeCount >= s.MaxRunners {
			gated := noop("at ceiling")
			gated.CapacityDenied = true
			return gated
		}
		headroom := s.MaxRunners - s.RuntimeCount
		batch := min(e, min(s.ScaleUpBatch, headroom))
		if batch <= 0 {
			gated := noop("no headroom for scale-up")
			gated.CapacityDenied = true
			return gated
		}
		return Decision{Action: ActionScaleUp, Count: batch, Reason: "queue pressure above threshold"}
	}

	if e <= s.ScaleDownThreshold && s.RuntimeCount > s.MinRunners {
		return Decision{Action: ActionScaleDown, Count: 1, Reason: "queue pressure at or below threshold"}
	}

	return noop("queue pressure within band")
}

// DecideUtil implements decide_util (spec.md §4.3): utilization-driven
// scaling, used as a secondary signal alongside decide_queue.
func DecideUtil(s Snapshot) Decision {
	u := s.Utilization()

	if u >= 0.80 && s.QueuedJobs+s.InProgressJobs > 0 {
		if s.RuntimeCount >= s.MaxRunners {
			gated := noop("at ceiling")
			gated.CapacityDenied = true
			return gated
		}
		return Decision{Action: ActionScaleUp, Count: 1, Reason: "utilization above 80% with pending work"}
	}

	if u <= 0.20 && s.OnlineCount > s.MinRunners {
		return Decision{Action: ActionScaleDown, Count: 1, Reason: "utilization at or below 20%"}
	}

	return noop("utilization within band")
}

// DecideMin implements decide_min (spec.md §4.3): the minimum-maintainer,
// which provisions toward the floor from the online count alone, without
// reading any queue or utilization signal.
func DecideMin(s Snapshot) Decision {
	need := s.MinRunners - s.OnlineCount
	if need <= 0 {
		return noop("online count at or above floor")
	}

	if s.RuntimeCount+need > s.MaxRunners {
		capped := s.MaxRunners - s.RuntimeCount
		if capped <= 0 {
			gated := noop("at ceiling, cannot provision toward floor")
			gated.CapacityDenied = true
			return gated
		}
		return Decision{Action: ActionProvision, Count: capped, Reason: "floor needs workers but ceiling caps the batch"}
	}

	return Decision{Action: ActionProvision, Count: need, Reason: "online count below floor"}
}

// Gate applies the circuit-breaker coercion of spec.md §4.3. The decide
// functions already self-cap at MaxRunners and flag their own CapacityDenied
// NoOps, so the ceiling check here is a backstop against a decide function
// that forgets to; a decision is always NoOp once the breaker is open.
func Gate(s Snapshot, d Decision) Decision {
	if d.Action == ActionNoOp || d.Action == ActionScaleDown {
		return d
	}

	if s.CircuitBreakerActive {
		gated := noop("circuit breaker active")
		gated.BreakerDenied = true
		return gated
	}

	if s.RuntimeCount+d.Count > s.MaxRunners {
		gated := noop("would exceed MAX_RUNNERS")
		gated.CapacityDenied = true
		return gated
	}

	return d
}

// namedDecision pairs a decision with the source that produced it, for
// Resolve's priority bookkeeping.
type namedDecision struct {
	source   string
	decision Decision
}

// direction classifies a decision as scaling up or down; NoOp decisions
// never reach this, since Resolve filters them out before comparing.
func direction(d Decision) string {
	if d.Action == ActionScaleDown {
		return "down"
	}
	return "up"
}

// Resolve runs decide_min, decide_queue, and decide_util, gates each
// through the circuit breaker, and applies spec.md §4.3's tie-break rule:
// when every active source agrees on a direction, the largest batch wins;
// when they disagree, the source earliest in priority wins (min is first
// by default, per spec.md §9's PRIORITY).
func Resolve(s Snapshot, priority []Priority) Decision {
	if len(priority) == 0 {
		priority = DefaultPriority
	}

	all := map[Priority]Decision{
		PriorityMin:   Gate(s, DecideMin(s)),
		PriorityQueue: Gate(s, DecideQueue(s)),
		PriorityUtil:  Gate(s, DecideUtil(s)),
	}

	var active []namedDecision
	deniedByCapacity, deniedByBreaker := false, false
	for _, name := range priority {
		d, ok := all[name]
		if !ok {
			continue
		}
		deniedByCapacity = deniedByCapacity || d.CapacityDenied
		deniedByBreaker = deniedByBreaker || d.BreakerDenied
		if d.Action != ActionNoOp {
			active = append(active, namedDecision{string(name), d})
		}
	}

	if len(active) == 0 {
		result := noop("no decision source produced an action")
		result.CapacityDenied = deniedByCapacity
		result.BreakerDenied = deniedByBreaker
		return result
	}

	firstDir := direction(active[0].decision)
	agree := true
	for _, a := range active[1:] {
		if direction(a.decision) != firstDir {
			agree = false
			break
		}
	}

	if agree {
		best := active[0].decision
		for _, a := range active[1:] {
			if a.decision.Count > best.Count {
				best = a.decision
			}
		}
		return best
	}

	// Disagreement: the earliest-priority source wins.
	return active[0].decision
}
