package controller

import (
	"time"

	"github.com/briarlatch/foreman/internal/registry"
	"github.com/briarlatch/foreman/internal/runtime"
)

// pairedWorker is the join of a RuntimeWorker and RegistryWorker sharing
// a worker name (spec.md §3's PairedWorker). Either side may be nil: a
// runtime-only worker hasn't registered yet, a registry-only worker's
// container is gone.
type pairedWorker struct {
	name     string
	registry *registry.RegistryWorker
	runtime  *runtime.RuntimeWorker
}

// joinViews pairs every registry and runtime worker by name, the way
// spec.md §3 defines PairedWorker.
func joinViews(registryWorkers []registry.RegistryWorker, runtimeWorkers []runtime.RuntimeWorker) map[string]*pairedWorker {
	paired := make(map[string]*pairedWorker)

	for i := range registryWorkers {
		rw := &registryWorkers[i]
		paired[rw.Name] = &pairedWorker{name: rw.Name, registry: rw}
	}
	for i := range runtimeWorkers {
		rt := &runtimeWorkers[i]
		if p, ok := paired[rt.WorkerName]; ok {
			p.runtime = rt
		} else {
			paired[rt.WorkerName] = &pairedWorker{name: rt.WorkerName, runtime: rt}
		}
	}
	return paired
}

// runtimeIsLive reports whether a runtime container counts toward
// runtime_workers_count: anything not already in a terminal state that
// reap_dead would have claimed (spec.md I1).
func runtimeIsLive(rt *runtime.RuntimeWorker) bool {
	return rt.Status != "exited" && rt.Status != "dead"
}

// viewCounts derives the plain counts the Scaling Policy's Snapshot
// needs from the joined view (spec.md §4.3).
func viewCounts(paired map[string]*pairedWorker) (online, busy, available, runtimeCount int) {
	for _, p := range paired {
		if p.runtime != nil && runtimeIsLive(p.runtime) {
			runtimeCount++
		}
		if p.registry == nil {
			continue
		}
		isOnline := p.registry.Status == "online"
		if isOnline {
			online++
		}
		if p.registry.Busy {
			busy++
		}
		if isOnline && !p.registry.Busy {
			available++
		}
	}
	return
}

// oldestScaleDownCandidate implements spec.md §4.3's scale-down
// selection: among online-and-not-busy workers, the oldest by
// created_at. Returns nil if there is no eligible candidate. Honors
// invariant I5 by construction — a busy worker is never considered.
func oldestScaleDownCandidate(paired map[string]*pairedWorker, workers map[string]WorkerRecord) *pairedWorker {
	var oldest *pairedWorker
	var oldestAt time.Time

	for _, p := range paired {
		if p.registry == nil || p.registry.Status != "online" || p.registry.Busy {
			continue
		}
		if p.runtime == nil {
			continue
		}
		createdAt := p.runtime.CreatedAt
		if rec, ok := workers[p.name]; ok {
			createdAt = rec.CreatedAt
		}
		if oldest == nil || createdAt.Before(oldestAt) {
			oldest = p
			oldestAt = createdAt
		}
	}
	return oldest
}
