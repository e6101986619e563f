package controller

import (
	"context"
	"time"

	"github.com/briarlatch/foreman/internal/policy"
)

// tickQueueMonitor is T1: snapshot both views, resolve decide_queue against
// the other two sources per the tie-break rule (spec.md §4.3/§9), execute.
func (c *Controller) tickQueueMonitor(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, paired, _, err := c.snapshotState(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("queue-monitor: snapshot failed")
		return
	}

	d := policy.Resolve(snap, c.cfg.Priority)
	c.execute(ctx, d, paired)
}

// tickMinMaintainer is T2: resolve decide_min against the other two sources, execute.
func (c *Controller) tickMinMaintainer(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, paired, _, err := c.snapshotState(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("min-maintainer: snapshot failed")
		return
	}

	d := policy.Resolve(snap, c.cfg.Priority)
	c.execute(ctx, d, paired)
}

// tickUtilizationMonitor is T6: resolve decide_util against the other two sources, execute.
func (c *Controller) tickUtilizationMonitor(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, paired, _, err := c.snapshotState(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("utilization-monitor: snapshot failed")
		return
	}

	d := policy.Resolve(snap, c.cfg.Priority)
	c.execute(ctx, d, paired)
}

// tickRuntimeManager is T3: refresh the runtime view into state, dropping
// any worker this controller believes exists but whose container is gone.
func (c *Controller) tickRuntimeManager(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	runtimeWorkers, err := c.runtime.ListWorkers(ctx)
	if err != nil {
		c.state.markDegraded("runtime")
		c.log.Error().Err(err).Msg("runtime-manager: list_workers failed")
		return
	}
	c.state.clearDegraded("runtime")

	live := make(map[string]bool, len(runtimeWorkers))
	for _, rw := range runtimeWorkers {
		if rw.WorkerName != "" && runtimeIsLive(&rw) {
			live[rw.WorkerName] = true
		}
	}

	for name := range c.state.workers {
		if !live[name] {
			delete(c.state.workers, name)
		}
	}
}

// tickReconciler is T4: reaps orphans per invariants I2 and I3.
func (c *Controller) tickReconciler(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	registryWorkers, err := c.registry.ListWorkers(ctx)
	if err != nil {
		c.state.markDegraded("registry")
		c.log.Error().Err(err).Msg("reconciler: list_workers failed")
		return
	}
	c.state.clearDegraded("registry")

	runtimeWorkers, err := c.runtime.ListWorkers(ctx)
	if err != nil {
		c.state.markDegraded("runtime")
		c.log.Error().Err(err).Msg("reconciler: list_workers failed")
		return
	}
	c.state.clearDegraded("runtime")

	paired := joinViews(registryWorkers, runtimeWorkers)
	now := time.Now()

	for _, p := range paired {
		switch {
		// I2: registry-only, offline -> delete the stale registration.
		case p.runtime == nil && p.registry != nil:
			if p.registry.Status == "offline" {
				if err := c.registry.DeleteWorker(ctx, p.registry.ID); err != nil {
					c.log.Error().Err(err).Str("worker", p.name).Msg("reconciler: delete_worker failed")
					continue
				}
				delete(c.state.workers, p.name)
			}

		// I3: runtime-only for longer than the registration grace period
		// without ever appearing in the registry -> tear it down.
		case p.registry == nil && p.runtime != nil:
			createdAt := p.runtime.CreatedAt
			if rec, ok := c.state.workers[p.name]; ok {
				createdAt = rec.CreatedAt
			}
			if now.Sub(createdAt) > c.cfg.RegistrationGrace {
				c.teardown(ctx, p)
			}

		// Paired but not yet known to this controller: a pre-existing
		// container matching our identity prefix. Adopt it rather than
		// treating it as an orphan.
		case p.registry != nil && p.runtime != nil:
			if _, known := c.state.workers[p.name]; !known {
				c.state.workers[p.name] = WorkerRecord{CreatedAt: p.runtime.CreatedAt, LastSeenState: "adopted"}
				c.state.metrics.IgnoredExisting++
			}
		}
	}
}

// tickDeadCleaner is T5: calls reap_dead.
func (c *Controller) tickDeadCleaner(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reaped, err := c.runtime.ReapDead(ctx)
	if err != nil {
		c.state.markDegraded("runtime")
		c.log.Error().Err(err).Msg("dead-cleaner: reap_dead failed")
		return
	}
	c.state.clearDegraded("runtime")
	if reaped > 0 {
		c.log.Info().Int("count", reaped).Msg("reaped dead containers")
	}
}
