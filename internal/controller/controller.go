package controller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/briarlatch/foreman/internal/config"
	"github.com/briarlatch/foreman/internal/identity"
	"github.com/briarlatch/foreman/internal/logging"
	"github.com/briarlatch/foreman/internal/policy"
	"github.com/briarlatch/foreman/internal/registry"
	"github.com/briarlatch/foreman/internal/runtime"
)

// scaleUpBatch is SCALE_UP_BATCH from spec.md §4.3: the maximum number
// of workers decide_queue provisions in a single action.
const scaleUpBatch = 2

// registrationGraceCheck is how long the teardown procedure waits before
// checking whether the registry still lists a stopped worker (spec.md
// §4.4's teardown procedure, step 2).
const registrationGraceCheck = 30 * time.Second

// Controller is the Controller of spec.md §4.4: it owns the single
// mutex protecting ControllerState and schedules the six periodic
// tasks, translating the Scaling Policy's decisions into calls on the
// two adapters.
type Controller struct {
	cfg      *config.Config
	registry RegistryAdapter
	runtime  RuntimeAdapter
	log      zerolog.Logger

	// mu is the single mutex spec.md §4.4/§5 requires to be held across
	// an entire tick's snapshot → decide → execute → update sequence, so
	// that two tasks can never both decide to create workers and
	// collectively exceed MAX_RUNNERS.
	mu    sync.Mutex
	state *state

	startedAt time.Time
}

// New builds a Controller. Call Start before Run to perform startup
// adoption of pre-existing matching containers (spec.md §4.4).
func New(cfg *config.Config, reg RegistryAdapter, rt RuntimeAdapter, log zerolog.Logger) *Controller {
	return &Controller{
		cfg:       cfg,
		registry:  reg,
		runtime:   rt,
		log:       log,
		state:     newState(),
		startedAt: time.Now(),
	}
}

// Start performs one-time startup work: ensuring the worker network
// exists and adopting pre-existing matching containers into state
// without creating or destroying anything (spec.md §4.4, property P5).
func (c *Controller) Start(ctx context.Context) error {
	if err := c.runtime.EnsureNetwork(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	runtimeWorkers, err := c.runtime.ListWorkers(ctx)
	if err != nil {
		return err
	}

	for _, rw := range runtimeWorkers {
		if rw.WorkerName == "" || !identity.HasPrefix(rw.WorkerName, c.cfg.RunnerPrefix) {
			continue
		}
		if _, known := c.state.workers[rw.WorkerName]; known {
			continue
		}
		c.state.workers[rw.WorkerName] = WorkerRecord{CreatedAt: rw.CreatedAt, LastSeenState: "adopted"}
		c.state.metrics.IgnoredExisting++
		logging.Event(c.log, "worker_adopted", map[string]any{"worker": rw.WorkerName})
	}

	return nil
}

// Snapshot returns a lock-free copy of ControllerState for read-only
// consumers (the HTTP status surface).
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.snapshot(!c.state.queueSignalAvailable)
}

// task bundles one periodic task's period and body for Run's scheduler.
type task struct {
	name   string
	period time.Duration
	run    func(ctx context.Context)
}

// Run launches the six periodic tasks of spec.md §4.4 and blocks until
// ctx is cancelled. Each task ticks independently; a panic in one tick
// is recovered and logged, never terminating the task (spec.md §4.4).
func (c *Controller) Run(ctx context.Context) {
	tasks := []task{
		{"queue-monitor", c.cfg.PollInterval, c.tickQueueMonitor},
		{"min-maintainer", 60 * time.Second, c.tickMinMaintainer},
		{"runtime-manager", 30 * time.Second, c.tickRuntimeManager},
		{"reconciler", 120 * time.Second, c.tickReconciler},
		{"dead-cleaner", 300 * time.Second, c.tickDeadCleaner},
		{"utilization-monitor", 60 * time.Second, c.tickUtilizationMonitor},
	}

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			c.runPeriodic(ctx, t)
		}(t)
	}
	wg.Wait()
}

func (c *Controller) runPeriodic(ctx context.Context, t task) {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.guardedTick(ctx, t.name, t.run)
		}
	}
}

// guardedTick wraps a tick in the recover-from-panic guard spec.md §4.4
// requires of every task.
func (c *Controller) guardedTick(ctx context.Context, name string, run func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("task", name).Interface("panic", r).Msg("task tick panicked")
		}
	}()
	run(ctx)
}

// snapshotState builds a policy.Snapshot from a fresh join of the two
// adapter views plus the portions of ControllerState the policy needs.
// Caller must hold c.mu.
func (c *Controller) snapshotState(ctx context.Context) (policy.Snapshot, map[string]*pairedWorker, bool, error) {
	registryWorkers, regErr := c.registry.ListWorkers(ctx)
	if regErr != nil {
		c.state.markDegraded("registry")
		return policy.Snapshot{}, nil, false, regErr
	}
	c.state.clearDegraded("registry")

	runtimeWorkers, rtErr := c.runtime.ListWorkers(ctx)
	if rtErr != nil {
		c.state.markDegraded("runtime")
		return policy.Snapshot{}, nil, false, rtErr
	}
	c.state.clearDegraded("runtime")

	pending, pendErr := c.registry.ListPendingWork(ctx)
	if pendErr != nil {
		c.state.markDegraded("registry")
		return policy.Snapshot{}, nil, false, pendErr
	}

	paired := joinViews(registryWorkers, runtimeWorkers)
	online, busy, available, runtimeCount := viewCounts(paired)

	queueAvailable := pending.Queued != nil
	queued := 0
	if pending.Queued != nil {
		queued = *pending.Queued
	}

	c.state.metrics.CurrentQueueLength = queued + pending.InProgress
	c.state.metrics.LastPollAt = time.Now()
	c.state.queueSignalAvailable = queueAvailable
	c.state.closeBreakerIfBelowCeiling(runtimeCount, c.cfg.MaxRunners)

	snap := policy.Snapshot{
		QueuedJobs:           queued,
		InProgressJobs:       pending.InProgress,
		QueueSignalAvailable: queueAvailable,
		OnlineCount:          online,
		BusyCount:            busy,
		Available:            available,
		RuntimeCount:         runtimeCount,
		MinRunners:           c.cfg.MinRunners,
		MaxRunners:           c.cfg.MaxRunners,
		ScaleUpThreshold:     c.cfg.ScaleUpThreshold,
		ScaleDownThreshold:   c.cfg.ScaleDownThreshold,
		ScaleUpBatch:         scaleUpBatch,
		ScaleUpCooldown:      c.cfg.ScaleUpCooldown,
		LastScaleUpAt:        c.state.lastScaleUpAt,
		Now:                  time.Now(),
		FailedScaleAttempts:  c.state.metrics.FailedScaleAttempts,
		CircuitBreakerActive: c.state.metrics.CircuitBreakerActive,
	}
	return snap, paired, queueAvailable, nil
}

// execute applies a single policy.Decision, holding c.mu across the
// whole snapshot → decide → execute → update sequence (spec.md §4.4/§5).
func (c *Controller) execute(ctx context.Context, d policy.Decision, paired map[string]*pairedWorker) {
	switch d.Action {
	case policy.ActionProvision, policy.ActionScaleUp:
		c.provisionN(ctx, d.Count)
	case policy.ActionScaleDown:
		c.scaleDownN(ctx, d.Count, paired)
	case policy.ActionNoOp:
		if d.CapacityDenied {
			c.state.recordCapacityDenial()
		}
	}
}

// provisionN runs the provision procedure up to n times, aborting the
// rest of the batch after two consecutive creation failures within the
// tick (spec.md §4.4's failure semantics).
func (c *Controller) provisionN(ctx context.Context, n int) {
	consecutiveFailures := 0
	created := 0
	for i := 0; i < n; i++ {
		if err := c.provisionOne(ctx); err != nil {
			consecutiveFailures++
			c.log.Error().Err(err).Msg("provision failed")
			if consecutiveFailures >= 2 {
				break
			}
			continue
		}
		consecutiveFailures = 0
		created++
	}
	if created > 0 {
		c.state.lastScaleUpAt = time.Now()
		c.state.metrics.LastScaleAction = "provision"
		c.state.resetFailedScaleAttempts()
	}
}

// provisionOne is the provision procedure of spec.md §4.4.
func (c *Controller) provisionOne(ctx context.Context) error {
	if len(c.liveWorkerNames()) >= c.cfg.MaxRunners {
		c.state.recordCapacityDenial()
		return errAtCeiling
	}

	tok, err := c.registry.FetchRegistrationToken(ctx)
	if err != nil {
		c.state.recordTransientScaleFailure()
		return err
	}

	name := identity.New(c.cfg.RunnerPrefix)
	containerName := identity.ContainerName(c.cfg.RunnerNamePrefix, name)
	repoURL := c.cfg.Scope.String()

	_, err = c.runtime.CreateWorker(ctx, runtime.CreateWorkerParams{
		Name:       name,
		RepoURL:    repoURL,
		RegToken:   tok.Token,
		WorkerName: containerName,
		Image:      c.cfg.RunnerImage,
		Env:        workerEnv(c.cfg, name),
	})
	if err != nil {
		c.state.recordTransientScaleFailure()
		return err
	}

	c.state.workers[name] = WorkerRecord{CreatedAt: time.Now(), LastSeenState: "runtime_only"}
	c.state.metrics.TotalCreated++
	logging.Event(c.log, "worker_created", map[string]any{"worker": name, "container": containerName})
	return nil
}

// liveWorkerNames is a cheap stand-in for runtime_count during
// provisioning: the names this controller believes are live right now.
// Re-checking against the adapter happens on the next tick's snapshot;
// within one tick the state map is authoritative (spec.md I1).
func (c *Controller) liveWorkerNames() []string {
	names := make([]string, 0, len(c.state.workers))
	for name := range c.state.workers {
		names = append(names, name)
	}
	return names
}

func workerEnv(cfg *config.Config, name string) []string {
	labels := "docker-dind,linux,self-hosted"
	for _, l := range cfg.RunnerLabels {
		labels += "," + l
	}
	return []string{
		"RUNNER_LABELS=" + labels,
		"RUNNER_WORKDIR=/work",
	}
}

// scaleDownN tears down up to n online-and-not-busy workers, oldest
// first (spec.md §4.3's scale-down selection, invariant I5).
func (c *Controller) scaleDownN(ctx context.Context, n int, paired map[string]*pairedWorker) {
	remaining := make(map[string]*pairedWorker, len(paired))
	for k, v := range paired {
		remaining[k] = v
	}

	for i := 0; i < n; i++ {
		candidate := oldestScaleDownCandidate(remaining, c.state.workers)
		if candidate == nil {
			break
		}
		delete(remaining, candidate.name)
		c.teardown(ctx, candidate)
	}
	c.state.metrics.LastScaleAction = "scale_down"
}

// teardown is the teardown procedure of spec.md §4.4. Every caller holds
// c.mu when it calls teardown; this releases it for the registration
// grace wait so /status reads and the other five tasks aren't blocked
// behind a 30-second sleep (spec.md §7's "/status always responds"), then
// reacquires it before touching ControllerState again.
func (c *Controller) teardown(ctx context.Context, p *pairedWorker) {
	if p.runtime != nil {
		if err := c.runtime.StopWorker(ctx, p.runtime.ContainerID, 30*time.Second); err != nil {
			c.log.Error().Err(err).Str("worker", p.name).Msg("stop_worker failed")
		}
	}

	if p.registry != nil {
		c.mu.Unlock()
		time.Sleep(registrationGraceCheck)
		stillListed, err := c.registryStillLists(ctx, p.registry.ID)
		c.mu.Lock()
		if err == nil && stillListed {
			if err := c.registry.DeleteWorker(ctx, p.registry.ID); err != nil {
				c.log.Error().Err(err).Str("worker", p.name).Msg("delete_worker failed")
			}
		}
	}

	if p.runtime != nil {
		if err := c.runtime.RemoveWorker(ctx, p.runtime.ContainerID, true); err != nil {
			c.log.Error().Err(err).Str("worker", p.name).Msg("remove_worker failed")
		}
	}

	delete(c.state.workers, p.name)
	c.state.metrics.TotalDestroyed++
	logging.Event(c.log, "worker_destroyed", map[string]any{"worker": p.name})
}

func (c *Controller) registryStillLists(ctx context.Context, id int64) (bool, error) {
	workers, err := c.registry.ListWorkers(ctx)
	if err != nil {
		return false, err
	}
	for _, w := range workers {
		if w.ID == id {
			return true, nil
		}
	}
	return false, nil
}

var errAtCeiling = &ceilingError{}

type ceilingError struct{}

func (e *ceilingError) Error() string { return "runtime_count at or above MAX_RUNNERS" }
