package controller

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// WorkerView is the joined view the status surface exposes for
// GET /api/v1/workers (spec.md §6).
type WorkerView struct {
	Name          string    `json:"name"`
	ContainerID   string    `json:"container_id"`
	ContainerName string    `json:"container_name"`
	RuntimeStatus string    `json:"runtime_status"`
	RegistryID    int64     `json:"registry_id"`
	RegistryState string    `json:"registry_state"` // "online", "offline", or "" if unregistered
	Busy          bool      `json:"busy"`
	CreatedAt     time.Time `json:"created_at"`
}

// ErrBusy is returned by Delete when the target worker's registry entry
// is busy=true (spec.md §6's DELETE refusal, property P4, scenario S6).
var ErrBusy = fmt.Errorf("worker is busy")

// Workers returns the joined registry/runtime view for the status
// surface, ordered by name for stable output.
func (c *Controller) Workers(ctx context.Context) ([]WorkerView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	registryWorkers, err := c.registry.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}
	runtimeWorkers, err := c.runtime.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}

	paired := joinViews(registryWorkers, runtimeWorkers)
	views := make([]WorkerView, 0, len(paired))
	for _, p := range paired {
		v := WorkerView{Name: p.name}
		if p.runtime != nil {
			v.ContainerID = p.runtime.ContainerID
			v.ContainerName = p.runtime.ContainerName
			v.RuntimeStatus = p.runtime.Status
			v.CreatedAt = p.runtime.CreatedAt
		}
		if rec, ok := c.state.workers[p.name]; ok {
			v.CreatedAt = rec.CreatedAt
		}
		if p.registry != nil {
			v.RegistryID = p.registry.ID
			v.RegistryState = p.registry.Status
			v.Busy = p.registry.Busy
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	return views, nil
}

// ScaleUp is the manual scale-up trigger (spec.md §6): it bypasses the
// cooldown but still respects MAX_RUNNERS and the circuit breaker, per
// property P6.
func (c *Controller) ScaleUp(ctx context.Context, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.metrics.CircuitBreakerActive {
		return fmt.Errorf("circuit breaker is open")
	}
	c.provisionN(ctx, n)
	return nil
}

// ScaleDown is the manual scale-down trigger (spec.md §6): it tears down
// up to n online-and-not-busy workers, oldest first.
func (c *Controller) ScaleDown(ctx context.Context, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	registryWorkers, err := c.registry.ListWorkers(ctx)
	if err != nil {
		return err
	}
	runtimeWorkers, err := c.runtime.ListWorkers(ctx)
	if err != nil {
		return err
	}

	c.scaleDownN(ctx, n, joinViews(registryWorkers, runtimeWorkers))
	return nil
}

// Delete tears down exactly one worker by name, refusing with ErrBusy if
// its registry entry is busy=true (spec.md §6, scenario S6).
func (c *Controller) Delete(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	registryWorkers, err := c.registry.ListWorkers(ctx)
	if err != nil {
		return err
	}
	runtimeWorkers, err := c.runtime.ListWorkers(ctx)
	if err != nil {
		return err
	}

	paired := joinViews(registryWorkers, runtimeWorkers)
	p, ok := paired[name]
	if !ok {
		return fmt.Errorf("no such worker: %s", name)
	}
	if p.registry != nil && p.registry.Busy {
		return ErrBusy
	}

	c.teardown(ctx, p)
	return nil
}

// Logs proxies the Runtime Adapter's get_logs for one worker by name
// (spec.md §6's /api/v1/workers/{id}/logs).
func (c *Controller) Logs(ctx context.Context, name string, tail int) (string, error) {
	containerID := name

	runtimeWorkers, err := c.runtime.ListWorkers(ctx)
	if err != nil {
		return "", err
	}
	for _, rw := range runtimeWorkers {
		if rw.WorkerName == name {
			containerID = rw.ContainerID
			break
		}
	}

	return c.runtime.GetLogs(ctx, containerID, tail)
}

// CandidateNames returns every worker name this controller currently
// knows about, for short-ID resolution in the HTTP surface.
func (c *Controller) CandidateNames(ctx context.Context) ([]string, error) {
	runtimeWorkers, err := c.runtime.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(runtimeWorkers))
	for _, rw := range runtimeWorkers {
		if rw.WorkerName != "" {
			names = append(names, rw.WorkerName)
		}
	}
	return names, nil
}
