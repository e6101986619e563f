package runtime

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"

	"github.com/briarlatch/foreman/internal/identity"
)

// RuntimeWorker is the Runtime Adapter's view of a worker container
// (spec.md §3's RuntimeWorker type).
type RuntimeWorker struct {
	ContainerID   string
	ContainerName string
	Status        string
	WorkerName    string
	Image         string
	CreatedAt     time.Time
	Labels        map[string]string
}

// ResourceLimits bounds the CPU and memory a worker container may use.
// Either field left at zero means unbounded on that axis.
type ResourceLimits struct {
	CPUs        float64
	MemoryBytes int64
}

// CreateWorkerParams collects create_worker's arguments (spec.md §4.2).
type CreateWorkerParams struct {
	Name           string
	RepoURL        string
	RegToken       string
	WorkerName     string
	Image          string
	Env            []string
	ResourceLimits ResourceLimits
}

// CreateWorker launches an ephemeral worker container: privileged (so the
// worker image can run its own container engine), an anonymous volume for
// its work tree, and "unless-stopped" restart, per spec.md §4.2.
func (c *Client) CreateWorker(ctx context.Context, p CreateWorkerParams) (RuntimeWorker, error) {
	env := append([]string{
		fmt.Sprintf("REPO_URL=%s", p.RepoURL),
		fmt.Sprintf("RUNNER_TOKEN=%s", p.RegToken),
		fmt.Sprintf("RUNNER_NAME=%s", p.Name),
	}, p.Env...)

	labels := identity.Labels(c.controllerID, map[string]string{
		"worker-name": p.Name,
	})

	containerConfig := &container.Config{
		Image:  p.Image,
		Env:    env,
		Labels: labels,
	}

	hostConfig := &container.HostConfig{
		NetworkMode:   container.NetworkMode(c.network),
		Privileged:    true,
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
		Mounts: []mount.Mount{
			{Type: mount.TypeVolume, Target: "/work"},
		},
	}

	if p.ResourceLimits.CPUs > 0 {
		hostConfig.NanoCPUs = int64(p.ResourceLimits.CPUs * 1e9)
	}
	if p.ResourceLimits.MemoryBytes > 0 {
		hostConfig.Memory = p.ResourceLimits.MemoryBytes
	}

	resp, err := c.docker.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, p.WorkerName)
	if err != nil {
		return RuntimeWorker{}, fmt.Errorf("create worker container %s: %w", p.WorkerName, err)
	}

	if err := c.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = c.docker.ContainerRemove(ctx, resp.ID, types.ContainerRemoveOptions{Force: true, RemoveVolumes: true})
		return RuntimeWorker{}, fmt.Errorf("start worker container %s: %w", p.WorkerName, err)
	}

	return RuntimeWorker{
		ContainerID:   resp.ID,
		ContainerName: p.WorkerName,
		Status:        "running",
		WorkerName:    p.Name,
		Image:         p.Image,
		CreatedAt:     time.Now(),
		Labels:        labels,
	}, nil
}

func (c *Client) managedFilter() filters.Args {
	f := filters.NewArgs()
	f.Add("label", fmt.Sprintf("%s=%s", identity.LabelManagedBy, c.controllerID))
	return f
}

// ListWorkers returns every container bearing this controller's
// managed-by label and identity prefix, regardless of lifecycle state
// (spec.md §3's RuntimeWorker filter, §4.2).
func (c *Client) ListWorkers(ctx context.Context) ([]RuntimeWorker, error) {
	containers, err := c.docker.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: c.managedFilter(),
	})
	if err != nil {
		return nil, fmt.Errorf("list worker containers: %w", err)
	}

	workers := make([]RuntimeWorker, 0, len(containers))
	for _, ct := range containers {
		name := ct.Labels["worker-name"]
		if !identity.HasPrefix(name, c.prefix) {
			continue
		}
		containerName := ct.ID
		if len(ct.Names) > 0 {
			containerName = ct.Names[0]
		}
		workers = append(workers, RuntimeWorker{
			ContainerID:   ct.ID,
			ContainerName: containerName,
			Status:        ct.State,
			WorkerName:    name,
			Image:         ct.Image,
			CreatedAt:     time.Unix(ct.Created, 0),
			Labels:        ct.Labels,
		})
	}
	return workers, nil
}

// StopWorker sends SIGTERM, waits up to grace for the worker image's
// shutdown hook to deregister, then SIGKILLs (spec.md §4.2).
func (c *Client) StopWorker(ctx context.Context, containerID string, grace time.Duration) error {
	secs := int(grace.Seconds())
	if err := c.docker.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &secs}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("stop worker container %s: %w", containerID, err)
	}
	return nil
}

// RemoveWorker removes a container and its anonymous volumes.
func (c *Client) RemoveWorker(ctx context.Context, containerID string, force bool) error {
	err := c.docker.ContainerRemove(ctx, containerID, types.ContainerRemoveOptions{
		Force:         force,
		RemoveVolumes: true,
	})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("remove worker container %s: %w", containerID, err)
	}
	return nil
}

// ReapDead removes every managed container sitting in a terminal state
// along with its volumes, and reports how many it removed (spec.md §4.2,
// the T5 dead-cleaner task).
func (c *Client) ReapDead(ctx context.Context) (int, error) {
	containers, err := c.docker.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: c.managedFilter(),
	})
	if err != nil {
		return 0, fmt.Errorf("list containers for reap: %w", err)
	}

	reaped := 0
	for _, ct := range containers {
		if ct.State != "exited" && ct.State != "dead" {
			continue
		}
		if err := c.RemoveWorker(ctx, ct.ID, true); err != nil {
			return reaped, fmt.Errorf("reap container %s: %w", ct.ID, err)
		}
		reaped++
	}
	return reaped, nil
}

// GetLogs fetches the last `tail` lines of a worker container's combined
// stdout/stderr.
func (c *Client) GetLogs(ctx context.Context, containerID string, tail int) (string, error) {
	opts := types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       fmt.Sprintf("%d", tail),
	}

	reader, err := c.docker.ContainerLogs(ctx, containerID, opts)
	if err != nil {
		return "", fmt.Errorf("fetch logs for %s: %w", containerID, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read logs for %s: %w", containerID, err)
	}
	return string(data), nil
}

// EnsureNetwork idempotently creates the dedicated bridge network this
// controller's workers join, labeled with the controller id so it can be
// found again on restart (spec.md §4.2).
func (c *Client) EnsureNetwork(ctx context.Context) error {
	networks, err := c.docker.NetworkList(ctx, types.NetworkListOptions{
		Filters: c.managedFilter(),
	})
	if err != nil {
		return fmt.Errorf("list networks: %w", err)
	}
	for _, n := range networks {
		if n.Name == c.network {
			return nil
		}
	}

	_, err = c.docker.NetworkCreate(ctx, c.network, types.NetworkCreate{
		Driver: "bridge",
		Labels: identity.Labels(c.controllerID, nil),
	})
	if err != nil {
		return fmt.Errorf("create network %s: %w", c.network, err)
	}
	return nil
}
