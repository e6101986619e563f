package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/briarlatch/foreman/internal/registry"
	"github.com/briarlatch/foreman/internal/runtime"
)

// fakeRegistry is an in-memory RegistryAdapter for exercising the
// Controller without a live remote service.
type fakeRegistry struct {
	mu      sync.Mutex
	workers map[int64]*registry.RegistryWorker
	nextID  int64
	queued  *int
	inProg  int

	tokenErr error
	listErr  error
	pendErr  error
}

func newFakeRegistry() *fakeRegistry {
	zero := 0
	return &fakeRegistry{workers: make(map[int64]*registry.RegistryWorker), queued: &zero}
}

func (f *fakeRegistry) ListWorkers(ctx context.Context) ([]registry.RegistryWorker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]registry.RegistryWorker, 0, len(f.workers))
	for _, w := range f.workers {
		out = append(out, *w)
	}
	return out, nil
}

func (f *fakeRegistry) FetchRegistrationToken(ctx context.Context) (registry.RegistrationToken, error) {
	if f.tokenErr != nil {
		return registry.RegistrationToken{}, f.tokenErr
	}
	return registry.RegistrationToken{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeRegistry) DeleteWorker(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.workers, id)
	return nil
}

func (f *fakeRegistry) ListPendingWork(ctx context.Context) (registry.PendingWork, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendErr != nil {
		return registry.PendingWork{}, f.pendErr
	}
	return registry.PendingWork{Queued: f.queued, InProgress: f.inProg}, nil
}

// register adds (or updates) a registry-side worker for test setup.
func (f *fakeRegistry) register(name, status string, busy bool) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.workers[f.nextID] = &registry.RegistryWorker{ID: f.nextID, Name: name, Status: status, Busy: busy}
	return f.nextID
}

func (f *fakeRegistry) setStatus(id int64, status string, busy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.workers[id]; ok {
		w.Status = status
		w.Busy = busy
	}
}

func (f *fakeRegistry) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.workers)
}

// fakeRuntime is an in-memory RuntimeAdapter backed by a map, keyed by a
// synthetic container ID.
type fakeRuntime struct {
	mu        sync.Mutex
	workers   map[string]*runtime.RuntimeWorker
	nextID    int
	createErr error
	listErr   error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{workers: make(map[string]*runtime.RuntimeWorker)}
}

func (f *fakeRuntime) CreateWorker(ctx context.Context, p runtime.CreateWorkerParams) (runtime.RuntimeWorker, error) {
	if f.createErr != nil {
		return runtime.RuntimeWorker{}, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("container-%d", f.nextID)
	w := &runtime.RuntimeWorker{
		ContainerID:   id,
		ContainerName: p.WorkerName,
		Status:        "running",
		WorkerName:    p.Name,
		Image:         p.Image,
		CreatedAt:     time.Now(),
	}
	f.workers[id] = w
	return *w, nil
}

func (f *fakeRuntime) ListWorkers(ctx context.Context) ([]runtime.RuntimeWorker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]runtime.RuntimeWorker, 0, len(f.workers))
	for _, w := range f.workers {
		out = append(out, *w)
	}
	return out, nil
}

func (f *fakeRuntime) StopWorker(ctx context.Context, containerID string, grace time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.workers[containerID]; ok {
		w.Status = "exited"
	}
	return nil
}

func (f *fakeRuntime) RemoveWorker(ctx context.Context, containerID string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.workers, containerID)
	return nil
}

func (f *fakeRuntime) ReapDead(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reaped := 0
	for id, w := range f.workers {
		if w.Status == "exited" || w.Status == "dead" {
			delete(f.workers, id)
			reaped++
		}
	}
	return reaped, nil
}

func (f *fakeRuntime) GetLogs(ctx context.Context, containerID string, tail int) (string, error) {
	return "fake logs for " + containerID, nil
}

func (f *fakeRuntime) EnsureNetwork(ctx context.Context) error {
	return nil
}

// age backdates a worker's created_at directly in the fake, so tests can
// exercise age-based thresholds (I3, scale-down FIFO) without sleeping.
func (f *fakeRuntime) age(containerID string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.workers[containerID]; ok {
		w.CreatedAt = time.Now().Add(-d)
	}
}

func (f *fakeRuntime) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.workers)
}
