package controller

import (
	"context"
	"time"

	"github.com/briarlatch/foreman/internal/registry"
	"github.com/briarlatch/foreman/internal/runtime"
)

// RegistryAdapter is the subset of registry.Client the Controller depends
// on, so tests can supply a fake without a live remote service.
type RegistryAdapter interface {
	ListWorkers(ctx context.Context) ([]registry.RegistryWorker, error)
	FetchRegistrationToken(ctx context.Context) (registry.RegistrationToken, error)
	DeleteWorker(ctx context.Context, id int64) error
	ListPendingWork(ctx context.Context) (registry.PendingWork, error)
}

// RuntimeAdapter is the subset of runtime.Client the Controller depends
// on, so tests can supply a fake without a live Docker daemon.
type RuntimeAdapter interface {
	CreateWorker(ctx context.Context, p runtime.CreateWorkerParams) (runtime.RuntimeWorker, error)
	ListWorkers(ctx context.Context) ([]runtime.RuntimeWorker, error)
	StopWorker(ctx context.Context, containerID string, grace time.Duration) error
	RemoveWorker(ctx context.Context, containerID string, force bool) error
	ReapDead(ctx context.Context) (int, error)
	GetLogs(ctx context.Context, containerID string, tail int) (string, error)
	EnsureNetwork(ctx context.Context) error
}
