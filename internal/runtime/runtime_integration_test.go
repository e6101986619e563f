//go:build integration

package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
)

// TestClient_WorkerLifecycle exercises CreateWorker, ListWorkers, StopWorker
// and RemoveWorker against a real Docker daemon. Run with
// go test -tags=integration ./internal/runtime/...
func TestClient_WorkerLifecycle(t *testing.T) {
	ctx := context.Background()
	controllerID := "foreman-test-" + uuid.NewString()[:8]

	prefix := "orchestrated"
	c, err := NewClient(ctx, "", controllerID, "bridge", prefix)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	workerName := prefix + "-runner-0"
	worker, err := c.CreateWorker(ctx, CreateWorkerParams{
		Name:       workerName,
		WorkerName: controllerID + "-" + workerName,
		Image:      "alpine:3.19",
		Env:        []string{"FOO=bar"},
	})
	if err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}
	defer c.RemoveWorker(ctx, worker.ContainerID, true)

	workers, err := c.ListWorkers(ctx)
	if err != nil {
		t.Fatalf("ListWorkers: %v", err)
	}
	found := false
	for _, w := range workers {
		if w.ContainerID == worker.ContainerID {
			found = true
		}
	}
	if !found {
		t.Fatalf("ListWorkers did not include created container %s", worker.ContainerID)
	}

	if err := c.StopWorker(ctx, worker.ContainerID, 5*time.Second); err != nil {
		t.Fatalf("StopWorker: %v", err)
	}

	if err := c.RemoveWorker(ctx, worker.ContainerID, true); err != nil {
		t.Fatalf("RemoveWorker: %v", err)
	}
}

// TestClient_ListWorkersIgnoresUnlabeledContainers proves the managed-by
// label filter (spec.md §4.2) excludes containers this controller did not
// create, using testcontainers-go to stand up an unrelated container on
// the same daemon.
func TestClient_ListWorkersIgnoresUnlabeledContainers(t *testing.T) {
	ctx := context.Background()
	controllerID := "foreman-test-" + uuid.NewString()[:8]

	bystander, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      "alpine:3.19",
			Cmd:        []string{"sleep", "30"},
			WaitingFor: nil,
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start bystander container: %v", err)
	}
	defer bystander.Terminate(ctx)

	c, err := NewClient(ctx, "", controllerID, "bridge", "orchestrated")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	workers, err := c.ListWorkers(ctx)
	if err != nil {
		t.Fatalf("ListWorkers: %v", err)
	}
	bystanderID := bystander.GetContainerID()
	for _, w := range workers {
		if w.ContainerID == bystanderID {
			t.Fatalf("ListWorkers returned unlabeled container %s", bystanderID)
		}
	}
}
