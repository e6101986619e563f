// Package identity builds and recognizes the names and labels that mark a
// registration or a container as belonging to this controller (spec.md §3).
package identity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Label keys set on every container this controller creates. Operator
// tooling filters on managed-by to stay clear of containers it doesn't own.
const (
	LabelManagedBy = "managed-by"
	LabelComponent = "component"
)

// ComponentWorker is the value of LabelComponent on every worker container.
const ComponentWorker = "worker"

// New generates a fresh WorkerIdentity: the configured prefix followed by
// a random suffix (spec.md §3). The prefix is the sole filter used to
// decide which remote registrations and which local containers belong to
// this controller.
func New(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%s", prefix, suffix)
}

// HasPrefix reports whether name belongs to this controller's identity
// namespace. Any entity not carrying the prefix is ignored, per spec.md §3.
func HasPrefix(name, prefix string) bool {
	return strings.HasPrefix(name, prefix+"-") || name == prefix
}

// ContainerName builds the full container name for a worker, embedding
// both the worker identity and the controller-specific runner-name prefix
// (spec.md §3: "the full container name additionally embeds the
// controller-specific runner-name prefix").
func ContainerName(runnerNamePrefix, workerName string) string {
	return fmt.Sprintf("%s-%s", runnerNamePrefix, workerName)
}

// Labels returns the standard label set applied to every worker container,
// always including managed-by so operator tooling can filter safely
// (spec.md §4.2).
func Labels(controllerID string, extra map[string]string) map[string]string {
	labels := map[string]string{
		LabelManagedBy: controllerID,
		LabelComponent: ComponentWorker,
	}
	for k, v := range extra {
		labels[k] = v
	}
	return labels
}
