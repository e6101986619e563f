// Package runtime implements the Runtime Adapter of spec.md §4.2: the
// controller's only point of contact with the container engine. Every
// call here is a thin, typed wrapper over the Docker SDK — no scaling
// logic lives in this package.
package runtime

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// Client wraps a Docker SDK client with the controller identity and
// network it scopes every query and mutation to.
type Client struct {
	docker       *client.Client
	controllerID string
	network      string
	prefix       string
}

// NewClient creates a Docker client and verifies the daemon is reachable,
// the same way the teacher's docker.NewClient does, plus the controller
// identity and worker-name prefix this adapter filters and stamps on
// everything it touches (spec.md §3/§4.2's dual label+prefix filter).
func NewClient(ctx context.Context, socket, controllerID, network, prefix string) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if socket != "" {
		opts = append(opts, client.WithHost(socket))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("docker daemon not accessible: %w", err)
	}

	return &Client{docker: cli, controllerID: controllerID, network: network, prefix: prefix}, nil
}

// Close releases the underlying Docker SDK connection.
func (c *Client) Close() error {
	return c.docker.Close()
}
