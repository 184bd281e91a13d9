//go:build integration

package containers

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MemgraphContainer wraps a Memgraph instance reachable over Bolt.
type MemgraphContainer struct {
	Container testcontainers.Container
	Host      string
	Port      int
}

func NewMemgraphContainer(t *testing.T) *MemgraphContainer {
	t.Helper()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "memgraph/memgraph:latest",
			ExposedPorts: []string{"7687/tcp"},
			WaitingFor: wait.ForLog("Server is fully armed and operational").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start memgraph container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get memgraph host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, "7687")
	if err != nil {
		t.Fatalf("failed to get memgraph port: %v", err)
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		t.Fatalf("invalid memgraph port %q: %v", mapped.Port(), err)
	}

	return &MemgraphContainer{Container: container, Host: host, Port: port}
}
