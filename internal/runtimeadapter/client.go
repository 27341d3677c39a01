// Package runtimeadapter wraps the Docker Engine API client and exposes the
// handful of operations the gateway's lifecycle manager and build pipeline
// need: build an image, run/stop/remove a container, fetch status/logs, and
// wait for exit. all Docker SDK calls are isolated here so no other package
// imports the SDK directly -- if the container engine strategy ever changes,
// only this package changes.
package runtimeadapter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dockerclient "github.com/docker/docker/client"
)

// Adapter wraps the Docker SDK client with a logger. safe to share across
// goroutines: the SDK client handles its own concurrency internally.
type Adapter struct {
	sdk    *dockerclient.Client
	logger *slog.Logger
}

// New constructs an Adapter, connecting to the Docker daemon using the
// standard environment-derived options (DOCKER_HOST, DOCKER_TLS_VERIFY,
// falling back to the default unix socket), and pings the daemon to fail
// fast if it is unreachable.
func New(logger *slog.Logger) (*Adapter, error) {
	sdk, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker sdk client: %w", err)
	}

	adapter := &Adapter{sdk: sdk, logger: logger}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := adapter.ping(pingCtx); err != nil {
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}

	logger.Info("docker runtime adapter connected", "host", sdk.DaemonHost())
	return adapter, nil
}

func (adapter *Adapter) ping(ctx context.Context) error {
	_, err := adapter.sdk.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker ping failed: %w", err)
	}
	return nil
}

// Close releases the underlying Docker SDK client connection. should be
// deferred immediately after New returns successfully.
func (adapter *Adapter) Close() error {
	return adapter.sdk.Close()
}
