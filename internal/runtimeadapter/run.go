package runtimeadapter

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

// runtimePlatform pins every container the gateway starts to linux/amd64,
// since the images buildpipeline produces are built FROM node/nginx base
// images that only publish that platform.
var runtimePlatform = &specs.Platform{OS: "linux", Architecture: "amd64"}

// corvusLabel marks every container the gateway starts, mirroring the
// teacher's traefikLabels pattern but for the gateway's own bookkeeping
// rather than Traefik discovery -- the gateway does its own routing.
const corvusLabel = "corvus.type"

// RunConfig holds the parameters for Run.
type RunConfig struct {
	// ContainerName is the Docker container name, conventionally
	// "corvus-<app_name>-<short uuid>".
	ContainerName string

	// ImageRef is the image to run, as returned by Adapter.Build.
	ImageRef string

	// InternalPort is the port the process inside the container listens on
	// (80 for vite/react behind their static server, the configured PORT
	// for nextjs).
	InternalPort int

	// HostPort is the port on the Docker host mapped to InternalPort.
	HostPort int

	// Env is the list of "KEY=VALUE" strings passed to the container.
	Env []string
}

// memoryLimitBytes and cpuNanos fix every container the gateway starts at
// the same resource ceiling -- 128 MiB and half a CPU, the same figures the
// original invoke_function used. there is no per-app override.
const (
	memoryLimitBytes = 128 * 1024 * 1024
	cpuNanos         = 500_000_000
)

// Run creates and starts a container, returning its Docker container ID as
// the opaque engine handle.
func (adapter *Adapter) Run(ctx context.Context, config RunConfig) (string, error) {
	internalPort, err := nat.NewPort("tcp", fmt.Sprintf("%d", config.InternalPort))
	if err != nil {
		return "", fmt.Errorf("invalid internal port %d: %w", config.InternalPort, err)
	}

	containerConfig := &container.Config{
		Image:        config.ImageRef,
		Env:          config.Env,
		ExposedPorts: nat.PortSet{internalPort: struct{}{}},
		Labels: map[string]string{
			corvusLabel:           "serverless-frontend",
			"corvus.created_at":   time.Now().UTC().Format(time.RFC3339),
			"corvus.container_of": config.ContainerName,
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			internalPort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", config.HostPort)}},
		},
		Resources: container.Resources{
			Memory:   memoryLimitBytes,
			NanoCPUs: cpuNanos,
		},
	}

	created, err := adapter.sdk.ContainerCreate(ctx, containerConfig, hostConfig, nil, runtimePlatform, config.ContainerName)
	if err != nil {
		return "", fmt.Errorf("failed to create container %q: %w", config.ContainerName, err)
	}

	if err := adapter.sdk.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container %q: %w", config.ContainerName, err)
	}

	adapter.logger.Info("container started", "name", config.ContainerName, "id", created.ID, "host_port", config.HostPort)
	return created.ID, nil
}

// Stop sends SIGTERM to the container, giving it graceSeconds to shut down
// before Docker escalates to SIGKILL.
func (adapter *Adapter) Stop(ctx context.Context, engineHandle string, graceSeconds int) error {
	err := adapter.sdk.ContainerStop(ctx, engineHandle, container.StopOptions{Timeout: &graceSeconds})
	if err != nil {
		return fmt.Errorf("failed to stop container %q: %w", engineHandle, err)
	}
	return nil
}

// Remove deletes a stopped container and its writable layer.
func (adapter *Adapter) Remove(ctx context.Context, engineHandle string, force bool) error {
	err := adapter.sdk.ContainerRemove(ctx, engineHandle, container.RemoveOptions{Force: force})
	if err != nil {
		return fmt.Errorf("failed to remove container %q: %w", engineHandle, err)
	}
	return nil
}

// Status reports whether the container identified by engineHandle is
// currently running. a container that no longer exists is reported as not
// running rather than as an error, since "gone" and "stopped" both mean the
// lifecycle manager should evict its handle.
func (adapter *Adapter) Status(ctx context.Context, engineHandle string) (bool, error) {
	inspection, err := adapter.sdk.ContainerInspect(ctx, engineHandle)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect container %q: %w", engineHandle, err)
	}
	return inspection.State != nil && inspection.State.Running, nil
}

// Logs returns the last tailLines of combined stdout/stderr output.
func (adapter *Adapter) Logs(ctx context.Context, engineHandle string, tailLines int) ([]byte, error) {
	reader, err := adapter.sdk.ContainerLogs(ctx, engineHandle, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       fmt.Sprintf("%d", tailLines),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read logs for container %q: %w", engineHandle, err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return nil, fmt.Errorf("failed to demultiplex logs for container %q: %w", engineHandle, err)
	}
	return append(stdout.Bytes(), stderr.Bytes()...), nil
}

// Wait blocks until the container exits or timeout elapses, returning its
// exit code.
func (adapter *Adapter) Wait(ctx context.Context, engineHandle string, timeout time.Duration) (int64, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statusChannel, errorChannel := adapter.sdk.ContainerWait(waitCtx, engineHandle, container.WaitConditionNotRunning)
	select {
	case err := <-errorChannel:
		if err != nil {
			return 0, fmt.Errorf("error waiting for container %q: %w", engineHandle, err)
		}
		return 0, nil
	case status := <-statusChannel:
		return status.StatusCode, nil
	}
}
