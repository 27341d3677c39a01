package lifecycle_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasta-kro/corvus-gateway/internal/domain"
	"github.com/sasta-kro/corvus-gateway/internal/lifecycle"
	"github.com/sasta-kro/corvus-gateway/internal/registry"
	"github.com/sasta-kro/corvus-gateway/internal/runtimeadapter"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRuntime stands in for the Docker-backed adapter. Run binds a real
// HTTP listener on the requested host_port so the readiness prober has
// something to poll against, and counts calls so tests can assert on the
// at-most-one-warm-up guarantee.
type fakeRuntime struct {
	mutex     sync.Mutex
	listeners map[string]net.Listener
	runCalls  atomic.Int64
	refuseRun bool
	neverUp   bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{listeners: make(map[string]net.Listener)}
}

func (f *fakeRuntime) Run(ctx context.Context, config runtimeadapter.RunConfig) (string, error) {
	f.runCalls.Add(1)
	if f.refuseRun {
		return "", fmt.Errorf("runtime refused to start container")
	}
	if f.neverUp {
		return config.ContainerName, nil
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", config.HostPort))
	if err != nil {
		return "", err
	}

	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})}
	go server.Serve(listener)

	f.mutex.Lock()
	f.listeners[config.ContainerName] = listener
	f.mutex.Unlock()

	return config.ContainerName, nil
}

func (f *fakeRuntime) Stop(ctx context.Context, engineHandle string, graceSeconds int) error {
	return nil
}

func (f *fakeRuntime) Remove(ctx context.Context, engineHandle string, force bool) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if listener, found := f.listeners[engineHandle]; found {
		listener.Close()
		delete(f.listeners, engineHandle)
	}
	return nil
}

func (f *fakeRuntime) Logs(ctx context.Context, engineHandle string, tailLines int) ([]byte, error) {
	return []byte("fake log tail"), nil
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func TestEnsureReadyStartsAndProbesContainer(t *testing.T) {
	reg := registry.New()
	fake := newFakeRuntime()
	manager := lifecycle.New(fake, reg, newTestLogger(), time.Second, 50*time.Millisecond)

	descriptor := domain.Descriptor{
		AppName:   "static-app",
		Framework: domain.FrameworkVite,
		HostPort:  freePort(t),
		ImageRef:  "static-app:latest",
	}
	require.NoError(t, reg.Put(descriptor))

	handle, err := manager.EnsureReady(context.Background(), "static-app")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(handle.EngineHandle, "corvus-static-app-"))
	assert.EqualValues(t, 1, fake.runCalls.Load())
}

func TestEnsureReadyCoalescesConcurrentWarmups(t *testing.T) {
	reg := registry.New()
	fake := newFakeRuntime()
	manager := lifecycle.New(fake, reg, newTestLogger(), time.Second, 50*time.Millisecond)

	descriptor := domain.Descriptor{
		AppName:   "concurrent-app",
		Framework: domain.FrameworkReact,
		HostPort:  freePort(t),
		ImageRef:  "concurrent-app:latest",
	}
	require.NoError(t, reg.Put(descriptor))

	const callers = 20
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := manager.EnsureReady(context.Background(), "concurrent-app")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, fake.runCalls.Load(), "exactly one warm-up should run for concurrent callers")
}

func TestEnsureReadyReturnsErrNotReadyWhenProbeFails(t *testing.T) {
	reg := registry.New()
	fake := newFakeRuntime()
	fake.neverUp = true
	manager := lifecycle.New(fake, reg, newTestLogger(), time.Second, 50*time.Millisecond)

	descriptor := domain.Descriptor{
		AppName:   "dead-app",
		Framework: domain.FrameworkVite,
		HostPort:  freePort(t),
		ImageRef:  "dead-app:latest",
	}
	require.NoError(t, reg.Put(descriptor))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := manager.EnsureReady(ctx, "dead-app")
	require.Error(t, err)

	var notReady *lifecycle.ErrNotReady
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, "dead-app", notReady.AppName)
}

func TestEnsureReadyReturnsErrUnknownAppForUnregisteredName(t *testing.T) {
	reg := registry.New()
	fake := newFakeRuntime()
	manager := lifecycle.New(fake, reg, newTestLogger(), time.Second, 50*time.Millisecond)

	_, err := manager.EnsureReady(context.Background(), "never-registered")
	assert.ErrorIs(t, err, lifecycle.ErrUnknownApp)
}

func TestReaperEvictsIdleHandles(t *testing.T) {
	reg := registry.New()
	fake := newFakeRuntime()
	manager := lifecycle.New(fake, reg, newTestLogger(), 100*time.Millisecond, 30*time.Millisecond)

	descriptor := domain.Descriptor{
		AppName:   "idle-app",
		Framework: domain.FrameworkVite,
		HostPort:  freePort(t),
		ImageRef:  "idle-app:latest",
	}
	require.NoError(t, reg.Put(descriptor))

	_, err := manager.EnsureReady(context.Background(), "idle-app")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Run(ctx)

	require.Eventually(t, func() bool {
		fake.mutex.Lock()
		defer fake.mutex.Unlock()
		return len(fake.listeners) == 0
	}, 2*time.Second, 20*time.Millisecond, "idle container should be reaped")
}

func TestShutdownTearsDownRemainingContainers(t *testing.T) {
	reg := registry.New()
	fake := newFakeRuntime()
	manager := lifecycle.New(fake, reg, newTestLogger(), time.Minute, 10*time.Millisecond)

	descriptor := domain.Descriptor{
		AppName:   "shutdown-app",
		Framework: domain.FrameworkVite,
		HostPort:  freePort(t),
		ImageRef:  "shutdown-app:latest",
	}
	require.NoError(t, reg.Put(descriptor))

	_, err := manager.EnsureReady(context.Background(), "shutdown-app")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	manager.Run(ctx)

	require.NoError(t, manager.Shutdown(context.Background()))
	cancel()

	fake.mutex.Lock()
	stillUp := len(fake.listeners) != 0
	fake.mutex.Unlock()
	assert.False(t, stillUp, "shutdown should remove all remaining containers")
}
