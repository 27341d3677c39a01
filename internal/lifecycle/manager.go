package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/sasta-kro/corvus-gateway/internal/domain"
	"github.com/sasta-kro/corvus-gateway/internal/events"
	"github.com/sasta-kro/corvus-gateway/internal/probe"
	"github.com/sasta-kro/corvus-gateway/internal/registry"
	"github.com/sasta-kro/corvus-gateway/internal/runtimeadapter"
)

// runtime is the slice of the Container Runtime Adapter the lifecycle
// manager needs. *runtimeadapter.Adapter satisfies it; tests substitute a
// fake so warm-up/reap/shutdown logic can be exercised without a Docker
// daemon.
type runtime interface {
	Run(ctx context.Context, config runtimeadapter.RunConfig) (string, error)
	Stop(ctx context.Context, engineHandle string, graceSeconds int) error
	Remove(ctx context.Context, engineHandle string, force bool) error
	Logs(ctx context.Context, engineHandle string, tailLines int) ([]byte, error)
}

const (
	readinessTotalTimeout = 15 * time.Second
	readinessInterval     = 200 * time.Millisecond
	stopGraceSeconds      = 3

	// manyHandlesWarning is purely observational -- there is no enforced
	// cap on simultaneously running containers, see SPEC_FULL.md section 9.
	manyHandlesWarning = 25
)

// Manager produces a ready container handle for an application on demand,
// coalesces concurrent warm-ups for the same app_name, and reaps idle
// handles in the background.
type Manager struct {
	adapter  runtime
	registry *registry.Registry
	logger   *slog.Logger

	idleTimeout  time.Duration
	reapInterval time.Duration

	mutex   sync.RWMutex
	handles map[string]*Handle

	warmups singleflight.Group

	stopReaper chan struct{}
	reaperDone chan struct{}

	// journal is nil unless AttachJournal is called. warm-up/eviction
	// events are best-effort diagnostics, never load-bearing, so a nil
	// journal simply means nothing is recorded -- the same discipline
	// nil-check as a nil *slog.Logger would need, but for an optional
	// dependency rather than a required one.
	journal *events.Journal
}

// AttachJournal wires an event journal into the manager so warm-ups and
// idle evictions are recorded. optional: a Manager with no journal attached
// behaves identically, just without the audit trail.
func (manager *Manager) AttachJournal(journal *events.Journal) {
	manager.journal = journal
}

func (manager *Manager) recordEvent(appName string, kind events.Kind, detail string) {
	if manager.journal == nil {
		return
	}
	if err := manager.journal.Append(appName, kind, detail); err != nil {
		manager.logger.Warn("failed to append event", "app_name", appName, "error", err)
	}
}

// New constructs a Manager. callers must call Run to start the idle reaper
// and Shutdown to tear down any remaining containers on process exit.
func New(adapter runtime, reg *registry.Registry, logger *slog.Logger, idleTimeout, reapInterval time.Duration) *Manager {
	return &Manager{
		adapter:      adapter,
		registry:     reg,
		logger:       logger,
		idleTimeout:  idleTimeout,
		reapInterval: reapInterval,
		handles:      make(map[string]*Handle),
		stopReaper:   make(chan struct{}),
		reaperDone:   make(chan struct{}),
	}
}

// EnsureReady returns a ready Handle for appName, starting and probing a
// container if none is currently live. every concurrent caller for the
// same appName shares the one in-flight warm-up and its result.
func (manager *Manager) EnsureReady(ctx context.Context, appName string) (*Handle, error) {
	manager.mutex.RLock()
	handle, found := manager.handles[appName]
	manager.mutex.RUnlock()
	if found {
		manager.touch(handle)
		return handle, nil
	}

	descriptor, found := manager.registry.Get(appName)
	if !found {
		return nil, ErrUnknownApp
	}

	// the warm-up runs detached from the caller's cancellation: other
	// callers may be waiting on the same singleflight result, and a
	// half-started container must not be orphaned by one client hanging up.
	result, err, _ := manager.warmups.Do(appName, func() (any, error) {
		return manager.warmUp(context.WithoutCancel(ctx), descriptor)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Handle), nil
}

func (manager *Manager) touch(handle *Handle) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	handle.LastAccess = time.Now()
}

// warmUp starts a container for descriptor, installs its handle, and
// blocks until the readiness probe passes or fails.
func (manager *Manager) warmUp(ctx context.Context, descriptor domain.Descriptor) (*Handle, error) {
	// another caller may have installed a handle while this one waited to
	// become the singleflight leader (e.g. the previous warm-up finished
	// and was reaped, then a fresh one raced in between) -- check again.
	manager.mutex.RLock()
	if existing, found := manager.handles[descriptor.AppName]; found {
		manager.mutex.RUnlock()
		return existing, nil
	}
	manager.mutex.RUnlock()

	engineHandle, err := manager.adapter.Run(ctx, runtimeadapter.RunConfig{
		// a uuid suffix keeps the name unique across generations: a
		// reaped container's removal can race a fresh warm-up, and Docker
		// rejects ContainerCreate with a name already in use.
		ContainerName: fmt.Sprintf("corvus-%s-%s", descriptor.AppName, uuid.New().String()[:8]),
		ImageRef:      descriptor.ImageRef,
		InternalPort:  internalPort(descriptor.Framework),
		HostPort:      descriptor.HostPort,
		Env:           buildRuntimeEnv(descriptor),
	})
	if err != nil {
		return nil, &ErrStartupFailed{AppName: descriptor.AppName, Cause: err}
	}

	handle := newHandle(descriptor.AppName, engineHandle, descriptor.HostPort)
	manager.install(handle)

	ready := probe.Wait(ctx, readinessURL(descriptor), readinessTotalTimeout, readinessInterval)
	if !ready {
		logTail, _ := manager.adapter.Logs(context.Background(), engineHandle, 50)
		manager.evictAndTeardown(descriptor.AppName, handle)
		manager.logger.Warn("container never became ready", "app_name", descriptor.AppName, "log_tail", string(logTail))
		return nil, &ErrNotReady{AppName: descriptor.AppName, LogTail: string(logTail)}
	}

	manager.logger.Info("container warmed up", "app_name", descriptor.AppName, "engine_handle", engineHandle)
	manager.recordEvent(descriptor.AppName, events.KindWarmUp, "engine handle "+engineHandle)
	return handle, nil
}

func (manager *Manager) install(handle *Handle) {
	manager.mutex.Lock()
	manager.handles[handle.AppName] = handle
	count := len(manager.handles)
	manager.mutex.Unlock()

	if count > manyHandlesWarning {
		manager.logger.Warn("many containers running simultaneously", "count", count)
	}
}

// evictAndTeardown removes handle from the table (only if it is still the
// current occupant for its app_name, guarding against a newer handle
// already having replaced it) and stops+removes its container best effort.
func (manager *Manager) evictAndTeardown(appName string, handle *Handle) {
	manager.mutex.Lock()
	if current, found := manager.handles[appName]; found && current.generation == handle.generation {
		delete(manager.handles, appName)
	}
	manager.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := manager.adapter.Stop(ctx, handle.EngineHandle, stopGraceSeconds); err != nil {
		manager.logger.Warn("failed to stop container during teardown", "app_name", appName, "error", err)
	}
	if err := manager.adapter.Remove(ctx, handle.EngineHandle, true); err != nil {
		manager.logger.Warn("failed to remove container during teardown", "app_name", appName, "error", err)
	}
}

// IsRunning reports whether appName currently has a live handle, without
// triggering a warm-up. used by the gateway façade's application listing to
// report status without starting a container just to answer the question.
func (manager *Manager) IsRunning(appName string) bool {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()
	_, found := manager.handles[appName]
	return found
}

// Evict removes appName's handle (if it is still current) and tears its
// container down. used by the reverse proxy on a transport-level failure
// that indicates the container is gone, not merely slow.
func (manager *Manager) Evict(appName string) {
	manager.mutex.RLock()
	handle, found := manager.handles[appName]
	manager.mutex.RUnlock()
	if !found {
		return
	}
	manager.evictAndTeardown(appName, handle)
}

func internalPort(framework domain.Framework) int {
	if framework.IsStatic() {
		return 80
	}
	return 3000
}

func readinessURL(descriptor domain.Descriptor) string {
	if descriptor.Framework.IsStatic() {
		return fmt.Sprintf("http://127.0.0.1:%d/", descriptor.HostPort)
	}
	return fmt.Sprintf("http://127.0.0.1:%d/app/%s/", descriptor.HostPort, descriptor.AppName)
}

// buildRuntimeEnv applies the runtime environment rules from
// SPEC_FULL.md section 6: PORT and HOSTNAME are always injected; for
// nextjs, every build-time variable except the NEXT_PUBLIC_-prefixed ones
// is forwarded; for vite/react, no build-time variables are forwarded at
// runtime at all.
func buildRuntimeEnv(descriptor domain.Descriptor) []string {
	env := []string{
		fmt.Sprintf("PORT=%d", internalPort(descriptor.Framework)),
		"HOSTNAME=0.0.0.0",
	}

	if descriptor.Framework == domain.FrameworkNextJS {
		for key, value := range descriptor.BuildEnv {
			if !strings.HasPrefix(key, "NEXT_PUBLIC_") {
				env = append(env, key+"="+value)
			}
		}
	}
	return env
}
