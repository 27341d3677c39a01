package lifecycle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sasta-kro/corvus-gateway/internal/events"
)

// Run starts the idle reaper in its own goroutine. it stops when ctx is
// canceled or Shutdown is called, whichever comes first.
func (manager *Manager) Run(ctx context.Context) {
	go manager.runReaper(ctx)
}

func (manager *Manager) runReaper(ctx context.Context) {
	defer close(manager.reaperDone)

	ticker := time.NewTicker(manager.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-manager.stopReaper:
			return
		case <-ticker.C:
			manager.reapIdle()
		}
	}
}

func (manager *Manager) reapIdle() {
	now := time.Now()

	manager.mutex.RLock()
	var stale []*Handle
	var staleIdleFor []time.Duration
	for _, handle := range manager.handles {
		if idle := now.Sub(handle.LastAccess); idle > manager.idleTimeout {
			stale = append(stale, handle)
			staleIdleFor = append(staleIdleFor, idle)
		}
	}
	manager.mutex.RUnlock()

	for i, handle := range stale {
		idleFor := staleIdleFor[i]
		manager.logger.Info("reaping idle container", "app_name", handle.AppName, "idle_for", idleFor)
		manager.recordEvent(handle.AppName, events.KindIdleEviction, fmt.Sprintf("idle for %s", idleFor))
		manager.evictAndTeardown(handle.AppName, handle)
	}
}

// Shutdown stops the reaper and tears down every remaining container
// concurrently, bounding total shutdown time to the slowest single
// container rather than the sum of all of them.
func (manager *Manager) Shutdown(ctx context.Context) error {
	close(manager.stopReaper)
	<-manager.reaperDone

	manager.mutex.Lock()
	remaining := make([]*Handle, 0, len(manager.handles))
	for _, handle := range manager.handles {
		remaining = append(remaining, handle)
	}
	manager.handles = make(map[string]*Handle)
	manager.mutex.Unlock()

	group, groupCtx := errgroup.WithContext(ctx)
	for _, handle := range remaining {
		handle := handle
		group.Go(func() error {
			if err := manager.adapter.Stop(groupCtx, handle.EngineHandle, stopGraceSeconds); err != nil {
				manager.logger.Warn("shutdown: failed to stop container", "app_name", handle.AppName, "error", err)
			}
			if err := manager.adapter.Remove(groupCtx, handle.EngineHandle, true); err != nil {
				manager.logger.Warn("shutdown: failed to remove container", "app_name", handle.AppName, "error", err)
			}
			return nil
		})
	}
	return group.Wait()
}
