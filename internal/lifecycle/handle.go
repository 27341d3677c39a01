// Package lifecycle owns the per-application container handle table: it
// lazily starts containers on first request, coalesces concurrent warm-ups
// for the same application, probes for readiness, and reaps idle handles.
package lifecycle

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrNotReady is returned when a freshly started container never answers
// the readiness probe within its deadline. LogTail carries the last lines
// of container output captured before the container was torn down, so
// callers can surface why without a separate log query.
type ErrNotReady struct {
	AppName string
	LogTail string
}

func (e *ErrNotReady) Error() string {
	return "container for " + e.AppName + " did not become ready in time"
}

// ErrStartupFailed is returned when the runtime adapter itself fails to
// create or start the container, before any readiness probing begins.
type ErrStartupFailed struct {
	AppName string
	Cause   error
}

func (e *ErrStartupFailed) Error() string {
	return "failed to start container for " + e.AppName + ": " + e.Cause.Error()
}

func (e *ErrStartupFailed) Unwrap() error { return e.Cause }

// ErrUnknownApp is returned when EnsureReady is called for an app_name the
// Registry has no descriptor for.
var ErrUnknownApp = errors.New("unknown application")

var handleGeneration atomic.Int64

// Handle is a live container instance for one application. last_access is
// read and written under the Manager's mutex, never atomically on its own,
// since callers always hold the lock when touching it.
type Handle struct {
	AppName      string
	EngineHandle string
	HostPort     int
	LastAccess   time.Time

	// generation disambiguates a handle from whatever replaces it at the
	// same app_name, so the reaper never evicts a fresh warm-up that
	// happened to land mid-scan.
	generation int64
}

func newHandle(appName, engineHandle string, hostPort int) *Handle {
	return &Handle{
		AppName:      appName,
		EngineHandle: engineHandle,
		HostPort:     hostPort,
		LastAccess:   time.Now(),
		generation:   handleGeneration.Add(1),
	}
}
