// Package domain defines the data structures shared across the gateway.
// it has no imports from other internal packages, making it the foundation
// of the dependency graph: registry, lifecycle, proxy, and gateway all import
// from here, never the other way around.
package domain

import "time"

// Framework identifies the runtime behavior of a registered application.
// a named string type keeps framework tags distinct from other strings in
// signatures, but any string converts to it, so unknown tags are caught at
// runtime by Valid rather than by the compiler.
type Framework string

const (
	// FrameworkNextJS is a node server listening on its own configured port,
	// built with BASE_PATH baked in and aware of it at runtime.
	FrameworkNextJS Framework = "nextjs"

	// FrameworkVite serves static assets behind an HTTP server on internal port 80.
	// identical runtime behavior to FrameworkReact.
	FrameworkVite Framework = "vite"

	// FrameworkReact serves static assets behind an HTTP server on internal port 80.
	// identical runtime behavior to FrameworkVite.
	FrameworkReact Framework = "react"
)

// IsStatic reports whether the framework serves pre-built static assets
// rather than running its own aware-of-BASE_PATH server.
// vite and react share this behavior; nextjs does not.
func (framework Framework) IsStatic() bool {
	return framework == FrameworkVite || framework == FrameworkReact
}

// Valid reports whether framework is one of the three supported tags.
func (framework Framework) Valid() bool {
	switch framework {
	case FrameworkNextJS, FrameworkVite, FrameworkReact:
		return true
	default:
		return false
	}
}

// Descriptor is the immutable registration record for one application.
// created by registration, never mutated afterward, destroyed only on process exit.
type Descriptor struct {
	AppName   string
	Framework Framework

	// HostPort is the unique port on the Docker host mapped to the container's
	// internal port. allocated once at registration and stable for the
	// descriptor's lifetime.
	HostPort int

	// BuildEnv is the set of environment variables injected as build arguments.
	// not forwarded to the running container verbatim -- see
	// internal/lifecycle for the runtime-env filtering rules.
	BuildEnv map[string]string

	// ImageRef is the opaque handle to the image built for this application,
	// e.g. "<app_name>:latest".
	ImageRef string

	// RegisteredAt is not set by the build pipeline or the registry. the
	// static-asset fallback's "first registered app" rule uses the
	// registry's own insertion order instead (see internal/registry).
	RegisteredAt time.Time
}
