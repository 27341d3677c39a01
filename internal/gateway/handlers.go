package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sasta-kro/corvus-gateway/internal/buildpipeline"
	"github.com/sasta-kro/corvus-gateway/internal/domain"
	"github.com/sasta-kro/corvus-gateway/internal/events"
	"github.com/sasta-kro/corvus-gateway/internal/proxy"
	"github.com/sasta-kro/corvus-gateway/internal/registry"
)

// staticExtensions is the set of file extensions the catch-all static
// asset route will serve by guessing which application they belong to:
// the original gateway's image and font allowlist, plus script,
// stylesheet, JSON and source-map files.
var staticExtensions = map[string]bool{
	".js": true, ".css": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".ico": true, ".svg": true, ".webp": true, ".woff": true, ".woff2": true,
	".ttf": true, ".eot": true, ".json": true, ".map": true,
}

// statusSource reports whether an application currently has a live
// container, without triggering a warm-up. *lifecycle.Manager satisfies
// this.
type statusSource interface {
	IsRunning(appName string) bool
}

// Handlers groups the dependencies every gateway endpoint needs.
type Handlers struct {
	registry *registry.Registry
	pipeline *buildpipeline.Pipeline
	proxy    *proxy.Proxy
	journal  *events.Journal
	manager  statusSource
	logger   *slog.Logger
}

// NewHandlers constructs a Handlers.
func NewHandlers(reg *registry.Registry, pipeline *buildpipeline.Pipeline, p *proxy.Proxy, journal *events.Journal, manager statusSource, logger *slog.Logger) *Handlers {
	return &Handlers{registry: reg, pipeline: pipeline, proxy: p, journal: journal, manager: manager, logger: logger}
}

type buildLambdaRequest struct {
	AppName     string            `json:"app_name"`
	Framework   string            `json:"framework"`
	ProjectPath string            `json:"project_path"`
	EnvVars     map[string]string `json:"env_vars"`
	Port        int               `json:"port,omitempty"`
}

type buildLambdaResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BuildLambda handles POST /build/lambda. registration failures are
// reported as HTTP 200 with success=false, preserving compatibility with
// the original gateway's response shape rather than switching to 4xx/5xx.
func (handlers *Handlers) BuildLambda(w http.ResponseWriter, r *http.Request) {
	var request buildLambdaRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusOK, buildLambdaResponse{Success: false, Error: "invalid JSON request body"})
		return
	}

	if request.AppName == "" || request.ProjectPath == "" {
		writeJSON(w, http.StatusOK, buildLambdaResponse{Success: false, Error: "app_name and project_path are required"})
		return
	}

	framework := domain.Framework(request.Framework)
	if !framework.Valid() {
		writeJSON(w, http.StatusOK, buildLambdaResponse{Success: false, Error: "framework must be nextjs, vite, or react"})
		return
	}

	handlers.appendEvent(request.AppName, events.KindRegistrationAttempt, "build requested")

	descriptor, err := handlers.pipeline.Build(r.Context(), buildpipeline.Request{
		ProjectPath: request.ProjectPath,
		AppName:     request.AppName,
		Framework:   framework,
		BuildEnv:    request.EnvVars,
		Port:        request.Port,
	})
	if err != nil {
		handlers.logger.Error("build failed", "app_name", request.AppName, "error", err)
		handlers.appendEvent(request.AppName, events.KindBuildFailed, err.Error())
		writeJSON(w, http.StatusOK, buildLambdaResponse{Success: false, Error: err.Error()})
		return
	}

	if err := handlers.registry.Put(descriptor); err != nil {
		handlers.logger.Error("registration failed", "app_name", request.AppName, "error", err)
		writeJSON(w, http.StatusOK, buildLambdaResponse{Success: false, Error: err.Error()})
		return
	}

	handlers.appendEvent(request.AppName, events.KindBuildSucceeded, "image "+descriptor.ImageRef)
	writeJSON(w, http.StatusOK, buildLambdaResponse{Success: true})
}

type appSummary struct {
	AppName   string            `json:"app_name"`
	URL       string            `json:"url"`
	HostPort  int               `json:"port"`
	Framework string            `json:"framework"`
	EnvVars   map[string]string `json:"env_vars"`
	Status    string            `json:"status"`
}

type listAppsResponse struct {
	Apps []appSummary `json:"apps"`
}

// ListApps handles GET /apps. url is the publicly-addressable /app/<name>
// URL derived from the request's own scheme and host, and status reports
// whether a container is currently running without starting one.
func (handlers *Handlers) ListApps(w http.ResponseWriter, r *http.Request) {
	descriptors := handlers.registry.List()
	summaries := make([]appSummary, 0, len(descriptors))
	for _, descriptor := range descriptors {
		status := "stopped"
		if handlers.manager.IsRunning(descriptor.AppName) {
			status = "running"
		}
		summaries = append(summaries, appSummary{
			AppName:   descriptor.AppName,
			URL:       appBaseURL(r) + "/app/" + descriptor.AppName,
			HostPort:  descriptor.HostPort,
			Framework: string(descriptor.Framework),
			EnvVars:   descriptor.BuildEnv,
			Status:    status,
		})
	}
	writeJSON(w, http.StatusOK, listAppsResponse{Apps: summaries})
}

// appBaseURL reconstructs the scheme+host the request arrived on, honoring
// a reverse proxy's X-Forwarded-Proto the way the original gateway's
// front-door deployment expects.
func appBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host
}

// AppEvents handles GET /apps/{name}/events.
func (handlers *Handlers) AppEvents(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rows, err := handlers.journal.Recent(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read event journal", handlers.logger)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// RedirectToApp handles GET /app/{name}, issuing the trailing-slash
// redirect the original gateway used for the bare app root.
func (handlers *Handlers) RedirectToApp(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	http.Redirect(w, r, "/app/"+name+"/", http.StatusTemporaryRedirect)
}

// ProxyToApp handles every verb under /app/{name}/*.
func (handlers *Handlers) ProxyToApp(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tail := chi.URLParam(r, "*")

	switch handlers.proxy.Forward(w, r, name, tail) {
	case proxy.StatusAppNotFound:
		writeError(w, http.StatusNotFound, "no such application", handlers.logger)
	case proxy.StatusNotReady:
		writeError(w, http.StatusServiceUnavailable, "container did not become ready in time", handlers.logger)
	case proxy.StatusUpstreamUnreachable:
		writeError(w, http.StatusServiceUnavailable, "upstream container unreachable", handlers.logger)
	case proxy.StatusUpstreamTimeout:
		writeError(w, http.StatusGatewayTimeout, "upstream container timed out", handlers.logger)
	case proxy.StatusInternalError:
		writeError(w, http.StatusInternalServerError, "internal proxy error", handlers.logger)
	case proxy.StatusOK:
		// response already written by Forward
	}
}

// StaticAssetFallback handles GET /{filename} for bare static asset
// requests that arrive without an /app/<name> prefix -- typically an
// asset URL a frontend emits as an absolute path such as "/logo.svg". it guesses the
// owning application from the Referer header, falling back to the first
// registered application, matching the original gateway's heuristic.
func (handlers *Handlers) StaticAssetFallback(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !staticExtensions[filepath.Ext(filename)] {
		http.NotFound(w, r)
		return
	}

	descriptors := handlers.registry.List()
	if len(descriptors) == 0 {
		http.NotFound(w, r)
		return
	}

	target, found := handlers.guessAppFromReferer(r)
	if !found {
		target, found = handlers.registry.First()
		if !found {
			http.NotFound(w, r)
			return
		}
	}

	http.Redirect(w, r, "/app/"+target+"/"+filename, http.StatusTemporaryRedirect)
}

func (handlers *Handlers) guessAppFromReferer(r *http.Request) (string, bool) {
	referer := r.Referer()
	if referer == "" {
		return "", false
	}
	for _, descriptor := range handlers.registry.List() {
		if strings.Contains(referer, "/app/"+descriptor.AppName) {
			return descriptor.AppName, true
		}
	}
	return "", false
}

func (handlers *Handlers) appendEvent(appName string, kind events.Kind, detail string) {
	if err := handlers.journal.Append(appName, kind, detail); err != nil {
		handlers.logger.Warn("failed to append event", "app_name", appName, "error", err)
	}
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
