// Package gateway composes the HTTP surface of the serverless container
// gateway: registration, listing, the reverse proxy, and the static asset
// fallback, on top of chi.
package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/sasta-kro/corvus-gateway/internal/buildpipeline"
	"github.com/sasta-kro/corvus-gateway/internal/events"
	"github.com/sasta-kro/corvus-gateway/internal/proxy"
	"github.com/sasta-kro/corvus-gateway/internal/registry"
)

// Dependencies groups everything the router needs to construct its
// handlers. adding a dependency means adding one field here, not changing
// every call site.
type Dependencies struct {
	Logger   *slog.Logger
	Registry *registry.Registry
	Pipeline *buildpipeline.Pipeline
	Proxy    *proxy.Proxy
	Journal  *events.Journal
	Manager  statusSource

	// RegistrationLimiter overrides the default registration rate limiter.
	// nil uses the production default (1 req/s, burst 3); tests substitute
	// a tighter limiter to exercise the 429 path deterministically.
	RegistrationLimiter *rate.Limiter
}

// NewRouter constructs the chi multiplexer, attaches middleware, and
// registers every route named in the external interface.
func NewRouter(deps Dependencies) http.Handler {
	router := chi.NewRouter()

	router.Use(slogLogger(deps.Logger))
	router.Use(middleware.Recoverer)
	router.Use(CORSMiddleware())

	handlers := NewHandlers(deps.Registry, deps.Pipeline, deps.Proxy, deps.Journal, deps.Manager, deps.Logger)

	router.Get("/health", Health)

	// registration triggers a Docker image build, the single most
	// expensive operation the gateway performs, so it alone sits behind a
	// rate limiter rather than trusting callers to self-limit.
	registrationLimiter := deps.RegistrationLimiter
	if registrationLimiter == nil {
		registrationLimiter = rate.NewLimiter(rate.Limit(1), 3)
	}
	router.With(rateLimitMiddleware(registrationLimiter, deps.Logger)).Post("/build/lambda", handlers.BuildLambda)

	router.Get("/apps", handlers.ListApps)
	router.Get("/apps/{name}/events", handlers.AppEvents)

	router.Get("/app/{name}", handlers.RedirectToApp)
	router.HandleFunc("/app/{name}/*", handlers.ProxyToApp)

	router.Get("/{filename}", handlers.StaticAssetFallback)

	return router
}
