package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fitmarket/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	trainers RouteRegistrar
	leads    RouteRegistrar
	content  RouteRegistrar
	admin    RouteRegistrar
	webhooks RouteRegistrar

	publicMiddlewares  []func(http.Handler) http.Handler
	webhookMiddlewares []func(http.Handler) http.Handler

	rateLimit     int
	rateWindow    time.Duration
	webhookLimit  int
	webhookWindow time.Duration
	clock         func() time.Time
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and expected route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
		clock: time.Now,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	// Public forms share one limiter so a client cannot spread load across them.
	public := append([]func(http.Handler) http.Handler{
		rateLimitMiddleware(newSimpleRateLimiter(cfg.rateLimit, cfg.rateWindow, cfg.clock)),
	}, cfg.publicMiddlewares...)
	webhooks := append([]func(http.Handler) http.Handler{
		rateLimitMiddleware(newSimpleRateLimiter(cfg.webhookLimit, cfg.webhookWindow, cfg.clock)),
	}, cfg.webhookMiddlewares...)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrar RouteRegistrar, name string, groupMW []func(http.Handler) http.Handler) {
			api.Route(path, func(group chi.Router) {
				for _, mw := range groupMW {
					if mw != nil {
						group.Use(mw)
					}
				}
				if registrar != nil {
					registrar(group)
					return
				}
				registerNotImplemented(group, name)
			})
		}

		mount("/trainers", cfg.trainers, "trainers", public)
		mount("/leads", cfg.leads, "leads", public)
		mount("/content", cfg.content, "content", nil)
		mount("/admin", cfg.admin, "admin", nil)
		mount("/webhooks", cfg.webhooks, "webhooks", webhooks)
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithTrainerRoutes configures the registrar responsible for trainer endpoints.
func WithTrainerRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.trainers = reg
	}
}

// WithLeadRoutes configures the registrar responsible for the lead form.
func WithLeadRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.leads = reg
	}
}

// WithContentRoutes configures the registrar responsible for public content.
func WithContentRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.content = reg
	}
}

// WithAdminRoutes configures the registrar responsible for admin endpoints.
func WithAdminRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.admin = reg
	}
}

// WithWebhookRoutes configures the registrar responsible for webhook endpoints.
func WithWebhookRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.webhooks = reg
	}
}

// WithWebhookMiddlewares configures middlewares applied to the /webhooks group.
func WithWebhookMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.webhookMiddlewares = append(cfg.webhookMiddlewares, mw...)
	}
}

// WithPublicMiddlewares configures middlewares applied to the public form
// groups (/trainers and /leads), after rate limiting.
func WithPublicMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.publicMiddlewares = append(cfg.publicMiddlewares, mw...)
	}
}

// WithPublicRateLimit caps POSTs per client IP on the public form groups.
// A non-positive limit disables limiting.
func WithPublicRateLimit(limit int, window time.Duration) Option {
	return func(cfg *routerConfig) {
		cfg.rateLimit = limit
		cfg.rateWindow = window
	}
}

// WithWebhookRateLimit caps webhook deliveries per source IP. Providers retry
// on 429, so this only guards against floods.
func WithWebhookRateLimit(limit int, window time.Duration) Option {
	return func(cfg *routerConfig) {
		cfg.webhookLimit = limit
		cfg.webhookWindow = window
	}
}

// WithClock overrides the clock used by the rate limiter.
func WithClock(now func() time.Time) Option {
	return func(cfg *routerConfig) {
		if now != nil {
			cfg.clock = now
		}
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
