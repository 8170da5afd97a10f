// Package httptransport assembles the HTTP surface: shared middleware, the
// auth gate, health and metrics endpoints, and the feature handlers.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"caminomanager/internal/gate"
	"caminomanager/internal/platform/config"
	"caminomanager/internal/platform/metrics"
	"caminomanager/internal/routes"
	"caminomanager/pkg/platform/httputil"
	"caminomanager/pkg/platform/middleware/metadata"
	"caminomanager/pkg/platform/middleware/request"
	"caminomanager/pkg/platform/middleware/requesttime"
)

const healthCheckTimeout = 2 * time.Second

// Registrar is implemented by every feature handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the router mounts.
type Deps struct {
	Server    config.Server
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Refresher gate.Refresher
	Assets    http.Handler
	Handlers  []Registrar
	Checks    map[string]HealthCheck
}

// NewRouter wires the middleware chain and every route. Static assets are
// answered before any middleware runs.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(request.Recover(logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	if len(d.Server.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.Server.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", request.HeaderRequestID},
			ExposedHeaders:   []string{request.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           60 * 15,
		}))
	}
	r.Use(gate.New(d.Refresher, routes.NewClassifier(d.Server.PublicRoutes),
		gate.WithLogger(logger),
		gate.WithMetrics(d.Metrics),
	))

	r.Get("/healthz", health(d.Checks))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	for _, h := range d.Handlers {
		h.Register(r)
	}

	assets := d.Assets
	if assets == nil {
		assets = http.NotFoundHandler()
	}
	return routes.StaticAssetFilter(assets)(r)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func health(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
