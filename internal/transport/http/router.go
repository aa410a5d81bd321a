// Package httptransport assembles the service's HTTP surface. Domain
// handlers register their own routes and middleware; this package only
// mounts them and adds the operational endpoints.
package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"expenseflow/pkg/platform/httputil"
)

// Registrar is anything that can attach its routes to a router. All domain
// handlers implement it.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(ctx context.Context) error

// Deps carries everything the router mounts.
type Deps struct {
	Directory Registrar
	Rules     Registrar
	Claims    Registrar

	// Optional dependency probes surfaced through /health.
	Checks map[string]HealthChecker
}

// NewRouter builds the root router. The claims handler owns the unprefixed
// claim and approval routes; rules and directory live under their own
// prefixes so the mounts never collide.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps.Checks))
	r.Handle("/metrics", promhttp.Handler())

	deps.Directory.Register(r)
	deps.Rules.Register(r)
	deps.Claims.Register(r)

	return r
}

func handleHealth(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		detail := make(map[string]string, len(checks)+1)
		detail["status"] = "ok"
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				detail["status"] = "degraded"
				detail[name] = err.Error()
				continue
			}
			detail[name] = "ok"
		}
		httputil.WriteJSON(w, status, detail)
	}
}
