// Package adminhttp provides the operational HTTP surface the router
// and each storage peer expose alongside the channel-based data path:
// /healthz, /metrics, and /debug/stats. This is deliberately not the
// client/peer protocol itself — that stays transport-agnostic per
// spec.md §1 — it is the same ops-only layer the teacher's pkg/api
// bolts onto its embedded store (middleware, CORS, promhttp), re-aimed
// at the coordinator protocol's own state instead of a REST data API.
package adminhttp

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsSource supplies the JSON body for /debug/stats. router.Router
// and peer.StoragePeer do not implement it directly (their Stats()
// methods return concrete snapshot types); NewStatsSource adapts them.
type StatsSource interface {
	Stats() any
}

// statsFunc adapts a no-argument snapshot method (whose concrete
// return type router.Router.Stats / peer.StoragePeer.Stats already
// is) into a StatsSource without this package importing either.
type statsFunc func() any

func (f statsFunc) Stats() any { return f() }

// NewStatsSource wraps any `func() T` snapshot method as a StatsSource.
func NewStatsSource[T any](fn func() T) StatsSource {
	return statsFunc(func() any { return fn() })
}

// New builds the chi router for the admin HTTP surface: CORS and
// request logging/recovery middleware (mirroring the teacher's
// pkg/api/server.go), a Prometheus scrape endpoint, a liveness probe,
// and a JSON snapshot of whatever StatsSource is supplied.
func New(stats StatsSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/healthz", handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/debug/stats", handleStats(stats))

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleStats(stats StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats.Stats()); err != nil {
			http.Error(w, fmt.Sprintf("encoding stats: %v", err), http.StatusInternalServerError)
		}
	}
}
