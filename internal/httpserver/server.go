package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	Mux *mux.Router
}

// New returns a router with request logging and per-route request counting.
func New(requests *prometheus.CounterVec) *Server {
	r := mux.NewRouter()
	r.Use(Logging)
	if requests != nil {
		r.Use(Metrics(requests))
	}
	return &Server{Mux: r}
}

// Probes mounts /healthz and /readyz.
func (s *Server) Probes(checks ...ReadyzCheck) {
	s.Mux.Handle("/healthz", Healthz()).Methods(http.MethodGet)
	s.Mux.Handle("/readyz", Readyz(2*time.Second, checks...)).Methods(http.MethodGet)
}

// MetricsHandler exposes the default registry on /metrics.
func (s *Server) MetricsHandler() {
	s.Mux.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}
