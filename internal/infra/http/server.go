package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	srv *http.Server
}

func New(addr string, exposeMetrics bool, bridge *BridgeHandler, log *slog.Logger) *Server {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if exposeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/bridge", func(r chi.Router) {
		r.Use(bridge.RequireAPIKey)
		r.Get("/health", bridge.Health)
		r.Post("/attendance", bridge.SyncAttendance)
		r.Get("/members/pending", bridge.PendingEnrollments)
		r.Post("/members/enrolled", bridge.MarkEnrolled)
		r.Post("/heartbeat", bridge.Heartbeat)
		r.Get("/sync-status", bridge.SyncStatus)
	})

	return &Server{srv: &http.Server{Addr: addr, Handler: r}}
}

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
