package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/signbridge/internal/health"
	"github.com/MrWong99/signbridge/internal/observe"
)

// newRouter serves the probes and the Prometheus endpoint.
func newRouter(metrics *observe.Metrics, checkers []health.Checker, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(metrics))

	health.New(checkers...).Register(r)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	return r
}

// statusServer runs the listen-side HTTP server in the background.
type statusServer struct {
	srv  *http.Server
	done chan struct{}
}

func startStatusServer(addr string, h http.Handler) *statusServer {
	s := &statusServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		},
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		slog.Info("status server listening", "addr", addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status server failed", "addr", addr, "err", err)
		}
	}()
	return s
}

func (s *statusServer) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		slog.Warn("status server shutdown", "err", err)
	}
	<-s.done
}
