package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ctoken-engine-sol/internal/config"
	"ctoken-engine-sol/internal/metrics"
	"ctoken-engine-sol/internal/pkg/logger"
)

// MetricsServer 暴露 /metrics
type MetricsServer struct {
	server *http.Server
}

func NewMetricsServer(cfg config.MetricsConfig, m *metrics.Metrics) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &MetricsServer{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *MetricsServer) Start() {
	logger.Infof("[MetricsServer] listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("[MetricsServer] serve failed: %v", err)
	}
}

func (s *MetricsServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		logger.Warnf("[MetricsServer] shutdown: %v", err)
	}
}
