package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/R3E-Network/bankline/pkg/logger"
)

// metricsServer exposes /metrics while the application runs.
type metricsServer struct {
	addr   string
	server *http.Server
	log    *logger.Logger
}

func newMetricsServer(addr string, handler http.Handler, log *logger.Logger) *metricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	return &metricsServer{
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

func (s *metricsServer) Name() string { return "metrics" }

func (s *metricsServer) Start(context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.log.WithField("addr", ln.Addr().String()).Info("metrics endpoint listening")
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("metrics server stopped")
		}
	}()
	return nil
}

func (s *metricsServer) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
