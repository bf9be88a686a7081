package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/ratelimiter"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepInterval   = time.Minute
)

type Server struct {
	http    *http.Server
	handler *Handler
	logger  *slog.Logger
}

func New(port int, h *Handler) *Server {
	mux := http.NewServeMux()
	h.Register(mux)
	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		handler: h,
		logger:  h.logger,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	for _, l := range []*ratelimiter.PooledRateLimiter{s.handler.limiter, s.handler.verify} {
		if l != nil {
			go l.Run(ctx, sweepInterval)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server started",
			"addr", s.http.Addr,
			"health_endpoint", "/health",
			"roll_endpoint", "/v1/roll",
			"verify_endpoint", "/v1/verify",
		)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown failed", "err", err)
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
