// Package httpserver runs the HTTP listener with fixed timeouts and graceful
// shutdown.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/levifans/backend/internal/logging"
)

// ShutdownTimeout bounds how long in-flight requests may take to drain.
var ShutdownTimeout = 15 * time.Second

// Server wraps the http.Server with sensible defaults.
type Server struct {
	inner *http.Server
}

// New constructs a server listening on the provided port. The write timeout
// leaves room for a request that has to wait on a deep catalog pass.
func New(port int, handler http.Handler) *Server {
	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      90 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Addr reports the configured listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.inner.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.inner.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then drains in-flight
// requests for at most ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.inner.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.FromContext(ctx).Info("shutting down http server", "addr", ln.Addr().String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := s.inner.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
