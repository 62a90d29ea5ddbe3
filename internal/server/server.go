package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an http.Handler that knows which paths it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Logging logs every request at debug level.
func Logging(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}

// CallbackServer is a short-lived HTTP server that waits for a single OAuth callback.
type CallbackServer struct {
	srv      *http.Server
	listener net.Listener
	logger   *log.Logger
}

// Listen binds addr and serves router in the background.
func Listen(addr string, router Router, logger *log.Logger) (*CallbackServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &CallbackServer{
		srv:      &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second},
		listener: ln,
		logger:   logger,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("callback server stopped", "error", err)
		}
	}()
	return s, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *CallbackServer) Addr() string {
	return s.listener.Addr().String()
}

// Wait blocks until handler delivers a result, ctx is done or timeout elapses.
func (s *CallbackServer) Wait(ctx context.Context, handler *OAuthHandler, timeout time.Duration) (*OAuthResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-handler.Result():
		return &res, nil
	case <-timer.C:
		return nil, fmt.Errorf("timed out after %s waiting for authorization", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops the server, waiting up to five seconds for in-flight requests.
func (s *CallbackServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
