// Package gateway wires the path parser, token extractor, authorization
// decider, upstream fallback, and file responder into the HTTP request
// dispatcher, and owns the server's listen/shutdown lifecycle.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/spf13/afero"

	"github.com/opencast/mediagate/internal/config"
	"github.com/opencast/mediagate/internal/jwks"
	"github.com/opencast/mediagate/internal/metrics"
	"github.com/opencast/mediagate/internal/tokensource"
)

// Server composes the gateway's dependencies and exposes the dispatcher as
// an http.Handler, plus a run loop with graceful shutdown.
type Server struct {
	cfg     config.Config
	manager *jwks.Manager
	fs      afero.Fs
	upclient *http.Client
	log     logr.Logger

	sources    []tokensource.Source
	allowShape shape
	denyShape  shape
}

// New builds a Server from a validated configuration, a running key
// manager, and a filesystem (afero.NewOsFs() in production).
func New(cfg config.Config, manager *jwks.Manager, fs afero.Fs, log logr.Logger) *Server {
	sources := make([]tokensource.Source, 0, len(cfg.HTTP.JWTSources))
	for _, s := range cfg.HTTP.JWTSources {
		if s.Query != "" {
			sources = append(sources, tokensource.QuerySource(s.Query))
			continue
		}
		sources = append(sources, tokensource.HeaderSource(s.Header, s.Prefix))
	}

	return &Server{
		cfg:        cfg,
		manager:    manager,
		fs:         fs,
		upclient:   &http.Client{},
		log:        log,
		sources:    sources,
		allowShape: parseAllowShape(cfg.HTTP.OnAllow),
		denyShape:  parseDenyShape(cfg.HTTP.OnDeny),
	}
}

// Handler builds the full middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.PathPrefix("/").HandlerFunc(s.dispatch)

	var h http.Handler = r
	h = s.withAccessLog(h)
	h = withRequestID(h)
	h = withRecover(s.log, h)
	return h
}

// Run starts the HTTP server and blocks until ctx is canceled, then
// attempts a graceful shutdown within http.shutdown_timeout.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.HTTP.Address, fmt.Sprintf("%d", s.cfg.HTTP.Port))
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout.Duration)
	defer cancel()
	s.log.Info("shutting down", "timeout", s.cfg.HTTP.ShutdownTimeout.Duration)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway: graceful shutdown: %w", err)
	}
	<-errCh
	return nil
}
