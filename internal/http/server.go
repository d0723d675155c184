// Package http monta el servidor del servicio sobre el router chi.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/fitledger/internal/observability/logger"
)

// Server envuelve http.Server con arranque y apagado controlados.
type Server struct {
	srv *http.Server
}

// Options del servidor.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewServer crea el servidor sobre el handler dado.
func NewServer(opts Options, handler http.Handler) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	return &Server{
		srv: &http.Server{
			Addr:         opts.Addr,
			Handler:      handler,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
	}
}

// Start bloquea sirviendo hasta que el listener cierre.
func (s *Server) Start() error {
	logger.Named("http").Info("server listening", logger.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown apaga el servidor drenando conexiones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
