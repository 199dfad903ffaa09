package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Server provides HTTP endpoints
type Server struct {
	logger   zerolog.Logger
	server   *http.Server
	txs      TransactionReader
	pool     PoolStatusProvider
	requests RequestHandler
	gatherer prometheus.Gatherer
}

// Options are the optional data sources of a Server. Routes whose source is
// nil answer 503.
type Options struct {
	Transactions TransactionReader
	Pool         PoolStatusProvider
	Requests     RequestHandler
	Gatherer     prometheus.Gatherer
}

// NewServer creates a new Server instance
func NewServer(logger zerolog.Logger, port int, opts Options) *Server {
	s := &Server{
		logger:   logger.With().Str("component", "query_server").Logger(),
		txs:      opts.Transactions,
		pool:     opts.Pool,
		requests: opts.Requests,
		gatherer: opts.Gatherer,
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("query server is nil")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to address %s: %w", s.server.Addr, err)
	}

	go func() {
		err := s.server.Serve(ln)
		switch err {
		case nil:
			s.logger.Info().Msg("Query server stopped normally")
		case http.ErrServerClosed:
			s.logger.Info().Msg("Query server closed gracefully")
		default:
			s.logger.Error().Err(err).Msg("Query server error")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Query server listening")
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
