package router

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	httpopts "github.com/kart-io/ark/pkg/options/http"
)

// Server serves the bridge engine on a loopback listener.
type Server struct {
	opts     *httpopts.Options
	engine   *gin.Engine
	server   *http.Server
	listener net.Listener
}

// NewServer creates a server for engine. Options are validated by the caller.
func NewServer(opts *httpopts.Options, engine *gin.Engine) *Server {
	if opts == nil {
		opts = httpopts.NewOptions()
	}
	return &Server{opts: opts, engine: engine}
}

// Name returns the server name.
func (s *Server) Name() string {
	return "http[gin]"
}

// Addr returns the bound address once Start has returned.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.opts.Addr
	}
	return s.listener.Addr().String()
}

// Start binds the listener and serves in the background. Bind errors are
// returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Errorw("HTTP bridge stopped", "addr", s.Addr(), "error", err.Error())
		}
	}()

	logger.Infow("HTTP bridge listening", "addr", s.Addr())
	return nil
}

// Stop stops the HTTP server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
