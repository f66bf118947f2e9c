package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kart-io/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// DefaultShutdownTimeout bounds graceful shutdown when none is configured.
const DefaultShutdownTimeout = 30 * time.Second

// Manager starts servers in order and stops them in reverse, then runs the
// registered closers.
type Manager struct {
	shutdownTimeout time.Duration

	mu      sync.Mutex
	servers []Runnable
	closers []Closer
	started []Runnable
	running bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithShutdownTimeout sets how long Run waits for a graceful stop.
func WithShutdownTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.shutdownTimeout = d
	}
}

// NewManager creates a new server manager with the given options.
func NewManager(opts ...Option) *Manager {
	m := &Manager{shutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddServer adds a server to the manager.
func (m *Manager) AddServer(server Runnable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers = append(m.servers, server)
}

// AddCloser registers a shutdown hook. Closers run in reverse order of
// registration after every server has stopped.
func (m *Manager) AddCloser(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, Closer{Name: name, Close: fn})
}

// Start starts all servers. If one fails, the ones already started are
// stopped again.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("server manager already started")
	}

	for _, server := range m.servers {
		if err := server.Start(ctx); err != nil {
			for i := len(m.started) - 1; i >= 0; i-- {
				_ = m.started[i].Stop(ctx)
			}
			m.started = nil
			return fmt.Errorf("failed to start server %s: %w", server.Name(), err)
		}
		m.started = append(m.started, server)
		logger.Infow("Server started", "name", server.Name())
	}
	m.running = true
	return nil
}

// Stop stops all servers gracefully and runs the closers.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error

	for i := len(m.started) - 1; i >= 0; i-- {
		server := m.started[i]
		if err := server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop server %s: %w", server.Name(), err))
			continue
		}
		logger.Infow("Server stopped", "name", server.Name())
	}
	m.started = nil
	m.running = false

	for i := len(m.closers) - 1; i >= 0; i-- {
		c := m.closers[i]
		if err := c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", c.Name, err))
		}
	}
	m.closers = nil

	return utilerrors.NewAggregate(errs)
}

// Run starts all servers and waits for shutdown signal.
func (m *Manager) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return m.RunContext(ctx)
}

// RunContext starts all servers and blocks until ctx is done.
func (m *Manager) RunContext(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		_ = m.Stop(context.Background())
		return err
	}

	<-ctx.Done()
	logger.Info("Server shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()

	return m.Stop(shutdownCtx)
}
