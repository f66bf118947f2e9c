// Package pool wraps ants with submit statistics and logged panics.
package pool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// Config sizes a Pool.
type Config struct {
	// Capacity is the maximum number of concurrent workers.
	Capacity int
	// ExpiryDuration is how long an idle worker is kept.
	ExpiryDuration time.Duration
	// Nonblocking makes Submit fail with ErrPoolOverload instead of waiting
	// for a free worker.
	Nonblocking bool
	// PanicHandler is called after a task panics. Nil logs the panic.
	PanicHandler func(interface{})
}

// TunnelConfig sizes the pool that runs SSH forwarding. Each forwarded
// stream holds two workers for its whole life, so a full pool refuses new
// streams rather than queueing them.
func TunnelConfig() *Config {
	return &Config{
		Capacity:       256,
		ExpiryDuration: 30 * time.Second,
		Nonblocking:    true,
	}
}

// Stats is a snapshot of a pool's counters.
type Stats struct {
	Submitted int64
	Completed int64
	Rejected  int64
	Panicked  int64
}

// Pool is a named ants pool.
type Pool struct {
	name string
	ants *ants.Pool

	submitted, completed, rejected, panicked atomic.Int64

	once   sync.Once
	closed atomic.Bool
}

// NewPool creates a pool. A nil config uses TunnelConfig.
func NewPool(name string, cfg *Config) (*Pool, error) {
	if cfg == nil {
		cfg = TunnelConfig()
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrInvalidPoolConfig)
	}

	p := &Pool{name: name}
	onPanic := cfg.PanicHandler
	if onPanic == nil {
		onPanic = func(r interface{}) {
			logger.Errorw("Worker panic recovered", "pool", name, "panic", r)
		}
	}

	ap, err := ants.NewPool(cfg.Capacity,
		ants.WithExpiryDuration(cfg.ExpiryDuration),
		ants.WithNonblocking(cfg.Nonblocking),
		ants.WithPanicHandler(func(r interface{}) {
			p.panicked.Add(1)
			onPanic(r)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create pool %s: %w", name, err)
	}
	p.ants = ap

	logger.Debugw("Worker pool created", "pool", name, "capacity", cfg.Capacity)
	return p, nil
}

func (p *Pool) Name() string { return p.name }

func (p *Pool) Cap() int { return p.ants.Cap() }

// Running returns the number of busy workers.
func (p *Pool) Running() int { return p.ants.Running() }

// Submit runs task on a worker.
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	err := p.ants.Submit(func() {
		task()
		p.completed.Add(1)
	})
	if err == nil {
		return nil
	}

	p.rejected.Add(1)
	switch {
	case errors.Is(err, ants.ErrPoolOverload):
		return ErrPoolOverload
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	default:
		return err
	}
}

// Release stops the pool. Running tasks are not interrupted.
func (p *Pool) Release() {
	p.once.Do(func() {
		p.closed.Store(true)
		p.ants.Release()
		logger.Debugw("Worker pool released", "pool", p.name, "completed", p.completed.Load())
	})
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Panicked:  p.panicked.Load(),
	}
}
