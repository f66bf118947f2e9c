// Package handler maps typed commands from the UI onto the services.
package handler

import (
	"context"
	"sort"
	"sync"

	"github.com/kart-io/ark/pkg/errors"
	"github.com/kart-io/ark/pkg/utils/json"
)

// Libraries group the commands of one service.
const (
	LibraryConnection = "connection"
	LibraryDatabase   = "database"
	LibraryQuery      = "query"
	LibraryShell      = "shell"
	LibraryScript     = "script"
	LibrarySettings   = "settings"
)

// Command names one operation, e.g. {connection, connect}.
type Command struct {
	Library string
	Action  string
}

func (c Command) String() string {
	return c.Library + "." + c.Action
}

// HandlerFunc runs one command. payload is the JSON request body and may
// be empty.
type HandlerFunc func(ctx context.Context, payload []byte) (interface{}, error)

// Dispatcher resolves commands to handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Command]HandlerFunc
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Command]HandlerFunc)}
}

// Register adds a handler. Empty commands, nil handlers and duplicates are
// rejected.
func (d *Dispatcher) Register(cmd Command, h HandlerFunc) error {
	if cmd.Library == "" || cmd.Action == "" || h == nil {
		return errors.ErrInvalidAsyncHandler.WithMessagef("invalid handler for %q", cmd.String())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[cmd]; ok {
		return errors.ErrInvalidAsyncHandler.WithMessagef("handler for %q already registered", cmd.String())
	}
	d.handlers[cmd] = h
	return nil
}

// MustRegister is Register that panics on error.
func (d *Dispatcher) MustRegister(cmd Command, h HandlerFunc) {
	if err := d.Register(cmd, h); err != nil {
		panic(err)
	}
}

// Dispatch runs the handler for cmd.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command, payload []byte) (interface{}, error) {
	d.mu.RLock()
	h, ok := d.handlers[cmd]
	d.mu.RUnlock()
	if !ok {
		return nil, errors.ErrUnknownCommand.WithMessagef("unknown command %q", cmd.String())
	}
	return h(ctx, payload)
}

// Commands returns the registered commands in library/action order.
func (d *Dispatcher) Commands() []Command {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Command, 0, len(d.handlers))
	for c := range d.handlers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Library != out[j].Library {
			return out[i].Library < out[j].Library
		}
		return out[i].Action < out[j].Action
	})
	return out
}

// decode unmarshals payload into a new Req. An empty payload yields the
// zero request.
func decode[Req any](payload []byte) (*Req, error) {
	req := new(Req)
	if len(payload) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(payload, req); err != nil {
		return nil, errors.ErrInvalidParam.WithMessage("invalid request payload").WithCause(err)
	}
	return req, nil
}

// typed adapts a function taking a decoded request.
func typed[Req, Resp any](fn func(ctx context.Context, req *Req) (Resp, error)) HandlerFunc {
	return func(ctx context.Context, payload []byte) (interface{}, error) {
		req, err := decode[Req](payload)
		if err != nil {
			return nil, err
		}
		return fn(ctx, req)
	}
}

// noResult adapts a function that only reports an error.
func noResult[Req any](fn func(ctx context.Context, req *Req) error) HandlerFunc {
	return func(ctx context.Context, payload []byte) (interface{}, error) {
		req, err := decode[Req](payload)
		if err != nil {
			return nil, err
		}
		return nil, fn(ctx, req)
	}
}
