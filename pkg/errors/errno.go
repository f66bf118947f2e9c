// Package errors defines the error kinds returned across the request
// boundary.
//
// Every such error is an *Errno. Code is numeric and unique (see code.go for
// the AABBCCC layout). Kind is the stable string the UI switches on. An Errno
// flagged as disconnecting tells the UI to drop its connection state.
//
//	return errors.ErrNoCachedConnection.WithMessagef("connection %s is not open", id)
//	return errors.ErrDatabase.WithCause(err)
//	if stderrors.Is(err, errors.ErrBrokenShell) { ... }
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"google.golang.org/grpc/codes"
)

// Errno is a registered error kind, optionally carrying a cause and a more
// specific message.
type Errno struct {
	Code      int        `json:"code"`
	Kind      string     `json:"kind,omitempty"`
	HTTP      int        `json:"-"`
	GRPCCode  codes.Code `json:"-"`
	MessageEN string     `json:"message"`
	MessageZH string     `json:"message_zh,omitempty"`

	disconnect bool
	cause      error
}

func (e *Errno) Error() string {
	if e.cause == nil {
		return e.MessageEN
	}
	return e.MessageEN + ": " + e.cause.Error()
}

func (e *Errno) Unwrap() error { return e.cause }

// Is matches any Errno with the same code, so derived errors compare equal
// to the registered kind.
func (e *Errno) Is(target error) bool {
	t, ok := target.(*Errno)
	return ok && t.Code == e.Code
}

// WithCause returns a copy of e wrapping cause.
func (e *Errno) WithCause(cause error) *Errno {
	c := *e
	c.cause = cause
	return &c
}

// WithMessage returns a copy of e with msg as its message.
func (e *Errno) WithMessage(msg string) *Errno {
	c := *e
	c.MessageEN = msg
	return &c
}

// WithMessagef is WithMessage with formatting.
func (e *Errno) WithMessagef(format string, args ...interface{}) *Errno {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Disconnects reports whether the UI must treat the connection as gone.
func (e *Errno) Disconnects() bool { return e.disconnect }

// HTTPStatus returns the bridge status code, 500 when unset.
func (e *Errno) HTTPStatus() int {
	if e.HTTP == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTP
}

// Format supports %+v, which adds the kind, statuses and cause chain.
func (e *Errno) Format(s fmt.State, verb rune) {
	switch {
	case verb == 'v' && s.Flag('+'):
		_, _ = fmt.Fprintf(s, "%s(%d) http=%d grpc=%s: %s", e.Kind, e.Code, e.HTTPStatus(), e.GRPCCode, e.MessageEN)
		if e.cause != nil {
			_, _ = fmt.Fprintf(s, "\ncaused by: %+v", e.cause)
		}
	case verb == 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	default:
		_, _ = fmt.Fprint(s, e.Error())
	}
}

var (
	registryMu sync.RWMutex
	byCode     = map[int]*Errno{}
	byKind     = map[string]*Errno{}
)

// Register records e. It panics when the code or kind is taken, since both
// are part of the wire contract.
func Register(e *Errno) *Errno {
	if err := register(e); err != nil {
		panic(err.Error())
	}
	return e
}

func register(e *Errno) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if prev, ok := byCode[e.Code]; ok {
		return fmt.Errorf("errno code %d already registered as %s", e.Code, prev.Kind)
	}
	if e.Kind != "" {
		if prev, ok := byKind[e.Kind]; ok {
			return fmt.Errorf("errno kind %s already registered with code %d", e.Kind, prev.Code)
		}
		byKind[e.Kind] = e
	}
	byCode[e.Code] = e
	return nil
}

// Lookup returns the Errno registered under code.
func Lookup(code int) (*Errno, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := byCode[code]
	return e, ok
}

// LookupKind returns the Errno registered under kind.
func LookupKind(kind string) (*Errno, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := byKind[kind]
	return e, ok
}

// Registered returns every registered Errno ordered by code.
func Registered() []*Errno {
	registryMu.RLock()
	out := make([]*Errno, 0, len(byCode))
	for _, e := range byCode {
		out = append(out, e)
	}
	registryMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// FromError returns the first Errno in err's chain, or err wrapped as
// ErrInternal.
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	var e *Errno
	if stderrors.As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}

// IsCode reports whether err's chain holds an Errno with code.
func IsCode(err error, code int) bool {
	var e *Errno
	return stderrors.As(err, &e) && e.Code == code
}
