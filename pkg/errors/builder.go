package errors

import (
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// ErrnoBuilder assembles and registers an Errno.
//
//	var ErrBrokenShell = errors.NewNotFoundError(errors.ServiceArk, 3).
//	    Kind("BrokenShell").
//	    Message("Shell session not found", "Shell 会话不存在").
//	    MustBuild()
type ErrnoBuilder struct {
	e Errno
}

// NewBuilder starts an Errno that maps to 500 until told otherwise.
func NewBuilder(service, category, sequence int) *ErrnoBuilder {
	return &ErrnoBuilder{e: Errno{
		Code:     MakeCode(service, category, sequence),
		HTTP:     http.StatusInternalServerError,
		GRPCCode: codes.Internal,
	}}
}

func (b *ErrnoBuilder) HTTP(status int) *ErrnoBuilder {
	b.e.HTTP = status
	return b
}

func (b *ErrnoBuilder) GRPC(code codes.Code) *ErrnoBuilder {
	b.e.GRPCCode = code
	return b
}

func (b *ErrnoBuilder) Kind(kind string) *ErrnoBuilder {
	b.e.Kind = kind
	return b
}

// Disconnects marks the kind as invalidating the live connection.
func (b *ErrnoBuilder) Disconnects() *ErrnoBuilder {
	b.e.disconnect = true
	return b
}

func (b *ErrnoBuilder) Message(en, zh string) *ErrnoBuilder {
	b.e.MessageEN = en
	b.e.MessageZH = zh
	return b
}

// Build registers the Errno. It fails on a missing message or a taken code
// or kind.
func (b *ErrnoBuilder) Build() (*Errno, error) {
	if b.e.MessageEN == "" {
		return nil, fmt.Errorf("errno %d: message is required", b.e.Code)
	}
	e := b.e
	if err := register(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

// MustBuild is Build for package-level vars.
func (b *ErrnoBuilder) MustBuild() *Errno {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// NewRequestError starts a 400 kind.
func NewRequestError(service, sequence int) *ErrnoBuilder {
	return NewBuilder(service, CategoryRequest, sequence).HTTP(http.StatusBadRequest).GRPC(codes.InvalidArgument)
}

// NewNotFoundError starts a 404 kind.
func NewNotFoundError(service, sequence int) *ErrnoBuilder {
	return NewBuilder(service, CategoryResource, sequence).HTTP(http.StatusNotFound).GRPC(codes.NotFound)
}

// NewInternalError starts a 500 kind.
func NewInternalError(service, sequence int) *ErrnoBuilder {
	return NewBuilder(service, CategoryInternal, sequence)
}

// NewNetworkError starts a 503 kind.
func NewNetworkError(service, sequence int) *ErrnoBuilder {
	return NewBuilder(service, CategoryNetwork, sequence).HTTP(http.StatusServiceUnavailable).GRPC(codes.Unavailable)
}
