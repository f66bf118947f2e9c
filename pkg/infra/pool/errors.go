package pool

import "errors"

var (
	ErrPoolClosed        = errors.New("pool is closed")
	ErrPoolOverload      = errors.New("pool is overloaded")
	ErrInvalidPoolConfig = errors.New("invalid pool config")
)
