package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeLayout(t *testing.T) {
	tests := []struct {
		service, category, sequence int
		code                        int
	}{
		{0, 0, 0, 0},
		{0, 1, 1, 1001},
		{0, 8, 0, 8000},
		{21, 4, 2, 2104002},
		{21, 10, 1, 2110001},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.code, MakeCode(tt.service, tt.category, tt.sequence))

			s, c, q := ParseCode(tt.code)
			assert.Equal(t, []int{tt.service, tt.category, tt.sequence}, []int{s, c, q})
		})
	}
}

func TestErrnoMessages(t *testing.T) {
	assert.Equal(t, "Invalid parameter", ErrInvalidParam.Error())

	e := ErrInvalidParam.WithMessagef("field %s is required", "id")
	assert.Equal(t, "field id is required", e.Error())
	assert.Equal(t, "Invalid parameter", ErrInvalidParam.MessageEN, "registered kind is not mutated")

	cause := stderrors.New("disk full")
	wrapped := ErrDatabase.WithCause(cause)
	assert.Equal(t, "Database error: disk full", wrapped.Error())
	assert.Same(t, cause, wrapped.Unwrap())
	assert.Contains(t, fmt.Sprintf("%+v", wrapped), "Database(8000)")
	assert.Contains(t, fmt.Sprintf("%+v", wrapped), "caused by: disk full")
	assert.Equal(t, `"Invalid parameter"`, fmt.Sprintf("%q", ErrInvalidParam))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    *Errno
		status int
	}{
		{ErrInvalidParam, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{ErrNoCachedConnection, http.StatusNotFound},
		{ErrBrokenShell, http.StatusNotFound},
		{ErrUnknownCommand, http.StatusNotFound},
		{ErrSSHTunnelClosed, http.StatusServiceUnavailable},
		{ErrDatabase, http.StatusInternalServerError},
		{&Errno{Code: 1}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.HTTPStatus(), tt.err.Kind)
	}
}

func TestMatching(t *testing.T) {
	err := fmt.Errorf("list: %w", ErrNotFound.WithMessage("no such id"))

	assert.True(t, stderrors.Is(err, ErrNotFound))
	assert.False(t, stderrors.Is(err, ErrInternal))
	assert.True(t, IsCode(err, ErrNotFound.Code))
	assert.False(t, IsCode(stderrors.New("plain"), ErrNotFound.Code))
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	e := ErrInvalidParam.WithMessage("bad")
	assert.Same(t, e, FromError(fmt.Errorf("wrap: %w", e)))

	plain := stderrors.New("plain")
	got := FromError(plain)
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Same(t, plain, got.Unwrap())
}

func TestRegistry(t *testing.T) {
	e, ok := Lookup(ErrInvalidParam.Code)
	require.True(t, ok)
	assert.Same(t, ErrInvalidParam, e)

	e, ok = LookupKind("BrokenShell")
	require.True(t, ok)
	assert.Same(t, ErrBrokenShell, e)

	_, ok = Lookup(9999999)
	assert.False(t, ok)

	all := Registered()
	require.NotEmpty(t, all)
	kinds := map[string]bool{}
	for i, e := range all {
		if i > 0 {
			assert.Less(t, all[i-1].Code, e.Code)
		}
		assert.NotEmpty(t, e.Kind, "code %d has no kind", e.Code)
		assert.False(t, kinds[e.Kind], "kind %s registered twice", e.Kind)
		kinds[e.Kind] = true
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	assert.Panics(t, func() {
		Register(&Errno{Code: ErrInternal.Code, Kind: "Other", MessageEN: "x"})
	})
	assert.Panics(t, func() {
		Register(&Errno{Code: MakeCode(ServiceArk, CategoryConflict, 998), Kind: "Internal", MessageEN: "x"})
	})
}
