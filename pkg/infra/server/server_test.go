package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects lifecycle events across servers and closers.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type mockServer struct {
	name     string
	rec      *recorder
	startErr error
	stopErr  error
}

func (s *mockServer) Name() string { return s.name }

func (s *mockServer) Start(context.Context) error {
	s.rec.add("start " + s.name)
	return s.startErr
}

func (s *mockServer) Stop(context.Context) error {
	s.rec.add("stop " + s.name)
	return s.stopErr
}

func TestManagerOrdering(t *testing.T) {
	rec := &recorder{}
	m := NewManager()
	m.AddServer(&mockServer{name: "a", rec: rec})
	m.AddServer(&mockServer{name: "b", rec: rec})
	m.AddCloser("store", func(context.Context) error { rec.add("close store"); return nil })
	m.AddCloser("connections", func(context.Context) error { rec.add("close connections"); return nil })

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	assert.Error(t, m.Start(ctx), "second start is rejected")
	require.NoError(t, m.Stop(ctx))

	assert.Equal(t, []string{
		"start a", "start b",
		"stop b", "stop a",
		"close connections", "close store",
	}, rec.list())
}

func TestManagerStartFailureRollsBack(t *testing.T) {
	rec := &recorder{}
	m := NewManager()
	m.AddServer(&mockServer{name: "a", rec: rec})
	m.AddServer(&mockServer{name: "b", rec: rec, startErr: errors.New("address in use")})

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start server b")
	assert.Equal(t, []string{"start a", "start b", "stop a"}, rec.list())
}

func TestManagerStopAggregatesErrors(t *testing.T) {
	rec := &recorder{}
	m := NewManager()
	m.AddServer(&mockServer{name: "a", rec: rec, stopErr: errors.New("stuck")})
	m.AddCloser("store", func(context.Context) error { return errors.New("locked") })

	require.NoError(t, m.Start(context.Background()))
	err := m.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stop server a")
	assert.Contains(t, err.Error(), "failed to close store")
}

func TestRunContext(t *testing.T) {
	rec := &recorder{}
	m := NewManager(WithShutdownTimeout(time.Second))
	m.AddServer(&mockServer{name: "bridge", rec: rec})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.RunContext(ctx) }()

	require.Eventually(t, func() bool { return len(rec.list()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunContext did not return")
	}
	assert.Equal(t, []string{"start bridge", "stop bridge"}, rec.list())
}
