// Package memstore holds the live connections of the process. An entry
// existing for an id is what "connected" means.
package memstore

import (
	"sync"

	"github.com/kart-io/ark/internal/ark/driver"
	"github.com/kart-io/ark/internal/model"
	"github.com/kart-io/ark/pkg/errors"
)

// Tunnel is the part of an SSH tunnel the cache observes.
type Tunnel interface {
	Addr() string
	Listening() bool
	Close() error
}

// Entry is one live connection.
type Entry struct {
	Client    driver.Client
	Databases []model.DatabaseInfo
	Tunnel    Tunnel
}

// TunnelClosed reports whether the entry is tunneled and the tunnel has
// stopped listening.
func (e *Entry) TunnelClosed() bool {
	return e.Tunnel != nil && !e.Tunnel.Listening()
}

// Store maps connection ids to live entries.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]*Entry)}
}

// Set stores e under id and returns the entry it replaced, if any.
func (s *Store) Set(id string, e *Entry) (*Entry, error) {
	if id == "" || e == nil || e.Client == nil {
		return nil, errors.ErrInvalidMemStoreInput.WithMessage("memstore entries need an id and a client")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.entries[id]
	s.entries[id] = e
	return prev, nil
}

// Get returns a copy of the entry for id.
func (s *Store) Get(id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, errors.ErrNoMemStoreEntry.WithMessagef("no memstore entry %q", id)
	}
	cp := *e
	return &cp, nil
}

// Has reports whether id is live.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok
}

// SetDatabases replaces the cached database list of id.
func (s *Store) SetDatabases(id string, dbs []model.DatabaseInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return errors.ErrNoMemStoreEntry.WithMessagef("no memstore entry %q", id)
	}
	e.Databases = dbs
	return nil
}

// Delete removes and returns the entry for id.
func (s *Store) Delete(id string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, errors.ErrNoMemStoreEntry.WithMessagef("no memstore entry %q", id)
	}
	delete(s.entries, id)
	return e, nil
}

// IDs returns the ids of all live connections.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live connections.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
