package orchestrator

import (
	"sync"

	"github.com/Sternrassler/srp-filter/pkg/address"
)

// AddressStore holds the externally visible address. Write is called synchronously
// by the orchestrator and must not block.
type AddressStore interface {
	Read() address.Address
	Write(addr address.Address)
}

// MemoryStore is an in-memory AddressStore. It records every write.
type MemoryStore struct {
	mu      sync.Mutex
	current address.Address
	history []string
}

// NewMemoryStore creates a store holding addr.
func NewMemoryStore(addr address.Address) *MemoryStore {
	return &MemoryStore{current: addr}
}

// Read returns the current address.
func (s *MemoryStore) Read() address.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Write replaces the current address.
func (s *MemoryStore) Write(addr address.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = addr
	s.history = append(s.history, addr.String())
}

// History returns every written address in order.
func (s *MemoryStore) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}
