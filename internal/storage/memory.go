package storage

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// MemoryScope is an in-process storage scope. Every handle opened from it
// shares the same data, like tabs sharing one origin's local storage.
type MemoryScope struct {
	mu      sync.Mutex
	data    map[string][]byte
	quota   int
	handles map[*MemoryStore]struct{}
}

// NewMemoryScope creates an empty scope. A positive quota caps the total size
// of keys and values.
func NewMemoryScope(quota int) *MemoryScope {
	return &MemoryScope{
		data:    make(map[string][]byte),
		quota:   quota,
		handles: make(map[*MemoryStore]struct{}),
	}
}

// Open returns a new handle onto the scope.
func (s *MemoryScope) Open() *MemoryStore {
	m := &MemoryStore{scope: s, origin: uuid.NewString()}
	s.mu.Lock()
	s.handles[m] = struct{}{}
	s.mu.Unlock()
	return m
}

func (s *MemoryScope) usage(skip string) int {
	n := 0
	for k, v := range s.data {
		if k != skip {
			n += len(k) + len(v)
		}
	}
	return n
}

// MemoryStore is one handle onto a MemoryScope.
type MemoryStore struct {
	scope    *MemoryScope
	origin   string
	watchers Watchers
	closed   atomic.Bool
}

var _ Store = (*MemoryStore)(nil)

// Origin identifies writes made through this handle.
func (m *MemoryStore) Origin() string { return m.origin }

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	m.scope.mu.Lock()
	defer m.scope.mu.Unlock()
	v, ok := m.scope.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return bytes.Clone(v), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	if m.closed.Load() {
		return ErrClosed
	}
	s := m.scope
	s.mu.Lock()
	if s.quota > 0 && s.usage(key)+len(key)+len(value) > s.quota {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d bytes for %s", ErrQuotaExceeded, len(value), key)
	}
	s.data[key] = bytes.Clone(value)
	others := make([]*MemoryStore, 0, len(s.handles))
	for h := range s.handles {
		if h != m {
			others = append(others, h)
		}
	}
	s.mu.Unlock()

	ev := Event{Key: key, Origin: m.origin}
	for _, h := range others {
		h.watchers.Notify(ev)
	}
	return nil
}

func (m *MemoryStore) Watch(ctx context.Context, key string) (<-chan Event, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	return m.watchers.Add(ctx, key)
}

func (m *MemoryStore) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.scope.mu.Lock()
	delete(m.scope.handles, m)
	m.scope.mu.Unlock()
	m.watchers.Close()
	return nil
}
