// Package session keeps per-visitor API keys supplied through the form for
// the remainder of their browser session.
package session

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 10_000

// Store maps session IDs to API keys.
type Store interface {
	// Put records key for id, replacing any previous key.
	Put(ctx context.Context, id, key string)

	// Get returns the key held for id.
	Get(ctx context.Context, id string) (string, bool)

	// Delete forgets id.
	Delete(ctx context.Context, id string)

	Size() int64
}

// node is one session in the recency list.
type node struct {
	id   string
	key  string
	next *node
}

func (n *node) reset() {
	n.id = ""
	n.key = ""
	n.next = nil
}

// inMemoryStore implements Store with a map and a singly linked list ordered
// from newest (head) to oldest (tail).
// Bounded mode (maxSize > 0) evicts the oldest session when full and reuses
// nodes through a sync.Pool. Unbounded mode (maxSize <= 0) never evicts.
type inMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*node
	head     *node
	maxSize  int
	size     atomic.Int64
	nodePool sync.Pool
}

// NewInMemoryStore creates a session store with configuration options.
func NewInMemoryStore(opts ...Option) Store {
	s := &inMemoryStore{
		maxSize: defaultMaxSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.sessions = make(map[string]*node)
	s.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}
	return s
}

// Put records key for id.
func (s *inMemoryStore) Put(_ context.Context, id, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, exists := s.sessions[id]; exists {
		n.key = key
		return
	}

	if s.maxSize > 0 && len(s.sessions) >= s.maxSize {
		s.evictOldest()
	}

	n := s.nodePool.Get().(*node)
	n.id = id
	n.key = key
	n.next = s.head
	s.head = n
	s.sessions[id] = n
	s.size.Add(1)
}

// Get returns the key held for id.
func (s *inMemoryStore) Get(_ context.Context, id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.sessions[id]
	if !ok {
		return "", false
	}
	return n.key, true
}

// Delete forgets id.
func (s *inMemoryStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, exists := s.sessions[id]
	if !exists {
		return
	}
	delete(s.sessions, id)

	if s.head == n {
		s.head = n.next
	} else {
		current := s.head
		for current != nil && current.next != n {
			current = current.next
		}
		if current != nil {
			current.next = n.next
		}
	}

	n.reset()
	s.nodePool.Put(n)
	s.size.Add(-1)
}

// evictOldest removes the tail of the list.
// Must be called with s.mu held.
func (s *inMemoryStore) evictOldest() {
	if s.head == nil {
		return
	}

	if s.head.next == nil {
		tail := s.head
		delete(s.sessions, tail.id)
		s.head = nil
		tail.reset()
		s.nodePool.Put(tail)
		s.size.Add(-1)
		return
	}

	prev := s.head
	for prev.next.next != nil {
		prev = prev.next
	}
	tail := prev.next
	prev.next = nil
	delete(s.sessions, tail.id)
	tail.reset()
	s.nodePool.Put(tail)
	s.size.Add(-1)
}

// Size returns the number of live sessions.
func (s *inMemoryStore) Size() int64 {
	return s.size.Load()
}
