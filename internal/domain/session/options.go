package session

// Option applies a configuration option to the in-memory store.
type Option func(*inMemoryStore)

// WithMaxSize sets the maximum number of sessions kept in memory.
// If maxSize > 0: bounded mode, the oldest session is evicted when full.
// If maxSize <= 0: unbounded mode.
func WithMaxSize(maxSize int) Option {
	return func(s *inMemoryStore) {
		s.maxSize = maxSize
	}
}
