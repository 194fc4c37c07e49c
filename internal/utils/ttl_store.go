package utils

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TTLStore is a size-bounded keyed cache whose entries expire ttl after their
// last write. It owns per-key detector state so idle keys disappear without an
// explicit cleanup path.
type TTLStore[V any] struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, V]
}

func NewTTLStore[V any](size int, ttl time.Duration) *TTLStore[V] {
	if size <= 0 {
		size = 10000
	}
	return &TTLStore[V]{cache: expirable.NewLRU[string, V](size, nil, ttl)}
}

// GetOrCreate returns the value stored under key, creating it when absent. The
// entry's expiry is refreshed on every call.
func (s *TTLStore[V]) GetOrCreate(key string, create func() V) V {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.cache.Get(key)
	if !ok {
		value = create()
	}
	s.cache.Add(key, value)
	return value
}

func (s *TTLStore[V]) Get(key string) (V, bool) {
	return s.cache.Get(key)
}
