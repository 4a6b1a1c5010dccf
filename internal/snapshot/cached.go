package snapshot

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore is a read-through LRU in front of a slower Store. Writes go
// to the backing store first and only then update the cache.
type CachedStore struct {
	next  Store
	cache *lru.Cache[string, string]

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats is a point-in-time view of cache effectiveness.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

func NewCachedStore(next Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{next: next, cache: c}, nil
}

func (s *CachedStore) Get(ctx context.Context, id string) (string, error) {
	if v, ok := s.cache.Get(id); ok {
		s.hits.Add(1)
		return v, nil
	}
	s.misses.Add(1)
	v, err := s.next.Get(ctx, id)
	if err != nil {
		return "", err
	}
	s.cache.Add(id, v)
	return v, nil
}

func (s *CachedStore) Put(ctx context.Context, id, content string) error {
	if err := s.next.Put(ctx, id, content); err != nil {
		s.cache.Remove(id)
		return err
	}
	s.cache.Add(id, content)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, id string) error {
	s.cache.Remove(id)
	return s.next.Delete(ctx, id)
}

func (s *CachedStore) Stats() CacheStats {
	return CacheStats{Hits: s.hits.Load(), Misses: s.misses.Load(), Size: s.cache.Len()}
}
