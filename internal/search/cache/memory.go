package cache

import (
	"context"
	"sync"
	"time"

	"github.com/alex-user-go/skisearch/internal/search/types"
)

// MemoryStore keeps results in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	done    chan struct{}
	once    sync.Once
}

type cacheEntry struct {
	result    *types.Result
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore that sweeps expired entries every interval.
// A non-positive interval sweeps once a minute.
func NewMemoryStore(interval time.Duration) *MemoryStore {
	if interval <= 0 {
		interval = time.Minute
	}
	s := &MemoryStore{
		entries: make(map[string]*cacheEntry),
		done:    make(chan struct{}),
	}

	go s.cleanup(interval)

	return s
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (*types.Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok || !time.Now().Before(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.result, true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, result *types.Result, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[key] = &cacheEntry{
		result:    result,
		expiresAt: time.Now().Add(ttl),
	}
	s.mu.Unlock()
	return nil
}

// Close stops the background cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// cleanup periodically removes expired entries.
func (s *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
