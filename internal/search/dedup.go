package search

import (
	"sync"

	"github.com/alex-user-go/skisearch/internal/search/types"
)

// Deduplicator keeps the first offer seen per id for the lifetime of one run.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDeduplicator creates an empty Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Admit records o's id and reports whether it was seen for the first time.
func (d *Deduplicator) Admit(o types.Offer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[o.ID]; ok {
		return false
	}
	d.seen[o.ID] = struct{}{}
	return true
}
