package chi

import (
	"sync"

	"github.com/WDelesposti/tokie/internal/domain/usage"
)

// SnapshotCache retains the latest usage snapshot for the read surface.
// Rendering from the newest snapshot alone keeps delivery idempotent: a
// repeated notification with identical counts changes nothing observable.
type SnapshotCache struct {
	mu   sync.RWMutex
	snap usage.Record
	ok   bool
}

// NewSnapshotCache creates an empty cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{}
}

// Notify replaces the cached snapshot.
func (c *SnapshotCache) Notify(snapshot usage.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snapshot
	c.ok = true
}

// Snapshot returns the latest snapshot, false before the first notification.
func (c *SnapshotCache) Snapshot() (usage.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap, c.ok
}
