// Package transaction remembers which plugin accepted which write.
//
// Plugins issue transaction IDs for asynchronous writes. The gateway keeps
// each ID for a fixed TTL so a later status check can be routed to the
// plugin that issued it. The cache is never rebuilt from plugin state; once
// an entry expires the transaction can no longer be checked through the
// gateway.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/cache"
	"github.com/nerrad567/gray-logic-gateway/internal/plugin"
)

// DefaultTTL is the entry lifetime when none is configured.
const DefaultTTL = 5 * time.Minute

var (
	// ErrTransactionNotFound is returned for unknown or expired IDs.
	ErrTransactionNotFound = errors.New("transaction: not found")

	// ErrCacheFull is returned by Put when the capacity bound is reached.
	ErrCacheFull = errors.New("transaction: cache full")
)

// DeviceRef identifies the device a write targeted.
type DeviceRef struct {
	Rack   string `json:"rack"`
	Board  string `json:"board"`
	Device string `json:"device"`
}

// Entry is one cached transaction.
type Entry struct {
	ID      string           `json:"id"`
	Plugin  string           `json:"plugin"`
	Context plugin.WriteData `json:"context"`
	Device  DeviceRef        `json:"device"`
	Created time.Time        `json:"created"`
}

// Cache maps transaction IDs to their owning plugin.
type Cache struct {
	entries *cache.TTLMap[string, *Entry]
	now     cache.Clock
}

// New creates a cache. A non-positive ttl selects DefaultTTL; a non-positive
// capacity means unbounded.
func New(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: cache.NewTTLMap[string, *Entry](ttl, capacity),
		now:     time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (c *Cache) SetClock(now cache.Clock) {
	c.now = now
	c.entries.SetClock(now)
}

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.entries.TTL()
}

// Put records that pluginName issued id. An existing entry is overwritten.
func (c *Cache) Put(id, pluginName string, data plugin.WriteData, device DeviceRef) error {
	e := &Entry{
		ID:      id,
		Plugin:  pluginName,
		Context: data,
		Device:  device,
		Created: c.now(),
	}
	if err := c.entries.Put(id, e); err != nil {
		if errors.Is(err, cache.ErrCacheFull) {
			return fmt.Errorf("%w: %s", ErrCacheFull, id)
		}
		return err
	}
	return nil
}

// Get returns the entry for id, or ErrTransactionNotFound when it was never
// seen or has expired.
func (c *Cache) Get(id string) (*Entry, error) {
	e, ok := c.entries.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	return e, nil
}

// List returns every live entry, oldest first.
func (c *Cache) List() []*Entry {
	live := c.entries.List()
	out := make([]*Entry, 0, len(live))
	for _, e := range live {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// Run sweeps expired entries every interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	c.entries.Run(ctx, interval)
}
