package plugintest

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-gateway/internal/plugin"
)

// Discoverer is a mutable address list implementing plugin.Discoverer.
type Discoverer struct {
	mu    sync.RWMutex
	addrs []plugin.Address
	err   error
}

// NewDiscoverer creates a discoverer advertising addrs.
func NewDiscoverer(addrs ...plugin.Address) *Discoverer {
	d := &Discoverer{}
	d.Set(addrs...)
	return d
}

// Name implements plugin.Discoverer.
func (d *Discoverer) Name() string { return "test" }

// Set replaces the advertised addresses.
func (d *Discoverer) Set(addrs ...plugin.Address) {
	d.mu.Lock()
	d.addrs = append([]plugin.Address(nil), addrs...)
	d.mu.Unlock()
}

// Fail makes Discover return err. A nil err clears it.
func (d *Discoverer) Fail(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Discover implements plugin.Discoverer.
func (d *Discoverer) Discover(context.Context) ([]plugin.Address, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.err != nil {
		return nil, d.err
	}
	return append([]plugin.Address(nil), d.addrs...), nil
}
