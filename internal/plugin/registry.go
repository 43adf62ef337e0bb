package plugin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EventPublisher receives registry lifecycle events.
type EventPublisher interface {
	PublishEvent(eventType string, payload any)
}

// Registry lifecycle event types.
const (
	EventRegistered = "plugin.registered"
	EventRemoved    = "plugin.removed"
)

// maxConcurrentProbes bounds parallel Test/Metadata probes in one pass.
const maxConcurrentProbes = 8

// Registry tracks the live set of plugins keyed by composite identity.
//
// Plugins enter the registry through Add or a discovery pass and leave it
// through Remove or Purge. Listing order is registration order, which makes
// every derived view (device directory, plugin listings) deterministic.
//
// All public methods are thread-safe.
type Registry struct {
	mu        sync.RWMutex
	plugins   map[string]*Plugin // by ID
	byAddress map[string]string  // Address.String() -> ID
	order     []string

	newClient   ClientFactory
	discoverers []Discoverer
	pinned      []Address // registered explicitly through Register
	discoverMu  sync.Mutex // serialises discovery passes
	discovered  atomic.Bool

	logger Logger
	events EventPublisher
}

// NewRegistry creates an empty registry.
//
// Parameters:
//   - factory: builds clients for newly discovered addresses
//   - discoverers: strategies consulted, in order, on every discovery pass
func NewRegistry(factory ClientFactory, discoverers ...Discoverer) *Registry {
	return &Registry{
		plugins:     make(map[string]*Plugin),
		byAddress:   make(map[string]string),
		newClient:   factory,
		discoverers: discoverers,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetEventPublisher sets the receiver for registration events.
func (r *Registry) SetEventPublisher(events EventPublisher) {
	r.events = events
}

// Add registers a plugin.
//
// Returns ErrPluginState if the plugin has no name or client, and
// ErrAlreadyRegistered if its identity is already tracked.
func (r *Registry) Add(p *Plugin) error {
	if p == nil || p.Name == "" || p.client == nil {
		return ErrPluginState
	}

	r.mu.Lock()
	if _, exists := r.plugins[p.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, p.ID)
	}
	r.plugins[p.ID] = p
	r.byAddress[p.Address.String()] = p.ID
	r.order = append(r.order, p.ID)
	r.mu.Unlock()

	r.logger.Info("plugin registered", "plugin_id", p.ID, "name", p.Name)
	r.publish(EventRegistered, p.Info())
	return nil
}

// Get returns the plugin with the given identity.
func (r *Registry) Get(id string) (*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	return p, nil
}

// GetByName returns the earliest registered plugin declaring the given name.
// Devices record only their owner's name, so this is how reads and writes
// are routed.
func (r *Registry) GetByName(name string) (*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if p := r.plugins[id]; p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: no plugin named %q", ErrPluginNotFound, name)
}

// List returns all plugins in registration order.
func (r *Registry) List() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Plugin, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.plugins[id])
	}
	return out
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Remove unregisters a plugin and closes its client. An address pinned by
// Register is unpinned, so discovery only brings it back if a strategy
// still reports it.
// Removing an unknown identity is a no-op; the result reports whether a
// plugin was removed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	p, ok := r.plugins[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.drop(id)
	r.unpin(p.Address)
	r.mu.Unlock()

	r.release(p)
	return true
}

// Purge removes every plugin whose identity is not in keep.
// It returns the identities removed.
func (r *Registry) Purge(keep map[string]struct{}) []string {
	r.mu.Lock()
	var removed []*Plugin
	for _, id := range append([]string(nil), r.order...) {
		if _, ok := keep[id]; ok {
			continue
		}
		removed = append(removed, r.plugins[id])
		r.drop(id)
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(removed))
	for _, p := range removed {
		r.release(p)
		ids = append(ids, p.ID)
	}
	return ids
}

// drop removes id from all indexes. Caller holds r.mu.
func (r *Registry) drop(id string) {
	p := r.plugins[id]
	delete(r.plugins, id)
	if r.byAddress[p.Address.String()] == id {
		delete(r.byAddress, p.Address.String())
	}
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// unpin forgets a Register pin for addr. Caller holds r.mu.
func (r *Registry) unpin(addr Address) {
	r.pinned = slices.DeleteFunc(r.pinned, func(a Address) bool {
		return a.String() == addr.String()
	})
}

func (r *Registry) release(p *Plugin) {
	if err := p.client.Close(); err != nil {
		r.logger.Warn("closing plugin client", "plugin_id", p.ID, "error", err)
	}
	r.logger.Info("plugin removed", "plugin_id", p.ID)
	r.publish(EventRemoved, p.Info())
}

func (r *Registry) publish(eventType string, payload any) {
	if r.events != nil {
		r.events.PublishEvent(eventType, payload)
	}
}

// Discover runs one discovery pass.
//
// Every configured strategy is consulted; a failing strategy is logged and
// skipped. Plugins already bound to a reported address are re-checked with
// Test on their existing client. New addresses are probed with Test then
// Metadata, and an address whose probe fails is skipped for this pass.
// Finally, plugins that were not reported or did not answer are purged.
//
// Passes are serialised. Returns only ctx errors; a cancelled pass purges
// nothing.
func (r *Registry) Discover(ctx context.Context) error {
	r.discoverMu.Lock()
	defer r.discoverMu.Unlock()

	start := time.Now()
	addrs := r.collect(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		known []*Plugin
		fresh []Address
	)
	r.mu.RLock()
	for _, a := range addrs {
		if id, ok := r.byAddress[a.String()]; ok {
			known = append(known, r.plugins[id])
			continue
		}
		fresh = append(fresh, a)
	}
	r.mu.RUnlock()

	alive := make([]bool, len(known))
	probed := make([]*Plugin, len(fresh))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)
	for i, p := range known {
		g.Go(func() error {
			if err := p.client.Test(gctx); err != nil {
				r.logger.Warn("plugin not answering", "plugin_id", p.ID, "error", err)
				return nil
			}
			alive[i] = true
			return nil
		})
	}
	for i, a := range fresh {
		g.Go(func() error {
			p, err := r.probe(gctx, a)
			if err != nil {
				r.logger.Warn("plugin probe failed", "address", a.String(), "error", err)
				return nil
			}
			probed[i] = p
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // probe errors are logged, never returned

	if err := ctx.Err(); err != nil {
		for _, p := range probed {
			if p != nil {
				_ = p.client.Close() //nolint:errcheck // abandoned pass
			}
		}
		return err
	}

	seen := make(map[string]struct{}, len(addrs))
	for i, p := range known {
		if alive[i] {
			seen[p.ID] = struct{}{}
		}
	}

	// Registration follows discovery order regardless of probe timing.
	for _, p := range probed {
		if p == nil {
			continue
		}
		if err := r.Add(p); err != nil {
			if errors.Is(err, ErrAlreadyRegistered) {
				seen[p.ID] = struct{}{}
			} else {
				r.logger.Warn("registering plugin", "plugin_id", p.ID, "error", err)
			}
			_ = p.client.Close() //nolint:errcheck // discarded duplicate
			continue
		}
		seen[p.ID] = struct{}{}
	}

	removed := r.Purge(seen)
	r.discovered.Store(true)

	r.logger.Debug("discovery pass complete",
		"addresses", len(addrs),
		"rechecked", len(known),
		"probed", len(fresh),
		"purged", len(removed),
		"duration", time.Since(start),
	)
	return ctx.Err()
}

// collect gathers de-duplicated addresses from every strategy, in order.
func (r *Registry) collect(ctx context.Context) []Address {
	var out []Address
	dedup := make(map[string]struct{})
	for _, d := range r.discoverers {
		found, err := d.Discover(ctx)
		if err != nil {
			r.logger.Warn("discovery strategy failed", "strategy", d.Name(), "error", err)
			continue
		}
		for _, a := range found {
			if err := a.Validate(); err != nil {
				r.logger.Warn("ignoring discovered address", "strategy", d.Name(), "error", err)
				continue
			}
			if _, dup := dedup[a.String()]; dup {
				continue
			}
			dedup[a.String()] = struct{}{}
			out = append(out, a)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.pinned {
		if _, dup := dedup[a.String()]; !dup {
			dedup[a.String()] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

// probe dials addr and returns an unregistered plugin on success.
func (r *Registry) probe(ctx context.Context, addr Address) (*Plugin, error) {
	client, err := r.newClient(addr)
	if err != nil {
		return nil, err
	}
	if err := client.Test(ctx); err != nil {
		_ = client.Close() //nolint:errcheck // unusable client
		return nil, fmt.Errorf("test: %w", err)
	}
	meta, err := client.Metadata(ctx)
	if err != nil {
		_ = client.Close() //nolint:errcheck // unusable client
		return nil, fmt.Errorf("metadata: %w", err)
	}
	if meta.Name == "" {
		_ = client.Close() //nolint:errcheck // unusable client
		return nil, fmt.Errorf("%w: empty plugin name at %s", ErrPluginState, addr)
	}

	p := New(meta.Name, addr, client)
	p.setMetadata(meta)
	return p, nil
}

// Register probes addr and adds the plugin behind it outside of discovery.
// The address is pinned: later discovery passes keep re-checking it as if a
// strategy reported it, until Remove unpins it. A pinned plugin that stops
// answering is purged like any other and comes back once it answers again.
//
// Returns ErrAlreadyRegistered if a plugin is already bound to addr, and the
// probe error if the address does not answer.
func (r *Registry) Register(ctx context.Context, addr Address) (*Plugin, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	r.discoverMu.Lock()
	defer r.discoverMu.Unlock()

	r.mu.RLock()
	id, bound := r.byAddress[addr.String()]
	r.mu.RUnlock()
	if bound {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}

	p, err := r.probe(ctx, addr)
	if err != nil {
		return nil, err
	}
	if err := r.Add(p); err != nil {
		_ = p.client.Close() //nolint:errcheck // rejected plugin
		return nil, err
	}

	r.mu.Lock()
	r.pinned = append(r.pinned, addr)
	r.mu.Unlock()
	return p, nil
}

// EnsureDiscovered runs a discovery pass unless one has completed since the
// last Reset.
func (r *Registry) EnsureDiscovered(ctx context.Context) error {
	if r.discovered.Load() {
		return nil
	}
	return r.Discover(ctx)
}

// Reset clears the discovered flag so the next EnsureDiscovered runs a pass.
// Registered plugins are kept.
func (r *Registry) Reset() {
	r.discovered.Store(false)
}

// Run repeats discovery passes every interval until ctx is cancelled.
// A non-positive interval returns immediately.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Discover(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("periodic discovery failed", "error", err)
			}
		}
	}
}

// Close closes every plugin client. Plugins stay registered.
func (r *Registry) Close() error {
	var errs []error
	for _, p := range r.List() {
		if err := p.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", p.ID, err))
		}
	}
	return errors.Join(errs...)
}
