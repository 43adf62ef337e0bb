package directory

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-gateway/internal/cache"
	"github.com/nerrad567/gray-logic-gateway/internal/plugin"
)

// DefaultTTL is the metadata cache lifetime when none is configured.
const DefaultTTL = 20 * time.Second

// EventRebuilt is published after every successful rebuild.
const EventRebuilt = "directory.rebuilt"

// Logger defines the logging interface used by the Directory.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EventPublisher receives directory events.
type EventPublisher interface {
	PublishEvent(eventType string, payload any)
}

// PluginSource is the part of the plugin registry a rebuild needs.
type PluginSource interface {
	EnsureDiscovered(ctx context.Context) error
	List() []*plugin.Plugin
}

// Snapshot is one immutable rebuild result.
//
// Devices returned from a snapshot are shared with every other reader and
// must not be modified.
type Snapshot struct {
	devices map[string]*plugin.Device
	order   []string

	// BuiltAt is when the rebuild completed.
	BuiltAt time.Time

	// Plugins is the number of plugins the rebuild fanned out to.
	Plugins int
}

// Len returns the number of devices.
func (s *Snapshot) Len() int {
	return len(s.order)
}

// Device returns the device with uid.
func (s *Snapshot) Device(uid string) (*plugin.Device, bool) {
	d, ok := s.devices[uid]
	return d, ok
}

// Devices returns every device in first-seen order: plugins in registration
// order, then each plugin's devices in the order it reported them.
func (s *Snapshot) Devices() []*plugin.Device {
	out := make([]*plugin.Device, 0, len(s.order))
	for _, uid := range s.order {
		out = append(out, s.devices[uid])
	}
	return out
}

// Directory is the bounded-staleness device metadata cache.
type Directory struct {
	plugins  PluginSource
	snapshot *cache.Snapshot[*Snapshot]
	logger   Logger
	events   EventPublisher
}

// New creates a directory over plugins. A non-positive ttl selects DefaultTTL.
func New(plugins PluginSource, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	d := &Directory{
		plugins: plugins,
		logger:  noopLogger{},
	}
	d.snapshot = cache.NewSnapshot[*Snapshot](ttl, d.rebuild)
	return d
}

// SetLogger sets the logger for the directory.
func (d *Directory) SetLogger(logger Logger) {
	d.logger = logger
}

// SetEventPublisher sets the receiver for rebuild events.
func (d *Directory) SetEventPublisher(events EventPublisher) {
	d.events = events
}

// SetClock replaces the time source of the TTL check. Intended for tests.
func (d *Directory) SetClock(now cache.Clock) {
	d.snapshot.SetClock(now)
}

// Get returns the current snapshot, rebuilding it once it is older than the
// TTL. Concurrent callers share one rebuild.
//
// A failed rebuild returns the previous snapshot. With no previous snapshot
// the error wraps ErrRebuild.
func (d *Directory) Get(ctx context.Context) (*Snapshot, error) {
	return d.snapshot.Get(ctx)
}

// Invalidate forces the next Get to rebuild. It does not rebuild itself.
func (d *Directory) Invalidate() {
	d.snapshot.Invalidate()
}

// Lookup resolves a device by its rack, board and uid.
func (d *Directory) Lookup(ctx context.Context, rack, board, uid string) (*plugin.Device, error) {
	snap, err := d.Get(ctx)
	if err != nil {
		return nil, err
	}
	dev, ok := snap.Device(uid)
	if !ok || dev.Location.Rack != rack || dev.Location.Board != board {
		return nil, fmt.Errorf("%w: %s/%s/%s", ErrDeviceNotFound, rack, board, uid)
	}
	return dev, nil
}

// rebuild fans ListDevices out to every plugin and merges the results.
func (d *Directory) rebuild(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	if err := d.plugins.EnsureDiscovered(ctx); err != nil {
		return nil, fmt.Errorf("%w: discovery: %w", ErrRebuild, err)
	}
	plugins := d.plugins.List()

	results := make([][]plugin.Device, len(plugins))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range plugins {
		g.Go(func() error {
			devices, err := p.Client().ListDevices(gctx)
			if err != nil {
				return fmt.Errorf("listing devices from %s: %w", p.ID, err)
			}
			results[i] = devices
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.logger.Warn("directory rebuild failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRebuild, err)
	}

	snap := &Snapshot{
		devices: make(map[string]*plugin.Device),
		Plugins: len(plugins),
	}
	for i, p := range plugins {
		for _, dev := range results[i] {
			if prev, dup := snap.devices[dev.UID]; dup {
				d.logger.Warn("duplicate device uid, keeping first",
					"uid", dev.UID, "kept_plugin", prev.Plugin, "dropped_plugin", p.Name)
				continue
			}
			stamped := dev.Clone()
			stamped.Plugin = p.Name
			snap.devices[dev.UID] = stamped
			snap.order = append(snap.order, dev.UID)
		}
	}
	snap.BuiltAt = time.Now()

	d.logger.Debug("directory rebuilt",
		"plugins", snap.Plugins,
		"devices", snap.Len(),
		"duration", time.Since(start),
	)
	if d.events != nil {
		d.events.PublishEvent(EventRebuilt, map[string]any{
			"plugins":  snap.Plugins,
			"devices":  snap.Len(),
			"built_at": snap.BuiltAt,
		})
	}
	return snap, nil
}
