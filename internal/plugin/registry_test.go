package plugin_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-gateway/internal/plugin"
	"github.com/nerrad567/gray-logic-gateway/internal/plugin/plugintest"
)

type recordedEvent struct {
	eventType string
	payload   any
}

type eventRecorder struct {
	events []recordedEvent
}

func (r *eventRecorder) PublishEvent(eventType string, payload any) {
	r.events = append(r.events, recordedEvent{eventType, payload})
}

func (r *eventRecorder) count(eventType string) int {
	n := 0
	for _, e := range r.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

func newTestRegistry(t *testing.T) (*plugin.Registry, *plugintest.Factory, *plugintest.Discoverer) {
	t.Helper()
	factory := plugintest.NewFactory()
	set := plugintest.NewDiscoverer()
	return plugin.NewRegistry(factory.New, set), factory, set
}

func TestID(t *testing.T) {
	tests := []struct {
		name string
		addr plugin.Address
		want string
	}{
		{"p1", plugin.Address{Mode: plugin.ModeTCP, Address: "10.0.0.5:5001"}, "p1+tcp@10.0.0.5:5001"},
		{"p2", plugin.Address{Mode: plugin.ModeUnix, Address: "/tmp/p2.sock"}, "p2+unix@/tmp/p2.sock"},
	}
	for _, tt := range tests {
		if got := plugin.ID(tt.name, tt.addr); got != tt.want {
			t.Errorf("ID(%q, %v) = %q, want %q", tt.name, tt.addr, got, tt.want)
		}
	}
}

func TestRegistry_AddGet(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	rec := &eventRecorder{}
	reg.SetEventPublisher(rec)

	_, p, err := plugintest.Register(reg, "p1", plugintest.TCP("a:1"))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := reg.Get("p1+tcp@a:1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != p {
		t.Error("Get() returned a different plugin instance")
	}
	if rec.count(plugin.EventRegistered) != 1 {
		t.Errorf("registered events = %d, want 1", rec.count(plugin.EventRegistered))
	}

	if _, err := reg.Get("nope"); !errors.Is(err, plugin.ErrPluginNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrPluginNotFound", err)
	}
}

func TestRegistry_AddDuplicate(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if _, _, err := plugintest.Register(reg, "p1", plugintest.TCP("a:1")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	_, _, err := plugintest.Register(reg, "p1", plugintest.TCP("a:1"))
	if !errors.Is(err, plugin.ErrAlreadyRegistered) {
		t.Errorf("second Add() error = %v, want ErrAlreadyRegistered", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestRegistry_AddInvalid(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	p := plugin.New("", plugintest.TCP("a:1"), plugintest.NewClient(""))
	if err := reg.Add(p); !errors.Is(err, plugin.ErrPluginState) {
		t.Errorf("Add(no name) error = %v, want ErrPluginState", err)
	}
	if err := reg.Add(plugin.New("p", plugintest.TCP("a:1"), nil)); !errors.Is(err, plugin.ErrPluginState) {
		t.Errorf("Add(no client) error = %v, want ErrPluginState", err)
	}
}

func TestRegistry_GetByName(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, first, _ := plugintest.Register(reg, "shared", plugintest.TCP("a:1"))
	_, _, _ = plugintest.Register(reg, "shared", plugintest.TCP("b:1"))

	got, err := reg.GetByName("shared")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if got != first {
		t.Errorf("GetByName() = %s, want earliest %s", got.ID, first.ID)
	}
	if _, err := reg.GetByName("missing"); !errors.Is(err, plugin.ErrPluginNotFound) {
		t.Errorf("GetByName(missing) error = %v, want ErrPluginNotFound", err)
	}
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	c, p, _ := plugintest.Register(reg, "p1", plugintest.TCP("a:1"))

	if !reg.Remove(p.ID) {
		t.Fatal("Remove() = false, want true")
	}
	if !c.Closed() {
		t.Error("Remove() did not close the client")
	}
	if reg.Remove(p.ID) {
		t.Error("second Remove() = true, want no-op")
	}
}

func TestRegistry_Purge(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, a, _ := plugintest.Register(reg, "a", plugintest.TCP("a:1"))
	_, b, _ := plugintest.Register(reg, "b", plugintest.TCP("b:1"))
	_, c, _ := plugintest.Register(reg, "c", plugintest.TCP("c:1"))

	removed := reg.Purge(map[string]struct{}{b.ID: {}})
	if len(removed) != 2 || removed[0] != a.ID || removed[1] != c.ID {
		t.Errorf("Purge() removed %v, want [%s %s]", removed, a.ID, c.ID)
	}
	list := reg.List()
	if len(list) != 1 || list[0] != b {
		t.Errorf("List() after Purge = %d plugins, want only b", len(list))
	}
}

func TestRegistry_DiscoverProbesNewAddresses(t *testing.T) {
	reg, factory, set := newTestRegistry(t)
	addrA, addrB := plugintest.TCP("a:1"), plugintest.TCP("b:1")
	ca, cb := plugintest.NewClient("alpha"), plugintest.NewClient("beta")
	factory.Bind(addrA, ca)
	factory.Bind(addrB, cb)
	set.Set(addrA, addrB)

	ctx := context.Background()
	if err := reg.Discover(ctx); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("List() = %d plugins, want 2", len(list))
	}
	if list[0].ID != "alpha+tcp@a:1" || list[1].ID != "beta+tcp@b:1" {
		t.Errorf("List() IDs = [%s %s], want discovery order", list[0].ID, list[1].ID)
	}
	if ca.Calls("Test") != 1 || ca.Calls("Metadata") != 1 {
		t.Errorf("probe calls Test=%d Metadata=%d, want 1 each", ca.Calls("Test"), ca.Calls("Metadata"))
	}

	// A second pass must reuse the existing clients.
	if err := reg.Discover(ctx); err != nil {
		t.Fatalf("second Discover() error = %v", err)
	}
	if factory.Built(addrA) != 1 {
		t.Errorf("clients built for a = %d, want 1", factory.Built(addrA))
	}
	again, _ := reg.Get("alpha+tcp@a:1")
	if again != list[0] || again.Client() != ca {
		t.Error("second Discover() replaced a surviving plugin")
	}
}

func TestRegistry_DiscoverPurgesMissing(t *testing.T) {
	reg, factory, set := newTestRegistry(t)
	rec := &eventRecorder{}
	reg.SetEventPublisher(rec)
	addrA, addrB := plugintest.TCP("a:1"), plugintest.TCP("b:1")
	ca, cb := plugintest.NewClient("alpha"), plugintest.NewClient("beta")
	factory.Bind(addrA, ca)
	factory.Bind(addrB, cb)
	set.Set(addrA, addrB)

	ctx := context.Background()
	if err := reg.Discover(ctx); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	set.Set(addrB)
	if err := reg.Discover(ctx); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	list := reg.List()
	if len(list) != 1 || list[0].Name != "beta" {
		t.Fatalf("List() after purge = %v, want only beta", list)
	}
	if !ca.Closed() {
		t.Error("purged plugin client not closed")
	}
	if cb.Closed() {
		t.Error("surviving plugin client closed")
	}
	if rec.count(plugin.EventRemoved) != 1 {
		t.Errorf("removed events = %d, want 1", rec.count(plugin.EventRemoved))
	}
}

func TestRegistry_DiscoverPurgesUnreachable(t *testing.T) {
	reg, factory, set := newTestRegistry(t)
	rec := &eventRecorder{}
	reg.SetEventPublisher(rec)
	addrA, addrB := plugintest.TCP("a:1"), plugintest.TCP("b:1")
	ca, cb := plugintest.NewClient("alpha"), plugintest.NewClient("beta")
	factory.Bind(addrA, ca)
	factory.Bind(addrB, cb)
	set.Set(addrA, addrB)

	ctx := context.Background()
	if err := reg.Discover(ctx); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	// A is still advertised but stopped answering.
	ca.SetError("Test", errors.New("connection refused"))
	if err := reg.Discover(ctx); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	list := reg.List()
	if len(list) != 1 || list[0].ID != "beta+tcp@b:1" {
		t.Fatalf("List() = %d plugins, want only beta", len(list))
	}
	if !ca.Closed() {
		t.Error("unreachable plugin client not closed")
	}
	if cb.Closed() {
		t.Error("reachable plugin client closed")
	}
	if factory.Built(addrB) != 1 {
		t.Errorf("clients built for b = %d, want 1 (re-checked on its existing client)", factory.Built(addrB))
	}
	if cb.Calls("Test") != 2 {
		t.Errorf("Test calls on b = %d, want 2", cb.Calls("Test"))
	}
	if rec.count(plugin.EventRemoved) != 1 {
		t.Errorf("removed events = %d, want 1", rec.count(plugin.EventRemoved))
	}

	// Once A answers again it is probed as a new address.
	ca.SetError("Test", nil)
	if err := reg.Discover(ctx); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() after recovery = %d, want 2", reg.Len())
	}
	if factory.Built(addrA) != 2 {
		t.Errorf("clients built for a = %d, want 2", factory.Built(addrA))
	}
}

func TestRegistry_DiscoverSkipsFailedProbe(t *testing.T) {
	reg, factory, set := newTestRegistry(t)
	addrA, addrB, addrC := plugintest.TCP("a:1"), plugintest.TCP("b:1"), plugintest.TCP("c:1")
	ca, cb := plugintest.NewClient("alpha"), plugintest.NewClient("beta")
	cb.SetError("Metadata", errors.New("boom"))
	factory.Bind(addrA, ca)
	factory.Bind(addrB, cb)
	// addrC is unbound and therefore unreachable.
	set.Set(addrA, addrB, addrC)

	if err := reg.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	list := reg.List()
	if len(list) != 1 || list[0].Name != "alpha" {
		t.Errorf("List() = %d plugins, want only alpha", len(list))
	}
	if !cb.Closed() {
		t.Error("client with failed probe not closed")
	}

	// The address is retried on the next pass.
	cb.SetError("Metadata", nil)
	if err := reg.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() after recovery = %d, want 2", reg.Len())
	}
}

func TestRegistry_DiscoverSkipsFailingStrategy(t *testing.T) {
	factory := plugintest.NewFactory()
	addr := plugintest.TCP("a:1")
	factory.Bind(addr, plugintest.NewClient("alpha"))
	set := plugintest.NewDiscoverer(addr, addr)
	broken := plugintest.NewDiscoverer()
	broken.Fail(plugin.ErrDiscovery)
	reg := plugin.NewRegistry(factory.New, broken, set)

	if err := reg.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (duplicate address collapsed)", reg.Len())
	}
}

func TestRegistry_EnsureDiscoveredAndReset(t *testing.T) {
	reg, factory, set := newTestRegistry(t)
	addr := plugintest.TCP("a:1")
	c := plugintest.NewClient("alpha")
	factory.Bind(addr, c)
	set.Set(addr)

	ctx := context.Background()
	for range 3 {
		if err := reg.EnsureDiscovered(ctx); err != nil {
			t.Fatalf("EnsureDiscovered() error = %v", err)
		}
	}
	if factory.Built(addr) != 1 {
		t.Errorf("clients built = %d, want 1", factory.Built(addr))
	}

	set.Set()
	reg.Reset()
	if reg.Len() != 1 {
		t.Errorf("Reset() changed membership: Len() = %d, want 1", reg.Len())
	}
	if err := reg.EnsureDiscovered(ctx); err != nil {
		t.Fatalf("EnsureDiscovered() error = %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() after reset pass = %d, want 0", reg.Len())
	}
}

func TestRegistry_DiscoverCancelled(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := reg.Discover(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Discover(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestPlugin_MetadataCached(t *testing.T) {
	c := plugintest.NewClient("alpha")
	p := plugin.New("alpha", plugintest.TCP("a:1"), c)

	for range 2 {
		m, err := p.Metadata(context.Background())
		if err != nil {
			t.Fatalf("Metadata() error = %v", err)
		}
		if m.Name != "alpha" {
			t.Errorf("Metadata().Name = %q, want alpha", m.Name)
		}
	}
	if c.Calls("Metadata") != 1 {
		t.Errorf("client Metadata calls = %d, want 1", c.Calls("Metadata"))
	}
	if p.Info().Version != "test" {
		t.Errorf("Info().Version = %q, want test", p.Info().Version)
	}
}

func TestRegistry_RegisterPinsAddress(t *testing.T) {
	reg, factory, _ := newTestRegistry(t)
	addr := plugintest.TCP("manual:5001")
	factory.Bind(addr, plugintest.NewClient("manual"))
	ctx := context.Background()

	p, err := reg.Register(ctx, addr)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if p.ID != "manual+tcp@manual:5001" {
		t.Errorf("Register() ID = %q", p.ID)
	}
	if _, err := reg.Register(ctx, addr); !errors.Is(err, plugin.ErrAlreadyRegistered) {
		t.Errorf("second Register() error = %v, want ErrAlreadyRegistered", err)
	}

	// Discovery reports nothing, but the pinned address survives.
	if err := reg.Discover(ctx); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() after Discover = %d, want pinned plugin kept", reg.Len())
	}

	if _, err := reg.Register(ctx, plugintest.TCP("nowhere:1")); !errors.Is(err, plugintest.ErrUnreachable) {
		t.Errorf("Register(unreachable) error = %v, want ErrUnreachable", err)
	}
}

func TestRegistry_PinnedUnreachableIsPurged(t *testing.T) {
	reg, factory, _ := newTestRegistry(t)
	addr := plugintest.TCP("manual:5001")
	c := plugintest.NewClient("manual")
	factory.Bind(addr, c)
	ctx := context.Background()

	if _, err := reg.Register(ctx, addr); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	c.SetError("Test", errors.New("connection refused"))
	if err := reg.Discover(ctx); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("Len() = %d, want unreachable pinned plugin purged", reg.Len())
	}

	// The pin outlives the purge.
	c.SetError("Test", nil)
	if err := reg.Discover(ctx); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() after recovery = %d, want 1", reg.Len())
	}
}

func TestRegistry_RemoveUnpins(t *testing.T) {
	reg, factory, _ := newTestRegistry(t)
	addr := plugintest.TCP("manual:5001")
	factory.Bind(addr, plugintest.NewClient("manual"))
	ctx := context.Background()

	p, err := reg.Register(ctx, addr)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !reg.Remove(p.ID) {
		t.Fatal("Remove() = false, want true")
	}
	if err := reg.Discover(ctx); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() after Remove and Discover = %d, want 0", reg.Len())
	}
	if factory.Built(addr) != 1 {
		t.Errorf("clients built = %d, want 1 (removed address not probed again)", factory.Built(addr))
	}
}
