package directory_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/directory"
	"github.com/nerrad567/gray-logic-gateway/internal/plugin"
	"github.com/nerrad567/gray-logic-gateway/internal/plugin/plugintest"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func dev(uid, rack, board string) plugin.Device {
	return plugin.Device{
		UID:      uid,
		Kind:     "temperature",
		Location: plugin.Location{Rack: rack, Board: board},
		Outputs:  []plugin.Output{{Type: "temperature", Precision: 2}},
	}
}

type fixture struct {
	registry *plugin.Registry
	dir      *directory.Directory
	scan     *directory.ScanCache
	clock    *testClock
	a, b     *plugintest.Client
}

// newFixture registers plugin A reporting d1 (rack1/board1) and d2
// (rack1/board2), and plugin B reporting d3 (rack2/board1).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	factory := plugintest.NewFactory()
	addrA, addrB := plugintest.TCP("a:5001"), plugintest.TCP("b:5001")

	a := plugintest.NewClient("pa")
	a.SetDevices(dev("d1", "rack1", "board1"), dev("d2", "rack1", "board2"))
	b := plugintest.NewClient("pb")
	b.SetDevices(dev("d3", "rack2", "board1"))
	factory.Bind(addrA, a)
	factory.Bind(addrB, b)

	reg := plugin.NewRegistry(factory.New, plugintest.NewDiscoverer(addrA, addrB))
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	dir := directory.New(reg, 20*time.Second)
	dir.SetClock(clock.Now)

	return &fixture{
		registry: reg,
		dir:      dir,
		scan:     directory.NewScanCache(dir),
		clock:    clock,
		a:        a,
		b:        b,
	}
}

func TestDirectory_MergeCorrectness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.dir.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if snap.Len() != 3 || snap.Plugins != 2 {
		t.Fatalf("snapshot has %d devices from %d plugins, want 3 from 2", snap.Len(), snap.Plugins)
	}

	owners := map[string]string{"d1": "pa", "d2": "pa", "d3": "pb"}
	for uid, want := range owners {
		d, ok := snap.Device(uid)
		if !ok {
			t.Fatalf("Device(%q) missing", uid)
		}
		if d.Plugin != want {
			t.Errorf("Device(%q).Plugin = %q, want %q", uid, d.Plugin, want)
		}
	}

	tree, err := f.scan.Get(ctx)
	if err != nil {
		t.Fatalf("scan Get() error = %v", err)
	}
	if len(tree.Racks) != 2 {
		t.Fatalf("racks = %d, want 2", len(tree.Racks))
	}
	if tree.Racks[0].ID != "rack1" || len(tree.Racks[0].Boards) != 2 {
		t.Errorf("rack1 = %+v, want 2 boards", tree.Racks[0])
	}
	if tree.Racks[1].ID != "rack2" || len(tree.Racks[1].Boards) != 1 {
		t.Errorf("rack2 = %+v, want 1 board", tree.Racks[1])
	}
	if d := tree.Racks[1].Boards[0].Devices[0]; d.UID != "d3" || d.Plugin != "pb" {
		t.Errorf("rack2/board1 device = %s owned by %s, want d3 owned by pb", d.UID, d.Plugin)
	}
}

func TestDirectory_SameSnapshotWithinTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _ := f.dir.Get(ctx)
	f.clock.Advance(10 * time.Second)
	second, _ := f.dir.Get(ctx)
	if first != second {
		t.Error("back-to-back Get() within TTL returned different snapshots")
	}
	if f.a.Calls("ListDevices") != 1 {
		t.Errorf("ListDevices calls = %d, want 1", f.a.Calls("ListDevices"))
	}

	t1, _ := f.scan.Get(ctx)
	t2, _ := f.scan.Get(ctx)
	if t1 != t2 {
		t.Error("scan tree re-derived without a new snapshot")
	}

	f.clock.Advance(11 * time.Second)
	third, _ := f.dir.Get(ctx)
	if third == first {
		t.Error("Get() after TTL returned the expired snapshot")
	}
	t3, _ := f.scan.Get(ctx)
	if t3 == t1 {
		t.Error("scan tree not re-derived after directory rebuild")
	}
}

func TestDirectory_SingleFlight(t *testing.T) {
	f := newFixture(t)
	if err := f.registry.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	gate := make(chan struct{})
	f.a.ListGate = gate
	f.b.ListGate = gate

	const callers = 16
	snaps := make([]*directory.Snapshot, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snaps[i], _ = f.dir.Get(context.Background())
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.a.Calls("ListDevices") == 0 || f.b.Calls("ListDevices") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("rebuild did not start")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if n := f.a.Calls("ListDevices"); n != 1 {
		t.Errorf("plugin a ListDevices calls = %d, want 1", n)
	}
	if n := f.b.Calls("ListDevices"); n != 1 {
		t.Errorf("plugin b ListDevices calls = %d, want 1", n)
	}
	for i, s := range snaps {
		if s == nil || s != snaps[0] {
			t.Fatalf("caller %d received a different snapshot", i)
		}
	}
}

func TestDirectory_FailFastKeepsPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.dir.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// A changes its inventory while B fails.
	f.a.SetDevices(dev("d9", "rack9", "board9"))
	f.b.SetError("ListDevices", errors.New("connection refused"))
	f.clock.Advance(time.Minute)

	after, err := f.dir.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v, want previous snapshot", err)
	}
	if after != before {
		t.Error("failed rebuild replaced the snapshot")
	}
	if _, ok := after.Device("d9"); ok {
		t.Error("devices from a partial rebuild were published")
	}
}

func TestDirectory_FailFastWithoutPrevious(t *testing.T) {
	f := newFixture(t)
	f.b.SetError("ListDevices", errors.New("connection refused"))

	_, err := f.dir.Get(context.Background())
	if !errors.Is(err, directory.ErrRebuild) {
		t.Fatalf("Get() error = %v, want ErrRebuild", err)
	}
	if _, err := f.scan.Get(context.Background()); !errors.Is(err, directory.ErrRebuild) {
		t.Errorf("scan Get() error = %v, want ErrRebuild", err)
	}
}

func TestDirectory_ForceRescanDropsUnreachablePlugin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.scan.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// A is still advertised by discovery but has gone away.
	refused := errors.New("connection refused")
	f.a.SetError("Test", refused)
	f.a.SetError("Metadata", refused)
	f.a.SetError("ListDevices", refused)

	f.registry.Reset()
	f.scan.Invalidate()
	tree, err := f.scan.Get(ctx)
	if err != nil {
		t.Fatalf("Get() after rescan error = %v", err)
	}

	list := f.registry.List()
	if len(list) != 1 || list[0].Name != "pb" {
		t.Fatalf("registry has %d plugins, want only pb", len(list))
	}
	if len(tree.Racks) != 1 || tree.Racks[0].ID != "rack2" {
		t.Errorf("racks = %d, want only rack2", len(tree.Racks))
	}
}

func TestDirectory_NoPlugins(t *testing.T) {
	reg := plugin.NewRegistry(plugintest.NewFactory().New, plugintest.NewDiscoverer())
	scan := directory.NewScanCache(directory.New(reg, time.Second))

	tree, err := scan.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(tree.Racks) != 0 {
		t.Errorf("racks = %d, want 0", len(tree.Racks))
	}
	out, _ := json.Marshal(tree)
	if string(out) != `{"racks":[]}` {
		t.Errorf("JSON = %s, want {\"racks\":[]}", out)
	}
}

func TestDirectory_Invalidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.scan.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	f.b.SetDevices(dev("d3", "rack2", "board1"), dev("d4", "rack3", "board1"))
	f.scan.Invalidate()

	tree, err := f.scan.Get(ctx)
	if err != nil {
		t.Fatalf("Get() after Invalidate error = %v", err)
	}
	if len(tree.Racks) != 3 {
		t.Errorf("racks after Invalidate = %d, want 3", len(tree.Racks))
	}
	if f.b.Calls("ListDevices") != 2 {
		t.Errorf("ListDevices calls = %d, want 2", f.b.Calls("ListDevices"))
	}
}

func TestDirectory_Lookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.dir.Lookup(ctx, "rack1", "board2", "d2")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if d.UID != "d2" {
		t.Errorf("Lookup() = %s, want d2", d.UID)
	}

	if _, err := f.dir.Lookup(ctx, "rack1", "board1", "d2"); !errors.Is(err, directory.ErrDeviceNotFound) {
		t.Errorf("Lookup(wrong board) error = %v, want ErrDeviceNotFound", err)
	}
	if _, err := f.dir.Lookup(ctx, "rack1", "board1", "d404"); !errors.Is(err, directory.ErrDeviceNotFound) {
		t.Errorf("Lookup(unknown) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestDirectory_DuplicateUIDKeepsFirst(t *testing.T) {
	f := newFixture(t)
	f.b.SetDevices(dev("d1", "rack5", "board5"))

	snap, err := f.dir.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	d, _ := snap.Device("d1")
	if d.Plugin != "pa" || d.Location.Rack != "rack1" {
		t.Errorf("d1 = %s in %s, want first-seen from pa in rack1", d.Plugin, d.Location.Rack)
	}
}

func TestTree_Filtering(t *testing.T) {
	f := newFixture(t)
	tree, err := f.scan.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if _, err := tree.Rack("rack1"); err != nil {
		t.Errorf("Rack(rack1) error = %v", err)
	}
	if _, err := tree.Rack("rack404"); !errors.Is(err, directory.ErrRackNotFound) {
		t.Errorf("Rack(missing) error = %v, want ErrRackNotFound", err)
	}
	b, err := tree.Board("rack1", "board2")
	if err != nil || len(b.Devices) != 1 || b.Devices[0].UID != "d2" {
		t.Errorf("Board(rack1, board2) = %+v, %v; want d2", b, err)
	}
	if _, err := tree.Board("rack1", "board404"); !errors.Is(err, directory.ErrBoardNotFound) {
		t.Errorf("Board(missing) error = %v, want ErrBoardNotFound", err)
	}
	if _, err := tree.Board("rack404", "board1"); !errors.Is(err, directory.ErrRackNotFound) {
		t.Errorf("Board(missing rack) error = %v, want ErrRackNotFound", err)
	}
}
