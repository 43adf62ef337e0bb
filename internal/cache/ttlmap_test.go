package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTTLMap_ExpiryBoundary(t *testing.T) {
	clock := newFakeClock()
	m := NewTTLMap[string, int](60*time.Second, 0)
	m.SetClock(clock.Now)

	if err := m.Put("txn-1", 1); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	clock.Advance(59 * time.Second)
	if v, ok := m.Get("txn-1"); !ok || v != 1 {
		t.Errorf("Get() at T+59s = %d, %v; want hit", v, ok)
	}

	clock.Advance(2 * time.Second)
	if _, ok := m.Get("txn-1"); ok {
		t.Error("Get() at T+61s should miss")
	}
}

func TestTTLMap_PutOverwritesAndRefreshes(t *testing.T) {
	clock := newFakeClock()
	m := NewTTLMap[string, string](time.Minute, 0)
	m.SetClock(clock.Now)

	_ = m.Put("k", "old")
	clock.Advance(50 * time.Second)
	_ = m.Put("k", "new")
	clock.Advance(50 * time.Second)

	if v, ok := m.Get("k"); !ok || v != "new" {
		t.Errorf("Get() = %q, %v; want refreshed new", v, ok)
	}
}

func TestTTLMap_ListAndSweep(t *testing.T) {
	clock := newFakeClock()
	m := NewTTLMap[string, int](time.Minute, 0)
	m.SetClock(clock.Now)

	_ = m.Put("a", 1)
	clock.Advance(30 * time.Second)
	_ = m.Put("b", 2)
	clock.Advance(40 * time.Second)

	list := m.List()
	if len(list) != 1 || list["b"] != 2 {
		t.Errorf("List() = %v, want only b", list)
	}
	if m.Len() != 2 {
		t.Errorf("Len() before Sweep = %d, want 2", m.Len())
	}
	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if m.Len() != 1 {
		t.Errorf("Len() after Sweep = %d, want 1", m.Len())
	}
}

func TestTTLMap_Capacity(t *testing.T) {
	clock := newFakeClock()
	m := NewTTLMap[string, int](time.Minute, 2)
	m.SetClock(clock.Now)

	_ = m.Put("a", 1)
	_ = m.Put("b", 2)
	if err := m.Put("c", 3); !errors.Is(err, ErrCacheFull) {
		t.Errorf("Put() over capacity error = %v, want ErrCacheFull", err)
	}
	if err := m.Put("a", 10); err != nil {
		t.Errorf("Put() overwrite at capacity error = %v, want nil", err)
	}

	// Expired entries make room.
	clock.Advance(2 * time.Minute)
	if err := m.Put("c", 3); err != nil {
		t.Errorf("Put() after expiry error = %v, want nil", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestTTLMap_Delete(t *testing.T) {
	m := NewTTLMap[int, int](time.Minute, 0)
	_ = m.Put(1, 1)
	m.Delete(1)
	if _, ok := m.Get(1); ok {
		t.Error("Get() after Delete should miss")
	}
}

func TestTTLMap_RunStopsOnCancel(t *testing.T) {
	m := NewTTLMap[string, int](time.Millisecond, 0)
	_ = m.Put("a", 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for m.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("janitor did not sweep expired entry")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
