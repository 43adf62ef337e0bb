package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// BuildFunc produces a fresh snapshot value.
type BuildFunc[T any] func(ctx context.Context) (T, error)

// Snapshot is a single-flight, TTL-bounded cache of one value.
//
// Get returns the current value while it is younger than the TTL. Once it
// is stale, the first caller starts a rebuild and every other caller waits
// for the same result. The rebuild runs detached from any caller's context,
// so a caller that gives up returns ctx.Err() while the rebuild continues
// and publishes its result for later callers.
//
// All methods are thread-safe.
type Snapshot[T any] struct {
	build BuildFunc[T]
	ttl   time.Duration
	now   Clock

	group singleflight.Group

	mu      sync.RWMutex
	value   T
	valid   bool      // a value has been built at least once
	builtAt time.Time // zero after Invalidate
	gen     uint64    // bumped by Invalidate
}

// snapshotKey is the single-flight key; a Snapshot holds one value.
const snapshotKey = "snapshot"

// NewSnapshot creates an empty snapshot. Nothing is built until the first Get.
func NewSnapshot[T any](ttl time.Duration, build BuildFunc[T]) *Snapshot[T] {
	return &Snapshot[T]{
		build: build,
		ttl:   ttl,
		now:   time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Snapshot[T]) SetClock(now Clock) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Get returns a value no older than the TTL, rebuilding it if necessary.
//
// If a rebuild fails and a previous value exists, the previous value is
// returned with a nil error. If there is no previous value the build error
// is returned.
func (s *Snapshot[T]) Get(ctx context.Context) (T, error) {
	if v, ok := s.fresh(); ok {
		return v, nil
	}

	ch := s.group.DoChan(snapshotKey, func() (any, error) {
		return s.rebuild(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (s *Snapshot[T]) fresh() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.valid && !s.builtAt.IsZero() && s.now().Sub(s.builtAt) < s.ttl {
		return s.value, true
	}
	var zero T
	return zero, false
}

// rebuild runs inside the single flight.
func (s *Snapshot[T]) rebuild(ctx context.Context) (T, error) {
	// A rebuild that finished just before this flight started may have
	// already refreshed the value.
	if v, ok := s.fresh(); ok {
		return v, nil
	}

	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	v, err := s.build(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if s.valid {
			return s.value, nil
		}
		var zero T
		return zero, err
	}

	// An Invalidate during the build means the result may predate the
	// change that prompted it. Hand it to the waiters but keep the
	// snapshot stale.
	if gen != s.gen {
		if !s.valid {
			s.value, s.valid = v, true
		}
		return v, nil
	}

	s.value = v
	s.valid = true
	s.builtAt = s.now()
	return v, nil
}

// Invalidate marks the value stale. The next Get rebuilds; the stale value
// remains the fallback if that rebuild fails.
func (s *Snapshot[T]) Invalidate() {
	s.mu.Lock()
	s.builtAt = time.Time{}
	s.gen++
	s.mu.Unlock()
	s.group.Forget(snapshotKey)
}

// Peek returns the last built value without rebuilding, and whether it is
// still within the TTL. Returns ErrNoValue before the first build.
func (s *Snapshot[T]) Peek() (T, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.valid {
		var zero T
		return zero, false, ErrNoValue
	}
	fresh := !s.builtAt.IsZero() && s.now().Sub(s.builtAt) < s.ttl
	return s.value, fresh, nil
}

// BuiltAt returns when the current value was built. Zero if never built or
// invalidated since.
func (s *Snapshot[T]) BuiltAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.builtAt
}
