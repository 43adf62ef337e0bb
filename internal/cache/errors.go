package cache

import (
	"errors"
	"time"
)

var (
	// ErrCacheFull is returned by TTLMap.Put when the map is at capacity
	// and the key is not already present.
	ErrCacheFull = errors.New("cache: full")

	// ErrNoValue is returned by Snapshot.Peek before the first successful build.
	ErrNoValue = errors.New("cache: no value")
)

// Clock returns the current time.
type Clock func() time.Time
