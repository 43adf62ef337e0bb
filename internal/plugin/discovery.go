package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Discoverer produces candidate plugin addresses.
type Discoverer interface {
	// Name identifies the strategy in logs.
	Name() string

	// Discover returns the addresses currently advertised.
	Discover(ctx context.Context) ([]Address, error)
}

// StaticDiscoverer returns a fixed list of addresses from configuration.
type StaticDiscoverer struct {
	addrs []Address
}

// NewStaticDiscoverer parses configured addresses.
// Entries prefixed "unix:" are unix sockets; all others are TCP.
func NewStaticDiscoverer(entries []string) (*StaticDiscoverer, error) {
	addrs := make([]Address, 0, len(entries))
	for _, e := range entries {
		a, err := ParseAddress(e)
		if err != nil {
			return nil, fmt.Errorf("static plugin %q: %w", e, err)
		}
		addrs = append(addrs, a)
	}
	return &StaticDiscoverer{addrs: addrs}, nil
}

// Name implements Discoverer.
func (d *StaticDiscoverer) Name() string { return "static" }

// Discover implements Discoverer.
func (d *StaticDiscoverer) Discover(context.Context) ([]Address, error) {
	return append([]Address(nil), d.addrs...), nil
}

// SocketDirDiscoverer lists unix sockets in a directory.
// Every socket file found is treated as one plugin.
type SocketDirDiscoverer struct {
	dir string
}

// NewSocketDirDiscoverer creates a discoverer for dir.
func NewSocketDirDiscoverer(dir string) *SocketDirDiscoverer {
	return &SocketDirDiscoverer{dir: dir}
}

// Name implements Discoverer.
func (d *SocketDirDiscoverer) Name() string { return "unix" }

// Discover implements Discoverer. A missing directory yields no addresses.
func (d *SocketDirDiscoverer) Discover(context.Context) ([]Address, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %w", ErrDiscovery, d.dir, err)
	}

	var addrs []Address
	for _, e := range entries {
		if e.Type()&fs.ModeSocket == 0 {
			continue
		}
		addrs = append(addrs, Address{Mode: ModeUnix, Address: filepath.Join(d.dir, e.Name())})
	}
	return addrs, nil
}
