package plugin

import (
	"context"
	"fmt"
	"strings"
)

// Mode is the transport a plugin is reached over.
type Mode string

// Supported transport modes.
const (
	ModeTCP  Mode = "tcp"
	ModeUnix Mode = "unix"
)

// Address locates a plugin.
type Address struct {
	Mode    Mode   `json:"mode"`
	Address string `json:"address"`
}

// String returns "<mode>@<address>".
func (a Address) String() string {
	return string(a.Mode) + "@" + a.Address
}

// Validate checks the address can be dialled.
func (a Address) Validate() error {
	if a.Address == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}
	switch a.Mode {
	case ModeTCP, ModeUnix:
		return nil
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidAddress, a.Mode)
	}
}

// ParseAddress parses a configured address. A "unix:" prefix selects a unix
// socket path; anything else is a TCP host:port.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	var a Address
	if path, ok := strings.CutPrefix(s, "unix:"); ok {
		a = Address{Mode: ModeUnix, Address: path}
	} else {
		a = Address{Mode: ModeTCP, Address: strings.TrimPrefix(s, "tcp:")}
	}
	if err := a.Validate(); err != nil {
		return Address{}, err
	}
	return a, nil
}

// Client is the RPC contract every plugin implements.
//
// Every call blocks until the transport completes or the call times out.
// Failures are reported wrapped in ErrTransport.
type Client interface {
	// Test is a cheap liveness probe.
	Test(ctx context.Context) error

	// Metadata returns the plugin's self-description.
	Metadata(ctx context.Context) (*Metadata, error)

	// Health returns the plugin's self-reported health.
	Health(ctx context.Context) (*Health, error)

	// ListDevices returns every device the plugin owns.
	ListDevices(ctx context.Context) ([]Device, error)

	// Read returns the current readings of one device.
	Read(ctx context.Context, uid string) ([]Reading, error)

	// Write issues an asynchronous write and returns its transactions.
	Write(ctx context.Context, uid string, data []WriteData) ([]WriteTransaction, error)

	// CheckTransaction returns the status of a previously issued write.
	CheckTransaction(ctx context.Context, id string) (*TransactionStatus, error)

	// Close releases transport resources.
	Close() error
}

// ClientFactory builds a client bound to one address.
type ClientFactory func(addr Address) (Client, error)
