// Package plugintest provides in-memory plugin clients for tests.
package plugintest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-gateway/internal/plugin"
)

// ErrUnreachable is returned by Factory for addresses with no fake client.
var ErrUnreachable = errors.New("plugintest: address unreachable")

// Client is a scripted plugin.Client.
//
// Fields may be set before the client is used. Use the setters once the
// client is shared with goroutines.
type Client struct {
	mu sync.Mutex

	Meta         plugin.Metadata
	HealthStatus plugin.Health
	Devices      []plugin.Device
	Readings     map[string][]plugin.Reading
	Transactions map[string]*plugin.TransactionStatus

	// WriteFunc builds write results. Nil returns one transaction per
	// WriteData with IDs "<uid>-txn-<n>".
	WriteFunc func(uid string, data []plugin.WriteData) ([]plugin.WriteTransaction, error)

	// Errors keyed by method name ("Test", "ListDevices", ...).
	Errors map[string]error

	// ListGate, when set, blocks ListDevices until it is closed.
	ListGate chan struct{}

	calls  map[string]int
	writes int
	closed bool
}

// NewClient creates a fake plugin declaring name.
func NewClient(name string) *Client {
	return &Client{
		Meta:         plugin.Metadata{Name: name, Version: "test"},
		HealthStatus: plugin.Health{Status: plugin.HealthOK},
		Readings:     make(map[string][]plugin.Reading),
		Transactions: make(map[string]*plugin.TransactionStatus),
		Errors:       make(map[string]error),
		calls:        make(map[string]int),
	}
}

// SetError makes method fail with err. A nil err clears it.
func (c *Client) SetError(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.Errors, method)
		return
	}
	c.Errors[method] = err
}

// SetDevices replaces the device list.
func (c *Client) SetDevices(devices ...plugin.Device) {
	c.mu.Lock()
	c.Devices = devices
	c.mu.Unlock()
}

// Calls returns how many times method was invoked.
func (c *Client) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) enter(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++
	return c.Errors[method]
}

// Test implements plugin.Client.
func (c *Client) Test(context.Context) error {
	return c.enter("Test")
}

// Metadata implements plugin.Client.
func (c *Client) Metadata(context.Context) (*plugin.Metadata, error) {
	if err := c.enter("Metadata"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	m := c.Meta
	c.mu.Unlock()
	return &m, nil
}

// Health implements plugin.Client.
func (c *Client) Health(context.Context) (*plugin.Health, error) {
	if err := c.enter("Health"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	h := c.HealthStatus
	c.mu.Unlock()
	return &h, nil
}

// ListDevices implements plugin.Client.
func (c *Client) ListDevices(ctx context.Context) ([]plugin.Device, error) {
	if err := c.enter("ListDevices"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	gate := c.ListGate
	c.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]plugin.Device, len(c.Devices))
	for i := range c.Devices {
		out[i] = *c.Devices[i].Clone()
	}
	return out, nil
}

// Read implements plugin.Client.
func (c *Client) Read(_ context.Context, uid string) ([]plugin.Reading, error) {
	if err := c.enter("Read"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]plugin.Reading(nil), c.Readings[uid]...), nil
}

// Write implements plugin.Client.
func (c *Client) Write(_ context.Context, uid string, data []plugin.WriteData) ([]plugin.WriteTransaction, error) {
	if err := c.enter("Write"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	fn := c.WriteFunc
	c.mu.Unlock()
	if fn != nil {
		return fn(uid, data)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	txns := make([]plugin.WriteTransaction, 0, len(data))
	for _, d := range data {
		c.writes++
		id := fmt.Sprintf("%s-txn-%d", uid, c.writes)
		txns = append(txns, plugin.WriteTransaction{ID: id, Context: d})
		c.Transactions[id] = &plugin.TransactionStatus{
			ID:     id,
			State:  "ok",
			Status: plugin.TransactionPending,
		}
	}
	return txns, nil
}

// CheckTransaction implements plugin.Client.
func (c *Client) CheckTransaction(_ context.Context, id string) (*plugin.TransactionStatus, error) {
	if err := c.enter("CheckTransaction"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.Transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown transaction %s", plugin.ErrTransport, id)
	}
	cp := *st
	return &cp, nil
}

// Close implements plugin.Client.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// Factory hands out fake clients by address.
type Factory struct {
	mu      sync.Mutex
	clients map[string]*Client
	built   map[string]int
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{
		clients: make(map[string]*Client),
		built:   make(map[string]int),
	}
}

// Bind makes addr resolve to c.
func (f *Factory) Bind(addr plugin.Address, c *Client) {
	f.mu.Lock()
	f.clients[addr.String()] = c
	f.mu.Unlock()
}

// Unbind makes addr unreachable.
func (f *Factory) Unbind(addr plugin.Address) {
	f.mu.Lock()
	delete(f.clients, addr.String())
	f.mu.Unlock()
}

// Built returns how many clients were created for addr.
func (f *Factory) Built(addr plugin.Address) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built[addr.String()]
}

// New is a plugin.ClientFactory.
func (f *Factory) New(addr plugin.Address) (plugin.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[addr.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, addr)
	}
	f.built[addr.String()]++
	return c, nil
}

// TCP is a shorthand for a TCP address.
func TCP(addr string) plugin.Address {
	return plugin.Address{Mode: plugin.ModeTCP, Address: addr}
}

// Register binds a fresh fake named name at addr and adds it to reg.
func Register(reg *plugin.Registry, name string, addr plugin.Address) (*Client, *plugin.Plugin, error) {
	c := NewClient(name)
	p := plugin.New(name, addr, c)
	if err := reg.Add(p); err != nil {
		return nil, nil, err
	}
	return c, p, nil
}
