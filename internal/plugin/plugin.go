package plugin

import (
	"context"
	"sync"
	"time"
)

// ID builds the composite identity "<name>+<mode>@<address>".
func ID(name string, addr Address) string {
	return name + "+" + addr.String()
}

// Plugin is one registered backend.
//
// Plugins are created by the registry once an address has answered the
// Test and Metadata probes. The client is shared by every caller.
type Plugin struct {
	// ID is the composite identity.
	ID string

	// Name is the declared plugin name from its metadata.
	Name string

	Address Address

	client       Client
	registeredAt time.Time

	metaMu sync.Mutex
	meta   *Metadata
}

// New creates a plugin bound to an existing client.
func New(name string, addr Address, client Client) *Plugin {
	return &Plugin{
		ID:           ID(name, addr),
		Name:         name,
		Address:      addr,
		client:       client,
		registeredAt: time.Now(),
	}
}

// Client returns the plugin's RPC client.
func (p *Plugin) Client() Client {
	return p.client
}

// RegisteredAt returns when the plugin was created.
func (p *Plugin) RegisteredAt() time.Time {
	return p.registeredAt
}

// Metadata returns the plugin metadata, fetching it on first use.
// A failed fetch is not cached.
func (p *Plugin) Metadata(ctx context.Context) (*Metadata, error) {
	p.metaMu.Lock()
	defer p.metaMu.Unlock()

	if p.meta != nil {
		m := *p.meta
		return &m, nil
	}
	meta, err := p.client.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	p.meta = meta
	m := *meta
	return &m, nil
}

func (p *Plugin) setMetadata(meta *Metadata) {
	p.metaMu.Lock()
	p.meta = meta
	p.metaMu.Unlock()
}

// Info is the JSON view of a plugin.
type Info struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Mode         Mode      `json:"mode"`
	Address      string    `json:"address"`
	Tag          string    `json:"tag,omitempty"`
	Version      string    `json:"version,omitempty"`
	Maintainer   string    `json:"maintainer,omitempty"`
	Description  string    `json:"description,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Info returns the JSON view using whatever metadata is already known.
func (p *Plugin) Info() Info {
	info := Info{
		ID:           p.ID,
		Name:         p.Name,
		Mode:         p.Address.Mode,
		Address:      p.Address.Address,
		RegisteredAt: p.registeredAt,
	}
	p.metaMu.Lock()
	if p.meta != nil {
		info.Tag = p.meta.Tag
		info.Version = p.meta.Version
		info.Maintainer = p.meta.Maintainer
		info.Description = p.meta.Description
	}
	p.metaMu.Unlock()
	return info
}
