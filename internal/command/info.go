package command

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-gateway/internal/directory"
	"github.com/nerrad567/gray-logic-gateway/internal/plugin"
)

// Aggregated plugin health states.
const (
	HealthOK                = "ok"
	HealthPartiallyDegraded = "partially_degraded"
	HealthFailing           = "failing"
)

// RackInfo lists the boards of a rack.
type RackInfo struct {
	Rack   string   `json:"rack"`
	Boards []string `json:"boards"`
}

// BoardInfo lists the device uids on a board.
type BoardInfo struct {
	Rack    string   `json:"rack"`
	Board   string   `json:"board"`
	Devices []string `json:"devices"`
}

// DeviceInfo is the full description of one device and its owner.
type DeviceInfo struct {
	*plugin.Device
	Owner *plugin.Info `json:"owner,omitempty"`
}

func (r *Router) infoTree(ctx context.Context) (*directory.Tree, error) {
	tree, err := r.scan.Get(ctx)
	if err != nil {
		return nil, newError(failureKind(err, KindFailedInfoCommand), err, "building device tree")
	}
	return tree, nil
}

// RackInfo describes one rack.
func (r *Router) RackInfo(ctx context.Context, rack string) (*RackInfo, error) {
	tree, err := r.infoTree(ctx)
	if err != nil {
		return nil, err
	}
	rk, err := tree.Rack(rack)
	if err != nil {
		return nil, newError(KindRackNotFound, err, "no rack %s", rack)
	}
	info := &RackInfo{Rack: rk.ID, Boards: make([]string, 0, len(rk.Boards))}
	for _, b := range rk.Boards {
		info.Boards = append(info.Boards, b.ID)
	}
	return info, nil
}

// BoardInfo describes one board.
func (r *Router) BoardInfo(ctx context.Context, rack, board string) (*BoardInfo, error) {
	tree, err := r.infoTree(ctx)
	if err != nil {
		return nil, err
	}
	rk, err := tree.Rack(rack)
	if err != nil {
		return nil, newError(KindRackNotFound, err, "no rack %s", rack)
	}
	bd, err := rk.Board(board)
	if err != nil {
		return nil, newError(KindBoardNotFound, err, "no board %s in rack %s", board, rack)
	}
	info := &BoardInfo{Rack: rk.ID, Board: bd.ID, Devices: make([]string, 0, len(bd.Devices))}
	for _, d := range bd.Devices {
		info.Devices = append(info.Devices, d.UID)
	}
	return info, nil
}

// DeviceInfo describes one device. The owner is omitted if the plugin is no
// longer registered.
func (r *Router) DeviceInfo(ctx context.Context, rack, board, uid string) (*DeviceInfo, error) {
	dev, err := r.dir.Lookup(ctx, rack, board, uid)
	if err != nil {
		if errors.Is(err, directory.ErrDeviceNotFound) {
			return nil, newError(KindDeviceNotFound, err, "no device %s at %s/%s", uid, rack, board)
		}
		return nil, newError(failureKind(err, KindFailedInfoCommand), err, "resolving device %s/%s/%s", rack, board, uid)
	}
	info := &DeviceInfo{Device: dev}
	if p, err := r.plugins.GetByName(dev.Plugin); err == nil {
		owner := p.Info()
		info.Owner = &owner
	}
	return info, nil
}

// Plugins lists registered plugins with their metadata. Metadata is fetched
// on first use; a plugin whose metadata cannot be fetched is listed without it.
func (r *Router) Plugins(ctx context.Context) ([]plugin.Info, error) {
	if err := r.plugins.EnsureDiscovered(ctx); err != nil {
		return nil, newError(KindFailedPluginCommand, err, "discovering plugins")
	}
	list := r.plugins.List()
	out := make([]plugin.Info, 0, len(list))
	for _, p := range list {
		if _, err := p.Metadata(ctx); err != nil {
			r.logger.Warn("fetching plugin metadata failed", "plugin_id", p.ID, "error", err)
		}
		out = append(out, p.Info())
	}
	return out, nil
}

// PluginHealth is one plugin's health as seen by the gateway.
type PluginHealth struct {
	ID     string               `json:"id"`
	Name   string               `json:"name"`
	Status string               `json:"status"`
	Checks []plugin.HealthCheck `json:"checks,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// HealthSummary aggregates the health of every plugin.
type HealthSummary struct {
	Status    string         `json:"status"`
	Updated   time.Time      `json:"updated"`
	Healthy   []string       `json:"healthy"`
	Unhealthy []string       `json:"unhealthy"`
	Active    int            `json:"active"`
	Inactive  int            `json:"inactive"`
	Plugins   []PluginHealth `json:"plugins"`
}

// PluginHealth polls every plugin in parallel. A plugin that cannot be
// reached is reported as failing rather than failing the call.
//
// The summary is ok when every plugin is ok, failing when none is, and
// partially_degraded otherwise. With no plugins it is ok.
func (r *Router) PluginHealth(ctx context.Context) (*HealthSummary, error) {
	if err := r.plugins.EnsureDiscovered(ctx); err != nil {
		return nil, newError(KindFailedPluginCommand, err, "discovering plugins")
	}
	list := r.plugins.List()
	results := make([]PluginHealth, len(list))

	var g errgroup.Group
	for i, p := range list {
		g.Go(func() error {
			ph := PluginHealth{ID: p.ID, Name: p.Name}
			h, err := p.Client().Health(ctx)
			if err != nil {
				ph.Status = plugin.HealthFailing
				ph.Error = err.Error()
			} else {
				ph.Status = h.Status
				ph.Checks = h.Checks
			}
			results[i] = ph
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // per-plugin failures are folded into the summary

	summary := &HealthSummary{
		Updated:   time.Now().UTC(),
		Healthy:   []string{},
		Unhealthy: []string{},
		Plugins:   results,
	}
	for _, ph := range results {
		if ph.Status == plugin.HealthOK {
			summary.Healthy = append(summary.Healthy, ph.ID)
		} else {
			summary.Unhealthy = append(summary.Unhealthy, ph.ID)
		}
	}
	summary.Active = len(summary.Healthy)
	summary.Inactive = len(summary.Unhealthy)

	switch {
	case summary.Inactive == 0:
		summary.Status = HealthOK
	case summary.Active == 0:
		summary.Status = HealthFailing
	default:
		summary.Status = HealthPartiallyDegraded
	}
	return summary, nil
}

// RegisterPlugin registers a plugin address outside of discovery.
func (r *Router) RegisterPlugin(ctx context.Context, addr plugin.Address) (*plugin.Info, error) {
	p, err := r.plugins.Register(ctx, addr)
	if err != nil {
		switch {
		case errors.Is(err, plugin.ErrAlreadyRegistered):
			return nil, newError(KindAlreadyRegistered, err, "address %s is already registered", addr)
		case errors.Is(err, plugin.ErrPluginState):
			return nil, newError(KindPluginStateError, err, "plugin at %s is not usable", addr)
		case errors.Is(err, plugin.ErrInvalidAddress):
			return nil, newError(KindInvalidArguments, err, "invalid plugin address")
		default:
			return nil, newError(KindFailedPluginCommand, err, "registering plugin at %s", addr)
		}
	}
	r.scan.Invalidate()
	info := p.Info()
	return &info, nil
}
