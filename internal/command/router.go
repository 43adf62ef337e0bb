package command

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/directory"
	"github.com/nerrad567/gray-logic-gateway/internal/plugin"
	"github.com/nerrad567/gray-logic-gateway/internal/transaction"
)

// EventTransactionIssued is published for every transaction a write returns.
const EventTransactionIssued = "transaction.issued"

// Logger defines the logging interface used by the Router.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the part of the plugin registry the router needs.
type Registry interface {
	GetByName(name string) (*plugin.Plugin, error)
	List() []*plugin.Plugin
	EnsureDiscovered(ctx context.Context) error
	Register(ctx context.Context, addr plugin.Address) (*plugin.Plugin, error)
	Reset()
}

// ReadingRecorder receives every reading the router returns.
// Implementations must not block.
type ReadingRecorder interface {
	RecordReading(device *plugin.Device, reading Reading)
}

// WriteRecord describes one write accepted by a plugin.
type WriteRecord struct {
	Rack         string
	Board        string
	Device       string
	Plugin       string
	Action       string
	Raw          string
	Transactions []string
}

// WriteAuditor persists accepted writes.
type WriteAuditor interface {
	RecordWrite(ctx context.Context, rec WriteRecord) error
}

// EventPublisher receives router events.
type EventPublisher interface {
	PublishEvent(eventType string, payload any)
}

// Router dispatches commands to the plugin owning the target device.
//
// All public methods are thread-safe.
type Router struct {
	plugins Registry
	dir     *directory.Directory
	scan    *directory.ScanCache
	txns    *transaction.Cache

	logger   Logger
	recorder ReadingRecorder
	auditor  WriteAuditor
	events   EventPublisher
}

// NewRouter creates a router over its collaborators.
func NewRouter(plugins Registry, dir *directory.Directory, scan *directory.ScanCache, txns *transaction.Cache) *Router {
	return &Router{
		plugins: plugins,
		dir:     dir,
		scan:    scan,
		txns:    txns,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	r.logger = logger
}

// SetReadingRecorder sets the optional reading telemetry sink.
func (r *Router) SetReadingRecorder(rec ReadingRecorder) {
	r.recorder = rec
}

// SetWriteAuditor sets the optional write audit trail.
func (r *Router) SetWriteAuditor(a WriteAuditor) {
	r.auditor = a
}

// SetEventPublisher sets the receiver for transaction events.
func (r *Router) SetEventPublisher(events EventPublisher) {
	r.events = events
}

// Reading is one reading mapped onto the device's declared output.
type Reading struct {
	Type      string      `json:"type"`
	Value     any         `json:"value"`
	Unit      plugin.Unit `json:"unit"`
	Timestamp time.Time   `json:"timestamp"`
}

// ReadResult is the result of a device read.
type ReadResult struct {
	Rack   string    `json:"rack"`
	Board  string    `json:"board"`
	Device string    `json:"device"`
	Kind   string    `json:"kind"`
	Plugin string    `json:"plugin"`
	Data   []Reading `json:"data"`
}

// failureKind reports directory rebuild failures as FailedScanCommand
// whichever operation hit them.
func failureKind(err error, fallback Kind) Kind {
	if errors.Is(err, directory.ErrRebuild) {
		return KindFailedScanCommand
	}
	return fallback
}

// resolve finds a device and its live owning plugin.
func (r *Router) resolve(ctx context.Context, failKind Kind, rack, board, uid string) (*plugin.Device, *plugin.Plugin, error) {
	dev, err := r.dir.Lookup(ctx, rack, board, uid)
	if err != nil {
		if errors.Is(err, directory.ErrDeviceNotFound) {
			return nil, nil, newError(KindDeviceNotFound, err, "no device %s at %s/%s", uid, rack, board)
		}
		return nil, nil, newError(failureKind(err, failKind), err, "resolving device %s/%s/%s", rack, board, uid)
	}
	p, err := r.plugins.GetByName(dev.Plugin)
	if err != nil {
		return nil, nil, newError(KindPluginNotFound, err, "plugin %q owning device %s is not registered", dev.Plugin, uid)
	}
	return dev, p, nil
}

// Read returns the current readings of a device.
//
// Readings whose type matches no declared output are dropped with a
// warning. Numeric values are rounded to the output's precision.
func (r *Router) Read(ctx context.Context, rack, board, uid string) (*ReadResult, error) {
	dev, p, err := r.resolve(ctx, KindFailedReadCommand, rack, board, uid)
	if err != nil {
		return nil, err
	}

	raw, err := p.Client().Read(ctx, dev.UID)
	if err != nil {
		return nil, newError(KindFailedReadCommand, err, "reading device %s from plugin %s", uid, p.ID)
	}

	result := &ReadResult{
		Rack:   rack,
		Board:  board,
		Device: uid,
		Kind:   dev.Kind,
		Plugin: p.Name,
		Data:   make([]Reading, 0, len(raw)),
	}
	for _, rd := range raw {
		out, ok := dev.Output(rd.Type)
		if !ok {
			r.logger.Warn("dropping reading with no matching output",
				"device", uid, "plugin", p.ID, "type", rd.Type)
			continue
		}
		reading := Reading{
			Type:      rd.Type,
			Value:     roundValue(out, rd.Value),
			Unit:      out.Unit,
			Timestamp: rd.Timestamp,
		}
		result.Data = append(result.Data, reading)
		if r.recorder != nil {
			r.recorder.RecordReading(dev, reading)
		}
	}
	return result, nil
}

func roundValue(out plugin.Output, v any) any {
	switch n := v.(type) {
	case float64:
		return out.Round(n)
	case float32:
		return out.Round(float64(n))
	default:
		return v
	}
}

// WriteRequest is the caller's write envelope. At least one field must be set.
type WriteRequest struct {
	Action string `json:"action"`
	Raw    string `json:"raw"`
}

// TransactionRef is one transaction returned by a write.
type TransactionRef struct {
	ID      string           `json:"id"`
	Context plugin.WriteData `json:"context"`
}

// WriteResult is the result of a device write.
type WriteResult struct {
	Rack         string           `json:"rack"`
	Board        string           `json:"board"`
	Device       string           `json:"device"`
	Plugin       string           `json:"plugin"`
	Transactions []TransactionRef `json:"transactions"`
}

// Write issues an asynchronous write and caches every returned transaction
// against the owning plugin.
func (r *Router) Write(ctx context.Context, rack, board, uid string, req WriteRequest) (*WriteResult, error) {
	if req.Action == "" && req.Raw == "" {
		return nil, newError(KindInvalidArguments, nil, "write requires at least one of action or raw")
	}

	dev, p, err := r.resolve(ctx, KindFailedWriteCommand, rack, board, uid)
	if err != nil {
		return nil, err
	}

	data := plugin.WriteData{Action: req.Action}
	if req.Raw != "" {
		data.Raw = [][]byte{[]byte(req.Raw)}
	}

	txns, err := p.Client().Write(ctx, dev.UID, []plugin.WriteData{data})
	if err != nil {
		return nil, newError(KindFailedWriteCommand, err, "writing device %s on plugin %s", uid, p.ID)
	}

	ref := transaction.DeviceRef{Rack: rack, Board: board, Device: uid}
	result := &WriteResult{
		Rack:         rack,
		Board:        board,
		Device:       uid,
		Plugin:       p.Name,
		Transactions: make([]TransactionRef, 0, len(txns)),
	}
	ids := make([]string, 0, len(txns))
	for _, t := range txns {
		if err := r.txns.Put(t.ID, p.Name, t.Context, ref); err != nil {
			r.logger.Warn("caching transaction failed", "transaction_id", t.ID, "plugin", p.ID, "error", err)
		}
		result.Transactions = append(result.Transactions, TransactionRef(t))
		ids = append(ids, t.ID)
		if r.events != nil {
			r.events.PublishEvent(EventTransactionIssued, map[string]any{
				"id":     t.ID,
				"plugin": p.Name,
				"device": ref,
			})
		}
	}

	if r.auditor != nil {
		rec := WriteRecord{
			Rack:         rack,
			Board:        board,
			Device:       uid,
			Plugin:       p.Name,
			Action:       req.Action,
			Raw:          req.Raw,
			Transactions: ids,
		}
		if err := r.auditor.RecordWrite(ctx, rec); err != nil {
			r.logger.Warn("recording write audit failed", "device", uid, "error", err)
		}
	}
	return result, nil
}

// TransactionResult is the status of a cached transaction.
type TransactionResult struct {
	ID      string                `json:"id"`
	Plugin  string                `json:"plugin"`
	Device  transaction.DeviceRef `json:"device"`
	Context plugin.WriteData      `json:"context"`
	State   string                `json:"state"`
	Status  string                `json:"status"`
	Created string                `json:"created,omitempty"`
	Updated string                `json:"updated,omitempty"`
	Message string                `json:"message,omitempty"`
}

// CheckTransaction asks the plugin that issued id for its status.
func (r *Router) CheckTransaction(ctx context.Context, id string) (*TransactionResult, error) {
	entry, err := r.txns.Get(id)
	if err != nil {
		return nil, newError(KindTransactionNotFound, err, "transaction %s is unknown or expired", id)
	}
	p, err := r.plugins.GetByName(entry.Plugin)
	if err != nil {
		return nil, newError(KindPluginNotFound, err, "plugin %q owning transaction %s is not registered", entry.Plugin, id)
	}

	st, err := p.Client().CheckTransaction(ctx, id)
	if err != nil {
		return nil, newError(KindFailedTransactionCommand, err, "checking transaction %s on plugin %s", id, p.ID)
	}
	return &TransactionResult{
		ID:      id,
		Plugin:  entry.Plugin,
		Device:  entry.Device,
		Context: entry.Context,
		State:   st.State,
		Status:  st.Status,
		Created: st.Created,
		Updated: st.Updated,
		Message: st.Message,
	}, nil
}

// Transactions lists every live cached transaction, oldest first.
func (r *Router) Transactions() []*transaction.Entry {
	return r.txns.List()
}

// Scan returns the device tree, optionally narrowed to one rack or board.
//
// With force set, the directory and scan caches are invalidated and the
// plugin set is re-discovered before the tree is read.
func (r *Router) Scan(ctx context.Context, rack, board string, force bool) (*directory.Tree, error) {
	if board != "" && rack == "" {
		return nil, newError(KindInvalidArguments, nil, "board filter requires a rack")
	}
	if force {
		r.plugins.Reset()
		r.scan.Invalidate()
	}

	tree, err := r.scan.Get(ctx)
	if err != nil {
		return nil, newError(KindFailedScanCommand, err, "building device tree")
	}
	if rack == "" {
		return tree, nil
	}

	rk, err := tree.Rack(rack)
	if err != nil {
		return nil, newError(KindRackNotFound, err, "no rack %s", rack)
	}
	if board == "" {
		return &directory.Tree{Racks: []*directory.Rack{rk}}, nil
	}
	bd, err := rk.Board(board)
	if err != nil {
		return nil, newError(KindBoardNotFound, err, "no board %s in rack %s", board, rack)
	}
	return &directory.Tree{Racks: []*directory.Rack{{ID: rk.ID, Boards: []*directory.Board{bd}}}}, nil
}
