package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-gateway/internal/plugin"
)

// Board groups the devices sharing a rack and board label.
type Board struct {
	ID      string           `json:"id"`
	Devices []*plugin.Device `json:"devices"`
}

// Rack groups boards sharing a rack label.
type Rack struct {
	ID     string   `json:"id"`
	Boards []*Board `json:"boards"`
}

// Board returns the board with id.
func (r *Rack) Board(id string) (*Board, error) {
	for _, b := range r.Boards {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrBoardNotFound, r.ID, id)
}

// Tree is the rack → board → device view of a snapshot.
type Tree struct {
	Racks []*Rack `json:"racks"`
}

// Rack returns the rack with id.
func (t *Tree) Rack(id string) (*Rack, error) {
	for _, r := range t.Racks {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRackNotFound, id)
}

// Board returns one board of one rack.
func (t *Tree) Board(rack, board string) (*Board, error) {
	r, err := t.Rack(rack)
	if err != nil {
		return nil, err
	}
	return r.Board(board)
}

// BuildTree groups a snapshot by rack and board. Racks, boards and devices
// keep first-seen order. An empty snapshot gives a tree with no racks.
func BuildTree(snap *Snapshot) *Tree {
	type boardKey struct{ rack, board string }

	tree := &Tree{Racks: []*Rack{}}
	racks := make(map[string]*Rack)
	boards := make(map[boardKey]*Board)

	for _, dev := range snap.Devices() {
		loc := dev.Location
		rack, ok := racks[loc.Rack]
		if !ok {
			rack = &Rack{ID: loc.Rack}
			racks[loc.Rack] = rack
			tree.Racks = append(tree.Racks, rack)
		}
		key := boardKey{loc.Rack, loc.Board}
		board, ok := boards[key]
		if !ok {
			board = &Board{ID: loc.Board}
			boards[key] = board
			rack.Boards = append(rack.Boards, board)
		}
		board.Devices = append(board.Devices, dev)
	}
	return tree
}

// ScanCache serves the tree of the current directory snapshot. The tree is
// re-derived only when the directory publishes a new snapshot.
type ScanCache struct {
	dir *Directory

	mu     sync.Mutex
	source *Snapshot
	tree   *Tree
}

// NewScanCache creates a scan cache over dir.
func NewScanCache(dir *Directory) *ScanCache {
	return &ScanCache{dir: dir}
}

// Get returns the tree for the current directory snapshot.
// The returned tree is shared and must not be modified.
func (c *ScanCache) Get(ctx context.Context) (*Tree, error) {
	snap, err := c.dir.Get(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tree == nil || c.source != snap {
		c.tree = BuildTree(snap)
		c.source = snap
	}
	return c.tree, nil
}

// Invalidate drops the cached tree and invalidates the directory.
func (c *ScanCache) Invalidate() {
	c.mu.Lock()
	c.source = nil
	c.tree = nil
	c.mu.Unlock()
	c.dir.Invalidate()
}
