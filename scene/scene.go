// Package scene holds the target's live object graph: a tree of named nodes
// with typed properties, tile cells, and a per-frame input queue. It is the
// state the operation handlers mutate and query. The tree is owned by the
// host's tick goroutine.
package scene

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound  = errors.New("node not found")
	ErrRootNode  = errors.New("operation not allowed on root node")
	ErrBadParent = errors.New("new parent is the node or one of its descendants")
)

// Node is a member of the tree. Properties are keyed by the target's internal
// naming convention.
type Node struct {
	Name     string
	Type     string
	Parent   *Node
	Children []*Node

	Props map[string]any

	// Tiles maps cell coordinates to a tile id for tile-map nodes.
	Tiles map[[2]int]int
}

func newNode(name, typ string) *Node {
	return &Node{
		Name:  name,
		Type:  typ,
		Props: map[string]any{},
		Tiles: map[[2]int]int{},
	}
}

// Path returns the node's absolute path from the root, e.g. "/root/Player".
func (n *Node) Path() string {
	if n.Parent == nil {
		return "/" + n.Name
	}
	return n.Parent.Path() + "/" + n.Name
}

func (n *Node) child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (n *Node) removeChild(c *Node) {
	for i, existing := range n.Children {
		if existing == c {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}

// InputEvent is a queued synthetic input, drained once per frame.
type InputEvent struct {
	Type    string
	Pressed bool
	Keycode int
	Data    map[string]any
}

// Tree is the live scene document hosted by the target.
type Tree struct {
	root  *Node
	frame uint64
	input []InputEvent
}

func NewTree() *Tree {
	return &Tree{root: newNode("root", "Node")}
}

func (t *Tree) Root() *Node { return t.root }

// Frame returns the current frame counter.
func (t *Tree) Frame() uint64 { return t.frame }

// AdvanceFrame increments the frame counter and returns the new value. The
// host calls this once per tick.
func (t *Tree) AdvanceFrame() uint64 {
	t.frame++
	return t.frame
}

// Get resolves an absolute node path like "/root/Player/Sprite".
func (t *Tree) Get(path string) (*Node, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] != t.root.Name {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	n := t.root
	for _, part := range parts[1:] {
		n = n.child(part)
		if n == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
	}
	return n, nil
}

// Add creates a child node under the given parent path.
func (t *Tree) Add(parentPath, name, typ string) (*Node, error) {
	parent, err := t.Get(parentPath)
	if err != nil {
		return nil, err
	}
	if parent.child(name) != nil {
		return nil, fmt.Errorf("node %q already exists under %s", name, parentPath)
	}
	n := newNode(name, typ)
	n.Parent = parent
	parent.Children = append(parent.Children, n)
	return n, nil
}

// Remove deletes the node at path, along with its subtree.
func (t *Tree) Remove(path string) error {
	n, err := t.Get(path)
	if err != nil {
		return err
	}
	if n == t.root {
		return ErrRootNode
	}
	n.Parent.removeChild(n)
	n.Parent = nil
	return nil
}

// Reparent moves the node at path under the node at newParentPath, keeping its
// position at the end of the new parent's child list.
func (t *Tree) Reparent(path, newParentPath string) error {
	n, err := t.Get(path)
	if err != nil {
		return err
	}
	if n == t.root {
		return ErrRootNode
	}
	parent, err := t.Get(newParentPath)
	if err != nil {
		return err
	}
	for p := parent; p != nil; p = p.Parent {
		if p == n {
			return ErrBadParent
		}
	}
	n.Parent.removeChild(n)
	n.Parent = parent
	parent.Children = append(parent.Children, n)
	return nil
}

// SetProperty sets a named property on the node at path.
func (t *Tree) SetProperty(path, name string, value any) error {
	n, err := t.Get(path)
	if err != nil {
		return err
	}
	n.Props[name] = value
	return nil
}

// GetProperty reads a named property from the node at path. A property the
// node does not carry is an error, not a nil value.
func (t *Tree) GetProperty(path, name string) (any, error) {
	n, err := t.Get(path)
	if err != nil {
		return nil, err
	}
	v, ok := n.Props[name]
	if !ok {
		return nil, fmt.Errorf("node %s has no property %q", path, name)
	}
	return v, nil
}

// PlaceTile sets the tile id at a cell of the tile-map node at path.
func (t *Tree) PlaceTile(path string, x, y, tileID int) error {
	n, err := t.Get(path)
	if err != nil {
		return err
	}
	n.Tiles[[2]int{x, y}] = tileID
	return nil
}

// ClearTile removes the tile at a cell. Clearing an empty cell is not an
// error.
func (t *Tree) ClearTile(path string, x, y int) error {
	n, err := t.Get(path)
	if err != nil {
		return err
	}
	delete(n.Tiles, [2]int{x, y})
	return nil
}

// TileAt reads the tile id at a cell; ok is false for an empty cell.
func (t *Tree) TileAt(path string, x, y int) (int, bool, error) {
	n, err := t.Get(path)
	if err != nil {
		return 0, false, err
	}
	id, ok := n.Tiles[[2]int{x, y}]
	return id, ok, nil
}

// QueueInput appends a synthetic input event for the next frame.
func (t *Tree) QueueInput(ev InputEvent) {
	t.input = append(t.input, ev)
}

// DrainInput returns and clears the queued input events. The host calls this
// once per tick.
func (t *Tree) DrainInput() []InputEvent {
	evs := t.input
	t.input = nil
	return evs
}
