// Package interact drives selection highlighting over a rendered diagram's
// shapes. The runtime is single-threaded and event-driven: each selection
// runs to completion, replacing all prior highlight state.
package interact

import "strings"

// ShapeKind tags what a rendered shape represents.
type ShapeKind int

// Shape kinds.
const (
	ShapeNode ShapeKind = iota
	ShapeCell
	ShapeEdge
	ShapeCluster
)

// Rect is an axis-aligned bounding rectangle in rendered coordinates.
type Rect struct {
	X, Y, Width, Height float64
}

// contains reports strict containment of other within r.
func (r Rect) contains(other Rect) bool {
	return other.X >= r.X && other.Y >= r.Y &&
		other.X+other.Width <= r.X+r.Width &&
		other.Y+other.Height <= r.Y+r.Height
}

// Shape is one rendered element. Nodes and clusters carry bounds; cells
// carry their owning node and nested children; edges expose their endpoint
// cell ids.
type Shape struct {
	ID   string
	Kind ShapeKind
	// Node is the owning node id for cells.
	Node string
	// Children lists directly nested cell ids for container cells.
	Children []string
	// From and To are the endpoint cell ids for edges.
	From, To string
	Bounds   Rect
}

// EdgeState is an edge's current highlight.
type EdgeState int

// Edge highlight states.
const (
	EdgeDefault EdgeState = iota
	EdgeIncoming
	EdgeOutgoing
	EdgeFaded
)

// NodeState is a node's current highlight.
type NodeState int

// Node highlight states.
const (
	NodeDefault NodeState = iota
	NodeHighlighted
	NodeFaded
)

// Runtime holds the adjacency maps (built once from the rendered edges) and
// the current selection state.
type Runtime struct {
	shapes map[string]*Shape
	nodes  []*Shape
	edges  []*Shape

	incomingByCellID map[string][]*Shape
	outgoingByCellID map[string][]*Shape

	focusID    string
	selectedID string

	edgeStates map[string]EdgeState
	nodeStates map[string]NodeState
}

// New builds a runtime over the rendered shapes. focusID names the pinned
// anchor cell when the diagram was generated in focus mode; empty otherwise.
func New(shapes []Shape, focusID string) *Runtime {
	r := &Runtime{
		shapes:           make(map[string]*Shape, len(shapes)),
		incomingByCellID: make(map[string][]*Shape),
		outgoingByCellID: make(map[string][]*Shape),
		focusID:          focusID,
		edgeStates:       make(map[string]EdgeState),
		nodeStates:       make(map[string]NodeState),
	}

	for i := range shapes {
		s := &shapes[i]
		r.shapes[s.ID] = s
		switch s.Kind {
		case ShapeNode:
			r.nodes = append(r.nodes, s)
		case ShapeEdge:
			r.edges = append(r.edges, s)
			r.outgoingByCellID[s.From] = append(r.outgoingByCellID[s.From], s)
			r.incomingByCellID[s.To] = append(r.incomingByCellID[s.To], s)
		}
	}

	return r
}

// SelectedID returns the currently selected shape id, or empty.
func (r *Runtime) SelectedID() string {
	return r.selectedID
}

// EdgeState returns an edge's current highlight state.
func (r *Runtime) EdgeState(id string) EdgeState {
	return r.edgeStates[id]
}

// NodeState returns a node's current highlight state.
func (r *Runtime) NodeState(id string) NodeState {
	return r.nodeStates[id]
}

// ClearSelection resets all highlight state.
func (r *Runtime) ClearSelection() {
	r.selectedID = ""
	r.edgeStates = make(map[string]EdgeState)
	r.nodeStates = make(map[string]NodeState)
}

// Select applies selection semantics for the shape with the given id. All
// prior highlight state is cleared first; selecting an unknown id just
// clears.
func (r *Runtime) Select(id string) {
	r.ClearSelection()

	shape, ok := r.shapes[id]
	if !ok {
		return
	}
	r.selectedID = id

	switch shape.Kind {
	case ShapeNode:
		r.selectNode(shape)
	case ShapeCell:
		if r.focusID != "" {
			r.selectCellFocused(shape)
		} else {
			r.selectCell(shape)
		}
	case ShapeEdge:
		r.selectEdge(shape)
	case ShapeCluster:
		r.selectCluster(shape)
	}
}

// selectNode highlights every edge with an endpoint cell in the node and
// fades every other node.
func (r *Runtime) selectNode(node *Shape) {
	for _, edge := range r.edges {
		if r.ownerNode(edge.To) == node.ID {
			r.edgeStates[edge.ID] = EdgeIncoming
		} else if r.ownerNode(edge.From) == node.ID {
			r.edgeStates[edge.ID] = EdgeOutgoing
		}
	}
	for _, other := range r.nodes {
		if other.ID != node.ID {
			r.nodeStates[other.ID] = NodeFaded
		}
	}
	r.nodeStates[node.ID] = NodeHighlighted
}

// selectCell highlights the edges touching the cell (and its nested cells)
// and fades nodes unrelated to them.
func (r *Runtime) selectCell(cell *Shape) {
	cellSet := r.collectNested(cell)

	related := map[string]bool{cell.Node: true}
	for _, edge := range r.edges {
		if cellSet[edge.To] {
			r.edgeStates[edge.ID] = EdgeIncoming
			related[r.ownerNode(edge.From)] = true
		} else if cellSet[edge.From] {
			r.edgeStates[edge.ID] = EdgeOutgoing
			related[r.ownerNode(edge.To)] = true
		}
	}

	r.fadeUnrelated(related)
}

// selectCellFocused runs two independent breadth-first propagations from
// the selected cell, one per direction, each with its own visited set
// seeded with the selected and focus cells. A chain revisiting an
// already-discovered cell through a different path is not traversed again;
// the visited sets are keyed by cell identity, not by path.
func (r *Runtime) selectCellFocused(cell *Shape) {
	related := map[string]bool{cell.Node: true}
	if focus, ok := r.shapes[r.focusID]; ok {
		related[focus.Node] = true
	}

	r.propagate(cell.ID, EdgeIncoming, related)
	r.propagate(cell.ID, EdgeOutgoing, related)

	r.fadeUnrelated(related)
}

func (r *Runtime) propagate(start string, mark EdgeState, related map[string]bool) {
	visited := map[string]bool{start: true}
	if r.focusID != "" {
		visited[r.focusID] = true
	}

	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		adjacency := r.incomingByCellID[current]
		if mark == EdgeOutgoing {
			adjacency = r.outgoingByCellID[current]
		}

		for _, edge := range adjacency {
			r.edgeStates[edge.ID] = mark

			next := edge.From
			if mark == EdgeOutgoing {
				next = edge.To
			}
			related[r.ownerNode(next)] = true

			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, next)
		}
	}
}

// selectEdge isolates the edge: every other edge fades.
func (r *Runtime) selectEdge(edge *Shape) {
	for _, other := range r.edges {
		if other.ID != edge.ID {
			r.edgeStates[other.ID] = EdgeFaded
		}
	}
}

// selectCluster keeps the nodes whose shapes are strictly contained by the
// cluster's bounds, fades the rest, and highlights edges by membership of
// the contained set.
func (r *Runtime) selectCluster(cluster *Shape) {
	contained := make(map[string]bool)
	for _, node := range r.nodes {
		if cluster.Bounds.contains(node.Bounds) {
			contained[node.ID] = true
			r.nodeStates[node.ID] = NodeHighlighted
		} else {
			r.nodeStates[node.ID] = NodeFaded
		}
	}

	for _, edge := range r.edges {
		if contained[r.ownerNode(edge.To)] {
			r.edgeStates[edge.ID] = EdgeIncoming
		} else if contained[r.ownerNode(edge.From)] {
			r.edgeStates[edge.ID] = EdgeOutgoing
		}
	}
}

// collectNested returns the cell id plus every nested descendant id.
func (r *Runtime) collectNested(cell *Shape) map[string]bool {
	set := make(map[string]bool)
	stack := []*Shape{cell}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		set[s.ID] = true
		for _, childID := range s.Children {
			if child, ok := r.shapes[childID]; ok {
				stack = append(stack, child)
			}
		}
	}
	return set
}

func (r *Runtime) fadeUnrelated(related map[string]bool) {
	for _, node := range r.nodes {
		if !related[node.ID] {
			r.nodeStates[node.ID] = NodeFaded
		}
	}
}

// ownerNode maps a cell id to its owning node id. Cells carry the owner
// directly; an endpoint with no shape falls back to the id's file prefix,
// matching the fileId:line_char cell id contract.
func (r *Runtime) ownerNode(cellID string) string {
	if cell, ok := r.shapes[cellID]; ok && cell.Node != "" {
		return cell.Node
	}
	if i := strings.IndexByte(cellID, ':'); i > 0 {
		return cellID[:i]
	}
	return cellID
}
