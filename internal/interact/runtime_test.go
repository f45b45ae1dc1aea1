package interact

import "testing"

func node(id string, bounds Rect) Shape {
	return Shape{ID: id, Kind: ShapeNode, Node: id, Bounds: bounds}
}

func cell(id, nodeID string, children ...string) Shape {
	return Shape{ID: id, Kind: ShapeCell, Node: nodeID, Children: children}
}

func edge(id, from, to string) Shape {
	return Shape{ID: id, Kind: ShapeEdge, From: from, To: to}
}

// twoNodeShapes is a minimal diagram: f in node 1 calls g in node 2, and a
// bystander node 3 with no edges.
func twoNodeShapes() []Shape {
	return []Shape{
		node("1", Rect{X: 0, Y: 0, Width: 100, Height: 50}),
		node("2", Rect{X: 200, Y: 0, Width: 100, Height: 50}),
		node("3", Rect{X: 400, Y: 0, Width: 100, Height: 50}),
		cell("1:0_4", "1"),
		cell("2:2_8", "2"),
		edge("1:0_4-2:2_8", "1:0_4", "2:2_8"),
	}
}

func TestSelectNodeMarksEdgesByDirection(t *testing.T) {
	r := New(twoNodeShapes(), "")

	r.Select("1")
	if got := r.EdgeState("1:0_4-2:2_8"); got != EdgeOutgoing {
		t.Errorf("edge state after selecting caller node = %v, want outgoing", got)
	}
	if r.NodeState("1") != NodeHighlighted {
		t.Error("selected node not highlighted")
	}
	if r.NodeState("2") != NodeFaded || r.NodeState("3") != NodeFaded {
		t.Error("other nodes must fade")
	}

	r.Select("2")
	if got := r.EdgeState("1:0_4-2:2_8"); got != EdgeIncoming {
		t.Errorf("edge state after selecting callee node = %v, want incoming", got)
	}
}

func TestSelectCellHighlightsTouchingEdges(t *testing.T) {
	shapes := append(twoNodeShapes(),
		cell("2:5_0", "2"),
		cell("3:0_0", "3"),
		edge("2:5_0-3:0_0", "2:5_0", "3:0_0"),
	)
	r := New(shapes, "")

	r.Select("2:2_8")
	if got := r.EdgeState("1:0_4-2:2_8"); got != EdgeIncoming {
		t.Errorf("incoming edge state = %v", got)
	}
	if got := r.EdgeState("2:5_0-3:0_0"); got != EdgeDefault {
		t.Errorf("unrelated edge state = %v, want default", got)
	}
	if r.NodeState("2") != NodeDefault || r.NodeState("1") != NodeDefault {
		t.Error("nodes touched by the selection must not fade")
	}
	if r.NodeState("3") != NodeFaded {
		t.Error("unrelated node must fade")
	}
}

func TestSelectContainerCellIncludesNestedCells(t *testing.T) {
	shapes := []Shape{
		node("1", Rect{}),
		node("2", Rect{}),
		cell("1:0_6", "1", "1:2_8"),
		cell("1:2_8", "1"),
		cell("2:0_4", "2"),
		edge("e1", "2:0_4", "1:2_8"),
	}
	r := New(shapes, "")

	r.Select("1:0_6")
	if got := r.EdgeState("e1"); got != EdgeIncoming {
		t.Errorf("edge into nested cell = %v, want incoming", got)
	}
}

// focusShapes is a call chain three hops deep on each side of a selected
// cell s in focus mode:
//
//	c0 -> c1 -> c2 -> s -> x1 -> x2 -> x3
//
// plus the focus cell f with an edge s -> f and an onward edge f -> z.
func focusShapes() []Shape {
	return []Shape{
		node("1", Rect{}), node("2", Rect{}), node("3", Rect{}),
		cell("c0", "1"), cell("c1", "1"), cell("c2", "1"),
		cell("s", "2"), cell("f", "2"),
		cell("x1", "3"), cell("x2", "3"), cell("x3", "3"), cell("z", "3"),
		edge("c0-c1", "c0", "c1"),
		edge("c1-c2", "c1", "c2"),
		edge("c2-s", "c2", "s"),
		edge("s-x1", "s", "x1"),
		edge("x1-x2", "x1", "x2"),
		edge("x2-x3", "x2", "x3"),
		edge("s-f", "s", "f"),
		edge("f-z", "f", "z"),
	}
}

func TestFocusModePropagatesTransitively(t *testing.T) {
	r := New(focusShapes(), "f")

	r.Select("s")
	for id, want := range map[string]EdgeState{
		"c2-s":  EdgeIncoming,
		"c1-c2": EdgeIncoming,
		"c0-c1": EdgeIncoming,
		"s-x1":  EdgeOutgoing,
		"x1-x2": EdgeOutgoing,
		"x2-x3": EdgeOutgoing,
		"s-f":   EdgeOutgoing,
	} {
		if got := r.EdgeState(id); got != want {
			t.Errorf("edge %s state = %v, want %v", id, got, want)
		}
	}
}

func TestFocusModeStopsAtFocusCell(t *testing.T) {
	r := New(focusShapes(), "f")

	r.Select("s")
	// The focus cell is pre-seeded into the visited set, so propagation must
	// not continue through it.
	if got := r.EdgeState("f-z"); got != EdgeDefault {
		t.Errorf("edge beyond the focus cell = %v, want default", got)
	}
}

func TestFocusModeCycleTerminates(t *testing.T) {
	shapes := []Shape{
		node("1", Rect{}),
		cell("s", "1"), cell("a", "1"), cell("b", "1"), cell("f", "1"),
		edge("s-a", "s", "a"),
		edge("a-b", "a", "b"),
		edge("b-s", "b", "s"),
	}
	r := New(shapes, "f")

	r.Select("s")
	for _, id := range []string{"s-a", "a-b", "b-s"} {
		if got := r.EdgeState(id); got != EdgeOutgoing {
			t.Errorf("cycle edge %s state = %v, want outgoing", id, got)
		}
	}
}

func TestSelectEdgeIsolates(t *testing.T) {
	shapes := append(twoNodeShapes(),
		cell("2:5_0", "2"),
		cell("3:0_0", "3"),
		edge("2:5_0-3:0_0", "2:5_0", "3:0_0"),
	)
	r := New(shapes, "")

	r.Select("1:0_4-2:2_8")
	if got := r.EdgeState("1:0_4-2:2_8"); got != EdgeDefault {
		t.Errorf("selected edge state = %v, want default", got)
	}
	if got := r.EdgeState("2:5_0-3:0_0"); got != EdgeFaded {
		t.Errorf("other edge state = %v, want faded", got)
	}
}

func TestSelectClusterUsesStrictContainment(t *testing.T) {
	shapes := []Shape{
		{ID: "cl", Kind: ShapeCluster, Bounds: Rect{X: 0, Y: 0, Width: 300, Height: 100}},
		node("1", Rect{X: 10, Y: 10, Width: 100, Height: 50}),
		node("2", Rect{X: 150, Y: 10, Width: 100, Height: 50}),
		// Overlaps the cluster border, so it is outside.
		node("3", Rect{X: 250, Y: 10, Width: 100, Height: 50}),
		cell("1:0_0", "1"), cell("2:0_0", "2"), cell("3:0_0", "3"),
		edge("in", "3:0_0", "1:0_0"),
		edge("out", "2:0_0", "3:0_0"),
	}
	r := New(shapes, "")

	r.Select("cl")
	if r.NodeState("1") != NodeHighlighted || r.NodeState("2") != NodeHighlighted {
		t.Error("contained nodes must highlight")
	}
	if r.NodeState("3") != NodeFaded {
		t.Error("partially overlapping node must fade")
	}
	if got := r.EdgeState("in"); got != EdgeIncoming {
		t.Errorf("edge into the cluster = %v, want incoming", got)
	}
	if got := r.EdgeState("out"); got != EdgeOutgoing {
		t.Errorf("edge out of the cluster = %v, want outgoing", got)
	}
}

func TestSelectReplacesPriorState(t *testing.T) {
	r := New(twoNodeShapes(), "")

	r.Select("1")
	r.Select("2:2_8")
	if r.NodeState("1") != NodeDefault {
		t.Error("state from the previous selection leaked")
	}
	if r.SelectedID() != "2:2_8" {
		t.Errorf("selected id = %q", r.SelectedID())
	}

	r.Select("no-such-shape")
	if r.SelectedID() != "" {
		t.Error("unknown id must clear the selection")
	}
	if r.EdgeState("1:0_4-2:2_8") != EdgeDefault {
		t.Error("unknown id must reset edge state")
	}
}
