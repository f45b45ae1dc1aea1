package graph

import (
	"sync"

	"github.com/google/uuid"
	"github.com/maypok86/otter"

	"callmap/internal/lsp"
)

type direction int

const (
	directionIncoming direction = iota
	directionOutgoing
)

func (d direction) String() string {
	if d == directionIncoming {
		return "incoming"
	}
	return "outgoing"
}

// anchorKey identifies an expansion: direction plus endpoint identity.
type anchorKey struct {
	dir       direction
	path      string
	line      int
	character int
}

// edgeKey identifies a relation for deduplication.
type edgeKey struct {
	fromFile, fromLine, fromChar int
	toFile, toLine, toChar       int
	kind                         RelationKind
}

// buildContext carries every piece of mutable traversal state for one graph
// build. Nothing here is process-wide, so concurrent builds never interfere.
type buildContext struct {
	buildID string

	mu          sync.Mutex
	relations   []Relation
	relationCap int
	capReached  bool
	seenEdges   map[edgeKey]struct{}
	visited     map[anchorKey]struct{}

	prepared otter.Cache[string, []lsp.CallHierarchyItem]
	incoming otter.Cache[string, []lsp.CallHierarchyIncomingCall]
	outgoing otter.Cache[string, []lsp.CallHierarchyOutgoingCall]
}

func newBuildContext(relationCap, cacheSize int) (*buildContext, error) {
	prepared, err := otter.MustBuilder[string, []lsp.CallHierarchyItem](cacheSize).Build()
	if err != nil {
		return nil, err
	}
	incoming, err := otter.MustBuilder[string, []lsp.CallHierarchyIncomingCall](cacheSize).Build()
	if err != nil {
		return nil, err
	}
	outgoing, err := otter.MustBuilder[string, []lsp.CallHierarchyOutgoingCall](cacheSize).Build()
	if err != nil {
		return nil, err
	}

	return &buildContext{
		buildID:     uuid.NewString(),
		relationCap: relationCap,
		seenEdges:   make(map[edgeKey]struct{}),
		visited:     make(map[anchorKey]struct{}),
		prepared:    prepared,
		incoming:    incoming,
		outgoing:    outgoing,
	}, nil
}

func (bc *buildContext) close() {
	bc.prepared.Close()
	bc.incoming.Close()
	bc.outgoing.Close()
}

// markVisited records an expansion and reports whether it was new. The
// visited set is what guarantees termination on cyclic call graphs.
func (bc *buildContext) markVisited(key anchorKey) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if _, ok := bc.visited[key]; ok {
		return false
	}
	bc.visited[key] = struct{}{}
	return true
}

// addRelation appends a relation unless it is a duplicate or the global cap
// has been reached. The cap check and the append are one critical section so
// the cap is enforced atomically under concurrent discovery.
func (bc *buildContext) addRelation(rel Relation) bool {
	key := edgeKey{
		fromFile: rel.From.FileID, fromLine: rel.From.Line, fromChar: rel.From.Character,
		toFile: rel.To.FileID, toLine: rel.To.Line, toChar: rel.To.Character,
		kind: rel.Kind,
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.capReached {
		return false
	}
	if _, ok := bc.seenEdges[key]; ok {
		return false
	}
	if len(bc.relations) >= bc.relationCap {
		bc.capReached = true
		return false
	}

	bc.seenEdges[key] = struct{}{}
	bc.relations = append(bc.relations, rel)
	return true
}

func (bc *buildContext) capacityReached() bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.capReached
}

func (bc *buildContext) snapshot() []Relation {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	out := make([]Relation, len(bc.relations))
	copy(out, bc.relations)
	return out
}
