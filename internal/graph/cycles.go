package graph

import (
	stderrors "errors"
	"sort"

	dgraph "github.com/dominikbraun/graph"

	"callmap/internal/lsp"
)

// CycleMember is one function participating in a recursive group.
type CycleMember struct {
	File     string       `json:"file" yaml:"file"`
	Name     string       `json:"name" yaml:"name"`
	Position lsp.Position `json:"position" yaml:"position"`
}

// Cycle is one recursive group: either mutual recursion (two or more
// members) or direct self-recursion (one member calling itself).
type Cycle struct {
	Members []CycleMember `json:"members" yaml:"members"`
}

// FindCycles reports the strongly connected components of the call graph
// with more than one member, plus direct self-recursion.
func FindCycles(g *Graph) ([]Cycle, error) {
	dg := dgraph.New(dgraph.StringHash, dgraph.Directed())

	selfLoops := make(map[string]bool)
	for _, rel := range g.Relations {
		if rel.Kind != RelationCall {
			continue
		}
		from := rel.From.CellID()
		to := rel.To.CellID()

		if err := dg.AddVertex(from); err != nil && !stderrors.Is(err, dgraph.ErrVertexAlreadyExists) {
			return nil, err
		}
		if err := dg.AddVertex(to); err != nil && !stderrors.Is(err, dgraph.ErrVertexAlreadyExists) {
			return nil, err
		}
		if err := dg.AddEdge(from, to); err != nil && !stderrors.Is(err, dgraph.ErrEdgeAlreadyExists) {
			return nil, err
		}
		if from == to {
			selfLoops[from] = true
		}
	}

	sccs, err := dgraph.StronglyConnectedComponents(dg)
	if err != nil {
		return nil, err
	}

	members := memberLookup(g)

	var cycles []Cycle
	for _, component := range sccs {
		if len(component) == 1 && !selfLoops[component[0]] {
			continue
		}

		cycle := Cycle{Members: make([]CycleMember, 0, len(component))}
		for _, cellID := range component {
			if m, ok := members[cellID]; ok {
				cycle.Members = append(cycle.Members, m)
			}
		}
		sort.Slice(cycle.Members, func(i, j int) bool {
			a, z := cycle.Members[i], cycle.Members[j]
			if a.File != z.File {
				return a.File < z.File
			}
			return a.Position.Before(z.Position)
		})
		cycles = append(cycles, cycle)
	}

	sort.Slice(cycles, func(i, j int) bool {
		if len(cycles[i].Members) == 0 || len(cycles[j].Members) == 0 {
			return len(cycles[i].Members) > len(cycles[j].Members)
		}
		a, z := cycles[i].Members[0], cycles[j].Members[0]
		if a.File != z.File {
			return a.File < z.File
		}
		return a.Position.Before(z.Position)
	})

	return cycles, nil
}

// memberLookup maps cell ids to named members by walking every file's
// symbol forest once.
func memberLookup(g *Graph) map[string]CycleMember {
	members := make(map[string]CycleMember)
	for _, file := range g.Files {
		stack := make([]*Symbol, len(file.Symbols))
		copy(stack, file.Symbols)
		for len(stack) > 0 {
			sym := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			gp := NewGlobalPosition(file.ID, sym.Selection.Start)
			members[gp.CellID()] = CycleMember{
				File:     file.Path,
				Name:     sym.Name,
				Position: sym.Selection.Start,
			}
			stack = append(stack, sym.Children...)
		}
	}
	return members
}
