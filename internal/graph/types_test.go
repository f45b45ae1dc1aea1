package graph

import (
	"testing"

	"callmap/internal/lsp"
)

func TestCellAndEdgeIDs(t *testing.T) {
	from := NewGlobalPosition(3, lsp.Position{Line: 12, Character: 4})
	to := NewGlobalPosition(7, lsp.Position{Line: 0, Character: 9})

	if got := from.CellID(); got != "3:12_4" {
		t.Errorf("CellID = %q, want 3:12_4", got)
	}

	rel := Relation{From: from, To: to, Kind: RelationCall}
	if got := rel.EdgeID(); got != "3:12_4-7:0_9" {
		t.Errorf("EdgeID = %q, want 3:12_4-7:0_9", got)
	}
}

func TestRelationKindJSON(t *testing.T) {
	tests := []struct {
		kind RelationKind
		want string
	}{
		{RelationCall, `"call"`},
		{RelationImpl, `"impl"`},
		{RelationInherit, `"inherit"`},
	}
	for _, tt := range tests {
		data, err := tt.kind.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal %v: %v", tt.kind, err)
		}
		if string(data) != tt.want {
			t.Errorf("kind %v = %s, want %s", tt.kind, data, tt.want)
		}
	}
}

func TestGraphMerge(t *testing.T) {
	foo := NewGlobalPosition(1, lsp.Position{Line: 0, Character: 4})
	bar := NewGlobalPosition(2, lsp.Position{Line: 0, Character: 4})
	baz := NewGlobalPosition(2, lsp.Position{Line: 5, Character: 4})

	g := &Graph{Relations: []Relation{
		{From: foo, To: bar, Kind: RelationCall, Provenance: ProvenanceHierarchy},
	}}

	added := g.Merge([]Relation{
		// Already present as a hierarchy edge; the static copy must not win.
		{From: foo, To: bar, Kind: RelationCall, Provenance: ProvenanceStatic},
		{From: foo, To: baz, Kind: RelationCall, Provenance: ProvenanceStatic},
	})

	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if len(g.Relations) != 2 {
		t.Fatalf("relations = %+v, want 2", g.Relations)
	}
	if g.Relations[0].Provenance != ProvenanceHierarchy {
		t.Error("existing hierarchy edge was replaced")
	}
	if g.Relations[1].To != baz {
		t.Errorf("merged edge = %+v, want foo->baz", g.Relations[1])
	}
}
