// Package graph builds the call-relation graph: it indexes per-file symbol
// forests, expands callable anchors through the provider's call hierarchy,
// and finalizes a deduplicated, validated set of relations.
package graph

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"callmap/internal/lsp"
)

// RelationKind classifies an edge.
type RelationKind int

// Relation kinds.
const (
	RelationCall RelationKind = iota
	RelationImpl
	RelationInherit
)

// String returns the lowercase kind name used in exports and edge classes.
func (k RelationKind) String() string {
	switch k {
	case RelationCall:
		return "call"
	case RelationImpl:
		return "impl"
	case RelationInherit:
		return "inherit"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the kind by name.
func (k RelationKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// MarshalYAML encodes the kind by name.
func (k RelationKind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

func kindFromName(name string) (RelationKind, error) {
	switch name {
	case "call":
		return RelationCall, nil
	case "impl":
		return RelationImpl, nil
	case "inherit":
		return RelationInherit, nil
	default:
		return 0, fmt.Errorf("unknown relation kind %q", name)
	}
}

// UnmarshalJSON decodes a kind encoded by name.
func (k *RelationKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	kind, err := kindFromName(name)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// UnmarshalYAML decodes a kind encoded by name.
func (k *RelationKind) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	kind, err := kindFromName(name)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// Provenance values distinguish which resolution path produced a relation.
const (
	// ProvenanceHierarchy marks relations sourced from the provider's
	// call-hierarchy protocol.
	ProvenanceHierarchy = "call-hierarchy"
	// ProvenanceStatic marks relations derived by the static fallback
	// resolver from source text.
	ProvenanceStatic = "static-scan"
)

// Symbol is one node of a file's symbol forest. Range spans the whole
// declaration; Selection spans just the name, and Selection.Start is the
// declaration position that anchors ports, queries, and relation endpoints.
type Symbol struct {
	Name      string         `json:"name" yaml:"name"`
	Kind      lsp.SymbolKind `json:"kind" yaml:"kind"`
	Range     lsp.Range      `json:"range" yaml:"range"`
	Selection lsp.Range      `json:"selection" yaml:"selection"`
	Children  []*Symbol      `json:"children,omitempty" yaml:"children,omitempty"`
}

// File is one indexed source file. IDs are dense integers assigned once per
// build in indexing order, stable only within that build.
type File struct {
	ID      int       `json:"id" yaml:"id"`
	Path    string    `json:"path" yaml:"path"`
	Symbols []*Symbol `json:"symbols" yaml:"symbols"`
}

// GlobalPosition is an absolute graph-wide coordinate.
type GlobalPosition struct {
	FileID    int `json:"fileId" yaml:"fileId"`
	Line      int `json:"line" yaml:"line"`
	Character int `json:"character" yaml:"character"`
}

// NewGlobalPosition pairs a file id with a protocol position.
func NewGlobalPosition(fileID int, pos lsp.Position) GlobalPosition {
	return GlobalPosition{FileID: fileID, Line: pos.Line, Character: pos.Character}
}

// Position returns the protocol position component.
func (gp GlobalPosition) Position() lsp.Position {
	return lsp.Position{Line: gp.Line, Character: gp.Character}
}

// CellID renders the diagram cell identifier for this position:
// fileId + ":" + line + "_" + character.
func (gp GlobalPosition) CellID() string {
	return fmt.Sprintf("%d:%d_%d", gp.FileID, gp.Line, gp.Character)
}

// Relation is one directed edge between two symbol declaration positions.
type Relation struct {
	From       GlobalPosition `json:"from" yaml:"from"`
	To         GlobalPosition `json:"to" yaml:"to"`
	Kind       RelationKind   `json:"kind" yaml:"kind"`
	Provenance string         `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

// EdgeID renders the diagram edge identifier: fromCellId + "-" + toCellId.
func (r Relation) EdgeID() string {
	return r.From.CellID() + "-" + r.To.CellID()
}

// Graph is the finalized build result. Files and Relations are read-only for
// the rest of the pipeline.
type Graph struct {
	Files     []*File    `json:"files" yaml:"files"`
	Relations []Relation `json:"relations" yaml:"relations"`
	// Focus is set when the graph was generated in focus/single-function
	// mode; it names the pinned anchor cell.
	Focus *GlobalPosition `json:"focus,omitempty" yaml:"focus,omitempty"`
}

// Merge appends relations that are not already present. Identity ignores
// provenance, so a hierarchy-sourced edge is never shadowed by a static
// rediscovery of the same call.
func (g *Graph) Merge(relations []Relation) int {
	seen := make(map[string]struct{}, len(g.Relations))
	for _, rel := range g.Relations {
		seen[rel.EdgeID()+"|"+rel.Kind.String()] = struct{}{}
	}

	added := 0
	for _, rel := range relations {
		key := rel.EdgeID() + "|" + rel.Kind.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		g.Relations = append(g.Relations, rel)
		added++
	}
	return added
}
