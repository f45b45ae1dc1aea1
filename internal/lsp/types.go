// Package lsp defines the analysis-provider boundary: the protocol types the
// provider speaks and the gateway the graph builder queries through. The
// provider transport itself (process spawn, handshake, shutdown) lives
// outside this module; anything satisfying Provider plugs in.
package lsp

// Position is a zero-based line/character pair in protocol-native units.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Before reports whether p orders strictly before other.
func (p Position) Before(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Character < other.Character
}

// Range is a start/end Position pair.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether pos falls within the range, inclusive on both ends.
func (r Range) Contains(pos Position) bool {
	return !pos.Before(r.Start) && !r.End.Before(pos)
}

// SymbolKind is the protocol's fixed symbol kind enumeration.
type SymbolKind int

// Symbol kinds, protocol-numbered.
const (
	KindFile          SymbolKind = 1
	KindModule        SymbolKind = 2
	KindNamespace     SymbolKind = 3
	KindPackage       SymbolKind = 4
	KindClass         SymbolKind = 5
	KindMethod        SymbolKind = 6
	KindProperty      SymbolKind = 7
	KindField         SymbolKind = 8
	KindConstructor   SymbolKind = 9
	KindEnum          SymbolKind = 10
	KindInterface     SymbolKind = 11
	KindFunction      SymbolKind = 12
	KindVariable      SymbolKind = 13
	KindConstant      SymbolKind = 14
	KindString        SymbolKind = 15
	KindNumber        SymbolKind = 16
	KindBoolean       SymbolKind = 17
	KindArray         SymbolKind = 18
	KindObject        SymbolKind = 19
	KindKey           SymbolKind = 20
	KindNull          SymbolKind = 21
	KindEnumMember    SymbolKind = 22
	KindStruct        SymbolKind = 23
	KindEvent         SymbolKind = 24
	KindOperator      SymbolKind = 25
	KindTypeParameter SymbolKind = 26
)

// Callable reports whether symbols of this kind are eligible call-graph
// anchors.
func (k SymbolKind) Callable() bool {
	switch k {
	case KindFunction, KindMethod, KindConstructor:
		return true
	default:
		return false
	}
}

// Container reports whether symbols of this kind render as a nested
// sub-table holding their children.
func (k SymbolKind) Container() bool {
	switch k {
	case KindModule, KindNamespace, KindPackage, KindClass, KindEnum, KindInterface, KindStruct, KindObject:
		return true
	default:
		return false
	}
}

var kindNames = map[SymbolKind]string{
	KindFile:          "File",
	KindModule:        "Module",
	KindNamespace:     "Namespace",
	KindPackage:       "Package",
	KindClass:         "Class",
	KindMethod:        "Method",
	KindProperty:      "Property",
	KindField:         "Field",
	KindConstructor:   "Constructor",
	KindEnum:          "Enum",
	KindInterface:     "Interface",
	KindFunction:      "Function",
	KindVariable:      "Variable",
	KindConstant:      "Constant",
	KindString:        "String",
	KindNumber:        "Number",
	KindBoolean:       "Boolean",
	KindArray:         "Array",
	KindObject:        "Object",
	KindKey:           "Key",
	KindNull:          "Null",
	KindEnumMember:    "EnumMember",
	KindStruct:        "Struct",
	KindEvent:         "Event",
	KindOperator:      "Operator",
	KindTypeParameter: "TypeParameter",
}

// String returns the protocol name of the kind.
func (k SymbolKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Location is a file URI (or bare path) plus a range.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// DocumentSymbol is one node of a file's hierarchical symbol forest.
// Range covers the whole declaration; SelectionRange covers just the name.
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           SymbolKind       `json:"kind"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// SymbolInformation is the flat, non-nesting symbol form some providers
// return instead of DocumentSymbol.
type SymbolInformation struct {
	Name          string     `json:"name"`
	Kind          SymbolKind `json:"kind"`
	Location      Location   `json:"location"`
	ContainerName string     `json:"containerName,omitempty"`
}

// FromSymbolInformation converts the flat symbol form into DocumentSymbols
// with no nesting, using the reported range for both range and selection.
func FromSymbolInformation(flat []SymbolInformation) []DocumentSymbol {
	symbols := make([]DocumentSymbol, 0, len(flat))
	for _, si := range flat {
		symbols = append(symbols, DocumentSymbol{
			Name:           si.Name,
			Kind:           si.Kind,
			Range:          si.Location.Range,
			SelectionRange: si.Location.Range,
		})
	}
	return symbols
}

// CallHierarchyItem is a prepared call-hierarchy anchor.
type CallHierarchyItem struct {
	Name           string     `json:"name"`
	Kind           SymbolKind `json:"kind"`
	URI            string     `json:"uri"`
	Range          Range      `json:"range"`
	SelectionRange Range      `json:"selectionRange"`
}

// CallHierarchyIncomingCall is one caller of an anchor.
type CallHierarchyIncomingCall struct {
	From       CallHierarchyItem `json:"from"`
	FromRanges []Range           `json:"fromRanges"`
}

// CallHierarchyOutgoingCall is one callee of an anchor.
type CallHierarchyOutgoingCall struct {
	To         CallHierarchyItem `json:"to"`
	FromRanges []Range           `json:"fromRanges"`
}
