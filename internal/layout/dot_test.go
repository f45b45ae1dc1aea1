package layout

import (
	"strings"
	"testing"

	"callmap/internal/errors"
	"callmap/internal/graph"
	"callmap/internal/logging"
	"callmap/internal/lsp"
)

func symbolAt(name string, kind lsp.SymbolKind, line, char int, children ...*graph.Symbol) *graph.Symbol {
	return &graph.Symbol{
		Name: name,
		Kind: kind,
		Range: lsp.Range{
			Start: lsp.Position{Line: line, Character: 0},
			End:   lsp.Position{Line: line + 2, Character: 1},
		},
		Selection: lsp.Range{
			Start: lsp.Position{Line: line, Character: char},
			End:   lsp.Position{Line: line, Character: char + len(name)},
		},
		Children: children,
	}
}

func testGraph() *graph.Graph {
	a := &graph.File{ID: 1, Path: "/proj/pkg/a.py", Symbols: []*graph.Symbol{
		symbolAt("f", lsp.KindFunction, 0, 4),
	}}
	b := &graph.File{ID: 2, Path: "/proj/pkg/b.py", Symbols: []*graph.Symbol{
		symbolAt("Service", lsp.KindClass, 0, 6,
			symbolAt("handle", lsp.KindMethod, 2, 8),
		),
	}}

	return &graph.Graph{
		Files: []*graph.File{a, b},
		Relations: []graph.Relation{
			{
				From:       graph.NewGlobalPosition(1, lsp.Position{Line: 0, Character: 4}),
				To:         graph.NewGlobalPosition(2, lsp.Position{Line: 2, Character: 8}),
				Kind:       graph.RelationCall,
				Provenance: graph.ProvenanceHierarchy,
			},
		},
	}
}

func TestGenerateDotStructure(t *testing.T) {
	dot := GenerateDot(testGraph(), Options{Root: "/proj"}, logging.NewNopLogger())

	for _, want := range []string{
		"digraph {",
		`rankdir = "LR"`,
		// table nodes keyed by file id
		`"1" [id="1", label=<`,
		`"2" [id="2", label=<`,
		// header rows carry the click target path;id
		`HREF="/proj/pkg/a.py;1"`,
		// leaf cell with position-derived port and cell id
		`<TR><TD PORT="0_4" ID="1:0_4" HREF="12">f</TD></TR>`,
		// container symbol renders as a nested table holding its children
		`<TABLE ID="2:0_6"`,
		`<TR><TD PORT="2_8" ID="2:2_8" HREF="6">handle</TD></TR>`,
		// directory cluster
		`subgraph "cluster_pkg" {`,
		`label = "pkg";`,
		// edge keyed fromCell-toCell
		`"1":"0_4" -> "2":"2_8" [id="1:0_4-2:2_8"];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("dot output missing %q\n%s", want, dot)
		}
	}
}

func TestGenerateDotIsDeterministic(t *testing.T) {
	first := GenerateDot(testGraph(), Options{Root: "/proj"}, logging.NewNopLogger())
	for i := 0; i < 5; i++ {
		if again := GenerateDot(testGraph(), Options{Root: "/proj"}, logging.NewNopLogger()); again != first {
			t.Fatal("dot output varies between runs")
		}
	}
}

func TestGenerateDotCollapsedMode(t *testing.T) {
	g := testGraph()
	// A second relation between the same file pair must collapse away.
	g.Relations = append(g.Relations, graph.Relation{
		From: graph.NewGlobalPosition(1, lsp.Position{Line: 5, Character: 4}),
		To:   graph.NewGlobalPosition(2, lsp.Position{Line: 0, Character: 6}),
		Kind: graph.RelationCall,
	})

	dot := GenerateDot(g, Options{Root: "/proj", Collapsed: true}, logging.NewNopLogger())

	if strings.Contains(dot, `PORT=`) {
		t.Error("collapsed mode must not emit symbol rows")
	}
	if got := strings.Count(dot, `"1" -> "2"`); got != 1 {
		t.Errorf("collapsed edges between the pair = %d, want 1", got)
	}
}

func TestGenerateDotTagsEdgesByKindAndProvenance(t *testing.T) {
	g := testGraph()
	g.Relations = []graph.Relation{
		{
			From:       graph.NewGlobalPosition(1, lsp.Position{Line: 0, Character: 4}),
			To:         graph.NewGlobalPosition(2, lsp.Position{Line: 2, Character: 8}),
			Kind:       graph.RelationImpl,
			Provenance: graph.ProvenanceHierarchy,
		},
		{
			From:       graph.NewGlobalPosition(2, lsp.Position{Line: 2, Character: 8}),
			To:         graph.NewGlobalPosition(1, lsp.Position{Line: 0, Character: 4}),
			Kind:       graph.RelationCall,
			Provenance: graph.ProvenanceStatic,
		},
	}

	dot := GenerateDot(g, Options{Root: "/proj"}, logging.NewNopLogger())
	if !strings.Contains(dot, `class="impl"`) {
		t.Error("impl edge lost its kind class")
	}
	if !strings.Contains(dot, `class="static-scan"`) {
		t.Error("static edge lost its provenance class")
	}
}

func TestLabelEscaping(t *testing.T) {
	file := &graph.File{ID: 1, Path: "/proj/a.py", Symbols: []*graph.Symbol{
		symbolAt(`render<T> & "weird"`, lsp.KindFunction, 0, 4),
	}}

	label := buildLabel(file, false)
	if strings.Contains(label, "render<T>") {
		t.Error("symbol name not escaped")
	}
	if !strings.Contains(label, "render&lt;T&gt; &amp; &quot;weird&quot;") {
		t.Errorf("escaped name missing from label:\n%s", label)
	}
	if err := validateLabel(label); err != nil {
		t.Errorf("escaped label failed validation: %v", err)
	}
}

func TestValidateLabelRejectsMalformedMarkup(t *testing.T) {
	tests := []struct {
		name  string
		label string
	}{
		{"unclosed table", `<TABLE><TR><TD>x</TD></TR>`},
		{"crossed tags", `<TABLE><TR><TD>x</TR></TD></TABLE>`},
		{"no rows", `<TABLE></TABLE>`},
		{"stray text", `<TABLE><TR><TD>x</TD></TR></TABLE>trailing`},
		{"cell outside row", `<TABLE><TD>x</TD></TABLE>`},
		{"unterminated tag", `<TABLE><TR><TD`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLabel(tt.label)
			if err == nil {
				t.Fatal("malformed label passed validation")
			}
			if !errors.HasCode(err, errors.MalformedLabel) {
				t.Errorf("error code = %v, want MALFORMED_LABEL", errors.CodeOf(err))
			}
		})
	}
}

func TestFallbackLabelIsMinimalAndValid(t *testing.T) {
	file := &graph.File{ID: 9, Path: "/proj/deep/weird.py"}

	label := fallbackLabel(file)
	if err := validateLabel(label); err != nil {
		t.Fatalf("fallback label failed validation: %v", err)
	}
	if !strings.Contains(label, "weird.py") {
		t.Errorf("fallback label must carry the file name: %s", label)
	}
	if strings.Contains(label, "PORT=") {
		t.Error("fallback label must be a single plain row")
	}
}
