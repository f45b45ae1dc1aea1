package layout

import (
	"fmt"
	"sort"
	"strings"

	"callmap/internal/graph"
	"callmap/internal/logging"
)

// Options configures dot generation.
type Options struct {
	// Root is the directory cluster labels are computed against.
	Root string
	// Collapsed omits symbol rows and deduplicates edges to one per
	// file-pair and kind.
	Collapsed bool
}

// GenerateDot renders a graph as Graphviz dot source with HTML-like table
// labels. The output is deterministic for a given graph.
func GenerateDot(g *graph.Graph, opts Options, logger *logging.Logger) string {
	var b strings.Builder

	b.WriteString("digraph {\n")
	b.WriteString("    graph [\n        rankdir = \"LR\"\n        ranksep = 2.0\n        fontname = \"Arial\"\n    ];\n")
	b.WriteString("    node [\n        fontsize = \"16\"\n        fontname = \"Arial\"\n        shape = \"plaintext\"\n        style = \"rounded, filled\"\n    ];\n")
	b.WriteString("    edge [\n        label = \" \"\n    ];\n\n")

	files := make([]*graph.File, len(g.Files))
	copy(files, g.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })

	for _, file := range files {
		label := buildLabel(file, opts.Collapsed)
		if err := validateLabel(label); err != nil {
			logger.Warn("label failed validation, using fallback", map[string]interface{}{
				"path":  file.Path,
				"error": err.Error(),
			})
			label = fallbackLabel(file)
		}
		fmt.Fprintf(&b, "    \"%d\" [id=\"%d\", label=<\n%s\n    >];\n", file.ID, file.ID, label)
	}

	if tree := BuildClusters(files, opts.Root); tree != nil {
		b.WriteString("\n")
		writeCluster(&b, tree, "", 1)
	}

	b.WriteString("\n")
	for _, line := range edgeLines(g, opts.Collapsed) {
		b.WriteString("    " + line + "\n")
	}
	b.WriteString("}\n")

	return b.String()
}

// writeCluster emits a cluster subgraph and its children. A cluster with an
// empty directory (files directly under the root) contributes its node list
// without a surrounding subgraph.
func writeCluster(b *strings.Builder, c *Cluster, parentDir string, depth int) {
	indent := strings.Repeat("    ", depth)

	nodes := make([]string, 0, len(c.Files))
	for _, file := range c.Files {
		nodes = append(nodes, fmt.Sprintf("\"%d\"", file.ID))
	}

	if c.Dir == "" {
		if len(nodes) > 0 {
			fmt.Fprintf(b, "%s%s\n", indent, strings.Join(nodes, " "))
		}
		for _, child := range c.Children {
			writeCluster(b, child, c.Dir, depth)
		}
		return
	}

	fmt.Fprintf(b, "%ssubgraph \"cluster_%s\" {\n", indent, c.Dir)
	fmt.Fprintf(b, "%s    label = \"%s\";\n", indent, c.label(parentDir))
	if len(nodes) > 0 {
		fmt.Fprintf(b, "%s    %s\n", indent, strings.Join(nodes, " "))
	}
	for _, child := range c.Children {
		writeCluster(b, child, c.Dir, depth+1)
	}
	fmt.Fprintf(b, "%s};\n", indent)
}

func edgeLines(g *graph.Graph, collapsed bool) []string {
	if collapsed {
		return collapsedEdgeLines(g)
	}

	lines := make([]string, 0, len(g.Relations))
	for _, rel := range g.Relations {
		lines = append(lines, fmt.Sprintf(
			"\"%d\":\"%d_%d\" -> \"%d\":\"%d_%d\" [id=\"%s\"%s];",
			rel.From.FileID, rel.From.Line, rel.From.Character,
			rel.To.FileID, rel.To.Line, rel.To.Character,
			rel.EdgeID(), classAttr(rel.Kind, rel.Provenance),
		))
	}
	sort.Strings(lines)
	return lines
}

// collapsedEdgeLines deduplicates relations to one edge per ordered
// file pair and kind, connecting whole nodes instead of ports.
func collapsedEdgeLines(g *graph.Graph) []string {
	type pairKey struct {
		from, to int
		kind     graph.RelationKind
	}
	seen := make(map[pairKey]string)
	for _, rel := range g.Relations {
		key := pairKey{from: rel.From.FileID, to: rel.To.FileID, kind: rel.Kind}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = fmt.Sprintf(
			"\"%d\" -> \"%d\" [id=\"%d-%d\"%s];",
			key.from, key.to, key.from, key.to, classAttr(rel.Kind, rel.Provenance),
		)
	}

	lines := make([]string, 0, len(seen))
	for _, line := range seen {
		lines = append(lines, line)
	}
	sort.Strings(lines)
	return lines
}

// classAttr renders the css class attribute styling an edge by kind and
// provenance. Hierarchy-sourced call edges are the unstyled default.
func classAttr(kind graph.RelationKind, provenance string) string {
	var classes []string
	if kind != graph.RelationCall {
		classes = append(classes, kind.String())
	}
	if provenance == graph.ProvenanceStatic {
		classes = append(classes, graph.ProvenanceStatic)
	}
	if len(classes) == 0 {
		return ""
	}
	return fmt.Sprintf(", class=%q", strings.Join(classes, " "))
}
