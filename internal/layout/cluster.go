// Package layout turns a finalized graph into Graphviz dot source: files
// become table nodes grouped into directory clusters, symbols become rows
// with position-derived ports, and relations become port-to-port edges.
package layout

import (
	"strings"

	"callmap/internal/graph"
	"callmap/internal/paths"
)

// Cluster is one directory grouping in the diagram. Dir is the slash-form
// directory path relative to the scan root; the root-level cluster may carry
// an empty Dir when files sit directly under the root.
type Cluster struct {
	Dir      string
	Files    []*graph.File
	Children []*Cluster
}

// BuildClusters arranges files into a directory tree by incremental merge:
// each file's directory is joined with the tree built so far at their
// longest common ancestor. When a directory diverges above the current
// root, the existing tree is demoted to a child and a shorter-prefix root
// takes its place.
func BuildClusters(files []*graph.File, root string) *Cluster {
	canonicalRoot := paths.Canonical(root)

	var tree *Cluster
	for _, file := range files {
		dir := relativeDir(canonicalRoot, file.Path)
		if tree == nil {
			tree = &Cluster{Dir: dir, Files: []*graph.File{file}}
			continue
		}
		tree = insertFile(tree, dir, file)
	}
	return tree
}

func relativeDir(root, filePath string) string {
	rel := paths.Rel(root, filePath)
	dir := paths.Dir(rel)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

func insertFile(node *Cluster, dir string, file *graph.File) *Cluster {
	lca := commonDir(node.Dir, dir)
	if lca != node.Dir {
		// The new directory branches off above the current root: demote.
		demoted := &Cluster{Dir: lca, Children: []*Cluster{node}}
		return insertFile(demoted, dir, file)
	}

	if dir == node.Dir {
		node.Files = append(node.Files, file)
		return node
	}

	for i, child := range node.Children {
		shared := commonDir(child.Dir, dir)
		if segmentCount(shared) > segmentCount(node.Dir) {
			node.Children[i] = insertFile(child, dir, file)
			return node
		}
	}

	node.Children = append(node.Children, &Cluster{Dir: dir, Files: []*graph.File{file}})
	return node
}

// commonDir returns the longest shared directory prefix of two slash paths,
// compared segment-wise.
func commonDir(a, b string) string {
	if a == b {
		return a
	}
	as := segments(a)
	bs := segments(b)

	n := len(as)
	if len(bs) < n {
		n = len(bs)
	}
	i := 0
	for i < n && as[i] == bs[i] {
		i++
	}
	return strings.Join(as[:i], "/")
}

func segments(dir string) []string {
	if dir == "" {
		return nil
	}
	return strings.Split(dir, "/")
}

func segmentCount(dir string) int {
	return len(segments(dir))
}

// label is the display name of a cluster relative to its parent.
func (c *Cluster) label(parentDir string) string {
	if parentDir == "" {
		return c.Dir
	}
	return strings.TrimPrefix(c.Dir, parentDir+"/")
}
