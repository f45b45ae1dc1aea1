// Package fallback derives call relations from source text for languages
// whose provider call-hierarchy is not dependable. It resolves imports
// against the indexed file set, scans callable body spans for call sites,
// and resolves qualified targets with fail-closed prefix and suffix
// trimming.
package fallback

import (
	"strings"

	"callmap/internal/paths"
)

const sourceExt = ".py"
const packageInit = "__init__" + sourceExt

// moduleMap maps dotted module specifiers to indexed file paths. The map is
// precomputed from the file set; specifier resolution never touches the
// filesystem directly because the input contract hands us every file's path
// and content up front.
type moduleMap struct {
	root   string
	byName map[string]string
	// byBase maps bare file basenames (extension stripped) to the paths
	// carrying them, backing the unique-basename heuristic.
	byBase map[string][]string
	exists map[string]bool
}

func newModuleMap(root string, filePaths []string) *moduleMap {
	m := &moduleMap{
		root:   paths.Canonical(root),
		byName: make(map[string]string),
		byBase: make(map[string][]string),
		exists: make(map[string]bool),
	}

	for _, raw := range filePaths {
		canonical := paths.Canonical(raw)
		if !strings.HasSuffix(canonical, sourceExt) {
			continue
		}
		m.exists[canonical] = true

		if name := m.moduleName(canonical); name != "" {
			m.byName[name] = canonical
		}

		base := strings.TrimSuffix(paths.Base(canonical), sourceExt)
		if base != "__init__" {
			m.byBase[base] = append(m.byBase[base], canonical)
		}
	}

	return m
}

// moduleName derives the dotted module specifier of a file: root prefix
// stripped, extension removed, package-init suffix removed.
func (m *moduleMap) moduleName(canonical string) string {
	rel := paths.Rel(m.root, canonical)
	if strings.HasSuffix(rel, "/"+packageInit) {
		rel = strings.TrimSuffix(rel, "/"+packageInit)
	} else if rel == packageInit {
		return ""
	} else {
		rel = strings.TrimSuffix(rel, sourceExt)
	}
	return strings.ReplaceAll(rel, "/", ".")
}

// resolve maps an absolute dotted specifier to a file path: direct map hit,
// then file/package probing under the root, then the unique-basename
// heuristic.
func (m *moduleMap) resolve(spec string) (string, bool) {
	if spec == "" {
		return "", false
	}
	if p, ok := m.byName[spec]; ok {
		return p, true
	}

	candidate := m.root + "/" + strings.ReplaceAll(spec, ".", "/")
	if p, ok := m.probe(candidate); ok {
		return p, true
	}

	segments := strings.Split(spec, ".")
	base := segments[len(segments)-1]
	if hits := m.byBase[base]; len(hits) == 1 {
		return hits[0], true
	}
	return "", false
}

// resolveRelative maps a leading-dots specifier against the importing file:
// ascend dots-1 directory levels, then append the remaining dotted path.
func (m *moduleMap) resolveRelative(fromPath, spec string) (string, bool) {
	dots := 0
	for dots < len(spec) && spec[dots] == '.' {
		dots++
	}
	rest := spec[dots:]

	dir := paths.Dir(paths.Canonical(fromPath))
	for i := 0; i < dots-1; i++ {
		dir = paths.Dir(dir)
	}

	candidate := dir
	if rest != "" {
		candidate = dir + "/" + strings.ReplaceAll(rest, ".", "/")
	}
	return m.probe(candidate)
}

func (m *moduleMap) probe(candidate string) (string, bool) {
	if p := candidate + sourceExt; m.exists[p] {
		return p, true
	}
	if p := candidate + "/" + packageInit; m.exists[p] {
		return p, true
	}
	return "", false
}
