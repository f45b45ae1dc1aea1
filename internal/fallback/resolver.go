package fallback

import (
	"regexp"
	"sort"
	"strings"

	"callmap/internal/graph"
	"callmap/internal/logging"
)

// defaultExternalModules are top-level specifier segments that look like
// standard-library or common third-party packages. Resolution chains skip
// them instead of probing the file set.
var defaultExternalModules = []string{
	"abc", "argparse", "asyncio", "collections", "contextlib", "copy",
	"dataclasses", "datetime", "enum", "functools", "io", "itertools",
	"json", "logging", "math", "os", "pathlib", "random", "re", "shutil",
	"subprocess", "sys", "threading", "time", "typing", "unittest",
	"numpy", "pandas", "pytest", "requests", "scipy", "django", "flask",
	"sqlalchemy", "torch",
}

// Options configures the static resolver.
type Options struct {
	// Root is the package root module names are computed against.
	Root string
	// ExternalModules overrides the default external-specifier allowlist.
	ExternalModules []string
}

// Resolver derives static call relations for the indexed source files. It
// works on raw text only; no provider queries are made.
type Resolver struct {
	index    *graph.Index
	sources  map[string]string
	modules  *moduleMap
	external map[string]bool
	logger   *logging.Logger
}

// New builds a resolver over the indexed file set. sources maps canonical
// file paths to raw contents, supplied by the same reader that fed the
// indexer.
func New(index *graph.Index, sources map[string]string, opts Options, logger *logging.Logger) *Resolver {
	filePaths := make([]string, 0, len(index.Files()))
	for _, file := range index.Files() {
		filePaths = append(filePaths, file.Path)
	}

	external := opts.ExternalModules
	if external == nil {
		external = defaultExternalModules
	}
	externalSet := make(map[string]bool, len(external))
	for _, name := range external {
		externalSet[name] = true
	}

	return &Resolver{
		index:    index,
		sources:  sources,
		modules:  newModuleMap(opts.Root, filePaths),
		external: externalSet,
		logger:   logger,
	}
}

var (
	qualifiedCallRe = regexp.MustCompile(`\b([A-Za-z_]\w*(?:\.[A-Za-z_]\w*)+)\s*\(`)
	bareCallRe      = regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\(`)
	defPrefixRe     = regexp.MustCompile(`^\s*(?:async\s+)?def\s+$`)
)

// Relations scans every indexed source file and returns the derived call
// relations in deterministic order.
func (r *Resolver) Relations() []graph.Relation {
	seen := make(map[string]struct{})
	var relations []graph.Relation

	for _, file := range r.index.Files() {
		if !strings.HasSuffix(file.Path, sourceExt) {
			continue
		}
		content, ok := r.sources[file.Path]
		if !ok {
			continue
		}

		for _, rel := range r.scanFile(file, content) {
			key := rel.EdgeID()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			relations = append(relations, rel)
		}
	}

	sort.Slice(relations, func(i, j int) bool {
		a, z := relations[i], relations[j]
		if a.From != z.From {
			return lessPosition(a.From, z.From)
		}
		return lessPosition(a.To, z.To)
	})

	r.logger.Debug("static scan complete", map[string]interface{}{
		"relations": len(relations),
	})
	return relations
}

func lessPosition(a, z graph.GlobalPosition) bool {
	if a.FileID != z.FileID {
		return a.FileID < z.FileID
	}
	if a.Line != z.Line {
		return a.Line < z.Line
	}
	return a.Character < z.Character
}

func (r *Resolver) scanFile(file *graph.File, content string) []graph.Relation {
	lines := strings.Split(content, "\n")
	imports := parseImports(lines)

	var out []graph.Relation
	r.scanSiblings(file, file.Symbols, len(lines)-1, lines, imports, &out)
	return out
}

// scanSiblings walks one sibling level of the symbol forest. A callable's
// body span runs from its declaration line to the line before the next
// sibling's declaration, bounded by the parent's span.
func (r *Resolver) scanSiblings(file *graph.File, symbols []*graph.Symbol, limit int, lines []string, imports *fileImports, out *[]graph.Relation) {
	for i, sym := range symbols {
		end := limit
		if i+1 < len(symbols) {
			end = symbols[i+1].Range.Start.Line - 1
		}
		// A multi-line range bounds the span further. Flat-form symbols carry
		// a single-line range and keep the pure sibling rule.
		if sym.Range.End.Line > sym.Selection.Start.Line && sym.Range.End.Line < end {
			end = sym.Range.End.Line
		}
		if sym.Kind.Callable() {
			r.scanBody(file, sym, end, lines, imports, out)
		}
		r.scanSiblings(file, sym.Children, end, lines, imports, out)
	}
}

// scanBody scans the lines a callable owns directly, excluding lines that
// belong to a nested callable so every call site is attributed to its
// innermost enclosing function.
func (r *Resolver) scanBody(file *graph.File, sym *graph.Symbol, end int, lines []string, imports *fileImports, out *[]graph.Relation) {
	for line := sym.Selection.Start.Line; line <= end && line < len(lines); line++ {
		if ownedByNested(sym, line) {
			continue
		}
		r.scanLine(file, sym, lines[line], imports, out)
	}
}

func ownedByNested(sym *graph.Symbol, line int) bool {
	for _, child := range sym.Children {
		if !child.Kind.Callable() {
			continue
		}
		if line >= child.Range.Start.Line && line <= child.Range.End.Line {
			return true
		}
	}
	return false
}

func (r *Resolver) scanLine(file *graph.File, caller *graph.Symbol, line string, imports *fileImports, out *[]graph.Relation) {
	text := stripComment(line)

	// Qualified targets first; blank them so the bare pass does not re-match
	// their trailing segment.
	for _, m := range qualifiedCallRe.FindAllStringSubmatchIndex(text, -1) {
		target := text[m[2]:m[3]]
		if callee, calleeFile, ok := r.resolveQualified(target, imports); ok {
			r.emit(file, caller, calleeFile, callee, out)
		}
	}
	text = qualifiedCallRe.ReplaceAllString(text, "(")

	for _, m := range bareCallRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		if name == caller.Name || isDefinition(text, m[2]) {
			continue
		}
		if callee, calleeFile, ok := r.resolveBare(file, name, imports); ok {
			r.emit(file, caller, calleeFile, callee, out)
		}
	}
}

// isDefinition reports whether the name at idx is being declared on this
// line rather than called.
func isDefinition(text string, idx int) bool {
	return defPrefixRe.MatchString(text[:idx])
}

func (r *Resolver) emit(fromFile *graph.File, from *graph.Symbol, toFile *graph.File, to *graph.Symbol, out *[]graph.Relation) {
	if fromFile.ID == toFile.ID && from == to {
		return
	}
	*out = append(*out, graph.Relation{
		From:       graph.NewGlobalPosition(fromFile.ID, from.Selection.Start),
		To:         graph.NewGlobalPosition(toFile.ID, to.Selection.Start),
		Kind:       graph.RelationCall,
		Provenance: graph.ProvenanceStatic,
	})
}

// resolveBare maps an unqualified call name: a unique same-file callable
// first, then a from-import binding. Multiple same-file candidates are
// ambiguous and resolve to nothing.
func (r *Resolver) resolveBare(file *graph.File, name string, imports *fileImports) (*graph.Symbol, *graph.File, bool) {
	local := callablesNamed(r.index, file, name)
	if len(local) == 1 {
		return local[0], file, true
	}
	if len(local) > 1 {
		return nil, nil, false
	}

	ref, ok := imports.names[name]
	if !ok {
		return nil, nil, false
	}
	return r.resolveInModule(file.Path, ref.module, ref.symbol)
}

// resolveInModule resolves a module specifier (absolute or relative) and
// finds the uniquely named callable inside it.
func (r *Resolver) resolveInModule(fromPath, module, symbol string) (*graph.Symbol, *graph.File, bool) {
	var target string
	var found bool
	if strings.HasPrefix(module, ".") {
		target, found = r.modules.resolveRelative(fromPath, module)
	} else {
		if r.external[strings.SplitN(module, ".", 2)[0]] {
			return nil, nil, false
		}
		target, found = r.modules.resolve(module)
	}
	if !found {
		return nil, nil, false
	}

	calleeFile := r.index.FileByPath(target)
	if calleeFile == nil {
		return nil, nil, false
	}
	matches := callablesNamed(r.index, calleeFile, symbol)
	if len(matches) != 1 {
		// Zero means the module lacks the function; more than one is
		// ambiguous. Neither produces an edge.
		return nil, nil, false
	}
	return matches[0], calleeFile, true
}

// resolveQualified resolves a dotted call target. The first segment is
// rewritten through import aliases, then the prefix-trimming chain tries the
// longest dotted prefix as a module and shortens one segment at a time; if
// that fails, suffix trimming drops leading segments instead. An ambiguous
// candidate aborts the whole chain.
func (r *Resolver) resolveQualified(target string, imports *fileImports) (*graph.Symbol, *graph.File, bool) {
	segments := strings.Split(target, ".")
	if len(segments) < 2 {
		return nil, nil, false
	}

	if full, ok := imports.aliases[segments[0]]; ok && full != segments[0] {
		segments = append(strings.Split(full, "."), segments[1:]...)
	}
	name := segments[len(segments)-1]

	// Prefix trimming.
	if !r.external[segments[0]] {
		for k := len(segments) - 1; k >= 1; k-- {
			module := strings.Join(segments[:k], ".")
			sym, file, status := r.lookupModuleFunction(module, name)
			switch status {
			case lookupFound:
				return sym, file, true
			case lookupAmbiguous:
				return nil, nil, false
			}
		}
	}

	// Suffix trimming.
	for i := 1; i <= len(segments)-2; i++ {
		if r.external[segments[i]] {
			continue
		}
		module := strings.Join(segments[i:len(segments)-1], ".")
		sym, file, status := r.lookupModuleFunction(module, name)
		switch status {
		case lookupFound:
			return sym, file, true
		case lookupAmbiguous:
			return nil, nil, false
		}
	}

	return nil, nil, false
}

type lookupStatus int

const (
	lookupMiss lookupStatus = iota
	lookupFound
	lookupAmbiguous
)

func (r *Resolver) lookupModuleFunction(module, name string) (*graph.Symbol, *graph.File, lookupStatus) {
	target, ok := r.modules.resolve(module)
	if !ok {
		return nil, nil, lookupMiss
	}
	file := r.index.FileByPath(target)
	if file == nil {
		return nil, nil, lookupMiss
	}

	matches := callablesNamed(r.index, file, name)
	if len(matches) == 1 {
		return matches[0], file, lookupFound
	}
	if len(matches) > 1 {
		return nil, nil, lookupAmbiguous
	}
	return nil, nil, lookupMiss
}

func callablesNamed(index *graph.Index, file *graph.File, name string) []*graph.Symbol {
	var matches []*graph.Symbol
	for _, sym := range index.Callables(file.ID) {
		if sym.Name == name {
			matches = append(matches, sym)
		}
	}
	return matches
}
