package graph

import (
	"context"
	"time"

	"github.com/gobwas/glob"

	"callmap/internal/logging"
	"callmap/internal/lsp"
	"callmap/internal/paths"
)

// IndexerOptions bounds the document-symbol indexing pass.
type IndexerOptions struct {
	// SparseRetries is how many times a zero-or-one-symbol response is
	// retried before being accepted. Providers are often not ready right
	// after a file is opened.
	SparseRetries int
	// RetryDelay is the fixed delay between sparse retries.
	RetryDelay time.Duration
	// Exclude lists glob patterns of files to skip entirely.
	Exclude []string
}

// DefaultIndexerOptions returns the standard indexing budgets.
func DefaultIndexerOptions() IndexerOptions {
	return IndexerOptions{
		SparseRetries: 5,
		RetryDelay:    150 * time.Millisecond,
	}
}

// Index holds the per-build file set: the nested symbol forests plus the
// flattened per-file lists supporting position resolution. File ids are
// dense and assigned in indexing order.
type Index struct {
	byPath  map[string]*File
	byID    map[int]*File
	ordered []*File

	// flatCallable lists every callable symbol per file, walk order.
	flatCallable map[int][]*Symbol
	// flatAll lists every symbol per file, for endpoints (interfaces,
	// implementations) that are legitimately not callable.
	flatAll map[int][]*Symbol
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		byPath:       make(map[string]*File),
		byID:         make(map[int]*File),
		flatCallable: make(map[int][]*Symbol),
		flatAll:      make(map[int][]*Symbol),
	}
}

// Indexer obtains symbol forests from the provider gateway and fills an
// Index.
type Indexer struct {
	gateway  *lsp.Gateway
	opts     IndexerOptions
	excludes []glob.Glob
	logger   *logging.Logger
}

// NewIndexer creates an indexer. Malformed exclude patterns are skipped with
// a warning rather than failing the build.
func NewIndexer(gateway *lsp.Gateway, opts IndexerOptions, logger *logging.Logger) *Indexer {
	excludes := make([]glob.Glob, 0, len(opts.Exclude))
	for _, pattern := range opts.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			logger.Warn("invalid exclude pattern", map[string]interface{}{
				"pattern": pattern,
				"error":   err.Error(),
			})
			continue
		}
		excludes = append(excludes, g)
	}

	return &Indexer{gateway: gateway, opts: opts, excludes: excludes, logger: logger}
}

// IndexFiles queries document symbols for every input path and returns the
// populated index. A file whose symbols cannot be obtained contributes an
// empty forest; only that file's graph is empty, never the whole build.
func (ix *Indexer) IndexFiles(ctx context.Context, filePaths []string) (*Index, error) {
	index := NewIndex()

	for _, rawPath := range filePaths {
		if err := ctx.Err(); err != nil {
			return index, err
		}
		canonical := paths.Canonical(rawPath)
		if ix.excluded(canonical) {
			continue
		}

		symbols := ix.fetchSymbols(ctx, rawPath)
		index.AddFile(canonical, symbols)
	}

	return index, nil
}

func (ix *Indexer) excluded(canonical string) bool {
	for _, g := range ix.excludes {
		if g.Match(canonical) {
			return true
		}
	}
	return false
}

// fetchSymbols applies the sparse-result retry policy: a response with zero
// or one symbol on the first request is retried before being accepted.
func (ix *Indexer) fetchSymbols(ctx context.Context, path string) []lsp.DocumentSymbol {
	var symbols []lsp.DocumentSymbol
	var err error

	attempts := ix.opts.SparseRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(ix.opts.RetryDelay):
			case <-ctx.Done():
				return symbols
			}
		}

		symbols, err = ix.gateway.DocumentSymbols(ctx, path)
		if err == nil && len(symbols) > 1 {
			return symbols
		}
	}

	if err != nil {
		ix.logger.Warn("document symbols unavailable, file will be empty", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return nil
	}
	return symbols
}

// AddFile converts a symbol forest and registers the file under the next
// dense id. Re-adding a path is a no-op returning the existing file.
func (index *Index) AddFile(canonicalPath string, symbols []lsp.DocumentSymbol) *File {
	if existing, ok := index.byPath[canonicalPath]; ok {
		return existing
	}

	file := &File{
		ID:   len(index.ordered) + 1,
		Path: canonicalPath,
	}
	lang := LanguageForPath(canonicalPath)
	file.Symbols = index.convertForest(file.ID, symbols, lang)

	index.byPath[canonicalPath] = file
	index.byID[file.ID] = file
	index.ordered = append(index.ordered, file)
	return file
}

// convertForest walks the provider forest with an explicit stack so deeply
// nested code cannot exhaust the goroutine stack.
func (index *Index) convertForest(fileID int, symbols []lsp.DocumentSymbol, lang Language) []*Symbol {
	var roots []*Symbol

	type frame struct {
		src    *lsp.DocumentSymbol
		parent *lsp.DocumentSymbol
		dst    *[]*Symbol
	}

	stack := make([]frame, 0, len(symbols))
	for i := len(symbols) - 1; i >= 0; i-- {
		stack = append(stack, frame{src: &symbols[i], dst: &roots})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !lang.FilterSymbol(f.src, f.parent) {
			continue
		}

		sym := &Symbol{
			Name:      f.src.Name,
			Kind:      f.src.Kind,
			Range:     f.src.Range,
			Selection: f.src.SelectionRange,
		}
		*f.dst = append(*f.dst, sym)
		index.registerFlat(fileID, sym)

		for i := len(f.src.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{src: &f.src.Children[i], parent: f.src, dst: &sym.Children})
		}
	}

	return roots
}

func (index *Index) registerFlat(fileID int, sym *Symbol) {
	index.flatAll[fileID] = append(index.flatAll[fileID], sym)
	if sym.Kind.Callable() {
		index.flatCallable[fileID] = append(index.flatCallable[fileID], sym)
	}
}

// Files returns the indexed files in id order.
func (index *Index) Files() []*File {
	return index.ordered
}

// FileByPath looks up a file by raw or canonical path.
func (index *Index) FileByPath(rawPath string) *File {
	return index.byPath[paths.Canonical(rawPath)]
}

// FileByID looks up a file by dense id.
func (index *Index) FileByID(id int) *File {
	return index.byID[id]
}

// Callables returns the flattened callable symbols of a file.
func (index *Index) Callables(fileID int) []*Symbol {
	return index.flatCallable[fileID]
}

// ResolveSymbol maps a position to a callable symbol, applying the tie-break
// rules in order and stopping at the first match:
//  1. exact declaration-position match
//  2. unique callable starting on the same line (character drift tolerated)
//  3. closest same-line callable by character distance
//  4. smallest enclosing range by line span, then character span
//
// Returns nil when no rule matches; absence is not an error.
func (index *Index) ResolveSymbol(fileID int, pos lsp.Position) *Symbol {
	callables := index.flatCallable[fileID]
	if len(callables) == 0 {
		return nil
	}

	// Rule 1: exact match.
	for _, sym := range callables {
		if sym.Selection.Start == pos {
			return sym
		}
	}

	// Rules 2 and 3: same-line matches.
	var sameLine []*Symbol
	for _, sym := range callables {
		if sym.Selection.Start.Line == pos.Line {
			sameLine = append(sameLine, sym)
		}
	}
	if len(sameLine) == 1 {
		return sameLine[0]
	}
	if len(sameLine) > 1 {
		best := sameLine[0]
		bestDist := charDistance(best.Selection.Start.Character, pos.Character)
		for _, sym := range sameLine[1:] {
			dist := charDistance(sym.Selection.Start.Character, pos.Character)
			if dist < bestDist || (dist == bestDist && sym.Selection.Start.Character < best.Selection.Start.Character) {
				best = sym
				bestDist = dist
			}
		}
		return best
	}

	// Rule 4: smallest enclosing range.
	var best *Symbol
	for _, sym := range callables {
		if !sym.Range.Contains(pos) {
			continue
		}
		if best == nil || tighterRange(sym, best) {
			best = sym
		}
	}
	return best
}

// ResolveAny maps a position to any indexed symbol by exact declaration
// position. Implementation edges terminate on interfaces and type
// declarations, which the callable-only rules never match.
func (index *Index) ResolveAny(fileID int, pos lsp.Position) *Symbol {
	for _, sym := range index.flatAll[fileID] {
		if sym.Selection.Start == pos {
			return sym
		}
	}
	return nil
}

func charDistance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func tighterRange(candidate, current *Symbol) bool {
	candLines := candidate.Range.End.Line - candidate.Range.Start.Line
	curLines := current.Range.End.Line - current.Range.Start.Line
	if candLines != curLines {
		return candLines < curLines
	}
	candChars := candidate.Range.End.Character - candidate.Range.Start.Character
	curChars := current.Range.End.Character - current.Range.Start.Character
	return candChars < curChars
}

// InsertNested synthesizes a symbol discovered only through the opposite end
// of a relation (a caller the provider never listed as a declared symbol).
// The item is inserted only when it nests inside a declared Function or
// Method whose range encloses it; anything else stays unresolved and the
// relation is dropped by the finalize pass.
func (index *Index) InsertNested(file *File, item lsp.CallHierarchyItem) bool {
	siblings := &file.Symbols
	isSubsymbol := false

	for {
		i := insertionPoint(*siblings, item.Range.Start)
		if i < len(*siblings) && (*siblings)[i].Range.Start == item.Range.Start {
			return true
		}

		if i > 0 {
			prev := (*siblings)[i-1]
			if item.Range.End.Before(prev.Range.End) {
				// prev encloses the item: only descend through nested
				// functions.
				if prev.Kind != lsp.KindFunction && prev.Kind != lsp.KindMethod {
					return false
				}
				isSubsymbol = true
				siblings = &prev.Children
				continue
			}
		}

		if isSubsymbol {
			sym := &Symbol{
				Name:      item.Name,
				Kind:      item.Kind,
				Range:     item.Range,
				Selection: item.SelectionRange,
			}

			// A following sibling that actually nests inside the new symbol
			// becomes its child.
			if i < len(*siblings) {
				next := (*siblings)[i]
				if item.Range.Start.Before(next.Range.Start) && next.Range.End.Before(item.Range.End) {
					sym.Children = append(sym.Children, next)
					*siblings = append((*siblings)[:i], (*siblings)[i+1:]...)
				}
			}

			*siblings = append(*siblings, nil)
			copy((*siblings)[i+1:], (*siblings)[i:])
			(*siblings)[i] = sym

			index.registerFlat(file.ID, sym)
		}

		return isSubsymbol
	}
}

func insertionPoint(symbols []*Symbol, start lsp.Position) int {
	for i, sym := range symbols {
		if !sym.Range.Start.Before(start) {
			return i
		}
	}
	return len(symbols)
}
