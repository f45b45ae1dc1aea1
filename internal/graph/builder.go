package graph

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"callmap/internal/logging"
	"callmap/internal/lsp"
	"callmap/internal/paths"
)

// BuilderOptions bounds the call-hierarchy traversal.
type BuilderOptions struct {
	// RelationCap is the global relation budget C. Expansion halts
	// everywhere once it is hit; collected relations are kept.
	RelationCap int
	// MaxDepth bounds traversal depth D. Zero means unbounded.
	MaxDepth int
	// PrepRetries and PrepBackoff govern anchor preparation. Retries probe
	// positions one to three lines above the declaration to cover
	// decorators and attributes that shift the provider's notion of start.
	PrepRetries int
	PrepBackoff time.Duration
	// CallRetries and CallBackoff govern the per-direction call queries.
	CallRetries int
	CallBackoff time.Duration
	// Workers bounds the anchor-expansion worker pool.
	Workers int
	// QueryCacheSize caps the per-build query caches.
	QueryCacheSize int
	// Implementations enables Impl edges for interface symbols.
	Implementations bool
	// FocusPath and FocusPosition pin the build to a single anchor. The
	// produced graph carries the focus cell so the interactive runtime can
	// enable transitive highlighting.
	FocusPath     string
	FocusPosition *lsp.Position
	// Progress, when set, is called once per top-level anchor expanded.
	Progress func()
}

// DefaultBuilderOptions returns the standard traversal budgets.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		RelationCap:     8000,
		PrepRetries:     5,
		PrepBackoff:     180 * time.Millisecond,
		CallRetries:     3,
		CallBackoff:     120 * time.Millisecond,
		Workers:         4,
		QueryCacheSize:  8192,
		Implementations: true,
	}
}

// Builder expands callable symbols into a relation set by walking the call
// hierarchy outward from every anchor. Collection is optimistic; the
// finalize pass validates strictly and drops what cannot be resolved.
type Builder struct {
	gateway *lsp.Gateway
	index   *Index
	opts    BuilderOptions
	logger  *logging.Logger

	// indexMu guards the index against concurrent nested-symbol insertion
	// during traversal.
	indexMu sync.RWMutex
}

// NewBuilder creates a builder over an already-populated index.
func NewBuilder(gateway *lsp.Gateway, index *Index, opts BuilderOptions, logger *logging.Logger) *Builder {
	if opts.RelationCap <= 0 {
		opts.RelationCap = 8000
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueryCacheSize <= 0 {
		opts.QueryCacheSize = 8192
	}
	return &Builder{gateway: gateway, index: index, opts: opts, logger: logger}
}

type anchor struct {
	file *File
	sym  *Symbol
}

// Build runs the traversal and returns the finalized graph. Cancellation
// stops expansion but still finalizes, so the caller always receives a
// valid, possibly partial graph.
func (b *Builder) Build(ctx context.Context) (*Graph, error) {
	bc, err := newBuildContext(b.opts.RelationCap, b.opts.QueryCacheSize)
	if err != nil {
		return nil, err
	}
	defer bc.close()

	logger := b.logger.With(map[string]interface{}{"buildId": bc.buildID})

	anchors, focus := b.collectAnchors()
	logger.Info("expanding call hierarchy", map[string]interface{}{
		"anchors": len(anchors),
		"files":   len(b.index.Files()),
	})

	group := new(errgroup.Group)
	group.SetLimit(b.opts.Workers)

	for _, a := range anchors {
		a := a
		group.Go(func() error {
			b.expandFrom(ctx, bc, a.file.Path, a.sym.Selection.Start, 0)
			if b.opts.Progress != nil {
				b.opts.Progress()
			}
			return nil
		})
	}

	if b.opts.Implementations {
		for _, file := range b.index.Files() {
			file := file
			group.Go(func() error {
				b.expandInterfaces(ctx, bc, file)
				return nil
			})
		}
	}

	_ = group.Wait()

	if ctx.Err() != nil {
		logger.Warn("build cancelled, finalizing partial graph", map[string]interface{}{
			"collected": len(bc.snapshot()),
		})
	}
	if bc.capacityReached() {
		logger.Warn("relation cap reached, expansion halted", map[string]interface{}{
			"cap": b.opts.RelationCap,
		})
	}

	g := b.finalize(bc, focus)
	logger.Info("graph finalized", map[string]interface{}{
		"files":     len(g.Files),
		"relations": len(g.Relations),
	})
	return g, nil
}

// collectAnchors gathers every callable symbol, or just the pinned one in
// focus mode.
func (b *Builder) collectAnchors() ([]anchor, *GlobalPosition) {
	if b.opts.FocusPosition != nil {
		file := b.index.FileByPath(b.opts.FocusPath)
		if file == nil {
			return nil, nil
		}
		sym := b.index.ResolveSymbol(file.ID, *b.opts.FocusPosition)
		if sym == nil {
			return nil, nil
		}
		focus := NewGlobalPosition(file.ID, sym.Selection.Start)
		return []anchor{{file: file, sym: sym}}, &focus
	}

	var anchors []anchor
	for _, file := range b.index.Files() {
		for _, sym := range b.index.Callables(file.ID) {
			anchors = append(anchors, anchor{file: file, sym: sym})
		}
	}
	return anchors, nil
}

// AnchorCount reports how many top-level anchors the build will expand.
func (b *Builder) AnchorCount() int {
	anchors, _ := b.collectAnchors()
	return len(anchors)
}

// expandFrom prepares an anchor at a declaration position and expands both
// directions from every prepared item.
func (b *Builder) expandFrom(ctx context.Context, bc *buildContext, path string, decl lsp.Position, depth int) {
	if ctx.Err() != nil || bc.capacityReached() {
		return
	}

	items := b.prepareAnchor(ctx, bc, path, decl)
	for _, item := range items {
		b.expandDirection(ctx, bc, directionIncoming, item, depth)
		b.expandDirection(ctx, bc, directionOutgoing, item, depth)
	}
}

// prepareAnchor requests a call-hierarchy item, retrying with probe
// positions above the declaration when the provider answers empty.
func (b *Builder) prepareAnchor(ctx context.Context, bc *buildContext, path string, decl lsp.Position) []lsp.CallHierarchyItem {
	cacheKey := lsp.CaptureKey(path, decl)
	if items, ok := bc.prepared.Get(cacheKey); ok {
		return items
	}

	var items []lsp.CallHierarchyItem
	attempts := b.opts.PrepRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		probe := decl
		if attempt > 0 {
			if !b.sleep(ctx, b.opts.PrepBackoff) {
				return nil
			}
			// Probe one to three lines above: decorators and attributes
			// shift where the provider anchors the declaration.
			offset := (attempt-1)%3 + 1
			probe.Line = decl.Line - offset
			if probe.Line < 0 {
				probe.Line = 0
			}
		}

		result, err := b.gateway.PrepareCallHierarchy(ctx, path, probe)
		if err != nil {
			continue
		}
		if len(result) > 0 {
			items = result
			break
		}
	}

	bc.prepared.Set(cacheKey, items)
	return items
}

// expandDirection queries one direction of an anchor, records the resulting
// relations, and recurses into newly discovered endpoints. The visited set
// is checked first so a symbol reached from multiple paths is expanded at
// most once per direction.
func (b *Builder) expandDirection(ctx context.Context, bc *buildContext, dir direction, item lsp.CallHierarchyItem, depth int) {
	if ctx.Err() != nil || bc.capacityReached() {
		return
	}

	anchorPath := paths.Canonical(item.URI)
	anchorFile := b.index.FileByPath(anchorPath)
	if anchorFile == nil {
		return
	}

	key := anchorKey{dir: dir, path: anchorPath, line: item.SelectionRange.Start.Line, character: item.SelectionRange.Start.Character}
	if !bc.markVisited(key) {
		return
	}

	anchorPos := b.anchorPosition(anchorFile, item)

	for _, ep := range b.directionCalls(ctx, bc, dir, item) {
		epPath := paths.Canonical(ep.URI)
		epFile := b.index.FileByPath(epPath)
		if epFile == nil {
			// Endpoint in a file outside the build: dropped, never guessed.
			continue
		}

		epPos, ok := b.resolveEndpoint(bc, dir, epFile, ep)
		if !ok {
			continue
		}

		var rel Relation
		if dir == directionIncoming {
			rel = Relation{From: epPos, To: anchorPos, Kind: RelationCall, Provenance: ProvenanceHierarchy}
		} else {
			rel = Relation{From: anchorPos, To: epPos, Kind: RelationCall, Provenance: ProvenanceHierarchy}
		}
		bc.addRelation(rel)

		if b.opts.MaxDepth > 0 && depth+1 >= b.opts.MaxDepth {
			continue
		}
		if bc.capacityReached() {
			return
		}

		// Recurse from anchor preparation so providers that need a fresh
		// item for the endpoint get one; the visited set stops cycles.
		for _, next := range b.prepareAnchor(ctx, bc, epPath, epPos.Position()) {
			b.expandDirection(ctx, bc, dir, next, depth+1)
		}
	}
}

// anchorPosition maps a prepared item to its graph position, preferring the
// indexed symbol's declaration position over the reported one.
func (b *Builder) anchorPosition(file *File, item lsp.CallHierarchyItem) GlobalPosition {
	b.indexMu.RLock()
	sym := b.index.ResolveSymbol(file.ID, item.SelectionRange.Start)
	b.indexMu.RUnlock()
	if sym != nil {
		return NewGlobalPosition(file.ID, sym.Selection.Start)
	}
	return NewGlobalPosition(file.ID, item.SelectionRange.Start)
}

// resolveEndpoint maps a returned call endpoint to a graph position. An
// incoming caller with no declared symbol may be synthesized as a nested
// symbol; otherwise unresolved endpoints fall back to the raw reported
// position and are judged by the finalize pass.
func (b *Builder) resolveEndpoint(bc *buildContext, dir direction, file *File, item lsp.CallHierarchyItem) (GlobalPosition, bool) {
	b.indexMu.RLock()
	sym := b.index.ResolveSymbol(file.ID, item.SelectionRange.Start)
	b.indexMu.RUnlock()
	if sym != nil {
		return NewGlobalPosition(file.ID, sym.Selection.Start), true
	}

	if dir == directionIncoming {
		// Some providers report nested callers that never appear in the
		// file's symbol list; synthesize them where they verifiably nest.
		b.indexMu.Lock()
		inserted := b.index.InsertNested(file, item)
		b.indexMu.Unlock()
		if inserted {
			return NewGlobalPosition(file.ID, item.SelectionRange.Start), true
		}
	}

	return NewGlobalPosition(file.ID, item.SelectionRange.Start), true
}

// directionCalls fetches one direction's call edges with the per-key cache
// and the empty-result retry budget.
func (b *Builder) directionCalls(ctx context.Context, bc *buildContext, dir direction, item lsp.CallHierarchyItem) []lsp.CallHierarchyItem {
	cacheKey := lsp.CaptureKey(item.URI, item.SelectionRange.Start)

	if dir == directionIncoming {
		if calls, ok := bc.incoming.Get(cacheKey); ok {
			return incomingEndpoints(calls)
		}
		var calls []lsp.CallHierarchyIncomingCall
		b.retryCalls(ctx, func(ctx context.Context) (int, error) {
			var err error
			calls, err = b.gateway.IncomingCalls(ctx, item)
			return len(calls), err
		})
		bc.incoming.Set(cacheKey, calls)
		return incomingEndpoints(calls)
	}

	if calls, ok := bc.outgoing.Get(cacheKey); ok {
		return outgoingEndpoints(calls)
	}
	var calls []lsp.CallHierarchyOutgoingCall
	b.retryCalls(ctx, func(ctx context.Context) (int, error) {
		var err error
		calls, err = b.gateway.OutgoingCalls(ctx, item)
		return len(calls), err
	})
	bc.outgoing.Set(cacheKey, calls)
	return outgoingEndpoints(calls)
}

// retryCalls re-runs a direction query while it errors or answers empty,
// up to the configured retry budget.
func (b *Builder) retryCalls(ctx context.Context, fn func(context.Context) (int, error)) {
	attempts := b.opts.CallRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && !b.sleep(ctx, b.opts.CallBackoff) {
			return
		}
		n, err := fn(ctx)
		if err == nil && n > 0 {
			return
		}
	}
}

func incomingEndpoints(calls []lsp.CallHierarchyIncomingCall) []lsp.CallHierarchyItem {
	items := make([]lsp.CallHierarchyItem, 0, len(calls))
	for _, c := range calls {
		items = append(items, c.From)
	}
	return items
}

func outgoingEndpoints(calls []lsp.CallHierarchyOutgoingCall) []lsp.CallHierarchyItem {
	items := make([]lsp.CallHierarchyItem, 0, len(calls))
	for _, c := range calls {
		items = append(items, c.To)
	}
	return items
}

// expandInterfaces queries implementations for every interface symbol in a
// file. Impl edges run from the interface declaration to the implementing
// declaration and are not subject to the depth limit.
func (b *Builder) expandInterfaces(ctx context.Context, bc *buildContext, file *File) {
	for _, sym := range collectByKind(file.Symbols, lsp.KindInterface) {
		if ctx.Err() != nil || bc.capacityReached() {
			return
		}

		var locations []lsp.Location
		attempts := b.opts.CallRetries + 1
		for attempt := 0; attempt < attempts; attempt++ {
			if attempt > 0 && !b.sleep(ctx, b.opts.CallBackoff) {
				return
			}
			result, err := b.gateway.Implementations(ctx, file.Path, sym.Selection.Start)
			if err == nil {
				locations = result
				break
			}
		}

		from := NewGlobalPosition(file.ID, sym.Selection.Start)
		for _, loc := range locations {
			implFile := b.index.FileByPath(loc.URI)
			if implFile == nil {
				continue
			}
			to := b.implementationPosition(implFile, loc)
			bc.addRelation(Relation{From: from, To: to, Kind: RelationImpl, Provenance: ProvenanceHierarchy})
		}
	}
}

// implementationPosition resolves an implementation location to its
// enclosing callable or declared symbol, falling back to the raw position.
func (b *Builder) implementationPosition(file *File, loc lsp.Location) GlobalPosition {
	b.indexMu.RLock()
	defer b.indexMu.RUnlock()
	if sym := b.index.ResolveSymbol(file.ID, loc.Range.Start); sym != nil {
		return NewGlobalPosition(file.ID, sym.Selection.Start)
	}
	if sym := b.index.ResolveAny(file.ID, loc.Range.Start); sym != nil {
		return NewGlobalPosition(file.ID, sym.Selection.Start)
	}
	return NewGlobalPosition(file.ID, loc.Range.Start)
}

// collectByKind walks a forest iteratively and returns symbols of one kind.
func collectByKind(symbols []*Symbol, kind lsp.SymbolKind) []*Symbol {
	var out []*Symbol
	stack := make([]*Symbol, len(symbols))
	copy(stack, symbols)
	for len(stack) > 0 {
		sym := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if sym.Kind == kind {
			out = append(out, sym)
		}
		stack = append(stack, sym.Children...)
	}
	return out
}

// finalize re-validates every collected relation against position
// resolution on both ends and drops what does not resolve. Call endpoints
// must resolve to callable symbols; Impl endpoints may terminate on any
// declared symbol (interfaces are not callable).
func (b *Builder) finalize(bc *buildContext, focus *GlobalPosition) *Graph {
	collected := bc.snapshot()
	kept := make([]Relation, 0, len(collected))

	for _, rel := range collected {
		if b.endpointValid(rel.From, rel.Kind) && b.endpointValid(rel.To, rel.Kind) {
			kept = append(kept, rel)
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		a, z := kept[i], kept[j]
		if a.From != z.From {
			return lessGlobal(a.From, z.From)
		}
		if a.To != z.To {
			return lessGlobal(a.To, z.To)
		}
		return a.Kind < z.Kind
	})

	return &Graph{Files: b.index.Files(), Relations: kept, Focus: focus}
}

func (b *Builder) endpointValid(gp GlobalPosition, kind RelationKind) bool {
	if b.index.ResolveSymbol(gp.FileID, gp.Position()) != nil {
		return true
	}
	if kind == RelationImpl {
		return b.index.ResolveAny(gp.FileID, gp.Position()) != nil
	}
	return false
}

func lessGlobal(a, z GlobalPosition) bool {
	if a.FileID != z.FileID {
		return a.FileID < z.FileID
	}
	if a.Line != z.Line {
		return a.Line < z.Line
	}
	return a.Character < z.Character
}

func (b *Builder) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
