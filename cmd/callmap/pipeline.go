package main

import (
	"context"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"callmap/internal/config"
	"callmap/internal/errors"
	"callmap/internal/fallback"
	"callmap/internal/graph"
	"callmap/internal/logging"
	"callmap/internal/lsp"
)

// buildOverrides carries flag-level overrides applied on top of the loaded
// configuration. Zero values keep the configured behavior.
type buildOverrides struct {
	maxDepth   int // negative means keep config
	workers    int
	exclude    []string
	focus      string
	noFallback bool
	noImpl     bool
	progress   bool
}

// buildGraph runs the full pipeline over a capture file: index the symbol
// forests, expand the call hierarchy, then merge in statically derived
// relations. repoRoot must already be absolute and canonical. Every run
// gets a fresh build id carried on all log entries.
func buildGraph(ctx context.Context, capturePath, repoRoot string, cfg *config.Config, logger *logging.Logger, ov buildOverrides) (*graph.Graph, *graph.Index, error) {
	buildID := uuid.NewString()
	logger = logger.With(map[string]interface{}{"buildId": buildID})

	capture, err := lsp.LoadCapture(capturePath)
	if err != nil {
		return nil, nil, errors.New(errors.ProviderUnavailable, "load capture", err)
	}

	gateway := lsp.NewGateway(lsp.NewReplayProvider(capture), lsp.GatewayConfig{
		RequestTimeout: cfg.Gateway.RequestTimeout(),
		RateLimit:      cfg.Gateway.RateLimit,
		RateBurst:      cfg.Gateway.RateBurst,
	}, logger)

	indexer := graph.NewIndexer(gateway, graph.IndexerOptions{
		SparseRetries: cfg.Indexing.SparseRetries,
		RetryDelay:    cfg.Indexing.RetryDelay(),
		Exclude:       append(append([]string{}, cfg.Indexing.Exclude...), ov.exclude...),
	}, logger)

	index, err := indexer.IndexFiles(ctx, captureFiles(capture))
	if err != nil {
		return nil, nil, err
	}

	opts := graph.BuilderOptions{
		RelationCap:     cfg.Builder.RelationCap,
		MaxDepth:        cfg.Builder.MaxDepth,
		PrepRetries:     cfg.Builder.PrepRetries,
		PrepBackoff:     cfg.Builder.PrepBackoff(),
		CallRetries:     cfg.Builder.CallRetries,
		CallBackoff:     cfg.Builder.CallBackoff(),
		Workers:         cfg.Builder.Workers,
		QueryCacheSize:  cfg.Builder.QueryCacheSize,
		Implementations: cfg.Builder.Implementations && !ov.noImpl,
	}
	if ov.maxDepth >= 0 {
		opts.MaxDepth = ov.maxDepth
	}
	if ov.workers > 0 {
		opts.Workers = ov.workers
	}
	if ov.focus != "" {
		path, pos, err := parseFocus(ov.focus)
		if err != nil {
			return nil, nil, err
		}
		opts.FocusPath = path
		opts.FocusPosition = &pos
	}

	var bar *progressbar.ProgressBar
	opts.Progress = func() {
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	builder := graph.NewBuilder(gateway, index, opts, logger)
	if ov.progress && isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(builder.AnchorCount(),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("expanding call hierarchy"),
			progressbar.OptionClearOnFinish(),
		)
	}

	g, err := builder.Build(ctx)
	if err != nil {
		return nil, nil, err
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if cfg.Fallback.Enabled && !ov.noFallback {
		resolver := fallback.New(index, readSources(index, logger), fallback.Options{
			Root:            repoRoot,
			ExternalModules: cfg.Fallback.ExternalModules,
		}, logger)
		added := g.Merge(resolver.Relations())
		logger.Info("Static fallback merged", map[string]interface{}{
			"added": added,
		})
	}

	return g, index, nil
}

// captureFiles returns the capture's file set in deterministic order.
func captureFiles(capture lsp.Capture) []string {
	files := make([]string, 0, len(capture.Symbols)+len(capture.FlatSymbols))
	for path := range capture.Symbols {
		files = append(files, path)
	}
	for path := range capture.FlatSymbols {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

// readSources loads raw file contents for the static resolver. Files that
// cannot be read are scanned as empty, not fatal.
func readSources(index *graph.Index, logger *logging.Logger) map[string]string {
	sources := make(map[string]string)
	for _, file := range index.Files() {
		data, err := os.ReadFile(file.Path)
		if err != nil {
			logger.Warn("Source unreadable, skipping static scan for file", map[string]interface{}{
				"path":  file.Path,
				"error": err.Error(),
			})
			continue
		}
		sources[file.Path] = string(data)
	}
	return sources
}

// parseFocus splits a path:line:character focus spec. The path itself may
// contain colons, so the split runs from the right.
func parseFocus(spec string) (string, lsp.Position, error) {
	last := strings.LastIndexByte(spec, ':')
	if last <= 0 {
		return "", lsp.Position{}, errors.Newf(errors.UnresolvedEndpoint, "invalid focus %q, want path:line:character", spec)
	}
	mid := strings.LastIndexByte(spec[:last], ':')
	if mid <= 0 {
		return "", lsp.Position{}, errors.Newf(errors.UnresolvedEndpoint, "invalid focus %q, want path:line:character", spec)
	}

	line, err := strconv.Atoi(spec[mid+1 : last])
	if err != nil {
		return "", lsp.Position{}, errors.Newf(errors.UnresolvedEndpoint, "invalid focus line in %q", spec)
	}
	char, err := strconv.Atoi(spec[last+1:])
	if err != nil {
		return "", lsp.Position{}, errors.Newf(errors.UnresolvedEndpoint, "invalid focus character in %q", spec)
	}
	if line < 0 || char < 0 {
		return "", lsp.Position{}, errors.Newf(errors.UnresolvedEndpoint, "negative focus position in %q", spec)
	}

	return spec[:mid], lsp.Position{Line: line, Character: char}, nil
}
