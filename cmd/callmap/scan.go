package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"callmap/internal/layout"
)

var (
	scanOut       string
	scanCollapsed bool
	scanFocus     string
	scanMaxDepth  int
	scanWorkers   int
	scanExclude   []string
	scanNoFall    bool
	scanNoImpl    bool
	scanProgress  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <capture-file>",
	Short: "Build a call graph and render it as Graphviz dot",
	Long: `Build the call graph for a recorded capture and write dot source.

The capture file holds the provider responses (symbol forests, call
hierarchy, implementations) recorded against the repository.

Examples:
  callmap scan capture.json > graph.dot
  callmap scan --collapsed capture.json          # file-level edges only
  callmap scan --focus src/app.py:10:4 capture.json
  callmap scan --exclude '**/*_test.py' capture.json`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanOut, "out", "o", "", "Write dot source to a file instead of stdout")
	scanCmd.Flags().BoolVar(&scanCollapsed, "collapsed", false, "Collapse to one edge per file pair, no symbol rows")
	scanCmd.Flags().StringVar(&scanFocus, "focus", "", "Pin the build to one function: path:line:character")
	scanCmd.Flags().IntVar(&scanMaxDepth, "max-depth", -1, "Bound traversal depth (default: from config)")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "Anchor expansion workers (default: from config)")
	scanCmd.Flags().StringSliceVar(&scanExclude, "exclude", nil, "Glob patterns of files to skip")
	scanCmd.Flags().BoolVar(&scanNoFall, "no-fallback", false, "Skip the static import-scan fallback")
	scanCmd.Flags().BoolVar(&scanNoImpl, "no-impl", false, "Skip interface implementation edges")
	scanCmd.Flags().BoolVar(&scanProgress, "progress", true, "Show expansion progress on a terminal")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	start := time.Now()

	repoRoot, err := resolveRepoRoot()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(repoRoot)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	g, _, err := buildGraph(cmd.Context(), args[0], repoRoot, cfg, logger, buildOverrides{
		maxDepth:   scanMaxDepth,
		workers:    scanWorkers,
		exclude:    scanExclude,
		focus:      scanFocus,
		noFallback: scanNoFall,
		noImpl:     scanNoImpl,
		progress:   scanProgress,
	})
	if err != nil {
		return err
	}

	dot := layout.GenerateDot(g, layout.Options{
		Root:      repoRoot,
		Collapsed: scanCollapsed || cfg.Layout.Collapsed,
	}, logger)

	if scanOut != "" {
		if err := os.WriteFile(scanOut, []byte(dot), 0644); err != nil {
			return fmt.Errorf("write dot output: %w", err)
		}
	} else {
		fmt.Print(dot)
	}

	logger.Info("Scan completed", map[string]interface{}{
		"files":      len(g.Files),
		"relations":  len(g.Relations),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return nil
}
