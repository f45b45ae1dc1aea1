package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"callmap/internal/export"
)

var (
	exportOut      string
	exportFormat   string
	exportCompress bool
	exportNoFall   bool
)

var exportCmd = &cobra.Command{
	Use:   "export <capture-file>",
	Short: "Build a call graph and export it as JSON or YAML",
	Long: `Build the call graph for a recorded capture and serialize it for
tools other than the diagram renderer.

Examples:
  callmap export capture.json > graph.json
  callmap export --format yaml capture.json
  callmap export --compress -o graph.json.gz capture.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Write to a file instead of stdout")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format (json, yaml)")
	exportCmd.Flags().BoolVar(&exportCompress, "compress", false, "Gzip the output")
	exportCmd.Flags().BoolVar(&exportNoFall, "no-fallback", false, "Skip the static import-scan fallback")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
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
		maxDepth:   -1,
		noFallback: exportNoFall,
	})
	if err != nil {
		return err
	}

	data, err := export.NewExporter(logger).Export(g, export.Options{
		RepoRoot: repoRoot,
		BuildID:  uuid.NewString(),
		Format:   exportFormat,
		Compress: exportCompress,
	})
	if err != nil {
		return err
	}

	if exportOut != "" {
		if err := os.WriteFile(exportOut, data, 0644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		return nil
	}
	_, err = os.Stdout.Write(data)
	return err
}
