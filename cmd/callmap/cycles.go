package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"callmap/internal/graph"
)

var cyclesFormat string

var cyclesCmd = &cobra.Command{
	Use:   "cycles <capture-file>",
	Short: "Report recursive call groups",
	Long: `Build the call graph and report its recursion: mutually recursive
groups and functions that call themselves directly.

Examples:
  callmap cycles capture.json
  callmap cycles --format json capture.json`,
	Args: cobra.ExactArgs(1),
	RunE: runCycles,
}

func init() {
	cyclesCmd.Flags().StringVar(&cyclesFormat, "format", "human", "Output format (human, json)")
	rootCmd.AddCommand(cyclesCmd)
}

func runCycles(cmd *cobra.Command, args []string) error {
	repoRoot, err := resolveRepoRoot()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(repoRoot)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	g, _, err := buildGraph(cmd.Context(), args[0], repoRoot, cfg, logger, buildOverrides{maxDepth: -1})
	if err != nil {
		return err
	}

	cycles, err := graph.FindCycles(g)
	if err != nil {
		return err
	}

	switch cyclesFormat {
	case "json":
		data, err := json.MarshalIndent(cycles, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "human":
		if len(cycles) == 0 {
			fmt.Println("No recursive call groups found.")
			return nil
		}
		for i, cycle := range cycles {
			names := make([]string, 0, len(cycle.Members))
			for _, m := range cycle.Members {
				names = append(names, fmt.Sprintf("%s (%s:%d)", m.Name, m.File, m.Position.Line+1))
			}
			fmt.Printf("cycle %d: %s\n", i+1, strings.Join(names, " -> "))
		}
	default:
		return fmt.Errorf("unknown format %q", cyclesFormat)
	}
	return nil
}
