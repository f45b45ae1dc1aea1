package main

import (
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"callmap/internal/config"
	"callmap/internal/logging"
	"callmap/internal/paths"
	"callmap/internal/version"
)

var (
	// repoRootFlag is the CLI --repo-root flag value
	repoRootFlag string
	// logLevelFlag overrides the configured log level
	logLevelFlag string
	// logFormatFlag overrides the configured log format
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "callmap",
	Short: "callmap - call graph construction and exploration",
	Long: `callmap builds interactive call graphs from recorded language-server
responses. It indexes symbol declarations, expands the call hierarchy from
every callable, supplements missing edges with a static import scan, and
renders the result as Graphviz dot with clickable table nodes.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("callmap version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&repoRootFlag, "repo-root", ".",
		"Repository root the capture was recorded against")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warn, or error (default: from config)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "",
		"Log format: human or json (default: human on a terminal, json otherwise)")
}

// resolveRepoRoot absolutizes and canonicalizes the --repo-root flag.
// Captures carry absolute paths, so a relative root (the default ".") must
// be absolutized before any path-relative resolution happens against it.
func resolveRepoRoot() (string, error) {
	abs, err := filepath.Abs(repoRootFlag)
	if err != nil {
		return "", err
	}
	return paths.Canonical(abs), nil
}

// loadConfig loads and validates the configuration for the given repo root.
func loadConfig(repoRoot string) (*config.Config, error) {
	cfg, err := config.LoadConfig(repoRoot)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the command logger. A non-terminal stderr forces JSON
// regardless of the configured format so piped logs stay machine-readable;
// the CLI flag overrides both.
func newLogger(cfg *config.Config) *logging.Logger {
	format := logging.Format(cfg.Logging.Format)
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		format = logging.JSONFormat
	}
	if logFormatFlag != "" {
		format = logging.Format(logFormatFlag)
	}

	level := logging.LogLevel(cfg.Logging.Level)
	if logLevelFlag != "" {
		level = logging.LogLevel(logLevelFlag)
	}

	return logging.NewLogger(logging.Config{Format: format, Level: level})
}
