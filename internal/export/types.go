// Package export serializes finished call graphs for storage and for
// consumption by tools other than the diagram renderer.
package export

import "callmap/internal/graph"

// Document is the serialized form of a build: metadata plus the graph.
type Document struct {
	Metadata Metadata     `json:"metadata" yaml:"metadata"`
	Graph    *graph.Graph `json:"graph" yaml:"graph"`
}

// Metadata describes the build the document came from.
type Metadata struct {
	Repo          string `json:"repo" yaml:"repo"`
	Generated     string `json:"generated" yaml:"generated"` // ISO 8601 timestamp
	BuildID       string `json:"buildId" yaml:"buildId"`
	FileCount     int    `json:"fileCount" yaml:"fileCount"`
	RelationCount int    `json:"relationCount" yaml:"relationCount"`
}

// Options configures the export
type Options struct {
	RepoRoot string // Repository root path, recorded in metadata
	BuildID  string // Build identifier, recorded in metadata
	Format   string // Output format: "json" | "yaml"
	Compress bool   // Gzip the serialized output
}
