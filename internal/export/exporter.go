package export

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	"callmap/internal/errors"
	"callmap/internal/graph"
	"callmap/internal/logging"
)

// Exporter serializes graphs
type Exporter struct {
	logger *logging.Logger
}

// NewExporter creates a new exporter
func NewExporter(logger *logging.Logger) *Exporter {
	return &Exporter{logger: logger}
}

// Export serializes a graph in the requested format
func (e *Exporter) Export(g *graph.Graph, opts Options) ([]byte, error) {
	if opts.Format == "" {
		opts.Format = "json"
	}

	doc := Document{
		Metadata: Metadata{
			Repo:          filepath.Base(opts.RepoRoot),
			Generated:     time.Now().UTC().Format(time.RFC3339),
			BuildID:       opts.BuildID,
			FileCount:     len(g.Files),
			RelationCount: len(g.Relations),
		},
		Graph: g,
	}

	var data []byte
	var err error
	switch opts.Format {
	case "json":
		data, err = json.MarshalIndent(doc, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(doc)
	default:
		return nil, errors.Newf(errors.InternalError, "unknown export format %q", opts.Format)
	}
	if err != nil {
		return nil, errors.New(errors.InternalError, "serialize graph", err)
	}

	if opts.Compress {
		data, err = compress(data)
		if err != nil {
			return nil, errors.New(errors.InternalError, "compress export", err)
		}
	}

	e.logger.Debug("Graph exported", map[string]interface{}{
		"format":     opts.Format,
		"compressed": opts.Compress,
		"bytes":      len(data),
		"files":      len(g.Files),
		"relations":  len(g.Relations),
	})

	return data, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
