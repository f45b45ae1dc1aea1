package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"callmap/internal/paths"
)

// Capture is a recorded set of provider responses, keyed the same way live
// queries are keyed. It backs the replay provider used by the CLI when no
// live analysis server is attached, and by tests.
type Capture struct {
	// Symbols maps file path to the file's symbol forest.
	Symbols map[string][]DocumentSymbol `json:"symbols"`
	// FlatSymbols holds the non-nesting form for providers that report it.
	// Entries here are converted on read; a file appears in one map or the
	// other, not both.
	FlatSymbols map[string][]SymbolInformation `json:"flatSymbols,omitempty"`
	// Anchors maps "path|line:char" to prepared call-hierarchy items.
	Anchors map[string][]CallHierarchyItem `json:"anchors,omitempty"`
	// Incoming and Outgoing map "path|line:char" to call edges.
	Incoming map[string][]CallHierarchyIncomingCall `json:"incoming,omitempty"`
	Outgoing map[string][]CallHierarchyOutgoingCall `json:"outgoing,omitempty"`
	// Implementations maps "path|line:char" to implementation locations.
	Implementations map[string][]Location `json:"implementations,omitempty"`
}

// CaptureKey builds the query key for a path/position pair.
func CaptureKey(path string, pos Position) string {
	return fmt.Sprintf("%s|%d:%d", paths.Canonical(path), pos.Line, pos.Character)
}

// ReplayProvider serves recorded provider responses. Lookups miss softly:
// an unknown key is an empty result, matching how a live provider answers
// questions about positions it has no hierarchy for.
type ReplayProvider struct {
	capture Capture

	// byCanonical indexes symbol entries under canonical paths so raw and
	// URI forms hit the same recording.
	byCanonical map[string][]DocumentSymbol
}

// NewReplayProvider builds a provider over an in-memory capture.
func NewReplayProvider(capture Capture) *ReplayProvider {
	byCanonical := make(map[string][]DocumentSymbol, len(capture.Symbols)+len(capture.FlatSymbols))
	for p, syms := range capture.Symbols {
		byCanonical[paths.Canonical(p)] = syms
	}
	for p, flat := range capture.FlatSymbols {
		byCanonical[paths.Canonical(p)] = FromSymbolInformation(flat)
	}
	return &ReplayProvider{capture: capture, byCanonical: byCanonical}
}

// LoadCapture reads a capture file from disk.
func LoadCapture(path string) (Capture, error) {
	var capture Capture
	data, err := os.ReadFile(path)
	if err != nil {
		return capture, fmt.Errorf("read capture: %w", err)
	}
	if err := json.Unmarshal(data, &capture); err != nil {
		return capture, fmt.Errorf("parse capture: %w", err)
	}
	return capture, nil
}

// DocumentSymbols returns the recorded symbol forest for a file.
func (r *ReplayProvider) DocumentSymbols(_ context.Context, path string) ([]DocumentSymbol, error) {
	return r.byCanonical[paths.Canonical(path)], nil
}

// PrepareCallHierarchy returns the recorded anchors for a position.
func (r *ReplayProvider) PrepareCallHierarchy(_ context.Context, path string, pos Position) ([]CallHierarchyItem, error) {
	return r.capture.Anchors[CaptureKey(path, pos)], nil
}

// IncomingCalls returns the recorded callers of an anchor.
func (r *ReplayProvider) IncomingCalls(_ context.Context, item CallHierarchyItem) ([]CallHierarchyIncomingCall, error) {
	return r.capture.Incoming[CaptureKey(item.URI, item.SelectionRange.Start)], nil
}

// OutgoingCalls returns the recorded callees of an anchor.
func (r *ReplayProvider) OutgoingCalls(_ context.Context, item CallHierarchyItem) ([]CallHierarchyOutgoingCall, error) {
	return r.capture.Outgoing[CaptureKey(item.URI, item.SelectionRange.Start)], nil
}

// Implementations returns the recorded implementation locations.
func (r *ReplayProvider) Implementations(_ context.Context, path string, pos Position) ([]Location, error) {
	return r.capture.Implementations[CaptureKey(path, pos)], nil
}
