package lsp

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"callmap/internal/errors"
	"callmap/internal/logging"
)

// slowProvider blocks until its context is cancelled.
type slowProvider struct {
	ReplayProvider
}

func (s *slowProvider) DocumentSymbols(ctx context.Context, path string) ([]DocumentSymbol, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// failingProvider errors a fixed number of times before succeeding.
type failingProvider struct {
	ReplayProvider
	failures int
	calls    int
}

func (f *failingProvider) DocumentSymbols(ctx context.Context, path string) ([]DocumentSymbol, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, stderrors.New("server not ready")
	}
	return []DocumentSymbol{{Name: "main", Kind: KindFunction}}, nil
}

func TestGatewayTimeoutClassification(t *testing.T) {
	gw := NewGateway(&slowProvider{}, GatewayConfig{RequestTimeout: 10 * time.Millisecond}, logging.NewNopLogger())

	_, err := gw.DocumentSymbols(context.Background(), "/src/a.py")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.HasCode(err, errors.Timeout) {
		t.Errorf("want Timeout code, got %v", errors.CodeOf(err))
	}
	if !errors.IsTransient(err) {
		t.Error("timeouts must be retryable")
	}
}

func TestGatewayErrorClassification(t *testing.T) {
	gw := NewGateway(&failingProvider{failures: 1}, GatewayConfig{}, logging.NewNopLogger())

	_, err := gw.DocumentSymbols(context.Background(), "/src/a.py")
	if !errors.HasCode(err, errors.TransientQueryFailure) {
		t.Errorf("want TransientQueryFailure, got %v", err)
	}

	// Second call succeeds; empty-vs-error distinction stays intact.
	symbols, err := gw.DocumentSymbols(context.Background(), "/src/a.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(symbols) != 1 {
		t.Errorf("want 1 symbol, got %d", len(symbols))
	}
}

func TestGatewayEmptyResultIsNotError(t *testing.T) {
	provider := NewReplayProvider(Capture{})
	gw := NewGateway(provider, GatewayConfig{}, logging.NewNopLogger())

	items, err := gw.PrepareCallHierarchy(context.Background(), "/src/a.py", Position{Line: 3})
	if err != nil {
		t.Fatalf("empty result must not error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("want empty, got %d items", len(items))
	}
}

func TestFromSymbolInformation(t *testing.T) {
	flat := []SymbolInformation{
		{
			Name: "handler",
			Kind: KindFunction,
			Location: Location{
				URI:   "file:///src/a.py",
				Range: Range{Start: Position{Line: 4, Character: 4}, End: Position{Line: 9, Character: 0}},
			},
		},
	}

	symbols := FromSymbolInformation(flat)
	if len(symbols) != 1 {
		t.Fatalf("want 1 symbol, got %d", len(symbols))
	}
	if symbols[0].SelectionRange != symbols[0].Range {
		t.Error("flat form must use the reported range for both range and selection")
	}
	if len(symbols[0].Children) != 0 {
		t.Error("flat form has no nesting")
	}
}

func TestReplayProviderUnifiesPathForms(t *testing.T) {
	capture := Capture{
		Symbols: map[string][]DocumentSymbol{
			"/src/app/main.py": {{Name: "main", Kind: KindFunction}},
		},
	}
	provider := NewReplayProvider(capture)

	symbols, err := provider.DocumentSymbols(context.Background(), "file:///src/app/main.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(symbols) != 1 {
		t.Errorf("URI form missed recording made under bare path")
	}
}

func TestSymbolKindPredicates(t *testing.T) {
	callable := []SymbolKind{KindFunction, KindMethod, KindConstructor}
	for _, k := range callable {
		if !k.Callable() {
			t.Errorf("%v should be callable", k)
		}
	}
	for _, k := range []SymbolKind{KindClass, KindInterface, KindVariable, KindField} {
		if k.Callable() {
			t.Errorf("%v should not be callable", k)
		}
	}
	if !KindInterface.Container() || KindFunction.Container() {
		t.Error("container predicate wrong")
	}
}
