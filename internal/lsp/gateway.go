package lsp

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"callmap/internal/errors"
	"callmap/internal/logging"
)

// Provider answers symbol and call-hierarchy queries for source files.
// Implementations wrap an external analysis server; an empty slice is a
// valid, non-error result and must be distinguished from a failed request.
type Provider interface {
	DocumentSymbols(ctx context.Context, path string) ([]DocumentSymbol, error)
	PrepareCallHierarchy(ctx context.Context, path string, pos Position) ([]CallHierarchyItem, error)
	IncomingCalls(ctx context.Context, item CallHierarchyItem) ([]CallHierarchyIncomingCall, error)
	OutgoingCalls(ctx context.Context, item CallHierarchyItem) ([]CallHierarchyOutgoingCall, error)
	Implementations(ctx context.Context, path string, pos Position) ([]Location, error)
}

// GatewayConfig bounds every query made through the gateway.
type GatewayConfig struct {
	// RequestTimeout caps a single provider request. Zero means no cap.
	RequestTimeout time.Duration
	// RateLimit caps queries per second against the provider. Zero disables
	// rate limiting.
	RateLimit float64
	// RateBurst is the limiter burst size when RateLimit is set.
	RateBurst int
}

// Gateway wraps a Provider with per-request timeouts, rate limiting, and
// error classification. The graph builder talks only to the gateway; the
// retry/backoff discipline lives on the builder side because budgets differ
// per operation.
type Gateway struct {
	provider Provider
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *logging.Logger
}

// NewGateway creates a gateway around the given provider.
func NewGateway(provider Provider, cfg GatewayConfig, logger *logging.Logger) *Gateway {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Gateway{
		provider: provider,
		limiter:  limiter,
		timeout:  cfg.RequestTimeout,
		logger:   logger,
	}
}

// DocumentSymbols queries the symbol forest for a file.
func (g *Gateway) DocumentSymbols(ctx context.Context, path string) ([]DocumentSymbol, error) {
	var symbols []DocumentSymbol
	err := g.call(ctx, "documentSymbols", func(ctx context.Context) error {
		var err error
		symbols, err = g.provider.DocumentSymbols(ctx, path)
		return err
	})
	return symbols, err
}

// PrepareCallHierarchy requests a call-hierarchy anchor for a position.
func (g *Gateway) PrepareCallHierarchy(ctx context.Context, path string, pos Position) ([]CallHierarchyItem, error) {
	var items []CallHierarchyItem
	err := g.call(ctx, "prepareCallHierarchy", func(ctx context.Context) error {
		var err error
		items, err = g.provider.PrepareCallHierarchy(ctx, path, pos)
		return err
	})
	return items, err
}

// IncomingCalls requests the callers of an anchor.
func (g *Gateway) IncomingCalls(ctx context.Context, item CallHierarchyItem) ([]CallHierarchyIncomingCall, error) {
	var calls []CallHierarchyIncomingCall
	err := g.call(ctx, "incomingCalls", func(ctx context.Context) error {
		var err error
		calls, err = g.provider.IncomingCalls(ctx, item)
		return err
	})
	return calls, err
}

// OutgoingCalls requests the callees of an anchor.
func (g *Gateway) OutgoingCalls(ctx context.Context, item CallHierarchyItem) ([]CallHierarchyOutgoingCall, error) {
	var calls []CallHierarchyOutgoingCall
	err := g.call(ctx, "outgoingCalls", func(ctx context.Context) error {
		var err error
		calls, err = g.provider.OutgoingCalls(ctx, item)
		return err
	})
	return calls, err
}

// Implementations requests the implementation locations of an interface.
func (g *Gateway) Implementations(ctx context.Context, path string, pos Position) ([]Location, error) {
	var locations []Location
	err := g.call(ctx, "implementations", func(ctx context.Context) error {
		var err error
		locations, err = g.provider.Implementations(ctx, path, pos)
		return err
	})
	return locations, err
}

func (g *Gateway) call(ctx context.Context, method string, fn func(context.Context) error) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return errors.New(errors.Timeout, "rate limiter wait cancelled", err)
		}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if err != nil {
		code := errors.TransientQueryFailure
		if ctx.Err() == context.DeadlineExceeded {
			code = errors.Timeout
		}
		g.logger.Debug("provider query failed", map[string]interface{}{
			"method":   method,
			"error":    err.Error(),
			"duration": elapsed.Milliseconds(),
		})
		return errors.New(code, "provider query failed: "+method, err)
	}

	g.logger.Debug("provider query ok", map[string]interface{}{
		"method":   method,
		"duration": elapsed.Milliseconds(),
	})
	return nil
}
