package locate

import (
	"context"
	"log/slog"

	"github.com/Elizabethomito/geocheckin/internal/geo"
)

// DefaultOrder is the resolve order used when ResolveOptions.Order is empty.
var DefaultOrder = []geo.Source{geo.SourceDevice, geo.SourceNetwork}

// ManualFallback is offered the failures of the automated sources and
// returns a caller-entered estimate, or ErrManualDeclined.
type ManualFallback func(ctx context.Context, failures []SourceFailure) (geo.Estimate, error)

// ResolveOptions restricts and orders one Resolve call.
type ResolveOptions struct {
	// Order lists the sources to try. Empty means DefaultOrder.
	Order []geo.Source
	// OnManualFallback, if set, runs only after every source in Order failed.
	OnManualFallback ManualFallback
}

// Resolver walks adapters in priority order; the first success wins.
// It holds no per-call state and is safe for concurrent use as long as
// its adapters are.
type Resolver struct {
	adapters map[geo.Source]Adapter
	logger   *slog.Logger
}

// NewResolver registers adapters by their Source. A later adapter with the
// same Source replaces an earlier one. A nil logger uses slog.Default().
func NewResolver(logger *slog.Logger, adapters ...Adapter) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{adapters: make(map[geo.Source]Adapter, len(adapters)), logger: logger}
	for _, a := range adapters {
		if a != nil {
			r.adapters[a.Source()] = a
		}
	}
	return r
}

// With returns a copy of r that also uses the given adapters. It is how a
// per-call source such as an AddressAdapter joins a shared resolver.
func (r *Resolver) With(adapters ...Adapter) *Resolver {
	out := &Resolver{adapters: make(map[geo.Source]Adapter, len(r.adapters)+len(adapters)), logger: r.logger}
	for src, a := range r.adapters {
		out.adapters[src] = a
	}
	for _, a := range adapters {
		if a != nil {
			out.adapters[a.Source()] = a
		}
	}
	return out
}

// Resolve tries each source in order without racing or retrying. Adapter
// errors are collected, not returned; when every source fails and no
// manual estimate is supplied the result is *AllSourcesExhaustedError.
// A cancelled ctx ends the chain with ctx.Err().
func (r *Resolver) Resolve(ctx context.Context, opts ResolveOptions) (geo.Estimate, error) {
	order := opts.Order
	if len(order) == 0 {
		order = DefaultOrder
	}

	var failures []SourceFailure
	for _, src := range order {
		if err := ctx.Err(); err != nil {
			return geo.Estimate{}, err
		}

		a, ok := r.adapters[src]
		if !ok {
			failures = append(failures, SourceFailure{Source: src, Err: ErrSourceNotConfigured})
			continue
		}

		est, err := a.Acquire(ctx)
		if err == nil {
			r.logger.Info("location resolved", "source", est.Source(), "estimate", est.String())
			return est, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return geo.Estimate{}, ctxErr
		}
		r.logger.Debug("location source failed, falling through", "source", src, "err", err)
		failures = append(failures, SourceFailure{Source: src, Err: err})
	}

	exhausted := &AllSourcesExhaustedError{Attempts: failures}
	if opts.OnManualFallback != nil {
		est, err := opts.OnManualFallback(ctx, failures)
		if err == nil && !est.IsZero() {
			r.logger.Info("location resolved", "source", est.Source(), "estimate", est.String())
			return est, nil
		}
		if err == nil {
			err = ErrManualDeclined
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return geo.Estimate{}, ctxErr
		}
		exhausted.Manual = err
	}
	return geo.Estimate{}, exhausted
}
