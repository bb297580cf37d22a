package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"symmoracle/fixed"
	"symmoracle/oracleerr"
)

const tracerName = "symmoracle/marketdata"

// Observer receives per-source fetch outcomes.
type Observer interface {
	ObserveFetch(source string, elapsed time.Duration, err error)
}

// ObserverFunc adapts ordinary functions to Observer.
type ObserverFunc func(source string, elapsed time.Duration, err error)

// ObserveFetch implements Observer.
func (f ObserverFunc) ObserveFetch(source string, elapsed time.Duration, err error) {
	if f != nil {
		f(source, elapsed, err)
	}
}

// Aggregator fans out to every source and builds one MarketState. The
// aggregator holds no state across calls.
type Aggregator struct {
	sources   []Source
	reference string
	aliases   AliasTable
	logger    *slog.Logger
	observer  Observer
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = l
	}
}

// WithAliases installs the alias table applied to every snapshot.
func WithAliases(t AliasTable) Option {
	return func(a *Aggregator) {
		a.aliases = append(AliasTable{}, t...)
	}
}

// WithObserver reports fetch latency and failures.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) {
		a.observer = o
	}
}

// NewAggregator constructs an aggregator. reference names the source whose
// prices and leverage figures anchor validation.
func NewAggregator(sources []Source, reference string, opts ...Option) (*Aggregator, error) {
	if len(sources) < 2 {
		return nil, fmt.Errorf("at least two sources required for cross validation")
	}
	reference = strings.TrimSpace(reference)
	seen := make(map[string]struct{}, len(sources))
	found := false
	for _, src := range sources {
		if src == nil {
			return nil, fmt.Errorf("nil source")
		}
		if _, dup := seen[src.Name()]; dup {
			return nil, fmt.Errorf("duplicate source %q", src.Name())
		}
		seen[src.Name()] = struct{}{}
		if src.Name() == reference {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("reference source %q not configured", reference)
	}
	agg := &Aggregator{
		sources:   append([]Source{}, sources...),
		reference: reference,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(agg)
		}
	}
	if agg.logger == nil {
		agg.logger = slog.Default()
	}
	return agg, nil
}

// Reference reports the reference source name.
func (a *Aggregator) Reference() string { return a.reference }

// FetchAll queries every source concurrently. The first failure cancels the
// remaining fetches and fails the call; no partial state is returned. When
// symbols is non-empty the snapshots are trimmed to those symbols.
func (a *Aggregator) FetchAll(ctx context.Context, symbols []string) (MarketState, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "marketdata.FetchAll")
	defer span.End()
	span.SetAttributes(attribute.Int("symbols", len(symbols)))

	snaps := make([]Snapshot, len(a.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range a.sources {
		i, src := i, src
		g.Go(func() error {
			started := time.Now()
			snap, err := src.Fetch(gctx)
			if a.observer != nil {
				a.observer.ObserveFetch(src.Name(), time.Since(started), err)
			}
			if err != nil {
				a.logger.Warn("market data fetch failed", "source", src.Name(), "error", err)
				return oracleerr.Wrap(oracleerr.KindUpstream, err, "source", src.Name())
			}
			snap.Source = src.Name()
			if snap.Prices == nil {
				snap.Prices = make(map[string]fixed.Int)
			}
			aliased, err := a.aliases.Apply(snap)
			if err != nil {
				return oracleerr.Wrap(oracleerr.KindUpstream, err, "source", src.Name())
			}
			snaps[i] = aliased.Filter(symbols)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return MarketState{}, err
	}

	state := MarketState{Reference: a.reference, Snapshots: make(map[string]Snapshot, len(snaps))}
	for _, snap := range snaps {
		state.Snapshots[snap.Source] = snap
	}
	a.logger.Debug("market data fetched", "sources", len(snaps), "symbols", len(symbols))
	return state, nil
}
