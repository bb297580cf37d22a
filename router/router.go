// Package router dispatches attestation requests to their read, price and PnL
// pipelines. Every request is evaluated independently.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"symmoracle/api"
	"symmoracle/chain"
	"symmoracle/crypto"
	"symmoracle/fixed"
	"symmoracle/marketdata"
	"symmoracle/oracleerr"
	"symmoracle/pnl"
	"symmoracle/pricecheck"
)

const tracerName = "symmoracle/router"

// Variant selects between the two protocol behaviours.
type Variant int

const (
	// Standard uses a fixed price tolerance, reads the latest chain state
	// and sums counterparty exposure uncapped.
	Standard Variant = iota
	// Strict derives the tolerance from leverage, pins every read to one
	// block and caps counterparty exposure at allocated collateral.
	Strict
)

func (v Variant) String() string {
	if v == Strict {
		return "strict"
	}
	return "standard"
}

// ParseVariant maps a config value onto a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return Standard, nil
	case "strict":
		return Strict, nil
	default:
		return Standard, fmt.Errorf("unknown variant %q", s)
	}
}

// Chains resolves chain readers. *chain.Registry implements it.
type Chains interface {
	Reader(chainID uint64, contract common.Address) (*chain.Reader, error)
}

// Market fetches cross-venue prices. *marketdata.Aggregator implements it.
type Market interface {
	FetchAll(ctx context.Context, symbols []string) (marketdata.MarketState, error)
}

// Config carries the policy knobs of a router.
type Config struct {
	Variant Variant
	// PriceTolerance is the fixed validation ratio under Standard and the
	// fallback for symbols without a leverage figure under Strict, where
	// zero means such symbols are rejected.
	PriceTolerance fixed.Int
	// VerifySigner is the address whose signatures unlock verify.
	VerifySigner common.Address
}

type handlerFunc func(ctx context.Context, req api.Request, p params) (api.Response, error)

// Router owns the fixed method table.
type Router struct {
	chains       Chains
	market       Market
	validator    *pricecheck.Validator
	verifier     crypto.Verifier
	verifySigner common.Address
	variant      Variant
	now          func() time.Time
	logger       *slog.Logger
	handlers     map[string]handlerFunc
}

// Option configures a Router.
type Option func(*Router)

// WithClock overrides the timestamp source used when requests carry none.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// WithVerifier overrides the signature scheme used by verify.
func WithVerifier(v crypto.Verifier) Option {
	return func(r *Router) {
		r.verifier = v
	}
}

// New constructs a router.
func New(chains Chains, market Market, cfg Config, opts ...Option) (*Router, error) {
	if chains == nil {
		return nil, fmt.Errorf("chain registry required")
	}
	if market == nil {
		return nil, fmt.Errorf("market data required")
	}
	var tol pricecheck.Tolerance
	switch cfg.Variant {
	case Standard:
		if cfg.PriceTolerance.Sign() <= 0 {
			return nil, fmt.Errorf("standard variant requires a positive price tolerance")
		}
		tol = pricecheck.FixedTolerance{Ratio: cfg.PriceTolerance}
	case Strict:
		tol = pricecheck.LeverageTolerance{Fallback: cfg.PriceTolerance}
	default:
		return nil, fmt.Errorf("unknown variant %d", cfg.Variant)
	}
	validator, err := pricecheck.New(tol)
	if err != nil {
		return nil, err
	}
	r := &Router{
		chains:       chains,
		market:       market,
		validator:    validator,
		verifier:     crypto.ECDSAVerifier{},
		verifySigner: cfg.VerifySigner,
		variant:      cfg.Variant,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.handlers = map[string]handlerFunc{
		api.MethodUPnlA:                r.handleUPnlA,
		api.MethodUPnlAWithSymbolPrice: r.handleUPnlAWithSymbolPrice,
		api.MethodPartyAOverview:       r.handlePartyAOverview,
		api.MethodUPnl:                 r.handleUPnl,
		api.MethodUPnlWithSymbolPrice:  r.handleUPnlWithSymbolPrice,
		api.MethodPrice:                r.handlePrice,
		api.MethodVerify:               r.handleVerify,
	}
	return r, nil
}

// Variant reports the configured protocol variant.
func (r *Router) Variant() Variant { return r.variant }

// Methods lists the supported method names.
func (r *Router) Methods() []string {
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	return out
}

// Handle evaluates one request. Unknown methods and malformed parameters are
// rejected before any I/O.
func (r *Router) Handle(ctx context.Context, req api.Request) (api.Response, error) {
	handler, ok := r.handlers[req.Method]
	if !ok {
		return api.Response{}, oracleerr.New(oracleerr.KindUnknownMethod, "method", req.Method)
	}
	p, err := decodeParams(req.Data.Params)
	if err != nil {
		return api.Response{}, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "router."+req.Method, trace.WithAttributes(
		attribute.String("method", req.Method),
		attribute.String("variant", r.variant.String()),
	))
	defer span.End()

	resp, err := handler(ctx, req, p)
	if err != nil {
		kind := oracleerr.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		r.logger.Debug("request rejected", "method", req.Method, "kind", kind.Code(), "error", err)
		return api.Response{}, err
	}
	resp.Method = req.Method
	return resp, nil
}

// scope is the per-request view of one chain.
type scope struct {
	reader    *chain.Reader
	chainID   uint64
	symmio    common.Address
	timestamp uint64
	block     *uint64
}

func (s scope) response() api.Response {
	resp := api.Response{
		ChainID:   api.Uint(s.chainID),
		Symmio:    s.symmio,
		Timestamp: api.Uint(s.timestamp),
	}
	if s.block != nil {
		resp.BlockNumber = api.Ptr(api.Uint(*s.block))
	}
	return resp
}

// timestamp prefers the request, then the seed, so peers answering one
// proposal sign the same time.
func (r *Router) timestamp(req api.Request) uint64 {
	if req.Data.Timestamp != nil {
		return uint64(*req.Data.Timestamp)
	}
	if req.Data.HasSeed() {
		if seed, err := req.Data.Seed(); err == nil && seed.Timestamp != 0 {
			return uint64(seed.Timestamp)
		}
	}
	return uint64(r.now().Unix())
}

// open resolves the chain reader and, under Strict, pins it. The pin comes
// from the request, then the seed, then the current head.
func (r *Router) open(ctx context.Context, req api.Request, p params) (scope, error) {
	chainID, err := p.chainID()
	if err != nil {
		return scope{}, err
	}
	reader, err := r.chains.Reader(chainID, p.symmio())
	if err != nil {
		return scope{}, err
	}
	sc := scope{reader: reader, chainID: chainID, symmio: reader.Contract(), timestamp: r.timestamp(req)}
	if r.variant != Strict {
		return sc, nil
	}
	var block uint64
	switch {
	case p.BlockNumber != nil:
		block = uint64(*p.BlockNumber)
	case req.Data.HasSeed():
		seed, err := req.Data.Seed()
		if err != nil {
			return scope{}, oracleerr.Wrap(oracleerr.KindInvalidParams, err, "param", "result")
		}
		if seed.BlockNumber != nil {
			block = uint64(*seed.BlockNumber)
			break
		}
		fallthrough
	default:
		if block, err = reader.LatestBlock(ctx); err != nil {
			return scope{}, err
		}
	}
	sc.reader = reader.Pinned(block)
	sc.block = &block
	return sc, nil
}

// priced resolves names for symbolIDs, fetches and validates the market and
// returns the reference prices aligned with symbolIDs.
func (r *Router) priced(ctx context.Context, names []string) ([]fixed.Int, *marketdata.MarketState, error) {
	if len(names) == 0 {
		return nil, nil, nil
	}
	state, err := r.market.FetchAll(ctx, dedupe(names))
	if err != nil {
		return nil, nil, err
	}
	if err := r.validator.Validate(names, state); err != nil {
		return nil, nil, err
	}
	prices, err := pricecheck.MatchPrices(names, state)
	if err != nil {
		return nil, nil, err
	}
	return prices, &state, nil
}

func (r *Router) capPolicy() pnl.CapPolicy {
	if r.variant == Strict {
		return pnl.CapAllocatedCollateral
	}
	return pnl.CapNone
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
