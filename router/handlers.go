package router

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"symmoracle/api"
	"symmoracle/chain"
	"symmoracle/fixed"
	"symmoracle/marketdata"
	"symmoracle/oracleerr"
	"symmoracle/pnl"
)

// quotes holds validated reference prices keyed by symbol id.
type quotes struct {
	ids    []uint64
	prices []fixed.Int
	state  *marketdata.MarketState
}

func (q quotes) price(id uint64) (fixed.Int, bool) {
	for i, have := range q.ids {
		if have == id {
			return q.prices[i], true
		}
	}
	return fixed.Zero, false
}

// aligned returns the prices of ids in order.
func (q quotes) aligned(ids []uint64) []fixed.Int {
	out := make([]fixed.Int, 0, len(ids))
	for _, id := range ids {
		if p, ok := q.price(id); ok {
			out = append(out, p)
		}
	}
	return out
}

// quote resolves and validates the prices of ids, first-seen order kept.
func (r *Router) quote(ctx context.Context, sc scope, ids []uint64) (quotes, error) {
	ids = dedupeIDs(ids)
	names, err := sc.reader.SymbolNamesByIDs(ctx, ids)
	if err != nil {
		return quotes{}, err
	}
	prices, state, err := r.priced(ctx, names)
	if err != nil {
		return quotes{}, err
	}
	return quotes{ids: ids, prices: prices, state: state}, nil
}

// partyAPnl evaluates an account book under the router's cap policy.
func (r *Router) partyAPnl(ctx context.Context, sc scope, partyA common.Address, set chain.PositionSet, q quotes) (pnl.Breakdown, error) {
	prices, err := pnl.PricesFor(set.Positions, q.ids, q.prices)
	if err != nil {
		return pnl.Breakdown{}, err
	}
	var allocated map[common.Address]fixed.Int
	if r.capPolicy() == pnl.CapAllocatedCollateral && len(set.PartyBs) > 0 {
		balances, err := sc.reader.AllocatedBalanceOfPartyBs(ctx, partyA, set.PartyBs)
		if err != nil {
			return pnl.Breakdown{}, err
		}
		allocated = make(map[common.Address]fixed.Int, len(balances))
		for i, b := range set.PartyBs {
			allocated[b] = balances[i]
		}
	}
	return pnl.ComputeByCounterparty(set.Positions, prices, allocated, r.capPolicy())
}

// singleAccount is shared by the partyA-only methods.
type singleAccount struct {
	scope     scope
	partyA    common.Address
	nonce     fixed.Int
	set       chain.PositionSet
	quotes    quotes
	breakdown pnl.Breakdown
}

func (r *Router) evalPartyA(ctx context.Context, req api.Request, p params, extra ...uint64) (singleAccount, error) {
	partyA, err := p.partyA()
	if err != nil {
		return singleAccount{}, err
	}
	sc, err := r.open(ctx, req, p)
	if err != nil {
		return singleAccount{}, err
	}
	acc := singleAccount{scope: sc, partyA: partyA}
	if acc.nonce, err = sc.reader.NonceOfPartyA(ctx, partyA); err != nil {
		return singleAccount{}, err
	}
	if acc.set, err = sc.reader.PartyAOpenPositions(ctx, partyA); err != nil {
		return singleAccount{}, err
	}
	ids := append(append([]uint64{}, acc.set.SymbolIDs...), extra...)
	if acc.quotes, err = r.quote(ctx, sc, ids); err != nil {
		return singleAccount{}, err
	}
	if acc.breakdown, err = r.partyAPnl(ctx, sc, partyA, acc.set, acc.quotes); err != nil {
		return singleAccount{}, err
	}
	return acc, nil
}

func (acc singleAccount) response() api.Response {
	resp := acc.scope.response()
	resp.PartyA = api.Ptr(acc.partyA)
	resp.Nonce = api.Ptr(acc.nonce)
	resp.UPnl = api.Ptr(acc.breakdown.Total.UPnl)
	resp.Loss = api.Ptr(acc.breakdown.Total.Loss)
	resp.NotionalValueSum = api.Ptr(acc.breakdown.Total.NotionalValueSum)
	return resp
}

func (r *Router) handleUPnlA(ctx context.Context, req api.Request, p params) (api.Response, error) {
	acc, err := r.evalPartyA(ctx, req, p)
	if err != nil {
		return api.Response{}, err
	}
	return acc.response(), nil
}

func (r *Router) handleUPnlAWithSymbolPrice(ctx context.Context, req api.Request, p params) (api.Response, error) {
	symbolID, err := p.symbolID()
	if err != nil {
		return api.Response{}, err
	}
	acc, err := r.evalPartyA(ctx, req, p, symbolID)
	if err != nil {
		return api.Response{}, err
	}
	resp := acc.response()
	price, _ := acc.quotes.price(symbolID)
	resp.SymbolID = api.Ptr(api.Uint(symbolID))
	resp.Price = api.Ptr(price)
	return resp, nil
}

func (r *Router) handlePartyAOverview(ctx context.Context, req api.Request, p params) (api.Response, error) {
	acc, err := r.evalPartyA(ctx, req, p)
	if err != nil {
		return api.Response{}, err
	}
	resp := acc.response()
	resp.PositionsCount = api.Ptr(api.Uint(len(acc.set.Positions)))
	resp.SymbolIDs = api.Uints(acc.set.SymbolIDs)
	resp.Prices = acc.quotes.aligned(acc.set.SymbolIDs)
	resp.MarketState = acc.quotes.state
	if r.variant == Strict {
		resp.Counterparties = acc.breakdown.Groups
	}
	return resp, nil
}

func (r *Router) evalPair(ctx context.Context, req api.Request, p params, extra ...uint64) (api.Response, quotes, error) {
	partyA, partyB, err := p.parties()
	if err != nil {
		return api.Response{}, quotes{}, err
	}
	sc, err := r.open(ctx, req, p)
	if err != nil {
		return api.Response{}, quotes{}, err
	}
	nonceA, err := sc.reader.NonceOfPartyA(ctx, partyA)
	if err != nil {
		return api.Response{}, quotes{}, err
	}
	nonceB, err := sc.reader.NonceOfPartyB(ctx, partyB, partyA)
	if err != nil {
		return api.Response{}, quotes{}, err
	}
	setA, err := sc.reader.PartyAOpenPositions(ctx, partyA)
	if err != nil {
		return api.Response{}, quotes{}, err
	}
	setB, err := sc.reader.PartyBOpenPositions(ctx, partyB, partyA)
	if err != nil {
		return api.Response{}, quotes{}, err
	}
	ids := append(append(append([]uint64{}, setA.SymbolIDs...), setB.SymbolIDs...), extra...)
	q, err := r.quote(ctx, sc, ids)
	if err != nil {
		return api.Response{}, quotes{}, err
	}
	bookA, err := r.partyAPnl(ctx, sc, partyA, setA, q)
	if err != nil {
		return api.Response{}, quotes{}, err
	}
	pricesB, err := pnl.PricesFor(setB.Positions, q.ids, q.prices)
	if err != nil {
		return api.Response{}, quotes{}, err
	}
	bookB, err := pnl.Compute(setB.Positions, pricesB)
	if err != nil {
		return api.Response{}, quotes{}, err
	}
	// positions are stored from partyA's side
	uPnlB, err := bookB.UPnl.Neg()
	if err != nil {
		return api.Response{}, quotes{}, oracleerr.Wrap(oracleerr.KindInvalidParams, err)
	}

	resp := sc.response()
	resp.PartyA = api.Ptr(partyA)
	resp.PartyB = api.Ptr(partyB)
	resp.NonceA = api.Ptr(nonceA)
	resp.NonceB = api.Ptr(nonceB)
	resp.UPnlA = api.Ptr(bookA.Total.UPnl)
	resp.UPnlB = api.Ptr(uPnlB)
	resp.NotionalValueSumA = api.Ptr(bookA.Total.NotionalValueSum)
	resp.NotionalValueSumB = api.Ptr(bookB.NotionalValueSum)
	return resp, q, nil
}

func (r *Router) handleUPnl(ctx context.Context, req api.Request, p params) (api.Response, error) {
	resp, _, err := r.evalPair(ctx, req, p)
	return resp, err
}

func (r *Router) handleUPnlWithSymbolPrice(ctx context.Context, req api.Request, p params) (api.Response, error) {
	if _, _, err := p.parties(); err != nil {
		return api.Response{}, err
	}
	symbolID, err := p.symbolID()
	if err != nil {
		return api.Response{}, err
	}
	resp, q, err := r.evalPair(ctx, req, p, symbolID)
	if err != nil {
		return api.Response{}, err
	}
	price, _ := q.price(symbolID)
	resp.SymbolID = api.Ptr(api.Uint(symbolID))
	resp.Price = api.Ptr(price)
	return resp, nil
}

func (r *Router) handlePrice(ctx context.Context, req api.Request, p params) (api.Response, error) {
	quoteIDs, err := p.quoteIDs()
	if err != nil {
		return api.Response{}, err
	}
	sc, err := r.open(ctx, req, p)
	if err != nil {
		return api.Response{}, err
	}
	names, err := sc.reader.SymbolNamesByQuoteIDs(ctx, quoteIDs)
	if err != nil {
		return api.Response{}, err
	}
	prices, _, err := r.priced(ctx, names)
	if err != nil {
		return api.Response{}, err
	}
	resp := sc.response()
	resp.QuoteIDs = api.Uints(quoteIDs)
	resp.Prices = prices
	return resp, nil
}

func dedupeIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
