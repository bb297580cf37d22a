// Package pnl computes unrealized profit and loss, loss and notional value
// over a set of open positions at matched prices.
package pnl

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"symmoracle/chain"
	"symmoracle/fixed"
	"symmoracle/oracleerr"
)

// Result holds the aggregate figures, all with 18 decimals. Loss is never
// positive and NotionalValueSum is never negative.
type Result struct {
	UPnl             fixed.Int `json:"uPnl"`
	Loss             fixed.Int `json:"loss"`
	NotionalValueSum fixed.Int `json:"notionalValueSum"`
}

// Compute evaluates positions at prices, which must be aligned by index.
// Every product is formed before its division by the scale and overflow is
// checked throughout.
func Compute(positions []chain.Position, prices []fixed.Int) (Result, error) {
	if len(positions) != len(prices) {
		return Result{}, oracleerr.New(oracleerr.KindInvalidParams,
			"positions", strconv.Itoa(len(positions)),
			"prices", strconv.Itoa(len(prices)))
	}
	var res Result
	for i := range positions {
		if err := res.add(positions[i], prices[i]); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

func (r *Result) add(pos chain.Position, price fixed.Int) error {
	fail := func(err error) error {
		return oracleerr.Wrap(oracleerr.KindInvalidParams, err, "quoteId", strconv.FormatUint(pos.ID, 10))
	}
	open, err := pos.OpenAmount()
	if err != nil {
		return fail(err)
	}
	if open.Sign() < 0 {
		return fail(fmt.Errorf("closed amount exceeds quantity"))
	}
	diff, err := price.Sub(pos.OpenedPrice)
	if err != nil {
		return fail(err)
	}
	raw, err := open.Mul(diff)
	if err != nil {
		return fail(err)
	}
	if pos.Side == chain.Short {
		if raw, err = raw.Neg(); err != nil {
			return fail(err)
		}
	}
	contribution, err := raw.Quo(fixed.Scale)
	if err != nil {
		return fail(err)
	}
	if r.UPnl, err = r.UPnl.Add(contribution); err != nil {
		return fail(err)
	}
	if raw.Sign() < 0 {
		if r.Loss, err = r.Loss.Add(contribution); err != nil {
			return fail(err)
		}
	}
	notional, err := open.MulDiv(pos.OpenedPrice, fixed.Scale)
	if err != nil {
		return fail(err)
	}
	if r.NotionalValueSum, err = r.NotionalValueSum.Add(notional); err != nil {
		return fail(err)
	}
	return nil
}

// PricesFor expands a symbol-aligned price vector into a position-aligned one.
func PricesFor(positions []chain.Position, symbolIDs []uint64, prices []fixed.Int) ([]fixed.Int, error) {
	if len(symbolIDs) != len(prices) {
		return nil, oracleerr.New(oracleerr.KindInvalidParams,
			"symbolIds", strconv.Itoa(len(symbolIDs)),
			"prices", strconv.Itoa(len(prices)))
	}
	bySymbol := make(map[uint64]fixed.Int, len(symbolIDs))
	for i, id := range symbolIDs {
		bySymbol[id] = prices[i]
	}
	out := make([]fixed.Int, len(positions))
	for i, pos := range positions {
		price, ok := bySymbol[pos.SymbolID]
		if !ok {
			return nil, oracleerr.New(oracleerr.KindInvalidSymbol, "symbolId", strconv.FormatUint(pos.SymbolID, 10))
		}
		out[i] = price
	}
	return out, nil
}

// CapPolicy selects how counterparty exposure feeds the account total.
type CapPolicy int

const (
	// CapNone sums every group's uPnl as computed.
	CapNone CapPolicy = iota
	// CapAllocatedCollateral bounds each group's positive uPnl by the
	// collateral its counterparty has allocated.
	CapAllocatedCollateral
)

func (p CapPolicy) String() string {
	switch p {
	case CapNone:
		return "none"
	case CapAllocatedCollateral:
		return "allocated_collateral"
	default:
		return fmt.Sprintf("CapPolicy(%d)", int(p))
	}
}

// GroupResult is the breakdown for one counterparty.
type GroupResult struct {
	PartyB    common.Address `json:"partyB"`
	Result    Result         `json:"result"`
	Allocated fixed.Int      `json:"allocated"`
	// Contribution is what the group added to the account uPnl.
	Contribution fixed.Int `json:"contribution"`
	Capped       bool      `json:"capped"`
}

// Breakdown is the account total plus its per-counterparty groups.
type Breakdown struct {
	Total  Result        `json:"total"`
	Groups []GroupResult `json:"groups"`
}

// ComputeByCounterparty groups positions by PartyB in first-seen order and
// combines the group figures under policy. allocated is only consulted under
// CapAllocatedCollateral, where every counterparty must have an entry. Loss
// and notional are summed uncapped.
func ComputeByCounterparty(positions []chain.Position, prices []fixed.Int, allocated map[common.Address]fixed.Int, policy CapPolicy) (Breakdown, error) {
	if len(positions) != len(prices) {
		return Breakdown{}, oracleerr.New(oracleerr.KindInvalidParams,
			"positions", strconv.Itoa(len(positions)),
			"prices", strconv.Itoa(len(prices)))
	}
	index := make(map[common.Address]int)
	var groups []GroupResult
	for i, pos := range positions {
		g, ok := index[pos.PartyB]
		if !ok {
			g = len(groups)
			index[pos.PartyB] = g
			groups = append(groups, GroupResult{PartyB: pos.PartyB})
		}
		if err := groups[g].Result.add(pos, prices[i]); err != nil {
			return Breakdown{}, err
		}
	}

	var out Breakdown
	var err error
	for i := range groups {
		g := &groups[i]
		g.Contribution = g.Result.UPnl
		if policy == CapAllocatedCollateral {
			alloc, ok := allocated[g.PartyB]
			if !ok {
				return Breakdown{}, oracleerr.New(oracleerr.KindInvalidParams, "partyB", g.PartyB.Hex(), "missing", "allocatedBalance")
			}
			g.Allocated = alloc
			if g.Contribution.Sign() > 0 && g.Contribution.Cmp(alloc) > 0 {
				g.Contribution = alloc
				g.Capped = true
			}
		}
		if out.Total.UPnl, err = out.Total.UPnl.Add(g.Contribution); err != nil {
			return Breakdown{}, oracleerr.Wrap(oracleerr.KindInvalidParams, err)
		}
		if out.Total.Loss, err = out.Total.Loss.Add(g.Result.Loss); err != nil {
			return Breakdown{}, oracleerr.Wrap(oracleerr.KindInvalidParams, err)
		}
		if out.Total.NotionalValueSum, err = out.Total.NotionalValueSum.Add(g.Result.NotionalValueSum); err != nil {
			return Breakdown{}, oracleerr.Wrap(oracleerr.KindInvalidParams, err)
		}
	}
	out.Groups = groups
	return out, nil
}
