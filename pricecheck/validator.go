// Package pricecheck cross-validates reference prices against every other
// venue before any figure derived from them is attested.
package pricecheck

import (
	"fmt"
	"strconv"

	"symmoracle/fixed"
	"symmoracle/marketdata"
	"symmoracle/oracleerr"
)

// Tolerance yields the allowed relative deviation for symbol as a fraction
// num/den.
type Tolerance interface {
	Bound(symbol string, state marketdata.MarketState) (num, den fixed.Int, err error)
}

// FixedTolerance allows the same relative deviation for every symbol. The
// ratio carries 18 decimals, so 0.005e18 is half a percent.
type FixedTolerance struct {
	Ratio fixed.Int
}

// Bound implements Tolerance.
func (f FixedTolerance) Bound(string, marketdata.MarketState) (fixed.Int, fixed.Int, error) {
	return f.Ratio, fixed.Scale, nil
}

// LeverageTolerance allows 1/maxLeverage of deviation, the reference venue's
// leverage ceiling. Symbols without a leverage figure use Fallback, or fail
// when Fallback is zero.
type LeverageTolerance struct {
	Fallback fixed.Int
}

// Bound implements Tolerance.
func (l LeverageTolerance) Bound(symbol string, state marketdata.MarketState) (fixed.Int, fixed.Int, error) {
	lev, ok := state.MaxLeverage(symbol)
	if !ok {
		if !l.Fallback.IsZero() {
			return l.Fallback, fixed.Scale, nil
		}
		return fixed.Zero, fixed.Zero, oracleerr.New(oracleerr.KindUndefinedReferencePrice,
			"symbol", symbol, "missing", "maxLeverage")
	}
	return fixed.FromUint64(1), fixed.FromUint64(lev), nil
}

// Validator checks a set of symbols against a market state.
type Validator struct {
	tolerance Tolerance
}

// New returns a validator using tol.
func New(tol Tolerance) (*Validator, error) {
	if tol == nil {
		return nil, fmt.Errorf("tolerance required")
	}
	return &Validator{tolerance: tol}, nil
}

// Validate checks symbols in order and aborts on the first failure.
func (v *Validator) Validate(symbols []string, state marketdata.MarketState) error {
	others := state.Others()
	for _, symbol := range symbols {
		if err := v.validateSymbol(symbol, state, others); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateSymbol(symbol string, state marketdata.MarketState, others []marketdata.Snapshot) error {
	ref, ok := state.ReferencePrice(symbol)
	if !ok || ref.Sign() <= 0 {
		return oracleerr.New(oracleerr.KindUndefinedReferencePrice, "symbol", symbol, "source", state.Reference)
	}
	num, den, err := v.tolerance.Bound(symbol, state)
	if err != nil {
		return err
	}
	covered := 0
	for _, snap := range others {
		price, ok := snap.Price(symbol)
		if !ok {
			continue
		}
		covered++
		within, deviation, err := Within(price, ref, num, den)
		if err != nil {
			return oracleerr.Wrap(oracleerr.KindCorruptedPrice, err, "symbol", symbol, "source", snap.Source)
		}
		if !within {
			return oracleerr.New(oracleerr.KindCorruptedPrice,
				"symbol", symbol,
				"source", snap.Source,
				"deviation", deviation.Format(),
				"tolerance", ratio(num, den))
		}
	}
	if covered == 0 {
		return oracleerr.New(oracleerr.KindSingleSourceSymbol, "symbol", symbol)
	}
	return nil
}

// Within reports whether |price-ref|/ref <= num/den, compared exactly as
// |price-ref|*den <= num*ref. deviation is |price-ref|/ref with 18 decimals.
func Within(price, ref, num, den fixed.Int) (bool, fixed.Int, error) {
	diff, err := price.Sub(ref)
	if err != nil {
		return false, fixed.Zero, err
	}
	if diff, err = diff.Abs(); err != nil {
		return false, fixed.Zero, err
	}
	lhs, err := diff.Mul(den)
	if err != nil {
		return false, fixed.Zero, err
	}
	rhs, err := num.Mul(ref)
	if err != nil {
		return false, fixed.Zero, err
	}
	deviation, err := diff.MulDiv(fixed.Scale, ref)
	if err != nil {
		return false, fixed.Zero, err
	}
	return lhs.Cmp(rhs) <= 0, deviation, nil
}

func ratio(num, den fixed.Int) string {
	if den.Cmp(fixed.Scale) == 0 {
		return num.Format()
	}
	if lev, ok := den.Uint64(); ok {
		return "1/" + strconv.FormatUint(lev, 10)
	}
	return num.String() + "/" + den.String()
}

// MatchPrices returns the reference price of each symbol in order. Symbols
// must have passed Validate.
func MatchPrices(symbols []string, state marketdata.MarketState) ([]fixed.Int, error) {
	out := make([]fixed.Int, len(symbols))
	for i, symbol := range symbols {
		price, ok := state.ReferencePrice(symbol)
		if !ok {
			return nil, oracleerr.New(oracleerr.KindUndefinedReferencePrice, "symbol", symbol, "source", state.Reference)
		}
		out[i] = price
	}
	return out, nil
}
