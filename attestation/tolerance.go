package attestation

import "symmoracle/fixed"

// UPnlWithinTolerance reports whether |own-claimed| <= tol*notional, with tol
// carrying 18 decimals. A zero notional only accepts a zero claim.
func UPnlWithinTolerance(own, claimed, notional, tol fixed.Int) bool {
	if notional.IsZero() {
		return claimed.IsZero()
	}
	diff, ok := absDiff(own, claimed)
	if !ok {
		return false
	}
	lhs, err := diff.Mul(fixed.Scale)
	if err != nil {
		return false
	}
	rhs, err := tol.Mul(notional)
	if err != nil {
		return false
	}
	return lhs.Cmp(rhs) <= 0
}

// PriceWithinTolerance reports whether |own-claimed|/claimed <= tol, with tol
// carrying 18 decimals. A zero claim only accepts a zero price.
func PriceWithinTolerance(own, claimed, tol fixed.Int) bool {
	if claimed.IsZero() {
		return own.IsZero()
	}
	diff, ok := absDiff(own, claimed)
	if !ok {
		return false
	}
	lhs, err := diff.Mul(fixed.Scale)
	if err != nil {
		return false
	}
	ref, err := claimed.Abs()
	if err != nil {
		return false
	}
	rhs, err := tol.Mul(ref)
	if err != nil {
		return false
	}
	return lhs.Cmp(rhs) <= 0
}

func absDiff(a, b fixed.Int) (fixed.Int, bool) {
	diff, err := a.Sub(b)
	if err != nil {
		return fixed.Zero, false
	}
	abs, err := diff.Abs()
	return abs, err == nil
}
