// Package fixed implements the signed fixed-point integer used for every price,
// amount and PnL figure handled by the attestation engine. Values live in the
// int256 range so they map one-to-one onto the Solidity int256/uint256 words
// that end up in a signing pre-image.
package fixed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by every scaled value.
const Decimals = 18

var (
	// ErrOverflow is returned when a result leaves the int256 range or an
	// intermediate product does not fit in 256 bits.
	ErrOverflow = errors.New("fixed: int256 overflow")
	// ErrDivisionByZero is returned when dividing by zero.
	ErrDivisionByZero = errors.New("fixed: division by zero")
	// ErrSyntax is returned when a textual value cannot be parsed.
	ErrSyntax = errors.New("fixed: invalid number")

	// Scale is 10^Decimals, the denominator of every scaled value.
	Scale = FromUint64(1_000_000_000_000_000_000)
	// Zero is the additive identity.
	Zero = Int{}

	signBit = new(uint256.Int).Lsh(uint256.NewInt(1), 255)
)

// Int is a signed 256-bit integer stored in two's complement. The zero value
// is 0 and ready for use.
type Int struct {
	v uint256.Int
}

// FromUint64 returns x as an Int.
func FromUint64(x uint64) Int {
	var out Int
	out.v.SetUint64(x)
	return out
}

// FromInt64 returns x as an Int.
func FromInt64(x int64) Int {
	if x >= 0 {
		return FromUint64(uint64(x))
	}
	var out Int
	out.v.SetUint64(uint64(-(x + 1)) + 1)
	out.v.Neg(&out.v)
	return out
}

// FromBig converts a big integer, failing when it lies outside int256.
func FromBig(b *big.Int) (Int, error) {
	if b == nil {
		return Zero, nil
	}
	mag, overflow := uint256.FromBig(new(big.Int).Abs(b))
	if overflow {
		return Zero, ErrOverflow
	}
	return fromMagnitude(b.Sign() < 0, mag)
}

// MustFromBig is FromBig for constants and tests.
func MustFromBig(b *big.Int) Int {
	out, err := FromBig(b)
	if err != nil {
		panic(err)
	}
	return out
}

// ParseInteger parses a base-10 integer string without applying the scale.
func ParseInteger(s string) (Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Zero, ErrSyntax
	}
	b, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return Zero, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	return FromBig(b)
}

// ParseDecimal parses a human decimal ("67012.5", "1e-3") and scales it by
// 10^Decimals. Digits beyond the eighteenth fractional place are truncated.
func ParseDecimal(s string) (Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	return FromDecimal(d)
}

// MustParseDecimal is ParseDecimal for constants and tests.
func MustParseDecimal(s string) Int {
	out, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return out
}

// FromDecimal scales d by 10^Decimals, truncating toward zero.
func FromDecimal(d decimal.Decimal) (Int, error) {
	return FromBig(d.Shift(Decimals).BigInt())
}

func fromMagnitude(negative bool, mag *uint256.Int) (Int, error) {
	var out Int
	if negative {
		if mag.Gt(signBit) {
			return Zero, ErrOverflow
		}
		out.v.Neg(mag)
		return out, nil
	}
	if !mag.Lt(signBit) {
		return Zero, ErrOverflow
	}
	out.v.Set(mag)
	return out, nil
}

func (x Int) magnitude() *uint256.Int {
	if x.v.Sign() < 0 {
		return new(uint256.Int).Neg(&x.v)
	}
	return new(uint256.Int).Set(&x.v)
}

// Sign returns -1, 0 or +1.
func (x Int) Sign() int { return x.v.Sign() }

// IsZero reports whether x == 0.
func (x Int) IsZero() bool { return x.v.IsZero() }

// Cmp compares x and y as signed integers.
func (x Int) Cmp(y Int) int {
	switch {
	case x.v.Eq(&y.v):
		return 0
	case x.v.Slt(&y.v):
		return -1
	default:
		return 1
	}
}

// Add returns x + y.
func (x Int) Add(y Int) (Int, error) {
	var out Int
	out.v.Add(&x.v, &y.v)
	xs, ys, rs := x.v.Sign() < 0, y.v.Sign() < 0, out.v.Sign() < 0
	if xs == ys && rs != xs {
		return Zero, ErrOverflow
	}
	return out, nil
}

// Sub returns x - y.
func (x Int) Sub(y Int) (Int, error) {
	var out Int
	out.v.Sub(&x.v, &y.v)
	xs, ys, rs := x.v.Sign() < 0, y.v.Sign() < 0, out.v.Sign() < 0
	if xs != ys && rs != xs {
		return Zero, ErrOverflow
	}
	return out, nil
}

// Neg returns -x.
func (x Int) Neg() (Int, error) {
	return fromMagnitude(x.v.Sign() > 0, x.magnitude())
}

// Abs returns |x|.
func (x Int) Abs() (Int, error) {
	return fromMagnitude(false, x.magnitude())
}

// Mul returns x * y.
func (x Int) Mul(y Int) (Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(x.magnitude(), y.magnitude())
	if overflow {
		return Zero, ErrOverflow
	}
	return fromMagnitude((x.Sign() < 0) != (y.Sign() < 0) && !product.IsZero(), product)
}

// Quo returns x / d truncated toward zero.
func (x Int) Quo(d Int) (Int, error) {
	if d.IsZero() {
		return Zero, ErrDivisionByZero
	}
	q := new(uint256.Int).Div(x.magnitude(), d.magnitude())
	return fromMagnitude((x.Sign() < 0) != (d.Sign() < 0) && !q.IsZero(), q)
}

// MulDiv returns x * y / d. The product is checked for overflow before the
// division and the quotient is truncated toward zero.
func (x Int) MulDiv(y, d Int) (Int, error) {
	if d.IsZero() {
		return Zero, ErrDivisionByZero
	}
	product, overflow := new(uint256.Int).MulOverflow(x.magnitude(), y.magnitude())
	if overflow {
		return Zero, ErrOverflow
	}
	q := new(uint256.Int).Div(product, d.magnitude())
	negative := ((x.Sign() < 0) != (y.Sign() < 0)) != (d.Sign() < 0)
	return fromMagnitude(negative && !q.IsZero(), q)
}

// Min returns the smaller of x and y.
func Min(x, y Int) Int {
	if x.Cmp(y) <= 0 {
		return x
	}
	return y
}

// Big returns x as a new big integer.
func (x Int) Big() *big.Int {
	mag := x.magnitude().ToBig()
	if x.Sign() < 0 {
		return mag.Neg(mag)
	}
	return mag
}

// Uint64 returns x when it is a non-negative value that fits a uint64.
func (x Int) Uint64() (uint64, bool) {
	if x.Sign() < 0 || !x.v.IsUint64() {
		return 0, false
	}
	return x.v.Uint64(), true
}

// Word returns the 32-byte big-endian two's complement encoding of x, which is
// the Solidity int256 word. For non-negative values it equals the uint256
// word.
func (x Int) Word() [32]byte {
	return x.v.Bytes32()
}

// String renders the raw integer in base 10.
func (x Int) String() string {
	return x.Big().String()
}

// Format renders the scaled value as a human decimal, e.g. "1.5" for 1.5e18.
func (x Int) Format() string {
	return decimal.NewFromBigInt(x.Big(), -Decimals).String()
}

// MarshalJSON encodes the raw integer as a JSON string so that large values
// survive JavaScript consumers.
func (x Int) MarshalJSON() ([]byte, error) {
	return json.Marshal(x.String())
}

// UnmarshalJSON accepts a raw integer as a JSON string or number.
func (x *Int) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	parsed, err := ParseInteger(raw)
	if err != nil {
		return err
	}
	*x = parsed
	return nil
}
