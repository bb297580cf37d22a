package fixed

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"
)

func TestParseDecimalScales(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"1.1", "1100000000000000000"},
		{"-0.5", "-500000000000000000"},
		{"67012.123456789012345678", "67012123456789012345678"},
		{"1e-3", "1000000000000000"},
		{"0.0000000000000000019", "1"},
	}
	for _, tc := range cases {
		got, err := ParseDecimal(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("parse %q: got %s want %s", tc.in, got, tc.want)
		}
	}
	if _, err := ParseDecimal("abc"); !errors.Is(err, ErrSyntax) {
		t.Fatalf("expected syntax error, got %v", err)
	}
}

func TestArithmeticSigns(t *testing.T) {
	a := FromInt64(-7)
	b := FromInt64(2)
	sum, err := a.Add(b)
	if err != nil || sum.String() != "-5" {
		t.Fatalf("add: %v %v", sum, err)
	}
	diff, err := b.Sub(a)
	if err != nil || diff.String() != "9" {
		t.Fatalf("sub: %v %v", diff, err)
	}
	prod, err := a.Mul(b)
	if err != nil || prod.String() != "-14" {
		t.Fatalf("mul: %v %v", prod, err)
	}
	q, err := a.Quo(b)
	if err != nil || q.String() != "-3" {
		t.Fatalf("quo should truncate toward zero: %v %v", q, err)
	}
	md, err := a.MulDiv(FromInt64(3), FromInt64(-4))
	if err != nil || md.String() != "5" {
		t.Fatalf("muldiv: %v %v", md, err)
	}
	if Min(a, b).Cmp(a) != 0 {
		t.Fatalf("min should pick the negative operand")
	}
	if a.Cmp(b) != -1 || b.Cmp(a) != 1 || a.Cmp(a) != 0 {
		t.Fatalf("signed comparison broken")
	}
}

func TestOverflowIsReported(t *testing.T) {
	max := MustFromBig(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1)))
	if _, err := max.Add(FromInt64(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected add overflow, got %v", err)
	}
	min, err := max.Neg()
	if err != nil {
		t.Fatalf("neg max: %v", err)
	}
	min, err = min.Sub(FromInt64(1))
	if err != nil {
		t.Fatalf("min int256 must be representable: %v", err)
	}
	if _, err := min.Neg(); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected neg overflow on min int256, got %v", err)
	}
	if _, err := max.MulDiv(FromInt64(4), FromInt64(4)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("product must be checked before division, got %v", err)
	}
	if _, err := FromBig(new(big.Int).Lsh(big.NewInt(1), 255)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("2^255 is outside int256")
	}
	if _, err := FromInt64(1).Quo(Zero); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero")
	}
}

func TestWordIsTwosComplement(t *testing.T) {
	word := FromInt64(-1).Word()
	for i, b := range word {
		if b != 0xff {
			t.Fatalf("byte %d: got %x", i, b)
		}
	}
	word = FromUint64(258).Word()
	if word[30] != 1 || word[31] != 2 {
		t.Fatalf("unexpected encoding %x", word)
	}
}

func TestJSONRoundTripAcceptsNumbers(t *testing.T) {
	var v struct {
		A Int `json:"a"`
		B Int `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"-100","b":42}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A.String() != "-100" || v.B.String() != "42" {
		t.Fatalf("unexpected values %s %s", v.A, v.B)
	}
	out, err := json.Marshal(v.A)
	if err != nil || string(out) != `"-100"` {
		t.Fatalf("marshal: %s %v", out, err)
	}
	if MustParseDecimal("1.5").Format() != "1.5" {
		t.Fatalf("format: %s", MustParseDecimal("1.5").Format())
	}
}
