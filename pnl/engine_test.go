package pnl

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"symmoracle/chain"
	"symmoracle/fixed"
	"symmoracle/oracleerr"
)

var (
	b1 = common.HexToAddress("0xb1")
	b2 = common.HexToAddress("0xb2")
)

func d(s string) fixed.Int { return fixed.MustParseDecimal(s) }

func position(id uint64, side chain.Side, qty, closed, opened string, b common.Address) chain.Position {
	return chain.Position{
		ID:           id,
		SymbolID:     id % 2,
		Side:         side,
		Quantity:     d(qty),
		ClosedAmount: d(closed),
		OpenedPrice:  d(opened),
		PartyB:       b,
	}
}

func TestComputeSignSymmetry(t *testing.T) {
	long := position(1, chain.Long, "100", "0", "1.00", b1)
	res, err := Compute([]chain.Position{long}, []fixed.Int{d("1.10")})
	require.NoError(t, err)
	require.Equal(t, d("10"), res.UPnl)
	require.True(t, res.Loss.IsZero())
	require.Equal(t, d("100"), res.NotionalValueSum)

	short := position(1, chain.Short, "100", "0", "1.00", b1)
	res, err = Compute([]chain.Position{short}, []fixed.Int{d("1.10")})
	require.NoError(t, err)
	require.Equal(t, d("-10"), res.UPnl)
	require.Equal(t, d("-10"), res.Loss)
	require.Equal(t, d("100"), res.NotionalValueSum)
}

func TestComputeUsesOpenAmount(t *testing.T) {
	pos := position(1, chain.Long, "100", "40", "2", b1)
	res, err := Compute([]chain.Position{pos}, []fixed.Int{d("3")})
	require.NoError(t, err)
	require.Equal(t, d("60"), res.UPnl)
	require.Equal(t, d("120"), res.NotionalValueSum)
}

func TestComputeTruncatesTowardZero(t *testing.T) {
	// 1e-18 quantity at a 0.5e-18 price move rounds to zero in both directions
	pos := chain.Position{Quantity: fixed.FromUint64(1), OpenedPrice: d("1")}
	price, err := d("1").Add(fixed.FromUint64(5e17))
	require.NoError(t, err)
	res, err := Compute([]chain.Position{pos}, []fixed.Int{price})
	require.NoError(t, err)
	require.True(t, res.UPnl.IsZero())

	pos.Side = chain.Short
	res, err = Compute([]chain.Position{pos}, []fixed.Int{price})
	require.NoError(t, err)
	require.True(t, res.UPnl.IsZero())
}

func TestComputeRejectsMalformedInput(t *testing.T) {
	_, err := Compute([]chain.Position{position(1, chain.Long, "1", "0", "1", b1)}, nil)
	require.ErrorIs(t, err, oracleerr.ErrInvalidParams)

	over := position(9, chain.Long, "1", "2", "1", b1)
	_, err = Compute([]chain.Position{over}, []fixed.Int{d("1")})
	require.ErrorIs(t, err, oracleerr.ErrInvalidParams)
	require.Equal(t, "9", oracleerr.As(err).Detail["quoteId"])
}

func TestNotionalNeverNegative(t *testing.T) {
	positions := []chain.Position{
		position(1, chain.Long, "5", "1", "10", b1),
		position(2, chain.Short, "3", "0", "7", b2),
	}
	res, err := Compute(positions, []fixed.Int{d("1"), d("100")})
	require.NoError(t, err)
	require.True(t, res.NotionalValueSum.Sign() > 0)
	require.True(t, res.Loss.Sign() < 0)
}

func TestPricesFor(t *testing.T) {
	positions := []chain.Position{{SymbolID: 3}, {SymbolID: 1}, {SymbolID: 3}}
	prices, err := PricesFor(positions, []uint64{1, 3}, []fixed.Int{d("10"), d("30")})
	require.NoError(t, err)
	require.Equal(t, []fixed.Int{d("30"), d("10"), d("30")}, prices)

	_, err = PricesFor(positions, []uint64{1}, []fixed.Int{d("10")})
	require.ErrorIs(t, err, oracleerr.ErrInvalidSymbol)
}

func TestCounterpartyCap(t *testing.T) {
	positions := []chain.Position{
		position(1, chain.Long, "100", "0", "1", b1), // +10
		position(2, chain.Long, "100", "0", "1", b2), // +10
		position(3, chain.Short, "10", "0", "1", b2), // -1
	}
	prices := []fixed.Int{d("1.1"), d("1.1"), d("1.1")}
	allocated := map[common.Address]fixed.Int{b1: d("4"), b2: d("50")}

	uncapped, err := ComputeByCounterparty(positions, prices, allocated, CapNone)
	require.NoError(t, err)
	require.Equal(t, d("19"), uncapped.Total.UPnl)

	capped, err := ComputeByCounterparty(positions, prices, allocated, CapAllocatedCollateral)
	require.NoError(t, err)
	require.Len(t, capped.Groups, 2)
	require.Equal(t, b1, capped.Groups[0].PartyB)
	require.True(t, capped.Groups[0].Capped)
	require.Equal(t, d("4"), capped.Groups[0].Contribution)
	require.False(t, capped.Groups[1].Capped)
	require.Equal(t, d("13"), capped.Total.UPnl)

	require.Equal(t, uncapped.Total.Loss, capped.Total.Loss)
	require.Equal(t, uncapped.Total.NotionalValueSum, capped.Total.NotionalValueSum)

	plain, err := Compute(positions, prices)
	require.NoError(t, err)
	require.Equal(t, plain, uncapped.Total)
}

func TestCounterpartyCapRequiresAllocation(t *testing.T) {
	positions := []chain.Position{position(1, chain.Long, "1", "0", "1", b1)}
	_, err := ComputeByCounterparty(positions, []fixed.Int{d("2")}, nil, CapAllocatedCollateral)
	require.ErrorIs(t, err, oracleerr.ErrInvalidParams)
}

func TestNegativeGroupIsNotCapped(t *testing.T) {
	positions := []chain.Position{position(1, chain.Short, "100", "0", "1", b1)}
	res, err := ComputeByCounterparty(positions, []fixed.Int{d("2")}, map[common.Address]fixed.Int{b1: d("1")}, CapAllocatedCollateral)
	require.NoError(t, err)
	require.Equal(t, d("-100"), res.Total.UPnl)
	require.False(t, res.Groups[0].Capped)
}
