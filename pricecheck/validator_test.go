package pricecheck

import (
	"testing"

	"symmoracle/fixed"
	"symmoracle/marketdata"
	"symmoracle/oracleerr"
)

func d(s string) fixed.Int { return fixed.MustParseDecimal(s) }

func state(ref map[string]fixed.Int, lev map[string]uint64, others ...marketdata.Snapshot) marketdata.MarketState {
	st := marketdata.MarketState{
		Reference: "kucoin",
		Snapshots: map[string]marketdata.Snapshot{
			"kucoin": {Source: "kucoin", Prices: ref, MaxLeverage: lev},
		},
	}
	for _, snap := range others {
		st.Snapshots[snap.Source] = snap
	}
	return st
}

func snap(source string, prices map[string]fixed.Int) marketdata.Snapshot {
	return marketdata.Snapshot{Source: source, Prices: prices}
}

func TestFixedToleranceBoundary(t *testing.T) {
	v, err := New(FixedTolerance{Ratio: d("0.005")})
	if err != nil {
		t.Fatal(err)
	}
	ref := map[string]fixed.Int{"BTCUSDT": d("100")}

	cases := []struct {
		name  string
		price string
		kind  oracleerr.Kind
	}{
		{"above tolerance", "100.6", oracleerr.KindCorruptedPrice},
		{"within tolerance", "100.4", oracleerr.KindUnknown},
		{"exactly at tolerance", "100.5", oracleerr.KindUnknown},
		{"below reference", "99.4", oracleerr.KindCorruptedPrice},
		{"identical", "100", oracleerr.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := state(ref, nil, snap("binance", map[string]fixed.Int{"BTCUSDT": d(tc.price)}))
			err := v.Validate([]string{"BTCUSDT"}, st)
			if tc.kind == oracleerr.KindUnknown {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if oracleerr.KindOf(err) != tc.kind {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
		})
	}
}

func TestDeviationDetail(t *testing.T) {
	v, _ := New(FixedTolerance{Ratio: d("0.005")})
	st := state(map[string]fixed.Int{"BTCUSDT": d("100")}, nil,
		snap("binance", map[string]fixed.Int{"BTCUSDT": d("100.6")}))
	err := oracleerr.As(v.Validate([]string{"BTCUSDT"}, st))
	if err.Detail["deviation"] != "0.006" || err.Detail["source"] != "binance" || err.Detail["symbol"] != "BTCUSDT" {
		t.Fatalf("unexpected detail %v", err.Detail)
	}
}

func TestMissingReferencePrice(t *testing.T) {
	v, _ := New(FixedTolerance{Ratio: d("0.005")})
	st := state(map[string]fixed.Int{}, nil, snap("binance", map[string]fixed.Int{"BTCUSDT": d("1")}))
	if err := v.Validate([]string{"BTCUSDT"}, st); oracleerr.KindOf(err) != oracleerr.KindUndefinedReferencePrice {
		t.Fatalf("expected undefined reference price, got %v", err)
	}
}

func TestSingleSourceSymbol(t *testing.T) {
	v, _ := New(FixedTolerance{Ratio: d("0.005")})
	st := state(map[string]fixed.Int{"BTCUSDT": d("100")}, nil,
		snap("binance", map[string]fixed.Int{"ETHUSDT": d("1")}),
		snap("mexc", map[string]fixed.Int{}))
	if err := v.Validate([]string{"BTCUSDT"}, st); oracleerr.KindOf(err) != oracleerr.KindSingleSourceSymbol {
		t.Fatalf("expected single source symbol, got %v", err)
	}
}

func TestFirstFailureAborts(t *testing.T) {
	v, _ := New(FixedTolerance{Ratio: d("0.005")})
	st := state(map[string]fixed.Int{"ETHUSDT": d("10")}, nil,
		snap("binance", map[string]fixed.Int{"ETHUSDT": d("20")}))
	err := oracleerr.As(v.Validate([]string{"ETHUSDT", "BTCUSDT"}, st))
	if err.Kind != oracleerr.KindCorruptedPrice || err.Detail["symbol"] != "ETHUSDT" {
		t.Fatalf("expected ETHUSDT corruption first, got %v", err)
	}
}

func TestLeverageTolerance(t *testing.T) {
	v, _ := New(LeverageTolerance{})
	ref := map[string]fixed.Int{"BTCUSDT": d("100"), "ETHUSDT": d("100")}
	lev := map[string]uint64{"BTCUSDT": 100}

	// 1/100 allows one percent
	ok := state(ref, lev, snap("binance", map[string]fixed.Int{"BTCUSDT": d("100.9")}))
	if err := v.Validate([]string{"BTCUSDT"}, ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := state(ref, lev, snap("binance", map[string]fixed.Int{"BTCUSDT": d("101.1")}))
	if err := v.Validate([]string{"BTCUSDT"}, bad); oracleerr.KindOf(err) != oracleerr.KindCorruptedPrice {
		t.Fatalf("expected corrupted price, got %v", err)
	}
	missing := state(ref, lev, snap("binance", map[string]fixed.Int{"ETHUSDT": d("100")}))
	if err := v.Validate([]string{"ETHUSDT"}, missing); oracleerr.KindOf(err) != oracleerr.KindUndefinedReferencePrice {
		t.Fatalf("expected missing leverage to fail, got %v", err)
	}

	fallback, _ := New(LeverageTolerance{Fallback: d("0.01")})
	if err := fallback.Validate([]string{"ETHUSDT"}, missing); err != nil {
		t.Fatalf("fallback tolerance should apply: %v", err)
	}
}

func TestMatchPrices(t *testing.T) {
	st := state(map[string]fixed.Int{"A": d("1"), "B": d("2")}, nil)
	prices, err := MatchPrices([]string{"B", "A"}, st)
	if err != nil {
		t.Fatal(err)
	}
	if prices[0] != d("2") || prices[1] != d("1") {
		t.Fatalf("unexpected order %v", prices)
	}
	if _, err := MatchPrices([]string{"C"}, st); oracleerr.KindOf(err) != oracleerr.KindUndefinedReferencePrice {
		t.Fatalf("expected undefined reference price, got %v", err)
	}
}
