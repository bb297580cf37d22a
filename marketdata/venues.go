package marketdata

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	defaultBinanceEndpoint = "https://fapi.binance.com/fapi/v1/premiumIndex"
	defaultKucoinEndpoint  = "https://api-futures.kucoin.com/api/v1/contracts/active"
	defaultMexcEndpoint    = "https://contract.mexc.com/api/v1/contract/ticker"
)

// Canonical name rules per venue.
var (
	binanceNames = Normalizer{}
	kucoinNames  = Normalizer{TrimSuffix: "M"}
	mexcNames    = Normalizer{Separator: "_"}
)

// binanceSource reads USDⓈ-M mark prices from the premium index.
type binanceSource struct {
	name     string
	endpoint string
	fetch    *fetcher
	names    Normalizer
}

func (s *binanceSource) Name() string { return s.name }

func (s *binanceSource) Fetch(ctx context.Context) (Snapshot, error) {
	var payload []struct {
		Symbol    string `json:"symbol"`
		MarkPrice string `json:"markPrice"`
	}
	if err := s.fetch.getJSON(ctx, s.endpoint, &payload); err != nil {
		return Snapshot{}, err
	}
	snap := newSnapshot(s.name)
	for _, entry := range payload {
		snap.add(s.names.Apply(entry.Symbol), entry.MarkPrice)
	}
	return snap, nil
}

// kucoinSource reads active futures contracts, which also carry the venue's
// leverage ceiling per instrument.
type kucoinSource struct {
	name     string
	endpoint string
	fetch    *fetcher
	names    Normalizer
}

func (s *kucoinSource) Name() string { return s.name }

func (s *kucoinSource) Fetch(ctx context.Context) (Snapshot, error) {
	var payload struct {
		Code string `json:"code"`
		Data []struct {
			Symbol      string      `json:"symbol"`
			MarkPrice   json.Number `json:"markPrice"`
			MaxLeverage json.Number `json:"maxLeverage"`
		} `json:"data"`
	}
	if err := s.fetch.getJSON(ctx, s.endpoint, &payload); err != nil {
		return Snapshot{}, err
	}
	if payload.Code != "200000" {
		return Snapshot{}, fmt.Errorf("%s: api code %s", s.name, payload.Code)
	}
	snap := newSnapshot(s.name)
	snap.MaxLeverage = make(map[string]uint64)
	for _, entry := range payload.Data {
		symbol := s.names.Apply(entry.Symbol)
		if !snap.add(symbol, entry.MarkPrice.String()) {
			continue
		}
		if lev, ok := parseLeverage(entry.MaxLeverage); ok {
			snap.MaxLeverage[symbol] = lev
		}
	}
	return snap, nil
}

func parseLeverage(raw json.Number) (uint64, bool) {
	if raw == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(raw.String())
	if err != nil || !d.IsPositive() {
		return 0, false
	}
	return uint64(d.IntPart()), d.IntPart() > 0
}

// mexcSource reads contract tickers and uses the fair price.
type mexcSource struct {
	name     string
	endpoint string
	fetch    *fetcher
	names    Normalizer
}

func (s *mexcSource) Name() string { return s.name }

func (s *mexcSource) Fetch(ctx context.Context) (Snapshot, error) {
	var payload struct {
		Success bool `json:"success"`
		Code    int  `json:"code"`
		Data    []struct {
			Symbol    string      `json:"symbol"`
			FairPrice json.Number `json:"fairPrice"`
		} `json:"data"`
	}
	if err := s.fetch.getJSON(ctx, s.endpoint, &payload); err != nil {
		return Snapshot{}, err
	}
	if !payload.Success {
		return Snapshot{}, fmt.Errorf("%s: api code %d", s.name, payload.Code)
	}
	snap := newSnapshot(s.name)
	for _, entry := range payload.Data {
		snap.add(s.names.Apply(entry.Symbol), entry.FairPrice.String())
	}
	return snap, nil
}
