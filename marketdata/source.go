// Package marketdata fetches mark prices from independent futures venues,
// normalises their symbol names and assembles the market state the validator
// checks against.
package marketdata

import (
	"context"
	"sort"

	"symmoracle/fixed"
)

// Source resolves one venue's full price snapshot.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (Snapshot, error)
}

// Snapshot holds one venue's prices keyed by canonical symbol name. All
// prices carry 18 decimals.
type Snapshot struct {
	Source      string               `json:"source"`
	Prices      map[string]fixed.Int `json:"prices"`
	MaxLeverage map[string]uint64    `json:"maxLeverage,omitempty"`
}

func newSnapshot(source string) Snapshot {
	return Snapshot{Source: source, Prices: make(map[string]fixed.Int)}
}

// Price returns the symbol's price when the venue lists it.
func (s Snapshot) Price(symbol string) (fixed.Int, bool) {
	p, ok := s.Prices[symbol]
	return p, ok
}

// Filter keeps only the listed symbols. An empty list keeps everything.
func (s Snapshot) Filter(symbols []string) Snapshot {
	if len(symbols) == 0 {
		return s
	}
	out := Snapshot{Source: s.Source, Prices: make(map[string]fixed.Int, len(symbols))}
	for _, sym := range symbols {
		if p, ok := s.Prices[sym]; ok {
			out.Prices[sym] = p
		}
		if lev, ok := s.MaxLeverage[sym]; ok {
			if out.MaxLeverage == nil {
				out.MaxLeverage = make(map[string]uint64)
			}
			out.MaxLeverage[sym] = lev
		}
	}
	return out
}

// MarketState is the cross-venue view of one request.
type MarketState struct {
	Reference string              `json:"reference"`
	Snapshots map[string]Snapshot `json:"snapshots"`
}

// ReferenceSnapshot returns the designated reference venue's snapshot.
func (m MarketState) ReferenceSnapshot() Snapshot {
	return m.Snapshots[m.Reference]
}

// ReferencePrice looks up symbol on the reference venue.
func (m MarketState) ReferencePrice(symbol string) (fixed.Int, bool) {
	return m.ReferenceSnapshot().Price(symbol)
}

// MaxLeverage reports the reference venue's leverage ceiling for symbol.
func (m MarketState) MaxLeverage(symbol string) (uint64, bool) {
	lev, ok := m.ReferenceSnapshot().MaxLeverage[symbol]
	return lev, ok && lev > 0
}

// Others returns the non-reference snapshots ordered by venue name.
func (m MarketState) Others() []Snapshot {
	names := make([]string, 0, len(m.Snapshots))
	for name := range m.Snapshots {
		if name != m.Reference {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]Snapshot, len(names))
	for i, name := range names {
		out[i] = m.Snapshots[name]
	}
	return out
}

// add parses a venue decimal and records it under symbol. Empty, malformed
// and non-positive quotes are dropped so they read as unlisted.
func (s *Snapshot) add(symbol, raw string) bool {
	if symbol == "" {
		return false
	}
	price, err := fixed.ParseDecimal(raw)
	if err != nil || price.Sign() <= 0 {
		return false
	}
	s.Prices[symbol] = price
	return true
}
