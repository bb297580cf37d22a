package marketdata

import (
	"fmt"
	"strings"

	"symmoracle/fixed"
)

// Normalizer maps a venue's instrument name onto the canonical BASEQUOTE form
// used on chain, e.g. "BTC_USDT" or "BTCUSDTM" to "BTCUSDT".
type Normalizer struct {
	// Separator is removed wherever it appears.
	Separator string
	// TrimSuffix is stripped once from the end of the name.
	TrimSuffix string
}

// Apply returns the canonical name.
func (n Normalizer) Apply(raw string) string {
	name := strings.ToUpper(strings.TrimSpace(raw))
	if n.Separator != "" {
		name = strings.ReplaceAll(name, strings.ToUpper(n.Separator), "")
	}
	if n.TrimSuffix != "" {
		name = strings.TrimSuffix(name, strings.ToUpper(n.TrimSuffix))
	}
	return name
}

// AliasRule derives the price of To from the price of From on one venue.
type AliasRule struct {
	// Source restricts the rule to one venue. Empty applies everywhere.
	Source string
	From   string
	To     string
	// Multiplier scales the source price, 18 decimals. Zero means 1x.
	Multiplier fixed.Int
	// KeepSource leaves From in the snapshot alongside To.
	KeepSource bool
}

func (r AliasRule) validate() error {
	if strings.TrimSpace(r.From) == "" || strings.TrimSpace(r.To) == "" {
		return fmt.Errorf("alias rule requires from and to")
	}
	if r.From == r.To {
		return fmt.Errorf("alias rule %s maps onto itself", r.From)
	}
	if r.Multiplier.Sign() < 0 {
		return fmt.Errorf("alias rule %s: negative multiplier", r.From)
	}
	return nil
}

// AliasTable is an ordered list of rules applied after normalisation.
type AliasTable []AliasRule

// NewAliasTable validates rules and canonicalises their symbol names.
func NewAliasTable(rules ...AliasRule) (AliasTable, error) {
	out := make(AliasTable, 0, len(rules))
	for _, rule := range rules {
		rule.Source = strings.TrimSpace(rule.Source)
		rule.From = strings.ToUpper(strings.TrimSpace(rule.From))
		rule.To = strings.ToUpper(strings.TrimSpace(rule.To))
		if err := rule.validate(); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// Apply rewrites snap in table order. It mutates snap's maps.
func (t AliasTable) Apply(snap Snapshot) (Snapshot, error) {
	for _, rule := range t {
		if rule.Source != "" && !strings.EqualFold(rule.Source, snap.Source) {
			continue
		}
		price, ok := snap.Prices[rule.From]
		if !ok {
			continue
		}
		derived := price
		if !rule.Multiplier.IsZero() {
			var err error
			if derived, err = price.MulDiv(rule.Multiplier, fixed.Scale); err != nil {
				return Snapshot{}, fmt.Errorf("alias %s -> %s: %w", rule.From, rule.To, err)
			}
		}
		snap.Prices[rule.To] = derived
		if lev, ok := snap.MaxLeverage[rule.From]; ok {
			snap.MaxLeverage[rule.To] = lev
		}
		if !rule.KeepSource {
			delete(snap.Prices, rule.From)
			delete(snap.MaxLeverage, rule.From)
		}
	}
	return snap, nil
}
