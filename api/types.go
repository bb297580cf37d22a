// Package api defines the request and response envelopes exchanged with the
// signing layer.
package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"symmoracle/fixed"
	"symmoracle/marketdata"
	"symmoracle/pnl"
)

// Method names understood by the router.
const (
	MethodUPnlA                = "uPnl_A"
	MethodUPnlAWithSymbolPrice = "uPnl_A_withSymbolPrice"
	MethodPartyAOverview       = "partyA_overview"
	MethodUPnl                 = "uPnl"
	MethodUPnlWithSymbolPrice  = "uPnl_withSymbolPrice"
	MethodPrice                = "price"
	MethodVerify               = "verify"
)

// Request is the inbound envelope.
type Request struct {
	Method string `json:"method"`
	Data   Data   `json:"data"`
}

// Data carries method parameters, an optional caller timestamp and an
// optional seed result produced by the proposing node.
type Data struct {
	Params    json.RawMessage `json:"params,omitempty"`
	Timestamp *Uint           `json:"timestamp,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// HasSeed reports whether the request carries a proposer result.
func (d Data) HasSeed() bool {
	trimmed := strings.TrimSpace(string(d.Result))
	return trimmed != "" && trimmed != "null"
}

// Seed decodes the proposer result.
func (d Data) Seed() (Response, error) {
	var seed Response
	if !d.HasSeed() {
		return seed, fmt.Errorf("no seed result")
	}
	if err := json.Unmarshal(d.Result, &seed); err != nil {
		return seed, fmt.Errorf("decode seed result: %w", err)
	}
	return seed, nil
}

// Response is the union of every method's output. Fields a method does not
// produce are left nil.
type Response struct {
	Method      string         `json:"method"`
	ChainID     Uint           `json:"chainId"`
	Symmio      common.Address `json:"symmio"`
	Timestamp   Uint           `json:"timestamp"`
	BlockNumber *Uint          `json:"blockNumber,omitempty"`

	PartyA *common.Address `json:"partyA,omitempty"`
	PartyB *common.Address `json:"partyB,omitempty"`

	Nonce  *fixed.Int `json:"nonce,omitempty"`
	NonceA *fixed.Int `json:"nonceA,omitempty"`
	NonceB *fixed.Int `json:"nonceB,omitempty"`

	UPnl             *fixed.Int `json:"uPnl,omitempty"`
	Loss             *fixed.Int `json:"loss,omitempty"`
	NotionalValueSum *fixed.Int `json:"notionalValueSum,omitempty"`

	UPnlA             *fixed.Int `json:"uPnlA,omitempty"`
	UPnlB             *fixed.Int `json:"uPnlB,omitempty"`
	NotionalValueSumA *fixed.Int `json:"notionalValueSumA,omitempty"`
	NotionalValueSumB *fixed.Int `json:"notionalValueSumB,omitempty"`

	SymbolID *Uint      `json:"symbolId,omitempty"`
	Price    *fixed.Int `json:"price,omitempty"`

	PositionsCount *Uint       `json:"positionsCount,omitempty"`
	SymbolIDs      []Uint      `json:"symbolIds,omitempty"`
	QuoteIDs       []Uint      `json:"quoteIds,omitempty"`
	Prices         []fixed.Int `json:"prices,omitempty"`

	Counterparties []pnl.GroupResult       `json:"counterparties,omitempty"`
	MarketState    *marketdata.MarketState `json:"marketState,omitempty"`
}

// Uint is a uint64 that decodes from a JSON number or a decimal or 0x-prefixed
// string and encodes as a number.
type Uint uint64

// UnmarshalJSON implements json.Unmarshaler.
func (u *Uint) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	v, err := ParseUint(raw)
	if err != nil {
		return err
	}
	*u = Uint(v)
	return nil
}

// ParseUint parses a decimal or 0x-prefixed hex integer.
func ParseUint(raw string) (uint64, error) {
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		return strconv.ParseUint(raw[2:], 16, 64)
	}
	return strconv.ParseUint(raw, 10, 64)
}

// Uints converts ids for JSON output.
func Uints(ids []uint64) []Uint {
	out := make([]Uint, len(ids))
	for i, id := range ids {
		out[i] = Uint(id)
	}
	return out
}

// Uint64s undoes Uints.
func Uint64s(ids []Uint) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
