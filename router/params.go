package router

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"symmoracle/api"
	"symmoracle/fixed"
	"symmoracle/oracleerr"
)

// params is the union of every method's parameters.
type params struct {
	ChainID     *api.Uint       `json:"chainId"`
	Symmio      *common.Address `json:"symmio"`
	BlockNumber *api.Uint       `json:"blockNumber"`

	PartyA   *common.Address `json:"partyA"`
	PartyB   *common.Address `json:"partyB"`
	SymbolID *api.Uint       `json:"symbolId"`
	QuoteIDs []api.Uint      `json:"quoteIds"`

	// verify carries a previously produced overview.
	Nonce     *fixed.Int  `json:"nonce"`
	UPnl      *fixed.Int  `json:"uPnl"`
	Loss      *fixed.Int  `json:"loss"`
	SymbolIDs []api.Uint  `json:"symbolIds"`
	Prices    []fixed.Int `json:"prices"`
	Timestamp *api.Uint   `json:"timestamp"`
	Signature string      `json:"signature"`
	Start     *api.Uint   `json:"start"`
	Size      *api.Uint   `json:"size"`
}

func decodeParams(raw json.RawMessage) (params, error) {
	var p params
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return p, nil
	}
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return p, oracleerr.Wrap(oracleerr.KindInvalidParams, err)
	}
	return p, nil
}

func missing(name string) error {
	return oracleerr.New(oracleerr.KindInvalidParams, "param", name, "reason", "missing")
}

func (p params) chainID() (uint64, error) {
	if p.ChainID == nil {
		return 0, missing("chainId")
	}
	return uint64(*p.ChainID), nil
}

func (p params) symmio() common.Address {
	if p.Symmio == nil {
		return common.Address{}
	}
	return *p.Symmio
}

func (p params) partyA() (common.Address, error) {
	if p.PartyA == nil || *p.PartyA == (common.Address{}) {
		return common.Address{}, missing("partyA")
	}
	return *p.PartyA, nil
}

// parties returns both accounts and rejects identical ones.
func (p params) parties() (common.Address, common.Address, error) {
	a, err := p.partyA()
	if err != nil {
		return a, common.Address{}, err
	}
	if p.PartyB == nil || *p.PartyB == (common.Address{}) {
		return a, common.Address{}, missing("partyB")
	}
	b := *p.PartyB
	if a == b {
		return a, b, oracleerr.New(oracleerr.KindIdenticalParties, "partyA", a.Hex(), "partyB", b.Hex())
	}
	return a, b, nil
}

func (p params) symbolID() (uint64, error) {
	if p.SymbolID == nil {
		return 0, missing("symbolId")
	}
	return uint64(*p.SymbolID), nil
}

func (p params) quoteIDs() ([]uint64, error) {
	if len(p.QuoteIDs) == 0 {
		return nil, missing("quoteIds")
	}
	return api.Uint64s(p.QuoteIDs), nil
}

func (p params) signature() (string, error) {
	sig := strings.TrimSpace(p.Signature)
	if sig == "" {
		return "", missing("signature")
	}
	return sig, nil
}
