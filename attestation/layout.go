package attestation

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"symmoracle/api"
	"symmoracle/fixed"
	"symmoracle/oracleerr"
)

// TupleFor lays out the signing tuple of resp according to its method. The
// same response always yields byte-identical output.
func TupleFor(resp api.Response) (Tuple, error) {
	var l layout
	switch resp.Method {
	case api.MethodUPnlA:
		l.address(&resp.Symmio, "symmio")
		l.address(resp.PartyA, "partyA")
		l.unsigned(resp.Nonce, "nonce")
		l.signed(resp.UPnl, "uPnl")
		l.signed(resp.Loss, "loss")
	case api.MethodUPnlAWithSymbolPrice:
		l.address(&resp.Symmio, "symmio")
		l.address(resp.PartyA, "partyA")
		l.unsigned(resp.Nonce, "nonce")
		l.signed(resp.UPnl, "uPnl")
		l.signed(resp.Loss, "loss")
		l.id(resp.SymbolID, "symbolId")
		l.unsigned(resp.Price, "price")
	case api.MethodPartyAOverview, api.MethodVerify:
		l.address(&resp.Symmio, "symmio")
		l.address(resp.PartyA, "partyA")
		l.unsigned(resp.Nonce, "nonce")
		l.signed(resp.UPnl, "uPnl")
		l.signed(resp.Loss, "loss")
		l.ids(resp.SymbolIDs)
		l.array(resp.Prices)
	case api.MethodUPnl:
		l.address(&resp.Symmio, "symmio")
		l.address(resp.PartyB, "partyB")
		l.address(resp.PartyA, "partyA")
		l.unsigned(resp.NonceB, "nonceB")
		l.unsigned(resp.NonceA, "nonceA")
		l.signed(resp.UPnlB, "uPnlB")
		l.signed(resp.UPnlA, "uPnlA")
	case api.MethodUPnlWithSymbolPrice:
		l.address(&resp.Symmio, "symmio")
		l.address(resp.PartyB, "partyB")
		l.address(resp.PartyA, "partyA")
		l.unsigned(resp.NonceB, "nonceB")
		l.unsigned(resp.NonceA, "nonceA")
		l.signed(resp.UPnlB, "uPnlB")
		l.signed(resp.UPnlA, "uPnlA")
		l.id(resp.SymbolID, "symbolId")
		l.unsigned(resp.Price, "price")
	case api.MethodPrice:
		l.address(&resp.Symmio, "symmio")
		l.ids(resp.QuoteIDs)
		l.array(resp.Prices)
	default:
		return nil, oracleerr.New(oracleerr.KindUnknownMethod, "method", resp.Method)
	}
	l.out = append(l.out, Uint256(fixed.FromUint64(uint64(resp.Timestamp))))
	l.out = append(l.out, Uint256(fixed.FromUint64(uint64(resp.ChainID))))
	if l.err != nil {
		return nil, oracleerr.Wrap(oracleerr.KindUnknown, l.err, "method", resp.Method)
	}
	return l.out, nil
}

// layout accumulates values and keeps the first missing-field error.
type layout struct {
	out Tuple
	err error
}

func (l *layout) fail(field string) {
	if l.err == nil {
		l.err = fmt.Errorf("response is missing %s", field)
	}
}

func (l *layout) address(a *common.Address, field string) {
	if a == nil {
		l.fail(field)
		return
	}
	l.out = append(l.out, Address(*a))
}

func (l *layout) unsigned(x *fixed.Int, field string) {
	if x == nil {
		l.fail(field)
		return
	}
	l.out = append(l.out, Uint256(*x))
}

func (l *layout) signed(x *fixed.Int, field string) {
	if x == nil {
		l.fail(field)
		return
	}
	l.out = append(l.out, Int256(*x))
}

func (l *layout) id(x *api.Uint, field string) {
	if x == nil {
		l.fail(field)
		return
	}
	l.out = append(l.out, Uint256(fixed.FromUint64(uint64(*x))))
}

func (l *layout) ids(xs []api.Uint) {
	words := make([]fixed.Int, len(xs))
	for i, x := range xs {
		words[i] = fixed.FromUint64(uint64(x))
	}
	l.out = append(l.out, Uint256Array(words))
}

func (l *layout) array(xs []fixed.Int) {
	l.out = append(l.out, Uint256Array(xs))
}
