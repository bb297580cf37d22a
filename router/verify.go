package router

import (
	"context"
	"strconv"

	"symmoracle/api"
	"symmoracle/attestation"
	"symmoracle/crypto"
	"symmoracle/fixed"
	"symmoracle/oracleerr"
)

// handleVerify re-derives the overview pre-image from the supplied figures,
// checks the signature over it and returns the requested window of the
// symbol and price arrays. Nothing is returned unless the signature holds.
func (r *Router) handleVerify(_ context.Context, _ api.Request, p params) (api.Response, error) {
	chainID, err := p.chainID()
	if err != nil {
		return api.Response{}, err
	}
	if p.Symmio == nil {
		return api.Response{}, missing("symmio")
	}
	partyA, err := p.partyA()
	if err != nil {
		return api.Response{}, err
	}
	switch {
	case p.Nonce == nil:
		return api.Response{}, missing("nonce")
	case p.UPnl == nil:
		return api.Response{}, missing("uPnl")
	case p.Loss == nil:
		return api.Response{}, missing("loss")
	case p.Timestamp == nil:
		return api.Response{}, missing("timestamp")
	case p.Start == nil:
		return api.Response{}, missing("start")
	case p.Size == nil:
		return api.Response{}, missing("size")
	}
	if len(p.SymbolIDs) != len(p.Prices) {
		return api.Response{}, oracleerr.New(oracleerr.KindInvalidParams,
			"symbolIds", strconv.Itoa(len(p.SymbolIDs)),
			"prices", strconv.Itoa(len(p.Prices)))
	}
	rawSig, err := p.signature()
	if err != nil {
		return api.Response{}, err
	}
	sig, err := crypto.DecodeSignature(rawSig)
	if err != nil {
		return api.Response{}, oracleerr.Wrap(oracleerr.KindInvalidParams, err, "param", "signature")
	}

	overview := api.Response{
		Method:    api.MethodPartyAOverview,
		ChainID:   api.Uint(chainID),
		Symmio:    *p.Symmio,
		Timestamp: *p.Timestamp,
		PartyA:    api.Ptr(partyA),
		Nonce:     p.Nonce,
		UPnl:      p.UPnl,
		Loss:      p.Loss,
		SymbolIDs: p.SymbolIDs,
		Prices:    p.Prices,
	}
	tuple, err := attestation.TupleFor(overview)
	if err != nil {
		return api.Response{}, oracleerr.Wrap(oracleerr.KindInvalidParams, err)
	}
	digest, err := tuple.Hash()
	if err != nil {
		return api.Response{}, oracleerr.Wrap(oracleerr.KindInvalidParams, err)
	}
	if err := r.verifier.Verify(digest, sig, r.verifySigner); err != nil {
		return api.Response{}, oracleerr.Wrap(oracleerr.KindSignatureNotVerified, err)
	}

	start, size := uint64(*p.Start), uint64(*p.Size)
	total := uint64(len(p.SymbolIDs))
	if start > total {
		return api.Response{}, oracleerr.New(oracleerr.KindInvalidParams,
			"start", strconv.FormatUint(start, 10),
			"length", strconv.FormatUint(total, 10))
	}
	end := total
	if size < total-start {
		end = start + size
	}

	resp := overview
	resp.Method = api.MethodVerify
	resp.SymbolIDs = append([]api.Uint{}, p.SymbolIDs[start:end]...)
	resp.Prices = append([]fixed.Int{}, p.Prices[start:end]...)
	return resp, nil
}
