// Package attestation turns a computed response into the ordered typed
// pre-image that nodes sign, after checking the node agrees with the
// proposer's seed.
package attestation

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"symmoracle/api"
	"symmoracle/fixed"
	"symmoracle/oracleerr"
)

// Builder checks seeds and lays out signing tuples.
type Builder struct {
	pnlTolerance   fixed.Int
	priceTolerance fixed.Int
}

// NewBuilder returns a builder. Both tolerances carry 18 decimals.
func NewBuilder(pnlTolerance, priceTolerance fixed.Int) (*Builder, error) {
	if pnlTolerance.Sign() < 0 || priceTolerance.Sign() < 0 {
		return nil, fmt.Errorf("tolerances must not be negative")
	}
	return &Builder{pnlTolerance: pnlTolerance, priceTolerance: priceTolerance}, nil
}

// SigningTuple returns the method's signing tuple. With a seed present the
// tuple carries the seed's figures once own reproduces them within tolerance,
// so every agreeing node signs the same bytes. verify responses are gated by
// a signature instead of a seed.
func (b *Builder) SigningTuple(req api.Request, own api.Response) (Tuple, error) {
	if req.Method != own.Method {
		return nil, fmt.Errorf("response for %q does not answer %q", own.Method, req.Method)
	}
	signed := own
	if req.Method != api.MethodVerify && req.Data.HasSeed() {
		seed, err := req.Data.Seed()
		if err != nil {
			return nil, oracleerr.Wrap(oracleerr.KindInvalidParams, err, "param", "result")
		}
		if signed, err = b.Agree(own, seed); err != nil {
			return nil, err
		}
	}
	return TupleFor(signed)
}

// Agree checks seed against own and returns the response to sign: own's
// identifiers with the seed's figures substituted for the ones checked
// within tolerance. Identifiers have no tolerance and must match exactly.
func (b *Builder) Agree(own, seed api.Response) (api.Response, error) {
	if err := b.CheckSeed(own, seed); err != nil {
		return api.Response{}, err
	}
	if err := sameIdentifiers(own, seed); err != nil {
		return api.Response{}, err
	}
	signed := own
	switch own.Method {
	case api.MethodUPnlA, api.MethodUPnlAWithSymbolPrice, api.MethodPartyAOverview:
		signed.UPnl = api.Ptr(*seed.UPnl)
		signed.Loss = api.Ptr(*seed.Loss)
	case api.MethodUPnl, api.MethodUPnlWithSymbolPrice:
		signed.UPnlA = api.Ptr(*seed.UPnlA)
		signed.UPnlB = api.Ptr(*seed.UPnlB)
	}
	switch own.Method {
	case api.MethodUPnlAWithSymbolPrice, api.MethodUPnlWithSymbolPrice:
		signed.Price = api.Ptr(*seed.Price)
	case api.MethodPartyAOverview, api.MethodPrice:
		signed.Prices = append([]fixed.Int{}, seed.Prices...)
	}
	return signed, nil
}

// CheckSeed verifies that every figure the seed claims is reproduced by own
// within tolerance. A seed missing a figure the method signs is rejected.
func (b *Builder) CheckSeed(own, seed api.Response) error {
	switch own.Method {
	case api.MethodUPnlA, api.MethodUPnlAWithSymbolPrice, api.MethodPartyAOverview:
		if err := b.checkUPnl("uPnl", own.UPnl, seed.UPnl, own.NotionalValueSum); err != nil {
			return err
		}
		if err := b.checkLoss(own.Loss, seed.Loss, own.NotionalValueSum); err != nil {
			return err
		}
	case api.MethodUPnl, api.MethodUPnlWithSymbolPrice:
		if err := b.checkUPnl("uPnlA", own.UPnlA, seed.UPnlA, own.NotionalValueSumA); err != nil {
			return err
		}
		if err := b.checkUPnl("uPnlB", own.UPnlB, seed.UPnlB, own.NotionalValueSumB); err != nil {
			return err
		}
	case api.MethodPrice:
	default:
		return oracleerr.New(oracleerr.KindUnknownMethod, "method", own.Method)
	}

	switch own.Method {
	case api.MethodUPnlAWithSymbolPrice, api.MethodUPnlWithSymbolPrice:
		return b.checkPrice("price", own.Price, seed.Price)
	case api.MethodPartyAOverview, api.MethodPrice:
		if len(seed.Prices) != len(own.Prices) {
			return oracleerr.New(oracleerr.KindPriceTolerance,
				"field", "prices",
				"own", strconv.Itoa(len(own.Prices)),
				"claimed", strconv.Itoa(len(seed.Prices)))
		}
		for i := range own.Prices {
			if err := b.checkPrice("prices["+strconv.Itoa(i)+"]", &own.Prices[i], &seed.Prices[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Builder) checkUPnl(field string, own, claimed, notional *fixed.Int) error {
	if own == nil || notional == nil {
		return missingOwn(field)
	}
	if claimed == nil {
		return oracleerr.New(oracleerr.KindUPnlTolerance, "field", field, "claimed", "missing")
	}
	if !UPnlWithinTolerance(*own, *claimed, *notional, b.pnlTolerance) {
		return disagreement(oracleerr.KindUPnlTolerance, field, *own, *claimed)
	}
	return nil
}

func (b *Builder) checkLoss(own, claimed, notional *fixed.Int) error {
	if own == nil || notional == nil {
		return missingOwn("loss")
	}
	if claimed == nil {
		return oracleerr.New(oracleerr.KindLossTolerance, "field", "loss", "claimed", "missing")
	}
	if !UPnlWithinTolerance(*own, *claimed, *notional, b.pnlTolerance) {
		return disagreement(oracleerr.KindLossTolerance, "loss", *own, *claimed)
	}
	return nil
}

func (b *Builder) checkPrice(field string, own, claimed *fixed.Int) error {
	if own == nil {
		return missingOwn(field)
	}
	if claimed == nil {
		return oracleerr.New(oracleerr.KindPriceTolerance, "field", field, "claimed", "missing")
	}
	if !PriceWithinTolerance(*own, *claimed, b.priceTolerance) {
		return disagreement(oracleerr.KindPriceTolerance, field, *own, *claimed)
	}
	return nil
}

// sameIdentifiers requires the seed to echo every signed field that is not
// a computed figure.
func sameIdentifiers(own, seed api.Response) error {
	if own.ChainID != seed.ChainID {
		return mismatch("chainId", uintString(own.ChainID), uintString(seed.ChainID))
	}
	if own.Symmio != seed.Symmio {
		return mismatch("symmio", own.Symmio.Hex(), seed.Symmio.Hex())
	}
	if own.Timestamp != seed.Timestamp {
		return mismatch("timestamp", uintString(own.Timestamp), uintString(seed.Timestamp))
	}
	if own.BlockNumber != nil {
		if err := sameUint("blockNumber", own.BlockNumber, seed.BlockNumber); err != nil {
			return err
		}
	}

	var checks []error
	switch own.Method {
	case api.MethodUPnlA, api.MethodUPnlAWithSymbolPrice, api.MethodPartyAOverview:
		checks = append(checks,
			sameAddress("partyA", own.PartyA, seed.PartyA),
			sameInt("nonce", own.Nonce, seed.Nonce))
	case api.MethodUPnl, api.MethodUPnlWithSymbolPrice:
		checks = append(checks,
			sameAddress("partyA", own.PartyA, seed.PartyA),
			sameAddress("partyB", own.PartyB, seed.PartyB),
			sameInt("nonceA", own.NonceA, seed.NonceA),
			sameInt("nonceB", own.NonceB, seed.NonceB))
	}
	switch own.Method {
	case api.MethodUPnlAWithSymbolPrice, api.MethodUPnlWithSymbolPrice:
		checks = append(checks, sameUint("symbolId", own.SymbolID, seed.SymbolID))
	case api.MethodPartyAOverview:
		checks = append(checks, sameUints("symbolIds", own.SymbolIDs, seed.SymbolIDs))
	case api.MethodPrice:
		checks = append(checks, sameUints("quoteIds", own.QuoteIDs, seed.QuoteIDs))
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

func sameAddress(field string, own, claimed *common.Address) error {
	switch {
	case own == nil:
		return missingOwn(field)
	case claimed == nil:
		return mismatch(field, own.Hex(), "missing")
	case *own != *claimed:
		return mismatch(field, own.Hex(), claimed.Hex())
	}
	return nil
}

func sameInt(field string, own, claimed *fixed.Int) error {
	switch {
	case own == nil:
		return missingOwn(field)
	case claimed == nil:
		return mismatch(field, own.String(), "missing")
	case own.Cmp(*claimed) != 0:
		return mismatch(field, own.String(), claimed.String())
	}
	return nil
}

func sameUint(field string, own, claimed *api.Uint) error {
	switch {
	case own == nil:
		return missingOwn(field)
	case claimed == nil:
		return mismatch(field, uintString(*own), "missing")
	case *own != *claimed:
		return mismatch(field, uintString(*own), uintString(*claimed))
	}
	return nil
}

func sameUints(field string, own, claimed []api.Uint) error {
	if len(own) != len(claimed) {
		return mismatch(field, strconv.Itoa(len(own)), strconv.Itoa(len(claimed)))
	}
	for i := range own {
		if own[i] != claimed[i] {
			return mismatch(field+"["+strconv.Itoa(i)+"]", uintString(own[i]), uintString(claimed[i]))
		}
	}
	return nil
}

func uintString(v api.Uint) string { return strconv.FormatUint(uint64(v), 10) }

func mismatch(field, own, claimed string) error {
	return oracleerr.New(oracleerr.KindSeedMismatch, "field", field, "own", own, "claimed", claimed)
}

func disagreement(kind oracleerr.Kind, field string, own, claimed fixed.Int) error {
	return oracleerr.New(kind, "field", field, "own", own.String(), "claimed", claimed.String())
}

func missingOwn(field string) error {
	return oracleerr.Wrap(oracleerr.KindUnknown, fmt.Errorf("response is missing %s", field))
}
