package attestation

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"symmoracle/api"
	"symmoracle/fixed"
	"symmoracle/oracleerr"
)

var (
	symmio = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	partyA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	partyB = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func d(s string) fixed.Int { return fixed.MustParseDecimal(s) }

func upnlA() api.Response {
	return api.Response{
		Method:           api.MethodUPnlA,
		ChainID:          42161,
		Symmio:           symmio,
		Timestamp:        1700000000,
		PartyA:           api.Ptr(partyA),
		Nonce:            api.Ptr(fixed.FromUint64(7)),
		UPnl:             api.Ptr(d("-12.5")),
		Loss:             api.Ptr(d("-20")),
		NotionalValueSum: api.Ptr(d("1000")),
	}
}

func request(method string, seed interface{}) api.Request {
	req := api.Request{Method: method}
	if seed != nil {
		raw, err := json.Marshal(seed)
		if err != nil {
			panic(err)
		}
		req.Data.Result = raw
	}
	return req
}

func TestUPnlTolerance(t *testing.T) {
	tol := d("0.001")
	notional := d("1000")
	if !UPnlWithinTolerance(d("10"), d("11"), notional, tol) {
		t.Fatal("deviation equal to tol*notional must pass")
	}
	if UPnlWithinTolerance(d("10"), d("11.000000001"), notional, tol) {
		t.Fatal("deviation above tol*notional must fail")
	}
	if !UPnlWithinTolerance(d("5"), fixed.Zero, fixed.Zero, tol) {
		t.Fatal("zero notional accepts a zero claim")
	}
	if UPnlWithinTolerance(fixed.Zero, d("0.000000000000000001"), fixed.Zero, tol) {
		t.Fatal("zero notional rejects any non-zero claim")
	}
}

func TestPriceTolerance(t *testing.T) {
	tol := d("0.005")
	for _, p := range []string{"1", "100", "65000.123"} {
		if !PriceWithinTolerance(d(p), d(p), fixed.Zero) {
			t.Fatalf("identical price %s must pass at zero tolerance", p)
		}
	}
	if !PriceWithinTolerance(d("100.5"), d("100"), tol) {
		t.Fatal("0.5% deviation must pass")
	}
	if PriceWithinTolerance(d("100.6"), d("100"), tol) {
		t.Fatal("0.6% deviation must fail")
	}
	// relative to the claim, not the node's own price
	if PriceWithinTolerance(d("100"), d("99.5"), tol) {
		t.Fatal("0.5/99.5 exceeds half a percent")
	}
	if !PriceWithinTolerance(fixed.Zero, fixed.Zero, tol) || PriceWithinTolerance(d("1"), fixed.Zero, tol) {
		t.Fatal("zero claim only accepts zero")
	}
}

func TestTupleLayoutUPnlA(t *testing.T) {
	tuple, err := TupleFor(upnlA())
	require.NoError(t, err)
	types := make([]Type, len(tuple))
	for i, v := range tuple {
		types[i] = v.Type
	}
	require.Equal(t, []Type{TypeAddress, TypeAddress, TypeUint256, TypeInt256, TypeInt256, TypeUint256, TypeUint256}, types)

	packed, err := tuple.Packed()
	require.NoError(t, err)
	require.Len(t, packed, 20+20+5*32)
	require.Equal(t, symmio.Bytes(), packed[:20])
	// uPnl is negative and encodes as two's complement
	require.Equal(t, byte(0xff), packed[40+32])

	hash, err := tuple.Hash()
	require.NoError(t, err)
	require.Equal(t, crypto.Keccak256Hash(packed), hash)
}

func TestTupleLayoutArrays(t *testing.T) {
	resp := api.Response{
		Method:    api.MethodPrice,
		ChainID:   1,
		Symmio:    symmio,
		Timestamp: 5,
		QuoteIDs:  api.Uints([]uint64{3, 9}),
		Prices:    []fixed.Int{d("1"), d("2")},
	}
	tuple, err := TupleFor(resp)
	require.NoError(t, err)
	require.Len(t, tuple, 5)
	packed, err := tuple.Packed()
	require.NoError(t, err)
	require.Len(t, packed, 20+4*32+2*32)

	raw, err := json.Marshal(tuple)
	require.NoError(t, err)
	require.Contains(t, string(raw), `{"type":"uint256[]","value":["3","9"]}`)
}

func TestTupleRejectsMissingFields(t *testing.T) {
	resp := upnlA()
	resp.Nonce = nil
	_, err := TupleFor(resp)
	require.Error(t, err)

	resp = upnlA()
	resp.Method = "bogus"
	_, err = TupleFor(resp)
	require.ErrorIs(t, err, oracleerr.ErrUnknownMethod)
}

func TestNegativeUnsignedIsRejected(t *testing.T) {
	_, err := Tuple{Uint256(d("-1"))}.Packed()
	require.Error(t, err)
}

func TestSigningTupleDeterministic(t *testing.T) {
	b, err := NewBuilder(d("0.001"), d("0.005"))
	require.NoError(t, err)
	first, err := b.SigningTuple(request(api.MethodUPnlA, nil), upnlA())
	require.NoError(t, err)
	second, err := b.SigningTuple(request(api.MethodUPnlA, nil), upnlA())
	require.NoError(t, err)
	p1, _ := first.Packed()
	p2, _ := second.Packed()
	require.True(t, bytes.Equal(p1, p2))
	j1, _ := json.Marshal(first)
	j2, _ := json.Marshal(second)
	require.Equal(t, j1, j2)
}

func TestSeedAgreement(t *testing.T) {
	b, err := NewBuilder(d("0.001"), d("0.005"))
	require.NoError(t, err)

	seed := upnlA()
	seed.UPnl = api.Ptr(d("-12.9"))
	_, err = b.SigningTuple(request(api.MethodUPnlA, seed), upnlA())
	require.NoError(t, err)

	seed.UPnl = api.Ptr(d("-14"))
	_, err = b.SigningTuple(request(api.MethodUPnlA, seed), upnlA())
	require.ErrorIs(t, err, oracleerr.ErrUPnlTolerance)

	seed = upnlA()
	seed.Loss = api.Ptr(d("-25"))
	_, err = b.SigningTuple(request(api.MethodUPnlA, seed), upnlA())
	require.ErrorIs(t, err, oracleerr.ErrLossTolerance)

	seed = upnlA()
	seed.Loss = nil
	_, err = b.SigningTuple(request(api.MethodUPnlA, seed), upnlA())
	require.ErrorIs(t, err, oracleerr.ErrLossTolerance)
}

func TestSeedPriceAgreement(t *testing.T) {
	b, _ := NewBuilder(d("0.001"), d("0.005"))
	own := upnlA()
	own.Method = api.MethodUPnlAWithSymbolPrice
	own.SymbolID = api.Ptr(api.Uint(4))
	own.Price = api.Ptr(d("100"))

	seed := own
	seed.Price = api.Ptr(d("100.4"))
	_, err := b.SigningTuple(request(own.Method, seed), own)
	require.NoError(t, err)

	seed.Price = api.Ptr(d("101"))
	_, err = b.SigningTuple(request(own.Method, seed), own)
	require.ErrorIs(t, err, oracleerr.ErrPriceTolerance)
}

func TestSeedTwoAccount(t *testing.T) {
	b, _ := NewBuilder(d("0.01"), d("0.005"))
	own := api.Response{
		Method:            api.MethodUPnl,
		ChainID:           1,
		Symmio:            symmio,
		Timestamp:         1,
		PartyA:            api.Ptr(partyA),
		PartyB:            api.Ptr(partyB),
		NonceA:            api.Ptr(fixed.FromUint64(1)),
		NonceB:            api.Ptr(fixed.FromUint64(2)),
		UPnlA:             api.Ptr(d("10")),
		UPnlB:             api.Ptr(d("-10")),
		NotionalValueSumA: api.Ptr(d("100")),
		NotionalValueSumB: api.Ptr(fixed.Zero),
	}
	seed := own
	_, err := b.SigningTuple(request(own.Method, seed), own)
	require.ErrorIs(t, err, oracleerr.ErrUPnlTolerance, "zero notional on B requires a zero claim")

	own.NotionalValueSumB = api.Ptr(d("100"))
	seed = own
	seed.UPnlA = api.Ptr(d("10.9"))
	tuple, err := b.SigningTuple(request(own.Method, seed), own)
	require.NoError(t, err)
	require.Len(t, tuple, 9)
	require.Equal(t, TypeAddress, tuple[1].Type)
}

func TestMalformedSeed(t *testing.T) {
	b, _ := NewBuilder(d("0.001"), d("0.005"))
	req := api.Request{Method: api.MethodUPnlA, Data: api.Data{Result: json.RawMessage(`{"uPnl":[]}`)}}
	_, err := b.SigningTuple(req, upnlA())
	require.ErrorIs(t, err, oracleerr.ErrInvalidParams)
}

func TestAgreeingNodesSignSeedFigures(t *testing.T) {
	b, err := NewBuilder(d("0.001"), d("0.005"))
	require.NoError(t, err)

	seed := upnlA()
	seed.UPnl = api.Ptr(d("-12.9"))
	nodeA := upnlA()
	nodeB := upnlA()
	nodeB.UPnl = api.Ptr(d("-12.6"))
	nodeB.Loss = api.Ptr(d("-20.3"))

	first, err := b.SigningTuple(request(api.MethodUPnlA, seed), nodeA)
	require.NoError(t, err)
	second, err := b.SigningTuple(request(api.MethodUPnlA, seed), nodeB)
	require.NoError(t, err)
	p1, err := first.Packed()
	require.NoError(t, err)
	p2, err := second.Packed()
	require.NoError(t, err)
	require.Equal(t, p1, p2)

	want, err := TupleFor(seed)
	require.NoError(t, err)
	packed, err := want.Packed()
	require.NoError(t, err)
	require.Equal(t, packed, p1)
}

func TestAgreeingNodesSignSeedPrices(t *testing.T) {
	b, _ := NewBuilder(d("0.001"), d("0.005"))
	own := api.Response{
		Method:    api.MethodPrice,
		ChainID:   56,
		Symmio:    symmio,
		Timestamp: 9,
		QuoteIDs:  []api.Uint{7, 8},
		Prices:    []fixed.Int{d("100"), d("2")},
	}
	other := own
	other.Prices = []fixed.Int{d("100.1"), d("2.001")}
	seed := own
	seed.Prices = []fixed.Int{d("100.2"), d("2.002")}

	first, err := b.SigningTuple(request(own.Method, seed), own)
	require.NoError(t, err)
	second, err := b.SigningTuple(request(own.Method, seed), other)
	require.NoError(t, err)
	h1, _ := first.Hash()
	h2, _ := second.Hash()
	require.Equal(t, h1, h2)
	require.Equal(t, d("100"), own.Prices[0], "own response must not be mutated")
}

func TestSeedIdentifiersMustMatch(t *testing.T) {
	b, _ := NewBuilder(d("0.001"), d("0.005"))
	cases := []struct {
		name   string
		tamper func(*api.Response)
	}{
		{"chain", func(r *api.Response) { r.ChainID = 1 }},
		{"symmio", func(r *api.Response) { r.Symmio = partyB }},
		{"timestamp", func(r *api.Response) { r.Timestamp++ }},
		{"partyA", func(r *api.Response) { r.PartyA = api.Ptr(partyB) }},
		{"nonce", func(r *api.Response) { r.Nonce = api.Ptr(fixed.FromUint64(8)) }},
		{"missing nonce", func(r *api.Response) { r.Nonce = nil }},
		{"block", func(r *api.Response) { r.BlockNumber = api.Ptr(api.Uint(11)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			own := upnlA()
			own.BlockNumber = api.Ptr(api.Uint(10))
			seed := upnlA()
			seed.BlockNumber = api.Ptr(api.Uint(10))
			tc.tamper(&seed)
			_, err := b.SigningTuple(request(api.MethodUPnlA, seed), own)
			require.ErrorIs(t, err, oracleerr.ErrSeedMismatch)
		})
	}
}

func TestSeedSymbolIdentifiersMustMatch(t *testing.T) {
	b, _ := NewBuilder(d("0.01"), d("0.005"))
	own := api.Response{
		Method:            api.MethodUPnlWithSymbolPrice,
		ChainID:           1,
		Symmio:            symmio,
		Timestamp:         1,
		PartyA:            api.Ptr(partyA),
		PartyB:            api.Ptr(partyB),
		NonceA:            api.Ptr(fixed.FromUint64(1)),
		NonceB:            api.Ptr(fixed.FromUint64(2)),
		UPnlA:             api.Ptr(d("10")),
		UPnlB:             api.Ptr(d("-10")),
		NotionalValueSumA: api.Ptr(d("100")),
		NotionalValueSumB: api.Ptr(d("100")),
		SymbolID:          api.Ptr(api.Uint(4)),
		Price:             api.Ptr(d("50")),
	}
	seed := own
	seed.NonceB = api.Ptr(fixed.FromUint64(3))
	_, err := b.SigningTuple(request(own.Method, seed), own)
	require.ErrorIs(t, err, oracleerr.ErrSeedMismatch)

	seed = own
	seed.SymbolID = api.Ptr(api.Uint(5))
	_, err = b.SigningTuple(request(own.Method, seed), own)
	require.ErrorIs(t, err, oracleerr.ErrSeedMismatch)

	overview := upnlA()
	overview.Method = api.MethodPartyAOverview
	overview.SymbolIDs = []api.Uint{1, 2}
	overview.Prices = []fixed.Int{d("1"), d("2")}
	seed = overview
	seed.SymbolIDs = []api.Uint{2, 1}
	_, err = b.SigningTuple(request(overview.Method, seed), overview)
	require.ErrorIs(t, err, oracleerr.ErrSeedMismatch)
}
