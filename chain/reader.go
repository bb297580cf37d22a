// Package chain reads the on-chain facts an attestation depends on: symbol
// names, nonces, open positions and allocated collateral.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"symmoracle/fixed"
	"symmoracle/oracleerr"
	"symmoracle/retry"
)

// ChainClient defines the subset of the Ethereum RPC used by the reader.
type ChainClient interface {
	ethereum.ContractCaller
	BlockNumber(ctx context.Context) (uint64, error)
}

// Dial initialises an RPC client for the provided endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("rpc endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// Reader issues view calls against one contract on one chain. A pinned
// reader sends every call at the same block height.
type Reader struct {
	client   ChainClient
	contract common.Address
	chainID  uint64
	block    *big.Int
	retry    retry.Policy
}

// NewReader builds an unpinned reader.
func NewReader(client ChainClient, contract common.Address, chainID uint64, policy retry.Policy) *Reader {
	return &Reader{client: client, contract: contract, chainID: chainID, retry: policy}
}

// ChainID reports the chain the reader is bound to.
func (r *Reader) ChainID() uint64 { return r.chainID }

// Contract reports the contract the reader calls.
func (r *Reader) Contract() common.Address { return r.contract }

// Block returns the pinned height, or nil when reading the latest state.
func (r *Reader) Block() *big.Int {
	if r.block == nil {
		return nil
	}
	return new(big.Int).Set(r.block)
}

// Pinned returns a copy of the reader that reads at the given height.
func (r *Reader) Pinned(block uint64) *Reader {
	cp := *r
	cp.block = new(big.Int).SetUint64(block)
	return &cp
}

// LatestBlock returns the current head height.
func (r *Reader) LatestBlock(ctx context.Context) (uint64, error) {
	var head uint64
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		n, err := r.client.BlockNumber(ctx)
		if err != nil {
			return err
		}
		head = n
		return nil
	})
	if err != nil {
		return 0, oracleerr.Wrap(oracleerr.KindUpstream, err, "call", "blockNumber")
	}
	return head, nil
}

func (r *Reader) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := ContractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &r.contract, Data: input}
	var output []byte
	err = r.retry.Do(ctx, func(ctx context.Context) error {
		out, err := r.client.CallContract(ctx, msg, r.block)
		if err != nil {
			return err
		}
		output = out
		return nil
	})
	if err != nil {
		return nil, oracleerr.Wrap(oracleerr.KindUpstream, err, "call", method)
	}
	values, err := ContractABI.Unpack(method, output)
	if err != nil {
		return nil, oracleerr.Wrap(oracleerr.KindUpstream, fmt.Errorf("unpack: %w", err), "call", method)
	}
	if len(values) != 1 {
		return nil, oracleerr.Wrap(oracleerr.KindUpstream, fmt.Errorf("unexpected %d return values", len(values)), "call", method)
	}
	return values, nil
}

func (r *Reader) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	values, err := r.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	out, ok := values[0].(*big.Int)
	if !ok {
		return nil, oracleerr.Wrap(oracleerr.KindUpstream, fmt.Errorf("unexpected return type %T", values[0]), "call", method)
	}
	return out, nil
}

func (r *Reader) callStrings(ctx context.Context, method string, args ...interface{}) ([]string, error) {
	values, err := r.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	out, ok := values[0].([]string)
	if !ok {
		return nil, oracleerr.Wrap(oracleerr.KindUpstream, fmt.Errorf("unexpected return type %T", values[0]), "call", method)
	}
	return out, nil
}

func bigIDs(ids []uint64) []*big.Int {
	out := make([]*big.Int, len(ids))
	for i, id := range ids {
		out[i] = new(big.Int).SetUint64(id)
	}
	return out
}

func (r *Reader) symbolNames(ctx context.Context, method string, ids []uint64, kind oracleerr.Kind, key string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	names, err := r.callStrings(ctx, method, bigIDs(ids))
	if err != nil {
		return nil, err
	}
	if len(names) != len(ids) {
		return nil, oracleerr.Wrap(oracleerr.KindUpstream, fmt.Errorf("got %d names for %d ids", len(names), len(ids)), "call", method)
	}
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, oracleerr.New(kind, key, strconv.FormatUint(ids[i], 10))
		}
	}
	return names, nil
}

// SymbolNamesByQuoteIDs resolves the symbol name of each quote. An empty name
// fails with InvalidQuoteID.
func (r *Reader) SymbolNamesByQuoteIDs(ctx context.Context, quoteIDs []uint64) ([]string, error) {
	return r.symbolNames(ctx, methodSymbolNameByQuoteID, quoteIDs, oracleerr.KindInvalidQuoteID, "quoteId")
}

// SymbolNamesByIDs resolves symbol names by symbol id. An empty name fails
// with InvalidSymbol.
func (r *Reader) SymbolNamesByIDs(ctx context.Context, symbolIDs []uint64) ([]string, error) {
	return r.symbolNames(ctx, methodSymbolNameByID, symbolIDs, oracleerr.KindInvalidSymbol, "symbolId")
}

func (r *Reader) nonce(ctx context.Context, method string, args ...interface{}) (fixed.Int, error) {
	raw, err := r.callUint(ctx, method, args...)
	if err != nil {
		return fixed.Zero, err
	}
	out, err := fixed.FromBig(raw)
	if err != nil {
		return fixed.Zero, oracleerr.Wrap(oracleerr.KindUpstream, err, "call", method)
	}
	return out, nil
}

// NonceOfPartyA returns the account nonce verbatim.
func (r *Reader) NonceOfPartyA(ctx context.Context, partyA common.Address) (fixed.Int, error) {
	return r.nonce(ctx, methodNonceOfPartyA, partyA)
}

// NonceOfPartyB returns the pair nonce of partyB towards partyA verbatim.
func (r *Reader) NonceOfPartyB(ctx context.Context, partyB, partyA common.Address) (fixed.Int, error) {
	return r.nonce(ctx, methodNonceOfPartyB, partyB, partyA)
}

// PartyAOpenPositions scans every open position of partyA.
func (r *Reader) PartyAOpenPositions(ctx context.Context, partyA common.Address) (PositionSet, error) {
	count, err := r.callUint(ctx, methodPartyAPositionsCount, partyA)
	if err != nil {
		return PositionSet{}, err
	}
	return r.paginate(ctx, count, true, func(start, size *big.Int) ([]interface{}, error) {
		return r.call(ctx, methodPartyAOpenPositions, partyA, start, size)
	})
}

// PartyBOpenPositions scans the open positions between partyB and partyA.
func (r *Reader) PartyBOpenPositions(ctx context.Context, partyB, partyA common.Address) (PositionSet, error) {
	count, err := r.callUint(ctx, methodPartyBPositionsCount, partyB, partyA)
	if err != nil {
		return PositionSet{}, err
	}
	return r.paginate(ctx, count, false, func(start, size *big.Int) ([]interface{}, error) {
		return r.call(ctx, methodPartyBOpenPositions, partyB, partyA, start, size)
	})
}

// paginate reads ceil(count/PageSize) pages in order and concatenates them.
// A page that disagrees with count aborts the scan.
func (r *Reader) paginate(ctx context.Context, count *big.Int, collectPartyBs bool, page func(start, size *big.Int) ([]interface{}, error)) (PositionSet, error) {
	if !count.IsUint64() {
		return PositionSet{}, oracleerr.Wrap(oracleerr.KindUpstream, fmt.Errorf("position count %s exceeds uint64", count), "call", "positionsCount")
	}
	total := count.Uint64()
	set := PositionSet{Positions: make([]Position, 0, min(total, PageSize))}
	seenSymbols := make(map[uint64]struct{})
	seenPartyBs := make(map[common.Address]struct{})
	size := big.NewInt(PageSize)
	for start := uint64(0); start < total; start += PageSize {
		values, err := page(new(big.Int).SetUint64(start), size)
		if err != nil {
			return PositionSet{}, err
		}
		tuples := *abi.ConvertType(values[0], new([]QuoteTuple)).(*[]QuoteTuple)
		// every page before the last is full; anything else means the count lied
		if want := min(total-start, PageSize); uint64(len(tuples)) != want {
			return PositionSet{}, oracleerr.Wrap(oracleerr.KindUpstream,
				fmt.Errorf("page at %d returned %d positions, want %d of %d", start, len(tuples), want, total),
				"call", "openPositions")
		}
		for _, tuple := range tuples {
			pos, err := positionFromTuple(tuple)
			if err != nil {
				return PositionSet{}, oracleerr.Wrap(oracleerr.KindUpstream, err, "call", "openPositions")
			}
			set.Positions = append(set.Positions, pos)
			if _, ok := seenSymbols[pos.SymbolID]; !ok {
				seenSymbols[pos.SymbolID] = struct{}{}
				set.SymbolIDs = append(set.SymbolIDs, pos.SymbolID)
			}
			if collectPartyBs {
				if _, ok := seenPartyBs[pos.PartyB]; !ok {
					seenPartyBs[pos.PartyB] = struct{}{}
					set.PartyBs = append(set.PartyBs, pos.PartyB)
				}
			}
		}
	}
	return set, nil
}

// AllocatedBalanceOfPartyBs returns the collateral each counterparty has
// allocated against partyA, aligned with partyBs.
func (r *Reader) AllocatedBalanceOfPartyBs(ctx context.Context, partyA common.Address, partyBs []common.Address) ([]fixed.Int, error) {
	if len(partyBs) == 0 {
		return nil, nil
	}
	values, err := r.call(ctx, methodAllocatedBalanceOfPBs, partyA, partyBs)
	if err != nil {
		return nil, err
	}
	raw, ok := values[0].([]*big.Int)
	if !ok || len(raw) != len(partyBs) {
		return nil, oracleerr.Wrap(oracleerr.KindUpstream, fmt.Errorf("unexpected allocation reply %T", values[0]), "call", methodAllocatedBalanceOfPBs)
	}
	out := make([]fixed.Int, len(raw))
	for i, amount := range raw {
		if out[i], err = fixed.FromBig(amount); err != nil {
			return nil, oracleerr.Wrap(oracleerr.KindUpstream, err, "call", methodAllocatedBalanceOfPBs)
		}
	}
	return out, nil
}
