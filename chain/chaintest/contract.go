// Package chaintest provides an in-memory contract that answers the view
// calls issued by chain.Reader.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"symmoracle/chain"
	"symmoracle/fixed"
)

type pair struct{ b, a common.Address }

// Contract decodes calldata with chain.ContractABI and replies from memory.
// It is safe for concurrent use.
type Contract struct {
	Address common.Address
	Head    uint64

	mu       sync.Mutex
	symbols  map[uint64]string
	quotes   map[uint64]string
	nonceA   map[common.Address]*big.Int
	nonceB   map[pair]*big.Int
	openA    map[common.Address][]chain.QuoteTuple
	openB    map[pair][]chain.QuoteTuple
	alloc    map[pair]*big.Int
	calls    []string
	blocks   []*big.Int
	failNext int
}

// New returns an empty contract deployed at addr with head at block head.
func New(addr common.Address, head uint64) *Contract {
	return &Contract{
		Address: addr,
		Head:    head,
		symbols: make(map[uint64]string),
		quotes:  make(map[uint64]string),
		nonceA:  make(map[common.Address]*big.Int),
		nonceB:  make(map[pair]*big.Int),
		openA:   make(map[common.Address][]chain.QuoteTuple),
		openB:   make(map[pair][]chain.QuoteTuple),
		alloc:   make(map[pair]*big.Int),
	}
}

// SetSymbol names a symbol id.
func (c *Contract) SetSymbol(id uint64, name string) *Contract {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbols[id] = name
	return c
}

// SetQuoteSymbol names the symbol of a quote id.
func (c *Contract) SetQuoteSymbol(quoteID uint64, name string) *Contract {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[quoteID] = name
	return c
}

// SetNonceA sets partyA's account nonce.
func (c *Contract) SetNonceA(partyA common.Address, nonce uint64) *Contract {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonceA[partyA] = new(big.Int).SetUint64(nonce)
	return c
}

// SetNonceB sets partyB's nonce towards partyA.
func (c *Contract) SetNonceB(partyB, partyA common.Address, nonce uint64) *Contract {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonceB[pair{partyB, partyA}] = new(big.Int).SetUint64(nonce)
	return c
}

// SetAllocated sets the collateral partyB allocated against partyA.
func (c *Contract) SetAllocated(partyB, partyA common.Address, amount fixed.Int) *Contract {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alloc[pair{partyB, partyA}] = amount.Big()
	return c
}

// Open records an open position visible from both sides.
func (c *Contract) Open(pos chain.Position) *Contract {
	c.mu.Lock()
	defer c.mu.Unlock()
	tuple := chain.QuoteTuple{
		Id:                 new(big.Int).SetUint64(pos.ID),
		SymbolId:           new(big.Int).SetUint64(pos.SymbolID),
		PositionType:       uint8(pos.Side),
		OpenedPrice:        pos.OpenedPrice.Big(),
		RequestedOpenPrice: pos.RequestedOpenPrice.Big(),
		Quantity:           pos.Quantity.Big(),
		ClosedAmount:       pos.ClosedAmount.Big(),
		PartyA:             pos.PartyA,
		PartyB:             pos.PartyB,
	}
	c.openA[pos.PartyA] = append(c.openA[pos.PartyA], tuple)
	key := pair{pos.PartyB, pos.PartyA}
	c.openB[key] = append(c.openB[key], tuple)
	return c
}

// FailNext makes the next n calls return a transport error.
func (c *Contract) FailNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
}

// Calls returns the method names invoked so far.
func (c *Contract) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.calls...)
}

// Blocks returns the block argument of every call, nil for latest.
func (c *Contract) Blocks() []*big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*big.Int{}, c.blocks...)
}

// BlockNumber implements chain.ChainClient.
func (c *Contract) BlockNumber(context.Context) (uint64, error) {
	return c.Head, nil
}

// CallContract implements ethereum.ContractCaller.
func (c *Contract) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext > 0 {
		c.failNext--
		return nil, fmt.Errorf("connection refused")
	}
	if msg.To == nil || *msg.To != c.Address {
		return nil, fmt.Errorf("no contract at %v", msg.To)
	}
	if len(msg.Data) < 4 {
		return nil, fmt.Errorf("short calldata")
	}
	method, err := chain.ContractABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	c.calls = append(c.calls, method.Name)
	c.blocks = append(c.blocks, block)

	switch method.Name {
	case "symbolNameById", "symbolNameByQuoteId":
		table := c.symbols
		if method.Name == "symbolNameByQuoteId" {
			table = c.quotes
		}
		ids := args[0].([]*big.Int)
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = table[id.Uint64()]
		}
		return method.Outputs.Pack(names)
	case "nonceOfPartyA":
		return method.Outputs.Pack(orZero(c.nonceA[args[0].(common.Address)]))
	case "nonceOfPartyB":
		return method.Outputs.Pack(orZero(c.nonceB[pair{args[0].(common.Address), args[1].(common.Address)}]))
	case "partyAPositionsCount":
		return method.Outputs.Pack(big.NewInt(int64(len(c.openA[args[0].(common.Address)]))))
	case "partyBPositionsCount":
		key := pair{args[0].(common.Address), args[1].(common.Address)}
		return method.Outputs.Pack(big.NewInt(int64(len(c.openB[key]))))
	case "getPartyAOpenPositions":
		return method.Outputs.Pack(page(c.openA[args[0].(common.Address)], args[1], args[2]))
	case "getPartyBOpenPositions":
		key := pair{args[0].(common.Address), args[1].(common.Address)}
		return method.Outputs.Pack(page(c.openB[key], args[2], args[3]))
	case "allocatedBalanceOfPartyBs":
		partyA := args[0].(common.Address)
		parties := args[1].([]common.Address)
		out := make([]*big.Int, len(parties))
		for i, b := range parties {
			out[i] = orZero(c.alloc[pair{b, partyA}])
		}
		return method.Outputs.Pack(out)
	}
	return nil, fmt.Errorf("unhandled method %s", method.Name)
}

func page(all []chain.QuoteTuple, startArg, sizeArg interface{}) []chain.QuoteTuple {
	start := startArg.(*big.Int).Uint64()
	end := start + sizeArg.(*big.Int).Uint64()
	if start > uint64(len(all)) {
		start = uint64(len(all))
	}
	if end > uint64(len(all)) {
		end = uint64(len(all))
	}
	return append([]chain.QuoteTuple{}, all[start:end]...)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
