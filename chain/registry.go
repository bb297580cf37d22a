package chain

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"symmoracle/oracleerr"
	"symmoracle/retry"
)

// Endpoint binds a chain id to its RPC client and the contract the oracle
// attests for.
type Endpoint struct {
	ChainID  uint64
	Client   ChainClient
	Contract common.Address
}

// Registry resolves readers by chain id.
type Registry struct {
	endpoints map[uint64]Endpoint
	retry     retry.Policy
}

// NewRegistry validates and indexes the supplied endpoints.
func NewRegistry(policy retry.Policy, endpoints ...Endpoint) (*Registry, error) {
	reg := &Registry{endpoints: make(map[uint64]Endpoint, len(endpoints)), retry: policy}
	for _, ep := range endpoints {
		if ep.Client == nil {
			return nil, fmt.Errorf("chain %d: client required", ep.ChainID)
		}
		if ep.Contract == (common.Address{}) {
			return nil, fmt.Errorf("chain %d: contract address required", ep.ChainID)
		}
		if _, dup := reg.endpoints[ep.ChainID]; dup {
			return nil, fmt.Errorf("chain %d configured twice", ep.ChainID)
		}
		reg.endpoints[ep.ChainID] = ep
	}
	return reg, nil
}

// Reader returns an unpinned reader for chainID. A zero contract selects the
// configured one; any other value must match it.
func (r *Registry) Reader(chainID uint64, contract common.Address) (*Reader, error) {
	ep, ok := r.endpoints[chainID]
	if !ok {
		return nil, oracleerr.New(oracleerr.KindUnknownChain, "chainId", strconv.FormatUint(chainID, 10))
	}
	if contract != (common.Address{}) && contract != ep.Contract {
		return nil, oracleerr.New(oracleerr.KindUnknownChain,
			"chainId", strconv.FormatUint(chainID, 10),
			"symmio", contract.Hex())
	}
	return NewReader(ep.Client, ep.Contract, ep.ChainID, r.retry), nil
}

// ChainIDs lists the configured chains in ascending order.
func (r *Registry) ChainIDs() []uint64 {
	out := make([]uint64, 0, len(r.endpoints))
	for id := range r.endpoints {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
