package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// viewABI lists the read-only contract functions the reader consumes.
const viewABI = `[
  {"type":"function","name":"symbolNameByQuoteId","stateMutability":"view",
   "inputs":[{"name":"quoteIds","type":"uint256[]"}],
   "outputs":[{"name":"","type":"string[]"}]},
  {"type":"function","name":"symbolNameById","stateMutability":"view",
   "inputs":[{"name":"symbolIds","type":"uint256[]"}],
   "outputs":[{"name":"","type":"string[]"}]},
  {"type":"function","name":"nonceOfPartyA","stateMutability":"view",
   "inputs":[{"name":"partyA","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"nonceOfPartyB","stateMutability":"view",
   "inputs":[{"name":"partyB","type":"address"},{"name":"partyA","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"partyAPositionsCount","stateMutability":"view",
   "inputs":[{"name":"partyA","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"partyBPositionsCount","stateMutability":"view",
   "inputs":[{"name":"partyB","type":"address"},{"name":"partyA","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getPartyAOpenPositions","stateMutability":"view",
   "inputs":[{"name":"partyA","type":"address"},{"name":"start","type":"uint256"},{"name":"size","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple[]","components":[
     {"name":"id","type":"uint256"},
     {"name":"symbolId","type":"uint256"},
     {"name":"positionType","type":"uint8"},
     {"name":"openedPrice","type":"uint256"},
     {"name":"requestedOpenPrice","type":"uint256"},
     {"name":"quantity","type":"uint256"},
     {"name":"closedAmount","type":"uint256"},
     {"name":"partyA","type":"address"},
     {"name":"partyB","type":"address"}]}]},
  {"type":"function","name":"getPartyBOpenPositions","stateMutability":"view",
   "inputs":[{"name":"partyB","type":"address"},{"name":"partyA","type":"address"},{"name":"start","type":"uint256"},{"name":"size","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple[]","components":[
     {"name":"id","type":"uint256"},
     {"name":"symbolId","type":"uint256"},
     {"name":"positionType","type":"uint8"},
     {"name":"openedPrice","type":"uint256"},
     {"name":"requestedOpenPrice","type":"uint256"},
     {"name":"quantity","type":"uint256"},
     {"name":"closedAmount","type":"uint256"},
     {"name":"partyA","type":"address"},
     {"name":"partyB","type":"address"}]}]},
  {"type":"function","name":"allocatedBalanceOfPartyBs","stateMutability":"view",
   "inputs":[{"name":"partyA","type":"address"},{"name":"partyBs","type":"address[]"}],
   "outputs":[{"name":"","type":"uint256[]"}]}
]`

const (
	methodSymbolNameByQuoteID   = "symbolNameByQuoteId"
	methodSymbolNameByID        = "symbolNameById"
	methodNonceOfPartyA         = "nonceOfPartyA"
	methodNonceOfPartyB         = "nonceOfPartyB"
	methodPartyAPositionsCount  = "partyAPositionsCount"
	methodPartyBPositionsCount  = "partyBPositionsCount"
	methodPartyAOpenPositions   = "getPartyAOpenPositions"
	methodPartyBOpenPositions   = "getPartyBOpenPositions"
	methodAllocatedBalanceOfPBs = "allocatedBalanceOfPartyBs"
)

// ContractABI is the parsed view interface, exported for test doubles that
// need to decode calldata and encode replies.
var ContractABI = mustParseABI(viewABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// QuoteTuple mirrors the Quote tuple returned by the open-position getters.
// Field names follow the ABI component names.
type QuoteTuple struct {
	Id                 *big.Int
	SymbolId           *big.Int
	PositionType       uint8
	OpenedPrice        *big.Int
	RequestedOpenPrice *big.Int
	Quantity           *big.Int
	ClosedAmount       *big.Int
	PartyA             common.Address
	PartyB             common.Address
}
