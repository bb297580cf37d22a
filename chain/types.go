package chain

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"symmoracle/fixed"
)

// PageSize is the number of positions requested per page.
const PageSize = 50

// Side is the direction of a position from PartyA's point of view.
type Side uint8

const (
	Long Side = iota
	Short
)

func (s Side) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

// MarshalJSON renders the side by name.
func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the name or the on-chain enum value.
func (s *Side) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		switch name {
		case "LONG":
			*s = Long
		case "SHORT":
			*s = Short
		default:
			return fmt.Errorf("unknown side %q", name)
		}
		return nil
	}
	var raw uint8
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw > uint8(Short) {
		return fmt.Errorf("unknown side %d", raw)
	}
	*s = Side(raw)
	return nil
}

// Position is a read-only view of an open quote.
type Position struct {
	ID                 uint64         `json:"id"`
	SymbolID           uint64         `json:"symbolId"`
	Side               Side           `json:"positionType"`
	Quantity           fixed.Int      `json:"quantity"`
	ClosedAmount       fixed.Int      `json:"closedAmount"`
	OpenedPrice        fixed.Int      `json:"openedPrice"`
	RequestedOpenPrice fixed.Int      `json:"requestedOpenPrice"`
	PartyA             common.Address `json:"partyA"`
	PartyB             common.Address `json:"partyB"`
}

// OpenAmount is quantity minus the closed amount.
func (p Position) OpenAmount() (fixed.Int, error) {
	return p.Quantity.Sub(p.ClosedAmount)
}

// PositionSet is the result of a full paginated scan.
type PositionSet struct {
	Positions []Position
	// SymbolIDs holds the distinct symbol ids in first-seen order.
	SymbolIDs []uint64
	// PartyBs holds the distinct counterparties in first-seen order. Only
	// populated for PartyA-side scans.
	PartyBs []common.Address
}

func positionFromTuple(q QuoteTuple) (Position, error) {
	if !q.Id.IsUint64() || !q.SymbolId.IsUint64() {
		return Position{}, fmt.Errorf("quote id or symbol id exceeds uint64")
	}
	if q.PositionType > uint8(Short) {
		return Position{}, fmt.Errorf("quote %s: unknown position type %d", q.Id, q.PositionType)
	}
	pos := Position{
		ID:       q.Id.Uint64(),
		SymbolID: q.SymbolId.Uint64(),
		Side:     Side(q.PositionType),
		PartyA:   q.PartyA,
		PartyB:   q.PartyB,
	}
	var err error
	if pos.Quantity, err = fixed.FromBig(q.Quantity); err != nil {
		return Position{}, fmt.Errorf("quote %d quantity: %w", pos.ID, err)
	}
	if pos.ClosedAmount, err = fixed.FromBig(q.ClosedAmount); err != nil {
		return Position{}, fmt.Errorf("quote %d closed amount: %w", pos.ID, err)
	}
	if pos.OpenedPrice, err = fixed.FromBig(q.OpenedPrice); err != nil {
		return Position{}, fmt.Errorf("quote %d opened price: %w", pos.ID, err)
	}
	if pos.RequestedOpenPrice, err = fixed.FromBig(q.RequestedOpenPrice); err != nil {
		return Position{}, fmt.Errorf("quote %d requested open price: %w", pos.ID, err)
	}
	return pos, nil
}
