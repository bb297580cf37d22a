package attestation

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"symmoracle/fixed"
)

// Type is a Solidity type name used in a signing tuple.
type Type string

const (
	TypeAddress      Type = "address"
	TypeUint256      Type = "uint256"
	TypeInt256       Type = "int256"
	TypeUint256Array Type = "uint256[]"
)

// Value is one typed element of a signing tuple.
type Value struct {
	Type    Type
	address common.Address
	ints    []fixed.Int
}

// Address builds an address element.
func Address(a common.Address) Value { return Value{Type: TypeAddress, address: a} }

// Uint256 builds an unsigned word element.
func Uint256(x fixed.Int) Value { return Value{Type: TypeUint256, ints: []fixed.Int{x}} }

// Int256 builds a signed word element.
func Int256(x fixed.Int) Value { return Value{Type: TypeInt256, ints: []fixed.Int{x}} }

// Uint256Array builds an unsigned word array element.
func Uint256Array(xs []fixed.Int) Value {
	return Value{Type: TypeUint256Array, ints: append([]fixed.Int{}, xs...)}
}

// packed appends the Solidity packed encoding of v. Array elements are padded
// to full words.
func (v Value) packed(dst []byte) ([]byte, error) {
	switch v.Type {
	case TypeAddress:
		return append(dst, v.address.Bytes()...), nil
	case TypeInt256:
		w := v.ints[0].Word()
		return append(dst, w[:]...), nil
	case TypeUint256, TypeUint256Array:
		for _, x := range v.ints {
			if x.Sign() < 0 {
				return nil, fmt.Errorf("%s element is negative: %s", v.Type, x)
			}
			w := x.Word()
			dst = append(dst, w[:]...)
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("unsupported type %q", v.Type)
	}
}

// MarshalJSON renders {"type":..., "value":...} with integers as decimal strings.
func (v Value) MarshalJSON() ([]byte, error) {
	var value interface{}
	switch v.Type {
	case TypeAddress:
		value = v.address.Hex()
	case TypeUint256, TypeInt256:
		value = v.ints[0].String()
	case TypeUint256Array:
		items := make([]string, len(v.ints))
		for i, x := range v.ints {
			items[i] = x.String()
		}
		value = items
	default:
		return nil, fmt.Errorf("unsupported type %q", v.Type)
	}
	return json.Marshal(struct {
		Type  Type        `json:"type"`
		Value interface{} `json:"value"`
	}{v.Type, value})
}

// Tuple is the ordered pre-image every honest node must agree on.
type Tuple []Value

// Packed returns the Solidity packed encoding of the tuple.
func (t Tuple) Packed() ([]byte, error) {
	out := make([]byte, 0, 32*len(t))
	var err error
	for i, v := range t {
		if out, err = v.packed(out); err != nil {
			return nil, fmt.Errorf("tuple element %d: %w", i, err)
		}
	}
	return out, nil
}

// Hash returns keccak256 of the packed encoding.
func (t Tuple) Hash() (common.Hash, error) {
	packed, err := t.Packed()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}
