package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the length of an [R || S || V] secp256k1 signature.
const SignatureLength = 65

// ErrSignatureMismatch is returned when a signature recovers to a different
// address than expected.
var ErrSignatureMismatch = errors.New("crypto: signature does not match signer")

// PrivateKey is the node's attestation key.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

// Address returns the Ethereum address of the key.
func (k *PrivateKey) Address() common.Address {
	return ethcrypto.PubkeyToAddress(k.PrivateKey.PublicKey)
}

// Sign signs a 32-byte digest as-is. V is 27 or 28 so the signature can be
// passed straight to ecrecover.
func (k *PrivateKey) Sign(digest common.Hash) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest.Bytes(), k.PrivateKey)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromHex parses a hex key with or without the 0x prefix.
func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode key: %w", err)
	}
	return PrivateKeyFromBytes(raw)
}

// Verifier checks that signature over digest was produced by signer.
type Verifier interface {
	Verify(digest common.Hash, signature []byte, signer common.Address) error
}

// ECDSAVerifier recovers secp256k1 signatures.
type ECDSAVerifier struct{}

// Verify implements Verifier. V may be 0/1 or 27/28.
func (ECDSAVerifier) Verify(digest common.Hash, signature []byte, signer common.Address) error {
	if len(signature) != SignatureLength {
		return fmt.Errorf("crypto: signature must be %d bytes, got %d", SignatureLength, len(signature))
	}
	sig := append([]byte{}, signature...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return fmt.Errorf("crypto: invalid recovery id %d", signature[64])
	}
	pub, err := ethcrypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return fmt.Errorf("crypto: recover: %w", err)
	}
	if ethcrypto.PubkeyToAddress(*pub) != signer {
		return ErrSignatureMismatch
	}
	return nil
}

// DecodeSignature parses a 0x-prefixed hex signature.
func DecodeSignature(s string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	sig, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode signature: %w", err)
	}
	return sig, nil
}
