package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressHRP is the human-readable prefix used when rendering participant
// addresses at the API boundary.
const AddressHRP = "tfn"

// Address is a 20-byte participant address. The zero value is treated as
// "unset" throughout the settlement engine.
type Address [20]byte

// NewAddress builds an Address from a raw 20-byte slice.
func NewAddress(b []byte) (Address, error) {
	var addr Address
	if len(b) != 20 {
		return addr, fmt.Errorf("address must be 20 bytes, got %d", len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, 20)
	copy(out, a[:])
	return out
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == (Address{}) }

// String renders the address in bech32 with the tfn prefix.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressHRP, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// ParseAddress decodes a bech32 address string produced by String.
func ParseAddress(s string) (Address, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("decode address: %w", err)
	}
	if hrp != AddressHRP {
		return Address{}, fmt.Errorf("unexpected address prefix %q", hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("decode address payload: %w", err)
	}
	return NewAddress(raw)
}

// PrivateKey wraps an ECDSA key used to derive participant addresses.
type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// GeneratePrivateKey creates a new random key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// Address derives the participant address for the key's public half.
func (p *PrivateKey) Address() Address {
	var addr Address
	if p == nil || p.key == nil {
		return addr
	}
	derived := ethcrypto.PubkeyToAddress(p.key.PublicKey)
	copy(addr[:], derived[:])
	return addr
}
