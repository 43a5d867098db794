package keys

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ATMackay/neb-signer/address"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PrivateKeyLength is the length of a raw secp256k1 private scalar.
const PrivateKeyLength = 32

var ErrInvalidKey = errors.New("invalid private key")

// Key holds an in-memory secp256k1 private key together with its derived
// account address. Callers own the key and should Zero it after use.
type Key struct {
	priv *ecdsa.PrivateKey
	addr address.Address
}

// Generate returns a key built from fresh random bytes.
func Generate() (*Key, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return newKey(priv)
}

// FromHex parses a hex encoded 32 byte private key.
func FromHex(s string) (*Key, error) {
	priv, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return newKey(priv)
}

// FromBytes builds a key from a raw 32 byte scalar.
func FromBytes(b []byte) (*Key, error) {
	priv, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return newKey(priv)
}

func newKey(priv *ecdsa.PrivateKey) (*Key, error) {
	addr, err := address.FromPublicKey(crypto.FromECDSAPub(&priv.PublicKey), address.Normal)
	if err != nil {
		return nil, err
	}
	return &Key{priv: priv, addr: addr}, nil
}

// PrivateKey returns the raw 32 byte private scalar.
func (k *Key) PrivateKey() []byte {
	return crypto.FromECDSA(k.priv)
}

// PrivateKeyHex returns the private scalar hex encoded without a 0x prefix.
func (k *Key) PrivateKeyHex() string {
	return common.Bytes2Hex(k.PrivateKey())
}

// PublicKey returns the 64 byte uncompressed public key (X || Y).
func (k *Key) PublicKey() []byte {
	return crypto.FromECDSAPub(&k.priv.PublicKey)[1:]
}

// PublicKeyHex returns the public key hex encoded without a 0x prefix.
func (k *Key) PublicKeyHex() string {
	return common.Bytes2Hex(k.PublicKey())
}

// Address returns the normal account address of the key.
func (k *Key) Address() address.Address {
	return k.addr
}

// Zero overwrites the private scalar. The key must not be used afterwards.
func (k *Key) Zero() {
	if k == nil || k.priv == nil {
		return
	}
	b := k.priv.D.Bits()
	for i := range b {
		b[i] = 0
	}
	k.priv.D.SetInt64(0)
	k.priv = nil
}
