package keys

import (
	"errors"
	"fmt"

	"github.com/ATMackay/neb-signer/address"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the length of a compact recoverable signature (R || S || V).
const SignatureLength = crypto.SignatureLength

var ErrInvalidSignature = errors.New("invalid signature")

// Sign produces a deterministic (RFC6979) compact recoverable secp256k1 signature
// over a 32 byte digest. The final byte is the recovery id (0 or 1).
func (k *Key) Sign(hash []byte) ([]byte, error) {
	if k == nil || k.priv == nil {
		return nil, ErrInvalidKey
	}
	return crypto.Sign(hash, k.priv)
}

// RecoverPublicKey returns the 64 byte public key that produced sig over hash.
func RecoverPublicKey(hash, sig []byte) ([]byte, error) {
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.FromECDSAPub(pub)[1:], nil
}

// RecoverAddress returns the normal address of the signer of hash.
func RecoverAddress(hash, sig []byte) (address.Address, error) {
	pub, err := RecoverPublicKey(hash, sig)
	if err != nil {
		return address.Address{}, err
	}
	return address.FromPublicKey(pub, address.Normal)
}

// VerifySignature checks a compact signature against a 64 or 65 byte public key.
func VerifySignature(pub, hash, sig []byte) bool {
	if len(sig) < 64 {
		return false
	}
	if len(pub) == 64 {
		pub = append([]byte{0x04}, pub...)
	}
	return crypto.VerifySignature(pub, hash, sig[:64])
}
