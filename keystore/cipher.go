package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// CipherAES128CTR is the only supported keystore cipher.
const CipherAES128CTR = "aes-128-ctr"

const cipherKeyLen = 16

// SymmetricCipher encrypts the keystore payload. Output length always equals
// input length.
type SymmetricCipher interface {
	Name() string
	Encrypt(key, iv, plaintext []byte) ([]byte, error)
	Decrypt(key, iv, ciphertext []byte) ([]byte, error)
}

func cipherByName(name string) (SymmetricCipher, error) {
	switch name {
	case CipherAES128CTR:
		return aesCTR{}, nil
	default:
		return nil, fmt.Errorf("%w: cipher %q", ErrUnsupportedParameters, name)
	}
}

type aesCTR struct{}

func (aesCTR) Name() string { return CipherAES128CTR }

func (c aesCTR) Encrypt(key, iv, plaintext []byte) ([]byte, error) {
	return c.xorKeyStream(key, iv, plaintext)
}

// Decrypt is the same transform as Encrypt.
func (c aesCTR) Decrypt(key, iv, ciphertext []byte) ([]byte, error) {
	return c.xorKeyStream(key, iv, ciphertext)
}

func (aesCTR) xorKeyStream(key, iv, in []byte) ([]byte, error) {
	if len(key) != cipherKeyLen {
		return nil, fmt.Errorf("%w: aes-128 key length %d", ErrUnsupportedParameters, len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv length %d", ErrUnsupportedParameters, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(in))
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
	return out, nil
}
