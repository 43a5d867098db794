package keystore

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

const (
	KDFScrypt = "scrypt"
	KDFPBKDF2 = "pbkdf2"

	// PRFHMACSHA256 is the only pseudorandom function accepted for pbkdf2.
	PRFHMACSHA256 = "hmac-sha256"

	minDKLen = 32

	// Upper bounds on work factors read from a record.
	maxScryptMemory = 1 << 30 // 128 * N * r bytes
	maxScryptP      = 16
	maxPBKDF2C      = 1 << 22
	maxDKLen        = 64
)

// KDF derives a symmetric key from a passphrase. Implementations are
// deterministic for fixed parameters.
type KDF interface {
	Name() string
	DeriveKey(password []byte) ([]byte, error)
	Params() KDFParams
}

// Scrypt is the memory-hard key derivation function.
type Scrypt struct {
	Salt  []byte
	N     int
	R     int
	P     int
	DKLen int
}

func (s *Scrypt) Name() string { return KDFScrypt }

func (s *Scrypt) DeriveKey(password []byte) ([]byte, error) {
	if s.DKLen < minDKLen || s.DKLen > maxDKLen {
		return nil, fmt.Errorf("%w: scrypt dklen %d", ErrUnsupportedParameters, s.DKLen)
	}
	if s.N <= 1 || s.R <= 0 || s.P <= 0 || s.P > maxScryptP || s.N > maxScryptMemory/128/s.R {
		return nil, fmt.Errorf("%w: scrypt n %d r %d p %d", ErrUnsupportedParameters, s.N, s.R, s.P)
	}
	dk, err := scrypt.Key(password, s.Salt, s.N, s.R, s.P, s.DKLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedParameters, err)
	}
	return dk, nil
}

func (s *Scrypt) Params() KDFParams {
	return KDFParams{DKLen: s.DKLen, Salt: encodeHex(s.Salt), N: s.N, R: s.R, P: s.P}
}

// PBKDF2 is password based key derivation with an HMAC-SHA256 PRF.
type PBKDF2 struct {
	Salt  []byte
	C     int
	DKLen int
	PRF   string
}

func (p *PBKDF2) Name() string { return KDFPBKDF2 }

func (p *PBKDF2) DeriveKey(password []byte) ([]byte, error) {
	if p.PRF != PRFHMACSHA256 {
		return nil, fmt.Errorf("%w: pbkdf2 prf %q", ErrUnsupportedParameters, p.PRF)
	}
	if p.DKLen < minDKLen || p.DKLen > maxDKLen || p.C <= 0 || p.C > maxPBKDF2C {
		return nil, fmt.Errorf("%w: pbkdf2 dklen %d c %d", ErrUnsupportedParameters, p.DKLen, p.C)
	}
	return pbkdf2.Key(password, p.Salt, p.C, p.DKLen, sha256.New), nil
}

func (p *PBKDF2) Params() KDFParams {
	return KDFParams{DKLen: p.DKLen, Salt: encodeHex(p.Salt), C: p.C, PRF: p.PRF}
}

// kdfFromParams rebuilds the KDF stored in a record.
func kdfFromParams(name string, params KDFParams) (KDF, error) {
	salt, err := decodeHex("salt", params.Salt)
	if err != nil {
		return nil, err
	}
	switch name {
	case KDFScrypt:
		return &Scrypt{Salt: salt, N: params.N, R: params.R, P: params.P, DKLen: params.DKLen}, nil
	case KDFPBKDF2:
		return &PBKDF2{Salt: salt, C: params.C, DKLen: params.DKLen, PRF: params.PRF}, nil
	default:
		return nil, fmt.Errorf("%w: key derivation scheme %q", ErrUnsupportedParameters, name)
	}
}
