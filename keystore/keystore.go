package keystore

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"github.com/ATMackay/neb-signer/address"
	"github.com/ATMackay/neb-signer/keys"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

const (
	defaultKDF     = KDFScrypt
	defaultDKLen   = 32
	defaultSaltLen = 32
	defaultIVLen   = 16
	defaultScryptN = 4096
	defaultScryptR = 8
	defaultScryptP = 1
	defaultPBKDF2C = 262144
)

// Options configures Encrypt. Zero values are replaced by defaults in Sanitize;
// Salt, IV and ID are generated when empty.
type Options struct {
	KDF    string
	Cipher string
	DKLen  int
	Salt   []byte
	IV     []byte
	ID     string

	// scrypt
	N int
	R int
	P int

	// pbkdf2
	C int
}

// Sanitize fills empty fields with default values and fresh randomness.
func (o *Options) Sanitize() error {
	if o.KDF == "" {
		o.KDF = defaultKDF
	}
	if o.Cipher == "" {
		o.Cipher = CipherAES128CTR
	}
	if o.DKLen == 0 {
		o.DKLen = defaultDKLen
	}
	if o.N == 0 {
		o.N = defaultScryptN
	}
	if o.R == 0 {
		o.R = defaultScryptR
	}
	if o.P == 0 {
		o.P = defaultScryptP
	}
	if o.C == 0 {
		o.C = defaultPBKDF2C
	}
	if len(o.Salt) == 0 {
		o.Salt = make([]byte, defaultSaltLen)
		if _, err := rand.Read(o.Salt); err != nil {
			return err
		}
	}
	if len(o.IV) == 0 {
		o.IV = make([]byte, defaultIVLen)
		if _, err := rand.Read(o.IV); err != nil {
			return err
		}
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

func (o *Options) kdf() (KDF, error) {
	switch o.KDF {
	case KDFScrypt:
		return &Scrypt{Salt: o.Salt, N: o.N, R: o.R, P: o.P, DKLen: o.DKLen}, nil
	case KDFPBKDF2:
		return &PBKDF2{Salt: o.Salt, C: o.C, DKLen: o.DKLen, PRF: PRFHMACSHA256}, nil
	default:
		return nil, fmt.Errorf("%w: key derivation scheme %q", ErrUnsupportedParameters, o.KDF)
	}
}

// Encrypt seals a raw private key under password and returns a version 4 record.
// A nil opts uses the defaults (scrypt n=4096 r=8 p=1, aes-128-ctr).
func Encrypt(privateKey []byte, password string, opts *Options) (*Record, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	if err := o.Sanitize(); err != nil {
		return nil, err
	}

	key, err := keys.FromBytes(padPrivateKey(privateKey))
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	kdf, err := o.kdf()
	if err != nil {
		return nil, err
	}
	c, err := cipherByName(o.Cipher)
	if err != nil {
		return nil, err
	}

	derivedKey, err := kdf.DeriveKey([]byte(password))
	if err != nil {
		return nil, err
	}
	defer clear(derivedKey)

	plaintext := key.PrivateKey()
	defer clear(plaintext)

	ciphertext, err := c.Encrypt(derivedKey[:16], o.IV, plaintext)
	if err != nil {
		return nil, err
	}

	return &Record{
		Version: CurrentVersion,
		ID:      o.ID,
		Address: key.Address().String(),
		Crypto: Crypto{
			CipherText:   encodeHex(ciphertext),
			CipherParams: CipherParams{IV: encodeHex(o.IV)},
			Cipher:       c.Name(),
			KDF:          kdf.Name(),
			KDFParams:    kdf.Params(),
			MAC:          encodeHex(macV4(derivedKey, ciphertext, o.IV, c.Name())),
			MACHash:      MACHashSHA3256,
		},
	}, nil
}

// Decrypt recovers the 32 byte private key sealed in r. The plaintext is only
// produced after the MAC has been verified.
func Decrypt(r *Record, password string) ([]byte, error) {
	if r == nil {
		return nil, ErrInvalidRecord
	}
	if r.Version != Version3 && r.Version != Version4 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, r.Version)
	}
	if h := r.Crypto.MACHash; h != "" && h != MACHashSHA3256 {
		return nil, fmt.Errorf("%w: mac hash %q", ErrUnsupportedParameters, h)
	}
	kdf, err := kdfFromParams(r.Crypto.KDF, r.Crypto.KDFParams)
	if err != nil {
		return nil, err
	}
	c, err := cipherByName(r.Crypto.Cipher)
	if err != nil {
		return nil, err
	}
	ciphertext, err := decodeHex("ciphertext", r.Crypto.CipherText)
	if err != nil {
		return nil, err
	}
	iv, err := decodeHex("iv", r.Crypto.CipherParams.IV)
	if err != nil {
		return nil, err
	}
	mac, err := decodeHex("mac", r.Crypto.MAC)
	if err != nil {
		return nil, err
	}

	derivedKey, err := kdf.DeriveKey([]byte(password))
	if err != nil {
		return nil, err
	}
	defer clear(derivedKey)

	var calculated []byte
	switch r.Version {
	case Version3:
		calculated = macV3(derivedKey, ciphertext)
	case Version4:
		calculated = macV4(derivedKey, ciphertext, iv, r.Crypto.Cipher)
	}
	if subtle.ConstantTimeCompare(calculated, mac) != 1 {
		return nil, ErrWrongPassphrase
	}

	plaintext, err := c.Decrypt(derivedKey[:16], iv, ciphertext)
	if err != nil {
		return nil, err
	}
	if len(plaintext) > keys.PrivateKeyLength {
		clear(plaintext)
		return nil, fmt.Errorf("%w: plaintext length %d", ErrInvalidRecord, len(plaintext))
	}
	if len(plaintext) == keys.PrivateKeyLength {
		return plaintext, nil
	}
	padded := padPrivateKey(plaintext)
	clear(plaintext)
	return padded, nil
}

// DecryptKey decrypts r and checks the recovered key against the record address.
func DecryptKey(r *Record, password string) (*keys.Key, error) {
	raw, err := Decrypt(r, password)
	if err != nil {
		return nil, err
	}
	defer clear(raw)

	key, err := keys.FromBytes(raw)
	if err != nil {
		return nil, err
	}
	if r.Address != "" {
		want, err := address.Decode(r.Address)
		if err != nil {
			key.Zero()
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		if want != key.Address() {
			key.Zero()
			return nil, fmt.Errorf("%w: record %s, key %s", ErrAddressMismatch, r.Address, key.Address())
		}
	}
	return key, nil
}

// macV3 is sha3_256(dk[16:32] || ciphertext).
func macV3(derivedKey, ciphertext []byte) []byte {
	h := sha3.New256()
	h.Write(derivedKey[16:32])
	h.Write(ciphertext)
	return h.Sum(nil)
}

// macV4 is sha3_256(dk[16:32] || ciphertext || iv || cipher).
func macV4(derivedKey, ciphertext, iv []byte, cipherName string) []byte {
	h := sha3.New256()
	h.Write(derivedKey[16:32])
	h.Write(ciphertext)
	h.Write(iv)
	h.Write([]byte(cipherName))
	return h.Sum(nil)
}

// padPrivateKey left pads b with zeros to 32 bytes.
func padPrivateKey(b []byte) []byte {
	if len(b) >= keys.PrivateKeyLength {
		return b
	}
	out := make([]byte, keys.PrivateKeyLength)
	copy(out[keys.PrivateKeyLength-len(b):], b)
	return out
}
