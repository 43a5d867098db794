package keystore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const (
	Version3       = 3
	Version4       = 4
	CurrentVersion = Version4

	MACHashSHA3256 = "sha3256"
)

// Record is the portable, password protected keystore document.
type Record struct {
	Version int    `json:"version"`
	ID      string `json:"id"`
	Address string `json:"address"`
	Crypto  Crypto `json:"crypto"`
}

// Crypto holds the ciphertext and every parameter needed to decrypt it.
type Crypto struct {
	CipherText   string       `json:"ciphertext"`
	CipherParams CipherParams `json:"cipherparams"`
	Cipher       string       `json:"cipher"`
	KDF          string       `json:"kdf"`
	KDFParams    KDFParams    `json:"kdfparams"`
	MAC          string       `json:"mac"`
	MACHash      string       `json:"machash"`
}

type CipherParams struct {
	IV string `json:"iv"`
}

// KDFParams is the union of scrypt (n, r, p) and pbkdf2 (c, prf) parameters.
type KDFParams struct {
	DKLen int    `json:"dklen"`
	Salt  string `json:"salt"`
	N     int    `json:"n,omitempty"`
	R     int    `json:"r,omitempty"`
	P     int    `json:"p,omitempty"`
	C     int    `json:"c,omitempty"`
	PRF   string `json:"prf,omitempty"`
}

// Marshal encodes the record as JSON.
func (r *Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal parses a JSON keystore record.
func Unmarshal(b []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return &r, nil
}

func encodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// decodeHex accepts upper or lower case hex.
func decodeHex(field, s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, field, err)
	}
	return b, nil
}
