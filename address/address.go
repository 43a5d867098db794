package address

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // address payload is defined over RIPEMD-160
	"golang.org/x/crypto/sha3"
)

const (
	Length        = 26   // decoded address length
	PayloadLength = 20   // public key digest length
	ChecksumLen   = 4    // sha3-256 checksum prefix length
	Prefix        = 0x19 // global address prefix, renders as 'n' in base-58
)

// Type is the address type byte following the global prefix.
type Type byte

const (
	Normal   Type = 0x57 // externally owned account
	Contract Type = 0x58 // smart contract account
)

func (t Type) String() string {
	switch t {
	case Normal:
		return "normal"
	case Contract:
		return "contract"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// Valid reports whether t is one of the defined address types.
func (t Type) Valid() bool {
	return t == Normal || t == Contract
}

// ErrInvalidFormat is returned for malformed addresses and checksum failures.
var ErrInvalidFormat = errors.New("invalid address format")

// Address is an immutable, validated 26 byte account address.
type Address [Length]byte

// Encode builds an address of type t from a 20 byte public key digest.
func Encode(t Type, payload []byte) (Address, error) {
	var a Address
	if !t.Valid() {
		return a, fmt.Errorf("%w: unknown type %d", ErrInvalidFormat, byte(t))
	}
	if len(payload) != PayloadLength {
		return a, fmt.Errorf("%w: payload length %d, want %d", ErrInvalidFormat, len(payload), PayloadLength)
	}
	a[0] = Prefix
	a[1] = byte(t)
	copy(a[2:], payload)
	copy(a[Length-ChecksumLen:], checksum(a[:Length-ChecksumLen]))
	return a, nil
}

// FromPublicKey derives the address of an uncompressed secp256k1 public key. Both the
// 65 byte (0x04 prefixed) and the 64 byte (X || Y) forms are accepted.
func FromPublicKey(pub []byte, t Type) (Address, error) {
	switch len(pub) {
	case 64:
		pub = append([]byte{0x04}, pub...)
	case 65:
	default:
		return Address{}, fmt.Errorf("%w: public key length %d", ErrInvalidFormat, len(pub))
	}
	return Encode(t, PublicKeyDigest(pub))
}

// PublicKeyDigest returns ripemd160(sha3_256(pub)).
func PublicKeyDigest(pub []byte) []byte {
	h := sha3.Sum256(pub)
	r := ripemd160.New()
	r.Write(h[:])
	return r.Sum(nil)
}

// Decode parses a base-58 address. If expected is supplied the address type must match it.
func Decode(s string, expected ...Type) (Address, error) {
	raw := base58.Decode(s)
	if len(raw) == 0 {
		return Address{}, fmt.Errorf("%w: not base-58", ErrInvalidFormat)
	}
	return FromBytes(raw, expected...)
}

// FromBytes validates 26 raw address bytes.
func FromBytes(raw []byte, expected ...Type) (Address, error) {
	var a Address
	if len(raw) != Length {
		return a, fmt.Errorf("%w: length %d, want %d", ErrInvalidFormat, len(raw), Length)
	}
	if raw[0] != Prefix {
		return a, fmt.Errorf("%w: prefix %#x", ErrInvalidFormat, raw[0])
	}
	t := Type(raw[1])
	if !t.Valid() {
		return a, fmt.Errorf("%w: unknown type %d", ErrInvalidFormat, raw[1])
	}
	if len(expected) > 0 && expected[0] != t {
		return a, fmt.Errorf("%w: type %s, want %s", ErrInvalidFormat, t, expected[0])
	}
	if !bytes.Equal(checksum(raw[:Length-ChecksumLen]), raw[Length-ChecksumLen:]) {
		return a, fmt.Errorf("%w: checksum mismatch", ErrInvalidFormat)
	}
	copy(a[:], raw)
	return a, nil
}

// IsValid collapses Decode to a boolean.
func IsValid(s string, expected ...Type) bool {
	_, err := Decode(s, expected...)
	return err == nil
}

func checksum(content []byte) []byte {
	h := sha3.Sum256(content)
	return h[:ChecksumLen]
}

// Type returns the address type byte.
func (a Address) Type() Type { return Type(a[1]) }

// Payload returns a copy of the 20 byte public key digest.
func (a Address) Payload() []byte {
	p := make([]byte, PayloadLength)
	copy(p, a[2:2+PayloadLength])
	return p
}

// Bytes returns a copy of the raw 26 address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, Length)
	copy(b, a[:])
	return b
}

// IsZero reports whether a was never set.
func (a Address) IsZero() bool { return a == Address{} }

func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	return base58.Encode(a[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	dec, err := Decode(string(text))
	if err != nil {
		return err
	}
	*a = dec
	return nil
}
