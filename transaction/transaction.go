package transaction

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ATMackay/neb-signer/address"
	"github.com/ATMackay/neb-signer/keys"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

const (
	// SECP256K1 is the only signature algorithm identifier.
	SECP256K1 uint32 = 1

	uint128Len = 16
)

// Gas defaults substituted when a caller leaves gas price or limit unset (nil or zero).
// Nodes reject a zero gas price and a zero gas limit, so zero is never a meaningful request.
var (
	DefaultGasPrice = big.NewInt(1000000)
	DefaultGasLimit = big.NewInt(20000)
)

// Params carries the caller supplied fields of a new transaction.
type Params struct {
	ChainID  uint32
	From     address.Address
	To       address.Address
	Value    *big.Int
	Nonce    uint64
	GasPrice *big.Int
	GasLimit *big.Int
	Payload  Payload

	// Timestamp in unix seconds. Zero means the current wall clock time.
	Timestamp int64
}

// Transaction is an account transaction. It is mutable only until Sign succeeds.
type Transaction struct {
	chainID   uint32
	from      address.Address
	to        address.Address
	value     *big.Int
	nonce     uint64
	timestamp int64
	gasPrice  *big.Int
	gasLimit  *big.Int
	payload   Payload
	data      []byte // wire encoding of payload

	hash []byte
	alg  uint32
	sign []byte
}

// New validates p and builds an unsigned transaction.
func New(p *Params) (*Transaction, error) {
	if p.From.IsZero() {
		return nil, fmt.Errorf("%w: missing from", ErrInvalidAddress)
	}
	if p.To.IsZero() {
		return nil, fmt.Errorf("%w: missing to", ErrInvalidAddress)
	}
	if p.Timestamp < 0 {
		return nil, fmt.Errorf("%w: negative timestamp", ErrValueOverflow)
	}

	tx := &Transaction{
		chainID:   p.ChainID,
		from:      p.From,
		to:        p.To,
		value:     bigOrZero(p.Value),
		nonce:     p.Nonce,
		timestamp: p.Timestamp,
		gasPrice:  withDefault(p.GasPrice, DefaultGasPrice),
		gasLimit:  withDefault(p.GasLimit, DefaultGasLimit),
		payload:   normalizePayload(p.Payload),
	}
	if tx.timestamp == 0 {
		tx.timestamp = time.Now().Unix()
	}
	for _, f := range []struct {
		name string
		v    *big.Int
	}{{"value", tx.value}, {"gas price", tx.gasPrice}, {"gas limit", tx.gasLimit}} {
		if _, err := padUint128(f.v); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}

	data, err := encodePayload(tx.payload)
	if err != nil {
		return nil, err
	}
	tx.data = data
	return tx, nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func withDefault(v, def *big.Int) *big.Int {
	if v == nil || v.Sign() == 0 {
		return new(big.Int).Set(def)
	}
	return new(big.Int).Set(v)
}

func normalizePayload(p Payload) Payload {
	switch v := p.(type) {
	case nil:
		return Binary{}
	case Binary:
		if len(v.Data) == 0 {
			return Binary{}
		}
	}
	return p
}

// HashTransaction computes the sha3-256 digest signed by the sender:
// from || to || value(16) || nonce(8) || timestamp(8) || data || chainID(4) || gasPrice(16) || gasLimit(16)
// where data is the protobuf encoding of {type, payload}.
func (tx *Transaction) HashTransaction() ([]byte, error) {
	value, err := padUint128(tx.value)
	if err != nil {
		return nil, err
	}
	gasPrice, err := padUint128(tx.gasPrice)
	if err != nil {
		return nil, err
	}
	gasLimit, err := padUint128(tx.gasLimit)
	if err != nil {
		return nil, err
	}

	var (
		nonce     [8]byte
		timestamp [8]byte
		chainID   [4]byte
	)
	binary.BigEndian.PutUint64(nonce[:], tx.nonce)
	binary.BigEndian.PutUint64(timestamp[:], uint64(tx.timestamp))
	binary.BigEndian.PutUint32(chainID[:], tx.chainID)

	h := sha3.New256()
	h.Write(tx.from[:])
	h.Write(tx.to[:])
	h.Write(value)
	h.Write(nonce[:])
	h.Write(timestamp[:])
	h.Write(marshalData(tx.payload.Type(), tx.data))
	h.Write(chainID[:])
	h.Write(gasPrice)
	h.Write(gasLimit)
	return h.Sum(nil), nil
}

// Sign hashes the transaction and signs it with k, which must belong to the sender.
// A signed transaction cannot be signed again.
func (tx *Transaction) Sign(k *keys.Key) error {
	if tx.IsSigned() {
		return ErrAlreadySigned
	}
	if k == nil {
		return ErrMissingPrivateKey
	}
	if k.Address() != tx.from {
		return fmt.Errorf("%w: key %s, from %s", ErrSignerMismatch, k.Address(), tx.from)
	}
	hash, err := tx.HashTransaction()
	if err != nil {
		return err
	}
	sig, err := k.Sign(hash)
	if err != nil {
		if errors.Is(err, keys.ErrInvalidKey) {
			return ErrMissingPrivateKey
		}
		return err
	}
	tx.hash = hash
	tx.alg = SECP256K1
	tx.sign = sig
	return nil
}

// Verify checks the stored hash against the fields and that the signature was
// produced by the sender.
func (tx *Transaction) Verify() error {
	if !tx.IsSigned() {
		return ErrNotSigned
	}
	if tx.alg != SECP256K1 {
		return fmt.Errorf("%w: unsupported algorithm %d", ErrInvalidSignature, tx.alg)
	}
	hash, err := tx.HashTransaction()
	if err != nil {
		return err
	}
	if !bytes.Equal(hash, tx.hash) {
		return fmt.Errorf("%w: hash mismatch", ErrInvalidSignature)
	}
	signer, err := keys.RecoverAddress(hash, tx.sign)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if signer != tx.from {
		return fmt.Errorf("%w: signer %s, from %s", ErrInvalidSignature, signer, tx.from)
	}
	return nil
}

// padUint128 left pads v to 16 big-endian bytes.
func padUint128(v *big.Int) ([]byte, error) {
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value %v", ErrValueOverflow, v)
	}
	if v.BitLen() > uint128Len*8 {
		return nil, fmt.Errorf("%w: %v does not fit in %d bytes", ErrValueOverflow, v, uint128Len)
	}
	return common.LeftPadBytes(v.Bytes(), uint128Len), nil
}

func (tx *Transaction) IsSigned() bool { return tx.sign != nil }

func (tx *Transaction) ChainID() uint32       { return tx.chainID }
func (tx *Transaction) From() address.Address { return tx.from }
func (tx *Transaction) To() address.Address   { return tx.to }
func (tx *Transaction) Value() *big.Int       { return new(big.Int).Set(tx.value) }
func (tx *Transaction) Nonce() uint64         { return tx.nonce }
func (tx *Transaction) Timestamp() int64      { return tx.timestamp }
func (tx *Transaction) GasPrice() *big.Int    { return new(big.Int).Set(tx.gasPrice) }
func (tx *Transaction) GasLimit() *big.Int    { return new(big.Int).Set(tx.gasLimit) }
func (tx *Transaction) Payload() Payload      { return tx.payload }
func (tx *Transaction) PayloadData() []byte   { return common.CopyBytes(tx.data) }
func (tx *Transaction) Hash() []byte          { return common.CopyBytes(tx.hash) }
func (tx *Transaction) Alg() uint32           { return tx.alg }
func (tx *Transaction) Signature() []byte     { return common.CopyBytes(tx.sign) }
