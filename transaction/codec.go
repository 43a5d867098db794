package transaction

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"

	"github.com/ATMackay/neb-signer/address"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the Transaction and Data protobuf messages.
const (
	fieldHash      protowire.Number = 1
	fieldFrom      protowire.Number = 2
	fieldTo        protowire.Number = 3
	fieldValue     protowire.Number = 4
	fieldNonce     protowire.Number = 5
	fieldTimestamp protowire.Number = 6
	fieldData      protowire.Number = 7
	fieldChainID   protowire.Number = 8
	fieldGasPrice  protowire.Number = 9
	fieldGasLimit  protowire.Number = 10
	fieldAlg       protowire.Number = 11
	fieldSign      protowire.Number = 12

	fieldDataType    protowire.Number = 1
	fieldDataPayload protowire.Number = 2
)

// marshalData encodes the Data message {type, payload}. Empty fields are omitted
// as in canonical proto3 encoding.
func marshalData(typ PayloadType, payload []byte) []byte {
	var b []byte
	if typ != "" {
		b = protowire.AppendTag(b, fieldDataType, protowire.BytesType)
		b = protowire.AppendString(b, string(typ))
	}
	if len(payload) > 0 {
		b = protowire.AppendTag(b, fieldDataPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, payload)
	}
	return b
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// Encode returns the protobuf wire form of a signed transaction.
func (tx *Transaction) Encode() ([]byte, error) {
	if !tx.IsSigned() {
		return nil, ErrNotSigned
	}
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

	var b []byte
	b = appendBytesField(b, fieldHash, tx.hash)
	b = appendBytesField(b, fieldFrom, tx.from[:])
	b = appendBytesField(b, fieldTo, tx.to[:])
	b = appendBytesField(b, fieldValue, value)
	b = appendVarintField(b, fieldNonce, tx.nonce)
	b = appendVarintField(b, fieldTimestamp, uint64(tx.timestamp))
	b = appendBytesField(b, fieldData, marshalData(tx.payload.Type(), tx.data))
	b = appendVarintField(b, fieldChainID, uint64(tx.chainID))
	b = appendBytesField(b, fieldGasPrice, gasPrice)
	b = appendBytesField(b, fieldGasLimit, gasLimit)
	b = appendVarintField(b, fieldAlg, uint64(tx.alg))
	b = appendBytesField(b, fieldSign, tx.sign)
	return b, nil
}

// ToBase64 returns base64(Encode()), the form submitted to a node.
func (tx *Transaction) ToBase64() (string, error) {
	b, err := tx.Encode()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// FromBase64 decodes the base64 transport form.
func FromBase64(s string) (*Transaction, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return Decode(b)
}

// wireTx collects the raw protobuf fields before validation.
type wireTx struct {
	hash, from, to, value, data, gasPrice, gasLimit, sign []byte
	nonce, timestamp, chainID, alg                        uint64
	hasData                                               bool
}

// Decode parses the protobuf wire form produced by Encode.
func Decode(b []byte) (*Transaction, error) {
	var w wireTx
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrDecode, protowire.ParseError(n))
		}
		b = b[n:]

		var (
			bytesDst  *[]byte
			varintDst *uint64
		)
		switch num {
		case fieldHash:
			bytesDst = &w.hash
		case fieldFrom:
			bytesDst = &w.from
		case fieldTo:
			bytesDst = &w.to
		case fieldValue:
			bytesDst = &w.value
		case fieldData:
			bytesDst = &w.data
			w.hasData = true
		case fieldGasPrice:
			bytesDst = &w.gasPrice
		case fieldGasLimit:
			bytesDst = &w.gasLimit
		case fieldSign:
			bytesDst = &w.sign
		case fieldNonce:
			varintDst = &w.nonce
		case fieldTimestamp:
			varintDst = &w.timestamp
		case fieldChainID:
			varintDst = &w.chainID
		case fieldAlg:
			varintDst = &w.alg
		}

		switch {
		case bytesDst != nil:
			if typ != protowire.BytesType {
				return nil, fmt.Errorf("%w: field %d has wire type %d", ErrDecode, num, typ)
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrDecode, num, protowire.ParseError(n))
			}
			*bytesDst = append([]byte(nil), v...)
			b = b[n:]
		case varintDst != nil:
			if typ != protowire.VarintType {
				return nil, fmt.Errorf("%w: field %d has wire type %d", ErrDecode, num, typ)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrDecode, num, protowire.ParseError(n))
			}
			*varintDst = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrDecode, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return w.transaction()
}

func (w *wireTx) transaction() (*Transaction, error) {
	from, err := address.FromBytes(w.from)
	if err != nil {
		return nil, fmt.Errorf("%w: from: %v", ErrDecode, err)
	}
	to, err := address.FromBytes(w.to)
	if err != nil {
		return nil, fmt.Errorf("%w: to: %v", ErrDecode, err)
	}
	value, err := uint128FromWire("value", w.value)
	if err != nil {
		return nil, err
	}
	gasPrice, err := uint128FromWire("gas price", w.gasPrice)
	if err != nil {
		return nil, err
	}
	gasLimit, err := uint128FromWire("gas limit", w.gasLimit)
	if err != nil {
		return nil, err
	}
	if w.chainID > math.MaxUint32 || w.alg > math.MaxUint32 {
		return nil, fmt.Errorf("%w: chain id or alg exceeds 32 bits", ErrDecode)
	}
	if !w.hasData {
		return nil, fmt.Errorf("%w: missing data", ErrDecode)
	}
	typ, data, err := unmarshalData(w.data)
	if err != nil {
		return nil, err
	}
	payload, err := decodePayload(typ, data)
	if err != nil {
		return nil, err
	}

	tx := &Transaction{
		chainID:   uint32(w.chainID),
		from:      from,
		to:        to,
		value:     value,
		nonce:     w.nonce,
		timestamp: int64(w.timestamp),
		gasPrice:  gasPrice,
		gasLimit:  gasLimit,
		payload:   payload,
		data:      data,
		hash:      w.hash,
		alg:       uint32(w.alg),
		sign:      w.sign,
	}
	if len(tx.sign) == 0 {
		tx.sign = nil
	}
	return tx, nil
}

func unmarshalData(b []byte) (string, []byte, error) {
	var (
		typ     string
		payload []byte
	)
	for len(b) > 0 {
		num, wt, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, fmt.Errorf("%w: data: %v", ErrDecode, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldDataType && wt == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return "", nil, fmt.Errorf("%w: data type: %v", ErrDecode, protowire.ParseError(n))
			}
			typ = v
			b = b[n:]
		case num == fieldDataPayload && wt == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, fmt.Errorf("%w: data payload: %v", ErrDecode, protowire.ParseError(n))
			}
			if len(v) > 0 {
				payload = append([]byte(nil), v...)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, wt, b)
			if n < 0 {
				return "", nil, fmt.Errorf("%w: data field %d: %v", ErrDecode, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return typ, payload, nil
}

func uint128FromWire(name string, b []byte) (*big.Int, error) {
	if len(b) != uint128Len {
		return nil, fmt.Errorf("%w: %s length %d, want %d", ErrDecode, name, len(b), uint128Len)
	}
	return new(big.Int).SetBytes(b), nil
}

type dataJSON struct {
	Type    PayloadType `json:"payloadType"`
	Payload []byte      `json:"payload"`
}

type txJSON struct {
	ChainID   uint32          `json:"chainID"`
	From      address.Address `json:"from"`
	To        address.Address `json:"to"`
	Value     string          `json:"value"`
	Nonce     uint64          `json:"nonce"`
	Timestamp int64           `json:"timestamp"`
	Data      dataJSON        `json:"data"`
	GasPrice  string          `json:"gasPrice"`
	GasLimit  string          `json:"gasLimit"`
	Hash      string          `json:"hash"`
	Alg       uint32          `json:"alg"`
	Sign      string          `json:"sign"`
}

// MarshalJSON renders the signed transaction as a plain JSON object.
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	if !tx.IsSigned() {
		return nil, ErrNotSigned
	}
	return json.Marshal(&txJSON{
		ChainID:   tx.chainID,
		From:      tx.from,
		To:        tx.to,
		Value:     tx.value.String(),
		Nonce:     tx.nonce,
		Timestamp: tx.timestamp,
		Data:      dataJSON{Type: tx.payload.Type(), Payload: tx.data},
		GasPrice:  tx.gasPrice.String(),
		GasLimit:  tx.gasLimit.String(),
		Hash:      hex.EncodeToString(tx.hash),
		Alg:       tx.alg,
		Sign:      hex.EncodeToString(tx.sign),
	})
}
