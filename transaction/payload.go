package transaction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// PayloadType is the wire tag of a transaction payload.
type PayloadType string

const (
	PayloadBinary PayloadType = "binary"
	PayloadDeploy PayloadType = "deploy"
	PayloadCall   PayloadType = "call"
)

// SourceType is the language of a deployed contract.
type SourceType string

const (
	SourceJS SourceType = "js"
	SourceTS SourceType = "ts"
)

// Payload is the closed set of transaction intents: Binary, Deploy or Call.
type Payload interface {
	Type() PayloadType
	isPayload()
}

// Binary is a plain value transfer with optional opaque data. A Binary with no
// data is the "no payload" value and encodes to an empty payload field.
type Binary struct {
	Data []byte `json:"Data"`
}

// Deploy deploys contract source code.
type Deploy struct {
	SourceType SourceType `json:"SourceType"`
	Source     string     `json:"Source"`
	Args       string     `json:"Args"`
}

// Call invokes a contract function. Args is a JSON array literal.
type Call struct {
	Function string `json:"Function"`
	Args     string `json:"Args"`
}

func (Binary) Type() PayloadType { return PayloadBinary }
func (Deploy) Type() PayloadType { return PayloadDeploy }
func (Call) Type() PayloadType   { return PayloadCall }

func (Binary) isPayload() {}
func (Deploy) isPayload() {}
func (Call) isPayload()   {}

// encodePayload returns the payload bytes carried on the wire.
func encodePayload(p Payload) ([]byte, error) {
	switch v := p.(type) {
	case Binary:
		if len(v.Data) == 0 {
			return nil, nil
		}
		return marshalPayload(v)
	case Deploy:
		if v.SourceType != SourceJS && v.SourceType != SourceTS {
			return nil, fmt.Errorf("%w: source type %q", ErrInvalidPayload, v.SourceType)
		}
		if v.Source == "" {
			return nil, fmt.Errorf("%w: empty contract source", ErrInvalidPayload)
		}
		if err := validUTF8(string(v.SourceType), v.Source, v.Args); err != nil {
			return nil, err
		}
		return marshalPayload(v)
	case Call:
		if v.Function == "" {
			return nil, fmt.Errorf("%w: empty function name", ErrInvalidPayload)
		}
		if err := validUTF8(v.Function, v.Args); err != nil {
			return nil, err
		}
		return marshalPayload(v)
	default:
		return nil, fmt.Errorf("%w: unsupported payload %T", ErrInvalidPayload, p)
	}
}

// marshalPayload renders v as compact JSON with '&', '<' and '>' left unescaped.
func marshalPayload(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func validUTF8(fields ...string) error {
	for _, f := range fields {
		if !utf8.ValidString(f) {
			return fmt.Errorf("%w: invalid utf-8 %q", ErrInvalidPayload, f)
		}
	}
	return nil
}

// decodePayload parses wire payload bytes for the given type tag.
func decodePayload(tag string, data []byte) (Payload, error) {
	switch PayloadType(tag) {
	case PayloadBinary:
		if len(data) == 0 {
			return Binary{}, nil
		}
		// Other producers carry raw bytes rather than the {"Data":...} envelope.
		var b Binary
		if err := json.Unmarshal(data, &b); err != nil || b.Data == nil {
			return Binary{Data: bytes.Clone(data)}, nil
		}
		return b, nil
	case PayloadDeploy:
		var d Deploy
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("%w: deploy payload: %v", ErrDecode, err)
		}
		return d, nil
	case PayloadCall:
		var c Call
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: call payload: %v", ErrDecode, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: payload type %q", ErrDecode, tag)
	}
}
