package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ATMackay/neb-signer/address"
	"github.com/ATMackay/neb-signer/keys"
	"github.com/ATMackay/neb-signer/neb"
	"github.com/ATMackay/neb-signer/transaction"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrNode       = errors.New("node error")
)

// TxRequest describes a transaction to build and sign with the unlocked account.
// Type selects the payload: "binary" (default, uses Data), "deploy" (SourceType,
// Source, Args) or "call" (Function, Args).
type TxRequest struct {
	To       string `json:"to"`
	Value    string `json:"value,omitempty"`
	Nonce    uint64 `json:"nonce,omitempty"` // zero allocates the next account nonce
	GasPrice string `json:"gasPrice,omitempty"`
	GasLimit string `json:"gasLimit,omitempty"`

	Type       string `json:"type,omitempty"`
	Data       []byte `json:"data,omitempty"`
	SourceType string `json:"sourceType,omitempty"`
	Source     string `json:"source,omitempty"`
	Function   string `json:"function,omitempty"`
	Args       string `json:"args,omitempty"`
}

// Signer owns the unlocked signing key and allocates nonces for it. Sign and send are
// serialised so concurrent requests never reuse a nonce.
type Signer struct {
	key     *keys.Key
	node    neb.Node
	chainID uint32

	mu        sync.Mutex
	lastNonce uint64 // highest nonce accepted by the node through this signer
}

// NewSigner returns a Signer for key on chain chainID.
func NewSigner(key *keys.Key, node neb.Node, chainID uint32) *Signer {
	return &Signer{key: key, node: node, chainID: chainID}
}

// Address returns the signing account address.
func (s *Signer) Address() address.Address { return s.key.Address() }

// ChainID returns the chain the signer builds transactions for.
func (s *Signer) ChainID() uint32 { return s.chainID }

// AccountState fetches the signing account's latest state from the node.
func (s *Signer) AccountState(ctx context.Context) (*neb.AccountState, error) {
	state, err := s.node.GetAccountState(ctx, s.key.Address(), 0)
	if err != nil {
		nodeErrCounter.WithLabelValues("accountstate").Inc()
		return nil, fmt.Errorf("%w: %w", ErrNode, err)
	}
	return state, nil
}

// Sign builds and signs req without submitting it.
func (s *Signer) Sign(ctx context.Context, req *TxRequest) (*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}
	txCounter.WithLabelValues(outcomeSigned).Inc()
	return tx, nil
}

// Send builds, signs and submits req. The allocated nonce is only consumed if the node
// accepts the transaction.
func (s *Signer) Send(ctx context.Context, req *TxRequest) (*transaction.Transaction, *neb.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.build(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	txCounter.WithLabelValues(outcomeSigned).Inc()

	data, err := tx.ToBase64()
	if err != nil {
		return nil, nil, err
	}
	res, err := s.node.SendRawTransaction(ctx, data)
	if err != nil {
		nodeErrCounter.WithLabelValues("rawtransaction").Inc()
		txCounter.WithLabelValues(outcomeRejected).Inc()
		return nil, nil, fmt.Errorf("%w: %w", ErrNode, err)
	}
	if tx.Nonce() > s.lastNonce {
		s.lastNonce = tx.Nonce()
	}
	txCounter.WithLabelValues(outcomeSent).Inc()
	return tx, res, nil
}

// build must be called with s.mu held.
func (s *Signer) build(ctx context.Context, req *TxRequest) (*transaction.Transaction, error) {
	to, err := address.Decode(req.To)
	if err != nil {
		return nil, fmt.Errorf("%w: to: %v", ErrBadRequest, err)
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		return nil, err
	}
	gasLimit, err := parseAmount("gasLimit", req.GasLimit)
	if err != nil {
		return nil, err
	}
	gasPrice, err := parseAmount("gasPrice", req.GasPrice)
	if err != nil {
		return nil, err
	}
	if gasPrice == nil {
		if gasPrice, err = s.node.GasPrice(ctx); err != nil {
			nodeErrCounter.WithLabelValues("getGasPrice").Inc()
			return nil, fmt.Errorf("%w: %w", ErrNode, err)
		}
	}
	payload, err := req.payload()
	if err != nil {
		return nil, err
	}

	nonce := req.Nonce
	if nonce == 0 {
		if nonce, err = s.nextNonce(ctx); err != nil {
			return nil, err
		}
	}

	tx, err := transaction.New(&transaction.Params{
		ChainID:  s.chainID,
		From:     s.key.Address(),
		To:       to,
		Value:    value,
		Nonce:    nonce,
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		Payload:  payload,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := tx.Sign(s.key); err != nil {
		return nil, err
	}
	return tx, nil
}

// nextNonce returns one past the larger of the node's account nonce and the last
// nonce this signer had accepted.
func (s *Signer) nextNonce(ctx context.Context) (uint64, error) {
	state, err := s.AccountState(ctx)
	if err != nil {
		return 0, err
	}
	n := state.Nonce
	if s.lastNonce > n {
		n = s.lastNonce
	}
	return n + 1, nil
}

func (r *TxRequest) payload() (transaction.Payload, error) {
	switch transaction.PayloadType(r.Type) {
	case "", transaction.PayloadBinary:
		return transaction.Binary{Data: r.Data}, nil
	case transaction.PayloadDeploy:
		return transaction.Deploy{SourceType: transaction.SourceType(r.SourceType), Source: r.Source, Args: r.Args}, nil
	case transaction.PayloadCall:
		return transaction.Call{Function: r.Function, Args: r.Args}, nil
	default:
		return nil, fmt.Errorf("%w: unknown payload type %q", ErrBadRequest, r.Type)
	}
}

// parseAmount parses a non-negative base 10 integer. An empty string yields nil.
func parseAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid %s %q", ErrBadRequest, field, s)
	}
	return v, nil
}
