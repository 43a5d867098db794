package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ATMackay/neb-signer/address"
	"github.com/ATMackay/neb-signer/neb"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/julienschmidt/httprouter"
)

const (
	StatusEndPnt  = "/status"  // status endpoint for LIVENESS probing
	HeathEndPnt   = "/health"  // health endpoint for READINESS probing
	MetricsEndPnt = "/metrics" // Prometheus metrics endpoint

	AddressKey = ":address"
	HashKey    = ":hash"

	V0AddressPrfx   = "/v0/address/"    // address validation endpoint
	V0AccountEndPnt = "/v0/account"     // signing account state endpoint
	V0SignEndPnt    = "/v0/tx/sign"     // build and sign, no submission
	V0SendEndPnt    = "/v0/tx/send"     // build, sign and submit
	V0ReceiptPrfx   = "/v0/tx/receipt/" // getTransactionReceipt proxy endpoint

	timeout = 10 * time.Second

	maxBodyBytes = 1 << 20
)

var (
	// httprouter endpoints

	// V0
	v0AddressEndPnt = V0AddressPrfx + AddressKey
	v0ReceiptEndPnt = V0ReceiptPrfx + HashKey
)

// StatusResponse contains status response fields.
type StatusResponse struct {
	Message string `json:"message,omitempty"`
	Version string `json:"version,omitempty"`
	Service string `json:"service,omitempty"`
}

// Status implements the status request endpoint. Always returns OK.
func (s *Service) Status() httprouter.Handle {
	return httprouter.Handle(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := respondWithJSON(w, http.StatusOK, &StatusResponse{Message: "OK", Version: FullVersion, Service: ServiceName}); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Errorf("respond error: %v", err))
		}
	})
}

// HealthResponse contains health probe response fields.
type HealthResponse struct {
	Version  string   `json:"version,omitempty"`
	Service  string   `json:"service,omitempty"`
	Failures []string `json:"failures"`
}

// Health pings the connected nodes. It ensures they are ready to accept
// signed transactions.
func (s *Service) Health() httprouter.Handle {
	return httprouter.Handle(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		health := &HealthResponse{
			Service:  ServiceName,
			Version:  FullVersion,
			Failures: []string{},
		}
		httpCode := http.StatusOK

		ctx, cancelFunc := context.WithTimeout(r.Context(), timeout)
		defer cancelFunc()
		if _, err := s.node.GetNebState(ctx); err != nil {
			nodeErrCounter.WithLabelValues("nebstate").Inc()
			for _, f := range strings.Split(err.Error(), "|") {
				if f != "" {
					health.Failures = append(health.Failures, f)
				}
			}
		}

		if len(health.Failures) > 0 {
			httpCode = http.StatusServiceUnavailable
		}

		if err := respondWithJSON(w, httpCode, health); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Errorf("respond error: %v", err))
		}
	})
}

// AddressResponse reports whether an address string is well formed.
type AddressResponse struct {
	Address string `json:"address"`
	Valid   bool   `json:"valid"`
	Type    string `json:"type,omitempty"`
}

// Address validates the address path parameter. Malformed addresses are a valid
// query and return 200 with valid=false.
func (s *Service) Address() httprouter.Handle {
	return httprouter.Handle(func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		raw := p.ByName(AddressKey[1:])
		resp := &AddressResponse{Address: raw}
		if a, err := address.Decode(raw); err == nil {
			resp.Valid = true
			resp.Type = a.Type().String()
		}
		if err := respondWithJSON(w, http.StatusOK, resp); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Errorf("respond error: %v", err))
		}
	})
}

// AccountResponse contains the signing account state.
type AccountResponse struct {
	Address string `json:"address"`
	ChainID uint32 `json:"chainID"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Account returns the signing account balance and nonce as reported by the node.
func (s *Service) Account() httprouter.Handle {
	return httprouter.Handle(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ctx, cancelFunc := context.WithTimeout(r.Context(), timeout)
		defer cancelFunc()
		state, err := s.signer.AccountState(ctx)
		if err != nil {
			respondWithError(w, errorCode(err), err)
			return
		}
		resp := &AccountResponse{
			Address: s.signer.Address().String(),
			ChainID: s.signer.ChainID(),
			Balance: state.Balance.String(),
			Nonce:   state.Nonce,
		}
		if err := respondWithJSON(w, http.StatusOK, resp); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Errorf("respond error: %v", err))
		}
	})
}

// TxResponse contains a signed transaction and, once submitted, the node's answer.
type TxResponse struct {
	Hash            string `json:"hash"`
	Data            string `json:"data"` // base64 wire form
	Nonce           uint64 `json:"nonce"`
	TxHash          string `json:"txhash,omitempty"`
	ContractAddress string `json:"contractAddress,omitempty"`
}

// SignTx builds and signs a transaction with the unlocked account without submitting it.
func (s *Service) SignTx() httprouter.Handle {
	return httprouter.Handle(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		req, err := decodeTxRequest(w, r)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err)
			return
		}
		ctx, cancelFunc := context.WithTimeout(r.Context(), timeout)
		defer cancelFunc()

		tx, err := s.signer.Sign(ctx, req)
		if err != nil {
			respondWithError(w, errorCode(err), err)
			return
		}
		data, err := tx.ToBase64()
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err)
			return
		}
		if err := respondWithJSON(w, http.StatusOK, &TxResponse{Hash: hexutil.Encode(tx.Hash()), Data: data, Nonce: tx.Nonce()}); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Errorf("respond error: %v", err))
		}
	})
}

// SendTx builds, signs and submits a transaction.
func (s *Service) SendTx() httprouter.Handle {
	return httprouter.Handle(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		req, err := decodeTxRequest(w, r)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err)
			return
		}
		ctx, cancelFunc := context.WithTimeout(r.Context(), timeout)
		defer cancelFunc()

		tx, res, err := s.signer.Send(ctx, req)
		if err != nil {
			respondWithError(w, errorCode(err), err)
			return
		}
		data, err := tx.ToBase64()
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err)
			return
		}
		resp := &TxResponse{
			Hash:            hexutil.Encode(tx.Hash()),
			Data:            data,
			Nonce:           tx.Nonce(),
			TxHash:          res.TxHash,
			ContractAddress: res.ContractAddress,
		}
		if err := respondWithJSON(w, http.StatusOK, resp); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Errorf("respond error: %v", err))
		}
	})
}

// TxReceipt returns a handler for the getTransactionReceipt proxy endpoint.
func (s *Service) TxReceipt() httprouter.Handle {
	return httprouter.Handle(func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		hash := strings.TrimPrefix(p.ByName(HashKey[1:]), "0x")
		if b, err := hex.DecodeString(hash); err != nil || len(b) != 32 {
			respondWithError(w, http.StatusBadRequest, fmt.Errorf("invalid hash"))
			return
		}

		ctx, cancelFunc := context.WithTimeout(r.Context(), timeout)
		defer cancelFunc()
		receipt, err := s.node.GetTransactionReceipt(ctx, hash)
		if err != nil {
			nodeErrCounter.WithLabelValues("getTransactionReceipt").Inc()
			respondWithError(w, http.StatusBadGateway, fmt.Errorf("%w: %w", ErrNode, err))
			return
		}

		if err := respondWithJSON(w, http.StatusOK, receipt); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Errorf("respond error: %v", err))
		}
	})
}

func decodeTxRequest(w http.ResponseWriter, r *http.Request) (*TxRequest, error) {
	var req TxRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return &req, nil
}

// errorCode maps signer errors onto HTTP status codes.
func errorCode(err error) int {
	var nodeErr *neb.Error
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &nodeErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNode):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
