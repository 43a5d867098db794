package neb

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
)

// Receipt status values reported by getTransactionReceipt.
const (
	StatusFailed  = 0
	StatusSuccess = 1
	StatusPending = 2
)

// NebState is the result of GET /v1/user/nebstate.
type NebState struct {
	ChainID         uint32 `json:"chain_id"`
	Tail            string `json:"tail"`
	LIB             string `json:"lib"`
	Height          uint64 `json:"height,string"`
	ProtocolVersion string `json:"protocol_version"`
	Synchronized    bool   `json:"synchronized"`
	Version         string `json:"version"`
}

// AccountState is the result of POST /v1/user/accountstate.
type AccountState struct {
	Balance *big.Int
	Nonce   uint64
	Type    uint32
	Height  uint64
	Pending uint64
}

type accountStateJSON struct {
	Balance string `json:"balance"`
	Nonce   string `json:"nonce"`
	Type    uint32 `json:"type"`
	Height  string `json:"height"`
	Pending string `json:"pending"`
}

func (a *AccountState) UnmarshalJSON(b []byte) error {
	var raw accountStateJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	balance, err := parseBig("balance", raw.Balance)
	if err != nil {
		return err
	}
	out := AccountState{Balance: balance, Type: raw.Type}
	for _, f := range []struct {
		name string
		s    string
		dst  *uint64
	}{{"nonce", raw.Nonce, &out.Nonce}, {"height", raw.Height, &out.Height}, {"pending", raw.Pending, &out.Pending}} {
		if *f.dst, err = parseUint(f.name, f.s); err != nil {
			return err
		}
	}
	*a = out
	return nil
}

func (a *AccountState) MarshalJSON() ([]byte, error) {
	balance := "0"
	if a.Balance != nil {
		balance = a.Balance.String()
	}
	return json.Marshal(&accountStateJSON{
		Balance: balance,
		Nonce:   strconv.FormatUint(a.Nonce, 10),
		Type:    a.Type,
		Height:  strconv.FormatUint(a.Height, 10),
		Pending: strconv.FormatUint(a.Pending, 10),
	})
}

// SendResult is the result of POST /v1/user/rawtransaction.
type SendResult struct {
	TxHash          string `json:"txhash"`
	ContractAddress string `json:"contract_address"`
}

// Receipt is the result of POST /v1/user/getTransactionReceipt.
type Receipt struct {
	Hash            string `json:"hash"`
	ChainID         uint32 `json:"chainId"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	Nonce           string `json:"nonce"`
	Timestamp       string `json:"timestamp"`
	Type            string `json:"type"`
	Data            string `json:"data"`
	GasPrice        string `json:"gas_price"`
	GasLimit        string `json:"gas_limit"`
	ContractAddress string `json:"contract_address"`
	Status          int    `json:"status"`
	GasUsed         string `json:"gas_used"`
	ExecuteError    string `json:"execute_error"`
	ExecuteResult   string `json:"execute_result"`
}

// Pending reports whether the transaction is not yet included in a block.
func (r *Receipt) Pending() bool { return r.Status == StatusPending }

type gasPriceJSON struct {
	GasPrice string `json:"gas_price"`
}

type accountStateRequest struct {
	Address string `json:"address"`
	Height  uint64 `json:"height"`
}

type rawTransactionRequest struct {
	Data string `json:"data"`
}

type receiptRequest struct {
	Hash string `json:"hash"`
}

func parseBig(field, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s %q", field, s)
	}
	return v, nil
}

func parseUint(field, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return v, nil
}
