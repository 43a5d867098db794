package stack

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/ATMackay/neb-signer/address"
	"github.com/ATMackay/neb-signer/neb"
	"github.com/ATMackay/neb-signer/transaction"
	"github.com/julienschmidt/httprouter"
)

//
// MockNode replicates the user API of a node in memory. Submitted transactions are
// verified and applied immediately, one block per transaction, which lets the signer
// service be tested end-to-end.
//

const MockChainID = 1001

var (
	OneNAS          = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	DefaultGasPrice = big.NewInt(1000000)
)

type account struct {
	balance *big.Int
	nonce   uint64
}

type MockNode struct {
	*httptest.Server

	mu       sync.Mutex
	chainID  uint32
	height   uint64
	gasPrice *big.Int
	accounts map[address.Address]*account
	txs      map[string]*transaction.Transaction // hex hash -> applied transaction
}

// NewMockNode starts a node listening on a loopback port. Close it when done.
func NewMockNode() *MockNode {
	m := &MockNode{
		chainID:  MockChainID,
		height:   1,
		gasPrice: new(big.Int).Set(DefaultGasPrice),
		accounts: make(map[address.Address]*account),
		txs:      make(map[string]*transaction.Transaction),
	}
	router := httprouter.New()
	router.GET(neb.NebStatePath, m.nebState)
	router.POST(neb.AccountStatePath, m.accountState)
	router.POST(neb.RawTransactionPath, m.rawTransaction)
	router.POST(neb.ReceiptPath, m.receipt)
	router.GET(neb.GasPricePath, m.getGasPrice)
	m.Server = httptest.NewServer(router)
	return m
}

// Fund credits value to addr.
func (m *MockNode) Fund(addr address.Address, value *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(addr).balance.Add(m.account(addr).balance, value)
}

// Balance returns the balance of addr.
func (m *MockNode) Balance(addr address.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.account(addr).balance)
}

// Transactions returns the number of applied transactions.
func (m *MockNode) Transactions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs)
}

// account must be called with m.mu held.
func (m *MockNode) account(addr address.Address) *account {
	a, ok := m.accounts[addr]
	if !ok {
		a = &account{balance: new(big.Int)}
		m.accounts[addr] = a
	}
	return a
}

func (m *MockNode) nebState(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	m.mu.Lock()
	state := &neb.NebState{ChainID: m.chainID, Height: m.height, Synchronized: true, ProtocolVersion: "/neb/1.0.0", Version: "mock"}
	m.mu.Unlock()
	writeResult(w, state)
}

func (m *MockNode) accountState(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err.Error())
		return
	}
	addr, err := address.Decode(req.Address)
	if err != nil {
		writeError(w, "address: invalid address format")
		return
	}
	m.mu.Lock()
	a := m.account(addr)
	state := &neb.AccountState{Balance: new(big.Int).Set(a.balance), Nonce: a.nonce, Type: uint32(addr.Type()), Height: m.height}
	m.mu.Unlock()
	writeResult(w, state)
}

func (m *MockNode) rawTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Data string `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err.Error())
		return
	}
	tx, err := transaction.FromBase64(req.Data)
	if err != nil {
		writeError(w, err.Error())
		return
	}
	if err := tx.Verify(); err != nil {
		writeError(w, err.Error())
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.ChainID() != m.chainID {
		writeError(w, "invalid transaction chainID")
		return
	}
	if tx.GasPrice().Cmp(m.gasPrice) < 0 {
		writeError(w, "below the gas price")
		return
	}
	from := m.account(tx.From())
	if tx.Nonce() != from.nonce+1 {
		writeError(w, "transaction's nonce is invalid, should bigger than the from's nonce")
		return
	}
	cost := new(big.Int).Add(tx.Value(), new(big.Int).Mul(tx.GasPrice(), tx.GasLimit()))
	if from.balance.Cmp(cost) < 0 {
		writeError(w, "insufficient balance")
		return
	}
	from.balance.Sub(from.balance, tx.Value())
	to := m.account(tx.To())
	to.balance.Add(to.balance, tx.Value())
	from.nonce++
	m.height++
	hash := hex.EncodeToString(tx.Hash())
	m.txs[hash] = tx
	writeResult(w, &neb.SendResult{TxHash: hash})
}

func (m *MockNode) receipt(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Hash string `json:"hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err.Error())
		return
	}
	m.mu.Lock()
	tx, ok := m.txs[req.Hash]
	m.mu.Unlock()
	if !ok {
		writeError(w, "transaction not found")
		return
	}
	writeResult(w, &neb.Receipt{
		Hash:      req.Hash,
		ChainID:   tx.ChainID(),
		From:      tx.From().String(),
		To:        tx.To().String(),
		Value:     tx.Value().String(),
		Nonce:     strconv.FormatUint(tx.Nonce(), 10),
		Timestamp: strconv.FormatInt(tx.Timestamp(), 10),
		Type:      string(tx.Payload().Type()),
		GasPrice:  tx.GasPrice().String(),
		GasLimit:  tx.GasLimit().String(),
		Status:    neb.StatusSuccess,
		GasUsed:   "20000",
	})
}

func (m *MockNode) getGasPrice(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	m.mu.Lock()
	price := m.gasPrice.String()
	m.mu.Unlock()
	writeResult(w, map[string]string{"gas_price": price})
}

func writeResult(w http.ResponseWriter, result any) {
	b, err := json.Marshal(map[string]any{"result": result})
	if err != nil {
		writeError(w, fmt.Sprintf("marshal result: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, msg string) {
	b, _ := json.Marshal(map[string]string{"error": msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write(b)
}
