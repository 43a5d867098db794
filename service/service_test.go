package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/ATMackay/neb-signer/address"
	"github.com/ATMackay/neb-signer/keys"
	"github.com/ATMackay/neb-signer/neb"
	"github.com/ATMackay/neb-signer/transaction"
	yaml "gopkg.in/yaml.v3"
)

const (
	testPrivKey     = "ab14bca2fd7703b76972a696a6df4ebeb45f20d01086d695b46b6120adbae4d9"
	testAddress     = "n1TA6on2ikjjUcpwbtjjcsAgHTP7fEZ41Bk"
	toAddress       = "n1Gb7sxoj9s6hGbcwKs5mHWqVaBt1xsdgYN"
	contractAddress = "n22TK8fuUGbMGFKZTWus7a2R3a24uhr1NaQ"
	dummyHash       = "39368ad673463549d505f446026147204c41c6d3882a9f51f7df9e09ef064fbd"
	testChainID     = 1001
)

var _ neb.Node = (*fakeNode)(nil)

// fakeNode is an in-memory node. err fails every call; rejectErr fails submissions only.
type fakeNode struct {
	mu        sync.Mutex
	nonce     uint64
	sent      []*transaction.Transaction
	err       error
	rejectErr error
}

func (f *fakeNode) GetNebState(context.Context) (*neb.NebState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &neb.NebState{ChainID: testChainID, Height: 10}, nil
}

func (f *fakeNode) GetAccountState(_ context.Context, _ address.Address, _ uint64) (*neb.AccountState, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &neb.AccountState{Balance: big.NewInt(5000), Nonce: f.nonce}, nil
}

// SendRawTransaction accepts only the next nonce; the account nonce advances
// immediately, as if every transaction were mined at once.
func (f *fakeNode) SendRawTransaction(_ context.Context, data string) (*neb.SendResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.rejectErr != nil {
		return nil, f.rejectErr
	}
	tx, err := transaction.FromBase64(data)
	if err != nil {
		return nil, &neb.Error{Message: err.Error()}
	}
	if err := tx.Verify(); err != nil {
		return nil, &neb.Error{Message: err.Error()}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx.Nonce() != f.nonce+1 {
		return nil, &neb.Error{Message: "transaction's nonce is invalid, should bigger than the from's nonce"}
	}
	f.nonce++
	f.sent = append(f.sent, tx)
	return &neb.SendResult{TxHash: fmt.Sprintf("%x", tx.Hash())}, nil
}

func (f *fakeNode) sentTxs() []*transaction.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*transaction.Transaction(nil), f.sent...)
}

func (f *fakeNode) GetTransactionReceipt(_ context.Context, hash string) (*neb.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &neb.Receipt{Hash: hash, Status: neb.StatusSuccess}, nil
}

func (f *fakeNode) GasPrice(context.Context) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return big.NewInt(2000000), nil
}

func makeTestService(t *testing.T, node neb.Node) *Service {
	l, err := NewLogger("error", "plain")
	if err != nil {
		t.Fatal(err)
	}
	k, err := keys.FromHex(testPrivKey)
	if err != nil {
		t.Fatal(err)
	}
	s := New(0, l, node, NewSigner(k, node, testChainID))
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Stop(os.Kill) })
	return s
}

func Test_Logger(t *testing.T) {

	tests := []struct {
		name      string
		loglevel  string
		logformat string
		expectErr bool
	}{
		{
			"normal-info-plain",
			"info",
			"plain",
			false,
		},
		{
			"normal-info-json",
			"info",
			"json",
			false,
		},
		{
			"normal-debug-plain",
			"debug",
			"plain",
			false,
		},
		{
			"error-loglevel",
			"invalid",
			"plain",
			true,
		},
		{
			"error-logformat",
			"info",
			"invalid",
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLoggerWithOutput(tt.loglevel, tt.logformat, io.Discard); (err != nil) != tt.expectErr {
				t.Errorf("unexpected error '%v'", err)
			}
		})
	}
}

func Test_LoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLoggerWithOutput("info", "json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if g, w := line["message"], "hello"; g != w {
		t.Errorf("unexpected message, got %v, want %v", g, w)
	}
	if g, w := line["serviceName"], ServiceName; g != w {
		t.Errorf("unexpected service name, got %v, want %v", g, w)
	}
}

func Test_StartStop(t *testing.T) {
	srv := makeTestService(t, &fakeNode{})
	if srv.Server().Addr() == ":0" {
		t.Errorf("listener port not resolved")
	}
}

func Test_SantizeConfig(t *testing.T) {

	tests := []struct {
		name           string
		initialConfig  func() Config
		expectedConfig func() Config
	}{
		{
			"empty",
			func() Config {
				return emptyConfig
			},
			func() Config {
				return defaultConfig
			},
		},
		{
			"empty-with-port",
			func() Config {
				cfg := emptyConfig
				cfg.Port = 1
				return cfg
			},
			func() Config {
				cfg := defaultConfig
				cfg.Port = 1
				return cfg
			},
		},
		{
			"empty-with-log-level",
			func() Config {
				cfg := emptyConfig
				cfg.LogLevel = "debug"
				return cfg
			},
			func() Config {
				cfg := defaultConfig
				cfg.LogLevel = "debug"
				return cfg
			},
		},
		{
			"empty-with-keystore",
			func() Config {
				cfg := emptyConfig
				cfg.Keystore = "/var/lib/neb-signer/accounts.db"
				cfg.ChainID = 1
				return cfg
			},
			func() Config {
				cfg := defaultConfig
				cfg.Keystore = "/var/lib/neb-signer/accounts.db"
				cfg.ChainID = 1
				return cfg
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.initialConfig()
			c.Sanitize()
			b, _ := yaml.Marshal(c)
			e, _ := yaml.Marshal(tt.expectedConfig())
			if !bytes.Equal(b, e) {
				t.Errorf("returned config not equal to default")
			}
		})
	}
}

func Test_API(t *testing.T) {

	apiTests := []struct {
		name             string
		node             *fakeNode
		methodType       string
		endpoint         string
		body             any
		expectedResponse any
		expectedCode     int
	}{
		//
		// READ REQUESTS
		//
		{
			"status",
			&fakeNode{},
			http.MethodGet,
			StatusEndPnt,
			nil,
			&StatusResponse{Message: "OK", Version: FullVersion, Service: ServiceName},
			http.StatusOK,
		},
		{
			"health",
			&fakeNode{},
			http.MethodGet,
			HeathEndPnt,
			nil,
			&HealthResponse{Version: FullVersion, Service: ServiceName, Failures: []string{}},
			http.StatusOK,
		},
		{
			"address-normal",
			&fakeNode{},
			http.MethodGet,
			V0AddressPrfx + testAddress,
			nil,
			&AddressResponse{Address: testAddress, Valid: true, Type: "normal"},
			http.StatusOK,
		},
		{
			"address-contract",
			&fakeNode{},
			http.MethodGet,
			V0AddressPrfx + contractAddress,
			nil,
			&AddressResponse{Address: contractAddress, Valid: true, Type: "contract"},
			http.StatusOK,
		},
		{
			"address-malformed",
			&fakeNode{},
			http.MethodGet,
			V0AddressPrfx + "n1TA6on2ikjjUcpwbtjjcsAgHTP7fEZ41Bm",
			nil,
			&AddressResponse{Address: "n1TA6on2ikjjUcpwbtjjcsAgHTP7fEZ41Bm"},
			http.StatusOK,
		},
		{
			"account",
			&fakeNode{nonce: 4},
			http.MethodGet,
			V0AccountEndPnt,
			nil,
			&AccountResponse{Address: testAddress, ChainID: testChainID, Balance: "5000", Nonce: 4},
			http.StatusOK,
		},
		{
			"receipt",
			&fakeNode{},
			http.MethodGet,
			V0ReceiptPrfx + "0x" + dummyHash,
			nil,
			&neb.Receipt{Hash: dummyHash, Status: neb.StatusSuccess},
			http.StatusOK,
		},
		//
		// CLIENT ERRORS
		//
		{
			"sign-bad-to",
			&fakeNode{},
			http.MethodPost,
			V0SignEndPnt,
			&TxRequest{To: "0xfe3b557e8fb62b89f4916b721be55ceb828dbd73", Value: "1"},
			&JSONError{Error: "bad request: to: invalid address format: not base-58"},
			http.StatusBadRequest,
		},
		{
			"sign-bad-value",
			&fakeNode{},
			http.MethodPost,
			V0SignEndPnt,
			&TxRequest{To: toAddress, Value: "-1"},
			&JSONError{Error: `bad request: invalid value "-1"`},
			http.StatusBadRequest,
		},
		{
			"sign-bad-payload-type",
			&fakeNode{},
			http.MethodPost,
			V0SignEndPnt,
			&TxRequest{To: toAddress, Type: "transfer"},
			&JSONError{Error: `bad request: unknown payload type "transfer"`},
			http.StatusBadRequest,
		},
		{
			"sign-call-no-function",
			&fakeNode{},
			http.MethodPost,
			V0SignEndPnt,
			&TxRequest{To: toAddress, Type: "call", Args: "[]"},
			&JSONError{Error: "bad request: invalid transaction payload: empty function name"},
			http.StatusBadRequest,
		},
		{
			"sign-unknown-field",
			&fakeNode{},
			http.MethodPost,
			V0SignEndPnt,
			map[string]string{"to": toAddress, "from": testAddress},
			&JSONError{Error: `bad request: json: unknown field "from"`},
			http.StatusBadRequest,
		},
		{
			"receipt-bad-hash",
			&fakeNode{},
			http.MethodGet,
			V0ReceiptPrfx + "0x1234",
			nil,
			&JSONError{Error: "invalid hash"},
			http.StatusBadRequest,
		},
		//
		// SERVER ERRORS
		//
		{
			"health-node-err",
			&fakeNode{err: errors.New("node 0 err: testErr|")},
			http.MethodGet,
			HeathEndPnt,
			nil,
			&HealthResponse{Version: FullVersion, Service: ServiceName, Failures: []string{"node 0 err: testErr"}},
			http.StatusServiceUnavailable,
		},
		{
			"account-node-err",
			&fakeNode{err: errors.New("testErr")},
			http.MethodGet,
			V0AccountEndPnt,
			nil,
			&JSONError{Error: "node error: testErr"},
			http.StatusBadGateway,
		},
		{
			"send-rejected",
			&fakeNode{rejectErr: &neb.Error{Message: "below the gas price"}},
			http.MethodPost,
			V0SendEndPnt,
			&TxRequest{To: toAddress, Value: "1"},
			&JSONError{Error: "node error: below the gas price"},
			http.StatusUnprocessableEntity,
		},
		{
			"receipt-node-err",
			&fakeNode{err: errors.New("testErr")},
			http.MethodGet,
			V0ReceiptPrfx + dummyHash,
			nil,
			&JSONError{Error: "node error: testErr"},
			http.StatusBadGateway,
		},
	}

	for _, tt := range apiTests {
		t.Run(tt.name, func(t *testing.T) {

			s := makeTestService(t, tt.node)

			b, code, err := executeRequest(tt.methodType, fmt.Sprintf("http://127.0.0.1%v%v", s.Server().Addr(), tt.endpoint), tt.body)
			if err != nil {
				t.Fatalf("%v: %v", tt.name, err)
			}
			if g, w := code, tt.expectedCode; g != w {
				t.Errorf("%v unexpected response code, want %v got %v", tt.name, w, g)
			}

			expectedJSON, _ := json.Marshal(tt.expectedResponse)

			if g, w := b, expectedJSON; !bytes.Equal(g, w) {
				t.Errorf("%v unexpected response, want %s, got %s", tt.name, w, g)
			}
		})

	}
}

func Test_SignAndSend(t *testing.T) {
	node := &fakeNode{nonce: 7}
	s := makeTestService(t, node)
	base := fmt.Sprintf("http://127.0.0.1%v", s.Server().Addr())

	// sign does not submit or consume the nonce
	b, code, err := executeRequest(http.MethodPost, base+V0SignEndPnt, &TxRequest{To: toAddress, Value: "10", Type: "call", Function: "save", Args: "[0]"})
	if err != nil {
		t.Fatal(err)
	}
	if code != http.StatusOK {
		t.Fatalf("unexpected code %d: %s", code, b)
	}
	var signed TxResponse
	if err := json.Unmarshal(b, &signed); err != nil {
		t.Fatal(err)
	}
	tx, err := transaction.FromBase64(signed.Data)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Verify(); err != nil {
		t.Fatalf("signed transaction does not verify: %v", err)
	}
	if g, w := tx.Nonce(), uint64(8); g != w {
		t.Errorf("unexpected nonce, got %v, want %v", g, w)
	}
	if g, w := tx.ChainID(), uint32(testChainID); g != w {
		t.Errorf("unexpected chain id, got %v, want %v", g, w)
	}
	if g, w := tx.GasPrice().String(), "2000000"; g != w {
		t.Errorf("node gas price not used, got %v, want %v", g, w)
	}
	if g, w := tx.Payload(), transaction.Payload(transaction.Call{Function: "save", Args: "[0]"}); g != w {
		t.Errorf("unexpected payload, got %v, want %v", g, w)
	}
	if g, w := signed.Hash, fmt.Sprintf("0x%x", tx.Hash()); g != w {
		t.Errorf("unexpected hash, got %v, want %v", g, w)
	}
	if len(node.sentTxs()) != 0 {
		t.Errorf("sign submitted a transaction")
	}

	// send submits with the same nonce
	b, code, err = executeRequest(http.MethodPost, base+V0SendEndPnt, &TxRequest{To: toAddress, Value: "10", GasPrice: "1000000", GasLimit: "30000"})
	if err != nil {
		t.Fatal(err)
	}
	if code != http.StatusOK {
		t.Fatalf("unexpected code %d: %s", code, b)
	}
	var sent TxResponse
	if err := json.Unmarshal(b, &sent); err != nil {
		t.Fatal(err)
	}
	if g, w := sent.Nonce, uint64(8); g != w {
		t.Errorf("unexpected nonce, got %v, want %v", g, w)
	}
	if g, w := "0x"+sent.TxHash, sent.Hash; g != w {
		t.Errorf("unexpected txhash, got %v, want %v", g, w)
	}
	if g, w := node.sentTxs()[0].GasLimit().String(), "30000"; g != w {
		t.Errorf("unexpected gas limit, got %v, want %v", g, w)
	}
}

func Test_ConcurrentSendNonces(t *testing.T) {
	node := &fakeNode{}
	s := makeTestService(t, node)
	url := fmt.Sprintf("http://127.0.0.1%v%v", s.Server().Addr(), V0SendEndPnt)

	const n = 20
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		nonces []int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, code, err := executeRequest(http.MethodPost, url, &TxRequest{To: toAddress, Value: "1"})
			if err != nil || code != http.StatusOK {
				t.Errorf("send failed: %v %d %s", err, code, b)
				return
			}
			var resp TxResponse
			if err := json.Unmarshal(b, &resp); err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			nonces = append(nonces, int(resp.Nonce))
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Ints(nonces)
	for i, nonce := range nonces {
		if nonce != i+1 {
			t.Fatalf("nonces not contiguous: %v", nonces)
		}
	}
}

func Test_Metrics(t *testing.T) {
	s := makeTestService(t, &fakeNode{})
	base := fmt.Sprintf("http://127.0.0.1%v", s.Server().Addr())
	if _, _, err := executeRequest(http.MethodPost, base+V0SendEndPnt, &TxRequest{To: toAddress}); err != nil {
		t.Fatal(err)
	}
	b, code, err := executeRequest(http.MethodGet, base+MetricsEndPnt, nil)
	if err != nil {
		t.Fatal(err)
	}
	if code != http.StatusOK {
		t.Fatalf("unexpected code %d", code)
	}
	if !strings.Contains(string(b), `neb_signer_transactions_total{outcome="sent"}`) {
		t.Errorf("sent counter missing from metrics output")
	}
}

func executeRequest(methodType, url string, body any) (respBytes []byte, code int, err error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), methodType, url, r)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	response, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := response.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	b, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, response.StatusCode, err
	}
	return b, response.StatusCode, nil
}
