package stack

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ATMackay/neb-signer/accounts"
	"github.com/ATMackay/neb-signer/keys"
	"github.com/ATMackay/neb-signer/keystore"
	"github.com/ATMackay/neb-signer/neb"
	"github.com/ATMackay/neb-signer/service"
)

const testPassphrase = "stack-passphrase"

// fastKeystore keeps scrypt cheap for tests.
var fastKeystore = keystore.Options{N: 16, R: 8, P: 1}

// SvcStack is a running signer service wired to an in-memory node.
type SvcStack struct {
	Node    *MockNode
	Store   *accounts.Store
	Account *keys.Key
	Service *service.Service
}

// BaseURL returns the service root URL.
func (s *SvcStack) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1%v", s.Service.Server().Addr())
}

// MockSignerService starts a mock node and a signer service whose account is created
// in a temporary keystore, unlocked and funded with one NAS.
func MockSignerService(t testing.TB, logLevel string) *SvcStack {
	t.Helper()

	node := NewMockNode()
	t.Cleanup(node.Close)

	store, err := accounts.Open(filepath.Join(t.TempDir(), "keystore.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	created, err := store.Create(testPassphrase, &fastKeystore)
	if err != nil {
		t.Fatal(err)
	}
	created.Zero()

	list, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	key, err := store.Unlock(list[0], testPassphrase)
	if err != nil {
		t.Fatal(err)
	}
	node.Fund(key.Address(), OneNAS)

	cfg := &service.Config{
		LogLevel:  logLevel, // change to 'info' or 'debug' to see the service logs
		LogFormat: "plain",
		URLs:      node.URL,
	}

	l, err := service.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		t.Fatal(err)
	}

	nodes, err := neb.NewMultiNodeClient(cfg.URLs, neb.Dial)
	if err != nil {
		t.Fatal(err)
	}

	svc := service.New(cfg.Port, l, nodes, service.NewSigner(key, nodes, MockChainID))
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { svc.Stop(os.Kill) })

	return &SvcStack{
		Node:    node,
		Store:   store,
		Account: key,
		Service: svc,
	}
}
