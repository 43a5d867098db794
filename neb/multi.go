package neb

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ATMackay/neb-signer/address"
)

// Multi nodes

var _ Node = (*MultiNodeClient)(nil)

// MultiNodeClient fans requests out over an ordered list of nodes. The first node to
// answer successfully is moved one place up the priority list.
type MultiNodeClient struct {
	nodes []*item
	mu    sync.RWMutex
}

// item carries an id so that a priority swap can detect the list was reordered concurrently.
type item struct {
	id     string // position in the configured url list
	client Node
}

// NewMultiNodeClient connects to a comma-separated list of node URLs. URLs that fail to
// construct are skipped; at least one must succeed.
func NewMultiNodeClient(possibleUrls string, constructor func(url string) (Node, error)) (*MultiNodeClient, error) {
	urls := strings.Split(possibleUrls, ",")
	var nodes []*item
	errs := make(map[string]error)
	for i := 0; i < len(urls); i++ {
		url := strings.TrimSpace(urls[i])
		if url == "" {
			continue
		}
		n, err := constructor(url)
		if err != nil {
			errs[url] = err
			continue
		}
		nodes = append(nodes, &item{
			id:     fmt.Sprintf("%d", len(nodes)),
			client: n,
		})
	}
	if len(nodes) == 0 {
		message := "cannot connect to any nodes"
		for url, err := range errs {
			message = fmt.Sprintf("%s url='%s' err='%s'", message, url, err.Error())
		}
		return nil, errors.New(message)
	}
	return &MultiNodeClient{
		nodes: nodes,
	}, nil
}

// Len returns the number of connected nodes.
func (m *MultiNodeClient) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

func (m *MultiNodeClient) increaseNodePriority(position int, id string) {
	if position == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nodes[position].id != id {
		return
	}
	m.nodes[position-1], m.nodes[position] = m.nodes[position], m.nodes[position-1]
}

func (m *MultiNodeClient) snapshot() []*item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nodes := make([]*item, len(m.nodes))
	copy(nodes, m.nodes)
	return nodes
}

// multiNodeCall runs fn against each node in priority order and terminates at the first
// success. A node level rejection (*Error) is authoritative and is not retried elsewhere.
func multiNodeCall[result any](m *MultiNodeClient, fn func(Node) (result, error)) (out result, err error) {
	nodes := m.snapshot()
	for i := 0; i < len(nodes); i++ {
		out, err = fn(nodes[i].client)
		if err == nil {
			m.increaseNodePriority(i, nodes[i].id)
			return
		}
		var nodeErr *Error
		if errors.As(err, &nodeErr) {
			return
		}
	}
	return
}

func (m *MultiNodeClient) GetAccountState(ctx context.Context, addr address.Address, height uint64) (*AccountState, error) {
	return multiNodeCall(m, func(n Node) (*AccountState, error) {
		return n.GetAccountState(ctx, addr, height)
	})
}

func (m *MultiNodeClient) SendRawTransaction(ctx context.Context, data string) (*SendResult, error) {
	return multiNodeCall(m, func(n Node) (*SendResult, error) {
		return n.SendRawTransaction(ctx, data)
	})
}

func (m *MultiNodeClient) GetTransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	return multiNodeCall(m, func(n Node) (*Receipt, error) {
		return n.GetTransactionReceipt(ctx, hash)
	})
}

func (m *MultiNodeClient) GasPrice(ctx context.Context) (*big.Int, error) {
	return multiNodeCall(m, func(n Node) (*big.Int, error) {
		return n.GasPrice(ctx)
	})
}

const heightDiff = 3 // max tail height difference tolerated between two connected nodes

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// GetNebState queries every node and is used as the readiness probe. It returns an error
// listing each failing node ('|' separated) if any node is unreachable, reports a different
// chain id, or lags the previous node by more than heightDiff blocks.
func (m *MultiNodeClient) GetNebState(ctx context.Context) (*NebState, error) {
	var (
		states []*NebState
		errStr string
	)
	for i, node := range m.snapshot() {
		s, err := node.client.GetNebState(ctx)
		if err != nil {
			errStr += fmt.Sprintf("node %d err: %s|", i, err.Error())
			continue
		}
		if len(states) > 0 {
			prev := states[len(states)-1]
			if s.ChainID != prev.ChainID {
				errStr += fmt.Sprintf("node %d reports chain id %d, expected %d|", i, s.ChainID, prev.ChainID)
			} else if absDiff(s.Height, prev.Height) > heightDiff {
				errStr += fmt.Sprintf("node %d (%d) and previous node (%d) are reporting different chain tips|", i, s.Height, prev.Height)
			}
		}
		states = append(states, s)
	}
	if errStr != "" {
		return nil, errors.New(errStr)
	}
	return states[0], nil
}
