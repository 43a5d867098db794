package neb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ATMackay/neb-signer/address"
)

const (
	apiPrefix = "/v1/user"

	NebStatePath       = apiPrefix + "/nebstate"
	AccountStatePath   = apiPrefix + "/accountstate"
	RawTransactionPath = apiPrefix + "/rawtransaction"
	ReceiptPath        = apiPrefix + "/getTransactionReceipt"
	GasPricePath       = apiPrefix + "/getGasPrice"

	defaultTimeout = 10 * time.Second
)

// Node is the subset of the node user API used to fetch account state and submit
// signed transactions.
type Node interface {
	GetNebState(ctx context.Context) (*NebState, error)
	GetAccountState(ctx context.Context, addr address.Address, height uint64) (*AccountState, error)
	SendRawTransaction(ctx context.Context, data string) (*SendResult, error)
	GetTransactionReceipt(ctx context.Context, hash string) (*Receipt, error)
	GasPrice(ctx context.Context) (*big.Int, error)
}

// Error is an error message returned by the node. It is passed through uninterpreted.
type Error struct {
	Message string `json:"error"`
}

func (e *Error) Error() string { return e.Message }

// response is the node's {"result": ...} / {"error": ...} envelope.
type response struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

var _ Node = (*Client)(nil)

// Client talks to a single node over HTTP.
type Client struct {
	baseURL string
	c       *http.Client
}

// Dial returns a Client for the node at rawURL. No request is made.
func Dial(rawURL string) (Node, error) {
	return NewClient(rawURL, &http.Client{Timeout: defaultTimeout})
}

// NewClient returns a Client using the supplied http.Client.
func NewClient(rawURL string, hc *http.Client) (*Client, error) {
	rawURL = strings.TrimRight(strings.TrimSpace(rawURL), "/")
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host in url %q", rawURL)
	}
	return &Client{baseURL: rawURL, c: hc}, nil
}

// URL returns the node base URL.
func (c *Client) URL() string { return c.baseURL }

func (c *Client) GetNebState(ctx context.Context) (*NebState, error) {
	var state NebState
	if err := c.call(ctx, http.MethodGet, NebStatePath, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *Client) GetAccountState(ctx context.Context, addr address.Address, height uint64) (*AccountState, error) {
	var state AccountState
	if err := c.call(ctx, http.MethodPost, AccountStatePath, &accountStateRequest{Address: addr.String(), Height: height}, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SendRawTransaction submits the base64 wire form of a signed transaction.
func (c *Client) SendRawTransaction(ctx context.Context, data string) (*SendResult, error) {
	var res SendResult
	if err := c.call(ctx, http.MethodPost, RawTransactionPath, &rawTransactionRequest{Data: data}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetTransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	var r Receipt
	if err := c.call(ctx, http.MethodPost, ReceiptPath, &receiptRequest{Hash: hash}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var res gasPriceJSON
	if err := c.call(ctx, http.MethodGet, GasPricePath, nil, &res); err != nil {
		return nil, err
	}
	return parseBig("gas price", res.GasPrice)
}

func (c *Client) call(ctx context.Context, method, path string, body, result any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env response
	if err := json.Unmarshal(b, &env); err != nil {
		if resp.StatusCode > 399 {
			return fmt.Errorf("node returned status %d", resp.StatusCode)
		}
		return fmt.Errorf("malformed node response: %w", err)
	}
	if env.Error != "" {
		return &Error{Message: env.Error}
	}
	if resp.StatusCode > 399 {
		return fmt.Errorf("node returned status %d", resp.StatusCode)
	}
	if len(env.Result) == 0 || bytes.Equal(env.Result, []byte("null")) {
		return errors.New("empty node result")
	}
	return json.Unmarshal(env.Result, result)
}

// WaitForReceipt polls the node until the transaction leaves the pending state or ctx
// is done. Node errors (e.g. the transaction is not yet known) are retried.
func WaitForReceipt(ctx context.Context, n Node, hash string, interval time.Duration) (*Receipt, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid poll interval %v", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var lastErr error
	for {
		r, err := n.GetTransactionReceipt(ctx, hash)
		switch {
		case err == nil && !r.Pending():
			return r, nil
		case err != nil:
			var nodeErr *Error
			if !errors.As(err, &nodeErr) {
				return nil, err
			}
			lastErr = err
		}
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %v", ctx.Err(), lastErr)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
