package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/ATMackay/neb-signer/address"
	"github.com/ATMackay/neb-signer/neb"
	"github.com/ATMackay/neb-signer/service"
)

// Client is an HTTP client for the neb-signer service.
type Client struct {
	baseURL string
	c       *http.Client
	mu      sync.Mutex
	headers http.Header
}

// New returns a new neb-signer http client.
func New(url string) *Client {
	return &Client{
		baseURL: strings.TrimRight(url, "/"),
		c:       new(http.Client),
		headers: makeDefaultHeaders(),
	}
}

func makeDefaultHeaders() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return h
}

// SetHeader sets a header sent with every subsequent request.
func (client *Client) SetHeader(key, value string) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.headers.Set(key, value)
}

// WithHeaders returns a context carrying per request headers.
func WithHeaders(ctx context.Context, h http.Header) context.Context {
	return context.WithValue(ctx, mdHeaderKey{}, h)
}

func (client *Client) Status(ctx context.Context) (*service.StatusResponse, error) {
	var status service.StatusResponse
	if err := client.executeRequest(ctx, &status, http.MethodGet, service.StatusEndPnt, nil); err != nil {
		return nil, err
	}
	return &status, nil
}

func (client *Client) Health(ctx context.Context) (*service.HealthResponse, error) {
	var health service.HealthResponse
	if err := client.executeRequest(ctx, &health, http.MethodGet, service.HeathEndPnt, nil); err != nil {
		return nil, err
	}
	return &health, nil
}

// ValidateAddress asks the service whether addr is a well formed address.
func (client *Client) ValidateAddress(ctx context.Context, addr string) (*service.AddressResponse, error) {
	var resp service.AddressResponse
	if err := client.executeRequest(ctx, &resp, http.MethodGet, service.V0AddressPrfx+addr, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Account returns the signing account state.
func (client *Client) Account(ctx context.Context) (*service.AccountResponse, error) {
	var resp service.AccountResponse
	if err := client.executeRequest(ctx, &resp, http.MethodGet, service.V0AccountEndPnt, nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SignTransaction builds and signs req without submitting it.
func (client *Client) SignTransaction(ctx context.Context, req *service.TxRequest) (*service.TxResponse, error) {
	var resp service.TxResponse
	if err := client.executeRequest(ctx, &resp, http.MethodPost, service.V0SignEndPnt, req); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendTransaction builds, signs and submits req.
func (client *Client) SendTransaction(ctx context.Context, req *service.TxRequest) (*service.TxResponse, error) {
	var resp service.TxResponse
	if err := client.executeRequest(ctx, &resp, http.MethodPost, service.V0SendEndPnt, req); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Transfer sends value (base units) to the given address with no payload.
func (client *Client) Transfer(ctx context.Context, to address.Address, value string) (*service.TxResponse, error) {
	return client.SendTransaction(ctx, &service.TxRequest{To: to.String(), Value: value})
}

func (client *Client) TransactionReceipt(ctx context.Context, hash string) (*neb.Receipt, error) {
	var receipt neb.Receipt
	if err := client.executeRequest(ctx, &receipt, http.MethodGet, service.V0ReceiptPrfx+hash, nil); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (client *Client) executeRequest(ctx context.Context, result any, method, path string, body any) (err error) {

	op := &requestOp{
		path:   path,
		method: method,
		msg:    body,
		resp:   make(chan *jsonResult, 1),
	}
	if err := client.sendHTTP(ctx, op, result); err != nil {
		return err
	}

	jsonRes, err := op.wait(ctx)
	if err != nil {
		return err
	}
	if jsonRes.errMsg != nil {
		return &Error{Code: jsonRes.code, Message: jsonRes.errMsg.Error}
	}

	return nil
}

// Error is an error response returned by the service.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func (client *Client) sendHTTP(ctx context.Context, op *requestOp, result any) error {

	respBody, status, err := client.doRequest(ctx, op.method, op.path, op.msg)
	if err != nil {
		return err
	}

	defer respBody.Close()

	var res = &jsonResult{
		result: result,
		code:   status,
	}

	// process resp or error
	if status > 399 {
		errMsg := service.JSONError{}
		if err := json.NewDecoder(respBody).Decode(&errMsg); err != nil {
			return fmt.Errorf("status %d: %w", status, err)
		}
		res.errMsg = &errMsg
	} else {
		if err := json.NewDecoder(respBody).Decode(result); err != nil {
			return err
		}
	}

	op.resp <- res

	return nil
}

func (client *Client) doRequest(ctx context.Context, method, path string, msg any) (io.ReadCloser, int, error) {
	// Serialize JSON-encoded method
	var body []byte
	var err error
	if msg != nil {
		body, err = json.Marshal(msg)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, io.NopCloser(bytes.NewReader(body)))
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	req.ContentLength = int64(len(body))
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }

	// set headers
	client.mu.Lock()
	req.Header = client.headers.Clone()
	client.mu.Unlock()
	setHeaders(req.Header, headersFromContext(ctx))

	// do request
	resp, err := client.c.Do(req)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return resp.Body, resp.StatusCode, nil
}

type jsonResult struct {
	result any
	code   int
	errMsg *service.JSONError
}

type requestOp struct {
	path   string
	method string
	msg    any
	resp   chan *jsonResult
}

func (op *requestOp) wait(ctx context.Context) (*jsonResult, error) {
	select {
	case <-ctx.Done():
		// Send the timeout error
		return nil, ctx.Err()
	case resp := <-op.resp:
		return resp, nil
	}
}

type mdHeaderKey struct{}

// headersFromContext is used to extract http.Header from context.
func headersFromContext(ctx context.Context) http.Header {
	source, _ := ctx.Value(mdHeaderKey{}).(http.Header)
	return source
}

// setHeaders sets all headers from src in dst.
func setHeaders(dst http.Header, src http.Header) http.Header {
	for key, values := range src {
		dst[http.CanonicalHeaderKey(key)] = values
	}
	return dst
}
