package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// endPoint represents an api element.
type endPoint struct {
	path       string
	handler    httprouter.Handle
	methodType string
}

type api struct {
	endpoints []endPoint
}

func makeAPI(endpoints []endPoint) *api {
	r := &api{}
	for _, e := range endpoints {
		r.addEndpoint(e)
	}
	return r
}

func makeServiceAPIs(s *Service) *api {
	return makeAPI([]endPoint{
		{
			path:       StatusEndPnt,
			handler:    s.Status(),
			methodType: http.MethodGet,
		},
		{
			path:       HeathEndPnt,
			handler:    s.Health(),
			methodType: http.MethodGet,
		},
		{
			path:       v0AddressEndPnt,
			handler:    s.Address(),
			methodType: http.MethodGet,
		},
		{
			path:       V0AccountEndPnt,
			handler:    s.Account(),
			methodType: http.MethodGet,
		},
		{
			path:       V0SignEndPnt,
			handler:    s.SignTx(),
			methodType: http.MethodPost,
		},
		{
			path:       V0SendEndPnt,
			handler:    s.SendTx(),
			methodType: http.MethodPost,
		},
		{
			path:       v0ReceiptEndPnt,
			handler:    s.TxReceipt(),
			methodType: http.MethodGet,
		},
	})
}

func (a *api) addEndpoint(e endPoint) {
	a.endpoints = append(a.endpoints, e)
}

// routes configures a new httprouter.Router, wrapping each handle (other than the metrics handle)
// with a logger.
func (a *api) routes(l *logrus.Entry) *httprouter.Router {

	router := httprouter.New()

	for _, e := range a.endpoints {
		router.Handle(e.methodType, e.path, logHTTPRequest(l, e.handler))
	}

	// Add metrics server - do not use logging middleware
	router.Handler(http.MethodGet, MetricsEndPnt, promhttp.Handler())

	return router
}

type hTTPService struct {
	server   *http.Server
	listener net.Listener
	logger   *logrus.Entry
}

// NewHTTPService returns a HTTP server with httprouter Router
// handling requests. Port zero picks a free port when started.
func NewHTTPService(port int, api *api, l *logrus.Entry) *hTTPService {

	handler := api.routes(l)

	return &hTTPService{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: l,
	}
}

// Addr returns the bound listen address once started, otherwise the configured one.
func (h *hTTPService) Addr() string {
	if h.listener != nil {
		return fmt.Sprintf(":%d", h.listener.Addr().(*net.TCPAddr).Port)
	}
	return h.server.Addr
}

// Start binds the TCP address srv.Addr and spawns the server
// which will serve incoming requests.
func (h *hTTPService) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return err
	}
	h.listener = ln
	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.WithFields(logrus.Fields{"error": err}).Warn("serverTerminated")
		}
	}()
	return nil
}

func (h *hTTPService) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.server.Shutdown(ctx)
}

// HTTP logging middleware

// logHTTPRequest provides logging middleware. It surfaces low level request/response data from the http server.
func logHTTPRequest(entry *logrus.Entry, h httprouter.Handle) httprouter.Handle {
	return httprouter.Handle(func(w http.ResponseWriter, req *http.Request, p httprouter.Params) {

		statusRecorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		start := time.Now()
		h(statusRecorder, req, p)
		elapsed := time.Since(start)
		if entry == nil {
			return
		}

		httpCode := statusRecorder.statusCode
		fields := logrus.Fields{
			"http_method":          req.Method,
			"http_code":            httpCode,
			"elapsed_microseconds": elapsed.Microseconds(),
			"url":                  req.URL.Path,
		}
		// only log the response body on error; success bodies may carry signed transactions
		if httpCode > 399 {
			fields["response"] = string(statusRecorder.response)
			entry.WithFields(fields).Warn("httpErr")
		} else {
			entry.WithFields(fields).Debug("servedHttpRequest")
		}
	})
}

// responseRecorder is a wrapper for http.ResponseWriter used
// by logging middleware.
type responseRecorder struct {
	http.ResponseWriter

	statusCode int
	response   []byte
}

func (w *responseRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	w.response = b
	return w.ResponseWriter.Write(b)
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) error {
	response, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, err = w.Write(response)
	return err
}

// JSONError is the body of every error response.
type JSONError struct {
	Error string `json:"error"`
}

func respondWithError(w http.ResponseWriter, code int, msg any) {
	var message string
	switch m := msg.(type) {
	case error:
		message = m.Error()
	case string:
		message = m
	}
	_ = respondWithJSON(w, code, &JSONError{Error: message})
}
