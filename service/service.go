package service

import (
	"os"

	"github.com/ATMackay/neb-signer/neb"
	"github.com/sirupsen/logrus"
)

// Service is the main application struct containing the node client, the
// unlocked signer, the http server and logger. It can be called to start and stop.
type Service struct {
	node   neb.Node
	signer *Signer
	server *hTTPService
	logger *logrus.Entry
}

// New constructs a Service with node client, signer, logger and http server.
func New(port int, l *logrus.Entry, node neb.Node, signer *Signer) *Service {
	srv := &Service{
		node:   node,
		signer: signer,
		logger: l,
	}
	srv.server = NewHTTPService(port, makeServiceAPIs(srv), l)
	return srv
}

// Start creates the HTTP server.
func (s *Service) Start() error {
	s.logger.WithFields(logrus.Fields{
		"compilationDate": date,
		"gitCommit":       gitCommitHash,
		"account":         s.signer.Address().String(),
		"chainID":         s.signer.ChainID(),
	}).Infof("starting %v service", ServiceName)
	if err := s.server.Start(); err != nil {
		return err
	}

	s.logger.Infof("listening on port %v", s.server.Addr())
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Service) Stop(sig os.Signal) {
	s.logger.WithFields(logrus.Fields{"signal": sig}).Infof("stopping %v service", ServiceName)

	if err := s.server.Stop(); err != nil {
		s.logger.WithFields(logrus.Fields{"error": err}).Error("error stopping server")
	}
}

// Server exposes the http server externally.
func (s *Service) Server() *hTTPService {
	return s.server
}
