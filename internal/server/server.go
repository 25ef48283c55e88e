// Package server implements the CellVault TCP server.
//
// The server accepts plain TCP connections and speaks the line protocol from
// package protocol. Every connection is served by its own goroutine; all of
// them share one vault.Vault.
//
// Architecture:
//   - Listener accepting connections until Stop is called
//   - One goroutine per connection: welcome line, then read/execute/respond
//   - Processor parsing commands and applying them to the Vault
//   - Vault serializing access with a single mutex
//
// Example usage:
//
//	srv := server.New(cfg, logger)
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
//
// Connections have no read or write deadlines. A connection ends when the
// client sends EXIT, closes its side, sends a line longer than
// protocol.MaxLineLength, or the transport fails.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cachemir/cellvault/pkg/config"
	"github.com/cachemir/cellvault/pkg/protocol"
	"github.com/cachemir/cellvault/pkg/vault"
)

// Server represents a CellVault server instance.
// It owns the listener and the process-wide Vault shared by every connection.
//
// Example:
//
//	srv := server.New(cfg, logger)
//	go func() {
//		if err := srv.Start(); err != nil {
//			logger.Error("server error", "error", err)
//		}
//	}()
//
//	// Later, to stop accepting connections
//	srv.Stop()
type Server struct {
	vault     *vault.Vault
	processor *Processor
	logger    *slog.Logger
	listener  net.Listener
	addr      string
	conns     sync.WaitGroup
	mu        sync.Mutex // Protects listener
}

// New creates a Server from cfg. The server is not listening until Listen or
// Start is called.
func New(cfg *config.ServerConfig, logger *slog.Logger) *Server {
	v := vault.New(cfg.VaultCapacity)
	return &Server{
		vault:     v,
		processor: NewProcessor(v, cfg.CellCapacity, cfg.PingMinDelay, cfg.PingMaxDelay, logger),
		logger:    logger,
		addr:      cfg.Address(),
	}
}

// Vault returns the vault shared by all connections.
func (s *Server) Vault() *vault.Vault {
	return s.vault
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("vault server listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections on the bound listener until Stop is called.
// Accept errors other than a closed listener are logged and do not stop the
// loop. Serve returns nil after Stop.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	if listener == nil {
		return errors.New("server is not listening")
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("failed to accept connection", "error", err)
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConnection(conn)
		}()
	}
}

// Start binds the configured address and serves until Stop is called.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop closes the listener. Connections already being served run until
// their clients leave.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Wait blocks until every connection handler has returned.
func (s *Server) Wait() {
	s.conns.Wait()
}

// handleConnection runs the per-connection state machine:
// greet, then read a line, execute it and write the response until the
// peer leaves, the transport fails, or the client sends EXIT.
func (s *Server) handleConnection(conn net.Conn) {
	logger := s.logger.With("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())
	logger.Info("connection opened")

	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Warn("error closing connection", "error", err)
		}
		logger.Info("connection closed")
	}()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	if err := protocol.WriteLine(writer, protocol.Welcome); err != nil {
		logger.Debug("failed to write welcome", "error", err)
		return
	}

	for {
		line, err := protocol.ReadLine(reader, protocol.MaxLineLength)
		if errors.Is(err, protocol.ErrLineTooLong) {
			logger.Warn("request line too long", "limit", protocol.MaxLineLength)
			_ = protocol.WriteLine(writer, protocol.ErrorResponse(err))
			return
		}
		if err != nil {
			logger.Debug("read ended", "error", err)
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			if err := writer.Flush(); err != nil {
				return
			}
			continue
		}

		resp, closeConn := s.processor.Execute(input)
		if err := protocol.WriteLine(writer, resp); err != nil {
			logger.Debug("failed to write response", "error", err)
			return
		}
		if closeConn {
			return
		}
	}
}
