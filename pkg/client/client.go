// Package client provides a Go client for CellVault servers.
//
// The client holds one TCP connection, reads the server's welcome line once,
// and then exchanges exactly one response line per command. It can time PING
// round trips, reconnect after the server goes away, and keep an idle
// connection alive with periodic PINGs.
//
// Key Features:
//   - Typed helpers for PUT, GET, LIST and TAKE
//   - Raw command passthrough for interactive shells
//   - Server failure responses mapped onto vault and protocol errors
//   - TCP keepalive on the socket plus protocol-level keepalive PINGs
//   - Reconnect with a fixed delay between attempts
//   - Safe for concurrent use; request/response pairs never interleave
//
// Basic Usage:
//
//	c, err := client.Dial(ctx, config.DefaultClientConfig(), logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	if err := c.Put(1, "gold", 10); errors.Is(err, vault.ErrCellFull) {
//		fmt.Println("no room left in cell 1")
//	}
//
//	item, err := c.Take(1, "gold")
//	rtt, err := c.Ping()
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cachemir/cellvault/pkg/config"
	"github.com/cachemir/cellvault/pkg/protocol"
	"github.com/cachemir/cellvault/pkg/vault"
)

var (
	// ErrServerClosed is returned when the server closes the connection.
	ErrServerClosed = errors.New("server closed connection")
	// ErrNotConnected is returned when the client has no open connection.
	ErrNotConnected = errors.New("not connected")
)

// serverErrors maps failure messages onto the errors that produce them.
var serverErrors = map[string]error{
	vault.ErrVaultFull.Error():         vault.ErrVaultFull,
	vault.ErrCellFull.Error():          vault.ErrCellFull,
	vault.ErrCellNotFound.Error():      vault.ErrCellNotFound,
	vault.ErrItemNotFound.Error():      vault.ErrItemNotFound,
	protocol.ErrUnknownCommand.Error(): protocol.ErrUnknownCommand,
	protocol.ErrInvalidID.Error():      protocol.ErrInvalidID,
}

// ServerError is a failure response sent by the server.
// It unwraps to the matching vault or protocol error when one is known, so
// errors.Is(err, vault.ErrVaultFull) works on client results.
type ServerError struct {
	Message string // Text after "ERROR: "
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

func (e *ServerError) Unwrap() error {
	return serverErrors[e.Message]
}

// UnexpectedResponseError reports a response that does not fit the command.
type UnexpectedResponseError struct {
	Command  string
	Response string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response to %s: %q", e.Command, e.Response)
}

// Client is a connection to one CellVault server.
type Client struct {
	config  *config.ClientConfig
	logger  *slog.Logger
	conn    net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	welcome string
	mu      sync.Mutex // Serializes request/response pairs and reconnects
}

// Dial connects to the server named in cfg and reads its welcome line.
//
// Example:
//
//	cfg := config.DefaultClientConfig()
//	cfg.Address = "vault.internal:7878"
//	c, err := client.Dial(ctx, cfg, logger)
//
// Returns:
//   - A connected Client
//   - Error if the configuration is invalid, the dial fails, or no welcome arrives
func Dial(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	c := &Client{config: cfg, logger: logger}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Welcome returns the welcome line received on the current connection.
func (c *Client) Welcome() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.welcome
}

// connect dials a fresh connection and consumes the welcome line.
// Callers hold c.mu, except Dial where the client is not yet shared.
func (c *Client) connect(ctx context.Context) error {
	dialer := &net.Dialer{
		Timeout: c.config.DialTimeout,
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     c.config.TCPKeepaliveIdle,
			Interval: c.config.TCPKeepaliveInterval,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", c.config.Address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.config.Address, err)
	}

	reader := bufio.NewReader(conn)
	if err := conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
		_ = conn.Close()
		return err
	}
	welcome, err := protocol.ReadLine(reader, 0)
	if err != nil {
		_ = conn.Close()
		if errors.Is(err, io.EOF) {
			return ErrServerClosed
		}
		return fmt.Errorf("read welcome: %w", err)
	}

	c.conn = conn
	c.reader = reader
	c.writer = bufio.NewWriter(conn)
	c.welcome = welcome
	c.logger.Debug("connected", "addr", c.config.Address, "welcome", welcome)
	return nil
}

// roundTrip sends one command line and reads one response line.
// Any transport failure closes the connection, since a late reply would
// otherwise be read as the answer to the next command. Later calls return
// ErrNotConnected until Reconnect succeeds. Callers hold c.mu.
func (c *Client) roundTrip(command string) (string, error) {
	if c.conn == nil {
		return "", ErrNotConnected
	}

	resp, err := c.exchange(command)
	if err != nil {
		if closeErr := c.closeLocked(); closeErr != nil {
			c.logger.Debug("error closing connection", "error", closeErr)
		}
		return "", err
	}
	return resp, nil
}

func (c *Client) exchange(command string) (string, error) {
	if err := protocol.WriteLine(c.writer, command); err != nil {
		return "", fmt.Errorf("send %q: %w", command, err)
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
		return "", err
	}
	resp, err := protocol.ReadLine(c.reader, 0)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", ErrServerClosed
		}
		return "", fmt.Errorf("read response to %q: %w", command, err)
	}
	return resp, nil
}

// Do sends a raw command line and returns the raw response line.
// The command is trimmed before sending. Blank commands are rejected
// locally because the server does not answer them.
func (c *Client) Do(command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", protocol.ErrEmptyCommand
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip(command)
}

// do sends cmd and converts failure responses into *ServerError.
func (c *Client) do(cmd *protocol.Command) (string, error) {
	resp, err := c.Do(cmd.String())
	if err != nil {
		return "", err
	}
	if protocol.IsError(resp) {
		return "", &ServerError{Message: strings.TrimPrefix(resp, protocol.ErrorPrefix)}
	}
	return resp, nil
}

// Put stores an item in cell id.
// Full vaults and cells surface as errors wrapping vault.ErrVaultFull and
// vault.ErrCellFull.
func (c *Client) Put(id uint32, name string, size uint32) error {
	cmd := &protocol.Command{Type: protocol.CmdPut, ID: id, Name: name, Size: size}
	resp, err := c.do(cmd)
	if err != nil {
		return err
	}
	if resp != protocol.RespStored {
		return &UnexpectedResponseError{Command: cmd.String(), Response: resp}
	}
	return nil
}

// Get returns the description of cell id, or "" when the cell is empty.
// A missing cell surfaces as an error wrapping vault.ErrCellNotFound.
func (c *Client) Get(id uint32) (string, error) {
	resp, err := c.do(&protocol.Command{Type: protocol.CmdGet, ID: id})
	if err != nil {
		return "", err
	}
	if resp == protocol.RespCellEmpty {
		return "", nil
	}
	return resp, nil
}

// List returns the occupied cell ids in the order the server reports them.
func (c *Client) List() ([]uint32, error) {
	cmd := &protocol.Command{Type: protocol.CmdList}
	resp, err := c.do(cmd)
	if err != nil {
		return nil, err
	}
	if resp == protocol.RespVaultEmpty {
		return nil, nil
	}

	rest, ok := strings.CutPrefix(resp, protocol.OccupiedPrefix)
	if !ok {
		return nil, &UnexpectedResponseError{Command: cmd.String(), Response: resp}
	}

	fields := strings.Split(rest, ",")
	ids := make([]uint32, 0, len(fields))
	for _, field := range fields {
		id, err := strconv.ParseUint(strings.TrimSpace(field), 10, 32)
		if err != nil {
			return nil, &UnexpectedResponseError{Command: cmd.String(), Response: resp}
		}
		ids = append(ids, uint32(id))
	}
	return ids, nil
}

// Take removes the first item called name from cell id and returns it.
// The server reports missing cells and missing items alike, as an error
// wrapping vault.ErrItemNotFound.
func (c *Client) Take(id uint32, name string) (vault.Item, error) {
	cmd := &protocol.Command{Type: protocol.CmdTake, ID: id, Name: name}
	resp, err := c.do(cmd)
	if err != nil {
		return vault.Item{}, err
	}

	rest, ok := strings.CutPrefix(resp, protocol.TakenPrefix)
	if !ok {
		return vault.Item{}, &UnexpectedResponseError{Command: cmd.String(), Response: resp}
	}

	// The size is the last field; names never contain whitespace.
	idx := strings.LastIndexByte(rest, ' ')
	if idx < 0 {
		return vault.Item{}, &UnexpectedResponseError{Command: cmd.String(), Response: resp}
	}
	size, err := strconv.ParseUint(rest[idx+1:], 10, 32)
	if err != nil {
		return vault.Item{}, &UnexpectedResponseError{Command: cmd.String(), Response: resp}
	}
	return vault.Item{Name: rest[:idx], Size: uint32(size)}, nil
}

// Ping sends PING and returns the round-trip time.
// Any reply other than PONG is an error.
func (c *Client) Ping() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	resp, err := c.roundTrip(protocol.CmdPing.String())
	if err != nil {
		return 0, err
	}
	if resp != protocol.RespPong {
		return 0, &UnexpectedResponseError{Command: protocol.CmdPing.String(), Response: resp}
	}
	return time.Since(start), nil
}

// Exit sends EXIT, waits for the farewell and closes the connection.
func (c *Client) Exit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.roundTrip(protocol.CmdExit.String())
	closeErr := c.closeLocked()
	if err != nil {
		return err
	}
	if resp != protocol.RespBye {
		return &UnexpectedResponseError{Command: protocol.CmdExit.String(), Response: resp}
	}
	return closeErr
}

// Reconnect drops the current connection and dials again, waiting
// ReconnectDelay between failed attempts, until it succeeds or ctx ends.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.closeLocked()

	for {
		err := c.connect(ctx)
		if err == nil {
			c.logger.Info("reconnected", "addr", c.config.Address)
			return nil
		}
		c.logger.Warn("reconnect failed", "addr", c.config.Address, "error", err, "retry_in", c.config.ReconnectDelay)

		timer := time.NewTimer(c.config.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Keepalive pings the server every KeepaliveInterval until ctx ends and
// reconnects whenever a ping fails. It returns immediately when the interval
// is zero.
func (c *Client) Keepalive(ctx context.Context) {
	if c.config.KeepaliveInterval <= 0 {
		return
	}

	ticker := time.NewTicker(c.config.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rtt, err := c.Ping()
		if err == nil {
			c.logger.Debug("keepalive", "rtt", rtt)
			continue
		}

		c.logger.Warn("keepalive failed, reconnecting", "error", err)
		if err := c.Reconnect(ctx); err != nil {
			return
		}
	}
}

// Close closes the connection without sending EXIT.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	c.writer = nil
	return err
}
