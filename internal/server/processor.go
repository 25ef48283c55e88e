package server

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/cachemir/cellvault/pkg/protocol"
	"github.com/cachemir/cellvault/pkg/vault"
)

// Processor turns request lines into response lines against a shared Vault.
// It holds no per-connection state and is safe for concurrent use.
type Processor struct {
	vault        *vault.Vault
	logger       *slog.Logger
	handlers     map[protocol.CommandType]func(*protocol.Command) string
	sleep        func(time.Duration)
	pingMinDelay time.Duration
	pingMaxDelay time.Duration
	cellCapacity uint32
}

// NewProcessor creates a Processor. New cells get cellCapacity and PING
// replies are delayed by a uniformly random duration in [pingMin, pingMax].
func NewProcessor(v *vault.Vault, cellCapacity uint32, pingMin, pingMax time.Duration, logger *slog.Logger) *Processor {
	p := &Processor{
		vault:        v,
		logger:       logger,
		sleep:        time.Sleep,
		pingMinDelay: pingMin,
		pingMaxDelay: pingMax,
		cellCapacity: cellCapacity,
	}

	p.handlers = map[protocol.CommandType]func(*protocol.Command) string{
		protocol.CmdPut:  p.handlePut,
		protocol.CmdGet:  p.handleGet,
		protocol.CmdList: p.handleList,
		protocol.CmdTake: p.handleTake,
		protocol.CmdPing: p.handlePing,
		protocol.CmdExit: p.handleExit,
	}
	return p
}

// Execute processes one request line.
// It returns the response line without its terminator and whether the
// connection should close after the response is written. A blank line yields
// an empty response, which callers do not send.
func (p *Processor) Execute(line string) (resp string, closeConn bool) {
	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		if errors.Is(err, protocol.ErrEmptyCommand) {
			return "", false
		}
		p.logger.Debug("rejected command", "line", line, "error", err)
		return protocol.ErrorResponse(err), false
	}

	handler, ok := p.handlers[cmd.Type]
	if !ok {
		return protocol.ErrorResponse(protocol.ErrUnknownCommand), false
	}

	p.logger.Debug("command", "cmd", cmd.String())
	return handler(cmd), cmd.Type == protocol.CmdExit
}

// handlePut stores an item, creating the cell with the configured capacity
// when the id is new.
func (p *Processor) handlePut(cmd *protocol.Command) string {
	item := vault.Item{Name: cmd.Name, Size: cmd.Size}
	if err := p.vault.Put(cmd.ID, item, p.cellCapacity); err != nil {
		return protocol.ErrorResponse(err)
	}
	return protocol.RespStored
}

func (p *Processor) handleGet(cmd *protocol.Command) string {
	desc, ok, err := p.vault.Get(cmd.ID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	if !ok {
		return protocol.RespCellEmpty
	}
	return desc
}

func (p *Processor) handleList(_ *protocol.Command) string {
	desc, ok := p.vault.List()
	if !ok {
		return protocol.RespVaultEmpty
	}
	return desc
}

// handleTake removes an item. Missing cells and missing items both surface
// as "item not found".
func (p *Processor) handleTake(cmd *protocol.Command) string {
	item, err := p.vault.Take(cmd.ID, cmd.Name)
	if err != nil {
		return protocol.ErrorResponse(vault.ErrItemNotFound)
	}
	return protocol.TakenResponse(item.Name, item.Size)
}

// handlePing sleeps without touching the vault, so only the calling
// connection waits.
func (p *Processor) handlePing(_ *protocol.Command) string {
	p.sleep(p.pingDelay())
	return protocol.RespPong
}

func (p *Processor) handleExit(_ *protocol.Command) string {
	return protocol.RespBye
}

func (p *Processor) pingDelay() time.Duration {
	span := p.pingMaxDelay - p.pingMinDelay
	if span <= 0 {
		return p.pingMinDelay
	}
	return p.pingMinDelay + rand.N(span+1)
}
