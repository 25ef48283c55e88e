// Package protocol implements the line-oriented text protocol spoken between
// CellVault clients and servers.
//
// The protocol is deliberately simple:
//   - Every message is one line of ASCII/UTF-8 text terminated by '\n'
//   - The server greets each connection with a single welcome line
//   - The client sends exactly one command per line
//   - The server answers every non-empty command with exactly one line
//
// Command grammar (keywords are case-sensitive):
//
//	PUT <id> <name> <size>   store an item in cell <id>
//	GET <id>                 describe the items in cell <id>
//	LIST                     list occupied cell ids
//	TAKE <id> <name>         remove the first item called <name>
//	PING                     liveness probe, answered with PONG
//	EXIT                     say goodbye and close the connection
//
// Example usage:
//
//	cmd, err := protocol.ParseCommand("PUT 1 gold 10")
//	if err != nil {
//		fmt.Println(protocol.ErrorResponse(err)) // "ERROR: usage PUT <id> <name> <size>"
//		return
//	}
//	// cmd.Type == CmdPut, cmd.ID == 1, cmd.Name == "gold", cmd.Size == 10
//
// Errors and failure responses share their text: every error value returned by
// ParseCommand renders as the message that follows "ERROR: " on the wire.
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Fixed response lines.
const (
	Welcome        = "Welcome to the vault!"
	RespStored     = "OK: item stored"
	RespCellEmpty  = "Cell is empty"
	RespVaultEmpty = "Vault is empty"
	RespPong       = "PONG"
	RespBye        = "Bye!"
)

// Response prefixes.
const (
	ErrorPrefix    = "ERROR: "          // Every failure response
	TakenPrefix    = "OK: taken "       // Successful TAKE
	ItemsPrefix    = "Items: "          // Non-empty GET
	OccupiedPrefix = "Occupied cells: " // Non-empty LIST
)

// MaxLineLength bounds a request line read by the server, terminator included.
const MaxLineLength = 4096

const (
	minArgsForPut  = 4
	minArgsForGet  = 2
	minArgsForTake = 3
)

// Protocol errors.
var (
	ErrEmptyCommand   = errors.New("empty command")
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidID      = errors.New("invalid id")
	ErrLineTooLong    = errors.New("line too long")
)

// UsageError reports a command whose arguments are missing or malformed.
type UsageError struct {
	Usage string // Command synopsis, e.g. "PUT <id> <name> <size>"
}

func (e *UsageError) Error() string {
	return "usage " + e.Usage
}

// Command synopses used in usage errors.
const (
	UsagePut  = "PUT <id> <name> <size>"
	UsageGet  = "GET <id>"
	UsageTake = "TAKE <id> <name>"
)

// CommandType identifies a protocol command.
type CommandType uint8

const (
	CmdPut  CommandType = iota // PUT id name size
	CmdGet                     // GET id
	CmdList                    // LIST
	CmdTake                    // TAKE id name
	CmdPing                    // PING
	CmdExit                    // EXIT
)

var commandNames = map[CommandType]string{
	CmdPut:  "PUT",
	CmdGet:  "GET",
	CmdList: "LIST",
	CmdTake: "TAKE",
	CmdPing: "PING",
	CmdExit: "EXIT",
}

func (t CommandType) String() string {
	if name, ok := commandNames[t]; ok {
		return name
	}
	return fmt.Sprintf("CommandType(%d)", uint8(t))
}

// Command is one parsed request line. Only the fields relevant to Type are set.
type Command struct {
	Name string      // Item name (PUT, TAKE)
	ID   uint32      // Cell id (PUT, GET, TAKE)
	Size uint32      // Item size (PUT)
	Type CommandType // The operation to perform
}

// String renders the command in wire form without the trailing newline.
//
// Example:
//
//	(&Command{Type: CmdTake, ID: 3, Name: "gold"}).String() // "TAKE 3 gold"
func (c *Command) String() string {
	switch c.Type {
	case CmdPut:
		return fmt.Sprintf("PUT %d %s %d", c.ID, c.Name, c.Size)
	case CmdGet:
		return fmt.Sprintf("GET %d", c.ID)
	case CmdTake:
		return fmt.Sprintf("TAKE %d %s", c.ID, c.Name)
	default:
		return c.Type.String()
	}
}

// ParseCommand parses one request line.
// Leading and trailing whitespace is ignored; arguments are separated by any
// run of whitespace and surplus arguments are ignored.
//
// Returns:
//   - The parsed Command
//   - ErrEmptyCommand for a blank line
//   - ErrUnknownCommand for an unrecognised keyword
//   - *UsageError for missing or unparseable arguments
//   - ErrInvalidID when GET is given an id that is not an unsigned 32-bit integer
func ParseCommand(line string) (*Command, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil, ErrEmptyCommand
	}

	switch parts[0] {
	case "PUT":
		return parsePutCommand(parts)
	case "GET":
		return parseGetCommand(parts)
	case "LIST":
		return &Command{Type: CmdList}, nil
	case "TAKE":
		return parseTakeCommand(parts)
	case "PING":
		return &Command{Type: CmdPing}, nil
	case "EXIT":
		return &Command{Type: CmdExit}, nil
	default:
		return nil, ErrUnknownCommand
	}
}

func parsePutCommand(parts []string) (*Command, error) {
	if len(parts) < minArgsForPut {
		return nil, &UsageError{Usage: UsagePut}
	}
	id, err := parseUint32(parts[1])
	if err != nil {
		return nil, &UsageError{Usage: UsagePut}
	}
	size, err := parseUint32(parts[3])
	if err != nil {
		return nil, &UsageError{Usage: UsagePut}
	}
	return &Command{Type: CmdPut, ID: id, Name: parts[2], Size: size}, nil
}

func parseGetCommand(parts []string) (*Command, error) {
	if len(parts) < minArgsForGet {
		return nil, &UsageError{Usage: UsageGet}
	}
	id, err := parseUint32(parts[1])
	if err != nil {
		return nil, ErrInvalidID
	}
	return &Command{Type: CmdGet, ID: id}, nil
}

func parseTakeCommand(parts []string) (*Command, error) {
	if len(parts) < minArgsForTake {
		return nil, &UsageError{Usage: UsageTake}
	}
	id, err := parseUint32(parts[1])
	if err != nil {
		return nil, &UsageError{Usage: UsageTake}
	}
	return &Command{Type: CmdTake, ID: id, Name: parts[2]}, nil
}

// parseUint32 parses a decimal unsigned 32-bit integer. One leading '+' is
// accepted.
func parseUint32(s string) (uint32, error) {
	s, _ = strings.CutPrefix(s, "+")
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// ErrorResponse renders err as a failure response line.
func ErrorResponse(err error) string {
	return ErrorPrefix + err.Error()
}

// TakenResponse renders a successful TAKE response.
func TakenResponse(name string, size uint32) string {
	return fmt.Sprintf("%s%s %d", TakenPrefix, name, size)
}

// IsError reports whether a response line is a failure response.
func IsError(resp string) bool {
	return strings.HasPrefix(resp, ErrorPrefix)
}

// ReadLine reads one '\n'-terminated line and strips the line terminator
// (including a preceding '\r').
// A final line without a terminator is returned normally; the following call
// reports io.EOF. A read that yields no bytes at all returns the read error.
// When maxLen is positive, a line longer than maxLen bytes, terminator
// included, fails with ErrLineTooLong.
func ReadLine(r *bufio.Reader, maxLen int) (string, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if maxLen > 0 && len(line)+len(chunk) > maxLen {
			return "", ErrLineTooLong
		}
		line = append(line, chunk...)

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && (len(line) == 0 || !errors.Is(err, io.EOF)) {
			return "", err
		}
		return strings.TrimRight(string(line), "\r\n"), nil
	}
}
// WriteLine writes line followed by '\n' and flushes w.
func WriteLine(w *bufio.Writer, line string) error {
	if _, err := w.WriteString(line); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}
