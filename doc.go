// Package cellvault is an in-memory vault of capacity-bounded cells, served
// over a line-oriented TCP protocol.
//
// A vault holds a bounded number of cells, each addressed by a numeric id.
// A cell stores named items, each with an abstract size, and refuses items
// that would exceed its capacity. Many clients can connect at once; all of
// them share one vault for the lifetime of the server process. Nothing is
// persisted.
//
// # Architecture Overview
//
//   - Vault: cells keyed by id, guarded by a single mutex (pkg/vault)
//   - Protocol: command parsing and response text (pkg/protocol)
//   - Server: TCP listener, one goroutine per connection (internal/server)
//   - Client SDK: typed helpers, keepalive and reconnect (pkg/client)
//   - Configuration: flags, CELLVAULT_* environment and config files (pkg/config)
//
// # Quick Start
//
// Server:
//
//	vaultd --port 7878 --vault-capacity 10 --cell-capacity 100
//
// Interactive shell:
//
//	vault --address 127.0.0.1:7878
//	Welcome to the vault!
//	Connected to server!
//	vault> PUT 1 gold 10
//	OK: item stored
//	vault> GET 1
//	Items: gold: 10 | Used: 10/100
//
// Client:
//
//	import "github.com/cachemir/cellvault/pkg/client"
//
//	c, err := client.Dial(ctx, config.DefaultClientConfig(), logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	c.Put(1, "gold", 10)
//	item, err := c.Take(1, "gold")
//
// # Commands
//
// Every command is one line; every response is one line.
//
//   - PUT <id> <name> <size>: store an item, creating the cell on first use
//   - GET <id>: describe the items of a cell
//   - LIST: list occupied cell ids in ascending order
//   - TAKE <id> <name>: remove the first item with that name
//   - PING: answer PONG after a short random delay
//   - EXIT: answer Bye! and close the connection
//
// Failures are reported as "ERROR: <message>" and never end the connection.
//
// # Capacity Rules
//
// A new id is refused with "vault is full" once the vault holds its maximum
// number of cells. Existing ids always accept writes. Cells are never removed,
// so an emptied cell keeps its slot.
//
// # Package Structure
//
//   - pkg/vault: cells, items and the vault
//   - pkg/protocol: commands, responses and line framing
//   - pkg/config: server and client configuration
//   - pkg/client: Go client
//   - internal/server: TCP server and command processor
//   - internal/logging: slog handler selection
//   - cmd/vaultd: server executable
//   - cmd/vault: interactive shell
//   - examples: client walkthrough
package cellvault
