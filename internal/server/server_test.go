package server

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachemir/cellvault/internal/logging"
	"github.com/cachemir/cellvault/pkg/config"
	"github.com/cachemir/cellvault/pkg/protocol"
)

func startTestServer(t *testing.T, vaultCapacity int) *Server {
	t.Helper()

	cfg := config.DefaultServerConfig()
	cfg.Port = 0
	cfg.VaultCapacity = vaultCapacity
	cfg.PingMinDelay = 0
	cfg.PingMaxDelay = 5 * time.Millisecond

	srv := New(cfg, logging.Discard())
	require.NoError(t, srv.Listen())

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	t.Cleanup(func() {
		require.NoError(t, srv.Stop())
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return after Stop")
		}
	})
	return srv
}

type testConn struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dialTestServer(t *testing.T, srv *Server) *testConn {
	t.Helper()

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	tc := &testConn{t: t, conn: conn, reader: bufio.NewReader(conn)}
	assert.Equal(t, protocol.Welcome, tc.readLine())
	return tc
}

func (tc *testConn) send(line string) {
	tc.t.Helper()
	_, err := fmt.Fprintf(tc.conn, "%s\n", line)
	require.NoError(tc.t, err)
}

func (tc *testConn) readLine() string {
	tc.t.Helper()
	require.NoError(tc.t, tc.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := tc.reader.ReadString('\n')
	require.NoError(tc.t, err)
	return line[:len(line)-1]
}

func (tc *testConn) do(line string) string {
	tc.t.Helper()
	tc.send(line)
	return tc.readLine()
}

func TestServerScenario(t *testing.T) {
	srv := startTestServer(t, 10)
	c := dialTestServer(t, srv)

	assert.Equal(t, "OK: item stored", c.do("PUT 1 gold 10"))
	assert.Equal(t, "ERROR: cell is full", c.do("PUT 1 rock 95"))
	assert.Equal(t, "Items: gold: 10 | Used: 10/100", c.do("GET 1"))
	assert.Equal(t, "OK: taken gold 10", c.do("TAKE 1 gold"))
	assert.Equal(t, "Cell is empty", c.do("GET 1"))
	assert.Equal(t, "PONG", c.do("PING"))
	assert.Equal(t, "Bye!", c.do("EXIT"))

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c.reader.ReadByte()
	assert.ErrorIs(t, err, io.EOF, "server closes the connection after EXIT")
}

func TestServerSkipsBlankLinesAndKeepsGoingAfterErrors(t *testing.T) {
	srv := startTestServer(t, 10)
	c := dialTestServer(t, srv)

	c.send("")
	c.send("   \t")
	assert.Equal(t, "ERROR: usage GET <id>", c.do("GET"))
	assert.Equal(t, "ERROR: unknown command", c.do("HELLO"))
	assert.Equal(t, "Vault is empty", c.do("  LIST  "))
	assert.Equal(t, "OK: item stored", c.do("PUT 3 gem 1\r"))
}

func TestServerClosesConnectionOnOversizedLine(t *testing.T) {
	srv := startTestServer(t, 10)
	c := dialTestServer(t, srv)

	c.send(strings.Repeat("x", protocol.MaxLineLength))
	assert.Equal(t, "ERROR: line too long", c.readLine())

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c.reader.ReadByte()
	assert.ErrorIs(t, err, io.EOF)

	other := dialTestServer(t, srv)
	assert.Equal(t, "Vault is empty", other.do("LIST"))
}

func TestServerSharesVaultAcrossConnections(t *testing.T) {
	srv := startTestServer(t, 10)
	a := dialTestServer(t, srv)
	b := dialTestServer(t, srv)

	assert.Equal(t, "OK: item stored", a.do("PUT 5 gold 10"))
	assert.Equal(t, "Items: gold: 10 | Used: 10/100", b.do("GET 5"))
	assert.Equal(t, "OK: taken gold 10", b.do("TAKE 5 gold"))
	assert.Equal(t, "Cell is empty", a.do("GET 5"))
	assert.Equal(t, 1, srv.Vault().Stats().Cells)
}

func TestServerPeerCloseEndsOnlyThatConnection(t *testing.T) {
	srv := startTestServer(t, 10)
	a := dialTestServer(t, srv)
	b := dialTestServer(t, srv)

	a.send("PUT 1 gold")
	require.NoError(t, a.conn.Close())

	assert.Equal(t, "OK: item stored", b.do("PUT 1 gold 10"))
	assert.Equal(t, "Occupied cells: 1", b.do("LIST"))
}

func TestServerPingDoesNotBlockOtherConnections(t *testing.T) {
	cfg := config.DefaultServerConfig()
	cfg.Port = 0
	cfg.PingMinDelay = 300 * time.Millisecond
	cfg.PingMaxDelay = 300 * time.Millisecond

	srv := New(cfg, logging.Discard())
	require.NoError(t, srv.Listen())
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Stop() })

	slow := dialTestServer(t, srv)
	fast := dialTestServer(t, srv)

	slow.send("PING")
	start := time.Now()
	assert.Equal(t, "OK: item stored", fast.do("PUT 1 gold 10"))
	assert.Less(t, time.Since(start), 250*time.Millisecond, "PING must not hold the vault")

	assert.Equal(t, "PONG", slow.readLine())
}

func TestServerConcurrentPutsRespectVaultCapacity(t *testing.T) {
	const (
		capacity = 3
		clients  = 12
	)
	srv := startTestServer(t, capacity)

	conns := make([]*testConn, clients)
	for i := range conns {
		conns[i] = dialTestServer(t, srv)
	}

	results := make([]string, clients)
	var wg sync.WaitGroup
	for i, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fmt.Fprintf(c.conn, "PUT %d item 1\n", i+1)
			if err != nil {
				results[i] = err.Error()
				return
			}
			line, err := c.reader.ReadString('\n')
			if err != nil {
				results[i] = err.Error()
				return
			}
			results[i] = line[:len(line)-1]
		}()
	}
	wg.Wait()

	counts := map[string]int{}
	for _, r := range results {
		counts[r]++
	}
	assert.Equal(t, capacity, counts["OK: item stored"])
	assert.Equal(t, clients-capacity, counts["ERROR: vault is full"])
	assert.Equal(t, capacity, srv.Vault().Stats().Cells)
}

func TestServeWithoutListen(t *testing.T) {
	srv := New(config.DefaultServerConfig(), logging.Discard())
	assert.Nil(t, srv.Addr())
	assert.Error(t, srv.Serve())
	assert.NoError(t, srv.Stop())
}
