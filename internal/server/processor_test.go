package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachemir/cellvault/internal/logging"
	"github.com/cachemir/cellvault/pkg/vault"
)

func newTestProcessor(vaultCapacity int) (*Processor, *[]time.Duration) {
	p := NewProcessor(vault.New(vaultCapacity), 100, time.Second, 5*time.Second, logging.Discard())
	var slept []time.Duration
	p.sleep = func(d time.Duration) { slept = append(slept, d) }
	return p, &slept
}

func TestProcessorScenario(t *testing.T) {
	p, slept := newTestProcessor(10)

	steps := []struct {
		line      string
		want      string
		wantClose bool
	}{
		{"LIST", "Vault is empty", false},
		{"GET 1", "ERROR: cell not found", false},
		{"PUT 1 gold 10", "OK: item stored", false},
		{"PUT 1 rock 95", "ERROR: cell is full", false},
		{"GET 1", "Items: gold: 10 | Used: 10/100", false},
		{"LIST", "Occupied cells: 1", false},
		{"TAKE 1 gold", "OK: taken gold 10", false},
		{"GET 1", "Cell is empty", false},
		{"TAKE 1 gold", "ERROR: item not found", false},
		{"TAKE 9 gold", "ERROR: item not found", false},
		{"PING", "PONG", false},
		{"EXIT", "Bye!", true},
	}

	for _, step := range steps {
		resp, closeConn := p.Execute(step.line)
		assert.Equal(t, step.want, resp, step.line)
		assert.Equal(t, step.wantClose, closeConn, step.line)
	}

	require.Len(t, *slept, 1)
	assert.GreaterOrEqual(t, (*slept)[0], time.Second)
	assert.LessOrEqual(t, (*slept)[0], 5*time.Second)
}

func TestProcessorErrors(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"PUT", "ERROR: usage PUT <id> <name> <size>"},
		{"PUT 1 gold", "ERROR: usage PUT <id> <name> <size>"},
		{"PUT x gold 1", "ERROR: usage PUT <id> <name> <size>"},
		{"GET", "ERROR: usage GET <id>"},
		{"GET one", "ERROR: invalid id"},
		{"TAKE 1", "ERROR: usage TAKE <id> <name>"},
		{"DROP 1", "ERROR: unknown command"},
		{"list", "ERROR: unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			p, _ := newTestProcessor(10)
			resp, closeConn := p.Execute(tt.line)
			assert.Equal(t, tt.want, resp)
			assert.False(t, closeConn)
		})
	}
}

func TestProcessorBlankLine(t *testing.T) {
	p, _ := newTestProcessor(10)

	resp, closeConn := p.Execute("   ")
	assert.Empty(t, resp)
	assert.False(t, closeConn)
}

func TestProcessorVaultFull(t *testing.T) {
	p, _ := newTestProcessor(1)

	resp, _ := p.Execute("PUT 1 gold 10")
	require.Equal(t, "OK: item stored", resp)

	resp, _ = p.Execute("PUT 2 silver 5")
	assert.Equal(t, "ERROR: vault is full", resp)

	resp, _ = p.Execute("PUT 1 silver 5")
	assert.Equal(t, "OK: item stored", resp, "existing cell accepts writes on a full vault")
}

func TestProcessorPingDelayBounds(t *testing.T) {
	p := NewProcessor(vault.New(1), 100, 10*time.Millisecond, 20*time.Millisecond, logging.Discard())
	for range 100 {
		d := p.pingDelay()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 20*time.Millisecond)
	}

	fixed := NewProcessor(vault.New(1), 100, 0, 0, logging.Discard())
	assert.Equal(t, time.Duration(0), fixed.pingDelay())
}
