package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cachemir/cellvault/pkg/client"
	"github.com/cachemir/cellvault/pkg/protocol"
)

const prompt = "vault> "

// repl reads commands from in, one per line, and prints each response to out.
type repl struct {
	client *client.Client
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	prompt bool
	logger *slog.Logger

	// keepalive runs client.Keepalive alongside the session.
	keepalive bool
}

// run executes commands until EXIT, end of input, or a reconnect that
// cannot complete before ctx ends.
func (r *repl) run(ctx context.Context) error {
	stopKeepalive := r.startKeepalive(ctx)
	defer stopKeepalive()

	scanner := bufio.NewScanner(r.in)
	for {
		if r.prompt {
			fmt.Fprint(r.out, prompt)
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.EqualFold(line, protocol.CmdExit.String()) {
			stopKeepalive()
			if err := r.client.Exit(); err != nil {
				r.logger.Debug("exit without farewell", "error", err)
			}
			fmt.Fprintln(r.out, protocol.RespBye)
			return nil
		}

		if err := r.execute(line); err != nil {
			fmt.Fprintf(r.errOut, "Command failed: %v. Reconnecting...\n", err)
			if err := r.client.Reconnect(ctx); err != nil {
				return err
			}
			fmt.Fprintln(r.out, r.client.Welcome())
		}
	}
}

// startKeepalive starts the keepalive loop and returns a function that stops
// it and waits for it to return. The function may be called more than once.
func (r *repl) startKeepalive(ctx context.Context) func() {
	if !r.keepalive {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.client.Keepalive(ctx)
	}()

	return func() {
		cancel()
		<-done
	}
}

// execute sends one command. PING is timed and reported with its round trip;
// everything else prints the server's response verbatim.
func (r *repl) execute(line string) error {
	if strings.Fields(line)[0] == protocol.CmdPing.String() {
		rtt, err := r.client.Ping()
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s (%s)\n", protocol.RespPong, rtt.Round(time.Millisecond))
		return nil
	}

	resp, err := r.client.Do(line)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, resp)
	return nil
}
