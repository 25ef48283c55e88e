// Command vault is an interactive shell for a CellVault server.
//
// It reads one command per line from stdin, sends it to the server and prints
// the response. The connection is kept alive with periodic PINGs and is
// re-established automatically when the server goes away.
//
//	vault --address 127.0.0.1:7878
//	vault> PUT 1 gold 10
//	OK: item stored
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cachemir/cellvault/internal/logging"
	"github.com/cachemir/cellvault/pkg/client"
	"github.com/cachemir/cellvault/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "vault",
		Short:         "Interactive shell for a CellVault server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClientConfig(cmd.Flags(), configFile)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := logging.New(cmd.ErrOrStderr(), logLevel, "text")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			c, err := client.Dial(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, c.Welcome())
			fmt.Fprintln(out, "Connected to server!")

			r := &repl{
				client:    c,
				in:        cmd.InOrStdin(),
				out:       out,
				errOut:    cmd.ErrOrStderr(),
				prompt:    logging.IsTerminal(os.Stdin) && logging.IsTerminal(os.Stdout),
				logger:    logger,
				keepalive: true,
			}
			return r.run(ctx)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to a config file (yaml, toml or json)")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	config.RegisterClientFlags(cmd.Flags())
	return cmd
}
