// Command vaultd runs a CellVault server.
//
// Configuration comes from flags, CELLVAULT_* environment variables and an
// optional config file, in that order of precedence:
//
//	vaultd --port 7878 --vault-capacity 10
//	CELLVAULT_CELL_CAPACITY=500 vaultd --config /etc/cellvault.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cachemir/cellvault/internal/logging"
	"github.com/cachemir/cellvault/internal/server"
	"github.com/cachemir/cellvault/pkg/config"
)

// shutdownGrace bounds how long vaultd waits for open connections after
// the listener is closed.
const shutdownGrace = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "vaultd",
		Short:         "Serve a capacity-bounded vault of cells over TCP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig(cmd.Flags(), configFile)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to a config file (yaml, toml or json)")
	config.RegisterServerFlags(cmd.Flags())
	return cmd
}

// run serves until ctx is cancelled or the listener fails.
func run(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) error {
	srv := server.New(cfg, logger)
	if err := srv.Listen(); err != nil {
		return err
	}

	logger.Info("starting vault server",
		"vault_capacity", cfg.VaultCapacity,
		"cell_capacity", cfg.CellCapacity,
		"ping_min_delay", cfg.PingMinDelay,
		"ping_max_delay", cfg.PingMaxDelay,
	)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down vault server")
	if err := srv.Stop(); err != nil {
		logger.Warn("error stopping server", "error", err)
	}
	if err := <-serveErr; err != nil {
		return err
	}

	drained := make(chan struct{})
	go func() {
		srv.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(shutdownGrace):
		logger.Warn("connections still open after grace period", "grace", shutdownGrace)
	}

	stats := srv.Vault().Stats()
	logger.Info("vault server stopped",
		"cells", stats.Cells,
		"capacity", stats.Capacity,
		"items", stats.Items,
		"used_space", stats.UsedSpace,
		"cell_space", stats.CellSpace,
	)
	return nil
}
