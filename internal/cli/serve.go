package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cross19xx/eas-build/internal/server"
	"github.com/cross19xx/eas-build/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewServerCmd returns the serve command as a standalone root, for the
// server-only binary.
func NewServerCmd(version, commit, date string) *cobra.Command {
	opts := &globalOptions{}

	cmd := newServeCmd(opts, version, commit, date)
	cmd.Use = "eas-build-server"
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	opts.addFlags(cmd)

	return cmd
}

// newServeCmd creates the serve command
func newServeCmd(global *globalOptions, version, commit, date string) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the build HTTP API",
		Long: `Run the build HTTP API.

POST /v1/builds runs the definition's commands on this host without
authentication. The server listens on 127.0.0.1 unless --host or
server.host says otherwise; only bind a public address behind an
authenticating proxy.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := global.setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			svc, err := service.New(service.Options{Config: cfg, Logger: log})
			if err != nil {
				return err
			}
			srv := server.New(cfg, log, svc, version, commit, date)

			log.Info("eas-build server starting",
				zap.String("version", version),
				zap.String("commit", commit),
				zap.String("address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
			)

			errChan := make(chan error, 1)
			go func() {
				errChan <- srv.Start()
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errChan:
				return err
			case <-quit:
				log.Info("Shutdown signal received")
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}

			log.Info("Server stopped gracefully")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}
