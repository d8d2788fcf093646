package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ratelimitfilter/internal/app"
)

var shutdownTimeout time.Duration

func init() {
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "time allowed for in-flight requests on shutdown")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the filter",
	Long:  "Serve HTTP (and gRPC when enabled), deciding every request against the configured limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		server, err := app.NewServer(ctx, cfg, configFile, slog.Default())
		if err != nil {
			return err
		}
		if err := server.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		slog.Info("Shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return server.Stop(shutdownCtx)
	},
}
