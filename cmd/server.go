/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/sweetshop/apiserver/config"
	"github.com/sweetshop/apiserver/internal/logging"
	"github.com/sweetshop/apiserver/internal/server"
)

const shutdownTimeout = 30 * time.Second

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the sweet shop API server",
	Long: `Starts the sweet shop API server. Usage:

	sweetshop server
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logging.New(os.Stdout, cfg, slog.String("service", "sweetshop-api"))
		log.Info("startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "env", cfg.Env)

		srv, err := server.New(cmd.Context(), cfg, log)
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}

		serverErrs := make(chan error, 1)
		go func() {
			serverErrs <- srv.Start()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrs:
			_ = srv.Shutdown(context.Background())
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case sig := <-shutdown:
			log.Info("shutdown", "status", "draining requests", "signal", sig.String())
			defer log.Info("shutdown", "status", "shutdown completed")

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutdown server: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
