/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/sweetshop/apiserver/config"
	"github.com/sweetshop/apiserver/internal/logging"
	"github.com/sweetshop/apiserver/internal/mq"
	"github.com/sweetshop/apiserver/internal/worker"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consumes purchase events and reports low stock",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if mq.InProcess(cfg.MQ.Backend) {
			return fmt.Errorf("worker needs a shared broker; set MQ_BACKEND to rabbitmq or pubsub (got %q)", cfg.MQ.Backend)
		}
		log := logging.New(os.Stdout, cfg, slog.String("service", "sweetshop-worker"))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer broker.Close()

		monitor := worker.NewStockMonitor(log, cfg.MQ.LowStockLimit)
		if err := monitor.Run(ctx, broker, cfg.MQ.PurchaseTopic); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("consume %s: %w", cfg.MQ.PurchaseTopic, err)
		}
		log.Info("shutdown", "status", "worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
