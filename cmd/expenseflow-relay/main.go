package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"expenseflow/internal/cli"
	"expenseflow/internal/events"
	"expenseflow/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap()

	logger.Info("Starting expenseflow-relay")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the relay")
		os.Exit(1)
	}

	// The journal always lives in SQLite, independent of the app's
	// DATA_BACKEND choice.
	journal := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer journal.Close()

	eventsClient, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer eventsClient.Close()

	relay := worker.NewAuditRelay(journal)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eventsClient.ConsumeLedgerEvents(gctx, relay.HandleLedgerEvent)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Relay stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Relay stopped gracefully")
}
