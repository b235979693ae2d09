package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"expenseflow/internal/cli"
	"expenseflow/internal/events"
	apphttp "expenseflow/internal/http"
	"expenseflow/internal/latency"
	"expenseflow/internal/ledger"
	"expenseflow/internal/session"
)

func main() {
	cfg, logger := cli.Bootstrap()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := cli.NewStore(logger, cfg)

	policy := latency.Fixed{
		MutationDelay: cfg.MutationLatency,
		AuthDelay:     cfg.AuthLatency,
	}

	book := ledger.New(store, ledger.WithLatency(policy))
	if err := book.Init(ctx); err != nil {
		logger.Error("Failed to initialize ledger", "error", err)
		os.Exit(1)
	}

	sessions := session.New(store, session.WithLatency(policy))
	if err := sessions.Init(ctx); err != nil {
		logger.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}

	// Ledger changes fan out to AMQP when a broker is configured. A
	// publish failure never fails the mutation.
	if cfg.AMQPURL != "" {
		eventsClient, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer eventsClient.Close()

		book.Subscribe(func(e ledger.Event) {
			if err := eventsClient.PublishLedgerEvent(context.Background(), e); err != nil {
				logger.Error("Failed to publish ledger event", "error", err, "kind", e.Kind)
			}
		})
		logger.Info("Event publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("Event publishing disabled - no AMQP_URL provided")
	}

	srv := apphttp.NewServer(":"+cfg.Port, book, sessions, logger)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting expenseflow server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
