package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/messagenet/evodispatch/internal/appliance"
	"github.com/messagenet/evodispatch/internal/config"
	"github.com/messagenet/evodispatch/internal/dispatcher"
	"github.com/messagenet/evodispatch/internal/extern/sqlitestore"
	"github.com/messagenet/evodispatch/internal/journal"
	"github.com/messagenet/evodispatch/internal/logging"
	"github.com/messagenet/evodispatch/internal/metrics"
	"github.com/messagenet/evodispatch/internal/queue"
	"github.com/messagenet/evodispatch/internal/registry"
	"github.com/messagenet/evodispatch/internal/supervisor"
	"github.com/messagenet/evodispatch/internal/transport"
)

func runDispatcher(args []string) error {
	cfg := config.DefineFlags()
	if err := flag.CommandLine.Parse(args); err != nil {
		return err
	}
	if err := cfg.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logging.PrintBanner("dispatcher", version, cfg.AdminAddr)

	store, err := sqlitestore.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store database: %w", err)
	}
	defer store.Close()

	q, err := queue.Open(cfg.QueueDBPath())
	if err != nil {
		return fmt.Errorf("open queue database: %w", err)
	}
	defer q.Close()

	j, err := journal.New(cfg.JournalDir())
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	log := slog.Default()
	reg := registry.New()
	translator := appliance.New(store, store, store, store, store)
	tr := transport.New(log,
		transport.WithTimeouts(cfg.ConnectTimeout, cfg.ReadIdleTimeout),
		transport.WithRetryBudget(cfg.RetryAttempts, cfg.RetrySpacing),
	)
	mgr := dispatcher.New(reg, translator, tr, j, store, q, log)
	sup := supervisor.New(reg, q, mgr, tr, cfg.ProbeInterval, log)

	// SIGINT/SIGTERM give the usual interactive and orchestrator-driven
	// shutdown; HUP/USR1/PIPE are the cooperative-shutdown signals
	// spec §4.I names for the dispatcher specifically. Both cancel the
	// same context.
	termCtx, stopTerm := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopTerm()
	ctx, stop := supervisor.ShutdownContext(termCtx)
	defer stop()

	if err := sup.Bootstrap(ctx, store); err != nil {
		return fmt.Errorf("bootstrap registry: %w", err)
	}

	rotate := supervisor.WatchRotateSignal()
	go func() {
		for range rotate {
			log.Info("rotate signal received, journal rotation is not yet implemented")
		}
	}()

	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: logging.HTTPMiddleware(metrics.HTTPMiddleware(adminMux)),
	}
	go func() {
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin listener failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = adminServer.Close()
	}()

	return sup.Run(ctx)
}
