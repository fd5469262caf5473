package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/messagenet/evodispatch/internal/appliance"
	"github.com/messagenet/evodispatch/internal/cgiapi"
	"github.com/messagenet/evodispatch/internal/config"
	"github.com/messagenet/evodispatch/internal/extern/sqlitestore"
	"github.com/messagenet/evodispatch/internal/journal"
	"github.com/messagenet/evodispatch/internal/logging"
	"github.com/messagenet/evodispatch/internal/metrics"
	"github.com/messagenet/evodispatch/internal/queue"
	"github.com/messagenet/evodispatch/internal/registry"
)

// runCGI serves the query endpoint (spec §4.H) as a standard HTTP
// listener sharing the dispatcher's data directory, rather than the
// original's one-process-per-request CGI invocation (see cgiapi.Server
// doc comment).
func runCGI(args []string) error {
	cfg := config.DefineCGIFlags()
	if err := flag.CommandLine.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logging.PrintBanner("cgi", version, cfg.ListenAddr)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := registry.New()
	devices, err := store.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("load device registry: %w", err)
	}
	for _, d := range devices {
		reg.Load(d)
	}

	translator := appliance.New(store, store, store, store, store)
	handler := cgiapi.New(j, q, reg, translator, store, store, log)
	server := cgiapi.NewServer(handler)

	mux := http.NewServeMux()
	mux.Handle("/", server)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: logging.HTTPMiddleware(metrics.HTTPMiddleware(mux)),
	}
	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
