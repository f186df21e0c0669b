package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"deedvault/config"
	"deedvault/core/events"
	"deedvault/core/types"
	"deedvault/observability/logging"
	"deedvault/registry"
	"deedvault/rpc"
	"deedvault/state"
	"deedvault/storage"

	"deedvault/escrow"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup("deedvaultd", cfg.Env)

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("open database", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager, err := state.NewManager(db)
	if err != nil {
		logger.Error("initialise state manager", "error", err)
		os.Exit(1)
	}

	ledgerCfg, err := cfg.LedgerConfig()
	if err != nil {
		logger.Error("resolve ledger roles", "error", err)
		os.Exit(1)
	}

	// The in-process registry backs dev deployments; a production build
	// swaps in a client for the external registry service here.
	reg := registry.NewMemory()

	ledger, err := escrow.NewLedger(ledgerCfg, manager, reg)
	if err != nil {
		logger.Error("construct ledger", "error", err)
		os.Exit(1)
	}
	ledger.SetEmitter(events.Multi(manager, &logEmitter{log: logger}))

	server := rpc.NewServer(ledger, manager, reg, cfg.RPCToken, logger)
	srv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: server.Router(),
	}

	go func() {
		logger.Info("deedvault listening", "addr", cfg.ListenAddress, "backend", cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemDB(), nil
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "deedvault.db"))
	default:
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "leveldb"))
	}
}

// logEmitter mirrors every ledger event into the structured log.
type logEmitter struct {
	log *slog.Logger
}

func (e *logEmitter) Emit(evt events.Event) {
	payload, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		e.log.Info("ledger event", "type", evt.EventType())
		return
	}
	typed := payload.Event()
	args := make([]any, 0, 2*len(typed.Attributes)+2)
	args = append(args, "type", typed.Type)
	for key, value := range typed.Attributes {
		args = append(args, key, value)
	}
	e.log.Info("ledger event", args...)
}
