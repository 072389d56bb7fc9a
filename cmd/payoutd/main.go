// Package main provides the payoutd daemon - the mining pool payout
// settlement coordinator.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poolhand/payoutd/internal/chain"
	"github.com/poolhand/payoutd/internal/config"
	"github.com/poolhand/payoutd/internal/coordinator"
	"github.com/poolhand/payoutd/internal/engine"
	"github.com/poolhand/payoutd/internal/monitor"
	"github.com/poolhand/payoutd/internal/scheduler"
	"github.com/poolhand/payoutd/internal/storage"
	"github.com/poolhand/payoutd/internal/wallet"
	"github.com/poolhand/payoutd/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	// Parse flags
	var (
		configFile  = flag.String("config", "payout.yaml", "Config file path")
		logLevel    = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
		initConfig  = flag.Bool("init", false, "Write a config template to the -config path and exit")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Set up logging (initial, may be overridden by config)
	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})

	if *showVersion {
		log.Infof("payoutd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	if *initConfig {
		if err := config.WriteTemplate(*configFile); err != nil {
			log.Fatal("Failed to write config template", "error", err)
		}
		log.Info("Config template written", "path", *configFile)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// Update logging with config level (CLI flag takes precedence)
	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	log = logging.New(&logging.Config{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})

	log.Info("Config loaded", "path", *configFile)

	enabled := cfg.Enabled()
	if len(enabled) == 0 {
		log.Fatal("No enabled currencies in config")
	}

	minOutput, err := cfg.Client.MinimumTxOutputSats()
	if err != nil {
		log.Fatal("Invalid minimum_tx_output", "error", err)
	}

	// One signed pool server client shared by every currency
	transport := coordinator.NewClient(cfg.Client.RPCURL, cfg.Client.RPCSignature,
		time.Duration(cfg.Client.MaxAge)*time.Second)
	log.Info("Pool server client initialized", "url", cfg.Client.RPCURL)

	var (
		stores  []*storage.Store
		engines []scheduler.Engine
	)
	for _, cur := range enabled {
		store, err := storage.Open(cfg.Client.DatabasePath, cur.CurrencyCode)
		if err != nil {
			log.Fatal("Failed to open database", "currency", cur.CurrencyCode, "error", err)
		}
		stores = append(stores, store)

		var preset *chain.Params
		if p, ok := chain.Get(cur.CurrencyCode); ok {
			preset = p
		}

		eng := engine.New(&engine.Config{
			Store: store,
			Gateway: wallet.NewCoinRPC(cur.Coinserv.URL(),
				cur.Coinserv.Username, cur.Coinserv.Password, cur.Coinserv.WalletPass),
			Transport: transport,
			Validator: wallet.NewValidator(cur.Scheme(), cur.Versions(), preset),
			Log:       log.Component(cur.CurrencyCode),

			Code:    cur.CurrencyCode,
			Account: cur.Coinserv.Account,

			MinTxOutput: minOutput,
			MinConfirms: cfg.Client.MinConfirms,
		})
		engines = append(engines, eng)
		log.Info("Engine initialized",
			"currency", cur.CurrencyCode, "coinserv", cur.Coinserv.URL())
	}

	// Status server is optional; without it job events are dropped.
	var mon *monitor.Server
	var events scheduler.EventSink
	if cfg.Monitor.Listen != "" {
		mon = monitor.New(&monitor.Config{
			Listen: cfg.Monitor.Listen,
			Stores: stores,
			Log:    log,
		})
		if err := mon.Start(); err != nil {
			log.Fatal("Failed to start monitor", "error", err)
		}
		events = mon.Hub()
	}

	sched, err := scheduler.New(&scheduler.Config{
		Engines:     engines,
		Log:         log.Component("scheduler"),
		Events:      events,
		IngestEvery: cfg.Scheduler.Ingest,
		SettleAt:    cfg.Scheduler.Settle,
		AssociateAt: cfg.Scheduler.Associate,
		ConfirmAt:   cfg.Scheduler.Confirm,
	})
	if err != nil {
		log.Fatal("Failed to create scheduler", "error", err)
	}
	sched.Start()

	log.Infof("payoutd %s running with %d currencies", version, len(engines))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	sched.Stop()
	if mon != nil {
		if err := mon.Stop(); err != nil {
			log.Error("Error stopping monitor", "error", err)
		}
	}
	for i, store := range stores {
		if err := store.Close(); err != nil {
			log.Error("Error closing database",
				"currency", enabled[i].CurrencyCode, "error", err)
		}
	}

	log.Info("Goodbye!")
}
