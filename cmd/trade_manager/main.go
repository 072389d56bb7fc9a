// Package main provides trade_manager, the operator shell for the
// exchange trade request operation set.
package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/poolhand/payoutd/internal/config"
	"github.com/poolhand/payoutd/internal/coordinator"
	"github.com/poolhand/payoutd/internal/ops"
	"github.com/poolhand/payoutd/internal/trades"
	"github.com/poolhand/payoutd/pkg/logging"
)

// argList collects repeated -a flags in order.
type argList []string

func (a *argList) String() string {
	return strings.Join(*a, ", ")
}

func (a *argList) Set(value string) error {
	*a = append(*a, value)
	return nil
}

func main() {
	// Parse flags
	var (
		configFile = flag.String("config", "payout.yaml", "Config file path")
		opName     = flag.String("f", "", "Operation to run")
		simulate   = flag.Bool("s", false, "Simulate, making no changes")
		currency   = flag.String("currency", "", "Run for one currency code instead of the first enabled one")
		logLevel   = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
		args       argList
	)
	flag.Var(&args, "a", "Operation argument (repeatable)")
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})

	if *opName == "" {
		log.Fatalf("No operation given (-f). Valid operations: %s",
			strings.Join(ops.Trade.Names(), ", "))
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}
	if *logLevel == "" {
		log = logging.New(&logging.Config{
			Level:      cfg.LogLevel,
			TimeFormat: time.TimeOnly,
		})
	}

	// Trade requests live on the pool server, so no local database is
	// opened here; one currency's reconciler serves the whole run.
	var cur *config.CurrencyConfig
	if *currency != "" {
		c, ok := cfg.Currency(*currency)
		if !ok {
			log.Fatal("Currency not in config", "currency", *currency)
		}
		cur = c
	} else {
		enabled := cfg.Enabled()
		if len(enabled) == 0 {
			log.Fatal("No enabled currencies in config")
		}
		cur = enabled[0]
	}

	transport := coordinator.NewClient(cfg.Client.RPCURL, cfg.Client.RPCSignature,
		time.Duration(cfg.Client.MaxAge)*time.Second)

	env := &ops.Env{
		Reconciler: trades.New(transport, log.Component(cur.CurrencyCode), cur.CurrencyCode),
		Out:        os.Stdout,
	}
	if err := ops.Trade.Run(context.Background(), env, *opName, args, *simulate); err != nil {
		log.Error("Operation failed",
			"currency", cur.CurrencyCode, "operation", *opName, "error", err)
		os.Exit(1)
	}
}
