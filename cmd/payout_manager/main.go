// Package main provides payout_manager, the operator shell for the
// payout operation set.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/poolhand/payoutd/internal/chain"
	"github.com/poolhand/payoutd/internal/config"
	"github.com/poolhand/payoutd/internal/coordinator"
	"github.com/poolhand/payoutd/internal/engine"
	"github.com/poolhand/payoutd/internal/ops"
	"github.com/poolhand/payoutd/internal/storage"
	"github.com/poolhand/payoutd/internal/wallet"
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
		currency   = flag.String("currency", "", "Run for one currency code instead of every enabled one")
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
			strings.Join(ops.Payout.Names(), ", "))
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

	// An explicitly named currency runs even when disabled; the default
	// set is every enabled currency in config order.
	currencies := cfg.Enabled()
	if *currency != "" {
		cur, ok := cfg.Currency(*currency)
		if !ok {
			log.Fatal("Currency not in config", "currency", *currency)
		}
		currencies = []*config.CurrencyConfig{cur}
	}
	if len(currencies) == 0 {
		log.Fatal("No enabled currencies in config")
	}

	minOutput, err := cfg.Client.MinimumTxOutputSats()
	if err != nil {
		log.Fatal("Invalid minimum_tx_output", "error", err)
	}

	transport := coordinator.NewClient(cfg.Client.RPCURL, cfg.Client.RPCSignature,
		time.Duration(cfg.Client.MaxAge)*time.Second)

	ctx := context.Background()
	failed := false
	for _, cur := range currencies {
		if err := runCurrency(ctx, cfg, cur, transport, minOutput, log, *opName, args, *simulate); err != nil {
			log.Error("Operation failed",
				"currency", cur.CurrencyCode, "operation", *opName, "error", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// runCurrency opens the currency's database, assembles its engine and
// runs one operation against it.
func runCurrency(ctx context.Context, cfg *config.Config, cur *config.CurrencyConfig,
	transport coordinator.Transport, minOutput uint64, log *logging.Logger,
	name string, args []string, simulate bool) error {

	store, err := storage.Open(cfg.Client.DatabasePath, cur.CurrencyCode)
	if err != nil {
		return err
	}
	defer store.Close()

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

	env := &ops.Env{
		Engine:  eng,
		Out:     os.Stdout,
		Confirm: askYN,
	}
	return ops.Payout.Run(ctx, env, name, args, simulate)
}

// askYN prompts on stdout and treats anything but y as no.
func askYN(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimSpace(line) == "y"
}
