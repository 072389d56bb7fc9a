// Package engine implements the per-currency payout settlement state
// machine. Each Engine owns one currency: it pulls pending obligations
// from the pool server, batches them into wallet transactions, and
// reports the resulting txids and fees back. All state lives in the
// currency's store; the engine itself is stateless between operations.
package engine

import (
	"errors"
	"time"

	"github.com/poolhand/payoutd/internal/coordinator"
	"github.com/poolhand/payoutd/internal/storage"
	"github.com/poolhand/payoutd/internal/wallet"
	"github.com/poolhand/payoutd/pkg/logging"
)

var (
	// ErrInsufficientBalance is returned by Send when the wallet cannot
	// cover the aggregated recipient set.
	ErrInsufficientBalance = errors.New("wallet balance below total payout")

	// ErrIndeterminate is returned by Send when a wallet failure left
	// funds moved (or unverifiable) without a txid on record. The
	// affected rows stay locked until an operator repairs them.
	ErrIndeterminate = errors.New("send outcome indeterminate, rows left locked")
)

// SimulatedTxID is the placeholder txid Send returns in simulate mode.
// It parses as a valid 32-byte hash but can never appear on a chain.
const SimulatedTxID = "1111111111111111111111111111111111111111111111111111111111111111"

// Config collects the collaborators an Engine needs.
type Config struct {
	Store     *storage.Store
	Gateway   wallet.Gateway
	Transport coordinator.Transport
	Validator *wallet.Validator
	Log       *logging.Logger

	Code    string // currency code, e.g. "LTC"
	Account string // wallet account payouts are drawn from

	MinTxOutput uint64 // smallest output the engine will create, in satoshis
	MinConfirms int64  // confirmations before a txid is reported confirmed
}

// Engine drives the payout lifecycle for a single currency.
type Engine struct {
	store     *storage.Store
	gateway   wallet.Gateway
	transport coordinator.Transport
	validator *wallet.Validator
	log       *logging.Logger

	code        string
	account     string
	minTxOutput uint64
	minConfirms int64

	now func() time.Time
}

// New creates an engine from cfg.
func New(cfg *Config) *Engine {
	return &Engine{
		store:       cfg.Store,
		gateway:     cfg.Gateway,
		transport:   cfg.Transport,
		validator:   cfg.Validator,
		log:         cfg.Log,
		code:        cfg.Code,
		account:     cfg.Account,
		minTxOutput: cfg.MinTxOutput,
		minConfirms: cfg.MinConfirms,
		now:         time.Now,
	}
}

// Code returns the currency code the engine settles.
func (e *Engine) Code() string {
	return e.code
}

// Store exposes the engine's store for read-only reporting.
func (e *Engine) Store() *storage.Store {
	return e.store
}
