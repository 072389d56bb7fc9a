// Package wallet talks to the per-currency coin daemons holding the pool's
// funds. The daemons hold the keys and sign; this package only instructs
// them over JSON-RPC and reads the results back.
package wallet

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Daemon-reported codes that do not map to one of these
// surface as *RPCError.
var (
	// ErrUnreachable wraps connection-level failures talking to the daemon.
	ErrUnreachable = errors.New("wallet daemon unreachable")

	// ErrInsufficientFunds is the daemon refusing to send more than the
	// wallet holds.
	ErrInsufficientFunds = errors.New("wallet has insufficient funds")

	// ErrTxNotFound is the daemon not knowing the requested transaction.
	ErrTxNotFound = errors.New("transaction not found in wallet")
)

// RPCError is a daemon-reported JSON-RPC error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet RPC error %d: %s", e.Code, e.Message)
}

// TxMeta carries best-effort metadata about a freshly broadcast
// transaction. Fields are zero when the post-send lookup fails.
type TxMeta struct {
	// Fee is the daemon-reported fee as an exact decimal string,
	// negative for outgoing transactions.
	Fee string

	// Time is the daemon's Unix receive time.
	Time int64
}

// TxInfo describes a wallet transaction.
type TxInfo struct {
	TxID          string
	Confirmations int64

	// Fee is an exact decimal string, negative for outgoing transactions.
	Fee string

	Time int64
}

// Gateway is the wallet surface the settlement engine consumes.
type Gateway interface {
	// Poke verifies the daemon is up and answering.
	Poke(ctx context.Context) error

	// Balance returns the spendable balance of an account in satoshis.
	// An empty account means the whole wallet.
	Balance(ctx context.Context, account string) (uint64, error)

	// SendMany pays every recipient in one wallet transaction and
	// returns its txid. Amounts are satoshis.
	SendMany(ctx context.Context, account string, recipients map[string]uint64) (string, *TxMeta, error)

	// GetTransaction looks up a wallet transaction by txid.
	GetTransaction(ctx context.Context, txid string) (*TxInfo, error)
}
