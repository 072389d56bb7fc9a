// Package ops is the closed operation set behind the operator shells.
// Every operation the managers accept is declared here with its name and
// arity; there is no reflective dispatch, and nothing outside this list
// is reachable from the command line.
package ops

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/poolhand/payoutd/internal/engine"
	"github.com/poolhand/payoutd/internal/trades"
)

// Env is what one operation invocation runs against: a single currency's
// engine and reconciler, and the writer its tables go to.
type Env struct {
	Engine     *engine.Engine
	Reconciler *trades.Reconciler
	Out        io.Writer

	// Confirm gates destructive operations. A nil hook declines.
	Confirm func(prompt string) bool
}

// Op is one named operation.
type Op struct {
	Name    string
	Usage   string
	MinArgs int
	MaxArgs int
	Run     func(ctx context.Context, env *Env, args []string, simulate bool) error
}

// Registry is an ordered, closed set of operations.
type Registry struct {
	order  []string
	byName map[string]*Op
}

func newRegistry(ops ...*Op) *Registry {
	r := &Registry{byName: make(map[string]*Op, len(ops))}
	for _, op := range ops {
		r.order = append(r.order, op.Name)
		r.byName[op.Name] = op
	}
	return r
}

// Names returns the operation names in declaration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Lookup resolves an operation name. Unknown names get the valid list.
func (r *Registry) Lookup(name string) (*Op, error) {
	op, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q, valid operations: %s",
			name, strings.Join(r.order, ", "))
	}
	return op, nil
}

// Run resolves an operation, checks its arity and executes it.
func (r *Registry) Run(ctx context.Context, env *Env, name string, args []string, simulate bool) error {
	op, err := r.Lookup(name)
	if err != nil {
		return err
	}
	if len(args) < op.MinArgs || len(args) > op.MaxArgs {
		return fmt.Errorf("usage: %s", op.Usage)
	}
	return op.Run(ctx, env, args, simulate)
}

// Payout is the operation set of payout_manager.
var Payout = newRegistry(
	&Op{Name: "pull_payouts", Usage: "pull_payouts", Run: runPullPayouts},
	&Op{Name: "payout", Usage: "payout", Run: runPayout},
	&Op{Name: "confirm_trans", Usage: "confirm_trans", Run: runConfirmTrans},
	&Op{Name: "associate_all", Usage: "associate_all", Run: runAssociateAll},
	&Op{Name: "reset_all_locked", Usage: "reset_all_locked", Run: runResetAllLocked},
	&Op{Name: "unpaid_locked", Usage: "unpaid_locked", Run: runUnpaidLocked},
	&Op{Name: "unpaid_unlocked", Usage: "unpaid_unlocked", Run: runUnpaidUnlocked},
	&Op{Name: "dump_complete", Usage: "dump_complete", Run: runDumpComplete},
	&Op{Name: "dump_incomplete", Usage: "dump_incomplete", Run: runDumpIncomplete},
	&Op{
		Name:    "local_associate_locked",
		Usage:   "local_associate_locked -a <id> -a <txid>",
		MinArgs: 2,
		MaxArgs: 2,
		Run:     runLocalAssociateLocked,
	},
	&Op{
		Name:    "local_associate_all_locked",
		Usage:   "local_associate_all_locked -a <txid>",
		MinArgs: 1,
		MaxArgs: 1,
		Run:     runLocalAssociateAllLocked,
	},
	&Op{Name: "init_db", Usage: "init_db", Run: runInitDB},
)

// Trade is the operation set of trade_manager.
var Trade = newRegistry(
	&Op{Name: "get_open_trade_requests", Usage: "get_open_trade_requests", Run: runOpenTradeRequests},
	&Op{
		Name:    "close_trade_request",
		Usage:   "close_trade_request -a <id> -a <quantity> -a <fees>",
		MinArgs: 3,
		MaxArgs: 3,
		Run:     runCloseTradeRequest,
	},
	&Op{
		Name:    "close_sell_requests",
		Usage:   "close_sell_requests -a <quantity_obtained> -a <fees> [-a <start_id> -a <stop_id>]",
		MinArgs: 2,
		MaxArgs: 4,
		Run:     runCloseSellRequests,
	},
	&Op{
		Name:    "close_buy_requests",
		Usage:   "close_buy_requests -a <quantity_purchased> -a <fees> [-a <start_id> -a <stop_id>]",
		MinArgs: 2,
		MaxArgs: 4,
		Run:     runCloseBuyRequests,
	},
)
