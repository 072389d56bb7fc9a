package ops

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

func runOpenTradeRequests(ctx context.Context, env *Env, args []string, simulate bool) error {
	sells, buys, err := env.Reconciler.OpenRequests(ctx)
	if err != nil {
		return err
	}
	renderTrades(env.Out, env.Reconciler.Code()+" open sell requests", sells)
	renderTrades(env.Out, env.Reconciler.Code()+" open buy requests", buys)
	return nil
}

func runCloseTradeRequest(ctx context.Context, env *Env, args []string, simulate bool) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	quantity, err := parseAmount("quantity", args[1])
	if err != nil {
		return err
	}
	fees, err := parseAmount("fees", args[2])
	if err != nil {
		return err
	}
	return env.Reconciler.CloseRequest(ctx, id, quantity, fees, simulate)
}

func runCloseSellRequests(ctx context.Context, env *Env, args []string, simulate bool) error {
	filled, fees, startID, stopID, err := parseCloseBatchArgs(args)
	if err != nil {
		return err
	}
	return env.Reconciler.CloseSellRequests(ctx, filled, fees, startID, stopID, simulate)
}

func runCloseBuyRequests(ctx context.Context, env *Env, args []string, simulate bool) error {
	filled, fees, startID, stopID, err := parseCloseBatchArgs(args)
	if err != nil {
		return err
	}
	return env.Reconciler.CloseBuyRequests(ctx, filled, fees, startID, stopID, simulate)
}

func parseCloseBatchArgs(args []string) (filled, fees decimal.Decimal, startID, stopID int64, err error) {
	if len(args) == 3 {
		err = errors.New("the id range takes both a start and a stop id")
		return
	}
	if filled, err = parseAmount("quantity", args[0]); err != nil {
		return
	}
	if fees, err = parseAmount("fees", args[1]); err != nil {
		return
	}
	if len(args) == 4 {
		if startID, err = parseID(args[2]); err != nil {
			return
		}
		if stopID, err = parseID(args[3]); err != nil {
			return
		}
	}
	return
}

func parseAmount(name, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s %q is not a decimal amount", name, s)
	}
	return d, nil
}
