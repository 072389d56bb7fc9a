package ops

import (
	"context"
	"fmt"
	"strconv"
)

func runPullPayouts(ctx context.Context, env *Env, args []string, simulate bool) error {
	stats, err := env.Engine.Pull(ctx, simulate)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "%s: pulled %d new, %d repeat, %d invalid\n",
		env.Engine.Code(), stats.New, stats.Repeat, stats.Invalid)
	return nil
}

func runPayout(ctx context.Context, env *Env, args []string, simulate bool) error {
	result, err := env.Engine.Send(ctx, simulate)
	if err != nil {
		return err
	}

	title := fmt.Sprintf("%s payouts sent", env.Engine.Code())
	if result != nil && result.Preview {
		title = fmt.Sprintf("%s payouts (simulated)", env.Engine.Code())
	}
	renderSummary(env.Out, title, result)
	return nil
}

func runConfirmTrans(ctx context.Context, env *Env, args []string, simulate bool) error {
	return env.Engine.Confirm(ctx, simulate)
}

func runAssociateAll(ctx context.Context, env *Env, args []string, simulate bool) error {
	return env.Engine.Associate(ctx, simulate)
}

func runResetAllLocked(ctx context.Context, env *Env, args []string, simulate bool) error {
	n, err := env.Engine.ResetLockedAll(ctx, simulate)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "%s: unlocked %d rows\n", env.Engine.Code(), n)
	return nil
}

func runUnpaidLocked(ctx context.Context, env *Env, args []string, simulate bool) error {
	rows, err := env.Engine.UnpaidLocked()
	if err != nil {
		return err
	}
	renderPayouts(env.Out, env.Engine.Code()+" unpaid locked", rows)
	return nil
}

func runUnpaidUnlocked(ctx context.Context, env *Env, args []string, simulate bool) error {
	rows, err := env.Engine.UnpaidUnlocked()
	if err != nil {
		return err
	}
	renderPayouts(env.Out, env.Engine.Code()+" unpaid unlocked", rows)
	return nil
}

func runDumpComplete(ctx context.Context, env *Env, args []string, simulate bool) error {
	rows, err := env.Engine.DumpComplete()
	if err != nil {
		return err
	}
	renderPayouts(env.Out, env.Engine.Code()+" complete", rows)
	return nil
}

func runDumpIncomplete(ctx context.Context, env *Env, args []string, simulate bool) error {
	rows, err := env.Engine.DumpIncomplete()
	if err != nil {
		return err
	}
	renderPayouts(env.Out, env.Engine.Code()+" incomplete", rows)
	return nil
}

func runLocalAssociateLocked(ctx context.Context, env *Env, args []string, simulate bool) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return env.Engine.AssociateLocked(ctx, id, args[1], simulate)
}

func runLocalAssociateAllLocked(ctx context.Context, env *Env, args []string, simulate bool) error {
	n, err := env.Engine.AssociateAllLocked(ctx, args[0], simulate)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "%s: associated %d rows\n", env.Engine.Code(), n)
	return nil
}

func runInitDB(ctx context.Context, env *Env, args []string, simulate bool) error {
	if simulate {
		fmt.Fprintf(env.Out, "%s: simulate, database untouched\n", env.Engine.Code())
		return nil
	}

	prompt := fmt.Sprintf("destroy and recreate the %s payout database", env.Engine.Code())
	if env.Confirm == nil || !env.Confirm(prompt) {
		fmt.Fprintln(env.Out, "aborted")
		return nil
	}
	return env.Engine.InitDB()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id %q is not an integer", s)
	}
	return id, nil
}
