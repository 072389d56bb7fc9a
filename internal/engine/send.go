package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/poolhand/payoutd/internal/storage"
	"github.com/poolhand/payoutd/internal/wallet"
	"github.com/poolhand/payoutd/pkg/helpers"
)

// SendResult reports what a Send run paid.
type SendResult struct {
	TxID       string
	Meta       *wallet.TxMeta
	Finalized  []*storage.Payout
	Recipients map[string]uint64 // address -> satoshis handed to the wallet

	// Preview marks a simulate run: TxID is SimulatedTxID and nothing
	// was committed or sent.
	Preview bool
}

// RecipientSummary is one line of the per-address breakdown of a send.
type RecipientSummary struct {
	Address string
	Total   string // canonical coin amount
	PIDs    string // comma list, elided past nine entries
}

// Summary groups the result's rows by address for display.
func (r *SendResult) Summary() []RecipientSummary {
	byAddr := make(map[string][]string)
	for _, p := range r.Finalized {
		byAddr[p.Address] = append(byAddr[p.Address], p.PID)
	}
	addrs := make([]string, 0, len(byAddr))
	for addr := range byAddr {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	lines := make([]RecipientSummary, 0, len(addrs))
	for _, addr := range addrs {
		pids := byAddr[addr]
		list := strings.Join(pids, ", ")
		if len(pids) > 9 {
			list = strings.Join(pids[:9], ", ") +
				fmt.Sprintf(" ... (%d more)", len(pids)-9)
		}
		lines = append(lines, RecipientSummary{
			Address: addr,
			Total:   helpers.SatsToCoin(r.Recipients[addr]),
			PIDs:    list,
		})
	}
	return lines
}

// Send settles all pulled rows in one wallet transaction. Rows are
// grouped by address, aggregates below the dust floor are dropped back
// to the pull state, and the survivors are locked on disk before the
// wallet is asked to pay. A nil result with a nil error means there was
// nothing to settle.
//
// sendmany is not idempotent and can fail after broadcasting, so the
// failure path splits on the wallet balance: unchanged means no funds
// moved and the rows unlock for the next run; anything else leaves the
// rows locked and returns ErrIndeterminate for an operator.
func (e *Engine) Send(ctx context.Context, simulate bool) (*SendResult, error) {
	if err := e.gateway.Poke(ctx); err != nil {
		return nil, fmt.Errorf("wallet poke: %w", err)
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.UnpaidUnlocked()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		e.log.Info("no payouts to settle", "currency", e.code)
		return nil, nil
	}

	recipients := make(map[string]uint64)
	byAddress := make(map[string][]*storage.Payout)
	now := e.now().UTC()
	for _, p := range rows {
		sats, err := p.AmountSats()
		if err != nil {
			return nil, fmt.Errorf("payout %s has unreadable amount %q: %w", p.PID, p.Amount, err)
		}
		recipients[p.Address] += sats
		byAddress[p.Address] = append(byAddress[p.Address], p)
		p.Locked = true
		p.LockTime = &now
	}

	for address, sats := range recipients {
		if sats >= e.minTxOutput {
			continue
		}
		e.log.Warn("dropping output below minimum",
			"address", address, "amount", helpers.SatsToCoin(sats),
			"minimum", helpers.SatsToCoin(e.minTxOutput))
		for _, p := range byAddress[address] {
			p.Locked = false
			p.LockTime = nil
		}
		delete(recipients, address)
	}

	var totalOut uint64
	for _, sats := range recipients {
		totalOut += sats
	}
	if totalOut == 0 {
		e.log.Info("every output fell below the minimum, nothing to send", "currency", e.code)
		return nil, nil
	}

	balanceBefore, err := e.gateway.Balance(ctx, e.account)
	if err != nil {
		return nil, fmt.Errorf("wallet balance: %w", err)
	}
	if balanceBefore < totalOut {
		e.log.Error("wallet cannot cover payouts",
			"balance", helpers.SatsToCoin(balanceBefore),
			"needed", helpers.SatsToCoin(totalOut))
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance,
			helpers.SatsToCoin(balanceBefore), helpers.SatsToCoin(totalOut))
	}

	var locked []*storage.Payout
	for address := range recipients {
		locked = append(locked, byAddress[address]...)
	}
	sort.Slice(locked, func(i, j int) bool { return locked[i].ID < locked[j].ID })

	if simulate {
		e.log.Info("simulated send", "currency", e.code,
			"recipients", len(recipients), "payouts", len(locked),
			"total", helpers.SatsToCoin(totalOut))
		return &SendResult{
			TxID:       SimulatedTxID,
			Finalized:  locked,
			Recipients: recipients,
			Preview:    true,
		}, nil
	}

	// The locked state must be on disk before the wallet is asked to
	// pay. A crash between this commit and sendmany leaves locked rows
	// with no funds moved, which ResetLockedAll recovers.
	if err := tx.SaveAll(locked); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	txid, meta, err := e.gateway.SendMany(ctx, e.account, recipients)
	if err != nil {
		return nil, e.recoverFailedSend(ctx, locked, balanceBefore, err)
	}

	// lock_time stays put as the record of when the send window opened.
	paidAt := e.now().UTC()
	for _, p := range locked {
		p.Locked = false
		p.TxID = txid
		p.PaidTime = &paidAt
	}
	ftx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: sent %s but could not record it: %v", ErrIndeterminate, txid, err)
	}
	defer ftx.Rollback()
	if err := ftx.SaveAll(locked); err != nil {
		return nil, fmt.Errorf("%w: sent %s but could not record it: %v", ErrIndeterminate, txid, err)
	}
	if err := ftx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: sent %s but could not record it: %v", ErrIndeterminate, txid, err)
	}

	e.log.Info("payouts settled", "currency", e.code, "txid", txid,
		"recipients", len(recipients), "payouts", len(locked),
		"total", helpers.SatsToCoin(totalOut))
	return &SendResult{TxID: txid, Meta: meta, Finalized: locked, Recipients: recipients}, nil
}

// recoverFailedSend decides whether a sendmany failure moved funds. If
// the balance is unchanged the rows unlock and the failure is
// retryable; if the balance moved, or cannot be read, the rows stay
// locked and only repair may release them.
func (e *Engine) recoverFailedSend(ctx context.Context, locked []*storage.Payout, balanceBefore uint64, sendErr error) error {
	balanceAfter, err := e.gateway.Balance(ctx, e.account)
	if err != nil {
		e.log.Error("sendmany failed and the balance is unreadable, leaving rows locked",
			"send_error", sendErr, "balance_error", err)
		return fmt.Errorf("%w: sendmany: %v", ErrIndeterminate, sendErr)
	}
	if balanceAfter != balanceBefore {
		e.log.Error("sendmany failed after moving funds, leaving rows locked",
			"send_error", sendErr,
			"balance_before", helpers.SatsToCoin(balanceBefore),
			"balance_after", helpers.SatsToCoin(balanceAfter))
		return fmt.Errorf("%w: sendmany: %v", ErrIndeterminate, sendErr)
	}

	for _, p := range locked {
		p.Locked = false
	}
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: unlock after failed send: %v", ErrIndeterminate, err)
	}
	defer tx.Rollback()
	if err := tx.SaveAll(locked); err != nil {
		return fmt.Errorf("%w: unlock after failed send: %v", ErrIndeterminate, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: unlock after failed send: %v", ErrIndeterminate, err)
	}

	e.log.Warn("sendmany failed with no funds moved, rows unlocked for retry", "error", sendErr)
	return fmt.Errorf("sendmany: %w", sendErr)
}
