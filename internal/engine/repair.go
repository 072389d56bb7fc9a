package engine

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/poolhand/payoutd/internal/storage"
)

// Repair operations are the only exit from rows stuck locked after an
// indeterminate send. The scheduler never calls them; an operator does,
// after checking the chain by hand.

// ResetLockedAll flips every locked row back to the pull state and
// returns how many rows it touched. The caller asserts no send is in
// flight and no funds moved for these rows.
func (e *Engine) ResetLockedAll(ctx context.Context, simulate bool) (int, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.LockedRows()
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		e.log.Info("no locked rows to reset", "currency", e.code)
		return 0, nil
	}
	if simulate {
		e.log.Info("simulated reset", "currency", e.code, "rows", len(rows))
		return len(rows), nil
	}

	for _, p := range rows {
		p.Locked = false
	}
	if err := tx.SaveAll(rows); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	e.log.Info("locked rows reset", "currency", e.code, "rows", len(rows))
	return len(rows), nil
}

// AssociateLocked attaches a chain txid the operator located by hand to
// one locked row, moving it to the paid state so the next associate run
// reports it.
func (e *Engine) AssociateLocked(ctx context.Context, id int64, txid string, simulate bool) error {
	if err := checkTxID(txid); err != nil {
		return err
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, err := tx.ByID(id)
	if err != nil {
		return err
	}
	if !p.Locked {
		return fmt.Errorf("payout %d is not locked", id)
	}
	if simulate {
		e.log.Info("simulated associate of locked row",
			"id", id, "pid", p.PID, "txid", txid)
		return nil
	}

	e.repairToPaid(p, txid)
	if err := tx.Save(p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.log.Info("locked row repaired", "id", id, "pid", p.PID, "txid", txid)
	return nil
}

// AssociateAllLocked attaches one txid to every locked row of the
// currency and returns how many rows it repaired.
func (e *Engine) AssociateAllLocked(ctx context.Context, txid string, simulate bool) (int, error) {
	if err := checkTxID(txid); err != nil {
		return 0, err
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.LockedRows()
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		e.log.Info("no locked rows to repair", "currency", e.code)
		return 0, nil
	}
	if simulate {
		e.log.Info("simulated associate of locked rows",
			"currency", e.code, "rows", len(rows), "txid", txid)
		return len(rows), nil
	}

	for _, p := range rows {
		e.repairToPaid(p, txid)
	}
	if err := tx.SaveAll(rows); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	e.log.Info("locked rows repaired", "currency", e.code, "rows", len(rows), "txid", txid)
	return len(rows), nil
}

func (e *Engine) repairToPaid(p *storage.Payout, txid string) {
	now := e.now().UTC()
	p.Locked = false
	p.TxID = txid
	p.PaidTime = &now
}

// checkTxID rejects anything that is not a 32-byte hash before it can
// reach the database or the pool server.
func checkTxID(txid string) error {
	if _, err := chainhash.NewHashFromStr(txid); err != nil {
		return fmt.Errorf("invalid txid %q: %v", txid, err)
	}
	return nil
}
