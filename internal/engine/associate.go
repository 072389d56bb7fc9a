package engine

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/poolhand/payoutd/internal/storage"
)

type associateRequest struct {
	CoinTxID string          `json:"coin_txid"`
	PIDs     []string        `json:"pids"`
	TxFee    json.RawMessage `json:"tx_fee"`
	Currency string          `json:"currency"`
}

type associateResponse struct {
	Result bool `json:"result"`
}

// Associate reports settled transactions back to the pool server. Paid
// rows are bucketed by txid, the wallet supplies the fee, and each
// bucket posts as one associate_payouts call. A bucket whose fee lookup
// or post fails is skipped and retried on the next run; only a result
// of true marks its rows associated. Simulate logs the batches without
// posting or writing anything.
func (e *Engine) Associate(ctx context.Context, simulate bool) error {
	rows, err := e.store.PaidUnassociated()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		e.log.Info("no settled payouts awaiting association", "currency", e.code)
		return nil
	}

	buckets := make(map[string][]int)
	for i, p := range rows {
		buckets[p.TxID] = append(buckets[p.TxID], i)
	}
	txids := make([]string, 0, len(buckets))
	for txid := range buckets {
		txids = append(txids, txid)
	}
	sort.Strings(txids)

	for _, txid := range txids {
		pids := make([]string, 0, len(buckets[txid]))
		for _, i := range buckets[txid] {
			pids = append(pids, rows[i].PID)
		}

		fee, err := e.transactionFee(ctx, txid)
		if err != nil {
			e.log.Warn("fee lookup failed, skipping transaction",
				"txid", txid, "payouts", len(pids), "error", err)
			continue
		}

		if simulate {
			e.log.Info("simulated associate", "txid", txid,
				"payouts", len(pids), "fee", string(fee))
			continue
		}

		req := &associateRequest{
			CoinTxID: txid,
			PIDs:     pids,
			TxFee:    fee,
			Currency: e.code,
		}
		var resp associateResponse
		if err := e.transport.Post(ctx, "associate_payouts", req, &resp); err != nil {
			e.log.Warn("associate post failed, will retry",
				"txid", txid, "payouts", len(pids), "error", err)
			continue
		}
		if !resp.Result {
			e.log.Warn("pool server declined association, will retry",
				"txid", txid, "payouts", len(pids))
			continue
		}

		now := e.now().UTC()
		tx, err := e.store.Begin(ctx)
		if err != nil {
			return err
		}
		for _, i := range buckets[txid] {
			rows[i].Associated = true
			rows[i].AssocTime = &now
		}
		if err := tx.SaveAll(pick(rows, buckets[txid])); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		e.log.Info("payouts associated", "currency", e.code,
			"txid", txid, "payouts", len(pids))
	}
	return nil
}

// transactionFee asks the wallet for a txid's fee and returns it as the
// exact number literal to put on the wire. Wallets omit the fee on some
// transaction kinds; that reports as zero.
func (e *Engine) transactionFee(ctx context.Context, txid string) (json.RawMessage, error) {
	info, err := e.gateway.GetTransaction(ctx, txid)
	if err != nil {
		return nil, err
	}
	fee := strings.TrimSpace(info.Fee)
	if fee == "" {
		fee = "0"
	}
	return json.RawMessage(fee), nil
}

func pick(rows []*storage.Payout, idx []int) []*storage.Payout {
	out := make([]*storage.Payout, 0, len(idx))
	for _, i := range idx {
		out = append(out, rows[i])
	}
	return out
}
