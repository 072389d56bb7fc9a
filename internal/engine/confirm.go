package engine

import (
	"context"
	"fmt"
	"net/url"
)

type confirmRequest struct {
	TIDs []string `json:"tids"`
}

type confirmResponse struct {
	Result bool `json:"result"`
}

type transactionListing struct {
	Success bool `json:"success"`
	Objects []struct {
		TxID string `json:"txid"`
	} `json:"objects"`
}

// Confirm walks the pool server's unconfirmed transactions for the
// engine's currency and reports the ones the local wallet has buried
// deeper than the confirmation floor. No payout rows change; the pool
// server owns the confirmed flag.
func (e *Engine) Confirm(ctx context.Context, simulate bool) error {
	if err := e.gateway.Poke(ctx); err != nil {
		return fmt.Errorf("wallet poke: %w", err)
	}

	filter := fmt.Sprintf(`{"confirmed":false,"currency":"%s"}`, e.code)
	path := "api/transaction?__filter_by=" + url.QueryEscape(filter)

	var listing transactionListing
	if err := e.transport.Get(ctx, path, &listing); err != nil {
		return fmt.Errorf("list unconfirmed transactions: %w", err)
	}
	if !listing.Success {
		e.log.Warn("pool server refused the transaction listing", "currency", e.code)
		return nil
	}
	if len(listing.Objects) == 0 {
		e.log.Info("no transactions awaiting confirmation", "currency", e.code)
		return nil
	}

	var confirmed []string
	for _, obj := range listing.Objects {
		if obj.TxID == "" {
			continue
		}
		info, err := e.gateway.GetTransaction(ctx, obj.TxID)
		if err != nil {
			e.log.Warn("wallet does not know transaction", "txid", obj.TxID, "error", err)
			continue
		}
		if info.Confirmations > e.minConfirms {
			confirmed = append(confirmed, obj.TxID)
		} else {
			e.log.Info("transaction still maturing", "txid", obj.TxID,
				"confirmations", info.Confirmations, "needed", e.minConfirms+1)
		}
	}

	if len(confirmed) == 0 {
		return nil
	}
	if simulate {
		e.log.Info("simulated confirm", "currency", e.code, "txids", len(confirmed))
		return nil
	}

	var resp confirmResponse
	if err := e.transport.Post(ctx, "confirm_transactions", &confirmRequest{TIDs: confirmed}, &resp); err != nil {
		return fmt.Errorf("confirm_transactions: %w", err)
	}
	if !resp.Result {
		e.log.Warn("pool server declined confirmation batch", "currency", e.code)
		return nil
	}
	e.log.Info("transactions confirmed", "currency", e.code, "txids", len(confirmed))
	return nil
}
