package trades

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// amountPrecision is the fractional precision closed quantities and
// fees are rounded to before they go on the wire.
const amountPrecision = 8

type closeEntry struct {
	Status   int             `json:"status"`
	Quantity json.RawMessage `json:"quantity"`
	Fees     json.RawMessage `json:"fees"`
}

type updateRequest struct {
	Update bool                  `json:"update"`
	TRs    map[string]closeEntry `json:"trs"`
}

type updateResponse struct {
	Success bool `json:"success"`
}

// CloseRequest closes a single trade request with the given filled
// quantity and fees. No pro-rata arithmetic and no confirmation; the
// operator already names one request and its exact numbers.
func (r *Reconciler) CloseRequest(ctx context.Context, id int64, quantity, fees decimal.Decimal, simulate bool) error {
	entries := map[string]closeEntry{
		strconv.FormatInt(id, 10): newCloseEntry(quantity, fees),
	}
	if simulate {
		r.log.Info("simulated close", "id", id,
			"quantity", quantity.String(), "fees", fees.String())
		return nil
	}
	return r.postUpdate(ctx, entries)
}

// CloseSellRequests closes the open sell requests in the optional
// [startID, stopID] id range, splitting the obtained quantity and the
// venue fees pro-rata over the requests' quantities. The operator
// confirms the breakdown before anything posts.
func (r *Reconciler) CloseSellRequests(ctx context.Context, obtained, fees decimal.Decimal, startID, stopID int64, simulate bool) error {
	sells, _, err := r.OpenRequests(ctx)
	if err != nil {
		return err
	}
	selected := filterRange(sells, startID, stopID)
	if len(selected) == 0 {
		r.log.Info("no open sell requests selected", "currency", r.code)
		return nil
	}
	return r.closeBatch(ctx, selected, obtained, fees, simulate)
}

// CloseBuyRequests is the buy-side mirror: the purchased quantity and
// fees are split pro-rata over the selected buy requests' quantities.
func (r *Reconciler) CloseBuyRequests(ctx context.Context, purchased, fees decimal.Decimal, startID, stopID int64, simulate bool) error {
	_, buys, err := r.OpenRequests(ctx)
	if err != nil {
		return err
	}
	selected := filterRange(buys, startID, stopID)
	if len(selected) == 0 {
		r.log.Info("no open buy requests selected", "currency", r.code)
		return nil
	}
	return r.closeBatch(ctx, selected, purchased, fees, simulate)
}

func (r *Reconciler) closeBatch(ctx context.Context, requests []TradeRequest, filled, fees decimal.Decimal, simulate bool) error {
	total := decimal.Zero
	for _, tr := range requests {
		total = total.Add(tr.Quantity)
	}
	if total.IsZero() {
		return errors.New("selected trade requests sum to zero quantity")
	}

	r.log.Info("closing trade requests", "currency", r.code,
		"requests", len(requests), "total_quantity", total.String(),
		"rate", filled.Div(total).String())

	entries := make(map[string]closeEntry, len(requests))
	for _, tr := range requests {
		share := tr.Quantity.Div(total)
		q := share.Mul(filled).Round(amountPrecision)
		f := share.Mul(fees).Round(amountPrecision)
		r.log.Info("trade request share", "id", tr.ID,
			"quantity", tr.Quantity.String(), "filled", q.String(), "fees", f.String())
		entries[strconv.FormatInt(tr.ID, 10)] = newCloseEntry(q, f)
	}

	if !r.confirm(fmt.Sprintf("close %d %s trade requests", len(requests), r.code)) {
		r.log.Warn("close aborted, nothing posted")
		return nil
	}
	if simulate {
		r.log.Info("simulated close, nothing posted", "requests", len(requests))
		return nil
	}
	return r.postUpdate(ctx, entries)
}

func (r *Reconciler) postUpdate(ctx context.Context, entries map[string]closeEntry) error {
	var resp updateResponse
	req := &updateRequest{Update: true, TRs: entries}
	if err := r.transport.Post(ctx, "update_trade_requests", req, &resp); err != nil {
		return fmt.Errorf("update_trade_requests: %w", err)
	}
	if !resp.Success {
		return errors.New("pool server rejected the trade update")
	}
	r.log.Info("trade requests closed", "requests", len(entries))
	return nil
}

// newCloseEntry carries the amounts as their exact decimal literals.
func newCloseEntry(quantity, fees decimal.Decimal) closeEntry {
	return closeEntry{
		Status:   statusClosed,
		Quantity: json.RawMessage(quantity.String()),
		Fees:     json.RawMessage(fees.String()),
	}
}

func filterRange(requests []TradeRequest, startID, stopID int64) []TradeRequest {
	var out []TradeRequest
	for _, tr := range requests {
		if startID > 0 && tr.ID < startID {
			continue
		}
		if stopID > 0 && tr.ID > stopID {
			continue
		}
		out = append(out, tr)
	}
	return out
}
