package ops

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/poolhand/payoutd/internal/engine"
	"github.com/poolhand/payoutd/internal/storage"
	"github.com/poolhand/payoutd/internal/trades"
)

const nothingToDisplay = "-- Nothing to display --"

func banner(w io.Writer, title string) {
	fmt.Fprintf(w, "@@ %s @@\n", title)
}

// renderPayouts prints payout rows under a title banner.
func renderPayouts(w io.Writer, title string, rows []*storage.Payout) {
	banner(w, title)
	if len(rows) == 0 {
		fmt.Fprintln(w, nothingToDisplay)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "pid\tuser\taddress\tamount\tassociated\tlocked\ttxid")
	for _, p := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%t\t%s\n",
			p.PID, p.User, p.Address, p.Amount, p.Associated, p.Locked, p.TxID)
	}
	tw.Flush()
}

func renderTrades(w io.Writer, title string, requests []trades.TradeRequest) {
	banner(w, title)
	if len(requests) == 0 {
		fmt.Fprintln(w, nothingToDisplay)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "id\tcurrency\tquantity\ttype")
	for _, tr := range requests {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", tr.ID, tr.Currency, tr.Quantity.String(), tr.Type)
	}
	tw.Flush()
}

// renderSummary prints the per-address breakdown of a send. A nil result
// means nothing was pulled.
func renderSummary(w io.Writer, title string, result *engine.SendResult) {
	banner(w, title)
	if result == nil || len(result.Finalized) == 0 {
		fmt.Fprintln(w, nothingToDisplay)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "address\tamount\tpids")
	for _, line := range result.Summary() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", line.Address, line.Total, line.PIDs)
	}
	tw.Flush()
	fmt.Fprintf(w, "txid: %s\n", result.TxID)
}
