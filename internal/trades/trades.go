// Package trades reconciles the pool's trade requests against what was
// actually filled on the paired venue. The pool server records buy and
// sell intents; an operator executes them by hand and closes them here,
// splitting the filled quantity and fees pro-rata over the open
// requests. Everything is exact decimal; the venue's floats never touch
// the arithmetic.
package trades

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/poolhand/payoutd/internal/coordinator"
	"github.com/poolhand/payoutd/pkg/logging"
)

// ErrMalformed rejects a trade request batch whose shape does not
// match the wire contract. One bad tuple poisons the whole batch; the
// amounts involved are too large to guess around.
var ErrMalformed = errors.New("malformed trade request batch")

// Trade request kinds as the pool server spells them.
const (
	TypeBuy  = "buy"
	TypeSell = "sell"
)

// statusClosed is the pool server's terminal trade request status.
const statusClosed = 6

// TradeRequest is one open buy or sell intent.
type TradeRequest struct {
	ID       int64
	Currency string
	Quantity decimal.Decimal
	Type     string
}

// Reconciler closes trade requests for one currency.
type Reconciler struct {
	transport coordinator.Transport
	log       *logging.Logger
	code      string

	// confirm gates every batch close. The default asks y/n on stdin;
	// anything but "y" aborts with nothing posted.
	confirm func(prompt string) bool
}

// New creates a reconciler that confirms batch closes on stdin.
func New(transport coordinator.Transport, log *logging.Logger, code string) *Reconciler {
	return &Reconciler{
		transport: transport,
		log:       log,
		code:      code,
		confirm: func(prompt string) bool {
			return askYN(os.Stdin, os.Stdout, prompt)
		},
	}
}

// Code returns the reconciler's currency code.
func (r *Reconciler) Code() string {
	return r.code
}

type tradeListing struct {
	TRs []json.RawMessage `json:"trs"`
}

// OpenRequests fetches the open trade requests for the reconciler's
// currency, split into sells and buys. Requests for other currencies
// are skipped after validation; a malformed tuple rejects the batch.
func (r *Reconciler) OpenRequests(ctx context.Context) (sells, buys []TradeRequest, err error) {
	var resp tradeListing
	if err := r.transport.Post(ctx, "get_trade_requests", struct{}{}, &resp); err != nil {
		return nil, nil, fmt.Errorf("get_trade_requests: %w", err)
	}

	for _, raw := range resp.TRs {
		tr, err := decodeTradeRequest(raw)
		if err != nil {
			r.log.Warn("rejecting trade request batch", "tuple", string(raw), "error", err)
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if tr.Currency != r.code {
			continue
		}
		switch tr.Type {
		case TypeSell:
			sells = append(sells, *tr)
		case TypeBuy:
			buys = append(buys, *tr)
		}
	}

	r.log.Info("open trade requests", "currency", r.code,
		"sells", len(sells), "buys", len(buys))
	return sells, buys, nil
}

// decodeTradeRequest unpacks one (id, currency, quantity, type) tuple.
// Ids must be integers and quantities arrive as numbers or strings;
// both are read as their exact literals.
func decodeTradeRequest(raw json.RawMessage) (*TradeRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var tuple []interface{}
	if err := dec.Decode(&tuple); err != nil {
		return nil, err
	}
	if len(tuple) != 4 {
		return nil, fmt.Errorf("want 4 fields, got %d", len(tuple))
	}

	num, ok := tuple[0].(json.Number)
	if !ok {
		return nil, fmt.Errorf("id %v is not a number", tuple[0])
	}
	id, err := num.Int64()
	if err != nil {
		return nil, fmt.Errorf("id %s is not an integer", num)
	}

	currency, ok := tuple[1].(string)
	if !ok || currency == "" {
		return nil, fmt.Errorf("currency %v is not a string", tuple[1])
	}

	var literal string
	switch q := tuple[2].(type) {
	case json.Number:
		literal = q.String()
	case string:
		literal = q
	default:
		return nil, fmt.Errorf("quantity %v is not a number", tuple[2])
	}
	quantity, err := decimal.NewFromString(literal)
	if err != nil {
		return nil, fmt.Errorf("quantity %q: %v", literal, err)
	}
	if quantity.IsNegative() {
		return nil, fmt.Errorf("quantity %s is negative", quantity)
	}

	kind, ok := tuple[3].(string)
	if !ok || (kind != TypeBuy && kind != TypeSell) {
		return nil, fmt.Errorf("type %v is not buy or sell", tuple[3])
	}

	return &TradeRequest{ID: id, Currency: currency, Quantity: quantity, Type: kind}, nil
}

func askYN(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimSpace(line) == "y"
}
