package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/poolhand/payoutd/internal/coordinator"
	"github.com/poolhand/payoutd/internal/storage"
	"github.com/poolhand/payoutd/pkg/helpers"
)

// PullStats counts what a Pull run did with the pool server's batch.
type PullStats struct {
	New     int // rows inserted
	Repeat  int // pids already on file
	Invalid int // rejected tuples (bad address, bad amount, bad shape)
}

type pullResponse struct {
	PIDs []json.RawMessage `json:"pids"`
}

// Pull fetches pending payout obligations for the engine's currency and
// records the new ones. Each obligation arrives as a (user, address,
// amount, pid) tuple; tuples with an unparseable shape, an address that
// fails validation, or a malformed amount are counted invalid and
// skipped. Already-known pids count as repeats. With simulate set every
// check still runs but nothing is inserted.
func (e *Engine) Pull(ctx context.Context, simulate bool) (*PullStats, error) {
	var resp pullResponse
	err := e.transport.Post(ctx, "get_payouts", map[string]string{"currency": e.code}, &resp)
	if err != nil {
		if errors.Is(err, coordinator.ErrUnreachable) {
			e.log.Warn("pool server unreachable, skipping pull", "error", err)
			return &PullStats{}, nil
		}
		return nil, fmt.Errorf("get_payouts: %w", err)
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stats := &PullStats{}
	for _, raw := range resp.PIDs {
		user, address, amount, pid, ok := decodePayoutTuple(raw)
		if !ok {
			e.log.Warn("malformed payout tuple", "tuple", string(raw))
			stats.Invalid++
			continue
		}
		if !e.validator.Valid(address) {
			e.log.Warn("rejecting payout with invalid address",
				"pid", pid, "user", user, "address", address)
			stats.Invalid++
			continue
		}
		sats, err := helpers.CoinToSats(amount)
		if err != nil || sats == 0 {
			e.log.Warn("rejecting payout with invalid amount",
				"pid", pid, "user", user, "amount", amount)
			stats.Invalid++
			continue
		}
		if _, err := tx.ByPID(pid); err == nil {
			stats.Repeat++
			continue
		} else if !errors.Is(err, storage.ErrPayoutNotFound) {
			return nil, err
		}

		stats.New++
		if simulate {
			continue
		}
		now := e.now().UTC()
		p := &storage.Payout{
			PID:      pid,
			User:     user,
			Address:  address,
			Amount:   amount,
			PullTime: &now,
		}
		if err := tx.Insert(p); err != nil {
			return nil, fmt.Errorf("insert payout %s: %w", pid, err)
		}
	}

	if !simulate {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
	}

	e.log.Info("pull finished", "currency", e.code, "simulate", simulate,
		"new", stats.New, "repeat", stats.Repeat, "invalid", stats.Invalid)
	return stats, nil
}

// decodePayoutTuple unpacks one (user, address, amount, pid) element.
// Amounts and pids arrive as strings or bare numbers depending on the
// pool server version; numbers are kept as their exact literals.
func decodePayoutTuple(raw json.RawMessage) (user, address, amount, pid string, ok bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var tuple []interface{}
	if err := dec.Decode(&tuple); err != nil || len(tuple) != 4 {
		return "", "", "", "", false
	}

	user, uok := tuple[0].(string)
	address, aok := tuple[1].(string)
	amount, mok := asString(tuple[2])
	pid, pok := asString(tuple[3])
	if !uok || !aok || !mok || !pok || address == "" || pid == "" {
		return "", "", "", "", false
	}
	return user, address, amount, pid, true
}

func asString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	}
	return "", false
}
