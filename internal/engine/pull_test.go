package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/poolhand/payoutd/internal/coordinator"
)

func TestPull(t *testing.T) {
	te := newTestEngine(t)
	a1, a2 := ltcAddress(1), ltcAddress(2)
	te.transport.responses["get_payouts"] = fmt.Sprintf(
		`{"pids":[["u1",%q,"0.50000000","p1"],["u2",%q,"0.10000000","p2"]]}`, a1, a2)

	stats, err := te.Pull(context.Background(), false)
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if stats.New != 2 || stats.Repeat != 0 || stats.Invalid != 0 {
		t.Errorf("Pull() stats = %+v, want {2 0 0}", stats)
	}

	rows, err := te.store.UnpaidUnlocked()
	if err != nil {
		t.Fatalf("UnpaidUnlocked() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("store has %d pulled rows, want 2", len(rows))
	}
	if rows[0].PID != "p1" || rows[0].User != "u1" || rows[0].Address != a1 {
		t.Errorf("first row = %+v", rows[0])
	}
	if rows[0].Amount != "0.50000000" {
		t.Errorf("Amount = %s, want 0.50000000", rows[0].Amount)
	}
	if rows[0].PullTime == nil {
		t.Error("PullTime not set")
	}

	// The same batch again is all repeats.
	stats, err = te.Pull(context.Background(), false)
	if err != nil {
		t.Fatalf("second Pull() error = %v", err)
	}
	if stats.New != 0 || stats.Repeat != 2 || stats.Invalid != 0 {
		t.Errorf("second Pull() stats = %+v, want {0 2 0}", stats)
	}
	if c := mustCounts(t, te.store); c.UnpaidUnlocked != 2 {
		t.Errorf("store has %d rows after repeat pull, want 2", c.UnpaidUnlocked)
	}
}

func TestPullRejectsForeignAddress(t *testing.T) {
	te := newTestEngine(t)
	// Version 0 is a bitcoin address; the validator only accepts 48.
	foreign := base58.CheckEncode(make([]byte, 20), 0)
	te.transport.responses["get_payouts"] = fmt.Sprintf(
		`{"pids":[["u1",%q,"1.00000000","p3"]]}`, foreign)

	stats, err := te.Pull(context.Background(), false)
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if stats.New != 0 || stats.Invalid != 1 {
		t.Errorf("Pull() stats = %+v, want invalid=1", stats)
	}
	if c := mustCounts(t, te.store); c.UnpaidUnlocked != 0 {
		t.Errorf("store has %d rows, want 0", c.UnpaidUnlocked)
	}
}

func TestPullSkipsMalformedTuples(t *testing.T) {
	te := newTestEngine(t)
	good := ltcAddress(1)
	te.transport.responses["get_payouts"] = fmt.Sprintf(
		`{"pids":[["u1",%q,"0.10000000"],[7,%q,"0.1","px"],["u1",%q,"0.20000000","p1"]]}`,
		good, good, good)

	stats, err := te.Pull(context.Background(), false)
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if stats.New != 1 || stats.Invalid != 2 {
		t.Errorf("Pull() stats = %+v, want {1 _ 2}", stats)
	}
	if _, err := te.store.ByPID("p1"); err != nil {
		t.Errorf("good tuple was not inserted: %v", err)
	}
}

func TestPullRejectsBadAmounts(t *testing.T) {
	te := newTestEngine(t)
	addr := ltcAddress(1)
	te.transport.responses["get_payouts"] = fmt.Sprintf(
		`{"pids":[["u1",%q,"0","p1"],["u2",%q,"0.000000001","p2"],["u3",%q,"ten","p3"]]}`,
		addr, addr, addr)

	stats, err := te.Pull(context.Background(), false)
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if stats.New != 0 || stats.Invalid != 3 {
		t.Errorf("Pull() stats = %+v, want invalid=3", stats)
	}
}

func TestPullNumericAmount(t *testing.T) {
	te := newTestEngine(t)
	addr := ltcAddress(1)
	// Older pool servers send amounts and pids as bare numbers.
	te.transport.responses["get_payouts"] = fmt.Sprintf(
		`{"pids":[["u1",%q,0.5,101]]}`, addr)

	stats, err := te.Pull(context.Background(), false)
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if stats.New != 1 {
		t.Fatalf("Pull() stats = %+v, want new=1", stats)
	}
	p, err := te.store.ByPID("101")
	if err != nil {
		t.Fatalf("ByPID(101) error = %v", err)
	}
	if p.Amount != "0.50000000" {
		t.Errorf("Amount = %s, want 0.50000000", p.Amount)
	}
}

func TestPullUnreachableServer(t *testing.T) {
	te := newTestEngine(t)
	te.transport.postErr["get_payouts"] = coordinator.ErrUnreachable

	stats, err := te.Pull(context.Background(), false)
	if err != nil {
		t.Fatalf("Pull() error = %v, want nil on unreachable server", err)
	}
	if stats.New != 0 || stats.Repeat != 0 || stats.Invalid != 0 {
		t.Errorf("Pull() stats = %+v, want zeros", stats)
	}
}

func TestPullSimulate(t *testing.T) {
	te := newTestEngine(t)
	te.transport.responses["get_payouts"] = fmt.Sprintf(
		`{"pids":[["u1",%q,"0.50000000","p1"]]}`, ltcAddress(1))

	stats, err := te.Pull(context.Background(), true)
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if stats.New != 1 {
		t.Errorf("Pull() stats = %+v, want new=1", stats)
	}
	if c := mustCounts(t, te.store); c.UnpaidUnlocked != 0 {
		t.Errorf("simulate inserted %d rows", c.UnpaidUnlocked)
	}
}
