package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T, code string) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "payoutd-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := Open(tmpDir, code)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func insertPayout(t *testing.T, store *Store, p *Payout) *Payout {
	t.Helper()
	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer tx.Rollback()

	if err := tx.Insert(p); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return p
}

func TestOpenCreatesFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "payoutd-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := Open(tmpDir, "LTC")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	want := filepath.Join(tmpDir, "rpc_LTC.sqlite")
	if store.Path() != want {
		t.Errorf("Path() = %s, want %s", store.Path(), want)
	}
	if _, err := os.Stat(want); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if store.Code() != "LTC" {
		t.Errorf("Code() = %s, want LTC", store.Code())
	}
}

func TestInsertAndQuery(t *testing.T) {
	store := testStore(t, "LTC")

	now := time.Unix(1700000000, 0)
	p := insertPayout(t, store, &Payout{
		PID:      "pid-1",
		User:     "miner1",
		Address:  "Laddr1",
		Amount:   "0.5",
		PullTime: &now,
	})

	if p.ID == 0 {
		t.Error("Insert() did not set ID")
	}
	// Amount normalized to canonical form.
	if p.Amount != "0.50000000" {
		t.Errorf("Amount = %s, want 0.50000000", p.Amount)
	}
	if p.Currency != "LTC" {
		t.Errorf("Currency = %s, want LTC", p.Currency)
	}

	got, err := store.ByPID("pid-1")
	if err != nil {
		t.Fatalf("ByPID() error = %v", err)
	}
	if got.User != "miner1" || got.Address != "Laddr1" || got.Amount != "0.50000000" {
		t.Errorf("ByPID() = %+v", got)
	}
	if got.TxID != "" || got.Associated || got.Locked {
		t.Errorf("fresh payout not pulled-state: %+v", got)
	}
	if got.PullTime == nil || got.PullTime.Unix() != 1700000000 {
		t.Errorf("PullTime = %v, want 1700000000", got.PullTime)
	}
	if got.LockTime != nil || got.PaidTime != nil || got.AssocTime != nil {
		t.Errorf("unexpected timestamps: %+v", got)
	}

	sats, err := got.AmountSats()
	if err != nil {
		t.Fatalf("AmountSats() error = %v", err)
	}
	if sats != 50000000 {
		t.Errorf("AmountSats() = %d, want 50000000", sats)
	}
}

func TestInsertRejectsDuplicatePID(t *testing.T) {
	store := testStore(t, "LTC")
	insertPayout(t, store, &Payout{PID: "pid-1", User: "u", Address: "a", Amount: "1"})

	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer tx.Rollback()

	err = tx.Insert(&Payout{PID: "pid-1", User: "u2", Address: "a2", Amount: "2"})
	if !errors.Is(err, ErrDuplicatePID) {
		t.Errorf("Insert(duplicate) error = %v, want ErrDuplicatePID", err)
	}
}

func TestInsertRejectsBadAmounts(t *testing.T) {
	store := testStore(t, "LTC")

	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer tx.Rollback()

	for _, amount := range []string{"0", "0.00000000", "-1", "0.000000001", "ten", ""} {
		err := tx.Insert(&Payout{PID: "pid-x", User: "u", Address: "a", Amount: amount})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Insert(amount=%q) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestStateQueries(t *testing.T) {
	store := testStore(t, "LTC")
	now := time.Unix(1700000000, 0)

	// One row per derived state.
	insertPayout(t, store, &Payout{PID: "pulled", User: "u", Address: "a1", Amount: "1"})
	insertPayout(t, store, &Payout{PID: "locked", User: "u", Address: "a2", Amount: "1", Locked: true, LockTime: &now})
	insertPayout(t, store, &Payout{PID: "paid", User: "u", Address: "a3", Amount: "1", TxID: "tx1", PaidTime: &now})
	insertPayout(t, store, &Payout{PID: "done", User: "u", Address: "a4", Amount: "1", TxID: "tx1", Associated: true, PaidTime: &now, AssocTime: &now})

	checks := []struct {
		name  string
		query func() ([]*Payout, error)
		want  []string
	}{
		{"UnpaidUnlocked", store.UnpaidUnlocked, []string{"pulled"}},
		{"UnpaidLocked", store.UnpaidLocked, []string{"locked"}},
		{"PaidUnassociated", store.PaidUnassociated, []string{"paid"}},
		{"Complete", store.Complete, []string{"done"}},
		{"Incomplete", store.Incomplete, []string{"pulled", "locked", "paid"}},
	}

	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			rows, err := c.query()
			if err != nil {
				t.Fatalf("%s() error = %v", c.name, err)
			}
			if len(rows) != len(c.want) {
				t.Fatalf("%s() returned %d rows, want %d", c.name, len(rows), len(c.want))
			}
			for i, pid := range c.want {
				if rows[i].PID != pid {
					t.Errorf("%s()[%d] = %s, want %s", c.name, i, rows[i].PID, pid)
				}
			}
		})
	}

	counts, err := store.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if counts.UnpaidUnlocked != 1 || counts.UnpaidLocked != 1 ||
		counts.PaidUnassociated != 1 || counts.Complete != 1 {
		t.Errorf("Count() = %+v", counts)
	}
}

func TestSaveRoundtrip(t *testing.T) {
	store := testStore(t, "LTC")
	p := insertPayout(t, store, &Payout{PID: "pid-1", User: "u", Address: "a", Amount: "1"})

	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	lockedAt := time.Unix(1700000100, 0)
	p.Locked = true
	p.LockTime = &lockedAt
	if err := tx.Save(p); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	got, err := store.ByID(p.ID)
	if err != nil {
		t.Fatalf("ByID() error = %v", err)
	}
	if !got.Locked || got.LockTime == nil || got.LockTime.Unix() != 1700000100 {
		t.Errorf("locked state not persisted: %+v", got)
	}

	// Move to paid, drop the lock.
	tx, err = store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	paidAt := time.Unix(1700000200, 0)
	got.Locked = false
	got.TxID = "txabc"
	got.PaidTime = &paidAt
	if err := tx.SaveAll([]*Payout{got}); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	final, err := store.ByID(p.ID)
	if err != nil {
		t.Fatalf("ByID() error = %v", err)
	}
	if final.Locked || final.TxID != "txabc" || final.PaidTime == nil {
		t.Errorf("paid state not persisted: %+v", final)
	}
}

func TestRollbackDiscards(t *testing.T) {
	store := testStore(t, "LTC")

	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.Insert(&Payout{PID: "pid-1", User: "u", Address: "a", Amount: "1"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if _, err := store.ByPID("pid-1"); !errors.Is(err, ErrPayoutNotFound) {
		t.Errorf("ByPID() after rollback error = %v, want ErrPayoutNotFound", err)
	}
}

func TestRollbackAfterCommitIsNoop(t *testing.T) {
	store := testStore(t, "LTC")

	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.Insert(&Payout{PID: "pid-1", User: "u", Address: "a", Amount: "1"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("Rollback() after Commit error = %v, want nil", err)
	}

	if _, err := store.ByPID("pid-1"); err != nil {
		t.Errorf("committed row lost: %v", err)
	}
}

func TestSaveMissingRow(t *testing.T) {
	store := testStore(t, "LTC")

	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer tx.Rollback()

	err = tx.Save(&Payout{ID: 9999, PID: "ghost", Amount: "1"})
	if !errors.Is(err, ErrPayoutNotFound) {
		t.Errorf("Save(missing) error = %v, want ErrPayoutNotFound", err)
	}
}

func TestCurrencyIsolation(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "payoutd-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	ltc, err := Open(tmpDir, "LTC")
	if err != nil {
		t.Fatalf("Open(LTC) error = %v", err)
	}
	defer ltc.Close()

	doge, err := Open(tmpDir, "DOGE")
	if err != nil {
		t.Fatalf("Open(DOGE) error = %v", err)
	}
	defer doge.Close()

	insertPayout(t, ltc, &Payout{PID: "pid-1", User: "u", Address: "a", Amount: "1"})

	// Separate files, separate rows.
	if ltc.Path() == doge.Path() {
		t.Fatal("currencies share a database file")
	}
	if _, err := doge.ByPID("pid-1"); !errors.Is(err, ErrPayoutNotFound) {
		t.Errorf("DOGE sees LTC's payout: %v", err)
	}
}

func TestDropAndCreate(t *testing.T) {
	store := testStore(t, "LTC")
	insertPayout(t, store, &Payout{PID: "pid-1", User: "u", Address: "a", Amount: "1"})

	if err := store.DropAndCreate(); err != nil {
		t.Fatalf("DropAndCreate() error = %v", err)
	}

	if _, err := store.ByPID("pid-1"); !errors.Is(err, ErrPayoutNotFound) {
		t.Errorf("ByPID() after reset error = %v, want ErrPayoutNotFound", err)
	}

	// The store still takes new rows.
	insertPayout(t, store, &Payout{PID: "pid-2", User: "u", Address: "a", Amount: "1"})
}
