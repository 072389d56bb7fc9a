package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/poolhand/payoutd/pkg/helpers"
)

// Payout errors
var (
	ErrPayoutNotFound = errors.New("payout not found")
	ErrDuplicatePID   = errors.New("duplicate payout id")
	ErrInvalidAmount  = errors.New("invalid payout amount")
)

// Payout is one row of the payouts table. Its lifecycle state is derived:
// no txid and unlocked is pulled, no txid and locked is mid-send, a txid
// means paid, and associated means the pool server has been told.
type Payout struct {
	ID       int64
	PID      string // pool server payout id, unique
	User     string
	Address  string
	Amount   string // canonical 8-decimal string
	Currency string

	TxID       string // empty until paid
	Associated bool
	Locked     bool

	LockTime  *time.Time
	PaidTime  *time.Time
	AssocTime *time.Time
	PullTime  *time.Time
}

// AmountSats returns the payout amount in satoshis.
func (p *Payout) AmountSats() (uint64, error) {
	return helpers.CoinToSats(p.Amount)
}

const payoutColumns = `id, pid, user, address, amount, currency_code,
	txid, associated, locked, lock_time, paid_time, assoc_time, pull_time`

func scanPayout(row interface{ Scan(...interface{}) error }) (*Payout, error) {
	var p Payout
	var txid sql.NullString
	var lockTime, paidTime, assocTime, pullTime sql.NullInt64

	err := row.Scan(
		&p.ID, &p.PID, &p.User, &p.Address, &p.Amount, &p.Currency,
		&txid, &p.Associated, &p.Locked,
		&lockTime, &paidTime, &assocTime, &pullTime,
	)
	if err != nil {
		return nil, err
	}

	if txid.Valid {
		p.TxID = txid.String
	}
	p.LockTime = unixTime(lockTime)
	p.PaidTime = unixTime(paidTime)
	p.AssocTime = unixTime(assocTime)
	p.PullTime = unixTime(pullTime)

	return &p, nil
}

func unixTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// querier is satisfied by *sql.DB and *sql.Tx, so the same queries serve
// autocommit reports and exclusive transactions.
type querier interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func queryPayouts(q querier, code, where string, args ...interface{}) ([]*Payout, error) {
	query := "SELECT " + payoutColumns + " FROM payouts WHERE currency_code = ?"
	if where != "" {
		query += " AND " + where
	}
	query += " ORDER BY id ASC"

	rows, err := q.Query(query, append([]interface{}{code}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// State predicates, shared by reports and settlement.
const (
	whereUnpaidUnlocked   = "txid IS NULL AND locked = 0"
	whereUnpaidLocked     = "txid IS NULL AND locked = 1"
	wherePaidUnassociated = "txid IS NOT NULL AND associated = 0"
	whereLocked           = "locked = 1"
	whereComplete         = "txid IS NOT NULL AND associated = 1"
	whereIncomplete       = "txid IS NULL OR associated = 0"
)

func getByPID(q querier, code, pid string) (*Payout, error) {
	p, err := scanPayout(q.QueryRow(
		"SELECT "+payoutColumns+" FROM payouts WHERE currency_code = ? AND pid = ?", code, pid))
	if err == sql.ErrNoRows {
		return nil, ErrPayoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return p, nil
}

func getByID(q querier, code string, id int64) (*Payout, error) {
	p, err := scanPayout(q.QueryRow(
		"SELECT "+payoutColumns+" FROM payouts WHERE currency_code = ? AND id = ?", code, id))
	if err == sql.ErrNoRows {
		return nil, ErrPayoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return p, nil
}

func savePayout(q querier, p *Payout) error {
	result, err := q.Exec(`
		UPDATE payouts SET txid = ?, associated = ?, locked = ?,
			lock_time = ?, paid_time = ?, assoc_time = ?, pull_time = ?
		WHERE id = ?`,
		nullString(p.TxID), p.Associated, p.Locked,
		nullTime(p.LockTime), nullTime(p.PaidTime), nullTime(p.AssocTime), nullTime(p.PullTime),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save payout: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrPayoutNotFound
	}
	return nil
}

// ---- Transaction operations ----

// Insert adds a fresh payout row. The amount is normalized to the
// canonical 8-decimal form; non-positive or unparseable amounts are
// rejected with ErrInvalidAmount, duplicate pids with ErrDuplicatePID.
func (t *Tx) Insert(p *Payout) error {
	sats, err := helpers.CoinToSats(p.Amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if sats == 0 {
		return fmt.Errorf("%w: non-positive amount %q", ErrInvalidAmount, p.Amount)
	}
	p.Amount = helpers.SatsToCoin(sats)
	p.Currency = t.code

	result, err := t.tx.Exec(`
		INSERT INTO payouts (pid, user, address, amount, currency_code,
			txid, associated, locked, lock_time, paid_time, assoc_time, pull_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PID, p.User, p.Address, p.Amount, p.Currency,
		nullString(p.TxID), p.Associated, p.Locked,
		nullTime(p.LockTime), nullTime(p.PaidTime), nullTime(p.AssocTime), nullTime(p.PullTime),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: %s", ErrDuplicatePID, p.PID)
		}
		return fmt.Errorf("failed to insert payout: %w", err)
	}

	p.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read payout id: %w", err)
	}
	return nil
}

// Save writes back every mutable field of a row.
func (t *Tx) Save(p *Payout) error {
	return savePayout(t.tx, p)
}

// SaveAll writes back every row in the slice.
func (t *Tx) SaveAll(payouts []*Payout) error {
	for _, p := range payouts {
		if err := savePayout(t.tx, p); err != nil {
			return err
		}
	}
	return nil
}

// UnpaidUnlocked returns rows ready to be sent.
func (t *Tx) UnpaidUnlocked() ([]*Payout, error) {
	return queryPayouts(t.tx, t.code, whereUnpaidUnlocked)
}

// UnpaidLocked returns rows stuck mid-send.
func (t *Tx) UnpaidLocked() ([]*Payout, error) {
	return queryPayouts(t.tx, t.code, whereUnpaidLocked)
}

// PaidUnassociated returns rows paid but not yet reported back.
func (t *Tx) PaidUnassociated() ([]*Payout, error) {
	return queryPayouts(t.tx, t.code, wherePaidUnassociated)
}

// LockedRows returns every locked row regardless of txid.
func (t *Tx) LockedRows() ([]*Payout, error) {
	return queryPayouts(t.tx, t.code, whereLocked)
}

// ByPID looks a row up by its pool server payout id.
func (t *Tx) ByPID(pid string) (*Payout, error) {
	return getByPID(t.tx, t.code, pid)
}

// ByID looks a row up by its local id.
func (t *Tx) ByID(id int64) (*Payout, error) {
	return getByID(t.tx, t.code, id)
}

// ---- Autocommit reads (reports and status) ----

// UnpaidUnlocked returns rows ready to be sent.
func (s *Store) UnpaidUnlocked() ([]*Payout, error) {
	return queryPayouts(s.db, s.code, whereUnpaidUnlocked)
}

// UnpaidLocked returns rows stuck mid-send.
func (s *Store) UnpaidLocked() ([]*Payout, error) {
	return queryPayouts(s.db, s.code, whereUnpaidLocked)
}

// PaidUnassociated returns rows paid but not yet reported back.
func (s *Store) PaidUnassociated() ([]*Payout, error) {
	return queryPayouts(s.db, s.code, wherePaidUnassociated)
}

// Complete returns fully settled rows.
func (s *Store) Complete() ([]*Payout, error) {
	return queryPayouts(s.db, s.code, whereComplete)
}

// Incomplete returns every row still on its way through settlement.
func (s *Store) Incomplete() ([]*Payout, error) {
	return queryPayouts(s.db, s.code, whereIncomplete)
}

// ByPID looks a row up by its pool server payout id.
func (s *Store) ByPID(pid string) (*Payout, error) {
	return getByPID(s.db, s.code, pid)
}

// ByID looks a row up by its local id.
func (s *Store) ByID(id int64) (*Payout, error) {
	return getByID(s.db, s.code, id)
}

// Counts summarizes the store by settlement state.
type Counts struct {
	UnpaidUnlocked   int `json:"unpaid_unlocked"`
	UnpaidLocked     int `json:"unpaid_locked"`
	PaidUnassociated int `json:"paid_unassociated"`
	Complete         int `json:"complete"`
}

// Count returns per-state row counts.
func (s *Store) Count() (*Counts, error) {
	var c Counts
	for _, x := range []struct {
		where string
		dst   *int
	}{
		{whereUnpaidUnlocked, &c.UnpaidUnlocked},
		{whereUnpaidLocked, &c.UnpaidLocked},
		{wherePaidUnassociated, &c.PaidUnassociated},
		{whereComplete, &c.Complete},
	} {
		err := s.db.QueryRow(
			"SELECT COUNT(*) FROM payouts WHERE currency_code = ? AND "+x.where, s.code,
		).Scan(x.dst)
		if err != nil {
			return nil, fmt.Errorf("failed to count payouts: %w", err)
		}
	}
	return &c, nil
}
