// Package storage provides the per-currency payout databases.
//
// Each currency gets its own SQLite file. The connection is opened with
// _txlock=exclusive and a single connection, so every transaction issues
// BEGIN EXCLUSIVE: one settlement operation at a time per currency, and no
// state change outside an explicit transaction.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the payout database for one currency.
type Store struct {
	db   *sql.DB
	code string
	path string
}

// Open opens (creating if needed) the payout database for a currency code
// inside dir.
func Open(dir, code string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("rpc_%s.sqlite", code))

	db, err := sql.Open("sqlite3", path+"?_txlock=exclusive&_busy_timeout=5000&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// One connection, so the exclusive transaction owns the file and
	// autocommit reads queue behind it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{
		db:   db,
		code: code,
		path: path,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Code returns the store's currency code.
func (s *Store) Code() string {
	return s.code
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS payouts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pid TEXT NOT NULL UNIQUE,
		user TEXT NOT NULL,
		address TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency_code TEXT NOT NULL,
		txid TEXT,
		associated INTEGER NOT NULL DEFAULT 0,
		locked INTEGER NOT NULL DEFAULT 0,
		lock_time INTEGER,
		paid_time INTEGER,
		assoc_time INTEGER,
		pull_time INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_payouts_state ON payouts(currency_code, associated, locked);
	CREATE INDEX IF NOT EXISTS idx_payouts_txid ON payouts(txid);
	CREATE INDEX IF NOT EXISTS idx_payouts_address ON payouts(address);
	`

	_, err := s.db.Exec(schema)
	return err
}

// DropAndCreate destroys every payout row and recreates the schema.
func (s *Store) DropAndCreate() error {
	if _, err := s.db.Exec("DROP TABLE IF EXISTS payouts"); err != nil {
		return fmt.Errorf("failed to drop payouts: %w", err)
	}
	if err := s.initSchema(); err != nil {
		return fmt.Errorf("failed to recreate schema: %w", err)
	}
	return nil
}

// Begin opens an exclusive transaction. Blocks up to the busy timeout when
// another transaction holds the file.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx, code: s.code}, nil
}

// Tx is an exclusive transaction over one currency's payouts.
type Tx struct {
	tx   *sql.Tx
	code string
	done bool
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	t.done = true
	return nil
}

// Rollback aborts the transaction. After Commit it is a no-op, so it can
// sit in a defer.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("failed to roll back: %w", err)
	}
	return nil
}
