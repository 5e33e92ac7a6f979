// Package sqlite is an in-process document engine on top of SQLite.
//
// Documents are JSON objects stored per collection with engine-style
// version, sequence number and primary term metadata. Queries are compiled
// to SQL over SQLite's JSON1 functions.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kailas-cloud/metastore/internal/db"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

const primaryTerm = 1

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection   TEXT    NOT NULL,
	id           TEXT    NOT NULL,
	source       TEXT    NOT NULL,
	version      INTEGER NOT NULL,
	seq_no       INTEGER NOT NULL,
	primary_term INTEGER NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS sequences (
	collection TEXT    PRIMARY KEY,
	seq_no     INTEGER NOT NULL
);`

// Engine implements db.Engine on a SQLite database.
type Engine struct {
	db *sql.DB
}

var _ db.Engine = (*Engine)(nil)

// Open opens (creating if needed) the database at dsn and prepares the schema.
func Open(ctx context.Context, dsn string) (*Engine, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	if dsn != MemoryDSN && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Engine{db: conn}, nil
}

// Ping checks the database connection.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close closes the database.
func (e *Engine) Close() error {
	return e.db.Close()
}

type storedDoc struct {
	source      string
	version     int64
	seqNo       int64
	primaryTerm int64
}

func loadDoc(ctx context.Context, tx *sql.Tx, collection, id string) (*storedDoc, error) {
	var d storedDoc
	err := tx.QueryRowContext(ctx,
		`SELECT source, version, seq_no, primary_term FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&d.source, &d.version, &d.seqNo, &d.primaryTerm)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nextSeqNo(ctx context.Context, tx *sql.Tx, collection string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO sequences (collection, seq_no) VALUES (?, 0)
		 ON CONFLICT (collection) DO UPDATE SET seq_no = seq_no + 1
		 RETURNING seq_no`,
		collection,
	).Scan(&seq)
	return seq, err
}

// inTx runs fn in a transaction, committing on success.
func (e *Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
