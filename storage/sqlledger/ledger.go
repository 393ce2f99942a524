// Package sqlledger implements the cross-authority vote ledger on top of a SQL
// database. Supported drivers are "postgres" (github.com/lib/pq) and "sqlite"
// (modernc.org/sqlite). The primary key on (election_id, voter_identity)
// decides which authority keeps the record when two completions race.
package sqlledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/vocdoni/vocdoni-credentials/log"
	"github.com/vocdoni/vocdoni-credentials/storage"
	"github.com/vocdoni/vocdoni-credentials/types"
)

const (
	// DriverPostgres is the database/sql driver name registered by lib/pq.
	DriverPostgres = "postgres"
	// DriverSQLite is the database/sql driver name registered by modernc.org/sqlite.
	DriverSQLite = "sqlite"
)

// schema is applied statement by statement, every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS vote_completion (
		election_id TEXT NOT NULL,
		voter_identity TEXT NOT NULL,
		authority_id BIGINT NOT NULL,
		reference TEXT NOT NULL,
		recorded_at BIGINT NOT NULL,
		PRIMARY KEY (election_id, voter_identity)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vote_completion_authority
		ON vote_completion(election_id, authority_id)`,
}

// Ledger is a SQL backed vote ledger.
type Ledger struct {
	db     *sql.DB
	driver string
}

// Open connects to the database, checks it is reachable and creates the
// schema if needed.
func Open(ctx context.Context, driver, dsn string) (*Ledger, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported ledger driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite allows a single writer, concurrent writers would fail with
		// SQLITE_BUSY instead of waiting
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s ledger: %w", driver, err)
	}
	l, err := New(ctx, db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// New wraps an already opened database and creates the schema if needed.
func New(ctx context.Context, db *sql.DB, driver string) (*Ledger, error) {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	log.Debugw("vote ledger schema ready", "driver", driver)
	return &Ledger{db: db, driver: driver}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// HasVoted reports whether a completion record exists for the voter.
func (l *Ledger) HasVoted(ctx context.Context, id types.ElectionID, voter string) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx, l.rebind(`
		SELECT EXISTS(
			SELECT 1 FROM vote_completion
			WHERE election_id = ? AND voter_identity = ?
		)`), string(id), voter).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query vote completion: %w", err)
	}
	return exists, nil
}

// VoteRecord returns the completion record of a voter, or storage.ErrNotFound.
func (l *Ledger) VoteRecord(ctx context.Context, id types.ElectionID, voter string) (*types.VoteRecord, error) {
	return l.voteRecord(ctx, l.db, id, voter)
}

// RecordVote inserts the completion record unless the voter already has one.
// The insert and the read of the winning record run in one transaction.
func (l *Ledger) RecordVote(ctx context.Context, r *types.VoteRecord) (*types.VoteOutcome, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.AuthorityID > math.MaxInt64 {
		return nil, fmt.Errorf("%w: authority id %d out of range", types.ErrInvalidVote, r.AuthorityID)
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, l.rebind(`
		INSERT INTO vote_completion (election_id, voter_identity, authority_id, reference, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (election_id, voter_identity) DO NOTHING`),
		string(r.ElectionID), r.Voter, int64(r.AuthorityID), r.Reference, ts.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert vote completion: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert vote completion: %w", err)
	}
	stored, err := l.voteRecord(ctx, tx, r.ElectionID, r.Voter)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit vote completion: %w", err)
	}

	if inserted == 1 {
		log.Debugw("vote completion recorded", "election", r.ElectionID, "authority", r.AuthorityID)
		return &types.VoteOutcome{Accepted: true, Record: stored}, nil
	}
	return &types.VoteOutcome{
		Accepted:          stored.AuthorityID == r.AuthorityID,
		ExistingAuthority: stored.AuthorityID,
		Record:            stored,
	}, nil
}

// CompletionsByAuthority counts the recorded completions of an election
// grouped by authority.
func (l *Ledger) CompletionsByAuthority(ctx context.Context, id types.ElectionID) (map[uint64]int, error) {
	rows, err := l.db.QueryContext(ctx, l.rebind(`
		SELECT authority_id, COUNT(*) FROM vote_completion
		WHERE election_id = ?
		GROUP BY authority_id`), string(id))
	if err != nil {
		return nil, fmt.Errorf("query completions: %w", err)
	}
	defer rows.Close()

	counts := make(map[uint64]int)
	for rows.Next() {
		var authority int64
		var n int
		if err := rows.Scan(&authority, &n); err != nil {
			return nil, fmt.Errorf("scan completions: %w", err)
		}
		counts[uint64(authority)] = n
	}
	return counts, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (l *Ledger) voteRecord(ctx context.Context, q queryer, id types.ElectionID, voter string) (*types.VoteRecord, error) {
	var authority, recordedAt int64
	var reference string
	err := q.QueryRowContext(ctx, l.rebind(`
		SELECT authority_id, reference, recorded_at FROM vote_completion
		WHERE election_id = ? AND voter_identity = ?`),
		string(id), voter).Scan(&authority, &reference, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query vote completion: %w", err)
	}
	return &types.VoteRecord{
		ElectionID:  id,
		Voter:       voter,
		AuthorityID: uint64(authority),
		Reference:   reference,
		Timestamp:   time.UnixMilli(recordedAt).UTC(),
	}, nil
}

// rebind rewrites '?' placeholders into the numbered form postgres expects.
func (l *Ledger) rebind(query string) string {
	if l.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
