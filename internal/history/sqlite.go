package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists cycle history to a SQLite database.
type SQLiteRecorder struct {
	log *slog.Logger
	db  *sql.DB
	mu  sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(log *slog.Logger, path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so dashboards can read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{
		log: log.With("component", "history"),
		db:  db,
	}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info("sqlite history opened", "path", path)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id            TEXT NOT NULL,
			started_at          INTEGER NOT NULL,
			finished_at         INTEGER NOT NULL,
			phase               TEXT NOT NULL,
			outcome             TEXT NOT NULL,
			fees_claimed        INTEGER NOT NULL,
			buyback_spent       INTEGER NOT NULL,
			liquidity_deposited INTEGER NOT NULL,
			held_reserve        INTEGER NOT NULL,
			detail              TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id  TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			kind      TEXT NOT NULL,
			signature TEXT NOT NULL,
			lamports  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_cycle ON transactions(cycle_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:30], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordCycle(ctx context.Context, rec CycleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO cycles
		(cycle_id, started_at, finished_at, phase, outcome,
		 fees_claimed, buyback_spent, liquidity_deposited, held_reserve, detail)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rec.CycleID, rec.StartedAt.Unix(), rec.FinishedAt.Unix(),
		rec.Phase, rec.Outcome,
		int64(rec.FeesClaimed), int64(rec.BuybackSpent),
		int64(rec.LiquidityDeposited), int64(rec.HeldReserve),
		rec.Detail,
	)
	return err
}

func (r *SQLiteRecorder) RecordTransaction(ctx context.Context, rec TransactionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO transactions
		(cycle_id, timestamp, kind, signature, lamports)
		VALUES (?,?,?,?,?)`,
		rec.CycleID, rec.Timestamp.Unix(), rec.Kind, rec.Signature, int64(rec.Lamports),
	)
	return err
}

// RecentCycles returns the most recent cycles, newest first.
func (r *SQLiteRecorder) RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT
		cycle_id, started_at, finished_at, phase, outcome,
		fees_claimed, buyback_spent, liquidity_deposited, held_reserve, detail
		FROM cycles ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		var started, finished int64
		var fees, buyback, deposited, held int64
		if err := rows.Scan(&rec.CycleID, &started, &finished, &rec.Phase, &rec.Outcome,
			&fees, &buyback, &deposited, &held, &rec.Detail); err != nil {
			return nil, err
		}
		rec.StartedAt = time.Unix(started, 0).UTC()
		rec.FinishedAt = time.Unix(finished, 0).UTC()
		rec.FeesClaimed = uint64(fees)
		rec.BuybackSpent = uint64(buyback)
		rec.LiquidityDeposited = uint64(deposited)
		rec.HeldReserve = uint64(held)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite history")
	return r.db.Close()
}
