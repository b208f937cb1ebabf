/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists the payroll journal and the payout run log in a single SQLite
  file. A restarted server replays the journal from here.

INTERFACES IMPLEMENTED:
  generic.Store:  Journal persistence
  generic.RunLog: Payout attempts

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the transactions table
  - No DELETE statements on the transactions table
  - Corrections are new entries (a bonus offsets a wrong fine, an
    adjustment offsets a wrong leave debit)

KEY TABLES:
  transactions:  Journal. seq is the replay order.
  payroll_runs:  One row per payout attempt, settled or not.

INDEXES:
  - idx_transactions_entity: per-employee history (hot path for queries)
  - idx_transactions_idempotency: retry detection on every write
  - idx_runs_tenant_started: run history listing

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite allows a single writer;
  the mutex keeps appends from racing on the busy lock.

WAL MODE:
  The database is opened with WAL so readers don't block the writer.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  journal := generic.NewLedger(store)

MIGRATION:
  Schema is created on New(). The PostgreSQL store uses versioned
  migrations instead.

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for tests
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/payroll-ledger/generic"
)

// Store implements generic.Store and generic.RunLog using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ generic.Store  = (*Store)(nil)
	_ generic.RunLog = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Journal (append-only)
	CREATE TABLE IF NOT EXISTS transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		tenant_id TEXT NOT NULL,
		entity_id TEXT NOT NULL DEFAULT '',
		tx_type TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		occurred_at INTEGER NOT NULL,
		delta_value TEXT NOT NULL,
		delta_unit TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_by TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_entity
		ON transactions(tenant_id, entity_id, seq);
	CREATE INDEX IF NOT EXISTS idx_transactions_effective_at
		ON transactions(tenant_id, entity_id, effective_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_idempotency
		ON transactions(idempotency_key) WHERE idempotency_key IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_type
		ON transactions(tx_type);

	-- Payout attempts
	CREATE TABLE IF NOT EXISTS payroll_runs (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		window_start TEXT,
		window_end TEXT,
		amount_value TEXT NOT NULL,
		amount_unit TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		started_at INTEGER NOT NULL,
		completed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_tenant_started
		ON payroll_runs(tenant_id, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_batch
		ON payroll_runs(batch_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION STORE (generic.Store interface)
// =============================================================================

const transactionColumns = `seq, id, tenant_id, entity_id, tx_type, effective_at, occurred_at,
	delta_value, delta_unit, reference_id, reason, idempotency_key, metadata_json,
	created_by, created_at`

// Append adds a transaction to the journal.
func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	return s.AppendBatch(ctx, []generic.Transaction{tx})
}

func (s *Store) appendTx(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, tx generic.Transaction) error {
	metadataJSON, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO transactions
		(id, tenant_id, entity_id, tx_type, effective_at, occurred_at, delta_value, delta_unit,
		 reference_id, reason, idempotency_key, metadata_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = db.ExecContext(ctx, query,
		tx.ID,
		tx.TenantID,
		tx.EntityID,
		tx.Type,
		tx.EffectiveAt.String(),
		tx.OccurredAt.UnixNano(),
		tx.Delta.Value.String(),
		tx.Delta.Unit,
		nullString(tx.ReferenceID),
		nullString(tx.Reason),
		nullString(tx.IdempotencyKey),
		string(metadataJSON),
		nullString(tx.CreatedBy),
		tx.CreatedAt.UnixNano(),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicate idempotency keys within the batch first
	idempotencyKeys := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			if idempotencyKeys[tx.IdempotencyKey] {
				return generic.ErrDuplicateIdempotencyKey
			}
			idempotencyKeys[tx.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := s.appendTx(ctx, sqlTx, tx); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// Load returns all transactions for a tenant+entity in journal order.
func (s *Store) Load(ctx context.Context, tenantID generic.TenantID, entityID generic.EntityID) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE tenant_id = ? AND entity_id = ?
		ORDER BY seq ASC
	`

	return s.queryTransactions(ctx, query, tenantID, entityID)
}

// LoadRange returns transactions effective in [from, to].
func (s *Store) LoadRange(ctx context.Context, tenantID generic.TenantID, entityID generic.EntityID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE tenant_id = ? AND entity_id = ?
		  AND effective_at >= ? AND effective_at <= ?
		ORDER BY seq ASC
	`

	return s.queryTransactions(ctx, query, tenantID, entityID, from.String(), to.String())
}

// LoadAll returns the whole journal in replay order.
func (s *Store) LoadAll(ctx context.Context) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions ORDER BY seq ASC`)
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

// Count returns the number of journal entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&count)
	return count, err
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		effectiveAt    string
		occurredAt     int64
		deltaValue     string
		deltaUnit      string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdBy      sql.NullString
		createdAt      int64
	)

	err := rows.Scan(
		&tx.Sequence, &tx.ID, &tx.TenantID, &tx.EntityID, &tx.Type,
		&effectiveAt, &occurredAt, &deltaValue, &deltaUnit,
		&referenceID, &reason, &idempotencyKey, &metadataJSON,
		&createdBy, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if effectiveAt != "" {
		if tx.EffectiveAt, err = generic.ParseTimePoint(effectiveAt); err != nil {
			return tx, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
	}
	tx.OccurredAt = time.Unix(0, occurredAt).UTC()
	tx.CreatedAt = time.Unix(0, createdAt).UTC()
	if tx.Delta, err = parseAmount(deltaValue, deltaUnit); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	tx.ReferenceID = referenceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String

	tx.Metadata = map[string]string{}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata); err != nil {
			return tx, fmt.Errorf("transaction %s metadata: %w", tx.ID, err)
		}
	}

	return tx, nil
}

// =============================================================================
// PAYROLL RUNS (generic.RunLog interface)
// =============================================================================

// RecordRun saves one payout attempt.
func (s *Store) RecordRun(ctx context.Context, r generic.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payroll_runs (id, batch_id, tenant_id, entity_id, window_start, window_end,
			amount_value, amount_unit, status, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.BatchID, r.TenantID, r.EntityID,
		nullString(r.Window.Start.String()), nullString(r.Window.End.String()),
		r.Amount.Value.String(), r.Amount.Unit,
		r.Status, nullString(r.Error),
		r.StartedAt.UnixNano(), r.CompletedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record payroll run: %w", err)
	}
	return nil
}

// Runs returns payout attempts matching filter, newest first.
func (s *Store) Runs(ctx context.Context, filter generic.RunFilter) ([]generic.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, batch_id, tenant_id, entity_id, window_start, window_end,
			amount_value, amount_unit, status, error, started_at, completed_at
		FROM payroll_runs
		WHERE (? = '' OR tenant_id = ?)
		  AND (? = '' OR entity_id = ?)
		  AND (? = '' OR status = ?)
		ORDER BY started_at DESC, rowid DESC
	`
	args := []any{
		filter.TenantID, filter.TenantID,
		filter.EntityID, filter.EntityID,
		filter.Status, filter.Status,
	}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payroll runs: %w", err)
	}
	defer rows.Close()

	var runs []generic.RunRecord
	for rows.Next() {
		var (
			r                      generic.RunRecord
			windowStart, windowEnd sql.NullString
			amountValue, unit      string
			runErr                 sql.NullString
			startedAt, completedAt int64
		)
		if err := rows.Scan(
			&r.ID, &r.BatchID, &r.TenantID, &r.EntityID, &windowStart, &windowEnd,
			&amountValue, &unit, &r.Status, &runErr, &startedAt, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payroll run: %w", err)
		}

		if windowStart.Valid {
			r.Window.Start, _ = generic.ParseTimePoint(windowStart.String)
		}
		if windowEnd.Valid {
			r.Window.End, _ = generic.ParseTimePoint(windowEnd.String)
		}
		if r.Amount, err = parseAmount(amountValue, unit); err != nil {
			return nil, fmt.Errorf("payroll run %s: %w", r.ID, err)
		}
		r.Error = runErr.String
		r.StartedAt = time.Unix(0, startedAt).UTC()
		r.CompletedAt = time.Unix(0, completedAt).UTC()

		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseAmount(value, unit string) (generic.Amount, error) {
	d, err := generic.ParseDecimal(value)
	if err != nil {
		return generic.Amount{}, err
	}
	return generic.NewAmount(d, generic.Unit(unit)), nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
