/*
Package postgres provides a PostgreSQL implementation of the storage
interfaces through a pgx connection pool.

PURPOSE:
  Multi-node deployments share one journal. Every node restores from the
  same table and appends through the same unique idempotency index, so a
  retried request that lands on another node is still rejected.

SCHEMA:
  Versioned migrations under migrations/ are embedded and applied by
  Migrate. New() applies them on open.

SEE ALSO:
  - generic/store.go: Interface definitions
  - store/sqlite: Single-node implementation
*/
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/warp/payroll-ledger/generic"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements generic.Store and generic.RunLog on PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var (
	_ generic.Store  = (*Store)(nil)
	_ generic.RunLog = (*Store)(nil)
)

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

// New connects, verifies the connection and applies pending migrations.
func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	s := &Store{pool: pool, logger: logger.Named("postgres")}
	if err := s.Migrate(); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies every embedded migration not yet applied.
func (s *Store) Migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	if dirty {
		s.logger.Warn("database migration is dirty", zap.Uint("version", version))
	} else {
		s.logger.Info("database migrated", zap.Uint("version", version))
	}
	return nil
}

func (s *Store) Close() { s.pool.Close() }

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// =============================================================================
// JOURNAL
// =============================================================================

const selectTransactions = `
	SELECT seq, id, tenant_id, entity_id, tx_type, effective_at, occurred_at,
	       delta_value::text, delta_unit, reference_id, reason, idempotency_key,
	       metadata, created_by, created_at
	FROM transactions
`

func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	return s.AppendBatch(ctx, []generic.Transaction{tx})
}

// AppendBatch writes every entry in one database transaction.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	keys := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if keys[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		keys[tx.IdempotencyKey] = true
	}

	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer dbTx.Rollback(ctx)

	for _, tx := range txs {
		if err := appendTx(ctx, dbTx, tx); err != nil {
			return err
		}
	}
	return dbTx.Commit(ctx)
}

func appendTx(ctx context.Context, q querier, tx generic.Transaction) error {
	metadata := tx.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO transactions
		(id, tenant_id, entity_id, tx_type, effective_at, occurred_at, delta_value, delta_unit,
		 reference_id, reason, idempotency_key, metadata, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		string(tx.ID), string(tx.TenantID), string(tx.EntityID), string(tx.Type),
		tx.EffectiveAt.Time, tx.OccurredAt,
		tx.Delta.Value.String(), string(tx.Delta.Unit),
		nullable(tx.ReferenceID), nullable(tx.Reason), nullable(tx.IdempotencyKey),
		metadata, nullable(tx.CreatedBy), tx.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, tenantID generic.TenantID, entityID generic.EntityID) ([]generic.Transaction, error) {
	return s.query(ctx, selectTransactions+` WHERE tenant_id = $1 AND entity_id = $2 ORDER BY seq`,
		string(tenantID), string(entityID))
}

func (s *Store) LoadRange(ctx context.Context, tenantID generic.TenantID, entityID generic.EntityID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	return s.query(ctx, selectTransactions+`
		WHERE tenant_id = $1 AND entity_id = $2 AND effective_at BETWEEN $3 AND $4
		ORDER BY seq`,
		string(tenantID), string(entityID), from.Time, to.Time)
}

func (s *Store) LoadAll(ctx context.Context) ([]generic.Transaction, error) {
	return s.query(ctx, selectTransactions+` ORDER BY seq`)
}

func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE idempotency_key = $1)`,
		idempotencyKey,
	).Scan(&exists)
	return exists, err
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]generic.Transaction, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []generic.Transaction
	for rows.Next() {
		var (
			tx                                  generic.Transaction
			id, tenant, entity, txType          string
			unit, val                           string
			effective                           time.Time
			referenceID, reason, key, createdBy *string
		)
		if err := rows.Scan(
			&tx.Sequence, &id, &tenant, &entity, &txType, &effective, &tx.OccurredAt,
			&val, &unit, &referenceID, &reason, &key,
			&tx.Metadata, &createdBy, &tx.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.ID = generic.TransactionID(id)
		tx.TenantID = generic.TenantID(tenant)
		tx.EntityID = generic.EntityID(entity)
		tx.Type = generic.TransactionType(txType)
		tx.EffectiveAt = day(effective)
		tx.OccurredAt = tx.OccurredAt.UTC()
		tx.CreatedAt = tx.CreatedAt.UTC()
		tx.ReferenceID = deref(referenceID)
		tx.Reason = deref(reason)
		tx.IdempotencyKey = deref(key)
		tx.CreatedBy = deref(createdBy)
		amount, err := generic.ParseDecimal(val)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", id, err)
		}
		tx.Delta = generic.NewAmount(amount, generic.Unit(unit))
		out = append(out, tx)
	}
	return out, rows.Err()
}

// =============================================================================
// PAYROLL RUNS
// =============================================================================

func (s *Store) RecordRun(ctx context.Context, r generic.RunRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payroll_runs (id, batch_id, tenant_id, entity_id, window_start, window_end,
			amount_value, amount_unit, status, error, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		r.ID, r.BatchID, string(r.TenantID), string(r.EntityID),
		nullableDay(r.Window.Start), nullableDay(r.Window.End),
		r.Amount.Value.String(), string(r.Amount.Unit),
		string(r.Status), nullable(r.Error), r.StartedAt, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("record payroll run: %w", err)
	}
	return nil
}

// Runs returns payout attempts matching filter, newest first.
func (s *Store) Runs(ctx context.Context, filter generic.RunFilter) ([]generic.RunRecord, error) {
	sql := `
		SELECT id, batch_id, tenant_id, entity_id, window_start, window_end,
		       amount_value::text, amount_unit, status, error, started_at, completed_at
		FROM payroll_runs
		WHERE ($1 = '' OR tenant_id = $1)
		  AND ($2 = '' OR entity_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY started_at DESC
	`
	args := []any{string(filter.TenantID), string(filter.EntityID), string(filter.Status)}
	if filter.Limit > 0 {
		sql += ` LIMIT $4`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query payroll runs: %w", err)
	}
	defer rows.Close()

	var out []generic.RunRecord
	for rows.Next() {
		var (
			r                      generic.RunRecord
			tenant, entity, status string
			val, unit              string
			windowStart, windowEnd *time.Time
			runErr                 *string
		)
		if err := rows.Scan(
			&r.ID, &r.BatchID, &tenant, &entity, &windowStart, &windowEnd,
			&val, &unit, &status, &runErr, &r.StartedAt, &r.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payroll run: %w", err)
		}
		r.TenantID = generic.TenantID(tenant)
		r.EntityID = generic.EntityID(entity)
		r.Status = generic.RunStatus(status)
		r.Error = deref(runErr)
		if windowStart != nil {
			r.Window.Start = day(*windowStart)
		}
		if windowEnd != nil {
			r.Window.End = day(*windowEnd)
		}
		amount, err := generic.ParseDecimal(val)
		if err != nil {
			return nil, fmt.Errorf("payroll run %s: %w", r.ID, err)
		}
		r.Amount = generic.NewAmount(amount, generic.Unit(unit))
		r.StartedAt = r.StartedAt.UTC()
		r.CompletedAt = r.CompletedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Helper functions

func day(t time.Time) generic.TimePoint {
	return generic.NewTimePoint(t.Year(), t.Month(), t.Day())
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableDay(tp generic.TimePoint) *time.Time {
	if tp.IsZero() {
		return nil
	}
	return &tp.Time
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
