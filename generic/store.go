/*
store.go - Persistence interfaces for the journal and the payout run log

PURPOSE:
  Defines the interface between the domain logic and the database.
  The Store handles persistence while maintaining append-only semantics.
  Different implementations use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:  Journal persistence (append, load, exists)
  RunLog: Audit of payout attempts, separate from the journal

APPEND-ONLY CONTRACT:
  - Append(): Single entry write
  - AppendBatch(): Atomic multi-entry write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  A write may carry an idempotency key. If the key already exists, the
  write is rejected with ErrDuplicateIdempotencyKey. This turns network
  retries of check-in or leave decisions into no-ops.

ATOMIC BATCHES:
  AppendBatch() ensures all-or-nothing semantics. Approving a paid leave
  writes the decision and the balance debit together or not at all.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory for tests and local runs
  - store/sqlite/sqlite.go: Single-node SQLite
  - store/postgres/postgres.go: PostgreSQL through pgx

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for journal persistence (append-only)
// =============================================================================

// Store handles persistence of journal entries.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// Append persists an entry and assigns its sequence number.
	// Returns ErrDuplicateIdempotencyKey if the key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple entries atomically with consecutive
	// sequence numbers. Either all succeed or none do.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all entries for tenant+entity ordered by sequence.
	Load(ctx context.Context, tenantID TenantID, entityID EntityID) ([]Transaction, error)

	// LoadRange returns entries effective in [from, to] ordered by sequence.
	LoadRange(ctx context.Context, tenantID TenantID, entityID EntityID, from, to TimePoint) ([]Transaction, error)

	// LoadAll returns every entry ordered by sequence.
	LoadAll(ctx context.Context) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// RUN LOG - Separate from the journal, tracks every payout attempt
// =============================================================================

type RunStatus string

const (
	RunSettled RunStatus = "settled"
	RunFailed  RunStatus = "failed"
	RunSkipped RunStatus = "skipped"
)

// RunRecord is one payout attempt for one employee. Failed and skipped
// attempts are recorded too; only settled ones have a journal entry.
type RunRecord struct {
	ID          string
	BatchID     string // shared by every record of one pay-all run
	TenantID    TenantID
	EntityID    EntityID
	Window      Period
	Amount      Amount
	Status      RunStatus
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// RunLog stores payout attempts. Also append-only.
type RunLog interface {
	RecordRun(ctx context.Context, run RunRecord) error
	Runs(ctx context.Context, filter RunFilter) ([]RunRecord, error)
}

// RunFilter selects run records; zero fields match everything.
// Results are newest first.
type RunFilter struct {
	TenantID TenantID
	EntityID EntityID
	Status   RunStatus
	Limit    int
}
