/*
ledger.go - Append-only journal

PURPOSE:
  The Ledger is the immutable source of truth for every accepted mutation.
  Hires, check-ins, leave decisions, fines and payouts are all recorded
  here. In-memory state is always rebuilt by replaying entries in sequence
  order, so there is no separate copy that can get out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. ORDERED: Store sequence numbers define the replay order
  4. IDEMPOTENT: Same idempotency key = same entry (no duplicates)

CORRECTIONS:
  A mistake is never edited away. A compensating entry is appended
  instead (an admin leave adjustment, a bonus offsetting a wrong fine).
  Both remain in the journal.

EXAMPLE FLOW:
  1. Employee hired with 12 paid days:  employee_hired +12 days
  2. Three-day paid leave approved:     leave_processed, leave_debited -3
  3. Admin restores one day:            leave_adjusted +1

  Journal balance in days: [+12, -3, +1] = 10

SEE ALSO:
  - store.go: Low-level persistence interface
  - payroll/journal.go: Domain entries and replay
*/
package generic

import "context"

// =============================================================================
// LEDGER - Append-only journal
// =============================================================================

// Ledger is the source of truth for all mutations.
//
// INVARIANTS:
//   - Append-only: No Update, No Delete. EVER.
//   - Immutable: Once written, entries cannot be modified.
//   - Auditable: Every change is traceable to an actor.
type Ledger interface {
	// Append adds an entry. Fails if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple entries atomically.
	// Used when one decision produces several entries (approve + debit).
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Seen reports whether an idempotency key was already accepted.
	Seen(ctx context.Context, idempotencyKey string) (bool, error)

	// Transactions returns all entries for tenant+entity in sequence order.
	Transactions(ctx context.Context, tenantID TenantID, entityID EntityID) ([]Transaction, error)

	// TransactionsInRange returns entries effective in [from, to].
	TransactionsInRange(ctx context.Context, tenantID TenantID, entityID EntityID, from, to TimePoint) ([]Transaction, error)

	// All returns every entry of every tenant in sequence order. Used for replay.
	All(ctx context.Context) ([]Transaction, error)

	// BalanceAt sums the deltas in unit effective on or before at.
	BalanceAt(ctx context.Context, tenantID TenantID, entityID EntityID, at TimePoint, unit Unit) (Amount, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	return l.AppendBatch(ctx, []Transaction{tx})
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	// Check all idempotency keys first
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	if len(txs) == 1 {
		return l.Store.Append(ctx, txs[0])
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) Seen(ctx context.Context, idempotencyKey string) (bool, error) {
	if idempotencyKey == "" {
		return false, nil
	}
	return l.Store.Exists(ctx, idempotencyKey)
}

func (l *DefaultLedger) Transactions(ctx context.Context, tenantID TenantID, entityID EntityID) ([]Transaction, error) {
	return l.Store.Load(ctx, tenantID, entityID)
}

func (l *DefaultLedger) TransactionsInRange(ctx context.Context, tenantID TenantID, entityID EntityID, from, to TimePoint) ([]Transaction, error) {
	if to.Before(from) {
		return nil, ErrInvalidRange
	}
	return l.Store.LoadRange(ctx, tenantID, entityID, from, to)
}

func (l *DefaultLedger) All(ctx context.Context) ([]Transaction, error) {
	return l.Store.LoadAll(ctx)
}

func (l *DefaultLedger) BalanceAt(ctx context.Context, tenantID TenantID, entityID EntityID, at TimePoint, unit Unit) (Amount, error) {
	txs, err := l.Store.Load(ctx, tenantID, entityID)
	if err != nil {
		return Amount{}, err
	}

	balance := ZeroAmount(unit)
	for _, tx := range txs {
		if tx.Delta.Unit != unit || tx.EffectiveAt.After(at) {
			continue
		}
		balance = balance.Add(tx.Delta)
	}
	return balance, nil
}
