/*
Package generic provides the journal primitives the payroll ledger is built on.

PURPOSE:
  This package contains domain-agnostic types for an append-only,
  multi-tenant journal. The payroll package records every accepted
  mutation (hire, check-in, leave approval, payout) as one or more
  Transactions and rebuilds its in-memory aggregates by replaying them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (3 days, 1500.00 USD)
  - Transaction: An immutable journal entry
  - TimePoint: A calendar day (used as effective dates)
  - Tenant/Entity IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only compensated
  2. Precision: Uses decimal.Decimal for money and day counts
  3. Type Safety: Tenant and entity IDs are distinct types
  4. Auditability: Every transaction has actor, reference, and idempotency key

USAGE:
  tx := generic.Transaction{
      TenantID:    "acme",
      EntityID:    "emp-123",
      Type:        "leave_debited",
      EffectiveAt: generic.NewTimePoint(2025, time.March, 3),
      Delta:       generic.NewAmountFromInt(-3, generic.UnitDays),
  }

SEE ALSO:
  - ledger.go: Journal interface over a Store
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy shared by every package
*/
package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

// Unit is either UnitDays or an ISO currency code such as "USD".
type Unit string

const (
	UnitDays Unit = "days"
)

func NewAmount(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

func ZeroAmount(unit Unit) Amount {
	return Amount{Value: decimal.Zero, Unit: unit}
}

// ParseDecimal parses a stored or submitted amount.
func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a decimal", ErrInvalidAmount, s)
	}
	return d, nil
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool          { return a.Unit == b.Unit && a.Value.Equal(b.Value) }

// ClampZero returns a when positive, otherwise zero in the same unit.
func (a Amount) ClampZero() Amount {
	if a.IsNegative() {
		return a.Zero()
	}
	return a
}

func (a Amount) String() string {
	return a.Value.String() + " " + string(a.Unit)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// TenantID identifies one employer account. Every journal entry belongs to
// exactly one tenant; nothing in this package selects a tenant implicitly.
type TenantID string

type EntityID string
type TransactionID string

// =============================================================================
// TRANSACTION - One journal entry
// =============================================================================

// TransactionType is defined by the domain package that writes the entry.
type TransactionType string

type Transaction struct {
	ID          TransactionID
	Sequence    int64 // assigned by the Store on append; defines replay order
	TenantID    TenantID
	EntityID    EntityID // empty for tenant-level entries
	Type        TransactionType
	EffectiveAt TimePoint
	OccurredAt  time.Time // wall-clock instant of the external event
	Delta       Amount
	ReferenceID string
	Reason      string

	IdempotencyKey string
	Metadata       map[string]string

	// Audit fields
	CreatedBy string
	CreatedAt time.Time
}

// Meta returns the metadata value for key, or "" when absent.
func (tx Transaction) Meta(key string) string {
	if tx.Metadata == nil {
		return ""
	}
	return tx.Metadata[key]
}
