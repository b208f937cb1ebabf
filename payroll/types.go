/*
Package payroll implements the attendance, leave and salary ledger for the
employees of an employer account.

PURPOSE:
  Records daily attendance, leave requests and salary obligations so that
  state stays consistent, auditable and replayable although writes arrive
  as discrete external events that may be retried or interleaved across
  employees.

COMPONENTS:
  Schedule:         Working hours and the pure attendance classifier
  AttendanceLedger: One record per employee per calendar day
  LeaveLedger:      Ordered leave requests per employee
  EmployeeRegistry: Identity, status, salary rate, balances, payout checkpoint
  PayrollEngine:    Amount owed since the last checkpoint, pay-all orchestration
  Book:             Everything one employer owns, behind explicit EmployerID
  Directory:        All employers; journal replay

CONSISTENCY MODEL:
  Every accepted mutation is appended to the journal (generic.Ledger) first
  and applied to memory second, both under the owning employee's write
  lock. Replaying the journal in sequence order rebuilds the same state.

SEE ALSO:
  - journal.go: Entry types and replay
  - generic/ledger.go: Append-only journal
*/
package payroll

import (
	"time"

	"github.com/warp/payroll-ledger/generic"
)

// EmployerID is the tenant key threaded through every operation.
type EmployerID = generic.TenantID

// EmployeeID is the employee's account identity within one employer.
type EmployeeID = generic.EntityID

// =============================================================================
// ATTENDANCE STATUS
// =============================================================================

type AttendanceStatus int

const (
	Absent AttendanceStatus = iota
	HalfDay
	FullDay
)

func (s AttendanceStatus) String() string {
	switch s {
	case HalfDay:
		return "half_day"
	case FullDay:
		return "full_day"
	default:
		return "absent"
	}
}

// =============================================================================
// WRITE METADATA
// =============================================================================

// Meta carries who is writing and the caller's retry key. The identity
// layer has already authenticated Actor; the ledger trusts it.
type Meta struct {
	Actor          string
	IdempotencyKey string
}

// Clock returns the current instant. Injected so tests control "today".
type Clock func() time.Time

// MaxRangeDays bounds every day walk: attendance ranges may span at most
// this many days, and salary may be computed at most this far past today.
const MaxRangeDays = 366

// =============================================================================
// OPEN DAY POLICY
// =============================================================================

// OpenDayPolicy decides how a day with a check-in but no check-out is paid
// while that day is still in progress.
type OpenDayPolicy string

const (
	// OpenDayHalfDay credits the open day as HalfDay, like a closed day
	// that ended without a check-out.
	OpenDayHalfDay OpenDayPolicy = "halfday"

	// OpenDayExclude credits an in-progress day nothing and stops a
	// payout checkpoint before it, so the day is paid once it closes.
	OpenDayExclude OpenDayPolicy = "exclude"
)

func ParseOpenDayPolicy(s string) (OpenDayPolicy, error) {
	switch OpenDayPolicy(s) {
	case "", OpenDayHalfDay:
		return OpenDayHalfDay, nil
	case OpenDayExclude:
		return OpenDayExclude, nil
	}
	return "", generic.ErrInvalidInput
}
