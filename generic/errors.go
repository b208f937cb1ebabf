/*
errors.go - Centralized error types

PURPOSE:
  All error types in one place for consistency and discoverability.
  The payroll package wraps these with employee and request context;
  the API maps them to status codes with the helpers at the bottom.

ERROR CATEGORIES:
  1. Validation errors - Malformed input, never retried
  2. State conflicts - Input is well-formed but illegal in the current state
  3. Not found - Unknown employer, employee, or leave request
  4. Balance errors - Paid leave would go negative
  5. Settlement errors - The external payout collaborator failed

USAGE:
    if errors.Is(err, generic.ErrAlreadyProcessed) {
        // second approval of the same request
    }

SEE ALSO:
  - ledger.go: Returns ErrDuplicateIdempotencyKey
  - payroll/: Wraps these errors with domain context
  - api/handlers.go: Status code mapping
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

// Validation
var (
	ErrInvalidRange    = errors.New("invalid range: end before start")
	ErrInvalidAmount   = errors.New("invalid amount: must be positive")
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrInvalidTime     = errors.New("invalid time")
	ErrInvalidInput    = errors.New("invalid input")
)

// State conflicts
var (
	ErrAlreadyCheckedIn  = errors.New("already checked in today")
	ErrAlreadyCheckedOut = errors.New("already checked out today")
	ErrNotCheckedIn      = errors.New("not checked in today")
	ErrAlreadyProcessed  = errors.New("leave request already processed")
	ErrDuplicateIdentity = errors.New("identity already registered")
	ErrNotAWorkDay       = errors.New("not a work day")
	ErrEmployeeInactive  = errors.New("employee is inactive")
	ErrAlreadyInactive   = errors.New("employee already inactive")
	ErrUnsettledBalance  = errors.New("employee has an unsettled balance")
	ErrPayoutInProgress  = errors.New("payout already in progress")

	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// Not found
var (
	ErrEmployerNotFound = errors.New("employer not found")
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrLeaveNotFound    = errors.New("leave request not found")
)

var (
	ErrInsufficientLeaveBalance = errors.New("insufficient paid leave balance")
	ErrSettlementFailed         = errors.New("settlement failed")

	// ErrTransactionFailed is returned when the store cannot persist entries.
	ErrTransactionFailed = errors.New("transaction failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientLeaveBalanceError provides details about a paid leave shortage.
type InsufficientLeaveBalanceError struct {
	EntityID  EntityID
	Available int
	Requested int
}

func (e *InsufficientLeaveBalanceError) Error() string {
	return fmt.Sprintf("insufficient paid leave balance for %s: available %d, requested %d",
		e.EntityID, e.Available, e.Requested)
}

func (e *InsufficientLeaveBalanceError) Unwrap() error {
	return ErrInsufficientLeaveBalance
}

// SettlementError wraps a failure from the payout collaborator.
type SettlementError struct {
	TenantID TenantID
	EntityID EntityID
	Amount   Amount
	Err      error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement of %s to %s/%s failed: %v", e.Amount, e.TenantID, e.EntityID, e.Err)
}

func (e *SettlementError) Unwrap() []error {
	return []error{ErrSettlementFailed, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSettlementFailed) || errors.Is(err, ErrTransactionFailed)
}

// IsValidation returns true for malformed input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidSchedule) ||
		errors.Is(err, ErrInvalidTime) ||
		errors.Is(err, ErrInvalidInput)
}

// IsConflict returns true for well-formed input rejected by current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyCheckedIn) ||
		errors.Is(err, ErrAlreadyCheckedOut) ||
		errors.Is(err, ErrNotCheckedIn) ||
		errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrDuplicateIdentity) ||
		errors.Is(err, ErrNotAWorkDay) ||
		errors.Is(err, ErrEmployeeInactive) ||
		errors.Is(err, ErrAlreadyInactive) ||
		errors.Is(err, ErrUnsettledBalance) ||
		errors.Is(err, ErrPayoutInProgress) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return IsValidation(err) || IsConflict(err) || errors.Is(err, ErrInsufficientLeaveBalance)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployerNotFound) ||
		errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrLeaveNotFound)
}
