/*
journal.go - Journal entry types and replay

PURPOSE:
  Every accepted mutation is recorded as one or more generic.Transaction
  entries before it touches memory. This file is the single place where
  entries become state: the live write path and replay both go through
  applyLocked, so a replayed journal yields the state of the live run.

ENTRY TYPES:
  employer_registered  tenant-level, carries the employer and schedule v1
  schedule_updated     tenant-level, carries the new schedule
  employee_hired       Delta = paid leave days added
  employee_fired       EffectiveAt = termination day
  check_in, check_out  OccurredAt = event instant
  leave_requested      ReferenceID = request id
  leave_processed      ReferenceID = request id, approved flag
  leave_debited        Delta = -days, ReferenceID = request id
  leave_adjusted       Delta = +/- days (admin override)
  leave_granted        Delta = PaidLeavesPerYear (annual top-up)
  fine_applied         Delta = amount in employer currency
  bonus_applied        Delta = amount in employer currency
  payout_pending       Delta = amount to send, EffectiveAt = window end,
                       carries the window start, key and included accumulators
  payout_settled       same as payout_pending, journaled once acknowledged;
                       EffectiveAt becomes the new checkpoint

SEE ALSO:
  - generic/ledger.go: Append-only journal
  - directory.go: Restore
*/
package payroll

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-ledger/generic"
)

const (
	TxEmployerRegistered generic.TransactionType = "employer_registered"
	TxScheduleUpdated    generic.TransactionType = "schedule_updated"
	TxEmployeeHired      generic.TransactionType = "employee_hired"
	TxEmployeeFired      generic.TransactionType = "employee_fired"
	TxCheckIn            generic.TransactionType = "check_in"
	TxCheckOut           generic.TransactionType = "check_out"
	TxLeaveRequested     generic.TransactionType = "leave_requested"
	TxLeaveProcessed     generic.TransactionType = "leave_processed"
	TxLeaveDebited       generic.TransactionType = "leave_debited"
	TxLeaveAdjusted      generic.TransactionType = "leave_adjusted"
	TxLeaveGranted       generic.TransactionType = "leave_granted"
	TxFineApplied        generic.TransactionType = "fine_applied"
	TxBonusApplied       generic.TransactionType = "bonus_applied"
	TxPayoutPending      generic.TransactionType = "payout_pending"
	TxPayoutSettled      generic.TransactionType = "payout_settled"
)

// Metadata keys
const (
	metaScheduleVersion = "schedule_version"
	metaEndDate         = "end_date"
	metaPaid            = "paid"
	metaApproved        = "approved"
	metaName            = "name"
	metaSalary          = "monthly_salary"
	metaRehire          = "rehire"
	metaOwner           = "owner"
	metaCurrency        = "currency"
	metaPaidLeaves      = "paid_leaves_per_year"
	metaStandardDays    = "standard_working_days"
	metaStart           = "start_time"
	metaEnd             = "end_time"
	metaBuffer          = "buffer_time"
	metaWorkDays        = "work_days"
	metaTimezone        = "timezone_offset"
	metaWindowStart     = "window_start"
	metaPayoutKey       = "payout_key"
	metaFines           = "fines"
	metaBonuses         = "bonuses"
)

// =============================================================================
// APPLY
// =============================================================================

// applyLocked applies one accepted entry. The caller holds the lock that
// guards it: the schedule lock for schedule_updated, the registry lock for
// employee_hired, and acct's lock for everything else.
func (b *Book) applyLocked(acct *account, tx generic.Transaction) error {
	switch tx.Type {
	case TxScheduleUpdated:
		s, err := decodeSchedule(tx.Metadata)
		if err != nil {
			return err
		}
		b.schedules.push(tx.EffectiveAt, s)
		return nil
	case TxEmployeeHired:
		return b.registry.applyHire(tx)
	}
	if acct == nil {
		return fmt.Errorf("apply %s: no account for %s", tx.Type, tx.EntityID)
	}
	return acct.apply(tx)
}

func (r *EmployeeRegistry) applyHire(tx generic.Transaction) error {
	salary, err := decimal.NewFromString(tx.Meta(metaSalary))
	if err != nil {
		return fmt.Errorf("apply %s: salary: %w", tx.Type, err)
	}
	acct, ok := r.accounts[tx.EntityID]
	if !ok {
		acct = &account{attendance: newAttendanceLedger(), leaves: newLeaveLedger()}
		r.accounts[tx.EntityID] = acct
		r.order = append(r.order, tx.EntityID)
	}

	// A returning employee is never paid again for days already settled.
	checkpoint := tx.EffectiveAt.AddDays(-1)
	if prev := acct.employee.LastPayoutCheckpoint; ok && prev.After(checkpoint) {
		checkpoint = prev
	}

	unit := r.book.unit()
	acct.employee = Employee{
		ID:                   tx.EntityID,
		Name:                 tx.Meta(metaName),
		MonthlySalaryRate:    generic.NewAmount(salary, unit),
		JoiningDate:          tx.EffectiveAt,
		LastPayoutCheckpoint: checkpoint,
		AvailablePaidLeaves:  acct.employee.AvailablePaidLeaves + int(tx.Delta.Value.IntPart()),
		IsActive:             true,
		TotalFines:           generic.ZeroAmount(unit),
		TotalBonuses:         generic.ZeroAmount(unit),
	}
	return nil
}

func (a *account) apply(tx generic.Transaction) error {
	e := &a.employee
	switch tx.Type {
	case TxEmployeeFired:
		e.IsActive = false
		e.TerminationDate = tx.EffectiveAt

	case TxCheckIn:
		version, err := strconv.Atoi(tx.Meta(metaScheduleVersion))
		if err != nil {
			return fmt.Errorf("apply %s: schedule version: %w", tx.Type, err)
		}
		a.attendance.recordIn(tx.EffectiveAt, tx.OccurredAt.Unix(), version)

	case TxCheckOut:
		return a.attendance.recordOut(tx.EffectiveAt, tx.OccurredAt.Unix())

	case TxLeaveRequested:
		end, err := generic.ParseTimePoint(tx.Meta(metaEndDate))
		if err != nil {
			return fmt.Errorf("apply %s: %w", tx.Type, err)
		}
		a.leaves.add(LeaveRequest{
			StartDate:   tx.EffectiveAt,
			EndDate:     end,
			Reason:      tx.Reason,
			IsPaidLeave: tx.Meta(metaPaid) == "true",
			RequestedAt: tx.OccurredAt,
		})

	case TxLeaveProcessed:
		id, err := strconv.Atoi(tx.ReferenceID)
		if err != nil {
			return fmt.Errorf("apply %s: request id: %w", tx.Type, err)
		}
		return a.leaves.markProcessed(id, tx.Meta(metaApproved) == "true", tx.Reason, tx.OccurredAt, tx.CreatedBy)

	case TxLeaveDebited, TxLeaveAdjusted, TxLeaveGranted:
		e.AvailablePaidLeaves += int(tx.Delta.Value.IntPart())

	case TxFineApplied:
		e.TotalFines = e.TotalFines.Add(tx.Delta)

	case TxBonusApplied:
		e.TotalBonuses = e.TotalBonuses.Add(tx.Delta)

	case TxPayoutPending:
		p, err := decodePending(tx)
		if err != nil {
			return err
		}
		a.pending = p

	case TxPayoutSettled:
		if tx.Meta(metaFines) == "" {
			e.TotalFines = e.TotalFines.Zero()
			e.TotalBonuses = e.TotalBonuses.Zero()
		} else {
			p, err := decodePending(tx)
			if err != nil {
				return err
			}
			e.TotalFines = e.TotalFines.Sub(p.Fines)
			e.TotalBonuses = e.TotalBonuses.Sub(p.Bonuses)
		}
		e.LastPayoutCheckpoint = tx.EffectiveAt
		a.pending = nil

	default:
		return fmt.Errorf("apply: unknown entry type %q", tx.Type)
	}
	return nil
}

// replay applies an entry read back from the journal, taking the locks
// the live path would have held.
func (b *Book) replay(tx generic.Transaction) error {
	switch tx.Type {
	case TxScheduleUpdated:
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.applyLocked(nil, tx)
	case TxEmployeeHired:
		b.registry.mu.Lock()
		defer b.registry.mu.Unlock()
		return b.applyLocked(nil, tx)
	}
	acct, err := b.registry.account(tx.EntityID)
	if err != nil {
		return fmt.Errorf("replay %s #%d: %w", tx.Type, tx.Sequence, err)
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return b.applyLocked(acct, tx)
}

// =============================================================================
// ENCODING
// =============================================================================

func encodeSchedule(m map[string]string, s Schedule) {
	s = s.normalized()
	days := make([]string, len(s.WorkDays))
	for i, d := range s.WorkDays {
		days[i] = strconv.Itoa(int(d))
	}
	m[metaStart] = strconv.FormatInt(s.StartTime, 10)
	m[metaEnd] = strconv.FormatInt(s.EndTime, 10)
	m[metaBuffer] = strconv.FormatInt(s.BufferTime, 10)
	m[metaWorkDays] = strings.Join(days, ",")
	m[metaTimezone] = strconv.FormatInt(s.TimezoneOffset, 10)
}

func decodeSchedule(m map[string]string) (Schedule, error) {
	var s Schedule
	var err error
	ints := []struct {
		key string
		dst *int64
	}{
		{metaStart, &s.StartTime},
		{metaEnd, &s.EndTime},
		{metaBuffer, &s.BufferTime},
		{metaTimezone, &s.TimezoneOffset},
	}
	for _, f := range ints {
		if *f.dst, err = strconv.ParseInt(m[f.key], 10, 64); err != nil {
			return Schedule{}, fmt.Errorf("decode schedule %s: %w", f.key, err)
		}
	}
	for _, part := range strings.Split(m[metaWorkDays], ",") {
		d, err := strconv.Atoi(part)
		if err != nil {
			return Schedule{}, fmt.Errorf("decode schedule %s: %w", metaWorkDays, err)
		}
		s.WorkDays = append(s.WorkDays, time.Weekday(d))
	}
	return s, s.Validate()
}

func encodeEmployer(m map[string]string, e Employer) {
	m[metaOwner] = e.Owner
	m[metaName] = e.Name
	m[metaCurrency] = e.Currency
	m[metaPaidLeaves] = strconv.Itoa(e.PaidLeavesPerYear)
	m[metaStandardDays] = e.StandardWorkingDays.String()
}

func decodeEmployer(tx generic.Transaction) (Employer, error) {
	leaves, err := strconv.Atoi(tx.Meta(metaPaidLeaves))
	if err != nil {
		return Employer{}, fmt.Errorf("decode employer %s: %w", metaPaidLeaves, err)
	}
	std, err := decimal.NewFromString(tx.Meta(metaStandardDays))
	if err != nil {
		return Employer{}, fmt.Errorf("decode employer %s: %w", metaStandardDays, err)
	}
	return Employer{
		ID:                  tx.TenantID,
		Owner:               tx.Meta(metaOwner),
		Name:                tx.Meta(metaName),
		Currency:            tx.Meta(metaCurrency),
		PaidLeavesPerYear:   leaves,
		StandardWorkingDays: std,
		RegisteredAt:        tx.OccurredAt,
	}, nil
}

func encodePending(m map[string]string, p *pendingPayout) {
	m[metaWindowStart] = p.Window.Start.String()
	m[metaPayoutKey] = p.IdempotencyKey
	m[metaFines] = p.Fines.Value.String()
	m[metaBonuses] = p.Bonuses.Value.String()
}

func decodePending(tx generic.Transaction) (*pendingPayout, error) {
	start, err := generic.ParseTimePoint(tx.Meta(metaWindowStart))
	if err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", tx.Type, metaWindowStart, err)
	}
	fines, err := decimal.NewFromString(tx.Meta(metaFines))
	if err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", tx.Type, metaFines, err)
	}
	bonuses, err := decimal.NewFromString(tx.Meta(metaBonuses))
	if err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", tx.Type, metaBonuses, err)
	}
	unit := tx.Delta.Unit
	return &pendingPayout{
		Transfer: Transfer{
			Employer:       tx.TenantID,
			Employee:       tx.EntityID,
			Amount:         tx.Delta,
			Window:         generic.Period{Start: start, End: tx.EffectiveAt},
			IdempotencyKey: tx.Meta(metaPayoutKey),
		},
		Fines:   generic.NewAmount(fines, unit),
		Bonuses: generic.NewAmount(bonuses, unit),
	}, nil
}
