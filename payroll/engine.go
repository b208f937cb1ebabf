/*
engine.go - Salary calculation and payout orchestration

PURPOSE:
  Computes what an employee is owed since their last payout checkpoint and
  settles it through an external collaborator. The engine only reads the
  attendance and leave ledgers; its writes are the pending transfer and,
  once acknowledged, the registry's checkpoint advance.

SALARY RULE:
  For every day in [checkpoint+1, asOf] that is a work day under the
  schedule in effect that day:
    approved paid leave  +dailyRate (attendance ignored)
    FullDay              +dailyRate
    HalfDay              +dailyRate / 2
    Absent               0
  then + TotalBonuses - TotalFines, clamped at zero.

  dailyRate = MonthlySalaryRate / StandardWorkingDays, where the standard
  is configured per employer or derived from the weekly pattern.

  The standard derived from the weekly pattern uses the schedule in effect
  on the first day of the window.

PAYOUT:
  1. Under the employee lock: compute the amount and journal payout_pending
     with the exact transfer it is about to send
  2. Without the lock: call the settlement collaborator
  3. Under the lock again: journal payout_settled, which moves the
     checkpoint to the pending window's end

  A pending transfer that was never acknowledged is re-sent unchanged
  before anything new is computed. The collaborator dedups by key, so a retry
  never pays twice and a later, larger amount never hides behind an old
  key. Employees settle independently and concurrently; a failure leaves
  that employee's checkpoint and accumulators untouched.

SEE ALSO:
  - registry.go: advanceCheckpoint
  - settlement/: Collaborator implementations
*/
package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/payroll-ledger/generic"
)

// =============================================================================
// SETTLEMENT COLLABORATOR
// =============================================================================

// Transfer is one payout instruction.
type Transfer struct {
	Employer       EmployerID
	Employee       EmployeeID
	Amount         generic.Amount
	Window         generic.Period
	IdempotencyKey string
}

// Settlement moves money. It must treat a repeated IdempotencyKey as the
// same transfer.
type Settlement interface {
	Transfer(ctx context.Context, t Transfer) error
}

// SettlementFunc adapts a function to Settlement.
type SettlementFunc func(ctx context.Context, t Transfer) error

func (f SettlementFunc) Transfer(ctx context.Context, t Transfer) error { return f(ctx, t) }

// PayoutObserver is notified of every payout attempt.
type PayoutObserver interface {
	ObservePayout(employer EmployerID, result PayoutResult, elapsed time.Duration)
}

// =============================================================================
// RESULTS
// =============================================================================

// SalaryBreakdown explains a CalculateSalary result.
type SalaryBreakdown struct {
	Employee      EmployeeID
	Window        generic.Period // empty when nothing has elapsed
	DailyRate     generic.Amount
	FullDays      int
	HalfDays      int
	PaidLeaveDays int
	AbsentDays    int
	OpenDays      int // in-progress days credited nothing under OpenDayExclude
	Base          generic.Amount
	Bonuses       generic.Amount
	Fines         generic.Amount
	Total         generic.Amount
}

// PayoutResult is the outcome of one employee's payout.
type PayoutResult struct {
	Employee   EmployeeID
	Status     generic.RunStatus
	Amount     generic.Amount
	Window     generic.Period
	Checkpoint generic.TimePoint // after the attempt
	Err        error
}

// PayoutReport collects a pay-all run.
type PayoutReport struct {
	BatchID string
	AsOf    generic.TimePoint
	Results []PayoutResult
}

func (r PayoutReport) count(s generic.RunStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

func (r PayoutReport) Settled() int { return r.count(generic.RunSettled) }
func (r PayoutReport) Failed() int  { return r.count(generic.RunFailed) }
func (r PayoutReport) Skipped() int { return r.count(generic.RunSkipped) }

// =============================================================================
// PAYROLL ENGINE
// =============================================================================

type PayrollEngine struct {
	book        *Book
	settlement  Settlement
	runs        generic.RunLog
	observer    PayoutObserver
	timeout     time.Duration
	concurrency int
	openDay     OpenDayPolicy
	logger      *zap.Logger
}

func newPayrollEngine(b *Book, opts Options) *PayrollEngine {
	return &PayrollEngine{
		book:        b,
		settlement:  opts.Settlement,
		runs:        opts.Runs,
		observer:    opts.Observer,
		timeout:     opts.SettlementTimeout,
		concurrency: opts.Concurrency,
		openDay:     opts.OpenDayPolicy,
		logger:      b.logger.Named("payroll"),
	}
}

// CalculateSalary returns the amount owed as of asOf without changing
// anything. It is zero when asOf is on or before the checkpoint.
func (e *PayrollEngine) CalculateSalary(employee EmployeeID, asOf generic.TimePoint) (generic.Amount, error) {
	b, err := e.Breakdown(employee, asOf)
	if err != nil {
		return generic.Amount{}, err
	}
	return b.Total, nil
}

// Breakdown is CalculateSalary with the day counts behind it.
func (e *PayrollEngine) Breakdown(employee EmployeeID, asOf generic.TimePoint) (SalaryBreakdown, error) {
	if err := e.checkHorizon(asOf); err != nil {
		return SalaryBreakdown{}, err
	}
	acct, err := e.book.registry.account(employee)
	if err != nil {
		return SalaryBreakdown{}, err
	}
	acct.mu.RLock()
	defer acct.mu.RUnlock()
	return e.breakdownLocked(acct, asOf), nil
}

// checkHorizon rejects an asOf so far ahead that the day walk would be
// unbounded.
func (e *PayrollEngine) checkHorizon(asOf generic.TimePoint) error {
	limit := e.book.today().AddDays(MaxRangeDays)
	if asOf.After(limit) {
		return fmt.Errorf("as of %s is after %s: %w", asOf, limit, generic.ErrInvalidRange)
	}
	return nil
}

func (e *PayrollEngine) dailyRate(emp Employee, s Schedule) generic.Amount {
	std := e.book.employer.StandardWorkingDays
	if !std.IsPositive() {
		std = s.StandardWorkingDays()
	}
	return generic.NewAmount(emp.MonthlySalaryRate.Value.Div(std), emp.MonthlySalaryRate.Unit)
}

// breakdownLocked computes the amount owed through asOf, capped at the
// termination day of an inactive employee. Caller holds acct's lock.
func (e *PayrollEngine) breakdownLocked(acct *account, asOf generic.TimePoint) SalaryBreakdown {
	emp := acct.employee
	unit := e.book.unit()
	zero := generic.ZeroAmount(unit)

	through := asOf
	if !emp.IsActive && !emp.TerminationDate.IsZero() && emp.TerminationDate.Before(through) {
		through = emp.TerminationDate
	}
	window := generic.Period{Start: emp.LastPayoutCheckpoint.AddDays(1), End: through}

	out := SalaryBreakdown{
		Employee:  emp.ID,
		Window:    window,
		DailyRate: zero,
		Base:      zero,
		Bonuses:   emp.TotalBonuses,
		Fines:     emp.TotalFines,
		Total:     zero,
	}
	if window.Len() == 0 {
		out.Window.End = emp.LastPayoutCheckpoint
		return out
	}

	history := e.book.scheduleSnapshot()
	today := e.book.today()
	out.DailyRate = e.dailyRate(emp, history.at(window.Start).Schedule)
	leave := acct.leaves.approvedPaid(window)

	for d := range window.Each() {
		if !history.at(d).Schedule.IsWorkDay(d) {
			continue
		}
		if covered(leave, d) {
			out.PaidLeaveDays++
			continue
		}
		row, ok := acct.attendance.row(d)
		if !ok {
			out.AbsentDays++
			continue
		}
		rec := project(row, history.versionOrCurrent(row.version))
		if rec.IsOpen() && e.openDay == OpenDayExclude && !d.Before(today) {
			out.OpenDays++
			continue
		}
		switch rec.Status {
		case FullDay:
			out.FullDays++
		case HalfDay:
			out.HalfDays++
		default:
			out.AbsentDays++
		}
	}

	full := decimal.NewFromInt(int64(out.FullDays + out.PaidLeaveDays))
	half := decimal.NewFromInt(int64(out.HalfDays)).Div(decimal.NewFromInt(2))
	out.Base = out.DailyRate.Mul(full.Add(half))
	total := out.Base.Add(out.Bonuses).Sub(out.Fines).ClampZero()
	total.Value = total.Value.Round(6)
	out.Total = total
	return out
}

func covered(periods []generic.Period, d generic.TimePoint) bool {
	for _, p := range periods {
		if p.Contains(d) {
			return true
		}
	}
	return false
}

// =============================================================================
// PAYOUT
// =============================================================================

// pendingPayout is a transfer journaled before it was sent and not yet
// acknowledged. Fines and Bonuses are the accumulators its amount
// includes; settling it deducts exactly those.
type pendingPayout struct {
	Transfer
	Fines   generic.Amount
	Bonuses generic.Amount
}

// PayAll settles every active employee as of asOf. Each employee is
// independent: a failure is recorded in that employee's result and never
// stops the others. The returned error is the caller's context error or
// an asOf beyond the horizon.
func (e *PayrollEngine) PayAll(ctx context.Context, meta Meta, asOf generic.TimePoint) (PayoutReport, error) {
	report := PayoutReport{BatchID: uuid.NewString(), AsOf: asOf}
	if err := e.checkHorizon(asOf); err != nil {
		return report, err
	}

	var active []*account
	for _, acct := range e.book.registry.all() {
		acct.mu.RLock()
		if acct.employee.IsActive {
			active = append(active, acct)
		}
		acct.mu.RUnlock()
	}
	report.Results = make([]PayoutResult, len(active))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, acct := range active {
		g.Go(func() error {
			report.Results[i] = e.payout(ctx, meta, acct, asOf, report.BatchID)
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Info("pay-all finished",
		zap.String("batch", report.BatchID),
		zap.Stringer("as_of", asOf),
		zap.Int("settled", report.Settled()),
		zap.Int("failed", report.Failed()),
		zap.Int("skipped", report.Skipped()))
	return report, ctx.Err()
}

// Settle pays one employee, active or not. Used for the final settlement
// of a fired employee before the identity can be hired again.
func (e *PayrollEngine) Settle(ctx context.Context, meta Meta, employee EmployeeID, asOf generic.TimePoint) (PayoutResult, error) {
	if err := e.checkHorizon(asOf); err != nil {
		return PayoutResult{}, err
	}
	acct, err := e.book.registry.account(employee)
	if err != nil {
		return PayoutResult{}, err
	}
	res := e.payout(ctx, meta, acct, asOf, uuid.NewString())
	return res, res.Err
}

// payout settles an unacknowledged pending transfer first, then whatever
// has accrued since. The account lock is not held during settlement calls;
// the in-flight flag keeps a second payout of the same employee out.
func (e *PayrollEngine) payout(ctx context.Context, meta Meta, acct *account, asOf generic.TimePoint, batch string) (res PayoutResult) {
	started := e.book.clock()

	acct.mu.Lock()
	res = PayoutResult{
		Employee:   acct.employee.ID,
		Amount:     generic.ZeroAmount(e.book.unit()),
		Checkpoint: acct.employee.LastPayoutCheckpoint,
	}
	if acct.inFlight {
		acct.mu.Unlock()
		res.Status = generic.RunSkipped
		res.Err = fmt.Errorf("employee %s: %w", res.Employee, generic.ErrPayoutInProgress)
		return res
	}
	acct.inFlight = true
	pending := acct.pending
	acct.mu.Unlock()

	defer func() { e.record(ctx, batch, res, started) }()
	defer func() {
		acct.mu.Lock()
		acct.inFlight = false
		res.Checkpoint = acct.employee.LastPayoutCheckpoint
		acct.mu.Unlock()
	}()

	fail := func(err error) PayoutResult {
		res.Status = generic.RunFailed
		res.Err = err
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	if pending != nil {
		e.logger.Info("re-sending unacknowledged payout",
			zap.String("employee", string(res.Employee)),
			zap.String("key", pending.IdempotencyKey))
		res.Amount = pending.Amount
		res.Window = pending.Window
		if err := e.settle(ctx, meta, acct, pending); err != nil {
			return fail(err)
		}
		res.Status = generic.RunSettled
	}

	next, bd, err := e.prepare(ctx, meta, acct, asOf)
	if err != nil {
		return fail(err)
	}
	if next == nil {
		if res.Status == "" {
			res.Status = generic.RunSkipped
			res.Window = bd.Window
		}
		return res
	}

	if pending == nil {
		res.Window = next.Window
	} else {
		res.Window.End = next.Window.End
	}
	res.Amount = res.Amount.Add(next.Amount)
	if err := e.settle(ctx, meta, acct, next); err != nil {
		return fail(err)
	}
	res.Status = generic.RunSettled
	return res
}

// prepare computes what is owed through asOf and journals it as pending.
// Returns nil when nothing is owed.
func (e *PayrollEngine) prepare(ctx context.Context, meta Meta, acct *account, asOf generic.TimePoint) (*pendingPayout, SalaryBreakdown, error) {
	acct.mu.Lock()
	defer acct.mu.Unlock()

	through := asOf
	if e.openDay == OpenDayExclude && !asOf.Before(e.book.today()) {
		if row, ok := acct.attendance.row(asOf); ok && row.logOut == 0 {
			through = asOf.AddDays(-1)
		}
	}

	bd := e.breakdownLocked(acct, through)
	if !bd.Total.IsPositive() {
		return nil, bd, nil
	}

	emp := acct.employee
	p := &pendingPayout{
		Transfer: Transfer{
			Employer:       e.book.employer.ID,
			Employee:       emp.ID,
			Amount:         bd.Total,
			Window:         bd.Window,
			IdempotencyKey: payoutKey(e.book.employer.ID, emp.ID, bd.Window),
		},
		Fines:   emp.TotalFines,
		Bonuses: emp.TotalBonuses,
	}
	tx := e.book.newTx(meta, TxPayoutPending, emp.ID, bd.Window.End)
	tx.Delta = bd.Total
	tx.IdempotencyKey = p.IdempotencyKey + "/pending"
	encodePending(tx.Metadata, p)
	if err := e.book.commit(ctx, acct, tx); err != nil {
		return nil, bd, fmt.Errorf("record pending payout for %s: %w", emp.ID, err)
	}
	return acct.pending, bd, nil
}

// settle sends p without holding the account lock, then journals the
// acknowledgement. On any failure p stays pending and is re-sent as is.
func (e *PayrollEngine) settle(ctx context.Context, meta Meta, acct *account, p *pendingPayout) error {
	sctx, cancel := context.WithTimeout(ctx, e.timeout)
	err := e.settlement.Transfer(sctx, p.Transfer)
	cancel()
	if err != nil {
		e.logger.Warn("settlement failed",
			zap.String("employee", string(p.Employee)),
			zap.String("amount", p.Amount.String()),
			zap.Error(err))
		return &generic.SettlementError{
			TenantID: p.Employer,
			EntityID: p.Employee,
			Amount:   p.Amount,
			Err:      err,
		}
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	tx, err := e.book.registry.advanceCheckpoint(acct, meta, p)
	if err == nil {
		// The money has moved; a cancelled caller must not lose the record.
		err = e.book.commit(context.WithoutCancel(ctx), acct, tx)
	}
	if err != nil {
		e.logger.Error("settled payout not journaled",
			zap.String("employee", string(p.Employee)),
			zap.String("key", p.IdempotencyKey),
			zap.Error(err))
		return fmt.Errorf("record payout for %s: %w", p.Employee, err)
	}

	e.logger.Info("payout settled",
		zap.String("employee", string(p.Employee)),
		zap.String("amount", p.Amount.String()),
		zap.Stringer("checkpoint", acct.employee.LastPayoutCheckpoint))
	return nil
}

// payoutKey identifies one transfer. The window pins both the days paid
// and, with the accumulators journaled beside it, the amount.
func payoutKey(employer EmployerID, employee EmployeeID, window generic.Period) string {
	return fmt.Sprintf("payout:%s:%s:%s:%s", employer, employee, window.Start, window.End)
}

func (e *PayrollEngine) record(ctx context.Context, batch string, res PayoutResult, started time.Time) {
	completed := e.book.clock()
	if e.observer != nil {
		e.observer.ObservePayout(e.book.employer.ID, res, completed.Sub(started))
	}
	if e.runs == nil {
		return
	}
	run := generic.RunRecord{
		ID:          uuid.NewString(),
		BatchID:     batch,
		TenantID:    e.book.employer.ID,
		EntityID:    res.Employee,
		Window:      res.Window,
		Amount:      res.Amount,
		Status:      res.Status,
		StartedAt:   started,
		CompletedAt: completed,
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	if err := e.runs.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		e.logger.Error("failed to record payout run", zap.String("employee", string(res.Employee)), zap.Error(err))
	}
}
