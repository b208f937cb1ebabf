package payroll

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-ledger/generic"
)

// =============================================================================
// EMPLOYEE
// =============================================================================

// Employee is the registry's view of one identity. TotalFines and
// TotalBonuses accumulate since the last payout and reset when it settles.
type Employee struct {
	ID                   EmployeeID
	Name                 string
	MonthlySalaryRate    generic.Amount
	JoiningDate          generic.TimePoint
	LastPayoutCheckpoint generic.TimePoint
	AvailablePaidLeaves  int // negative only through an admin adjustment
	IsActive             bool
	TotalFines           generic.Amount
	TotalBonuses         generic.Amount
	TerminationDate      generic.TimePoint // zero while active
}

// HireInput describes a new or returning employee. A zero JoiningDate
// means today in the employer's timezone.
type HireInput struct {
	ID            EmployeeID
	Name          string
	MonthlySalary decimal.Decimal
	JoiningDate   generic.TimePoint
}

func (in HireInput) validate() error {
	if in.ID == "" {
		return fmt.Errorf("%w: employee id is required", generic.ErrInvalidInput)
	}
	if in.Name == "" {
		return fmt.Errorf("%w: employee name is required", generic.ErrInvalidInput)
	}
	if !in.MonthlySalary.IsPositive() {
		return fmt.Errorf("monthly salary %s: %w", in.MonthlySalary, generic.ErrInvalidAmount)
	}
	return nil
}

// account is the per-employee aggregate and its single-writer lock.
// Every mutation of employee, attendance or leaves holds mu for writing.
// pending is the journaled transfer awaiting acknowledgement; inFlight is
// set while a payout runs without the lock and is never journaled.
type account struct {
	mu         sync.RWMutex
	employee   Employee
	attendance *AttendanceLedger
	leaves     *LeaveLedger
	pending    *pendingPayout
	inFlight   bool
}

// =============================================================================
// EMPLOYEE REGISTRY
// =============================================================================

// EmployeeRegistry owns identity, status, salary rate, fines, bonuses, the
// paid leave balance and the payout checkpoint of every employee of one
// employer. Its own lock only guards the identity map; per-employee state
// is guarded by each account's lock.
type EmployeeRegistry struct {
	book *Book

	mu       sync.RWMutex
	accounts map[EmployeeID]*account
	order    []EmployeeID // hire order
}

func newEmployeeRegistry(b *Book) *EmployeeRegistry {
	return &EmployeeRegistry{
		book:     b,
		accounts: make(map[EmployeeID]*account),
	}
}

func (r *EmployeeRegistry) account(id EmployeeID) (*account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[id]
	if !ok {
		return nil, fmt.Errorf("employee %s: %w", id, generic.ErrEmployeeNotFound)
	}
	return acct, nil
}

// accounts returns every account in hire order.
func (r *EmployeeRegistry) all() []*account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*account, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.accounts[id])
	}
	return out
}

// Hire registers an employee with a full year's paid leave and a payout
// checkpoint the day before joining. An inactive identity may be hired
// again only once nothing is owed on its previous engagement, and only
// from a day after both its termination and its last payout.
func (r *EmployeeRegistry) Hire(ctx context.Context, meta Meta, in HireInput) (Employee, error) {
	if err := in.validate(); err != nil {
		return Employee{}, fmt.Errorf("hire: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.book
	if err := b.checkReplay(ctx, meta); err != nil {
		return Employee{}, err
	}

	joining := in.JoiningDate
	if joining.IsZero() {
		joining = b.today()
	}

	balance := 0
	rehire := false
	if acct, ok := r.accounts[in.ID]; ok {
		acct.mu.Lock()
		defer acct.mu.Unlock()
		if acct.employee.IsActive {
			return Employee{}, fmt.Errorf("hire %s: %w", in.ID, generic.ErrDuplicateIdentity)
		}
		if acct.inFlight {
			return Employee{}, fmt.Errorf("hire %s: %w", in.ID, generic.ErrPayoutInProgress)
		}
		if acct.pending != nil {
			return Employee{}, fmt.Errorf("hire %s: %s awaiting settlement: %w",
				in.ID, acct.pending.Amount, generic.ErrUnsettledBalance)
		}
		owed := b.payroll.breakdownLocked(acct, acct.employee.TerminationDate)
		if owed.Total.IsPositive() {
			return Employee{}, fmt.Errorf("hire %s: %s owed: %w", in.ID, owed.Total, generic.ErrUnsettledBalance)
		}
		prev := acct.employee
		if !joining.After(prev.TerminationDate) || !joining.After(prev.LastPayoutCheckpoint) {
			return Employee{}, fmt.Errorf("rehire %s on %s (terminated %s, paid through %s): %w",
				in.ID, joining, prev.TerminationDate, prev.LastPayoutCheckpoint, generic.ErrInvalidRange)
		}
		balance = acct.employee.AvailablePaidLeaves
		rehire = true
	}

	tx := b.newTx(meta, TxEmployeeHired, in.ID, joining)
	tx.Delta = generic.NewAmountFromInt(b.employer.PaidLeavesPerYear-balance, generic.UnitDays)
	tx.Metadata[metaName] = in.Name
	tx.Metadata[metaSalary] = in.MonthlySalary.String()
	if rehire {
		tx.Metadata[metaRehire] = "true"
	}
	if err := b.commit(ctx, nil, tx); err != nil {
		return Employee{}, err
	}

	emp := r.accounts[in.ID].employee
	b.logger.Info("employee hired",
		zap.String("employee", string(in.ID)),
		zap.Stringer("joining", joining),
		zap.Bool("rehire", rehire))
	return emp, nil
}

// Fire deactivates an employee. History is retained; attendance and leave
// mutations are rejected from now on. The termination day caps the salary
// window of the final settlement.
func (r *EmployeeRegistry) Fire(ctx context.Context, meta Meta, id EmployeeID) (Employee, error) {
	return r.mutate(ctx, meta, id, func(acct *account) ([]generic.Transaction, error) {
		if !acct.employee.IsActive {
			return nil, generic.ErrAlreadyInactive
		}
		return []generic.Transaction{r.book.newTx(meta, TxEmployeeFired, id, r.book.today())}, nil
	})
}

// ApplyFine adds to the fines deducted at the next payout.
func (r *EmployeeRegistry) ApplyFine(ctx context.Context, meta Meta, id EmployeeID, amount decimal.Decimal, reason string) (Employee, error) {
	return r.money(ctx, meta, id, TxFineApplied, amount, reason)
}

// ApplyBonus adds to the bonuses paid at the next payout.
func (r *EmployeeRegistry) ApplyBonus(ctx context.Context, meta Meta, id EmployeeID, amount decimal.Decimal, reason string) (Employee, error) {
	return r.money(ctx, meta, id, TxBonusApplied, amount, reason)
}

func (r *EmployeeRegistry) money(ctx context.Context, meta Meta, id EmployeeID, txType generic.TransactionType, amount decimal.Decimal, reason string) (Employee, error) {
	if !amount.IsPositive() {
		return Employee{}, fmt.Errorf("%s %s: %w", txType, amount, generic.ErrInvalidAmount)
	}
	return r.mutate(ctx, meta, id, func(acct *account) ([]generic.Transaction, error) {
		tx := r.book.newTx(meta, txType, id, r.book.today())
		tx.Delta = generic.NewAmount(amount, r.book.unit())
		tx.Reason = reason
		return []generic.Transaction{tx}, nil
	})
}

// AdjustPaidLeave is the admin override of the paid leave balance. It is
// the only path that may take the balance below zero.
func (r *EmployeeRegistry) AdjustPaidLeave(ctx context.Context, meta Meta, id EmployeeID, delta int, reason string) (Employee, error) {
	if delta == 0 {
		return Employee{}, fmt.Errorf("adjust paid leave: %w: zero delta", generic.ErrInvalidAmount)
	}
	return r.mutate(ctx, meta, id, func(acct *account) ([]generic.Transaction, error) {
		if !acct.employee.IsActive {
			return nil, generic.ErrEmployeeInactive
		}
		tx := r.book.newTx(meta, TxLeaveAdjusted, id, r.book.today())
		tx.Delta = generic.NewAmountFromInt(delta, generic.UnitDays)
		tx.Reason = reason
		return []generic.Transaction{tx}, nil
	})
}

// GrantAnnualLeave tops up every active employee hired before year by
// PaidLeavesPerYear. Each grant carries a per-year idempotency key, so
// running it again for the same year grants nothing. Returns the number
// of employees granted.
func (r *EmployeeRegistry) GrantAnnualLeave(ctx context.Context, meta Meta, year int) (int, error) {
	b := r.book
	if b.employer.PaidLeavesPerYear == 0 {
		return 0, nil
	}

	granted := 0
	for _, acct := range r.all() {
		ok, err := r.grantOne(ctx, meta, acct, year)
		if err != nil {
			return granted, err
		}
		if ok {
			granted++
		}
	}
	if granted > 0 {
		b.logger.Info("annual leave granted", zap.Int("year", year), zap.Int("employees", granted))
	}
	return granted, nil
}

func (r *EmployeeRegistry) grantOne(ctx context.Context, meta Meta, acct *account, year int) (bool, error) {
	acct.mu.Lock()
	defer acct.mu.Unlock()

	emp := acct.employee
	if !emp.IsActive || emp.JoiningDate.Year() >= year {
		return false, nil
	}
	b := r.book
	tx := b.newTx(meta, TxLeaveGranted, emp.ID, generic.StartOfYear(year))
	tx.IdempotencyKey = b.scopedKey(fmt.Sprintf("leave-grant/%d/%s", year, emp.ID))
	tx.Delta = generic.NewAmountFromInt(b.employer.PaidLeavesPerYear, generic.UnitDays)
	tx.Reason = "annual paid leave " + strconv.Itoa(year)

	err := b.commit(ctx, acct, tx)
	if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
		return false, nil
	}
	return err == nil, err
}

// mutate runs one employee-scoped write under the account lock.
func (r *EmployeeRegistry) mutate(ctx context.Context, meta Meta, id EmployeeID, build func(*account) ([]generic.Transaction, error)) (Employee, error) {
	acct, err := r.account(id)
	if err != nil {
		return Employee{}, err
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if err := r.book.checkReplay(ctx, meta); err != nil {
		return Employee{}, err
	}
	txs, err := build(acct)
	if err != nil {
		return Employee{}, fmt.Errorf("employee %s: %w", id, err)
	}
	if err := r.book.commit(ctx, acct, txs...); err != nil {
		return Employee{}, err
	}
	for _, tx := range txs {
		r.book.logger.Info("employee updated",
			zap.String("employee", string(id)),
			zap.String("type", string(tx.Type)),
			zap.String("delta", tx.Delta.String()))
	}
	return acct.employee, nil
}

// =============================================================================
// BALANCE AND CHECKPOINT MESSAGES (caller holds the account lock)
// =============================================================================

// decrementPaidLeave turns a leave approval's message into a debit entry,
// refusing any debit that would take the balance below zero.
func (r *EmployeeRegistry) decrementPaidLeave(acct *account, msg *balanceDecrement) (generic.Transaction, error) {
	if msg.Days <= 0 {
		return generic.Transaction{}, fmt.Errorf("decrement paid leave by %d: %w", msg.Days, generic.ErrInvalidAmount)
	}
	available := acct.employee.AvailablePaidLeaves
	if available < msg.Days {
		return generic.Transaction{}, &generic.InsufficientLeaveBalanceError{
			EntityID:  acct.employee.ID,
			Available: available,
			Requested: msg.Days,
		}
	}
	tx := r.book.newTx(Meta{Actor: actorSystem}, TxLeaveDebited, acct.employee.ID, r.book.today())
	tx.Delta = generic.NewAmountFromInt(-msg.Days, generic.UnitDays)
	tx.ReferenceID = strconv.Itoa(msg.RequestID)
	return tx, nil
}

// advanceCheckpoint records an acknowledged payout: the checkpoint moves
// to the end of its window and the fines and bonuses it included are
// deducted from the accumulators.
func (r *EmployeeRegistry) advanceCheckpoint(acct *account, meta Meta, p *pendingPayout) (generic.Transaction, error) {
	day := p.Window.End
	if !day.After(acct.employee.LastPayoutCheckpoint) {
		return generic.Transaction{}, fmt.Errorf("advance checkpoint to %s (currently %s): %w",
			day, acct.employee.LastPayoutCheckpoint, generic.ErrInvalidRange)
	}
	tx := r.book.newTx(meta, TxPayoutSettled, acct.employee.ID, day)
	tx.Delta = p.Amount
	tx.IdempotencyKey = p.IdempotencyKey
	encodePending(tx.Metadata, p)
	return tx, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a copy of one employee.
func (r *EmployeeRegistry) Get(id EmployeeID) (Employee, error) {
	acct, err := r.account(id)
	if err != nil {
		return Employee{}, err
	}
	acct.mu.RLock()
	defer acct.mu.RUnlock()
	return acct.employee, nil
}

// PaidLeaveBalanceAt returns the paid leave balance at the end of day,
// summed from the journal's day-unit entries.
func (r *EmployeeRegistry) PaidLeaveBalanceAt(ctx context.Context, id EmployeeID, day generic.TimePoint) (int, error) {
	if _, err := r.account(id); err != nil {
		return 0, err
	}
	bal, err := r.book.journal.BalanceAt(ctx, r.book.employer.ID, id, day, generic.UnitDays)
	if err != nil {
		return 0, fmt.Errorf("paid leave balance of %s at %s: %w", id, day, err)
	}
	return int(bal.Value.IntPart()), nil
}

// List returns every employee, active or not, in hire order.
func (r *EmployeeRegistry) List() []Employee {
	accts := r.all()
	out := make([]Employee, 0, len(accts))
	for _, acct := range accts {
		acct.mu.RLock()
		out = append(out, acct.employee)
		acct.mu.RUnlock()
	}
	return out
}
