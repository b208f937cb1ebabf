package payroll_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/generic/store"
	"github.com/warp/payroll-ledger/payroll"
)

// =============================================================================
// TEST HELPERS
// =============================================================================
// March 2025: the 3rd is a Monday, the 8th and 9th a weekend.

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeBank records transfers and fails for the employees in fail. A
// repeated idempotency key is acknowledged without paying again.
type fakeBank struct {
	mu        sync.Mutex
	fail      map[payroll.EmployeeID]error
	block     map[payroll.EmployeeID]bool
	transfers []payroll.Transfer
	keys      map[string]bool
	attempts  int
}

func newFakeBank() *fakeBank {
	return &fakeBank{
		fail:  map[payroll.EmployeeID]error{},
		block: map[payroll.EmployeeID]bool{},
		keys:  map[string]bool{},
	}
}

func (b *fakeBank) Transfer(ctx context.Context, t payroll.Transfer) error {
	b.mu.Lock()
	b.attempts++
	err, failing := b.fail[t.Employee]
	blocking := b.block[t.Employee]
	b.mu.Unlock()

	if blocking {
		<-ctx.Done()
		return ctx.Err()
	}
	if failing {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.keys[t.IdempotencyKey] {
		b.keys[t.IdempotencyKey] = true
		b.transfers = append(b.transfers, t)
	}
	return nil
}

func (b *fakeBank) Fail(id payroll.EmployeeID, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[id] = err
}

func (b *fakeBank) Recover(id payroll.EmployeeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.fail, id)
}

func (b *fakeBank) Transfers() []payroll.Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]payroll.Transfer(nil), b.transfers...)
}

// Attempts counts every Transfer call, failed or not.
func (b *fakeBank) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Paid sums the transfers that went through.
func (b *fakeBank) Paid() decimal.Decimal {
	total := decimal.Zero
	for _, t := range b.Transfers() {
		total = total.Add(t.Amount.Value)
	}
	return total
}

var errBankDown = errors.New("bank unavailable")

func weekdays() []time.Weekday {
	return []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
}

func nineToFive() payroll.Schedule {
	return payroll.Schedule{
		StartTime:  9 * 3600,
		EndTime:    17 * 3600,
		BufferTime: 600,
		WorkDays:   weekdays(),
	}
}

// at returns an instant on the given March 2025 day, UTC.
func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.March, day, hour, minute, 0, 0, time.UTC)
}

func d(day int) generic.TimePoint {
	return generic.NewTimePoint(2025, time.March, day)
}

func usd(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var owner = payroll.Meta{Actor: "owner-1"}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	clock *fakeClock
	store *store.Memory
	bank  *fakeBank
	dir   *payroll.Directory
	book  *payroll.Book
	opts  payroll.Options
}

func newFixture(t *testing.T, configure ...func(*payroll.Options)) *fixture {
	t.Helper()
	return newFixtureWithLedger(t, nil, configure...)
}

// newFixtureWithLedger is newFixture with the journal passed through wrap.
func newFixtureWithLedger(t *testing.T, wrap func(generic.Ledger) generic.Ledger, configure ...func(*payroll.Options)) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		clock: &fakeClock{now: at(3, 8, 0)},
		store: store.NewMemory(),
		bank:  newFakeBank(),
	}
	f.opts = payroll.Options{
		Clock:             f.clock.Now,
		Settlement:        f.bank,
		Runs:              f.store,
		SettlementTimeout: time.Second,
	}
	for _, c := range configure {
		c(&f.opts)
	}
	var journal generic.Ledger = generic.NewLedger(f.store)
	if wrap != nil {
		journal = wrap(journal)
	}
	f.dir = payroll.NewDirectory(journal, f.opts)

	employer, err := f.dir.Register(f.ctx, owner, payroll.EmployerInput{
		ID:                  "acme",
		Owner:               "owner-1",
		Name:                "Acme",
		Currency:            "USD",
		PaidLeavesPerYear:   12,
		StandardWorkingDays: decimal.NewFromInt(20),
		Schedule:            nineToFive(),
	})
	require.NoError(t, err)
	f.book, err = f.dir.Book(employer.ID)
	require.NoError(t, err)
	return f
}

// hire adds an employee joining on Monday March 3.
func (f *fixture) hire(id payroll.EmployeeID, salary string) payroll.Employee {
	f.t.Helper()
	emp, err := f.book.Registry().Hire(f.ctx, owner, payroll.HireInput{
		ID:            id,
		Name:          string(id),
		MonthlySalary: usd(salary),
		JoiningDate:   d(3),
	})
	require.NoError(f.t, err)
	return emp
}

// work records a check-in and check-out on day at the given local times.
func (f *fixture) work(id payroll.EmployeeID, day, inH, inM, outH, outM int) payroll.AttendanceRecord {
	f.t.Helper()
	self := payroll.Meta{Actor: string(id)}
	f.clock.Set(at(day, inH, inM))
	_, err := f.book.CheckIn(f.ctx, self, id, time.Time{})
	require.NoError(f.t, err)
	f.clock.Set(at(day, outH, outM))
	rec, err := f.book.CheckOut(f.ctx, self, id, time.Time{})
	require.NoError(f.t, err)
	return rec
}

func (f *fixture) fullDay(id payroll.EmployeeID, day int) { f.work(id, day, 9, 0, 17, 0) }

func (f *fixture) employee(id payroll.EmployeeID) payroll.Employee {
	f.t.Helper()
	emp, err := f.book.Registry().Get(id)
	require.NoError(f.t, err)
	return emp
}
