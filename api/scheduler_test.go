package api

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/generic/store"
	"github.com/warp/payroll-ledger/payroll"
	"github.com/warp/payroll-ledger/settlement"
)

// schedulerDirectory returns acme with ada, who worked a full day on
// Monday March 3, as seen on Tuesday March 4.
func schedulerDirectory(t *testing.T) (*payroll.Directory, *settlement.Recorder, *store.Memory) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	bank := settlement.NewRecorder(nil)
	dir := payroll.NewDirectory(generic.NewLedger(mem), payroll.Options{
		Clock:      func() time.Time { return march(4, 10, 0) },
		Settlement: bank,
		Runs:       mem,
	})

	owner := payroll.Meta{Actor: ownerSub}
	_, err := dir.Register(ctx, owner, payroll.EmployerInput{
		ID: "acme", Owner: ownerSub, Currency: "USD", PaidLeavesPerYear: 12,
		StandardWorkingDays: decimal.NewFromInt(20),
		Schedule: payroll.Schedule{StartTime: 9 * 3600, EndTime: 17 * 3600, BufferTime: 600,
			WorkDays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}},
	})
	require.NoError(t, err)
	book, err := dir.Book("acme")
	require.NoError(t, err)
	_, err = book.Registry().Hire(ctx, owner, payroll.HireInput{
		ID: "ada", Name: "Ada", MonthlySalary: decimal.NewFromInt(3000),
		JoiningDate: generic.NewTimePoint(2025, time.March, 3),
	})
	require.NoError(t, err)

	self := payroll.Meta{Actor: "ada"}
	_, err = book.CheckIn(ctx, self, "ada", march(3, 9, 0))
	require.NoError(t, err)
	_, err = book.CheckOut(ctx, self, "ada", march(3, 17, 0))
	require.NoError(t, err)
	return dir, bank, mem
}

func TestPayrollScheduler_RunNowPaysThroughYesterday(t *testing.T) {
	// GIVEN: A full day worked yesterday
	dir, bank, mem := schedulerDirectory(t)
	s := NewPayrollScheduler(dir, nil)

	// WHEN: A pass runs
	sum := s.RunNow(context.Background())

	// THEN: Yesterday is paid and nothing is granted mid-year for a new hire
	assert.Equal(t, PassSummary{Employers: 1, Settled: 1}, sum)
	transfers := bank.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, "150", transfers[0].Amount.Value.String())
	assert.Equal(t, "2025-03-03", transfers[0].Window.End.String())

	runs, err := mem.Runs(context.Background(), generic.RunFilter{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, generic.RunSettled, runs[0].Status)

	// AND: A second pass has nothing left to pay
	sum = s.RunNow(context.Background())
	assert.Equal(t, 0, sum.Settled)
	assert.Equal(t, 1, sum.Skipped)
	assert.Len(t, bank.Transfers(), 1)
}

func TestPayrollScheduler_StartStopLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir, bank, _ := schedulerDirectory(t)
	s := NewPayrollScheduler(dir, nil)
	s.CheckInterval = 10 * time.Millisecond

	s.Start()
	s.Start() // no second loop
	require.Eventually(t, func() bool { return len(bank.Transfers()) == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	assert.Len(t, bank.Transfers(), 1)
}

func TestPayrollScheduler_Disabled(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir, bank, _ := schedulerDirectory(t)
	s := NewPayrollScheduler(dir, nil)
	s.Enabled = false

	s.Start()
	s.Stop()
	assert.Empty(t, bank.Transfers())
}
