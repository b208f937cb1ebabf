/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the state its description promises,
	so the demo doubles as an integration test of the payroll package.
*/
package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/generic/store"
	"github.com/warp/payroll-ledger/payroll"
)

// scenarioDirectory is seen on Wednesday March 12, 2025, so every scenario
// plays the week of Monday March 3.
func scenarioDirectory(t *testing.T) *payroll.Directory {
	t.Helper()
	return payroll.NewDirectory(generic.NewLedger(store.NewMemory()), payroll.Options{
		Clock: func() time.Time { return march(12, 10, 0) },
	})
}

func day(n int) generic.TimePoint { return generic.NewTimePoint(2025, time.March, n) }

func loadScenario(t *testing.T, dir *payroll.Directory, id string) *payroll.Book {
	t.Helper()
	book, err := LoadScenario(context.Background(), dir, id)
	require.NoError(t, err)
	return book
}

func TestScenario_Punctuality(t *testing.T) {
	book := loadScenario(t, scenarioDirectory(t), "punctuality")

	ana, err := book.Attendance("ana", day(3))
	require.NoError(t, err)
	assert.Equal(t, payroll.FullDay, ana.Status)
	assert.False(t, ana.IsLate)

	late, err := book.Attendance("ben", day(3))
	require.NoError(t, err)
	assert.Equal(t, payroll.HalfDay, late.Status)
	assert.True(t, late.IsLate)

	early, err := book.Attendance("ben", day(4))
	require.NoError(t, err)
	assert.Equal(t, payroll.HalfDay, early.Status)
	assert.True(t, early.IsEarlyCheckout)
}

func TestScenario_LeaveApproval(t *testing.T) {
	book := loadScenario(t, scenarioDirectory(t), "leave-approval")

	emp, err := book.Registry().Get("cara")
	require.NoError(t, err)
	assert.Equal(t, 9, emp.AvailablePaidLeaves)

	reqs, err := book.LeaveRequests("cara")
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.True(t, reqs[0].IsApproved)
	assert.False(t, reqs[1].IsProcessed)
}

func TestScenario_SalaryBreakdown(t *testing.T) {
	// GIVEN: Four full days and a late Friday at 3000 over 20 days
	book := loadScenario(t, scenarioDirectory(t), "salary-breakdown")

	// WHEN: Salary is computed through Friday
	bd, err := book.Payroll().Breakdown("dev", day(7))
	require.NoError(t, err)

	// THEN: 4 x 150 + 75 + 50 - 20
	assert.Equal(t, 4, bd.FullDays)
	assert.Equal(t, 1, bd.HalfDays)
	assert.Equal(t, "675", bd.Base.Value.String())
	assert.Equal(t, "705", bd.Total.Value.String())
}

func TestScenario_Offboarding(t *testing.T) {
	book := loadScenario(t, scenarioDirectory(t), "offboarding")

	emp, err := book.Registry().Get("eve")
	require.NoError(t, err)
	assert.False(t, emp.IsActive)
	assert.Equal(t, "2025-03-12", emp.TerminationDate.String())

	owed, err := book.Payroll().CalculateSalary("eve", day(12))
	require.NoError(t, err)
	assert.True(t, owed.Value.IsPositive())
}

func TestScenario_LoadTwiceConflicts(t *testing.T) {
	dir := scenarioDirectory(t)
	loadScenario(t, dir, "punctuality")

	_, err := LoadScenario(context.Background(), dir, "punctuality")
	assert.ErrorIs(t, err, generic.ErrDuplicateIdentity)
	assert.Equal(t, http.StatusConflict, statusFor(err))

	_, err = LoadScenario(context.Background(), dir, "nope")
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestScenario_SeedDemoIsRepeatable(t *testing.T) {
	dir := scenarioDirectory(t)

	n, err := SeedDemo(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, len(scenarios), n)

	n, err = SeedDemo(context.Background(), dir)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, dir.Books(), len(scenarios))

	// The seeded journal replays to the same employers.
	restored, err := payroll.Restore(context.Background(), dir.Journal(), payroll.Options{
		Clock: func() time.Time { return march(12, 10, 0) },
	})
	require.NoError(t, err)
	assert.Len(t, restored.Books(), len(scenarios))
}
