package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/payroll"
	"github.com/warp/payroll-ledger/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(id string, entity generic.EntityID, day int, key string) generic.Transaction {
	at := time.Date(2025, time.March, day, 9, 0, 0, 123456789, time.UTC)
	return generic.Transaction{
		ID:             generic.TransactionID(id),
		TenantID:       "acme",
		EntityID:       entity,
		Type:           payroll.TxLeaveAdjusted,
		EffectiveAt:    generic.NewTimePoint(2025, time.March, day),
		OccurredAt:     at,
		Delta:          generic.NewAmountFromInt(2, generic.UnitDays),
		Reason:         "carry over",
		IdempotencyKey: key,
		Metadata:       map[string]string{"k": "v"},
		CreatedBy:      "owner-1",
		CreatedAt:      at,
	}
}

func TestStore_AppendAndLoadPreservesEntries(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, entry("tx-1", "emp-1", 3, "")))
	require.NoError(t, s.Append(ctx, entry("tx-2", "emp-2", 4, "k-2")))
	require.NoError(t, s.Append(ctx, entry("tx-3", "emp-1", 5, "")))

	txs, err := s.Load(ctx, "acme", "emp-1")
	require.NoError(t, err)
	require.Len(t, txs, 2)

	got := txs[0]
	want := entry("tx-1", "emp-1", 3, "")
	assert.Equal(t, int64(1), got.Sequence)
	assert.Equal(t, int64(3), txs[1].Sequence)
	assert.True(t, got.EffectiveAt.Equal(want.EffectiveAt))
	assert.True(t, got.OccurredAt.Equal(want.OccurredAt), "nanoseconds survive")
	assert.True(t, got.Delta.Equal(want.Delta))
	assert.Equal(t, want.Metadata, got.Metadata)
	assert.Equal(t, "owner-1", got.CreatedBy)

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, generic.TransactionID("tx-2"), all[1].ID)

	other, err := s.Load(ctx, "globex", "emp-1")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStore_LoadRange(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for i, day := range []int{1, 5, 10, 15} {
		require.NoError(t, s.Append(ctx, entry(string(rune('a'+i)), "emp-1", day, "")))
	}

	txs, err := s.LoadRange(ctx, "acme", "emp-1",
		generic.NewTimePoint(2025, time.March, 5), generic.NewTimePoint(2025, time.March, 10))
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestStore_IdempotencyKey(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, entry("tx-1", "emp-1", 3, "acme:retry")))

	err := s.Append(ctx, entry("tx-2", "emp-1", 3, "acme:retry"))
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	exists, err := s.Exists(ctx, "acme:retry")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.Exists(ctx, "acme:other")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_AppendBatchIsAtomic(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, entry("tx-0", "emp-1", 3, "taken")))

	// Second entry collides: nothing from the batch is written.
	err := s.AppendBatch(ctx, []generic.Transaction{
		entry("tx-1", "emp-1", 4, "fresh"),
		entry("tx-2", "emp-1", 4, "taken"),
	})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = s.AppendBatch(ctx, []generic.Transaction{
		entry("tx-3", "emp-1", 4, "same"),
		entry("tx-4", "emp-1", 4, "same"),
	})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
}

func TestStore_RunLog(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, time.March, 4, 1, 0, 0, 0, time.UTC)

	window := generic.Period{
		Start: generic.NewTimePoint(2025, time.March, 3),
		End:   generic.NewTimePoint(2025, time.March, 3),
	}
	runs := []generic.RunRecord{
		{ID: "r1", BatchID: "b1", TenantID: "acme", EntityID: "x", Window: window, Amount: generic.NewAmount(decimal.RequireFromString("150.5"), "USD"), Status: generic.RunSettled, StartedAt: base, CompletedAt: base.Add(time.Second)},
		{ID: "r2", BatchID: "b1", TenantID: "acme", EntityID: "y", Window: window, Amount: generic.ZeroAmount("USD"), Status: generic.RunFailed, Error: "bank unavailable", StartedAt: base.Add(time.Millisecond), CompletedAt: base.Add(time.Second)},
		{ID: "r3", BatchID: "b2", TenantID: "globex", EntityID: "x", Amount: generic.ZeroAmount("EUR"), Status: generic.RunSkipped, StartedAt: base.Add(time.Hour), CompletedAt: base.Add(time.Hour)},
	}
	for _, r := range runs {
		require.NoError(t, s.RecordRun(ctx, r))
	}

	got, err := s.Runs(ctx, generic.RunFilter{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r2", got[0].ID, "newest first")
	assert.Equal(t, "bank unavailable", got[0].Error)
	assert.Equal(t, "150.5", got[1].Amount.Value.String())
	assert.True(t, got[1].Window.Start.Equal(window.Start))

	got, err = s.Runs(ctx, generic.RunFilter{Status: generic.RunSkipped})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Window.Start.IsZero())

	got, err = s.Runs(ctx, generic.RunFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r3", got[0].ID)
}

func TestStore_PayrollSurvivesReopen(t *testing.T) {
	// GIVEN: A payroll written to a file-backed store
	path := filepath.Join(t.TempDir(), "payroll.db")
	ctx := context.Background()
	now := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	opts := payroll.Options{Clock: func() time.Time { return now }}

	s, err := sqlite.New(path)
	require.NoError(t, err)
	dir := payroll.NewDirectory(generic.NewLedger(s), opts)
	_, err = dir.Register(ctx, payroll.Meta{Actor: "owner-1"}, payroll.EmployerInput{
		ID: "acme", Owner: "owner-1", Currency: "USD", PaidLeavesPerYear: 12,
		Schedule: payroll.Schedule{StartTime: 9 * 3600, EndTime: 17 * 3600, BufferTime: 600,
			WorkDays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}},
	})
	require.NoError(t, err)
	book, err := dir.Book("acme")
	require.NoError(t, err)
	_, err = book.Registry().Hire(ctx, payroll.Meta{Actor: "owner-1"}, payroll.HireInput{
		ID: "emp-1", Name: "Ada", MonthlySalary: decimal.NewFromInt(3000),
	})
	require.NoError(t, err)
	_, err = book.CheckIn(ctx, payroll.Meta{Actor: "emp-1"}, "emp-1", now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// WHEN: The file is opened again and replayed
	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()
	restored, err := payroll.Restore(ctx, generic.NewLedger(s), opts)
	require.NoError(t, err)

	// THEN: The employee and the open day are back
	book, err = restored.Book("acme")
	require.NoError(t, err)
	emp, err := book.Registry().Get("emp-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", emp.Name)
	assert.Equal(t, 12, emp.AvailablePaidLeaves)

	rec, err := book.Attendance("emp-1", generic.NewTimePoint(2025, time.March, 3))
	require.NoError(t, err)
	assert.True(t, rec.IsOpen())
}
