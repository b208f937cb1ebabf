package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/store/postgres"
)

// These tests need a disposable database:
//
//	PAYROLL_TEST_POSTGRES_URL=postgres://localhost/payroll_test?sslmode=disable go test ./store/postgres
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	url := os.Getenv("PAYROLL_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("PAYROLL_TEST_POSTGRES_URL not set")
	}
	s, err := postgres.New(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestPostgres_JournalRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tenant := generic.TenantID("pg-" + uuid.NewString())
	at := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
	key := string(tenant) + ":checkin"

	tx := generic.Transaction{
		ID:             generic.TransactionID(uuid.NewString()),
		TenantID:       tenant,
		EntityID:       "emp-1",
		Type:           "check_in",
		EffectiveAt:    generic.NewTimePoint(2025, time.March, 3),
		OccurredAt:     at,
		Delta:          generic.NewAmountFromInt(0, "USD"),
		IdempotencyKey: key,
		Metadata:       map[string]string{"schedule_version": "1"},
		CreatedBy:      "emp-1",
		CreatedAt:      at,
	}
	require.NoError(t, s.Append(ctx, tx))

	dup := tx
	dup.ID = generic.TransactionID(uuid.NewString())
	assert.ErrorIs(t, s.Append(ctx, dup), generic.ErrDuplicateIdempotencyKey)

	txs, err := s.Load(ctx, tenant, "emp-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].EffectiveAt.Equal(tx.EffectiveAt))
	assert.True(t, txs[0].OccurredAt.Equal(at))
	assert.Equal(t, "1", txs[0].Meta("schedule_version"))

	seen, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestPostgres_RunLog(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tenant := generic.TenantID("pg-" + uuid.NewString())
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, s.RecordRun(ctx, generic.RunRecord{
		ID: uuid.NewString(), BatchID: "b", TenantID: tenant, EntityID: "emp-1",
		Amount: generic.ZeroAmount("USD"), Status: generic.RunSkipped,
		StartedAt: now, CompletedAt: now,
	}))

	runs, err := s.Runs(ctx, generic.RunFilter{TenantID: tenant})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, generic.RunSkipped, runs[0].Status)
	assert.True(t, runs[0].Window.Start.IsZero())
}
