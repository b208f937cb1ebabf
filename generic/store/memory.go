// Package store provides Store implementations.
package store

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/warp/payroll-ledger/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	log         []generic.Transaction // index i holds sequence i+1
	byEntity    map[key][]int
	idempotency map[string]bool
	runs        []generic.RunRecord
}

type key struct {
	TenantID generic.TenantID
	EntityID generic.EntityID
}

var (
	_ generic.Store  = (*Memory)(nil)
	_ generic.RunLog = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		byEntity:    make(map[key][]int),
		idempotency: make(map[string]bool),
	}
}

// Append adds a single entry. Append-only.
func (m *Memory) Append(ctx context.Context, tx generic.Transaction) error {
	return m.AppendBatch(ctx, []generic.Transaction{tx})
}

// AppendBatch adds multiple entries atomically.
func (m *Memory) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all idempotency keys first (atomic check)
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[tx.IdempotencyKey] || seen[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}

	for _, tx := range txs {
		tx.Sequence = int64(len(m.log) + 1)
		tx.Metadata = maps.Clone(tx.Metadata)
		k := key{TenantID: tx.TenantID, EntityID: tx.EntityID}
		m.byEntity[k] = append(m.byEntity[k], len(m.log))
		m.log = append(m.log, tx)
		if tx.IdempotencyKey != "" {
			m.idempotency[tx.IdempotencyKey] = true
		}
	}
	return nil
}

func (m *Memory) Load(_ context.Context, tenantID generic.TenantID, entityID generic.EntityID) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := m.byEntity[key{TenantID: tenantID, EntityID: entityID}]
	result := make([]generic.Transaction, 0, len(idx))
	for _, i := range idx {
		result = append(result, m.copyOf(i))
	}
	return result, nil
}

func (m *Memory) LoadRange(_ context.Context, tenantID generic.TenantID, entityID generic.EntityID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Transaction
	for _, i := range m.byEntity[key{TenantID: tenantID, EntityID: entityID}] {
		tx := m.log[i]
		if from.BeforeOrEqual(tx.EffectiveAt) && tx.EffectiveAt.BeforeOrEqual(to) {
			result = append(result, m.copyOf(i))
		}
	}
	return result, nil
}

func (m *Memory) LoadAll(_ context.Context) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.Transaction, len(m.log))
	for i := range m.log {
		result[i] = m.copyOf(i)
	}
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (m *Memory) copyOf(i int) generic.Transaction {
	tx := m.log[i]
	tx.Metadata = maps.Clone(tx.Metadata)
	return tx
}

// =============================================================================
// RUN LOG
// =============================================================================

func (m *Memory) RecordRun(_ context.Context, run generic.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) Runs(_ context.Context, filter generic.RunFilter) ([]generic.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.RunRecord
	for _, run := range m.runs {
		if filter.TenantID != "" && run.TenantID != filter.TenantID {
			continue
		}
		if filter.EntityID != "" && run.EntityID != filter.EntityID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		result = append(result, run)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}
