package payroll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-ledger/generic"
)

// actorSystem marks entries the ledger writes on its own behalf.
const actorSystem = "system"

// =============================================================================
// EMPLOYER
// =============================================================================

// Employer is one tenant: its owner identity, payout currency and the
// leave and salary parameters shared by its employees.
type Employer struct {
	ID                  EmployerID
	Owner               string
	Name                string
	Currency            string
	PaidLeavesPerYear   int
	StandardWorkingDays decimal.Decimal // zero = derive from the schedule
	RegisteredAt        time.Time
}

// EmployerInput registers a new employer. An empty ID is generated.
type EmployerInput struct {
	ID                  EmployerID
	Owner               string
	Name                string
	Currency            string
	PaidLeavesPerYear   int
	StandardWorkingDays decimal.Decimal
	Schedule            Schedule
}

func (in EmployerInput) validate() error {
	if in.Owner == "" {
		return fmt.Errorf("%w: owner is required", generic.ErrInvalidInput)
	}
	if in.Currency == "" {
		return fmt.Errorf("%w: currency is required", generic.ErrInvalidInput)
	}
	if in.PaidLeavesPerYear < 0 {
		return fmt.Errorf("%w: negative paid leaves per year", generic.ErrInvalidInput)
	}
	if in.StandardWorkingDays.IsNegative() {
		return fmt.Errorf("%w: negative standard working days", generic.ErrInvalidInput)
	}
	return in.Schedule.Validate()
}

// =============================================================================
// BOOK - Everything one employer owns
// =============================================================================

// Book holds one employer's schedule history, employees and payroll
// engine. Every method is scoped to this employer; nothing selects a
// tenant implicitly.
//
// Lock order: registry, then account, then the schedule lock (read only).
type Book struct {
	employer Employer
	journal  generic.Ledger
	clock    Clock
	logger   *zap.Logger

	mu        sync.RWMutex
	schedules scheduleHistory

	registry *EmployeeRegistry
	payroll  *PayrollEngine
}

func newBook(employer Employer, journal generic.Ledger, opts Options) *Book {
	b := &Book{
		employer: employer,
		journal:  journal,
		clock:    opts.Clock,
		logger:   opts.Logger.With(zap.String("employer", string(employer.ID))),
	}
	b.registry = newEmployeeRegistry(b)
	b.payroll = newPayrollEngine(b, opts)
	return b
}

func (b *Book) Employer() Employer          { return b.employer }
func (b *Book) Registry() *EmployeeRegistry { return b.registry }
func (b *Book) Payroll() *PayrollEngine     { return b.payroll }
func (b *Book) unit() generic.Unit          { return generic.Unit(b.employer.Currency) }

// WorkingHours returns the schedule currently in effect.
func (b *Book) WorkingHours() ScheduleVersion {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.schedules.current()
}

// ScheduleHistory returns every accepted schedule version, oldest first.
func (b *Book) ScheduleHistory() []ScheduleVersion {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]ScheduleVersion(nil), b.schedules.versions...)
}

// UpdateWorkingHours accepts a new schedule effective from today (in the
// current schedule's timezone). Records created earlier keep the version
// they were created under.
func (b *Book) UpdateWorkingHours(ctx context.Context, meta Meta, s Schedule) (ScheduleVersion, error) {
	if err := s.Validate(); err != nil {
		return ScheduleVersion{}, fmt.Errorf("update working hours: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkReplay(ctx, meta); err != nil {
		return ScheduleVersion{}, err
	}
	effective := b.schedules.current().Schedule.DayOf(b.clock())
	tx := b.newTx(meta, TxScheduleUpdated, "", effective)
	encodeSchedule(tx.Metadata, s)
	if err := b.commit(ctx, nil, tx); err != nil {
		return ScheduleVersion{}, err
	}

	v := b.schedules.current()
	b.logger.Info("working hours updated",
		zap.Int("version", v.Version),
		zap.Stringer("effective_from", effective))
	return v, nil
}

// Today is the current local day under the current schedule.
func (b *Book) Today() generic.TimePoint { return b.today() }

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (b *Book) today() generic.TimePoint {
	return b.WorkingHours().Schedule.DayOf(b.clock())
}

func (b *Book) instant(t time.Time) time.Time {
	if t.IsZero() {
		return b.clock()
	}
	return t
}

// scheduleFor resolves the local day of now and the version governing it.
func (b *Book) scheduleFor(now time.Time) (ScheduleVersion, generic.TimePoint) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	day := b.schedules.current().Schedule.DayOf(now)
	return b.schedules.at(day), day
}

func (b *Book) scheduleVersion(n int) Schedule {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.schedules.versionOrCurrent(n)
}

// scheduleSnapshot copies the history so long reads run without the lock.
// Versions are never modified once pushed.
func (b *Book) scheduleSnapshot() *scheduleHistory {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return &scheduleHistory{versions: append([]ScheduleVersion(nil), b.schedules.versions...)}
}

// scopedKey namespaces a caller idempotency key by employer.
func (b *Book) scopedKey(key string) string {
	if key == "" {
		return ""
	}
	return string(b.employer.ID) + ":" + key
}

// checkReplay rejects a retried write before validation, so a retry of an
// accepted check-in is reported as a replay rather than a conflict.
func (b *Book) checkReplay(ctx context.Context, meta Meta) error {
	seen, err := b.journal.Seen(ctx, b.scopedKey(meta.IdempotencyKey))
	if err != nil {
		return fmt.Errorf("%w: %v", generic.ErrTransactionFailed, err)
	}
	if seen {
		return generic.ErrDuplicateIdempotencyKey
	}
	return nil
}

func (b *Book) newTx(meta Meta, txType generic.TransactionType, employee EmployeeID, effective generic.TimePoint) generic.Transaction {
	now := b.clock()
	actor := meta.Actor
	if actor == "" {
		actor = actorSystem
	}
	return generic.Transaction{
		ID:             generic.TransactionID(uuid.NewString()),
		TenantID:       b.employer.ID,
		EntityID:       employee,
		Type:           txType,
		EffectiveAt:    effective,
		OccurredAt:     now,
		IdempotencyKey: b.scopedKey(meta.IdempotencyKey),
		Metadata:       map[string]string{},
		CreatedBy:      actor,
		CreatedAt:      now,
	}
}

// commit appends txs atomically, then applies them to memory. Callers
// hold the lock that guards what the entries touch. Only the first entry
// of a batch keeps the caller's idempotency key.
func (b *Book) commit(ctx context.Context, acct *account, txs ...generic.Transaction) error {
	for i := 1; i < len(txs); i++ {
		if txs[i].IdempotencyKey == txs[0].IdempotencyKey {
			txs[i].IdempotencyKey = ""
		}
	}
	if err := b.journal.AppendBatch(ctx, txs); err != nil {
		if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
			return err
		}
		return fmt.Errorf("%w: %v", generic.ErrTransactionFailed, err)
	}
	for _, tx := range txs {
		if err := b.applyLocked(acct, tx); err != nil {
			b.logger.Error("journal entry accepted but not applied",
				zap.String("type", string(tx.Type)),
				zap.String("tx", string(tx.ID)),
				zap.Error(err))
			return err
		}
	}
	return nil
}
