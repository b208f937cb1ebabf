package payroll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/payroll-ledger/generic"
)

// =============================================================================
// OPTIONS
// =============================================================================

const (
	DefaultSettlementTimeout = 30 * time.Second
	DefaultConcurrency       = 8
)

// Options configure every Book a Directory creates.
type Options struct {
	Clock             Clock
	Logger            *zap.Logger
	Settlement        Settlement
	Runs              generic.RunLog // optional payout audit
	Observer          PayoutObserver // optional
	SettlementTimeout time.Duration
	Concurrency       int
	OpenDayPolicy     OpenDayPolicy
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Settlement == nil {
		o.Settlement = SettlementFunc(func(context.Context, Transfer) error {
			return fmt.Errorf("no settlement configured")
		})
	}
	if o.SettlementTimeout <= 0 {
		o.SettlementTimeout = DefaultSettlementTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.OpenDayPolicy == "" {
		o.OpenDayPolicy = OpenDayHalfDay
	}
	return o
}

// =============================================================================
// DIRECTORY - All employers
// =============================================================================

// Directory holds every employer's Book. Each owner may register one
// employer. Lookups never pick a tenant implicitly: callers name the
// EmployerID (or the owner) they act on.
type Directory struct {
	journal generic.Ledger
	opts    Options
	logger  *zap.Logger

	mu     sync.RWMutex
	books  map[EmployerID]*Book
	owners map[string]EmployerID
	order  []EmployerID
}

func NewDirectory(journal generic.Ledger, opts Options) *Directory {
	opts = opts.withDefaults()
	return &Directory{
		journal: journal,
		opts:    opts,
		logger:  opts.Logger,
		books:   make(map[EmployerID]*Book),
		owners:  make(map[string]EmployerID),
	}
}

// Register creates an employer with its first schedule.
func (d *Directory) Register(ctx context.Context, meta Meta, in EmployerInput) (Employer, error) {
	if err := in.validate(); err != nil {
		return Employer{}, fmt.Errorf("register employer: %w", err)
	}
	if in.ID == "" {
		in.ID = EmployerID(uuid.NewString())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := ""
	if meta.IdempotencyKey != "" {
		key = "employer:" + meta.IdempotencyKey
		seen, err := d.journal.Seen(ctx, key)
		if err != nil {
			return Employer{}, fmt.Errorf("%w: %v", generic.ErrTransactionFailed, err)
		}
		if seen {
			return Employer{}, generic.ErrDuplicateIdempotencyKey
		}
	}
	if _, ok := d.books[in.ID]; ok {
		return Employer{}, fmt.Errorf("register employer %s: %w", in.ID, generic.ErrDuplicateIdentity)
	}
	if existing, ok := d.owners[in.Owner]; ok {
		return Employer{}, fmt.Errorf("owner %s already has employer %s: %w", in.Owner, existing, generic.ErrDuplicateIdentity)
	}

	now := d.opts.Clock()
	employer := Employer{
		ID:                  in.ID,
		Owner:               in.Owner,
		Name:                in.Name,
		Currency:            in.Currency,
		PaidLeavesPerYear:   in.PaidLeavesPerYear,
		StandardWorkingDays: in.StandardWorkingDays,
		RegisteredAt:        now,
	}
	actor := meta.Actor
	if actor == "" {
		actor = in.Owner
	}
	tx := generic.Transaction{
		ID:             generic.TransactionID(uuid.NewString()),
		TenantID:       employer.ID,
		Type:           TxEmployerRegistered,
		EffectiveAt:    in.Schedule.DayOf(now),
		OccurredAt:     now,
		IdempotencyKey: key,
		Metadata:       map[string]string{},
		CreatedBy:      actor,
		CreatedAt:      now,
	}
	encodeEmployer(tx.Metadata, employer)
	encodeSchedule(tx.Metadata, in.Schedule)

	if err := d.journal.Append(ctx, tx); err != nil {
		return Employer{}, fmt.Errorf("%w: %v", generic.ErrTransactionFailed, err)
	}
	if _, err := d.applyRegistration(tx); err != nil {
		return Employer{}, err
	}
	d.logger.Info("employer registered",
		zap.String("employer", string(employer.ID)),
		zap.String("owner", employer.Owner))
	return employer, nil
}

// applyRegistration creates the Book for an employer_registered entry.
// Caller holds d.mu.
func (d *Directory) applyRegistration(tx generic.Transaction) (*Book, error) {
	employer, err := decodeEmployer(tx)
	if err != nil {
		return nil, err
	}
	s, err := decodeSchedule(tx.Metadata)
	if err != nil {
		return nil, err
	}
	b := newBook(employer, d.journal, d.opts)
	b.schedules.push(tx.EffectiveAt, s)
	d.books[employer.ID] = b
	d.owners[employer.Owner] = employer.ID
	d.order = append(d.order, employer.ID)
	return b, nil
}

// Book returns the employer's book.
func (d *Directory) Book(id EmployerID) (*Book, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.books[id]
	if !ok {
		return nil, fmt.Errorf("employer %s: %w", id, generic.ErrEmployerNotFound)
	}
	return b, nil
}

// ByOwner returns the employer registered by owner.
func (d *Directory) ByOwner(owner string) (*Book, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.owners[owner]
	if !ok {
		return nil, fmt.Errorf("employer owned by %s: %w", owner, generic.ErrEmployerNotFound)
	}
	return d.books[id], nil
}

// Books returns every employer's book in registration order.
func (d *Directory) Books() []*Book {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Book, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.books[id])
	}
	return out
}

// Journal exposes the ledger for read-only history queries.
func (d *Directory) Journal() generic.Ledger { return d.journal }

// =============================================================================
// RESTORE - Rebuild from the journal
// =============================================================================

// Restore replays every journal entry in sequence order into an empty
// directory. It returns the number of entries applied.
func (d *Directory) Restore(ctx context.Context) (int, error) {
	txs, err := d.journal.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore: load journal: %w", err)
	}

	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if tx.Type == TxEmployerRegistered {
			d.mu.Lock()
			_, err = d.applyRegistration(tx)
			d.mu.Unlock()
		} else {
			var b *Book
			if b, err = d.Book(tx.TenantID); err == nil {
				err = b.replay(tx)
			}
		}
		if err != nil {
			return i, fmt.Errorf("restore entry #%d (%s): %w", tx.Sequence, tx.Type, err)
		}
	}

	d.logger.Info("journal restored",
		zap.Int("entries", len(txs)),
		zap.Int("employers", len(d.Books())))
	return len(txs), nil
}

// Restore builds a Directory from a journal.
func Restore(ctx context.Context, journal generic.Ledger, opts Options) (*Directory, error) {
	d := NewDirectory(journal, opts)
	if _, err := d.Restore(ctx); err != nil {
		return nil, err
	}
	return d, nil
}
