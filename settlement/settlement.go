/*
Package settlement implements the payroll.Settlement collaborator.

IMPLEMENTATIONS:
  Recorder: in-memory, for local runs and tests. Optional failure
            injection per employee.
  Webhook:  POSTs each transfer as JSON to a payment service.

Both treat a repeated IdempotencyKey as the transfer already made, which
is what lets the payroll engine retry a payout whose journal write was
lost without paying twice.
*/
package settlement

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/warp/payroll-ledger/payroll"
)

// Recorder keeps every distinct transfer in memory.
type Recorder struct {
	logger *zap.Logger

	mu        sync.Mutex
	transfers []payroll.Transfer
	keys      map[string]bool
	failures  map[payroll.EmployeeID]error
}

var _ payroll.Settlement = (*Recorder)(nil)

func NewRecorder(logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		logger:   logger.Named("settlement"),
		keys:     make(map[string]bool),
		failures: make(map[payroll.EmployeeID]error),
	}
}

func (r *Recorder) Transfer(ctx context.Context, t payroll.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.failures[t.Employee]; ok {
		return err
	}
	if r.keys[t.IdempotencyKey] {
		r.logger.Debug("transfer already recorded", zap.String("key", t.IdempotencyKey))
		return nil
	}
	r.keys[t.IdempotencyKey] = true
	r.transfers = append(r.transfers, t)
	r.logger.Info("transfer recorded",
		zap.String("employer", string(t.Employer)),
		zap.String("employee", string(t.Employee)),
		zap.String("amount", t.Amount.String()),
		zap.Stringer("window", t.Window))
	return nil
}

// FailFor makes every transfer to employee fail with err until Clear.
func (r *Recorder) FailFor(employee payroll.EmployeeID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[employee] = err
}

func (r *Recorder) Clear(employee payroll.EmployeeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failures, employee)
}

// Transfers returns the recorded transfers in arrival order.
func (r *Recorder) Transfers() []payroll.Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]payroll.Transfer(nil), r.transfers...)
}
