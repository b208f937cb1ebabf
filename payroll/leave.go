package payroll

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-ledger/generic"
)

// =============================================================================
// LEAVE REQUEST
// =============================================================================

// LeaveRequest moves from pending to approved or rejected exactly once and
// is immutable afterwards.
type LeaveRequest struct {
	ID          int // sequential per employee, starting at 0
	StartDate   generic.TimePoint
	EndDate     generic.TimePoint
	Reason      string
	IsPaidLeave bool
	IsApproved  bool
	IsProcessed bool
	Remarks     string
	RequestedAt time.Time
	ProcessedAt time.Time
	ProcessedBy string
}

func (r LeaveRequest) Period() generic.Period {
	return generic.Period{Start: r.StartDate, End: r.EndDate}
}

// Days is the calendar length of the request, end - start + 1.
func (r LeaveRequest) Days() int { return r.Period().Len() }

// LeaveInput is a new leave request.
type LeaveInput struct {
	StartDate generic.TimePoint
	EndDate   generic.TimePoint
	Reason    string
	Paid      bool
}

// balanceDecrement is the message an approved paid request sends to the
// registry, which owns the paid leave balance.
type balanceDecrement struct {
	RequestID int
	Days      int
}

// =============================================================================
// LEAVE LEDGER
// =============================================================================

// LeaveLedger is one employee's ordered leave requests, guarded by the
// owning account's lock.
type LeaveLedger struct {
	requests []LeaveRequest
}

func newLeaveLedger() *LeaveLedger {
	return &LeaveLedger{}
}

func (l *LeaveLedger) Len() int { return len(l.requests) }

func (l *LeaveLedger) get(id int) (LeaveRequest, error) {
	if id < 0 || id >= len(l.requests) {
		return LeaveRequest{}, generic.ErrLeaveNotFound
	}
	return l.requests[id], nil
}

// validateProcess checks a decision and returns the balance message an
// approval of a paid request must deliver, if any.
func (l *LeaveLedger) validateProcess(id int, approve bool) (*balanceDecrement, error) {
	req, err := l.get(id)
	if err != nil {
		return nil, err
	}
	if req.IsProcessed {
		return nil, generic.ErrAlreadyProcessed
	}
	if approve && req.IsPaidLeave {
		return &balanceDecrement{RequestID: id, Days: req.Days()}, nil
	}
	return nil, nil
}

func (l *LeaveLedger) add(req LeaveRequest) {
	req.ID = len(l.requests)
	l.requests = append(l.requests, req)
}

func (l *LeaveLedger) markProcessed(id int, approved bool, remarks string, at time.Time, by string) error {
	if id < 0 || id >= len(l.requests) {
		return generic.ErrLeaveNotFound
	}
	r := &l.requests[id]
	r.IsProcessed = true
	r.IsApproved = approved
	r.Remarks = remarks
	r.ProcessedAt = at
	r.ProcessedBy = by
	return nil
}

// approvedPaid returns the periods of approved paid requests overlapping p.
func (l *LeaveLedger) approvedPaid(p generic.Period) []generic.Period {
	var out []generic.Period
	for _, r := range l.requests {
		if r.IsApproved && r.IsPaidLeave && r.Period().Overlaps(p) {
			out = append(out, r.Period())
		}
	}
	return out
}

func (l *LeaveLedger) list() []LeaveRequest {
	return slices.Clone(l.requests)
}

// =============================================================================
// BOOK OPERATIONS
// =============================================================================

// RequestLeave files a pending request. Paid balance is checked at approval,
// not here.
func (b *Book) RequestLeave(ctx context.Context, meta Meta, employee EmployeeID, in LeaveInput) (LeaveRequest, error) {
	p := generic.Period{Start: in.StartDate, End: in.EndDate}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return LeaveRequest{}, fmt.Errorf("request leave: %w: start and end dates are required", generic.ErrInvalidInput)
	}
	if err := p.Validate(); err != nil {
		return LeaveRequest{}, fmt.Errorf("request leave %s: %w", p, err)
	}

	acct, err := b.registry.account(employee)
	if err != nil {
		return LeaveRequest{}, err
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if err := b.checkReplay(ctx, meta); err != nil {
		return LeaveRequest{}, err
	}
	if !acct.employee.IsActive {
		return LeaveRequest{}, fmt.Errorf("request leave for %s: %w", employee, generic.ErrEmployeeInactive)
	}

	tx := b.newTx(meta, TxLeaveRequested, employee, in.StartDate)
	tx.ReferenceID = strconv.Itoa(acct.leaves.Len())
	tx.Reason = in.Reason
	tx.Metadata[metaEndDate] = in.EndDate.String()
	tx.Metadata[metaPaid] = strconv.FormatBool(in.Paid)
	if err := b.commit(ctx, acct, tx); err != nil {
		return LeaveRequest{}, err
	}

	req := acct.leaves.requests[acct.leaves.Len()-1]
	b.logger.Info("leave requested",
		zap.String("employee", string(employee)),
		zap.Int("request_id", req.ID),
		zap.Stringer("period", p),
		zap.Bool("paid", in.Paid))
	return req, nil
}

// ProcessLeave approves or rejects a pending request. Approving a paid
// request debits end - start + 1 days from the registry balance in the same
// atomic journal batch; a shortfall rejects the whole decision.
func (b *Book) ProcessLeave(ctx context.Context, meta Meta, employee EmployeeID, requestID int, approve bool, remarks string) (LeaveRequest, error) {
	acct, err := b.registry.account(employee)
	if err != nil {
		return LeaveRequest{}, err
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if err := b.checkReplay(ctx, meta); err != nil {
		return LeaveRequest{}, err
	}
	if !acct.employee.IsActive {
		return LeaveRequest{}, fmt.Errorf("process leave %s/%d: %w", employee, requestID, generic.ErrEmployeeInactive)
	}
	msg, err := acct.leaves.validateProcess(requestID, approve)
	if err != nil {
		return LeaveRequest{}, fmt.Errorf("process leave %s/%d: %w", employee, requestID, err)
	}

	ref := strconv.Itoa(requestID)
	decision := b.newTx(meta, TxLeaveProcessed, employee, b.today())
	decision.ReferenceID = ref
	decision.Reason = remarks
	decision.Metadata[metaApproved] = strconv.FormatBool(approve)
	txs := []generic.Transaction{decision}

	if msg != nil {
		debit, err := b.registry.decrementPaidLeave(acct, msg)
		if err != nil {
			return LeaveRequest{}, fmt.Errorf("process leave %s/%d: %w", employee, requestID, err)
		}
		txs = append(txs, debit)
	}

	if err := b.commit(ctx, acct, txs...); err != nil {
		return LeaveRequest{}, err
	}

	req, _ := acct.leaves.get(requestID)
	b.logger.Info("leave processed",
		zap.String("employee", string(employee)),
		zap.Int("request_id", requestID),
		zap.Bool("approved", approve),
		zap.Int("balance", acct.employee.AvailablePaidLeaves))
	return req, nil
}

// LeaveRequests returns the employee's requests in id order.
func (b *Book) LeaveRequests(employee EmployeeID) ([]LeaveRequest, error) {
	acct, err := b.registry.account(employee)
	if err != nil {
		return nil, err
	}
	acct.mu.RLock()
	defer acct.mu.RUnlock()
	return acct.leaves.list(), nil
}

// LeaveRequest returns one request.
func (b *Book) LeaveRequest(employee EmployeeID, requestID int) (LeaveRequest, error) {
	acct, err := b.registry.account(employee)
	if err != nil {
		return LeaveRequest{}, err
	}
	acct.mu.RLock()
	defer acct.mu.RUnlock()
	req, err := acct.leaves.get(requestID)
	if err != nil {
		return LeaveRequest{}, fmt.Errorf("leave %s/%d: %w", employee, requestID, err)
	}
	return req, nil
}
