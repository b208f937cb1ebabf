/*
scheduler.go - Automated payroll scheduler

PURPOSE:
  Periodically settles every employer's payroll up to yesterday and keeps
  the annual paid leave grant current, so nothing depends on an owner
  remembering to press the button.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each pass pays every employer as of the day before the employer's today
  - Each pass grants the current year's paid leave; grants are keyed per
    year, so repeated passes grant nothing new
  - Payout attempts land in the run log through the payroll engine
  - Stop cancels an in-flight pass and waits for it

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewPayrollScheduler(directory, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunPayroll endpoint (manual run)
  - payroll/engine.go: PayAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-ledger/payroll"
)

// SchedulerActor is the identity recorded on entries the scheduler writes.
const SchedulerActor = "scheduler"

// PayrollScheduler handles automated payroll runs.
type PayrollScheduler struct {
	Directory     *payroll.Directory
	CheckInterval time.Duration
	Enabled       bool

	logger *zap.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPayrollScheduler creates a new scheduler.
func NewPayrollScheduler(dir *payroll.Directory, logger *zap.Logger) *PayrollScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayrollScheduler{
		Directory:     dir,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		logger:        logger.Named("scheduler"),
	}
}

// Start begins the scheduler. Starting a running scheduler does nothing.
func (ps *PayrollScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		ps.logger.Info("disabled, not starting")
		return
	}
	if ps.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps.cancel = cancel
	ps.wg.Add(1)
	go ps.run(ctx)

	ps.logger.Info("started", zap.Duration("interval", ps.CheckInterval))
}

// Stop stops the scheduler and waits for the current pass to return.
func (ps *PayrollScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.cancel == nil {
		return
	}
	ps.cancel()
	ps.wg.Wait()
	ps.cancel = nil
	ps.logger.Info("stopped")
}

func (ps *PayrollScheduler) run(ctx context.Context) {
	defer ps.wg.Done()

	ticker := time.NewTicker(ps.CheckInterval)
	defer ticker.Stop()

	// Run immediately on start
	ps.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			ps.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// PassSummary counts what one pass did across every employer.
type PassSummary struct {
	Employers int
	Granted   int
	Settled   int
	Failed    int
	Skipped   int
}

// RunNow runs one pass synchronously (for testing/admin).
func (ps *PayrollScheduler) RunNow(ctx context.Context) PassSummary {
	var sum PassSummary
	meta := payroll.Meta{Actor: SchedulerActor}

	for _, book := range ps.Directory.Books() {
		if ctx.Err() != nil {
			break
		}
		sum.Employers++
		employer := book.Employer().ID
		today := book.Today()

		granted, err := book.Registry().GrantAnnualLeave(ctx, meta, today.Year())
		if err != nil {
			ps.logger.Error("annual leave grant failed", zap.String("employer", string(employer)), zap.Error(err))
		}
		sum.Granted += granted

		rep, err := book.Payroll().PayAll(ctx, meta, today.AddDays(-1))
		sum.Settled += rep.Settled()
		sum.Failed += rep.Failed()
		sum.Skipped += rep.Skipped()
		if err != nil {
			ps.logger.Warn("payroll pass interrupted", zap.String("employer", string(employer)), zap.Error(err))
			break
		}
	}

	if sum.Granted > 0 || sum.Settled > 0 || sum.Failed > 0 {
		ps.logger.Info("pass completed",
			zap.Int("employers", sum.Employers),
			zap.Int("granted", sum.Granted),
			zap.Int("settled", sum.Settled),
			zap.Int("failed", sum.Failed),
			zap.Int("skipped", sum.Skipped))
	}
	return sum
}

// NextRunTime returns when the next scheduled pass will occur.
func (ps *PayrollScheduler) NextRunTime() time.Time {
	return time.Now().Add(ps.CheckInterval)
}
