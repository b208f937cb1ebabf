package payroll

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-ledger/generic"
)

// =============================================================================
// ATTENDANCE RECORD
// =============================================================================

// AttendanceRecord is one employee-day. Status and the two flags are
// projected from the log times and the schedule version pinned when the
// record was created; they are never stored.
type AttendanceRecord struct {
	Date            generic.TimePoint
	LogInTime       int64 // epoch seconds, 0 = none
	LogOutTime      int64 // epoch seconds, 0 = none
	Status          AttendanceStatus
	IsLate          bool
	IsEarlyCheckout bool
	ScheduleVersion int // 0 for a synthesized Absent placeholder
}

func (r AttendanceRecord) IsOpen() bool { return r.LogInTime != 0 && r.LogOutTime == 0 }

type attendanceRow struct {
	day     generic.TimePoint
	logIn   int64
	logOut  int64
	version int
}

func project(row attendanceRow, s Schedule) AttendanceRecord {
	c := s.Classify(row.logIn, row.logOut)
	return AttendanceRecord{
		Date:            row.day,
		LogInTime:       row.logIn,
		LogOutTime:      row.logOut,
		Status:          c.Status,
		IsLate:          c.IsLate,
		IsEarlyCheckout: c.IsEarlyCheckout,
		ScheduleVersion: row.version,
	}
}

// =============================================================================
// ATTENDANCE LEDGER - One record per employee per day
// =============================================================================

// AttendanceLedger holds one employee's attendance rows keyed by day.
// It is guarded by the owning account's lock.
//
// INVARIANTS:
//   - At most one record per day.
//   - logOut is 0 until check-out and never before logIn afterwards.
type AttendanceLedger struct {
	rows map[int64]attendanceRow
}

func newAttendanceLedger() *AttendanceLedger {
	return &AttendanceLedger{rows: make(map[int64]attendanceRow)}
}

// Len is the number of days with a check-in.
func (l *AttendanceLedger) Len() int { return len(l.rows) }

func (l *AttendanceLedger) row(day generic.TimePoint) (attendanceRow, bool) {
	r, ok := l.rows[day.Index()]
	return r, ok
}

func (l *AttendanceLedger) validateCheckIn(day generic.TimePoint) error {
	if _, ok := l.rows[day.Index()]; ok {
		return generic.ErrAlreadyCheckedIn
	}
	return nil
}

func (l *AttendanceLedger) validateCheckOut(day generic.TimePoint, at int64) error {
	r, ok := l.rows[day.Index()]
	if !ok {
		return generic.ErrNotCheckedIn
	}
	if r.logOut != 0 {
		return generic.ErrAlreadyCheckedOut
	}
	if at < r.logIn {
		return fmt.Errorf("%w: check-out %d before check-in %d", generic.ErrInvalidTime, at, r.logIn)
	}
	return nil
}

func (l *AttendanceLedger) recordIn(day generic.TimePoint, at int64, version int) {
	l.rows[day.Index()] = attendanceRow{day: day, logIn: at, version: version}
}

func (l *AttendanceLedger) recordOut(day generic.TimePoint, at int64) error {
	r, ok := l.rows[day.Index()]
	if !ok {
		return generic.ErrNotCheckedIn
	}
	r.logOut = at
	l.rows[day.Index()] = r
	return nil
}

// snapshot copies the rows inside p.
func (l *AttendanceLedger) snapshot(p generic.Period) map[int64]attendanceRow {
	out := make(map[int64]attendanceRow)
	if p.Len() <= len(l.rows) {
		for d := range p.Each() {
			if r, ok := l.rows[d.Index()]; ok {
				out[d.Index()] = r
			}
		}
		return out
	}
	for k, r := range l.rows {
		if p.Contains(r.day) {
			out[k] = r
		}
	}
	return out
}

// =============================================================================
// BOOK OPERATIONS
// =============================================================================

// CheckIn records the first event of the local day containing now.
// A zero now means the Book's clock.
func (b *Book) CheckIn(ctx context.Context, meta Meta, employee EmployeeID, now time.Time) (AttendanceRecord, error) {
	acct, err := b.registry.account(employee)
	if err != nil {
		return AttendanceRecord{}, err
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return b.checkInLocked(ctx, meta, acct, b.instant(now))
}

// CheckOut closes the local day containing now.
func (b *Book) CheckOut(ctx context.Context, meta Meta, employee EmployeeID, now time.Time) (AttendanceRecord, error) {
	acct, err := b.registry.account(employee)
	if err != nil {
		return AttendanceRecord{}, err
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return b.checkOutLocked(ctx, meta, acct, b.instant(now))
}

// Mark is the single-button form: check in when today has no record,
// otherwise check out.
func (b *Book) Mark(ctx context.Context, meta Meta, employee EmployeeID, now time.Time) (AttendanceRecord, error) {
	acct, err := b.registry.account(employee)
	if err != nil {
		return AttendanceRecord{}, err
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()

	now = b.instant(now)
	_, day := b.scheduleFor(now)
	if _, ok := acct.attendance.row(day); ok {
		return b.checkOutLocked(ctx, meta, acct, now)
	}
	return b.checkInLocked(ctx, meta, acct, now)
}

func (b *Book) checkInLocked(ctx context.Context, meta Meta, acct *account, now time.Time) (AttendanceRecord, error) {
	if err := b.checkReplay(ctx, meta); err != nil {
		return AttendanceRecord{}, err
	}
	id := acct.employee.ID
	if !acct.employee.IsActive {
		return AttendanceRecord{}, fmt.Errorf("check in %s: %w", id, generic.ErrEmployeeInactive)
	}

	version, day := b.scheduleFor(now)
	if !version.Schedule.IsWorkDay(day) {
		return AttendanceRecord{}, fmt.Errorf("check in %s on %s (%s): %w", id, day, day.Weekday(), generic.ErrNotAWorkDay)
	}
	if err := acct.attendance.validateCheckIn(day); err != nil {
		return AttendanceRecord{}, fmt.Errorf("check in %s on %s: %w", id, day, err)
	}

	tx := b.newTx(meta, TxCheckIn, id, day)
	tx.OccurredAt = now
	tx.Metadata[metaScheduleVersion] = strconv.Itoa(version.Version)
	if err := b.commit(ctx, acct, tx); err != nil {
		return AttendanceRecord{}, err
	}

	row, _ := acct.attendance.row(day)
	rec := project(row, version.Schedule)
	b.logger.Debug("checked in",
		zap.String("employee", string(id)),
		zap.Stringer("day", day),
		zap.Bool("late", rec.IsLate))
	return rec, nil
}

func (b *Book) checkOutLocked(ctx context.Context, meta Meta, acct *account, now time.Time) (AttendanceRecord, error) {
	if err := b.checkReplay(ctx, meta); err != nil {
		return AttendanceRecord{}, err
	}
	id := acct.employee.ID
	if !acct.employee.IsActive {
		return AttendanceRecord{}, fmt.Errorf("check out %s: %w", id, generic.ErrEmployeeInactive)
	}

	version, day := b.scheduleFor(now)
	if _, ok := acct.attendance.row(day); !ok && !version.Schedule.IsWorkDay(day) {
		return AttendanceRecord{}, fmt.Errorf("check out %s on %s (%s): %w", id, day, day.Weekday(), generic.ErrNotAWorkDay)
	}
	if err := acct.attendance.validateCheckOut(day, now.Unix()); err != nil {
		return AttendanceRecord{}, fmt.Errorf("check out %s on %s: %w", id, day, err)
	}

	tx := b.newTx(meta, TxCheckOut, id, day)
	tx.OccurredAt = now
	if err := b.commit(ctx, acct, tx); err != nil {
		return AttendanceRecord{}, err
	}

	row, _ := acct.attendance.row(day)
	rec := project(row, b.scheduleVersion(row.version))
	b.logger.Debug("checked out",
		zap.String("employee", string(id)),
		zap.Stringer("day", day),
		zap.Stringer("status", rec.Status))
	return rec, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Attendance returns the record for one day, or an Absent placeholder.
func (b *Book) Attendance(employee EmployeeID, day generic.TimePoint) (AttendanceRecord, error) {
	acct, err := b.registry.account(employee)
	if err != nil {
		return AttendanceRecord{}, err
	}
	acct.mu.RLock()
	row, ok := acct.attendance.row(day)
	acct.mu.RUnlock()

	if !ok {
		return AttendanceRecord{Date: day}, nil
	}
	return project(row, b.scheduleVersion(row.version)), nil
}

// AttendanceRange returns one record per day in [from, to], synthesizing
// Absent placeholders for days without a check-in. The sequence is lazy:
// each iteration takes a fresh consistent snapshot of the employee.
func (b *Book) AttendanceRange(employee EmployeeID, from, to generic.TimePoint) (iter.Seq[AttendanceRecord], error) {
	p := generic.Period{Start: from, End: to}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("attendance range %s: %w", p, err)
	}
	if p.Len() > MaxRangeDays {
		return nil, fmt.Errorf("attendance range %s spans %d days, at most %d: %w",
			p, p.Len(), MaxRangeDays, generic.ErrInvalidRange)
	}
	acct, err := b.registry.account(employee)
	if err != nil {
		return nil, err
	}

	return func(yield func(AttendanceRecord) bool) {
		acct.mu.RLock()
		rows := acct.attendance.snapshot(p)
		acct.mu.RUnlock()
		history := b.scheduleSnapshot()

		for d := range p.Each() {
			rec := AttendanceRecord{Date: d}
			if row, ok := rows[d.Index()]; ok {
				rec = project(row, history.versionOrCurrent(row.version))
			}
			if !yield(rec) {
				return
			}
		}
	}, nil
}
