package payroll

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-ledger/generic"
)

// =============================================================================
// SCHEDULE - Working hours and attendance classification
// =============================================================================

// maxTimezoneOffset bounds offsets to the real-world range UTC-14..UTC+14.
const maxTimezoneOffset = 14 * 3600

// Schedule is an employer's working-hours definition. Times are local
// seconds-of-day; the local day of an instant is the UTC date of
// epoch + TimezoneOffset.
type Schedule struct {
	StartTime      int64
	EndTime        int64
	BufferTime     int64
	WorkDays       []time.Weekday // 0 = Sunday
	TimezoneOffset int64
}

// Classification is the projection of one attendance record.
type Classification struct {
	Status          AttendanceStatus
	IsLate          bool
	IsEarlyCheckout bool
}

// Validate checks 0 <= start < end < 86400, a non-negative buffer, a
// non-empty set of valid weekdays and a plausible timezone offset.
func (s Schedule) Validate() error {
	if s.StartTime < 0 || s.StartTime >= s.EndTime || s.EndTime >= generic.SecondsPerDay {
		return fmt.Errorf("%w: need 0 <= start < end < 86400, got start=%d end=%d",
			generic.ErrInvalidSchedule, s.StartTime, s.EndTime)
	}
	if s.BufferTime < 0 {
		return fmt.Errorf("%w: negative buffer %d", generic.ErrInvalidSchedule, s.BufferTime)
	}
	if len(s.WorkDays) == 0 {
		return fmt.Errorf("%w: no work days", generic.ErrInvalidSchedule)
	}
	for _, d := range s.WorkDays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", generic.ErrInvalidSchedule, d)
		}
	}
	if s.TimezoneOffset < -maxTimezoneOffset || s.TimezoneOffset > maxTimezoneOffset {
		return fmt.Errorf("%w: timezone offset %d", generic.ErrInvalidSchedule, s.TimezoneOffset)
	}
	return nil
}

// normalized returns a copy with sorted, de-duplicated work days.
func (s Schedule) normalized() Schedule {
	days := slices.Clone(s.WorkDays)
	slices.Sort(days)
	s.WorkDays = slices.Compact(days)
	return s
}

// Classify projects a log-in/log-out pair (epoch seconds, 0 = none) into a
// status. A missing check-out is HalfDay: provisional while the day is in
// progress and final once it has ended.
func (s Schedule) Classify(logIn, logOut int64) Classification {
	if logIn == 0 {
		return Classification{Status: Absent}
	}

	c := Classification{
		IsLate: generic.SecondOfDay(logIn, s.TimezoneOffset) > s.StartTime+s.BufferTime,
	}
	if logOut == 0 {
		c.Status = HalfDay
		return c
	}

	c.IsEarlyCheckout = generic.SecondOfDay(logOut, s.TimezoneOffset) < s.EndTime-s.BufferTime
	if c.IsLate || c.IsEarlyCheckout {
		c.Status = HalfDay
	} else {
		c.Status = FullDay
	}
	return c
}

// DayOf returns the local calendar day of an instant.
func (s Schedule) DayOf(t time.Time) generic.TimePoint {
	return generic.DayOf(t.Unix(), s.TimezoneOffset)
}

func (s Schedule) IsWorkDay(day generic.TimePoint) bool {
	return slices.Contains(s.WorkDays, day.Weekday())
}

// StandardWorkingDays derives the average work days per month from the
// weekly pattern: len(WorkDays) * 52 / 12.
func (s Schedule) StandardWorkingDays() decimal.Decimal {
	return decimal.NewFromInt(int64(len(s.WorkDays) * 52)).Div(decimal.NewFromInt(12))
}

// =============================================================================
// SCHEDULE HISTORY - Effective-dated versions
// =============================================================================

// ScheduleVersion is one accepted schedule. Version 1 is the schedule the
// employer registered with and applies to every day before version 2.
type ScheduleVersion struct {
	Version       int
	EffectiveFrom generic.TimePoint
	Schedule      Schedule
}

// scheduleHistory is owned by a Book and guarded by the Book's mutex.
type scheduleHistory struct {
	versions []ScheduleVersion
}

func (h *scheduleHistory) push(effective generic.TimePoint, s Schedule) ScheduleVersion {
	v := ScheduleVersion{
		Version:       len(h.versions) + 1,
		EffectiveFrom: effective,
		Schedule:      s.normalized(),
	}
	if len(h.versions) == 0 {
		v.EffectiveFrom = generic.TimePoint{}
	}
	h.versions = append(h.versions, v)
	return v
}

func (h *scheduleHistory) current() ScheduleVersion {
	return h.versions[len(h.versions)-1]
}

// at returns the version governing new records created on day.
func (h *scheduleHistory) at(day generic.TimePoint) ScheduleVersion {
	for i := len(h.versions) - 1; i > 0; i-- {
		if h.versions[i].EffectiveFrom.BeforeOrEqual(day) {
			return h.versions[i]
		}
	}
	return h.versions[0]
}

func (h *scheduleHistory) version(n int) (ScheduleVersion, bool) {
	if n < 1 || n > len(h.versions) {
		return ScheduleVersion{}, false
	}
	return h.versions[n-1], true
}

// versionOrCurrent returns the schedule of version n, falling back to the
// latest when n is unknown.
func (h *scheduleHistory) versionOrCurrent(n int) Schedule {
	if v, ok := h.version(n); ok {
		return v.Schedule
	}
	return h.current().Schedule
}
