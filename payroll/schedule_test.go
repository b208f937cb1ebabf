package payroll_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/payroll"
)

func TestClassify_NoCheckInIsAbsent(t *testing.T) {
	schedules := []payroll.Schedule{
		nineToFive(),
		{StartTime: 0, EndTime: 86399, BufferTime: 0, WorkDays: []time.Weekday{time.Sunday}},
		{StartTime: 22 * 3600, EndTime: 23 * 3600, BufferTime: 3600, WorkDays: weekdays(), TimezoneOffset: -5 * 3600},
	}
	for _, s := range schedules {
		require.NoError(t, s.Validate())
		for _, logOut := range []int64{0, at(3, 17, 0).Unix()} {
			got := s.Classify(0, logOut)
			assert.Equal(t, payroll.Classification{Status: payroll.Absent}, got)
		}
	}
}

func TestClassify_ScenarioA_WithinBufferIsFullDay(t *testing.T) {
	// GIVEN: 09:00-17:00 with a 10 minute buffer
	s := nineToFive()

	// WHEN: In at 09:05, out at 16:45
	got := s.Classify(at(3, 9, 5).Unix(), at(3, 16, 45).Unix())

	// THEN: Neither late nor early
	assert.False(t, got.IsLate)
	assert.False(t, got.IsEarlyCheckout)
	assert.Equal(t, payroll.FullDay, got.Status)
}

func TestClassify_ScenarioB_LateIsHalfDay(t *testing.T) {
	s := nineToFive()

	got := s.Classify(at(3, 9, 20).Unix(), at(3, 17, 0).Unix())

	assert.True(t, got.IsLate)
	assert.False(t, got.IsEarlyCheckout)
	assert.Equal(t, payroll.HalfDay, got.Status)
}

func TestClassify_EarlyCheckoutIsHalfDay(t *testing.T) {
	s := nineToFive()

	got := s.Classify(at(3, 9, 0).Unix(), at(3, 16, 49).Unix())

	assert.False(t, got.IsLate)
	assert.True(t, got.IsEarlyCheckout)
	assert.Equal(t, payroll.HalfDay, got.Status)
}

func TestClassify_OpenDayIsHalfDay(t *testing.T) {
	s := nineToFive()

	got := s.Classify(at(3, 9, 0).Unix(), 0)

	assert.Equal(t, payroll.HalfDay, got.Status)
	assert.False(t, got.IsEarlyCheckout)
}

func TestClassify_UsesTimezoneOffset(t *testing.T) {
	// GIVEN: UTC+2. 07:05 UTC is 09:05 local.
	s := nineToFive()
	s.TimezoneOffset = 2 * 3600

	got := s.Classify(at(3, 7, 5).Unix(), at(3, 14, 55).Unix())

	assert.Equal(t, payroll.FullDay, got.Status)
	assert.True(t, s.DayOf(at(3, 22, 30)).Equal(d(4)), "22:30 UTC is already the 4th at UTC+2")
}

func TestSchedule_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*payroll.Schedule)
	}{
		{"start after end", func(s *payroll.Schedule) { s.StartTime = 18 * 3600 }},
		{"end past midnight", func(s *payroll.Schedule) { s.EndTime = generic.SecondsPerDay }},
		{"negative start", func(s *payroll.Schedule) { s.StartTime = -1 }},
		{"negative buffer", func(s *payroll.Schedule) { s.BufferTime = -60 }},
		{"no work days", func(s *payroll.Schedule) { s.WorkDays = nil }},
		{"weekday out of range", func(s *payroll.Schedule) { s.WorkDays = []time.Weekday{7} }},
		{"offset out of range", func(s *payroll.Schedule) { s.TimezoneOffset = 15 * 3600 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := nineToFive()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), generic.ErrInvalidSchedule)
		})
	}
}

func TestSchedule_StandardWorkingDays(t *testing.T) {
	s := nineToFive()
	// 5 * 52 / 12
	assert.Equal(t, "21.6667", s.StandardWorkingDays().StringFixed(4))
}

func TestUpdateWorkingHours_DoesNotReclassifyExistingRecords(t *testing.T) {
	f := newFixture(t)
	f.hire("emp-1", "3000")

	// GIVEN: Monday check-in at 08:30 and out at 17:00 under 09:00-17:00
	mon := f.work("emp-1", 3, 8, 30, 17, 0)
	require.Equal(t, payroll.FullDay, mon.Status)

	// WHEN: On Tuesday the employer moves the start to 08:00 with no buffer
	f.clock.Set(at(4, 7, 0))
	next := nineToFive()
	next.StartTime = 8 * 3600
	next.BufferTime = 0
	v, err := f.book.UpdateWorkingHours(f.ctx, owner, next)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Version)
	assert.True(t, v.EffectiveFrom.Equal(d(4)))

	// THEN: Monday keeps version 1
	rec, err := f.book.Attendance("emp-1", d(3))
	require.NoError(t, err)
	assert.Equal(t, payroll.FullDay, rec.Status)
	assert.Equal(t, 1, rec.ScheduleVersion)

	// AND: Tuesday's 08:30 check-in is late under version 2
	tue := f.work("emp-1", 4, 8, 30, 17, 0)
	assert.True(t, tue.IsLate)
	assert.Equal(t, 2, tue.ScheduleVersion)
}

func TestUpdateWorkingHours_RejectsInvalidSchedule(t *testing.T) {
	f := newFixture(t)

	bad := nineToFive()
	bad.WorkDays = nil
	_, err := f.book.UpdateWorkingHours(f.ctx, owner, bad)

	assert.ErrorIs(t, err, generic.ErrInvalidSchedule)
	assert.Equal(t, 1, f.book.WorkingHours().Version)
}
