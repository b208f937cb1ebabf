package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - A calendar day
// =============================================================================

// SecondsPerDay is the length of a calendar day in the journal's arithmetic.
const SecondsPerDay = 86400

// TimePoint is a calendar day, always stored as midnight UTC. Local days
// are produced by DayOf, which applies a timezone offset before truncating.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf returns the local calendar day of an epoch instant for a timezone
// offset in seconds east of UTC.
func DayOf(epoch int64, offset int64) TimePoint {
	return FromIndex(floorDiv(epoch+offset, SecondsPerDay))
}

// SecondOfDay returns the local seconds-of-day of an epoch instant.
func SecondOfDay(epoch int64, offset int64) int64 {
	return floorMod(epoch+offset, SecondsPerDay)
}

// FromIndex converts a day count since 1970-01-01 back into a TimePoint.
func FromIndex(days int64) TimePoint {
	return TimePoint{Time: time.Unix(days*SecondsPerDay, 0).UTC()}
}

// ParseTimePoint parses a YYYY-MM-DD date.
func ParseTimePoint(s string) (TimePoint, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("%w: date %q: %v", ErrInvalidTime, s, err)
	}
	return TimePoint{Time: t}, nil
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Index() < other.Index() }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Index() == other.Index() }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Index() > other.Index() }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Index() <= other.Index() }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.Index() >= other.Index() }

// Index is the number of days since 1970-01-01. Used as a map key.
func (tp TimePoint) Index() int64 {
	return floorDiv(tp.Time.Unix(), SecondsPerDay)
}

// Unix returns the day-aligned epoch seconds of the day's start.
func (tp TimePoint) Unix() int64 { return tp.Index() * SecondsPerDay }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return FromIndex(tp.Index() + int64(n)) }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	if tp.IsZero() {
		return ""
	}
	return tp.Time.Format(time.DateOnly)
}

func (tp TimePoint) MarshalText() ([]byte, error) {
	return []byte(tp.String()), nil
}

func (tp *TimePoint) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*tp = TimePoint{}
		return nil
	}
	parsed, err := ParseTimePoint(string(b))
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DaysBetween returns to - from in days.
func DaysBetween(from, to TimePoint) int { return int(to.Index() - from.Index()) }
func StartOfYear(year int) TimePoint     { return NewTimePoint(year, time.January, 1) }
func EndOfYear(year int) TimePoint       { return NewTimePoint(year, time.December, 31) }

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}
