package generic

import "iter"

// =============================================================================
// PERIOD - An inclusive range of days
// =============================================================================

// Period is the inclusive day range [Start, End]. Attendance queries, leave
// requests and salary windows are all expressed as periods.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Validate rejects a period whose end is before its start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidRange
	}
	return nil
}

// Contains returns true if the day is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Len is the number of days in the period, 0 for an inverted period.
func (p Period) Len() int {
	n := DaysBetween(p.Start, p.End) + 1
	if n < 0 {
		return 0
	}
	return n
}

// Each yields every day in the period in order. The sequence can be
// iterated any number of times.
func (p Period) Each() iter.Seq[TimePoint] {
	return func(yield func(TimePoint) bool) {
		for i := p.Start.Index(); i <= p.End.Index(); i++ {
			if !yield(FromIndex(i)) {
				return
			}
		}
	}
}

// Overlaps returns true if the two periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return !p.End.Before(other.Start) && !other.End.Before(p.Start)
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
