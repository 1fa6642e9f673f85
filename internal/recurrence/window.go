package recurrence

import "time"

// maxOccurrences bounds iteration so a malformed rule cannot loop forever.
const maxOccurrences = 10000

// Occurrences returns the occurrence instants of rule anchored at anchor that
// fall within [from, to).
func Occurrences(rule Rule, anchor, from, to time.Time) []time.Time {
	var out []time.Time
	walk(rule, anchor, func(occ time.Time) bool {
		if !occ.Before(to) {
			return false
		}
		if !occ.Before(from) {
			out = append(out, occ)
		}
		return true
	})
	return out
}

// Window locates the occurrence in effect at the given instant: the latest
// occurrence whose calendar day has begun by at. next is the occurrence after
// it, zero when the rule is exhausted. ok is false when no occurrence has
// started yet.
func Window(rule Rule, anchor, at time.Time) (start, next time.Time, ok bool) {
	dayEnd := StartOfDay(at).AddDate(0, 0, 1)
	walk(rule, anchor, func(occ time.Time) bool {
		if !occ.Before(dayEnd) {
			if ok {
				next = occ
			}
			return false
		}
		start, ok = occ, true
		return true
	})
	return start, next, ok
}

// walk feeds successive occurrences to fn until fn returns false or the rule
// runs out (COUNT, UNTIL, or the iteration bound).
func walk(rule Rule, anchor time.Time, fn func(time.Time) bool) {
	it := newIterator(rule, anchor)
	for n := 1; n <= maxOccurrences; n++ {
		occ := it.advance()
		if occ.IsZero() {
			return
		}
		if rule.Until != nil && occ.After(*rule.Until) {
			return
		}
		if rule.Count > 0 && n > rule.Count {
			return
		}
		if !fn(occ) {
			return
		}
	}
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

type iterator struct {
	rule       Rule
	baseStart  time.Time
	current    time.Time
	weekDayIdx int
	started    bool
}

func newIterator(rule Rule, start time.Time) *iterator {
	return &iterator{
		rule:      rule,
		baseStart: start,
		current:   start,
	}
}

func (it *iterator) advance() time.Time {
	switch it.rule.Freq {
	case Daily:
		return it.step(0, 0, it.rule.Interval)
	case Weekly:
		if len(it.rule.ByDay) > 0 {
			return it.advanceWeeklyByDay()
		}
		return it.step(0, 0, 7*it.rule.Interval)
	case Monthly:
		return it.advanceMonthly()
	case Yearly:
		return it.advanceYearly()
	}
	return time.Time{}
}

func (it *iterator) step(years, months, days int) time.Time {
	if !it.started {
		it.started = true
		return it.current
	}
	it.current = it.current.AddDate(years, months, days)
	return it.current
}

func (it *iterator) advanceWeeklyByDay() time.Time {
	if !it.started {
		it.started = true
		it.current = weekStart(it.baseStart)
		it.weekDayIdx = 0
		return it.findNextByDay()
	}

	it.weekDayIdx++
	if it.weekDayIdx >= len(it.rule.ByDay) {
		it.current = weekStart(it.current.AddDate(0, 0, 7*it.rule.Interval))
		it.weekDayIdx = 0
	}
	return it.findNextByDay()
}

func (it *iterator) findNextByDay() time.Time {
	for guard := 0; guard < maxOccurrences; guard++ {
		for it.weekDayIdx < len(it.rule.ByDay) {
			offset := mondayIndex(it.rule.ByDay[it.weekDayIdx])
			candidate := time.Date(
				it.current.Year(), it.current.Month(), it.current.Day()+offset,
				it.baseStart.Hour(), it.baseStart.Minute(), it.baseStart.Second(), 0,
				it.baseStart.Location(),
			)
			if !candidate.Before(it.baseStart) {
				return candidate
			}
			it.weekDayIdx++
		}
		it.current = weekStart(it.current.AddDate(0, 0, 7*it.rule.Interval))
		it.weekDayIdx = 0
	}
	return time.Time{}
}

func weekStart(t time.Time) time.Time {
	return StartOfDay(t.AddDate(0, 0, -mondayIndex(t.Weekday())))
}

func (it *iterator) advanceMonthly() time.Time {
	if !it.started {
		it.started = true
		return it.current
	}

	day := it.rule.ByMonthDay
	if day == 0 {
		day = it.baseStart.Day()
	}

	// Months too short for the target day are skipped, not clamped.
	year, month := it.current.Year(), it.current.Month()
	for guard := 0; guard < 48; guard++ {
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, it.rule.Interval, 0)
		year, month = first.Year(), first.Month()
		if day <= daysInMonth(year, month) {
			it.current = time.Date(
				year, month, day,
				it.baseStart.Hour(), it.baseStart.Minute(), it.baseStart.Second(), 0,
				it.baseStart.Location(),
			)
			return it.current
		}
	}
	return time.Time{}
}

func (it *iterator) advanceYearly() time.Time {
	if !it.started {
		it.started = true
		return it.current
	}

	// Feb 29 anchors only land on leap years.
	year := it.current.Year()
	for guard := 0; guard < 400; guard++ {
		year += it.rule.Interval
		candidate := time.Date(
			year, it.baseStart.Month(), it.baseStart.Day(),
			it.baseStart.Hour(), it.baseStart.Minute(), it.baseStart.Second(), 0,
			it.baseStart.Location(),
		)
		if candidate.Month() == it.baseStart.Month() {
			it.current = candidate
			return it.current
		}
	}
	return time.Time{}
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
