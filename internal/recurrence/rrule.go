// Package recurrence expands the RRULE subset chores are scheduled with.
package recurrence

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Freq int

const (
	Daily Freq = iota
	Weekly
	Monthly
	Yearly
)

var freqs = [...]string{Daily: "DAILY", Weekly: "WEEKLY", Monthly: "MONTHLY", Yearly: "YEARLY"}

var weekdays = [...]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

const untilLayout = "20060102T150405Z"

type Rule struct {
	Freq     Freq
	Interval int // default 1
	// ByDay lists WEEKLY days, Monday first. Empty means the anchor's weekday.
	ByDay []time.Weekday
	// ByMonthDay is the MONTHLY day of month; 0 means the anchor's day.
	ByMonthDay int
	Count      int        // 0 = unlimited
	Until      *time.Time // nil = no limit
}

// Parse reads an RRULE value such as "FREQ=WEEKLY;BYDAY=MO,WE;INTERVAL=2".
// A leading "RRULE:" is accepted and keys are case-insensitive.
func Parse(rule string) (Rule, error) {
	rule = strings.TrimSpace(rule)
	if len(rule) >= 6 && strings.EqualFold(rule[:6], "RRULE:") {
		rule = rule[6:]
	}
	if rule == "" {
		return Rule{}, fmt.Errorf("empty rule")
	}

	r := Rule{Interval: 1}
	seen := make(map[string]bool)
	for _, part := range strings.Split(rule, ";") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || val == "" {
			return Rule{}, fmt.Errorf("invalid rule part: %q", part)
		}
		key = strings.ToUpper(key)
		if seen[key] {
			return Rule{}, fmt.Errorf("duplicate rule key: %q", key)
		}
		seen[key] = true

		if err := r.set(key, strings.ToUpper(val)); err != nil {
			return Rule{}, err
		}
	}

	switch {
	case !seen["FREQ"]:
		return Rule{}, fmt.Errorf("FREQ is required")
	case r.Count > 0 && r.Until != nil:
		return Rule{}, fmt.Errorf("COUNT and UNTIL are mutually exclusive")
	case len(r.ByDay) > 0 && r.Freq != Weekly:
		return Rule{}, fmt.Errorf("BYDAY requires FREQ=WEEKLY")
	case r.ByMonthDay > 0 && r.Freq != Monthly:
		return Rule{}, fmt.Errorf("BYMONTHDAY requires FREQ=MONTHLY")
	}
	return r, nil
}

func (r *Rule) set(key, val string) error {
	switch key {
	case "FREQ":
		i := slices.Index(freqs[:], val)
		if i < 0 {
			return fmt.Errorf("unknown frequency: %q", val)
		}
		r.Freq = Freq(i)

	case "INTERVAL":
		n, err := positive(val, 0)
		if err != nil {
			return fmt.Errorf("invalid interval: %q", val)
		}
		r.Interval = n

	case "BYDAY":
		for _, d := range strings.Split(val, ",") {
			i := slices.Index(weekdays[:], strings.TrimSpace(d))
			if i < 0 {
				return fmt.Errorf("unknown day: %q", d)
			}
			if !slices.Contains(r.ByDay, time.Weekday(i)) {
				r.ByDay = append(r.ByDay, time.Weekday(i))
			}
		}
		// weekly expansion walks the week from Monday
		slices.SortFunc(r.ByDay, func(a, b time.Weekday) int {
			return mondayIndex(a) - mondayIndex(b)
		})

	case "BYMONTHDAY":
		n, err := positive(val, 31)
		if err != nil {
			return fmt.Errorf("invalid BYMONTHDAY: %q", val)
		}
		r.ByMonthDay = n

	case "COUNT":
		n, err := positive(val, 0)
		if err != nil {
			return fmt.Errorf("invalid count: %q", val)
		}
		r.Count = n

	case "UNTIL":
		t, err := time.Parse(untilLayout, val)
		if err != nil {
			if t, err = time.Parse("20060102", val); err != nil {
				return fmt.Errorf("invalid UNTIL: %q", val)
			}
		}
		r.Until = &t

	default:
		return fmt.Errorf("unsupported rule key: %q", key)
	}
	return nil
}

// positive parses val as an integer in [1, limit]; limit 0 means unbounded.
func positive(val string, limit int) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	if n < 1 || (limit > 0 && n > limit) {
		return 0, fmt.Errorf("out of range")
	}
	return n, nil
}

func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// String serializes the rule back to an RRULE value.
func (r Rule) String() string {
	var b strings.Builder
	b.WriteString("FREQ=" + freqs[r.Freq])
	if r.Interval > 1 {
		fmt.Fprintf(&b, ";INTERVAL=%d", r.Interval)
	}
	if len(r.ByDay) > 0 {
		days := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			days[i] = weekdays[d]
		}
		b.WriteString(";BYDAY=" + strings.Join(days, ","))
	}
	if r.ByMonthDay > 0 {
		fmt.Fprintf(&b, ";BYMONTHDAY=%d", r.ByMonthDay)
	}
	if r.Count > 0 {
		fmt.Fprintf(&b, ";COUNT=%d", r.Count)
	}
	if r.Until != nil {
		b.WriteString(";UNTIL=" + r.Until.UTC().Format(untilLayout))
	}
	return b.String()
}
