package recurrence

import (
	"testing"
	"time"
)

func at(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func mustParse(t *testing.T, s string) Rule {
	t.Helper()
	r, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return r
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name      string
		rule      string
		anchor    time.Time
		at        time.Time
		wantStart time.Time
		wantNext  time.Time
		wantOK    bool
	}{
		{
			name:   "daily mid-day",
			rule:   "FREQ=DAILY",
			anchor: at(2026, 2, 1, 9), at: at(2026, 2, 5, 12),
			wantStart: at(2026, 2, 5, 9), wantNext: at(2026, 2, 6, 9), wantOK: true,
		},
		{
			name:   "daily before the hour counts the day",
			rule:   "FREQ=DAILY",
			anchor: at(2026, 2, 1, 9), at: at(2026, 2, 5, 7),
			wantStart: at(2026, 2, 5, 9), wantNext: at(2026, 2, 6, 9), wantOK: true,
		},
		{
			name:   "before anchor",
			rule:   "FREQ=DAILY",
			anchor: at(2026, 2, 1, 9), at: at(2026, 1, 31, 12),
			wantOK: false,
		},
		{
			name:   "weekly mid-week",
			rule:   "FREQ=WEEKLY",
			anchor: at(2026, 1, 5, 9), at: at(2026, 2, 4, 12),
			wantStart: at(2026, 2, 2, 9), wantNext: at(2026, 2, 9, 9), wantOK: true,
		},
		{
			name:   "biweekly off week",
			rule:   "FREQ=WEEKLY;INTERVAL=2",
			anchor: at(2026, 1, 5, 9), at: at(2026, 1, 12, 12),
			wantStart: at(2026, 1, 5, 9), wantNext: at(2026, 1, 19, 9), wantOK: true,
		},
		{
			name:   "by day",
			rule:   "FREQ=WEEKLY;BYDAY=MO,WE,FR",
			anchor: at(2026, 2, 2, 8), at: at(2026, 2, 5, 12),
			wantStart: at(2026, 2, 4, 8), wantNext: at(2026, 2, 6, 8), wantOK: true,
		},
		{
			name:   "by day with sunday",
			rule:   "FREQ=WEEKLY;BYDAY=SU,WE",
			anchor: at(2026, 2, 2, 8), at: at(2026, 2, 8, 12),
			wantStart: at(2026, 2, 8, 8), wantNext: at(2026, 2, 11, 8), wantOK: true,
		},
		{
			name:   "count exhausted",
			rule:   "FREQ=DAILY;COUNT=3",
			anchor: at(2026, 2, 1, 9), at: at(2026, 2, 10, 12),
			wantStart: at(2026, 2, 3, 9), wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, next, ok := Window(mustParse(t, tt.rule), tt.anchor, tt.at)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !start.Equal(tt.wantStart) {
				t.Errorf("start = %v, want %v", start, tt.wantStart)
			}
			if !next.Equal(tt.wantNext) {
				t.Errorf("next = %v, want %v", next, tt.wantNext)
			}
		})
	}
}

func TestOccurrencesMonthly31stSkipsShortMonths(t *testing.T) {
	rule := mustParse(t, "FREQ=MONTHLY")
	occs := Occurrences(rule, at(2026, 1, 31, 9), at(2026, 1, 1, 0), at(2026, 6, 1, 0))

	want := []time.Time{at(2026, 1, 31, 9), at(2026, 3, 31, 9), at(2026, 5, 31, 9)}
	if len(occs) != len(want) {
		t.Fatalf("got %d occurrences, want %d: %v", len(occs), len(want), occs)
	}
	for i := range want {
		if !occs[i].Equal(want[i]) {
			t.Errorf("occs[%d] = %v, want %v", i, occs[i], want[i])
		}
	}
}

func TestOccurrencesLeapDay(t *testing.T) {
	rule := mustParse(t, "FREQ=YEARLY")
	occs := Occurrences(rule, at(2024, 2, 29, 9), at(2024, 1, 1, 0), at(2033, 1, 1, 0))

	want := []time.Time{at(2024, 2, 29, 9), at(2028, 2, 29, 9), at(2032, 2, 29, 9)}
	if len(occs) != len(want) {
		t.Fatalf("got %d occurrences, want %d: %v", len(occs), len(want), occs)
	}
	for i := range want {
		if !occs[i].Equal(want[i]) {
			t.Errorf("occs[%d] = %v, want %v", i, occs[i], want[i])
		}
	}
}

func TestOccurrencesUntil(t *testing.T) {
	rule := mustParse(t, "FREQ=DAILY;UNTIL=20260205T000000Z")
	occs := Occurrences(rule, at(2026, 2, 1, 0), at(2026, 1, 1, 0), at(2026, 3, 1, 0))
	if len(occs) != 5 {
		t.Errorf("got %d occurrences, want 5 (Feb 1-5 inclusive)", len(occs))
	}
}

func TestStartOfDay(t *testing.T) {
	got := StartOfDay(time.Date(2026, 2, 5, 17, 42, 13, 99, time.UTC))
	want := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("StartOfDay = %v, want %v", got, want)
	}
}
