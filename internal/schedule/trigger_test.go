package schedule_test

import (
	"testing"
	"time"

	"github.com/siyinging/social-publisher/internal/schedule"
)

func mustParse(t *testing.T, spec string) schedule.Trigger {
	t.Helper()
	trig, err := schedule.ParseSpec(spec)
	if err != nil {
		t.Fatalf("ParseSpec(%q): %v", spec, err)
	}
	return trig
}

func TestParseSpec_DailyTimeOfDay(t *testing.T) {
	trig := mustParse(t, "08:00")

	now := time.Date(2025, 6, 2, 6, 30, 0, 0, time.UTC)
	next := trig.Next(now)
	want := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", now, next, want)
	}
}

func TestParseSpec_DailyAtExactFireInstantAdvancesToNextDay(t *testing.T) {
	trig := mustParse(t, "08:00")

	now := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	next := trig.Next(now)
	want := time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next at exactly 08:00:00 = %v, want next day %v", next, want)
	}
}

func TestParseSpec_WeekdayRestricted(t *testing.T) {
	trig := mustParse(t, "sun 20:00")

	// Monday 09:00 -> the upcoming Sunday 20:00.
	monday := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	if monday.Weekday() != time.Monday {
		t.Fatalf("fixture is not a Monday: %v", monday.Weekday())
	}

	next := trig.Next(monday)
	want := time.Date(2025, 6, 8, 20, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next(Monday 09:00) = %v, want Sunday %v", next, want)
	}
	if next.Weekday() != time.Sunday {
		t.Errorf("next fire weekday = %v, want Sunday", next.Weekday())
	}
}

func TestParseSpec_Interval(t *testing.T) {
	trig := mustParse(t, "every 6h")

	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	next := trig.Next(now)
	if got := next.Sub(now); got != 6*time.Hour {
		t.Errorf("interval = %v, want 6h", got)
	}
}

func TestParseSpec_RawCronExpression(t *testing.T) {
	trig := mustParse(t, "30 6 * * *")

	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	next := trig.Next(now)
	want := time.Date(2025, 6, 2, 6, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestParseSpec_Invalid(t *testing.T) {
	testCases := []string{
		"",
		"25:00",
		"8am",
		"someday 08:00",
		"every ",
		"every 100ms",
		"not a spec at all",
	}

	for _, spec := range testCases {
		t.Run(spec, func(t *testing.T) {
			if _, err := schedule.ParseSpec(spec); err == nil {
				t.Errorf("ParseSpec(%q) succeeded, want error", spec)
			}
		})
	}
}
