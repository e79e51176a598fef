package crm

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) Date { return NewDate(y, m, d) }

func TestDurationMonths_WholeMonths(t *testing.T) {
	// GIVEN: a span of exactly two calendar years, same day of month
	// WHEN: computing the month duration
	// THEN: 24 months, no partial-month bump

	got := DurationMonths(date(2024, time.January, 1), date(2026, time.January, 1))
	if got != 24 {
		t.Errorf("expected 24 months, got %d", got)
	}
}

func TestDurationMonths_PartialFinalMonthRoundsUp(t *testing.T) {
	// GIVEN: the end day falls later in its month than the start day
	// WHEN: computing the month duration
	// THEN: one extra month is added

	got := DurationMonths(date(2024, time.June, 15), date(2026, time.June, 20))
	if got != 25 {
		t.Errorf("expected 25 months (24 + partial), got %d", got)
	}

	// End day equal to start day: no bump.
	got = DurationMonths(date(2024, time.June, 15), date(2026, time.June, 15))
	if got != 24 {
		t.Errorf("expected 24 months, got %d", got)
	}

	// End day earlier than start day: no bump.
	got = DurationMonths(date(2024, time.June, 15), date(2026, time.June, 10))
	if got != 24 {
		t.Errorf("expected 24 months, got %d", got)
	}
}

func TestDurationMonths_InvertedSpanGoesNegative(t *testing.T) {
	// Inverted inputs are not validated here; callers guard on <= 0.
	got := DurationMonths(date(2025, time.June, 1), date(2025, time.January, 1))
	if got >= 0 {
		t.Errorf("expected negative duration for inverted span, got %d", got)
	}
}

func TestContractYears_BucketingBoundaries(t *testing.T) {
	// The rule is asymmetric: exact thresholds for the first three years,
	// exact-multiple then ceiling beyond.
	cases := []struct {
		months int
		want   int
	}{
		{1, 1},
		{12, 1},
		{13, 2},
		{24, 2},
		{25, 3},
		{36, 3},
		{37, 4},
		{48, 4},
		{49, 5},
		{60, 5},
		{61, 6},
	}
	for _, c := range cases {
		if got := ContractYears(c.months); got != c.want {
			t.Errorf("ContractYears(%d) = %d, want %d", c.months, got, c.want)
		}
	}
}

func TestDaysBetween(t *testing.T) {
	if got := DaysBetween(date(2025, time.March, 1), date(2025, time.March, 31)); got != 30 {
		t.Errorf("expected 30 days, got %d", got)
	}
	if got := DaysBetween(date(2025, time.March, 31), date(2025, time.March, 1)); got != -30 {
		t.Errorf("expected -30 days, got %d", got)
	}
	// Across a leap day.
	if got := DaysBetween(date(2024, time.February, 28), date(2024, time.March, 1)); got != 2 {
		t.Errorf("expected 2 days across leap day, got %d", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-08-30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Year() != 2025 || d.Month() != time.August || d.Day() != 30 {
		t.Errorf("parsed wrong date: %s", d)
	}

	if _, err := ParseDate("30/08/2025"); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestDateJSONRoundTrip(t *testing.T) {
	d := date(2026, time.February, 28)
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"2026-02-28"` {
		t.Errorf("unexpected JSON: %s", b)
	}
	var back Date
	if err := back.UnmarshalJSON(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(d) {
		t.Errorf("round trip mismatch: %s != %s", back, d)
	}
}
