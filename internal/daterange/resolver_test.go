package daterange

import (
	"errors"
	"testing"
	"time"
)

func TestResolveSelectors(t *testing.T) {
	today := time.Date(2024, 3, 15, 16, 45, 0, 0, time.Local)
	cases := []struct {
		selector Selector
		from, to string
	}{
		{Today, "2024-03-15", "2024-03-15"},
		{Yesterday, "2024-03-14", "2024-03-14"},
		{Last7Days, "2024-03-08", "2024-03-15"},
		{Last30Days, "2024-02-14", "2024-03-15"},
		{ThisMonth, "2024-03-01", "2024-03-15"},
		{LastMonth, "2024-02-01", "2024-02-29"},
		{ThisQuarter, "2024-01-01", "2024-03-15"},
		{Selector("fortnight"), "2024-03-01", "2024-03-15"},
	}
	for _, tc := range cases {
		got := Resolve(tc.selector, "", "", today)
		if got.From != tc.from || got.To != tc.to {
			t.Fatalf("%s: expected %s..%s got %s..%s", tc.selector, tc.from, tc.to, got.From, got.To)
		}
		if got.Label == "" {
			t.Fatalf("%s: expected label", tc.selector)
		}
		if got.From > got.To {
			t.Fatalf("%s: from after to", tc.selector)
		}
	}
}

func TestResolveLastMonthAcrossYear(t *testing.T) {
	got := Resolve(LastMonth, "", "", time.Date(2025, 1, 10, 0, 0, 0, 0, time.Local))
	if got.From != "2024-12-01" || got.To != "2024-12-31" {
		t.Fatalf("unexpected range %+v", got)
	}
}

func TestResolveQuarterStart(t *testing.T) {
	got := Resolve(ThisQuarter, "", "", time.Date(2024, 11, 2, 0, 0, 0, 0, time.Local))
	if got.From != "2024-10-01" {
		t.Fatalf("expected Q4 start got %s", got.From)
	}
}

func TestResolveCustom(t *testing.T) {
	today := time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local)

	got := Resolve(Custom, "2024-01-05", "2024-01-20", today)
	if got.From != "2024-01-05" || got.To != "2024-01-20" {
		t.Fatalf("unexpected custom range %+v", got)
	}
	if got.Label != "2024-01-05 to 2024-01-20" {
		t.Fatalf("unexpected label %q", got.Label)
	}

	got = Resolve(Custom, "", "", today)
	if got.From != "2024-03-15" || got.To != "2024-03-15" {
		t.Fatalf("expected today defaults got %+v", got)
	}

	got = Resolve(Custom, "not-a-date", "2024-03-10", today)
	if got.From != "2024-03-10" || got.To != "2024-03-15" {
		t.Fatalf("expected fallback and swap got %+v", got)
	}
}

func TestParseSelector(t *testing.T) {
	if ParseSelector(" Last_7_Days ") != Last7Days {
		t.Fatalf("expected case-insensitive match")
	}
	if ParseSelector("quarterly") != ThisMonth {
		t.Fatalf("expected fallback to this_month")
	}
}

func TestPreviousRange(t *testing.T) {
	prev := PreviousRange("2024-03-08", "2024-03-15")
	if prev.From != "2024-03-01" || prev.To != "2024-03-07" {
		t.Fatalf("unexpected previous range %+v", prev)
	}

	prev = PreviousRange("2024-03-15", "2024-03-15")
	if prev.From != "2024-03-14" || prev.To != "2024-03-14" {
		t.Fatalf("single day should compare with the day before, got %+v", prev)
	}

	prev = PreviousRange("2024-03-01", "2024-03-31")
	if prev.To != "2024-02-29" || prev.From != "2024-01-31" {
		t.Fatalf("unexpected month comparison %+v", prev)
	}
}

func TestPreviousRangeEndsBeforeFrom(t *testing.T) {
	today := time.Date(2024, 7, 19, 0, 0, 0, 0, time.Local)
	for _, sel := range []Selector{Today, Yesterday, Last7Days, Last30Days, ThisMonth, LastMonth, ThisQuarter} {
		cur := Resolve(sel, "", "", today)
		prev := PreviousRange(cur.From, cur.To)
		from, _ := Parse(cur.From)
		to, _ := Parse(cur.To)
		pFrom, _ := Parse(prev.From)
		pTo, _ := Parse(prev.To)
		if !pTo.Equal(from.AddDate(0, 0, -1)) {
			t.Fatalf("%s: previous must end the day before %s, got %s", sel, cur.From, prev.To)
		}
		span := int(to.Sub(from).Hours()/24 + 0.5)
		if span < 1 {
			span = 1
		}
		if !pFrom.Equal(from.AddDate(0, 0, -span)) {
			t.Fatalf("%s: unexpected previous start %s", sel, prev.From)
		}
		if prev.From > prev.To {
			t.Fatalf("%s: previous range inverted %+v", sel, prev)
		}
	}
}

func TestPreviousRangeUnparseable(t *testing.T) {
	prev := PreviousRange("2024-13-01", "2024-03-15")
	if prev.From != "2024-13-01" || prev.To != "2024-03-15" {
		t.Fatalf("expected input echoed back, got %+v", prev)
	}
}

func TestParseReturnsRangeParseError(t *testing.T) {
	_, err := Parse("15/03/2024")
	var perr *RangeParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected RangeParseError got %v", err)
	}
	if perr.Value != "15/03/2024" {
		t.Fatalf("unexpected value %q", perr.Value)
	}
}

func TestDays(t *testing.T) {
	if d := (DateRange{From: "2024-03-08", To: "2024-03-15"}).Days(); d != 8 {
		t.Fatalf("expected 8 days got %d", d)
	}
	if d := (DateRange{From: "bad", To: "2024-03-15"}).Days(); d != 0 {
		t.Fatalf("expected 0 for bad range got %d", d)
	}
}
