package dataset

import (
	"testing"
	"time"
)

func TestNewWindow(t *testing.T) {
	today := time.Date(2026, 2, 10, 11, 0, 0, 0, time.UTC)
	w := NewWindow(today, 7)

	if got := w.Start.Format(DateLayout); got != "2026-02-02" {
		t.Errorf("expected start 2026-02-02, got %s", got)
	}
	if got := w.End.Format(DateLayout); got != "2026-02-09" {
		t.Errorf("expected end 2026-02-09, got %s", got)
	}
	if w.String() != "2026-02-02..2026-02-09" {
		t.Errorf("unexpected window string %q", w.String())
	}
}

func TestWindowContains(t *testing.T) {
	w := NewWindow(time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), 7)

	cases := map[string]bool{
		"2026-02-01": false,
		"2026-02-02": true,
		"2026-02-09": true,
		"2026-02-10": false,
	}
	for s, want := range cases {
		d, err := ParseDay(s)
		if err != nil {
			t.Fatalf("ParseDay(%s): %v", s, err)
		}
		if got := w.Contains(d); got != want {
			t.Errorf("Contains(%s) = %v, want %v", s, got, want)
		}
	}
}

func TestDayKeepsCalendarDate(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	d := Day(time.Date(2026, 3, 1, 1, 30, 0, 0, loc))
	if d.Format(DateLayout) != "2026-03-01" {
		t.Errorf("expected 2026-03-01, got %s", d.Format(DateLayout))
	}
	if d.Location() != time.UTC {
		t.Errorf("expected UTC location, got %s", d.Location())
	}
}

func TestFormatting(t *testing.T) {
	start := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)

	if got := DisplayDay(end); got != "04.02" {
		t.Errorf("expected 04.02, got %s", got)
	}
	if got := FileToken(start, end); got != "28.01.26-04.02.26" {
		t.Errorf("expected 28.01.26-04.02.26, got %s", got)
	}
}

func TestKeyLess(t *testing.T) {
	d1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	if !(Key{Date: d1, Platform: "iOS"}).Less(Key{Date: d2, Platform: "Android"}) {
		t.Error("earlier date should sort first")
	}
	if !(Key{Date: d1, Platform: "Android", Source: "z"}).Less(Key{Date: d1, Platform: "iOS", Source: "a"}) {
		t.Error("platform should break date ties")
	}
	if !(Key{Date: d1, Platform: "iOS", Source: "ads"}).Less(Key{Date: d1, Platform: "iOS", Source: "organic"}) {
		t.Error("source should break platform ties")
	}
}
