package services

import (
	"testing"
	"time"
)

func TestStartOfMonth(t *testing.T) {
	loc := time.UTC

	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2026, 8, 29, 15, 4, 5, 0, loc), time.Date(2026, 8, 1, 0, 0, 0, 0, loc)},
		{time.Date(2026, 1, 1, 0, 0, 0, 0, loc), time.Date(2026, 1, 1, 0, 0, 0, 0, loc)},
		{time.Date(2026, 12, 31, 23, 59, 59, 0, loc), time.Date(2026, 12, 1, 0, 0, 0, 0, loc)},
	}

	for _, c := range cases {
		if got := StartOfMonth(c.in); !got.Equal(c.want) {
			t.Errorf("StartOfMonth(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestStartOfMonthInclusiveBoundary(t *testing.T) {
	// A completion at exactly midnight on the 1st belongs to the new month:
	// the quota query is completed_at >= StartOfMonth.
	boundary := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if start := StartOfMonth(boundary); boundary.Before(start) {
		t.Error("month boundary instant excluded from its own month")
	}
}

func TestQuotaExceeded(t *testing.T) {
	cases := []struct {
		isPremium bool
		count     int64
		want      bool
	}{
		{false, 0, false},
		{false, 1, false},
		{false, 2, true},
		{false, 5, true},
		{true, 0, false},
		{true, 2, false},
		{true, 100, false},
	}

	for _, c := range cases {
		if got := QuotaExceeded(c.isPremium, c.count); got != c.want {
			t.Errorf("QuotaExceeded(premium=%v, count=%d) = %v, want %v", c.isPremium, c.count, got, c.want)
		}
	}
}
