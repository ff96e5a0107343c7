package util

import (
	"log/slog"
	"testing"
	"time"
)

func TestBoolValue(t *testing.T) {
	if got := BoolValue(nil, true); got != true {
		t.Fatalf("BoolValue(nil, true) = %v, want true", got)
	}
	if got := BoolValue(nil, false); got != false {
		t.Fatalf("BoolValue(nil, false) = %v, want false", got)
	}
	val := true
	if got := BoolValue(&val, false); got != true {
		t.Fatalf("BoolValue(true, false) = %v, want true", got)
	}
	val = false
	if got := BoolValue(&val, true); got != false {
		t.Fatalf("BoolValue(false, true) = %v, want false", got)
	}
}

func TestClampInt(t *testing.T) {
	cases := []struct{ v, lo, hi, want int }{
		{0, 1, 8, 1},
		{4, 1, 8, 4},
		{16, 1, 8, 8},
		{-3, 1, 8, 1},
	}
	for _, tc := range cases {
		if got := ClampInt(tc.v, tc.lo, tc.hi); got != tc.want {
			t.Fatalf("ClampInt(%d, %d, %d) = %d, want %d", tc.v, tc.lo, tc.hi, got, tc.want)
		}
	}
}

func TestFormatBitsPerSecond(t *testing.T) {
	cases := map[float64]string{
		0:          "0.00 bps",
		320e6:      "320 Mbps",
		1.5e9:      "1.50 Gbps",
		12_345_678: "12.3 Mbps",
	}
	for in, want := range cases {
		if got := FormatBitsPerSecond(in); got != want {
			t.Fatalf("FormatBitsPerSecond(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestMillis(t *testing.T) {
	if got := Millis(1500 * time.Microsecond); got != 1.5 {
		t.Fatalf("Millis(1.5ms) = %v, want 1.5", got)
	}
}

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("DEBUG"); got != slog.LevelDebug {
		t.Fatalf("ParseLevel(DEBUG) = %v, want debug", got)
	}
	if got := ParseLevel("bogus"); got != slog.LevelInfo {
		t.Fatalf("ParseLevel(bogus) = %v, want info", got)
	}
}
