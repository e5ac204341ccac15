package domain

import (
	"math"
	"testing"
)

func TestClampScore(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{-100, 0},
		{-1, 0},
		{0, 0},
		{5, 5},
		{10, 10},
		{11, 10},
		{1000, 10},
	}
	for _, tc := range cases {
		if got := ClampScore(tc.in); got != tc.want {
			t.Errorf("ClampScore(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
	for n := -20; n <= 20; n++ {
		once := ClampScore(n)
		if once < StyleMin || once > StyleMax {
			t.Fatalf("ClampScore(%d) = %d out of range", n, once)
		}
		if twice := ClampScore(once); twice != once {
			t.Fatalf("ClampScore not idempotent at %d: %d then %d", n, once, twice)
		}
	}
}

func TestCoerceScore(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{7, 7},
		{int64(12), 10},
		{-3, 0},
		{4.4, 4},
		{4.6, 5},
		{13.2, 10},
		{math.NaN(), 5},
		{math.Inf(1), 5},
		{"7", 5},
		{nil, 5},
		{true, 5},
	}
	for _, tc := range cases {
		if got := CoerceScore(tc.in); got != tc.want {
			t.Errorf("CoerceScore(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestStyleClamp(t *testing.T) {
	s := Style{Formality: 42, Pace: -7, Calm: 5}
	c := s.Clamp()
	if c.Formality != 10 || c.Pace != 0 || c.Calm != 5 {
		t.Fatalf("Clamp() = %+v", c)
	}
	if c.Clamp() != c {
		t.Fatal("Clamp not idempotent")
	}
}

func TestNormalizeHexColor(t *testing.T) {
	valid := map[string]string{
		"#aabbcc":   "#aabbcc",
		"AABBCC":    "#aabbcc",
		"#AbC":      "#abc",
		"abc":       "#abc",
		" #123456 ": "#123456",
	}
	for in, want := range valid {
		got := NormalizeHexColor(in)
		if got == nil || *got != want {
			t.Errorf("NormalizeHexColor(%q) = %v, want %q", in, got, want)
		}
		again := NormalizeHexColor(*got)
		if again == nil || *again != *got {
			t.Errorf("NormalizeHexColor not idempotent for %q", in)
		}
	}
	for _, in := range []string{"", "#", "xyz", "#12", "#12345", "#1234567", "#ggg", "nope"} {
		if got := NormalizeHexColor(in); got != nil {
			t.Errorf("NormalizeHexColor(%q) = %q, want nil", in, *got)
		}
	}
}

func TestValidConnectionStatus(t *testing.T) {
	for _, s := range ConnectionStatuses {
		if !ValidConnectionStatus(s) {
			t.Errorf("status %q should be valid", s)
		}
	}
	if ValidConnectionStatus("offline") {
		t.Error("unknown status accepted")
	}
	if ConnectionStatusDefault != "needs_setup" {
		t.Errorf("unexpected default status %q", ConnectionStatusDefault)
	}
}
