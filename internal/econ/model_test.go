package econ

import (
	"math"
	"strings"
	"testing"
)

func TestCreditsMicrosRoundTrip(t *testing.T) {
	cases := []struct {
		credits float64
		micros  int64
	}{
		{0, 0},
		{1, 1_000_000},
		{10.55, 10_550_000},
		{0.000001, 1},
		{1234.567890, 1_234_567_890},
	}
	for _, c := range cases {
		if got := CreditsToMicros(c.credits); got != c.micros {
			t.Errorf("CreditsToMicros(%v) = %d, want %d", c.credits, got, c.micros)
		}
		if got := MicrosToCredits(c.micros); math.Abs(got-c.credits) > 1e-9 {
			t.Errorf("MicrosToCredits(%d) = %v, want %v", c.micros, got, c.credits)
		}
	}
}

func TestNotionalMicros(t *testing.T) {
	got, err := notionalMicros(10*MicrosPerCredit, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := int64(5_000) * MicrosPerCredit; got != want {
		t.Fatalf("got %d, want %d", got, want)
	}

	if _, err := notionalMicros(math.MaxInt64, 2); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestPercentChange(t *testing.T) {
	if got := percentChange(10_000_000, 10_550_000); math.Abs(got-5.5) > 1e-9 {
		t.Fatalf("got %v, want 5.5", got)
	}
	if got := percentChange(10_000_000, 9_000_000); math.Abs(got+10) > 1e-9 {
		t.Fatalf("got %v, want -10", got)
	}
	if got := percentChange(0, 5); got != 0 {
		t.Fatalf("zero base should yield 0, got %v", got)
	}
}

func TestValidateEntityName(t *testing.T) {
	if err := validateEntityName("Acme Corp"); err != nil {
		t.Fatalf("valid name rejected: %v", err)
	}
	if err := validateEntityName("   "); err == nil {
		t.Fatal("blank name accepted")
	}
	if err := validateEntityName(strings.Repeat("x", 65)); err == nil {
		t.Fatal("overlong name accepted")
	}
}

func TestClampQuality(t *testing.T) {
	if got := clampQuality(-5); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
	if got := clampQuality(150); got != MaxQuality {
		t.Fatalf("got %d, want %d", got, MaxQuality)
	}
	if got := clampQuality(77); got != 77 {
		t.Fatalf("got %d, want 77", got)
	}
}
