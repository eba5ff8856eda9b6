package econ

import (
	"errors"
	"math"
	"testing"
)

func TestAveragedCostMicros(t *testing.T) {
	// 100 shares at 10.00 plus 100 shares at 20.00 averages to 15.00.
	got, err := averagedCostMicros(100, 10*MicrosPerCredit, 100, 20*MicrosPerCredit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 15 * MicrosPerCredit; got != want {
		t.Fatalf("got %d, want %d", got, want)
	}

	// A fresh position averaged with itself keeps the price.
	got, err = averagedCostMicros(500, 7*MicrosPerCredit, 250, 7*MicrosPerCredit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 7 * MicrosPerCredit; got != want {
		t.Fatalf("got %d, want %d", got, want)
	}

	if _, err := averagedCostMicros(2, math.MaxInt64, 1, MicrosPerCredit); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestReduceHolding(t *testing.T) {
	if _, err := reduceHolding(10, 11); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("oversell: got %v", err)
	}
	next, err := reduceHolding(10, 10)
	if err != nil || next != 0 {
		t.Fatalf("full liquidation: got %d, %v", next, err)
	}
	next, err = reduceHolding(10, 3)
	if err != nil || next != 7 {
		t.Fatalf("partial sell: got %d, %v", next, err)
	}
}
