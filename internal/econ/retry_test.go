package econ

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Microsecond,
		MaxDelay:    time.Millisecond,
		Retryable:   func(error) bool { return true },
	}
}

func TestRetrySucceedsOnLaterAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryExhaustionWrapsConflict(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return errors.New("still conflicting")
	})
	if !errors.Is(err, ErrTxConflict) {
		t.Fatalf("expected ErrTxConflict, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	sentinel := errors.New("bad input")
	calls := 0
	p := fastPolicy(5)
	p.Retryable = func(error) bool { return false }
	err := p.Do(context.Background(), func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-retryable error should not be retried, got %d calls", calls)
	}
}

func TestRetryDefaultClassifier(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Microsecond}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	if !errors.Is(err, ErrTxConflict) {
		t.Fatalf("expected ErrTxConflict, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("serialization failure should be retried, got %d calls", calls)
	}

	calls = 0
	plain := errors.New("constraint violation")
	err = p.Do(context.Background(), func() error {
		calls++
		return plain
	})
	if !errors.Is(err, plain) {
		t.Fatalf("expected passthrough, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-serialization error retried: %d calls", calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, Retryable: func(error) bool { return true }}
	err := p.Do(ctx, func() error { return errors.New("transient") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIsSerializationError(t *testing.T) {
	if !isSerializationError(&pgconn.PgError{Code: "40001"}) {
		t.Fatal("40001 should be retryable")
	}
	if !isSerializationError(&pgconn.PgError{Code: "40P01"}) {
		t.Fatal("40P01 should be retryable")
	}
	if isSerializationError(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("unique violation is not retryable")
	}
	if isSerializationError(errors.New("plain")) {
		t.Fatal("plain errors are not retryable")
	}
}
