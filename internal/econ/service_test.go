package econ

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestTransferRejectsBadInput(t *testing.T) {
	// A nil pool would panic if validation let these reach the database.
	s := NewService(nil, nil, DefaultConfig(), nil)
	from, to := uuid.New(), uuid.New()

	_, err := s.Transfer(context.Background(), TransferInput{
		FromAccountID: from, ToAccountID: to, AmountMicros: 0,
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("zero amount: got %v", err)
	}

	_, err = s.Transfer(context.Background(), TransferInput{
		FromAccountID: from, ToAccountID: to, AmountMicros: -5,
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("negative amount: got %v", err)
	}

	_, err = s.Transfer(context.Background(), TransferInput{
		FromAccountID: from, ToAccountID: from, AmountMicros: MicrosPerCredit,
	})
	if err == nil {
		t.Fatal("self transfer accepted")
	}
}
