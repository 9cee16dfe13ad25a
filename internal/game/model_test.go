package game

import (
	"errors"
	"testing"
)

func TestValidateID(t *testing.T) {
	valid := []string{"miner", "deep_veins", "x2"}
	for _, id := range valid {
		if err := ValidateID(id); err != nil {
			t.Fatalf("expected id %q to be valid: %v", id, err)
		}
	}

	invalid := []string{"", "Miner", "deep-veins", "a b", "../etc"}
	for _, id := range invalid {
		if err := ValidateID(id); err == nil {
			t.Fatalf("expected id %q to fail", id)
		}
	}
}

func TestValidateQuantity(t *testing.T) {
	tests := []struct {
		qty  int64
		want error
	}{
		{qty: 1, want: nil},
		{qty: MaxPurchase, want: nil},
		{qty: 0, want: ErrInvalidQuantity},
		{qty: -3, want: ErrInvalidQuantity},
		{qty: MaxPurchase + 1, want: ErrInvalidQuantity},
	}
	for _, tc := range tests {
		if got := ValidateQuantity(tc.qty); !errors.Is(got, tc.want) && got != tc.want {
			t.Fatalf("qty=%d got=%v want=%v", tc.qty, got, tc.want)
		}
	}
}
