package domain

import "testing"

func TestPaymentStatusCanTransitionTo(t *testing.T) {
	cases := []struct {
		name    string
		from    PaymentStatus
		to      PaymentStatus
		allowed bool
	}{
		{"pending to marked", PaymentStatusPending, PaymentStatusMarkedAsPaid, true},
		{"pending to confirmed skips attestation", PaymentStatusPending, PaymentStatusConfirmed, false},
		{"pending to disputed skips attestation", PaymentStatusPending, PaymentStatusDisputed, false},
		{"marked to confirmed", PaymentStatusMarkedAsPaid, PaymentStatusConfirmed, true},
		{"marked to disputed", PaymentStatusMarkedAsPaid, PaymentStatusDisputed, true},
		{"marked back to pending", PaymentStatusMarkedAsPaid, PaymentStatusPending, false},
		{"confirmed is terminal", PaymentStatusConfirmed, PaymentStatusDisputed, false},
		{"confirmed cannot re-confirm", PaymentStatusConfirmed, PaymentStatusConfirmed, false},
		{"disputed is terminal", PaymentStatusDisputed, PaymentStatusConfirmed, false},
		{"marked cannot re-mark", PaymentStatusMarkedAsPaid, PaymentStatusMarkedAsPaid, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
				t.Fatalf("CanTransitionTo(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
			}
		})
	}
}

func TestPaymentStatusTerminal(t *testing.T) {
	if PaymentStatusPending.Terminal() {
		t.Fatal("PENDING must not be terminal")
	}
	if PaymentStatusMarkedAsPaid.Terminal() {
		t.Fatal("MARKED_AS_PAID must not be terminal")
	}
	if !PaymentStatusConfirmed.Terminal() {
		t.Fatal("CONFIRMED must be terminal")
	}
	if !PaymentStatusDisputed.Terminal() {
		t.Fatal("DISPUTED must be terminal")
	}
}
