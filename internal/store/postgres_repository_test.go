package store

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tradelink/ledger-service/internal/domain"
)

func TestClampPage(t *testing.T) {
	cases := []struct {
		name       string
		opts       domain.ListOptions
		wantLimit  int
		wantOffset int
	}{
		{"defaults applied", domain.ListOptions{}, defaultPageSize, 0},
		{"zero limit defaults", domain.ListOptions{Limit: 0, Offset: 40}, defaultPageSize, 40},
		{"negative limit defaults", domain.ListOptions{Limit: -5}, defaultPageSize, 0},
		{"within range passes through", domain.ListOptions{Limit: 50, Offset: 10}, 50, 10},
		{"limit capped at max", domain.ListOptions{Limit: 10000}, maxPageSize, 0},
		{"limit exactly max", domain.ListOptions{Limit: maxPageSize}, maxPageSize, 0},
		{"negative offset zeroed", domain.ListOptions{Limit: 10, Offset: -3}, 10, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			limit, offset := clampPage(tc.opts)
			if limit != tc.wantLimit || offset != tc.wantOffset {
				t.Fatalf("clampPage(%+v) = (%d, %d), want (%d, %d)",
					tc.opts, limit, offset, tc.wantLimit, tc.wantOffset)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	if !isUniqueViolation(unique) {
		t.Fatal("expected 23505 to be classified as a unique violation")
	}

	wrapped := fmt.Errorf("insert account pair: %w", unique)
	if !isUniqueViolation(wrapped) {
		t.Fatal("expected wrapped 23505 to be classified as a unique violation")
	}

	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("foreign key violation must not be classified as unique")
	}
	if isUniqueViolation(errors.New("connection reset")) {
		t.Fatal("plain error must not be classified as unique")
	}
	if isUniqueViolation(nil) {
		t.Fatal("nil must not be classified as unique")
	}
}

func TestCanonicalOrgOrder(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	first, second := canonicalOrgOrder(a, b)
	if bytes.Compare(first[:], second[:]) >= 0 {
		t.Fatalf("expected ascending byte order, got %s before %s", first, second)
	}

	// Both orientations of the same pair resolve to the same insert order,
	// so concurrent creators cannot lock the unique index in opposite orders.
	swappedFirst, swappedSecond := canonicalOrgOrder(b, a)
	if first != swappedFirst || second != swappedSecond {
		t.Fatalf("orientation changed the order: (%s, %s) vs (%s, %s)",
			first, second, swappedFirst, swappedSecond)
	}
}

func TestInvalidPaymentStatusErrorMessage(t *testing.T) {
	err := &InvalidPaymentStatusError{
		Current:   domain.PaymentStatusDisputed,
		Attempted: domain.PaymentStatusConfirmed,
	}
	want := "payment is DISPUTED; cannot transition to CONFIRMED"
	if err.Error() != want {
		t.Fatalf("unexpected message: got %q, want %q", err.Error(), want)
	}

	var target *InvalidPaymentStatusError
	if !errors.As(fmt.Errorf("confirm: %w", err), &target) {
		t.Fatal("expected errors.As to unwrap InvalidPaymentStatusError")
	}
	if target.Current != domain.PaymentStatusDisputed {
		t.Fatalf("expected current status to survive unwrapping, got %s", target.Current)
	}
}
