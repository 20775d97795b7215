package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/gastrodesk/gastrodesk/app/models"
)

func TestGateAssertCheckoutAllowed(t *testing.T) {
	repo := newFakeRepo()
	repo.merchants[1] = &models.Merchant{ID: 1, BillingStanding: models.StandingActive}
	repo.merchants[2] = &models.Merchant{ID: 2, BillingStanding: models.StandingRestricted}
	repo.merchants[3] = &models.Merchant{ID: 3, BillingStanding: models.StandingBlocked}
	gate := NewGate(NewStandingResolver(repo))

	if err := gate.AssertCheckoutAllowed(context.Background(), 1); err != nil {
		t.Fatalf("expected active merchant to pass, got %v", err)
	}

	var blocked *CheckoutBlockedError
	err := gate.AssertCheckoutAllowed(context.Background(), 2)
	if !errors.As(err, &blocked) {
		t.Fatalf("expected *CheckoutBlockedError, got %v", err)
	}
	if blocked.Code != BlockCodeRestricted {
		t.Fatalf("expected %s, got %s", BlockCodeRestricted, blocked.Code)
	}
	if blocked.Message == "" {
		t.Fatalf("expected a customer-facing message")
	}

	err = gate.AssertCheckoutAllowed(context.Background(), 3)
	if !errors.As(err, &blocked) {
		t.Fatalf("expected *CheckoutBlockedError, got %v", err)
	}
	if blocked.Code != BlockCodeBlocked {
		t.Fatalf("expected %s, got %s", BlockCodeBlocked, blocked.Code)
	}

	if err := gate.AssertCheckoutAllowed(context.Background(), 99); !errors.Is(err, ErrMerchantNotFound) {
		t.Fatalf("expected ErrMerchantNotFound, got %v", err)
	}
}
