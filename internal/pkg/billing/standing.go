package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/gastrodesk/gastrodesk/app/models"
	"github.com/gastrodesk/gastrodesk/internal/pkg/cache"
)

// StandingResolver resolves a merchant's current billing standing. The
// derivation behind the stored value is configurable billing policy, so it
// is injected as a strategy rather than inlined into the gate.
type StandingResolver interface {
	Resolve(ctx context.Context, merchantID uint) (string, error)
}

type repoResolver struct {
	repo Repository
}

// NewStandingResolver resolves standing straight from the merchant row.
func NewStandingResolver(repo Repository) StandingResolver {
	return &repoResolver{repo: repo}
}

func (r *repoResolver) Resolve(ctx context.Context, merchantID uint) (string, error) {
	_ = ctx
	standing, err := r.repo.GetMerchantStanding(merchantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrMerchantNotFound
		}
		return "", err
	}
	return standing, nil
}

const standingCacheTTL = 30 * time.Second

type cachedResolver struct {
	inner StandingResolver
}

// NewCachedStandingResolver wraps a resolver with a short-lived cache for
// the hot checkout path. Unlock operations take at most the TTL to become
// visible here; the write path stays authoritative.
func NewCachedStandingResolver(inner StandingResolver) StandingResolver {
	return &cachedResolver{inner: inner}
}

func (r *cachedResolver) Resolve(ctx context.Context, merchantID uint) (string, error) {
	key := fmt.Sprintf("billing:standing:%d", merchantID)
	if val, err := cache.Get(key); err == nil && val != "" {
		return val, nil
	}

	standing, err := r.inner.Resolve(ctx, merchantID)
	if err != nil {
		return "", err
	}
	if err := cache.Set(key, standing, standingCacheTTL); err != nil {
		log.Errorf("[Billing] standing cache write for merchant %d failed: %v", merchantID, err)
	}
	return standing, nil
}

// InvalidateStandingCache drops a merchant's cached standing, used after
// standing writes so unlocks take effect immediately.
func InvalidateStandingCache(merchantID uint) {
	if err := cache.Delete(fmt.Sprintf("billing:standing:%d", merchantID)); err != nil {
		log.Errorf("[Billing] standing cache invalidate for merchant %d failed: %v", merchantID, err)
	}
}

// Gate is the checkout admission gate. It runs before any order row is
// written; a non-active standing rejects the checkout outright.
type Gate struct {
	resolver StandingResolver
}

func NewGate(resolver StandingResolver) *Gate {
	return &Gate{resolver: resolver}
}

// AssertCheckoutAllowed returns nil for an active merchant and a
// *CheckoutBlockedError otherwise.
func (g *Gate) AssertCheckoutAllowed(ctx context.Context, merchantID uint) error {
	standing, err := g.resolver.Resolve(ctx, merchantID)
	if err != nil {
		return err
	}

	switch standing {
	case models.StandingActive:
		return nil
	case models.StandingRestricted:
		return &CheckoutBlockedError{
			Code:    BlockCodeRestricted,
			Message: "Bestellungen sind bei diesem Anbieter vorübergehend eingeschränkt. Bitte versuche es später erneut.",
		}
	case models.StandingBlocked:
		return &CheckoutBlockedError{
			Code:    BlockCodeBlocked,
			Message: "Bestellungen sind bei diesem Anbieter derzeit nicht möglich.",
		}
	default:
		return fmt.Errorf("unknown billing standing %q for merchant %d", standing, merchantID)
	}
}
