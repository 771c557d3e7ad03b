package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fluentloop/backend/pkg/logger"
)

const defaultProviderTimeout = 3 * time.Second

// Resolver computes the current entitlement for an account by merging the
// locally persisted record with the billing provider's authoritative state.
//
// Resolution never fails the caller: the provider being unreachable degrades
// to the last-known local state, and any unexpected failure degrades to a
// default free/active entitlement. This favors availability over strict
// correctness for the free path, at the cost of potentially under-granting
// premium during an outage.
type Resolver struct {
	store           Store
	provider        BillingProvider
	log             *slog.Logger
	now             func() time.Time
	providerTimeout time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverClock overrides the time source, useful for tests with fixed
// time values.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithProviderTimeout bounds the provider liveness query inside Resolve.
// A timeout is handled identically to any other provider failure.
func WithProviderTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.providerTimeout = d
		}
	}
}

// NewResolver creates a Resolver. Panics if store or provider is nil to fail
// fast during initialization.
func NewResolver(store Store, provider BillingProvider, log *slog.Logger, opts ...ResolverOption) *Resolver {
	if store == nil {
		panic("subscription: Store is required")
	}
	if provider == nil {
		panic("subscription: BillingProvider is required")
	}
	if log == nil {
		log = slog.Default()
	}

	r := &Resolver{
		store:           store,
		provider:        provider,
		log:             log,
		now:             func() time.Time { return time.Now().UTC() },
		providerTimeout: defaultProviderTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the current entitlement for an account.
//
// A missing record is lazily created as free/active. When the record is
// provider-backed and locally active, the provider is queried and wins any
// disagreement: the corrected status and expiry are persisted before
// returning. Cancellation manifests to callers as expiry - a stored
// cancelled status resolves to "expired" regardless of the period end.
func (r *Resolver) Resolve(ctx context.Context, accountID uuid.UUID) Entitlement {
	rec, err := r.store.Get(ctx, accountID)
	switch {
	case err == nil:
	case errors.Is(err, ErrRecordNotFound):
		rec = NewFreeRecord(accountID, r.now())
		if err := r.store.Save(ctx, rec); err != nil {
			r.log.ErrorContext(ctx, "failed to create default subscription record",
				logger.AccountID(accountID), logger.Error(err))
			return FreeEntitlement()
		}
	default:
		// Store unreachable: degrade to the free default rather than
		// failing the caller.
		r.log.ErrorContext(ctx, "failed to load subscription record",
			logger.AccountID(accountID), logger.Error(err))
		return FreeEntitlement()
	}

	now := r.now()
	isActive := rec.IsActiveAt(now)

	// Only a locally active, provider-backed record warrants a liveness
	// query. Admin grants and free records have nothing to reconcile.
	if rec.IsProviderBacked() && isActive {
		isActive = r.reconcileWithProvider(ctx, rec, isActive)
	}

	status := StatusExpired
	if isActive {
		status = StatusActive
	}

	return Entitlement{
		IsPremium:     isActive && rec.Tier == TierPremium,
		Tier:          rec.Tier,
		Status:        status,
		PlanID:        rec.PlanID,
		ExpiresAt:     rec.ExpiresAt,
		BillingPeriod: rec.BillingPeriod,
	}
}

// reconcileWithProvider queries the billing provider and brings the local
// record into agreement with it, never the other way around. Any provider
// failure leaves the last-known local state in force.
func (r *Resolver) reconcileWithProvider(ctx context.Context, rec *Record, localActive bool) bool {
	ctx, cancel := context.WithTimeout(ctx, r.providerTimeout)
	defer cancel()

	live, err := r.provider.GetSubscription(ctx, *rec.ProviderSubscriptionRef)
	if err != nil {
		// Provider unavailability must never block entitlement checks.
		r.log.WarnContext(ctx, "billing provider query failed, using last-known local state",
			logger.AccountID(rec.AccountID), logger.Error(err))
		return localActive
	}

	// A zero period end means the provider did not report one; never
	// persist it, or a live subscription would look locally expired on
	// every later resolution.
	periodEnd := live.CurrentPeriodEnd.UTC()
	havePeriodEnd := !live.CurrentPeriodEnd.IsZero()

	if !live.IsLive() {
		rec.Status = StatusCancelled
		if havePeriodEnd {
			rec.ExpiresAt = &periodEnd
		}
		rec.UpdatedAt = r.now()
		if err := r.store.Save(ctx, rec); err != nil {
			r.log.ErrorContext(ctx, "failed to persist corrected subscription state",
				logger.AccountID(rec.AccountID), logger.Error(err))
		}
		return false
	}

	// Provider agrees the subscription is live; refresh the period end so
	// renewals converge without waiting for a webhook.
	if havePeriodEnd && (rec.ExpiresAt == nil || !rec.ExpiresAt.Equal(periodEnd)) {
		rec.ExpiresAt = &periodEnd
		if bp := intervalToBillingPeriod(live.Interval); bp != nil {
			rec.BillingPeriod = bp
		}
		rec.UpdatedAt = r.now()
		if err := r.store.Save(ctx, rec); err != nil {
			r.log.ErrorContext(ctx, "failed to persist refreshed period end",
				logger.AccountID(rec.AccountID), logger.Error(err))
		}
	}
	return true
}
