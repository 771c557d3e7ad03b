package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fluentloop/backend/internal/subscription"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func premiumRecord(accountID uuid.UUID, subRef string, expiresAt time.Time) *subscription.Record {
	monthly := subscription.BillingPeriodMonthly
	customer := "cus_test"
	return &subscription.Record{
		AccountID:               accountID,
		Tier:                    subscription.TierPremium,
		Status:                  subscription.StatusActive,
		PlanID:                  "premium_monthly",
		ExpiresAt:               &expiresAt,
		BillingPeriod:           &monthly,
		ProviderCustomerRef:     &customer,
		ProviderSubscriptionRef: &subRef,
		CreatedAt:               testNow.Add(-30 * 24 * time.Hour),
		UpdatedAt:               testNow.Add(-24 * time.Hour),
	}
}

func TestResolver_Resolve_LazyCreation(t *testing.T) {
	t.Parallel()

	store := subscription.NewInMemStore()
	provider := new(mockProvider)
	resolver := subscription.NewResolver(store, provider, nil,
		subscription.WithResolverClock(fixedClock))

	accountID := uuid.New()
	ent := resolver.Resolve(context.Background(), accountID)

	assert.False(t, ent.IsPremium)
	assert.Equal(t, subscription.TierFree, ent.Tier)
	assert.Equal(t, subscription.StatusActive, ent.Status)
	assert.Equal(t, subscription.PlanFree, ent.PlanID)

	// The default record must have been persisted.
	rec, err := store.Get(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, subscription.TierFree, rec.Tier)
	assert.Equal(t, testNow, rec.CreatedAt)

	provider.AssertNotCalled(t, "GetSubscription", mock.Anything, mock.Anything)
}

func TestResolver_Resolve_StoreFailureDegradesToFree(t *testing.T) {
	t.Parallel()

	store := new(mockStore)
	store.On("Get", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
	provider := new(mockProvider)

	resolver := subscription.NewResolver(store, provider, nil)
	ent := resolver.Resolve(context.Background(), uuid.New())

	assert.Equal(t, subscription.FreeEntitlement(), ent)
}

func TestResolver_Resolve_ExpiredPremium(t *testing.T) {
	t.Parallel()

	store := subscription.NewInMemStore()
	provider := new(mockProvider)
	accountID := uuid.New()

	rec := premiumRecord(accountID, "", testNow.Add(-time.Hour))
	rec.ProviderSubscriptionRef = nil
	rec.ProviderCustomerRef = nil
	require.NoError(t, store.Save(context.Background(), rec))

	resolver := subscription.NewResolver(store, provider, nil,
		subscription.WithResolverClock(fixedClock))
	ent := resolver.Resolve(context.Background(), accountID)

	assert.False(t, ent.IsPremium)
	assert.Equal(t, subscription.StatusExpired, ent.Status)
	assert.Equal(t, subscription.TierPremium, ent.Tier)
	provider.AssertNotCalled(t, "GetSubscription", mock.Anything, mock.Anything)
}

func TestResolver_Resolve_ExpiryBoundaryIsInclusive(t *testing.T) {
	t.Parallel()

	store := subscription.NewInMemStore()
	accountID := uuid.New()

	// Expiring exactly now still grants access.
	rec := premiumRecord(accountID, "", testNow)
	rec.ProviderSubscriptionRef = nil
	require.NoError(t, store.Save(context.Background(), rec))

	resolver := subscription.NewResolver(store, new(mockProvider), nil,
		subscription.WithResolverClock(fixedClock))
	ent := resolver.Resolve(context.Background(), accountID)

	assert.True(t, ent.IsPremium)
	assert.Equal(t, subscription.StatusActive, ent.Status)
}

func TestResolver_Resolve_ProviderWinsDisagreement(t *testing.T) {
	t.Parallel()

	store := subscription.NewInMemStore()
	provider := new(mockProvider)
	accountID := uuid.New()
	subRef := "sub_123"
	periodEnd := testNow.Add(-2 * time.Hour)

	// Locally active, but the provider says cancelled with the period
	// already over.
	require.NoError(t, store.Save(context.Background(),
		premiumRecord(accountID, subRef, testNow.Add(24*time.Hour))))

	provider.On("GetSubscription", mock.Anything, subRef).Return(&subscription.ProviderSubscription{
		ID:               subRef,
		Status:           "canceled",
		CurrentPeriodEnd: periodEnd,
		Interval:         "month",
	}, nil)

	resolver := subscription.NewResolver(store, provider, nil,
		subscription.WithResolverClock(fixedClock))
	ent := resolver.Resolve(context.Background(), accountID)

	assert.False(t, ent.IsPremium)
	assert.Equal(t, subscription.StatusExpired, ent.Status)

	// The corrected state must be persisted so the next resolution does
	// not need the provider.
	rec, err := store.Get(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, rec.Status)
	require.NotNil(t, rec.ExpiresAt)
	assert.True(t, rec.ExpiresAt.Equal(periodEnd))
}

func TestResolver_Resolve_ProviderRefreshesPeriodEnd(t *testing.T) {
	t.Parallel()

	store := subscription.NewInMemStore()
	provider := new(mockProvider)
	accountID := uuid.New()
	subRef := "sub_renewed"
	renewedEnd := testNow.Add(30 * 24 * time.Hour)

	require.NoError(t, store.Save(context.Background(),
		premiumRecord(accountID, subRef, testNow.Add(time.Hour))))

	provider.On("GetSubscription", mock.Anything, subRef).Return(&subscription.ProviderSubscription{
		ID:               subRef,
		Status:           "active",
		CurrentPeriodEnd: renewedEnd,
		Interval:         "month",
	}, nil)

	resolver := subscription.NewResolver(store, provider, nil,
		subscription.WithResolverClock(fixedClock))
	ent := resolver.Resolve(context.Background(), accountID)

	assert.True(t, ent.IsPremium)
	require.NotNil(t, ent.ExpiresAt)
	assert.True(t, ent.ExpiresAt.Equal(renewedEnd))

	rec, err := store.Get(context.Background(), accountID)
	require.NoError(t, err)
	assert.True(t, rec.ExpiresAt.Equal(renewedEnd))
}

func TestResolver_Resolve_MissingProviderPeriodEndKeepsLocalExpiry(t *testing.T) {
	t.Parallel()

	store := subscription.NewInMemStore()
	provider := new(mockProvider)
	accountID := uuid.New()
	subRef := "sub_noperiod"
	expiresAt := testNow.Add(24 * time.Hour)

	require.NoError(t, store.Save(context.Background(),
		premiumRecord(accountID, subRef, expiresAt)))

	// Live subscription, but the provider reports no period end.
	provider.On("GetSubscription", mock.Anything, subRef).Return(&subscription.ProviderSubscription{
		ID:     subRef,
		Status: "active",
	}, nil)

	resolver := subscription.NewResolver(store, provider, nil,
		subscription.WithResolverClock(fixedClock))

	// Premium must survive repeated resolutions: the missing period end
	// must not be persisted as an already-passed expiry.
	for range 2 {
		ent := resolver.Resolve(context.Background(), accountID)
		assert.True(t, ent.IsPremium)
		assert.Equal(t, subscription.StatusActive, ent.Status)
	}

	rec, err := store.Get(context.Background(), accountID)
	require.NoError(t, err)
	require.NotNil(t, rec.ExpiresAt)
	assert.True(t, rec.ExpiresAt.Equal(expiresAt))
}

func TestResolver_Resolve_ProviderOutageKeepsLocalState(t *testing.T) {
	t.Parallel()

	store := subscription.NewInMemStore()
	provider := new(mockProvider)
	accountID := uuid.New()
	subRef := "sub_outage"
	expiresAt := testNow.Add(24 * time.Hour)

	require.NoError(t, store.Save(context.Background(),
		premiumRecord(accountID, subRef, expiresAt)))

	provider.On("GetSubscription", mock.Anything, subRef).
		Return(nil, errors.New("dial tcp: i/o timeout"))

	resolver := subscription.NewResolver(store, provider, nil,
		subscription.WithResolverClock(fixedClock))
	ent := resolver.Resolve(context.Background(), accountID)

	// Last-known local state stands: still premium.
	assert.True(t, ent.IsPremium)
	assert.Equal(t, subscription.StatusActive, ent.Status)
}

func TestResolver_Resolve_AdminGrantSkipsProvider(t *testing.T) {
	t.Parallel()

	store := subscription.NewInMemStore()
	provider := new(mockProvider)
	accountID := uuid.New()

	permanent := subscription.BillingPeriodPermanent
	require.NoError(t, store.Save(context.Background(), &subscription.Record{
		AccountID:     accountID,
		Tier:          subscription.TierPremium,
		Status:        subscription.StatusActive,
		PlanID:        subscription.PlanComplimentary,
		BillingPeriod: &permanent,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}))

	resolver := subscription.NewResolver(store, provider, nil,
		subscription.WithResolverClock(fixedClock))
	ent := resolver.Resolve(context.Background(), accountID)

	assert.True(t, ent.IsPremium)
	assert.Equal(t, subscription.PlanComplimentary, ent.PlanID)
	provider.AssertNotCalled(t, "GetSubscription", mock.Anything, mock.Anything)
}

func TestResolver_Resolve_StoredCancelledResolvesExpired(t *testing.T) {
	t.Parallel()

	store := subscription.NewInMemStore()
	provider := new(mockProvider)
	accountID := uuid.New()

	rec := premiumRecord(accountID, "sub_c", testNow.Add(24*time.Hour))
	rec.Status = subscription.StatusCancelled
	require.NoError(t, store.Save(context.Background(), rec))

	resolver := subscription.NewResolver(store, provider, nil,
		subscription.WithResolverClock(fixedClock))
	ent := resolver.Resolve(context.Background(), accountID)

	assert.False(t, ent.IsPremium)
	assert.Equal(t, subscription.StatusExpired, ent.Status)
	// Not locally active, so no liveness query either.
	provider.AssertNotCalled(t, "GetSubscription", mock.Anything, mock.Anything)
}

func TestNewResolver_PanicsOnNilDeps(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		subscription.NewResolver(nil, new(mockProvider), nil)
	})
	assert.Panics(t, func() {
		subscription.NewResolver(subscription.NewInMemStore(), nil, nil)
	})
}
