package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluentloop/backend/internal/subscription"
)

func TestAllowList(t *testing.T) {
	t.Parallel()

	list := subscription.NewAllowList([]string{"Admin@FluentLoop.app", " qa@fluentloop.app ", ""})

	assert.True(t, list.Contains("admin@fluentloop.app"))
	assert.True(t, list.Contains("ADMIN@fluentloop.app"))
	assert.True(t, list.Contains("qa@fluentloop.app"))
	assert.False(t, list.Contains("user@fluentloop.app"))
	assert.False(t, list.Contains(""))
}

func TestProvisioner_EnsureProvisioned(t *testing.T) {
	t.Parallel()

	t.Run("grants permanent premium to allow-listed identity", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewInMemStore()
		prov := subscription.NewProvisioner(store,
			subscription.NewAllowList([]string{"admin@fluentloop.app"}), nil)
		accountID := uuid.New()

		prov.EnsureProvisioned(context.Background(), accountID, "admin@fluentloop.app")

		rec, err := store.Get(context.Background(), accountID)
		require.NoError(t, err)
		assert.Equal(t, subscription.TierPremium, rec.Tier)
		assert.Equal(t, subscription.StatusActive, rec.Status)
		assert.Equal(t, subscription.PlanComplimentary, rec.PlanID)
		assert.Nil(t, rec.ExpiresAt)
		require.NotNil(t, rec.BillingPeriod)
		assert.Equal(t, subscription.BillingPeriodPermanent, *rec.BillingPeriod)
	})

	t.Run("ignores identities off the list", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewInMemStore()
		prov := subscription.NewProvisioner(store,
			subscription.NewAllowList([]string{"admin@fluentloop.app"}), nil)
		accountID := uuid.New()

		prov.EnsureProvisioned(context.Background(), accountID, "user@fluentloop.app")

		_, err := store.Get(context.Background(), accountID)
		assert.ErrorIs(t, err, subscription.ErrRecordNotFound)
	})

	t.Run("repeated sign-ins leave the record unchanged", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewInMemStore()
		prov := subscription.NewProvisioner(store,
			subscription.NewAllowList([]string{"admin@fluentloop.app"}), nil)
		accountID := uuid.New()

		prov.EnsureProvisioned(context.Background(), accountID, "admin@fluentloop.app")
		first, err := store.Get(context.Background(), accountID)
		require.NoError(t, err)

		prov.EnsureProvisioned(context.Background(), accountID, "admin@fluentloop.app")
		second, err := store.Get(context.Background(), accountID)
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})
}

func TestProvisioner_GrantComplimentary_UpgradesExistingRecord(t *testing.T) {
	t.Parallel()

	store := subscription.NewInMemStore()
	prov := subscription.NewProvisioner(store, subscription.NewAllowList(nil), nil)
	accountID := uuid.New()

	// An expired purchased subscription gets superseded by the grant.
	expired := premiumRecord(accountID, "sub_old", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	expired.Status = subscription.StatusExpired
	require.NoError(t, store.Save(context.Background(), expired))

	require.NoError(t, prov.GrantComplimentary(context.Background(), accountID))

	rec, err := store.Get(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, subscription.PlanComplimentary, rec.PlanID)
	assert.Equal(t, subscription.StatusActive, rec.Status)
	assert.Nil(t, rec.ExpiresAt)
	assert.Nil(t, rec.CancelledAt)
}
