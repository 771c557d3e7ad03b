package feature_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/fluentloop/backend/internal/feature"
	"github.com/fluentloop/backend/internal/subscription"
)

type staticResolver struct {
	ent subscription.Entitlement
}

func (r staticResolver) Resolve(context.Context, uuid.UUID) subscription.Entitlement {
	return r.ent
}

type panickingResolver struct{}

func (panickingResolver) Resolve(context.Context, uuid.UUID) subscription.Entitlement {
	panic("store connection lost")
}

var premiumSet = []string{
	"unlimited_exercises",
	"offline_mode",
	"cloud_sync",
	"advanced_stats",
	"custom_audio",
	"priority_support",
}

func premiumEntitlement() subscription.Entitlement {
	return subscription.Entitlement{
		IsPremium: true,
		Tier:      subscription.TierPremium,
		Status:    subscription.StatusActive,
		PlanID:    "premium_monthly",
	}
}

func TestGate_CheckAccess(t *testing.T) {
	t.Parallel()

	accountID := uuid.New()

	t.Run("free feature always passes", func(t *testing.T) {
		t.Parallel()

		gate := feature.NewGate(staticResolver{ent: subscription.FreeEntitlement()}, premiumSet, nil)
		d := gate.CheckAccess(context.Background(), accountID, "daily_lesson")

		assert.True(t, d.HasAccess)
		assert.False(t, d.IsPremium)
		assert.Equal(t, subscription.TierFree, d.Tier)
		assert.Empty(t, d.Reason)
	})

	t.Run("premium feature passes for premium account", func(t *testing.T) {
		t.Parallel()

		gate := feature.NewGate(staticResolver{ent: premiumEntitlement()}, premiumSet, nil)
		d := gate.CheckAccess(context.Background(), accountID, feature.OfflineMode)

		assert.True(t, d.HasAccess)
		assert.True(t, d.IsPremium)
	})

	t.Run("premium feature denied for free account with upgrade reason", func(t *testing.T) {
		t.Parallel()

		gate := feature.NewGate(staticResolver{ent: subscription.FreeEntitlement()}, premiumSet, nil)
		d := gate.CheckAccess(context.Background(), accountID, feature.OfflineMode)

		assert.False(t, d.HasAccess)
		assert.Contains(t, d.Reason, "Offline mode")
		assert.Contains(t, d.Reason, "Premium")
	})

	t.Run("resolver panic degrades to denial with generic reason", func(t *testing.T) {
		t.Parallel()

		gate := feature.NewGate(panickingResolver{}, premiumSet, nil)
		d := gate.CheckAccess(context.Background(), accountID, feature.CloudSync)

		assert.False(t, d.HasAccess)
		assert.NotContains(t, d.Reason, "Premium")
		assert.NotEmpty(t, d.Reason)
	})

	t.Run("resolver panic never blocks free features", func(t *testing.T) {
		t.Parallel()

		gate := feature.NewGate(panickingResolver{}, premiumSet, nil)
		d := gate.CheckAccess(context.Background(), accountID, "daily_lesson")

		assert.True(t, d.HasAccess)
	})
}

func TestGate_IsPremiumOnly(t *testing.T) {
	t.Parallel()

	gate := feature.NewGate(staticResolver{}, premiumSet, nil)

	assert.True(t, gate.IsPremiumOnly(feature.UnlimitedExercises))
	assert.True(t, gate.IsPremiumOnly(feature.PrioritySupport))
	assert.False(t, gate.IsPremiumOnly("daily_lesson"))
	assert.False(t, gate.IsPremiumOnly(""))
}

func TestNewGate_PanicsOnNilResolver(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { feature.NewGate(nil, premiumSet, nil) })
}
