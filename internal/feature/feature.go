// Package feature gates application features behind the account's computed
// entitlement. The premium-only set is configuration from the catalog;
// everything not in it is open to every account.
package feature

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fluentloop/backend/internal/subscription"
	"github.com/fluentloop/backend/pkg/logger"
)

// Feature identifies a gateable application capability.
type Feature string

// The premium-only features of the application. The authoritative set comes
// from the catalog; these constants exist so call sites don't scatter string
// literals.
const (
	UnlimitedExercises Feature = "unlimited_exercises"
	OfflineMode        Feature = "offline_mode"
	CloudSync          Feature = "cloud_sync"
	AdvancedStats      Feature = "advanced_stats"
	CustomAudio        Feature = "custom_audio"
	PrioritySupport    Feature = "priority_support"
)

// Decision is the outcome of an access check.
type Decision struct {
	HasAccess bool              `json:"has_access"`
	IsPremium bool              `json:"is_premium"`
	Tier      subscription.Tier `json:"tier"`
	Reason    string            `json:"reason,omitempty"`
}

// Resolver is the slice of the subscription engine the gate needs.
type Resolver interface {
	Resolve(ctx context.Context, accountID uuid.UUID) subscription.Entitlement
}

// Gate answers "may this account use this feature". It never returns an
// error: an internal failure degrades to a conservative denial with a
// generic reason rather than surfacing as a failure to the caller.
type Gate struct {
	resolver Resolver
	premium  map[Feature]struct{}
	log      *slog.Logger
}

// NewGate creates a Gate with the given premium-only feature set. Panics if
// resolver is nil to fail fast during initialization.
func NewGate(resolver Resolver, premiumFeatures []string, log *slog.Logger) *Gate {
	if resolver == nil {
		panic("feature: Resolver is required")
	}
	if log == nil {
		log = slog.Default()
	}

	premium := make(map[Feature]struct{}, len(premiumFeatures))
	for _, f := range premiumFeatures {
		premium[Feature(f)] = struct{}{}
	}
	return &Gate{resolver: resolver, premium: premium, log: log}
}

// IsPremiumOnly reports whether the feature requires a premium entitlement.
func (g *Gate) IsPremiumOnly(f Feature) bool {
	_, ok := g.premium[f]
	return ok
}

// CheckAccess decides whether the account may use the feature right now.
// Free features always pass. Premium features pass only when the resolver
// reports a premium entitlement; a denial carries a user-facing reason.
func (g *Gate) CheckAccess(ctx context.Context, accountID uuid.UUID, f Feature) Decision {
	if !g.IsPremiumOnly(f) {
		// Tier still comes from the resolver so callers can display it,
		// but a free feature never depends on the outcome.
		ent, _ := g.resolve(ctx, accountID, f)
		return Decision{HasAccess: true, IsPremium: ent.IsPremium, Tier: ent.Tier}
	}

	ent, ok := g.resolve(ctx, accountID, f)
	if !ok {
		return Decision{
			HasAccess: false,
			Tier:      subscription.TierFree,
			Reason:    "We could not verify your subscription right now. Please try again.",
		}
	}
	if ent.IsPremium {
		return Decision{HasAccess: true, IsPremium: true, Tier: ent.Tier}
	}

	return Decision{
		HasAccess: false,
		IsPremium: false,
		Tier:      ent.Tier,
		Reason:    fmt.Sprintf("%s is available on FluentLoop Premium. Upgrade to unlock it.", displayName(f)),
	}
}

// resolve shields the gate from resolver panics; the resolver itself already
// degrades internally, so this is the last line of the never-throws contract.
func (g *Gate) resolve(ctx context.Context, accountID uuid.UUID, f Feature) (ent subscription.Entitlement, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			g.log.ErrorContext(ctx, "entitlement resolution panicked",
				logger.AccountID(accountID), logger.Feature(string(f)), slog.Any("panic", r))
			ent, ok = subscription.FreeEntitlement(), false
		}
	}()
	return g.resolver.Resolve(ctx, accountID), true
}

func displayName(f Feature) string {
	switch f {
	case UnlimitedExercises:
		return "Unlimited exercises"
	case OfflineMode:
		return "Offline mode"
	case CloudSync:
		return "Cloud sync"
	case AdvancedStats:
		return "Advanced statistics"
	case CustomAudio:
		return "Custom audio"
	case PrioritySupport:
		return "Priority support"
	default:
		return "This feature"
	}
}
