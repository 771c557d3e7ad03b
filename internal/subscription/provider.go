package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BillingProvider abstracts the external payment service that is the source
// of authoritative truth for payment state. The provider hosts checkouts and
// owns the session state machine; this backend only observes it.
//
// Implementations should use the official provider SDK and handle
// provider-specific quirks internally (metadata propagation, event naming,
// signature schemes).
type BillingProvider interface {
	// CreateCheckoutSession creates a provider-hosted checkout session.
	// The originating account and plan must be set as provider-side
	// metadata so that asynchronous confirmation can be attributed back
	// without trusting client-supplied identifiers.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// GetCheckoutSession re-fetches a session from the provider. Payment
	// confirmation must never trust a client claim of success.
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// GetSubscription retrieves the live subscription state.
	GetSubscription(ctx context.Context, providerSubID string) (*ProviderSubscription, error)

	// CancelAtPeriodEnd schedules a cancellation at the end of the current
	// billing period, leaving access intact until then.
	CancelAtPeriodEnd(ctx context.Context, providerSubID string) error

	// Reactivate clears a pending cancel-at-period-end before it takes
	// effect.
	Reactivate(ctx context.Context, providerSubID string) error

	// ParseWebhookEvent verifies the payload signature against the
	// provider's shared secret and returns the normalized event. On
	// verification failure it returns ErrInvalidWebhookSignature and the
	// whole delivery must be rejected with no state mutation.
	ParseWebhookEvent(payload []byte, signature string) (*WebhookEvent, error)
}

// CheckoutRequest contains everything needed to open a checkout session.
type CheckoutRequest struct {
	AccountID  uuid.UUID // stamped into provider-side metadata
	PlanID     string    // stamped into provider-side metadata
	PriceRef   string    // provider's price identifier
	Email      string    // optional billing email
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the observed state of a provider-hosted session.
type CheckoutSession struct {
	ID        string
	URL       string // hosted checkout URL, empty once completed
	AccountID string // originating account from provider-side metadata
	PlanID    string // plan from provider-side metadata
	Paid      bool   // provider reports the payment as settled

	// Subscription-mode sessions carry the created subscription; one-off
	// payment sessions leave these empty.
	SubscriptionMode bool
	CustomerRef      string
	SubscriptionRef  string
	PeriodEnd        *time.Time // current billing period end
	Interval         string     // recurring interval: "month" or "year"
}

// ProviderSubscription is the provider's live view of a subscription.
type ProviderSubscription struct {
	ID                string
	Status            string // provider's raw status string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time
	Interval          string
}

// IsLive reports whether the provider considers the subscription entitled.
// Both "active" and "trialing" grant access.
func (p *ProviderSubscription) IsLive() bool {
	return p.Status == "active" || p.Status == "trialing"
}

// EventType is the normalized billing event type. Provider implementations
// map their event names onto these; anything unmapped passes through and is
// acknowledged without action.
type EventType string

const (
	EventSubscriptionUpdated EventType = "subscription_updated"
	EventSubscriptionDeleted EventType = "subscription_deleted"
	EventPaymentSucceeded    EventType = "payment_succeeded"
)

// WebhookEvent is a normalized provider-pushed event.
type WebhookEvent struct {
	ID            string // provider's event id, stable across redeliveries
	Type          EventType
	ProviderEvent string // original provider event name

	AccountID       string // from provider-side metadata, may be empty
	PlanID          string
	SubscriptionRef string
	CustomerRef     string
	Status          string // provider's raw subscription status
	PeriodEnd       *time.Time
	Interval        string

	// Payment fields, set for payment events only.
	Amount     int64
	Currency   string
	PaymentRef string
	OccurredAt time.Time
}

// intervalToBillingPeriod maps a provider recurring interval onto the local
// billing period vocabulary. Unknown intervals yield nil rather than a guess.
func intervalToBillingPeriod(interval string) *BillingPeriod {
	var bp BillingPeriod
	switch interval {
	case "month":
		bp = BillingPeriodMonthly
	case "year":
		bp = BillingPeriodYearly
	default:
		return nil
	}
	return &bp
}
